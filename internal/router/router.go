package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/handler"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	StudentPortal *handler.StudentPortalHandler
	Exam          *handler.ExamHandler
	WS            *handler.WSHandler
	Monitor       *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds background helpers such as the rate limiter sweep.
func SetupRouter(
	ctx context.Context,
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID first so the access log can carry it.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(log))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	compress := middleware.Compress(cfg.CompressMinBytes)

	// Authorize and submit are limited per student.
	attemptLimiter := middleware.NewRateLimiter(ctx, cfg.SubmitRatePerMinute, time.Minute)

	// ─── 1. Student Group (JWT) ────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(middleware.RequireStudentJWT(authService), middleware.NoStore(), compress)
	{
		studentAPI.GET("/exams", handlers.StudentPortal.ListExams)
		studentAPI.POST("/exams/:exam_id/authorize", attemptLimiter.Middleware(), handlers.StudentPortal.AuthorizeExam)
		studentAPI.POST("/exams/:exam_id/submit", attemptLimiter.Middleware(), handlers.StudentPortal.SubmitExam)
		studentAPI.GET("/results", handlers.StudentPortal.GetResults)
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/exams/:exam_id/attempt", attemptLimiter.Middleware(), handlers.WS.AttemptStream)
	}

	// ─── 3. Teacher Group (JWT + permissions) ──────────────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(middleware.RequireTeacherJWT(authService), middleware.NoStore(), compress)
	{
		teacherAPI.GET("/exams",
			middleware.RequireAnyPermission(service.PermExamsWrite, service.PermSubmissionsRead),
			handlers.Exam.ListExams,
		)
		teacherAPI.POST("/exams",
			middleware.RequirePermission(service.PermExamsWrite),
			handlers.Exam.CreateExam,
		)

		exams := teacherAPI.Group("/exams/:exam_id")
		{
			exams.GET("",
				middleware.RequireAnyPermission(service.PermExamsWrite, service.PermSubmissionsRead),
				handlers.Exam.GetExam,
			)
			exams.POST("/publish",
				middleware.RequirePermission(service.PermExamsWrite),
				handlers.Exam.PublishExam,
			)
			exams.POST("/unpublish",
				middleware.RequirePermission(service.PermExamsWrite),
				handlers.Exam.UnpublishExam,
			)
			exams.PUT("/schedule",
				middleware.RequirePermission(service.PermExamsWrite),
				handlers.Exam.ScheduleExam,
			)
			exams.PUT("/sections",
				middleware.RequirePermission(service.PermExamsWrite),
				handlers.Exam.ReplaceSections,
			)
			exams.GET("/submissions",
				middleware.RequirePermission(service.PermSubmissionsRead),
				handlers.Exam.ListSubmissions,
			)
			exams.GET("/analytics",
				middleware.RequirePermission(service.PermSubmissionsRead),
				handlers.Exam.GetAnalytics,
			)
			exams.GET("/monitor",
				middleware.RequirePermission(service.PermSubmissionsRead),
				handlers.Monitor.MonitorExamSSE,
			)
		}

		teacherAPI.GET("/submissions/:submission_id",
			middleware.RequirePermission(service.PermSubmissionsRead),
			handlers.Exam.GetSubmission,
		)
		teacherAPI.POST("/submissions/:submission_id/grade",
			middleware.RequirePermission(service.PermSubmissionsGrade),
			handlers.Exam.GradeSubmission,
		)
	}

	router.NoRoute(func(c *gin.Context) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	})

	return router
}
