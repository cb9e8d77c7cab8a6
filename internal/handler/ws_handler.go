package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/session"
	"github.com/stemsi/exstem-engine/internal/validator"
	ws "github.com/stemsi/exstem-engine/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// IntegrityRecorder is satisfied by *service.MonitorService.
type IntegrityRecorder interface {
	RecordIntegrityEvent(ctx context.Context, examID uuid.UUID, studentID int, attemptID uuid.UUID, ev model.IntegrityEvent)
}

// WSHandler hosts attempts over a WebSocket. Each connection owns one
// session.Session; the socket is the session's observer.
type WSHandler struct {
	authorizer       ExamAuthorizer
	submitter        Submitter
	drafts           session.DraftSaver
	integrity        IntegrityRecorder
	autosaveInterval time.Duration
	log              zerolog.Logger
	upgrader         websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	authorizer ExamAuthorizer,
	submitter Submitter,
	drafts session.DraftSaver,
	integrity IntegrityRecorder,
	autosaveInterval time.Duration,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		authorizer:       authorizer,
		submitter:        submitter,
		drafts:           drafts,
		integrity:        integrity,
		autosaveInterval: autosaveInterval,
		log:              log.With().Str("component", "ws_handler").Logger(),
		upgrader:         buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/exams/:exam_id/attempt?token=&access_code=
// Authorizes, then runs the attempt server-side until it is submitted or the
// socket closes.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// Denials are answered over plain HTTP before the upgrade.
	view, err := h.authorizer.Authorize(c.Request.Context(), examID, claims.UserID, c.Query("access_code"))
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obs := &socketObserver{conn: conn, done: make(chan struct{})}
	sess := session.New(view, claims.UserID, h.submitter,
		session.WithObserver(obs),
		session.WithDraftSaver(h.drafts, h.autosaveInterval),
		session.WithLogger(h.log),
	)
	obs.sess = sess
	defer sess.Close()

	wsLog := h.log.With().
		Int("student_id", claims.UserID).
		Str("exam_id", examID.String()).
		Str("attempt_id", sess.AttemptID().String()).
		Logger()

	if err := sess.Start(ctx); err != nil {
		wsLog.Error().Err(err).Msg("Failed to start attempt")
		conn.WriteError(string(response.ErrInternal), response.GetMessage(response.ErrInternal))
		return
	}

	conn.WriteTyped(ws.ViewResponse{
		Event:            ws.EventView,
		AttemptID:        sess.AttemptID(),
		RemainingSeconds: sess.Remaining(),
		View:             view,
	})

	wsLog.Info().Msg("Student connected")

	// A terminal state (including the automatic submit at zero) ends the
	// connection.
	go func() {
		select {
		case <-obs.done:
			conn.Close()
		case <-ctx.Done():
		}
	}()

	a := &attempt{h: h, conn: conn, sess: sess, examID: examID, studentID: claims.UserID, log: wsLog}
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}
		a.dispatch(ctx, data)
	}
}

// attempt bundles per-connection state for the action handlers.
type attempt struct {
	h         *WSHandler
	conn      *ws.Conn
	sess      *session.Session
	examID    uuid.UUID
	studentID int
	log       zerolog.Logger
}

func (a *attempt) dispatch(ctx context.Context, data []byte) {
	var env ws.RequestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		a.conn.WriteError(string(response.ErrInvalidPayload), response.GetMessage(response.ErrInvalidPayload))
		return
	}

	switch env.Action {
	case ws.ActionAnswer:
		a.handleAnswer(data)
	case ws.ActionNavigate:
		var req ws.NavigateRequest
		if !a.decode(data, &req) {
			return
		}
		a.writeCursor(a.sess.Navigate(req.Section, req.Question))
	case ws.ActionNext:
		a.writeCursor(a.sess.Next())
	case ws.ActionPrev:
		a.writeCursor(a.sess.Prev())
	case ws.ActionEvent:
		a.handleEvent(ctx, data)
	case ws.ActionSubmit:
		a.handleSubmit(ctx)
	case ws.ActionPing:
		a.conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
	default:
		a.log.Warn().Str("action", string(env.Action)).Msg("Unknown action")
		a.conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(env.Action))
	}
}

// decode unmarshals and validates a typed request, reporting failures.
func (a *attempt) decode(data []byte, dst any) bool {
	if err := json.Unmarshal(data, dst); err != nil {
		a.conn.WriteFields(string(response.ErrInvalidPayload), response.GetMessage(response.ErrInvalidPayload),
			map[string]string{"detail": err.Error()})
		return false
	}
	if fields := validator.Struct(dst); fields != nil {
		a.conn.WriteFields(string(response.ErrValidation), response.GetMessage(response.ErrValidation), fields)
		return false
	}
	return true
}

func (a *attempt) handleAnswer(data []byte) {
	var req ws.AnswerRequest
	if !a.decode(data, &req) {
		return
	}
	var ans model.Answer
	if err := json.Unmarshal(req.Answer, &ans); err != nil {
		a.conn.WriteFields(string(response.ErrInvalidAnswer), response.GetMessage(response.ErrInvalidAnswer),
			map[string]string{"answer": err.Error()})
		return
	}
	if err := a.sess.Answer(req.QuestionID, ans); err != nil {
		a.writeSessionError(err)
		return
	}
	a.conn.WriteTyped(ws.AnsweredResponse{Event: ws.EventAnswered, QuestionID: req.QuestionID})
}

func (a *attempt) handleEvent(ctx context.Context, data []byte) {
	var req ws.EventRequest
	if !a.decode(data, &req) {
		return
	}
	reaction, err := a.sess.RecordEvent(req.Type, req.Details)
	if err != nil {
		a.writeSessionError(err)
		return
	}
	if reaction.Ignored() {
		return
	}
	a.h.integrity.RecordIntegrityEvent(ctx, a.examID, a.studentID, a.sess.AttemptID(), model.IntegrityEvent{
		Kind:      req.Type,
		Timestamp: time.Now(),
		Detail:    req.Details,
	})
}

func (a *attempt) handleSubmit(ctx context.Context) {
	if err := a.sess.Submit(ctx); err != nil {
		a.writeSessionError(err)
	}
}

func (a *attempt) writeCursor(cur session.Cursor, err error) {
	if err != nil {
		a.writeSessionError(err)
		return
	}
	a.conn.WriteTyped(ws.CursorResponse{Event: ws.EventCursor, Section: cur.Section, Question: cur.Question})
}

func (a *attempt) writeSessionError(err error) {
	var code response.ErrCode
	switch {
	case errors.Is(err, session.ErrNotActive):
		code = response.ErrForbidden
	case errors.Is(err, session.ErrUnknownQuestion), errors.Is(err, session.ErrCursorOutOfRange):
		code = response.ErrValidation
	default:
		status, c := classifyError(err)
		code = c
		if status >= http.StatusInternalServerError {
			a.log.Error().Err(err).Msg("Attempt action failed")
		}
	}
	a.conn.WriteError(string(code), response.GetMessage(code))
}

// socketObserver forwards session notifications to the client.
type socketObserver struct {
	conn *ws.Conn
	sess *session.Session
	once sync.Once
	done chan struct{}
}

func (o *socketObserver) OnTick(remaining int) {
	o.conn.WriteTyped(ws.TickResponse{Event: ws.EventTick, RemainingSeconds: remaining})
}

func (o *socketObserver) OnWarning(r session.Reaction) {
	o.conn.WriteTyped(ws.WarningResponse{
		Event:             ws.EventWarning,
		Type:              r.Kind,
		Message:           r.Warning,
		Block:             r.Block,
		ReenterFullscreen: r.ReenterFullscreen,
		TTLMillis:         r.WarningTTL.Milliseconds(),
	})
}

func (o *socketObserver) OnStateChange(from, to session.State) {
	o.conn.WriteTyped(ws.StateResponse{Event: ws.EventState, From: string(from), To: string(to)})
	if to == session.StateSubmitted {
		o.conn.WriteTyped(ws.SubmittedResponse{Event: ws.EventSubmitted, Result: o.sess.Result()})
	}
}

func (o *socketObserver) OnReleaseFullscreen() {
	o.conn.WriteTyped(ws.StateResponse{Event: ws.EventState, To: string(o.sess.State()), ReleaseFullscreen: true})
	o.once.Do(func() { close(o.done) })
}
