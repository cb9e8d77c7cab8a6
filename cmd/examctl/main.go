// Command examctl is the operator CLI for the exam engine: dev tokens,
// result inspection, grade overrides, offline integrity classification and
// demo data.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/database"
	"github.com/stemsi/exstem-engine/internal/grading"
	"github.com/stemsi/exstem-engine/internal/logger"
	"github.com/stemsi/exstem-engine/internal/repository"
	"github.com/stemsi/exstem-engine/internal/service"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "examctl",
		Short:         "Operator tools for the ExStem exam engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("log-level", "", "Log level override (trace, debug, info, warn, error)")

	root.AddCommand(tokenCmd(), resultsCmd(), overrideCmd(), classifyCmd(), seedCmd())
	return root
}

// env is the wiring shared by the commands that touch storage.
type env struct {
	cfg  *config.Config
	log  zerolog.Logger
	pool *pgxpool.Pool
}

func openEnv(cmd *cobra.Command) (*env, error) {
	cfg := config.Load()
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	pool, err := database.NewPostgresPool(contextOf(cmd), cfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &env{cfg: cfg, log: log, pool: pool}, nil
}

func (e *env) Close() { e.pool.Close() }

// resultService builds the aggregation service over Postgres only. The exam
// cache is skipped: a CLI reads definitions straight from the table.
func (e *env) resultService() *service.ResultService {
	examRepo := repository.NewExamRepository(e.pool)
	questionRepo := repository.NewQuestionRepository(e.pool)
	exams := service.NewExamService(examRepo, repository.NewClassRepository(e.pool), noCache{}, questionRepo, e.log)
	return service.NewResultService(exams, questionRepo, repository.NewSubmissionRepository(e.pool),
		grading.New(e.cfg.GradingWeightByPoints), e.log)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
