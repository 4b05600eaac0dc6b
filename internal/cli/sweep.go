package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/infra/memory"
	pgstore "quiz-attempt-service/internal/infra/postgres"
)

// NewSweepCmd force-finalizes timed-out in-progress attempts once and
// exits, for cron-style operation against a shared database.
func NewSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Close all timed-out in-progress attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context(), *configPath)
		},
	}
}

func runSweep(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("sweep requires a configured postgres url")
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	db := openBunDB(cfg.Postgres.URL)
	defer db.Close()

	catalogTTL := config.Duration(cfg.Catalog.TTL, 10*time.Minute)
	catalog := memory.NewQuizCatalog(pgstore.NewQuizLoader(pool), catalogTTL)
	service := app.NewAttemptService(pgstore.NewAttemptStore(db), catalog)

	swept, err := service.SweepTimedOut(ctx)
	if err != nil {
		return err
	}
	log.Printf("sweep closed %d timed-out attempts", swept)
	return nil
}
