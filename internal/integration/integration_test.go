package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	pgstore "quiz-attempt-service/internal/infra/postgres"
	pgmigrations "quiz-attempt-service/internal/infra/postgres/migrations"
	infraredis "quiz-attempt-service/internal/infra/redis"
)

func TestAttemptLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openBun(t, pgURL)
	defer db.Close()
	migrateDB(t, ctx, db)
	seedQuiz(t, ctx, db, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	catalog := infraredis.NewQuizCatalog(redisClient, pgstore.NewQuizLoader(pool), 5*time.Minute)
	store := pgstore.NewAttemptStore(db)
	service := app.NewAttemptService(store, catalog)

	// Start, and verify a second start resumes the same attempt through
	// the partial unique index rather than creating a duplicate.
	attempt, err := service.Start(ctx, "quiz-1", "alice")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	resumed, err := service.Start(ctx, "quiz-1", "alice")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.ID != attempt.ID {
		t.Fatalf("expected resume to return %s, got %s", attempt.ID, resumed.ID)
	}

	// Draft answers survive a reload.
	if _, err := service.SaveProgress(ctx, attempt.ID, "alice", []domain.AnswerSubmission{
		{QuestionID: "q1", SelectedOptionID: ptr("o2")},
	}); err != nil {
		t.Fatalf("save progress: %v", err)
	}
	detail, err := service.Get(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(detail.Answers) != 1 {
		t.Fatalf("expected saved draft visible, got %d answers", len(detail.Answers))
	}

	// Submit with the essay included. The objective part scores now, the
	// essay stays pending.
	finished, err := service.Submit(ctx, attempt.ID, "alice", []domain.AnswerSubmission{
		{QuestionID: "q1", SelectedOptionID: ptr("o2")},
		{QuestionID: "q2", AnswerText: ptr("Rivers deposit sediment at their mouths.")},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if finished.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", finished.Status)
	}
	if *finished.Score != 5 || *finished.Percentage != 50 || *finished.Passed {
		t.Fatalf("expected 5/50%%/failed before grading, got %+v", finished)
	}

	if _, err := service.Submit(ctx, attempt.ID, "alice", nil); err != domain.ErrAlreadyFinalized {
		t.Fatalf("expected ErrAlreadyFinalized on double submit, got %v", err)
	}

	// Manual grading lifts the aggregate over the pass mark.
	detail, err = service.Get(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("get after submit: %v", err)
	}
	var essayAnswerID string
	for _, a := range detail.Answers {
		if a.QuestionID == "q2" {
			if a.Outcome != domain.OutcomePendingManual {
				t.Fatalf("expected pending essay, got %s", a.Outcome)
			}
			essayAnswerID = a.ID
		}
	}
	if essayAnswerID == "" {
		t.Fatalf("essay answer not stored")
	}
	regraded, err := service.GradeEssay(ctx, attempt.ID, essayAnswerID, 4, true)
	if err != nil {
		t.Fatalf("grade essay: %v", err)
	}
	if *regraded.Score != 9 || *regraded.Percentage != 90 || !*regraded.Passed {
		t.Fatalf("expected 9/90%%/passed after grading, got %+v", regraded)
	}

	// A fresh student can still start, and the sweep leaves their live
	// attempt alone.
	if _, err := service.Start(ctx, "quiz-1", "bob"); err != nil {
		t.Fatalf("start bob: %v", err)
	}
	swept, err := service.SweepTimedOut(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 0 {
		t.Fatalf("expected nothing to sweep, got %d", swept)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "attempts", "POSTGRES_PASSWORD": "attemptspass", "POSTGRES_DB": "attemptsdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://attempts:attemptspass@%s:%s/attemptsdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func openBun(t *testing.T, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func migrateDB(t *testing.T, ctx context.Context, db *bun.DB) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func seedQuiz(t *testing.T, ctx context.Context, db *bun.DB, quiz domain.Quiz) {
	t.Helper()
	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:             "quiz-1",
		Title:          "Geography check",
		DurationSec:    1800,
		TotalMarks:     10,
		PassPercentage: 60,
		MaxAttempts:    3,
		Published:      true,
		Questions: []domain.Question{
			{
				ID:     "q1",
				Type:   domain.QuestionMultipleChoice,
				Prompt: "Which river is the longest?",
				Marks:  5,
				Options: []domain.Option{
					{ID: "o1", Text: "Amazon", Correct: false},
					{ID: "o2", Text: "Nile", Correct: true},
					{ID: "o3", Text: "Yangtze", Correct: false},
				},
			},
			{
				ID:     "q2",
				Type:   domain.QuestionEssay,
				Prompt: "Explain how river deltas form.",
				Marks:  5,
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}

func ptr(s string) *string { return &s }
