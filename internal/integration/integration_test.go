package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"duelazo-match-service/internal/app"
	"duelazo-match-service/internal/domain"
	pgsource "duelazo-match-service/internal/infra/postgres"
	pgmigrations "duelazo-match-service/internal/infra/postgres/migrations"
	infraredis "duelazo-match-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestFullMatchEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openBun(pgURL)
	defer db.Close()
	migrateDB(t, ctx, db)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	source := pgsource.NewQuestionSource(pool)
	bank := infraredis.NewQuestionBank(redisClient, source, 5*time.Minute)
	rooms := infraredis.NewRoomStore(redisClient, 5*time.Minute, func(code, creator string, maxPlayers int) *app.Room {
		return app.NewRoom(code, creator, maxPlayers)
	})
	archive := pgsource.NewMatchArchive(db)
	service := app.NewMatchService(rooms, bank, archive)

	created, err := service.CreateRoom(ctx, "Alice", "conn-a", 10)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	code := created.Snapshot.Code
	if _, err := service.JoinRoom(ctx, code, "Bob", "conn-b", ""); err != nil {
		t.Fatalf("join: %v", err)
	}

	// Both ready: round 1 starts with the mixed question set from Postgres
	// via the Redis cache.
	if _, err := service.SetReady(ctx, code, "conn-a", true); err != nil {
		t.Fatalf("ready a: %v", err)
	}
	ready, err := service.SetReady(ctx, code, "conn-b", true)
	if err != nil {
		t.Fatalf("ready b: %v", err)
	}
	if !ready.Auto.Round1Started || len(ready.Auto.Questions) != 10 {
		t.Fatalf("expected round 1 to start with 10 questions, got %+v", ready.Auto)
	}

	// Alice answers the first question correctly at full time.
	q := ready.Auto.Questions[0]
	result, err := service.SubmitAnswer(ctx, code, "conn-a", domain.AnswerSubmission{
		QuestionID:    q.ID,
		Answer:        q.CorrectAnswer,
		TimeRemaining: 15,
		Round:         domain.RoundOne,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Correct || result.Points != 150 {
		t.Fatalf("expected 150 points, got %+v", result)
	}

	if _, err := service.RoundFinished(ctx, code, "conn-a"); err != nil {
		t.Fatalf("round finished a: %v", err)
	}
	closed, err := service.RoundFinished(ctx, code, "conn-b")
	if err != nil {
		t.Fatalf("round finished b: %v", err)
	}
	if !closed.Round1Closed || len(closed.Finalists) != 2 {
		t.Fatalf("expected both players in the final, got %+v", closed)
	}

	if _, err := service.FinalistReady(ctx, code, "conn-a"); err != nil {
		t.Fatalf("finalist ready a: %v", err)
	}
	started, err := service.FinalistReady(ctx, code, "conn-b")
	if err != nil {
		t.Fatalf("finalist ready b: %v", err)
	}
	if !started.Auto.FinalStarted || len(started.Auto.Questions) != 10 {
		t.Fatalf("expected final to start with 10 questions, got %+v", started.Auto)
	}

	if _, err := service.FinalFinished(ctx, code, "conn-a"); err != nil {
		t.Fatalf("final finished a: %v", err)
	}
	auto, err := service.FinalFinished(ctx, code, "conn-b")
	if err != nil {
		t.Fatalf("final finished b: %v", err)
	}
	if !auto.MatchClosed || auto.Winner == nil || auto.Winner.Name != "Alice" {
		t.Fatalf("expected Alice to win, got %+v", auto)
	}

	// The archive write is fire-and-forget; poll for the result row.
	deadline := time.Now().Add(5 * time.Second)
	for {
		var count int
		if err := db.QueryRowContext(ctx,
			`SELECT count(*) FROM match_results WHERE room_code = ? AND winner = ?`,
			code, "Alice").Scan(&count); err != nil {
			t.Fatalf("count results: %v", err)
		}
		if count == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("match result row never appeared")
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func openBun(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// migrateDB applies the schema and the seed migration, which provides enough
// questions per difficulty to satisfy both round mixes.
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

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "duelazo", "POSTGRES_PASSWORD": "duelazopass", "POSTGRES_DB": "duelazodb"},
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
	dsn := fmt.Sprintf("postgres://duelazo:duelazopass@%s:%s/duelazodb?sslmode=disable", host, port.Port())
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
