package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"duelazo-match-service/internal/app"
	"duelazo-match-service/internal/config"
	"duelazo-match-service/internal/domain"
	"duelazo-match-service/internal/infra/memory"
	pgstore "duelazo-match-service/internal/infra/postgres"
	redisstore "duelazo-match-service/internal/infra/redis"
	transport "duelazo-match-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the match coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var source memory.PoolSource = memory.NewStaticPoolSource(samplePools())
	if pool != nil {
		source = pgstore.NewQuestionSource(pool)
	}

	bankTTL := config.TTLDuration(cfg.Bank.TTL, 10*time.Minute)
	var bank app.QuestionBank
	if redisClient != nil {
		bank = redisstore.NewQuestionBank(redisClient, source, bankTTL)
	} else {
		bank = memory.NewQuestionBank(source, bankTTL)
	}

	roundSeconds := cfg.Match.RoundSeconds
	if roundSeconds <= 0 {
		roundSeconds = app.DefaultRoundSeconds
	}
	build := func(code, creator string, maxPlayers int) *app.Room {
		return app.NewRoom(code, creator, maxPlayers, app.WithRoundSeconds(roundSeconds))
	}

	var rooms app.RoomRegistry
	if redisClient != nil {
		rooms = redisstore.NewRoomStore(redisClient, redisTTL, build)
	} else {
		rooms = memory.NewRoomStore(build)
	}

	var archive app.MatchArchive
	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()
		archive = pgstore.NewMatchArchive(db)
	}

	service := app.NewMatchService(rooms, bank, archive,
		app.WithDefaultMaxPlayers(cfg.Match.MaxPlayers))
	hub := transport.NewHub()
	wsHandler := transport.NewWSHandler(service, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting match coordinator on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// samplePools provides a minimal question set per tier so the coordinator can
// run without Postgres; swap in the DB-backed source for production.
func samplePools() map[domain.Difficulty][]domain.Question {
	pools := make(map[domain.Difficulty][]domain.Question)
	id := int64(0)
	add := func(d domain.Difficulty, text string, options []string, correct string) {
		id++
		pools[d] = append(pools[d], domain.Question{
			ID:            id,
			Text:          text,
			Options:       options,
			CorrectAnswer: correct,
			Difficulty:    d,
		})
	}

	add(domain.DifficultyEasy, "Which country won the 2022 World Cup?",
		[]string{"Argentina", "France", "Brazil", "Germany"}, "Argentina")
	add(domain.DifficultyEasy, "How many players does a football team field?",
		[]string{"9", "10", "11", "12"}, "11")
	add(domain.DifficultyEasy, "Which country hosts the Premier League?",
		[]string{"Spain", "England", "Italy", "Germany"}, "England")
	add(domain.DifficultyEasy, "What color card sends a player off?",
		[]string{"Yellow", "Red", "Blue", "Green"}, "Red")

	add(domain.DifficultyMedium, "Who scored the 'Hand of God' goal?",
		[]string{"Pelé", "Maradona", "Messi", "Zidane"}, "Maradona")
	add(domain.DifficultyMedium, "Which club has the most Champions League titles?",
		[]string{"AC Milan", "Bayern Munich", "Real Madrid", "Liverpool"}, "Real Madrid")
	add(domain.DifficultyMedium, "Which country won the first World Cup in 1930?",
		[]string{"Brazil", "Uruguay", "Argentina", "Italy"}, "Uruguay")
	add(domain.DifficultyMedium, "Who holds the record for most World Cup goals?",
		[]string{"Ronaldo Nazário", "Miroslav Klose", "Gerd Müller", "Just Fontaine"}, "Miroslav Klose")
	add(domain.DifficultyMedium, "Which club does the 'El Clásico' rivalry NOT involve?",
		[]string{"Real Madrid", "Barcelona", "Atlético Madrid", "None of these"}, "Atlético Madrid")

	add(domain.DifficultyHard, "Which club won the first European Cup in 1956?",
		[]string{"Benfica", "AC Milan", "Real Madrid", "Reims"}, "Real Madrid")
	add(domain.DifficultyHard, "Who scored the fastest World Cup goal, in 2002?",
		[]string{"Hakan Şükür", "Ronaldo", "Rivaldo", "Michael Owen"}, "Hakan Şükür")
	add(domain.DifficultyHard, "Which country did Just Fontaine score 13 World Cup goals for?",
		[]string{"Belgium", "France", "Morocco", "Switzerland"}, "France")
	add(domain.DifficultyHard, "In which year was the back-pass rule introduced?",
		[]string{"1986", "1990", "1992", "1994"}, "1992")
	add(domain.DifficultyHard, "Which club did Diego Maradona join after Barcelona?",
		[]string{"Boca Juniors", "Napoli", "Sevilla", "Newell's Old Boys"}, "Napoli")
	add(domain.DifficultyHard, "Who was the first goalkeeper to win the Ballon d'Or?",
		[]string{"Gianluigi Buffon", "Lev Yashin", "Dino Zoff", "Peter Schmeichel"}, "Lev Yashin")
	add(domain.DifficultyHard, "Which nation lost consecutive World Cup finals in 1974 and 1978?",
		[]string{"Italy", "Netherlands", "Hungary", "West Germany"}, "Netherlands")
	add(domain.DifficultyHard, "How many teams contested the 1930 World Cup?",
		[]string{"11", "13", "16", "24"}, "13")
	return pools
}
