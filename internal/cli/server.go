package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"classpoll-service/internal/app"
	"classpoll-service/internal/config"
	"classpoll-service/internal/domain"
	"classpoll-service/internal/infra/memory"
	pgloader "classpoll-service/internal/infra/postgres"
	redisinfra "classpoll-service/internal/infra/redis"
	transport "classpoll-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the classroom poll server",
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

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.SetLoader = memory.NewStaticSetLoader(sampleSets())
	if pool != nil {
		loader = pgloader.NewSetLoader(pool)
	}

	bankTTL := config.Duration(cfg.Bank.TTL, 10*time.Minute)
	var bank app.QuestionBank
	if redisClient != nil {
		bank = redisinfra.NewQuestionBank(redisClient, loader, bankTTL)
	} else {
		bank = memory.NewQuestionBank(loader, bankTTL)
	}

	var scores app.ScoreStore
	if cfg.Session.RetainScores {
		scoreTTL := config.Duration(cfg.Session.ScoreTTL, time.Hour)
		if redisClient != nil {
			scores = redisinfra.NewScoreStore(redisClient, scoreTTL)
		} else {
			scores = memory.NewScoreStore()
		}
	}

	opts := app.Options{
		DefaultDurationSeconds: int(config.Duration(cfg.Session.DefaultDuration, 30*time.Second) / time.Second),
		AnswerGrace:            config.Duration(cfg.Session.AnswerGrace, 0),
		RetainScores:           cfg.Session.RetainScores,
	}
	coordinator := app.NewCoordinator(app.NewGateway(), bank, scores, opts)
	wsHandler := transport.NewWSHandler(coordinator)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws/student", wsHandler.ServeStudentWS)
	mux.HandleFunc("/ws/teacher", wsHandler.ServeTeacherWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting classroom poll service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleSets provides a minimal prepared bank for running without Postgres.
func sampleSets() map[string]domain.QuestionSet {
	return map[string]domain.QuestionSet{
		"warmup": {
			ID:    "warmup",
			Title: "Warm-up",
			Questions: []domain.Question{
				{
					ID:             "q1",
					Text:           "What is 2 + 2?",
					Options:        []string{"3", "4", "5"},
					CorrectOption:  "4",
					DurationSecond: 15,
				},
				{
					ID:             "q2",
					Text:           "Which planet is closest to the sun?",
					Options:        []string{"Venus", "Mercury", "Mars"},
					CorrectOption:  "Mercury",
					DurationSecond: 20,
				},
			},
		},
	}
}
