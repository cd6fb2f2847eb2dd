package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	pgstore "live-quiz-service/internal/infra/postgres"
	infraredis "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/logging"
	"live-quiz-service/internal/metrics"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return runServer(cmd.Context(), cfg, *port, logger)
		},
	}
}

func loadConfig(path string) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}

func runServer(ctx context.Context, cfg config.Config, portFlag string, logger *zap.Logger) error {
	if cfg.Auth.Secret == "" {
		return fmt.Errorf("auth secret not configured")
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, logger); err != nil {
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
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 6*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = infraredis.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var store app.SessionRepository
	if redisClient != nil {
		store = infraredis.NewSessionStore(redisClient, redisTTL)
	} else {
		store = memory.NewSessionStore()
	}

	var archive app.ResultsArchive
	switch {
	case pool != nil:
		archive = pgstore.NewResultsArchive(pool)
	case redisClient != nil:
		archive = infraredis.NewResultsArchive(redisClient, config.TTLDuration(cfg.Session.ResultsTTL, 30*24*time.Hour))
	default:
		archive = memory.NewResultsArchive()
	}

	m := metrics.New()
	opts := []app.Option{
		app.WithLogger(logger),
		app.WithArchive(archive),
		app.WithMetrics(m),
		app.WithTopPlayers(cfg.Session.TopPlayers),
	}
	if redisClient != nil {
		opts = append(opts, app.WithPublisher(infraredis.NewEventBus(redisClient, logger)))
	}
	service := app.NewSessionService(store, quizRepo, opts...)

	tokens := auth.NewJWTService(cfg.Auth.Secret, config.TTLDuration(cfg.Auth.TokenTTL, 12*time.Hour))
	handler := transport.NewHandler(service, tokens,
		transport.WithLogger(logger),
		transport.WithMetrics(m),
		transport.WithStatusInterval(config.TTLDuration(cfg.Server.StatusInterval, time.Second)),
	)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler.Routes(),
		ReadTimeout:  config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.TTLDuration(cfg.Server.WriteTimeout, 15*time.Second),
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		runSweeper(ctx, service,
			config.TTLDuration(cfg.Session.SweepInterval, time.Minute),
			config.TTLDuration(cfg.Session.Retention, time.Hour),
		)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// runSweeper drops ended sessions past their retention until ctx is done.
func runSweeper(ctx context.Context, service *app.SessionService, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			service.Sweep(ctx, retention)
		}
	}
}

// sampleQuizzes seeds the demo loader used when no Postgres is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:      "quiz-1",
			Name:    "Warm-up",
			Version: 1,
			Questions: []domain.Question{
				{
					ID:              1,
					Text:            "What is 2 + 2?",
					DurationSeconds: 20,
					Points:          1,
					Answers: []domain.Answer{
						{ID: 0, Text: "3"},
						{ID: 1, Text: "4"},
						{ID: 2, Text: "5"},
					},
					CorrectAnswerIDs: []int{1},
				},
				{
					ID:              2,
					Text:            "Which of these are prime?",
					DurationSeconds: 30,
					Points:          2,
					Answers: []domain.Answer{
						{ID: 0, Text: "2"},
						{ID: 1, Text: "4"},
						{ID: 2, Text: "7"},
						{ID: 3, Text: "9"},
					},
					CorrectAnswerIDs: []int{0, 2},
				},
			},
		},
	}
}
