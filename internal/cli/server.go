package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"mindquake-service/internal/app"
	"mindquake-service/internal/config"
	"mindquake-service/internal/domain"
	"mindquake-service/internal/infra/memory"
	"mindquake-service/internal/infra/postgres"
	redisinfra "mindquake-service/internal/infra/redis"
	"mindquake-service/internal/retry"
	transport "mindquake-service/internal/transport/http"
	"mindquake-service/internal/trivia"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// sessionStore is a session repository the janitor can sweep.
type sessionStore interface {
	app.SessionRepository
	Prune(cutoff time.Time) []string
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	store, closeStore, err := buildProgressStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	provider := trivia.NewClient(cfg.Trivia.BaseURL,
		config.TTLDuration(cfg.Trivia.Timeout, 10*time.Second),
		trivia.WithPoolSize(cfg.Trivia.PoolSize),
	)

	poolTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	sessionTTL := config.TTLDuration(cfg.Quiz.SessionTTL, 30*time.Minute)

	var questions app.QuestionRepository
	var sessions sessionStore
	if redisClient != nil {
		questions = redisinfra.NewQuestionCache(redisClient, provider, poolTTL)
		sessions = redisinfra.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, sessionTTL))
	} else {
		questions = memory.NewQuestionCache(provider, poolTTL)
		sessions = memory.NewSessionStore()
	}

	retrying := retry.WrapStore(store, retry.Policy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: config.TTLDuration(cfg.Retry.InitialInterval, 0),
		MaxInterval:     config.TTLDuration(cfg.Retry.MaxInterval, 0),
	})
	quiz := app.NewQuizService(sessions, questions, retrying, app.WithMaxQuestions(cfg.Quiz.MaxQuestions))
	profiles := app.NewProfileService(retrying)
	api := transport.NewServer(quiz, profiles)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 15 * time.Second,
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go runJanitor(janitorCtx, sessions, sessionTTL)

	go func() {
		slog.Info("starting quiz service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		slog.Info("shutting down server")
	case <-ctx.Done():
		slog.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildProgressStore picks Postgres when configured, otherwise an in-memory store seeded
// with the catalog and a demo player.
func buildProgressStore(ctx context.Context, cfg config.Config) (app.ProgressStore, func(), error) {
	var achievements []domain.Achievement
	if cfg.Catalog.Path != "" {
		list, err := loadCatalog(cfg.Catalog.Path)
		if err != nil {
			return nil, nil, err
		}
		achievements = list
	}

	if cfg.Postgres.URL == "" {
		store := memory.NewProgressStore()
		store.PutAchievements(achievements)
		store.PutUser(domain.User{ID: "demo", DisplayName: "Demo Player"})
		slog.Warn("postgres not configured, progress is kept in memory")
		return store, func() {}, nil
	}

	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return nil, nil, err
	}
	if len(achievements) > 0 {
		db := postgres.OpenBun(cfg.Postgres.URL)
		_, err := postgres.NewCatalogSeeder(db).Seed(ctx, achievements)
		db.Close()
		if err != nil {
			return nil, nil, err
		}
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewProgressStore(pool), pool.Close, nil
}

func runJanitor(ctx context.Context, sessions sessionStore, idle time.Duration) {
	interval := idle / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if pruned := sessions.Prune(now.Add(-idle)); len(pruned) > 0 {
				slog.Info("pruned idle sessions", "count", len(pruned))
			}
		}
	}
}
