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

	"quiz-arena/internal/app"
	"quiz-arena/internal/config"
	"quiz-arena/internal/generator"
	"quiz-arena/internal/infra/memory"
	"quiz-arena/internal/infra/postgres"
	redisstore "quiz-arena/internal/infra/redis"
	transport "quiz-arena/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
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

type persistence interface {
	app.ResultStore
	app.ProfileStore
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger(os.Stdout)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	var (
		results     persistence
		leaderboard app.LeaderboardStore
	)
	if cfg.Postgres.URL != "" {
		db, err := openBun(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := applyMigrations(ctx, db, logger); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		results = postgres.NewResultStore(db)
		leaderboard = postgres.NewLeaderboardStore(pool)
		logger.Info("using postgres persistence")
	} else {
		mem := memory.NewResultStore()
		results, leaderboard = mem, mem
		logger.Warn("postgres url not configured; results are kept in memory")
	}

	cacheTTL := config.TTLDuration(cfg.Leaderboard.CacheTTL, time.Minute)
	sessionTTL := config.TTLDuration(cfg.Quiz.SessionTTL, config.TTLDuration(cfg.Redis.TTL, time.Hour))

	var (
		sessions app.SessionRepository
		rankings interface {
			app.LeaderboardStore
			app.RankingInvalidator
		}
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed; cache reads will fall through", "addr", cfg.Redis.Addr, "error", err)
		}
		sessions = redisstore.NewSessionStore(client, sessionTTL)
		rankings = redisstore.NewLeaderboardCache(client, leaderboard, cacheTTL)
	} else {
		sessions = memory.NewSessionStore()
		rankings = memory.NewLeaderboardCache(leaderboard, cacheTTL)
	}

	genTimeout := config.TTLDuration(cfg.Generator.Timeout, 60*time.Second)
	var gen app.Generator
	if cfg.Generator.URL != "" {
		gen = generator.NewClient(cfg.Generator.URL, genTimeout,
			generator.WithAPIKey(cfg.Generator.APIKey),
			generator.WithModel(cfg.Generator.Model),
			generator.WithLogger(logger.With("component", "generator")),
		)
	} else {
		gen = generator.NewStatic(nil)
		logger.Warn("generator url not configured; serving the built-in sample bank")
	}

	quiz := app.NewQuizService(sessions, gen, results, logger,
		app.WithSessionTiming(config.TTLDuration(cfg.Quiz.AdvanceDelay, app.DefaultAdvanceDelay), time.Second),
		app.WithProfiles(results),
		app.WithRankingInvalidator(rankings),
	)
	history := app.NewHistoryService(results, logger,
		app.WithLocation(loc),
		app.WithDefaultPageSize(cfg.History.PageSize),
		app.WithMaxPageSize(cfg.History.MaxPageSize),
	)
	board := app.NewLeaderboardService(rankings, logger, app.WithDefaultLimit(cfg.Leaderboard.Limit))

	handler := transport.NewRouter(
		transport.NewWSHandler(quiz, logger),
		transport.NewAPIHandler(quiz, history, board, logger),
		logger,
	)

	writeTimeout := 15 * time.Second
	if genTimeout+5*time.Second > writeTimeout {
		writeTimeout = genTimeout + 5*time.Second
	}
	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting quiz arena", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	case err := <-serveErr:
		logger.Error("server failed", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return shutdown(shutdownCtx, server, logger)
}

func shutdown(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		return err
	}
	return nil
}
