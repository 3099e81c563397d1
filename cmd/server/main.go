// Package main is the entry point of the Soyle speaking-practice backend.
//
// The server exposes the session lifecycle over HTTP: learners start
// conversations, exchange turns with the language model, and finalize into a
// score report; linked mentors are notified through Telegram as sessions
// start and complete.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/soyle-hub/soyle-practice-hub/config"
	"github.com/soyle-hub/soyle-practice-hub/internal/application/command"
	"github.com/soyle-hub/soyle-practice-hub/internal/application/conversation"
	"github.com/soyle-hub/soyle-practice-hub/internal/application/eventhandler"
	"github.com/soyle-hub/soyle-practice-hub/internal/application/query"
	"github.com/soyle-hub/soyle-practice-hub/internal/domain/notification"
	"github.com/soyle-hub/soyle-practice-hub/internal/infrastructure/external/llm"
	"github.com/soyle-hub/soyle-practice-hub/internal/infrastructure/external/telegram"
	"github.com/soyle-hub/soyle-practice-hub/internal/infrastructure/messaging"
	"github.com/soyle-hub/soyle-practice-hub/internal/infrastructure/persistence/postgres"
	redisinfra "github.com/soyle-hub/soyle-practice-hub/internal/infrastructure/persistence/redis"
	httpiface "github.com/soyle-hub/soyle-practice-hub/internal/interface/http"
	"github.com/soyle-hub/soyle-practice-hub/internal/telemetry"
	"github.com/soyle-hub/soyle-practice-hub/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING & TELEMETRY
	// ─────────────────────────────────────────────────────────────────────────
	log, err := telemetry.InitLogger(parseLogLevel(cfg.Observability.LogLevel))
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	log.Info("starting Soyle Practice Hub",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
	)

	if cfg.Observability.TracingEnabled {
		_, _, cleanup, err := telemetry.InitTelemetry(ctx)
		if err != nil {
			return fmt.Errorf("failed to init telemetry: %w", err)
		}
		defer cleanup()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := connectDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()
	log.Info("database connection established")

	if cfg.Database.RunMigrations {
		log.Info("checking database migrations...")
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (optional read-side cache)
	// ─────────────────────────────────────────────────────────────────────────
	var redisClient *goredis.Client
	var summaryCache query.SummaryCache

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisClient, err = redisinfra.NewClient(ctx, redisinfra.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.Warn("failed to connect to Redis, mentor listing cache disabled", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			summaryCache = redisinfra.NewMentorSessionCache(redisClient)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	sessionRepo := postgres.NewSessionRepository(dbConn)
	learnerRepo := postgres.NewLearnerRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. EVENT BUS & NOTIFICATION FANOUT
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultConfig()
	busConfig.AsyncMode = cfg.EventBus.AsyncMode
	busConfig.WorkerPoolSize = cfg.EventBus.WorkerPoolSize
	busConfig.Logger = log
	eventBus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	var channel notification.Channel
	if cfg.Telegram.Token != "" {
		tgConfig := telegram.DefaultClientConfig(cfg.Telegram.Token)
		tgConfig.BaseURL = cfg.Telegram.BaseURL
		tgConfig.Timeout = cfg.Telegram.Timeout
		tgConfig.Logger = log
		channel = telegram.NewClient(tgConfig)
	}

	if channel != nil {
		fanout := eventhandler.NewSessionFanout(learnerRepo, channel, log)
		if err := fanout.Register(eventBus); err != nil {
			return fmt.Errorf("failed to register notification fanout: %w", err)
		}
		log.Info("mentor notifications enabled")
	} else {
		log.Warn("TELEGRAM_BOT_TOKEN not set, mentor notifications disabled")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. LLM PROVIDER & ORCHESTRATOR
	// ─────────────────────────────────────────────────────────────────────────
	llmClient := llm.NewClient(ctx, llm.Config{
		BaseURL:         cfg.LLM.BaseURL,
		APIKey:          cfg.LLM.APIKey,
		CandidateModels: cfg.LLM.CandidateModels,
		RequestTimeout:  cfg.LLM.RequestTimeout,
		MaxTokens:       cfg.LLM.MaxTokens,
		Temperature:     cfg.LLM.Temperature,
	}, log)
	orchestrator := conversation.NewOrchestrator(llmClient, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. APPLICATION HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	locks := command.NewSessionLocks()

	deps := httpiface.Dependencies{
		StartSessionHandler:       command.NewStartSessionHandler(sessionRepo, eventBus, log),
		SendTurnHandler:           command.NewSendTurnHandler(sessionRepo, orchestrator, locks, log),
		FinalizeSessionHandler:    command.NewFinalizeSessionHandler(sessionRepo, orchestrator, eventBus, locks, log),
		AttachAudioHandler:        command.NewAttachAudioHandler(sessionRepo, log),
		ListMentorSessionsHandler: query.NewListMentorSessionsHandler(sessionRepo, summaryCache, log),
		GetAudioHandler:           query.NewGetAudioHandler(sessionRepo),
		Logger:                    newInterfaceLogger(cfg),
		HealthChecker:             newHealthChecker(dbConn, redisClient),
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	serverConfig := httpiface.DefaultConfig()
	serverConfig.Host = cfg.HTTP.Host
	serverConfig.Port = cfg.HTTP.Port
	serverConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	serverConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	serverConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	serverConfig.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	serverConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute

	server := httpiface.NewServer(serverConfig, deps)

	errCh := server.StartAsync()
	log.Info("Soyle Practice Hub is running", "address", server.Address())

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", "error", err)
	}

	log.Info("Soyle Practice Hub stopped")
	return nil
}

// connectDatabase dials PostgreSQL from either a URL or individual settings.
func connectDatabase(ctx context.Context, cfg *config.Config) (*postgres.Connection, error) {
	if cfg.Database.URL != "" {
		return postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	}

	return postgres.NewConnection(ctx, postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Database:        cfg.Database.Name,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	})
}

// newInterfaceLogger builds the request logger for the HTTP layer.
func newInterfaceLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	return logger.New(opts)
}

// newHealthChecker probes the server's stateful dependencies.
func newHealthChecker(dbConn *postgres.Connection, redisClient *goredis.Client) httpiface.HealthChecker {
	return httpiface.HealthCheckFunc(func(ctx context.Context) []httpiface.ComponentHealth {
		components := make([]httpiface.ComponentHealth, 0, 2)

		pg := httpiface.ComponentHealth{Name: "postgres", Healthy: true}
		if err := dbConn.Ping(ctx); err != nil {
			pg.Healthy = false
			pg.Error = err.Error()
		}
		components = append(components, pg)

		if redisClient != nil {
			rd := httpiface.ComponentHealth{Name: "redis", Healthy: true}
			if err := redisClient.Ping(ctx).Err(); err != nil {
				rd.Healthy = false
				rd.Error = err.Error()
			}
			components = append(components, rd)
		}

		return components
	})
}

// parseLogLevel maps the configured level string to slog.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
