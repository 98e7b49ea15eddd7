package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/pricewatch/intake-core/internal/core"
	"github.com/pricewatch/intake-core/internal/intake/assistant"
	"github.com/pricewatch/intake-core/internal/intake/dialogue"
	"github.com/pricewatch/intake-core/internal/intake/events"
	"github.com/pricewatch/intake-core/internal/intake/finalizer"
	"github.com/pricewatch/intake-core/internal/intake/model"
	"github.com/pricewatch/intake-core/internal/intake/repo"
	"github.com/pricewatch/intake-core/internal/intake/session"
	"github.com/pricewatch/intake-core/internal/intake/verification"
	"github.com/pricewatch/intake-core/internal/sms"
	"github.com/pricewatch/intake-core/internal/transport/httpapi"
	logx "github.com/pricewatch/intake-core/pkg/logger"
	pkgpostgres "github.com/pricewatch/intake-core/pkg/postgres"
	pkgredis "github.com/pricewatch/intake-core/pkg/redis"
)

// AppConfig defines all configurable parameters of the intake service,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Redis      pkgredis.Config
	Postgres   pkgpostgres.Config
	SQLitePath string `envconfig:"SQLITE_PATH" default:"pricewatch.db"`

	// LLM provider; the assistant is disabled without a key
	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Intake
	Assistant    model.AssistantModelConfig
	Prompt       model.AssistantPromptConfig
	Conversation model.ConversationConfig
	Verification model.VerificationConfig
	Dialogue     model.DialogueConfig
	Twilio       sms.Config

	HTTP struct {
		Addr            string        `envconfig:"HTTP_ADDR" default:":8080"`
		ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
	}
}

type watchStore interface {
	model.WatchStore
	Ping(ctx context.Context) error
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		logx.Warn().Err(err).Msg("Could not load .env file")
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logx.Fatal().Err(err).Msg("Failed to process environment config")
	}
	env := core.ParseEnvironment(cfg.Environment)
	logx.Init(logx.LoggerOpts{Environment: env})
	log := logx.Component("main")

	rdb, err := cfg.Redis.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise Redis client")
	}
	defer rdb.Close()

	var watches watchStore
	if cfg.Postgres.Enabled() {
		pool, err := cfg.Postgres.NewPool(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Postgres")
		}
		defer pool.Close()
		store := repo.NewPostgresWatchStore(pool)
		if err := store.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate Postgres")
		}
		watches = store
		log.Info().Msg("Using Postgres watch store")
	} else {
		store, err := repo.OpenSQLiteWatchStore(ctx, cfg.SQLitePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("Failed to open SQLite watch store")
		}
		defer store.Close()
		watches = store
		log.Info().Str("path", cfg.SQLitePath).Msg("Using SQLite watch store")
	}

	var sender sms.Sender = sms.LogSender{}
	if cfg.Twilio.Enabled() {
		twilioSender, err := sms.NewTwilioSender(cfg.Twilio)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to configure Twilio")
		}
		sender = twilioSender
	} else if env.IsProduction() {
		log.Fatal().Msg("Twilio must be configured in production")
	}

	gate := verification.NewGate(repo.NewRedisCodeStore(rdb), env, cfg.Verification, verification.WithSender(sender))
	fin := finalizer.New(watches)

	var opts []dialogue.Option
	if cfg.GeminiAPIKey != "" {
		chatModel, err := assistant.NewGeminiChatModel(ctx, assistant.ChatModelConfig{
			APIKey:  cfg.GeminiAPIKey,
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.Assistant,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create chat model")
		}
		a, err := assistant.New(ctx, assistant.Config{
			ChatModel:    chatModel,
			ModelName:    cfg.Assistant.Model,
			Prompt:       cfg.Prompt,
			Conversation: cfg.Conversation,
			History:      repo.NewRedisChatHistory(rdb, cfg.Conversation.TTL),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to build assistant")
		}
		opts = append(opts, dialogue.WithResponder(a))
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set, free-text questions get a fixed reply")
	}

	bus := events.NewBus(events.DefaultBuffer)
	defer bus.Close()

	svc := session.NewService(session.Dependencies{
		Sessions:     repo.NewRedisSessionStore(rdb, cfg.Conversation.TTL),
		Orchestrator: dialogue.New(gate, fin, cfg.Dialogue, opts...),
		Gate:         gate,
		Finalizer:    fin,
		Verified:     repo.NewRedisVerifiedPhoneStore(rdb),
		Publisher:    bus,
	}, session.Config{VerifiedMarkerTTL: cfg.Verification.VerifiedMarkerTTL})

	router := httpapi.NewRouter(env, httpapi.NewHandler(svc, bus), map[string]httpapi.HealthCheck{
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		"database": watches.Ping,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Str("environment", env.String()).Msg("Intake server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("Shutting down")
	// end event streams first so Shutdown does not wait on them
	bus.Close()
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
