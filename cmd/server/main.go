package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/org/chatgateway/internal/api"
	"github.com/org/chatgateway/internal/audit"
	"github.com/org/chatgateway/internal/auth"
	"github.com/org/chatgateway/internal/billing"
	"github.com/org/chatgateway/internal/chat"
	"github.com/org/chatgateway/internal/core"
	"github.com/org/chatgateway/internal/crypto"
	"github.com/org/chatgateway/internal/entitlement"
	"github.com/org/chatgateway/internal/modelfactory"
	"github.com/org/chatgateway/internal/ratelimit"
	"github.com/org/chatgateway/internal/registry"
	"github.com/org/chatgateway/internal/secret"
	"github.com/org/chatgateway/internal/storage"
	"github.com/org/chatgateway/pkg/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfgFile := "config.yaml"
	if v := os.Getenv("GATEWAY_CONFIG"); v != "" {
		cfgFile = v
	}
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.LogJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if err := cfg.validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	masterKey, err := crypto.ParseKey(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid ENCRYPTION_KEY")
	}
	vault, err := crypto.NewVault(masterKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create vault")
	}

	ctx := context.Background()

	store := openStore(ctx, cfg)
	defer store.Close()

	limiter := openLimiter(ctx, cfg)
	defer limiter.Close()

	verifier, err := auth.NewVerifier(auth.Config{
		Secret:   []byte(cfg.JWTSecret),
		Audience: cfg.JWTAudience,
		Issuer:   cfg.JWTIssuer,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create token verifier")
	}

	reg := registry.Default()
	factory := modelfactory.New(vault, reg, modelfactory.Config{
		FallbackKeys: map[models.Provider]string{
			models.ProviderOpenAI:    cfg.OpenAIKey,
			models.ProviderAnthropic: cfg.AnthropicKey,
			models.ProviderDeepSeek:  cfg.DeepSeekKey,
		},
	})
	checker := entitlement.NewChecker(store)
	auditor := audit.NewLogger(store)
	tasks := core.NewTasks(cfg.TaskTimeout)

	var webhook *billing.Webhook
	if cfg.StripeWebhookSecret != "" {
		webhook = billing.NewWebhook(store, cfg.StripeWebhookSecret)
	} else {
		log.Warn().Msg("STRIPE_WEBHOOK_SECRET not set, billing webhooks disabled")
	}

	srv := api.NewServer(store, api.Services{
		Chat:     chat.NewService(store, factory, checker, auditor, tasks),
		Checker:  checker,
		Registry: reg,
		Keys:     secret.NewKeyManager(store, vault, auditor),
		Auditor:  auditor,
		Verifier: verifier,
		Limiter:  limiter,
		Webhook:  webhook,
	}, api.Config{
		ListenAddr:   cfg.ListenAddr,
		TLSCertFile:  cfg.TLSCertFile,
		TLSKeyFile:   cfg.TLSKeyFile,
		WriteTimeout: cfg.WriteTimeout,
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	log.Info().Str("addr", cfg.ListenAddr).Msg("server started")
	<-quit

	log.Info().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	if err := tasks.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Int("pending", tasks.Pending()).Msg("background tasks did not finish")
	}
	log.Info().Msg("server stopped")
}

// openStore connects to Postgres when configured, otherwise keeps everything in memory.
func openStore(ctx context.Context, cfg config) storage.StorageBackend {
	if cfg.DBUrl == "" {
		log.Warn().Msg("DATABASE_URL not set, using in-memory storage")
		return storage.NewMemoryBackend()
	}

	store, err := storage.NewPostgresBackend(ctx, cfg.DBUrl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := storage.RunMigrations(cfg.DBUrl, cfg.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	log.Info().Msg("migrations applied")
	return store
}

func openLimiter(ctx context.Context, cfg config) ratelimit.Limiter {
	policy := ratelimit.Policy{Limit: cfg.RateLimit, Window: cfg.RateLimitWindow}
	if cfg.RedisURL == "" {
		return ratelimit.NewMemoryLimiter(policy, time.Minute)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		// requests are still let through while Redis is down
		log.Warn().Err(err).Msg("redis unreachable at startup")
	}
	return ratelimit.NewRedisLimiter(client, policy, "")
}
