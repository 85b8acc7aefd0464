// Package main is the entry point for the PGConsole gateway.
package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/pgconsole/gateway/internal/admission"
	"github.com/pgconsole/gateway/internal/audit"
	"github.com/pgconsole/gateway/internal/broker"
	"github.com/pgconsole/gateway/internal/config"
	"github.com/pgconsole/gateway/internal/database"
	"github.com/pgconsole/gateway/internal/handler"
	"github.com/pgconsole/gateway/internal/iam"
	"github.com/pgconsole/gateway/internal/identity"
	pgotel "github.com/pgconsole/gateway/internal/otel"
	"github.com/pgconsole/gateway/internal/router"
	"github.com/pgconsole/gateway/internal/server"
	"github.com/pgconsole/gateway/internal/session"
	redislib "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	logger := setupLogger()

	policyPath := envOr("PGCONSOLE_POLICY_FILE", "policy.toml")
	store, err := config.Load(policyPath, config.Options{
		LicenseToken: os.Getenv("PGCONSOLE_LICENSE_TOKEN"),
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load policy")
	}

	logger.Info().
		Str("plan", string(store.Plan())).
		Int("connections", len(store.Connections())).
		Msg("starting pgconsole gateway")

	ctx := context.Background()

	shutdownTracing, err := pgotel.Init(ctx, pgotel.Config{
		Endpoint:    os.Getenv("PGCONSOLE_OTEL_ENDPOINT"),
		Insecure:    os.Getenv("PGCONSOLE_OTEL_INSECURE") == "true",
		UseHTTP:     os.Getenv("PGCONSOLE_OTEL_PROTOCOL") == "http",
		ServiceName: "pgconsole-gateway",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	factory := database.NewClientFactory(logger)
	defer factory.Close()

	var redisClient *database.Redis
	if addr := os.Getenv("PGCONSOLE_REDIS_ADDR"); addr != "" {
		redisClient, err = database.NewRedis(ctx, addr, os.Getenv("PGCONSOLE_REDIS_PASSWORD"), envOrInt("PGCONSOLE_REDIS_DB", 0), logger)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, falling back to in-process state")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var clickhouseMirror *database.ClickHouse
	if addr := os.Getenv("PGCONSOLE_CLICKHOUSE_ADDR"); addr != "" {
		clickhouseMirror, err = database.NewClickHouse(ctx, addr,
			envOr("PGCONSOLE_CLICKHOUSE_DATABASE", "pgconsole"),
			os.Getenv("PGCONSOLE_CLICKHOUSE_USERNAME"),
			os.Getenv("PGCONSOLE_CLICKHOUSE_PASSWORD"), logger)
		if err != nil {
			logger.Warn().Err(err).Msg("clickhouse unavailable, audit mirroring disabled")
			clickhouseMirror = nil
		} else {
			defer clickhouseMirror.Close()
		}
	}

	var identitySvc *identity.Service
	if store.AuthConfig() != nil {
		var rawRedisClient *redislib.Client
		if redisClient != nil {
			rawRedisClient = redisClient.Client
		}
		identitySvc, err = identity.NewService(ctx, store, rawRedisClient, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize identity service")
		}
	}

	iamSvc := iam.NewService(store, logger)
	auditLog := audit.NewLogger(logger, clickhouseMirror, nil)
	admissionLimiter := admission.NewLimiter(redisClient, admission.DefaultMaxConcurrentQueries, logger)
	brk := broker.New(store, factory, iamSvc, admissionLimiter, auditLog, logger)
	sessionSvc := session.NewService(store, factory, iamSvc)

	secureCookies := os.Getenv("PGCONSOLE_ENV") == "production"

	deps := router.Dependencies{
		Logger:       logger,
		Tracer:       pgotel.Tracer("pgconsole-gateway"),
		Identity:     identitySvc,
		Auth:         handler.NewAuthHandler(identitySvc, logger, secureCookies),
		SQL:          handler.NewSQLHandler(brk, logger),
		Sessions:     handler.NewSessionHandler(sessionSvc),
		Audit:        handler.NewAuditHandler(auditLog, store.IsOwner),
		Connection:   handler.NewConnectionHandler(store, iamSvc),
		WriteTimeout: envOrDuration("PGCONSOLE_WRITE_TIMEOUT", 30*time.Second),
		CORSOrigins:  []string{envOr("PGCONSOLE_DASHBOARD_ORIGIN", "http://localhost:3000")},
	}

	r := router.New(deps)

	srv := server.New(server.Config{
		Port:            envOr("PGCONSOLE_PORT", "8080"),
		ReadTimeout:     envOrDuration("PGCONSOLE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    deps.WriteTimeout,
		IdleTimeout:     envOrDuration("PGCONSOLE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: envOrDuration("PGCONSOLE_SHUTDOWN_TIMEOUT", 10*time.Second),
	}, r, logger)

	logger.Info().Str("addr", srv.Addr()).Msg("gateway ready to accept connections")

	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}

	logger.Info().Msg("gateway shutdown complete")
}

func setupLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(envOr("PGCONSOLE_LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if os.Getenv("PGCONSOLE_ENV") != "production" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().Timestamp().Caller().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
