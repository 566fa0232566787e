// Command server runs the WhatsApp inventory assistant: it accepts inbound
// messages, drives assistant turns against the ledger and serves the read
// endpoints for stock and sales reports.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-inventory-bot/internal/agent"
	"github.com/tbourn/go-inventory-bot/internal/config"
	httpapi "github.com/tbourn/go-inventory-bot/internal/http"
	"github.com/tbourn/go-inventory-bot/internal/lock"
	"github.com/tbourn/go-inventory-bot/internal/observability"
	"github.com/tbourn/go-inventory-bot/internal/repo"
	"github.com/tbourn/go-inventory-bot/internal/sysutil"
)

const shutdownTimeout = 20 * time.Second

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.ConfigureLogger(cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	version := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), "dev")
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	dsn := cfg.DB.Path
	if cfg.DB.Driver == "postgres" {
		dsn = cfg.DB.URL
	}
	db, err := repo.Open(cfg.DB.Driver, dsn)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}
	if err := observability.InstrumentDB(db, nil); err != nil {
		log.Warn().Err(err).Msg("gorm tracing disabled")
	}

	deps := httpapi.Deps{DB: db}
	if cfg.AgentConfigured() {
		deps.Agent = agent.NewOpenAIClient(agent.OpenAIOptions{
			APIKey:      cfg.Agent.APIKey,
			AssistantID: cfg.Agent.AssistantID,
			BaseURL:     cfg.Agent.BaseURL,
		})
	} else {
		log.Warn().Msg("OPENAI_API_KEY or ASSISTANT_ID not set; conversation endpoints disabled")
	}

	var rdb *redis.Client
	if cfg.Lock.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Lock.RedisAddr,
			Password: cfg.Lock.RedisPassword,
			DB:       cfg.Lock.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Lock.RedisAddr).Msg("connect redis")
		}
		deps.Locker = lock.NewRedisLocker(rdb, cfg.Lock.TTL)
		log.Info().Str("addr", cfg.Lock.RedisAddr).Msg("using redis turn lock")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, deps, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
}
