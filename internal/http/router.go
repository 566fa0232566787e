// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns:
// tracing, correlation IDs, redacted logging, panic recovery, compression,
// metrics, sender identity, idempotent redelivery, and rate limiting.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-inventory-bot/internal/agent"
	"github.com/tbourn/go-inventory-bot/internal/config"
	"github.com/tbourn/go-inventory-bot/internal/http/handlers"
	"github.com/tbourn/go-inventory-bot/internal/http/middleware"
	"github.com/tbourn/go-inventory-bot/internal/lock"
	"github.com/tbourn/go-inventory-bot/internal/search"
	"github.com/tbourn/go-inventory-bot/internal/services"
)

// Deps are the process-level collaborators the routes are built from.
type Deps struct {
	DB *gorm.DB
	// Agent is the conversational agent. When nil the conversation routes
	// (webhook and messages) are not mounted.
	Agent agent.Client
	// Locker serializes turns per user; an in-process locker when nil.
	Locker lock.Locker
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and returns the dispatcher handling conversation turns (nil without
// an agent).
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Gzip and body size limiter
//  6. Metrics
//  7. Identity: sender phone from path, form or JSON body
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per sender/IP, bypass on replay)
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) *services.Dispatcher {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-Api-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(limitBody(1 << 20))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Services
	users := &services.UserService{DB: deps.DB}
	// A claim outlives the longest turn, so only a crashed owner's key expires.
	replies := &services.ReplyStore{
		DB:         deps.DB,
		TTL:        cfg.IdempotencyTTL,
		PendingTTL: cfg.Dispatch.MaxTurnWait + 30*time.Second,
	}
	inv := &services.InventoryService{
		DB: deps.DB,
		Matcher: search.NewMatcher(
			search.WithThreshold(cfg.Match.Threshold),
			search.WithBrandThreshold(cfg.Match.BrandThreshold),
		),
	}

	r.Use(middleware.Identity())
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, sender, key string, now time.Time) (bool, error) {
			u, err := users.Lookup(ctx, sender)
			if errors.Is(err, services.ErrUserNotFound) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			return replies.Exists(ctx, u.ID, key, now)
		},
	))
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyBySenderOrIP())
	r.Use(rl.Handler())

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	var disp *services.Dispatcher
	if deps.Agent != nil {
		locker := deps.Locker
		if locker == nil {
			locker = lock.NewMemoryLocker()
		}
		retry := services.RetryPolicy{
			MaxRetries: cfg.Dispatch.RemoteMaxRetries,
			Backoff:    cfg.Dispatch.RemoteBackoff,
		}
		disp = &services.Dispatcher{
			Agent:        deps.Agent,
			Sessions:     &services.SessionRegistry{DB: deps.DB, Agent: deps.Agent, Retry: retry},
			Tools:        &services.ToolExecutor{Inventory: inv},
			Locker:       locker,
			PollInterval: cfg.Dispatch.PollInterval,
			MaxWait:      cfg.Dispatch.MaxTurnWait,
			Retry:        retry,
		}
	}

	var conv handlers.Conversation
	if disp != nil {
		conv = disp
	}
	h := handlers.New(conv, users, inv, replies)

	if conv != nil {
		// Gateway callback lives outside the versioned API.
		r.POST("/webhooks/whatsapp", h.WhatsAppWebhook)
	}

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		if conv != nil {
			api.POST("/messages", h.PostMessage)
		}
		api.GET("/users/:phone/inventory", h.ListInventory)
		api.GET("/users/:phone/report", h.Report)
	}
	return disp
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
