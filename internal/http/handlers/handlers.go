// Package handlers exposes the HTTP endpoints of the inventory bot:
//
//   - POST /webhooks/whatsapp               (inbound WhatsApp message, TwiML reply)
//   - POST {base}/messages                  (JSON conversation turn)
//   - GET  {base}/users/{phone}/inventory   (paginated stock listing)
//   - GET  {base}/users/{phone}/report      (sales report for a window)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results and service errors into HTTP responses.
package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-inventory-bot/internal/domain"
	"github.com/tbourn/go-inventory-bot/internal/http/middleware"
	"github.com/tbourn/go-inventory-bot/internal/services"
	"github.com/tbourn/go-inventory-bot/internal/utils"
)

//
// Service contracts (context-aware)
//

// Conversation runs one agent turn for a user.
type Conversation interface {
	Reply(ctx context.Context, userID, text string) (string, error)
}

// Users provisions and resolves users by phone number.
type Users interface {
	Provision(ctx context.Context, phone string) (*domain.User, error)
	Lookup(ctx context.Context, phone string) (*domain.User, error)
}

// Inventory exposes read-side ledger operations.
type Inventory interface {
	ListInventory(ctx context.Context, userID string, page, pageSize int) ([]domain.InventoryEntry, int64, error)
	GenerateReport(ctx context.Context, userID, unit string, count int) (*services.SalesReport, error)
	InventoryStats(ctx context.Context, userID string) (count int64, maxUpdatedAt *time.Time, err error)
}

// Replies stores and replays replies keyed by inbound message id. Claim
// returns services.ErrReplyInFlight while another request owns the key.
type Replies interface {
	Claim(ctx context.Context, userID, key string) (reply string, done bool, err error)
	Remember(ctx context.Context, userID, key, reply string, status int) error
	Release(ctx context.Context, userID, key string) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	conv    Conversation
	users   Users
	inv     Inventory
	replies Replies

	// claimWait bounds how long a redelivery waits for the request that
	// owns its key; claimPoll is the re-check interval.
	claimWait time.Duration
	claimPoll time.Duration
}

const (
	defaultClaimWait = 10 * time.Second
	defaultClaimPoll = 250 * time.Millisecond
)

// New constructs a Handlers bound to the given services. replies may be nil,
// which disables reply replay.
func New(conv Conversation, users Users, inv Inventory, replies Replies) *Handlers {
	return &Handlers{
		conv:      conv,
		users:     users,
		inv:       inv,
		replies:   replies,
		claimWait: defaultClaimWait,
		claimPoll: defaultClaimPoll,
	}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.Clamp(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}

// idempotencyKey returns the inbound message key stashed by the idempotency
// middleware. Without the middleware it falls back to the Idempotency-Key
// header, then to the gateway's MessageSid form field.
func idempotencyKey(c *gin.Context) string {
	if k, ok := middleware.GetIdempotencyKey(c); ok {
		return k
	}
	if k := strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey)); k != "" {
		return k
	}
	return strings.TrimSpace(c.PostForm(middleware.FormMessageSid))
}
