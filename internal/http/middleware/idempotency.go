// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for inbound messages. A key comes
// from the Idempotency-Key header or, for gateway callbacks, from the
// MessageSid form field. The middleware validates the key, stashes it for
// handlers (GetIdempotencyKey), and when a lookup reports a stored reply for
// (sender, key) marks the request as a replay so the rate limiter lets it
// through (IsReplay, IsRateBypass).
//
// Handlers stay in charge of serving the stored reply.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying a client idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

// FormMessageSid is the gateway form field holding the provider's message id.
// Redeliveries of the same WhatsApp message reuse it.
const FormMessageSid = "MessageSid"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // bool: a stored reply exists
	ctxKeyRateBypass = "rate.bypass" // bool: skip rate limiting
)

// GetIdempotencyKey returns the validated key stored by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the lookup found a stored reply for this request.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures key validation for IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. Defaults to ^[A-Za-z0-9._~\-:]+$
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether a still-valid reply is stored for
// (sender, key). sender is the normalized phone number set by Identity.
// Errors are treated as "not found" and never block the request.
type IdempotencyLookup func(ctx context.Context, sender, key string, now time.Time) (exists bool, err error)

// defaultKeyPattern is an RFC 7230 token subset. Twilio message ids
// ("SM" + 32 hex chars) match it.
var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotencyValidator validates and stashes the request's idempotency key.
//
//   - No key: no-op.
//   - Invalid key: 400 {"code":"bad_idempotency_key"}.
//   - Lookup hit: replay and rate-bypass flags are set.
//
// The lookup only runs when Identity resolved a sender.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}

	return func(c *gin.Context) {
		key := requestKey(c)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": asString(c.Value(requestIDKey)),
				"code":       "bad_idempotency_key",
				"message":    "invalid idempotency key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if sender := SenderFrom(c); lookup != nil && sender != "" {
			exists, err := lookup(c.Request.Context(), sender, key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			}
			if exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}

// requestKey prefers the header and falls back to the gateway message id on
// form posts.
func requestKey(c *gin.Context) string {
	if k := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey)); k != "" {
		return k
	}
	if isForm(c) {
		return strings.TrimSpace(c.PostForm(FormMessageSid))
	}
	return ""
}

func isForm(c *gin.Context) bool {
	if c.Request.Method != http.MethodPost {
		return false
	}
	return c.ContentType() == gin.MIMEPOSTForm
}
