// Conversation HTTP handlers.
//
// This file exposes the two entry points of a conversation turn:
//   - POST {base}/messages     (JSON; used by server-to-server clients)
//   - POST /webhooks/whatsapp  (form-encoded gateway callback; TwiML reply)
//
// Idempotency:
// A retried delivery carrying the same Idempotency-Key (or MessageSid) for
// the same user is answered with the stored reply and the turn is not run
// again, so tool side effects happen once. The key is claimed before the
// turn starts; a redelivery that arrives while the first delivery is still
// running waits for its reply instead of starting a second turn.
package handlers

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/tbourn/go-inventory-bot/internal/http/middleware"
	"github.com/tbourn/go-inventory-bot/internal/services"
)

// maxTextRunes caps inbound message text.
const maxTextRunes = 4000

// fallbackReply is sent to WhatsApp users when a turn fails.
const fallbackReply = "Lo siento, no pude procesar tu mensaje en este momento. Intenta de nuevo en unos minutos."

//
// DTOs
//

// PostMessageRequest is the JSON payload for a conversation turn.
type PostMessageRequest struct {
	// User is the sender's phone number (optionally "whatsapp:" prefixed).
	User string `json:"user" binding:"required" example:"+5215512345678"`
	// Text is the user's message.
	Text string `json:"text" binding:"required" example:"Vendí 2 leches Lala de 1 litro a 28 pesos"`
}

// PostMessageResponse carries the agent's reply.
type PostMessageResponse struct {
	UserID string `json:"user_id"`
	Reply  string `json:"reply"`
}

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeText normalizes user text:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two,
//   - trims surrounding whitespace.
func sanitizeText(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// replyStatus maps a turn error onto (status, code, message).
func replyStatus(err error) (int, string, string) {
	switch {
	case errors.Is(err, services.ErrInvalidUser):
		return http.StatusBadRequest, ErrCodeBadRequest, "user required"
	case errors.Is(err, services.ErrSessionUnavailable):
		return http.StatusServiceUnavailable, ErrCodeSessionUnavailable, "conversation session unavailable"
	case errors.Is(err, services.ErrTurnTimeout):
		return http.StatusGatewayTimeout, ErrCodeUpstreamTimeout, "agent did not answer in time"
	case errors.Is(err, services.ErrRemoteService), errors.Is(err, services.ErrRunFailed):
		return http.StatusBadGateway, ErrCodeUpstream, "agent service error"
	default:
		return http.StatusInternalServerError, ErrCodeReplyFailed, "reply failed"
	}
}

//
// Handlers
//

// PostMessage godoc
// @ID          postMessage
// @Summary     Run a conversation turn
// @Description Sends the user's text to the agent, executes any inventory tool calls and returns the agent's reply.
// @Description Supports idempotency via the Idempotency-Key header (same key → same reply, no repeated side effects).
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"
// @Param       body             body    handlers.PostMessageRequest  true  "Message payload"
//
// @Success     200  {object}  handlers.PostMessageResponse  "Agent reply"
// @Failure     400  {object}  handlers.ErrorResponse        "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse        "Same Idempotency-Key still in progress"
// @Failure     502  {object}  handlers.ErrorResponse        "Agent service error"
// @Failure     503  {object}  handlers.ErrorResponse        "Session unavailable"
// @Failure     504  {object}  handlers.ErrorResponse        "Agent timeout"
// @Router      /messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()

	var req PostMessageRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user and text required")
		return
	}
	text := sanitizeText(req.Text)
	if text == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text required")
		return
	}
	if utf8.RuneCountInString(text) > maxTextRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text too long")
		return
	}

	u, err := h.users.Provision(ctx, req.User)
	if err != nil {
		status, code, msg := replyStatus(err)
		fail(c, status, code, msg)
		return
	}
	c.Set("userID", u.Phone)

	key := idempotencyKey(c)
	switch prev, st := h.claim(c, u.ID, key); st {
	case claimReplay:
		c.Header("Idempotency-Replayed", "true")
		ok(c, http.StatusOK, PostMessageResponse{UserID: u.ID, Reply: prev})
		return
	case claimBusy:
		fail(c, http.StatusConflict, ErrCodeInProgress, "message is still being processed")
		return
	}

	reply, err := h.conv.Reply(ctx, u.ID, text)
	if err != nil {
		h.release(c, u.ID, key)
		status, code, msg := replyStatus(err)
		fail(c, status, code, msg)
		return
	}
	h.remember(c, u.ID, key, reply)
	ok(c, http.StatusOK, PostMessageResponse{UserID: u.ID, Reply: reply})
}

// WhatsAppWebhook godoc
// @ID          whatsappWebhook
// @Summary     WhatsApp gateway callback
// @Description Receives an inbound WhatsApp message (form fields From, Body, MessageSid) and answers with TwiML.
// @Tags        Webhooks
// @Accept      x-www-form-urlencoded
// @Produce     xml
// @Success     200  {object}  handlers.TwiMLResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing From"
// @Router      /webhooks/whatsapp [post]
func (h *Handlers) WhatsAppWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	from := strings.TrimSpace(c.PostForm(middleware.FormFrom))
	if from == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "From required")
		return
	}
	text := sanitizeText(c.PostForm("Body"))
	if text == "" {
		// Media-only or empty messages get an empty TwiML document.
		twiml(c, "")
		return
	}
	if utf8.RuneCountInString(text) > maxTextRunes {
		text = string([]rune(text)[:maxTextRunes])
	}

	u, err := h.users.Provision(ctx, from)
	if err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Msg("provision user")
		twiml(c, fallbackReply)
		return
	}
	c.Set("userID", u.Phone)

	key := idempotencyKey(c)
	switch prev, st := h.claim(c, u.ID, key); st {
	case claimReplay:
		c.Header("Idempotency-Replayed", "true")
		twiml(c, prev)
		return
	case claimBusy:
		// The owning delivery answers the user; an empty document keeps the
		// gateway from sending the message twice.
		twiml(c, "")
		return
	}

	reply, err := h.conv.Reply(ctx, u.ID, text)
	if err != nil {
		h.release(c, u.ID, key)
		status, code, _ := replyStatus(err)
		middleware.LoggerFrom(c).Error().
			Str("user_id", u.ID).
			Int("status", status).
			Str("code", code).
			Err(err).
			Msg("webhook turn failed")
		twiml(c, fallbackReply)
		return
	}
	h.remember(c, u.ID, key, reply)
	twiml(c, reply)
}

type claimState int

const (
	claimOwned claimState = iota
	claimReplay
	claimBusy
)

// claim takes the idempotency key for this request. A redelivery that finds
// the key held waits up to claimWait for the owner's reply. Store failures
// are logged and the turn runs unguarded.
func (h *Handlers) claim(c *gin.Context, userID, key string) (string, claimState) {
	if h.replies == nil || key == "" {
		return "", claimOwned
	}
	ctx := c.Request.Context()
	deadline := time.Now().Add(h.claimWait)
	for {
		reply, done, err := h.replies.Claim(ctx, userID, key)
		switch {
		case err == nil && done:
			return reply, claimReplay
		case err == nil:
			return "", claimOwned
		case !errors.Is(err, services.ErrReplyInFlight):
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency claim")
			return "", claimOwned
		}

		if !time.Now().Before(deadline) {
			return "", claimBusy
		}
		select {
		case <-ctx.Done():
			return "", claimBusy
		case <-time.After(h.claimPoll):
		}
	}
}

// release gives the key back after a failed turn so a retry can run it.
func (h *Handlers) release(c *gin.Context, userID, key string) {
	if h.replies == nil || key == "" {
		return
	}
	if err := h.replies.Release(c.Request.Context(), userID, key); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency release")
	}
}

// remember stores the reply best effort.
func (h *Handlers) remember(c *gin.Context, userID, key, reply string) {
	if h.replies == nil || key == "" {
		return
	}
	if err := h.replies.Remember(c.Request.Context(), userID, key, reply, http.StatusOK); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency store")
	}
}

