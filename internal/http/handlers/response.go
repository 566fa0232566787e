// Package handlers implements the HTTP endpoints: the WhatsApp webhook, the
// JSON message endpoint and the ledger read endpoints.
//
// Every JSON failure is an ErrorResponse with a stable code from errors.go:
//
//	HTTP/1.1 404 Not Found
//	{"request_id":"123e4567-e89b-12d3-a456-426614174000","code":"not_found","message":"user not found"}
//
// The webhook answers in TwiML instead:
//
//	<Response><Message>Listo, registré 2 leches.</Message></Response>
package handlers

import (
	"encoding/xml"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-inventory-bot/internal/http/middleware"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	// Echo of X-Request-ID for correlating logs
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code
	Code string `json:"code" example:"not_found"`
	// Safe to show to users
	Message string `json:"message" example:"user not found"`
}

// TwiMLResponse is the messaging reply document understood by the WhatsApp
// gateway. An empty Message yields <Response></Response>.
type TwiMLResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

// fail aborts with an ErrorResponse. 5xx failures are also logged with the
// request-scoped logger since the client only sees a generic message.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Message:   msg,
	})
}

// Fail lets the router answer NoRoute/NoMethod with the same envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// twiml answers a webhook with a single outbound message. Webhooks get 200
// so the gateway does not redeliver a message that was handled.
func twiml(c *gin.Context, msg string) {
	c.XML(http.StatusOK, TwiMLResponse{Message: msg})
}
