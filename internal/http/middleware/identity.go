// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// Identity resolves who sent the request before rate limiting and
// idempotency run. The sender is a phone number taken from, in order:
//
//   - the :phone path parameter (read endpoints),
//   - the From form field (gateway callbacks),
//   - the "user" field of a JSON body (POST {base}/messages).
//
// The normalized phone is stored under the "userID" context key.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/tbourn/go-inventory-bot/internal/services"
)

// ctxKeySender is the context key shared with the rate limiter and handlers.
const ctxKeySender = "userID"

// FormFrom is the gateway form field holding the sender address.
const FormFrom = "From"

// senderBody is the subset of a JSON message body Identity needs.
type senderBody struct {
	User string `json:"user"`
}

// Identity stores the request's sender phone in the context. Requests
// without a recognizable sender pass through untouched.
//
// JSON bodies are read with ShouldBindBodyWith, so handlers must bind with
// ShouldBindBodyWith as well.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if phone := senderOf(c); phone != "" {
			c.Set(ctxKeySender, phone)
		}
		c.Next()
	}
}

// SenderFrom returns the phone stored by Identity, or "".
func SenderFrom(c *gin.Context) string {
	return asString(c.Value(ctxKeySender))
}

func senderOf(c *gin.Context) string {
	if p := c.Param("phone"); p != "" {
		return services.NormalizePhone(p)
	}
	if isForm(c) {
		return services.NormalizePhone(c.PostForm(FormFrom))
	}
	if c.Request.Method == http.MethodPost && c.ContentType() == gin.MIMEJSON {
		var body senderBody
		if err := c.ShouldBindBodyWith(&body, binding.JSON); err == nil {
			return services.NormalizePhone(body.User)
		}
	}
	return ""
}
