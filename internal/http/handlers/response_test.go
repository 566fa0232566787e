package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-inventory-bot/internal/http/middleware"
)

func TestFail_Envelope(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		status int
		code   string
		logged bool
	}{
		{http.StatusNotFound, ErrCodeNotFound, false},
		{http.StatusBadRequest, ErrCodeBadRequest, false},
		{http.StatusInternalServerError, ErrCodeInternal, true},
	}
	for _, tc := range cases {
		var logs bytes.Buffer
		lg := zerolog.New(&logs)

		r := gin.New()
		r.Use(middleware.RequestID(), func(c *gin.Context) {
			c.Set("logger", &lg)
			c.Next()
		})
		r.GET("/x", func(c *gin.Context) { Fail(c, tc.status, tc.code, "nope") })

		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("X-Request-ID", "rid-7")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != tc.status {
			t.Fatalf("%s: status=%d", tc.code, w.Code)
		}
		var er ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
			t.Fatalf("%s: decode: %v", tc.code, err)
		}
		if er != (ErrorResponse{RequestID: "rid-7", Code: tc.code, Message: "nope"}) {
			t.Fatalf("%s: body=%+v", tc.code, er)
		}
		if got := strings.Contains(logs.String(), `"level":"error"`); got != tc.logged {
			t.Fatalf("%s: logged=%v want %v (%s)", tc.code, got, tc.logged, logs.String())
		}
	}
}

func TestTwiML(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/reply", func(c *gin.Context) { twiml(c, "Leche & pan: 2") })
	r.POST("/empty", func(c *gin.Context) { twiml(c, "") })

	for path, want := range map[string]string{
		"/reply": "<Response><Message>Leche &amp; pan: 2</Message></Response>",
		"/empty": "<Response></Response>",
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status=%d", path, w.Code)
		}
		if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
			t.Fatalf("%s: content-type=%q", path, ct)
		}
		if w.Body.String() != want {
			t.Fatalf("%s: body=%s", path, w.Body.String())
		}
	}
}
