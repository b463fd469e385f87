package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestID(t *testing.T) {
	var seen string
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		seen = RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	t.Run("Generated", func(t *testing.T) {
		w := get(r, nil)
		id := w.Header().Get(HeaderRequestID)
		require.Len(t, id, 36)
		assert.Equal(t, id, seen)
	})
	t.Run("Reused", func(t *testing.T) {
		w := get(r, func(req *http.Request) { req.Header.Set(HeaderRequestID, "abc-123") })
		assert.Equal(t, "abc-123", w.Header().Get(HeaderRequestID))
		assert.Equal(t, "abc-123", seen)
	})
	t.Run("Invalid", func(t *testing.T) {
		for _, bad := range []string{strings.Repeat("x", 129), "bad\x01id"} {
			w := get(r, func(req *http.Request) { req.Header.Set(HeaderRequestID, bad) })
			assert.NotEqual(t, bad, w.Header().Get(HeaderRequestID))
			assert.Len(t, w.Header().Get(HeaderRequestID), 36)
		}
	})
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	r := gin.New()
	r.Use(RequestID(), InjectLogger(zap.New(core)), Recovery())
	r.GET("/", func(*gin.Context) { panic("boom") })

	w := get(r, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"internal"`)

	entries := logs.FilterMessage("Panic recovered").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0].ContextMap()["panic"])
	assert.NotEmpty(t, entries[0].ContextMap()["request_id"])
}

func TestLogRequests(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := gin.New()
	r.Use(InjectLogger(zap.New(core)), LogRequests())
	r.GET("/orders/:id", func(c *gin.Context) {
		zctx.From(c.Request.Context()).Info("handler")
		c.Status(http.StatusOK)
	})
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })

	req := httptest.NewRequest(http.MethodGet, "/orders/42", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
	req = httptest.NewRequest(http.MethodGet, "/fail", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 1, logs.FilterMessage("handler").Len())
	reqs := logs.FilterMessage("Request").All()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/orders/:id", reqs[0].ContextMap()["route"])
	assert.Equal(t, zap.DebugLevel, reqs[0].Level)
	assert.Equal(t, zap.ErrorLevel, reqs[1].Level)
}
