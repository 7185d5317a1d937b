package middleware_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/eshaffer321/receipt-reconciler/internal/api/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestLogging(t *testing.T) {
	newRouter := func(buf *bytes.Buffer) *gin.Engine {
		logger := slog.New(slog.NewTextHandler(buf, nil))
		r := gin.New()
		r.Use(middleware.Logging(logger, "/health"))
		r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
		r.GET("/api/receipts/:id", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
		r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
		return r
	}

	t.Run("logs request and passes through", func(t *testing.T) {
		var buf bytes.Buffer
		r := newRouter(&buf)

		req := httptest.NewRequest(http.MethodGet, "/api/receipts/r-1", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK", rec.Body.String())
		assert.Contains(t, buf.String(), "path=/api/receipts/r-1")
		assert.Contains(t, buf.String(), "route=/api/receipts/:id")
		assert.Contains(t, buf.String(), "status=200")
	})

	t.Run("captures non-200 status codes", func(t *testing.T) {
		var buf bytes.Buffer
		r := newRouter(&buf)

		req := httptest.NewRequest(http.MethodGet, "/missing", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, buf.String(), "level=WARN")
		assert.Contains(t, buf.String(), "status=404")
	})

	t.Run("skips configured paths", func(t *testing.T) {
		var buf bytes.Buffer
		r := newRouter(&buf)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, buf.String())
	})
}

func TestCORS(t *testing.T) {
	newRouter := func() *gin.Engine {
		r := gin.New()
		r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
		r.GET("/api/stats", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
		return r
	}

	t.Run("sets headers for allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()

		newRouter().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("rejects disallowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		req.Header.Set("Origin", "http://evil.example")
		rec := httptest.NewRecorder()

		newRouter().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("answers preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/stats", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
		rec := httptest.NewRecorder()

		newRouter().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	})
}
