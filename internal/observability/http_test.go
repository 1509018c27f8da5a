package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(RequestIDKey)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, "abc", rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, rec.Body.String())
	require.Equal(t, rec.Body.String(), rec.Header().Get("X-Request-Id"))
}

func TestIPFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	require.Equal(t, "10.0.0.1", IPFromRequest(req))

	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	require.Equal(t, "1.2.3.4", IPFromRequest(req))
}
