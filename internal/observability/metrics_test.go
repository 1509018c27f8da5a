package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSplitFullMethod(t *testing.T) {
	service, method := splitFullMethod("/grpc.health.v1.Health/Check")
	require.Equal(t, "grpc.health.v1.Health", service)
	require.Equal(t, "Check", method)

	service, method = splitFullMethod("bogus")
	require.Equal(t, "unknown", service)
	require.Equal(t, "unknown", method)
}

func TestHTTPMetricsMiddlewareCountsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(HTTPMetricsMiddleware())
	r.GET("/api/groups/:group_id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/groups/:group_id", "204"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/groups/4", nil))

	require.Equal(t, http.StatusNoContent, rec.Code)
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/groups/:group_id", "204"))
	require.Equal(t, before+1, after)
}

func TestIncPush(t *testing.T) {
	before := testutil.ToFloat64(pushesTotal.WithLabelValues("group-update", "offline"))
	IncPush("group-update", "offline")
	require.Equal(t, before+1, testutil.ToFloat64(pushesTotal.WithLabelValues("group-update", "offline")))
}
