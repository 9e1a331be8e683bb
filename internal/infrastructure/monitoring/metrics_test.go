package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Recording(t *testing.T) {
	m := NewMetrics()

	m.SetFPS("world", 30)
	m.ObservePacket("world", 5*time.Millisecond)
	m.ObservePacket("world", 5*time.Millisecond)
	m.IncRouted("eye0", "world")
	m.IncDropped("eye0", "pupil_detector")
	m.IncCalibration("", "failed")
	m.SetStreamsRunning(3)

	assert.Equal(t, 30.0, testutil.ToFloat64(m.StreamFPS.WithLabelValues("world")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StreamPackets.WithLabelValues("world")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsRouted.WithLabelValues("eye0", "world")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProcessDropped.WithLabelValues("eye0", "pupil_detector")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CalibrationRuns.WithLabelValues("unknown", "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.StreamsRunning))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.SetFPS("x", 1)
		m.ObservePacket("x", time.Millisecond)
		m.IncCrash("x")
		m.IncRouted("a", "b")
		m.IncDropped("x", "y")
		m.IncCalibration("m", "ok")
		m.SetStreamsRunning(1)
		m.RecordHTTPRequest("GET", "/", "200", time.Millisecond)
		m.IncWSConnections()
		m.DecWSConnections()
	})
	assert.NotNil(t, m.Handler())
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.IncCrash("world")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.StreamCrashes.WithLabelValues("world")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.StreamCrashes.WithLabelValues("world")))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/streams/:name", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/streams/world", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/streams/:name", "200")))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "gazeflow_http_requests_total"))
	assert.True(t, strings.Contains(body, "gazeflow_uptime_seconds"))
}
