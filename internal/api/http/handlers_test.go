package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/GriffinCanCode/gazeflow/internal/domain/device"
	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
	"github.com/GriffinCanCode/gazeflow/internal/recording"
	"github.com/GriffinCanCode/gazeflow/internal/shared/codec"
)

type fakeEngine struct {
	status  map[string]packet.Status
	sent    []packet.Notification
	targets [][]string
}

func (f *fakeEngine) Streams() []string {
	names := make([]string, 0, len(f.status))
	for k := range f.status {
		names = append(names, k)
	}
	return names
}

func (f *fakeEngine) Status() map[string]packet.Status { return f.status }

func (f *fakeEngine) StatusOf(name string) (packet.Status, bool) {
	st, ok := f.status[name]
	return st, ok
}

func (f *fakeEngine) Value(stream, path string) (gjson.Result, error) {
	st, ok := f.status[stream]
	if !ok {
		return gjson.Result{}, errors.New("unknown stream: " + stream)
	}
	data, err := codec.Marshal(st)
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.GetBytes(data, path), nil
}

func (f *fakeEngine) SendNotification(n packet.Notification, streams ...string) error {
	f.sent = append(f.sent, n)
	f.targets = append(f.targets, streams)
	return nil
}

func (f *fakeEngine) AllStreamsRunning() bool {
	for _, st := range f.status {
		if !st.Running() {
			return false
		}
	}
	return true
}

func newTestRouter(t *testing.T, engine Engine, root string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandlers(engine, root, nil).Register(router)
	return router
}

func do(router *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func engineWithPupil() *fakeEngine {
	return &fakeEngine{status: map[string]packet.Status{
		"eye0": {
			packet.KeyName:    "eye0",
			packet.KeyRunning: true,
			packet.FieldPupil: packet.Pupil{Confidence: 0.95, NormPos: [2]float64{0.4, 0.6}},
		},
		"world": {packet.KeyName: "world", packet.KeyRunning: false},
	}}
}

func TestHealth(t *testing.T) {
	engine := engineWithPupil()
	router := newTestRouter(t, engine, t.TempDir())

	w := do(router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "degraded", gjson.Get(w.Body.String(), "status").String())
	assert.Equal(t, int64(2), gjson.Get(w.Body.String(), "streams").Int())

	engine.status["world"][packet.KeyRunning] = true
	w = do(router, http.MethodGet, "/health", "")
	assert.Equal(t, "healthy", gjson.Get(w.Body.String(), "status").String())
}

func TestStreams(t *testing.T) {
	router := newTestRouter(t, engineWithPupil(), t.TempDir())

	w := do(router, http.MethodGet, "/streams", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.95, gjson.Get(w.Body.String(), "streams.eye0.pupil.confidence").Float())
	assert.False(t, gjson.Get(w.Body.String(), "streams.world.running").Bool())

	w = do(router, http.MethodGet, "/streams/eye0", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "eye0", gjson.Get(w.Body.String(), "name").String())

	w = do(router, http.MethodGet, "/streams/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetValue(t *testing.T) {
	router := newTestRouter(t, engineWithPupil(), t.TempDir())

	tests := []struct {
		name   string
		target string
		code   int
		value  string
	}{
		{"nested number", "/streams/eye0/value?key=pupil.confidence", http.StatusOK, "0.95"},
		{"array element", "/streams/eye0/value?key=pupil.norm_pos.1", http.StatusOK, "0.6"},
		{"missing key param", "/streams/eye0/value", http.StatusBadRequest, ""},
		{"absent path", "/streams/world/value?key=pupil.confidence", http.StatusNotFound, ""},
		{"unknown stream", "/streams/nope/value?key=fps", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.code, w.Code)
			if tt.value != "" {
				assert.Equal(t, tt.value, gjson.Get(w.Body.String(), "value").Raw)
			}
		})
	}
}

func TestNotify(t *testing.T) {
	engine := engineWithPupil()
	router := newTestRouter(t, engine, t.TempDir())

	w := do(router, http.MethodPost, "/streams/world/notifications", `{"collect_calibration_data": true}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, engine.sent, 1)
	assert.Equal(t, packet.Notification{packet.NotifyCollectCalibration: true}, engine.sent[0])
	assert.Equal(t, []string{"world"}, engine.targets[0])

	w = do(router, http.MethodPost, "/notifications", `{"calculate_calibration": true}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, engine.targets[1])

	for _, body := range []string{"", "{}", "[1, 2]", "not json", `{"a":` + strings.Repeat("[", 40) + strings.Repeat("]", 40) + `}`} {
		w = do(router, http.MethodPost, "/streams/world/notifications", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	w = do(router, http.MethodPost, "/streams/nope/notifications", `{"x": 1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Len(t, engine.sent, 2)
}

func TestListRecordings(t *testing.T) {
	root := t.TempDir()
	fw, err := recording.NewFrameWriter(root+"/session", "eye0", recording.FrameWriterOptions{})
	require.NoError(t, err)
	require.NoError(t, fw.Write(device.SynthFrame(device.PatternBlank, 4, 4, 0, packet.ColorGray), 1, 1))
	require.NoError(t, fw.Close())

	router := newTestRouter(t, &fakeEngine{}, root)
	w := do(router, http.MethodGet, "/recordings", "")
	require.Equal(t, http.StatusOK, w.Code)
	recs := gjson.Get(w.Body.String(), "recordings").Array()
	require.Len(t, recs, 1)
	assert.Equal(t, "eye0", recs[0].Get("name").String())
	assert.Equal(t, int64(1), recs[0].Get("frames").Int())

	w = do(router, http.MethodGet, "/recordings?pattern=other/**", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, gjson.Get(w.Body.String(), "recordings").Array())

	w = do(router, http.MethodGet, "/recordings?pattern=[", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
