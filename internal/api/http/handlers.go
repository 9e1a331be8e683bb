package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
	"github.com/GriffinCanCode/gazeflow/internal/recording"
	"github.com/GriffinCanCode/gazeflow/internal/shared/codec"
	"github.com/GriffinCanCode/gazeflow/internal/shared/utils"
)

// Engine is the part of the manager the API reads and writes.
type Engine interface {
	Streams() []string
	Status() map[string]packet.Status
	StatusOf(name string) (packet.Status, bool)
	Value(stream, path string) (gjson.Result, error)
	SendNotification(n packet.Notification, streams ...string) error
	AllStreamsRunning() bool
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	engine        Engine
	recordingRoot string
	logger        *zap.Logger
	started       time.Time
}

// NewHandlers creates a new handler set.
func NewHandlers(engine Engine, recordingRoot string, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		engine:        engine,
		recordingRoot: recordingRoot,
		logger:        logger.Named("api"),
		started:       time.Now(),
	}
}

// Register mounts every route on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/streams", h.ListStreams)
	r.GET("/streams/:name", h.GetStream)
	r.GET("/streams/:name/value", h.GetValue)
	r.POST("/streams/:name/notifications", h.Notify)
	r.POST("/notifications", h.NotifyAll)
	r.GET("/recordings", h.ListRecordings)
}

// writeJSON encodes with the engine codec so statuses render the same way
// everywhere.
func writeJSON(c *gin.Context, code int, v any) {
	data, err := codec.Marshal(v)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "encode response: " + err.Error()})
		return
	}
	c.Data(code, "application/json; charset=utf-8", data)
}

func writeError(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}

// Root identifies the service.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "gazeflow",
	})
}

// Health reports whether every stream is running.
func (h *Handlers) Health(c *gin.Context) {
	status := "healthy"
	if !h.engine.AllStreamsRunning() {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  status,
		"streams": len(h.engine.Streams()),
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}

// ListStreams returns the latest status of every stream.
func (h *Handlers) ListStreams(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"streams": h.engine.Status()})
}

// GetStream returns one stream's latest status.
func (h *Handlers) GetStream(c *gin.Context) {
	st, ok := h.engine.StatusOf(c.Param("name"))
	if !ok {
		writeError(c, http.StatusNotFound, "stream not found")
		return
	}
	writeJSON(c, http.StatusOK, st)
}

// GetValue resolves ?key= as a dotted path in one stream's status.
func (h *Handlers) GetValue(c *gin.Context) {
	name, key := c.Param("name"), c.Query("key")
	if key == "" {
		writeError(c, http.StatusBadRequest, "key is required")
		return
	}
	v, err := h.engine.Value(name, key)
	if err != nil {
		writeError(c, http.StatusNotFound, err.Error())
		return
	}
	if !v.Exists() {
		writeError(c, http.StatusNotFound, "no value at "+key)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"stream": name, "key": key, "value": v.Value()})
}

// Notify queues the request body as an operator notification for one
// stream.
func (h *Handlers) Notify(c *gin.Context) {
	name := c.Param("name")
	if _, ok := h.engine.StatusOf(name); !ok {
		writeError(c, http.StatusNotFound, "stream not found")
		return
	}
	h.notify(c, name)
}

// NotifyAll queues the request body for every stream.
func (h *Handlers) NotifyAll(c *gin.Context) {
	h.notify(c)
}

func (h *Handlers) notify(c *gin.Context, streams ...string) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, utils.MaxNotificationSize+1))
	if err != nil {
		writeError(c, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	n, err := utils.ValidateNotification(body)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.engine.SendNotification(packet.Notification(n), streams...); err != nil {
		writeError(c, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Info("Operator notification queued", zap.Strings("streams", streams), zap.Int("keys", len(n)))
	c.JSON(http.StatusAccepted, gin.H{"queued": true})
}

// ListRecordings lists frame recordings below the recording root. The
// optional ?pattern= is a doublestar glob relative to the root.
func (h *Handlers) ListRecordings(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	recs, err := recording.Discover(ctx, h.recordingRoot, c.Query("pattern"))
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		writeError(c, http.StatusGatewayTimeout, "listing timed out")
		return
	case err != nil:
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	if recs == nil {
		recs = []recording.Recording{}
	}
	writeJSON(c, http.StatusOK, gin.H{"root": h.recordingRoot, "recordings": recs})
}
