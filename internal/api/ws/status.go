package ws

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/gazeflow/internal/shared/codec"
	"github.com/GriffinCanCode/gazeflow/internal/shared/utils"
)

// StatusSource is what the status feed reads and writes.
type StatusSource interface {
	Status() map[string]packet.Status
	SendNotification(n packet.Notification, streams ...string) error
}

// StatusHandler pushes status snapshots to WebSocket clients.
type StatusHandler struct {
	source   StatusSource
	interval time.Duration
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewStatusHandler creates the status feed handler.
func NewStatusHandler(source StatusSource, interval time.Duration, metrics *monitoring.Metrics, logger *zap.Logger) *StatusHandler {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusHandler{
		source:   source,
		interval: interval,
		metrics:  metrics,
		logger:   logger.Named("ws.status"),
	}
}

// HandleConnection upgrades the request and runs the feed until the client
// goes away.
func (h *StatusHandler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	replies := make(chan message, 8)
	done := make(chan struct{})
	go readLoop(conn, done, func(data []byte) {
		if reply, ok := h.handle(data); ok {
			select {
			case replies <- reply:
			default:
			}
		}
	})

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	ctx := c.Request.Context()
	if err := h.send(conn, message{Type: "status", Streams: h.source.Status(), Timestamp: time.Now().UnixMilli()}); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case reply := <-replies:
			if err := h.send(conn, reply); err != nil {
				return
			}
		case <-ticker.C:
			if err := h.send(conn, message{Type: "status", Streams: h.source.Status(), Timestamp: time.Now().UnixMilli()}); err != nil {
				h.logger.Debug("Status push failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := writeMessage(conn, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle processes one client message and returns the reply, if any.
func (h *StatusHandler) handle(data []byte) (message, bool) {
	var msg struct {
		Type         string          `json:"type"`
		Streams      []string        `json:"streams"`
		Notification json.RawMessage `json:"notification"`
	}
	if err := codec.Unmarshal(data, &msg); err != nil {
		return errorMessage("invalid message"), true
	}

	switch msg.Type {
	case "ping":
		return message{Type: "pong", Timestamp: time.Now().UnixMilli()}, true
	case "notify":
		n, err := utils.ValidateNotification(msg.Notification)
		if err != nil {
			return errorMessage(err.Error()), true
		}
		if err := h.source.SendNotification(packet.Notification(n), msg.Streams...); err != nil {
			return errorMessage(err.Error()), true
		}
		return message{Type: "queued", Timestamp: time.Now().UnixMilli()}, true
	default:
		return errorMessage("unknown message type"), true
	}
}

func (h *StatusHandler) send(conn *websocket.Conn, msg message) error {
	data, err := codec.Marshal(msg)
	if err != nil {
		return err
	}
	return writeMessage(conn, websocket.TextMessage, data)
}

func errorMessage(msg string) message {
	return message{Type: "error", Message: msg, Timestamp: time.Now().UnixMilli()}
}
