package ws

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
	"github.com/GriffinCanCode/gazeflow/internal/domain/process"
	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/monitoring"
)

const defaultJPEGQuality = 75

type preview struct {
	title string
	frame *packet.Frame
	seq   uint64
}

// PreviewHub keeps the latest display frame of every stream and fans it
// out to WebSocket subscribers. It is the Viewer behind video_display steps
// when the API is enabled.
type PreviewHub struct {
	quality int
	metrics *monitoring.Metrics
	logger  *zap.Logger

	mu     sync.Mutex
	latest map[string]*preview
	subs   map[string]map[chan struct{}]struct{}
}

var _ process.Viewer = (*PreviewHub)(nil)

// NewPreviewHub creates an empty hub.
func NewPreviewHub(metrics *monitoring.Metrics, logger *zap.Logger) *PreviewHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreviewHub{
		quality: defaultJPEGQuality,
		metrics: metrics,
		logger:  logger.Named("ws.preview"),
		latest:  make(map[string]*preview),
		subs:    make(map[string]map[chan struct{}]struct{}),
	}
}

// Show stores a gray copy of frame as the stream's latest preview and wakes
// its subscribers.
func (h *PreviewHub) Show(stream, title string, frame *packet.Frame) {
	if frame == nil {
		return
	}
	gray, err := frame.ToGray()
	if err != nil {
		h.logger.Debug("Dropping preview frame", zap.String("stream", stream), zap.Error(err))
		return
	}
	cp := &packet.Frame{
		Width:  gray.Width,
		Height: gray.Height,
		Format: packet.ColorGray,
		Data:   append([]byte(nil), gray.Data[:gray.Width*gray.Height]...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.latest[stream]
	if !ok {
		p = &preview{}
		h.latest[stream] = p
	}
	p.title, p.frame = title, cp
	p.seq++
	for ch := range h.subs[stream] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Latest returns the stream's most recent preview encoded as JPEG.
func (h *PreviewHub) Latest(stream string) (title string, data []byte, ok bool, err error) {
	h.mu.Lock()
	p, ok := h.latest[stream]
	var frame *packet.Frame
	if ok {
		title, frame = p.title, p.frame
	}
	h.mu.Unlock()
	if !ok {
		return "", nil, false, nil
	}

	data, err = EncodeJPEG(frame, h.quality)
	return title, data, true, err
}

// Subscribe returns a channel signalled on every new preview of stream and
// a function that ends the subscription.
func (h *PreviewHub) Subscribe(stream string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	if h.subs[stream] == nil {
		h.subs[stream] = make(map[chan struct{}]struct{})
	}
	h.subs[stream][ch] = struct{}{}
	if _, ok := h.latest[stream]; ok {
		ch <- struct{}{}
	}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs[stream], ch)
		h.mu.Unlock()
	}
}

// EncodeJPEG encodes a gray frame.
func EncodeJPEG(frame *packet.Frame, quality int) ([]byte, error) {
	if frame.Format != packet.ColorGray {
		return nil, fmt.Errorf("%w: %q", packet.ErrUnsupportedColorFormat, string(frame.Format))
	}
	img := &image.Gray{
		Pix:    frame.Data,
		Stride: frame.Width,
		Rect:   image.Rect(0, 0, frame.Width, frame.Height),
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HandleConnection streams one stream's previews as binary JPEG messages.
func (h *PreviewHub) HandleConnection(c *gin.Context) {
	stream := c.Param("name")
	if stream == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "stream name is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	updates, cancel := h.Subscribe(stream)
	defer cancel()

	done := make(chan struct{})
	go readLoop(conn, done, nil)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-updates:
			_, data, ok, err := h.Latest(stream)
			if err != nil {
				h.logger.Warn("Preview encode failed", zap.String("stream", stream), zap.Error(err))
				continue
			}
			if !ok {
				continue
			}
			if err := writeMessage(conn, websocket.BinaryMessage, data); err != nil {
				return
			}
		case <-ping.C:
			if err := writeMessage(conn, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
