package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is enforced by the CORS middleware
	},
}

// message is the envelope exchanged on the status feed.
type message struct {
	Type         string         `json:"type"`
	Streams      any            `json:"streams,omitempty"`
	Notification map[string]any `json:"notification,omitempty"`
	Message      string         `json:"message,omitempty"`
	Timestamp    int64          `json:"timestamp,omitempty"`
}

// readLoop delivers client messages until the connection fails, then
// closes done.
func readLoop(conn *websocket.Conn, done chan<- struct{}, onMessage func([]byte)) {
	defer close(done)
	conn.SetReadLimit(maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if onMessage != nil {
			onMessage(data)
		}
	}
}

func writeMessage(conn *websocket.Conn, kind int, data []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(kind, data)
}
