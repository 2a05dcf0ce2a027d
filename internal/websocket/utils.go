package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Conn serialises writes to a gorilla connection. Session hooks fire from
// timer goroutines while the read loop answers actions, and gorilla allows
// only one concurrent writer.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// Wrap returns a Conn with read deadlines refreshed by pong frames.
func Wrap(ws *websocket.Conn) *Conn {
	ws.SetReadLimit(1 << 20)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &Conn{ws: ws}
}

// WriteJSON sends an event with a write deadline.
func (c *Conn) WriteJSON(event Event, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(ResponsePayload{Event: event, Data: data})
}

// WriteError sends a typed error event.
func (c *Conn) WriteError(code, msg string) error {
	return c.WriteJSON(EventError, ErrorData{Code: code, Message: msg})
}

// ReadJSON reads and decodes one client message.
func (c *Conn) ReadJSON(v interface{}) error {
	return c.ws.ReadJSON(v)
}

// KeepAlive pings the peer until done closes or a write fails.
func (c *Conn) KeepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Close sends a normal close frame and closes the socket.
func (c *Conn) Close() error {
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.mu.Unlock()
	return c.ws.Close()
}
