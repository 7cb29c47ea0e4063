package clients

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// wsWriteWait bounds a single JSON write to a page client.
const wsWriteWait = 10 * time.Second

// WSClient adapts a gorilla WebSocket connection to the Client interface.
// Gorilla connections allow only one concurrent writer, so sends are
// serialized through a mutex.
type WSClient struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewWSClient wraps a connection with a fresh client ID.
func NewWSClient(conn *websocket.Conn) *WSClient {
	return &WSClient{
		id:   uuid.NewString(),
		conn: conn,
	}
}

// ID returns the client's connection ID.
func (c *WSClient) ID() string {
	return c.id
}

// Send writes a JSON message to the page.
func (c *WSClient) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(v)
}
