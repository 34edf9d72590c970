package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	closeGraceWait = time.Second
)

// Client is one physical WebSocket session. It is owned by its
// connection handler; the registry and presence tracker only hold
// references to it.
type Client struct {
	ID         string
	UserID     string
	Username   string
	Avatar     string
	DocumentID string

	conn *websocket.Conn
	send chan []byte

	// alive is the liveness flag: set on pong or any inbound frame,
	// cleared each heartbeat tick. A client found cleared on the next
	// tick missed a full interval and is evicted.
	alive        atomic.Bool
	closed       atomic.Bool
	lastActivity atomic.Int64

	cleanup sync.Once
}

func newClient(conn *websocket.Conn, documentID string, userID, username, avatar string, sendBuffer int) *Client {
	c := &Client{
		ID:         uuid.NewString(),
		UserID:     userID,
		Username:   username,
		Avatar:     avatar,
		DocumentID: documentID,
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
	}
	c.alive.Store(true)
	c.touch()
	return c
}

// trySend queues payload without blocking. A full buffer or a closed
// transport drops the payload; the peer is left for the liveness
// monitor rather than stalling the broadcast.
func (c *Client) trySend(payload []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// markAlive records a sign of life from the transport.
func (c *Client) markAlive() {
	c.alive.Store(true)
}

func (c *Client) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity reports the last time a frame or pong arrived.
func (c *Client) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// ping sends a ping control frame. Concurrent use with the write pump
// is safe; gorilla permits WriteControl alongside other writes.
func (c *Client) ping() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// forceClose tears down the transport. The read pump unblocks with an
// error, which runs the handler's cleanup path.
func (c *Client) forceClose(code int, reason string) {
	if c.conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGraceWait))
	_ = c.conn.Close()
}

// writePump drains the send channel onto the wire. It exits when the
// channel is closed by cleanup or when a write fails, closing the
// transport either way.
func (c *Client) writePump() {
	defer func() {
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}()

	for payload := range c.send {
		if c.conn == nil {
			continue
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}

	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGraceWait))
	}
}
