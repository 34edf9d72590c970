// Package hub is the real-time collaboration core: it groups WebSocket
// connections into per-document rooms, routes content, chat and
// presence frames between members, and reaps dead transports.
package hub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"collab-service/internal/auth"
	"collab-service/internal/config"
	"collab-service/internal/middleware"
	"collab-service/internal/presence"
	"collab-service/internal/protocol"
	"collab-service/internal/ratelimit"
	"collab-service/internal/sink"
)

const authTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub owns the connection lifecycle: authenticate, join, message loop,
// leave. Everything it composes is injected; nothing is recovered from
// globals.
type Hub struct {
	registry   *Registry
	tracker    *presence.Tracker
	verifier   auth.Verifier
	snapshots  sink.Sink
	msgLimiter *ratelimit.Limiter
	logger     *zap.Logger
	cfg        config.Hub

	started  time.Time
	shutdown bool
	mu       sync.Mutex
	wg       sync.WaitGroup
}

func New(
	registry *Registry,
	tracker *presence.Tracker,
	verifier auth.Verifier,
	snapshots sink.Sink,
	msgLimiter *ratelimit.Limiter,
	cfg config.Hub,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		registry:   registry,
		tracker:    tracker,
		verifier:   verifier,
		snapshots:  snapshots,
		msgLimiter: msgLimiter,
		logger:     logger,
		cfg:        cfg,
		started:    time.Now(),
	}
}

// Registry exposes the room manager for observability handlers.
func (h *Hub) Registry() *Registry { return h.registry }

// Uptime reports how long the hub has been running.
func (h *Hub) Uptime() time.Duration { return time.Since(h.started) }

func (h *Hub) accepting() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.shutdown
}

// HandleWebSocket authenticates the handshake, upgrades the connection
// and joins it to the room for the document in the path. The request
// goroutine becomes the connection's read loop until the peer goes
// away.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	if !h.accepting() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Shutting down"})
		return
	}

	documentID := c.Param("documentId")
	if documentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Document ID required"})
		return
	}

	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), authTimeout)
	defer cancel()

	principal, err := h.verifier.Verify(ctx, token)
	if err != nil {
		h.logger.Warn("Rejected handshake",
			zap.String("documentId", documentID),
			zap.String("clientIp", c.ClientIP()),
			zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	client := newClient(conn, documentID, principal.UserID, principal.Username, principal.Avatar, h.cfg.SendBufferSize)

	h.registry.Join(documentID, client)
	middleware.RecordWebSocketConnection()

	// Announce the newcomer to the room and hand the newcomer the
	// current presence table so it does not join blind.
	h.tracker.ApplyUpdate(documentID, &protocol.PresenceUpdate{
		UserID:   principal.UserID,
		Username: principal.Username,
		Avatar:   principal.Avatar,
		Status:   protocol.StatusOnline,
		Action:   protocol.ActionJoin,
	}, client.ID)
	h.sendPresenceSnapshot(client)

	h.wg.Add(1)
	go client.writePump()
	h.readPump(client)
}

func (h *Hub) sendPresenceSnapshot(client *Client) {
	for _, update := range h.tracker.Snapshot(client.DocumentID) {
		if update.UserID == client.UserID {
			continue
		}
		payload, err := protocol.Encode(protocol.TypeUserPresence, client.DocumentID, update)
		if err != nil {
			continue
		}
		client.trySend(payload)
	}
}

func (h *Hub) readPump(client *Client) {
	defer func() {
		h.closeClient(client)
		h.wg.Done()
	}()

	client.conn.SetReadLimit(h.cfg.MaxMessageSize)
	client.conn.SetPongHandler(func(string) error {
		client.markAlive()
		client.touch()
		return nil
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("WebSocket read error",
					zap.String("connId", client.ID),
					zap.Error(err))
			}
			return
		}

		client.markAlive()
		client.touch()

		// A silent throttle: over-limit frames are dropped without a
		// response so abusive traffic is not amplified.
		if !h.msgLimiter.TryAcquire(client.ID) {
			middleware.RecordMessageThrottled()
			continue
		}

		msg, err := protocol.Decode(raw)
		if err != nil {
			middleware.RecordMessageRejected()
			h.logger.Warn("Dropping malformed frame",
				zap.String("connId", client.ID),
				zap.String("documentId", client.DocumentID),
				zap.Error(err))
			continue
		}

		// A connection belongs to exactly one room; frames aimed at a
		// different document are a protocol violation and are dropped.
		if msg.DocumentID != client.DocumentID {
			middleware.RecordMessageRejected()
			h.logger.Warn("Dropping frame for foreign document",
				zap.String("connId", client.ID),
				zap.String("joined", client.DocumentID),
				zap.String("addressed", msg.DocumentID))
			continue
		}

		h.tracker.RecordActivity(client.DocumentID, client.UserID)
		h.dispatch(client, raw, msg)
	}
}

func (h *Hub) dispatch(client *Client, raw []byte, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeDocumentUpdate:
		// The validated frame is broadcast as received; serializing once
		// and reusing the bytes for every recipient.
		h.registry.BroadcastExcluding(client.DocumentID, raw, client)
		middleware.RecordMessageRouted(string(msg.Type))

		content := msg.Document.Content
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			h.snapshots.Store(ctx, client.DocumentID, content)
		}()

	case protocol.TypeChatMessage:
		chat := msg.Chat
		if chat.ID == "" {
			chat.ID = uuid.NewString()
		}
		if chat.CreatedAt.IsZero() {
			chat.CreatedAt = time.Now().UTC()
		}
		payload, err := protocol.Encode(protocol.TypeChatMessage, client.DocumentID, chat)
		if err != nil {
			h.logger.Error("Failed to encode chat message", zap.Error(err))
			return
		}
		h.registry.BroadcastExcluding(client.DocumentID, payload, client)
		middleware.RecordMessageRouted(string(msg.Type))

	case protocol.TypeUserPresence:
		h.tracker.ApplyUpdate(client.DocumentID, msg.Presence, client.ID)
		middleware.RecordMessageRouted(string(msg.Type))
	}
}

// closeClient runs the cleanup path exactly once: leave the room (which
// announces the departure through the presence tracker), release the
// send channel and limiter state, close the transport.
func (h *Hub) closeClient(client *Client) {
	client.cleanup.Do(func() {
		h.registry.Leave(client.DocumentID, client)
		client.closed.Store(true)
		close(client.send)
		h.msgLimiter.Forget(client.ID)
		if client.conn != nil {
			_ = client.conn.Close()
		}
		middleware.RecordWebSocketDisconnection()
	})
}

// Shutdown stops accepting handshakes, closes every live socket and
// waits for the connection handlers to drain, up to timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.mu.Lock()
	h.shutdown = true
	h.mu.Unlock()

	for _, client := range h.registry.clients() {
		client.forceClose(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("Hub shutdown complete")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("Hub shutdown timed out; some connections may linger")
		return context.DeadlineExceeded
	}
}
