package hub

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Heartbeat is the liveness monitor. Every interval it pings each
// registered client and evicts the ones that never answered the
// previous ping. A client therefore survives as long as a pong (or any
// inbound frame) arrives within one full interval, and a missed ping
// costs it the connection on the following tick, not immediately.
type Heartbeat struct {
	registry *Registry
	interval time.Duration
	logger   *zap.Logger

	// evict is overridable in tests; by default it force-closes the
	// transport, which routes through the handler's cleanup path.
	evict func(*Client)
}

func NewHeartbeat(registry *Registry, interval time.Duration, logger *zap.Logger) *Heartbeat {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	hb := &Heartbeat{
		registry: registry,
		interval: interval,
		logger:   logger,
	}
	hb.evict = func(c *Client) {
		c.forceClose(websocket.CloseGoingAway, "liveness timeout")
	}
	return hb
}

// Run ticks until ctx is cancelled. It keeps running even when every
// room is idle; this is the only way half-open transports get detected.
func (hb *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(hb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb.sweep()
		}
	}
}

// sweep is one heartbeat tick: clients still pending from the previous
// tick are evicted, everyone else is marked pending and pinged.
func (hb *Heartbeat) sweep() {
	for _, c := range hb.registry.clients() {
		if !c.alive.Load() {
			hb.logger.Warn("Evicting unresponsive client",
				zap.String("connId", c.ID),
				zap.String("documentId", c.DocumentID),
				zap.String("userId", c.UserID))
			hb.evict(c)
			continue
		}

		c.alive.Store(false)
		if err := c.ping(); err != nil {
			hb.logger.Debug("Ping failed",
				zap.String("connId", c.ID),
				zap.Error(err))
		}
	}
}
