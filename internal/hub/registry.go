package hub

import (
	"sync"

	"go.uber.org/zap"
)

// room is the set of clients joined to one document. Each room carries
// its own lock so that broadcast traffic in one document never blocks
// joins or leaves in another.
type room struct {
	documentID string
	mu         sync.RWMutex
	members    map[*Client]bool
	// closed is set under mu when the emptied room is about to be
	// dropped from the registry; a join racing the removal retries
	// against a fresh room instead of resurrecting this one.
	closed bool
}

// DisconnectNotifier is told when a client with a presence identity
// leaves its room, so a synthetic leave event can be announced to the
// remaining members. Implemented by the presence tracker.
type DisconnectNotifier interface {
	RemoveOnDisconnect(documentID, userID, username string)
}

// Registry maps document ids to rooms and owns join, leave and
// broadcast. Rooms are created lazily on first join and removed the
// moment their last member leaves; an empty room is never retained.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	logger *zap.Logger

	notifier DisconnectNotifier
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]*room),
		logger: logger,
	}
}

// SetDisconnectNotifier wires the presence tracker in after
// construction; the tracker itself broadcasts through this registry.
func (r *Registry) SetDisconnectNotifier(n DisconnectNotifier) {
	r.notifier = n
}

// Join adds c to the room for documentID, creating the room if absent.
// Joining a room the client is already a member of is a no-op. The
// registry lock is never held while waiting on a room lock, so a
// fan-out in one document cannot stall joins in another.
func (r *Registry) Join(documentID string, c *Client) {
	var already bool
	var size int
	for {
		r.mu.Lock()
		rm, ok := r.rooms[documentID]
		if !ok {
			rm = &room{documentID: documentID, members: make(map[*Client]bool)}
			r.rooms[documentID] = rm
		}
		r.mu.Unlock()

		rm.mu.Lock()
		if rm.closed {
			// Lost a race with the last member leaving; the registry
			// entry is gone or about to be. Start over with a new room.
			rm.mu.Unlock()
			continue
		}
		already = rm.members[c]
		rm.members[c] = true
		size = len(rm.members)
		rm.mu.Unlock()
		break
	}

	if !already {
		r.logger.Info("Client joined room",
			zap.String("documentId", documentID),
			zap.String("connId", c.ID),
			zap.String("userId", c.UserID),
			zap.Int("members", size))
	}
}

// Leave removes c from the room for documentID, dropping the room
// entirely once it is empty. If the client carried a presence identity
// the tracker is told, which announces the departure to the remaining
// members.
func (r *Registry) Leave(documentID string, c *Client) {
	r.mu.RLock()
	rm, ok := r.rooms[documentID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	rm.mu.Lock()
	_, member := rm.members[c]
	if member {
		delete(rm.members, c)
	}
	remaining := len(rm.members)
	// Marking the room closed before releasing its lock means no join
	// can slip a member in between here and the map delete below.
	if remaining == 0 {
		rm.closed = true
	}
	rm.mu.Unlock()

	if remaining == 0 {
		r.mu.Lock()
		if r.rooms[documentID] == rm {
			delete(r.rooms, documentID)
		}
		r.mu.Unlock()
	}

	if !member {
		return
	}

	r.logger.Info("Client left room",
		zap.String("documentId", documentID),
		zap.String("connId", c.ID),
		zap.String("userId", c.UserID),
		zap.Int("members", remaining))

	if c.UserID != "" && r.notifier != nil {
		r.notifier.RemoveOnDisconnect(documentID, c.UserID, c.Username)
	}
}

// BroadcastExcluding delivers an already serialized payload to every
// member of the room except exclude. Sends are non-blocking: a member
// whose buffer is full or whose transport is closed is skipped and left
// for the liveness monitor to reap. Returns the number of members the
// payload was queued for.
func (r *Registry) BroadcastExcluding(documentID string, payload []byte, exclude *Client) int {
	r.mu.RLock()
	rm, ok := r.rooms[documentID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()

	delivered := 0
	for member := range rm.members {
		if member == exclude {
			continue
		}
		if member.trySend(payload) {
			delivered++
		}
	}
	return delivered
}

// Broadcast is BroadcastExcluding keyed by connection id, for callers
// that hold an id rather than the *Client (the presence tracker).
func (r *Registry) Broadcast(documentID string, payload []byte, excludeConnID string) {
	r.mu.RLock()
	rm, ok := r.rooms[documentID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()

	for member := range rm.members {
		if member.ID == excludeConnID {
			continue
		}
		member.trySend(payload)
	}
}

// MemberCount reports the number of clients joined to documentID.
func (r *Registry) MemberCount(documentID string) int {
	r.mu.RLock()
	rm, ok := r.rooms[documentID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.members)
}

// TotalConnections reports the number of clients across all rooms.
func (r *Registry) TotalConnections() int {
	return len(r.clients())
}

// RoomCount reports the number of active rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// clients snapshots every client in every room. Used by the liveness
// monitor and shutdown.
func (r *Registry) clients() []*Client {
	r.mu.RLock()
	rooms := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.mu.RUnlock()

	var all []*Client
	for _, rm := range rooms {
		rm.mu.RLock()
		for member := range rm.members {
			all = append(all, member)
		}
		rm.mu.RUnlock()
	}
	return all
}
