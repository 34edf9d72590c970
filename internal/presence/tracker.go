// Package presence tracks ephemeral per-document user state: status,
// current activity and last-seen times. Nothing here survives the
// process; presence is advisory, not authoritative.
package presence

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"collab-service/internal/protocol"
)

// Broadcaster fans a serialized payload out to a document room,
// excluding the connection that produced it. Implemented by the hub
// registry.
type Broadcaster interface {
	Broadcast(documentID string, payload []byte, excludeConnID string)
}

type record struct {
	userID   string
	username string
	avatar   string
	status   string
	activity *protocol.Activity
	lastSeen time.Time
}

// table holds the presence records of one document. Like rooms, tables
// lock independently of each other.
type table struct {
	mu    sync.Mutex
	users map[string]*record
	// idle timers keyed by user; reset on every activity event, fired
	// timers flip online users to away.
	timers map[string]*time.Timer
}

// Tracker maintains (document, user) presence records and announces
// changes to the rest of the room.
type Tracker struct {
	mu   sync.RWMutex
	docs map[string]*table

	broadcaster Broadcaster
	idleTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

func NewTracker(broadcaster Broadcaster, idleTimeout time.Duration, logger *zap.Logger) *Tracker {
	if idleTimeout <= 0 {
		idleTimeout = 5 * time.Minute
	}
	return &Tracker{
		docs:        make(map[string]*table),
		broadcaster: broadcaster,
		idleTimeout: idleTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

func (t *Tracker) tableFor(documentID string, create bool) *table {
	if !create {
		t.mu.RLock()
		tb := t.docs[documentID]
		t.mu.RUnlock()
		return tb
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	tb, ok := t.docs[documentID]
	if !ok {
		tb = &table{
			users:  make(map[string]*record),
			timers: make(map[string]*time.Timer),
		}
		t.docs[documentID] = tb
	}
	return tb
}

// RecordActivity refreshes the user's last-seen timestamp and restarts
// the idle timer. An away user producing activity flips back to online,
// and the flip is announced to the whole room.
func (t *Tracker) RecordActivity(documentID, userID string) {
	tb := t.tableFor(documentID, false)
	if tb == nil {
		return
	}

	var wakeup *protocol.PresenceUpdate

	tb.mu.Lock()
	rec, ok := tb.users[userID]
	if ok {
		rec.lastSeen = t.now()
		if rec.status == protocol.StatusAway {
			rec.status = protocol.StatusOnline
			wakeup = t.updateFor(rec)
		}
	}
	t.resetIdleTimerLocked(tb, documentID, userID)
	tb.mu.Unlock()

	if wakeup != nil {
		t.announce(documentID, wakeup, "")
	}
}

// ApplyUpdate merges an explicit presence message into the table and
// re-broadcasts it to the room, excluding the sender. Updates for a
// user not yet recorded are treated as an implicit join, never
// rejected.
func (t *Tracker) ApplyUpdate(documentID string, update *protocol.PresenceUpdate, excludeConnID string) {
	if update.Action == protocol.ActionLeave {
		t.remove(documentID, update.UserID, update.Username, excludeConnID)
		return
	}

	tb := t.tableFor(documentID, true)

	tb.mu.Lock()
	rec, ok := tb.users[update.UserID]
	if !ok {
		rec = &record{userID: update.UserID}
		tb.users[update.UserID] = rec
	}
	if update.Username != "" {
		rec.username = update.Username
	}
	if update.Avatar != "" {
		rec.avatar = update.Avatar
	}
	if update.Status != "" {
		rec.status = update.Status
	} else if rec.status == "" {
		rec.status = protocol.StatusOnline
	}
	if update.CurrentActivity != nil {
		rec.activity = update.CurrentActivity
	}
	rec.lastSeen = t.now()
	t.resetIdleTimerLocked(tb, documentID, update.UserID)
	out := t.updateFor(rec)
	if update.Action != "" {
		out.Action = update.Action
	}
	tb.mu.Unlock()

	t.announce(documentID, out, excludeConnID)
}

// RemoveOnDisconnect drops the user's record and announces a synthetic
// leave to the remaining members. Called from the connection handler's
// cleanup path via the registry, so it runs after the departing client
// has already left the room.
func (t *Tracker) RemoveOnDisconnect(documentID, userID, username string) {
	t.remove(documentID, userID, username, "")
}

func (t *Tracker) remove(documentID, userID, username, excludeConnID string) {
	leave := &protocol.PresenceUpdate{
		UserID:   userID,
		Username: username,
		Status:   protocol.StatusOffline,
		Action:   protocol.ActionLeave,
	}

	tb := t.tableFor(documentID, false)
	if tb != nil {
		tb.mu.Lock()
		if rec, ok := tb.users[userID]; ok {
			if leave.Username == "" {
				leave.Username = rec.username
			}
			delete(tb.users, userID)
		}
		if timer, ok := tb.timers[userID]; ok {
			timer.Stop()
			delete(tb.timers, userID)
		}
		empty := len(tb.users) == 0
		tb.mu.Unlock()

		if empty {
			t.mu.Lock()
			// Re-check under the tracker lock; a concurrent join may
			// have repopulated the table.
			tb.mu.Lock()
			if len(tb.users) == 0 {
				delete(t.docs, documentID)
			}
			tb.mu.Unlock()
			t.mu.Unlock()
		}
	}

	t.announce(documentID, leave, excludeConnID)
}

// Snapshot lists the current presence records for a document. Sent to
// newly joined clients and exposed on the stats endpoint.
func (t *Tracker) Snapshot(documentID string) []protocol.PresenceUpdate {
	tb := t.tableFor(documentID, false)
	if tb == nil {
		return nil
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	out := make([]protocol.PresenceUpdate, 0, len(tb.users))
	for _, rec := range tb.users {
		out = append(out, *t.updateFor(rec))
	}
	return out
}

// Status reports the tracked status for a user, or offline when the
// user has no record.
func (t *Tracker) Status(documentID, userID string) string {
	tb := t.tableFor(documentID, false)
	if tb == nil {
		return protocol.StatusOffline
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()
	if rec, ok := tb.users[userID]; ok {
		return rec.status
	}
	return protocol.StatusOffline
}

// resetIdleTimerLocked restarts the user's idle-to-away timer. Caller
// holds tb.mu.
func (t *Tracker) resetIdleTimerLocked(tb *table, documentID, userID string) {
	if timer, ok := tb.timers[userID]; ok {
		timer.Stop()
	}
	tb.timers[userID] = time.AfterFunc(t.idleTimeout, func() {
		t.markAway(documentID, userID)
	})
}

// markAway flips an online user to away after the idle window passes
// with no activity. The transition is server-authoritative and is
// broadcast to every member.
func (t *Tracker) markAway(documentID, userID string) {
	tb := t.tableFor(documentID, false)
	if tb == nil {
		return
	}

	var out *protocol.PresenceUpdate

	tb.mu.Lock()
	if rec, ok := tb.users[userID]; ok && rec.status == protocol.StatusOnline {
		rec.status = protocol.StatusAway
		out = t.updateFor(rec)
	}
	tb.mu.Unlock()

	if out != nil {
		t.logger.Debug("User idled to away",
			zap.String("documentId", documentID),
			zap.String("userId", userID))
		t.announce(documentID, out, "")
	}
}

func (t *Tracker) updateFor(rec *record) *protocol.PresenceUpdate {
	return &protocol.PresenceUpdate{
		UserID:          rec.userID,
		Username:        rec.username,
		Status:          rec.status,
		Action:          protocol.ActionUpdate,
		Avatar:          rec.avatar,
		CurrentActivity: rec.activity,
	}
}

func (t *Tracker) announce(documentID string, update *protocol.PresenceUpdate, excludeConnID string) {
	payload, err := protocol.Encode(protocol.TypeUserPresence, documentID, update)
	if err != nil {
		t.logger.Error("Failed to encode presence update", zap.Error(err))
		return
	}
	t.broadcaster.Broadcast(documentID, payload, excludeConnID)
}
