// Package sockethub implements the low-latency push path: per-user logical
// rooms of live socket connections with fire-and-forget broadcast.
//
// The hub is a latency optimization layered on top of the poll-based
// notification stream, never the sole delivery mechanism: there is no
// acknowledgment, retry or persistence, and events for users without a live
// room are silently dropped. All room and membership state is owned by a
// single goroutine consuming an ops channel, so join/leave/broadcast are
// applied in arrival order without locking.
package sockethub

import (
	"context"
	"encoding/json"

	"snapfeed/pkg/logger"
	"snapfeed/pkg/telemetry"
)

// Outbound event names pushed to room members.
const (
	EventNewNotification      = "new-notification"
	EventNotificationRead     = "notification-read"
	EventAllNotificationsRead = "all-notifications-read"
)

// Subscriber is one live socket connection. Deliver must not block: a
// subscriber that cannot keep up reports false and the event is dropped for
// it.
type Subscriber interface {
	Deliver(event string, data json.RawMessage) bool
}

// Hub maintains user rooms and the connected-user membership set.
type Hub struct {
	ops chan func()
	// stopped is closed when Run returns; do must not block on a hub
	// that no longer drains ops.
	stopped chan struct{}

	// rooms maps userID to the sockets joined to room "user-<id>".
	rooms map[string]map[Subscriber]struct{}
	// byConn tracks which user room each socket currently holds; a
	// connection belongs to at most one user room at a time.
	byConn map[Subscriber]string
	// connected marks users with a live room, maintained by explicit
	// join/leave and by connection teardown.
	connected map[string]struct{}
}

// New returns an idle hub; call Run to start it.
func New() *Hub {
	return &Hub{
		ops:       make(chan func(), 256),
		stopped:   make(chan struct{}),
		rooms:     make(map[string]map[Subscriber]struct{}),
		byConn:    make(map[Subscriber]string),
		connected: make(map[string]struct{}),
	}
}

// Run consumes hub operations until ctx is cancelled. All state mutation
// happens on this goroutine.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-h.ops:
			op()
		}
	}
}

// do runs fn on the hub goroutine and waits for it to complete. Calls made
// after Run has exited (connection teardown racing shutdown) return without
// running fn.
func (h *Hub) do(fn func()) {
	done := make(chan struct{})
	op := func() {
		fn()
		close(done)
	}
	select {
	case h.ops <- op:
	case <-h.stopped:
		return
	}
	select {
	case <-done:
	case <-h.stopped:
	}
}

// Join moves sub into userID's room, leaving any room it previously held,
// and marks the user connected.
func (h *Hub) Join(sub Subscriber, userID string) {
	h.do(func() {
		if prev, ok := h.byConn[sub]; ok && prev != userID {
			h.removeFromRoom(sub, prev)
			if len(h.rooms[prev]) == 0 {
				delete(h.connected, prev)
			}
		}
		room := h.rooms[userID]
		if room == nil {
			room = make(map[Subscriber]struct{})
			h.rooms[userID] = room
		}
		if _, ok := room[sub]; !ok {
			room[sub] = struct{}{}
			telemetry.SocketRoomMembers.Inc()
		}
		h.byConn[sub] = userID
		h.connected[userID] = struct{}{}
		logger.Info("room_joined", "user", userID, "sockets", len(room))
	})
}

// Leave removes sub from userID's room and the user from the membership set.
func (h *Hub) Leave(sub Subscriber, userID string) {
	h.do(func() {
		h.removeFromRoom(sub, userID)
		delete(h.connected, userID)
		logger.Info("room_left", "user", userID)
	})
}

// Disconnect tears down all room state for a closed connection. When the
// user's room empties out, the user is no longer marked connected.
func (h *Hub) Disconnect(sub Subscriber) {
	h.do(func() {
		userID, ok := h.byConn[sub]
		if !ok {
			return
		}
		h.removeFromRoom(sub, userID)
		if len(h.rooms[userID]) == 0 {
			delete(h.connected, userID)
		}
	})
}

// must be called on the hub goroutine
func (h *Hub) removeFromRoom(sub Subscriber, userID string) {
	room := h.rooms[userID]
	if room == nil {
		delete(h.byConn, sub)
		return
	}
	if _, ok := room[sub]; ok {
		delete(room, sub)
		telemetry.SocketRoomMembers.Dec()
	}
	if len(room) == 0 {
		delete(h.rooms, userID)
	}
	if h.byConn[sub] == userID {
		delete(h.byConn, sub)
	}
}

// SendNotification broadcasts a new-notification event to every socket in
// userID's room if and only if the user is currently marked connected.
// Offline users rely on the store-and-poll path; the event is dropped for
// them. Returns the number of sockets the event was handed to.
func (h *Hub) SendNotification(userID string, data json.RawMessage) int {
	delivered := 0
	h.do(func() {
		if _, ok := h.connected[userID]; !ok {
			// stale membership between a disconnect and its cleanup, or
			// the user was never online: drop
			telemetry.SocketBroadcasts.WithLabelValues(EventNewNotification, "dropped").Inc()
			logger.Debug("notification_dropped_offline", "user", userID)
			return
		}
		delivered = h.broadcast(userID, nil, EventNewNotification, data)
	})
	return delivered
}

// RelayNotificationRead tells every *other* socket in the user's room that
// one notification was read, keeping multi-device sessions consistent
// without a round-trip through storage.
func (h *Hub) RelayNotificationRead(sender Subscriber, userID, notificationID string) {
	data, _ := json.Marshal(map[string]string{"notificationId": notificationID})
	h.do(func() {
		h.broadcast(userID, sender, EventNotificationRead, data)
	})
}

// RelayAllNotificationsRead is RelayNotificationRead for a mark-all action.
func (h *Hub) RelayAllNotificationsRead(sender Subscriber, userID string) {
	h.do(func() {
		h.broadcast(userID, sender, EventAllNotificationsRead, nil)
	})
}

// Connected reports whether userID is currently marked connected.
func (h *Hub) Connected(userID string) bool {
	var ok bool
	h.do(func() {
		_, ok = h.connected[userID]
	})
	return ok
}

// must be called on the hub goroutine
func (h *Hub) broadcast(userID string, exclude Subscriber, event string, data json.RawMessage) int {
	delivered := 0
	for sub := range h.rooms[userID] {
		if sub == exclude {
			continue
		}
		if sub.Deliver(event, data) {
			delivered++
			telemetry.SocketBroadcasts.WithLabelValues(event, "delivered").Inc()
		} else {
			telemetry.SocketBroadcasts.WithLabelValues(event, "dropped").Inc()
		}
	}
	return delivered
}
