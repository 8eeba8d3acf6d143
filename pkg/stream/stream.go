// Package stream delivers near-real-time notification events over
// server-sent events, one subscriber per connection.
//
// The stream is eventually consistent by construction: it polls storage on a
// fixed interval and pushes deltas, and every connection is force-closed
// after a hard lifetime cap so clients reconnect and re-sync. Within one
// connection envelopes are emitted in order; across reconnects no gap-free
// guarantee is made and clients reconcile via their own authoritative fetch.
package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"snapfeed/pkg/logger"
	"snapfeed/pkg/models"
	"snapfeed/pkg/telemetry"
)

// Storage is the query surface the stream needs.
type Storage interface {
	NotificationsSince(userID string, sinceTS int64) ([]models.Notification, error)
	CountUnreadNotifications(userID string) (int, error)
}

// Config tunes the per-connection timers. Zero values take the defaults
// below.
type Config struct {
	// PollInterval is how often storage is queried for new notifications.
	PollInterval time.Duration
	// UnreadInterval is how often an unread-count envelope is emitted.
	UnreadInterval time.Duration
	// MaxConnectionAge force-closes the connection so resources stay
	// bounded and clients re-sync.
	MaxConnectionAge time.Duration
	// HeartbeatEvery is the number of poll ticks between heartbeats.
	// Heartbeats piggyback on the poll loop rather than owning a timer.
	HeartbeatEvery int
}

const (
	defaultPollInterval   = 3 * time.Second
	defaultUnreadInterval = 10 * time.Second
	defaultMaxAge         = 5 * time.Minute
	defaultHeartbeatEvery = 10
)

func (c *Config) withDefaults() Config {
	out := *c
	if out.PollInterval <= 0 {
		out.PollInterval = defaultPollInterval
	}
	if out.UnreadInterval <= 0 {
		out.UnreadInterval = defaultUnreadInterval
	}
	if out.MaxConnectionAge <= 0 {
		out.MaxConnectionAge = defaultMaxAge
	}
	if out.HeartbeatEvery <= 0 {
		out.HeartbeatEvery = defaultHeartbeatEvery
	}
	return out
}

// Server serves notification streams.
type Server struct {
	store Storage
	cfg   Config
}

// NewServer returns a stream server reading from store.
func NewServer(store Storage, cfg Config) *Server {
	return &Server{store: store, cfg: cfg.withDefaults()}
}

// envelope is one typed frame on the stream.
type envelope struct {
	Type         string                   `json:"type"`
	Message      string                   `json:"message,omitempty"`
	Timestamp    string                   `json:"timestamp,omitempty"`
	Notification *models.NotificationView `json:"notification,omitempty"`
	Count        *int                     `json:"count,omitempty"`
}

// Serve handles one subscriber connection for the given verified user. It
// blocks until the client disconnects, the lifetime cap fires, or the server
// shuts down via the request context.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("response writer does not support flushing")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(env envelope) bool {
		b, err := json.Marshal(env)
		if err != nil {
			return true
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			// client went away; the context cancel arrives shortly
			return false
		}
		flusher.Flush()
		telemetry.StreamEnvelopes.WithLabelValues(env.Type).Inc()
		return true
	}

	telemetry.StreamConnections.Inc()
	defer telemetry.StreamConnections.Dec()
	logger.Info("stream_connected", "user", userID)
	defer logger.Info("stream_closed", "user", userID)

	send(envelope{
		Type:      "connected",
		Message:   "notification stream established",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})

	// Both tickers belong to this connection and die with it. Leaking
	// either would keep its query load alive indefinitely.
	poll := time.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()
	unread := time.NewTicker(s.cfg.UnreadInterval)
	defer unread.Stop()
	lifetime := time.NewTimer(s.cfg.MaxConnectionAge)
	defer lifetime.Stop()

	lastCheck := time.Now().UTC().UnixNano()
	ticks := 0

	for {
		select {
		case <-r.Context().Done():
			return nil
		case <-lifetime.C:
			// hard cap: the client reconnects and re-syncs missed state
			logger.Info("stream_lifetime_cap", "user", userID)
			return nil
		case <-poll.C:
			ticks++
			notifs, err := s.store.NotificationsSince(userID, lastCheck)
			if err != nil {
				// a failed poll is not fatal to the stream
				logger.Warn("stream_poll_failed", "user", userID, "error", err)
				if !send(envelope{Type: "error", Message: "error checking for notifications"}) {
					return nil
				}
				continue
			}
			if len(notifs) > 0 {
				for _, n := range notifs {
					v := n.View()
					if !send(envelope{Type: "new-notification", Notification: &v}) {
						return nil
					}
				}
				lastCheck = time.Now().UTC().UnixNano()
			}
			if ticks%s.cfg.HeartbeatEvery == 0 {
				if !send(envelope{Type: "heartbeat", Timestamp: time.Now().UTC().Format(time.RFC3339)}) {
					return nil
				}
			}
		case <-unread.C:
			count, err := s.store.CountUnreadNotifications(userID)
			if err != nil {
				logger.Warn("stream_unread_count_failed", "user", userID, "error", err)
				continue
			}
			if !send(envelope{Type: "unread-count", Count: &count}) {
				return nil
			}
		}
	}
}
