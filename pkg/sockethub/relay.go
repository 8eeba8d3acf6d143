package sockethub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"snapfeed/pkg/logger"
	"snapfeed/pkg/models"
)

// Relay is the API server's client side of the broadcast socket: it dials
// the socket server once and emits send-notification frames as rows are
// created. Delivery is best-effort; a broken socket is re-dialed on the next
// push rather than retried in a loop.
type Relay struct {
	url string

	mu   sync.Mutex
	ws   *websocket.Conn
	dial func(url string) (*websocket.Conn, error)
}

// NewRelay returns a relay targeting the socket server's websocket URL,
// e.g. ws://127.0.0.1:9081/socket. The connection is established lazily.
func NewRelay(url string) *Relay {
	return &Relay{
		url: url,
		dial: func(url string) (*websocket.Conn, error) {
			d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
			ws, _, err := d.Dial(url, nil)
			return ws, err
		},
	}
}

// NotifyUser pushes one notification toward the recipient's room. Failures
// are logged and swallowed: the stream endpoint remains the durable path.
func (r *Relay) NotifyUser(userID string, notification models.NotificationView) {
	data := map[string]any{
		"userId":       userID,
		"notification": notification,
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	f := frame{Event: eventSendNotification, Data: raw}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.write(f); err != nil {
		// one reconnect attempt per push, then give up until the next one
		r.reset()
		if err = r.write(f); err != nil {
			logger.Warn("relay_push_failed", "user", userID, "error", err)
			return
		}
	}
	logger.Debug("relay_pushed", "user", userID, "id", notification.ID)
}

// write sends the frame over the current connection, dialing if needed.
// Callers hold r.mu.
func (r *Relay) write(f frame) error {
	if r.ws == nil {
		ws, err := r.dial(r.url)
		if err != nil {
			return err
		}
		r.ws = ws
	}
	_ = r.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := r.ws.WriteJSON(&f); err != nil {
		r.reset()
		return err
	}
	return nil
}

// reset drops the current connection. Callers hold r.mu.
func (r *Relay) reset() {
	if r.ws != nil {
		_ = r.ws.Close()
		r.ws = nil
	}
}

// Close shuts the relay's connection down.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
}
