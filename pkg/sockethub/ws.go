package sockethub

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/time/rate"

	"snapfeed/pkg/logger"
)

// Inbound event names accepted from clients.
const (
	eventJoinUserRoom             = "join-user-room"
	eventLeaveUserRoom            = "leave-user-room"
	eventSendNotification         = "send-notification"
	eventMarkNotificationRead     = "mark-notification-read"
	eventMarkAllNotificationsRead = "mark-all-notifications-read"
)

// frame is the wire envelope for both directions: a named event plus a small
// JSON payload.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// payload is the inbound frame body; notificationId is present only on
// mark-notification-read.
type payload struct {
	UserID         string `json:"userId"`
	NotificationID string `json:"notificationId,omitempty"`
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 45 * time.Second
	maxFrameBytes  = 16 * 1024
	outboundBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// cross-origin checks happen at the edge; the hub only sees opaque
	// user ids
	CheckOrigin: func(r *http.Request) bool { return true },
}

// conn is one websocket attached to the hub.
type conn struct {
	ws  *websocket.Conn
	hub *Hub
	out chan frame
	// ingress guard: a connection flooding events is closed, not throttled
	// per event
	limiter *rate.Limiter
}

// Deliver queues an outbound event; it never blocks. A full buffer means the
// socket cannot keep up and the event is dropped for it.
func (c *conn) Deliver(event string, data json.RawMessage) bool {
	select {
	case c.out <- frame{Event: event, Data: data}:
		return true
	default:
		return false
	}
}

// ServeWS upgrades an HTTP request to a hub connection.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws_upgrade_failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c := &conn{
		ws:      ws,
		hub:     hub,
		out:     make(chan frame, outboundBuffer),
		limiter: rate.NewLimiter(rate.Limit(50), 100),
	}
	logger.Info("socket_connected", "remote", r.RemoteAddr)
	go c.writePump()
	go c.readPump()
}

func (c *conn) readPump() {
	defer func() {
		c.hub.Disconnect(c)
		close(c.out)
		_ = c.ws.Close()
		logger.Info("socket_disconnected", "remote", c.ws.RemoteAddr().String())
	}()
	c.ws.SetReadLimit(maxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("socket_read_failed", "error", err)
			}
			return
		}
		if !c.limiter.Allow() {
			logger.Warn("socket_rate_limited", "remote", c.ws.RemoteAddr().String())
			return
		}
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			logger.Warn("socket_bad_frame", "error", err)
			continue
		}
		c.dispatch(f)
	}
}

func (c *conn) dispatch(f frame) {
	var p payload
	if len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, &p); err != nil {
			logger.Warn("socket_bad_payload", "event", f.Event, "error", err)
			return
		}
	}
	if p.UserID == "" {
		logger.Warn("socket_missing_user", "event", f.Event)
		return
	}
	switch f.Event {
	case eventJoinUserRoom:
		c.hub.Join(c, p.UserID)
	case eventLeaveUserRoom:
		c.hub.Leave(c, p.UserID)
	case eventSendNotification:
		c.hub.SendNotification(p.UserID, f.Data)
	case eventMarkNotificationRead:
		c.hub.RelayNotificationRead(c, p.UserID, p.NotificationID)
	case eventMarkAllNotificationsRead:
		c.hub.RelayAllNotificationsRead(c, p.UserID)
	default:
		logger.Warn("socket_unknown_event", "event", f.Event)
	}
}

func (c *conn) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case f, ok := <-c.out:
			if !ok {
				_ = c.ws.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			buf := bytebufferpool.Get()
			enc := json.NewEncoder(buf)
			if err := enc.Encode(&f); err != nil {
				bytebufferpool.Put(buf)
				continue
			}
			err := c.ws.WriteMessage(websocket.TextMessage, buf.B)
			bytebufferpool.Put(buf)
			if err != nil {
				return
			}
		case <-ping.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
