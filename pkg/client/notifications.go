package client

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"snapfeed/pkg/logger"
	"snapfeed/pkg/models"
)

// ConnState is the stream connection state exposed to the UI.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Reconnect pacing: a cleanly closed stream (the server's lifetime cap) is
// re-dialed quickly, a failed one backs off a little longer.
const (
	reconnectAfterClose  = 3 * time.Second
	reconnectAfterError  = 5 * time.Second
	fetchThrottle        = time.Second
	notificationPageSize = 20
)

// NotificationController maintains a live local view of the subject's
// notifications: an SSE subscription for deltas plus throttled authoritative
// fetches for reconciliation. All exported methods are safe for concurrent
// use.
type NotificationController struct {
	api *API

	mu            sync.Mutex
	state         ConnState
	notifications []models.NotificationView
	seen          map[string]struct{}
	unread        int
	page          int
	hasMore       bool
	lastFetch     time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewNotificationController returns a stopped controller bound to api.
func NewNotificationController(api *API) *NotificationController {
	return &NotificationController{
		api:  api,
		seen: make(map[string]struct{}),
		page: 1,
	}
}

// Start connects the stream and performs the initial fetch. It returns
// immediately; the subscription runs until Stop or ctx cancellation.
func (c *NotificationController) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		_ = c.Refresh(ctx)
		c.run(ctx)
	}()
}

// Stop tears the subscription down and waits for the run loop to exit.
func (c *NotificationController) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// State reports the current stream connection state.
func (c *NotificationController) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Notifications returns a copy of the local notification list, newest first.
func (c *NotificationController) Notifications() []models.NotificationView {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.NotificationView, len(c.notifications))
	copy(out, c.notifications)
	return out
}

// UnreadCount returns the local unread counter.
func (c *NotificationController) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

// HasMore reports whether older pages remain on the server.
func (c *NotificationController) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

func (c *NotificationController) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// run dials the stream in a loop, backing off between attempts.
func (c *NotificationController) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}
		c.setState(StateConnecting)
		err := c.subscribe(ctx)
		c.setState(StateDisconnected)

		delay := reconnectAfterClose
		if err != nil {
			logger.Warn("notification_stream_error", "error", err)
			delay = reconnectAfterError
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// subscribe holds one SSE connection open and applies its envelopes. A nil
// return means the server closed the stream cleanly.
func (c *NotificationController) subscribe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.api.BaseURL+"/v1/notifications/stream", nil)
	if err != nil {
		return err
	}
	c.api.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	// no client timeout here, the server caps connection lifetime itself
	httpClient := &http.Client{}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &streamStatusError{status: resp.StatusCode}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var env struct {
			Type         string                   `json:"type"`
			Notification *models.NotificationView `json:"notification"`
			Count        *int                     `json:"count"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &env); err != nil {
			continue
		}
		c.apply(env.Type, env.Notification, env.Count)
	}
	if ctx.Err() != nil {
		return nil
	}
	return scanner.Err()
}

type streamStatusError struct{ status int }

func (e *streamStatusError) Error() string {
	return "stream rejected with status " + strconv.Itoa(e.status)
}

// apply folds one stream envelope into local state.
func (c *NotificationController) apply(typ string, n *models.NotificationView, count *int) {
	switch typ {
	case "connected":
		c.setState(StateConnected)
	case "new-notification":
		if n == nil {
			return
		}
		c.mu.Lock()
		if _, dup := c.seen[n.ID]; !dup {
			c.seen[n.ID] = struct{}{}
			c.notifications = append([]models.NotificationView{*n}, c.notifications...)
			if !n.IsRead {
				c.unread++
			}
		}
		c.mu.Unlock()
	case "unread-count":
		if count == nil {
			return
		}
		c.mu.Lock()
		c.unread = *count
		c.mu.Unlock()
	case "heartbeat", "error":
		// keepalive and transient poll failures need no local action
	}
}

// Refresh replaces local state with the first page from the server. Calls
// within the throttle window are coalesced into a no-op.
func (c *NotificationController) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if time.Since(c.lastFetch) < fetchThrottle {
		c.mu.Unlock()
		return nil
	}
	c.lastFetch = time.Now()
	c.mu.Unlock()

	pg, err := c.api.ListNotifications(ctx, 1, notificationPageSize)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.notifications = pg.Notifications
	c.seen = make(map[string]struct{}, len(pg.Notifications))
	for _, n := range pg.Notifications {
		c.seen[n.ID] = struct{}{}
	}
	c.unread = pg.UnreadCount
	c.page = 1
	c.hasMore = pg.Pagination.HasMore
	c.mu.Unlock()
	return nil
}

// LoadMore appends the next page of older notifications.
func (c *NotificationController) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if !c.hasMore {
		c.mu.Unlock()
		return nil
	}
	next := c.page + 1
	c.mu.Unlock()

	pg, err := c.api.ListNotifications(ctx, next, notificationPageSize)
	if err != nil {
		return err
	}
	c.mu.Lock()
	for _, n := range pg.Notifications {
		if _, dup := c.seen[n.ID]; dup {
			continue
		}
		c.seen[n.ID] = struct{}{}
		c.notifications = append(c.notifications, n)
	}
	c.page = next
	c.hasMore = pg.Pagination.HasMore
	c.mu.Unlock()
	return nil
}

// MarkRead optimistically marks one notification read locally, then
// persists. On failure the local state is reconciled with a refresh.
func (c *NotificationController) MarkRead(ctx context.Context, id string) error {
	c.mu.Lock()
	for i := range c.notifications {
		if c.notifications[i].ID == id && !c.notifications[i].IsRead {
			c.notifications[i].IsRead = true
			if c.unread > 0 {
				c.unread--
			}
			break
		}
	}
	c.mu.Unlock()

	if err := c.api.MarkNotificationRead(ctx, id, true); err != nil {
		c.forceRefresh(ctx)
		return err
	}
	return nil
}

// MarkAllRead optimistically clears the unread counter, then persists.
func (c *NotificationController) MarkAllRead(ctx context.Context) error {
	c.mu.Lock()
	for i := range c.notifications {
		c.notifications[i].IsRead = true
	}
	c.unread = 0
	c.mu.Unlock()

	if err := c.api.MarkAllNotificationsRead(ctx); err != nil {
		c.forceRefresh(ctx)
		return err
	}
	return nil
}

// forceRefresh bypasses the fetch throttle to reconcile after a failed
// optimistic update.
func (c *NotificationController) forceRefresh(ctx context.Context) {
	c.mu.Lock()
	c.lastFetch = time.Time{}
	c.mu.Unlock()
	_ = c.Refresh(ctx)
}
