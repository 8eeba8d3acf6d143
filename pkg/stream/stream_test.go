package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapfeed/pkg/logger"
	"snapfeed/pkg/models"
)

type fakeStorage struct {
	mu      sync.Mutex
	notifs  []models.Notification
	unread  int
	failure error
}

func (f *fakeStorage) NotificationsSince(userID string, sinceTS int64) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failure != nil {
		return nil, f.failure
	}
	var out []models.Notification
	for _, n := range f.notifs {
		if n.UserID == userID && n.CreatedTS > sinceTS {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeStorage) CountUnreadNotifications(userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failure != nil {
		return 0, f.failure
	}
	return f.unread, nil
}

func (f *fakeStorage) add(n models.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifs = append(f.notifs, n)
}

func (f *fakeStorage) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failure = err
}

// collectEnvelopes reads SSE frames from the stream endpoint until the
// connection closes or d elapses, and returns the decoded envelopes.
func collectEnvelopes(t *testing.T, srv *Server, userID string, d time.Duration) []envelope {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = srv.Serve(w, r, userID)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	var out []envelope
	sc := bufio.NewScanner(res.Body)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var env envelope
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &env))
		out = append(out, env)
	}
	return out
}

func testServer(store Storage) *Server {
	logger.Init("error")
	return NewServer(store, Config{
		PollInterval:     20 * time.Millisecond,
		UnreadInterval:   50 * time.Millisecond,
		MaxConnectionAge: 300 * time.Millisecond,
		HeartbeatEvery:   4,
	})
}

func typeCounts(envs []envelope) map[string]int {
	out := map[string]int{}
	for _, e := range envs {
		out[e.Type]++
	}
	return out
}

func TestServeEmitsConnectedFirst(t *testing.T) {
	srv := testServer(&fakeStorage{})
	envs := collectEnvelopes(t, srv, "u1", time.Second)
	require.NotEmpty(t, envs)
	assert.Equal(t, "connected", envs[0].Type)
	assert.NotEmpty(t, envs[0].Timestamp)
}

func TestServePushesNewNotifications(t *testing.T) {
	store := &fakeStorage{}
	srv := testServer(store)

	go func() {
		time.Sleep(30 * time.Millisecond)
		store.add(models.Notification{
			ID:        "n1",
			UserID:    "u1",
			Type:      models.NotificationComment,
			CreatedTS: time.Now().UTC().UnixNano(),
		})
	}()

	envs := collectEnvelopes(t, srv, "u1", time.Second)
	var got *models.NotificationView
	for _, e := range envs {
		if e.Type == "new-notification" {
			got = e.Notification
			break
		}
	}
	require.NotNil(t, got)
	assert.Equal(t, "n1", got.ID)
	assert.Equal(t, models.NotificationComment, got.Type)

	// the checkpoint advanced: the same notification is not re-delivered
	assert.Equal(t, 1, typeCounts(envs)["new-notification"])
}

func TestServeIntervalCadenceAndLifetimeCap(t *testing.T) {
	store := &fakeStorage{unread: 3}
	srv := testServer(store)

	start := time.Now()
	envs := collectEnvelopes(t, srv, "u1", 2*time.Second)
	elapsed := time.Since(start)

	// connection must be force-closed at the 300ms cap, well before the
	// client-side 2s deadline
	assert.Less(t, elapsed, time.Second)

	counts := typeCounts(envs)
	// 300ms / 50ms unread interval: ~6 emissions, allow +-1 tick
	assert.GreaterOrEqual(t, counts["unread-count"], 4)
	assert.LessOrEqual(t, counts["unread-count"], 7)
	// heartbeat every 4th of ~15 poll ticks: ~3, allow +-1
	assert.GreaterOrEqual(t, counts["heartbeat"], 2)
	assert.LessOrEqual(t, counts["heartbeat"], 5)

	for _, e := range envs {
		if e.Type == "unread-count" {
			require.NotNil(t, e.Count)
			assert.Equal(t, 3, *e.Count)
		}
	}
}

func TestServeQueryFailureKeepsStreamAlive(t *testing.T) {
	store := &fakeStorage{}
	store.fail(fmt.Errorf("query timeout"))
	srv := testServer(store)

	envs := collectEnvelopes(t, srv, "u1", 2*time.Second)
	counts := typeCounts(envs)
	assert.Greater(t, counts["error"], 1, "stream should keep polling after errors")
	assert.Equal(t, 1, counts["connected"])
}

func TestServeStopsOnClientDisconnect(t *testing.T) {
	store := &fakeStorage{}
	srv := NewServer(store, Config{
		PollInterval:     10 * time.Millisecond,
		UnreadInterval:   10 * time.Millisecond,
		MaxConnectionAge: 10 * time.Second,
	})

	done := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = srv.Serve(w, r, "u1")
		close(done)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	cancel()
	res.Body.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not notice client disconnect")
	}
}
