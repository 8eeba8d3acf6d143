package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"snapfeed/pkg/auth"
	"snapfeed/pkg/cache"
	"snapfeed/pkg/models"
	"snapfeed/pkg/ratelimit"
	"snapfeed/pkg/store"
	"snapfeed/pkg/stream"
)

const (
	testSigningKey  = "test-signing-secret"
	testFrontendKey = "fk_test"
	testBackendKey  = "bk_test"
)

func signSubject(userID string) string {
	mac := hmac.New(sha256.New, []byte(testSigningKey))
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

type env struct {
	srv   *httptest.Server
	store *store.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	c := cache.New(0)
	t.Cleanup(c.Close)
	lim := ratelimit.New(0)
	t.Cleanup(lim.Close)

	h := Handler(Deps{
		Store:   s,
		Cache:   c,
		Limiter: lim,
		Stream:  stream.NewServer(s, stream.Config{}),
		Sec: auth.SecConfig{
			FrontendKeys: map[string]struct{}{testFrontendKey: {}},
			BackendKeys:  map[string]struct{}{testBackendKey: {}},
			SigningKeys:  map[string]struct{}{testSigningKey: {}},
			RateMax:      30,
			RateWindowMS: 60_000,
		},
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &env{srv: srv, store: s}
}

// do issues a signed frontend request on behalf of userID.
func (e *env) do(t *testing.T, method, path, userID string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testFrontendKey)
	req.Header.Set("X-User-ID", userID)
	req.Header.Set("X-User-Signature", signSubject(userID))
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestStreamRequiresSubject(t *testing.T) {
	e := newEnv(t)
	// a backend key passes the gateway without a signed subject; the
	// stream must still refuse to serve an anonymous recipient
	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/v1/notifications/stream", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testBackendKey)
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "user identity required", decodeBody(t, resp)["error"])
}

func TestUnauthenticatedRejected(t *testing.T) {
	e := newEnv(t)
	resp, err := http.Get(e.srv.URL + "/v1/notifications")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBadSignatureRejected(t *testing.T) {
	e := newEnv(t)
	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/v1/notifications", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testFrontendKey)
	req.Header.Set("X-User-ID", "alice")
	req.Header.Set("X-User-Signature", signSubject("mallory"))
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestListNotificationsPagination(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 25; i++ {
		n := models.Notification{
			ID:     fmt.Sprintf("n-%02d", i),
			UserID: "alice",
			Type:   models.NotificationLike,
			Title:  "New Like",
		}
		require.NoError(t, e.store.SaveNotification(&n))
	}

	resp := e.do(t, http.MethodGet, "/v1/notifications?page=1&limit=20", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	require.Equal(t, true, body["success"])
	require.Len(t, body["notifications"], 20)
	pg := body["pagination"].(map[string]any)
	require.EqualValues(t, 25, pg["total"])
	require.EqualValues(t, 2, pg["pages"])
	require.Equal(t, true, pg["hasMore"])
	require.EqualValues(t, 25, body["unreadCount"])

	resp = e.do(t, http.MethodGet, "/v1/notifications?page=2&limit=20", "alice", nil)
	body = decodeBody(t, resp)
	require.Len(t, body["notifications"], 5)
	require.Equal(t, false, body["pagination"].(map[string]any)["hasMore"])
}

func TestNotificationListRateLimit(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 30; i++ {
		resp := e.do(t, http.MethodGet, "/v1/notifications", "alice", nil)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i+1)
	}
	resp := e.do(t, http.MethodGet, "/v1/notifications", "alice", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, resp.Header.Get("X-RateLimit-Reset"))

	// another subject has an independent window
	other := e.do(t, http.MethodGet, "/v1/notifications", "bob", nil)
	other.Body.Close()
	require.Equal(t, http.StatusOK, other.StatusCode)
}

func TestCreateNotificationRequiresBackendKey(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodPost, "/v1/notifications", "alice", map[string]any{
		"userId": "bob", "type": "like",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCreateAndMarkNotification(t *testing.T) {
	e := newEnv(t)

	payload := map[string]any{
		"userId":  "alice",
		"type":    "comment",
		"title":   "New Comment",
		"message": "bob commented on your photo",
	}
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(payload))
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/v1/notifications", &buf)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testBackendKey)
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody(t, resp)
	id := created["notification"].(map[string]any)["id"].(string)
	require.NotEmpty(t, id)

	resp = e.do(t, http.MethodPatch, "/v1/notifications", "alice", map[string]any{
		"notificationId": id,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = e.do(t, http.MethodGet, "/v1/notifications", "alice", nil)
	body := decodeBody(t, resp)
	require.EqualValues(t, 0, body["unreadCount"])

	// marking someone else's notification must not work
	resp = e.do(t, http.MethodPatch, "/v1/notifications", "bob", map[string]any{
		"notificationId": id,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMarkAllNotificationsRead(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 3; i++ {
		n := models.Notification{ID: fmt.Sprintf("n%d", i), UserID: "alice", Type: models.NotificationFollow}
		require.NoError(t, e.store.SaveNotification(&n))
	}
	resp := e.do(t, http.MethodPatch, "/v1/notifications", "alice", map[string]any{"markAllAsRead": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	unread, err := e.store.CountUnreadNotifications("alice")
	require.NoError(t, err)
	require.Zero(t, unread)
}

func TestMessagingEndToEnd(t *testing.T) {
	e := newEnv(t)

	// alice starts a conversation with bob
	resp := e.do(t, http.MethodPost, "/v1/conversations/start", "alice", map[string]any{
		"participantId": "bob",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)
	require.Equal(t, true, body["created"])
	convID := body["conversation"].(map[string]any)["id"].(string)

	// starting again returns the same conversation
	resp = e.do(t, http.MethodPost, "/v1/conversations/start", "bob", map[string]any{
		"participantId": "alice",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	require.Equal(t, false, body["created"])
	require.Equal(t, convID, body["conversation"].(map[string]any)["id"])

	// empty content is rejected before any write
	resp = e.do(t, http.MethodPost, "/v1/conversations/"+convID+"/messages", "alice", map[string]any{
		"content": "   ",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = e.do(t, http.MethodPost, "/v1/conversations/"+convID+"/messages", "alice", map[string]any{
		"content": "hey bob",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// bob sees it and an unread count of one
	resp = e.do(t, http.MethodGet, "/v1/conversations/"+convID+"/messages", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 1)
	require.Equal(t, "hey bob", msgs[0].(map[string]any)["content"])

	resp = e.do(t, http.MethodGet, "/v1/messages/unread", "bob", nil)
	body = decodeBody(t, resp)
	require.EqualValues(t, 1, body["count"])

	// bob marks the conversation read; alice then sees the receipt
	resp = e.do(t, http.MethodPost, "/v1/conversations/"+convID+"/read", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	require.EqualValues(t, 1, body["markedCount"])

	resp = e.do(t, http.MethodGet, "/v1/conversations/"+convID+"/messages", "alice", nil)
	body = decodeBody(t, resp)
	reads := body["messages"].([]any)[0].(map[string]any)["reads"].([]any)
	require.Len(t, reads, 1)
	require.Equal(t, "bob", reads[0].(map[string]any)["userId"])

	resp = e.do(t, http.MethodGet, "/v1/messages/unread", "bob", nil)
	body = decodeBody(t, resp)
	require.EqualValues(t, 0, body["count"])
}

func TestMessageEditAndDelete(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodPost, "/v1/conversations/start", "alice", map[string]any{
		"participantId": "bob",
	})
	convID := decodeBody(t, resp)["conversation"].(map[string]any)["id"].(string)

	resp = e.do(t, http.MethodPost, "/v1/conversations/"+convID+"/messages", "alice", map[string]any{
		"content": "first draft",
	})
	msgID := decodeBody(t, resp)["message"].(map[string]any)["id"].(string)

	// only the sender may edit
	resp = e.do(t, http.MethodPatch, "/v1/messages/"+msgID, "bob", map[string]any{"content": "hijack"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = e.do(t, http.MethodPatch, "/v1/messages/"+msgID, "alice", map[string]any{"content": "final"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	msg := body["message"].(map[string]any)
	require.Equal(t, "final", msg["content"])
	require.Equal(t, true, msg["isEdited"])

	resp = e.do(t, http.MethodDelete, "/v1/messages/"+msgID, "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	m, err := e.store.GetMessage(msgID)
	require.NoError(t, err)
	require.True(t, m.IsDeleted)
	require.Equal(t, models.TombstoneText, m.Content)
}

func TestNonParticipantForbidden(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodPost, "/v1/conversations/start", "alice", map[string]any{
		"participantId": "bob",
	})
	convID := decodeBody(t, resp)["conversation"].(map[string]any)["id"].(string)

	resp = e.do(t, http.MethodGet, "/v1/conversations/"+convID+"/messages", "carol", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestConversationListOrdering(t *testing.T) {
	e := newEnv(t)
	mk := func(other string) string {
		resp := e.do(t, http.MethodPost, "/v1/conversations/start", "alice", map[string]any{
			"participantId": other,
		})
		return decodeBody(t, resp)["conversation"].(map[string]any)["id"].(string)
	}
	c1 := mk("bob")
	c2 := mk("carol")

	// a message in c1 bumps it above c2
	time.Sleep(5 * time.Millisecond)
	resp := e.do(t, http.MethodPost, "/v1/conversations/"+c1+"/messages", "alice", map[string]any{
		"content": "bump",
	})
	resp.Body.Close()

	resp = e.do(t, http.MethodGet, "/v1/conversations", "alice", nil)
	body := decodeBody(t, resp)
	convs := body["conversations"].([]any)
	require.Len(t, convs, 2)
	first := convs[0].(map[string]any)
	require.Equal(t, c1, first["id"])
	require.Equal(t, "bump", first["lastMessage"].(map[string]any)["content"])
	require.Equal(t, c2, convs[1].(map[string]any)["id"])
}
