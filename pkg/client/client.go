// Package client implements the consumer-side controllers of the delivery
// system: a notification controller fed by the SSE stream, a messenger that
// polls conversations, and an unread watcher. The controllers own their
// goroutines and expose snapshot accessors plus a small event bus.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"snapfeed/pkg/models"
)

// Identity carries the headers that bind requests to a verified subject.
// The signature is minted by the caller's own backend, never by this client.
type Identity struct {
	UserID    string
	Signature string
	APIKey    string
}

// API is a thin typed wrapper over the v1 REST surface.
type API struct {
	BaseURL string
	ID      Identity
	// HTTP defaults to a client with a 15s timeout. Stream requests build
	// their own non-timeout client.
	HTTP *http.Client
}

// NewAPI returns an API client for baseURL (scheme://host:port, no path).
func NewAPI(baseURL string, id Identity) *API {
	return &API{
		BaseURL: baseURL,
		ID:      id,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *API) request(ctx context.Context, method, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, buf)
	if err != nil {
		return err
	}
	a.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *API) setHeaders(req *http.Request) {
	req.Header.Set("X-API-Key", a.ID.APIKey)
	req.Header.Set("X-User-ID", a.ID.UserID)
	req.Header.Set("X-User-Signature", a.ID.Signature)
}

// NotificationPage is one page of the notification list.
type NotificationPage struct {
	Notifications []models.NotificationView `json:"notifications"`
	Pagination    struct {
		Page    int  `json:"page"`
		Limit   int  `json:"limit"`
		Total   int  `json:"total"`
		Pages   int  `json:"pages"`
		HasMore bool `json:"hasMore"`
	} `json:"pagination"`
	UnreadCount int `json:"unreadCount"`
}

// ListNotifications fetches one page of notifications.
func (a *API) ListNotifications(ctx context.Context, page, limit int) (*NotificationPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	var out NotificationPage
	if err := a.request(ctx, http.MethodGet, "/v1/notifications?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkNotificationRead flips one notification's read flag.
func (a *API) MarkNotificationRead(ctx context.Context, id string, read bool) error {
	return a.request(ctx, http.MethodPatch, "/v1/notifications", map[string]any{
		"notificationId": id,
		"markAsRead":     read,
	}, nil)
}

// MarkAllNotificationsRead marks every notification read.
func (a *API) MarkAllNotificationsRead(ctx context.Context) error {
	return a.request(ctx, http.MethodPatch, "/v1/notifications", map[string]any{
		"markAllAsRead": true,
	}, nil)
}

// ConversationSummary is one row of the conversation list.
type ConversationSummary struct {
	ID           string              `json:"id"`
	Participants []string            `json:"participants"`
	UpdatedAt    string              `json:"updatedAt"`
	LastMessage  *models.MessageView `json:"lastMessage"`
	UnreadCount  int                 `json:"unreadCount"`
}

// ListConversations fetches the subject's conversations.
func (a *API) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	var out struct {
		Conversations []ConversationSummary `json:"conversations"`
	}
	if err := a.request(ctx, http.MethodGet, "/v1/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// StartConversation opens (or returns) the two-party conversation with the
// given user.
func (a *API) StartConversation(ctx context.Context, participantID string) (*models.Conversation, bool, error) {
	var out struct {
		Conversation models.Conversation `json:"conversation"`
		Created      bool                `json:"created"`
	}
	err := a.request(ctx, http.MethodPost, "/v1/conversations/start", map[string]any{
		"participantId": participantID,
	}, &out)
	if err != nil {
		return nil, false, err
	}
	return &out.Conversation, out.Created, nil
}

// ListMessages fetches the visible messages of a conversation.
func (a *API) ListMessages(ctx context.Context, conversationID string) ([]models.MessageView, error) {
	var out struct {
		Messages []models.MessageView `json:"messages"`
	}
	if err := a.request(ctx, http.MethodGet, "/v1/conversations/"+conversationID+"/messages", nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// SendMessage posts a message to a conversation.
func (a *API) SendMessage(ctx context.Context, conversationID, content string) (*models.MessageView, error) {
	var out struct {
		Message models.MessageView `json:"message"`
	}
	err := a.request(ctx, http.MethodPost, "/v1/conversations/"+conversationID+"/messages", map[string]any{
		"content": content,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Message, nil
}

// EditMessage replaces a message's content.
func (a *API) EditMessage(ctx context.Context, messageID, content string) error {
	return a.request(ctx, http.MethodPatch, "/v1/messages/"+messageID, map[string]any{
		"content": content,
	}, nil)
}

// DeleteMessage soft-deletes a message.
func (a *API) DeleteMessage(ctx context.Context, messageID string) error {
	return a.request(ctx, http.MethodDelete, "/v1/messages/"+messageID, nil, nil)
}

// MarkConversationRead creates read receipts for the subject and returns how
// many messages were newly marked.
func (a *API) MarkConversationRead(ctx context.Context, conversationID string) (int, error) {
	var out struct {
		MarkedCount int `json:"markedCount"`
	}
	err := a.request(ctx, http.MethodPost, "/v1/conversations/"+conversationID+"/read", nil, &out)
	return out.MarkedCount, err
}

// UnreadMessageCount fetches the subject's unread total.
func (a *API) UnreadMessageCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	err := a.request(ctx, http.MethodGet, "/v1/messages/unread", nil, &out)
	return out.Count, err
}
