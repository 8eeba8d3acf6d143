package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"snapfeed/pkg/logger"
	"snapfeed/pkg/models"
)

// ErrEmptyContent is returned by Send and Edit before any network call when
// the content is blank.
var ErrEmptyContent = errors.New("message content is required")

const (
	messagePollInterval = 5 * time.Second
	messageThrottle     = 2 * time.Second
)

// Messenger maintains the local view of one open conversation by polling.
// Mutations force the next poll through the throttle so the sender sees
// their own change immediately.
type Messenger struct {
	api *API
	bus *Bus

	mu             sync.Mutex
	conversationID string
	messages       []models.MessageView
	lastFetch      time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMessenger returns a messenger bound to api. bus may be nil.
func NewMessenger(api *API, bus *Bus) *Messenger {
	return &Messenger{api: api, bus: bus}
}

// Open starts polling conversationID. Any previously open conversation is
// closed first.
func (m *Messenger) Open(ctx context.Context, conversationID string) {
	m.Close()

	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.conversationID = conversationID
	m.messages = nil
	m.lastFetch = time.Time{}
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		_ = m.fetch(ctx)
		t := time.NewTicker(messagePollInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := m.fetch(ctx); err != nil && ctx.Err() == nil {
					logger.Warn("message_poll_failed", "conversation", conversationID, "error", err)
				}
			}
		}
	}()
}

// Close stops the poll loop.
func (m *Messenger) Close() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Messages returns a copy of the current message list, oldest first.
func (m *Messenger) Messages() []models.MessageView {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.MessageView, len(m.messages))
	copy(out, m.messages)
	return out
}

// fetch pulls the conversation unless a fetch ran inside the throttle
// window.
func (m *Messenger) fetch(ctx context.Context) error {
	m.mu.Lock()
	convID := m.conversationID
	if convID == "" || time.Since(m.lastFetch) < messageThrottle {
		m.mu.Unlock()
		return nil
	}
	m.lastFetch = time.Now()
	m.mu.Unlock()

	msgs, err := m.api.ListMessages(ctx, convID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if m.conversationID == convID {
		m.messages = msgs
	}
	m.mu.Unlock()
	return nil
}

// forceFetch clears the throttle and fetches now, so a mutation's effect is
// visible without waiting out the poll interval.
func (m *Messenger) forceFetch(ctx context.Context) error {
	m.mu.Lock()
	m.lastFetch = time.Time{}
	m.mu.Unlock()
	return m.fetch(ctx)
}

// Send posts content to the open conversation. Blank content fails locally
// with ErrEmptyContent before any request is made.
func (m *Messenger) Send(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	m.mu.Lock()
	convID := m.conversationID
	m.mu.Unlock()
	if convID == "" {
		return errors.New("no conversation open")
	}
	if _, err := m.api.SendMessage(ctx, convID, content); err != nil {
		return err
	}
	return m.forceFetch(ctx)
}

// Edit replaces a message's content and refetches.
func (m *Messenger) Edit(ctx context.Context, messageID, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if err := m.api.EditMessage(ctx, messageID, content); err != nil {
		return err
	}
	return m.forceFetch(ctx)
}

// Delete soft-deletes a message and refetches; the server leaves a
// tombstone in its place.
func (m *Messenger) Delete(ctx context.Context, messageID string) error {
	if err := m.api.DeleteMessage(ctx, messageID); err != nil {
		return err
	}
	return m.forceFetch(ctx)
}

// MarkRead creates read receipts for everything unread in the open
// conversation and announces the change on the bus.
func (m *Messenger) MarkRead(ctx context.Context) (int, error) {
	m.mu.Lock()
	convID := m.conversationID
	m.mu.Unlock()
	if convID == "" {
		return 0, errors.New("no conversation open")
	}
	marked, err := m.api.MarkConversationRead(ctx, convID)
	if err != nil {
		return 0, err
	}
	if marked > 0 && m.bus != nil {
		m.bus.Publish(EventMessagesRead, convID)
	}
	if err := m.forceFetch(ctx); err != nil {
		return marked, err
	}
	return marked, nil
}
