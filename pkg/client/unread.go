package client

import (
	"context"
	"sync"
	"time"

	"snapfeed/pkg/logger"
)

const unreadPollInterval = 30 * time.Second

// UnreadWatcher keeps a badge counter of unread messages current: a slow
// background poll plus an immediate refresh whenever the bus announces that
// a conversation was read.
type UnreadWatcher struct {
	api *API
	bus *Bus

	mu    sync.Mutex
	count int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewUnreadWatcher returns a stopped watcher. bus may be nil.
func NewUnreadWatcher(api *API, bus *Bus) *UnreadWatcher {
	w := &UnreadWatcher{api: api, bus: bus}
	if bus != nil {
		bus.Subscribe(EventMessagesRead, func(any) { w.refreshAsync() })
	}
	return w
}

// Start begins polling. It returns immediately.
func (w *UnreadWatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	go func() {
		defer close(done)
		w.refresh(ctx)
		t := time.NewTicker(unreadPollInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				w.refresh(ctx)
			}
		}
	}()
}

// Stop halts the poll loop.
func (w *UnreadWatcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Count returns the last observed unread total.
func (w *UnreadWatcher) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

func (w *UnreadWatcher) refresh(ctx context.Context) {
	n, err := w.api.UnreadMessageCount(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("unread_watch_failed", "error", err)
		}
		return
	}
	w.mu.Lock()
	w.count = n
	w.mu.Unlock()
}

// refreshAsync runs one refresh off the bus publisher's goroutine.
func (w *UnreadWatcher) refreshAsync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		w.refresh(ctx)
	}()
}
