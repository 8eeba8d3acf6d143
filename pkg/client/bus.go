package client

import "sync"

// Bus event names shared between controllers.
const (
	EventMessagesRead = "messages-read"
)

// Bus is a tiny in-process pub/sub used to couple the controllers loosely:
// the messenger announces that a conversation was read and the unread
// watcher refreshes without polling early.
type Bus struct {
	mu   sync.Mutex
	subs map[string][]func(data any)
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]func(data any))}
}

// Subscribe registers fn for event. Handlers run synchronously on the
// publisher's goroutine and must not block.
func (b *Bus) Subscribe(event string, fn func(data any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[event] = append(b.subs[event], fn)
}

// Publish invokes every handler registered for event.
func (b *Bus) Publish(event string, data any) {
	b.mu.Lock()
	handlers := append([]func(data any){}, b.subs[event]...)
	b.mu.Unlock()
	for _, fn := range handlers {
		fn(data)
	}
}
