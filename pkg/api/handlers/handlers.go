// Package handlers implements the v1 route handlers.
package handlers

import (
	"snapfeed/pkg/cache"
	"snapfeed/pkg/models"
	"snapfeed/pkg/store"
)

// Notifier pushes a freshly created notification toward the socket
// broadcast server. Delivery is best-effort; the poll-based stream remains
// the durable path.
type Notifier interface {
	NotifyUser(userID string, notification models.NotificationView)
}

// Handlers holds the injected collaborators shared by all routes.
type Handlers struct {
	store    *store.Store
	cache    *cache.Cache
	notifier Notifier
}

// New builds the handler set. notifier may be nil when no socket server is
// configured.
func New(s *store.Store, c *cache.Cache, n Notifier) *Handlers {
	return &Handlers{store: s, cache: c, notifier: n}
}

// Cache TTLs; short on purpose, writes additionally invalidate by prefix.
const (
	messagesTTLSeconds      = 3
	conversationsTTLSeconds = 10
	unreadTTLSeconds        = 10
)

// invalidateMessaging drops every cache entry a messaging write could have
// staled. Over-invalidation is cheap at these TTLs; precise dependency sets
// are not worth the bookkeeping.
func (h *Handlers) invalidateMessaging() {
	h.cache.DeleteByPrefix("messages:")
	h.cache.DeleteByPrefix("conversations:")
	h.cache.DeleteByPrefix("unread:")
}
