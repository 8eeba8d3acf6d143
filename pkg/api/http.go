// Package api assembles the v1 REST surface consumed by the client
// controllers.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"snapfeed/pkg/api/handlers"
	"snapfeed/pkg/auth"
	"snapfeed/pkg/cache"
	"snapfeed/pkg/ratelimit"
	"snapfeed/pkg/store"
	"snapfeed/pkg/stream"
	"snapfeed/pkg/utils"
)

// Deps carries the owned component instances the handlers need; nothing here
// is an ambient singleton.
type Deps struct {
	Store    *store.Store
	Cache    *cache.Cache
	Limiter  *ratelimit.Limiter
	Stream   *stream.Server
	Notifier handlers.Notifier
	Sec      auth.SecConfig
}

// Handler returns the /v1 API handler with auth, identity and rate-limit
// middleware applied.
func Handler(d Deps) http.Handler {
	h := handlers.New(d.Store, d.Cache, d.Notifier)

	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(mux.MiddlewareFunc(auth.RequireSubject(d.Sec)))

	// notification-list reads burn the client's rate budget; everything
	// else is bounded by the client controllers' own throttles
	rateMax := d.Sec.RateMax
	if rateMax <= 0 {
		rateMax = 30
	}
	rateWindow := time.Duration(d.Sec.RateWindowMS) * time.Millisecond
	if rateWindow <= 0 {
		rateWindow = time.Minute
	}
	limited := auth.RateLimit(d.Limiter, rateMax, rateWindow)

	v1.Handle("/notifications", limited(http.HandlerFunc(h.ListNotifications))).Methods(http.MethodGet)
	v1.HandleFunc("/notifications", h.CreateNotification).Methods(http.MethodPost)
	v1.HandleFunc("/notifications", h.UpdateNotifications).Methods(http.MethodPatch)
	v1.HandleFunc("/notifications/stream", func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		if userID == "" {
			utils.JSONError(w, http.StatusUnauthorized, "user identity required")
			return
		}
		_ = d.Stream.Serve(w, r, userID)
	}).Methods(http.MethodGet)

	v1.HandleFunc("/conversations", h.ListConversations).Methods(http.MethodGet)
	v1.HandleFunc("/conversations/start", h.StartConversation).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{conversationId}/messages", h.ListMessages).Methods(http.MethodGet)
	v1.HandleFunc("/conversations/{conversationId}/messages", h.SendMessage).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{conversationId}/read", h.MarkConversationRead).Methods(http.MethodPost)

	v1.HandleFunc("/messages/unread", h.UnreadMessageCount).Methods(http.MethodGet)
	v1.HandleFunc("/messages/{messageId}", h.EditMessage).Methods(http.MethodPatch)
	v1.HandleFunc("/messages/{messageId}", h.DeleteMessage).Methods(http.MethodDelete)

	return auth.Gateway(d.Sec)(r)
}
