// Package telemetry exposes the delivery layer's Prometheus metrics.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// StreamConnections tracks currently open SSE subscriptions.
	StreamConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "snapfeed_stream_connections",
		Help: "Open notification stream connections.",
	})

	// StreamEnvelopes counts envelopes emitted per type.
	StreamEnvelopes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapfeed_stream_envelopes_total",
		Help: "Envelopes emitted on notification streams.",
	}, []string{"type"})

	// SocketBroadcasts counts hub deliveries and drops.
	SocketBroadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapfeed_socket_broadcasts_total",
		Help: "Socket hub broadcast outcomes.",
	}, []string{"event", "outcome"})

	// SocketRoomMembers tracks sockets currently joined to user rooms.
	SocketRoomMembers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "snapfeed_socket_room_members",
		Help: "Sockets currently joined to user rooms.",
	})

	// CacheRequests counts cache lookups by outcome.
	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapfeed_cache_requests_total",
		Help: "Response cache lookups.",
	}, []string{"outcome"})

	// RateLimited counts requests rejected by the fixed-window limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapfeed_rate_limited_total",
		Help: "Requests rejected by the rate limiter.",
	})

	// NotificationsCreated counts notifications accepted on the write path.
	NotificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapfeed_notifications_created_total",
		Help: "Notifications created, by type.",
	}, []string{"type"})
)

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CacheHit and CacheMiss record one cache lookup outcome.
func CacheHit()  { CacheRequests.WithLabelValues("hit").Inc() }
func CacheMiss() { CacheRequests.WithLabelValues("miss").Inc() }
