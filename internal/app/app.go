// Package app assembles and runs the API server process: storage, cache,
// rate limiter, stream server, socket relay and the janitor.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"snapfeed/internal/janitor"
	"snapfeed/pkg/banner"
	"snapfeed/pkg/cache"
	"snapfeed/pkg/config"
	"snapfeed/pkg/logger"
	"snapfeed/pkg/ratelimit"
	"snapfeed/pkg/sockethub"
	"snapfeed/pkg/store"
	"snapfeed/pkg/stream"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff     *config.Effective
	version string

	store   *store.Store
	cache   *cache.Cache
	limiter *ratelimit.Limiter
	stream  *stream.Server
	relay   *sockethub.Relay
	janitor *janitor.Janitor

	srv *http.Server
}

// New initializes everything that does not need a running context. Call Run
// to start the HTTP server and janitor and block until shutdown.
func New(eff *config.Effective, version string) (*App, error) {
	_ = godotenv.Load(".env")

	s, err := store.Open(eff.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}

	a := &App{
		eff:     eff,
		version: version,
		store:   s,
		cache:   cache.New(cache.DefaultSweepInterval),
		limiter: ratelimit.New(ratelimit.DefaultSweepInterval),
		stream: stream.NewServer(s, stream.Config{
			PollInterval:     eff.StreamPoll,
			UnreadInterval:   eff.StreamUnread,
			MaxConnectionAge: eff.StreamMaxAge,
			HeartbeatEvery:   eff.StreamHeartbeat,
		}),
	}
	if url := eff.Config.Socket.RelayURL; url != "" {
		a.relay = sockethub.NewRelay(url)
	}
	a.janitor, err = janitor.New(s, eff.Config.Janitor.Schedule, eff.JanitorRetain)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// Run starts the HTTP server and the janitor, then blocks until ctx is
// cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	banner.Print(a.eff, a.version, a.store.DiskUsageHuman())

	stopJanitor := a.janitor.Start(ctx)
	defer stopJanitor()

	errCh := a.startHTTP()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http_shutdown_failed", "error", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// close releases everything New acquired.
func (a *App) close() {
	if a.relay != nil {
		a.relay.Close()
	}
	if a.cache != nil {
		a.cache.Close()
	}
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("store_close_failed", "error", err)
		}
	}
}
