// Package janitor purges read notifications past their retention period on
// a cron schedule. Unread notifications are never purged.
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"snapfeed/pkg/logger"
	"snapfeed/pkg/store"
)

// Janitor owns the purge schedule for one store.
type Janitor struct {
	store  *store.Store
	cron   string
	retain time.Duration
}

// New builds a janitor. An empty cron expression means Start is a no-op.
func New(s *store.Store, cron string, retain time.Duration) (*Janitor, error) {
	if cron != "" && !gronx.IsValid(cron) {
		return nil, fmt.Errorf("invalid janitor cron expression: %s", cron)
	}
	return &Janitor{store: s, cron: cron, retain: retain}, nil
}

// Start launches the scheduler goroutine. The returned cancel stops it.
func (j *Janitor) Start(ctx context.Context) context.CancelFunc {
	if j.cron == "" {
		logger.Info("janitor_disabled")
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	logger.Info("janitor_enabled", "cron", j.cron, "retain", j.retain.String())
	go j.runScheduler(ctx)
	return cancel
}

// runScheduler sleeps until each next cron tick and runs one purge per
// tick. gronx computes ticks so full cron syntax is supported.
func (j *Janitor) runScheduler(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(j.cron, time.Now().UTC(), false)
		if err != nil {
			logger.Error("janitor_nexttick_failed", "cron", j.cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-ctx.Done():
				logger.Info("janitor_stopping")
				return
			}
		}
		select {
		case <-time.After(time.Until(next)):
			if err := j.RunOnce(); err != nil {
				logger.Error("janitor_run_failed", "error", err)
			}
		case <-ctx.Done():
			logger.Info("janitor_stopping")
			return
		}
	}
}

// RunOnce purges read notifications older than the retention period and
// returns the first error encountered. Also used by tests and admin
// triggers.
func (j *Janitor) RunOnce() error {
	cutoff := time.Now().UTC().Add(-j.retain).UnixNano()
	n, err := j.store.PurgeReadNotificationsBefore(cutoff)
	if err != nil {
		return err
	}
	logger.Info("janitor_purged", "count", n, "cutoff_ns", cutoff)
	return nil
}
