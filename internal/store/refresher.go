package store

import (
	"context"
	"time"

	"log/slog"

	"github.com/jonboulle/clockwork"
)

// Refresher rebuilds a store on a fixed interval. It uses Refresh, not
// Invalidate, so queries keep the previous snapshot while the next one
// builds and a failed rebuild costs nothing but staleness.
type Refresher struct {
	store     *Store
	interval  time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
	onRefresh func(context.Context)
}

// NewRefresher creates a Refresher. A nil clock means the real clock.
func NewRefresher(s *Store, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) *Refresher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Refresher{store: s, interval: interval, clock: clock, logger: logger}
}

// OnRefresh registers a callback invoked after each successful rebuild, on
// the refresher's goroutine. Used to publish alerts against fresh data.
func (r *Refresher) OnRefresh(fn func(context.Context)) {
	r.onRefresh = fn
}

// Run ticks until the context is cancelled. Rebuild failures are logged and
// the loop continues; the store keeps serving the previous snapshot.
func (r *Refresher) Run(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info("scheduled refresh disabled")
		return
	}
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("scheduled refresh started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("scheduled refresh stopping", "reason", ctx.Err())
			return
		case <-ticker.Chan():
			if err := r.store.Refresh(ctx); err != nil {
				r.logger.Error("scheduled refresh failed, keeping previous snapshot", "error", err)
				continue
			}
			if r.onRefresh != nil {
				r.onRefresh(ctx)
			}
		}
	}
}
