package rooms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/privroom/internal/metrics"
)

// DefaultSweepInterval is how often the sweeper looks for expired rooms.
const DefaultSweepInterval = time.Second

// Sweeper deletes rooms whose expiry has elapsed. Deletion goes through
// Service so subscribers get RoomClosed before the data disappears.
type Sweeper struct {
	svc      *Service
	interval time.Duration
}

// NewSweeper creates a sweeper ticking on the service clock.
func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{svc: svc, interval: interval}
}

// Run sweeps on every tick until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := w.svc.clock.Ticker(w.interval)
	defer ticker.Stop()

	w.svc.log.Info().Dur("interval", w.interval).Msg("expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			w.svc.log.Info().Msg("expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := w.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				w.svc.log.Warn().Err(err).Msg("sweep incomplete, retrying next tick")
			}
		}
	}
}

// SweepOnce closes every expired room and returns how many it deleted.
// Rooms that fail to delete, expired or deleted by hand, are retried by the
// next call.
func (w *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	w.svc.metrics.SweepRun()

	ids, err := w.svc.store.ListExpiredRooms(ctx, w.svc.clock.Now())
	if err != nil {
		w.svc.metrics.SweepError()
		return 0, fmt.Errorf("list expired rooms: %w", err)
	}

	// Teardowns that failed earlier are retried whatever their reason.
	pending := w.svc.pendingClosures()
	for _, id := range ids {
		if _, ok := pending[id]; !ok {
			pending[id] = metrics.ReasonExpired
		}
	}

	closed := 0
	var errs []error
	for id, reason := range pending {
		deleted, err := w.svc.closeRoom(ctx, id, reason)
		if err != nil {
			w.svc.metrics.SweepError()
			w.svc.log.Warn().Err(err).Str("room_id", id).Msg("expire room failed")
			errs = append(errs, fmt.Errorf("expire %s: %w", id, err))
			continue
		}
		if deleted {
			closed++
		}
	}
	return closed, errors.Join(errs...)
}
