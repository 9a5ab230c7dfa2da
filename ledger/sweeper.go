package ledger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper periodically removes ledger entries past their retention window.
type Sweeper struct {
	store    *Store
	interval time.Duration
	log      zerolog.Logger
}

// NewSweeper returns a sweeper that runs every interval.
func NewSweeper(store *Store, interval time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{store: store, interval: interval, log: log}
}

// Run sweeps on every tick until ctx is cancelled. A non-positive interval
// returns immediately.
func (w *Sweeper) Run(ctx context.Context) {
	if w == nil || w.store == nil || w.interval <= 0 {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepOnce(ctx)
		}
	}
}

func (w *Sweeper) sweepOnce(ctx context.Context) int {
	removed, err := w.store.SweepExpired(ctx, w.store.now())
	if err != nil {
		w.log.Warn().Err(err).Int("removed", removed).Msg("ledger sweep failed")
		return removed
	}
	if removed > 0 {
		w.log.Debug().Int("removed", removed).Msg("ledger sweep")
	}
	return removed
}
