package store

import (
	"context"
	"log"
	"time"
)

// Sweeper periodically reclaims expired challenges. Expiry is still enforced
// lazily on every read and write; the sweeper only bounds memory.
type Sweeper struct {
	store    Store
	interval time.Duration
}

// NewSweeper returns a Sweeper running at the given interval (default 1m if non-positive).
func NewSweeper(store Store, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{store: store, interval: interval}
}

// Run sweeps until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.store.Sweep(ctx); n > 0 {
				log.Printf("pairing: swept %d expired challenges", n)
			}
		}
	}
}
