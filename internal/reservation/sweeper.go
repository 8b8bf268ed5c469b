package reservation

import (
	"context"
	"log"
	"time"

	"github.com/tripwell/booking-platform/internal/clock"
)

const defaultSweepInterval = 60 * time.Second

// Sweeper reclaims inventory from pending reservations whose hold has
// lapsed. It is the backstop for orchestrators that died between Create and
// Confirm/Cancel. A sweep races benignly with late Confirm/Cancel calls:
// the reservation row lock orders the transactions, and the loser observes
// a non-pending row.
type Sweeper struct {
	store    Store
	ledger   Ledger
	clock    clock.Clock
	interval time.Duration
	service  string
}

func NewSweeper(store Store, ledger Ledger, clk clock.Clock, interval time.Duration, service string) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		store:    store,
		ledger:   ledger,
		clock:    clk,
		interval: interval,
		service:  service,
	}
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				log.Printf("%s: expiry sweep: %v", s.service, err)
				continue
			}
			if n > 0 {
				log.Printf("%s: expired %d reservations", s.service, n)
			}
		}
	}
}

// SweepOnce expires every lapsed pending reservation and restores its
// ledger quantity, all in a single transaction.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.clock.Now()
	var n int

	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		expired, err := s.store.ListExpiredForUpdate(txCtx, now)
		if err != nil {
			return err
		}
		for _, res := range expired {
			if err := s.store.SetStatus(txCtx, res.ID, StatusExpired, nil, now); err != nil {
				return err
			}
			if err := s.ledger.Release(txCtx, res.ResourceID, res.Quantity); err != nil {
				return err
			}
		}
		n = len(expired)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
