/*
sweeper.go - Expiry sweeper

PURPOSE:
  Periodically finds stale unpaid reservations and forces them through the
  EXPIRED transition, releasing their capacity holds.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Each overdue reservation is processed independently; one failure is
    logged and does not block the rest of the sweep
  - Idempotent: the EXPIRED transition re-checks current status, so a
    reservation resolved between the query and the transition is skipped

USAGE:
  sweeper := booking.NewSweeper(store, controller)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - lifecycle.go: Expire transition
*/
package booking

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// DefaultSweepInterval is how often the background sweep runs.
const DefaultSweepInterval = 1 * time.Hour

// =============================================================================
// SWEEPER
// =============================================================================

// Sweeper drives overdue reservations through expiry on a schedule.
type Sweeper struct {
	Store      Store
	Controller *Controller
	Interval   time.Duration
	Enabled    bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewSweeper(store Store, controller *Controller) *Sweeper {
	return &Sweeper{
		Store:      store,
		Controller: controller,
		Interval:   DefaultSweepInterval,
		Enabled:    true,
		stop:       make(chan struct{}),
	}
}

// Start begins the background sweep loop. The first sweep runs immediately.
func (sw *Sweeper) Start() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if !sw.Enabled {
		log.Println("[Sweeper] Disabled, not starting")
		return
	}

	sw.ticker = time.NewTicker(sw.Interval)
	sw.wg.Add(1)
	go sw.run()

	log.Printf("[Sweeper] Started with interval: %v", sw.Interval)
}

// Stop stops the background loop and waits for an in-flight sweep.
func (sw *Sweeper) Stop() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.ticker != nil {
		sw.ticker.Stop()
		close(sw.stop)
		sw.wg.Wait()
		log.Println("[Sweeper] Stopped")
	}
}

func (sw *Sweeper) run() {
	defer sw.wg.Done()

	sw.sweep()

	for {
		select {
		case <-sw.ticker.C:
			sw.sweep()
		case <-sw.stop:
			return
		}
	}
}

func (sw *Sweeper) sweep() {
	expired, skipped, err := sw.SweepOnce(context.Background(), time.Now().UTC())
	if err != nil {
		log.Printf("[Sweeper] Sweep failed: %v", err)
		return
	}
	if expired > 0 || skipped > 0 {
		log.Printf("[Sweeper] Completed: %d expired, %d skipped (already resolved)", expired, skipped)
	}
}

// SweepOnce performs one sweep pass: every reservation in a sweep-eligible
// status with paymentDeadline before now is expired. Returns how many were
// expired and how many were skipped because another actor resolved them
// first. A store failure on the overdue query aborts the pass (it will be
// retried on the next tick); a failure on one reservation does not.
func (sw *Sweeper) SweepOnce(ctx context.Context, now time.Time) (expired, skipped int, err error) {
	overdue, err := sw.Store.FindOverdue(ctx, now, sw.Controller.SweepStates())
	if err != nil {
		return 0, 0, err
	}

	for _, res := range overdue {
		if _, err := sw.Controller.Expire(ctx, res.ID, now); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				// Lost the race to a payment, cancellation or an earlier
				// sweep. Nothing to do.
				skipped++
				continue
			}
			log.Printf("[Sweeper] Failed to expire reservation %s: %v", res.ID, err)
			continue
		}
		expired++
	}
	return expired, skipped, nil
}
