/*
reconcile.go - Availability reconciliation

PURPOSE:
  On-demand audit that recomputes ledger entries against authoritative
  capacity and repairs drift. For every availability row where
  availableCount > totalQuantity, the count is clamped down to
  totalQuantity and a correction record is emitted.

WHY ONLY DOWNWARD?
  A count above capacity is bookkeeping drift (owner capacity reductions,
  a buggy credit) and clamping it cannot hurt anyone holding a
  reservation. Raising a count could oversell on top of already-confirmed
  holds, so the reconciler never does it, and it never goes below zero.

SAFETY:
  The clamp is a conditional write (only applied while the row still
  exceeds the cap), so the reconciler can run concurrently with live
  traffic and is re-runnable: a second pass over repaired rows finds
  nothing to do.

SEE ALSO:
  - store.go: ListOversold / ClampAvailability contracts
*/
package booking

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// RECONCILER
// =============================================================================

// Reconciler repairs availability rows that exceed authoritative capacity.
type Reconciler struct {
	store Store
	now   func() time.Time
}

func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store, now: time.Now}
}

// Run scans every availability entry and clamps the oversold ones,
// persisting one correction record per repaired row. It returns the
// corrections applied in this pass. A row repaired by a concurrent actor
// between the scan and the clamp is skipped silently.
func (r *Reconciler) Run(ctx context.Context) ([]Correction, error) {
	oversold, err := r.store.ListOversold(ctx)
	if err != nil {
		return nil, err
	}

	corrections := make([]Correction, 0, len(oversold))
	at := r.now().UTC()

	for _, entry := range oversold {
		applied, err := r.store.ClampAvailability(ctx, entry.RoomTypeID, entry.Date, entry.TotalQuantity)
		if err != nil {
			log.Printf("[Reconciler] Failed to clamp %s on %s: %v", entry.RoomTypeID, entry.Date, err)
			continue
		}
		if !applied {
			continue
		}

		c := Correction{
			ID:          uuid.NewString(),
			RoomTypeID:  entry.RoomTypeID,
			Date:        entry.Date,
			From:        entry.Available,
			To:          entry.TotalQuantity,
			CorrectedAt: at,
		}
		if err := r.store.SaveCorrection(ctx, c); err != nil {
			log.Printf("[Reconciler] Clamped %s on %s but failed to record correction: %v",
				entry.RoomTypeID, entry.Date, err)
		}
		corrections = append(corrections, c)
		log.Printf("[Reconciler] Corrected %s on %s: %d -> %d",
			entry.RoomTypeID, entry.Date, entry.Available, entry.TotalQuantity)
	}

	return corrections, nil
}
