/*
webhook.go - Payment webhook adapter

PURPOSE:
  Translates verified payment-gateway events into lifecycle transitions.
  Signature and authenticity verification happen upstream; by the time an
  event reaches ProcessEvent it is trusted.

IDEMPOTENCY:
  Gateways redeliver. The external payment id is recorded in the same
  transaction as the state change, so a second delivery of the same event
  observes the record and becomes a no-op: no double confirm, no double
  credit.

OUTCOME MAPPING:
  success -> PAYMENT_SUBMITTED -> CONFIRMED (capacity stays held)
  failure -> PAYMENT_SUBMITTED -> REJECTED  (range credited back)

There is no synchronous caller to notify, so processing failures are
surfaced to the HTTP layer for logging and left to gateway redelivery.
*/
package booking

import (
	"context"
	"fmt"
	"log"
	"time"
)

// =============================================================================
// WEBHOOK ADAPTER
// =============================================================================

// WebhookAdapter applies verified payment events to reservations. It
// shares the transition helpers with the Controller rather than calling
// it, so the event record and the transition commit in one transaction.
type WebhookAdapter struct {
	store TxStore
	now   func() time.Time
}

type WebhookAdapterOption func(*WebhookAdapter)

// WithWebhookClock overrides the time source (tests).
func WithWebhookClock(now func() time.Time) WebhookAdapterOption {
	return func(a *WebhookAdapter) {
		if now != nil {
			a.now = now
		}
	}
}

func NewWebhookAdapter(store TxStore, opts ...WebhookAdapterOption) *WebhookAdapter {
	a := &WebhookAdapter{store: store, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ProcessEvent applies one verified payment event. Redelivered events
// (same external payment id) return nil without touching anything.
func (a *WebhookAdapter) ProcessEvent(ctx context.Context, ev PaymentEvent) error {
	if ev.ExternalPaymentID == "" {
		return fmt.Errorf("payment event missing external payment id")
	}
	at := a.now().UTC()

	return a.store.WithTx(ctx, func(s Store) error {
		already, err := s.RecordWebhookEvent(ctx, WebhookEvent{
			ExternalPaymentID: ev.ExternalPaymentID,
			ReservationID:     ev.ReservationID,
			Outcome:           ev.Outcome,
			ProcessedAt:       at,
		})
		if err != nil {
			return err
		}
		if already {
			log.Printf("[Webhook] Duplicate delivery of payment event %s, ignoring", ev.ExternalPaymentID)
			return nil
		}

		switch ev.Outcome {
		case PaymentSucceeded:
			_, err = confirmIn(ctx, s, ev.ReservationID, at)
		case PaymentFailed:
			_, err = releaseIn(ctx, s, ev.ReservationID,
				[]ReservationStatus{StatusPaymentSubmitted}, StatusRejected, at)
		default:
			return fmt.Errorf("unknown payment outcome %q", ev.Outcome)
		}
		return err
	})
}
