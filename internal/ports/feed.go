package ports

import (
	"context"

	"github.com/tilldesk/receiptd/internal/domain"
)

// SubscriptionState is the queryable state of a realtime subscription.
type SubscriptionState int

const (
	SubscriptionIdle SubscriptionState = iota
	SubscriptionJoining
	SubscriptionSubscribed
	SubscriptionClosed
)

// String returns a human-readable representation of the state.
func (s SubscriptionState) String() string {
	switch s {
	case SubscriptionIdle:
		return "Idle"
	case SubscriptionJoining:
		return "Joining"
	case SubscriptionSubscribed:
		return "Subscribed"
	case SubscriptionClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Feed produces realtime notifications for rows inserted into the ledger.
type Feed interface {
	// Subscribe establishes a new subscription. A nil error means the
	// subscription is confirmed and events will flow until Done fires.
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription is one live realtime feed. Exactly one subscription is
// current at a time; the intake controller closes a superseded
// subscription before creating the next.
type Subscription interface {
	// Events delivers inserted rows whose status is pending.
	Events() <-chan domain.Job

	// Done is closed when the subscription disconnects or errors.
	Done() <-chan struct{}

	// Err reports the cause after Done is closed, nil before.
	Err() error

	// State reports the current subscription state.
	State() SubscriptionState

	// Close releases the subscription. Idempotent.
	Close()
}
