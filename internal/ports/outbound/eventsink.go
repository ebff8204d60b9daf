package outbound

import (
	"context"
	"time"
)

// TxEvent is published after a transaction bundle is confirmed.
type TxEvent struct {
	// ID is the history record ID.
	ID string `json:"id"`

	// Kind is the transaction kind, e.g. LOOP.
	Kind string `json:"kind"`

	// Wallet is the base58 wallet address.
	Wallet string `json:"wallet"`

	// Group is the base58 group address.
	Group string `json:"group"`

	// Signatures are the confirmed transaction signatures in submission order.
	Signatures []string `json:"signatures"`

	// ConfirmedAt is when confirmation was observed.
	ConfirmedAt time.Time `json:"confirmedAt"`
}

// EventSink publishes transaction events.
type EventSink interface {
	// Publish publishes an event.
	Publish(ctx context.Context, event TxEvent) error

	// Close closes the sink and releases any resources.
	Close() error
}
