package ports

import (
	"context"

	"github.com/bft-labs/retransmit/internal/domain"
)

// Transport delivers clustering messages to peer nodes.
// A single call is one delivery attempt; retries are the caller's concern.
type Transport interface {
	// Deliver sends the message once using the given mode.
	// Returns nil on success and the failure cause otherwise.
	Deliver(ctx context.Context, msg domain.Message, mode domain.DeliveryMode) error
}

// TransportFunc adapts an ordinary function to the Transport interface.
type TransportFunc func(ctx context.Context, msg domain.Message, mode domain.DeliveryMode) error

// Deliver calls f(ctx, msg, mode).
func (f TransportFunc) Deliver(ctx context.Context, msg domain.Message, mode domain.DeliveryMode) error {
	return f(ctx, msg, mode)
}
