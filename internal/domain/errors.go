package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent error conditions in the retransmit domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrAlreadyRun is returned when Run() is called twice on the same transmitter.
	ErrAlreadyRun = errors.New("retransmit: transmitter already run")

	// ErrRetryExhausted marks a message that was never delivered within the retry bound.
	// It is only ever logged, never returned from a transmitter.
	ErrRetryExhausted = errors.New("retransmit: retry count exhausted")

	// ErrShutdownTimeout is returned when in-flight retries outlive the shutdown timeout.
	ErrShutdownTimeout = errors.New("retransmit: shutdown timeout")

	// ErrDispatcherClosed is returned by Send after the dispatcher has been closed.
	ErrDispatcherClosed = errors.New("retransmit: dispatcher closed")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("retransmit: invalid configuration")

	// ErrNoPeers is returned by transports that have nowhere to deliver to.
	ErrNoPeers = errors.New("retransmit: no peers configured")
)

// TransportFault records a single failed delivery attempt.
type TransportFault struct {
	// Attempt is the zero-based retry count at the time of the failure
	Attempt int

	// Err is the cause reported by the transport
	Err error
}

func (f *TransportFault) Error() string {
	return fmt.Sprintf("transport fault on attempt %d: %v", f.Attempt+1, f.Err)
}

func (f *TransportFault) Unwrap() error {
	return f.Err
}
