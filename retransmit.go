// Package retransmit delivers clustering control messages to peer nodes with
// bounded retries.
//
// A message that fails to send is handed to a Transmitter, which retries it up
// to Policy.MaxRetryCount times with Policy.RetryDelay between attempts and
// logs a permanent failure if every attempt fails.
//
// Example usage:
//
//	t := retransmit.NewTransmitter(transport, retransmit.NewMessage("session-invalidation", payload),
//	    retransmit.WithPolicy(retransmit.DefaultPolicy()),
//	    retransmit.WithLogger(logger),
//	)
//	go t.Run(ctx)
package retransmit

import (
	"github.com/bft-labs/retransmit/internal/app"
	"github.com/bft-labs/retransmit/internal/domain"
	"github.com/bft-labs/retransmit/internal/ports"
)

// Message is a clustering control message.
type Message = domain.Message

// DeliveryMode selects request/response or fire-and-forget delivery.
type DeliveryMode = domain.DeliveryMode

// Delivery modes.
const (
	ModeRPC           = domain.ModeRPC
	ModeFireAndForget = domain.ModeFireAndForget
)

// Status is the outcome of a Transmitter.
type Status = domain.Status

// Transmitter outcomes.
const (
	StatusPending  = domain.StatusPending
	StatusSent     = domain.StatusSent
	StatusFailed   = domain.StatusFailed
	StatusCanceled = domain.StatusCanceled
)

// Transport delivers a message once.
type Transport = ports.Transport

// TransportFunc adapts a function to Transport.
type TransportFunc = ports.TransportFunc

// Logger receives attempt and failure records.
type Logger = ports.Logger

// Policy fixes the retry bound, delay and delivery mode of a Transmitter.
type Policy = app.Policy

// Transmitter retries delivery of one message.
type Transmitter = app.Transmitter

// TransmitterOption configures a Transmitter.
type TransmitterOption = app.TransmitterOption

// Dispatcher sends messages and retransmits failed ones in the background.
type Dispatcher = app.Dispatcher

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig = app.DispatcherConfig

// Errors reported by the package.
var (
	ErrAlreadyRun       = domain.ErrAlreadyRun
	ErrRetryExhausted   = domain.ErrRetryExhausted
	ErrDispatcherClosed = domain.ErrDispatcherClosed
	ErrShutdownTimeout  = domain.ErrShutdownTimeout
)

// TransportFault wraps a single failed delivery attempt.
type TransportFault = domain.TransportFault

// NewMessage creates a message with a fresh ID.
func NewMessage(kind string, payload []byte) Message {
	return domain.NewMessage(kind, payload)
}

// DefaultPolicy returns 3 attempts, 2s apart, in RPC mode.
func DefaultPolicy() Policy {
	return app.DefaultPolicy()
}

// NewTransmitter creates a transmitter for msg.
func NewTransmitter(transport Transport, msg Message, opts ...TransmitterOption) *Transmitter {
	return app.NewTransmitter(transport, msg, opts...)
}

// WithPolicy sets the retry policy.
func WithPolicy(p Policy) TransmitterOption {
	return app.WithPolicy(p)
}

// WithLogger sets the transmitter logger.
func WithLogger(logger Logger) TransmitterOption {
	return app.WithLogger(logger)
}

// NewDispatcher creates a dispatcher delivering through transport.
func NewDispatcher(transport Transport, logger Logger, cfg DispatcherConfig, opts ...TransmitterOption) *Dispatcher {
	return app.NewDispatcher(transport, logger, cfg, opts...)
}
