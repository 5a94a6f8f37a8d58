package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/bft-labs/retransmit/internal/domain"
	"github.com/bft-labs/retransmit/internal/ports"
)

// Default retry policy values.
const (
	DefaultMaxRetryCount = 3
	DefaultRetryDelay    = 2 * time.Second
	DefaultMode          = domain.ModeRPC
)

// Policy fixes how a Transmitter retries. It cannot change once the
// transmitter has been created.
type Policy struct {
	// MaxRetryCount is the maximum number of delivery attempts
	MaxRetryCount int

	// RetryDelay is the pause between two consecutive attempts
	RetryDelay time.Duration

	// Mode is passed unchanged to the transport on every attempt
	Mode domain.DeliveryMode
}

// DefaultPolicy returns the policy used when none is supplied.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetryCount: DefaultMaxRetryCount,
		RetryDelay:    DefaultRetryDelay,
		Mode:          DefaultMode,
	}
}

// withDefaults replaces non-positive values with their defaults.
func (p Policy) withDefaults() Policy {
	if p.MaxRetryCount <= 0 {
		p.MaxRetryCount = DefaultMaxRetryCount
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = DefaultRetryDelay
	}
	return p
}

// Transmitter retransmits a single failed clustering message.
// It attempts delivery up to MaxRetryCount times with RetryDelay between
// attempts and stops at the first success. A Transmitter runs once.
type Transmitter struct {
	transport ports.Transport
	msg       domain.Message
	policy    Policy
	logger    ports.Logger
	clock     clockwork.Clock

	attempts atomic.Int32
	status   atomic.Int32
	started  atomic.Bool
}

// TransmitterOption configures a Transmitter.
type TransmitterOption func(*Transmitter)

// WithPolicy sets the retry policy. Zero fields fall back to the defaults.
func WithPolicy(p Policy) TransmitterOption {
	return func(t *Transmitter) {
		t.policy = p
	}
}

// WithLogger sets the logger that receives attempt and failure records.
func WithLogger(logger ports.Logger) TransmitterOption {
	return func(t *Transmitter) {
		t.logger = logger
	}
}

// WithClock replaces the clock used for the inter-attempt wait.
func WithClock(clock clockwork.Clock) TransmitterOption {
	return func(t *Transmitter) {
		t.clock = clock
	}
}

// NewTransmitter creates a transmitter for msg with an attempt count of zero.
func NewTransmitter(transport ports.Transport, msg domain.Message, opts ...TransmitterOption) *Transmitter {
	t := &Transmitter{
		transport: transport,
		msg:       msg,
		policy:    DefaultPolicy(),
		logger:    nopLogger{},
		clock:     clockwork.NewRealClock(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	t.policy = t.policy.withDefaults()

	return t
}

// Run attempts delivery until the message is sent or the retry count is reached.
//
// Delivery failures are logged and never returned. If ctx is canceled the loop
// stops without further attempts and Run returns ctx.Err(); otherwise it
// returns nil whatever the outcome. Use Status to inspect the result.
func (t *Transmitter) Run(ctx context.Context) error {
	if !t.started.CompareAndSwap(false, true) {
		return domain.ErrAlreadyRun
	}

	for int(t.attempts.Load()) < t.policy.MaxRetryCount {
		if err := ctx.Err(); err != nil {
			return t.canceled(err)
		}

		t.logger.Debug("retransmitting cluster message",
			ports.String("cluster_message", t.msg.String()),
			ports.Int("retry_count", int(t.attempts.Load())),
			ports.String("mode", t.policy.Mode.String()),
		)

		err := t.transport.Deliver(ctx, t.msg, t.policy.Mode)
		retryCount := int(t.attempts.Add(1)) - 1

		if err == nil {
			t.status.Store(int32(domain.StatusSent))
			t.logger.Debug("cluster message retransmitted",
				ports.String("cluster_message", t.msg.String()),
				ports.Int("attempts", retryCount+1),
			)
			return nil
		}

		// A delivery aborted by cancellation is not a transport fault.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return t.canceled(ctxErr)
		}

		t.logger.Error("failed to send cluster message",
			ports.String("cluster_message", t.msg.String()),
			ports.Int("retry_count", retryCount),
			ports.Err(&domain.TransportFault{Attempt: retryCount, Err: err}),
		)

		if retryCount+1 >= t.policy.MaxRetryCount {
			break
		}

		if err := t.wait(ctx); err != nil {
			return t.canceled(err)
		}
	}

	t.status.Store(int32(domain.StatusFailed))
	t.logger.Error("permanently failed to send cluster message, no further attempts will be made",
		ports.String("cluster_message", t.msg.String()),
		ports.Int("max_retry_count", t.policy.MaxRetryCount),
		ports.Err(domain.ErrRetryExhausted),
	)

	return nil
}

// wait suspends for RetryDelay. It is the only point where Run blocks
// outside the transport.
func (t *Transmitter) wait(ctx context.Context) error {
	timer := t.clock.NewTimer(t.policy.RetryDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}

func (t *Transmitter) canceled(err error) error {
	t.status.Store(int32(domain.StatusCanceled))
	t.logger.Debug("cluster message retransmission canceled",
		ports.String("cluster_message", t.msg.String()),
		ports.Int("attempts", int(t.attempts.Load())),
	)
	return err
}

// Attempts returns the number of delivery attempts made so far.
func (t *Transmitter) Attempts() int {
	return int(t.attempts.Load())
}

// Status returns the current outcome.
// Safe to call concurrently with Run.
func (t *Transmitter) Status() domain.Status {
	return domain.Status(t.status.Load())
}

// Message returns the message being retransmitted.
func (t *Transmitter) Message() domain.Message {
	return t.msg
}

// Policy returns the effective retry policy.
func (t *Transmitter) Policy() Policy {
	return t.policy
}

// nopLogger discards all log messages.
type nopLogger struct{}

func (nopLogger) Debug(msg string, fields ...ports.Field) {}
func (nopLogger) Info(msg string, fields ...ports.Field)  {}
func (nopLogger) Warn(msg string, fields ...ports.Field)  {}
func (nopLogger) Error(msg string, fields ...ports.Field) {}
