package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/bft-labs/retransmit/internal/domain"
	"github.com/bft-labs/retransmit/internal/ports"
)

// ShutdownTimeout is the default time Close waits for in-flight retransmissions.
const ShutdownTimeout = 30 * time.Second

// DefaultMaxInFlight bounds the number of concurrently running transmitters.
const DefaultMaxInFlight = 64

// DispatcherConfig contains configuration for the dispatcher.
type DispatcherConfig struct {
	// Policy is applied to every transmitter the dispatcher starts
	Policy Policy

	// MaxInFlight bounds concurrently running transmitters. Extra ones wait.
	MaxInFlight int64
}

// Dispatcher sends clustering messages and hands failed ones to a
// Transmitter running on its own goroutine.
type Dispatcher struct {
	transport ports.Transport
	logger    ports.Logger
	policy    Policy
	opts      []TransmitterOption
	sem       *semaphore.Weighted

	// ctx outlives the Send caller; it is canceled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	// wg is only waited on by Close, after closed blocks further Adds.
	wg sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	inFlight map[*Transmitter]struct{}

	// idle is closed while inFlight is empty and replaced when it fills.
	idle chan struct{}

	sent     atomic.Uint64
	failed   atomic.Uint64
	canceled atomic.Uint64
}

// Stats counts message outcomes seen by a Dispatcher.
type Stats struct {
	Sent     uint64
	Failed   uint64
	Canceled uint64
}

// NewDispatcher creates a dispatcher delivering through transport.
// opts are applied to every transmitter after the dispatcher's policy and logger.
func NewDispatcher(transport ports.Transport, logger ports.Logger, cfg DispatcherConfig, opts ...TransmitterOption) *Dispatcher {
	if logger == nil {
		logger = nopLogger{}
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}

	ctx, cancel := context.WithCancel(context.Background())

	idle := make(chan struct{})
	close(idle)

	return &Dispatcher{
		transport: transport,
		logger:    logger,
		policy:    cfg.Policy.withDefaults(),
		opts:      opts,
		sem:       semaphore.NewWeighted(cfg.MaxInFlight),
		ctx:       ctx,
		cancel:    cancel,
		inFlight:  make(map[*Transmitter]struct{}),
		idle:      idle,
	}
}

// Send makes one delivery attempt and schedules retransmission on failure.
// A failed delivery is not reported to the caller; it returns an error only
// if the dispatcher is closed or ctx is done.
func (d *Dispatcher) Send(ctx context.Context, msg domain.Message) error {
	if d.isClosed() {
		return domain.ErrDispatcherClosed
	}

	err := d.transport.Deliver(ctx, msg, d.policy.Mode)
	if err == nil {
		d.sent.Add(1)
		d.logger.Debug("cluster message sent", ports.String("cluster_message", msg.String()))
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	d.logger.Warn("cluster message send failed, scheduling retransmission",
		ports.String("cluster_message", msg.String()),
		ports.Err(err),
	)

	_, err = d.Retransmit(msg)
	return err
}

// Retransmit starts a transmitter for msg in the background and returns it.
func (d *Dispatcher) Retransmit(msg domain.Message) (*Transmitter, error) {
	opts := make([]TransmitterOption, 0, len(d.opts)+2)
	opts = append(opts, WithPolicy(d.policy), WithLogger(d.logger))
	opts = append(opts, d.opts...)
	t := NewTransmitter(d.transport, msg, opts...)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, domain.ErrDispatcherClosed
	}
	if len(d.inFlight) == 0 {
		d.idle = make(chan struct{})
	}
	d.inFlight[t] = struct{}{}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer d.untrack(t)

		if err := d.sem.Acquire(d.ctx, 1); err != nil {
			d.canceled.Add(1)
			d.logger.Debug("retransmission dropped before start",
				ports.String("cluster_message", msg.String()),
				ports.Err(err),
			)
			return
		}
		defer d.sem.Release(1)

		// Cancellation is already recorded in the transmitter status.
		_ = t.Run(d.ctx)
		d.record(t)
	}()

	return t, nil
}

func (d *Dispatcher) record(t *Transmitter) {
	status := t.Status()
	if !status.Terminal() {
		d.logger.Warn("retransmission finished without an outcome",
			ports.String("cluster_message", t.Message().String()),
		)
		return
	}

	switch status {
	case domain.StatusSent:
		d.sent.Add(1)
	case domain.StatusFailed:
		d.failed.Add(1)
	case domain.StatusCanceled:
		d.canceled.Add(1)
	}
}

// Stats returns outcome counters. Messages still being retransmitted are not counted.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Sent:     d.sent.Load(),
		Failed:   d.failed.Load(),
		Canceled: d.canceled.Load(),
	}
}

// InFlight returns the number of retransmissions that have not finished.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inFlight)
}

// Drain waits until no retransmission is in flight or ctx is done.
// Retransmissions scheduled while Drain waits are waited for as well.
func (d *Dispatcher) Drain(ctx context.Context) error {
	for {
		d.mu.Lock()
		idle := d.idle
		d.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}

		d.mu.Lock()
		empty := len(d.inFlight) == 0
		d.mu.Unlock()
		if empty {
			return nil
		}
	}
}

// Close stops accepting messages, cancels in-flight retransmissions and
// waits for them up to timeout.
// Returns ErrShutdownTimeout if the timeout expires.
func (d *Dispatcher) Close(timeout time.Duration) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	pending := len(d.inFlight)
	d.mu.Unlock()

	if pending > 0 {
		d.logger.Info("canceling in-flight retransmissions", ports.Int("count", pending))
	}
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		d.logger.Warn("shutdown timeout, abandoning retransmissions",
			ports.Duration("timeout", timeout),
		)
		return domain.ErrShutdownTimeout
	}
}

func (d *Dispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Dispatcher) untrack(t *Transmitter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, t)
	if len(d.inFlight) == 0 {
		close(d.idle)
	}
}
