package app

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/retransmit/internal/domain"
)

// blockingTransport fails every delivery and reports each call.
type blockingTransport struct {
	calls atomic.Int32
	seen  chan string
}

func (b *blockingTransport) Deliver(ctx context.Context, msg domain.Message, mode domain.DeliveryMode) error {
	b.calls.Add(1)
	if b.seen != nil {
		b.seen <- msg.ID
	}
	return errPeerUnreachable
}

func TestDispatcher_SendDeliveredFirstTime(t *testing.T) {
	transport := &scriptedTransport{}
	d := NewDispatcher(transport, &captureLogger{}, DispatcherConfig{Policy: testPolicy(time.Millisecond)})
	defer d.Close(time.Second)

	require.NoError(t, d.Send(context.Background(), domain.NewMessage(domain.KindSessionInvalidation, nil)))
	require.Len(t, transport.Calls(), 1)
	require.Zero(t, d.InFlight())
	require.Equal(t, Stats{Sent: 1}, d.Stats())
}

func TestDispatcher_SendRetransmitsOnFailure(t *testing.T) {
	transport := &scriptedTransport{failures: 2}
	logger := &captureLogger{}
	d := NewDispatcher(transport, logger, DispatcherConfig{Policy: testPolicy(time.Millisecond)})
	defer d.Close(time.Second)

	require.NoError(t, d.Send(context.Background(), domain.NewMessage(domain.KindSessionInvalidation, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Drain(ctx))

	// One direct send, one failed retransmission, one successful retransmission.
	require.Len(t, transport.Calls(), 3)
	require.Equal(t, 1, logger.count("WARN", "cluster message send failed, scheduling retransmission"))
	require.Zero(t, logger.permanentFailures())
	require.Zero(t, d.InFlight())
	require.Equal(t, Stats{Sent: 1}, d.Stats())
}

func TestDispatcher_RetransmitExhausts(t *testing.T) {
	transport := &scriptedTransport{failures: -1}
	logger := &captureLogger{}
	d := NewDispatcher(transport, logger, DispatcherConfig{Policy: testPolicy(time.Millisecond)})
	defer d.Close(time.Second)

	tr, err := d.Retransmit(domain.NewMessage(domain.KindSessionLogout, nil))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Drain(ctx))

	require.Equal(t, domain.StatusFailed, tr.Status())
	require.Equal(t, 3, tr.Attempts())
	require.Equal(t, 1, logger.permanentFailures())
	require.Equal(t, Stats{Failed: 1}, d.Stats())
}

func TestDispatcher_CloseCancelsInFlight(t *testing.T) {
	clock := clockwork.NewFakeClock()
	transport := &scriptedTransport{failures: -1, clock: clock}
	logger := &captureLogger{}
	d := NewDispatcher(transport, logger, DispatcherConfig{Policy: testPolicy(time.Minute)}, WithClock(clock))

	tr, err := d.Retransmit(domain.NewMessage(domain.KindSessionInvalidation, nil))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	require.Equal(t, 1, d.InFlight())

	require.NoError(t, d.Close(5*time.Second))

	require.Equal(t, domain.StatusCanceled, tr.Status())
	require.Equal(t, 1, tr.Attempts())
	require.Zero(t, logger.permanentFailures())
	require.Zero(t, d.InFlight())
	require.Equal(t, Stats{Canceled: 1}, d.Stats())
}

func TestDispatcher_SendAfterClose(t *testing.T) {
	d := NewDispatcher(&scriptedTransport{}, nil, DispatcherConfig{})
	require.NoError(t, d.Close(time.Second))

	err := d.Send(context.Background(), domain.Message{})
	require.ErrorIs(t, err, domain.ErrDispatcherClosed)

	_, err = d.Retransmit(domain.Message{})
	require.ErrorIs(t, err, domain.ErrDispatcherClosed)

	// Closing twice is a no-op.
	require.NoError(t, d.Close(time.Second))
}

func TestDispatcher_SendCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	transport := &scriptedTransport{failures: -1, onCall: func(int) { cancel() }}
	d := NewDispatcher(transport, nil, DispatcherConfig{})
	defer d.Close(time.Second)

	require.ErrorIs(t, d.Send(ctx, domain.Message{}), context.Canceled)
	require.Zero(t, d.InFlight())
}

func TestDispatcher_MaxInFlightBoundsTransmitters(t *testing.T) {
	clock := clockwork.NewFakeClock()
	transport := &blockingTransport{seen: make(chan string, 16)}
	d := NewDispatcher(transport, nil,
		DispatcherConfig{Policy: testPolicy(time.Minute), MaxInFlight: 1},
		WithClock(clock),
	)

	first := domain.NewMessage(domain.KindSessionInvalidation, nil)
	second := domain.NewMessage(domain.KindSessionInvalidation, nil)

	_, err := d.Retransmit(first)
	require.NoError(t, err)
	require.Equal(t, first.ID, <-transport.seen)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	_, err = d.Retransmit(second)
	require.NoError(t, err)

	// The second transmitter cannot start while the first holds the only slot.
	select {
	case id := <-transport.seen:
		t.Fatalf("unexpected delivery of %s while slot is held", id)
	case <-time.After(50 * time.Millisecond):
	}
	require.Equal(t, 2, d.InFlight())

	require.NoError(t, d.Close(5*time.Second))
	require.Equal(t, int32(1), transport.calls.Load())
	require.Equal(t, Stats{Canceled: 2}, d.Stats())
}

func TestDispatcher_ConcurrentSend(t *testing.T) {
	transport := &scriptedTransport{}
	d := NewDispatcher(transport, nil, DispatcherConfig{})
	defer d.Close(time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Send(context.Background(), domain.NewMessage(domain.KindSessionInvalidation, nil))
		}()
	}
	wg.Wait()

	require.Len(t, transport.Calls(), 20)
	require.Equal(t, uint64(20), d.Stats().Sent)
}

func TestDispatcher_DrainConcurrentWithRetransmit(t *testing.T) {
	transport := &scriptedTransport{}
	d := NewDispatcher(transport, nil, DispatcherConfig{Policy: testPolicy(time.Millisecond)})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := d.Retransmit(domain.NewMessage(domain.KindSessionInvalidation, nil)); err != nil {
				t.Errorf("Retransmit() error = %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := d.Drain(ctx); err != nil {
				t.Errorf("Drain() error = %v", err)
			}
		}()
	}
	wg.Wait()

	require.NoError(t, d.Drain(ctx))
	require.Zero(t, d.InFlight())
	require.Equal(t, uint64(200), d.Stats().Sent)
	require.NoError(t, d.Close(time.Second))
}

func TestDispatcher_DrainWaitsForLateRetransmit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	transport := &scriptedTransport{failures: 1, clock: clock}
	d := NewDispatcher(transport, nil, DispatcherConfig{Policy: testPolicy(time.Second)}, WithClock(clock))
	defer d.Close(time.Second)

	// Idle dispatcher drains immediately.
	require.NoError(t, d.Drain(context.Background()))

	_, err := d.Retransmit(domain.NewMessage(domain.KindSessionLogout, nil))
	require.NoError(t, err)

	drained := make(chan error, 1)
	go func() { drained <- d.Drain(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	select {
	case err := <-drained:
		t.Fatalf("Drain returned %v while a retransmission was waiting", err)
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(time.Second)
	select {
	case err := <-drained:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("Drain did not return after the retransmission finished")
	}
	require.Equal(t, Stats{Sent: 1}, d.Stats())
}

func TestDispatcher_DrainHonorsContext(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := NewDispatcher(&scriptedTransport{failures: -1, clock: clock}, nil,
		DispatcherConfig{Policy: testPolicy(time.Minute)}, WithClock(clock))

	_, err := d.Retransmit(domain.NewMessage(domain.KindSessionLogout, nil))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Drain(ctx), context.DeadlineExceeded)

	require.NoError(t, d.Close(5*time.Second))
	require.Zero(t, d.InFlight())
}
