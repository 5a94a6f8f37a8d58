// Package nats delivers clustering messages over a NATS subject.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/bft-labs/retransmit/internal/domain"
	"github.com/bft-labs/retransmit/internal/ports"
)

// DefaultSubject is the subject cluster peers subscribe to.
const DefaultSubject = "cluster.messages"

// DefaultTimeout bounds a request or flush when the caller's context has no deadline.
const DefaultTimeout = 5 * time.Second

// Header names set on every published message.
const (
	HeaderNodeID       = "Cluster-Node-Id"
	HeaderMessageID    = "Cluster-Message-Id"
	HeaderDeliveryMode = "Cluster-Delivery-Mode"

	// HeaderError is set by a peer on its reply to reject a message.
	HeaderError = "Cluster-Error"
)

// Conn is the subset of *nats.Conn used by Transport.
type Conn interface {
	PublishMsg(m *nats.Msg) error
	RequestMsgWithContext(ctx context.Context, msg *nats.Msg) (*nats.Msg, error)
	FlushWithContext(ctx context.Context) error
}

// Transport implements ports.Transport on top of NATS.
// RPC mode uses request/reply and requires a peer acknowledgement;
// fire-and-forget mode publishes and flushes.
type Transport struct {
	conn    Conn
	logger  ports.Logger
	nodeID  string
	subject string
	timeout time.Duration
}

// NewTransport creates a NATS transport publishing to subject.
func NewTransport(conn Conn, logger ports.Logger, nodeID, subject string, timeout time.Duration) *Transport {
	if subject == "" {
		subject = DefaultSubject
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Transport{
		conn:    conn,
		logger:  logger,
		nodeID:  nodeID,
		subject: subject,
		timeout: timeout,
	}
}

// Dial connects to the NATS server at url.
func Dial(url, nodeID, token string, timeout time.Duration) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("retransmit-" + nodeID),
		nats.Timeout(timeout),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}

// Deliver publishes msg once using the given mode.
func (t *Transport) Deliver(ctx context.Context, msg domain.Message, mode domain.DeliveryMode) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	m := nats.NewMsg(t.subject)
	m.Data = data
	m.Header.Set(HeaderNodeID, t.nodeID)
	m.Header.Set(HeaderMessageID, msg.ID)
	m.Header.Set(HeaderDeliveryMode, mode.String())

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	if mode == domain.ModeFireAndForget {
		if err := t.conn.PublishMsg(m); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		if err := t.conn.FlushWithContext(ctx); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
		return nil
	}

	reply, err := t.conn.RequestMsgWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	if reason := reply.Header.Get(HeaderError); reason != "" {
		return fmt.Errorf("peer rejected message: %s", reason)
	}

	t.logger.Debug("cluster message acknowledged",
		ports.String("subject", t.subject),
		ports.String("cluster_message", msg.String()),
	)
	return nil
}

// withTimeout applies the transport timeout unless ctx already has a deadline.
func (t *Transport) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, t.timeout)
}

var (
	_ ports.Transport = (*Transport)(nil)
	_ Conn            = (*nats.Conn)(nil)
)
