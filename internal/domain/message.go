package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Well-known message kinds broadcast between cluster nodes.
const (
	KindSessionInvalidation = "session-invalidation"
	KindSessionLogout       = "session-logout"
)

// Message is a clustering control message addressed to the peer nodes.
// The payload is opaque to everything except the transport.
type Message struct {
	// ID uniquely identifies the message across retransmissions
	ID string `json:"id"`

	// Kind names the control operation (e.g., "session-invalidation")
	Kind string `json:"kind"`

	// Payload is the transport-encoded message body
	Payload []byte `json:"payload"`

	// CreatedAt is when the message was first produced
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage creates a message with a fresh ID.
func NewMessage(kind string, payload []byte) Message {
	return Message{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// String returns a short description suitable for log lines.
// The payload is intentionally left out.
func (m Message) String() string {
	return fmt.Sprintf("%s[%s]", m.Kind, m.ID)
}

// DeliveryMode selects how a transport delivers a message.
type DeliveryMode int

const (
	// ModeRPC waits for every peer to acknowledge the message.
	ModeRPC DeliveryMode = iota

	// ModeFireAndForget hands the message off without waiting for replies.
	ModeFireAndForget
)

// String returns a human-readable representation of the mode.
func (m DeliveryMode) String() string {
	switch m {
	case ModeRPC:
		return "rpc"
	case ModeFireAndForget:
		return "fire-and-forget"
	default:
		return "unknown"
	}
}

// ModeFromRPC maps the boolean rpc flag used in configuration to a DeliveryMode.
func ModeFromRPC(rpc bool) DeliveryMode {
	if rpc {
		return ModeRPC
	}
	return ModeFireAndForget
}

// Status is the outcome of a retransmission.
type Status int32

const (
	StatusPending Status = iota
	StatusSent
	StatusFailed
	StatusCanceled
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusSent:
		return "Sent"
	case StatusFailed:
		return "Failed"
	case StatusCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Terminal returns true once no further delivery attempts will be made.
func (s Status) Terminal() bool {
	return s != StatusPending
}
