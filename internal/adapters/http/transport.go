package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/bft-labs/retransmit/internal/domain"
	"github.com/bft-labs/retransmit/internal/ports"
)

const clusterMessagesEndpoint = "/v1/cluster/messages"

// Header names sent with every delivery.
const (
	HeaderNodeID       = "X-Cluster-Node-Id"
	HeaderMessageID    = "X-Cluster-Message-Id"
	HeaderDeliveryMode = "X-Cluster-Delivery-Mode"
)

// maxErrorBody caps how much of a failed response body ends up in the error.
const maxErrorBody = 512

// Transport implements ports.Transport by POSTing the message to every peer.
type Transport struct {
	client  ports.HTTPClient
	logger  ports.Logger
	nodeID  string
	authKey string

	mu    sync.RWMutex
	peers []string
}

// NewTransport creates a new HTTP transport for the given peer base URLs.
func NewTransport(client ports.HTTPClient, logger ports.Logger, nodeID, authKey string, peers []string) *Transport {
	t := &Transport{
		client:  client,
		logger:  logger,
		nodeID:  nodeID,
		authKey: authKey,
	}
	t.SetPeers(peers)
	return t
}

// SetPeers replaces the peer list used by subsequent deliveries.
func (t *Transport) SetPeers(peers []string) {
	normalized := make([]string, 0, len(peers))
	for _, p := range peers {
		p = strings.TrimRight(strings.TrimSpace(p), "/")
		if p != "" {
			normalized = append(normalized, p)
		}
	}

	t.mu.Lock()
	t.peers = normalized
	t.mu.Unlock()
}

// Peers returns a copy of the current peer list.
func (t *Transport) Peers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.peers...)
}

// Deliver sends msg to every peer. The delivery succeeds only if every peer
// accepts it; in fire-and-forget mode the response status is not inspected.
func (t *Transport) Deliver(ctx context.Context, msg domain.Message, mode domain.DeliveryMode) error {
	peers := t.Peers()
	if len(peers) == 0 {
		return domain.ErrNoPeers
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	var errs []error
	for _, peer := range peers {
		if err := t.deliverTo(ctx, peer, body, msg, mode); err != nil {
			t.logger.Debug("peer rejected cluster message",
				ports.String("peer", peer),
				ports.String("cluster_message", msg.String()),
				ports.Err(err),
			)
			errs = append(errs, fmt.Errorf("peer %s: %w", peer, err))
		}
	}

	return errors.Join(errs...)
}

func (t *Transport) deliverTo(ctx context.Context, peer string, body []byte, msg domain.Message, mode domain.DeliveryMode) error {
	url := peer + clusterMessagesEndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderNodeID, t.nodeID)
	req.Header.Set(HeaderMessageID, msg.ID)
	req.Header.Set(HeaderDeliveryMode, mode.String())
	if t.authKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.authKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if mode == domain.ModeFireAndForget {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

var _ ports.Transport = (*Transport)(nil)
