package lgpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordian-engine/gledger/gcrypto"
	"github.com/gordian-engine/gledger/lg/lgtransport"
)

// NodeEndpoint is the configuration of one pool node.
type NodeEndpoint struct {
	Name    string
	Address string

	// PubKey verifies the node's reply signatures.
	// Replies from nodes without a configured key are not signature checked.
	PubKey gcrypto.PubKey

	// ProtocolVersion, when non-zero, is the version the node speaks.
	// A node whose version differs from the pool's is never sent requests.
	ProtocolVersion uint32
}

// NodeState is the health of a node as last observed by the pool.
type NodeState uint8

const (
	NodeUnknown NodeState = iota
	NodeReachable
	NodeUnreachable
)

func (s NodeState) String() string {
	switch s {
	case NodeUnknown:
		return "Unknown"
	case NodeReachable:
		return "Reachable"
	case NodeUnreachable:
		return "Unreachable"
	default:
		return fmt.Sprintf("NodeState(%d)", uint8(s))
	}
}

// NodeHealth is a snapshot of one node's health.
type NodeHealth struct {
	Name  string
	State NodeState

	// Failures is the number of consecutive failed round trips.
	Failures int

	// RetryAt is when an unreachable node becomes eligible again.
	RetryAt time.Time

	LastErr error
}

// node is the pool's mutable view of an endpoint.
// All fields after mu are guarded by mu.
type node struct {
	idx int
	ep  NodeEndpoint

	// Whether the node speaks the pool's protocol version.
	compatible bool

	// 1-buffered; held while dialing so concurrent round trips share one connection.
	// Dials never hold mu, so health reads stay prompt while a dial hangs.
	dialing chan struct{}

	mu       sync.Mutex
	conn     lgtransport.Conn
	state    NodeState
	failures int
	retryAt  time.Time
	lastErr  error
}

func (n *node) eligible(now time.Time) bool {
	if !n.compatible {
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	return n.state != NodeUnreachable || !now.Before(n.retryAt)
}

func (n *node) health() NodeHealth {
	n.mu.Lock()
	defer n.mu.Unlock()

	return NodeHealth{
		Name:     n.ep.Name,
		State:    n.state,
		Failures: n.failures,
		RetryAt:  n.retryAt,
		LastErr:  n.lastErr,
	}
}

// getConn returns the node's connection, dialing if necessary.
func (n *node) getConn(ctx context.Context, t lgtransport.Transport) (lgtransport.Conn, error) {
	if c := n.currentConn(); c != nil {
		return c, nil
	}

	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case n.dialing <- struct{}{}:
	}
	defer func() { <-n.dialing }()

	// Another round trip may have connected while this one waited.
	if c := n.currentConn(); c != nil {
		return c, nil
	}

	c, err := t.Dial(ctx, n.ep.Address)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	n.conn = c
	n.mu.Unlock()
	return c, nil
}

func (n *node) currentConn() lgtransport.Conn {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conn
}

func (n *node) recordSuccess(log *slog.Logger) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == NodeUnreachable {
		log.Info("Node reachable again", "node", n.ep.Name, "after_failures", n.failures)
	}
	n.state = NodeReachable
	n.failures = 0
	n.retryAt = time.Time{}
	n.lastErr = nil
}

// recordFailure marks the node unreachable and schedules its next retry.
// The failed connection is dropped so the next attempt redials.
func (n *node) recordFailure(log *slog.Logger, err error, now time.Time, initial, max time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.failures++
	backoff := backoffFor(n.failures, initial, max)
	n.retryAt = now.Add(backoff)
	n.lastErr = err

	if n.state != NodeUnreachable {
		log.Info(
			"Node unreachable",
			"node", n.ep.Name,
			"retry_in", backoff,
			"err", err,
		)
	} else {
		log.Debug(
			"Node still unreachable",
			"node", n.ep.Name,
			"failures", n.failures,
			"retry_in", backoff,
			"err", err,
		)
	}
	n.state = NodeUnreachable

	if n.conn != nil {
		if cErr := n.conn.Close(); cErr != nil && !errors.Is(cErr, lgtransport.ErrConnClosed) {
			log.Debug("Failed to close connection to failed node", "node", n.ep.Name, "err", cErr)
		}
		n.conn = nil
	}
}

func (n *node) close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	n.conn = nil
	return err
}

// backoffFor returns initial * 2^(failures-1), capped at max.
func backoffFor(failures int, initial, max time.Duration) time.Duration {
	if failures < 1 {
		return 0
	}
	d := initial
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= max || d <= 0 {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
