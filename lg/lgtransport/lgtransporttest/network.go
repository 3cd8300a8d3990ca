// Package lgtransporttest contains an in-memory transport
// and scripted node handlers for tests.
package lgtransporttest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gordian-engine/gledger/lg/lgtransport"
)

// ErrUnreachable is returned from round trips to an address
// with no registered handler, or one marked down.
var ErrUnreachable = errors.New("address unreachable")

// Network is an in-memory [lgtransport.Transport].
// Handlers are resolved at round trip time,
// so nodes can be registered, taken down and restored during a test.
type Network struct {
	mu       sync.RWMutex
	handlers map[string]lgtransport.Handler
	down     map[string]bool

	dials atomic.Int64
}

var _ lgtransport.Transport = (*Network)(nil)

func NewNetwork() *Network {
	return &Network{
		handlers: make(map[string]lgtransport.Handler),
		down:     make(map[string]bool),
	}
}

func (n *Network) Register(address string, h lgtransport.Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[address] = h
}

// SetDown controls whether round trips to address fail with [ErrUnreachable].
func (n *Network) SetDown(address string, down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down[address] = down
}

// Dials returns the number of Dial calls so far.
func (n *Network) Dials() int {
	return int(n.dials.Load())
}

func (n *Network) Dial(ctx context.Context, address string) (lgtransport.Conn, error) {
	n.dials.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &conn{n: n, address: address}, nil
}

func (n *Network) handler(address string) (lgtransport.Handler, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	h, ok := n.handlers[address]
	if !ok || n.down[address] {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, address)
	}
	return h, nil
}

type conn struct {
	n       *Network
	address string

	closed atomic.Bool
}

func (c *conn) RoundTrip(ctx context.Context, req []byte) ([]byte, error) {
	if c.closed.Load() {
		return nil, lgtransport.ErrConnClosed
	}

	h, err := c.n.handler(c.address)
	if err != nil {
		return nil, err
	}

	// Copy so handlers can't alias the caller's buffer.
	return h.HandleRequest(ctx, append([]byte(nil), req...))
}

func (c *conn) Close() error {
	c.closed.Store(true)
	return nil
}
