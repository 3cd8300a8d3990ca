// Package lgtransport defines how request bytes reach a ledger node
// and how reply bytes come back.
//
// A transport is message oriented: one request yields one reply.
// Encoding and validation of the messages is left to [lgcodec].
package lgtransport

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrConnClosed is returned from RoundTrip after the Conn has been closed.
var ErrConnClosed = errors.New("connection closed")

// Transport opens connections to nodes by address.
type Transport interface {
	Dial(ctx context.Context, address string) (Conn, error)
}

// Conn is a connection to a single node.
// RoundTrip must be safe for concurrent use.
type Conn interface {
	// RoundTrip sends req and returns the node's reply.
	// It must return promptly once ctx is cancelled.
	RoundTrip(ctx context.Context, req []byte) ([]byte, error)

	Close() error
}

// Handler is the node side of a transport.
type Handler interface {
	HandleRequest(ctx context.Context, req []byte) ([]byte, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req []byte) ([]byte, error)

func (f HandlerFunc) HandleRequest(ctx context.Context, req []byte) ([]byte, error) {
	return f(ctx, req)
}

// SchemeRouter is a Transport that delegates to other transports
// by the prefix of the address, such as "http://" or "/ip4/".
// Longer prefixes take precedence.
type SchemeRouter map[string]Transport

func (r SchemeRouter) Dial(ctx context.Context, address string) (Conn, error) {
	var (
		best   string
		target Transport
	)
	for prefix, t := range r {
		if strings.HasPrefix(address, prefix) && len(prefix) > len(best) {
			best, target = prefix, t
		}
	}

	if target == nil {
		return nil, fmt.Errorf("no transport for address %q", address)
	}
	return target.Dial(ctx, address)
}
