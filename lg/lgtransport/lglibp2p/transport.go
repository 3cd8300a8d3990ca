// Package lglibp2p carries ledger requests over libp2p streams.
//
// Each round trip opens a new stream using [ProtocolID].
// The request and the reply are each a single varint-length-prefixed message.
// Node addresses are full multiaddrs including the peer ID,
// such as "/ip4/127.0.0.1/tcp/9701/p2p/12D3KooW...".
package lglibp2p

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gordian-engine/gledger/lg/lgtransport"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-msgio"
	ma "github.com/multiformats/go-multiaddr"
)

const ProtocolID protocol.ID = "/gledger/ledger/1.0.0"

// MaxMessageSize bounds a single request or reply.
const MaxMessageSize = 1 << 20

var _ lgtransport.Transport = (*Transport)(nil)

// Transport dials nodes from a libp2p host owned by the caller.
type Transport struct {
	h host.Host
}

func NewTransport(h host.Host) *Transport {
	return &Transport{h: h}
}

func (t *Transport) Dial(ctx context.Context, address string) (lgtransport.Conn, error) {
	info, err := peer.AddrInfoFromString(address)
	if err != nil {
		return nil, fmt.Errorf("failed to parse libp2p address %q: %w", address, err)
	}

	if err := t.h.Connect(ctx, *info); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", info.ID, err)
	}

	return &conn{h: t.h, id: info.ID}, nil
}

type conn struct {
	h  host.Host
	id peer.ID

	closed atomic.Bool
}

func (c *conn) RoundTrip(ctx context.Context, req []byte) ([]byte, error) {
	if c.closed.Load() {
		return nil, lgtransport.ErrConnClosed
	}

	s, err := c.h.NewStream(ctx, c.id, ProtocolID)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	defer s.Close()

	// Streams do not observe the context after opening.
	stop := context.AfterFunc(ctx, func() { _ = s.Reset() })
	defer stop()

	if err := msgio.NewVarintWriter(s).WriteMsg(req); err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}
	if err := s.CloseWrite(); err != nil {
		return nil, fmt.Errorf("failed to close stream for writing: %w", err)
	}

	r := msgio.NewVarintReaderSize(s, MaxMessageSize)
	msg, err := r.ReadMsg()
	if err != nil {
		if ctxErr := context.Cause(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to read reply: %w", err)
	}

	out := make([]byte, len(msg))
	copy(out, msg)
	r.ReleaseMsg(msg)
	return out, nil
}

// Close marks the conn closed.
// The underlying libp2p connection belongs to the host and stays open.
func (c *conn) Close() error {
	c.closed.Store(true)
	return nil
}

// Serve registers h to answer ledger requests on host.
// Requests are handled with ctx; call [Stop] to unregister.
func Serve(ctx context.Context, log *slog.Logger, host host.Host, h lgtransport.Handler) {
	host.SetStreamHandler(ProtocolID, func(s network.Stream) {
		handleStream(ctx, log, s, h)
	})
}

// Stop unregisters the handler set by Serve.
func Stop(host host.Host) {
	host.RemoveStreamHandler(ProtocolID)
}

func handleStream(ctx context.Context, log *slog.Logger, s network.Stream, h lgtransport.Handler) {
	remote := s.Conn().RemotePeer()

	r := msgio.NewVarintReaderSize(s, MaxMessageSize)
	req, err := r.ReadMsg()
	if err != nil {
		log.Debug("Failed to read request", "remote", remote, "err", err)
		_ = s.Reset()
		return
	}

	reply, err := h.HandleRequest(ctx, req)
	r.ReleaseMsg(req)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Debug("Handler failed", "remote", remote, "err", err)
		}
		_ = s.Reset()
		return
	}

	if err := msgio.NewVarintWriter(s).WriteMsg(reply); err != nil {
		log.Debug("Failed to write reply", "remote", remote, "err", err)
		_ = s.Reset()
		return
	}
	_ = s.Close()
}

// HostAddresses returns the dialable addresses of host,
// each including the /p2p/ peer ID component.
func HostAddresses(host host.Host) ([]string, error) {
	p2p, err := ma.NewMultiaddr("/p2p/" + host.ID().String())
	if err != nil {
		return nil, fmt.Errorf("failed to build p2p multiaddr: %w", err)
	}

	addrs := host.Addrs()
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Encapsulate(p2p).String()
	}
	return out, nil
}
