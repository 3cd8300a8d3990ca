package lglibp2p_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gordian-engine/gledger/internal/gtest"
	"github.com/gordian-engine/gledger/lg/lgtransport"
	"github.com/gordian-engine/gledger/lg/lgtransport/lglibp2p"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/stretchr/testify/require"
)

func newHost(t *testing.T) host.Host {
	t.Helper()

	h, err := libp2p.New(libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestTransport_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := newHost(t)
	lglibp2p.Serve(ctx, gtest.NewLogger(t), server, lgtransport.HandlerFunc(
		func(_ context.Context, req []byte) ([]byte, error) {
			if bytes.Equal(req, []byte("fail")) {
				return nil, errors.New("refused")
			}
			return append([]byte("ack:"), req...), nil
		},
	))

	addrs, err := lglibp2p.HostAddresses(server)
	require.NoError(t, err)
	require.NotEmpty(t, addrs)

	tr := lglibp2p.NewTransport(newHost(t))
	c, err := tr.Dial(ctx, addrs[0])
	require.NoError(t, err)

	reply, err := c.RoundTrip(ctx, []byte("ping"))
	require.NoError(t, err)
	require.Equal(t, "ack:ping", string(reply))

	_, err = c.RoundTrip(ctx, []byte("fail"))
	require.Error(t, err)

	require.NoError(t, c.Close())
	_, err = c.RoundTrip(ctx, []byte("ping"))
	require.ErrorIs(t, err, lgtransport.ErrConnClosed)
}

func TestTransport_RoundTripCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	block := make(chan struct{})
	defer close(block)

	server := newHost(t)
	lglibp2p.Serve(ctx, gtest.NewLogger(t), server, lgtransport.HandlerFunc(
		func(ctx context.Context, _ []byte) ([]byte, error) {
			<-block
			return nil, errors.New("unblocked")
		},
	))
	addrs, err := lglibp2p.HostAddresses(server)
	require.NoError(t, err)

	c, err := lglibp2p.NewTransport(newHost(t)).Dial(ctx, addrs[0])
	require.NoError(t, err)

	rtCtx, rtCancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer rtCancel()
	_, err = c.RoundTrip(rtCtx, []byte("ping"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransport_BadAddress(t *testing.T) {
	t.Parallel()

	_, err := lglibp2p.NewTransport(newHost(t)).Dial(context.Background(), "/ip4/127.0.0.1/tcp/1")
	require.Error(t, err)
}
