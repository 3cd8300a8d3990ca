package lgtransport_test

import (
	"context"
	"testing"

	"github.com/gordian-engine/gledger/lg/lgtransport"
	"github.com/stretchr/testify/require"
)

type namedTransport string

func (n namedTransport) Dial(context.Context, string) (lgtransport.Conn, error) {
	return namedConn(n), nil
}

type namedConn string

func (c namedConn) RoundTrip(context.Context, []byte) ([]byte, error) {
	return []byte(c), nil
}

func (namedConn) Close() error { return nil }

func TestSchemeRouter(t *testing.T) {
	t.Parallel()

	r := lgtransport.SchemeRouter{
		"http://":      namedTransport("http"),
		"http+unix://": namedTransport("unix"),
		"/":            namedTransport("libp2p"),
		"/ip4/10.":     namedTransport("private"),
	}

	for addr, want := range map[string]string{
		"http://127.0.0.1:9701":      "http",
		"http+unix://node1/":         "unix",
		"/ip4/1.2.3.4/tcp/9701/p2p/": "libp2p",
		"/ip4/10.0.0.1/tcp/9701":     "private",
	} {
		c, err := r.Dial(context.Background(), addr)
		require.NoError(t, err)
		got, err := c.RoundTrip(context.Background(), nil)
		require.NoError(t, err)
		require.Equal(t, want, string(got), addr)
	}

	_, err := r.Dial(context.Background(), "ftp://example.com")
	require.Error(t, err)
}
