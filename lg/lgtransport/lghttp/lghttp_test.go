package lghttp_test

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gordian-engine/gledger/internal/gtest"
	"github.com/gordian-engine/gledger/lg/lgtransport"
	"github.com/gordian-engine/gledger/lg/lgtransport/lghttp"
	"github.com/stretchr/testify/require"
)

var upper = lgtransport.HandlerFunc(func(_ context.Context, req []byte) ([]byte, error) {
	if bytes.Equal(req, []byte("fail")) {
		return nil, errors.New("refused")
	}
	return bytes.ToUpper(req), nil
})

func TestTransport_TCP(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(lghttp.NewMux(gtest.NewLogger(t), upper))
	defer srv.Close()

	cfg := lghttp.DefaultConfig()
	cfg.Client = srv.Client()
	tr := lghttp.NewTransport(cfg)

	ctx := context.Background()
	c, err := tr.Dial(ctx, srv.URL+"/")
	require.NoError(t, err)

	reply, err := c.RoundTrip(ctx, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, "HELLO", string(reply))

	_, err = c.RoundTrip(ctx, []byte("fail"))
	require.ErrorContains(t, err, "refused")

	require.NoError(t, c.Close())
	_, err = c.RoundTrip(ctx, []byte("hello"))
	require.ErrorIs(t, err, lgtransport.ErrConnClosed)
}

func TestTransport_Unix(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sock := filepath.Join(t.TempDir(), "n.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)

	srv := lghttp.NewServer(ctx, gtest.NewLogger(t), lghttp.ServerConfig{
		Listener: ln,
		Handler:  upper,
	})
	defer srv.Wait()
	defer cancel()

	tr := lghttp.NewTransport(lghttp.DefaultConfig())

	// Dialing the same socket twice reuses the registered location.
	for range 2 {
		c, err := tr.Dial(ctx, lghttp.UnixPrefix+sock)
		require.NoError(t, err)

		reply, err := c.RoundTrip(ctx, []byte("unix"))
		require.NoError(t, err)
		require.Equal(t, "UNIX", string(reply))
	}
}

func TestTransport_BadAddress(t *testing.T) {
	t.Parallel()

	tr := lghttp.NewTransport(lghttp.DefaultConfig())
	_, err := tr.Dial(context.Background(), "tcp://127.0.0.1:1")
	require.Error(t, err)
	_, err = tr.Dial(context.Background(), lghttp.UnixPrefix)
	require.Error(t, err)
}
