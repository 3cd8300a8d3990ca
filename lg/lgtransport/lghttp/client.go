// Package lghttp carries ledger requests over HTTP.
//
// A request is the body of a POST to the node's /ledger route,
// and the reply is the response body.
// Nodes may listen on TCP ("http://host:port")
// or on a unix socket ("unix:///path/to/node.sock").
package lghttp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordian-engine/gledger/lg/lgtransport"
	"github.com/tv42/httpunix"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// LedgerPath is the route nodes serve requests on.
const LedgerPath = "/ledger"

// UnixPrefix marks addresses of nodes listening on a unix socket.
const UnixPrefix = "unix://"

// MaxReplySize bounds how much of a reply body is read.
const MaxReplySize = 1 << 20

var _ lgtransport.Transport = (*Transport)(nil)

type Config struct {
	// Client is used for TCP addresses.
	// If nil, an otelhttp-instrumented client is created.
	Client *http.Client

	// Timeouts for unix socket round trips.
	// The unix socket transport does not observe context cancellation,
	// so these bound a hung node.
	UnixDialTimeout     time.Duration
	UnixRequestTimeout  time.Duration
	UnixResponseTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		UnixDialTimeout:     time.Second,
		UnixRequestTimeout:  5 * time.Second,
		UnixResponseTimeout: 30 * time.Second,
	}
}

// Transport dials nodes over HTTP.
type Transport struct {
	client *http.Client

	unix       *httpunix.Transport
	unixClient *http.Client

	mu        sync.Mutex
	locations map[string]string // Socket path to registered location.
}

func NewTransport(cfg Config) *Transport {
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	u := &httpunix.Transport{
		DialTimeout:           cfg.UnixDialTimeout,
		RequestTimeout:        cfg.UnixRequestTimeout,
		ResponseHeaderTimeout: cfg.UnixResponseTimeout,
	}

	return &Transport{
		client: client,

		unix: u,
		unixClient: &http.Client{
			Transport: otelhttp.NewTransport(u),
		},

		locations: make(map[string]string),
	}
}

func (t *Transport) Dial(_ context.Context, address string) (lgtransport.Conn, error) {
	if sockPath, ok := strings.CutPrefix(address, UnixPrefix); ok {
		if sockPath == "" {
			return nil, fmt.Errorf("empty unix socket path in %q", address)
		}
		return &conn{
			url:    httpunix.Scheme + "://" + t.location(sockPath) + LedgerPath,
			client: t.unixClient,
		}, nil
	}

	if !strings.HasPrefix(address, "http://") && !strings.HasPrefix(address, "https://") {
		return nil, fmt.Errorf("unsupported HTTP address %q", address)
	}

	return &conn{
		url:    strings.TrimSuffix(address, "/") + LedgerPath,
		client: t.client,
	}, nil
}

// location returns the httpunix location registered for sockPath,
// registering it on first use.
func (t *Transport) location(sockPath string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if loc, ok := t.locations[sockPath]; ok {
		return loc
	}

	loc := fmt.Sprintf("node%d", len(t.locations))
	t.unix.RegisterLocation(loc, sockPath)
	t.locations[sockPath] = loc
	return loc
}

type conn struct {
	url    string
	client *http.Client

	closed atomic.Bool
}

func (c *conn) RoundTrip(ctx context.Context, req []byte) ([]byte, error) {
	if c.closed.Load() {
		return nil, lgtransport.ErrConnClosed
	}

	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(req))
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP request: %w", err)
	}
	hr.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(hr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxReplySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read reply body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(
			"node returned %s: %s", resp.Status, strings.TrimSpace(string(body)),
		)
	}

	return body, nil
}

func (c *conn) Close() error {
	c.closed.Store(true)
	return nil
}
