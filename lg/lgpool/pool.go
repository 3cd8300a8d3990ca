// Package lgpool manages a handle to a replicated ledger pool:
// the node set, per-node health, and the worker limit
// shared by every submission through the pool.
package lgpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/google/uuid"
	"github.com/gordian-engine/gledger/lg/lgledger"
	"github.com/gordian-engine/gledger/lg/lgtransport"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Config configures a pool handle.
type Config struct {
	// Name is used in logs. A generated name is used if empty.
	Name string

	// ProtocolVersion stamped on requests and required of nodes.
	// It must be set explicitly.
	ProtocolVersion uint32

	Nodes []NodeEndpoint

	// ReplyTimeout bounds how long a submission waits for a quorum.
	ReplyTimeout time.Duration

	// Backoff applied to a node after consecutive failed round trips.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// MaxConcurrentRoundTrips bounds the number of in-flight
	// node round trips across all submissions.
	MaxConcurrentRoundTrips int

	Transport lgtransport.Transport
}

// DefaultConfig returns a Config with default timeouts and limits.
// The caller must still set ProtocolVersion, Nodes and Transport.
func DefaultConfig() Config {
	return Config{
		ReplyTimeout:            30 * time.Second,
		InitialBackoff:          time.Second,
		MaxBackoff:              time.Minute,
		MaxConcurrentRoundTrips: 64,
	}
}

// Stats are counters over the pool's lifetime.
type Stats struct {
	RoundTrips       uint64
	RoundTripErrors  uint64
	ActiveRoundTrips uint32
}

// Pool is an open handle to a ledger pool.
// The caller that opened it must call Close.
type Pool struct {
	log *slog.Logger

	id   uuid.UUID
	name string

	protocolVersion uint32
	replyTimeout    time.Duration
	initialBackoff  time.Duration
	maxBackoff      time.Duration

	nodes     []*node
	threshold int

	transport lgtransport.Transport
	sem       *semaphore.Weighted

	now func() time.Time

	stats struct {
		roundTrips       atomic.Uint64
		roundTripErrors  atomic.Uint64
		activeRoundTrips atomic.Int32
	}

	ctx    context.Context
	cancel context.CancelFunc

	// closeMu guards closed and wg.Add,
	// so no work is tracked once Close has started waiting.
	closeMu sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
}

// Open validates cfg and returns a pool handle.
// Connections to nodes are established lazily, on first use.
func Open(ctx context.Context, log *slog.Logger, cfg Config) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	name := cfg.Name
	if name == "" {
		name = petname.Generate(2, "-")
	}

	id := uuid.New()
	log = log.With("pool", name, "pool_id", id.String())

	nodes, err := buildNodes(log, cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)

	p := &Pool{
		log: log,

		id:   id,
		name: name,

		protocolVersion: cfg.ProtocolVersion,
		replyTimeout:    cfg.ReplyTimeout,
		initialBackoff:  cfg.InitialBackoff,
		maxBackoff:      cfg.MaxBackoff,

		nodes:     nodes,
		threshold: lgledger.ByzantineMajority(len(nodes)),

		transport: cfg.Transport,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrentRoundTrips)),

		now: time.Now,

		ctx:    ctx,
		cancel: cancel,
	}

	log.Info(
		"Opened pool",
		"nodes", len(nodes),
		"threshold", p.threshold,
		"protocol_version", p.protocolVersion,
	)
	return p, nil
}

func (cfg Config) validate() error {
	if len(cfg.Nodes) == 0 {
		return errors.New("pool config has no nodes")
	}
	if cfg.ProtocolVersion == 0 {
		return errors.New("pool config must set ProtocolVersion")
	}
	if cfg.Transport == nil {
		return errors.New("pool config must set Transport")
	}
	if cfg.ReplyTimeout <= 0 {
		return fmt.Errorf("ReplyTimeout must be positive (got %s)", cfg.ReplyTimeout)
	}
	if cfg.InitialBackoff <= 0 || cfg.MaxBackoff < cfg.InitialBackoff {
		return fmt.Errorf(
			"invalid backoff: initial %s, max %s", cfg.InitialBackoff, cfg.MaxBackoff,
		)
	}
	if cfg.MaxConcurrentRoundTrips <= 0 {
		return fmt.Errorf(
			"MaxConcurrentRoundTrips must be positive (got %d)", cfg.MaxConcurrentRoundTrips,
		)
	}
	return nil
}

func buildNodes(log *slog.Logger, cfg Config) ([]*node, error) {
	seen := make(map[string]struct{}, len(cfg.Nodes))
	for _, ep := range cfg.Nodes {
		if ep.Name != "" {
			if _, ok := seen[ep.Name]; ok {
				return nil, fmt.Errorf("duplicate node name %q", ep.Name)
			}
			seen[ep.Name] = struct{}{}
		}
	}

	nodes := make([]*node, len(cfg.Nodes))
	for i, ep := range cfg.Nodes {
		if ep.Address == "" {
			return nil, fmt.Errorf("node %d (%q) has no address", i, ep.Name)
		}

		for ep.Name == "" {
			name := petname.Generate(2, "-")
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				ep.Name = name
			}
		}

		compatible := ep.ProtocolVersion == 0 || ep.ProtocolVersion == cfg.ProtocolVersion
		if !compatible {
			log.Warn(
				"Node protocol version differs from pool; node will not receive requests",
				"node", ep.Name,
				"node_version", ep.ProtocolVersion,
				"pool_version", cfg.ProtocolVersion,
			)
		}

		nodes[i] = &node{
			idx:        i,
			ep:         ep,
			compatible: compatible,
			dialing:    make(chan struct{}, 1),
		}
	}
	return nodes, nil
}

func (p *Pool) ID() uuid.UUID { return p.id }

func (p *Pool) Name() string { return p.name }

func (p *Pool) ProtocolVersion() uint32 { return p.protocolVersion }

func (p *Pool) ReplyTimeout() time.Duration { return p.replyTimeout }

// Len is the number of configured nodes, reachable or not.
func (p *Pool) Len() int { return len(p.nodes) }

// Threshold is the number of agreeing replies required for a decision.
func (p *Pool) Threshold() int { return p.threshold }

// Node returns the endpoint at idx.
func (p *Pool) Node(idx int) NodeEndpoint {
	return p.nodes[idx].ep
}

// Nodes returns every configured endpoint, in configuration order.
func (p *Pool) Nodes() []NodeEndpoint {
	out := make([]NodeEndpoint, len(p.nodes))
	for i, n := range p.nodes {
		out[i] = n.ep
	}
	return out
}

// Eligible returns the indices of nodes that should receive a new request:
// every compatible node that is not waiting out a backoff.
func (p *Pool) Eligible() []int {
	now := p.now()
	out := make([]int, 0, len(p.nodes))
	for _, n := range p.nodes {
		if n.eligible(now) {
			out = append(out, n.idx)
		}
	}
	return out
}

// Health returns a snapshot of every node's health, in configuration order.
func (p *Pool) Health() []NodeHealth {
	out := make([]NodeHealth, len(p.nodes))
	for i, n := range p.nodes {
		out[i] = n.health()
	}
	return out
}

func (p *Pool) Stats() Stats {
	return Stats{
		RoundTrips:       p.stats.roundTrips.Load(),
		RoundTripErrors:  p.stats.roundTripErrors.Load(),
		ActiveRoundTrips: uint32(p.stats.activeRoundTrips.Load()),
	}
}

// Done is closed when the pool begins closing.
func (p *Pool) Done() <-chan struct{} {
	return p.ctx.Done()
}

// Go runs f in a goroutine tracked by the pool.
// The context passed to f is cancelled when the pool closes,
// and Close waits for f to return.
// Go returns [lgledger.ErrHandleClosed] without running f
// if the pool is already closed.
func (p *Pool) Go(f func(ctx context.Context)) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed {
		return lgledger.ErrHandleClosed
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		f(p.ctx)
	}()
	return nil
}

// RoundTrip sends req to the node at idx and returns its raw reply.
//
// The call waits for a worker slot first,
// so ctx should carry the submission deadline.
// A transport failure marks the node unreachable;
// cancellation of ctx does not count against the node.
func (p *Pool) RoundTrip(ctx context.Context, idx int, req []byte) ([]byte, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)

	p.stats.activeRoundTrips.Add(1)
	defer p.stats.activeRoundTrips.Add(-1)
	p.stats.roundTrips.Add(1)

	n := p.nodes[idx]

	reply, err := p.roundTrip(ctx, n, req)
	if err != nil {
		p.stats.roundTripErrors.Add(1)
		if ctx.Err() == nil {
			n.recordFailure(p.log, err, p.now(), p.initialBackoff, p.maxBackoff)
		}
		return nil, err
	}

	n.recordSuccess(p.log)
	return reply, nil
}

func (p *Pool) roundTrip(ctx context.Context, n *node, req []byte) ([]byte, error) {
	c, err := n.getConn(ctx, p.transport)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", n.ep.Name, err)
	}

	reply, err := c.RoundTrip(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("round trip to %s failed: %w", n.ep.Name, err)
	}
	return reply, nil
}

// Close cancels in-flight work, waits for it to finish,
// and closes every node connection.
// Calling Close more than once returns [lgledger.ErrHandleClosed].
func (p *Pool) Close() error {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return lgledger.ErrHandleClosed
	}
	p.closed = true
	p.closeMu.Unlock()

	p.cancel()
	p.wg.Wait()

	var eg errgroup.Group
	for _, n := range p.nodes {
		eg.Go(n.close)
	}
	err := eg.Wait()

	p.log.Info("Closed pool")
	return err
}
