// Package lgpooltest contains a pool fixture backed by an in-memory network.
package lgpooltest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/gordian-engine/gledger/gcrypto"
	"github.com/gordian-engine/gledger/gcrypto/gcryptotest"
	"github.com/gordian-engine/gledger/lg/lgpool"
	"github.com/gordian-engine/gledger/lg/lgtransport/lgtransporttest"
)

// ProtocolVersion is the protocol version used by fixture pools.
const ProtocolVersion = 2

// DefaultResult is the result every fixture node replies with
// until its script is changed.
var DefaultResult = json.RawMessage(`{"txnTime":1700000000}`)

// Fixture is a set of scripted nodes on an in-memory network,
// each with a deterministic secp256k1 reply key.
type Fixture struct {
	Network *lgtransporttest.Network
	Nodes   []*lgtransporttest.ScriptedNode
	Signers []gcrypto.Secp256k1Signer
}

func NewFixture(n int) *Fixture {
	f := &Fixture{
		Network: lgtransporttest.NewNetwork(),
		Nodes:   make([]*lgtransporttest.ScriptedNode, n),
		Signers: gcryptotest.DeterministicSecp256k1Signers(n),
	}

	for i := range n {
		f.Nodes[i] = lgtransporttest.NewScriptedNode(lgtransporttest.Script{
			Signer: f.Signers[i],
			Result: DefaultResult,
		})
		f.Network.Register(f.Address(i), f.Nodes[i])
	}
	return f
}

func (f *Fixture) Address(i int) string {
	return fmt.Sprintf("mem://node%d", i)
}

// Name returns the name of the i'th node, counting from Node1.
func (f *Fixture) Name(i int) string {
	return fmt.Sprintf("Node%d", i+1)
}

// Script replaces the script of node i.
// A script without a Signer uses the node's fixture signer.
func (f *Fixture) Script(i int, s lgtransporttest.Script) {
	if s.Signer == nil {
		s.Signer = f.Signers[i]
	}
	f.Nodes[i].Set(s)
}

func (f *Fixture) Endpoints() []lgpool.NodeEndpoint {
	out := make([]lgpool.NodeEndpoint, len(f.Nodes))
	for i := range f.Nodes {
		out[i] = lgpool.NodeEndpoint{
			Name:    f.Name(i),
			Address: f.Address(i),
			PubKey:  f.Signers[i].PubKey(),
		}
	}
	return out
}

// Config returns a pool config for the fixture nodes.
func (f *Fixture) Config() lgpool.Config {
	cfg := lgpool.DefaultConfig()
	cfg.Name = "fixture"
	cfg.ProtocolVersion = ProtocolVersion
	cfg.Nodes = f.Endpoints()
	cfg.Transport = f.Network
	return cfg
}

// Open opens a pool with cfg, closing it when the test ends
// unless the test closes it first.
func Open(t testing.TB, ctx context.Context, log *slog.Logger, cfg lgpool.Config) *lgpool.Pool {
	t.Helper()

	p, err := lgpool.Open(ctx, log, cfg)
	if err != nil {
		t.Fatalf("failed to open pool: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}
