package lgclient_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/gordian-engine/gledger/gcrypto/gcryptotest"
	"github.com/gordian-engine/gledger/gdid"
	"github.com/gordian-engine/gledger/gwallet"
	"github.com/gordian-engine/gledger/internal/gtest"
	"github.com/gordian-engine/gledger/lg/lgclient"
	"github.com/gordian-engine/gledger/lg/lgledger"
	"github.com/gordian-engine/gledger/lg/lgnode"
	"github.com/gordian-engine/gledger/lg/lgpool"
	"github.com/gordian-engine/gledger/lg/lgtransport"
	"github.com/gordian-engine/gledger/lg/lgtransport/lgtransporttest"
	"github.com/stretchr/testify/require"
)

const (
	protocolVersion = 2

	validTimeout = 5 * time.Second
)

// requestJSON is a caller-built NYM request
// whose identifier is not known to the ledger.
const requestJSON = `{
	"reqId":1496822211362017764,
	"identifier":"GJ1SzoWzavQYfNL9XkaJdrQejfztN4XqdsiV4ct3LXKL",
	"operation":{
		"type":"1",
		"dest":"VsKV7grR1BUE29mG2Fm2kX",
		"verkey":"GjZWsBLgZCR18aL468JAT7w9CZRiBnpxUPPgyQxh4voa"
	}
}`

type setup struct {
	Client  *lgclient.Client
	Pool    *lgpool.Pool
	Wallet  *gwallet.Wallet
	Trustee gdid.Identity

	// Closing Gate releases every node's replies, when the setup is gated.
	Gate chan struct{}
}

// newSetup starts a 4 node pool of reference nodes seeded with one trustee,
// whose key is in the returned wallet.
func newSetup(t *testing.T, gated bool) *setup {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := gtest.NewLogger(t)

	w := gwallet.New(log.With("sys", "wallet"))
	trustee, err := w.CreateIdentity(gcryptotest.DeterministicEd25519Seed(0))
	require.NoError(t, err)

	s := &setup{Wallet: w, Trustee: trustee, Gate: make(chan struct{})}
	if !gated {
		close(s.Gate)
	}

	const nNodes = 4
	nodeSigners := gcryptotest.DeterministicSecp256k1Signers(nNodes)
	network := lgtransporttest.NewNetwork()

	poolCfg := lgpool.DefaultConfig()
	poolCfg.Name = "sandbox"
	poolCfg.ProtocolVersion = protocolVersion
	poolCfg.Transport = network

	for i := range nNodes {
		nodeCfg := lgnode.DefaultConfig()
		nodeCfg.ProtocolVersion = protocolVersion
		nodeCfg.Signer = nodeSigners[i]
		nodeCfg.Trustees = []lgnode.Identity{{DID: trustee.DID, Verkey: trustee.Verkey}}

		n, err := lgnode.New(ctx, log.With("sys", "node", "idx", i), nodeCfg)
		require.NoError(t, err)
		t.Cleanup(func() {
			cancel()
			n.Wait()
		})

		addr := fmt.Sprintf("mem://node%d", i)
		network.Register(addr, lgtransport.HandlerFunc(
			func(ctx context.Context, req []byte) ([]byte, error) {
				select {
				case <-ctx.Done():
					return nil, context.Cause(ctx)
				case <-s.Gate:
				}
				return n.HandleRequest(ctx, req)
			},
		))

		poolCfg.Nodes = append(poolCfg.Nodes, lgpool.NodeEndpoint{
			Address: addr,
			PubKey:  nodeSigners[i].PubKey(),
		})
	}

	p, err := lgpool.Open(ctx, log.With("sys", "pool"), poolCfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	s.Pool = p

	s.Client, err = lgclient.New(log.With("sys", "client"), p, w, lgclient.DefaultConfig())
	require.NoError(t, err)

	return s
}

func nymFor(id gdid.Identity) map[string]any {
	return map[string]any{
		"type":   lgnode.OpNym,
		"dest":   id.DID,
		"verkey": id.Verkey,
	}
}

func TestSignAndSubmit(t *testing.T) {
	t.Parallel()

	s := newSetup(t, false)
	user, err := s.Wallet.CreateIdentity(nil)
	require.NoError(t, err)

	ctx := context.Background()
	o, err := s.Client.SignAndSubmit(ctx, s.Trustee.DID, nymFor(user))
	require.NoError(t, err)
	require.Equal(t, lgledger.StatusCommitted, o.Status)
	require.Contains(t, string(o.AgreedResult), user.DID)
	require.GreaterOrEqual(t, o.Proof.Count(), uint(3))

	// The new identity is usable right away.
	o, err = s.Client.SignAndSubmit(ctx, user.DID, map[string]any{
		"type": lgnode.OpGetNym,
		"dest": user.DID,
	})
	require.NoError(t, err)

	var res struct {
		Data string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(o.Agreed.Result, &res))
	require.Contains(t, res.Data, user.Verkey)
}

func TestSignAndSubmitAsync(t *testing.T) {
	t.Parallel()

	s := newSetup(t, false)
	user, err := gdid.NewIdentity(nil)
	require.NoError(t, err)

	type result struct {
		o   lgledger.Outcome
		err error
	}
	ch := make(chan result, 1)
	s.Client.SignAndSubmitAsync(context.Background(), s.Trustee.DID, nymFor(user), func(o lgledger.Outcome, err error) {
		ch <- result{o, err}
	})

	select {
	case r := <-ch:
		require.NoError(t, r.err)
		require.Equal(t, lgledger.StatusCommitted, r.o.Status)
	case <-time.After(validTimeout):
		t.Fatal("callback not called")
	}
}

func TestSignAndSubmitWithin(t *testing.T) {
	t.Parallel()

	s := newSetup(t, false)
	user, err := gdid.NewIdentity(nil)
	require.NoError(t, err)

	o, err := s.Client.SignAndSubmitWithin(context.Background(), s.Trustee.DID, nymFor(user), validTimeout)
	require.NoError(t, err)
	require.Equal(t, lgledger.StatusCommitted, o.Status)
}

func TestSignAndSubmitWithin_TimesOut(t *testing.T) {
	t.Parallel()

	s := newSetup(t, true)
	user, err := gdid.NewIdentity(nil)
	require.NoError(t, err)

	o, err := s.Client.SignAndSubmitWithin(context.Background(), s.Trustee.DID, nymFor(user), 20*time.Millisecond)
	require.ErrorIs(t, err, lgledger.ErrTimedOut)
	require.Equal(t, lgledger.StatusTimedOut, o.Status)

	// The abandoned submission still completes in the background.
	close(s.Gate)
	o, err = s.Client.SignAndSubmit(context.Background(), s.Trustee.DID, map[string]any{
		"type": lgnode.OpGetNym,
		"dest": user.DID,
	})
	require.NoError(t, err)
	require.Equal(t, lgledger.StatusCommitted, o.Status)
}

func TestSignAndSubmitRequest_UnknownIdentifierRejected(t *testing.T) {
	t.Parallel()

	s := newSetup(t, false)

	o, err := s.Client.SignAndSubmitRequest(context.Background(), s.Trustee.DID, []byte(requestJSON))
	require.ErrorIs(t, err, lgledger.ErrRejected)
	require.Equal(t, lgledger.StatusRejected, o.Status)
	require.NotNil(t, o.Agreed)
	require.Contains(t, o.Agreed.Reason, "unknown identifier")
	require.Equal(t, uint64(1496822211362017764), o.Key.ReqID)
}

func TestClient_SigningErrors(t *testing.T) {
	t.Parallel()

	s := newSetup(t, false)
	ctx := context.Background()

	_, err := s.Client.SignAndSubmit(ctx, "NotInWallet", map[string]any{"type": lgnode.OpGetNym, "dest": "x"})
	require.ErrorIs(t, err, lgledger.ErrUnknownIdentity)

	_, err = s.Client.SignAndSubmit(ctx, s.Trustee.DID, []int{1, 2})
	require.ErrorIs(t, err, lgledger.ErrInvalidPayload)

	s.Wallet.Lock()
	ch := make(chan error, 1)
	s.Client.SignAndSubmitAsync(ctx, s.Trustee.DID, map[string]any{"type": lgnode.OpGetNym, "dest": "x"},
		func(_ lgledger.Outcome, err error) { ch <- err })
	require.ErrorIs(t, gtest.ReceiveSoon(t, ch), lgledger.ErrSigningUnavailable)
	s.Wallet.Unlock()

	require.NoError(t, s.Pool.Close())
	_, err = s.Client.SignAndSubmit(ctx, s.Trustee.DID, map[string]any{"type": lgnode.OpGetNym, "dest": "x"})
	require.ErrorIs(t, err, lgledger.ErrHandleClosed)
}
