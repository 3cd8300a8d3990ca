package gwallet_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gordian-engine/gledger/gcrypto/gcryptotest"
	"github.com/gordian-engine/gledger/gwallet"
	"github.com/gordian-engine/gledger/internal/gtest"
	"github.com/gordian-engine/gledger/lg/lgledger"
	"github.com/stretchr/testify/require"
)

func TestWallet_Sign(t *testing.T) {
	t.Parallel()

	w := gwallet.New(gtest.NewLogger(t))
	id, err := w.CreateIdentity(nil)
	require.NoError(t, err)
	require.Equal(t, []string{id.DID}, w.Identities())

	msg := []byte("payload")
	sig, err := w.Sign(context.Background(), id.DID, msg)
	require.NoError(t, err)

	pub, err := w.PubKey(id.DID)
	require.NoError(t, err)
	require.True(t, pub.Verify(msg, sig))
}

func TestWallet_Errors(t *testing.T) {
	t.Parallel()

	w := gwallet.New(gtest.NewLogger(t))
	signers := gcryptotest.DeterministicEd25519Signers(1)
	w.Import("alice", signers[0])

	_, err := w.Sign(context.Background(), "bob", []byte("x"))
	require.ErrorIs(t, err, lgledger.ErrUnknownIdentity)

	w.Lock()
	_, err = w.Sign(context.Background(), "alice", []byte("x"))
	require.ErrorIs(t, err, lgledger.ErrSigningUnavailable)

	// Public keys are still available while locked.
	_, err = w.PubKey("alice")
	require.NoError(t, err)

	w.Unlock()
	_, err = w.Sign(context.Background(), "alice", []byte("x"))
	require.NoError(t, err)
}

func TestRemoteSigner(t *testing.T) {
	t.Parallel()

	log := gtest.NewLogger(t)
	w := gwallet.New(log)
	id, err := w.CreateIdentity(nil)
	require.NoError(t, err)

	srv := httptest.NewServer(gwallet.NewHandler(log, w))
	defer srv.Close()

	rs := gwallet.NewRemoteSigner(srv.URL, srv.Client())
	ctx := context.Background()

	msg := []byte("remote payload")
	sig, err := rs.Sign(ctx, id.DID, msg)
	require.NoError(t, err)
	require.True(t, id.Signer.PubKey().Verify(msg, sig))

	vk, err := rs.Verkey(ctx, id.DID)
	require.NoError(t, err)
	require.Equal(t, id.Verkey, vk)

	_, err = rs.Sign(ctx, "nobody", msg)
	require.ErrorIs(t, err, lgledger.ErrUnknownIdentity)

	w.Lock()
	_, err = rs.Sign(ctx, id.DID, msg)
	require.ErrorIs(t, err, lgledger.ErrSigningUnavailable)
}

func TestRemoteSigner_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(gwallet.NewHandler(gtest.NewLogger(t), gwallet.New(gtest.NewLogger(t))))
	url := srv.URL
	srv.Close()

	rs := gwallet.NewRemoteSigner(url, nil)
	_, err := rs.Sign(context.Background(), "x", []byte("x"))
	require.ErrorIs(t, err, lgledger.ErrSigningUnavailable)
}
