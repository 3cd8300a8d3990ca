package lgsign_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gordian-engine/gledger/gwallet"
	"github.com/gordian-engine/gledger/internal/gtest"
	"github.com/gordian-engine/gledger/lg/lgledger"
	"github.com/gordian-engine/gledger/lg/lgrequest"
	"github.com/gordian-engine/gledger/lg/lgsign"
	"github.com/stretchr/testify/require"
)

func TestService_Sign(t *testing.T) {
	t.Parallel()

	log := gtest.NewLogger(t)
	w := gwallet.New(log)
	id, err := w.CreateIdentity(nil)
	require.NoError(t, err)

	b := lgrequest.NewBuilder(2)
	req, err := b.Build(id.DID, map[string]any{"type": "105", "dest": id.DID})
	require.NoError(t, err)

	s := lgsign.NewService(log, w)
	signed, err := s.Sign(context.Background(), req, id.DID)
	require.NoError(t, err)
	require.Equal(t, req, signed.Request)
	require.NotEmpty(t, signed.Signature)

	ok, err := lgsign.Verify(signed, id.Signer.PubKey())
	require.NoError(t, err)
	require.True(t, ok)

	// Any change to the request invalidates the signature.
	tampered := signed.Clone()
	tampered.ReqID++
	ok, err = lgsign.Verify(tampered, id.Signer.PubKey())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestService_Sign_DefaultsIdentifier(t *testing.T) {
	t.Parallel()

	log := gtest.NewLogger(t)
	w := gwallet.New(log)
	id, err := w.CreateIdentity(nil)
	require.NoError(t, err)

	req := lgledger.Request{
		ReqID:           1,
		Operation:       []byte(`{"type":"105"}`),
		ProtocolVersion: 2,
	}

	signed, err := lgsign.NewService(log, w).Sign(context.Background(), req, id.DID)
	require.NoError(t, err)
	require.Equal(t, id.DID, signed.Identifier)
	require.Empty(t, req.Identifier)
}

func TestService_Sign_Errors(t *testing.T) {
	t.Parallel()

	log := gtest.NewLogger(t)
	w := gwallet.New(log)
	id, err := w.CreateIdentity(nil)
	require.NoError(t, err)

	req := lgledger.Request{
		Identifier:      id.DID,
		ReqID:           1,
		Operation:       []byte(`{"type":"105"}`),
		ProtocolVersion: 2,
	}
	s := lgsign.NewService(log, w)
	ctx := context.Background()

	_, err = s.Sign(ctx, req, "unknown")
	require.ErrorIs(t, err, lgledger.ErrUnknownIdentity)

	w.Lock()
	_, err = s.Sign(ctx, req, id.DID)
	require.ErrorIs(t, err, lgledger.ErrSigningUnavailable)
	w.Unlock()

	bad := req
	bad.Operation = nil
	_, err = s.Sign(ctx, bad, id.DID)
	require.ErrorIs(t, err, lgledger.ErrInvalidPayload)

	_, err = lgsign.NewService(log, failingSigner{}).Sign(ctx, req, id.DID)
	require.ErrorIs(t, err, lgledger.ErrSigningUnavailable)
}

type failingSigner struct{}

func (failingSigner) Sign(context.Context, string, []byte) ([]byte, error) {
	return nil, errors.New("hardware token removed")
}
