package gcrypto_test

import (
	"context"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/gledger/gcrypto"
	"github.com/gordian-engine/gledger/gcrypto/gcryptotest"
	"github.com/stretchr/testify/require"
)

func TestSigners_SignVerify(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	msg := []byte("sign me")

	signers := []gcrypto.Signer{
		gcryptotest.DeterministicEd25519Signers(1)[0],
		gcryptotest.DeterministicSecp256k1Signers(1)[0],
	}

	for _, s := range signers {
		sig, err := s.Sign(ctx, msg)
		require.NoError(t, err)

		require.True(t, s.PubKey().Verify(msg, sig))
		require.False(t, s.PubKey().Verify([]byte("other message"), sig))
	}
}

func TestDeterministicSigners_Stable(t *testing.T) {
	t.Parallel()

	a := gcryptotest.DeterministicEd25519Signers(3)
	b := gcryptotest.DeterministicEd25519Signers(2)

	require.True(t, a[0].PubKey().Equal(b[0].PubKey()))
	require.True(t, a[1].PubKey().Equal(b[1].PubKey()))
	require.False(t, a[0].PubKey().Equal(a[1].PubKey()))
}

func TestEd25519Signer_FromSeed(t *testing.T) {
	t.Parallel()

	seed := gcryptotest.DeterministicEd25519Seed(0)
	s, err := gcrypto.NewEd25519SignerFromSeed(seed)
	require.NoError(t, err)
	require.True(t, s.PubKey().Equal(gcryptotest.DeterministicEd25519Signers(1)[0].PubKey()))

	_, err = gcrypto.NewEd25519SignerFromSeed([]byte("short"))
	require.Error(t, err)
}

func TestSignatureProof(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	msg := []byte("agreed reply")

	signers := gcryptotest.DeterministicEd25519Signers(4)
	keys := gcryptotest.PubKeys(signers)
	// The third candidate does not sign replies.
	keys[2] = nil

	p := gcrypto.NewSignatureProof(msg, keys)

	sig0, err := signers[0].Sign(ctx, msg)
	require.NoError(t, err)
	require.NoError(t, p.AddSignature(sig0, signers[0].PubKey()))

	sig3, err := signers[3].Sign(ctx, msg)
	require.NoError(t, err)
	require.NoError(t, p.AddSignature(sig3, signers[3].PubKey()))

	// Valid signature from a key that is not a candidate.
	sig2, err := signers[2].Sign(ctx, msg)
	require.NoError(t, err)
	require.ErrorIs(t, p.AddSignature(sig2, signers[2].PubKey()), gcrypto.ErrUnknownKey)

	// Candidate key with a signature over a different message.
	badSig, err := signers[1].Sign(ctx, []byte("something else"))
	require.NoError(t, err)
	require.ErrorIs(t, p.AddSignature(badSig, signers[1].PubKey()), gcrypto.ErrInvalidSignature)

	require.Equal(t, uint(2), p.Count())

	var bs bitset.BitSet
	p.SignatureBitSet(&bs)
	require.True(t, bs.Test(0))
	require.False(t, bs.Test(1))
	require.True(t, bs.Test(3))

	sigs := p.Signatures()
	require.Len(t, sigs, 2)
	require.Equal(t, 0, sigs[0].KeyIdx)
	require.Equal(t, 3, sigs[1].KeyIdx)

	require.True(t, p.Verify())
}
