package gdid_test

import (
	"context"
	"strings"
	"testing"

	"github.com/gordian-engine/gledger/gdid"
	"github.com/stretchr/testify/require"
)

// Seed shared with many Indy tutorials for the default trustee.
const trusteeSeed = "000000000000000000000000Trustee1"

func TestNewIdentity_Deterministic(t *testing.T) {
	t.Parallel()

	seed, err := gdid.ParseSeed(trusteeSeed)
	require.NoError(t, err)

	a, err := gdid.NewIdentity(seed)
	require.NoError(t, err)
	b, err := gdid.NewIdentity(seed)
	require.NoError(t, err)

	require.Equal(t, a.DID, b.DID)
	require.Equal(t, a.Verkey, b.Verkey)
	require.Equal(t, "V4SGRU86Z58d6TV7PBUe6f", a.DID)
	require.Equal(t, "GJ1SzoWzavQYfNL9XkaJdrQejfztN4XqdsiV4ct3LXKL", a.Verkey)
}

func TestNewIdentity_Random(t *testing.T) {
	t.Parallel()

	a, err := gdid.NewIdentity(nil)
	require.NoError(t, err)
	b, err := gdid.NewIdentity(nil)
	require.NoError(t, err)
	require.NotEqual(t, a.DID, b.DID)

	msg := []byte("hello")
	sig, err := a.Signer.Sign(context.Background(), msg)
	require.NoError(t, err)

	pub, err := gdid.PubKeyFromVerkey(a.DID, a.Verkey)
	require.NoError(t, err)
	require.True(t, pub.Verify(msg, sig))
}

func TestParseSeed(t *testing.T) {
	t.Parallel()

	b, err := gdid.ParseSeed(strings.Repeat("ab", 32))
	require.NoError(t, err)
	require.Len(t, b, 32)

	_, err = gdid.ParseSeed("short")
	require.ErrorIs(t, err, gdid.ErrInvalidSeed)

	_, err = gdid.ParseSeed(strings.Repeat("zz", 32))
	require.ErrorIs(t, err, gdid.ErrInvalidSeed)
}

func TestAbbreviatedVerkey_RoundTrip(t *testing.T) {
	t.Parallel()

	id, err := gdid.NewIdentity(nil)
	require.NoError(t, err)

	abbr, err := gdid.AbbreviateVerkey(id.DID, id.Verkey)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(abbr, "~"))

	pub, err := gdid.PubKeyFromVerkey(id.DID, abbr)
	require.NoError(t, err)
	require.True(t, pub.Equal(id.Signer.PubKey()))

	// A verkey for a different DID is not abbreviated.
	other, err := gdid.NewIdentity(nil)
	require.NoError(t, err)
	same, err := gdid.AbbreviateVerkey(id.DID, other.Verkey)
	require.NoError(t, err)
	require.Equal(t, other.Verkey, same)
}
