// Package gdid creates and decodes Indy-style decentralized identifiers.
//
// An identity is an ed25519 key pair.
// Its DID is the base58 encoding of the first 16 bytes of the verification key,
// and the full verification key ("verkey") is the base58 encoding of the whole key.
// A verkey may also be abbreviated relative to its DID,
// as "~" followed by the base58 encoding of the last 16 bytes.
package gdid

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/gordian-engine/gledger/gcrypto"
	"github.com/mr-tron/base58"
)

var ErrInvalidSeed = errors.New("invalid seed")

// Identity is a DID together with the signer for its verification key.
type Identity struct {
	DID    string
	Verkey string

	Signer gcrypto.Ed25519Signer
}

// NewIdentity derives an identity from a 32-byte seed.
// A nil seed generates a random identity.
func NewIdentity(seed []byte) (Identity, error) {
	if seed == nil {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			return Identity{}, fmt.Errorf("failed to generate seed: %w", err)
		}
	}

	s, err := gcrypto.NewEd25519SignerFromSeed(seed)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}

	return FromSigner(s), nil
}

// FromSigner returns the identity for an existing ed25519 signer.
func FromSigner(s gcrypto.Ed25519Signer) Identity {
	pub := s.PubKey().(gcrypto.Ed25519PubKey)
	return Identity{
		DID:    DIDFromPubKey(pub),
		Verkey: base58.Encode(pub),
		Signer: s,
	}
}

// ParseSeed accepts either a 32-character string used verbatim,
// as wallets conventionally accept, or 64 hex characters.
func ParseSeed(s string) ([]byte, error) {
	switch len(s) {
	case ed25519.SeedSize:
		return []byte(s), nil
	case 2 * ed25519.SeedSize:
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf(
			"%w: expected %d characters or %d hex characters, got %d",
			ErrInvalidSeed, ed25519.SeedSize, 2*ed25519.SeedSize, len(s),
		)
	}
}

// DIDFromPubKey returns the DID for a verification key.
func DIDFromPubKey(pub gcrypto.Ed25519PubKey) string {
	return base58.Encode(pub.Address())
}

// AbbreviateVerkey returns the abbreviated form of verkey
// if it belongs to did, and verkey unchanged otherwise.
func AbbreviateVerkey(did, verkey string) (string, error) {
	full, err := base58.Decode(verkey)
	if err != nil {
		return "", fmt.Errorf("failed to decode verkey: %w", err)
	}
	if len(full) != ed25519.PublicKeySize {
		return "", fmt.Errorf("verkey has %d bytes, expected %d", len(full), ed25519.PublicKeySize)
	}

	if base58.Encode(full[:16]) != did {
		return verkey, nil
	}
	return "~" + base58.Encode(full[16:]), nil
}

// PubKeyFromVerkey decodes a full or abbreviated verkey.
// The DID is only consulted for abbreviated verkeys.
func PubKeyFromVerkey(did, verkey string) (gcrypto.Ed25519PubKey, error) {
	var raw []byte
	if rest, ok := strings.CutPrefix(verkey, "~"); ok {
		head, err := base58.Decode(did)
		if err != nil {
			return nil, fmt.Errorf("failed to decode DID %q: %w", did, err)
		}
		tail, err := base58.Decode(rest)
		if err != nil {
			return nil, fmt.Errorf("failed to decode abbreviated verkey: %w", err)
		}
		raw = append(head, tail...)
	} else {
		var err error
		raw, err = base58.Decode(verkey)
		if err != nil {
			return nil, fmt.Errorf("failed to decode verkey: %w", err)
		}
	}

	pub, err := gcrypto.NewEd25519PubKey(raw)
	if err != nil {
		return nil, err
	}
	return pub.(gcrypto.Ed25519PubKey), nil
}
