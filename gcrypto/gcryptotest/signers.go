// Package gcryptotest contains deterministic key material for tests.
package gcryptotest

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gordian-engine/gledger/gcrypto"
)

var (
	ed25519Mu    sync.Mutex
	ed25519Cache []gcrypto.Ed25519Signer

	secpMu    sync.Mutex
	secpCache []gcrypto.Secp256k1Signer
)

// DeterministicEd25519Seed returns the 32-byte seed for the idx'th
// deterministic ed25519 signer.
func DeterministicEd25519Seed(idx int) []byte {
	seed := make([]byte, ed25519.SeedSize)
	copy(seed, "gledger-test-seed")
	binary.BigEndian.PutUint64(seed[ed25519.SeedSize-8:], uint64(idx))
	return seed
}

// DeterministicEd25519Signers returns n ed25519 signers
// whose keys are identical across test runs.
// Generated keys are cached, so repeated calls are cheap.
func DeterministicEd25519Signers(n int) []gcrypto.Ed25519Signer {
	ed25519Mu.Lock()
	defer ed25519Mu.Unlock()

	for i := len(ed25519Cache); i < n; i++ {
		priv := ed25519.NewKeyFromSeed(DeterministicEd25519Seed(i))
		ed25519Cache = append(ed25519Cache, gcrypto.NewEd25519Signer(priv))
	}

	out := make([]gcrypto.Ed25519Signer, n)
	copy(out, ed25519Cache)
	return out
}

// DeterministicSecp256k1Signers is like [DeterministicEd25519Signers]
// but for secp256k1 keys.
func DeterministicSecp256k1Signers(n int) []gcrypto.Secp256k1Signer {
	secpMu.Lock()
	defer secpMu.Unlock()

	for i := len(secpCache); i < n; i++ {
		h := crypto.Keccak256([]byte(fmt.Sprintf("gledger-secp256k1-%d", i)))
		priv, err := crypto.ToECDSA(h)
		if err != nil {
			panic(fmt.Errorf("failed to build deterministic secp256k1 key %d: %w", i, err))
		}
		secpCache = append(secpCache, gcrypto.NewSecp256k1Signer(priv))
	}

	out := make([]gcrypto.Secp256k1Signer, n)
	copy(out, secpCache)
	return out
}

// PubKeys returns the public keys of the given signers, in order.
func PubKeys[S gcrypto.Signer](signers []S) []gcrypto.PubKey {
	out := make([]gcrypto.PubKey, len(signers))
	for i, s := range signers {
		out[i] = s.PubKey()
	}
	return out
}

