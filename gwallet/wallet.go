// Package gwallet holds key material for identities
// and signs on their behalf.
//
// [*Wallet] is an in-process keystore.
// [RemoteSigner] reaches a wallet served over HTTP by [NewHandler].
// Both satisfy the signer capability consumed by the signing service.
package gwallet

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/gordian-engine/gledger/gcrypto"
	"github.com/gordian-engine/gledger/gdid"
	"github.com/gordian-engine/gledger/internal/glog"
	"github.com/gordian-engine/gledger/lg/lgledger"
)

// Wallet is a lockable in-memory keystore mapping identities to signers.
// A new wallet is unlocked.
type Wallet struct {
	log *slog.Logger

	mu     sync.RWMutex
	locked bool
	keys   map[string]gcrypto.Signer
}

func New(log *slog.Logger) *Wallet {
	return &Wallet{
		log:  log,
		keys: make(map[string]gcrypto.Signer),
	}
}

// CreateIdentity derives a DID from seed (random if nil),
// stores its signer, and returns the identity.
func (w *Wallet) CreateIdentity(seed []byte) (gdid.Identity, error) {
	id, err := gdid.NewIdentity(seed)
	if err != nil {
		return gdid.Identity{}, err
	}

	w.Import(id.DID, id.Signer)
	return id, nil
}

// Import stores s as the signer for identity, replacing any existing signer.
func (w *Wallet) Import(identity string, s gcrypto.Signer) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.keys[identity]; ok {
		w.log.Info("Replacing signer for identity", "identity", identity)
	}
	w.keys[identity] = s
}

// Lock makes every subsequent Sign call fail with [lgledger.ErrSigningUnavailable]
// until Unlock is called.
func (w *Wallet) Lock() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.locked = true
}

func (w *Wallet) Unlock() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.locked = false
}

// Identities returns the sorted identities held by the wallet.
func (w *Wallet) Identities() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]string, 0, len(w.keys))
	for id := range w.keys {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// PubKey returns the verification key for identity.
// Public keys remain available while the wallet is locked.
func (w *Wallet) PubKey(identity string) (gcrypto.PubKey, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s, ok := w.keys[identity]
	if !ok {
		return nil, fmt.Errorf("%w: %q", lgledger.ErrUnknownIdentity, identity)
	}
	return s.PubKey(), nil
}

func (w *Wallet) Sign(ctx context.Context, identity string, msg []byte) ([]byte, error) {
	w.mu.RLock()
	locked := w.locked
	s, ok := w.keys[identity]
	w.mu.RUnlock()

	if locked {
		return nil, fmt.Errorf("%w: wallet is locked", lgledger.ErrSigningUnavailable)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", lgledger.ErrUnknownIdentity, identity)
	}

	sig, err := s.Sign(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", lgledger.ErrSigningUnavailable, err)
	}

	w.log.Debug("Signed message", "identity", identity, "sig", glog.ShortHex(sig))
	return sig, nil
}
