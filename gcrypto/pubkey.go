package gcrypto

import "context"

// PubKey is the public half of a key pair.
//
// In this module, public keys identify both the actors submitting requests
// (via the identity's verification key)
// and the ledger nodes signing their replies.
type PubKey interface {
	// Address is a short, key-type specific identifier for the key.
	Address() []byte

	PubKeyBytes() []byte

	Equal(other PubKey) bool

	Verify(msg, sig []byte) bool
}

// Signer produces signatures for a single private key.
type Signer interface {
	PubKey() PubKey

	// Sign returns the signature for input.
	// Implementations backed by remote key stores
	// should respect cancellation of ctx.
	Sign(ctx context.Context, input []byte) ([]byte, error)
}
