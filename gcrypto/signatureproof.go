package gcrypto

import (
	"bytes"
	"errors"

	"github.com/bits-and-blooms/bitset"
)

var (
	ErrUnknownKey       = errors.New("unknown public key")
	ErrInvalidSignature = errors.New("invalid signature")
)

// SignatureProof collects signatures from a fixed set of candidate keys
// over one common message.
//
// The submitter builds one of these for an agreed ledger reply:
// every node that agreed signed the identical reply content,
// so the proof shows which nodes vouched for the committed result.
//
// SignatureProof is not safe for concurrent use.
type SignatureProof struct {
	msg []byte

	keys []PubKey

	// Indexed identically to keys.
	sigs [][]byte

	bits *bitset.BitSet
}

// SparseSignature is a signature paired with the index of its candidate key.
type SparseSignature struct {
	KeyIdx int
	Sig    []byte
}

// NewSignatureProof returns an empty proof for msg.
// Entries in candidateKeys may be nil,
// for candidates that do not sign their messages;
// such candidates can never contribute to the proof.
func NewSignatureProof(msg []byte, candidateKeys []PubKey) *SignatureProof {
	return &SignatureProof{
		msg:  bytes.Clone(msg),
		keys: candidateKeys,
		sigs: make([][]byte, len(candidateKeys)),
		bits: bitset.New(uint(len(candidateKeys))),
	}
}

func (p *SignatureProof) Message() []byte {
	return p.msg
}

// AddSignature verifies sig against key and records it.
// Adding a second valid signature for the same key replaces the first.
func (p *SignatureProof) AddSignature(sig []byte, key PubKey) error {
	idx := p.keyIndex(key)
	if idx < 0 {
		return ErrUnknownKey
	}
	if !key.Verify(p.msg, sig) {
		return ErrInvalidSignature
	}

	p.sigs[idx] = bytes.Clone(sig)
	p.bits.Set(uint(idx))
	return nil
}

func (p *SignatureProof) keyIndex(key PubKey) int {
	if key == nil {
		return -1
	}
	for i, k := range p.keys {
		if k != nil && k.Equal(key) {
			return i
		}
	}
	return -1
}

// SignatureBitSet copies the set of candidate indices with signatures into dst.
func (p *SignatureProof) SignatureBitSet(dst *bitset.BitSet) {
	p.bits.CopyFull(dst)
}

// Count returns the number of candidates with a recorded signature.
func (p *SignatureProof) Count() uint {
	return p.bits.Count()
}

// Signatures returns the recorded signatures ordered by key index.
func (p *SignatureProof) Signatures() []SparseSignature {
	out := make([]SparseSignature, 0, p.bits.Count())
	for i, ok := p.bits.NextSet(0); ok; i, ok = p.bits.NextSet(i + 1) {
		out = append(out, SparseSignature{
			KeyIdx: int(i),
			Sig:    bytes.Clone(p.sigs[i]),
		})
	}
	return out
}

// Verify re-checks every recorded signature.
// It is intended for proofs that were reconstructed from untrusted input.
func (p *SignatureProof) Verify() bool {
	for i, ok := p.bits.NextSet(0); ok; i, ok = p.bits.NextSet(i + 1) {
		k := p.keys[i]
		if k == nil || !k.Verify(p.msg, p.sigs[i]) {
			return false
		}
	}
	return true
}
