package lgledger

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Request is an unsigned ledger operation request.
type Request struct {
	// Identifier is the ledger-level actor submitting the request,
	// typically a DID.
	Identifier string

	// ReqID is unique per identifier.
	// Requests produced by [github.com/gordian-engine/gledger/lg/lgrequest.Builder]
	// have strictly increasing IDs per identifier.
	ReqID uint64

	// Operation is the canonical JSON encoding of the operation object.
	Operation json.RawMessage

	ProtocolVersion uint32
}

// RequestKey identifies a request within a pool.
type RequestKey struct {
	Identifier string
	ReqID      uint64
}

func (r Request) Key() RequestKey {
	return RequestKey{Identifier: r.Identifier, ReqID: r.ReqID}
}

func (k RequestKey) String() string {
	return fmt.Sprintf("%s/%d", k.Identifier, k.ReqID)
}

// Clone returns a deep copy of r.
func (r Request) Clone() Request {
	r.Operation = bytes.Clone(r.Operation)
	return r
}

// signBytesDoc is the document whose encoding is signed.
// Fields are in lexical order of their JSON names.
type signBytesDoc struct {
	Identifier      string          `json:"identifier"`
	Operation       json.RawMessage `json:"operation"`
	ProtocolVersion uint32          `json:"protocolVersion"`
	ReqID           uint64          `json:"reqId"`
}

// SignBytes returns the canonical JSON of the request,
// which is the exact input to the signer.
// The operation is canonicalized with RFC 8785.
func (r Request) SignBytes() ([]byte, error) {
	if len(r.Operation) == 0 {
		return nil, fmt.Errorf("%w: empty operation", ErrInvalidPayload)
	}

	op, err := CanonicalJSON(r.Operation)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to canonicalize operation: %v", ErrInvalidPayload, err)
	}

	out, err := marshalEnvelope(signBytesDoc{
		Identifier:      r.Identifier,
		Operation:       op,
		ProtocolVersion: r.ProtocolVersion,
		ReqID:           r.ReqID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return out, nil
}

// SignedRequest is a request with its signature attached.
//
// A SignedRequest must not be modified once created;
// to submit again, build a new request with a new ReqID.
type SignedRequest struct {
	Request

	Signature []byte
}

// Clone returns a deep copy of r.
func (r SignedRequest) Clone() SignedRequest {
	return SignedRequest{
		Request:   r.Request.Clone(),
		Signature: bytes.Clone(r.Signature),
	}
}

// Digest is the BLAKE2b-256 hash of the sign bytes followed by the signature.
// Nodes echo the digest in their replies, binding each reply to one signed request.
func (r SignedRequest) Digest() ([]byte, error) {
	sb, err := r.SignBytes()
	if err != nil {
		return nil, err
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		// Only possible with an oversized key.
		panic(fmt.Errorf("failed to create blake2b hash: %w", err))
	}
	_, _ = h.Write(sb)
	_, _ = h.Write(r.Signature)
	return h.Sum(nil), nil
}
