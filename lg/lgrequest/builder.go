// Package lgrequest builds ledger requests:
// it canonicalizes operation payloads and assigns request IDs.
package lgrequest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gordian-engine/gledger/lg/lgledger"
)

// Builder creates unsigned requests with fresh request IDs.
//
// Request IDs are strictly increasing per identifier.
// They are derived from the wall clock in nanoseconds,
// but never move backwards when the clock does.
//
// Builder methods are safe for concurrent use.
type Builder struct {
	protocolVersion uint32

	now func() time.Time

	mu     sync.Mutex
	lastID map[string]uint64
}

// NewBuilder returns a Builder stamping requests with protocolVersion.
func NewBuilder(protocolVersion uint32) *Builder {
	return &Builder{
		protocolVersion: protocolVersion,
		now:             time.Now,
		lastID:          make(map[string]uint64),
	}
}

// Build returns a new unsigned request for identifier.
//
// The payload may be a []byte or json.RawMessage holding a JSON object,
// or any value that encoding/json marshals to an object.
// Build fails with [lgledger.ErrInvalidPayload]
// if the payload cannot be canonically serialized.
func (b *Builder) Build(identifier string, payload any) (lgledger.Request, error) {
	if identifier == "" {
		return lgledger.Request{}, fmt.Errorf("%w: empty identifier", lgledger.ErrInvalidPayload)
	}

	op, err := CanonicalOperation(payload)
	if err != nil {
		return lgledger.Request{}, err
	}

	return lgledger.Request{
		Identifier:      identifier,
		ReqID:           b.nextID(identifier),
		Operation:       op,
		ProtocolVersion: b.protocolVersion,
	}, nil
}

// ProtocolVersion is the version stamped on built requests.
func (b *Builder) ProtocolVersion() uint32 {
	return b.protocolVersion
}

func (b *Builder) nextID(identifier string) uint64 {
	id := uint64(b.now().UnixNano())

	b.mu.Lock()
	defer b.mu.Unlock()

	if last := b.lastID[identifier]; id <= last {
		id = last + 1
	}
	b.lastID[identifier] = id
	return id
}

// Observe records an externally assigned request ID,
// so that later IDs built for the identifier are greater.
func (b *Builder) Observe(identifier string, reqID uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if reqID > b.lastID[identifier] {
		b.lastID[identifier] = reqID
	}
}

// CanonicalOperation returns the canonical JSON encoding of an operation payload.
func CanonicalOperation(payload any) (json.RawMessage, error) {
	var raw []byte
	switch p := payload.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil operation", lgledger.ErrInvalidPayload)
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	case string:
		raw = []byte(p)
	default:
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", lgledger.ErrInvalidPayload, err)
		}
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: operation must be a JSON object", lgledger.ErrInvalidPayload)
	}

	out, err := lgledger.CanonicalJSON(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", lgledger.ErrInvalidPayload, err)
	}
	return out, nil
}
