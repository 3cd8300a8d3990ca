package lgledger

import (
	"bytes"
	"encoding/json"

	"github.com/gowebpki/jcs"
)

// CanonicalJSON returns the RFC 8785 canonical form of the JSON value b.
//
// Numbers are normalized as IEEE-754 doubles,
// so integers in operation payloads beyond 2^53 must be sent as strings.
func CanonicalJSON(b []byte) ([]byte, error) {
	return jcs.Transform(b)
}

// marshalEnvelope encodes v without HTML escaping and without a trailing newline.
//
// Envelope structs declare their fields in lexical order of their JSON names,
// and their uint64 fields are encoded exactly;
// running the whole envelope through RFC 8785 would round large request IDs.
func marshalEnvelope(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
