package lgrequest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gordian-engine/gledger/lg/lgledger"
)

// requestDoc is the shape of a caller-supplied request document,
// such as {"reqId":1,"identifier":"...","operation":{...}}.
type requestDoc struct {
	ReqID           *uint64         `json:"reqId"`
	Identifier      string          `json:"identifier"`
	Operation       json.RawMessage `json:"operation"`
	ProtocolVersion uint32          `json:"protocolVersion"`
}

// Parse decodes a request document that already carries
// its identifier and request ID.
//
// If the document has no protocol version, defaultVersion is used.
// Any signature in the document is ignored;
// the request must be signed again before submission.
func Parse(requestJSON []byte, defaultVersion uint32) (lgledger.Request, error) {
	dec := json.NewDecoder(bytes.NewReader(requestJSON))
	dec.UseNumber()

	var doc requestDoc
	if err := dec.Decode(&doc); err != nil {
		return lgledger.Request{}, fmt.Errorf("%w: failed to decode request: %v", lgledger.ErrInvalidPayload, err)
	}

	if doc.ReqID == nil {
		return lgledger.Request{}, fmt.Errorf("%w: request missing reqId", lgledger.ErrInvalidPayload)
	}
	if doc.Identifier == "" {
		return lgledger.Request{}, fmt.Errorf("%w: request missing identifier", lgledger.ErrInvalidPayload)
	}

	op, err := CanonicalOperation(doc.Operation)
	if err != nil {
		return lgledger.Request{}, err
	}

	v := doc.ProtocolVersion
	if v == 0 {
		v = defaultVersion
	}

	return lgledger.Request{
		Identifier:      doc.Identifier,
		ReqID:           *doc.ReqID,
		Operation:       op,
		ProtocolVersion: v,
	}, nil
}
