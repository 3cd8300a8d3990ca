package lgjson

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gordian-engine/gledger/lg/lgcodec"
	"github.com/gordian-engine/gledger/lg/lgledger"
	"github.com/mr-tron/base58"
	"github.com/xeipuuv/gojsonschema"
)

var _ lgcodec.Codec = Codec{}

// Codec is a stateless JSON codec. The zero value is ready to use.
type Codec struct{}

type jsonSignedRequest struct {
	Identifier      string          `json:"identifier"`
	ReqID           uint64          `json:"reqId"`
	Operation       json.RawMessage `json:"operation"`
	ProtocolVersion uint32          `json:"protocolVersion"`
	Signature       string          `json:"signature"`
}

type jsonReply struct {
	Op         lgledger.ReplyOp `json:"op"`
	Identifier string           `json:"identifier"`
	ReqID      uint64           `json:"reqId"`
	Digest     string           `json:"digest"`
	Result     json.RawMessage  `json:"result,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Signature  string           `json:"signature,omitempty"`
}

const replySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["op", "identifier", "reqId", "digest"],
  "properties": {
    "op": {"enum": ["REPLY", "REJECT", "REQNACK"]},
    "identifier": {"type": "string", "minLength": 1},
    "reqId": {"type": "integer", "minimum": 0},
    "digest": {"type": "string", "pattern": "^[0-9a-f]{64}$"},
    "result": {"type": "object"},
    "reason": {"type": "string"},
    "signature": {"type": "string"}
  }
}`

var compiledReplySchema = func() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(replySchema))
	if err != nil {
		panic(fmt.Errorf("BUG: invalid reply schema: %w", err))
	}
	return s
}()

func (Codec) MarshalSignedRequest(r lgledger.SignedRequest) ([]byte, error) {
	if len(r.Operation) == 0 {
		return nil, fmt.Errorf("%w: empty operation", lgledger.ErrInvalidPayload)
	}
	return json.Marshal(jsonSignedRequest{
		Identifier:      r.Identifier,
		ReqID:           r.ReqID,
		Operation:       r.Operation,
		ProtocolVersion: r.ProtocolVersion,
		Signature:       base58.Encode(r.Signature),
	})
}

func (Codec) UnmarshalSignedRequest(b []byte) (lgledger.SignedRequest, error) {
	var jr jsonSignedRequest
	if err := json.Unmarshal(b, &jr); err != nil {
		return lgledger.SignedRequest{}, fmt.Errorf("%w: %v", lgledger.ErrInvalidPayload, err)
	}

	if jr.Identifier == "" {
		return lgledger.SignedRequest{}, fmt.Errorf("%w: missing identifier", lgledger.ErrInvalidPayload)
	}
	if len(jr.Operation) == 0 || !bytes.HasPrefix(bytes.TrimSpace(jr.Operation), []byte("{")) {
		return lgledger.SignedRequest{}, fmt.Errorf("%w: operation must be an object", lgledger.ErrInvalidPayload)
	}

	var sig []byte
	if jr.Signature != "" {
		var err error
		sig, err = base58.Decode(jr.Signature)
		if err != nil {
			return lgledger.SignedRequest{}, fmt.Errorf("%w: failed to decode signature: %v", lgledger.ErrInvalidPayload, err)
		}
	}

	return lgledger.SignedRequest{
		Request: lgledger.Request{
			Identifier:      jr.Identifier,
			ReqID:           jr.ReqID,
			Operation:       jr.Operation,
			ProtocolVersion: jr.ProtocolVersion,
		},
		Signature: sig,
	}, nil
}

func (Codec) MarshalReply(r lgledger.Reply) ([]byte, error) {
	jr := jsonReply{
		Op:         r.Op,
		Identifier: r.Identifier,
		ReqID:      r.ReqID,
		Digest:     hex.EncodeToString(r.Digest),
		Result:     r.Result,
		Reason:     r.Reason,
	}
	if len(r.Signature) > 0 {
		jr.Signature = base58.Encode(r.Signature)
	}
	return json.Marshal(jr)
}

func (Codec) UnmarshalReply(b []byte) (lgledger.Reply, error) {
	res, err := compiledReplySchema.Validate(gojsonschema.NewBytesLoader(b))
	if err != nil {
		// Validate only errors when the document is not JSON at all.
		return lgledger.Reply{}, fmt.Errorf("%w: %v", lgledger.ErrMalformedReply, err)
	}
	if !res.Valid() {
		msgs := make([]string, len(res.Errors()))
		for i, e := range res.Errors() {
			msgs[i] = e.String()
		}
		return lgledger.Reply{}, fmt.Errorf(
			"%w: %s", lgledger.ErrMalformedReply, strings.Join(msgs, "; "),
		)
	}

	var jr jsonReply
	if err := json.Unmarshal(b, &jr); err != nil {
		return lgledger.Reply{}, fmt.Errorf("%w: %v", lgledger.ErrMalformedReply, err)
	}

	if jr.Op == lgledger.ReplyOpReply && len(jr.Result) == 0 {
		return lgledger.Reply{}, fmt.Errorf("%w: REPLY without result", lgledger.ErrMalformedReply)
	}

	digest, err := hex.DecodeString(jr.Digest)
	if err != nil {
		return lgledger.Reply{}, fmt.Errorf("%w: invalid digest: %v", lgledger.ErrMalformedReply, err)
	}

	var sig []byte
	if jr.Signature != "" {
		sig, err = base58.Decode(jr.Signature)
		if err != nil {
			return lgledger.Reply{}, fmt.Errorf("%w: invalid signature encoding: %v", lgledger.ErrMalformedReply, err)
		}
	}

	return lgledger.Reply{
		Op:         jr.Op,
		Identifier: jr.Identifier,
		ReqID:      jr.ReqID,
		Digest:     digest,
		Result:     jr.Result,
		Reason:     jr.Reason,
		Signature:  sig,
	}, nil
}
