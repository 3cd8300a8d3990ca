package lgledger

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ReplyOp is the kind of a node reply.
type ReplyOp string

const (
	// ReplyOpReply is an executed request with a result.
	ReplyOpReply ReplyOp = "REPLY"

	// ReplyOpReject is a request the ledger refused after validation,
	// e.g. because of a bad signature.
	ReplyOpReject ReplyOp = "REJECT"

	// ReplyOpReqNack is a request the node refused before validation,
	// e.g. because of a protocol version mismatch.
	ReplyOpReqNack ReplyOp = "REQNACK"
)

func (op ReplyOp) Valid() bool {
	switch op {
	case ReplyOpReply, ReplyOpReject, ReplyOpReqNack:
		return true
	default:
		return false
	}
}

// Reply is one node's validated reply to a signed request.
type Reply struct {
	// Node is the configured name of the replying node,
	// and NodeIndex its position in the pool configuration.
	// Both are set by the receiving side, not taken from the reply body.
	Node      string
	NodeIndex int

	Op ReplyOp

	Identifier string
	ReqID      uint64
	Digest     []byte

	// Result is the canonical JSON result, set for ReplyOpReply.
	Result json.RawMessage

	// Reason is the explanation for ReplyOpReject and ReplyOpReqNack.
	Reason string

	// Signature is the node's signature over [Reply.SignBytes].
	// It may be empty for nodes configured without a key.
	Signature []byte
}

// Fields are in lexical order of their JSON names.
type replySignBytesDoc struct {
	Digest     string          `json:"digest"`
	Identifier string          `json:"identifier"`
	Op         ReplyOp         `json:"op"`
	Reason     string          `json:"reason,omitempty"`
	ReqID      uint64          `json:"reqId"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// SignBytes returns the canonical content a node signs for its reply.
//
// The node's own name is deliberately absent,
// so that every node agreeing on a result signs identical bytes.
// The submitter relies on this when grouping replies by agreement.
func (r Reply) SignBytes() ([]byte, error) {
	doc := replySignBytesDoc{
		Op:         r.Op,
		Identifier: r.Identifier,
		ReqID:      r.ReqID,
		Digest:     hex.EncodeToString(r.Digest),
		Reason:     r.Reason,
	}
	if len(r.Result) > 0 {
		res, err := CanonicalJSON(r.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to canonicalize reply result: %w", err)
		}
		doc.Result = res
	}

	out, err := marshalEnvelope(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reply sign bytes: %w", err)
	}
	return out, nil
}

// Clone returns a deep copy of r.
func (r Reply) Clone() Reply {
	r.Digest = bytes.Clone(r.Digest)
	r.Result = bytes.Clone(r.Result)
	r.Signature = bytes.Clone(r.Signature)
	return r
}
