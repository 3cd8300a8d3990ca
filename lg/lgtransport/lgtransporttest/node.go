package lgtransporttest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordian-engine/gledger/gcrypto"
	"github.com/gordian-engine/gledger/lg/lgcodec/lgjson"
	"github.com/gordian-engine/gledger/lg/lgledger"
)

// ScriptedNode is a handler that answers every request the same way.
// Its fields may be changed between requests with [ScriptedNode.Set].
type ScriptedNode struct {
	mu     sync.Mutex
	script Script

	calls atomic.Int64
}

// Script describes how a ScriptedNode answers.
type Script struct {
	// Signer signs replies when set.
	Signer gcrypto.Signer

	// Op defaults to REPLY.
	Op     lgledger.ReplyOp
	Result json.RawMessage
	Reason string

	// Gate, when set, is waited on before answering.
	Gate <-chan struct{}

	// Delay is applied before answering.
	Delay time.Duration

	// Err, when set, is returned instead of a reply.
	Err error

	// Raw, when set, is returned verbatim instead of an encoded reply.
	Raw []byte

	// Mutate is applied to the reply before signing.
	Mutate func(*lgledger.Reply)
}

func NewScriptedNode(s Script) *ScriptedNode {
	return &ScriptedNode{script: s}
}

// Set replaces the script.
func (n *ScriptedNode) Set(s Script) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.script = s
}

// Calls returns the number of requests the node has received.
func (n *ScriptedNode) Calls() int {
	return int(n.calls.Load())
}

func (n *ScriptedNode) HandleRequest(ctx context.Context, req []byte) ([]byte, error) {
	n.calls.Add(1)

	n.mu.Lock()
	s := n.script
	n.mu.Unlock()

	if s.Gate != nil {
		select {
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		case <-s.Gate:
		}
	}

	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		case <-t.C:
		}
	}

	if s.Err != nil {
		return nil, s.Err
	}
	if s.Raw != nil {
		return s.Raw, nil
	}

	var codec lgjson.Codec
	signed, err := codec.UnmarshalSignedRequest(req)
	if err != nil {
		return nil, fmt.Errorf("scripted node failed to decode request: %w", err)
	}

	reply, err := ReplyTo(ctx, signed, s.Signer, s.Op, s.Result, s.Reason, s.Mutate)
	if err != nil {
		return nil, err
	}
	return codec.MarshalReply(reply)
}

// ReplyTo builds a reply to signed, signed by signer if non-nil.
// An empty op is treated as REPLY.
func ReplyTo(
	ctx context.Context,
	signed lgledger.SignedRequest,
	signer gcrypto.Signer,
	op lgledger.ReplyOp,
	result json.RawMessage,
	reason string,
	mutate func(*lgledger.Reply),
) (lgledger.Reply, error) {
	digest, err := signed.Digest()
	if err != nil {
		return lgledger.Reply{}, err
	}

	if op == "" {
		op = lgledger.ReplyOpReply
	}
	if op == lgledger.ReplyOpReply && len(result) == 0 {
		result = json.RawMessage(`{}`)
	}

	r := lgledger.Reply{
		Op:         op,
		Identifier: signed.Identifier,
		ReqID:      signed.ReqID,
		Digest:     digest,
		Result:     result,
		Reason:     reason,
	}
	if mutate != nil {
		mutate(&r)
	}

	if signer != nil {
		sb, err := r.SignBytes()
		if err != nil {
			return lgledger.Reply{}, err
		}
		r.Signature, err = signer.Sign(ctx, sb)
		if err != nil {
			return lgledger.Reply{}, err
		}
	}
	return r, nil
}
