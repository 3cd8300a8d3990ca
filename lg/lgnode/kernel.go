package lgnode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/gordian-engine/gledger/gcrypto"
	"github.com/gordian-engine/gledger/gdid"
	"github.com/gordian-engine/gledger/internal/glog"
	"github.com/gordian-engine/gledger/lg/lgcodec"
	"github.com/gordian-engine/gledger/lg/lgledger"
	"github.com/gordian-engine/gledger/lg/lgsign"
)

// Operation types.
const (
	OpNym    = "1"
	OpGetNym = "105"
)

type nymRecord struct {
	Identity
	SeqNo uint64
}

// kernel owns the ledger state.
// Only the kernel goroutine touches its fields.
type kernel struct {
	log *slog.Logger

	protocolVersion uint32
	signer          gcrypto.Signer
	codec           lgcodec.Codec

	seqNo uint64
	nyms  map[string]nymRecord

	replies *lru.Cache[lgledger.RequestKey, cachedReply]
}

func (k *kernel) run(ctx context.Context, reqs <-chan nodeRequest, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			k.log.Info("Stopping", "cause", context.Cause(ctx))
			return

		case req := <-reqs:
			reply, err := k.handle(ctx, req)
			// Response channel is 1-buffered.
			req.resp <- nodeResponse{reply: reply, err: err}
		}
	}
}

func (k *kernel) handle(ctx context.Context, req nodeRequest) ([]byte, error) {
	key := req.signed.Key()

	if c, ok := k.replies.Get(key); ok {
		if c.equalDigest(req.digest) {
			k.log.Debug("Replaying cached reply", "req", key.String())
			return c.reply, nil
		}
		return k.finish(ctx, req, lgledger.ReplyOpReject, nil, "request ID already used for a different request")
	}

	if v := req.signed.ProtocolVersion; v != k.protocolVersion {
		// Not cached: the client may retry with the correct version.
		return k.encode(ctx, req, lgledger.ReplyOpReqNack, nil, fmt.Sprintf(
			"unsupported protocol version %d, node speaks %d", v, k.protocolVersion,
		))
	}

	submitter, ok := k.nyms[req.signed.Identifier]
	if !ok {
		return k.finish(ctx, req, lgledger.ReplyOpReject, nil, fmt.Sprintf(
			"unknown identifier %s", req.signed.Identifier,
		))
	}

	pub, err := gdid.PubKeyFromVerkey(submitter.DID, submitter.Verkey)
	if err != nil {
		return k.finish(ctx, req, lgledger.ReplyOpReject, nil, "stored verkey is invalid")
	}
	if ok, err := lgsign.Verify(req.signed, pub); err != nil || !ok {
		return k.finish(ctx, req, lgledger.ReplyOpReject, nil, "invalid signature")
	}

	result, reason := k.apply(submitter, req.signed.Operation)
	if reason != "" {
		return k.finish(ctx, req, lgledger.ReplyOpReject, nil, reason)
	}
	return k.finish(ctx, req, lgledger.ReplyOpReply, result, "")
}

type operation struct {
	Type   string  `json:"type"`
	Dest   string  `json:"dest"`
	Verkey *string `json:"verkey"`
	Role   *string `json:"role"`
}

type nymResult struct {
	Type   string `json:"type"`
	Dest   string `json:"dest"`
	Verkey string `json:"verkey,omitempty"`
	Role   string `json:"role,omitempty"`
	SeqNo  uint64 `json:"seqNo"`
}

type getNymResult struct {
	Type  string  `json:"type"`
	Dest  string  `json:"dest"`
	SeqNo *uint64 `json:"seqNo"`

	// Data is the JSON-encoded record, or null if dest is unknown.
	Data *string `json:"data"`
}

// apply executes op on behalf of submitter.
// It returns the result, or a rejection reason.
func (k *kernel) apply(submitter nymRecord, raw json.RawMessage) (json.RawMessage, string) {
	var op operation
	if err := json.Unmarshal(raw, &op); err != nil {
		return nil, fmt.Sprintf("invalid operation: %v", err)
	}
	if op.Dest == "" {
		return nil, "invalid operation: missing dest"
	}

	switch op.Type {
	case OpNym:
		return k.applyNym(submitter, op)
	case OpGetNym:
		return k.applyGetNym(op)
	case "":
		return nil, "invalid operation: missing type"
	default:
		return nil, fmt.Sprintf("unsupported operation type %q", op.Type)
	}
}

func (k *kernel) applyNym(submitter nymRecord, op operation) (json.RawMessage, string) {
	existing, exists := k.nyms[op.Dest]

	if exists {
		if submitter.DID != op.Dest && submitter.Role != RoleTrustee {
			return nil, fmt.Sprintf("insufficient privileges to update %s", op.Dest)
		}
	} else {
		switch submitter.Role {
		case RoleTrustee, RoleSteward, RoleEndorser:
		default:
			return nil, "insufficient privileges to create a NYM"
		}
	}

	rec := existing.Identity
	rec.DID = op.Dest
	if op.Verkey != nil {
		rec.Verkey = *op.Verkey
	}
	if op.Role != nil {
		if *op.Role != rec.Role && submitter.Role != RoleTrustee {
			return nil, "only trustees may assign roles"
		}
		rec.Role = *op.Role
	}

	if rec.Verkey == "" {
		return nil, "NYM requires a verkey"
	}
	if _, err := gdid.PubKeyFromVerkey(rec.DID, rec.Verkey); err != nil {
		return nil, fmt.Sprintf("invalid verkey: %v", err)
	}

	seq := k.write(rec)
	return mustMarshal(nymResult{
		Type:   OpNym,
		Dest:   rec.DID,
		Verkey: rec.Verkey,
		Role:   rec.Role,
		SeqNo:  seq,
	}), ""
}

func (k *kernel) applyGetNym(op operation) (json.RawMessage, string) {
	res := getNymResult{Type: OpGetNym, Dest: op.Dest}
	if rec, ok := k.nyms[op.Dest]; ok {
		seq := rec.SeqNo
		data := string(mustMarshal(struct {
			Dest   string `json:"dest"`
			Verkey string `json:"verkey"`
			Role   string `json:"role,omitempty"`
		}{rec.DID, rec.Verkey, rec.Role}))
		res.SeqNo = &seq
		res.Data = &data
	}
	return mustMarshal(res), ""
}

// write stores id as the next transaction and returns its sequence number.
func (k *kernel) write(id Identity) uint64 {
	k.seqNo++
	k.nyms[id.DID] = nymRecord{Identity: id, SeqNo: k.seqNo}
	return k.seqNo
}

// finish encodes a reply and caches it for replay.
func (k *kernel) finish(
	ctx context.Context, req nodeRequest, op lgledger.ReplyOp, result json.RawMessage, reason string,
) ([]byte, error) {
	b, err := k.encode(ctx, req, op, result, reason)
	if err != nil {
		return nil, err
	}

	key := req.signed.Key()
	if _, ok := k.replies.Get(key); !ok {
		k.replies.Add(key, cachedReply{digest: bytes.Clone(req.digest), reply: b})
	}

	k.log.Debug(
		"Handled request",
		"req", key.String(),
		"op", op,
		"reason", reason,
		"digest", glog.ShortHex(req.digest),
	)
	return b, nil
}

func (k *kernel) encode(
	ctx context.Context, req nodeRequest, op lgledger.ReplyOp, result json.RawMessage, reason string,
) ([]byte, error) {
	r := lgledger.Reply{
		Op:         op,
		Identifier: req.signed.Identifier,
		ReqID:      req.signed.ReqID,
		Digest:     req.digest,
		Result:     result,
		Reason:     reason,
	}

	if k.signer != nil {
		sb, err := r.SignBytes()
		if err != nil {
			return nil, fmt.Errorf("failed to build reply sign bytes: %w", err)
		}
		r.Signature, err = k.signer.Sign(ctx, sb)
		if err != nil {
			return nil, fmt.Errorf("failed to sign reply: %w", err)
		}
	}

	return k.codec.MarshalReply(r)
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("BUG: failed to marshal %T: %w", v, err))
	}
	return b
}
