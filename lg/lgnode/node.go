// Package lgnode is a reference ledger node.
//
// It verifies signed requests against the identities it knows,
// applies NYM (type "1") and GET_NYM (type "105") operations,
// and answers with signed replies.
// A set of lgnode instances seeded with the same trustees
// behaves as a consistent pool, which makes it suitable
// for integration tests and local sandboxes.
package lgnode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/gordian-engine/gledger/gcrypto"
	"github.com/gordian-engine/gledger/internal/gchan"
	"github.com/gordian-engine/gledger/lg/lgcodec"
	"github.com/gordian-engine/gledger/lg/lgcodec/lgjson"
	"github.com/gordian-engine/gledger/lg/lgledger"
	"github.com/gordian-engine/gledger/lg/lgtransport"
)

// Roles, as stored in NYM records.
const (
	RoleTrustee  = "0"
	RoleSteward  = "2"
	RoleEndorser = "101"
)

// Identity is a NYM record.
type Identity struct {
	DID    string
	Verkey string
	Role   string
}

type Config struct {
	Name string

	ProtocolVersion uint32

	// Signer signs replies. Replies are unsigned if nil.
	Signer gcrypto.Signer

	Codec lgcodec.Codec

	// Trustees are the genesis identities.
	Trustees []Identity

	// RememberedReplies bounds the replay cache.
	RememberedReplies int
}

func DefaultConfig() Config {
	return Config{
		Codec:             lgjson.Codec{},
		RememberedReplies: 1024,
	}
}

// Node handles ledger requests.
// Ledger state is owned by a single kernel goroutine.
type Node struct {
	log *slog.Logger

	codec lgcodec.Codec

	// Cancelled when the node stops.
	ctx context.Context

	reqs chan nodeRequest
	done chan struct{}
}

// ErrStopped is returned from HandleRequest after the node's context is cancelled.
var ErrStopped = errors.New("node stopped")

var _ lgtransport.Handler = (*Node)(nil)

type nodeRequest struct {
	signed lgledger.SignedRequest
	digest []byte

	resp chan nodeResponse
}

type nodeResponse struct {
	reply []byte
	err   error
}

// New starts a node that runs until ctx is cancelled.
func New(ctx context.Context, log *slog.Logger, cfg Config) (*Node, error) {
	if cfg.ProtocolVersion == 0 {
		return nil, errors.New("node config must set ProtocolVersion")
	}
	if cfg.Codec == nil {
		return nil, errors.New("node config must set Codec")
	}
	if cfg.RememberedReplies <= 0 {
		return nil, fmt.Errorf("RememberedReplies must be positive (got %d)", cfg.RememberedReplies)
	}

	replies, err := lru.New[lgledger.RequestKey, cachedReply](cfg.RememberedReplies)
	if err != nil {
		return nil, fmt.Errorf("failed to create reply cache: %w", err)
	}

	k := &kernel{
		log:             log.With("sys", "kernel"),
		protocolVersion: cfg.ProtocolVersion,
		signer:          cfg.Signer,
		codec:           cfg.Codec,
		nyms:            make(map[string]nymRecord),
		replies:         replies,
	}
	for _, tr := range cfg.Trustees {
		if tr.Role == "" {
			tr.Role = RoleTrustee
		}
		k.write(tr)
	}

	n := &Node{
		log:   log,
		codec: cfg.Codec,
		ctx:   ctx,
		reqs:  make(chan nodeRequest),
		done:  make(chan struct{}),
	}
	go k.run(ctx, n.reqs, n.done)

	return n, nil
}

// Wait blocks until the node's kernel has stopped.
func (n *Node) Wait() {
	<-n.done
}

// HandleRequest answers one encoded signed request with one encoded reply.
// An error is returned only for requests that cannot be decoded
// and for cancellation.
func (n *Node) HandleRequest(ctx context.Context, req []byte) ([]byte, error) {
	signed, err := n.codec.UnmarshalSignedRequest(req)
	if err != nil {
		return nil, err
	}

	digest, err := signed.Digest()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(n.ctx, cancel)
	defer stop()

	respCh := make(chan nodeResponse, 1)
	resp, ok := gchan.ReqResp(
		ctx, n.log,
		n.reqs, nodeRequest{
			signed: signed,
			digest: digest,
			resp:   respCh,
		},
		respCh,
		"handling ledger request",
	)
	if !ok {
		if n.ctx.Err() != nil {
			return nil, ErrStopped
		}
		return nil, context.Cause(ctx)
	}
	return resp.reply, resp.err
}

type cachedReply struct {
	digest []byte
	reply  []byte
}

// equalDigest reports whether c is the cached reply for the request with digest.
func (c cachedReply) equalDigest(digest []byte) bool {
	return bytes.Equal(c.digest, digest)
}
