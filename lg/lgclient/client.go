// Package lgclient combines request building, signing and submission.
//
// Each method signs with the wallet-held key of identity
// and submits through the pool the client was created with.
// The three submission methods differ only in how they complete:
// SignAndSubmit blocks, SignAndSubmitAsync calls back,
// and SignAndSubmitWithin waits for a bounded time.
package lgclient

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gordian-engine/gledger/lg/lgledger"
	"github.com/gordian-engine/gledger/lg/lgpool"
	"github.com/gordian-engine/gledger/lg/lgrequest"
	"github.com/gordian-engine/gledger/lg/lgsign"
	"github.com/gordian-engine/gledger/lg/lgsubmit"
)

type Config struct {
	Submitter lgsubmit.Config
}

func DefaultConfig() Config {
	return Config{
		Submitter: lgsubmit.DefaultConfig(),
	}
}

type Client struct {
	log *slog.Logger

	builder   *lgrequest.Builder
	signer    *lgsign.Service
	submitter *lgsubmit.Submitter
}

// New returns a client for pool, signing with signer.
// The pool remains owned by the caller.
func New(log *slog.Logger, pool *lgpool.Pool, signer lgsign.Signer, cfg Config) (*Client, error) {
	s, err := lgsubmit.New(log.With("sys", "submitter"), pool, cfg.Submitter)
	if err != nil {
		return nil, err
	}

	return &Client{
		log:       log,
		builder:   lgrequest.NewBuilder(pool.ProtocolVersion()),
		signer:    lgsign.NewService(log.With("sys", "signer"), signer),
		submitter: s,
	}, nil
}

// Submitter returns the client's submitter,
// for submitting requests that were signed elsewhere.
func (c *Client) Submitter() *lgsubmit.Submitter {
	return c.submitter
}

// BuildAndSign builds a request for payload with a fresh request ID,
// using identity as the identifier, and signs it.
func (c *Client) BuildAndSign(ctx context.Context, identity string, payload any) (lgledger.SignedRequest, error) {
	req, err := c.builder.Build(identity, payload)
	if err != nil {
		return lgledger.SignedRequest{}, err
	}
	return c.signer.Sign(ctx, req, identity)
}

// SignAndSubmit signs payload as identity, submits it,
// and blocks until the outcome is known.
func (c *Client) SignAndSubmit(ctx context.Context, identity string, payload any) (lgledger.Outcome, error) {
	signed, err := c.BuildAndSign(ctx, identity, payload)
	if err != nil {
		return lgledger.Outcome{}, err
	}
	return c.submitter.SubmitAndWait(ctx, signed)
}

// SignAndSubmitAsync signs payload as identity and submits it without blocking.
// cb is called exactly once on its own goroutine,
// including when signing fails.
func (c *Client) SignAndSubmitAsync(ctx context.Context, identity string, payload any, cb lgsubmit.Callback) {
	signed, err := c.BuildAndSign(ctx, identity, payload)
	if err != nil {
		go cb(lgledger.Outcome{}, err)
		return
	}
	c.submitter.SubmitAsync(ctx, signed, cb)
}

// SignAndSubmitWithin signs payload as identity, submits it,
// and waits at most d for the outcome.
// See [*lgsubmit.Submitter.SubmitWithin] for the timeout semantics.
func (c *Client) SignAndSubmitWithin(
	ctx context.Context, identity string, payload any, d time.Duration,
) (lgledger.Outcome, error) {
	signed, err := c.BuildAndSign(ctx, identity, payload)
	if err != nil {
		return lgledger.Outcome{}, err
	}
	return c.submitter.SubmitWithin(ctx, signed, d)
}

// SignAndSubmitRequest signs a caller-built request document as identity
// and blocks until the outcome is known.
//
// The document must carry its own reqId and identifier;
// a missing protocol version defaults to the pool's.
func (c *Client) SignAndSubmitRequest(
	ctx context.Context, identity string, requestJSON []byte,
) (lgledger.Outcome, error) {
	req, err := lgrequest.Parse(requestJSON, c.builder.ProtocolVersion())
	if err != nil {
		return lgledger.Outcome{}, err
	}

	// Keep IDs built later for this identifier above the caller's.
	c.builder.Observe(req.Identifier, req.ReqID)

	signed, err := c.signer.Sign(ctx, req, identity)
	if err != nil {
		return lgledger.Outcome{Key: req.Key()}, fmt.Errorf("failed to sign request: %w", err)
	}
	return c.submitter.SubmitAndWait(ctx, signed)
}
