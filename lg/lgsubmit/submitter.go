// Package lgsubmit broadcasts signed requests to a ledger pool
// and reconciles the replies into a single outcome.
//
// [*Submitter.Submit] starts a submission and returns a [*Pending].
// The three completion disciplines are built on it:
// blocking ([*Submitter.SubmitAndWait]),
// callback ([*Submitter.SubmitAsync]),
// and bounded wait ([*Submitter.SubmitWithin]).
//
// Each submission is owned by a single collector goroutine,
// which receives every node reply over a channel
// and is the only writer of the submission's state.
package lgsubmit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/gordian-engine/gledger/internal/glog"
	"github.com/gordian-engine/gledger/lg/lgcodec"
	"github.com/gordian-engine/gledger/lg/lgcodec/lgjson"
	"github.com/gordian-engine/gledger/lg/lgledger"
	"github.com/gordian-engine/gledger/lg/lgpool"
)

type Config struct {
	// Codec encodes requests and decodes replies.
	Codec lgcodec.Codec

	// RememberedRequests is how many accepted request keys are kept
	// to refuse resubmission of the same (identifier, reqId).
	RememberedRequests int
}

func DefaultConfig() Config {
	return Config{
		Codec:              lgjson.Codec{},
		RememberedRequests: 4096,
	}
}

// Submitter sends signed requests through a pool.
// It is safe for concurrent use.
type Submitter struct {
	log  *slog.Logger
	pool *lgpool.Pool

	codec lgcodec.Codec

	submitted *lru.Cache[lgledger.RequestKey, struct{}]
}

func New(log *slog.Logger, pool *lgpool.Pool, cfg Config) (*Submitter, error) {
	if cfg.Codec == nil {
		return nil, errors.New("submitter config must set Codec")
	}
	if cfg.RememberedRequests <= 0 {
		return nil, fmt.Errorf(
			"RememberedRequests must be positive (got %d)", cfg.RememberedRequests,
		)
	}

	submitted, err := lru.New[lgledger.RequestKey, struct{}](cfg.RememberedRequests)
	if err != nil {
		return nil, fmt.Errorf("failed to create request cache: %w", err)
	}

	return &Submitter{
		log:       log,
		pool:      pool,
		codec:     cfg.Codec,
		submitted: submitted,
	}, nil
}

// Submit starts a submission of signed and returns immediately.
//
// Submit fails with [lgledger.ErrHandleClosed] if the pool is closed,
// [lgledger.ErrDuplicateRequest] if the same (identifier, reqId)
// was already submitted,
// and [lgledger.ErrInvalidPayload] if the request is unsigned,
// carries a protocol version other than the pool's, or cannot be encoded.
//
// If too few nodes are eligible to ever reach quorum,
// the returned Pending is already finished with StatusNodesUnreachable.
//
// ctx applies to starting the submission only.
// Once started, a submission ends at a quorum decision,
// at the pool's reply timeout, or when the pool closes.
func (s *Submitter) Submit(ctx context.Context, signed lgledger.SignedRequest) (*Pending, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case <-s.pool.Done():
		return nil, lgledger.ErrHandleClosed
	default:
	}

	signed = signed.Clone()
	key := signed.Key()

	if len(signed.Signature) == 0 {
		return nil, fmt.Errorf("%w: request %s is not signed", lgledger.ErrInvalidPayload, key)
	}
	if v, pv := signed.ProtocolVersion, s.pool.ProtocolVersion(); v != pv {
		return nil, fmt.Errorf(
			"%w: request %s has protocol version %d, pool uses %d",
			lgledger.ErrInvalidPayload, key, v, pv,
		)
	}

	reqBytes, err := s.codec.MarshalSignedRequest(signed)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request %s: %w", key, err)
	}
	digest, err := signed.Digest()
	if err != nil {
		return nil, fmt.Errorf("failed to compute digest for request %s: %w", key, err)
	}

	if seen, _ := s.submitted.ContainsOrAdd(key, struct{}{}); seen {
		return nil, fmt.Errorf("%w: %s", lgledger.ErrDuplicateRequest, key)
	}

	n := s.pool.Len()
	q := s.pool.Threshold()
	p := newPending(key, q, time.Now().Add(s.pool.ReplyTimeout()))

	log := s.log.With("req", key.String(), "digest", glog.ShortHex(digest))

	eligible := s.pool.Eligible()
	if len(eligible) < q {
		reason := fmt.Sprintf(
			"only %d of %d nodes eligible, %d required", len(eligible), n, q,
		)
		log.Info("Failing submission early", "reason", reason)
		p.finish(lgledger.Outcome{
			Key:       key,
			Status:    lgledger.StatusNodesUnreachable,
			Threshold: q,
			Reason:    reason,
		})
		return p, nil
	}

	c := &collector{
		log:      log,
		pool:     s.pool,
		codec:    s.codec,
		p:        p,
		req:      reqBytes,
		digest:   digest,
		eligible: eligible,
	}
	if err := s.pool.Go(c.Run); err != nil {
		s.submitted.Remove(key)
		return nil, err
	}

	log.Debug("Started submission", "eligible", len(eligible), "threshold", q)
	return p, nil
}

// SubmitAndWait submits signed and blocks until the outcome is known.
// The error is nil only when the request was committed;
// terminal failures are *[lgledger.SubmissionError].
func (s *Submitter) SubmitAndWait(ctx context.Context, signed lgledger.SignedRequest) (lgledger.Outcome, error) {
	p, err := s.Submit(ctx, signed)
	if err != nil {
		return lgledger.Outcome{Key: signed.Key()}, err
	}
	return p.Wait(ctx)
}

// Callback receives the outcome of an asynchronous submission.
// err is nil only when the request was committed.
type Callback func(o lgledger.Outcome, err error)

// SubmitAsync submits signed and returns immediately.
// cb is called exactly once, on its own goroutine,
// including when the submission could not be started.
func (s *Submitter) SubmitAsync(ctx context.Context, signed lgledger.SignedRequest, cb Callback) {
	p, err := s.Submit(ctx, signed)
	if err != nil {
		key := signed.Key()
		go cb(lgledger.Outcome{Key: key}, err)
		return
	}

	go func() {
		<-p.Done()
		o := p.outcome
		cb(o, o.Err())
	}()
}

// SubmitWithin submits signed and waits at most d for the outcome.
//
// On expiry it returns a StatusTimedOut outcome and an error wrapping
// [lgledger.ErrTimedOut]; the submission keeps running in the background
// and its eventual outcome is only logged.
// Use Submit and [*Pending.WaitTimeout] to retrieve a late outcome.
func (s *Submitter) SubmitWithin(
	ctx context.Context, signed lgledger.SignedRequest, d time.Duration,
) (lgledger.Outcome, error) {
	p, err := s.Submit(ctx, signed)
	if err != nil {
		return lgledger.Outcome{Key: signed.Key()}, err
	}

	o, err := p.waitTimeout(ctx, d)
	if _, done := p.Outcome(); !done {
		// Run under the pool so that Close waits for the late log line.
		_ = s.pool.Go(func(poolCtx context.Context) {
			s.logLate(poolCtx, p)
		})
	}
	return o, err
}

func (s *Submitter) logLate(poolCtx context.Context, p *Pending) {
	select {
	case <-p.Done():
	case <-poolCtx.Done():
		// The collector finishes with an aborted outcome as the pool closes.
		<-p.Done()
	}
	o := p.outcome
	s.log.Debug(
		"Discarding late outcome",
		"req", o.Key.String(),
		"status", o.Status,
		"votes", o.Votes,
	)
}
