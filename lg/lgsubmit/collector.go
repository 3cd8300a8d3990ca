package lgsubmit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gordian-engine/gledger/gcrypto"
	"github.com/gordian-engine/gledger/lg/lgcodec"
	"github.com/gordian-engine/gledger/lg/lgledger"
	"github.com/gordian-engine/gledger/lg/lgpool"
	"github.com/gordian-engine/gledger/lg/lgreconcile"
)

// collector owns the state of one submission.
type collector struct {
	log   *slog.Logger
	pool  *lgpool.Pool
	codec lgcodec.Codec

	p *Pending

	req    []byte
	digest []byte

	eligible []int
}

type nodeResult struct {
	idx  int
	body []byte
	err  error
}

// Run broadcasts the request and collects replies until a terminal outcome.
// poolCtx is cancelled when the pool closes.
func (c *collector) Run(poolCtx context.Context) {
	ctx, cancel := context.WithDeadline(poolCtx, c.p.deadline)
	defer cancel()

	// Buffered so that round trips finishing after the outcome never block.
	results := make(chan nodeResult, len(c.eligible))
	for _, idx := range c.eligible {
		err := c.pool.Go(func(context.Context) {
			body, err := c.pool.RoundTrip(ctx, idx, c.req)
			results <- nodeResult{idx: idx, body: body, err: err}
		})
		if err != nil {
			results <- nodeResult{idx: idx, err: err}
		}
	}

	var (
		tally     = lgreconcile.NewTally(c.pool.Len())
		bodies    = make(map[int][]byte, len(c.eligible))
		responses = make([]lgledger.NodeResponse, 0, len(c.eligible))

		outstanding = len(c.eligible)
		answered    int
		timeouts    int

		// Set once no outstanding reply can complete a quorum.
		// The remaining replies are still collected before classifying,
		// so the status never depends on arrival order.
		impossible bool
	)

	outcome := func(status lgledger.Status, reason string) lgledger.Outcome {
		return lgledger.Outcome{
			Key:       c.p.key,
			Status:    status,
			Responses: responses,
			Votes:     tally.Largest(),
			Threshold: tally.Threshold(),
			Reason:    reason,
		}
	}

	expired := func() lgledger.Outcome {
		if poolCtx.Err() != nil {
			return outcome(lgledger.StatusAborted, "pool closed")
		}
		if impossible {
			// Nodes still silent at the reply timeout count as timed out.
			return c.undecidable(outcome, tally, answered, timeouts+outstanding)
		}
		return outcome(lgledger.StatusTimedOut, fmt.Sprintf(
			"no quorum before reply timeout (%d of %d agreeing)",
			tally.Largest(), tally.Threshold(),
		))
	}

	for outstanding > 0 {
		var r nodeResult
		select {
		case <-ctx.Done():
			c.finish(expired())
			return
		case r = <-results:
		}

		if r.err != nil && ctx.Err() != nil {
			// The round trip was cut short by the deadline or by close,
			// not by the node.
			c.finish(expired())
			return
		}

		outstanding--
		name := c.pool.Node(r.idx).Name

		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) {
				timeouts++
			}
			c.log.Debug("Node round trip failed", "node", name, "err", r.err)
			responses = append(responses, lgledger.NodeResponse{Node: name, Err: r.err})
			continue
		}

		// Malformed replies count as answers but never as votes.
		answered++
		reply, err := c.validate(r.idx, r.body)
		responses = append(responses, lgledger.NodeResponse{Node: name, Body: r.body, Err: err})
		if err != nil {
			c.log.Warn("Ignoring malformed reply", "node", name, "err", err)
		} else {
			bodies[r.idx] = r.body
			if _, err := tally.Add(reply); err != nil {
				// Validation already covered everything Add checks.
				panic(fmt.Errorf("BUG: validated reply rejected by tally: %w", err))
			}
			c.log.Debug("Received reply", "node", name, "op", reply.Op)
		}

		if impossible {
			continue
		}

		if d, ok := tally.Decision(); ok {
			o := outcome(d.Status, "")
			o.Agreed = &d.Agreed
			o.AgreedResult = bodies[d.Agreed.NodeIndex]
			o.Votes = d.Votes()
			o.Proof = c.proof(d)
			if d.Status != lgledger.StatusCommitted {
				o.Reason = fmt.Sprintf("ledger replied %s: %s", d.Agreed.Op, d.Agreed.Reason)
			}
			c.finish(o)
			return
		}

		if !tally.Possible(outstanding) {
			impossible = true
			if outstanding > 0 {
				c.log.Debug("Quorum no longer possible, collecting remaining replies", "outstanding", outstanding)
			}
		}
	}

	c.finish(c.undecidable(outcome, tally, answered, timeouts))
}

// undecidable classifies a submission that could not reach quorum,
// once every eligible node has answered or failed.
//
// If at least a quorum of nodes answered, the nodes were reachable
// and disagreed, or answered with malformed replies: the request is rejected.
// Otherwise the failed round trips made quorum impossible.
func (c *collector) undecidable(
	outcome func(lgledger.Status, string) lgledger.Outcome,
	tally *lgreconcile.Tally,
	answered, timeouts int,
) lgledger.Outcome {
	q := tally.Threshold()
	switch {
	case answered >= q:
		return outcome(lgledger.StatusRejected, fmt.Sprintf(
			"no agreement: %d of %d answering nodes sent valid replies in %d groups, largest %d of %d required",
			tally.Responded(), answered, tally.Groups(), tally.Largest(), q,
		))
	case timeouts > 0:
		return outcome(lgledger.StatusTimedOut, fmt.Sprintf(
			"only %d nodes answered and %d round trips timed out, %d answers required",
			answered, timeouts, q,
		))
	default:
		return outcome(lgledger.StatusNodesUnreachable, fmt.Sprintf(
			"only %d nodes answered, %d required", answered, q,
		))
	}
}

// validate decodes body and checks it belongs to this submission.
// Every returned error wraps [lgledger.ErrMalformedReply].
func (c *collector) validate(idx int, body []byte) (lgledger.Reply, error) {
	r, err := c.codec.UnmarshalReply(body)
	if err != nil {
		return lgledger.Reply{}, err
	}

	if !r.Op.Valid() {
		return lgledger.Reply{}, fmt.Errorf("%w: unknown op %q", lgledger.ErrMalformedReply, r.Op)
	}

	ep := c.pool.Node(idx)
	r.Node = ep.Name
	r.NodeIndex = idx

	if r.Identifier != c.p.key.Identifier || r.ReqID != c.p.key.ReqID {
		return lgledger.Reply{}, fmt.Errorf(
			"%w: reply is for %s/%d", lgledger.ErrMalformedReply, r.Identifier, r.ReqID,
		)
	}
	if !bytes.Equal(r.Digest, c.digest) {
		return lgledger.Reply{}, fmt.Errorf("%w: digest mismatch", lgledger.ErrMalformedReply)
	}

	sb, err := r.SignBytes()
	if err != nil {
		return lgledger.Reply{}, fmt.Errorf("%w: %v", lgledger.ErrMalformedReply, err)
	}

	if ep.PubKey != nil {
		if len(r.Signature) == 0 {
			return lgledger.Reply{}, fmt.Errorf("%w: missing node signature", lgledger.ErrMalformedReply)
		}
		if !ep.PubKey.Verify(sb, r.Signature) {
			return lgledger.Reply{}, fmt.Errorf("%w: invalid node signature", lgledger.ErrMalformedReply)
		}
	}

	return r, nil
}

// proof collects the agreeing nodes' signatures over the agreed reply.
func (c *collector) proof(d lgreconcile.Decision) *gcrypto.SignatureProof {
	sb, err := d.Agreed.SignBytes()
	if err != nil {
		panic(fmt.Errorf("BUG: agreed reply has no sign bytes: %w", err))
	}

	nodes := c.pool.Nodes()
	keys := make([]gcrypto.PubKey, len(nodes))
	for i, ep := range nodes {
		keys[i] = ep.PubKey
	}

	proof := gcrypto.NewSignatureProof(sb, keys)
	for _, r := range d.Replies {
		key := keys[r.NodeIndex]
		if key == nil || len(r.Signature) == 0 {
			continue
		}
		if err := proof.AddSignature(r.Signature, key); err != nil {
			c.log.Warn("Failed to add node signature to proof", "node", r.Node, "err", err)
		}
	}
	return proof
}

func (c *collector) finish(o lgledger.Outcome) {
	if !c.p.finish(o) {
		return
	}

	attrs := []any{
		"status", o.Status,
		"votes", o.Votes,
		"threshold", o.Threshold,
		"responses", len(o.Responses),
	}
	if o.Status == lgledger.StatusCommitted {
		c.log.Debug("Submission finished", attrs...)
	} else {
		c.log.Info("Submission finished", append(attrs, "reason", o.Reason)...)
	}
}
