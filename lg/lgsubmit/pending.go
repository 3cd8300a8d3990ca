package lgsubmit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gordian-engine/gledger/lg/lgledger"
)

// Pending is a submission that may not have finished yet.
//
// Exactly one terminal outcome is produced per Pending.
// All of its methods are safe for concurrent use,
// and the outcome can be retrieved any number of times.
type Pending struct {
	key       lgledger.RequestKey
	threshold int
	deadline  time.Time

	once    sync.Once
	done    chan struct{}
	outcome lgledger.Outcome
}

func newPending(key lgledger.RequestKey, threshold int, deadline time.Time) *Pending {
	return &Pending{
		key:       key,
		threshold: threshold,
		deadline:  deadline,
		done:      make(chan struct{}),
	}
}

func (p *Pending) Key() lgledger.RequestKey { return p.key }

// Deadline is the time after which the submission resolves as timed out.
func (p *Pending) Deadline() time.Time { return p.deadline }

// Done is closed once the outcome is available.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Outcome returns the outcome without blocking.
// The boolean is false while the submission is still in progress.
func (p *Pending) Outcome() (lgledger.Outcome, bool) {
	select {
	case <-p.done:
		return p.outcome, true
	default:
		return lgledger.Outcome{}, false
	}
}

// Wait blocks until the submission finishes or ctx is cancelled.
// The returned error is nil only for a committed outcome.
//
// Cancelling ctx stops the wait, not the submission.
func (p *Pending) Wait(ctx context.Context) (lgledger.Outcome, error) {
	select {
	case <-p.done:
		return p.outcome, p.outcome.Err()
	case <-ctx.Done():
		return p.inProgress(), context.Cause(ctx)
	}
}

// WaitTimeout waits at most d for the outcome.
//
// On expiry it returns a timed out outcome and an error wrapping
// [lgledger.ErrTimedOut], while the submission itself continues.
// The eventual outcome remains available through Wait, Done and Outcome.
func (p *Pending) WaitTimeout(d time.Duration) (lgledger.Outcome, error) {
	return p.waitTimeout(context.Background(), d)
}

func (p *Pending) waitTimeout(ctx context.Context, d time.Duration) (lgledger.Outcome, error) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-p.done:
		return p.outcome, p.outcome.Err()
	case <-ctx.Done():
		return p.inProgress(), context.Cause(ctx)
	case <-t.C:
	}

	// Prefer an outcome that arrived at the same moment as the timer.
	if o, ok := p.Outcome(); ok {
		return o, o.Err()
	}

	o := lgledger.Outcome{
		Key:       p.key,
		Status:    lgledger.StatusTimedOut,
		Threshold: p.threshold,
		Reason:    fmt.Sprintf("no outcome within %s; submission continues", d),
	}
	return o, o.Err()
}

func (p *Pending) inProgress() lgledger.Outcome {
	return lgledger.Outcome{
		Key:       p.key,
		Status:    lgledger.StatusPending,
		Threshold: p.threshold,
	}
}

// finish sets the outcome and reports whether this call was the one to set it.
func (p *Pending) finish(o lgledger.Outcome) bool {
	first := false
	p.once.Do(func() {
		first = true
		p.outcome = o
		close(p.done)
	})
	return first
}
