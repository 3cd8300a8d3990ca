// Package lgreconcile groups node replies by agreement
// and decides when a quorum of nodes agree.
package lgreconcile

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/gledger/lg/lgledger"
)

// Decision is the result of a tally that reached quorum.
type Decision struct {
	// Status is StatusCommitted for an agreed REPLY,
	// and StatusRejected for an agreed REJECT or REQNACK.
	Status lgledger.Status

	// Agreed is the first reply received in the winning group.
	Agreed lgledger.Reply

	// Replies are all replies in the winning group, in arrival order.
	Replies []lgledger.Reply

	// Voters has a bit set for each node index in the winning group.
	Voters *bitset.BitSet
}

// Votes returns the size of the winning group.
func (d Decision) Votes() int {
	return len(d.Replies)
}

type group struct {
	replies []lgledger.Reply
	voters  *bitset.BitSet
}

// Tally accumulates replies for one request.
//
// Replies agree when their sign bytes are identical:
// same op, request, digest, reason and canonical result.
// Each node index counts at most once.
// A Tally is not safe for concurrent use;
// it is owned by the submission collecting replies.
type Tally struct {
	n, q int

	voted *bitset.BitSet

	groups  map[string]*group
	largest int

	decided  bool
	decision Decision
}

// NewTally returns a tally for a pool of n nodes.
func NewTally(n int) *Tally {
	return &Tally{
		n:      n,
		q:      lgledger.ByzantineMajority(n),
		voted:  bitset.New(uint(n)),
		groups: make(map[string]*group),
	}
}

// Add records r, keyed by r.NodeIndex.
// It reports whether r was counted:
// replies from a node that already voted, or after a decision, are ignored.
func (t *Tally) Add(r lgledger.Reply) (bool, error) {
	if t.decided {
		return false, nil
	}
	if r.NodeIndex < 0 || r.NodeIndex >= t.n {
		return false, fmt.Errorf("node index %d out of range [0, %d)", r.NodeIndex, t.n)
	}
	if !r.Op.Valid() {
		return false, fmt.Errorf("invalid reply op %q", r.Op)
	}

	idx := uint(r.NodeIndex)
	if t.voted.Test(idx) {
		return false, nil
	}

	key, err := r.SignBytes()
	if err != nil {
		return false, err
	}

	t.voted.Set(idx)

	g, ok := t.groups[string(key)]
	if !ok {
		g = &group{voters: bitset.New(uint(t.n))}
		t.groups[string(key)] = g
	}
	g.replies = append(g.replies, r)
	g.voters.Set(idx)

	if len(g.replies) > t.largest {
		t.largest = len(g.replies)
	}

	if len(g.replies) >= t.q {
		t.decided = true
		status := lgledger.StatusCommitted
		if r.Op != lgledger.ReplyOpReply {
			status = lgledger.StatusRejected
		}
		t.decision = Decision{
			Status:  status,
			Agreed:  g.replies[0],
			Replies: g.replies,
			Voters:  g.voters,
		}
	}

	return true, nil
}

// Decision returns the decision, if the tally reached quorum.
func (t *Tally) Decision() (Decision, bool) {
	return t.decision, t.decided
}

// Threshold is the number of agreeing replies needed for a decision.
func (t *Tally) Threshold() int { return t.q }

// Largest is the size of the largest agreeing group so far.
func (t *Tally) Largest() int { return t.largest }

// Groups is the number of distinct replies seen.
func (t *Tally) Groups() int { return len(t.groups) }

// Responded is the number of nodes whose reply was counted.
func (t *Tally) Responded() int { return int(t.voted.Count()) }

// Possible reports whether a decision can still be reached
// if outstanding more nodes reply.
func (t *Tally) Possible(outstanding int) bool {
	return t.decided || t.largest+outstanding >= t.q
}

// Reconcile tallies replies from a pool of n nodes in order.
// It returns false if no group reached quorum.
func Reconcile(n int, replies []lgledger.Reply) (Decision, bool, error) {
	t := NewTally(n)
	for _, r := range replies {
		if _, err := t.Add(r); err != nil {
			return Decision{}, false, err
		}
	}
	d, ok := t.Decision()
	return d, ok, nil
}
