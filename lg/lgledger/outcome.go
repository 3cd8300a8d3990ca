package lgledger

import (
	"fmt"

	"github.com/gordian-engine/gledger/gcrypto"
)

// Status is the state of a submission.
// Every status other than StatusPending is terminal.
type Status uint8

const (
	StatusPending Status = iota
	StatusCommitted
	StatusRejected
	StatusTimedOut
	StatusNodesUnreachable
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusCommitted:
		return "Committed"
	case StatusRejected:
		return "Rejected"
	case StatusTimedOut:
		return "TimedOut"
	case StatusNodesUnreachable:
		return "NodesUnreachable"
	case StatusAborted:
		return "Aborted"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Err returns the sentinel error corresponding to s,
// or nil for StatusCommitted and StatusPending.
func (s Status) Err() error {
	switch s {
	case StatusCommitted, StatusPending:
		return nil
	case StatusRejected:
		return ErrRejected
	case StatusTimedOut:
		return ErrTimedOut
	case StatusNodesUnreachable:
		return ErrNodesUnreachable
	case StatusAborted:
		return ErrAborted
	default:
		panic(fmt.Errorf("BUG: no error for status %d", uint8(s)))
	}
}

// NodeResponse is the raw reply from one node, in arrival order.
type NodeResponse struct {
	Node string

	// Body is the undecoded reply, nil when the round trip failed.
	Body []byte

	// Err is nil for valid replies.
	// Malformed replies carry an error wrapping [ErrMalformedReply];
	// failed round trips carry the transport error.
	Err error
}

// Outcome is the final result of a submission.
// Once a submission is finalized, its Outcome never changes.
type Outcome struct {
	Key RequestKey

	Status Status

	// Responses holds every node response received before finalization,
	// in arrival order.
	Responses []NodeResponse

	// Agreed is the reply shared by the winning quorum group,
	// and AgreedResult the undecoded reply of the first node in that group.
	// Both are unset when no group reached quorum.
	Agreed       *Reply
	AgreedResult []byte

	// Votes is the size of the largest agreeing group.
	Votes int

	// Threshold is the number of matching replies that were required.
	Threshold int

	// Proof holds the node signatures over the agreed reply,
	// for nodes configured with a verification key.
	Proof *gcrypto.SignatureProof

	// Reason is a human readable explanation for non-committed statuses.
	Reason string
}

// Err returns nil for a committed outcome,
// and a *SubmissionError otherwise.
func (o Outcome) Err() error {
	if o.Status == StatusCommitted {
		return nil
	}
	return &SubmissionError{Outcome: o}
}
