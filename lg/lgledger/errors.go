package lgledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPayload indicates the operation payload
	// could not be canonically serialized.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrSigningUnavailable indicates the signer capability could not be reached,
	// for instance because the wallet is locked.
	ErrSigningUnavailable = errors.New("signing unavailable")

	// ErrUnknownIdentity indicates the signer has no key material for an identity.
	ErrUnknownIdentity = errors.New("unknown identity")

	// ErrHandleClosed is returned for any use of a pool after it was closed.
	ErrHandleClosed = errors.New("pool handle closed")

	// ErrDuplicateRequest is returned when an (identifier, reqId) pair
	// is submitted again to the same pool.
	// Resubmission requires a new request ID.
	ErrDuplicateRequest = errors.New("duplicate request")

	ErrNodesUnreachable = errors.New("too few nodes reachable for quorum")
	ErrTimedOut         = errors.New("submission timed out")
	ErrRejected         = errors.New("submission rejected")
	ErrAborted          = errors.New("submission aborted")

	// ErrMalformedReply is attached to individual node replies that failed validation.
	// It is never the terminal error of a submission.
	ErrMalformedReply = errors.New("malformed reply")
)

// SubmissionError is returned from the completion adapters
// when a submission reaches a terminal status other than [StatusCommitted].
//
// It unwraps to the sentinel error for the status,
// so callers may use errors.Is(err, ErrRejected) and so on.
type SubmissionError struct {
	Outcome Outcome
}

func (e *SubmissionError) Error() string {
	msg := fmt.Sprintf("submission %s", e.Outcome.Status)
	if err := e.Outcome.Status.Err(); err != nil {
		msg = err.Error()
	}
	if e.Outcome.Reason != "" {
		return msg + ": " + e.Outcome.Reason
	}
	return msg
}

func (e *SubmissionError) Unwrap() error {
	return e.Outcome.Status.Err()
}
