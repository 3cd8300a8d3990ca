// Package gchan contains small helpers for context-aware channel operations.
//
// Every helper logs at debug level when the context is canceled
// before the operation completes, so that a stuck shutdown
// can be traced back to the blocked operation by its description.
package gchan

import (
	"context"
	"log/slog"
)

// SendC sends val on ch, unless ctx is canceled first.
// It reports whether the value was sent.
func SendC[T any](
	ctx context.Context, log *slog.Logger,
	ch chan<- T, val T,
	sendDesc string,
) bool {
	select {
	case <-ctx.Done():
		log.Debug(
			"Context canceled while "+sendDesc,
			"cause", context.Cause(ctx),
		)
		return false
	case ch <- val:
		return true
	}
}

// RecvC receives a value from ch, unless ctx is canceled first.
// The second result is false if the context was canceled.
//
// A closed channel is reported as a successful receive of the zero value;
// callers that close their channels must check for that themselves.
func RecvC[T any](
	ctx context.Context, log *slog.Logger,
	ch <-chan T,
	recvDesc string,
) (T, bool) {
	select {
	case <-ctx.Done():
		log.Debug(
			"Context canceled while "+recvDesc,
			"cause", context.Cause(ctx),
		)
		var zero T
		return zero, false
	case val := <-ch:
		return val, true
	}
}

// ReqResp sends req on reqCh and then waits for a value on respCh.
// The response channel should be 1-buffered, so that the responder
// never blocks if the requester gives up.
func ReqResp[T, U any](
	ctx context.Context, log *slog.Logger,
	reqCh chan<- T, req T,
	respCh <-chan U,
	desc string,
) (U, bool) {
	if !SendC(ctx, log, reqCh, req, "making request ("+desc+")") {
		var zero U
		return zero, false
	}

	return RecvC(ctx, log, respCh, "receiving response ("+desc+")")
}

// WaitClosed blocks until ch is closed or ctx is canceled,
// reporting whether ch was closed.
func WaitClosed(ctx context.Context, ch <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case <-ch:
		return true
	}
}
