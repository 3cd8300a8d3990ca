package gtest

import (
	"testing"
	"time"
)

// ScaleMs returns a duration of ms milliseconds.
// The wait helpers use it so that slow CI machines can be accommodated in one place.
func ScaleMs(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// ReceiveSoon returns the value received on ch,
// failing the test if nothing arrives within a short, reasonable time.
func ReceiveSoon[T any](t testing.TB, ch <-chan T) T {
	t.Helper()

	timer := time.NewTimer(ScaleMs(500))
	defer timer.Stop()

	select {
	case v := <-ch:
		return v
	case <-timer.C:
		t.Fatalf("no value received within %s", ScaleMs(500))
	}

	panic("unreachable")
}

// SendSoon sends v on ch,
// failing the test if the send does not complete promptly.
func SendSoon[T any](t testing.TB, ch chan<- T, v T) {
	t.Helper()

	timer := time.NewTimer(ScaleMs(500))
	defer timer.Stop()

	select {
	case ch <- v:
	case <-timer.C:
		t.Fatalf("value not sent within %s", ScaleMs(500))
	}
}

// NotSending fails the test if a value is ready on ch
// or arrives within a short window.
func NotSending[T any](t testing.TB, ch <-chan T) {
	t.Helper()

	timer := time.NewTimer(ScaleMs(10))
	defer timer.Stop()

	select {
	case v := <-ch:
		t.Fatalf("expected no value, received %v", v)
	case <-timer.C:
	}
}
