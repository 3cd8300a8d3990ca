// Package glog contains helpers for structured logging with [log/slog].
package glog

import (
	"encoding/hex"
	"log/slog"
)

// Hex is a byte slice that logs as a lowercase hex string.
// The encoding is deferred until the log record is actually handled.
type Hex []byte

func (h Hex) LogValue() slog.Value {
	return slog.StringValue(hex.EncodeToString(h))
}

// ShortHex logs only the first eight bytes of a value as hex,
// which is usually enough to correlate digests across log lines.
type ShortHex []byte

func (h ShortHex) LogValue() slog.Value {
	if len(h) > 8 {
		return slog.StringValue(hex.EncodeToString(h[:8]))
	}
	return slog.StringValue(hex.EncodeToString(h))
}
