// Package lgjson contains a [lgcodec.Codec] that serializes to and deserializes from JSON.
//
// Signatures are base58 encoded and digests are lowercase hex.
// Replies are validated against a JSON schema before decoding,
// so that a misbehaving node produces a descriptive error
// instead of a partially populated reply.
package lgjson
