// Package lgcodec defines the wire encoding of signed requests and node replies.
//
// Transports move opaque bytes; a Codec is what turns those bytes
// into the types in [lgledger].
package lgcodec

import "github.com/gordian-engine/gledger/lg/lgledger"

// Codec encodes requests for nodes and decodes their replies.
// It is also used on the node side in the opposite direction.
type Codec interface {
	MarshalSignedRequest(lgledger.SignedRequest) ([]byte, error)
	UnmarshalSignedRequest([]byte) (lgledger.SignedRequest, error)

	MarshalReply(lgledger.Reply) ([]byte, error)

	// UnmarshalReply decodes a node reply.
	// The returned error wraps [lgledger.ErrMalformedReply]
	// for any structural problem with the reply.
	// Node and NodeIndex are left unset.
	UnmarshalReply([]byte) (lgledger.Reply, error)
}
