package lgjson_test

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"github.com/gordian-engine/gledger/lg/lgcodec/lgjson"
	"github.com/gordian-engine/gledger/lg/lgledger"
	"github.com/stretchr/testify/require"
)

func TestSignedRequest_RoundTrip(t *testing.T) {
	t.Parallel()

	in := lgledger.SignedRequest{
		Request: lgledger.Request{
			Identifier:      "V4SGRU86Z58d6TV7PBUe6f",
			ReqID:           math.MaxUint64 - 3,
			Operation:       json.RawMessage(`{"dest":"abc","type":"1"}`),
			ProtocolVersion: 2,
		},
		Signature: []byte{1, 2, 3, 4},
	}

	var c lgjson.Codec
	b, err := c.MarshalSignedRequest(in)
	require.NoError(t, err)

	out, err := c.UnmarshalSignedRequest(b)
	require.NoError(t, err)
	require.Equal(t, in, out)

	// Large request IDs survive without float rounding.
	require.True(t, bytes.Contains(b, []byte(`"reqId":18446744073709551612`)))
}

func TestUnmarshalSignedRequest_Invalid(t *testing.T) {
	t.Parallel()

	var c lgjson.Codec
	for name, in := range map[string]string{
		"not json":           `nope`,
		"missing identifier": `{"reqId":1,"operation":{},"signature":""}`,
		"array operation":    `{"identifier":"a","reqId":1,"operation":[1],"signature":""}`,
		"bad signature":      `{"identifier":"a","reqId":1,"operation":{},"signature":"0OIl"}`,
	} {
		_, err := c.UnmarshalSignedRequest([]byte(in))
		require.ErrorIsf(t, err, lgledger.ErrInvalidPayload, "case %q", name)
	}
}

func TestReply_RoundTrip(t *testing.T) {
	t.Parallel()

	in := lgledger.Reply{
		Op:         lgledger.ReplyOpReply,
		Identifier: "V4SGRU86Z58d6TV7PBUe6f",
		ReqID:      7,
		Digest:     bytes.Repeat([]byte{0xab}, 32),
		Result:     json.RawMessage(`{"seqNo":3}`),
		Signature:  []byte{9, 8, 7},
	}

	var c lgjson.Codec
	b, err := c.MarshalReply(in)
	require.NoError(t, err)

	out, err := c.UnmarshalReply(b)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestUnmarshalReply_Malformed(t *testing.T) {
	t.Parallel()

	digest := `"` + string(bytes.Repeat([]byte("ab"), 32)) + `"`

	var c lgjson.Codec
	for name, in := range map[string]string{
		"not json":        `{{`,
		"unknown op":      `{"op":"MAYBE","identifier":"a","reqId":1,"digest":` + digest + `}`,
		"missing digest":  `{"op":"REJECT","identifier":"a","reqId":1}`,
		"short digest":    `{"op":"REJECT","identifier":"a","reqId":1,"digest":"abcd"}`,
		"negative req id": `{"op":"REJECT","identifier":"a","reqId":-1,"digest":` + digest + `}`,
		"reply no result": `{"op":"REPLY","identifier":"a","reqId":1,"digest":` + digest + `}`,
		"scalar result":   `{"op":"REPLY","identifier":"a","reqId":1,"digest":` + digest + `,"result":5}`,
		"bad signature":   `{"op":"REJECT","identifier":"a","reqId":1,"digest":` + digest + `,"signature":"0OIl"}`,
	} {
		_, err := c.UnmarshalReply([]byte(in))
		require.ErrorIsf(t, err, lgledger.ErrMalformedReply, "case %q", name)
	}
}
