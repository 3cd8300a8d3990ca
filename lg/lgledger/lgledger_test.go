package lgledger_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/gordian-engine/gledger/lg/lgledger"
	"github.com/stretchr/testify/require"
)

func TestByzantineMajority(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		n, want int
	}{
		{n: 1, want: 1},
		{n: 3, want: 3},
		{n: 4, want: 3},
		{n: 5, want: 4},
		{n: 7, want: 5},
		{n: 10, want: 7},
	} {
		require.Equalf(t, tc.want, lgledger.ByzantineMajority(tc.n), "n=%d", tc.n)
	}
}

func TestRequest_SignBytes_Canonical(t *testing.T) {
	t.Parallel()

	r := lgledger.Request{
		Identifier:      "GJ1SzoWzavQYfNL9XkaJdr",
		ReqID:           1496822211362017764,
		Operation:       json.RawMessage(`{"type":"1", "dest":"VsKV7grR1BUE29mG2Fm2kX"}`),
		ProtocolVersion: 2,
	}

	sb, err := r.SignBytes()
	require.NoError(t, err)
	require.Equal(
		t,
		`{"identifier":"GJ1SzoWzavQYfNL9XkaJdr","operation":{"dest":"VsKV7grR1BUE29mG2Fm2kX","type":"1"},"protocolVersion":2,"reqId":1496822211362017764}`,
		string(sb),
	)
}

func TestRequest_SignBytes_EmptyOperation(t *testing.T) {
	t.Parallel()

	_, err := lgledger.Request{Identifier: "x", ReqID: 1}.SignBytes()
	require.ErrorIs(t, err, lgledger.ErrInvalidPayload)
}

func TestSignedRequest_Digest(t *testing.T) {
	t.Parallel()

	sr := lgledger.SignedRequest{
		Request: lgledger.Request{
			Identifier:      "did",
			ReqID:           1,
			Operation:       json.RawMessage(`{"type":"105"}`),
			ProtocolVersion: 2,
		},
		Signature: []byte("sig-a"),
	}

	d1, err := sr.Digest()
	require.NoError(t, err)
	require.Len(t, d1, 32)

	other := sr.Clone()
	other.Signature = []byte("sig-b")
	d2, err := other.Digest()
	require.NoError(t, err)
	require.NotEqual(t, d1, d2, "digest must cover the signature")
}

func TestReply_SignBytes_IgnoresNodeIdentity(t *testing.T) {
	t.Parallel()

	a := lgledger.Reply{
		Node:       "Node1",
		NodeIndex:  0,
		Op:         lgledger.ReplyOpReply,
		Identifier: "did",
		ReqID:      42,
		Digest:     []byte{1, 2, 3},
		Result:     json.RawMessage(`{"result":"ok","req_id":42}`),
	}
	b := a.Clone()
	b.Node = "Node2"
	b.NodeIndex = 1

	sa, err := a.SignBytes()
	require.NoError(t, err)
	sb, err := b.SignBytes()
	require.NoError(t, err)
	require.Equal(t, sa, sb)

	b.Result = json.RawMessage(`{"result":"stale"}`)
	sb, err = b.SignBytes()
	require.NoError(t, err)
	require.NotEqual(t, sa, sb)
}

func TestOutcome_Err(t *testing.T) {
	t.Parallel()

	require.NoError(t, lgledger.Outcome{Status: lgledger.StatusCommitted}.Err())

	for status, sentinel := range map[lgledger.Status]error{
		lgledger.StatusRejected:         lgledger.ErrRejected,
		lgledger.StatusTimedOut:         lgledger.ErrTimedOut,
		lgledger.StatusNodesUnreachable: lgledger.ErrNodesUnreachable,
		lgledger.StatusAborted:          lgledger.ErrAborted,
	} {
		err := lgledger.Outcome{Status: status, Reason: "because"}.Err()
		require.ErrorIs(t, err, sentinel)
		require.Contains(t, err.Error(), "because")

		var subErr *lgledger.SubmissionError
		require.True(t, errors.As(err, &subErr))
		require.Equal(t, status, subErr.Outcome.Status)
	}
}
