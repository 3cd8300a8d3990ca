package lgrequest_test

import (
	"encoding/json"
	"math"
	"sync"
	"testing"

	"github.com/gordian-engine/gledger/lg/lgledger"
	"github.com/gordian-engine/gledger/lg/lgrequest"
	"github.com/stretchr/testify/require"
)

func TestBuilder_Build(t *testing.T) {
	t.Parallel()

	b := lgrequest.NewBuilder(2)

	req, err := b.Build("VsKV7grR1BUE29mG2Fm2kX", map[string]any{
		"type": "1",
		"dest": "VsKV7grR1BUE29mG2Fm2kX",
	})
	require.NoError(t, err)

	require.Equal(t, "VsKV7grR1BUE29mG2Fm2kX", req.Identifier)
	require.Equal(t, uint32(2), req.ProtocolVersion)
	require.NotZero(t, req.ReqID)
	require.JSONEq(t, `{"dest":"VsKV7grR1BUE29mG2Fm2kX","type":"1"}`, string(req.Operation))
	require.Equal(t, `{"dest":"VsKV7grR1BUE29mG2Fm2kX","type":"1"}`, string(req.Operation))
}

func TestBuilder_Build_IDsStrictlyIncrease(t *testing.T) {
	t.Parallel()

	b := lgrequest.NewBuilder(2)

	const n = 200
	ids := make(chan uint64, 2*n)

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range n {
				req, err := b.Build("did", json.RawMessage(`{"type":"105"}`))
				if err != nil {
					panic(err)
				}
				ids <- req.ReqID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]struct{}, 2*n)
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate request ID %d", id)
		seen[id] = struct{}{}
	}

	// Sequential calls observe increasing IDs.
	prev, err := b.Build("did", `{"type":"105"}`)
	require.NoError(t, err)
	for range 10 {
		next, err := b.Build("did", `{"type":"105"}`)
		require.NoError(t, err)
		require.Greater(t, next.ReqID, prev.ReqID)
		prev = next
	}
}

func TestBuilder_Observe(t *testing.T) {
	t.Parallel()

	b := lgrequest.NewBuilder(2)
	b.Observe("did", math.MaxUint64-10)

	req, err := b.Build("did", `{"type":"105"}`)
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64-9), req.ReqID)

	// Other identifiers are unaffected.
	other, err := b.Build("other", `{"type":"105"}`)
	require.NoError(t, err)
	require.Less(t, other.ReqID, req.ReqID)
}

func TestBuilder_Build_InvalidPayload(t *testing.T) {
	t.Parallel()

	b := lgrequest.NewBuilder(2)

	for name, payload := range map[string]any{
		"nil":           nil,
		"NaN":           map[string]any{"x": math.NaN()},
		"channel":       map[string]any{"x": make(chan int)},
		"array":         []int{1, 2},
		"scalar string": `"hello"`,
		"bad json":      json.RawMessage(`{"type":`),
	} {
		_, err := b.Build("did", payload)
		require.ErrorIsf(t, err, lgledger.ErrInvalidPayload, "payload %s", name)
	}

	_, err := b.Build("", `{"type":"1"}`)
	require.ErrorIs(t, err, lgledger.ErrInvalidPayload)
}

func TestParse(t *testing.T) {
	t.Parallel()

	const requestJSON = `{
		"reqId":1496822211362017764,
		"identifier":"GJ1SzoWzavQYfNL9XkaJdrQejfztN4XqdsiV4ct3LXKL",
		"operation":{
			"type":"1",
			"dest":"VsKV7grR1BUE29mG2Fm2kX",
			"verkey":"GjZWsBLgZCR18aL468JAT7w9CZRiBnpxUPPgyQxh4voa"
		}
	}`

	req, err := lgrequest.Parse([]byte(requestJSON), 2)
	require.NoError(t, err)

	require.Equal(t, uint64(1496822211362017764), req.ReqID)
	require.Equal(t, "GJ1SzoWzavQYfNL9XkaJdrQejfztN4XqdsiV4ct3LXKL", req.Identifier)
	require.Equal(t, uint32(2), req.ProtocolVersion)
	require.Equal(
		t,
		`{"dest":"VsKV7grR1BUE29mG2Fm2kX","type":"1","verkey":"GjZWsBLgZCR18aL468JAT7w9CZRiBnpxUPPgyQxh4voa"}`,
		string(req.Operation),
	)

	_, err = lgrequest.Parse([]byte(`{"identifier":"x","operation":{}}`), 2)
	require.ErrorIs(t, err, lgledger.ErrInvalidPayload)

	_, err = lgrequest.Parse([]byte(`not json`), 2)
	require.ErrorIs(t, err, lgledger.ErrInvalidPayload)
}
