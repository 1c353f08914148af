package peer

import (
	"encoding/json"
	"testing"

	"github.com/rfratto/chordkit/ring"
	"github.com/stretchr/testify/require"
)

func TestJSONRepresentation(t *testing.T) {
	p := Info{ID: 12, Addr: "127.0.0.1:50001"}

	b, err := json.Marshal(p)
	require.NoError(t, err)
	require.JSONEq(t, `{"id": 12, "addr": "127.0.0.1:50001"}`, string(b))

	var q Info
	require.NoError(t, json.Unmarshal(b, &q))
	require.Equal(t, p, q)
}

func TestNewEntry(t *testing.T) {
	e := NewEntry("  cat ", "\tfeline\n")
	require.Equal(t, Entry{Key: "cat", Value: "feline"}, e)
	require.Equal(t, "[cat] : [feline]", e.String())
}

func TestFingerTable_ClosestPreceding(t *testing.T) {
	// Peer 5 on a ring of {5, 10, 20} with M = 5.
	ft := FingerTable{Fingers: []Info{
		{ID: 10}, {ID: 10}, {ID: 10}, {ID: 20}, {ID: 5},
	}}

	tt := []struct {
		key    ring.ID
		expect ring.ID
		ok     bool
	}{
		{key: 7, ok: false},              // nothing precedes 7
		{key: 10, ok: false},             // 10 itself is not strictly between
		{key: 15, expect: 10, ok: true},  // 10 precedes 15
		{key: 25, expect: 20, ok: true},  // highest preceding finger wins
		{key: 3, expect: 20, ok: true},   // wraps past zero
	}

	for _, tc := range tt {
		p, ok := ft.ClosestPreceding(5, tc.key)
		require.Equal(t, tc.ok, ok, "key %d", tc.key)
		if tc.ok {
			require.Equal(t, tc.expect, p.ID, "key %d", tc.key)
		}
	}

	succ, ok := ft.Successor()
	require.True(t, ok)
	require.Equal(t, ring.ID(10), succ.ID)

	_, ok = FingerTable{}.Successor()
	require.False(t, ok)
}

func TestState(t *testing.T) {
	require.True(t, ValidTransition(StateUnjoined, StateJoining))
	require.True(t, ValidTransition(StateJoining, StateActive))
	require.False(t, ValidTransition(StateActive, StateJoining))
	require.False(t, ValidTransition(StateUnjoined, StateActive))

	err := ErrStateTransition{From: StateActive, To: StateJoining}
	require.EqualError(t, err, "invalid transition from active to joining")
}
