package ring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSpace(t *testing.T) {
	_, err := NewSpace(0)
	require.Error(t, err)

	_, err = NewSpace(MaxBits + 1)
	require.Error(t, err)

	s, err := NewSpace(5)
	require.NoError(t, err)
	require.Equal(t, uint(5), s.Bits())
	require.Equal(t, uint64(32), s.Size())
	require.True(t, s.Contains(31))
	require.False(t, s.Contains(32))
}

func TestSpace_Wrap(t *testing.T) {
	s := MustSpace(5)

	require.Equal(t, ID(0), s.Wrap(32))
	require.Equal(t, ID(3), s.Add(30, 5))
	require.Equal(t, uint64(7), s.Distance(28, 3))
	require.Equal(t, uint64(0), s.Distance(9, 9))
}

func TestSpace_FingerStart(t *testing.T) {
	s := MustSpace(5)

	tt := []struct {
		id     ID
		finger int
		expect ID
	}{
		{id: 20, finger: 1, expect: 21},
		{id: 20, finger: 2, expect: 22},
		{id: 20, finger: 3, expect: 24},
		{id: 20, finger: 4, expect: 28},
		{id: 20, finger: 5, expect: 4},
		{id: 20, finger: 6, expect: 20}, // past M wraps onto self
		{id: 31, finger: 1, expect: 0},
	}

	for _, tc := range tt {
		t.Run(fmt.Sprintf("%d_%d", tc.id, tc.finger), func(t *testing.T) {
			require.Equal(t, tc.expect, s.FingerStart(tc.id, tc.finger))
		})
	}
}

func TestSpace_Hash(t *testing.T) {
	for _, bits := range []uint{1, 5, 16, 32, MaxBits} {
		s := MustSpace(bits)
		for i := 0; i < 1000; i++ {
			word := fmt.Sprintf("word-%d", i)
			id := s.Hash(word)
			require.True(t, s.Contains(id), "hash of %q escaped the ring", word)
			require.Equal(t, id, s.Hash(word), "hash must be deterministic")
		}
	}
}

func TestInRange(t *testing.T) {
	s := MustSpace(5)

	t.Run("ordinary interval", func(t *testing.T) {
		for k := ID(0); k < ID(s.Size()); k++ {
			require.Equal(t, k > 10 && k <= 20, InRange(k, 10, 20), "key %d", k)
		}
	})

	t.Run("interval crossing zero", func(t *testing.T) {
		for k := ID(0); k < ID(s.Size()); k++ {
			require.Equal(t, k > 20 || k <= 10, InRange(k, 20, 10), "key %d", k)
		}
	})

	t.Run("single member owns everything", func(t *testing.T) {
		for k := ID(0); k < ID(s.Size()); k++ {
			require.True(t, InRange(k, 7, 7))
		}
	})
}

func TestBetween(t *testing.T) {
	s := MustSpace(5)

	for k := ID(0); k < ID(s.Size()); k++ {
		require.Equal(t, k > 10 && k < 20, Between(k, 10, 20), "key %d", k)
		require.Equal(t, k > 20 || k < 10, Between(k, 20, 10), "key %d", k)
		require.Equal(t, k != 7, Between(k, 7, 7), "key %d", k)
	}
}
