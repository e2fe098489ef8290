package sampler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSourceIsDeterministic(t *testing.T) {
	a := NewSource(42)
	b := NewSource(42)
	for i := 0; i < 100; i++ {
		require.Equal(t, a.Uint64(), b.Uint64())
	}
}

func TestFloat64InUnitRange(t *testing.T) {
	src := NewSource(7)
	for i := 0; i < 1000; i++ {
		v := src.Float64()
		require.GreaterOrEqual(t, v, 0.0)
		require.Less(t, v, 1.0)
	}
}

func TestIntnInRange(t *testing.T) {
	src := NewSource(1234)
	for i := 0; i < 1000; i++ {
		v := src.Intn(5)
		require.GreaterOrEqual(t, v, 0)
		require.Less(t, v, 5)
	}
}

func TestIntnPanicsOnNonPositive(t *testing.T) {
	src := NewSource(1)
	require.Panics(t, func() { src.Intn(0) })
}

func TestDeriveProducesDistinctStreams(t *testing.T) {
	master := NewSource(99)
	a := Derive(master, 1)
	master2 := NewSource(99)
	b := Derive(master2, 2)
	require.NotEqual(t, a.Uint64(), b.Uint64(), "different tags must diverge the derived stream")
}

func TestUniformSampleWithoutReplacement(t *testing.T) {
	u := NewUniform(NewSource(5))
	require.NoError(t, u.Initialize(10))

	indices, ok := u.Sample(4)
	require.True(t, ok)
	require.Len(t, indices, 4)

	seen := make(map[int]bool)
	for _, idx := range indices {
		require.False(t, seen[idx], "sample must not repeat an index")
		seen[idx] = true
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, 10)
	}
}

func TestUniformSampleRejectsOversizedRequest(t *testing.T) {
	u := NewUniform(NewSource(5))
	require.NoError(t, u.Initialize(3))
	_, ok := u.Sample(4)
	require.False(t, ok)
}
