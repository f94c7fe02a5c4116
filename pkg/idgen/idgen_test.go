package idgen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFactory_MonotonicWithinTick(t *testing.T) {
	f := NewFactory()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	a, err := f.New(now)
	require.NoError(t, err)
	b, err := f.New(now)
	require.NoError(t, err)

	require.Len(t, a, 26)
	require.Len(t, b, 26)
	require.Less(t, a, b, "ids minted in the same tick must sort strictly increasing")
}

func TestFactory_AdvancesAcrossTicks(t *testing.T) {
	f := NewFactory()
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Millisecond)

	a, err := f.New(t1)
	require.NoError(t, err)
	b, err := f.New(t2)
	require.NoError(t, err)
	require.Less(t, a, b)
}

func TestDeterministic_OrderIndependent(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	derived := ts.Add(time.Minute)

	id1 := Deterministic([]string{"obs-2", "obs-1"}, []time.Time{ts, ts}, derived)
	id2 := Deterministic([]string{"obs-1", "obs-2"}, []time.Time{ts, ts}, derived)

	require.Equal(t, id1, id2, "deterministic id must not depend on caller-supplied order")
	require.Len(t, id1, 26)
}

func TestDeterministic_ChangesWithSources(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	id1 := Deterministic([]string{"obs-1"}, []time.Time{ts}, ts)
	id2 := Deterministic([]string{"obs-2"}, []time.Time{ts}, ts)
	require.NotEqual(t, id1, id2)
}
