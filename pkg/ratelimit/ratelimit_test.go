package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllow_PermitsBurstThenBlocks(t *testing.T) {
	l := New(1, 2, time.Minute)
	now := time.Unix(1700000000, 0).UTC()

	require.True(t, l.Allow("cell-a", now))
	require.True(t, l.Allow("cell-a", now))
	require.False(t, l.Allow("cell-a", now))
}

func TestAllow_RefillsOverTime(t *testing.T) {
	l := New(1, 1, time.Minute)
	now := time.Unix(1700000000, 0).UTC()

	require.True(t, l.Allow("cell-a", now))
	require.False(t, l.Allow("cell-a", now))
	require.True(t, l.Allow("cell-a", now.Add(2*time.Second)))
}

func TestAllow_IsolatesFederates(t *testing.T) {
	l := New(1, 1, time.Minute)
	now := time.Unix(1700000000, 0).UTC()

	require.True(t, l.Allow("cell-a", now))
	require.True(t, l.Allow("cell-b", now))
}

func TestSweep_RemovesIdleEntries(t *testing.T) {
	l := New(1, 1, time.Minute)
	now := time.Unix(1700000000, 0).UTC()
	l.Allow("cell-a", now)

	removed := l.Sweep(now.Add(2 * time.Minute))
	require.Equal(t, 1, removed)
	require.Empty(t, l.limiters)
}
