package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllowPerKeyBurst(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 2})
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	require.True(t, l.Allow("owner-a"))
	require.True(t, l.Allow("owner-a"))
	require.False(t, l.Allow("owner-a"))

	// Separate bucket per key.
	require.True(t, l.Allow("owner-b"))

	now = now.Add(time.Second)
	require.True(t, l.Allow("owner-a"))
	require.False(t, l.Allow("owner-a"))
}

func TestAllowUnlimited(t *testing.T) {
	l := New(Config{})
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("owner"))
	}
}

func TestIdleKeysAreSwept(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 1, IdleTTL: time.Minute})
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	l.Allow("a")
	l.Allow("b")
	require.Equal(t, 2, l.Len())

	now = now.Add(2 * time.Minute)
	l.Allow("c")
	require.Equal(t, 1, l.Len())
}
