package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDelayDoubles(t *testing.T) {
	base := 10 * time.Second
	cap := 30 * time.Minute

	require.Equal(t, 10*time.Second, Delay(1, base, cap))
	require.Equal(t, 20*time.Second, Delay(2, base, cap))
	require.Equal(t, 40*time.Second, Delay(3, base, cap))
	require.Equal(t, 80*time.Second, Delay(4, base, cap))
}

func TestDelayCapped(t *testing.T) {
	base := time.Minute
	cap := 5 * time.Minute

	require.Equal(t, 4*time.Minute, Delay(3, base, cap))
	require.Equal(t, 5*time.Minute, Delay(4, base, cap))
	require.Equal(t, 5*time.Minute, Delay(10, base, cap))
	require.Equal(t, 5*time.Minute, Delay(63, base, cap))
}

func TestDelayNonDecreasing(t *testing.T) {
	base := 25 * time.Millisecond
	cap := 400 * time.Millisecond

	prev := time.Duration(0)
	for attempt := 1; attempt <= 20; attempt++ {
		d := Delay(attempt, base, cap)
		require.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		require.LessOrEqual(t, d, cap)
		prev = d
	}
}

func TestDelayEdgeCases(t *testing.T) {
	require.Equal(t, time.Second, Delay(0, time.Second, time.Minute))
	require.Equal(t, time.Second, Delay(-3, time.Second, time.Minute))
	require.Equal(t, time.Duration(0), Delay(5, 0, time.Minute))
}
