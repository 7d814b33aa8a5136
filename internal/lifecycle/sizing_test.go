package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSizingAcceptsExactlyAtCap(t *testing.T) {
	var p SizingPolicy
	balance, mid := 10000.0, 30000.0
	maxPerSide := MaxPerSide(balance, mid)

	size, accepted := p.Evaluate(maxPerSide, 0, balance, mid)
	require.True(t, accepted)
	require.Equal(t, maxPerSide, size)
}

func TestSizingAdjustsDownToCap(t *testing.T) {
	var p SizingPolicy
	balance, mid := 10000.0, 30000.0
	maxPerSide := MaxPerSide(balance, mid)

	size, accepted := p.Evaluate(maxPerSide+5, 0, balance, mid)
	require.True(t, accepted)
	require.InDelta(t, maxPerSide, size, Epsilon)
}

func TestSizingRejectsWhenAdjustedBelowMinContract(t *testing.T) {
	var p SizingPolicy
	balance, mid := 10000.0, 30000.0
	maxPerSide := MaxPerSide(balance, mid)

	// Existing exposure already leaves less than MinContract of room.
	existing := maxPerSide - MinContract/2
	size, accepted := p.Evaluate(5.0, existing, balance, mid)
	require.False(t, accepted)
	require.Equal(t, 0.0, size)
}
