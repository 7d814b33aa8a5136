package feature

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marketpipeline/internal/book"
)

func TestComputeZeroDenominatorYieldsZero(t *testing.T) {
	v := Compute(nil, nil, 0)
	for _, f := range v.ByDepth {
		require.Equal(t, DepthFeature{}, f)
	}
}

func TestComputeBalancedBookHasZeroImbalance(t *testing.T) {
	bids := []book.Level{{Price: 100, Volume: 10, OrderCount: 2}}
	asks := []book.Level{{Price: 102, Volume: 10, OrderCount: 2}}
	v := Compute(bids, asks, 101)
	require.InDelta(t, 0, v.ByDepth[0].VolumeImbalance, 1e-12)
	require.InDelta(t, 0, v.ByDepth[0].OrderImbalance, 1e-12)
}

func TestComputeVwapDisplacementSign(t *testing.T) {
	bids := []book.Level{{Price: 99, Volume: 1, OrderCount: 1}}
	asks := []book.Level{{Price: 103, Volume: 1, OrderCount: 1}}
	v := Compute(bids, asks, 100)
	require.Less(t, v.ByDepth[0].BidVwapDisp, 0.0)
	require.Greater(t, v.ByDepth[0].AskVwapDisp, 0.0)
}
