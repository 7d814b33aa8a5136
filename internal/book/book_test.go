package book

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func fullSide(n int, base float64, ascending bool) []Level {
	out := make([]Level, n)
	for i := 0; i < n; i++ {
		p := base
		if ascending {
			p += float64(i)
		} else {
			p -= float64(i)
		}
		out[i] = Level{Price: p, Volume: 1, OrderCount: 1}
	}
	return out
}

func snapshotBook(t *testing.T) *Book {
	b := NewBook()
	bids := fullSide(LevelsPerSide, 30000, false)
	asks := fullSide(LevelsPerSide, 30001, true)
	require.NoError(t, b.ApplySnapshot(bids, asks))
	return b
}

func TestSnapshotEnforcesLevelCount(t *testing.T) {
	b := NewBook()
	err := b.ApplySnapshot(fullSide(399, 100, false), fullSide(400, 101, true))
	require.ErrorIs(t, err, ErrLevelCount)
}

func TestSideOrderingAfterSnapshot(t *testing.T) {
	b := snapshotBook(t)
	require.Equal(t, LevelsPerSide, b.Bids.Len())
	require.Equal(t, LevelsPerSide, b.Asks.Len())

	bids := b.Bids.Levels()
	for i := 1; i < len(bids); i++ {
		require.Less(t, bids[i].Price, bids[i-1].Price)
	}
	asks := b.Asks.Levels()
	for i := 1; i < len(asks); i++ {
		require.Greater(t, asks[i].Price, asks[i-1].Price)
	}
}

func TestDeltaRemovesExactlyThatLevel(t *testing.T) {
	b := snapshotBook(t)
	bestBid, _ := b.Bids.Best()
	target := bestBid.Price

	// replace the removed level with a brand-new price so the invariant
	// (exactly 400 levels) still holds after the delta.
	err := b.ApplyDelta(
		[]Level{{Price: target, Volume: 0}, {Price: target - 1000, Volume: 2, OrderCount: 2}},
		nil,
	)
	require.NoError(t, err)
	require.Equal(t, LevelsPerSide, b.Bids.Len())
	for _, lvl := range b.Bids.Levels() {
		require.NotEqual(t, target, lvl.Price)
	}
}

func TestDeltaOverwritesExistingLevel(t *testing.T) {
	b := snapshotBook(t)
	bestBid, _ := b.Bids.Best()

	err := b.ApplyDelta([]Level{{Price: bestBid.Price, Volume: 42, OrderCount: 7}}, nil)
	require.NoError(t, err)
	got, _ := b.Bids.Best()
	require.Equal(t, 42.0, got.Volume)
	require.Equal(t, 7.0, got.OrderCount)
}

func TestDeltaBeforeSnapshotIsFatal(t *testing.T) {
	b := NewBook()
	err := b.ApplyDelta([]Level{{Price: 1, Volume: 1}}, nil)
	require.ErrorIs(t, err, ErrMissingSnapshot)
}

func TestMidPriceIsMeanOfBestBidAsk(t *testing.T) {
	b := snapshotBook(t)
	bestBid, _ := b.Bids.Best()
	bestAsk, _ := b.Asks.Best()
	require.Equal(t, (bestBid.Price+bestAsk.Price)/2, b.Mid())
}

func TestMidPriceZeroWhenSideEmpty(t *testing.T) {
	b := NewBook()
	require.Equal(t, 0.0, b.Mid())
}

func TestHistoryRetainsLastTenSnapshots(t *testing.T) {
	b := snapshotBook(t)
	for i := 0; i < 15; i++ {
		bestBid, _ := b.Bids.Best()
		err := b.ApplyDelta(
			[]Level{{Price: bestBid.Price, Volume: 0}, {Price: bestBid.Price - 10000 - float64(i), Volume: 1, OrderCount: 1}},
			nil,
		)
		require.NoError(t, err)
	}
	require.Equal(t, historyDepth, b.History.Len())
}
