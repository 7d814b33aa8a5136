package wireformat

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marketpipeline/internal/book"
	"marketpipeline/internal/feature"
)

func TestChangeValueRoundTrip(t *testing.T) {
	// Magnitudes below 1e-15 encode to zero (TestChangeValueZero), so the
	// smallest nonzero case here sits just above that threshold.
	values := []float64{-1, -0.5, -1e-10, 0, 1e-14, 0.25, 0.999999999, 1}
	for _, v := range values {
		got := DecodeChange(EncodeChange(v))
		require.InDelta(t, v, got, 1.0/float64(int64(1)<<62))
	}
}

func TestChangeValueZero(t *testing.T) {
	require.Equal(t, uint64(0), EncodeChange(0))
	require.Equal(t, uint64(0), EncodeChange(1e-16))
}

func TestChangeValueSignBit(t *testing.T) {
	bits := EncodeChange(-0.5)
	require.Equal(t, uint64(1), bits>>63)
}

func TestOrderbookValueRoundTrip(t *testing.T) {
	values := []float64{-1023, -100.25, -1e-10, 0, 1e-16, 0.5, 512.125, 1023}
	for _, v := range values {
		got := DecodeOrderbook(EncodeOrderbook(v))
		require.InDelta(t, v, got, 1.0/float64(int64(1)<<52)+1e-9)
	}
}

func TestActionRoundTrip(t *testing.T) {
	buf, err := EncodeAction(nil, 5, -0.75, 0.25, 3_000_000, 42)
	require.NoError(t, err)
	require.Len(t, buf, ActionPayloadSize)

	got, ok := DecodeAction(buf)
	require.True(t, ok)
	require.Equal(t, uint8(5), got.Kind)
	require.InDelta(t, -0.75, got.PriceOffset, 1e-9)
	require.InDelta(t, 0.25, got.VolumeFraction, 1e-9)
	require.Equal(t, uint32(3_000_000), got.MidPriceCents)
	require.Equal(t, uint16(42), got.StateID)
}

func TestActionKindMasksReservedBits(t *testing.T) {
	buf, err := EncodeAction(nil, 0xFF, 0, 0, 0, 0)
	require.NoError(t, err)
	got, ok := DecodeAction(buf)
	require.True(t, ok)
	require.Equal(t, uint8(0x07), got.Kind)
}

func TestActionRejectsMidPriceOutOfRange(t *testing.T) {
	_, err := EncodeAction(nil, 0, 0, 0, maxMidPriceCents+1, 0)
	require.ErrorIs(t, err, ErrMidPriceOutOfRange)
}

func TestFeatureFrameRoundTrip(t *testing.T) {
	bids := make([]book.Level, book.LevelsPerSide)
	asks := make([]book.Level, book.LevelsPerSide)
	for i := range bids {
		bids[i] = book.Level{Price: 30000 - float64(i), Volume: float64(i + 1), OrderCount: float64(i % 5)}
		asks[i] = book.Level{Price: 30001 + float64(i), Volume: float64(i + 1), OrderCount: float64(i % 5)}
	}
	vec := feature.Compute(bids, asks, 30000.5)

	buf, err := EncodeFeatureFrame(nil, bids, asks, 30000.5, vec, 3000050, 65535)
	require.NoError(t, err)
	require.Len(t, buf, FeatureFramePayloadSize)

	got, ok := DecodeFeatureFrame(buf)
	require.True(t, ok)
	require.Equal(t, uint32(3000050), got.MidPriceCents)
	require.Equal(t, uint16(65535), got.SequenceID)
	// Level prices travel as change_values, whose magnitude saturates at 1;
	// the absolute mid is carried by MidPriceCents instead.
	require.InDelta(t, 1.0, got.Bids[0].Price, 1e-6)
	require.InDelta(t, asks[0].Volume, got.Asks[0].Volume, 1e-6)
}

func TestFeatureFrameRejectsWrongLevelCount(t *testing.T) {
	_, err := EncodeFeatureFrame(nil, make([]book.Level, 399), make([]book.Level, 400), 0, feature.Vector{}, 0, 0)
	require.ErrorIs(t, err, ErrWrongLevelCount)
}
