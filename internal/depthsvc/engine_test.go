package depthsvc

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"marketpipeline/internal/book"
	"marketpipeline/internal/broker"
	"marketpipeline/internal/wireformat"
)

type fakeBroker struct {
	published [][]byte
}

func (f *fakeBroker) Publish(ctx context.Context, topic, routingKey string, payload []byte) error {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.published = append(f.published, cp)
	return nil
}

func (f *fakeBroker) Consume(ctx context.Context, queue string, handler broker.Handler) error {
	return nil
}

func fullLevelRows(n int, startPrice, step float64) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		price := startPrice + step*float64(i)
		fmt.Fprintf(&b, `["%.2f","1.0","0","1"]`, price)
	}
	return b.String()
}

func snapshotPayload() []byte {
	bids := fullLevelRows(book.LevelsPerSide, 30000, -0.5)
	asks := fullLevelRows(book.LevelsPerSide, 30000.5, 0.5)
	payload := fmt.Sprintf(`{"arg":{"channel":"books-l2-tbt","instId":"BTC-USDT-SWAP"},"action":"snapshot","data":[{"bids":[%s],"asks":[%s],"ts":"1"}]}`, bids, asks)
	return []byte(payload)
}

func TestHandleMessageSnapshotPublishesFrame(t *testing.T) {
	fb := &fakeBroker{}
	e := New(fb)

	err := e.HandleMessage(context.Background(), snapshotPayload())
	require.NoError(t, err)
	require.Len(t, fb.published, 1)

	decoded, ok := wireformat.DecodeFeatureFrame(fb.published[0])
	require.True(t, ok)
	require.Equal(t, uint16(0), decoded.SequenceID)
}

func TestHandleMessageUpdateIncrementsSequence(t *testing.T) {
	fb := &fakeBroker{}
	e := New(fb)
	require.NoError(t, e.HandleMessage(context.Background(), snapshotPayload()))

	// remove one bid level and add a new one below the book so the side
	// still holds exactly 400 levels after the delta.
	update := []byte(`{"arg":{"channel":"books-l2-tbt","instId":"BTC-USDT-SWAP"},"action":"update","data":[{"bids":[["29999.50","0","0","0"],["29800.00","1.0","0","1"]],"asks":[],"ts":"2"}]}`)
	require.NoError(t, e.HandleMessage(context.Background(), update))
	require.Len(t, fb.published, 2)

	decoded, ok := wireformat.DecodeFeatureFrame(fb.published[1])
	require.True(t, ok)
	require.Equal(t, uint16(1), decoded.SequenceID)
}

func TestHandleMessageMalformedPayloadDropped(t *testing.T) {
	fb := &fakeBroker{}
	e := New(fb)
	err := e.HandleMessage(context.Background(), []byte(`not json`))
	require.NoError(t, err)
	require.Empty(t, fb.published)
}
