package depthsvc

import (
	"context"

	"github.com/yanun0323/logs"

	"marketpipeline/internal/book"
	"marketpipeline/internal/broker"
	"marketpipeline/internal/feature"
	"marketpipeline/internal/obs"
	"marketpipeline/internal/wireformat"
)

// Engine owns one instrument's order book and turns OKX book pushes into
// published feature frames (§4.1 processing rules 1-5).
type Engine struct {
	b          *book.Book
	publisher  broker.Broker
	sequenceID uint16
	frameBuf   []byte
	metrics    *obs.Metrics
}

// New constructs an Engine publishing through the given broker.
func New(publisher broker.Broker) *Engine {
	return &Engine{
		b:         book.NewBook(),
		publisher: publisher,
	}
}

// SetMetrics attaches a metrics sink; nil disables instrumentation.
func (e *Engine) SetMetrics(m *obs.Metrics) {
	e.metrics = m
}

// HandleMessage processes one raw OKX books-channel payload. It is rule
// 1-4 of §4.1: dispatch snapshot vs. update, apply to the book, and on
// success recompute and publish the feature frame.
func (e *Engine) HandleMessage(ctx context.Context, payload []byte) error {
	action, ok := peekAction(payload)
	if !ok {
		logs.Warn("depth message missing action field, dropping")
		return nil
	}

	msg, err := decodeBookMessage(payload)
	if err != nil {
		logs.Warn("malformed depth message, dropping")
		return nil
	}

	for _, d := range msg.Data {
		bids := toLevels(d.Bids)
		asks := toLevels(d.Asks)

		var applyErr error
		switch action {
		case "snapshot":
			e.sequenceID = 0
			applyErr = e.b.ApplySnapshot(bids, asks)
		case "update":
			applyErr = e.b.ApplyDelta(bids, asks)
		default:
			logs.Warn("unrecognized depth action, dropping")
			continue
		}

		if applyErr != nil {
			// Invariant violation (§7): force a re-snapshot rather than
			// publish a frame built on a corrupt book.
			logs.Warn("book invariant violation, forcing re-snapshot")
			e.b = book.NewBook()
			e.metrics.Inc(obs.CounterBookResnapshots)
			continue
		}

		if err := e.publishFrame(ctx); err != nil {
			return err
		}
	}
	return nil
}

// publishFrame is §4.1 rule 5: recompute the feature vector, encode the
// fixed-layout frame, and publish it, minting the next sequence id.
func (e *Engine) publishFrame(ctx context.Context) error {
	bids := e.b.Bids.Levels()
	asks := e.b.Asks.Levels()
	mid := e.b.Mid()
	vec := feature.Compute(bids, asks, mid)

	midCents := uint32(mid * 100)
	frame, err := wireformat.EncodeFeatureFrame(e.frameBuf, bids, asks, mid, vec, midCents, e.sequenceID)
	if err != nil {
		logs.Warn("feature frame encode failed, forcing re-snapshot")
		e.b = book.NewBook()
		return nil
	}
	e.frameBuf = frame

	if err := e.publisher.Publish(ctx, broker.TopicOrderbook, broker.RoutingKeyOrderbookUpdates, frame); err != nil {
		logs.Warn("feature frame publish failed")
		return err
	}
	e.metrics.Inc(obs.CounterFramesPublished)
	e.sequenceID++
	return nil
}
