package lifecycle

import (
	"context"
	"math"
	"sync/atomic"

	"github.com/yanun0323/logs"

	"marketpipeline/internal/obs"
	"marketpipeline/internal/wireformat"
)

// Engine wires order submission (§4.4.1), the position-sizing policy
// (§4.4.2), the fill decomposition state machine (§4.4.3), and the
// cancellation sub-protocol (§4.4.5) to an exchange actor and a broker
// publisher. balance, connected and balanceReceived are read and
// written from multiple goroutines per §5's ownership table, hence the
// atomic storage rather than a mutex for those three fields alone.
type Engine struct {
	orders  *OrdersBook
	machine *FillMachine
	sizing  SizingPolicy
	buffer  *fillBuffer

	exchange  ExchangeClient
	publisher Publisher

	balanceBits     atomic.Uint64
	connected       atomic.Bool
	balanceReceived atomic.Bool

	metrics *obs.Metrics
}

// SetMetrics attaches a metrics sink; nil disables instrumentation.
func (e *Engine) SetMetrics(m *obs.Metrics) {
	e.metrics = m
}

// NewEngine constructs an Engine around an exchange actor and a broker
// publisher for execution reports.
func NewEngine(exchange ExchangeClient, publisher Publisher) *Engine {
	return NewEngineWithReorderWindow(exchange, publisher, FillReorderWindowMillis)
}

// NewEngineWithReorderWindow is NewEngine with an explicit fill reorder
// window, for FILL_REORDER_WINDOW (§6.4).
func NewEngineWithReorderWindow(exchange ExchangeClient, publisher Publisher, reorderWindowMillis int64) *Engine {
	orders := NewOrdersBook()
	return &Engine{
		orders:    orders,
		machine:   NewFillMachine(orders),
		buffer:    newFillBuffer(reorderWindowMillis, &orders.mu),
		exchange:  exchange,
		publisher: publisher,
	}
}

// SetBalance records the account balance reported by the exchange's
// account stream.
func (e *Engine) SetBalance(balance float64) {
	e.balanceBits.Store(math.Float64bits(balance))
	e.balanceReceived.Store(true)
}

// Balance returns the most recently recorded account balance.
func (e *Engine) Balance() float64 {
	return math.Float64frombits(e.balanceBits.Load())
}

// SetConnected records the exchange session's connectivity state.
func (e *Engine) SetConnected(connected bool) {
	e.connected.Store(connected)
}

// HandleAction implements order submission (§4.4.1) for one decoded
// action frame.
func (e *Engine) HandleAction(ctx context.Context, action wireformat.Action) error {
	if !e.balanceReceived.Load() {
		logs.Warn("dropping action, balance not yet known")
		return nil
	}
	balance := e.Balance()
	mid := float64(action.MidPriceCents) / 100

	orderPrice := mid * (1 + action.PriceOffset/1000)
	side := Sell
	if action.PriceOffset < 0 {
		side = Buy
	}
	orderType := Limit
	if action.Kind != 0 {
		orderType = Market
	}

	notionalMargin := balance * 0.001 * action.VolumeFraction
	size := math.Ceil(10*Leverage*notionalMargin*100/orderPrice) / 10
	if size < MinContract {
		return nil
	}

	existing := e.orders.ActiveSideExposure(side)
	adjusted, accepted := e.sizing.Evaluate(size, existing, balance, mid)
	if !accepted {
		logs.Warn("position-sizing policy rejected action")
		return nil
	}

	order := &Order{
		LocalID:        uint32(action.StateID),
		Side:           side,
		IntendedVolume: adjusted,
		IntendedPrice:  orderPrice,
		State:          Pending,
	}
	e.orders.Submit(order)

	if err := e.exchange.Submit(ctx, OrderRequest{
		LocalID: order.LocalID,
		Side:    side,
		Type:    orderType,
		Price:   orderPrice,
		Size:    adjusted,
	}); err != nil {
		return err
	}
	return nil
}

// HandleAck resolves a pending order's exchange-assigned id.
func (e *Engine) HandleAck(ack ExchangeAck) {
	if !ack.Accepted {
		logs.Warn("exchange rejected order")
		return
	}
	e.orders.AssignExchangeID(ack.LocalID, ack.ExchangeID)
}

// HandlePosition folds a position-stream update into the current
// trade's drawdown tracker (§4.4.4). current is cross-goroutine state
// (§5), so the update happens under orders.mu, the same lock
// FillMachine.ProcessFill holds while it owns current.
func (e *Engine) HandlePosition(update PositionUpdate) {
	e.orders.mu.Lock()
	defer e.orders.mu.Unlock()
	if current := e.machine.current; current != nil {
		UpdateMaxDD(current, update.UnrealizedPnLRatio)
	}
}

// HandleCancelConfirmation removes a confirmed-canceled order from the
// cancel queue, or is a no-op if the entry was already removed by a
// late fill making the cancel moot (§4.4.5).
func (e *Engine) HandleCancelConfirmation(conf CancelConfirmation) {
	if !conf.Confirmed {
		return
	}
	e.orders.ConfirmCancel(conf.ExchangeID)
}

// HandleFill buffers a fill event for timestamp-ordered dispatch
// (§5's 2-second reorder window); call DrainFills to process buffered
// events once they have aged past the window.
func (e *Engine) HandleFill(ev FillEvent) {
	e.buffer.Push(ev)
	e.metrics.Inc(obs.CounterFillsProcessed)
}

// DrainFills releases fills older than the reorder window to the fill
// machine and publishes the resulting reports.
func (e *Engine) DrainFills(ctx context.Context, nowMillis int64) {
	for _, ev := range e.buffer.Drain(nowMillis) {
		for _, report := range e.machine.ProcessFill(ev) {
			if err := e.publisher.PublishExecution(ctx, report); err != nil {
				logs.Warn("execution report publish failed")
				continue
			}
			e.metrics.Inc(obs.CounterExecutionReportsPublished)
		}
	}
}

// TickCancelQueue sends one pending cancel request, per §4.4.5's
// one-at-a-time protocol.
func (e *Engine) TickCancelQueue(ctx context.Context) {
	order, ok := e.orders.PopCancel()
	if !ok {
		return
	}
	if err := e.exchange.Cancel(ctx, order.ExchangeID); err != nil {
		logs.Warn("cancel request failed")
	}
}

// Run drives the exchange actor's event stream until ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.exchange.Events():
			switch ev.Kind {
			case EventAck:
				e.HandleAck(ev.Ack)
			case EventFill:
				e.HandleFill(ev.Fill)
			case EventPosition:
				e.HandlePosition(ev.Position)
			case EventCancel:
				e.HandleCancelConfirmation(ev.Cancel)
			}
		}
	}
}

// Orders exposes the underlying OrdersBook for diagnostics and tests.
func (e *Engine) Orders() *OrdersBook {
	return e.orders
}

// Machine exposes the underlying FillMachine for diagnostics and tests.
func (e *Engine) Machine() *FillMachine {
	return e.machine
}
