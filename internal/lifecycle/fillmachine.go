package lifecycle

// FillEvent is an exchange fill update for one order, carrying the
// order's new cumulative filled size (not a delta) and its running
// average fill price.
type FillEvent struct {
	ExchangeID       string
	CumulativeFilled float64
	AvgPrice         float64
	Side             Side
	Timestamp        int64
}

// PerExecutionReport is an intermediate report emitted for every
// recognized fill delta (§6.2); a fill that reduces the current trade
// and opens a follow-on trade yields one for each portion.
type PerExecutionReport struct {
	StateID           uint32
	ExchangeID        string
	ExecutionFraction float64
}

// ClosureReport is emitted when a trade returns to flat (§6.2). The
// wire payload carries only TradeID, FilledPortions and Reward; the
// remaining fields are for the ledger's audit trail (§3.10) and are not
// part of the published JSON.
type ClosureReport struct {
	TradeID        string
	FilledPortions map[string]float64 // exchange id -> percent [0,100]
	Reward         float64
	Direction      Direction
	MaxDD          float64
	BuyQP          float64
	BuyQty         float64
	SellQP         float64
	SellQty        float64
}

// FillMachine is the closing/opening decomposition state machine
// described by §4.4.3 and Design Note 3: {Flat, InTrade(direction),
// Flipping}. Flat is current == nil; InTrade is current != nil; the
// Flipping substep is transient within a single ProcessFill call when a
// reducing fill's Δ overshoots the prior net size and a follow-on trade
// is parked in next.
//
// current, next and every Order reachable from them are cross-goroutine
// state per §5's ownership table (the exchange actor's event-loop
// goroutine and the fill-drain goroutine both reach them), so every
// access goes through orders.mu — the single mutex §5 calls for — rather
// than a lock of its own.
type FillMachine struct {
	orders  *OrdersBook
	current *Trade
	next    *Trade
}

// NewFillMachine constructs a FillMachine bound to an OrdersBook for
// exchange-id recognition.
func NewFillMachine(orders *OrdersBook) *FillMachine {
	return &FillMachine{orders: orders}
}

// Current returns the in-progress trade, or nil if flat.
func (m *FillMachine) Current() *Trade {
	m.orders.mu.Lock()
	defer m.orders.mu.Unlock()
	return m.current
}

// ProcessFill recognizes a fill against a known order, decomposes it
// into closing/opening portions against the current trade, and returns
// the reports that should be published. A fill for an unrecognized
// exchange id is ignored (returns nil) per §4.4.3 step 1; a fill
// whose cumulative_filled has not advanced is a duplicate update and is
// also ignored.
func (m *FillMachine) ProcessFill(ev FillEvent) []any {
	m.orders.mu.Lock()
	defer m.orders.mu.Unlock()

	order, isActive, ok := m.orders.lookupLocked(ev.ExchangeID)
	if !ok {
		return nil
	}
	if !isActive {
		m.orders.reactivateLocked(order)
	}

	delta := ev.CumulativeFilled - order.CumulativeFilled
	if delta <= Epsilon {
		return nil
	}
	order.CumulativeFilled = ev.CumulativeFilled
	order.AvgFillPrice = ev.AvgPrice
	order.FillTime = ev.Timestamp
	if order.State == Pending || order.State == Live {
		order.State = PartiallyFilled
	}

	var reports []any

	switch {
	case m.current == nil || m.current.IsFlat():
		reports = m.openFromFlat(order, ev, delta)
	case m.sameDirection(ev.Side):
		reports = m.extendCurrent(order, ev, delta)
	default:
		reports = m.reduceOrFlip(order, ev, delta)
	}

	if order.IsFullyFilled() {
		m.orders.settleLocked(order)
	}
	return reports
}

func (m *FillMachine) sameDirection(fillSide Side) bool {
	if m.current.Direction == Long {
		return fillSide == Buy
	}
	return fillSide == Sell
}

func (m *FillMachine) openFromFlat(order *Order, ev FillEvent, delta float64) []any {
	m.current = newTrade(ev.ExchangeID, directionForSide(ev.Side))
	m.current.applyFill(ev.Side, delta, ev.AvgPrice)
	m.current.AddOrder(order)

	order.TradeID = m.current.TradeID
	order.FillPortions = append(order.FillPortions, FillPortion{
		TradeID:           m.current.TradeID,
		Size:              delta,
		Price:             ev.AvgPrice,
		Timestamp:         ev.Timestamp,
		IsClosing:         false,
		ExecutionFraction: order.ExecutionFraction(),
	})

	return []any{PerExecutionReport{
		StateID:           order.LocalID,
		ExchangeID:        order.ExchangeID,
		ExecutionFraction: order.ExecutionFraction(),
	}}
}

func (m *FillMachine) extendCurrent(order *Order, ev FillEvent, delta float64) []any {
	m.current.applyFill(ev.Side, delta, ev.AvgPrice)
	m.current.AddOrder(order)

	order.TradeID = m.current.TradeID
	order.FillPortions = append(order.FillPortions, FillPortion{
		TradeID:           m.current.TradeID,
		Size:              delta,
		Price:             ev.AvgPrice,
		Timestamp:         ev.Timestamp,
		IsClosing:         false,
		ExecutionFraction: order.ExecutionFraction(),
	})

	report := PerExecutionReport{
		StateID:           order.LocalID,
		ExchangeID:        order.ExchangeID,
		ExecutionFraction: order.ExecutionFraction(),
	}
	if m.current.IsFlat() {
		return append([]any{report}, m.closeCurrent()...)
	}
	return []any{report}
}

func (m *FillMachine) reduceOrFlip(order *Order, ev FillEvent, delta float64) []any {
	priorNet := absF(m.current.NetSize)
	closing := delta
	if closing > priorNet {
		closing = priorNet
	}
	opening := delta - closing

	var reports []any

	m.current.applyFill(ev.Side, closing, ev.AvgPrice)
	order.FillPortions = append(order.FillPortions, FillPortion{
		TradeID:           m.current.TradeID,
		Size:              closing,
		Price:             ev.AvgPrice,
		Timestamp:         ev.Timestamp,
		IsClosing:         true,
		ExecutionFraction: order.ExecutionFraction(),
	})
	m.current.AddOrder(order)
	reports = append(reports, PerExecutionReport{
		StateID:           order.LocalID,
		ExchangeID:        order.ExchangeID,
		ExecutionFraction: order.ExecutionFraction(),
	})

	if opening >= OpeningThreshold {
		m.next = newTrade(ev.ExchangeID, directionForSide(ev.Side))
		m.next.applyFill(ev.Side, opening, ev.AvgPrice)
		m.next.AddOrder(order)

		order.FillPortions = append(order.FillPortions, FillPortion{
			TradeID:           m.next.TradeID,
			Size:              opening,
			Price:             ev.AvgPrice,
			Timestamp:         ev.Timestamp,
			IsClosing:         false,
			ExecutionFraction: order.ExecutionFraction(),
		})
		order.TradeID = m.next.TradeID
		reports = append(reports, PerExecutionReport{
			StateID:           order.LocalID,
			ExchangeID:        order.ExchangeID,
			ExecutionFraction: order.ExecutionFraction(),
		})
	}

	if m.current.IsFlat() {
		reports = append(reports, m.closeCurrent()...)
	}
	return reports
}

func (m *FillMachine) closeCurrent() []any {
	closed := m.current
	closed.CumulativeReward = ComputeReward(closed)

	portions := make(map[string]float64, len(closed.Orders))
	for _, o := range closed.Orders {
		sum := 0.0
		for _, p := range o.FillPortions {
			if p.TradeID == closed.TradeID {
				sum += p.Size
			}
		}
		percent := 0.0
		if o.IntendedVolume > 0 {
			percent = sum / o.IntendedVolume * 100
			if percent > 100 {
				percent = 100
			}
		}
		portions[o.ExchangeID] = percent
	}

	reports := []any{ClosureReport{
		TradeID:        closed.TradeID,
		FilledPortions: portions,
		Reward:         closed.CumulativeReward,
		Direction:      closed.Direction,
		MaxDD:          closed.MaxDD,
		BuyQP:          closed.BuyQP,
		BuyQty:         closed.BuyQty,
		SellQP:         closed.SellQP,
		SellQty:        closed.SellQty,
	}}

	if m.next != nil {
		m.current = m.next
		m.next = nil
	} else {
		m.current = nil
	}
	return reports
}
