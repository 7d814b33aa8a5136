// Package lifecycle implements the Lifecycle Engine: order submission
// against a position-sizing policy, order-to-trade aggregation, the
// closing/opening fill decomposition state machine, reward computation,
// and at-most-once execution reporting.
package lifecycle

// Epsilon is the smallest magnitude treated as non-zero net position or
// fill delta (§3.8).
const Epsilon = 1e-8

// OpeningThreshold is the smallest opening-portion magnitude that starts
// a follow-on trade; smaller remainders are absorbed without creating a
// dust trade (§3.8 closing/opening split).
const OpeningThreshold = 1e-3

// Side is an order or fill side.
type Side uint8

const (
	Buy Side = iota
	Sell
)

// Direction is a trade's net-position sign.
type Direction uint8

const (
	Long Direction = iota
	Short
)

// String renders a Direction as the ledger and wire format expect.
func (d Direction) String() string {
	if d == Short {
		return "short"
	}
	return "long"
}

func directionForSide(s Side) Direction {
	if s == Buy {
		return Long
	}
	return Short
}

// OrderType selects limit vs. market order placement.
type OrderType uint8

const (
	Limit OrderType = iota
	Market
)

// OrderState is the order lifecycle per §3.9.
type OrderState uint8

const (
	Pending OrderState = iota
	Live
	PartiallyFilled
	Filled
	Canceled
	Rejected
)

// FillPortion decomposes a single exchange-reported fill delta into the
// part that reduced the prior net position (IsClosing) and the part that
// opened against it (§3.6).
type FillPortion struct {
	TradeID           string
	Size              float64
	Price             float64
	Timestamp         int64
	IsClosing         bool
	ExecutionFraction float64
}

// Order is our view of a submitted order (§3.5).
type Order struct {
	LocalID          uint32
	ExchangeID       string
	Side             Side
	IntendedVolume   float64
	IntendedPrice    float64
	CumulativeFilled float64
	AvgFillPrice     float64
	State            OrderState
	TradeID          string
	FillPortions     []FillPortion
	FillTime         int64
}

// ExecutionFraction returns the order's cumulative filled fraction,
// clamped to [0,1]. It is monotone non-decreasing across fills on the
// same order (§8 scenario 4).
func (o *Order) ExecutionFraction() float64 {
	if o.IntendedVolume <= 0 {
		return 0
	}
	f := o.CumulativeFilled / o.IntendedVolume
	if f > 1 {
		return 1
	}
	if f < 0 {
		return 0
	}
	return f
}

// IsFullyFilled reports whether the order has received its full intended
// volume.
func (o *Order) IsFullyFilled() bool {
	return o.CumulativeFilled >= o.IntendedVolume-Epsilon
}

// Trade is a maximal run of fills from flat to flat (§3.7).
type Trade struct {
	TradeID          string
	Direction        Direction
	NetSize          float64
	Orders           []*Order
	ordersByExchange map[string]struct{}
	BuyQP, BuyQty    float64
	SellQP, SellQty  float64
	CumulativeReward float64
	ReducedQty       float64
	MaxDD            float64
}

func newTrade(id string, dir Direction) *Trade {
	return &Trade{
		TradeID:          id,
		Direction:        dir,
		ordersByExchange: make(map[string]struct{}),
	}
}

// AddOrder tracks an order as part of this trade, once per exchange id.
func (t *Trade) AddOrder(o *Order) {
	if _, ok := t.ordersByExchange[o.ExchangeID]; ok {
		return
	}
	t.ordersByExchange[o.ExchangeID] = struct{}{}
	t.Orders = append(t.Orders, o)
}

// applyFill folds a fill of the given side/size/price into the running
// side-wise sums and recomputes NetSize from them, per §3.8's invariant
// (authoritative over the per-case paraphrase in §4.4.3: every branch
// recomputes NetSize the same way).
func (t *Trade) applyFill(side Side, size, price float64) {
	if side == Buy {
		t.BuyQP += price * size
		t.BuyQty += size
	} else {
		t.SellQP += price * size
		t.SellQty += size
	}
	t.NetSize = t.BuyQty - t.SellQty
}

// AvgBuy returns buy_qp/buy_qty, or 0 if no buy volume.
func (t *Trade) AvgBuy() float64 {
	if t.BuyQty <= 0 {
		return 0
	}
	return t.BuyQP / t.BuyQty
}

// AvgSell returns sell_qp/sell_qty, or 0 if no sell volume.
func (t *Trade) AvgSell() float64 {
	if t.SellQty <= 0 {
		return 0
	}
	return t.SellQP / t.SellQty
}

// IsFlat reports whether the trade's net size has returned to zero.
func (t *Trade) IsFlat() bool {
	return absF(t.NetSize) < Epsilon
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
