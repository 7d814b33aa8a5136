package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func submitOrder(t *testing.T, orders *OrdersBook, localID uint32, exchangeID string, side Side, volume float64) *Order {
	t.Helper()
	o := &Order{LocalID: localID, ExchangeID: exchangeID, Side: side, IntendedVolume: volume, State: Live}
	orders.Submit(o)
	return o
}

func reportsOfType[T any](reports []any) []T {
	var out []T
	for _, r := range reports {
		if v, ok := r.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// Scenario 1: flat -> buy 1.0 @ 30000 -> sell 1.0 @ 30300, both fully
// filled, no drawdown.
func TestScenario1FullRoundTripNoDrawdown(t *testing.T) {
	orders := NewOrdersBook()
	m := NewFillMachine(orders)
	submitOrder(t, orders, 1, "buy1", Buy, 1.0)
	submitOrder(t, orders, 2, "sell1", Sell, 1.0)

	r1 := m.ProcessFill(FillEvent{ExchangeID: "buy1", CumulativeFilled: 1.0, AvgPrice: 30000, Side: Buy, Timestamp: 1})
	require.Len(t, reportsOfType[PerExecutionReport](r1), 1)
	require.Empty(t, reportsOfType[ClosureReport](r1))

	r2 := m.ProcessFill(FillEvent{ExchangeID: "sell1", CumulativeFilled: 1.0, AvgPrice: 30300, Side: Sell, Timestamp: 2})
	closures := reportsOfType[ClosureReport](r2)
	require.Len(t, closures, 1)
	require.InDelta(t, 100.0, closures[0].Reward, 1e-9)
	require.InDelta(t, 100.0, closures[0].FilledPortions["buy1"], 1e-9)
	require.InDelta(t, 100.0, closures[0].FilledPortions["sell1"], 1e-9)
	require.Nil(t, m.Current())
}

// Scenario 2: flat -> sell 2.0 @ 40000 -> buy 2.0 @ 39600, short trade.
func TestScenario2ShortRoundTrip(t *testing.T) {
	orders := NewOrdersBook()
	m := NewFillMachine(orders)
	submitOrder(t, orders, 1, "sell1", Sell, 2.0)
	submitOrder(t, orders, 2, "buy1", Buy, 2.0)

	m.ProcessFill(FillEvent{ExchangeID: "sell1", CumulativeFilled: 2.0, AvgPrice: 40000, Side: Sell, Timestamp: 1})
	require.Equal(t, Short, m.Current().Direction)

	r2 := m.ProcessFill(FillEvent{ExchangeID: "buy1", CumulativeFilled: 2.0, AvgPrice: 39600, Side: Buy, Timestamp: 2})
	closures := reportsOfType[ClosureReport](r2)
	require.Len(t, closures, 1)
	require.InDelta(t, 101.0101, closures[0].Reward, 1e-3)
}

// Scenario 3: flat -> buy 1.0 @ 30000 -> sell 3.0 @ 30150: closes the
// long and flips into a 2.0 short follow-on trade.
func TestScenario3FlipQueuesFollowOnTrade(t *testing.T) {
	orders := NewOrdersBook()
	m := NewFillMachine(orders)
	submitOrder(t, orders, 1, "buy1", Buy, 1.0)
	submitOrder(t, orders, 2, "sell1", Sell, 3.0)

	m.ProcessFill(FillEvent{ExchangeID: "buy1", CumulativeFilled: 1.0, AvgPrice: 30000, Side: Buy, Timestamp: 1})

	r2 := m.ProcessFill(FillEvent{ExchangeID: "sell1", CumulativeFilled: 3.0, AvgPrice: 30150, Side: Sell, Timestamp: 2})
	executions := reportsOfType[PerExecutionReport](r2)
	closures := reportsOfType[ClosureReport](r2)
	require.Len(t, executions, 2, "closing fraction and opening fraction reports")
	require.Len(t, closures, 1)
	require.InDelta(t, 50.0, closures[0].Reward, 1e-9)

	require.NotNil(t, m.Current())
	require.Equal(t, Short, m.Current().Direction)
	require.InDelta(t, -2.0, m.Current().NetSize, 1e-9)
	require.Equal(t, "sell1", m.Current().TradeID)
}

// Scenario 4: a single order filling in three deltas must produce three
// per-execution reports with non-regressing execution fraction.
func TestScenario4PartialFillProgressionMonotone(t *testing.T) {
	orders := NewOrdersBook()
	m := NewFillMachine(orders)
	submitOrder(t, orders, 1, "buy1", Buy, 1.0)

	steps := []struct {
		cumulative, price float64
	}{
		{0.3, 30000},
		{0.8, 30005},
		{1.0, 30010},
	}

	var fractions []float64
	for i, s := range steps {
		reports := m.ProcessFill(FillEvent{ExchangeID: "buy1", CumulativeFilled: s.cumulative, AvgPrice: s.price, Side: Buy, Timestamp: int64(i + 1)})
		execs := reportsOfType[PerExecutionReport](reports)
		require.Len(t, execs, 1)
		fractions = append(fractions, execs[0].ExecutionFraction)
	}

	require.Len(t, fractions, 3)
	for i := 1; i < len(fractions); i++ {
		require.GreaterOrEqual(t, fractions[i], fractions[i-1])
	}
	require.InDelta(t, 1.0, fractions[2], 1e-9)
}

// Scenario 5: a fill for an exchange id the engine never submitted must
// be dropped with no state mutation.
func TestScenario5UnknownExchangeIDIgnored(t *testing.T) {
	orders := NewOrdersBook()
	m := NewFillMachine(orders)
	submitOrder(t, orders, 1, "buy1", Buy, 1.0)

	reports := m.ProcessFill(FillEvent{ExchangeID: "ghost", CumulativeFilled: 1.0, AvgPrice: 30000, Side: Buy, Timestamp: 1})
	require.Nil(t, reports)
	require.Nil(t, m.Current())
}

func TestNetSizeInvariantDuringAccumulation(t *testing.T) {
	orders := NewOrdersBook()
	m := NewFillMachine(orders)
	submitOrder(t, orders, 1, "buy1", Buy, 2.0)
	submitOrder(t, orders, 2, "buy2", Buy, 2.0)

	m.ProcessFill(FillEvent{ExchangeID: "buy1", CumulativeFilled: 1.0, AvgPrice: 30000, Side: Buy, Timestamp: 1})
	require.InDelta(t, 1.0, m.Current().NetSize, 1e-9)

	m.ProcessFill(FillEvent{ExchangeID: "buy2", CumulativeFilled: 1.5, AvgPrice: 30010, Side: Buy, Timestamp: 2})
	require.InDelta(t, 2.5, m.Current().NetSize, 1e-9)
	require.InDelta(t, m.Current().BuyQty-m.Current().SellQty, m.Current().NetSize, 1e-9)
}

func TestClosingPlusOpeningEqualsDelta(t *testing.T) {
	orders := NewOrdersBook()
	m := NewFillMachine(orders)
	submitOrder(t, orders, 1, "buy1", Buy, 1.0)
	submitOrder(t, orders, 2, "sell1", Sell, 4.0)

	m.ProcessFill(FillEvent{ExchangeID: "buy1", CumulativeFilled: 1.0, AvgPrice: 30000, Side: Buy, Timestamp: 1})
	priorNet := absF(m.Current().NetSize)

	m.ProcessFill(FillEvent{ExchangeID: "sell1", CumulativeFilled: 4.0, AvgPrice: 30100, Side: Sell, Timestamp: 2})

	order, _, ok := orders.Lookup("sell1")
	require.True(t, ok)
	var closing, opening float64
	for _, p := range order.FillPortions {
		if p.IsClosing {
			closing += p.Size
		} else {
			opening += p.Size
		}
	}
	require.InDelta(t, priorNet, closing, 1e-9)
	require.InDelta(t, 4.0, closing+opening, 1e-9)
}
