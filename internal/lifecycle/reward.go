package lifecycle

// ComputeReward computes a closed trade's reward per §4.4.4: a basis-
// point return on the matched average prices, then scaled down for
// drawdown experienced during the trade. The same (avg_sell-avg_buy)/
// avg_buy form applies to both long and short trades: it is the form
// the worked examples in spec §8 actually use, which disagrees with
// that section's per-direction prose for the short case (see
// DESIGN.md's reward-formula entry).
func ComputeReward(t *Trade) float64 {
	avgBuy := t.AvgBuy()
	avgSell := t.AvgSell()
	if avgBuy <= 0 || avgSell <= 0 {
		return 0
	}

	base := (avgSell - avgBuy) / avgBuy * 10000

	dd := t.MaxDD
	if dd < 0 {
		dd = -dd
	}

	switch {
	case base > 0:
		return base * (1 - 2*dd)
	case base < 0:
		return base * (1 + 2*dd)
	default:
		return 0
	}
}

// UpdateMaxDD folds a newly observed unrealized-PnL ratio into the
// trade's worst-drawdown tracker. MaxDD only moves more negative: once
// the position recovers, the low-water mark from earlier in the trade
// is preserved (§9 design note "maxdd").
func UpdateMaxDD(t *Trade, unrealizedPnLRatio float64) {
	if unrealizedPnLRatio < t.MaxDD {
		t.MaxDD = unrealizedPnLRatio
	}
}
