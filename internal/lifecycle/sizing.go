package lifecycle

import "math"

// MarginCapPercent is the fraction of account balance (as a percent)
// made available as margin for one side of the book (§4.4.2).
const MarginCapPercent = 20.0

// Leverage is the fixed leverage multiplier applied to the margin cap.
const Leverage = 100.0

// MinContract is the smallest order size the exchange will accept.
const MinContract = 0.1

// MaxPerSide returns the largest per-side position size the account
// balance supports at the current mid price, rounded down to one
// decimal place (§4.4.2).
func MaxPerSide(balance, mid float64) float64 {
	if mid <= 0 {
		return 0
	}
	raw := (balance * MarginCapPercent / 100) * Leverage / (mid / 100)
	return math.Floor(raw*10) / 10
}

// SizingPolicy evaluates a requested order size against the per-side
// margin cap before submission.
type SizingPolicy struct{}

// Evaluate projects the per-side exposure that would result if the
// requested size filled completely (existingSideExposure plus the
// request). If the projection stays within the margin cap, the request
// is accepted unchanged. Otherwise the size is reduced by the overrun;
// if the reduced size falls below MinContract, the order is rejected
// outright rather than submitted undersized.
func (SizingPolicy) Evaluate(requestedSize, existingSideExposure, balance, mid float64) (adjustedSize float64, accepted bool) {
	maxPerSide := MaxPerSide(balance, mid)
	projected := existingSideExposure + requestedSize
	if projected <= maxPerSide+Epsilon {
		return requestedSize, true
	}

	overrun := projected - maxPerSide
	adjusted := requestedSize - overrun
	if adjusted < MinContract {
		return 0, false
	}
	return adjusted, true
}
