package relay

// OrderSkeleton is one order's worth of correlation state kept while a
// trade is still in progress: the window of state_ids that produced the
// action, pending the execution fraction the closure report will attach.
type OrderSkeleton struct {
	ExchangeID        string
	StateID           uint16
	WindowStateIDs     []uint16
	ExecutionFraction float64
}

// TradeSkeleton is the in-progress aggregation of execution reports into
// a trade record for the training hook (§4.3 state: current_trade_skeleton).
type TradeSkeleton struct {
	orders       []OrderSkeleton
	byExchangeID map[string]int
}

func newTradeSkeleton() *TradeSkeleton {
	return &TradeSkeleton{byExchangeID: make(map[string]int)}
}

// AddOrder appends an order to the skeleton. A duplicate exchange id is
// ignored and reported via the ok return so the caller can log it.
func (s *TradeSkeleton) AddOrder(o OrderSkeleton) (ok bool) {
	if _, exists := s.byExchangeID[o.ExchangeID]; exists {
		return false
	}
	s.byExchangeID[o.ExchangeID] = len(s.orders)
	s.orders = append(s.orders, o)
	return true
}

// SetExecutionFraction attaches the closure-time execution fraction to
// the order identified by exchange id, if it is part of this skeleton.
func (s *TradeSkeleton) SetExecutionFraction(exchangeID string, fraction float64) {
	idx, ok := s.byExchangeID[exchangeID]
	if !ok {
		return
	}
	s.orders[idx].ExecutionFraction = fraction
}

// Orders returns every order recorded in this skeleton.
func (s *TradeSkeleton) Orders() []OrderSkeleton {
	return s.orders
}
