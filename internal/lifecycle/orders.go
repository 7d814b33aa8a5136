package lifecycle

import "sync"

// ActiveOrdersMax is the size of the active-orders deque. Exceeding it
// evicts the oldest unfilled live order into the cancel queue rather
// than growing without bound (§4.4.1, §4.4.5).
const ActiveOrdersMax = 300

// OrdersBook owns order identity and lifecycle: a bounded active deque,
// a durable exchange-id -> local-id recognition map (kept even after an
// order leaves the active window, so a late fill is still recognized),
// and a queue of orders that need a cancel request sent.
type OrdersBook struct {
	mu sync.Mutex

	nextLocalID uint32
	active      []*Order
	byLocalID   map[uint32]*Order
	knownOrders map[string]uint32
	cancelQueue []*Order
}

// NewOrdersBook constructs an empty OrdersBook.
func NewOrdersBook() *OrdersBook {
	return &OrdersBook{
		byLocalID:   make(map[uint32]*Order),
		knownOrders: make(map[string]uint32),
	}
}

// NewLocalID returns the next unused local order id.
func (b *OrdersBook) NewLocalID() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextLocalID++
	return b.nextLocalID
}

// Submit registers a newly-placed order, pushing the oldest unfilled
// live order into the cancel queue if the active deque is already at
// ActiveOrdersMax.
func (b *OrdersBook) Submit(o *Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.byLocalID[o.LocalID] = o
	if o.ExchangeID != "" {
		b.knownOrders[o.ExchangeID] = o.LocalID
	}
	b.active = append(b.active, o)
	b.evictIfOverCapLocked()
}

// AssignExchangeID records the exchange's order id for a previously
// submitted order, once it is known (ack arrives after submission).
func (b *OrdersBook) AssignExchangeID(localID uint32, exchangeID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.knownOrders[exchangeID] = localID
	if o, ok := b.byLocalID[localID]; ok {
		o.ExchangeID = exchangeID
	}
}

func (b *OrdersBook) evictIfOverCapLocked() {
	for len(b.active) > ActiveOrdersMax {
		var victimIdx = -1
		for i, o := range b.active {
			if o.State != Filled && o.State != Canceled && o.State != Rejected {
				victimIdx = i
				break
			}
		}
		if victimIdx < 0 {
			// every active order is terminal; drop the oldest.
			victimIdx = 0
		}
		victim := b.active[victimIdx]
		b.active = append(b.active[:victimIdx], b.active[victimIdx+1:]...)
		if victim.State != Filled && victim.State != Canceled && victim.State != Rejected {
			b.cancelQueue = append(b.cancelQueue, victim)
		}
	}
}

// Lookup resolves an exchange id to the order it belongs to. ok is
// false for an exchange id that was never submitted by this engine, in
// which case the fill must be ignored (§4.4.3 step 1).
func (b *OrdersBook) Lookup(exchangeID string) (order *Order, isActive bool, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lookupLocked(exchangeID)
}

func (b *OrdersBook) lookupLocked(exchangeID string) (order *Order, isActive bool, ok bool) {
	localID, known := b.knownOrders[exchangeID]
	if !known {
		return nil, false, false
	}
	order, ok = b.byLocalID[localID]
	if !ok {
		return nil, false, false
	}
	for _, a := range b.active {
		if a == order {
			return order, true, true
		}
	}
	return order, false, true
}

// Reactivate reinserts an order that was evicted to the cancel queue
// (or otherwise fell out of the active deque) back into the active
// deque, sorted by fill time, because a late fill arrived for it
// (§4.4.3 step 1, "recognition").
func (b *OrdersBook) Reactivate(o *Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reactivateLocked(o)
}

func (b *OrdersBook) reactivateLocked(o *Order) {
	for i, c := range b.cancelQueue {
		if c == o {
			b.cancelQueue = append(b.cancelQueue[:i], b.cancelQueue[i+1:]...)
			break
		}
	}
	for _, a := range b.active {
		if a == o {
			return
		}
	}

	idx := len(b.active)
	for i, a := range b.active {
		if a.FillTime > o.FillTime {
			idx = i
			break
		}
	}
	b.active = append(b.active, nil)
	copy(b.active[idx+1:], b.active[idx:])
	b.active[idx] = o
	b.evictIfOverCapLocked()
}

// Settle marks a fully filled order terminal and drops it from the
// active deque; its exchange-id recognition mapping is retained.
func (b *OrdersBook) Settle(o *Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settleLocked(o)
}

func (b *OrdersBook) settleLocked(o *Order) {
	o.State = Filled
	for i, a := range b.active {
		if a == o {
			b.active = append(b.active[:i], b.active[i+1:]...)
			return
		}
	}
}

// PendingCancels returns a snapshot of the cancel queue without
// draining it, for inspection.
func (b *OrdersBook) PendingCancels() []*Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Order, len(b.cancelQueue))
	copy(out, b.cancelQueue)
	return out
}

// PopCancel removes and returns the front of the cancel queue, so the
// cancellation sub-protocol can send one request at a time per tick
// (§4.4.5).
func (b *OrdersBook) PopCancel() (*Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.cancelQueue) == 0 {
		return nil, false
	}
	o := b.cancelQueue[0]
	b.cancelQueue = b.cancelQueue[1:]
	return o, true
}

// ConfirmCancel removes the pending cancel entry for exchangeID and
// marks its order Canceled in a single critical section, so the lookup
// and the state write cannot interleave with a concurrent fill on the
// same order (§4.4.5, §5 ownership table). ok is false if no matching
// entry is pending, which happens when a late fill already settled the
// order out of the cancel queue.
func (b *OrdersBook) ConfirmCancel(exchangeID string) (order *Order, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, o := range b.cancelQueue {
		if o.ExchangeID == exchangeID {
			b.cancelQueue = append(b.cancelQueue[:i], b.cancelQueue[i+1:]...)
			o.State = Canceled
			return o, true
		}
	}
	return nil, false
}

// Active returns a snapshot of the active-orders deque.
func (b *OrdersBook) Active() []*Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Order, len(b.active))
	copy(out, b.active)
	return out
}

// ActiveSideExposure sums the intended volume of live (not yet fully
// filled) active orders on the given side, the figure the sizing policy
// projects against (§4.4.2).
func (b *OrdersBook) ActiveSideExposure(side Side) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var sum float64
	for _, o := range b.active {
		if o.Side == side {
			sum += o.IntendedVolume
		}
	}
	return sum
}
