package lifecycle

import (
	"sort"
	"sync"
)

// FillReorderWindowMillis is the default out-of-order reorder window
// for the private fill stream (§5, §9 "Timestamped buffer window").
const FillReorderWindowMillis = 2000

// fillBuffer holds fills written by the exchange-callback thread until
// they are older than the reorder window, then releases them in
// fill_time order to the drain thread (§5 ownership table). Push and
// Drain run on different goroutines (HandleFill on the exchange event
// loop, DrainFills on its own ticker), so pending is guarded by the
// same mutex the OrdersBook uses for every other region §5 calls
// cross-goroutine, rather than one of its own.
type fillBuffer struct {
	mu           *sync.Mutex
	windowMillis int64
	pending      []FillEvent
}

func newFillBuffer(windowMillis int64, mu *sync.Mutex) *fillBuffer {
	if windowMillis <= 0 {
		windowMillis = FillReorderWindowMillis
	}
	return &fillBuffer{mu: mu, windowMillis: windowMillis}
}

// Push appends a fill event to the buffer.
func (b *fillBuffer) Push(ev FillEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, ev)
}

// Drain releases, in non-decreasing fill_time order, every buffered
// event old enough (nowMillis - timestamp >= windowMillis) to be
// considered settled against reordering.
func (b *fillBuffer) Drain(nowMillis int64) []FillEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		return nil
	}
	sort.SliceStable(b.pending, func(i, j int) bool {
		return b.pending[i].Timestamp < b.pending[j].Timestamp
	})

	cut := 0
	for cut < len(b.pending) && nowMillis-b.pending[cut].Timestamp >= b.windowMillis {
		cut++
	}
	ready := make([]FillEvent, cut)
	copy(ready, b.pending[:cut])
	b.pending = b.pending[cut:]
	return ready
}

// Len reports how many fills are currently buffered.
func (b *fillBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
