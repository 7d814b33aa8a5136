package book

// historyDepth is the number of past side snapshots retained per side.
// Nothing in the current feature set reads History yet; it exists
// because §4.1.6 requires it be retained for parity with a future
// change-feature (e.g. an order-count delta over the last snapshot)
// without altering the wire format.
const historyDepth = 10

// Snapshot is a point-in-time, copy-on-write pair of side snapshots.
type Snapshot struct {
	Bids []Level
	Asks []Level
}

// History is a ring buffer of the last historyDepth book snapshots.
type History struct {
	buf   [historyDepth]Snapshot
	next  int
	count int
}

// NewHistory creates an empty ring buffer.
func NewHistory() *History {
	return &History{}
}

// Push records a new snapshot, evicting the oldest once the buffer is full.
func (h *History) Push(bids, asks []Level) {
	h.buf[h.next] = Snapshot{Bids: bids, Asks: asks}
	h.next = (h.next + 1) % historyDepth
	if h.count < historyDepth {
		h.count++
	}
}

// Len returns the number of snapshots currently retained.
func (h *History) Len() int {
	return h.count
}

// At returns the snapshot that is `agoSteps` pushes in the past (0 is the
// most recent). ok is false if fewer than agoSteps+1 snapshots exist yet.
func (h *History) At(agoSteps int) (Snapshot, bool) {
	if agoSteps < 0 || agoSteps >= h.count {
		return Snapshot{}, false
	}
	idx := (h.next - 1 - agoSteps + historyDepth) % historyDepth
	return h.buf[idx], true
}
