package book

import "sort"

// Side is one ordered half of the book: bids descending by price, asks
// ascending. After every applied delta it must hold exactly LevelsPerSide
// entries; the caller (Book) is responsible for checking that invariant
// since a single delta batch touches both sides.
type Side struct {
	isBid  bool
	levels []Level
}

// NewSide creates an empty side. isBid selects descending (bid) or
// ascending (ask) price order.
func NewSide(isBid bool) *Side {
	return &Side{isBid: isBid, levels: make([]Level, 0, LevelsPerSide)}
}

// Len returns the current number of levels.
func (s *Side) Len() int {
	return len(s.levels)
}

// Best returns the best (first) level, if any.
func (s *Side) Best() (Level, bool) {
	if len(s.levels) == 0 {
		return Level{}, false
	}
	return s.levels[0], true
}

// Levels returns the underlying sorted slice. Callers must not mutate it;
// the book is owned by a single worker goroutine and the publisher reads
// this slice synchronously right after the mutation that produced it, so
// no copy is made (per the concurrency model, §5).
func (s *Side) Levels() []Level {
	return s.levels
}

// Snapshot returns a defensive copy, used by History to retain rolling
// side snapshots without aliasing the live slice.
func (s *Side) Snapshot() []Level {
	out := make([]Level, len(s.levels))
	copy(out, s.levels)
	return out
}

// LoadSnapshot replaces the side's contents from a raw snapshot frame.
// Levels with Volume <= 0 are discarded; duplicate prices keep the last
// occurrence. The result is sorted into the side's native order.
func (s *Side) LoadSnapshot(raw []Level) {
	byPrice := make(map[float64]Level, len(raw))
	for _, lvl := range raw {
		if lvl.Volume <= 0 {
			continue
		}
		byPrice[lvl.Price] = lvl
	}
	out := make([]Level, 0, len(byPrice))
	for _, lvl := range byPrice {
		out = append(out, lvl)
	}
	sort.Slice(out, func(i, j int) bool {
		return s.before(out[i].Price, out[j].Price)
	})
	s.levels = out
}

// ApplyOne applies a single delta row: removes the price if new volume is
// zero, overwrites it in place if present and non-zero, or inserts it at
// its sorted position if absent and non-zero.
func (s *Side) ApplyOne(lvl Level) {
	idx, found := s.search(lvl.Price)
	switch {
	case lvl.Volume <= 0:
		if found {
			s.levels = append(s.levels[:idx], s.levels[idx+1:]...)
		}
	case found:
		s.levels[idx].Volume = lvl.Volume
		s.levels[idx].OrderCount = lvl.OrderCount
	default:
		s.levels = append(s.levels, Level{})
		copy(s.levels[idx+1:], s.levels[idx:])
		s.levels[idx] = lvl
	}
}

// before reports whether price a sorts strictly before price b in this
// side's native order (descending for bids, ascending for asks).
func (s *Side) before(a, b float64) bool {
	if s.isBid {
		return a > b
	}
	return a < b
}

// search returns the index of price if present, and the insertion point
// that preserves sort order if not, via binary search.
func (s *Side) search(price float64) (idx int, found bool) {
	lo, hi := 0, len(s.levels)
	for lo < hi {
		mid := (lo + hi) / 2
		if s.before(s.levels[mid].Price, price) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(s.levels) && s.levels[lo].Price == price {
		return lo, true
	}
	return lo, false
}
