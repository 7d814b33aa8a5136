package relay

// seenSetCapacity bounds the at-most-once guard at 2^16 entries, the size
// of the whole uint16 state_id space (§9.1, resolving the open question in
// spec.md §9). With only 2^16 distinct ids the set never grows past the
// bound, so nothing is evicted: once a state_id is marked, reports that
// carry the same id after a sequence wrap are suppressed as well.
const seenSetCapacity = 65536

// seenSet is a bounded LRU-by-insertion-order set of state_ids, used to
// guarantee at most one per-execution report per state_id.
type seenSet struct {
	order   []uint16
	present map[uint16]struct{}
}

func newSeenSet() *seenSet {
	return &seenSet{
		order:   make([]uint16, 0, seenSetCapacity),
		present: make(map[uint16]struct{}, seenSetCapacity),
	}
}

// MarkIfUnseen records id if it has not been seen before and returns
// true. If id was already present it returns false and leaves the set
// unchanged.
func (s *seenSet) MarkIfUnseen(id uint16) bool {
	if _, ok := s.present[id]; ok {
		return false
	}
	s.order = append(s.order, id)
	s.present[id] = struct{}{}
	if len(s.order) > seenSetCapacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.present, oldest)
	}
	return true
}
