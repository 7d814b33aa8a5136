package book

// Book is the two-sided, dense order book maintained by the Depth Engine's
// single owning worker goroutine.
type Book struct {
	Bids      *Side
	Asks      *Side
	History   *History
	snapshotted bool
}

// NewBook creates an empty book with its rolling side-snapshot history.
func NewBook() *Book {
	return &Book{
		Bids:    NewSide(true),
		Asks:    NewSide(false),
		History: NewHistory(),
	}
}

// ApplySnapshot replaces both sides from a full snapshot frame and
// validates the 400-level invariant. A violation is fatal for the session
// per §4.1 rule 1 — no silent padding.
func (b *Book) ApplySnapshot(bids, asks []Level) error {
	b.Bids.LoadSnapshot(bids)
	b.Asks.LoadSnapshot(asks)
	b.snapshotted = true
	if err := b.checkInvariant(); err != nil {
		return err
	}
	b.History.Push(b.Bids.Snapshot(), b.Asks.Snapshot())
	return nil
}

// ApplyDelta applies an incremental update batch to both sides and
// re-asserts the 400-level invariant. On violation the book state is left
// as-is; the caller must abort the session and force a re-snapshot.
func (b *Book) ApplyDelta(bids, asks []Level) error {
	if !b.snapshotted {
		return ErrMissingSnapshot
	}
	for _, lvl := range bids {
		b.Bids.ApplyOne(lvl)
	}
	for _, lvl := range asks {
		b.Asks.ApplyOne(lvl)
	}
	if err := b.checkInvariant(); err != nil {
		return err
	}
	b.History.Push(b.Bids.Snapshot(), b.Asks.Snapshot())
	return nil
}

// Mid returns the mid price, or 0 if either side is empty.
func (b *Book) Mid() float64 {
	bid, okBid := b.Bids.Best()
	ask, okAsk := b.Asks.Best()
	if !okBid || !okAsk {
		return 0
	}
	return (bid.Price + ask.Price) / 2
}

func (b *Book) checkInvariant() error {
	if b.Bids.Len() != LevelsPerSide || b.Asks.Len() != LevelsPerSide {
		return ErrLevelCount
	}
	return nil
}
