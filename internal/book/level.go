// Package book implements the dense, fixed-width order-book state engine:
// a sorted-slice-per-side structure with binary-search insert/remove that
// enforces the exactly-400-levels-per-side invariant after every delta.
package book

import "marketpipeline/internal/errors"

// LevelsPerSide is the invariant level count each side must hold after
// every successfully applied snapshot or delta.
const LevelsPerSide = 400

// Epsilon is the smallest magnitude treated as non-zero throughout the
// book and feature math.
const Epsilon = 1e-8

// ErrLevelCount is returned when a side does not hold exactly
// LevelsPerSide entries after a snapshot or delta is applied. The caller
// must abort the session and require a fresh snapshot.
var ErrLevelCount = errors.New("book: side does not hold exactly 400 levels")

// ErrMissingSnapshot is returned when a delta arrives before any
// snapshot has initialized the book.
var ErrMissingSnapshot = errors.New("book: delta received before snapshot")

// Level is one row of the order book: a price with its resting volume and
// order count. A level with Volume <= 0 must never be retained.
type Level struct {
	Price      float64
	Volume     float64
	OrderCount float64
}
