package models

import "fmt"

// BookLevel is one resting price level. A size of zero or less removes the level.
type BookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// BookUpdateType distinguishes wholesale snapshots from incremental deltas.
type BookUpdateType string

const (
	BookSnapshot BookUpdateType = "snapshot"
	BookDelta    BookUpdateType = "delta"
)

// BookUpdate is one order-book message.
type BookUpdate struct {
	Ts   float64        `json:"ts"`
	Type BookUpdateType `json:"type"`
	Bids []BookLevel    `json:"bids"`
	Asks []BookLevel    `json:"asks"`
}

// Validate checks the update type and that every level has a positive price.
func (u BookUpdate) Validate() error {
	if u.Type != BookSnapshot && u.Type != BookDelta {
		return fmt.Errorf("%w: unknown book update type %q", ErrMalformedInput, u.Type)
	}
	for _, side := range [][]BookLevel{u.Bids, u.Asks} {
		for _, lvl := range side {
			if !(lvl.Price > 0) {
				return fmt.Errorf("%w: book level price must be positive, got %v", ErrMalformedInput, lvl.Price)
			}
		}
	}
	return nil
}
