package orderflow

import (
	"github.com/rewired-gh/sweepscope/internal/models"
)

// OrderBook is a light L2 book keyed by price.
type OrderBook struct {
	bids map[float64]float64
	asks map[float64]float64
}

// NewOrderBook returns an empty book.
func NewOrderBook() *OrderBook {
	return &OrderBook{
		bids: make(map[float64]float64),
		asks: make(map[float64]float64),
	}
}

// Apply routes an update to ApplySnapshot or ApplyDelta after validating it.
func (b *OrderBook) Apply(u models.BookUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if u.Type == models.BookSnapshot {
		b.ApplySnapshot(u.Bids, u.Asks)
	} else {
		b.ApplyDelta(u.Bids, u.Asks)
	}
	return nil
}

// ApplySnapshot replaces both sides, dropping non-positive sizes.
func (b *OrderBook) ApplySnapshot(bids, asks []models.BookLevel) {
	clear(b.bids)
	clear(b.asks)
	for _, l := range bids {
		if l.Size > 0 {
			b.bids[l.Price] = l.Size
		}
	}
	for _, l := range asks {
		if l.Size > 0 {
			b.asks[l.Price] = l.Size
		}
	}
}

// ApplyDelta upserts levels and removes those with size <= 0.
func (b *OrderBook) ApplyDelta(bids, asks []models.BookLevel) {
	upsert(b.bids, bids)
	upsert(b.asks, asks)
}

func upsert(side map[float64]float64, levels []models.BookLevel) {
	for _, l := range levels {
		if l.Size <= 0 {
			delete(side, l.Price)
		} else {
			side[l.Price] = l.Size
		}
	}
}

// BestBid returns the highest bid price.
func (b *OrderBook) BestBid() (float64, bool) {
	best, ok := 0.0, false
	for p := range b.bids {
		if !ok || p > best {
			best, ok = p, true
		}
	}
	return best, ok
}

// BestAsk returns the lowest ask price.
func (b *OrderBook) BestAsk() (float64, bool) {
	best, ok := 0.0, false
	for p := range b.asks {
		if !ok || p < best {
			best, ok = p, true
		}
	}
	return best, ok
}

// Mid returns the midpoint of best bid and best ask; false if either side is empty.
func (b *OrderBook) Mid() (float64, bool) {
	bid, ok := b.BestBid()
	if !ok {
		return 0, false
	}
	ask, ok := b.BestAsk()
	if !ok {
		return 0, false
	}
	return 0.5 * (bid + ask), true
}

// LiquidityWithin returns cumulative bid size at prices >= mid*(1-pct) and ask
// size at prices <= mid*(1+pct). Both are 0 when the book has no mid.
func (b *OrderBook) LiquidityWithin(pct float64) (bid, ask float64) {
	mid, ok := b.Mid()
	if !ok {
		return 0, 0
	}
	lower := mid * (1 - pct)
	upper := mid * (1 + pct)
	for p, s := range b.bids {
		if p >= lower {
			bid += s
		}
	}
	for p, s := range b.asks {
		if p <= upper {
			ask += s
		}
	}
	return bid, ask
}
