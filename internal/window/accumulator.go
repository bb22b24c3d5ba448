// Package window keeps a time-bounded suffix of trade observations and answers
// aggregate queries (volume by side, count, high/low) as of a given time.
package window

import (
	"fmt"
	"math"

	"github.com/rewired-gh/sweepscope/internal/models"
)

// Observation is one timestamped trade retained by an Accumulator.
type Observation struct {
	Ts     float64
	Price  float64
	Volume float64
	Side   models.Side
}

// FromTick converts a trade tick to an observation.
func FromTick(t models.Tick) Observation {
	return Observation{Ts: t.Ts, Price: t.Price, Volume: t.Volume, Side: t.Side}
}

// Totals are aggregate statistics over a set of observations.
type Totals struct {
	Buy   float64
	Sell  float64
	Count int
	High  float64
	Low   float64
}

// Volume returns buy plus sell volume.
func (t Totals) Volume() float64 {
	return t.Buy + t.Sell
}

// Accumulator retains observations no older than Horizon seconds relative to the
// newest pushed timestamp or the latest Prune time. It is not safe for concurrent use.
type Accumulator struct {
	horizon float64
	obs     []Observation
	head    int

	buy   float64
	sell  float64
	last  float64
	start bool
}

// NewAccumulator creates an accumulator keeping horizon seconds of history.
func NewAccumulator(horizon float64) (*Accumulator, error) {
	if !(horizon > 0) || math.IsInf(horizon, 0) {
		return nil, fmt.Errorf("window horizon must be positive, got %v", horizon)
	}
	return &Accumulator{horizon: horizon}, nil
}

// Push appends an observation and evicts everything older than ts - horizon.
// A timestamp earlier than the previous push is rejected with models.ErrOutOfOrder
// and leaves the accumulator unchanged.
func (a *Accumulator) Push(o Observation) error {
	if a.start && o.Ts < a.last {
		return fmt.Errorf("%w: observation at %.6f after %.6f", models.ErrOutOfOrder, o.Ts, a.last)
	}
	a.start = true
	a.last = o.Ts
	a.obs = append(a.obs, o)
	if o.Side == models.SideBuy {
		a.buy += o.Volume
	} else {
		a.sell += o.Volume
	}
	a.Prune(o.Ts)
	return nil
}

// Prune evicts observations with ts < now - horizon.
func (a *Accumulator) Prune(now float64) {
	cutoff := now - a.horizon
	for a.head < len(a.obs) && a.obs[a.head].Ts < cutoff {
		o := a.obs[a.head]
		if o.Side == models.SideBuy {
			a.buy -= o.Volume
		} else {
			a.sell -= o.Volume
		}
		a.obs[a.head] = Observation{}
		a.head++
	}

	if a.head == len(a.obs) {
		a.obs = a.obs[:0]
		a.head = 0
		a.buy, a.sell = 0, 0
		return
	}
	// Compact once the dead prefix dominates the backing array.
	if a.head > 64 && a.head*2 > len(a.obs) {
		n := copy(a.obs, a.obs[a.head:])
		clear(a.obs[n:])
		a.obs = a.obs[:n]
		a.head = 0
	}
}

// Len returns the number of retained observations.
func (a *Accumulator) Len() int {
	return len(a.obs) - a.head
}

// Oldest returns the oldest retained observation.
func (a *Accumulator) Oldest() (Observation, bool) {
	if a.Len() == 0 {
		return Observation{}, false
	}
	return a.obs[a.head], true
}

// Totals returns running buy/sell sums and count over all retained observations.
// High and Low are not tracked incrementally and are left zero; use Window for them.
func (a *Accumulator) Totals() Totals {
	buy, sell := a.buy, a.sell
	// Running subtraction can leave tiny negative residue.
	if buy < 0 {
		buy = 0
	}
	if sell < 0 {
		sell = 0
	}
	return Totals{Buy: buy, Sell: sell, Count: a.Len()}
}

// Window aggregates retained observations whose age now - ts lies in [0, span].
// Observations stamped after now are ignored.
func (a *Accumulator) Window(now, span float64) Totals {
	var t Totals
	for i := len(a.obs) - 1; i >= a.head; i-- {
		o := a.obs[i]
		age := now - o.Ts
		if age < 0 {
			continue
		}
		if age > span {
			break
		}
		if o.Side == models.SideBuy {
			t.Buy += o.Volume
		} else {
			t.Sell += o.Volume
		}
		if t.Count == 0 || o.Price > t.High {
			t.High = o.Price
		}
		if t.Count == 0 || o.Price < t.Low {
			t.Low = o.Price
		}
		t.Count++
	}
	return t
}

// Reset drops all observations and the ordering watermark.
func (a *Accumulator) Reset() {
	clear(a.obs)
	a.obs = a.obs[:0]
	a.head = 0
	a.buy, a.sell = 0, 0
	a.last = 0
	a.start = false
}
