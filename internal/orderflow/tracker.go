// Package orderflow classifies short-term aggressor imbalance and order-book
// weakness from live trades and book updates.
package orderflow

import (
	"fmt"
	"sort"

	"github.com/rewired-gh/sweepscope/internal/models"
	"github.com/rewired-gh/sweepscope/internal/window"
)

// FlowSummary holds per-window flow statistics ordered by ascending window length.
type FlowSummary []models.FlowWindowStats

// Shortest returns the stats of the shortest window.
func (s FlowSummary) Shortest() (models.FlowWindowStats, bool) {
	if len(s) == 0 {
		return models.FlowWindowStats{}, false
	}
	return s[0], true
}

// AggFlowTracker sums aggressive buy and sell volume over several trailing windows.
type AggFlowTracker struct {
	windows []float64
	acc     *window.Accumulator
}

// NewAggFlowTracker creates a tracker for the given window lengths in seconds.
// Duplicates are removed and windows are sorted ascending.
func NewAggFlowTracker(windows []float64) (*AggFlowTracker, error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("at least one flow window is required")
	}
	ws := append([]float64(nil), windows...)
	sort.Float64s(ws)
	uniq := ws[:1]
	for _, w := range ws[1:] {
		if w != uniq[len(uniq)-1] {
			uniq = append(uniq, w)
		}
	}
	if !(uniq[0] > 0) {
		return nil, fmt.Errorf("flow windows must be positive, got %v", uniq[0])
	}
	acc, err := window.NewAccumulator(uniq[len(uniq)-1])
	if err != nil {
		return nil, err
	}
	return &AggFlowTracker{windows: uniq, acc: acc}, nil
}

// Record appends one trade and evicts observations older than ts - max(windows).
// A timestamp regression is rejected with models.ErrOutOfOrder.
func (t *AggFlowTracker) Record(ts float64, side models.Side, volume float64) error {
	return t.acc.Push(window.Observation{Ts: ts, Volume: volume, Side: side})
}

// Summarize prunes to now and returns stats per window over trades aged <= window.
func (t *AggFlowTracker) Summarize(now float64) FlowSummary {
	t.acc.Prune(now)
	out := make(FlowSummary, 0, len(t.windows))
	for _, w := range t.windows {
		tot := t.acc.Window(now, w)
		out = append(out, models.NewFlowWindowStats(w, tot.Buy, tot.Sell))
	}
	return out
}
