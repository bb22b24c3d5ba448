package orderflow

import (
	"math"

	"github.com/rewired-gh/sweepscope/internal/models"
)

const (
	biasHistory = 5
	runLength   = 3
	shareEps    = 1e-9

	// DefaultRunShare is the decisive buy share for an Up run (1 - share for Down).
	DefaultRunShare = 0.7
	// DefaultWeakRatio flags a side whose depth is below this fraction of the other.
	DefaultWeakRatio = 0.4
)

// BiasSample is one directional reading of the shortest flow window.
type BiasSample struct {
	Ts       float64          `json:"ts"`
	Dir      models.Direction `json:"dir"`
	Net      float64          `json:"net"`
	BuyShare float64          `json:"buy_share"`
}

// Run is a confirmed directional run.
type Run struct {
	Dir      models.Direction `json:"dir"`
	Net      float64          `json:"net"`
	BuyShare float64          `json:"buy_share"`
}

// DetectRun confirms a run when the last three samples share the same non-zero
// direction, their absolute net is non-decreasing, and the newest buy share is
// >= share for Up or its sell share (1 - buy share) is >= share for Down.
func DetectRun(samples []BiasSample, share float64) (Run, bool) {
	if len(samples) < runLength {
		return Run{}, false
	}
	recent := samples[len(samples)-runLength:]
	dir := recent[0].Dir
	if dir == models.DirectionNone {
		return Run{}, false
	}
	for _, s := range recent[1:] {
		if s.Dir != dir {
			return Run{}, false
		}
	}
	for k := 1; k < runLength; k++ {
		if math.Abs(recent[k-1].Net) > math.Abs(recent[k].Net) {
			return Run{}, false
		}
	}
	last := recent[runLength-1]
	decisive := last.BuyShare >= share-shareEps
	if dir == models.DirectionDown {
		decisive = 1-last.BuyShare >= share-shareEps
	}
	if !decisive {
		return Run{}, false
	}
	return Run{Dir: dir, Net: last.Net, BuyShare: last.BuyShare}, true
}

// RunDetector keeps the last five bias samples.
type RunDetector struct {
	share   float64
	samples []BiasSample
}

// NewRunDetector creates a detector with the given decisive share.
func NewRunDetector(share float64) *RunDetector {
	return &RunDetector{share: share, samples: make([]BiasSample, 0, biasHistory)}
}

// Observe records a sample derived from flow stats and evaluates the run rule.
// Windows with no volume or zero net are not recorded.
func (r *RunDetector) Observe(ts float64, st models.FlowWindowStats) (Run, bool) {
	if st.Total <= 0 || st.Net == 0 {
		return Run{}, false
	}
	dir := models.DirectionUp
	if st.Net < 0 {
		dir = models.DirectionDown
	}
	if len(r.samples) == biasHistory {
		copy(r.samples, r.samples[1:])
		r.samples = r.samples[:biasHistory-1]
	}
	r.samples = append(r.samples, BiasSample{Ts: ts, Dir: dir, Net: st.Net, BuyShare: st.BuyShare})
	return DetectRun(r.samples, r.share)
}

// WeakSide names the thinner side of the book within a band.
type WeakSide int8

const (
	WeakNone WeakSide = 0
	WeakBid  WeakSide = 1
	WeakAsk  WeakSide = -1
)

func (w WeakSide) String() string {
	switch w {
	case WeakBid:
		return "bid"
	case WeakAsk:
		return "ask"
	default:
		return "none"
	}
}

// MarshalText renders the side name in JSON and YAML.
func (w WeakSide) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// BandDepth is the bid/ask depth within pct of mid and its weak-side reading.
// Ratio is weak/strong depth and is 0 when no side is weak.
type BandDepth struct {
	Pct   float64  `json:"pct"`
	Bid   float64  `json:"bid"`
	Ask   float64  `json:"ask"`
	Weak  WeakSide `json:"weak"`
	Ratio float64  `json:"ratio"`
}

// ClassifyBand flags the bid as weak when bid < ratio*ask, or the ask when
// ask < ratio*bid. An empty side leaves the weak side undefined.
func ClassifyBand(pct, bid, ask, ratio float64) BandDepth {
	d := BandDepth{Pct: pct, Bid: bid, Ask: ask}
	if bid <= 0 || ask <= 0 {
		return d
	}
	switch {
	case bid < ratio*ask:
		d.Weak, d.Ratio = WeakBid, bid/ask
	case ask < ratio*bid:
		d.Weak, d.Ratio = WeakAsk, ask/bid
	}
	return d
}
