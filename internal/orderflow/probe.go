package orderflow

import (
	"fmt"

	"github.com/rewired-gh/sweepscope/internal/models"
	"github.com/rewired-gh/sweepscope/internal/window"
)

// Hint is the naive buy-share direction of the shortest flow window.
type Hint int8

const (
	HintNone  Hint = 0
	HintLong  Hint = 1
	HintShort Hint = -1
)

func (h Hint) String() string {
	switch h {
	case HintLong:
		return "LONG"
	case HintShort:
		return "SHORT"
	default:
		return "NONE"
	}
}

// MarshalText renders the hint name in JSON and YAML.
func (h Hint) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// Extreme reports whether the mid is at the high or low of a trailing window.
type Extreme struct {
	Window  float64 `json:"window"`
	NewHigh bool    `json:"new_high"`
	NewLow  bool    `json:"new_low"`
}

// Pulse is one consolidated probe report.
type Pulse struct {
	Ts          float64     `json:"ts"`
	Mid         float64     `json:"mid"`
	MidFromBook bool        `json:"mid_from_book"`
	BestBid     float64     `json:"best_bid,omitempty"`
	BestAsk     float64     `json:"best_ask,omitempty"`
	Flow        FlowSummary `json:"flow"`
	Depth       []BandDepth `json:"depth"`
	Run         *Run        `json:"run,omitempty"`
	Hint        Hint        `json:"hint"`
	Extremes    []Extreme   `json:"extremes,omitempty"`
}

// WeakBands returns the bands where a weak side was flagged.
func (p Pulse) WeakBands() []BandDepth {
	var out []BandDepth
	for _, d := range p.Depth {
		if d.Weak != WeakNone {
			out = append(out, d)
		}
	}
	return out
}

// ProbeConfig configures a Probe. Times are in seconds; Bands are fractions
// (0.001 is 0.1%).
type ProbeConfig struct {
	Windows        []float64 `mapstructure:"windows"`
	Bands          []float64 `mapstructure:"bands"`
	MinInterval    float64   `mapstructure:"min_interval"`
	WeakRatio      float64   `mapstructure:"weak_ratio"`
	RunShare       float64   `mapstructure:"run_share"`
	ExtremeWindows []float64 `mapstructure:"extreme_windows"`
}

// DefaultProbeConfig returns 1s/3s/10s flow windows, 0.1%/0.3%/0.5% bands,
// one pulse per second and 20s/30s extremes.
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		Windows:        []float64{1, 3, 10},
		Bands:          []float64{0.001, 0.003, 0.005},
		MinInterval:    1,
		WeakRatio:      DefaultWeakRatio,
		RunShare:       DefaultRunShare,
		ExtremeWindows: []float64{20, 30},
	}
}

// Validate checks config ranges.
func (c ProbeConfig) Validate() error {
	if len(c.Windows) == 0 {
		return fmt.Errorf("probe.windows must not be empty")
	}
	for _, b := range c.Bands {
		if !(b > 0 && b < 1) {
			return fmt.Errorf("probe.bands must be in (0, 1), got %v", b)
		}
	}
	if c.MinInterval < 0 {
		return fmt.Errorf("probe.min_interval must not be negative")
	}
	if !(c.WeakRatio > 0 && c.WeakRatio < 1) {
		return fmt.Errorf("probe.weak_ratio must be in (0, 1), got %v", c.WeakRatio)
	}
	if !(c.RunShare > 0.5 && c.RunShare <= 1) {
		return fmt.Errorf("probe.run_share must be in (0.5, 1], got %v", c.RunShare)
	}
	for _, w := range c.ExtremeWindows {
		if !(w > 0) {
			return fmt.Errorf("probe.extreme_windows must be positive, got %v", w)
		}
	}
	return nil
}

// Probe owns a flow tracker, an order book and the run history of one symbol.
// Trades and book updates only update state; Poll builds a pulse no more often
// than MinInterval. A Probe must be fed from a single goroutine.
type Probe struct {
	cfg      ProbeConfig
	flow     *AggFlowTracker
	book     *OrderBook
	runs     *RunDetector
	extremes []*window.RollingExtreme

	lastPrice float64
	hasPrice  bool
	lastEmit  float64
	emitted   bool
}

// NewProbe validates cfg and returns a probe.
func NewProbe(cfg ProbeConfig) (*Probe, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	flow, err := NewAggFlowTracker(cfg.Windows)
	if err != nil {
		return nil, err
	}
	p := &Probe{
		cfg:  cfg,
		flow: flow,
		book: NewOrderBook(),
		runs: NewRunDetector(cfg.RunShare),
	}
	for _, w := range cfg.ExtremeWindows {
		p.extremes = append(p.extremes, window.NewRollingExtreme(w))
	}
	return p, nil
}

// OnTrade records one trade. Malformed or out-of-order trades are rejected.
func (p *Probe) OnTrade(t models.Tick) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := p.flow.Record(t.Ts, t.Side, t.Volume); err != nil {
		return err
	}
	p.lastPrice, p.hasPrice = t.Price, true
	return nil
}

// OnBook applies a snapshot or delta.
func (p *Probe) OnBook(u models.BookUpdate) error {
	return p.book.Apply(u)
}

// OnLastPrice sets the fallback mid used while the book is incomplete.
func (p *Probe) OnLastPrice(price float64) {
	if price > 0 {
		p.lastPrice, p.hasPrice = price, true
	}
}

// Poll returns a pulse if at least MinInterval has passed since the previous one.
// Without a book mid or a last trade price no pulse is built and the interval
// is not consumed.
func (p *Probe) Poll(now float64) (Pulse, bool) {
	if p.emitted && now-p.lastEmit < p.cfg.MinInterval {
		return Pulse{}, false
	}

	pulse := Pulse{Ts: now}
	if mid, ok := p.book.Mid(); ok {
		pulse.Mid, pulse.MidFromBook = mid, true
	} else if p.hasPrice {
		pulse.Mid = p.lastPrice
	} else {
		return Pulse{}, false
	}
	pulse.BestBid, _ = p.book.BestBid()
	pulse.BestAsk, _ = p.book.BestAsk()

	pulse.Flow = p.flow.Summarize(now)
	if short, ok := pulse.Flow.Shortest(); ok {
		if run, ok := p.runs.Observe(now, short); ok {
			pulse.Run = &run
		}
		switch {
		case short.Total <= 0:
			pulse.Hint = HintNone
		case short.BuyShare > 0.5:
			pulse.Hint = HintLong
		case short.BuyShare < 0.5:
			pulse.Hint = HintShort
		}
	}

	for _, pct := range p.cfg.Bands {
		bid, ask := p.book.LiquidityWithin(pct)
		pulse.Depth = append(pulse.Depth, ClassifyBand(pct, bid, ask, p.cfg.WeakRatio))
	}

	for _, ex := range p.extremes {
		ex.Add(now, pulse.Mid)
		pulse.Extremes = append(pulse.Extremes, Extreme{
			Window:  ex.Span(),
			NewHigh: ex.IsHigh(pulse.Mid),
			NewLow:  ex.IsLow(pulse.Mid),
		})
	}

	p.lastEmit, p.emitted = now, true
	return pulse, true
}
