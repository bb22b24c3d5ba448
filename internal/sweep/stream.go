package sweep

import (
	"errors"
	"fmt"
	"math"

	"github.com/rewired-gh/sweepscope/internal/models"
	"github.com/rewired-gh/sweepscope/internal/window"
)

// Signal classifies the outcome of feeding one tick to a streaming detector.
type Signal int8

const (
	NoSignal  Signal = 0
	UpSweep   Signal = 1
	DownSweep Signal = -1
	// Spike is a volume burst without a dominant side; its event has direction 0.
	Spike Signal = 2
)

func (s Signal) String() string {
	switch s {
	case UpSweep:
		return "up_sweep"
	case DownSweep:
		return "down_sweep"
	case Spike:
		return "spike"
	default:
		return "no_signal"
	}
}

// Fired reports whether the signal carries an event.
func (s Signal) Fired() bool {
	return s != NoSignal
}

// TickSignalSource is a streaming sweep detector fed one tick at a time.
// LastEvent returns the most recently completed event; its Direction is 0 before
// any signal and for un-directional spikes.
type TickSignalSource interface {
	ProcessTick(t models.Tick) (Signal, error)
	LastEvent() models.SweepEvent
}

// StreamParams configures DualWindowModel.
type StreamParams struct {
	ShortWindow    float64 `mapstructure:"short_window"`
	LongWindow     float64 `mapstructure:"long_window"`
	ThresholdRatio float64 `mapstructure:"threshold_ratio"`
	// SideDominance is how many times one side's short-window volume must exceed
	// the other's for a directional signal.
	SideDominance float64 `mapstructure:"side_dominance"`
}

// DefaultStreamParams returns the 0.3s / 10s / 3x configuration.
func DefaultStreamParams() StreamParams {
	return StreamParams{
		ShortWindow:    0.3,
		LongWindow:     10,
		ThresholdRatio: 3,
		SideDominance:  1.5,
	}
}

// Validate checks parameter ranges.
func (p StreamParams) Validate() error {
	if !(p.ShortWindow > 0) {
		return fmt.Errorf("short_window must be positive, got %v", p.ShortWindow)
	}
	if !(p.LongWindow > p.ShortWindow) || math.IsInf(p.LongWindow, 0) {
		return fmt.Errorf("long_window must exceed short_window, got %v <= %v", p.LongWindow, p.ShortWindow)
	}
	if !(p.ThresholdRatio > 0) {
		return fmt.Errorf("threshold_ratio must be positive, got %v", p.ThresholdRatio)
	}
	if !(p.SideDominance >= 1) {
		return fmt.Errorf("side_dominance must be at least 1, got %v", p.SideDominance)
	}
	return nil
}

// DualWindowModel compares short-window volume with the long-window volume rate.
// A signal fires when short_total / (long_total * short/long) reaches the
// threshold ratio. Signals fire on the rising edge only; the model re-arms once
// the ratio drops back below the threshold. Nothing fires until a full long
// window of history has been observed.
type DualWindowModel struct {
	params StreamParams
	short  *window.Accumulator
	long   *window.Accumulator

	firstTs  float64
	started  bool
	armed    bool
	last     models.SweepEvent
	accepted int
}

var _ TickSignalSource = (*DualWindowModel)(nil)

// NewDualWindowModel validates params and returns a ready model.
func NewDualWindowModel(p StreamParams) (*DualWindowModel, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	short, err := window.NewAccumulator(p.ShortWindow)
	if err != nil {
		return nil, err
	}
	long, err := window.NewAccumulator(p.LongWindow)
	if err != nil {
		return nil, err
	}
	return &DualWindowModel{params: p, short: short, long: long, armed: true}, nil
}

// ProcessTick feeds one tick. Malformed ticks are rejected with an error wrapping
// models.ErrMalformedInput and leave the model unchanged. A timestamp regression
// returns an error wrapping models.ErrOutOfOrder.
func (m *DualWindowModel) ProcessTick(t models.Tick) (Signal, error) {
	if err := t.Validate(); err != nil {
		return NoSignal, err
	}
	o := window.FromTick(t)
	if err := m.long.Push(o); err != nil {
		return NoSignal, err
	}
	if err := m.short.Push(o); err != nil {
		return NoSignal, err
	}
	if !m.started {
		m.started = true
		m.firstTs = t.Ts
	}
	m.accepted++

	if t.Ts-m.firstTs < m.params.LongWindow {
		return NoSignal, nil
	}

	st := m.short.Totals()
	lt := m.long.Totals()
	longTotal := lt.Volume()
	if longTotal <= 0 {
		return NoSignal, nil
	}
	ratio := st.Volume() / (longTotal * m.params.ShortWindow / m.params.LongWindow)
	if ratio < m.params.ThresholdRatio {
		m.armed = true
		return NoSignal, nil
	}
	if !m.armed {
		return NoSignal, nil
	}
	m.armed = false

	sig := Spike
	dir := models.DirectionNone
	switch {
	case st.Buy > st.Sell*m.params.SideDominance:
		sig, dir = UpSweep, models.DirectionUp
	case st.Sell > st.Buy*m.params.SideDominance:
		sig, dir = DownSweep, models.DirectionDown
	}

	oldest, _ := m.short.Oldest()
	m.last = models.SweepEvent{
		TsStart:     oldest.Ts,
		TsEnd:       t.Ts,
		Direction:   dir,
		PriceStart:  oldest.Price,
		PriceEnd:    t.Price,
		VolumeTotal: st.Volume(),
	}
	return sig, nil
}

// LastEvent returns the most recent event.
func (m *DualWindowModel) LastEvent() models.SweepEvent {
	return m.last
}

// Accepted returns how many ticks the model has consumed.
func (m *DualWindowModel) Accepted() int {
	return m.accepted
}

// Reset clears all window state and the last event.
func (m *DualWindowModel) Reset() {
	m.short.Reset()
	m.long.Reset()
	m.started = false
	m.firstTs = 0
	m.armed = true
	m.last = models.SweepEvent{}
	m.accepted = 0
}

// CollectResult summarizes a streaming pass over a recorded history.
type CollectResult struct {
	Events     []models.SweepEvent
	Signals    int
	Undirected int
	Rejected   int
}

// Collect feeds ticks to src and gathers every directional event it reports.
// Un-directional spikes are counted and dropped. Malformed ticks are counted and
// skipped; an ordering violation aborts the pass.
func Collect(src TickSignalSource, ticks []models.Tick) (CollectResult, error) {
	var res CollectResult
	for i, t := range ticks {
		sig, err := src.ProcessTick(t)
		if err != nil {
			if errors.Is(err, models.ErrOutOfOrder) {
				return res, fmt.Errorf("tick %d: %w", i, err)
			}
			res.Rejected++
			continue
		}
		if !sig.Fired() {
			continue
		}
		res.Signals++
		ev := src.LastEvent()
		if !ev.Directional() {
			res.Undirected++
			continue
		}
		res.Events = append(res.Events, ev)
	}
	return res, nil
}
