// Package strategy turns sweep events into paper position actions and keeps the
// bookkeeping of one trading session. Nothing here places orders.
package strategy

import (
	"fmt"

	"github.com/rewired-gh/sweepscope/internal/models"
)

// ActionType is what an engine asks the session to do.
type ActionType uint8

const (
	Idle ActionType = iota
	OpenLong
	OpenShort
	Close
)

func (a ActionType) String() string {
	switch a {
	case OpenLong:
		return "open_long"
	case OpenShort:
		return "open_short"
	case Close:
		return "close"
	default:
		return "idle"
	}
}

// Action carries the reference price and time of an engine decision. For Close,
// Dir is the direction of the position being closed.
type Action struct {
	Type  ActionType       `json:"type"`
	Dir   models.Direction `json:"dir"`
	Price float64          `json:"price"`
	Ts    float64          `json:"ts"`
}

// Engine reacts to sweep events and ticks.
type Engine interface {
	OnSweep(ev models.SweepEvent) Action
	OnTick(ts, price float64) Action
}

// MeanReversionParams configures MeanReversion.
type MeanReversionParams struct {
	DelayMs float64 `mapstructure:"delay_ms"`
	HoldSec float64 `mapstructure:"hold_sec"`
	TPBP    float64 `mapstructure:"tp_bp"`
	SLBP    float64 `mapstructure:"sl_bp"`
}

// DefaultMeanReversionParams returns a 5ms entry delay, 15s hold, 1bp take
// profit and 8bp stop loss.
func DefaultMeanReversionParams() MeanReversionParams {
	return MeanReversionParams{DelayMs: 5, HoldSec: 15, TPBP: 1, SLBP: 8}
}

// Validate checks parameter ranges.
func (p MeanReversionParams) Validate() error {
	if p.DelayMs < 0 {
		return fmt.Errorf("strategy.delay_ms must not be negative")
	}
	if !(p.HoldSec > 0) {
		return fmt.Errorf("strategy.hold_sec must be positive")
	}
	if !(p.TPBP > 0) || !(p.SLBP > 0) {
		return fmt.Errorf("strategy.tp_bp and strategy.sl_bp must be positive")
	}
	return nil
}

// MeanReversion fades a sweep: it opens against the sweep direction DelayMs after
// the event ends, and closes on take profit, stop loss, max hold, or a second
// sweep continuing the original move.
type MeanReversion struct {
	params MeanReversionParams

	dir        models.Direction
	entryPrice float64
	entryTs    float64
}

var _ Engine = (*MeanReversion)(nil)

// NewMeanReversion returns an engine with no open position.
func NewMeanReversion(p MeanReversionParams) *MeanReversion {
	return &MeanReversion{params: p}
}

// InPosition reports whether the engine holds a position.
func (m *MeanReversion) InPosition() bool {
	return m.dir != models.DirectionNone
}

func (m *MeanReversion) OnSweep(ev models.SweepEvent) Action {
	if m.InPosition() {
		if ev.Directional() && ev.Direction == -m.dir {
			act := Action{Type: Close, Dir: m.dir, Price: ev.PriceEnd, Ts: ev.TsEnd}
			m.clear()
			return act
		}
		return Action{}
	}

	act := Action{Ts: ev.TsEnd + m.params.DelayMs/1000, Price: ev.PriceEnd}
	switch ev.Direction {
	case models.DirectionUp:
		act.Type, act.Dir = OpenShort, models.DirectionDown
	case models.DirectionDown:
		act.Type, act.Dir = OpenLong, models.DirectionUp
	default:
		return Action{}
	}
	m.dir, m.entryPrice, m.entryTs = act.Dir, act.Price, act.Ts
	return act
}

// OnTick checks exits. Ticks stamped before the delayed entry are ignored.
func (m *MeanReversion) OnTick(ts, price float64) Action {
	if !m.InPosition() || ts < m.entryTs {
		return Action{}
	}
	// signed move in the position's favour, in bp
	move := (price - m.entryPrice) / m.entryPrice * 10000 * float64(m.dir)
	if move >= m.params.TPBP || -move >= m.params.SLBP || ts-m.entryTs >= m.params.HoldSec {
		act := Action{Type: Close, Dir: m.dir, Price: price, Ts: ts}
		m.clear()
		return act
	}
	return Action{}
}

func (m *MeanReversion) clear() {
	m.dir = models.DirectionNone
	m.entryPrice = 0
	m.entryTs = 0
}
