package sweep

import (
	"github.com/rewired-gh/sweepscope/internal/models"
)

// candidate holds the aggregates of one window anchored at a base tick.
type candidate struct {
	baseTs, baseP float64
	endTs         float64
	upMax, dnMin  float64
	upVol, dnVol  float64
}

func (c candidate) upBP() float64 {
	return (c.upMax - c.baseP) / c.baseP * 10000
}

func (c candidate) dnBP() float64 {
	return (c.baseP - c.dnMin) / c.baseP * 10000
}

func (c candidate) up() models.SweepEvent {
	return models.SweepEvent{
		TsStart:     c.baseTs,
		TsEnd:       c.endTs,
		Direction:   models.DirectionUp,
		PriceStart:  c.baseP,
		PriceEnd:    c.upMax,
		VolumeTotal: c.upVol,
	}
}

func (c candidate) down() models.SweepEvent {
	return models.SweepEvent{
		TsStart:     c.baseTs,
		TsEnd:       c.endTs,
		Direction:   models.DirectionDown,
		PriceStart:  c.baseP,
		PriceEnd:    c.dnMin,
		VolumeTotal: c.dnVol,
	}
}

// Detect scans ticks (non-decreasing by Ts) and returns sweep events in order of
// their window start. Every tick is a candidate window start; the window holds all
// ticks with ts - base_ts <= WindowSec. A tick priced exactly at the base price
// counts toward both the up and the down volume. Params are assumed valid.
//
// The window end pointer only moves forward across starts, so locating every
// window costs O(n) in total; each window's aggregates are then computed over its
// own span.
func Detect(ticks []models.Tick, p Params) []models.SweepEvent {
	var events []models.SweepEvent
	n := len(ticks)
	j := 0
	for i := 0; i < n; i++ {
		base := ticks[i]
		if j < i+1 {
			j = i + 1
		}
		for j < n && ticks[j].Ts-base.Ts <= p.WindowSec {
			j++
		}

		c := candidate{
			baseTs: base.Ts,
			baseP:  base.Price,
			endTs:  ticks[j-1].Ts,
			upMax:  base.Price,
			dnMin:  base.Price,
		}
		for k := i; k < j; k++ {
			t := ticks[k]
			if t.Price > c.upMax {
				c.upMax = t.Price
			}
			if t.Price < c.dnMin {
				c.dnMin = t.Price
			}
			if t.Price >= c.baseP {
				c.upVol += t.Volume
			}
			if t.Price <= c.baseP {
				c.dnVol += t.Volume
			}
		}

		upOK := c.upBP() >= p.PriceThresholdBP && c.upVol >= p.VolumeMin
		dnOK := c.dnBP() >= p.PriceThresholdBP && c.dnVol >= p.VolumeMin
		events = appendResolved(events, c, upOK, dnOK, p.TieBreak)
	}
	return events
}

func appendResolved(events []models.SweepEvent, c candidate, upOK, dnOK bool, tb TieBreak) []models.SweepEvent {
	switch {
	case upOK && dnOK:
		switch tb {
		case DownFirst:
			return append(events, c.down())
		case Both:
			return append(events, c.up(), c.down())
		case Suppress:
			return events
		default:
			return append(events, c.up())
		}
	case upOK:
		return append(events, c.up())
	case dnOK:
		return append(events, c.down())
	}
	return events
}
