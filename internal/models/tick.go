// Package models defines the value types shared by the detectors, the order-flow probe and the
// forward-outcome evaluator: trade ticks, order-book updates, sweep events and outcome records.
package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Side is the aggressor side of a trade.
type Side int8

const (
	SideBuy  Side = 1
	SideSell Side = -1
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "Buy"
	case SideSell:
		return "Sell"
	default:
		return "Unknown"
	}
}

// Code returns the single-letter CSV code ("B" or "S").
func (s Side) Code() string {
	if s == SideBuy {
		return "B"
	}
	return "S"
}

// ParseSide accepts any side code starting with b/B (buy) or s/S (sell),
// e.g. "B", "Buy", "BUY", "S", "Sell".
func ParseSide(code string) (Side, error) {
	c := strings.ToLower(strings.TrimSpace(code))
	switch {
	case strings.HasPrefix(c, "b"):
		return SideBuy, nil
	case strings.HasPrefix(c, "s"):
		return SideSell, nil
	default:
		return 0, fmt.Errorf("%w: unknown side code %q", ErrMalformedInput, code)
	}
}

// Tick is one executed trade. Ts is in seconds since the Unix epoch.
type Tick struct {
	Ts     float64 `json:"ts"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	Side   Side    `json:"side"`
}

// Validate checks tick field constraints.
func (t Tick) Validate() error {
	if math.IsNaN(t.Ts) || math.IsInf(t.Ts, 0) {
		return fmt.Errorf("%w: timestamp must be finite", ErrMalformedInput)
	}
	if !(t.Price > 0) || math.IsInf(t.Price, 0) {
		return fmt.Errorf("%w: price must be positive, got %v", ErrMalformedInput, t.Price)
	}
	if !(t.Volume >= 0) || math.IsInf(t.Volume, 0) {
		return fmt.Errorf("%w: volume must not be negative, got %v", ErrMalformedInput, t.Volume)
	}
	if t.Side != SideBuy && t.Side != SideSell {
		return fmt.Errorf("%w: side must be Buy or Sell", ErrMalformedInput)
	}
	return nil
}

// CheckOrdered returns an error wrapping ErrOutOfOrder at the first timestamp regression.
func CheckOrdered(ticks []Tick) error {
	for i := 1; i < len(ticks); i++ {
		if ticks[i].Ts < ticks[i-1].Ts {
			return fmt.Errorf("%w: tick %d at %.6f precedes tick %d at %.6f",
				ErrOutOfOrder, i, ticks[i].Ts, i-1, ticks[i-1].Ts)
		}
	}
	return nil
}

// SecondsFromMillis converts an exchange millisecond timestamp to seconds.
func SecondsFromMillis(ms int64) float64 {
	return float64(ms) / 1000.0
}

// TimeOf converts a seconds timestamp into a time.Time.
func TimeOf(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9))
}
