package models

import (
	"fmt"
	"math"
)

// Direction of a sweep or of directional pressure.
type Direction int8

const (
	DirectionNone Direction = 0
	DirectionUp   Direction = 1
	DirectionDown Direction = -1
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	default:
		return "none"
	}
}

// SweepEvent is a short one-sided burst of price movement and volume.
// A zero Direction marks a both-sided spike that must not be scored.
type SweepEvent struct {
	TsStart     float64   `json:"ts_start"`
	TsEnd       float64   `json:"ts_end"`
	Direction   Direction `json:"direction"`
	PriceStart  float64   `json:"price_start"`
	PriceEnd    float64   `json:"price_end"`
	VolumeTotal float64   `json:"volume_total"`
}

// Directional reports whether the event carries an Up or Down direction.
func (e SweepEvent) Directional() bool {
	return e.Direction == DirectionUp || e.Direction == DirectionDown
}

// Validate checks sweep event field constraints.
func (e SweepEvent) Validate() error {
	if !finite(e.TsStart) || !finite(e.TsEnd) {
		return fmt.Errorf("%w: event timestamps must be finite", ErrMalformedInput)
	}
	if e.TsStart > e.TsEnd {
		return fmt.Errorf("%w: ts_start %.6f after ts_end %.6f", ErrMalformedInput, e.TsStart, e.TsEnd)
	}
	if e.Direction != DirectionUp && e.Direction != DirectionDown && e.Direction != DirectionNone {
		return fmt.Errorf("%w: direction must be -1, 0 or 1", ErrMalformedInput)
	}
	if !(e.PriceStart > 0) || !(e.PriceEnd > 0) || !finite(e.PriceStart) || !finite(e.PriceEnd) {
		return fmt.Errorf("%w: event prices must be positive", ErrMalformedInput)
	}
	if !(e.VolumeTotal >= 0) || !finite(e.VolumeTotal) {
		return fmt.Errorf("%w: volume_total must not be negative", ErrMalformedInput)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// OutcomeRecord is the forward behaviour of one scored sweep event. Returns are fractions.
type OutcomeRecord struct {
	Direction   Direction `json:"direction"`
	RetH        float64   `json:"ret_h"`
	MFEH        float64   `json:"mfe_h"`
	MAEH        float64   `json:"mae_h"`
	VolumeTotal float64   `json:"volume_total"`

	// EventIndex is the position of the scored event in the evaluator input.
	EventIndex int `json:"-"`
}

// FlowWindowStats aggregates aggressive volume over one window length (seconds).
type FlowWindowStats struct {
	Window     float64 `json:"window"`
	BuyVolume  float64 `json:"buy_volume"`
	SellVolume float64 `json:"sell_volume"`
	Total      float64 `json:"total"`
	BuyShare   float64 `json:"buy_share"`
	Net        float64 `json:"net"`
}

// NewFlowWindowStats derives totals, share and net from raw buy and sell volume.
// BuyShare is 0 when the window holds no volume.
func NewFlowWindowStats(window, buy, sell float64) FlowWindowStats {
	total := buy + sell
	share := 0.0
	if total > 0 {
		share = buy / total
	}
	return FlowWindowStats{
		Window:     window,
		BuyVolume:  buy,
		SellVolume: sell,
		Total:      total,
		BuyShare:   share,
		Net:        buy - sell,
	}
}
