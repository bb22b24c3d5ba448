// Package sweep detects short one-sided bursts of price movement and volume in a
// tick stream, either over a recorded history (Detect) or one tick at a time
// (DualWindowModel).
package sweep

import (
	"fmt"
	"math"
	"strings"
)

// TieBreak decides what a window emits when both the Up and the Down thresholds hold.
type TieBreak int

const (
	// UpFirst emits Up and never checks Down once Up qualifies.
	UpFirst TieBreak = iota
	// DownFirst emits Down and never checks Up once Down qualifies.
	DownFirst
	// Both emits an Up event followed by a Down event for the same window.
	Both
	// Suppress emits nothing for a window where both sides qualify.
	Suppress
)

var tieBreakNames = map[TieBreak]string{
	UpFirst:   "up_first",
	DownFirst: "down_first",
	Both:      "both",
	Suppress:  "suppress",
}

func (tb TieBreak) String() string {
	if s, ok := tieBreakNames[tb]; ok {
		return s
	}
	return fmt.Sprintf("TieBreak(%d)", int(tb))
}

// ParseTieBreak accepts up_first, down_first, both or suppress (case-insensitive,
// dashes allowed). The empty string selects UpFirst.
func ParseTieBreak(s string) (TieBreak, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	if key == "" {
		return UpFirst, nil
	}
	for tb, name := range tieBreakNames {
		if name == key {
			return tb, nil
		}
	}
	return UpFirst, fmt.Errorf("unknown tie break %q (want up_first, down_first, both or suppress)", s)
}

// Params configures the batch detector.
type Params struct {
	WindowSec        float64  `json:"window_sec" yaml:"window_sec"`
	PriceThresholdBP float64  `json:"price_threshold_bp" yaml:"price_threshold_bp"`
	VolumeMin        float64  `json:"volume_min" yaml:"volume_min"`
	TieBreak         TieBreak `json:"-" yaml:"-"`
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	if !(p.WindowSec > 0) || math.IsInf(p.WindowSec, 0) {
		return fmt.Errorf("window_sec must be positive, got %v", p.WindowSec)
	}
	if !(p.PriceThresholdBP >= 0) || math.IsInf(p.PriceThresholdBP, 0) {
		return fmt.Errorf("price_threshold_bp must not be negative, got %v", p.PriceThresholdBP)
	}
	if !(p.VolumeMin >= 0) || math.IsInf(p.VolumeMin, 0) {
		return fmt.Errorf("volume_min must not be negative, got %v", p.VolumeMin)
	}
	if _, ok := tieBreakNames[p.TieBreak]; !ok {
		return fmt.Errorf("unknown tie break %d", int(p.TieBreak))
	}
	return nil
}

func (p Params) String() string {
	return fmt.Sprintf("window=%.2fs bp=%g vol_min=%g", p.WindowSec, p.PriceThresholdBP, p.VolumeMin)
}
