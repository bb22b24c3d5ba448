// Package gridsearch runs the sweep detector and the outcome evaluator over every
// combination of detector parameters.
package gridsearch

import (
	"fmt"

	"github.com/sourcegraph/conc/iter"

	"github.com/rewired-gh/sweepscope/internal/models"
	"github.com/rewired-gh/sweepscope/internal/outcome"
	"github.com/rewired-gh/sweepscope/internal/sweep"
)

// Grid lists candidate values per detector parameter.
type Grid struct {
	Windows    []float64 `mapstructure:"windows" yaml:"windows"`
	PriceBPs   []float64 `mapstructure:"price_bps" yaml:"price_bps"`
	VolumeMins []float64 `mapstructure:"volume_mins" yaml:"volume_mins"`
}

// DefaultGrid is 0.3/0.6/1.0s windows, 3/5/8 bp and 2/5/10 minimum volume.
func DefaultGrid() Grid {
	return Grid{
		Windows:    []float64{0.3, 0.6, 1.0},
		PriceBPs:   []float64{3, 5, 8},
		VolumeMins: []float64{2, 5, 10},
	}
}

// Size returns the number of combinations.
func (g Grid) Size() int {
	return len(g.Windows) * len(g.PriceBPs) * len(g.VolumeMins)
}

// Combinations expands the grid window-major, then price threshold, then volume.
func (g Grid) Combinations(tb sweep.TieBreak) []sweep.Params {
	out := make([]sweep.Params, 0, g.Size())
	for _, w := range g.Windows {
		for _, bp := range g.PriceBPs {
			for _, v := range g.VolumeMins {
				out = append(out, sweep.Params{WindowSec: w, PriceThresholdBP: bp, VolumeMin: v, TieBreak: tb})
			}
		}
	}
	return out
}

// Options controls a grid run.
type Options struct {
	Horizon  float64
	TieBreak sweep.TieBreak
	// Parallelism bounds concurrent combinations; values below 1 run sequentially.
	Parallelism int
}

// Result is the outcome of one parameter combination.
type Result struct {
	Params        sweep.Params    `yaml:"params"`
	Events        int             `yaml:"events"`
	Evaluated     int             `yaml:"evaluated"`
	NoForwardTick int             `yaml:"no_forward_tick"`
	NoHorizonTick int             `yaml:"no_horizon_tick"`
	Summary       outcome.Summary `yaml:"summary"`
}

// Run evaluates every combination over the shared, read-only tick history and
// returns results in combination order regardless of parallelism.
func Run(ticks []models.Tick, g Grid, opts Options) ([]Result, error) {
	if g.Size() == 0 {
		return nil, fmt.Errorf("grid has no combinations")
	}
	if err := outcome.ValidateHorizon(opts.Horizon); err != nil {
		return nil, err
	}
	if err := models.CheckOrdered(ticks); err != nil {
		return nil, err
	}
	combos := g.Combinations(opts.TieBreak)
	for _, p := range combos {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("grid combination %s: %w", p, err)
		}
	}

	workers := opts.Parallelism
	if workers < 1 {
		workers = 1
	}
	mapper := iter.Mapper[sweep.Params, Result]{MaxGoroutines: workers}
	return mapper.Map(combos, func(p *sweep.Params) Result {
		return RunOne(ticks, *p, opts.Horizon)
	}), nil
}

// RunOne detects and evaluates a single combination.
func RunOne(ticks []models.Tick, p sweep.Params, horizon float64) Result {
	events := sweep.Detect(ticks, p)
	res := outcome.Evaluate(ticks, events, horizon)
	return Result{
		Params:        p,
		Events:        len(events),
		Evaluated:     res.Evaluated(),
		NoForwardTick: res.NoForwardTick,
		NoHorizonTick: res.NoHorizonTick,
		Summary:       outcome.SummarizeByDirection(res.Records),
	}
}
