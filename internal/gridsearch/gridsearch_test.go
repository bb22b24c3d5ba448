package gridsearch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/sweepscope/internal/models"
	"github.com/rewired-gh/sweepscope/internal/sweep"
)

// sawtooth builds a history with regular bursts up and down.
func sawtooth(n int) []models.Tick {
	ticks := make([]models.Tick, n)
	for i := range ticks {
		ts := float64(i) * 0.1
		price := 2000 + 2*math.Sin(float64(i)/7)
		side := models.SideBuy
		if i%3 == 0 {
			side = models.SideSell
		}
		ticks[i] = models.Tick{Ts: ts, Price: price, Volume: 1 + float64(i%5), Side: side}
	}
	return ticks
}

func TestCombinationsOrder(t *testing.T) {
	g := Grid{Windows: []float64{1, 2}, PriceBPs: []float64{3, 5}, VolumeMins: []float64{10, 20, 30}}
	combos := g.Combinations(sweep.Both)
	require.Len(t, combos, 12)
	assert.Equal(t, sweep.Params{WindowSec: 1, PriceThresholdBP: 3, VolumeMin: 10, TieBreak: sweep.Both}, combos[0])
	assert.Equal(t, sweep.Params{WindowSec: 1, PriceThresholdBP: 3, VolumeMin: 20, TieBreak: sweep.Both}, combos[1])
	assert.Equal(t, sweep.Params{WindowSec: 1, PriceThresholdBP: 5, VolumeMin: 10, TieBreak: sweep.Both}, combos[3])
	assert.Equal(t, sweep.Params{WindowSec: 2, PriceThresholdBP: 3, VolumeMin: 10, TieBreak: sweep.Both}, combos[6])
	assert.Equal(t, 30.0, combos[11].VolumeMin)
}

func TestRunParallelMatchesSequential(t *testing.T) {
	ticks := sawtooth(2000)
	g := DefaultGrid()

	seq, err := Run(ticks, g, Options{Horizon: 30})
	require.NoError(t, err)
	par, err := Run(ticks, g, Options{Horizon: 30, Parallelism: 4})
	require.NoError(t, err)

	require.Len(t, seq, g.Size())
	assert.Equal(t, seq, par)

	for i, p := range g.Combinations(sweep.UpFirst) {
		assert.Equal(t, p, seq[i].Params)
		single := RunOne(ticks, p, 30)
		assert.Equal(t, single, seq[i])
		assert.Equal(t, seq[i].Events, seq[i].Evaluated+seq[i].NoForwardTick+seq[i].NoHorizonTick)
		assert.Equal(t, seq[i].Evaluated, seq[i].Summary.Up.Ret.Count+seq[i].Summary.Down.Ret.Count)
	}
}

func TestRunValidates(t *testing.T) {
	ticks := sawtooth(10)

	_, err := Run(ticks, Grid{}, Options{Horizon: 30})
	assert.Error(t, err)

	_, err = Run(ticks, DefaultGrid(), Options{Horizon: 0})
	assert.Error(t, err)

	bad := DefaultGrid()
	bad.Windows = []float64{-1}
	_, err = Run(ticks, bad, Options{Horizon: 30})
	assert.Error(t, err)

	ticks[5].Ts = -1
	_, err = Run(ticks, DefaultGrid(), Options{Horizon: 30})
	assert.ErrorIs(t, err, models.ErrOutOfOrder)
}
