package orderflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/sweepscope/internal/models"
)

func TestAggFlowTrackerSummarize(t *testing.T) {
	tr, err := NewAggFlowTracker([]float64{10, 1, 3, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3, 10}, tr.windows)

	require.NoError(t, tr.Record(0, models.SideBuy, 5))
	require.NoError(t, tr.Record(5, models.SideSell, 2))
	require.NoError(t, tr.Record(8, models.SideBuy, 3))
	require.NoError(t, tr.Record(9.5, models.SideSell, 1))

	s := tr.Summarize(10)
	require.Len(t, s, 3)

	one, ok := s.Shortest()
	require.True(t, ok)
	assert.Equal(t, 1.0, one.Window)
	assert.Equal(t, 0.0, one.BuyVolume)
	assert.Equal(t, 1.0, one.SellVolume)
	assert.Equal(t, 0.0, one.BuyShare)
	assert.Equal(t, -1.0, one.Net)

	three := s[1]
	assert.Equal(t, 3.0, three.BuyVolume)
	assert.Equal(t, 1.0, three.SellVolume)
	assert.Equal(t, 0.75, three.BuyShare)

	ten := s[2]
	assert.Equal(t, 8.0, ten.BuyVolume)
	assert.Equal(t, 3.0, ten.SellVolume)
	assert.Equal(t, 8.0/11.0, ten.BuyShare)
}

func TestAggFlowTrackerPrunesToLargestWindow(t *testing.T) {
	tr, err := NewAggFlowTracker([]float64{1, 3})
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		require.NoError(t, tr.Record(float64(i)*0.5, models.SideBuy, 1))
	}
	// newest at 9.5, horizon 3 keeps 6.5 .. 9.5
	assert.Equal(t, 7, tr.acc.Len())

	s := tr.Summarize(100)
	assert.Equal(t, 0, tr.acc.Len())
	for _, st := range s {
		assert.Equal(t, 0.0, st.Total)
		assert.Equal(t, 0.0, st.BuyShare)
	}
}

func TestAggFlowTrackerRejects(t *testing.T) {
	_, err := NewAggFlowTracker(nil)
	assert.Error(t, err)
	_, err = NewAggFlowTracker([]float64{0, 1})
	assert.Error(t, err)

	tr, err := NewAggFlowTracker([]float64{1})
	require.NoError(t, err)
	require.NoError(t, tr.Record(2, models.SideBuy, 1))
	assert.True(t, errors.Is(tr.Record(1, models.SideBuy, 1), models.ErrOutOfOrder))
}

func TestOrderBook(t *testing.T) {
	b := NewOrderBook()
	_, ok := b.Mid()
	assert.False(t, ok)
	bid, ask := b.LiquidityWithin(0.01)
	assert.Zero(t, bid)
	assert.Zero(t, ask)

	require.NoError(t, b.Apply(models.BookUpdate{
		Type: models.BookSnapshot,
		Bids: []models.BookLevel{{Price: 99.9, Size: 2}, {Price: 99.5, Size: 3}, {Price: 99.0, Size: 0}},
		Asks: []models.BookLevel{{Price: 100.1, Size: 1}, {Price: 100.6, Size: 4}},
	}))
	assert.Len(t, b.bids, 2, "zero-size snapshot levels are dropped")
	assert.Len(t, b.asks, 2)

	bb, _ := b.BestBid()
	ba, _ := b.BestAsk()
	mid, ok := b.Mid()
	require.True(t, ok)
	assert.Equal(t, 99.9, bb)
	assert.Equal(t, 100.1, ba)
	assert.InDelta(t, 100.0, mid, 1e-9)

	bid, ask = b.LiquidityWithin(0.003)
	assert.Equal(t, 2.0, bid)
	assert.Equal(t, 1.0, ask)
	bid, ask = b.LiquidityWithin(0.01)
	assert.Equal(t, 5.0, bid)
	assert.Equal(t, 5.0, ask)

	require.NoError(t, b.Apply(models.BookUpdate{
		Type: models.BookDelta,
		Bids: []models.BookLevel{{Price: 99.9, Size: 0}, {Price: 99.8, Size: 7}},
		Asks: []models.BookLevel{{Price: 100.1, Size: 2.5}},
	}))
	bb, _ = b.BestBid()
	assert.Equal(t, 99.8, bb)
	bid, ask = b.LiquidityWithin(0.003)
	assert.Equal(t, 7.0, bid)
	assert.Equal(t, 2.5, ask)

	require.NoError(t, b.Apply(models.BookUpdate{
		Type: models.BookDelta,
		Asks: []models.BookLevel{{Price: 100.1, Size: 0}, {Price: 100.6, Size: -1}},
	}))
	_, ok = b.Mid()
	assert.False(t, ok, "mid is undefined once the ask side empties")

	assert.Error(t, b.Apply(models.BookUpdate{Type: "bogus"}))
}

func sample(dir models.Direction, net, share float64) BiasSample {
	return BiasSample{Dir: dir, Net: net, BuyShare: share}
}

func TestDetectRun(t *testing.T) {
	up, down := models.DirectionUp, models.DirectionDown
	tests := []struct {
		name    string
		samples []BiasSample
		want    models.Direction
		ok      bool
	}{
		{"too few", []BiasSample{sample(up, 1, 0.9), sample(up, 2, 0.9)}, 0, false},
		{"strengthening buy", []BiasSample{sample(up, 1, 0.8), sample(up, 2, 0.8), sample(up, 3, 0.75)}, up, true},
		{"equal magnitudes pass", []BiasSample{sample(up, 2, 0.7), sample(up, 2, 0.7), sample(up, 2, 0.7)}, up, true},
		{"strengthening sell", []BiasSample{sample(down, -1, 0.2), sample(down, -2, 0.2), sample(down, -4, 0.3)}, down, true},
		{"only last three count", []BiasSample{sample(down, -9, 0.1), sample(up, 1, 0.9), sample(up, 1, 0.9), sample(up, 1, 0.9)}, up, true},
		{"opposite direction in triplet", []BiasSample{sample(up, 1, 0.9), sample(down, -2, 0.1), sample(up, 3, 0.9)}, 0, false},
		{"weakening", []BiasSample{sample(up, 3, 0.9), sample(up, 2, 0.9), sample(up, 4, 0.9)}, 0, false},
		{"indecisive buy share", []BiasSample{sample(up, 1, 0.6), sample(up, 2, 0.65), sample(up, 3, 0.69)}, 0, false},
		{"indecisive sell share", []BiasSample{sample(down, -1, 0.2), sample(down, -2, 0.2), sample(down, -3, 0.31)}, 0, false},
		{"no direction", []BiasSample{sample(0, 0, 0), sample(0, 0, 0), sample(0, 0, 0)}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run, ok := DetectRun(tt.samples, DefaultRunShare)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, run.Dir)
		})
	}
}

func TestDetectRunShareSymmetric(t *testing.T) {
	for _, share := range []float64{0.6, 0.7, 0.8, 0.9, 0.95} {
		// buy volume b and sell volume s land exactly on the threshold in both directions
		s := share * 100
		b := 100 - s
		buyHeavy := models.NewFlowWindowStats(1, s, b)
		sellHeavy := models.NewFlowWindowStats(1, b, s)

		up := []BiasSample{
			{Dir: models.DirectionUp, Net: buyHeavy.Net, BuyShare: buyHeavy.BuyShare},
			{Dir: models.DirectionUp, Net: buyHeavy.Net, BuyShare: buyHeavy.BuyShare},
			{Dir: models.DirectionUp, Net: buyHeavy.Net, BuyShare: buyHeavy.BuyShare},
		}
		down := []BiasSample{
			{Dir: models.DirectionDown, Net: sellHeavy.Net, BuyShare: sellHeavy.BuyShare},
			{Dir: models.DirectionDown, Net: sellHeavy.Net, BuyShare: sellHeavy.BuyShare},
			{Dir: models.DirectionDown, Net: sellHeavy.Net, BuyShare: sellHeavy.BuyShare},
		}
		_, okUp := DetectRun(up, share)
		_, okDown := DetectRun(down, share)
		assert.True(t, okUp, "up at share %v", share)
		assert.True(t, okDown, "down at share %v", share)
	}
}

func TestRunDetectorKeepsFiveSamples(t *testing.T) {
	r := NewRunDetector(DefaultRunShare)
	_, ok := r.Observe(0, models.NewFlowWindowStats(1, 0, 0))
	assert.False(t, ok, "empty windows are not recorded")
	_, ok = r.Observe(0, models.NewFlowWindowStats(1, 2, 2))
	assert.False(t, ok, "zero net is not recorded")
	assert.Empty(t, r.samples)

	var run Run
	for i := 1; i <= 7; i++ {
		run, ok = r.Observe(float64(i), models.NewFlowWindowStats(1, float64(8*i), float64(i)))
	}
	require.True(t, ok)
	assert.Equal(t, models.DirectionUp, run.Dir)
	assert.Equal(t, 49.0, run.Net)

	samples := r.samples
	require.Len(t, samples, 5)
	assert.Equal(t, 3.0, samples[0].Ts)
	assert.Equal(t, 7.0, samples[4].Ts)
}

func TestClassifyBand(t *testing.T) {
	d := ClassifyBand(0.001, 1, 5, DefaultWeakRatio)
	assert.Equal(t, WeakBid, d.Weak)
	assert.Equal(t, 0.2, d.Ratio)

	d = ClassifyBand(0.001, 10, 3, DefaultWeakRatio)
	assert.Equal(t, WeakAsk, d.Weak)
	assert.Equal(t, 0.3, d.Ratio)

	d = ClassifyBand(0.001, 4, 10, DefaultWeakRatio)
	assert.Equal(t, WeakNone, d.Weak, "exactly 0.4x is not weak")
	assert.Zero(t, d.Ratio)

	d = ClassifyBand(0.001, 0, 10, DefaultWeakRatio)
	assert.Equal(t, WeakNone, d.Weak, "an empty side leaves weakness undefined")
}

func TestProbePoll(t *testing.T) {
	p, err := NewProbe(DefaultProbeConfig())
	require.NoError(t, err)

	_, ok := p.Poll(1)
	assert.False(t, ok, "no mid and no last price")

	require.NoError(t, p.OnTrade(models.Tick{Ts: 1, Price: 2000, Volume: 3, Side: models.SideBuy}))
	require.NoError(t, p.OnTrade(models.Tick{Ts: 1.5, Price: 2001, Volume: 1, Side: models.SideSell}))

	pulse, ok := p.Poll(2)
	require.True(t, ok)
	assert.Equal(t, 2001.0, pulse.Mid)
	assert.False(t, pulse.MidFromBook)
	assert.Equal(t, HintLong, pulse.Hint)
	require.Len(t, pulse.Flow, 3)
	require.Len(t, pulse.Depth, 3)
	for _, d := range pulse.Depth {
		assert.Equal(t, WeakNone, d.Weak)
	}
	require.Len(t, pulse.Extremes, 2)
	assert.True(t, pulse.Extremes[0].NewHigh)
	assert.True(t, pulse.Extremes[0].NewLow)

	_, ok = p.Poll(2.5)
	assert.False(t, ok, "inside the minimum interval")

	require.NoError(t, p.OnBook(models.BookUpdate{
		Type: models.BookSnapshot,
		Bids: []models.BookLevel{{Price: 1999, Size: 1}},
		Asks: []models.BookLevel{{Price: 2001, Size: 5}},
	}))
	pulse, ok = p.Poll(3)
	require.True(t, ok)
	assert.True(t, pulse.MidFromBook)
	assert.Equal(t, 2000.0, pulse.Mid)
	assert.Equal(t, 1999.0, pulse.BestBid)
	assert.Equal(t, 2001.0, pulse.BestAsk)
	assert.Equal(t, HintNone, pulse.Hint, "1s window is empty")
	weak := pulse.WeakBands()
	require.Len(t, weak, 3)
	assert.Equal(t, WeakBid, weak[0].Weak)
	assert.Equal(t, 0.2, weak[0].Ratio)
	assert.False(t, pulse.Extremes[0].NewHigh)
	assert.True(t, pulse.Extremes[0].NewLow)
}

func TestProbeRunAcrossPulses(t *testing.T) {
	p, err := NewProbe(DefaultProbeConfig())
	require.NoError(t, err)

	var last Pulse
	for i, vol := range []float64{1, 2, 3} {
		ts := float64(10 + i)
		require.NoError(t, p.OnTrade(models.Tick{Ts: ts, Price: 100, Volume: vol, Side: models.SideSell}))
		pulse, ok := p.Poll(ts)
		require.True(t, ok)
		assert.Equal(t, HintShort, pulse.Hint)
		last = pulse
	}
	require.NotNil(t, last.Run)
	assert.Equal(t, models.DirectionDown, last.Run.Dir)
	// the 1s window at ts=12 still holds the trade at ts=11
	assert.Equal(t, -5.0, last.Run.Net)
	assert.Equal(t, 0.0, last.Run.BuyShare)
}

func TestProbeRejectsBadInput(t *testing.T) {
	p, err := NewProbe(DefaultProbeConfig())
	require.NoError(t, err)
	assert.True(t, errors.Is(p.OnTrade(models.Tick{Ts: 1, Price: -1, Volume: 1, Side: models.SideBuy}), models.ErrMalformedInput))

	cfg := DefaultProbeConfig()
	cfg.WeakRatio = 2
	_, err = NewProbe(cfg)
	assert.Error(t, err)
}
