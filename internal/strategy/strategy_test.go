package strategy

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/sweepscope/internal/models"
	"github.com/rewired-gh/sweepscope/internal/sweep"
)

func upSweep(tsEnd, price float64) models.SweepEvent {
	return models.SweepEvent{TsStart: tsEnd - 0.3, TsEnd: tsEnd, Direction: models.DirectionUp, PriceStart: price - 1, PriceEnd: price, VolumeTotal: 10}
}

func downSweep(tsEnd, price float64) models.SweepEvent {
	ev := upSweep(tsEnd, price)
	ev.Direction = models.DirectionDown
	return ev
}

func TestMeanReversionFadesSweep(t *testing.T) {
	m := NewMeanReversion(MeanReversionParams{DelayMs: 100, HoldSec: 5, TPBP: 2, SLBP: 4})

	act := m.OnSweep(upSweep(10, 2000))
	assert.Equal(t, OpenShort, act.Type)
	assert.Equal(t, models.DirectionDown, act.Dir)
	assert.Equal(t, 2000.0, act.Price)
	assert.InDelta(t, 10.1, act.Ts, 1e-12)
	assert.True(t, m.InPosition())

	assert.Equal(t, Idle, m.OnTick(10.05, 1990).Type, "before the delayed entry")
	assert.Equal(t, Idle, m.OnTick(10.2, 1999.8).Type, "1bp in favour is below take profit")
	assert.True(t, m.InPosition())
}

func TestMeanReversionExits(t *testing.T) {
	p := MeanReversionParams{DelayMs: 0, HoldSec: 5, TPBP: 2, SLBP: 4}
	tests := []struct {
		name  string
		open  models.SweepEvent
		ts    float64
		price float64
		close bool
	}{
		{"long take profit", downSweep(0, 1000), 1, 1000.2, true},
		{"long stop loss", downSweep(0, 1000), 1, 999.5, true},
		{"long holds", downSweep(0, 1000), 1, 1000.1, false},
		{"short take profit", upSweep(0, 1000), 1, 999.8, true},
		{"short stop loss", upSweep(0, 1000), 1, 1000.5, true},
		{"max hold", upSweep(0, 1000), 5, 1000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMeanReversion(p)
			open := m.OnSweep(tt.open)
			require.NotEqual(t, Idle, open.Type)
			act := m.OnTick(tt.ts, tt.price)
			if tt.close {
				assert.Equal(t, Close, act.Type)
				assert.Equal(t, open.Dir, act.Dir)
				assert.Equal(t, tt.price, act.Price)
				assert.False(t, m.InPosition())
			} else {
				assert.Equal(t, Idle, act.Type)
				assert.True(t, m.InPosition())
			}
		})
	}
}

func TestMeanReversionContinuationCloses(t *testing.T) {
	m := NewMeanReversion(DefaultMeanReversionParams())
	require.Equal(t, OpenShort, m.OnSweep(upSweep(10, 2000)).Type)

	assert.Equal(t, Idle, m.OnSweep(downSweep(11, 1999)).Type, "opposite sweep keeps the fade")
	assert.True(t, m.InPosition())

	act := m.OnSweep(upSweep(12, 2004))
	assert.Equal(t, Close, act.Type)
	assert.Equal(t, models.DirectionDown, act.Dir)
	assert.Equal(t, 2004.0, act.Price)
	assert.Equal(t, 12.0, act.Ts)

	assert.Equal(t, Idle, m.OnSweep(models.SweepEvent{TsEnd: 13, PriceStart: 1, PriceEnd: 1}).Type)
}

func TestSessionMarkPnL(t *testing.T) {
	s := NewSession(SessionConfig{})
	require.NotEmpty(t, s.ID())

	_, ok := s.Apply(Action{Type: Close, Price: 1})
	assert.False(t, ok, "close while flat")

	_, ok = s.Apply(Action{Type: OpenLong, Dir: models.DirectionUp, Price: 100, Ts: 1})
	require.True(t, ok)
	_, ok = s.Apply(Action{Type: OpenShort, Dir: models.DirectionDown, Price: 100, Ts: 1})
	assert.False(t, ok, "open while open")
	assert.Equal(t, models.DirectionUp, s.Summary().Position)

	trade, ok := s.Apply(Action{Type: Close, Price: 103, Ts: 2})
	require.True(t, ok)
	require.NotNil(t, trade)
	assert.Equal(t, 3.0, trade.PnL)
	assert.Equal(t, s.ID(), trade.SessionID)

	s.Apply(Action{Type: OpenShort, Price: 100, Ts: 3})
	trade, _ = s.Apply(Action{Type: Close, Price: 101, Ts: 4})
	assert.Equal(t, -1.0, trade.PnL)

	sum := s.Summary()
	assert.Equal(t, 2, sum.Opens)
	assert.Equal(t, 2, sum.Closes)
	assert.Equal(t, 1, sum.Wins)
	assert.Equal(t, 1, sum.Losses)
	assert.Equal(t, 2.0, sum.CumPnL)
	assert.Equal(t, 0.5, sum.WinRate())
	assert.Equal(t, models.DirectionNone, sum.Position)
}

func TestSessionCompoundsBankroll(t *testing.T) {
	s := NewSession(SessionConfig{StartingEquity: 1000, Leverage: 10})

	s.Apply(Action{Type: OpenLong, Price: 100})
	trade, _ := s.Apply(Action{Type: Close, Price: 101})
	assert.Equal(t, 10000.0, trade.Notional)
	assert.InDelta(t, 100.0, trade.PnL, 1e-9)
	assert.InDelta(t, 1100.0, trade.Bankroll, 1e-9)

	s.Apply(Action{Type: OpenShort, Price: 100})
	trade, _ = s.Apply(Action{Type: Close, Price: 101})
	assert.InDelta(t, 11000.0, trade.Notional, 1e-9)
	assert.InDelta(t, -110.0, trade.PnL, 1e-9)

	id := s.ID()
	s.Reset()
	assert.NotEqual(t, id, s.ID())
	assert.Equal(t, 1000.0, s.Summary().Bankroll)
	assert.Zero(t, s.Summary().Closes)
}

type sliceIter struct {
	ticks []models.Tick
	pos   int
}

func (it *sliceIter) Next() (models.Tick, error) {
	if it.pos >= len(it.ticks) {
		return models.Tick{}, io.EOF
	}
	t := it.ticks[it.pos]
	it.pos++
	return t, nil
}

// scriptedSource fires the given event when a tick with the matching Ts arrives.
type scriptedSource struct {
	events map[float64]models.SweepEvent
	last   models.SweepEvent
	prev   float64
}

func (s *scriptedSource) ProcessTick(t models.Tick) (sweep.Signal, error) {
	if err := t.Validate(); err != nil {
		return sweep.NoSignal, err
	}
	if t.Ts < s.prev {
		return sweep.NoSignal, models.ErrOutOfOrder
	}
	s.prev = t.Ts
	ev, ok := s.events[t.Ts]
	if !ok {
		return sweep.NoSignal, nil
	}
	s.last = ev
	switch ev.Direction {
	case models.DirectionUp:
		return sweep.UpSweep, nil
	case models.DirectionDown:
		return sweep.DownSweep, nil
	}
	return sweep.Spike, nil
}

func (s *scriptedSource) LastEvent() models.SweepEvent { return s.last }

func TestReplay(t *testing.T) {
	ticks := []models.Tick{
		{Ts: 1, Price: 100, Volume: 1, Side: models.SideBuy},
		{Ts: 2, Price: 101, Volume: 1, Side: models.SideBuy},
		{Ts: 3, Price: 0, Volume: 1, Side: models.SideBuy},
		{Ts: 4, Price: 100.5, Volume: 1, Side: models.SideSell},
		{Ts: 5, Price: 100.9, Volume: 1, Side: models.SideSell},
		{Ts: 6, Price: 100.7, Volume: 1, Side: models.SideSell},
	}
	src := &scriptedSource{events: map[float64]models.SweepEvent{
		2: upSweep(2, 101),
		5: {TsStart: 5, TsEnd: 5, PriceStart: 100, PriceEnd: 100},
	}}
	eng := NewMeanReversion(MeanReversionParams{DelayMs: 0, HoldSec: 60, TPBP: 20, SLBP: 50})
	sess := NewSession(SessionConfig{})

	var trades []Trade
	st, err := Replay(&sliceIter{ticks: ticks}, src, eng, sess, ReplayOptions{OnTrade: func(tr Trade) { trades = append(trades, tr) }})
	require.NoError(t, err)

	assert.Equal(t, 5, st.Ticks)
	assert.Equal(t, 1, st.Rejected)
	assert.Equal(t, 2, st.Signals)
	assert.Equal(t, 1, st.Undirected)
	assert.Equal(t, 1, st.Session.Sweeps)
	assert.Equal(t, 1, st.Session.Opens)
	// short from 101, 20bp target is 100.798; the tick at 4 reaches it
	require.Len(t, trades, 1)
	assert.Equal(t, 4.0, trades[0].ExitTs)
	assert.InDelta(t, 0.5, trades[0].PnL, 1e-9)
}

func TestReplayLimitAndOrdering(t *testing.T) {
	ticks := []models.Tick{
		{Ts: 1, Price: 100, Volume: 1, Side: models.SideBuy},
		{Ts: 2, Price: 100, Volume: 1, Side: models.SideBuy},
		{Ts: 1.5, Price: 100, Volume: 1, Side: models.SideBuy},
	}
	src := &scriptedSource{}
	st, err := Replay(&sliceIter{ticks: ticks}, src, NewMeanReversion(DefaultMeanReversionParams()), NewSession(SessionConfig{}), ReplayOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, st.Ticks)

	_, err = Replay(&sliceIter{ticks: ticks}, &scriptedSource{}, NewMeanReversion(DefaultMeanReversionParams()), NewSession(SessionConfig{}), ReplayOptions{})
	assert.True(t, errors.Is(err, models.ErrOutOfOrder))
}
