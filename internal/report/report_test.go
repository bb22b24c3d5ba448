package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/sweepscope/internal/gridsearch"
	"github.com/rewired-gh/sweepscope/internal/models"
	"github.com/rewired-gh/sweepscope/internal/orderflow"
	"github.com/rewired-gh/sweepscope/internal/outcome"
	"github.com/rewired-gh/sweepscope/internal/strategy"
	"github.com/rewired-gh/sweepscope/internal/sweep"
)

func TestFormatPulse(t *testing.T) {
	p := orderflow.Pulse{
		Ts:          1700000000,
		Mid:         2000.5,
		MidFromBook: true,
		BestBid:     2000.25,
		BestAsk:     2000.75,
		Flow: orderflow.FlowSummary{
			models.NewFlowWindowStats(1, 3, 1),
			models.NewFlowWindowStats(3, 0, 0),
		},
		Depth: []orderflow.BandDepth{
			orderflow.ClassifyBand(0.001, 1, 10, 0.4),
			orderflow.ClassifyBand(0.003, 12, 14, 0.4),
		},
		Run:      &orderflow.Run{Dir: models.DirectionUp, Net: 5, BuyShare: 0.8},
		Hint:     orderflow.HintLong,
		Extremes: []orderflow.Extreme{{Window: 20, NewHigh: true}},
	}
	lines := FormatPulse(p, time.UTC)
	require.Len(t, lines, 5)
	assert.Equal(t, "[22:13:20] mid=2000.50 bb=2000.25 ba=2000.75 1s:3.0/1.0 (75.0% buy) 3s:0/0 "+
		"Liq0.1% b=1.0 a=10.0 | Liq0.3% b=12.0 a=14.0", lines[0])
	assert.Equal(t, "    [AGG RUN] BUY bias strengthening (net=5.0, buy_share=80.0%)", lines[1])
	assert.Equal(t, "    [WEAK OB] 0.1% weak bid (0.10x)", lines[2])
	assert.Equal(t, "    [EXT] new 20s high", lines[3])
	assert.Equal(t, "    [SIG] 1s buy_share>50% -> LONG", lines[4])
}

func TestFormatPulseWithoutBook(t *testing.T) {
	p := orderflow.Pulse{Ts: 1700000000, Mid: 10, Flow: orderflow.FlowSummary{models.NewFlowWindowStats(1, 0, 2)}, Hint: orderflow.HintShort}
	lines := FormatPulse(p, time.UTC)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "bb=? ba=?")
	assert.Equal(t, "    [SIG] 1s buy_share<50% -> SHORT", lines[1])
}

func TestFormatGridResult(t *testing.T) {
	r := gridsearch.Result{
		Params: sweep.Params{WindowSec: 0.3, PriceThresholdBP: 5, VolumeMin: 2},
		Events: 12,
		Summary: outcome.Summary{
			Down: outcome.DirectionStats{Ret: outcome.Stats{Count: 2, Mean: 0.001, Std: 0.0005, Median: 0.001, P5: 0.00055, P95: 0.00145}},
		},
	}
	assert.Equal(t, []string{
		"window=0.30s, bp=5, vol_min=2 -> sweeps=12",
		"  Down: count=2, mean=0.001000, std=0.000500, med=0.001000, p5=0.000550, p95=0.001450",
		"  Up  : count=0",
	}, FormatGridResult(r))
}

func TestFormatOutcomeSummary(t *testing.T) {
	lines := FormatOutcomeSummary(outcome.Summary{})
	assert.Equal(t, []string{
		"Down ret: count=0", "Down mfe: count=0", "Down mae: count=0",
		"Up   ret: count=0", "Up   mfe: count=0", "Up   mae: count=0",
	}, lines)
}

func TestFormatSession(t *testing.T) {
	line := FormatSession(strategy.Summary{
		SessionID: "0123456789abcdef", Sweeps: 4, Opens: 2, Closes: 2, Wins: 1, Losses: 1,
		CumPnL: -0.5, Bankroll: 12345.678,
	})
	assert.Equal(t, "session 01234567: sweeps=4 opens=2 closes=2 wins=1 losses=1 win_rate=50.0% pnl=-0.5000 bankroll=12,345.67", line)

	open := FormatSession(strategy.Summary{SessionID: "abc", Opens: 1, Position: models.DirectionDown})
	assert.Equal(t, "session abc: sweeps=0 opens=1 closes=0 wins=0 losses=0 win_rate=0.0% pnl=+0.0000 holding=short", open)
}

func TestGridReportYAMLRoundTrip(t *testing.T) {
	rep := GridReport{
		Symbol:    "ETHUSDT",
		Ticks:     1000,
		Horizon:   30,
		TieBreak:  "up_first",
		Generated: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Results: []gridsearch.Result{{
			Params:    sweep.Params{WindowSec: 0.6, PriceThresholdBP: 8, VolumeMin: 10},
			Events:    3,
			Evaluated: 2,
			Summary:   outcome.Summary{Up: outcome.DirectionStats{Ret: outcome.Stats{Count: 2, Mean: 0.25}}},
		}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, rep))
	assert.True(t, strings.Contains(buf.String(), "window_sec: 0.6"), buf.String())
	assert.True(t, strings.Contains(buf.String(), "horizon_sec: 30"), buf.String())

	got, err := ReadYAML(&buf)
	require.NoError(t, err)
	assert.True(t, rep.Generated.Equal(got.Generated))
	got.Generated = rep.Generated
	assert.Equal(t, rep, got)
}

func TestCount(t *testing.T) {
	assert.Equal(t, "1,234,567", Count(1234567))
}
