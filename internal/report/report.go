// Package report renders probe pulses, outcome statistics and scan results as
// console text and YAML.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/rewired-gh/sweepscope/internal/gridsearch"
	"github.com/rewired-gh/sweepscope/internal/models"
	"github.com/rewired-gh/sweepscope/internal/orderflow"
	"github.com/rewired-gh/sweepscope/internal/outcome"
	"github.com/rewired-gh/sweepscope/internal/strategy"
)

// FormatPulse renders one pulse as a status line followed by indented
// [AGG RUN], [WEAK OB] and [SIG] lines when they apply.
func FormatPulse(p orderflow.Pulse, loc *time.Location) []string {
	if loc == nil {
		loc = time.Local
	}
	parts := []string{
		"[" + models.TimeOf(p.Ts).In(loc).Format("15:04:05") + "]",
		fmt.Sprintf("mid=%.2f", p.Mid),
		priceOrUnknown("bb", p.BestBid),
		priceOrUnknown("ba", p.BestAsk),
	}
	for _, st := range p.Flow {
		parts = append(parts, formatWindow(st))
	}
	if len(p.Depth) > 0 {
		bands := make([]string, 0, len(p.Depth))
		for _, d := range p.Depth {
			bands = append(bands, fmt.Sprintf("Liq%s b=%.1f a=%.1f", pct(d.Pct), d.Bid, d.Ask))
		}
		parts = append(parts, strings.Join(bands, " | "))
	}
	lines := []string{strings.Join(parts, " ")}

	if p.Run != nil {
		bias := "BUY"
		if p.Run.Dir == models.DirectionDown {
			bias = "SELL"
		}
		lines = append(lines, fmt.Sprintf("    [AGG RUN] %s bias strengthening (net=%.1f, buy_share=%4.1f%%)",
			bias, p.Run.Net, p.Run.BuyShare*100))
	}
	if weak := p.WeakBands(); len(weak) > 0 {
		msgs := make([]string, 0, len(weak))
		for _, d := range weak {
			msgs = append(msgs, fmt.Sprintf("%s weak %s (%.2fx)", pct(d.Pct), d.Weak, d.Ratio))
		}
		lines = append(lines, "    [WEAK OB] "+strings.Join(msgs, " ; "))
	}
	for _, e := range p.Extremes {
		switch {
		case e.NewHigh:
			lines = append(lines, fmt.Sprintf("    [EXT] new %gs high", e.Window))
		case e.NewLow:
			lines = append(lines, fmt.Sprintf("    [EXT] new %gs low", e.Window))
		}
	}
	if short, ok := p.Flow.Shortest(); ok {
		switch p.Hint {
		case orderflow.HintLong:
			lines = append(lines, fmt.Sprintf("    [SIG] %s buy_share>50%% -> LONG", windowLabel(short.Window)))
		case orderflow.HintShort:
			lines = append(lines, fmt.Sprintf("    [SIG] %s buy_share<50%% -> SHORT", windowLabel(short.Window)))
		}
	}
	return lines
}

func priceOrUnknown(label string, v float64) string {
	if v > 0 {
		return fmt.Sprintf("%s=%.2f", label, v)
	}
	return label + "=?"
}

func formatWindow(st models.FlowWindowStats) string {
	label := windowLabel(st.Window)
	if st.Total <= 0 {
		return label + ":0/0"
	}
	return fmt.Sprintf("%s:%.1f/%.1f (%4.1f%% buy)", label, st.BuyVolume, st.SellVolume, st.BuyShare*100)
}

func windowLabel(w float64) string {
	return fmt.Sprintf("%gs", w)
}

// pct renders a band fraction truncated to one decimal percent, e.g. 0.003 -> "0.3%".
func pct(frac float64) string {
	return fmt.Sprintf("%.1f%%", float64(int(frac*1000+1e-9))/10)
}

// FormatStats renders a sample summary in one line.
func FormatStats(label string, s outcome.Stats) string {
	if s.Count == 0 {
		return label + ": count=0"
	}
	return fmt.Sprintf("%s: count=%d, mean=%.6f, std=%.6f, med=%.6f, p5=%.6f, p95=%.6f",
		label, s.Count, s.Mean, s.Std, s.Median, s.P5, s.P95)
}

// FormatOutcomeSummary renders the return, MFE and MAE statistics of both directions.
func FormatOutcomeSummary(sum outcome.Summary) []string {
	var lines []string
	for _, d := range []struct {
		label string
		stats outcome.DirectionStats
	}{{"Down", sum.Down}, {"Up  ", sum.Up}} {
		lines = append(lines,
			FormatStats(d.label+" ret", d.stats.Ret),
			FormatStats(d.label+" mfe", d.stats.MFE),
			FormatStats(d.label+" mae", d.stats.MAE),
		)
	}
	return lines
}

// FormatGridResult renders one combination as a header line and the Down and Up
// return summaries.
func FormatGridResult(r gridsearch.Result) []string {
	return []string{
		fmt.Sprintf("window=%.2fs, bp=%g, vol_min=%g -> sweeps=%d", r.Params.WindowSec, r.Params.PriceThresholdBP,
			r.Params.VolumeMin, r.Events),
		"  " + FormatStats("Down", r.Summary.Down.Ret),
		"  " + FormatStats("Up  ", r.Summary.Up.Ret),
	}
}

// FormatSession renders the paper session counters.
func FormatSession(s strategy.Summary) string {
	line := fmt.Sprintf("session %s: sweeps=%d opens=%d closes=%d wins=%d losses=%d win_rate=%.1f%% pnl=%+.4f",
		shortID(s.SessionID), s.Sweeps, s.Opens, s.Closes, s.Wins, s.Losses, s.WinRate()*100, s.CumPnL)
	switch s.Position {
	case models.DirectionUp:
		line += " holding=long"
	case models.DirectionDown:
		line += " holding=short"
	}
	if s.Bankroll != 0 {
		line += " bankroll=" + humanize.CommafWithDigits(s.Bankroll, 2)
	}
	if !s.StartedAt.IsZero() {
		line += " started " + humanize.Time(s.StartedAt)
	}
	return line
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// GridReport is the YAML document written by a parameter scan.
type GridReport struct {
	Symbol    string              `yaml:"symbol,omitempty"`
	Source    string              `yaml:"source,omitempty"`
	Ticks     int                 `yaml:"ticks"`
	Horizon   float64             `yaml:"horizon_sec"`
	TieBreak  string              `yaml:"tie_break"`
	Generated time.Time           `yaml:"generated"`
	Results   []gridsearch.Result `yaml:"results"`
}

// WriteYAML encodes the report with two-space indentation.
func WriteYAML(w io.Writer, r GridReport) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode grid report: %w", err)
	}
	return enc.Close()
}

// ReadYAML decodes a report written by WriteYAML.
func ReadYAML(r io.Reader) (GridReport, error) {
	var rep GridReport
	if err := yaml.NewDecoder(r).Decode(&rep); err != nil {
		return GridReport{}, fmt.Errorf("decode grid report: %w", err)
	}
	return rep, nil
}

// Count renders n with thousands separators.
func Count(n int) string {
	return humanize.Comma(int64(n))
}
