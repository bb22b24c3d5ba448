// Package outcome measures what price did after each sweep event: the return at
// a fixed horizon and the favorable and adverse excursions along the way.
package outcome

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rewired-gh/sweepscope/internal/models"
)

// Result holds the scored records and the reasons other events were not scored.
type Result struct {
	Records []models.OutcomeRecord

	// NoForwardTick counts events with no tick at or after ts_end.
	NoForwardTick int
	// NoHorizonTick counts events with no tick after the reference tick within the horizon.
	NoHorizonTick int
	// Undirected counts direction-0 events, which are never scored.
	Undirected int
}

// Evaluated returns the number of scored events.
func (r Result) Evaluated() int {
	return len(r.Records)
}

// ValidateHorizon checks that horizon is a positive finite number of seconds.
func ValidateHorizon(horizon float64) error {
	if !(horizon > 0) || math.IsInf(horizon, 0) {
		return fmt.Errorf("evaluator horizon must be positive, got %v", horizon)
	}
	return nil
}

// Reasons an event cannot be scored. Both wrap models.ErrInsufficientHistory.
var (
	ErrNoForwardTick = fmt.Errorf("%w: no tick at or after event end", models.ErrInsufficientHistory)
	ErrNoHorizonTick = fmt.Errorf("%w: no tick after the reference tick within the horizon", models.ErrInsufficientHistory)
)

// Score measures one directional event against ticks sorted by Ts. The
// reference price is the first tick at or after ts_end; the horizon window ends
// at ts_end + horizon and the horizon price is the last tick inside it.
func Score(ticks []models.Tick, ev models.SweepEvent, horizon float64) (models.OutcomeRecord, error) {
	if !ev.Directional() {
		return models.OutcomeRecord{}, fmt.Errorf("%w: event has no direction", models.ErrMalformedInput)
	}
	n := len(ticks)
	t0 := ev.TsEnd
	t1 := t0 + horizon

	i0 := sort.Search(n, func(i int) bool { return ticks[i].Ts >= t0 })
	if i0 == n {
		return models.OutcomeRecord{}, ErrNoForwardTick
	}

	price0 := ticks[i0].Price
	maxP, minP := price0, price0
	j := i0
	for j < n && ticks[j].Ts <= t1 {
		p := ticks[j].Price
		if p > maxP {
			maxP = p
		}
		if p < minP {
			minP = p
		}
		j++
	}
	if j-i0 < 2 {
		return models.OutcomeRecord{}, ErrNoHorizonTick
	}

	priceT := ticks[j-1].Price
	rec := models.OutcomeRecord{
		Direction:   ev.Direction,
		RetH:        (priceT - price0) / price0,
		VolumeTotal: ev.VolumeTotal,
	}
	if ev.Direction == models.DirectionDown {
		rec.MFEH = (minP - price0) / price0
		rec.MAEH = (maxP - price0) / price0
	} else {
		rec.MFEH = (maxP - price0) / price0
		rec.MAEH = (minP - price0) / price0
	}
	return rec, nil
}

// Evaluate scores each directional event with Score. Events in any order are
// accepted; records keep the order of events.
func Evaluate(ticks []models.Tick, events []models.SweepEvent, horizon float64) Result {
	var res Result
	for idx, ev := range events {
		if !ev.Directional() {
			res.Undirected++
			continue
		}
		rec, err := Score(ticks, ev, horizon)
		switch {
		case errors.Is(err, ErrNoForwardTick):
			res.NoForwardTick++
			continue
		case errors.Is(err, ErrNoHorizonTick):
			res.NoHorizonTick++
			continue
		}
		rec.EventIndex = idx
		res.Records = append(res.Records, rec)
	}
	return res
}

// DirectionStats summarizes returns and excursions of one direction.
type DirectionStats struct {
	Ret Stats `json:"ret" yaml:"ret"`
	MFE Stats `json:"mfe" yaml:"mfe"`
	MAE Stats `json:"mae" yaml:"mae"`
}

// Summary splits outcome statistics by direction.
type Summary struct {
	Up   DirectionStats `json:"up" yaml:"up"`
	Down DirectionStats `json:"down" yaml:"down"`
}

// SummarizeByDirection computes stats independently over Up and Down records.
func SummarizeByDirection(records []models.OutcomeRecord) Summary {
	var up, down struct{ ret, mfe, mae []float64 }
	for _, r := range records {
		switch r.Direction {
		case models.DirectionUp:
			up.ret = append(up.ret, r.RetH)
			up.mfe = append(up.mfe, r.MFEH)
			up.mae = append(up.mae, r.MAEH)
		case models.DirectionDown:
			down.ret = append(down.ret, r.RetH)
			down.mfe = append(down.mfe, r.MFEH)
			down.mae = append(down.mae, r.MAEH)
		}
	}
	return Summary{
		Up:   DirectionStats{Ret: Summarize(up.ret), MFE: Summarize(up.mfe), MAE: Summarize(up.mae)},
		Down: DirectionStats{Ret: Summarize(down.ret), MFE: Summarize(down.mfe), MAE: Summarize(down.mae)},
	}
}
