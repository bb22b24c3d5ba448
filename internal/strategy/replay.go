package strategy

import (
	"errors"
	"fmt"
	"io"

	"github.com/rewired-gh/sweepscope/internal/models"
	"github.com/rewired-gh/sweepscope/internal/sweep"
)

// TickIterator yields ticks in time order and io.EOF at the end of the stream.
type TickIterator interface {
	Next() (models.Tick, error)
}

// ReplayOptions tunes an offline replay.
type ReplayOptions struct {
	// Limit stops after this many ticks; 0 replays everything.
	Limit int
	// OnTrade, if set, receives every closed trade.
	OnTrade func(Trade)
}

// ReplayStats summarizes an offline replay.
type ReplayStats struct {
	Ticks      int     `json:"ticks"`
	Rejected   int     `json:"rejected"`
	Signals    int     `json:"signals"`
	Undirected int     `json:"undirected"`
	Session    Summary `json:"session"`
}

// Replay pushes ticks through src, hands directional events to eng and applies the
// resulting actions to sess. Every accepted tick is also passed to eng.OnTick.
// Malformed ticks are counted and skipped; an ordering violation stops the replay.
func Replay(it TickIterator, src sweep.TickSignalSource, eng Engine, sess *Session, opts ReplayOptions) (ReplayStats, error) {
	var st ReplayStats
	apply := func(a Action) {
		if t, ok := sess.Apply(a); ok && t != nil && opts.OnTrade != nil {
			opts.OnTrade(*t)
		}
	}

	for opts.Limit == 0 || st.Ticks+st.Rejected < opts.Limit {
		t, err := it.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			st.Session = sess.Summary()
			return st, fmt.Errorf("read tick: %w", err)
		}

		sig, err := src.ProcessTick(t)
		if err != nil {
			if errors.Is(err, models.ErrOutOfOrder) {
				st.Session = sess.Summary()
				return st, err
			}
			st.Rejected++
			continue
		}
		st.Ticks++

		if sig.Fired() {
			st.Signals++
			ev := src.LastEvent()
			if ev.Directional() {
				sess.CountSweep()
				apply(eng.OnSweep(ev))
			} else {
				st.Undirected++
			}
		}
		apply(eng.OnTick(t.Ts, t.Price))
	}

	st.Session = sess.Summary()
	return st, nil
}
