package strategy

import (
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/sweepscope/internal/models"
)

// SessionConfig sizes paper positions. With StartingEquity and Leverage both
// positive every position is bankroll*Leverage notional and PnL compounds into
// the bankroll; otherwise PnL is the raw price difference per unit.
type SessionConfig struct {
	StartingEquity float64 `mapstructure:"starting_equity"`
	Leverage       float64 `mapstructure:"leverage"`
}

func (c SessionConfig) sized() bool {
	return c.StartingEquity > 0 && c.Leverage > 0
}

// Trade is one closed round trip.
type Trade struct {
	SessionID  string           `json:"session_id"`
	Dir        models.Direction `json:"dir"`
	EntryTs    float64          `json:"entry_ts"`
	EntryPrice float64          `json:"entry_price"`
	ExitTs     float64          `json:"exit_ts"`
	ExitPrice  float64          `json:"exit_price"`
	Notional   float64          `json:"notional"`
	PnL        float64          `json:"pnl"`
	Bankroll   float64          `json:"bankroll"`
}

// Summary is a snapshot of session counters.
type Summary struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	Sweeps    int       `json:"sweeps"`
	Opens     int       `json:"opens"`
	Closes    int       `json:"closes"`
	Wins      int       `json:"wins"`
	Losses    int       `json:"losses"`
	CumPnL    float64   `json:"cum_pnl"`
	Bankroll  float64   `json:"bankroll"`

	// Position is the direction still held when the snapshot was taken.
	Position models.Direction `json:"position"`
}

// WinRate returns wins over decided trades, or 0 with none.
func (s Summary) WinRate() float64 {
	if n := s.Wins + s.Losses; n > 0 {
		return float64(s.Wins) / float64(n)
	}
	return 0
}

// Session holds the position and PnL state of one paper trading session.
// Position fields are cleared on every close; counters live until Reset.
type Session struct {
	cfg       SessionConfig
	id        string
	startedAt time.Time

	dir        models.Direction
	entryPrice float64
	entryTs    float64
	notional   float64

	bankroll float64
	cumPnL   float64
	wins     int
	losses   int
	sweeps   int
	opens    int
	closes   int
}

// NewSession starts a session with a fresh ID.
func NewSession(cfg SessionConfig) *Session {
	s := &Session{cfg: cfg}
	s.Reset()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Position returns the open direction, or DirectionNone.
func (s *Session) Position() models.Direction {
	return s.dir
}

// CountSweep records a directional sweep delivered to the engine.
func (s *Session) CountSweep() {
	s.sweeps++
}

// Apply executes an action on paper. Opening while a position is open and
// closing while flat are ignored and reported as not applied. A close returns
// the finished trade.
func (s *Session) Apply(a Action) (trade *Trade, applied bool) {
	switch a.Type {
	case OpenLong, OpenShort:
		if s.dir != models.DirectionNone || !(a.Price > 0) {
			return nil, false
		}
		s.dir = models.DirectionUp
		if a.Type == OpenShort {
			s.dir = models.DirectionDown
		}
		s.entryPrice, s.entryTs = a.Price, a.Ts
		if s.cfg.sized() {
			s.notional = s.bankroll * s.cfg.Leverage
		}
		s.opens++
		return nil, true

	case Close:
		if s.dir == models.DirectionNone {
			return nil, false
		}
		t := &Trade{
			SessionID:  s.id,
			Dir:        s.dir,
			EntryTs:    s.entryTs,
			EntryPrice: s.entryPrice,
			ExitTs:     a.Ts,
			ExitPrice:  a.Price,
			Notional:   s.notional,
		}
		if s.cfg.sized() {
			t.PnL = (a.Price - s.entryPrice) / s.entryPrice * s.notional * float64(s.dir)
			s.bankroll += t.PnL
		} else {
			t.PnL = (a.Price - s.entryPrice) * float64(s.dir)
		}
		t.Bankroll = s.bankroll
		s.cumPnL += t.PnL
		switch {
		case t.PnL > 0:
			s.wins++
		case t.PnL < 0:
			s.losses++
		}
		s.closes++
		s.clearPosition()
		return t, true
	}
	return nil, false
}

func (s *Session) clearPosition() {
	s.dir = models.DirectionNone
	s.entryPrice = 0
	s.entryTs = 0
	s.notional = 0
}

// Summary returns the current counters.
func (s *Session) Summary() Summary {
	return Summary{
		SessionID: s.id,
		StartedAt: s.startedAt,
		Sweeps:    s.sweeps,
		Opens:     s.opens,
		Closes:    s.closes,
		Wins:      s.wins,
		Losses:    s.losses,
		CumPnL:    s.cumPnL,
		Bankroll:  s.bankroll,
		Position:  s.Position(),
	}
}

// Reset starts over with a new ID and the starting equity.
func (s *Session) Reset() {
	*s = Session{
		cfg:       s.cfg,
		id:        uuid.NewString(),
		startedAt: time.Now(),
		bankroll:  s.cfg.StartingEquity,
	}
}
