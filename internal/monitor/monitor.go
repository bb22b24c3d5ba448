// Package monitor drives the live pipeline: decoded stream messages go through
// the streaming sweep detector, the paper strategy and the order-flow probe, and
// the results fan out to storage, Redis, Telegram and Prometheus.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/rewired-gh/sweepscope/internal/bybit"
	"github.com/rewired-gh/sweepscope/internal/metrics"
	"github.com/rewired-gh/sweepscope/internal/models"
	"github.com/rewired-gh/sweepscope/internal/orderflow"
	"github.com/rewired-gh/sweepscope/internal/strategy"
	"github.com/rewired-gh/sweepscope/internal/sweep"
)

type Config struct {
	Symbol string `mapstructure:"-"`
	// Cooldown suppresses repeat notifications in the same direction, measured
	// in event time.
	Cooldown time.Duration `mapstructure:"cooldown"`
	// Escalation lets a sweep through the cooldown when its volume is at least
	// this multiple of the last notified one. Zero disables it.
	Escalation float64 `mapstructure:"escalation"`
}

func DefaultConfig() Config {
	return Config{Cooldown: 60 * time.Second, Escalation: 2}
}

// Notifier announces signals and closed trades to people.
type Notifier interface {
	NotifySweep(symbol, signal string, ev models.SweepEvent, action string) error
	NotifyTrade(symbol string, t *strategy.Trade) error
}

// Publisher fans signals and pulses out to machines.
type Publisher interface {
	PublishSweep(ctx context.Context, symbol, signal string, ev models.SweepEvent) error
	PublishPulse(ctx context.Context, symbol string, p orderflow.Pulse) error
}

// EventSink persists what a live run produced.
type EventSink interface {
	AppendEvent(runID string, e models.SweepEvent) error
	SaveTrade(runID string, t *strategy.Trade) error
}

// Stats counts what the monitor has handled so far.
type Stats struct {
	Ticks      int              `json:"ticks"`
	Rejected   int              `json:"rejected"`
	Signals    int              `json:"signals"`
	Undirected int              `json:"undirected"`
	Notified   int              `json:"notified"`
	Pulses     int              `json:"pulses"`
	Resyncs    int              `json:"resyncs"`
	Session    strategy.Summary `json:"session"`
}

// resettable sources drop their window state when the stream resubscribes,
// since trades missed while disconnected leave a gap.
type resettable interface {
	Reset()
	Accepted() int
}

type notifiedRecord struct {
	Volume float64
	SentAt float64
}

type Option func(*Monitor)

// WithProbe feeds trades, book and ticker updates to p and polls it for pulses.
func WithProbe(p *orderflow.Probe) Option {
	return func(m *Monitor) { m.probe = p }
}

func WithNotifier(n Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

func WithPublisher(p Publisher) Option {
	return func(m *Monitor) { m.pub = p }
}

// WithSink stores events and trades under runID.
func WithSink(s EventSink, runID string) Option {
	return func(m *Monitor) { m.sink, m.runID = s, runID }
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

// WithPulseHandler receives every emitted pulse, e.g. to print it.
func WithPulseHandler(fn func(orderflow.Pulse)) Option {
	return func(m *Monitor) { m.onPulse = fn }
}

// Monitor is safe for concurrent use; Handle calls are serialized.
type Monitor struct {
	cfg  Config
	src  sweep.TickSignalSource
	eng  strategy.Engine
	sess *strategy.Session

	probe    *orderflow.Probe
	notifier Notifier
	pub      Publisher
	sink     EventSink
	runID    string
	onPulse  func(orderflow.Pulse)
	log      zerolog.Logger

	mu       sync.Mutex
	stats    Stats
	notified map[models.Direction]notifiedRecord
	lastTs   float64

	// set by the first subscription acknowledgement
	subscribed bool

	// notifications run off the hot path
	wg conc.WaitGroup
}

// New builds a monitor. With a nil src only the probe runs; src, eng and sess
// must otherwise all be set.
func New(cfg Config, src sweep.TickSignalSource, eng strategy.Engine, sess *strategy.Session, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:      cfg,
		src:      src,
		eng:      eng,
		sess:     sess,
		log:      zerolog.Nop(),
		notified: make(map[models.Direction]notifiedRecord),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run handles messages until ctx is cancelled or in is closed, then waits for
// pending notifications.
func (m *Monitor) Run(ctx context.Context, in <-chan bybit.Message) error {
	defer m.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			m.Handle(ctx, msg)
		}
	}
}

// Handle processes one decoded stream message and polls the probe afterwards.
func (m *Monitor) Handle(ctx context.Context, msg bybit.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := msg.Ts
	switch msg.Kind {
	case bybit.KindTrade:
		for _, t := range msg.Trades {
			m.onTrade(ctx, t)
			if t.Ts > now {
				now = t.Ts
			}
		}
		if msg.Rejected > 0 {
			m.stats.Rejected += msg.Rejected
		}
	case bybit.KindBook:
		if m.probe != nil && msg.Book != nil {
			if err := m.probe.OnBook(*msg.Book); err != nil {
				metrics.RejectedTotal.WithLabelValues("book").Inc()
				m.log.Warn().Err(err).Str("topic", msg.Topic).Msg("book update rejected")
			}
		}
	case bybit.KindTicker:
		if m.probe != nil && msg.LastPrice > 0 {
			m.probe.OnLastPrice(msg.LastPrice)
		}
	case bybit.KindControl:
		if msg.Op == "subscribe" && msg.Success {
			m.onSubscribed()
		}
		return
	default:
		return
	}

	if now < m.lastTs {
		now = m.lastTs
	}
	m.lastTs = now
	m.poll(ctx, now)
}

func (m *Monitor) onSubscribed() {
	if !m.subscribed {
		m.subscribed = true
		return
	}
	r, ok := m.src.(resettable)
	if !ok {
		return
	}
	m.log.Info().Int("accepted", r.Accepted()).Msg("stream resubscribed, resetting sweep detector")
	r.Reset()
	m.stats.Resyncs++
}

func (m *Monitor) reject(t models.Tick, err error, by string) {
	reason := "invalid"
	if errors.Is(err, models.ErrOutOfOrder) {
		reason = "out_of_order"
	}
	metrics.RejectedTotal.WithLabelValues(reason).Inc()
	m.stats.Rejected++
	m.log.Debug().Err(err).Float64("ts", t.Ts).Msg(by + " rejected trade")
}

func (m *Monitor) onTrade(ctx context.Context, t models.Tick) {
	var probeErr error
	if m.probe != nil {
		probeErr = m.probe.OnTrade(t)
	}

	if m.src == nil {
		if probeErr != nil {
			m.reject(t, probeErr, "probe")
			return
		}
		m.stats.Ticks++
		metrics.TicksTotal.WithLabelValues(m.cfg.Symbol).Inc()
		return
	}
	if probeErr != nil {
		m.log.Debug().Err(probeErr).Float64("ts", t.Ts).Msg("probe skipped trade")
	}

	sig, err := m.src.ProcessTick(t)
	if err != nil {
		m.reject(t, err, "detector")
		return
	}
	m.stats.Ticks++
	metrics.TicksTotal.WithLabelValues(m.cfg.Symbol).Inc()

	if sig.Fired() {
		m.onSignal(ctx, sig, m.src.LastEvent())
	}
	m.apply(m.eng.OnTick(t.Ts, t.Price))
}

func (m *Monitor) onSignal(ctx context.Context, sig sweep.Signal, ev models.SweepEvent) {
	m.stats.Signals++
	metrics.SweepsTotal.WithLabelValues(sig.String()).Inc()
	m.log.Info().
		Str("signal", sig.String()).
		Float64("ts_end", ev.TsEnd).
		Float64("price_start", ev.PriceStart).
		Float64("price_end", ev.PriceEnd).
		Float64("volume", ev.VolumeTotal).
		Msg("sweep detected")

	if m.sink != nil {
		if err := m.sink.AppendEvent(m.runID, ev); err != nil {
			m.log.Warn().Err(err).Msg("failed to store sweep event")
		}
	}

	var act strategy.Action
	if ev.Directional() {
		m.sess.CountSweep()
		act = m.eng.OnSweep(ev)
		if !m.apply(act) {
			act = strategy.Action{}
		}
	} else {
		m.stats.Undirected++
	}

	if m.pub != nil {
		if err := m.pub.PublishSweep(ctx, m.cfg.Symbol, sig.String(), ev); err != nil {
			m.log.Warn().Err(err).Msg("failed to publish sweep")
		}
	}

	if m.notifier != nil && m.shouldNotify(ev) {
		m.recordNotified(ev)
		m.stats.Notified++
		symbol, signal, action := m.cfg.Symbol, sig.String(), describeAction(act)
		m.wg.Go(func() {
			if err := m.notifier.NotifySweep(symbol, signal, ev, action); err != nil {
				m.log.Warn().Err(err).Msg("failed to send sweep notification")
			}
		})
	}
}

// apply executes a on the session and reports whether it took effect.
func (m *Monitor) apply(a strategy.Action) bool {
	t, ok := m.sess.Apply(a)
	if !ok {
		return false
	}
	metrics.ActionsTotal.WithLabelValues(a.Type.String()).Inc()
	if t == nil {
		m.log.Info().Str("action", a.Type.String()).Float64("price", a.Price).Msg("paper position opened")
		return true
	}

	sum := m.sess.Summary()
	metrics.SessionPnL.Set(sum.CumPnL)
	m.log.Info().
		Str("dir", t.Dir.String()).
		Float64("entry", t.EntryPrice).
		Float64("exit", t.ExitPrice).
		Float64("pnl", t.PnL).
		Float64("cum_pnl", sum.CumPnL).
		Msg("paper trade closed")

	if m.sink != nil {
		if err := m.sink.SaveTrade(m.runID, t); err != nil {
			m.log.Warn().Err(err).Msg("failed to store trade")
		}
	}
	if m.notifier != nil {
		symbol := m.cfg.Symbol
		m.wg.Go(func() {
			if err := m.notifier.NotifyTrade(symbol, t); err != nil {
				m.log.Warn().Err(err).Msg("failed to send trade notification")
			}
		})
	}
	return true
}

func (m *Monitor) poll(ctx context.Context, now float64) {
	if m.probe == nil || now <= 0 {
		return
	}
	p, ok := m.probe.Poll(now)
	if !ok {
		return
	}
	m.stats.Pulses++
	metrics.PulsesTotal.Inc()
	if m.onPulse != nil {
		m.onPulse(p)
	}
	if m.pub != nil {
		if err := m.pub.PublishPulse(ctx, m.cfg.Symbol, p); err != nil {
			m.log.Warn().Err(err).Msg("failed to publish pulse")
		}
	}
}

// shouldNotify drops a sweep that repeats the last notified direction within
// the cooldown, unless its volume escalated.
func (m *Monitor) shouldNotify(ev models.SweepEvent) bool {
	rec, exists := m.notified[ev.Direction]
	if !exists || ev.TsEnd-rec.SentAt >= m.cfg.Cooldown.Seconds() {
		return true
	}
	return m.cfg.Escalation > 0 && ev.VolumeTotal >= m.cfg.Escalation*rec.Volume
}

func (m *Monitor) recordNotified(ev models.SweepEvent) {
	m.notified[ev.Direction] = notifiedRecord{Volume: ev.VolumeTotal, SentAt: ev.TsEnd}
}

func describeAction(a strategy.Action) string {
	switch a.Type {
	case strategy.OpenLong:
		return fmt.Sprintf("open long @ %g", a.Price)
	case strategy.OpenShort:
		return fmt.Sprintf("open short @ %g", a.Price)
	case strategy.Close:
		side := "long"
		if a.Dir == models.DirectionDown {
			side = "short"
		}
		return fmt.Sprintf("close %s @ %g", side, a.Price)
	default:
		return ""
	}
}

// Stats returns a snapshot of the counters and the session summary.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stats
	if m.sess != nil {
		st.Session = m.sess.Summary()
	}
	return st
}

// Wait blocks until queued notifications are sent.
func (m *Monitor) Wait() {
	m.wg.Wait()
}
