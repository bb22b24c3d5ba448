package bybit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rewired-gh/sweepscope/internal/metrics"
)

const (
	DefaultStreamURL = "wss://stream.bybit.com/v5/public/linear"

	defaultPingInterval = 20 * time.Second
	readTimeout         = 30 * time.Second
	minBackoff          = time.Second
	maxBackoff          = 30 * time.Second
)

// backoff grows by 1.8x per failure up to max and drops back to min once a
// subscription is acknowledged.
type backoff struct {
	min, max, cur time.Duration
}

func newBackoff(min, max time.Duration) *backoff {
	return &backoff{min: min, max: max, cur: min}
}

func (b *backoff) next() time.Duration {
	d := b.cur
	b.cur = time.Duration(math.Min(float64(b.max), float64(b.cur)*1.8))
	return d
}

func (b *backoff) reset() {
	b.cur = b.min
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stream subscribes to the public topics of one symbol and reconnects with
// exponential backoff until its context is canceled.
type Stream struct {
	url          string
	symbol       string
	topics       []string
	pingInterval time.Duration
	log          zerolog.Logger
	onState      func(error)

	minBackoff time.Duration
	maxBackoff time.Duration
	sleep      func(context.Context, time.Duration) error
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithPingInterval overrides the application-level ping cadence.
func WithPingInterval(d time.Duration) StreamOption {
	return func(s *Stream) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

// WithTopics replaces the default subscriptions.
func WithTopics(topics []string) StreamOption {
	return func(s *Stream) {
		if len(topics) > 0 {
			s.topics = topics
		}
	}
}

// WithStateHandler registers fn to be called with the error after every
// disconnect and with nil after every acknowledged subscribe.
func WithStateHandler(fn func(error)) StreamOption {
	return func(s *Stream) { s.onState = fn }
}

// NewStream builds a stream for symbol. An empty url selects the linear endpoint.
func NewStream(url, symbol string, log zerolog.Logger, opts ...StreamOption) *Stream {
	if url == "" {
		url = DefaultStreamURL
	}
	s := &Stream{
		url:          url,
		symbol:       symbol,
		topics:       Topics(symbol),
		pingInterval: defaultPingInterval,
		log:          log,
		minBackoff:   minBackoff,
		maxBackoff:   maxBackoff,
		sleep:        sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run pushes decoded messages onto out until ctx is canceled. Subscription
// acknowledgements are forwarded as KindControl messages with Op "subscribe".
func (s *Stream) Run(ctx context.Context, out chan<- Message) error {
	if s.symbol == "" {
		return errors.New("bybit stream requires a symbol")
	}
	bo := newBackoff(s.minBackoff, s.maxBackoff)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		subscribed, err := s.consume(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if subscribed {
			bo.reset()
		}
		delay := bo.next()
		s.log.Warn().Err(err).Dur("backoff", delay).Msg("bybit stream disconnected, retrying")
		if s.onState != nil {
			s.onState(err)
		}
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// consume runs one connection and reports whether its subscription was acknowledged.
func (s *Stream) consume(ctx context.Context, out chan<- Message) (subscribed bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": s.topics}); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	// Bybit expects a JSON ping op rather than a protocol ping frame.
	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"op":"ping"}`)); err != nil {
					s.log.Warn().Err(err).Msg("bybit ping failed")
					return
				}
			case <-pingCtx.Done():
				// unblocks ReadMessage on shutdown
				conn.Close()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return subscribed, ctx.Err()
		default:
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return subscribed, err
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		msg, err := Decode(raw)
		if err != nil {
			metrics.RejectedTotal.WithLabelValues("decode").Inc()
			s.log.Warn().Err(err).Msg("failed to decode bybit message")
			continue
		}
		switch msg.Kind {
		case KindOther:
			continue
		case KindControl:
			if !msg.Success {
				s.log.Error().Str("op", msg.Op).Str("ret_msg", msg.RetMsg).Msg("bybit request rejected")
				continue
			}
			if msg.Op != "subscribe" {
				continue
			}
			subscribed = true
			s.log.Info().Str("symbol", s.symbol).Strs("topics", s.topics).Msg("subscribed to market data stream")
			if s.onState != nil {
				s.onState(nil)
			}
		case KindTrade:
			if msg.Rejected > 0 {
				metrics.RejectedTotal.WithLabelValues("trade").Add(float64(msg.Rejected))
			}
		}

		select {
		case out <- msg:
		case <-ctx.Done():
			return subscribed, ctx.Err()
		}
	}
}
