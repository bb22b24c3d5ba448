// Package bybit talks to the Bybit v5 public market data API: the websocket stream
// for trades, order book and ticker updates, and the REST recent-trade endpoint.
package bybit

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rewired-gh/sweepscope/internal/models"
)

// Kind classifies a decoded stream message.
type Kind int

const (
	KindOther Kind = iota
	KindTrade
	KindBook
	KindTicker
	KindControl
)

func (k Kind) String() string {
	switch k {
	case KindTrade:
		return "trade"
	case KindBook:
		return "book"
	case KindTicker:
		return "ticker"
	case KindControl:
		return "control"
	default:
		return "other"
	}
}

// Message is one decoded websocket frame.
type Message struct {
	Kind   Kind
	Topic  string
	Symbol string
	// Ts is the server timestamp of the frame in seconds, zero when absent.
	Ts float64

	Trades    []models.Tick
	Book      *models.BookUpdate
	LastPrice float64
	// Rejected counts trades in the frame that could not be parsed.
	Rejected int

	Op      string
	Success bool
	RetMsg  string
}

// Topics returns the stream subscriptions for one symbol.
func Topics(symbol string) []string {
	return []string{
		"publicTrade." + symbol,
		"orderbook.50." + symbol,
		"tickers." + symbol,
	}
}

type envelope struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Ts      int64           `json:"ts"`
	Data    json.RawMessage `json:"data"`
	Op      string          `json:"op"`
	Success *bool           `json:"success"`
	RetMsg  string          `json:"ret_msg"`
}

// The trade payload carries both "s" (symbol) and "S" (side). Both fields are
// declared so encoding/json matches each key exactly.
type wsTrade struct {
	T      json.Number `json:"T"`
	Symbol string      `json:"s"`
	Side   string      `json:"S"`
	Volume string      `json:"v"`
	Price  string      `json:"p"`
}

type wsBook struct {
	Symbol string      `json:"s"`
	Bids   [][2]string `json:"b"`
	Asks   [][2]string `json:"a"`
}

type wsTicker struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
}

// Decode parses one raw frame. Malformed trades inside a trade frame are counted
// in Rejected rather than failing the frame. A malformed book frame is an error
// since applying part of it would corrupt the local book.
func Decode(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
	}

	msg := Message{Topic: env.Topic, Symbol: topicSymbol(env.Topic)}
	if env.Ts > 0 {
		msg.Ts = models.SecondsFromMillis(env.Ts)
	}

	if env.Topic == "" {
		if env.Op != "" {
			msg.Kind = KindControl
			msg.Op = env.Op
			msg.Success = env.Success == nil || *env.Success
			msg.RetMsg = env.RetMsg
		}
		return msg, nil
	}

	switch {
	case strings.HasPrefix(env.Topic, "publicTrade"):
		msg.Kind = KindTrade
		var items []json.RawMessage
		if err := json.Unmarshal(env.Data, &items); err != nil {
			return Message{}, fmt.Errorf("%w: trade data: %v", models.ErrMalformedInput, err)
		}
		for _, item := range items {
			t, err := decodeTrade(item)
			if err != nil {
				msg.Rejected++
				continue
			}
			msg.Trades = append(msg.Trades, t)
		}
	case strings.HasPrefix(env.Topic, "orderbook"):
		msg.Kind = KindBook
		var b wsBook
		if err := json.Unmarshal(env.Data, &b); err != nil {
			return Message{}, fmt.Errorf("%w: book data: %v", models.ErrMalformedInput, err)
		}
		upd := &models.BookUpdate{Ts: msg.Ts, Type: models.BookDelta}
		if env.Type == string(models.BookSnapshot) {
			upd.Type = models.BookSnapshot
		}
		var err error
		if upd.Bids, err = decodeLevels(b.Bids); err != nil {
			return Message{}, err
		}
		if upd.Asks, err = decodeLevels(b.Asks); err != nil {
			return Message{}, err
		}
		msg.Book = upd
	case strings.HasPrefix(env.Topic, "tickers"):
		msg.Kind = KindTicker
		var tk wsTicker
		if err := json.Unmarshal(env.Data, &tk); err != nil {
			return Message{}, fmt.Errorf("%w: ticker data: %v", models.ErrMalformedInput, err)
		}
		// Ticker deltas omit unchanged fields.
		if tk.LastPrice != "" {
			if p, err := strconv.ParseFloat(tk.LastPrice, 64); err == nil && p > 0 {
				msg.LastPrice = p
			}
		}
	}
	return msg, nil
}

func decodeTrade(raw json.RawMessage) (models.Tick, error) {
	var wt wsTrade
	if err := json.Unmarshal(raw, &wt); err != nil {
		return models.Tick{}, err
	}
	ms, err := wt.T.Int64()
	if err != nil {
		return models.Tick{}, fmt.Errorf("%w: trade time %q", models.ErrMalformedInput, wt.T)
	}
	price, err := strconv.ParseFloat(wt.Price, 64)
	if err != nil {
		return models.Tick{}, fmt.Errorf("%w: trade price %q", models.ErrMalformedInput, wt.Price)
	}
	vol, err := strconv.ParseFloat(wt.Volume, 64)
	if err != nil {
		return models.Tick{}, fmt.Errorf("%w: trade size %q", models.ErrMalformedInput, wt.Volume)
	}
	side, err := models.ParseSide(wt.Side)
	if err != nil {
		return models.Tick{}, err
	}
	t := models.Tick{Ts: models.SecondsFromMillis(ms), Price: price, Volume: vol, Side: side}
	return t, t.Validate()
}

func decodeLevels(raw [][2]string) ([]models.BookLevel, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]models.BookLevel, 0, len(raw))
	for _, lvl := range raw {
		p, err := strconv.ParseFloat(lvl[0], 64)
		if err != nil || !(p > 0) {
			return nil, fmt.Errorf("%w: book price %q", models.ErrMalformedInput, lvl[0])
		}
		s, err := strconv.ParseFloat(lvl[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: book size %q", models.ErrMalformedInput, lvl[1])
		}
		out = append(out, models.BookLevel{Price: p, Size: s})
	}
	return out, nil
}

func topicSymbol(topic string) string {
	if i := strings.LastIndexByte(topic, '.'); i >= 0 {
		return topic[i+1:]
	}
	return ""
}
