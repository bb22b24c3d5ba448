package bybit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffGrowsCapsAndResets(t *testing.T) {
	b := newBackoff(time.Second, 3*time.Second)
	assert.Equal(t, time.Second, b.next())
	assert.Equal(t, 1800*time.Millisecond, b.next())
	assert.Equal(t, 3*time.Second, b.next())
	assert.Equal(t, 3*time.Second, b.next())

	b.reset()
	assert.Equal(t, time.Second, b.next())
}

func TestStreamResetsBackoffAfterSubscribeAck(t *testing.T) {
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		n := conns.Add(1)
		var sub map[string]any
		if err := c.ReadJSON(&sub); err != nil {
			return
		}
		if n == 3 {
			_ = c.WriteMessage(websocket.TextMessage, []byte(`{"success":true,"ret_msg":"","conn_id":"c3","op":"subscribe"}`))
			_ = c.WriteMessage(websocket.TextMessage, []byte(`{"topic":"publicTrade.ETHUSDT","ts":1700000000500,"data":[
				{"T":1700000000123,"s":"ETHUSDT","S":"Buy","v":"0.5","p":"2000.1"}]}`))
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var states []error
	s := NewStream("ws"+strings.TrimPrefix(srv.URL, "http"), "ETHUSDT", zerolog.Nop(),
		WithStateHandler(func(err error) { states = append(states, err) }))
	var delays []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		if len(delays) == 5 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	out := make(chan Message, 16)
	err := s.Run(ctx, out)
	assert.ErrorIs(t, err, context.Canceled)

	require.Len(t, delays, 5)
	assert.Equal(t, time.Second, delays[0])
	assert.Greater(t, delays[1], delays[0])
	assert.Equal(t, time.Second, delays[2], "acknowledged connection restarts the backoff")
	assert.Equal(t, delays[1], delays[3])
	assert.Greater(t, delays[4], delays[3])

	require.Len(t, states, 6)
	assert.Error(t, states[0])
	assert.Error(t, states[1])
	assert.NoError(t, states[2])
	assert.Error(t, states[3])

	require.Len(t, out, 2)
	ack := <-out
	assert.Equal(t, KindControl, ack.Kind)
	assert.Equal(t, "subscribe", ack.Op)
	trade := <-out
	assert.Equal(t, KindTrade, trade.Kind)
	require.Len(t, trade.Trades, 1)
}
