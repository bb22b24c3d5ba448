package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"

	"github.com/rewired-gh/sweepscope/internal/models"
	"github.com/rewired-gh/sweepscope/internal/orderflow"
)

func TestPublishSweep(t *testing.T) {
	db, mock := redismock.NewClientMock()
	p := New(db, "", 0)

	ev := models.SweepEvent{TsStart: 1, TsEnd: 1.5, Direction: models.DirectionUp, PriceStart: 100, PriceEnd: 100.1, VolumeTotal: 6}
	want := `{"symbol":"ETHUSDT","signal":"up_sweep","event":{"ts_start":1,"ts_end":1.5,"direction":1,"price_start":100,"price_end":100.1,"volume_total":6}}`
	mock.ExpectPublish("sweepscope:ETHUSDT:sweeps", want).SetVal(1)

	if err := p.PublishSweep(context.Background(), "ETHUSDT", "up_sweep", ev); err != nil {
		t.Fatalf("PublishSweep: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("redis expectations not met: %v", err)
	}
}

func TestPublishPulseStoresLatest(t *testing.T) {
	db, mock := redismock.NewClientMock()
	p := New(db, "test", time.Minute)

	pulse := orderflow.Pulse{
		Ts:   10,
		Mid:  2000,
		Flow: orderflow.FlowSummary{models.NewFlowWindowStats(1, 3, 1)},
		Hint: orderflow.HintLong,
	}
	want := `{"symbol":"ETHUSDT","pulse":{"ts":10,"mid":2000,"mid_from_book":false,"flow":[{"window":1,"buy_volume":3,"sell_volume":1,"total":4,"buy_share":0.75,"net":2}],"depth":null,"hint":"LONG"}}`
	mock.ExpectPublish("test:ETHUSDT:pulses", want).SetVal(0)
	mock.ExpectSet("test:ETHUSDT:pulse:latest", want, time.Minute).SetVal("OK")

	if err := p.PublishPulse(context.Background(), "ETHUSDT", pulse); err != nil {
		t.Fatalf("PublishPulse: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("redis expectations not met: %v", err)
	}
}

func TestPublishErrorsAreWrapped(t *testing.T) {
	db, mock := redismock.NewClientMock()
	p := New(db, "", 0)
	mock.ExpectPublish("sweepscope:BTCUSDT:sweeps", `{"symbol":"BTCUSDT","signal":"spike","event":{"ts_start":0,"ts_end":0,"direction":0,"price_start":1,"price_end":1,"volume_total":0}}`).
		SetErr(errors.New("connection refused"))

	err := p.PublishSweep(context.Background(), "BTCUSDT", "spike", models.SweepEvent{PriceStart: 1, PriceEnd: 1})
	if err == nil || err.Error() != "redis publish: connection refused" {
		t.Fatalf("unexpected error %v", err)
	}
}
