package models

import (
	"errors"
	"math"
	"testing"
)

func TestTickValidate(t *testing.T) {
	tests := []struct {
		name    string
		tick    Tick
		wantErr bool
	}{
		{
			name: "valid buy",
			tick: Tick{Ts: 1700000000.125, Price: 2000.5, Volume: 0.3, Side: SideBuy},
		},
		{
			name: "zero volume allowed",
			tick: Tick{Ts: 1, Price: 1, Volume: 0, Side: SideSell},
		},
		{
			name:    "zero price",
			tick:    Tick{Ts: 1, Price: 0, Volume: 1, Side: SideBuy},
			wantErr: true,
		},
		{
			name:    "negative volume",
			tick:    Tick{Ts: 1, Price: 10, Volume: -1, Side: SideBuy},
			wantErr: true,
		},
		{
			name:    "NaN price",
			tick:    Tick{Ts: 1, Price: math.NaN(), Volume: 1, Side: SideBuy},
			wantErr: true,
		},
		{
			name:    "missing side",
			tick:    Tick{Ts: 1, Price: 10, Volume: 1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tick.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Tick.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMalformedInput) {
				t.Errorf("error %v does not wrap ErrMalformedInput", err)
			}
		})
	}
}

func TestParseSide(t *testing.T) {
	tests := []struct {
		code    string
		want    Side
		wantErr bool
	}{
		{"B", SideBuy, false},
		{"Buy", SideBuy, false},
		{"BUY", SideBuy, false},
		{"S", SideSell, false},
		{"Sell", SideSell, false},
		{" sell ", SideSell, false},
		{"", 0, true},
		{"X", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got, err := ParseSide(tt.code)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSide(%q) error = %v, wantErr %v", tt.code, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSide(%q) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestCheckOrdered(t *testing.T) {
	ordered := []Tick{{Ts: 1}, {Ts: 1}, {Ts: 2}}
	if err := CheckOrdered(ordered); err != nil {
		t.Errorf("CheckOrdered(non-decreasing) = %v, want nil", err)
	}
	regress := []Tick{{Ts: 1}, {Ts: 3}, {Ts: 2}}
	if err := CheckOrdered(regress); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("CheckOrdered(regression) = %v, want ErrOutOfOrder", err)
	}
}

func TestSweepEventValidate(t *testing.T) {
	ok := SweepEvent{TsStart: 1, TsEnd: 2, Direction: DirectionUp, PriceStart: 100, PriceEnd: 101, VolumeTotal: 5}
	if err := ok.Validate(); err != nil {
		t.Errorf("valid event: %v", err)
	}
	if !ok.Directional() {
		t.Error("up event should be directional")
	}

	reversed := ok
	reversed.TsStart = 3
	if err := reversed.Validate(); err == nil {
		t.Error("expected error for ts_start > ts_end")
	}

	for _, ts := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		bad := ok
		bad.TsEnd = ts
		if err := bad.Validate(); !errors.Is(err, ErrMalformedInput) {
			t.Errorf("ts_end %v: got %v, want ErrMalformedInput", ts, err)
		}
		bad = ok
		bad.TsStart = ts
		if err := bad.Validate(); !errors.Is(err, ErrMalformedInput) {
			t.Errorf("ts_start %v: got %v, want ErrMalformedInput", ts, err)
		}
	}

	nanPrice := ok
	nanPrice.PriceEnd = math.NaN()
	if err := nanPrice.Validate(); err == nil {
		t.Error("expected error for NaN price")
	}

	spike := ok
	spike.Direction = DirectionNone
	if err := spike.Validate(); err != nil {
		t.Errorf("un-directional event is valid: %v", err)
	}
	if spike.Directional() {
		t.Error("spike must not be directional")
	}
}

func TestNewFlowWindowStats(t *testing.T) {
	s := NewFlowWindowStats(1, 3, 1)
	if s.Total != 4 || s.Net != 2 || s.BuyShare != 0.75 {
		t.Errorf("got %+v", s)
	}
	empty := NewFlowWindowStats(1, 0, 0)
	if empty.BuyShare != 0 {
		t.Errorf("empty window buy_share = %v, want 0", empty.BuyShare)
	}
}

func TestBookUpdateValidate(t *testing.T) {
	u := BookUpdate{Type: BookDelta, Bids: []BookLevel{{Price: 100, Size: 0}}}
	if err := u.Validate(); err != nil {
		t.Errorf("zero-size removal is valid: %v", err)
	}
	u.Type = "partial"
	if err := u.Validate(); err == nil {
		t.Error("expected error for unknown type")
	}
	bad := BookUpdate{Type: BookSnapshot, Asks: []BookLevel{{Price: -1, Size: 1}}}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for negative price")
	}
}

func TestTimeOfRoundTrip(t *testing.T) {
	ts := 1700000000.5
	if got := TimeOf(ts); got.Unix() != 1700000000 || got.Nanosecond() != 500000000 {
		t.Errorf("TimeOf(%v) = %v", ts, got)
	}
	if got := SecondsFromMillis(1700000000500); got != ts {
		t.Errorf("SecondsFromMillis = %v, want %v", got, ts)
	}
}
