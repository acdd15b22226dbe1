package types

import "testing"

func TestInRangeAndClamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		price     int
		wantValid bool
		wantClamp int
	}{
		{0, false, 1},
		{1, true, 1},
		{50, true, 50},
		{99, true, 99},
		{100, false, 99},
	}

	for _, tt := range tests {
		if got := InRange(tt.price); got != tt.wantValid {
			t.Errorf("InRange(%d) = %v, want %v", tt.price, got, tt.wantValid)
		}
		if got := Clamp(tt.price); got != tt.wantClamp {
			t.Errorf("Clamp(%d) = %d, want %d", tt.price, got, tt.wantClamp)
		}
	}
}

func TestBBODerived(t *testing.T) {
	t.Parallel()

	b := BBO{BidPrice: 50, BidSize: 10, AskPrice: 60, AskSize: 20}
	if got := b.Spread(); got != 10 {
		t.Errorf("Spread() = %d, want 10", got)
	}
	if got := b.MidFloat(); got != 55.0 {
		t.Errorf("MidFloat() = %v, want 55.0", got)
	}
}

func TestExchangeStatusFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want OrderStatus
	}{
		{"resting", StatusOpen},
		{"RESTING", StatusOpen},
		{"pending", StatusPending},
		{"executed", StatusFilled},
		{"canceled", StatusCancelled},
		{"cancelled", StatusCancelled},
		{"CANCELLED", StatusCancelled},
		{"weird", StatusPending},
	}

	for _, tt := range tests {
		if got := ExchangeStatusFromString(tt.in); got != tt.want {
			t.Errorf("ExchangeStatusFromString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQuoteEqual(t *testing.T) {
	t.Parallel()

	a := Quote{Ticker: "FOO", BidPrice: 50, BidSize: 5, AskPrice: 55, AskSize: 5}
	b := a
	if !a.Equal(b) {
		t.Fatal("expected equal quotes to compare equal")
	}
	b.BidSize = 6
	if a.Equal(b) {
		t.Fatal("expected differing quotes to compare unequal")
	}
}

func TestPositionNetExposure(t *testing.T) {
	t.Parallel()

	p := Position{YesContracts: 10, NoContracts: 3}
	if got := p.NetExposure(); got != 7 {
		t.Errorf("NetExposure() = %d, want 7", got)
	}
}
