package risk

import (
	"testing"

	"cents-quoter/pkg/types"
)

func testDrawdownParams() DrawdownParams {
	return DrawdownParams{ScaleDownStart: 100, HalfSizeDrawdown: 300, HaltDrawdown: 500}
}

func TestDrawdownManagerMultiplierBelowScaleDownStart(t *testing.T) {
	t.Parallel()

	d := NewDrawdownManager(testDrawdownParams())
	d.Observe(1000)
	d.Observe(950) // drawdown 50, below scale_down_start

	if m := d.PositionMultiplier(); m != 1.0 {
		t.Errorf("PositionMultiplier() = %v, want 1.0", m)
	}
}

func TestDrawdownManagerMultiplierAtHalfSize(t *testing.T) {
	t.Parallel()

	d := NewDrawdownManager(testDrawdownParams())
	d.Observe(1000)
	d.Observe(700) // drawdown 300 == half_size_drawdown

	if m := d.PositionMultiplier(); m != 0.5 {
		t.Errorf("PositionMultiplier() = %v, want 0.5", m)
	}
}

func TestDrawdownManagerMultiplierAtHalt(t *testing.T) {
	t.Parallel()

	d := NewDrawdownManager(testDrawdownParams())
	d.Observe(1000)
	d.Observe(400) // drawdown 600 > halt_drawdown

	if m := d.PositionMultiplier(); m != 0.0 {
		t.Errorf("PositionMultiplier() = %v, want 0.0", m)
	}
}

func TestDrawdownManagerApplyMultiplierPreservesZeroSides(t *testing.T) {
	t.Parallel()

	d := NewDrawdownManager(testDrawdownParams())
	d.Observe(1000)
	d.Observe(700) // multiplier 0.5

	q := types.Quote{BidPrice: 50, BidSize: 5, AskPrice: 55, AskSize: 0}
	scaled, ok := d.ApplyMultiplier(q, 0)
	if !ok {
		t.Fatal("expected ok=true at multiplier 0.5")
	}
	if scaled.AskSize != 0 {
		t.Errorf("AskSize = %d, want 0 (zeroed side must stay zeroed)", scaled.AskSize)
	}
	if scaled.BidSize < 1 {
		t.Errorf("BidSize = %d, want >= 1 (never round a non-zero side to zero)", scaled.BidSize)
	}
}

func TestDrawdownManagerSuppressesAtZeroMultiplier(t *testing.T) {
	t.Parallel()

	d := NewDrawdownManager(testDrawdownParams())
	d.Observe(1000)
	d.Observe(200) // drawdown 800, well past halt

	q := types.Quote{BidPrice: 50, BidSize: 5, AskPrice: 55, AskSize: 5}
	_, ok := d.ApplyMultiplier(q, 0)
	if ok {
		t.Error("expected ok=false when multiplier is 0")
	}
}
