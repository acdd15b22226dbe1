package orderbook

import (
	"testing"
	"time"

	"cents-quoter/pkg/types"
)

var now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestApplySnapshotNoSideTransform(t *testing.T) {
	t.Parallel()

	r := New()
	ok := r.ApplySnapshot("FOO", []types.OrderbookLevel{{Price: 50, Quantity: 10}}, []types.OrderbookLevel{{Price: 40, Quantity: 20}}, now)
	if !ok {
		t.Fatal("ApplySnapshot rejected a valid snapshot")
	}

	bbo, ok := r.BBO("FOO")
	if !ok {
		t.Fatal("BBO not available after snapshot")
	}
	if bbo.BidPrice != 50 || bbo.BidSize != 10 {
		t.Errorf("bid = (%d,%d), want (50,10)", bbo.BidPrice, bbo.BidSize)
	}
	// NO bid of 20 @ 40 -> YES ask of 20 @ 60
	if bbo.AskPrice != 60 || bbo.AskSize != 20 {
		t.Errorf("ask = (%d,%d), want (60,20)", bbo.AskPrice, bbo.AskSize)
	}
	if got := bbo.Spread(); got != 10 {
		t.Errorf("Spread() = %d, want 10", got)
	}

	micro, ok := r.Microprice("FOO")
	if !ok {
		t.Fatal("Microprice not available")
	}
	want := (50.0*20 + 60.0*10) / 30.0
	if diff := micro - want; diff > 0.001 || diff < -0.001 {
		t.Errorf("Microprice() = %v, want %v", micro, want)
	}

	imb, ok := r.Imbalance("FOO")
	if !ok {
		t.Fatal("Imbalance not available")
	}
	wantImb := (10.0 - 20.0) / 30.0
	if diff := imb - wantImb; diff > 0.001 || diff < -0.001 {
		t.Errorf("Imbalance() = %v, want %v", imb, wantImb)
	}
}

func TestApplySnapshotRejectsCrossedBook(t *testing.T) {
	t.Parallel()

	r := New()
	// YES bid @ 60, NO bid @ 50 -> YES ask @ 50 -> crossed (60 >= 50)
	ok := r.ApplySnapshot("FOO", []types.OrderbookLevel{{Price: 60, Quantity: 5}}, []types.OrderbookLevel{{Price: 50, Quantity: 5}}, now)
	if ok {
		t.Fatal("expected crossed snapshot to be rejected")
	}
	if _, ok := r.BBO("FOO"); ok {
		t.Fatal("crossed snapshot should leave book empty")
	}
}

func TestApplyDeltaAbsoluteQuantity(t *testing.T) {
	t.Parallel()

	r := New()
	r.ApplySnapshot("FOO", []types.OrderbookLevel{{Price: 50, Quantity: 10}}, nil, now)
	r.ApplyDelta("FOO", types.Yes, 50, 3, now) // absolute, not incremental
	bbo, _ := r.BBO("FOO")
	_ = bbo

	bids, _ := r.Depth("FOO", 5)
	if len(bids) != 1 || bids[0].Quantity != 3 {
		t.Fatalf("depth after delta = %+v, want qty 3", bids)
	}
}

func TestApplyDeltaZeroRemovesLevel(t *testing.T) {
	t.Parallel()

	r := New()
	r.ApplySnapshot("FOO", []types.OrderbookLevel{{Price: 50, Quantity: 10}, {Price: 49, Quantity: 5}}, nil, now)
	r.ApplyDelta("FOO", types.Yes, 50, 0, now)

	bbo, ok := r.BBO("FOO")
	_ = bbo
	// no asks yet, so BBO is unavailable regardless; check via Depth instead
	bids, _ := r.Depth("FOO", 5)
	if len(bids) != 1 || bids[0].Price != 49 {
		t.Fatalf("bids after removing best = %+v, want only price 49", bids)
	}
	_ = ok
}

func TestIsStale(t *testing.T) {
	t.Parallel()

	r := New()
	if !r.IsStale("FOO", time.Second, now) {
		t.Fatal("never-updated book should be stale")
	}
	r.ApplySnapshot("FOO", []types.OrderbookLevel{{Price: 50, Quantity: 1}}, nil, now)
	if r.IsStale("FOO", time.Minute, now.Add(30*time.Second)) {
		t.Fatal("book updated 30s ago should not be stale under a 1m threshold")
	}
	if !r.IsStale("FOO", time.Minute, now.Add(2*time.Minute)) {
		t.Fatal("book updated 2m ago should be stale under a 1m threshold")
	}
}

func TestDepthOrdering(t *testing.T) {
	t.Parallel()

	r := New()
	r.ApplySnapshot("FOO",
		[]types.OrderbookLevel{{Price: 48, Quantity: 1}, {Price: 50, Quantity: 2}, {Price: 49, Quantity: 3}},
		[]types.OrderbookLevel{{Price: 40, Quantity: 1}, {Price: 42, Quantity: 2}},
		now)

	bids, asks := r.Depth("FOO", 10)
	if len(bids) != 3 || bids[0].Price != 50 || bids[1].Price != 49 || bids[2].Price != 48 {
		t.Errorf("bids = %+v, want descending 50,49,48", bids)
	}
	// NO bids @40,42 -> YES asks @60,58, ascending order -> 58,60
	if len(asks) != 2 || asks[0].Price != 58 || asks[1].Price != 60 {
		t.Errorf("asks = %+v, want ascending 58,60", asks)
	}
}
