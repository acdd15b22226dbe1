package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"cents-quoter/pkg/types"
)

type fakeExchange struct {
	createErr     error
	batchCreate   func([]types.CreateOrderRequest) types.BatchCreateResult
	batchCancelOK bool
	cancelErr     error
}

func (f *fakeExchange) CreateOrder(ctx context.Context, req types.CreateOrderRequest) (types.OrderAck, error) {
	if f.createErr != nil {
		return types.OrderAck{}, f.createErr
	}
	return types.OrderAck{OrderID: "ex-" + req.ClientOrderID, Status: "resting"}, nil
}

func (f *fakeExchange) BatchCreateOrders(ctx context.Context, reqs []types.CreateOrderRequest) (types.BatchCreateResult, error) {
	if f.batchCreate != nil {
		return f.batchCreate(reqs), nil
	}
	acks := make([]types.OrderAck, len(reqs))
	for i, r := range reqs {
		acks[i] = types.OrderAck{OrderID: "ex-" + r.ClientOrderID, Status: "resting"}
	}
	return types.BatchCreateResult{Acks: acks}, nil
}

func (f *fakeExchange) BatchCancelOrders(ctx context.Context, orderIDs []string) (types.BatchCancelResult, error) {
	if !f.batchCancelOK {
		return types.BatchCancelResult{}, errors.New("batch cancel unavailable")
	}
	return types.BatchCancelResult{CancelledIDs: orderIDs}, nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, orderID string) error {
	return f.cancelErr
}

func fixedNow() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func TestPlaceSuccess(t *testing.T) {
	t.Parallel()

	r := New(&fakeExchange{batchCancelOK: true}, fixedNow)
	order, err := r.Place(context.Background(), OrderInput{Ticker: "FOO", Side: types.Yes, Action: types.Buy, Price: 50, Count: 5})
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}
	if order.Status != types.StatusOpen {
		t.Errorf("Status = %v, want Open (resting maps to open)", order.Status)
	}
	if order.ExchangeID == "" {
		t.Error("expected exchange id to be set")
	}
}

func TestPlaceFailure(t *testing.T) {
	t.Parallel()

	r := New(&fakeExchange{createErr: errors.New("rejected")}, fixedNow)
	order, err := r.Place(context.Background(), OrderInput{Ticker: "FOO", Side: types.Yes, Action: types.Buy, Price: 50, Count: 5})
	if err == nil {
		t.Fatal("expected error")
	}
	if order.Status != types.StatusFailed {
		t.Errorf("Status = %v, want Failed", order.Status)
	}
}

func TestUpdateQuoteSkipsZeroSides(t *testing.T) {
	t.Parallel()

	r := New(&fakeExchange{batchCancelOK: true}, fixedNow)
	quote := types.Quote{Ticker: "FOO", BidPrice: 50, BidSize: 5, AskPrice: 0, AskSize: 0}

	result, err := r.UpdateQuote(context.Background(), quote)
	if err != nil {
		t.Fatalf("UpdateQuote() error = %v", err)
	}
	if len(result.Placed) != 1 {
		t.Fatalf("expected 1 order placed (ask side skipped), got %d", len(result.Placed))
	}
}

func TestUpdateQuoteCancelsOldAndPlacesNew(t *testing.T) {
	t.Parallel()

	r := New(&fakeExchange{batchCancelOK: true}, fixedNow)
	first, err := r.Place(context.Background(), OrderInput{Ticker: "FOO", Side: types.Yes, Action: types.Buy, Price: 50, Count: 5})
	if err != nil {
		t.Fatal(err)
	}

	quote := types.Quote{Ticker: "FOO", BidPrice: 51, BidSize: 5, AskPrice: 55, AskSize: 5}
	result, err := r.UpdateQuote(context.Background(), quote)
	if err != nil {
		t.Fatalf("UpdateQuote() error = %v", err)
	}
	if result.CancelledCount != 1 {
		t.Errorf("CancelledCount = %d, want 1", result.CancelledCount)
	}
	if len(result.Placed) != 2 {
		t.Errorf("Placed = %d, want 2", len(result.Placed))
	}

	got, ok := r.Get(first.ClientOrderID)
	if !ok || got.Status != types.StatusCancelled {
		t.Errorf("original order status = %+v, want Cancelled", got)
	}
}

func TestBatchCancelFallsBackToPerOrder(t *testing.T) {
	t.Parallel()

	r := New(&fakeExchange{batchCancelOK: false}, fixedNow)
	order, _ := r.Place(context.Background(), OrderInput{Ticker: "FOO", Side: types.Yes, Action: types.Buy, Price: 50, Count: 5})

	cancelled, err := r.BatchCancel(context.Background(), []string{order.ClientOrderID})
	if err != nil {
		t.Fatalf("BatchCancel() error = %v", err)
	}
	if cancelled != 1 {
		t.Errorf("cancelled = %d, want 1 (fallback to per-order cancel)", cancelled)
	}
}

func TestOnFillTransitionsStatus(t *testing.T) {
	t.Parallel()

	r := New(&fakeExchange{batchCancelOK: true}, fixedNow)
	order, _ := r.Place(context.Background(), OrderInput{Ticker: "FOO", Side: types.Yes, Action: types.Buy, Price: 50, Count: 10})

	r.OnFill(order.ExchangeID, 4)
	got, _ := r.Get(order.ClientOrderID)
	if got.Status != types.StatusPartial || got.FilledCount != 4 {
		t.Errorf("after partial fill: %+v, want Partial/4", got)
	}

	r.OnFill(order.ExchangeID, 6)
	got, _ = r.Get(order.ClientOrderID)
	if got.Status != types.StatusFilled || got.FilledCount != 10 {
		t.Errorf("after full fill: %+v, want Filled/10", got)
	}
}

func TestCancelAllScopesToTicker(t *testing.T) {
	t.Parallel()

	r := New(&fakeExchange{batchCancelOK: true}, fixedNow)
	r.Place(context.Background(), OrderInput{Ticker: "FOO", Side: types.Yes, Action: types.Buy, Price: 50, Count: 5})
	r.Place(context.Background(), OrderInput{Ticker: "BAR", Side: types.Yes, Action: types.Buy, Price: 50, Count: 5})

	cancelled, err := r.CancelAll(context.Background(), "FOO")
	if err != nil {
		t.Fatal(err)
	}
	if cancelled != 1 {
		t.Errorf("cancelled = %d, want 1", cancelled)
	}
	if len(r.GetActive("BAR")) != 1 {
		t.Error("expected BAR order to remain active")
	}
}
