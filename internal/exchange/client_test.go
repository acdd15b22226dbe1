package exchange

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"cents-quoter/pkg/types"
)

func newDryRunClient() *Client {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewClient(ClientConfig{BaseURL: "http://unused.invalid", DryRun: true}, NoopSigner{}, logger)
}

func TestDryRunCreateOrder(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	req := types.CreateOrderRequest{Ticker: "FOO", Type: types.OrderTypeLimit, Side: types.Yes, Action: types.Buy, Count: 5, ClientOrderID: "abc"}
	ack, err := c.CreateOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if ack.OrderID == "" {
		t.Error("expected a synthesized order id")
	}
	if ack.Status != "resting" {
		t.Errorf("Status = %q, want resting", ack.Status)
	}
}

func TestDryRunBatchCreateOrders(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	reqs := []types.CreateOrderRequest{
		{Ticker: "FOO", Side: types.Yes, Action: types.Buy, Count: 5, ClientOrderID: "a"},
		{Ticker: "FOO", Side: types.Yes, Action: types.Sell, Count: 5, ClientOrderID: "b"},
	}
	result, err := c.BatchCreateOrders(context.Background(), reqs)
	if err != nil {
		t.Fatalf("BatchCreateOrders: %v", err)
	}
	if len(result.Acks) != 2 {
		t.Fatalf("expected 2 acks, got %d", len(result.Acks))
	}
}

func TestDryRunBatchCreateOrdersEmpty(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	result, err := c.BatchCreateOrders(context.Background(), nil)
	if err != nil {
		t.Fatalf("BatchCreateOrders: %v", err)
	}
	if result.Acks != nil {
		t.Errorf("expected nil acks for empty input, got %v", result.Acks)
	}
}

func TestDryRunBatchCreateOrdersOverLimit(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	reqs := make([]types.CreateOrderRequest, 21)
	if _, err := c.BatchCreateOrders(context.Background(), reqs); err == nil {
		t.Error("expected an error for a batch over 20 orders")
	}
}

func TestDryRunBatchCancelOrders(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	result, err := c.BatchCancelOrders(context.Background(), []string{"order-1", "order-2"})
	if err != nil {
		t.Fatalf("BatchCancelOrders: %v", err)
	}
	if len(result.CancelledIDs) != 2 {
		t.Errorf("expected 2 cancelled ids, got %d", len(result.CancelledIDs))
	}
}

func TestDryRunCancelOrder(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	if err := c.CancelOrder(context.Background(), "order-1"); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
}
