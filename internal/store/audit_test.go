package store

import (
	"path/filepath"
	"testing"
	"time"

	"cents-quoter/pkg/types"
)

func TestAuditRecordFillAndTerminalOrder(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a, err := OpenAudit(filepath.Join(dir, "audit.db"))
	if err != nil {
		t.Fatalf("OpenAudit: %v", err)
	}
	defer a.Close()

	fill := types.Fill{
		OrderID: "o1", Ticker: "FOO", Side: types.Yes, Action: types.Buy,
		Count: 5, Price: 42, Ts: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), IsTaker: false,
	}
	if err := a.RecordFill(fill, -100); err != nil {
		t.Fatalf("RecordFill: %v", err)
	}

	order := &types.ManagedOrder{
		ClientOrderID: "c1", ExchangeID: "e1", Ticker: "FOO", Side: types.Yes, Action: types.Buy,
		Price: 42, Count: 5, FilledCount: 5, Status: types.StatusFilled,
		CreatedTs: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := a.RecordTerminalOrder(order, time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC)); err != nil {
		t.Fatalf("RecordTerminalOrder: %v", err)
	}
}

func TestAuditMigrateIsIdempotent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.db")

	a1, err := OpenAudit(path)
	if err != nil {
		t.Fatalf("first OpenAudit: %v", err)
	}
	a1.Close()

	a2, err := OpenAudit(path)
	if err != nil {
		t.Fatalf("second OpenAudit: %v", err)
	}
	defer a2.Close()

	fill := types.Fill{OrderID: "o2", Ticker: "BAR", Side: types.No, Action: types.Sell, Count: 1, Price: 10, Ts: time.Now()}
	if err := a2.RecordFill(fill, 0); err != nil {
		t.Fatalf("RecordFill after reopen: %v", err)
	}
}
