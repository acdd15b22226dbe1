package connsupervisor

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"cents-quoter/pkg/types"
)

type fakeFeed struct {
	lastData       time.Time
	reconnectCount int
}

func (f *fakeFeed) LastDataTs() time.Time { return f.lastData }
func (f *fakeFeed) ForceReconnect()       { f.reconnectCount++ }

type fakeCanceller struct {
	calls int
}

func (c *fakeCanceller) CancelAll(ctx context.Context, ticker types.Ticker) (int, error) {
	c.calls++
	return 0, nil
}

func newTestSupervisor(feed *fakeFeed, orders *fakeCanceller) *Supervisor {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(feed, orders, Params{
		HealthCheckInterval:     30 * time.Second,
		StaleDataThreshold:      2 * time.Minute,
		ForceReconnectThreshold: 5 * time.Minute,
	}, logger)
}

func TestSupervisorLogsOnlyBelowForceThreshold(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	feed := &fakeFeed{lastData: start}
	orders := &fakeCanceller{}
	s := newTestSupervisor(feed, orders)

	s.Check(context.Background(), start.Add(3*time.Minute))
	if orders.calls != 0 || feed.reconnectCount != 0 {
		t.Errorf("expected no action below force-reconnect threshold, got calls=%d reconnects=%d", orders.calls, feed.reconnectCount)
	}
}

func TestSupervisorStaleFeedCancelsAllThenReconnectsOnce(t *testing.T) {
	t.Parallel()

	// Spec scenario: stale feed 6min -> cancel-all then force_reconnect
	// exactly once.
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	feed := &fakeFeed{lastData: start}
	orders := &fakeCanceller{}
	s := newTestSupervisor(feed, orders)

	now := start.Add(6 * time.Minute)
	s.Check(context.Background(), now)

	if orders.calls != 1 {
		t.Errorf("CancelAll calls = %d, want 1", orders.calls)
	}
	if feed.reconnectCount != 1 {
		t.Errorf("ForceReconnect calls = %d, want 1", feed.reconnectCount)
	}

	// A second check before any new data arrives must not cancel-all again.
	s.Check(context.Background(), now.Add(time.Second))
	if orders.calls != 1 {
		t.Errorf("CancelAll should not be invoked twice for the same outage episode, got %d", orders.calls)
	}
}

func TestSupervisorReconnectsAfterDisconnectOutlivesThreshold(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	feed := &fakeFeed{lastData: start}
	orders := &fakeCanceller{}
	s := newTestSupervisor(feed, orders)

	s.Check(context.Background(), start.Add(6*time.Minute)) // trips disconnect
	s.OnDisconnect(context.Background(), start.Add(6*time.Minute))

	s.Check(context.Background(), start.Add(12*time.Minute))
	if feed.reconnectCount < 2 {
		t.Errorf("expected a second force_reconnect once still disconnected past threshold, got %d", feed.reconnectCount)
	}
}

func TestOnDisconnectCancelsImmediately(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	feed := &fakeFeed{lastData: start}
	orders := &fakeCanceller{}
	s := newTestSupervisor(feed, orders)

	s.OnDisconnect(context.Background(), start)
	if orders.calls != 1 {
		t.Errorf("CancelAll calls after OnDisconnect = %d, want 1", orders.calls)
	}

	// A second OnDisconnect in the same episode must not cancel again.
	s.OnDisconnect(context.Background(), start.Add(time.Second))
	if orders.calls != 1 {
		t.Errorf("CancelAll should not be invoked twice for the same disconnect episode, got %d", orders.calls)
	}

	// OnConnect clears the guard so the next episode cancels again.
	s.OnConnect()
	s.OnDisconnect(context.Background(), start.Add(time.Minute))
	if orders.calls != 2 {
		t.Errorf("CancelAll calls after a new episode = %d, want 2", orders.calls)
	}
}
