// Package connsupervisor watches the streaming feed's health and reacts to
// staleness by cancelling resting orders and forcing a reconnect. Grounded
// on the teacher's internal/risk/manager.go Run loop (a ticker-driven
// periodic check alongside event-driven work) combined with its ws.go
// reconnect backoff — repurposed here from price-movement detection to
// feed-staleness detection.
package connsupervisor

import (
	"context"
	"log/slog"
	"time"

	"cents-quoter/pkg/types"
)

// Feed is the narrow surface ConnectionSupervisor needs from the
// streaming feed.
type Feed interface {
	LastDataTs() time.Time
	ForceReconnect()
}

// OrderCanceller is the narrow surface needed to flatten resting orders on
// an extended outage, satisfied by reconciler.Reconciler.CancelAll.
type OrderCanceller interface {
	CancelAll(ctx context.Context, ticker types.Ticker) (int, error)
}

// Params configures ConnectionSupervisor's thresholds.
type Params struct {
	HealthCheckInterval     time.Duration // default 30s
	StaleDataThreshold      time.Duration // default 2min: log warning only
	ForceReconnectThreshold time.Duration // default 5min: cancel-all + reconnect
}

// Supervisor periodically checks feed health and reacts to staleness.
type Supervisor struct {
	feed   Feed
	orders OrderCanceller
	params Params
	logger *slog.Logger

	connected            bool
	disconnectedSince    time.Time
	cancelledThisEpisode bool
}

// New returns a Supervisor for feed, using orders to flatten resting
// orders on an extended outage.
func New(feed Feed, orders OrderCanceller, params Params, logger *slog.Logger) *Supervisor {
	if params.HealthCheckInterval == 0 {
		params.HealthCheckInterval = 30 * time.Second
	}
	if params.StaleDataThreshold == 0 {
		params.StaleDataThreshold = 2 * time.Minute
	}
	if params.ForceReconnectThreshold == 0 {
		params.ForceReconnectThreshold = 5 * time.Minute
	}
	return &Supervisor{
		feed:      feed,
		orders:    orders,
		params:    params,
		logger:    logger.With("component", "conn_supervisor"),
		connected: true,
	}
}

// Run ticks every HealthCheckInterval until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.params.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx, time.Now())
		}
	}
}

// Check runs one health-check pass. Exposed separately from Run so tests
// can drive it with a fake clock instead of a real ticker.
func (s *Supervisor) Check(ctx context.Context, now time.Time) {
	lastData := s.feed.LastDataTs()
	if lastData.IsZero() {
		return
	}
	downtime := now.Sub(lastData)

	if !s.connected {
		if downtime > s.params.ForceReconnectThreshold {
			s.logger.Warn("forcing reconnect after extended disconnect", "downtime", downtime)
			s.feed.ForceReconnect()
			s.connected = true
			s.cancelledThisEpisode = false
		}
		return
	}

	switch {
	case downtime > s.params.ForceReconnectThreshold:
		if !s.cancelledThisEpisode {
			s.logger.Error("feed stale past force-reconnect threshold, cancelling all orders", "downtime", downtime)
			if s.orders != nil {
				if _, err := s.orders.CancelAll(ctx, ""); err != nil {
					s.logger.Error("cancel-all before force-reconnect failed", "error", err)
				}
			}
			s.cancelledThisEpisode = true
		}
		s.feed.ForceReconnect()
		s.connected = false
		s.disconnectedSince = now

	case downtime > s.params.StaleDataThreshold:
		s.logger.Warn("feed data stale", "downtime", downtime)
	}
}

// OnDisconnect marks the feed as down and immediately cancels every resting
// order, for callers that observe the connection drop directly (e.g. a read
// error) rather than via staleness — the periodic Check() stale-data branch
// would otherwise take up to ForceReconnectThreshold to react, and never
// reaches its own cancel logic once connected flips to false here. Cancels
// at most once per disconnect episode; OnConnect clears the guard.
func (s *Supervisor) OnDisconnect(ctx context.Context, now time.Time) {
	s.connected = false
	s.disconnectedSince = now

	if s.cancelledThisEpisode {
		return
	}
	s.logger.Warn("feed disconnected, cancelling all orders", "since", now)
	if s.orders != nil {
		if _, err := s.orders.CancelAll(ctx, ""); err != nil {
			s.logger.Error("cancel-all on disconnect failed", "error", err)
		}
	}
	s.cancelledThisEpisode = true
}

// OnConnect marks the feed as healthy and resets the per-episode cancel
// guard.
func (s *Supervisor) OnConnect() {
	s.connected = true
	s.cancelledThisEpisode = false
}
