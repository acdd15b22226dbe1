// Package risk enforces per-quote admission checks, drawdown-based size
// scaling, and loss-streak circuit breaking. Grounded on the teacher's
// Manager (aggregate kill-switch-over-channel shape), reworked into the
// synchronous, call-and-return gate the single-threaded supervisor needs:
// no goroutine, no channel, just a function call on the quoting hot path.
package risk

import (
	"sync"

	"cents-quoter/internal/inventory"
	"cents-quoter/pkg/types"
)

// DenyReason identifies why RiskGate refused a quote or order.
type DenyReason string

const (
	Halted              DenyReason = "halted"
	SpreadBelowMin      DenyReason = "spread_below_min"
	BidSizeAboveMax     DenyReason = "bid_size_above_max"
	AskSizeAboveMax     DenyReason = "ask_size_above_max"
	PositionLimit       DenyReason = "position_limit"
	TotalExposureLimit  DenyReason = "total_exposure_limit"
)

// GateParams configures RiskGate's limits.
type GateParams struct {
	MaxOrderSize         int
	MaxPositionPerTicker int
	MaxTotalExposure     int
	MinSpreadCents       int
	MaxDailyLoss         int64
}

// RiskGate is the synchronous admission check on the quoting hot path:
// check(quote, inventory) -> Allowed | Denied(reason).
type RiskGate struct {
	mu sync.Mutex

	params GateParams

	halted           bool
	haltedByLossLimit bool
	haltReason       string
	dailyPnL         int64
}

// NewRiskGate returns a RiskGate with the given limits.
func NewRiskGate(params GateParams) *RiskGate {
	return &RiskGate{params: params}
}

// Check admits or denies a two-sided quote against current inventory state.
func (g *RiskGate) Check(ticker types.Ticker, quote types.Quote, inv *inventory.Tracker) (bool, DenyReason) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.halted {
		return false, Halted
	}

	if quote.BidSize > 0 && quote.AskSize > 0 {
		if quote.AskPrice-quote.BidPrice < g.params.MinSpreadCents {
			return false, SpreadBelowMin
		}
	}
	if quote.BidSize > g.params.MaxOrderSize {
		return false, BidSizeAboveMax
	}
	if quote.AskSize > g.params.MaxOrderSize {
		return false, AskSizeAboveMax
	}

	if ok, reason := g.checkPositionLimit(ticker, quote.BidSize, quote.AskSize, inv); !ok {
		return false, reason
	}
	if ok, reason := g.checkTotalExposure(quote.BidSize, quote.AskSize, inv); !ok {
		return false, reason
	}

	return true, ""
}

// CheckOrder admits or denies a single-sided order (e.g. a reconciler retry
// or a manual order) against current inventory state.
func (g *RiskGate) CheckOrder(ticker types.Ticker, count int, inv *inventory.Tracker) (bool, DenyReason) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.halted {
		return false, Halted
	}
	if count > g.params.MaxOrderSize {
		return false, BidSizeAboveMax
	}
	if ok, reason := g.checkPositionLimit(ticker, count, 0, inv); !ok {
		return false, reason
	}
	if ok, reason := g.checkTotalExposure(count, 0, inv); !ok {
		return false, reason
	}
	return true, ""
}

func (g *RiskGate) checkPositionLimit(ticker types.Ticker, bidSize, askSize int, inv *inventory.Tracker) (bool, DenyReason) {
	if g.params.MaxPositionPerTicker <= 0 || inv == nil {
		return true, ""
	}
	net := inv.NetExposure(ticker)
	if bidSize > 0 && net+bidSize > g.params.MaxPositionPerTicker {
		return false, PositionLimit
	}
	if askSize > 0 && net-askSize < -g.params.MaxPositionPerTicker {
		return false, PositionLimit
	}
	return true, ""
}

func (g *RiskGate) checkTotalExposure(bidSize, askSize int, inv *inventory.Tracker) (bool, DenyReason) {
	if g.params.MaxTotalExposure <= 0 || inv == nil {
		return true, ""
	}
	incremental := bidSize
	if askSize > incremental {
		incremental = askSize
	}
	if inv.TotalExposure()+incremental > g.params.MaxTotalExposure {
		return false, TotalExposureLimit
	}
	return true, ""
}

// OnFill accumulates daily realized P&L and auto-halts when the daily loss
// limit is breached.
func (g *RiskGate) OnFill(realizedPnL int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.dailyPnL += realizedPnL
	if g.params.MaxDailyLoss > 0 && g.dailyPnL < -g.params.MaxDailyLoss {
		g.halted = true
		g.haltedByLossLimit = true
		g.haltReason = "max_daily_loss breached"
	}
}

// Halt is an explicit operator control.
func (g *RiskGate) Halt(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.halted = true
	g.haltReason = reason
}

// Resume is an explicit operator control; it clears any halt, including
// one triggered by the daily loss limit.
func (g *RiskGate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.halted = false
	g.haltedByLossLimit = false
	g.haltReason = ""
}

// ResetDaily zeroes the daily P&L counter. It does NOT clear a halt caused
// by the daily loss limit — only Resume does.
func (g *RiskGate) ResetDaily() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dailyPnL = 0
}

func (g *RiskGate) IsHalted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.halted
}

func (g *RiskGate) HaltReason() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.haltReason
}

func (g *RiskGate) DailyPnL() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dailyPnL
}
