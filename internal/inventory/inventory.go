// Package inventory tracks per-ticker positions and realized/unrealized
// P&L from the fill stream. Grounded on the teacher's
// internal/strategy/inventory.go (weighted-average cost basis, realize-
// on-reduce), generalized from a single continuous position to the spec's
// independent integer YES/NO legs with position-flip-on-overshoot.
package inventory

import (
	"time"

	"cents-quoter/pkg/types"
)

// leg is one side's (YesContracts,YesCostBasis) or (NoContracts,NoCostBasis)
// bucket. A nonzero leg also doubles as the "short" record for the
// opposite side: selling more of a side than currently held opens a short
// position recorded in the OTHER side's bucket (per spec §3's "excess
// opens the mirror position"), and a subsequent buy on the original side
// covers that mirrored short before opening a new long.
type leg struct {
	contracts int
	costBasis int64 // cents, total cost (buy) or proceeds (short) of contracts
}

func (l *leg) avg() int64 {
	if l.contracts == 0 {
		return 0
	}
	return l.costBasis / int64(l.contracts)
}

// Tracker owns Position state for every ticker it has seen fills for.
type Tracker struct {
	positions map[types.Ticker]*trackedPosition
	daily     dailyCounters
}

type trackedPosition struct {
	yes, no     leg
	lastUpdated time.Time
}

type dailyCounters struct {
	realizedToday int64
	fillsToday    int
	volumeToday   int64
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{positions: make(map[types.Ticker]*trackedPosition)}
}

func (t *Tracker) posFor(ticker types.Ticker) *trackedPosition {
	p, ok := t.positions[ticker]
	if !ok {
		p = &trackedPosition{}
		t.positions[ticker] = p
	}
	return p
}

// OnFill applies fill to the tracked position and returns the realized P&L
// delta (cents) attributable to this single fill.
func (t *Tracker) OnFill(fill types.Fill) int64 {
	p := t.posFor(fill.Ticker)

	own, mirror := &p.yes, &p.no
	if fill.Side == types.No {
		own, mirror = &p.no, &p.yes
	}

	var realized int64
	count := fill.Count

	switch fill.Action {
	case types.Buy:
		if mirror.contracts > 0 {
			cover := min(count, mirror.contracts)
			avgShort := mirror.avg()
			realized += (avgShort - int64(fill.Price)) * int64(cover)
			reduceLeg(mirror, cover)
			count -= cover
		}
		if count > 0 {
			own.costBasis += int64(fill.Price) * int64(count)
			own.contracts += count
		}
	case types.Sell:
		if own.contracts > 0 {
			closeCount := min(count, own.contracts)
			avgCost := own.avg()
			realized += (int64(fill.Price) - avgCost) * int64(closeCount)
			reduceLeg(own, closeCount)
			count -= closeCount
		}
		if count > 0 {
			mirror.costBasis += int64(fill.Price) * int64(count)
			mirror.contracts += count
		}
	}

	p.lastUpdated = fill.Ts
	t.daily.realizedToday += realized
	t.daily.fillsToday++
	t.daily.volumeToday += int64(fill.Count)

	return realized
}

func reduceLeg(l *leg, closeCount int) {
	if l.contracts == 0 {
		return
	}
	removed := int64(closeCount) * l.costBasis / int64(l.contracts)
	l.costBasis -= removed
	l.contracts -= closeCount
	if l.contracts == 0 {
		l.costBasis = 0
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// PortfolioEntry is one row of startup position sync data.
type PortfolioEntry struct {
	Ticker       types.Ticker
	Yes          int
	No           int
	YesCostBasis int64
	NoCostBasis  int64
}

// InitializeFromPortfolio bulk-loads positions at startup and resets daily
// counters.
func (t *Tracker) InitializeFromPortfolio(entries []PortfolioEntry, now time.Time) {
	t.loadPortfolio(entries, now)
	t.ResetDaily()
}

// ReconcilePortfolio bulk-reloads positions from the exchange without
// touching daily counters, for a mid-session reconnect where fills may
// have been missed — unlike InitializeFromPortfolio, it must not reset the
// daily-loss/circuit-breaker bookkeeping that's still accumulating.
func (t *Tracker) ReconcilePortfolio(entries []PortfolioEntry, now time.Time) {
	t.loadPortfolio(entries, now)
}

func (t *Tracker) loadPortfolio(entries []PortfolioEntry, now time.Time) {
	t.positions = make(map[types.Ticker]*trackedPosition, len(entries))
	for _, e := range entries {
		t.positions[e.Ticker] = &trackedPosition{
			yes:         leg{contracts: e.Yes, costBasis: e.YesCostBasis},
			no:          leg{contracts: e.No, costBasis: e.NoCostBasis},
			lastUpdated: now,
		}
	}
}

// Position returns the current position snapshot for ticker.
func (t *Tracker) Position(ticker types.Ticker) types.Position {
	p, ok := t.positions[ticker]
	if !ok {
		return types.Position{Ticker: ticker}
	}
	return types.Position{
		Ticker:       ticker,
		YesContracts: p.yes.contracts,
		NoContracts:  p.no.contracts,
		YesCostBasis: int(p.yes.costBasis),
		NoCostBasis:  int(p.no.costBasis),
		LastUpdated:  p.lastUpdated,
	}
}

// NetExposure returns YesContracts-NoContracts for ticker.
func (t *Tracker) NetExposure(ticker types.Ticker) int {
	p, ok := t.positions[ticker]
	if !ok {
		return 0
	}
	return p.yes.contracts - p.no.contracts
}

// TotalExposure returns the sum of |net_exposure| across every tracked
// ticker.
func (t *Tracker) TotalExposure() int {
	total := 0
	for ticker := range t.positions {
		e := t.NetExposure(ticker)
		if e < 0 {
			e = -e
		}
		total += e
	}
	return total
}

// AllPositions returns a snapshot of every tracked ticker's position.
func (t *Tracker) AllPositions() []types.Position {
	out := make([]types.Position, 0, len(t.positions))
	for ticker := range t.positions {
		out = append(out, t.Position(ticker))
	}
	return out
}

// PnLSummary returns the daily rollup. currentPrices provides the current
// YES price (cents) per ticker for unrealized valuation; a ticker missing
// from the map contributes zero unrealized P&L.
func (t *Tracker) PnLSummary(currentPrices map[types.Ticker]int) types.PnLSummary {
	var unrealized int64
	for ticker, p := range t.positions {
		price, ok := currentPrices[ticker]
		if !ok {
			continue
		}
		yesVal := int64(p.yes.contracts)*int64(price) - p.yes.costBasis
		noVal := int64(p.no.contracts)*int64(100-price) - p.no.costBasis
		unrealized += yesVal + noVal
	}
	return types.PnLSummary{
		RealizedToday: t.daily.realizedToday,
		Unrealized:    unrealized,
		FillsToday:    t.daily.fillsToday,
		VolumeToday:   t.daily.volumeToday,
	}
}

// ResetDaily zeros the daily counters while preserving positions.
func (t *Tracker) ResetDaily() {
	t.daily = dailyCounters{}
}
