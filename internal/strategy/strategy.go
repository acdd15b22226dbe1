// Package strategy computes desired two-sided quotes from a market
// snapshot. Grounded on the teacher's Avellaneda-Stoikov maker.go
// (reservation-price-then-clamp-then-round-to-tick shape), reworked into
// the spec's inventory-skew + imbalance + expiry algorithm (AdaptiveStrategy)
// plus a new binary-outcome-specific longshot/near-certainty strategy
// (OptimismTaxStrategy).
package strategy

import "cents-quoter/pkg/types"

// MarketSnapshot is everything a Strategy needs to compute quotes for one
// ticker at a point in time.
type MarketSnapshot struct {
	Ticker           types.Ticker
	BestBid          int
	BestAsk          int
	Mid              float64
	Spread           int
	Position         *types.Position
	Microprice       *float64
	BidSize          *int
	AskSize          *int
	Imbalance        *float64
	AdverseSelection bool
	Volatile         bool
	TimeToExpirySec  *float64
}

// Quotable reports whether best_bid/best_ask form a valid, non-crossed book.
func (s MarketSnapshot) Quotable() bool {
	return types.InRange(s.BestBid) && types.InRange(s.BestAsk) && s.BestBid < s.BestAsk
}

// Strategy is the capability set every quoting variant implements.
type Strategy interface {
	// ComputeQuotes returns zero or more quotes for snapshot.Ticker. An
	// empty slice means "quote nothing this tick" (not an error).
	ComputeQuotes(snapshot MarketSnapshot) []types.Quote

	// OnFill notifies the strategy of a fill, for variants that adapt
	// parameters based on execution flow.
	OnFill(fill types.Fill)

	// UpdateParams applies a live parameter change (operator override).
	UpdateParams(params map[string]float64)

	// Name identifies the strategy variant, for logging/metrics.
	Name() string
}
