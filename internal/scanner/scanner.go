// Package scanner defines the market-discovery contract the quoting
// daemon depends on without committing to a discovery implementation.
// Candidate-ticker discovery (which markets are worth quoting, ranked by
// spread/volume/liquidity) is out of scope: the interface shape is kept,
// grounded on the teacher's Gamma-polling scanner, but no polling client
// is implemented here.
package scanner

import (
	"context"
	"time"

	"cents-quoter/pkg/types"
)

// ScanResult is a ranked snapshot of markets worth quoting.
type ScanResult struct {
	Markets   []types.MarketInfo
	ScannedAt time.Time
}

// Scanner discovers and ranks candidate tickers for the quoting daemon to
// trade. Implementations decide how to source and score markets; the
// daemon only consumes RecommendedTickers and the periodic-scan lifecycle.
type Scanner interface {
	// RecommendedTickers returns the channel the daemon reads ranked
	// scan results from.
	RecommendedTickers() <-chan ScanResult

	// StartPeriodic begins polling on the configured interval. Blocks
	// until ctx is cancelled.
	StartPeriodic(ctx context.Context)

	// StopPeriodic halts the polling loop started by StartPeriodic.
	StopPeriodic()

	// ScanWithCache returns the most recent scan result immediately,
	// triggering a background refresh if the cache is stale, rather
	// than blocking the caller on a live network round trip.
	ScanWithCache(ctx context.Context) (ScanResult, error)
}
