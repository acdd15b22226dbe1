package strategy

import (
	"testing"

	"cents-quoter/pkg/types"
)

func baseAdaptiveParams() AdaptiveParams {
	return AdaptiveParams{
		EdgeCents:        1,
		MinSpreadCents:   2,
		SizePerSide:      5,
		MaxMarketSpread:  100,
		SkewFactor:       0.5,
		MaxInventorySkew: 30,
	}
}

func TestAdaptiveStrategyFlatPosition(t *testing.T) {
	t.Parallel()

	s := NewAdaptiveStrategy(baseAdaptiveParams())
	snap := MarketSnapshot{Ticker: "FOO", BestBid: 50, BestAsk: 55, Mid: 52.5, Spread: 5}

	quotes := s.ComputeQuotes(snap)
	if len(quotes) != 1 {
		t.Fatalf("expected 1 quote, got %d", len(quotes))
	}
	q := quotes[0]
	if q.BidPrice != 51 || q.AskPrice != 54 || q.BidSize != 5 || q.AskSize != 5 {
		t.Errorf("quote = %+v, want bid=51 ask=54 sizes (5,5)", q)
	}
}

func TestAdaptiveStrategySkewedByPosition(t *testing.T) {
	t.Parallel()

	s := NewAdaptiveStrategy(baseAdaptiveParams())
	pos := types.Position{YesContracts: 10}
	snap := MarketSnapshot{Ticker: "FOO", BestBid: 50, BestAsk: 55, Mid: 52.5, Spread: 5, Position: &pos}

	quotes := s.ComputeQuotes(snap)
	if len(quotes) != 1 {
		t.Fatalf("expected 1 quote, got %d", len(quotes))
	}
	q := quotes[0]
	if q.BidPrice != 46 || q.AskPrice != 49 {
		t.Errorf("quote = %+v, want bid=46 ask=49", q)
	}
}

func TestAdaptiveStrategyWideSpreadNotQuotable(t *testing.T) {
	t.Parallel()

	params := baseAdaptiveParams()
	params.MaxMarketSpread = 3
	s := NewAdaptiveStrategy(params)
	snap := MarketSnapshot{Ticker: "FOO", BestBid: 50, BestAsk: 55, Mid: 52.5, Spread: 5}

	if quotes := s.ComputeQuotes(snap); quotes != nil {
		t.Errorf("expected no quotes when spread exceeds max_market_spread, got %+v", quotes)
	}
}

func TestAdaptiveStrategyStopsQuotingNearExpiry(t *testing.T) {
	t.Parallel()

	params := baseAdaptiveParams()
	params.ExpiryStopQuoteSec = 60
	params.ExpiryWidenStartSec = 600
	params.ExpirySpreadMultiplier = 3.0
	s := NewAdaptiveStrategy(params)

	tte := 30.0
	snap := MarketSnapshot{Ticker: "FOO", BestBid: 50, BestAsk: 55, Mid: 52.5, Spread: 5, TimeToExpirySec: &tte}

	if quotes := s.ComputeQuotes(snap); quotes != nil {
		t.Errorf("expected no quotes inside stop-quote window, got %+v", quotes)
	}
}

func TestAdaptiveStrategyInventoryCapZeroesSide(t *testing.T) {
	t.Parallel()

	s := NewAdaptiveStrategy(baseAdaptiveParams())
	pos := types.Position{YesContracts: 30}
	snap := MarketSnapshot{Ticker: "FOO", BestBid: 50, BestAsk: 55, Mid: 52.5, Spread: 5, Position: &pos}

	quotes := s.ComputeQuotes(snap)
	if len(quotes) != 1 {
		t.Fatalf("expected 1 quote, got %d", len(quotes))
	}
	if quotes[0].BidSize != 0 {
		t.Errorf("expected bid size zeroed at max inventory skew, got %d", quotes[0].BidSize)
	}
}

func TestAdaptiveStrategyMultiLevel(t *testing.T) {
	t.Parallel()

	params := baseAdaptiveParams()
	params.MultiLevel = true
	params.OuterLevelOffset = 2
	params.OuterLevelSizeFactor = 0.5
	s := NewAdaptiveStrategy(params)

	snap := MarketSnapshot{Ticker: "FOO", BestBid: 50, BestAsk: 55, Mid: 52.5, Spread: 5}
	quotes := s.ComputeQuotes(snap)
	if len(quotes) != 2 {
		t.Fatalf("expected inner+outer quotes, got %d", len(quotes))
	}
	if quotes[1].BidPrice >= quotes[0].BidPrice || quotes[1].AskPrice <= quotes[0].AskPrice {
		t.Errorf("outer level should be wider than inner: %+v vs %+v", quotes[1], quotes[0])
	}
}

func TestAdaptiveStrategyMultiLevelZeroPropagates(t *testing.T) {
	t.Parallel()

	params := baseAdaptiveParams()
	params.MultiLevel = true
	s := NewAdaptiveStrategy(params)
	pos := types.Position{YesContracts: 30}
	snap := MarketSnapshot{Ticker: "FOO", BestBid: 50, BestAsk: 55, Mid: 52.5, Spread: 5, Position: &pos}

	quotes := s.ComputeQuotes(snap)
	for i, q := range quotes {
		if q.BidSize != 0 {
			t.Errorf("level %d: bid size should stay zeroed on every level, got %d", i, q.BidSize)
		}
	}
}
