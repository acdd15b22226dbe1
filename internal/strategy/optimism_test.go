package strategy

import (
	"testing"

	"cents-quoter/pkg/types"
)

func baseOptimismParams() OptimismTaxParams {
	return OptimismTaxParams{
		SizePerSide:            5,
		OptimismSizeMultiplier: 1.5,
		MaxLongshotExposure:    20,
		MidRange:               baseAdaptiveParams(),
	}
}

func TestOptimismTaxStrategyLongshotSizes(t *testing.T) {
	t.Parallel()

	s := NewOptimismTaxStrategy(baseOptimismParams(), nil)
	snap := MarketSnapshot{Ticker: "FOO", BestBid: 5, BestAsk: 10, Mid: 7.5, Spread: 5}

	quotes := s.ComputeQuotes(snap)
	if len(quotes) != 1 {
		t.Fatalf("expected 1 quote, got %d: %+v", len(quotes), quotes)
	}
	q := quotes[0]
	if q.AskSize != 8 || q.BidSize != 2 {
		t.Errorf("quote = %+v, want ask_size=8 bid_size=2", q)
	}
}

func TestOptimismTaxStrategyNearCertaintyMirrored(t *testing.T) {
	t.Parallel()

	s := NewOptimismTaxStrategy(baseOptimismParams(), nil)
	snap := MarketSnapshot{Ticker: "FOO", BestBid: 90, BestAsk: 95, Mid: 92.5, Spread: 5}

	quotes := s.ComputeQuotes(snap)
	if len(quotes) != 1 {
		t.Fatalf("expected 1 quote, got %d", len(quotes))
	}
	q := quotes[0]
	if q.BidSize != 8 || q.AskSize != 2 {
		t.Errorf("quote = %+v, want bid_size=8 ask_size=2 (mirror of longshot)", q)
	}
}

func TestOptimismTaxStrategyLongshotCapsExposure(t *testing.T) {
	t.Parallel()

	s := NewOptimismTaxStrategy(baseOptimismParams(), nil)
	pos := types.Position{YesContracts: 25}
	snap := MarketSnapshot{Ticker: "FOO", BestBid: 5, BestAsk: 10, Mid: 7.5, Spread: 5, Position: &pos}

	quotes := s.ComputeQuotes(snap)
	if len(quotes) != 1 {
		t.Fatalf("expected 1 quote, got %d", len(quotes))
	}
	if quotes[0].BidSize != 0 {
		t.Errorf("expected bid side zeroed when already long past max_longshot_exposure, got %d", quotes[0].BidSize)
	}
	if quotes[0].AskSize == 0 {
		t.Error("expected ask (flattening) side to remain quoted")
	}
}

func TestOptimismTaxStrategyMidRangeDelegates(t *testing.T) {
	t.Parallel()

	s := NewOptimismTaxStrategy(baseOptimismParams(), nil)
	snap := MarketSnapshot{Ticker: "FOO", BestBid: 50, BestAsk: 55, Mid: 52.5, Spread: 5}

	quotes := s.ComputeQuotes(snap)
	if len(quotes) != 1 {
		t.Fatalf("expected 1 quote from mid-range adaptive delegation, got %d", len(quotes))
	}
	if quotes[0].BidPrice != 51 || quotes[0].AskPrice != 54 {
		t.Errorf("quote = %+v, want the same bid=51 ask=54 as AdaptiveStrategy flat", quotes[0])
	}
}

type stubVolatility struct{ volatile bool }

func (s stubVolatility) IsVolatile(types.Ticker) bool { return s.volatile }

func TestOptimismTaxStrategyMidRangeVolatileFlatQuotesNothing(t *testing.T) {
	t.Parallel()

	s := NewOptimismTaxStrategy(baseOptimismParams(), stubVolatility{volatile: true})
	snap := MarketSnapshot{Ticker: "FOO", BestBid: 50, BestAsk: 55, Mid: 52.5, Spread: 5}

	if quotes := s.ComputeQuotes(snap); quotes != nil {
		t.Errorf("expected no quotes when volatile and flat, got %+v", quotes)
	}
}

func TestOptimismTaxStrategyMidRangeVolatileWithPositionFlattensOnly(t *testing.T) {
	t.Parallel()

	s := NewOptimismTaxStrategy(baseOptimismParams(), stubVolatility{volatile: true})
	pos := types.Position{YesContracts: 10}
	snap := MarketSnapshot{Ticker: "FOO", BestBid: 50, BestAsk: 55, Mid: 52.5, Spread: 5, Position: &pos}

	quotes := s.ComputeQuotes(snap)
	if len(quotes) != 1 {
		t.Fatalf("expected 1 quote, got %d", len(quotes))
	}
	if quotes[0].BidSize != 0 || quotes[0].AskSize == 0 {
		t.Errorf("expected only the ask (flattening) side quoted while volatile and long, got %+v", quotes[0])
	}
}

func TestOptimismTaxStrategyClampAgainstBBO(t *testing.T) {
	t.Parallel()

	params := baseOptimismParams()
	params.OptimismEdge = 20 // deliberately huge, to force clamp to kick in
	s := NewOptimismTaxStrategy(params, nil)
	snap := MarketSnapshot{Ticker: "FOO", BestBid: 5, BestAsk: 10, Mid: 7.5, Spread: 5}

	quotes := s.ComputeQuotes(snap)
	for _, q := range quotes {
		if q.BidSize > 0 && q.BidPrice >= snap.BestAsk {
			t.Errorf("bid not clamped: %+v", q)
		}
		if q.AskSize > 0 && q.AskPrice <= snap.BestBid {
			t.Errorf("ask not clamped: %+v", q)
		}
	}
}
