package strategy

import (
	"math"

	"cents-quoter/pkg/types"
)

// OptimismTaxParams configures OptimismTaxStrategy.
type OptimismTaxParams struct {
	LongShotThreshold       int // default 15
	NearlyCertainThreshold  int // default 85
	OptimismEdge            int
	OptimismSizeMultiplier  float64 // default 1.5
	SizePerSide             int
	MaxLongshotExposure     int
	MidRange                AdaptiveParams
}

// OptimismTaxStrategy exploits the binary-outcome asymmetry where taker
// demand concentrates on longshot and near-certainty contracts. No teacher
// equivalent exists (Polymarket's A-S model has no notion of this
// asymmetry); it follows the same params-struct-then-pure-function shape
// as AdaptiveStrategy.
type OptimismTaxStrategy struct {
	params   OptimismTaxParams
	midRange *AdaptiveStrategy
	vol      volatilityFlagger
}

// volatilityFlagger lets OptimismTaxStrategy consult a volatility detector
// without importing internal/fairvalue (which would create an import
// cycle if fairvalue ever needed the strategy package); callers inject it.
type volatilityFlagger interface {
	IsVolatile(ticker types.Ticker) bool
}

// NewOptimismTaxStrategy returns an OptimismTaxStrategy. vol may be nil, in
// which case the mid-range zone never treats the market as volatile.
func NewOptimismTaxStrategy(params OptimismTaxParams, vol volatilityFlagger) *OptimismTaxStrategy {
	if params.LongShotThreshold == 0 {
		params.LongShotThreshold = 15
	}
	if params.NearlyCertainThreshold == 0 {
		params.NearlyCertainThreshold = 85
	}
	if params.OptimismSizeMultiplier == 0 {
		params.OptimismSizeMultiplier = 1.5
	}
	return &OptimismTaxStrategy{
		params:   params,
		midRange: NewAdaptiveStrategy(params.MidRange),
		vol:      vol,
	}
}

func (s *OptimismTaxStrategy) Name() string { return "optimism_tax" }

func (s *OptimismTaxStrategy) OnFill(f types.Fill) { s.midRange.OnFill(f) }

func (s *OptimismTaxStrategy) UpdateParams(p map[string]float64) {
	if v, ok := p["optimism_edge"]; ok {
		s.params.OptimismEdge = int(v)
	}
	if v, ok := p["optimism_size_multiplier"]; ok {
		s.params.OptimismSizeMultiplier = v
	}
	s.midRange.UpdateParams(p)
}

func (s *OptimismTaxStrategy) ComputeQuotes(snap MarketSnapshot) []types.Quote {
	if !snap.Quotable() {
		return nil
	}
	p := s.params

	mid := int(math.Round(snap.Mid))
	netExposure := 0
	if snap.Position != nil {
		netExposure = snap.Position.NetExposure()
	}

	var quotes []types.Quote
	switch {
	case mid <= p.LongShotThreshold:
		quotes = s.longshotQuotes(snap, netExposure)
	case mid >= p.NearlyCertainThreshold:
		quotes = s.nearCertaintyQuotes(snap, netExposure)
	default:
		quotes = s.midRangeQuotes(snap, netExposure)
	}

	return clampAgainstBBO(quotes, snap)
}

func (s *OptimismTaxStrategy) longshotQuotes(snap MarketSnapshot, netExposure int) []types.Quote {
	p := s.params
	askSize := int(math.Round(float64(p.SizePerSide) * p.OptimismSizeMultiplier))
	bidSize := p.SizePerSide / 2 // floor, per spec

	if absAtLeast(netExposure, p.MaxLongshotExposure) {
		// only the side that flattens is quoted
		if netExposure > 0 {
			bidSize = 0 // already long YES: don't buy more
		} else {
			askSize = 0 // already short/flat on the other extreme
		}
	}

	q := types.Quote{
		Ticker:   snap.Ticker,
		BidPrice: types.Clamp(snap.BestBid - 2*p.OptimismEdge),
		BidSize:  bidSize,
		AskPrice: types.Clamp(snap.BestAsk - p.OptimismEdge),
		AskSize:  askSize,
	}
	return []types.Quote{q}
}

func (s *OptimismTaxStrategy) nearCertaintyQuotes(snap MarketSnapshot, netExposure int) []types.Quote {
	p := s.params
	bidSize := int(math.Round(float64(p.SizePerSide) * p.OptimismSizeMultiplier))
	askSize := p.SizePerSide / 2

	if absAtLeast(netExposure, p.MaxLongshotExposure) {
		if netExposure > 0 {
			bidSize = 0
		} else {
			askSize = 0
		}
	}

	q := types.Quote{
		Ticker:   snap.Ticker,
		BidPrice: types.Clamp(snap.BestBid + p.OptimismEdge),
		BidSize:  bidSize,
		AskPrice: types.Clamp(snap.BestAsk + 2*p.OptimismEdge),
		AskSize:  askSize,
	}
	return []types.Quote{q}
}

func (s *OptimismTaxStrategy) midRangeQuotes(snap MarketSnapshot, netExposure int) []types.Quote {
	if s.vol != nil && s.vol.IsVolatile(snap.Ticker) {
		if netExposure == 0 {
			return nil
		}
		// only the flattening side
		q := types.Quote{Ticker: snap.Ticker}
		if netExposure > 0 {
			q.AskPrice, q.AskSize = snap.BestAsk, s.params.SizePerSide
		} else {
			q.BidPrice, q.BidSize = snap.BestBid, s.params.SizePerSide
		}
		return []types.Quote{q}
	}
	return s.midRange.ComputeQuotes(snap)
}

func absAtLeast(v, threshold int) bool {
	if v < 0 {
		v = -v
	}
	return threshold > 0 && v >= threshold
}

// clampAgainstBBO is the maker-protection guard required after zone logic:
// a bid must stay below best_ask and an ask must stay above best_bid, or
// the offending side is dropped entirely.
func clampAgainstBBO(quotes []types.Quote, snap MarketSnapshot) []types.Quote {
	var out []types.Quote
	for _, q := range quotes {
		if q.BidSize > 0 && q.BidPrice >= snap.BestAsk {
			q.BidSize, q.BidPrice = 0, 0
		}
		if q.AskSize > 0 && q.AskPrice <= snap.BestBid {
			q.AskSize, q.AskPrice = 0, 0
		}
		if q.BidSize > 0 && q.AskSize > 0 && q.BidPrice >= q.AskPrice {
			// post-clamp spread collapsed; drop the offending side rather
			// than emit a crossed quote
			if q.BidPrice >= snap.BestAsk {
				q.BidSize, q.BidPrice = 0, 0
			} else {
				q.AskSize, q.AskPrice = 0, 0
			}
		}
		if q.Quotable() {
			out = append(out, q)
		}
	}
	return out
}

var _ Strategy = (*OptimismTaxStrategy)(nil)
