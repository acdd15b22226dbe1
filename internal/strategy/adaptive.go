package strategy

import "cents-quoter/pkg/types"

// AdaptiveParams configures AdaptiveStrategy.
type AdaptiveParams struct {
	EdgeCents                  int
	MinSpreadCents              int
	SizePerSide                int
	MaxMarketSpread             int
	SkewFactor                  float64
	MaxInventorySkew            int
	UseMicroprice               bool
	MultiLevel                  bool
	AdverseSelectionMultiplier  float64
	DynamicSkew                 bool
	ImbalanceSkewMultiplier     float64
	ExtremeImbalanceThreshold   float64
	ReduceRiskySideOnImbalance  bool
	ImbalanceSizeReduction      float64
	SkipRiskySideThreshold      float64
	ExpiryWidenStartSec         float64
	ExpiryStopQuoteSec          float64
	ExpirySpreadMultiplier      float64

	OuterLevelSizeFactor float64 // size multiplier for the wider multi_level outer quote
	OuterLevelOffset     int     // extra cents of edge for the outer quote
}

// AdaptiveStrategy is the baseline inventory-aware quoting strategy.
// Grounded on the teacher's computeQuotes reservation-price shape, replaced
// by the spec's edge/skew/imbalance/expiry algorithm.
type AdaptiveStrategy struct {
	params AdaptiveParams
}

// NewAdaptiveStrategy returns an AdaptiveStrategy with the given params.
func NewAdaptiveStrategy(params AdaptiveParams) *AdaptiveStrategy {
	return &AdaptiveStrategy{params: params}
}

func (s *AdaptiveStrategy) Name() string { return "adaptive" }

func (s *AdaptiveStrategy) OnFill(types.Fill) {}

func (s *AdaptiveStrategy) UpdateParams(p map[string]float64) {
	if v, ok := p["edge_cents"]; ok {
		s.params.EdgeCents = int(v)
	}
	if v, ok := p["min_spread_cents"]; ok {
		s.params.MinSpreadCents = int(v)
	}
	if v, ok := p["size_per_side"]; ok {
		s.params.SizePerSide = int(v)
	}
	if v, ok := p["skew_factor"]; ok {
		s.params.SkewFactor = v
	}
}

// ComputeQuotes implements spec §4.4.1.
func (s *AdaptiveStrategy) ComputeQuotes(snap MarketSnapshot) []types.Quote {
	p := s.params

	if !snap.Quotable() || snap.Spread > p.MaxMarketSpread {
		return nil
	}

	expiryMult := 1.0
	if snap.TimeToExpirySec != nil {
		tte := *snap.TimeToExpirySec
		if tte <= p.ExpiryStopQuoteSec {
			return nil
		}
		if tte < p.ExpiryWidenStartSec {
			span := p.ExpiryWidenStartSec - p.ExpiryStopQuoteSec
			if span > 0 {
				frac := (p.ExpiryWidenStartSec - tte) / span
				expiryMult = 1.0 + frac*(p.ExpirySpreadMultiplier-1.0)
			} else {
				expiryMult = p.ExpirySpreadMultiplier
			}
		}
	}

	// Fair value: microprice if enabled and present, else mid. The result is
	// discarded; the quote formula anchors on best_bid/best_ask, not on fair
	// value.
	_ = fairValue(snap, p.UseMicroprice)

	netExposure := 0
	if snap.Position != nil {
		netExposure = snap.Position.NetExposure()
	}
	skew := float64(netExposure) * p.SkewFactor

	edge := p.EdgeCents
	minSpread := p.MinSpreadCents
	if snap.AdverseSelection {
		edge = 0
		minSpread = int(float64(minSpread) * p.AdverseSelectionMultiplier)
	}

	bid := snap.BestBid + edge - int(skew)
	ask := snap.BestAsk - edge - int(skew)
	bid = types.Clamp(bid)
	ask = types.Clamp(ask)

	minSpreadScaled := int(float64(minSpread) * expiryMult)
	if ask-bid < minSpreadScaled {
		bid = types.Clamp(snap.BestBid - int(skew))
		ask = types.Clamp(snap.BestAsk - int(skew))
		marketSpread := snap.BestAsk - snap.BestBid
		if marketSpread < minSpreadScaled {
			return nil
		}
	}
	if bid >= ask {
		return nil
	}

	bidSize, askSize := p.SizePerSide, p.SizePerSide
	if netExposure >= p.MaxInventorySkew {
		bidSize = 0
	}
	if -netExposure >= p.MaxInventorySkew {
		askSize = 0
	}

	if snap.Imbalance != nil {
		imb := *snap.Imbalance
		absImb := imb
		if absImb < 0 {
			absImb = -absImb
		}
		// positive imbalance (more bid depth) means the ask side is the
		// risky (more likely to get run over) side, and vice versa.
		if absImb >= p.SkipRiskySideThreshold {
			if imb > 0 {
				askSize = 0
			} else {
				bidSize = 0
			}
		} else if absImb >= p.ExtremeImbalanceThreshold {
			if imb > 0 {
				askSize = int(float64(askSize) * p.ImbalanceSizeReduction)
			} else {
				bidSize = int(float64(bidSize) * p.ImbalanceSizeReduction)
			}
		}
	}

	inner := types.Quote{Ticker: snap.Ticker, BidPrice: bid, BidSize: bidSize, AskPrice: ask, AskSize: askSize}
	if !p.MultiLevel {
		return []types.Quote{inner}
	}

	outerBid := types.Clamp(bid - p.OuterLevelOffset)
	outerAsk := types.Clamp(ask + p.OuterLevelOffset)
	outerBidSize, outerAskSize := bidSize, askSize
	if bidSize > 0 {
		outerBidSize = int(float64(bidSize) * p.OuterLevelSizeFactor)
	}
	if askSize > 0 {
		outerAskSize = int(float64(askSize) * p.OuterLevelSizeFactor)
	}
	outer := types.Quote{Ticker: snap.Ticker, BidPrice: outerBid, BidSize: outerBidSize, AskPrice: outerAsk, AskSize: outerAskSize}

	return []types.Quote{inner, outer}
}

func fairValue(snap MarketSnapshot, useMicroprice bool) float64 {
	if useMicroprice && snap.Microprice != nil {
		return *snap.Microprice
	}
	return snap.Mid
}

var _ Strategy = (*AdaptiveStrategy)(nil)
