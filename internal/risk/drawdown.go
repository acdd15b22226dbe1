package risk

import (
	"sync"

	"cents-quoter/pkg/types"
)

// DrawdownParams configures DrawdownManager's size-scaling curve.
type DrawdownParams struct {
	ScaleDownStart   int64 // drawdown below this: multiplier 1.0
	HalfSizeDrawdown int64 // drawdown at this point: multiplier 0.5
	HaltDrawdown     int64 // drawdown at/above this: multiplier 0.0
}

// DrawdownManager tracks the peak of the P&L values passed to Observe and
// derives a position size multiplier from the current drawdown off that
// peak. The quoting supervisor observes the day's realized P&L.
// Grounded on the teacher's rolling price-anchor bookkeeping in
// Manager.checkPriceMovement, adapted to track P&L instead of price.
type DrawdownManager struct {
	mu      sync.Mutex
	params  DrawdownParams
	peakPnL int64
	current int64
}

func NewDrawdownManager(params DrawdownParams) *DrawdownManager {
	return &DrawdownManager{params: params}
}

// Observe records the latest total P&L and advances the peak if exceeded.
func (d *DrawdownManager) Observe(currentPnL int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = currentPnL
	if currentPnL > d.peakPnL {
		d.peakPnL = currentPnL
	}
}

// Drawdown returns max(0, peak_pnl - current_pnl).
func (d *DrawdownManager) Drawdown() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drawdownLocked()
}

func (d *DrawdownManager) drawdownLocked() int64 {
	dd := d.peakPnL - d.current
	if dd < 0 {
		return 0
	}
	return dd
}

// PositionMultiplier returns the piecewise-linear scale factor: 1.0 below
// scale_down_start, linearly down to 0.5 at half_size_drawdown, linearly
// down to 0.0 at halt_drawdown, 0.0 beyond.
func (d *DrawdownManager) PositionMultiplier() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	dd := d.drawdownLocked()
	p := d.params

	switch {
	case dd <= p.ScaleDownStart:
		return 1.0
	case dd <= p.HalfSizeDrawdown:
		span := p.HalfSizeDrawdown - p.ScaleDownStart
		if span <= 0 {
			return 0.5
		}
		frac := float64(dd-p.ScaleDownStart) / float64(span)
		return 1.0 - frac*0.5
	case dd <= p.HaltDrawdown:
		span := p.HaltDrawdown - p.HalfSizeDrawdown
		if span <= 0 {
			return 0.0
		}
		frac := float64(dd-p.HalfSizeDrawdown) / float64(span)
		return 0.5 - frac*0.5
	default:
		return 0.0
	}
}

// ApplyMultiplier scales a quote's non-zero sizes by the current position
// multiplier, flooring the result but never upgrading a zeroed side and
// never rounding a non-zero side down to zero. Returns ok=false when the
// multiplier is 0 (quoting suppressed entirely).
func (d *DrawdownManager) ApplyMultiplier(q types.Quote, maxOrderSize int) (types.Quote, bool) {
	m := d.PositionMultiplier()
	if m == 0 {
		return types.Quote{}, false
	}
	if q.BidSize > 0 {
		q.BidSize = scaleSize(q.BidSize, m, maxOrderSize)
	}
	if q.AskSize > 0 {
		q.AskSize = scaleSize(q.AskSize, m, maxOrderSize)
	}
	return q, true
}

func scaleSize(size int, multiplier float64, maxOrderSize int) int {
	scaled := int(float64(size) * multiplier)
	if scaled < 1 {
		scaled = 1
	}
	if maxOrderSize > 0 && scaled > maxOrderSize {
		scaled = maxOrderSize
	}
	return scaled
}
