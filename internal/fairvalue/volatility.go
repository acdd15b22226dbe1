package fairvalue

import (
	"sync"
	"time"

	"cents-quoter/pkg/types"
)

type midSnapshot struct {
	ts  time.Time
	mid float64
}

// VolatilityDetector keeps a per-ticker ring buffer of recent mid
// snapshots and flags volatility when the trailing max-min spread exceeds
// a cent threshold. Grounded on the same rolling-window-eviction idiom as
// AdverseSelectionDetector / the teacher's FlowTracker.
type VolatilityDetector struct {
	mu sync.Mutex

	window    time.Duration
	threshold float64 // cents

	snapshots map[types.Ticker][]midSnapshot
}

// NewVolatilityDetector returns a detector flagging volatility when the
// max-min mid over window exceeds threshold cents.
func NewVolatilityDetector(window time.Duration, threshold float64) *VolatilityDetector {
	return &VolatilityDetector{
		window:    window,
		threshold: threshold,
		snapshots: make(map[types.Ticker][]midSnapshot),
	}
}

// Observe records a mid-price snapshot for ticker at now.
func (v *VolatilityDetector) Observe(ticker types.Ticker, mid float64, now time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.snapshots[ticker] = append(v.snapshots[ticker], midSnapshot{ts: now, mid: mid})
	v.evictStaleLocked(ticker, now)
}

func (v *VolatilityDetector) evictStaleLocked(ticker types.Ticker, now time.Time) {
	snaps := v.snapshots[ticker]
	cutoff := now.Add(-v.window)
	idx := 0
	for idx < len(snaps) && !snaps[idx].ts.After(cutoff) {
		idx++
	}
	if idx > 0 {
		v.snapshots[ticker] = snaps[idx:]
	}
}

// IsVolatile reports whether ticker's trailing mid range exceeds the
// configured cent threshold.
func (v *VolatilityDetector) IsVolatile(ticker types.Ticker, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.evictStaleLocked(ticker, now)

	snaps := v.snapshots[ticker]
	if len(snaps) < 2 {
		return false
	}
	min, max := snaps[0].mid, snaps[0].mid
	for _, s := range snaps[1:] {
		if s.mid < min {
			min = s.mid
		}
		if s.mid > max {
			max = s.mid
		}
	}
	return (max - min) > v.threshold
}
