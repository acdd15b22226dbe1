package fairvalue

import (
	"sync"
	"time"

	"cents-quoter/pkg/types"
)

// markedFill is one fill paired with the mid price observed at fill time.
type markedFill struct {
	ts        time.Time
	fillPrice float64
	midAtFill float64
	action    types.Action
}

// AdverseSelectionDetector tracks, per ticker, a sliding window of recent
// fills paired with the mid at fill time. It flags adverse selection when
// the market has consistently moved against our fills immediately after
// they happened — the signature of trading against informed flow.
//
// Grounded on the teacher's FlowTracker rolling-window-eviction idiom, but
// scores mark-to-market drift rather than directional imbalance/velocity.
type AdverseSelectionDetector struct {
	mu sync.Mutex

	window    time.Duration
	threshold float64 // cents; negative mark-to-market beyond this flags adverse

	fills map[types.Ticker][]markedFill
}

// NewAdverseSelectionDetector returns a detector evaluating the trailing
// window of length window, flagging when the average post-fill
// mark-to-market drifts against us by more than threshold cents.
func NewAdverseSelectionDetector(window time.Duration, threshold float64) *AdverseSelectionDetector {
	return &AdverseSelectionDetector{
		window:    window,
		threshold: threshold,
		fills:     make(map[types.Ticker][]markedFill),
	}
}

// RecordFill records a fill at fillPrice for action (buy or sell of YES
// exposure on ticker), with the mid observed at the moment of the fill.
func (d *AdverseSelectionDetector) RecordFill(ticker types.Ticker, action types.Action, fillPrice, midAtFill float64, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.fills[ticker] = append(d.fills[ticker], markedFill{ts: now, fillPrice: fillPrice, midAtFill: midAtFill, action: action})
	d.evictStaleLocked(ticker, now)
}

func (d *AdverseSelectionDetector) evictStaleLocked(ticker types.Ticker, now time.Time) {
	fills := d.fills[ticker]
	cutoff := now.Add(-d.window)
	idx := 0
	for idx < len(fills) && !fills[idx].ts.After(cutoff) {
		idx++
	}
	if idx > 0 {
		d.fills[ticker] = fills[idx:]
	}
}

// IsAdverse reports whether ticker's recent fills show mark-to-market drift
// against us beyond the configured threshold. A buy fill marks against us
// when the mid subsequently falls; a sell fill marks against us when the
// mid subsequently rises. currentMid is the latest observed mid, standing
// in for "mid shortly after the fill" for each fill still in the window.
func (d *AdverseSelectionDetector) IsAdverse(ticker types.Ticker, currentMid float64, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evictStaleLocked(ticker, now)

	fills := d.fills[ticker]
	if len(fills) == 0 {
		return false
	}

	var total float64
	for _, f := range fills {
		drift := currentMid - f.midAtFill
		switch f.action {
		case types.Buy:
			total += drift
		case types.Sell:
			total -= drift
		}
	}
	avg := total / float64(len(fills))
	return avg < -d.threshold
}
