package risk

import (
	"sync"
	"time"
)

// BreakerParams configures CircuitBreaker's trigger thresholds.
type BreakerParams struct {
	MaxConsecutiveLosses int
	MaxLossesInWindow    int
	Window               time.Duration
	Cooldown             time.Duration
}

// CircuitBreaker pauses trading after a streak of losing fills. Grounded
// on the teacher's Manager.checkPriceMovement rolling-window pattern,
// repurposed from price anchors to loss timestamps.
type CircuitBreaker struct {
	mu sync.Mutex

	params BreakerParams

	consecutiveLosses int
	lossTimestamps    []time.Time
	cooldownUntil     time.Time
}

func NewCircuitBreaker(params BreakerParams) *CircuitBreaker {
	return &CircuitBreaker{params: params}
}

// OnFill records a fill's realized P&L delta and evaluates trigger
// conditions. now is the caller's clock reading (see internal/clock).
func (b *CircuitBreaker) OnFill(pnlDelta int64, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if pnlDelta < 0 {
		b.consecutiveLosses++
		b.lossTimestamps = append(b.lossTimestamps, now)
		b.evictStaleLocked(now)

		if b.params.MaxConsecutiveLosses > 0 && b.consecutiveLosses >= b.params.MaxConsecutiveLosses {
			b.tripLocked(now)
		}
		if b.params.MaxLossesInWindow > 0 && len(b.lossTimestamps) >= b.params.MaxLossesInWindow {
			b.tripLocked(now)
		}
		return
	}

	// A winning fill resets the consecutive-loss counter but does NOT
	// clear an active cooldown. A zero-P&L fill (e.g. an opening trade)
	// leaves the counter as it is.
	if pnlDelta > 0 {
		b.consecutiveLosses = 0
	}
}

func (b *CircuitBreaker) evictStaleLocked(now time.Time) {
	if b.params.Window <= 0 {
		return
	}
	cutoff := now.Add(-b.params.Window)
	kept := b.lossTimestamps[:0]
	for _, ts := range b.lossTimestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.lossTimestamps = kept
}

func (b *CircuitBreaker) tripLocked(now time.Time) {
	b.cooldownUntil = now.Add(b.params.Cooldown)
}

// Paused reports whether the breaker's cooldown is currently active.
func (b *CircuitBreaker) Paused(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Before(b.cooldownUntil)
}

// Reset clears all breaker state, including any active cooldown.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveLosses = 0
	b.lossTimestamps = nil
	b.cooldownUntil = time.Time{}
}
