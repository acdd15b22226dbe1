// Package clock abstracts time so the supervisor's debounce, expiry, and
// cooldown logic can be tested deterministically.
package clock

import "time"

// Clock is the seam between wall-clock time and the rest of the core.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) *time.Ticker
}

// Real is the production Clock backed by the standard library.
type Real struct{}

func (Real) Now() time.Time                         { return time.Now() }
func (Real) After(d time.Duration) <-chan time.Time  { return time.After(d) }
func (Real) NewTicker(d time.Duration) *time.Ticker  { return time.NewTicker(d) }

var _ Clock = Real{}
