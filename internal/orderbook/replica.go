// Package orderbook maintains a local replica of each ticker's order book
// from the exchange's streaming feed: a full snapshot on subscribe, then
// absolute-quantity deltas. It owns no locking — per spec, the replica is
// mutated only from the supervisor's single cooperative loop, never from
// concurrent handlers for the same ticker.
package orderbook

import (
	"time"

	"cents-quoter/pkg/types"
)

// book is the per-ticker state: two price->qty maps plus a cached best on
// each side so bbo() is O(1) in the common case (deltas that don't touch
// the current best). Only the rare case of the best level being removed
// falls back to rescanning the (at most 99-entry) side.
type book struct {
	bids map[int]int
	asks map[int]int

	bestBid     int
	bestBidSize int
	bestAsk     int
	bestAskSize int

	sequence     int64
	lastUpdateTs time.Time
}

func newBook() *book {
	return &book{bids: make(map[int]int), asks: make(map[int]int)}
}

// Replica is the set of per-ticker order book mirrors owned by the
// supervisor loop.
type Replica struct {
	books map[types.Ticker]*book
}

// New returns an empty Replica.
func New() *Replica {
	return &Replica{books: make(map[types.Ticker]*book)}
}

func (r *Replica) bookFor(ticker types.Ticker) *book {
	b, ok := r.books[ticker]
	if !ok {
		b = newBook()
		r.books[ticker] = b
	}
	return b
}

// ApplySnapshot atomically replaces both sides of ticker's book from a
// (yesBids, noBids) pair. The NO side is transformed to YES-equivalent asks
// on ingress: a NO bid of qty q at price p becomes q contracts available to
// sell YES at 100-p. Zero-quantity levels are filtered. Sequence resets to
// 0; any deltas that were in flight before this snapshot are superseded.
// Reports false (and leaves the existing book untouched) if the incoming
// snapshot is crossed (best_bid >= best_ask) on both sides present — a data
// invariant violation that must be discarded rather than installed.
func (r *Replica) ApplySnapshot(ticker types.Ticker, yesBids, noBids []types.OrderbookLevel, now time.Time) bool {
	b := newBook()
	for _, lvl := range yesBids {
		if lvl.Quantity <= 0 {
			continue
		}
		b.bids[lvl.Price] = lvl.Quantity
	}
	for _, lvl := range noBids {
		if lvl.Quantity <= 0 {
			continue
		}
		askPrice := 100 - lvl.Price
		b.asks[askPrice] += lvl.Quantity
	}
	b.sequence = 0
	b.lastUpdateTs = now
	recomputeBestBid(b)
	recomputeBestAsk(b)

	if len(b.bids) > 0 && len(b.asks) > 0 && b.bestBid >= b.bestAsk {
		return false
	}
	r.books[ticker] = b
	return true
}

// Crossed reports whether ticker's current book has best_bid >= best_ask
// with both sides present.
func (r *Replica) Crossed(ticker types.Ticker) bool {
	b, ok := r.books[ticker]
	if !ok || len(b.bids) == 0 || len(b.asks) == 0 {
		return false
	}
	return b.bestBid >= b.bestAsk
}

// ApplyDelta sets one side's level to an absolute quantity. side is
// types.Yes (native YES book) or types.No (transformed to a YES ask at
// 100-price on ingress, per the snapshot convention). delta=0 removes the
// level. Sequence increments locally; a provided exchange sequence is
// accepted but not required to match (the core trusts its own counter).
func (r *Replica) ApplyDelta(ticker types.Ticker, side types.Side, price, delta int, now time.Time) {
	b := r.bookFor(ticker)

	switch side {
	case types.Yes:
		applyLevel(b.bids, price, delta)
		switch {
		case delta > 0 && price >= b.bestBid:
			b.bestBid, b.bestBidSize = price, delta
		case price == b.bestBid:
			recomputeBestBid(b)
		}
	case types.No:
		askPrice := 100 - price
		applyLevel(b.asks, askPrice, delta)
		switch {
		case delta > 0 && (b.bestAsk == 0 || askPrice <= b.bestAsk):
			b.bestAsk, b.bestAskSize = askPrice, delta
		case askPrice == b.bestAsk:
			recomputeBestAsk(b)
		}
	}

	b.sequence++
	b.lastUpdateTs = now
}

func applyLevel(side map[int]int, price, delta int) {
	if delta <= 0 {
		delete(side, price)
		return
	}
	side[price] = delta
}

func recomputeBestBid(b *book) {
	best := -1
	for p := range b.bids {
		if p > best {
			best = p
		}
	}
	if best < 0 {
		b.bestBid, b.bestBidSize = 0, 0
		return
	}
	b.bestBid, b.bestBidSize = best, b.bids[best]
}

func recomputeBestAsk(b *book) {
	best := -1
	for p := range b.asks {
		if best < 0 || p < best {
			best = p
		}
	}
	if best < 0 {
		b.bestAsk, b.bestAskSize = 0, 0
		return
	}
	b.bestAsk, b.bestAskSize = best, b.asks[best]
}

// BBO returns the best bid/ask for ticker, or false if either side is empty.
func (r *Replica) BBO(ticker types.Ticker) (types.BBO, bool) {
	b, ok := r.books[ticker]
	if !ok || len(b.bids) == 0 || len(b.asks) == 0 {
		return types.BBO{}, false
	}
	return types.BBO{
		BidPrice: b.bestBid, BidSize: b.bestBidSize,
		AskPrice: b.bestAsk, AskSize: b.bestAskSize,
	}, true
}

// Microprice returns the size-weighted fair value between best bid and
// best ask, or false if either side is empty.
func (r *Replica) Microprice(ticker types.Ticker) (float64, bool) {
	bbo, ok := r.BBO(ticker)
	if !ok {
		return 0, false
	}
	totalSize := bbo.BidSize + bbo.AskSize
	if totalSize == 0 {
		return 0, false
	}
	return (float64(bbo.BidPrice)*float64(bbo.AskSize) + float64(bbo.AskPrice)*float64(bbo.BidSize)) / float64(totalSize), true
}

// Imbalance returns (bidSize-askSize)/(bidSize+askSize) at the BBO, in
// [-1,1], or false if either side is empty or both sizes are zero.
func (r *Replica) Imbalance(ticker types.Ticker) (float64, bool) {
	bbo, ok := r.BBO(ticker)
	if !ok {
		return 0, false
	}
	total := bbo.BidSize + bbo.AskSize
	if total == 0 {
		return 0, false
	}
	return float64(bbo.BidSize-bbo.AskSize) / float64(total), true
}

// Depth returns up to n levels on each side, bids descending and asks
// ascending by price.
func (r *Replica) Depth(ticker types.Ticker, n int) (bids, asks []types.OrderbookLevel) {
	b, ok := r.books[ticker]
	if !ok {
		return nil, nil
	}
	bids = topLevels(b.bids, n, true)
	asks = topLevels(b.asks, n, false)
	return bids, asks
}

func topLevels(side map[int]int, n int, descending bool) []types.OrderbookLevel {
	prices := make([]int, 0, len(side))
	for p := range side {
		prices = append(prices, p)
	}
	// insertion sort: at most 99 distinct prices, simplicity over algorithmic cleverness
	for i := 1; i < len(prices); i++ {
		for j := i; j > 0; j-- {
			less := prices[j] < prices[j-1]
			if descending {
				less = prices[j] > prices[j-1]
			}
			if !less {
				break
			}
			prices[j], prices[j-1] = prices[j-1], prices[j]
		}
	}
	if n > len(prices) {
		n = len(prices)
	}
	out := make([]types.OrderbookLevel, 0, n)
	for _, p := range prices[:n] {
		out = append(out, types.OrderbookLevel{Price: p, Quantity: side[p]})
	}
	return out
}

// IsStale reports whether ticker's book hasn't been updated within
// threshold, as observed at now. A never-updated book is always stale.
func (r *Replica) IsStale(ticker types.Ticker, threshold time.Duration, now time.Time) bool {
	b, ok := r.books[ticker]
	if !ok || b.lastUpdateTs.IsZero() {
		return true
	}
	return now.Sub(b.lastUpdateTs) > threshold
}

// LastUpdated returns the last update timestamp for ticker.
func (r *Replica) LastUpdated(ticker types.Ticker) time.Time {
	b, ok := r.books[ticker]
	if !ok {
		return time.Time{}
	}
	return b.lastUpdateTs
}

// Sequence returns the current local sequence counter for ticker.
func (r *Replica) Sequence(ticker types.Ticker) int64 {
	b, ok := r.books[ticker]
	if !ok {
		return 0
	}
	return b.sequence
}

// Remove drops all state for ticker (e.g. on remove_market).
func (r *Replica) Remove(ticker types.Ticker) {
	delete(r.books, ticker)
}
