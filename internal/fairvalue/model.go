// Package fairvalue exposes fair-value, adverse-selection, and volatility
// signals derived from the order book replica and the fill stream. It
// generalizes the teacher's combined toxic-flow tracker into the three
// components the strategy layer consumes independently.
package fairvalue

import (
	"cents-quoter/internal/orderbook"
	"cents-quoter/pkg/types"
)

// Model exposes microprice/imbalance as the fair-value signal the strategy
// layer reads. It is a thin pass-through over the replica; it does not
// blend in volatility or smooth the reference price.
type Model struct {
	replica *orderbook.Replica
}

// New returns a Model reading from replica.
func New(replica *orderbook.Replica) *Model {
	return &Model{replica: replica}
}

// FairValue returns the best available reference price for ticker:
// microprice if both sides have depth, else the plain mid. Returns false
// if either side has no depth.
func (m *Model) FairValue(ticker types.Ticker) (float64, bool) {
	if micro, ok := m.replica.Microprice(ticker); ok {
		return micro, true
	}
	if bbo, ok := m.replica.BBO(ticker); ok {
		return bbo.MidFloat(), true
	}
	return 0, false
}
