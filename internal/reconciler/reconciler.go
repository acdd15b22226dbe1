// Package reconciler maintains the registry of resting orders and drives
// order placement/cancellation against the exchange. Grounded on the
// teacher's internal/strategy/maker.go reconcileOrders (diff active orders
// against a desired quote, cancel mismatches, batch-place the rest),
// generalized from a per-market embedded map into its own package and from
// sequential cancel-then-place into concurrent cancel+create.
package reconciler

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cents-quoter/pkg/types"
)

// ExchangeClient is the narrow surface OrderReconciler needs from the
// exchange REST client. internal/exchange provides the concrete
// implementation; tests provide a fake.
type ExchangeClient interface {
	CreateOrder(ctx context.Context, req types.CreateOrderRequest) (types.OrderAck, error)
	BatchCreateOrders(ctx context.Context, reqs []types.CreateOrderRequest) (types.BatchCreateResult, error)
	BatchCancelOrders(ctx context.Context, orderIDs []string) (types.BatchCancelResult, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// OrderInput describes one side of a desired quote to place.
type OrderInput struct {
	Ticker types.Ticker
	Side   types.Side
	Action types.Action
	Price  int
	Count  int
}

// Reconciler is the in-memory registry of ManagedOrders keyed by
// client_order_id.
type Reconciler struct {
	client ExchangeClient

	mu      sync.Mutex
	orders  map[string]*types.ManagedOrder // client_order_id -> order
	byExch  map[string]string              // exchange_id -> client_order_id
	nowFunc func() time.Time
}

// New returns a Reconciler. nowFunc defaults to time.Now; tests may inject
// a fake clock's Now.
func New(client ExchangeClient, nowFunc func() time.Time) *Reconciler {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &Reconciler{
		client:  client,
		orders:  make(map[string]*types.ManagedOrder),
		byExch:  make(map[string]string),
		nowFunc: nowFunc,
	}
}

// Place creates a single order: generate client_order_id, record Pending,
// call the exchange, then update the record from the result.
func (r *Reconciler) Place(ctx context.Context, in OrderInput) (*types.ManagedOrder, error) {
	order := r.newPendingLocked(in)

	req := r.requestFor(order)
	ack, err := r.client.CreateOrder(ctx, req)
	r.applyAck(order, ack, err)
	return order, err
}

func (r *Reconciler) newPendingLocked(in OrderInput) *types.ManagedOrder {
	r.mu.Lock()
	defer r.mu.Unlock()

	order := &types.ManagedOrder{
		ClientOrderID: uuid.NewString(),
		Ticker:        in.Ticker,
		Side:          in.Side,
		Action:        in.Action,
		Price:         in.Price,
		Count:         in.Count,
		Status:        types.StatusPending,
		CreatedTs:     r.nowFunc(),
	}
	r.orders[order.ClientOrderID] = order
	return order
}

func (r *Reconciler) requestFor(order *types.ManagedOrder) types.CreateOrderRequest {
	req := types.CreateOrderRequest{
		Ticker:        order.Ticker,
		Type:          types.OrderTypeLimit,
		Side:          order.Side,
		Action:        order.Action,
		Count:         order.Count,
		ClientOrderID: order.ClientOrderID,
	}
	if order.Side == types.Yes {
		p := order.Price
		req.YesPrice = &p
	} else {
		p := order.Price
		req.NoPrice = &p
	}
	return req
}

func (r *Reconciler) applyAck(order *types.ManagedOrder, ack types.OrderAck, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil || ack.Error != "" {
		order.Status = types.StatusFailed
		return
	}
	order.ExchangeID = ack.OrderID
	order.Status = types.ExchangeStatusFromString(ack.Status)
	r.byExch[ack.OrderID] = order.ClientOrderID
}

// BatchCreate places several orders via a single batch call.
func (r *Reconciler) BatchCreate(ctx context.Context, inputs []OrderInput) ([]*types.ManagedOrder, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	pending := make([]*types.ManagedOrder, len(inputs))
	reqs := make([]types.CreateOrderRequest, len(inputs))
	for i, in := range inputs {
		pending[i] = r.newPendingLocked(in)
		reqs[i] = r.requestFor(pending[i])
	}

	result, err := r.client.BatchCreateOrders(ctx, reqs)
	if err != nil {
		r.mu.Lock()
		for _, o := range pending {
			o.Status = types.StatusFailed
		}
		r.mu.Unlock()
		return pending, err
	}

	for i, o := range pending {
		var ack types.OrderAck
		if i < len(result.Acks) {
			ack = result.Acks[i]
		} else {
			ack = types.OrderAck{Error: "missing ack"}
		}
		r.applyAck(o, ack, nil)
	}
	return pending, nil
}

// BatchCancel cancels the given client_order_ids, preferring the batch
// endpoint; on failure it falls back to cancelling one at a time.
func (r *Reconciler) BatchCancel(ctx context.Context, clientOrderIDs []string) (int, error) {
	if len(clientOrderIDs) == 0 {
		return 0, nil
	}

	exchangeIDs := make([]string, 0, len(clientOrderIDs))
	r.mu.Lock()
	for _, id := range clientOrderIDs {
		if o, ok := r.orders[id]; ok && o.ExchangeID != "" {
			exchangeIDs = append(exchangeIDs, o.ExchangeID)
		}
	}
	r.mu.Unlock()

	result, err := r.client.BatchCancelOrders(ctx, exchangeIDs)
	if err == nil {
		r.markCancelled(result.CancelledIDs)
		return len(result.CancelledIDs), nil
	}

	// Batch endpoint failed; fall back to per-order cancel.
	cancelled := 0
	for _, exchID := range exchangeIDs {
		if cerr := r.client.CancelOrder(ctx, exchID); cerr == nil {
			r.markCancelled([]string{exchID})
			cancelled++
		}
	}
	return cancelled, nil
}

func (r *Reconciler) markCancelled(exchangeIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, exchID := range exchangeIDs {
		if clientID, ok := r.byExch[exchID]; ok {
			if o, ok := r.orders[clientID]; ok {
				o.Status = types.StatusCancelled
			}
		}
	}
}

// UpdateQuoteResult reports the outcome of an update_quote call.
type UpdateQuoteResult struct {
	CancelledCount int
	Placed         []*types.ManagedOrder
}

// UpdateQuote is the central reconciler operation: gather resting orders
// for the ticker, build the new order set from quote (skipping zero-size
// or out-of-range sides), then cancel the old and create the new
// CONCURRENTLY to minimize the naked window.
func (r *Reconciler) UpdateQuote(ctx context.Context, quote types.Quote) (UpdateQuoteResult, error) {
	oldIDs := r.activeClientIDs(quote.Ticker)
	newInputs := inputsFromQuote(quote)

	var (
		cancelled int
		placed    []*types.ManagedOrder
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := r.BatchCancel(gctx, oldIDs)
		cancelled = n
		return err
	})
	g.Go(func() error {
		p, err := r.BatchCreate(gctx, newInputs)
		placed = p
		return err
	})
	err := g.Wait()
	return UpdateQuoteResult{CancelledCount: cancelled, Placed: placed}, err
}

// UpdateQuoteAtomic places the new orders BEFORE cancelling the old ones,
// for callers that prefer a window of double exposure over a naked window.
func (r *Reconciler) UpdateQuoteAtomic(ctx context.Context, quote types.Quote) (UpdateQuoteResult, error) {
	oldIDs := r.activeClientIDs(quote.Ticker)
	newInputs := inputsFromQuote(quote)

	placed, err := r.BatchCreate(ctx, newInputs)
	if err != nil {
		return UpdateQuoteResult{Placed: placed}, err
	}
	cancelled, err := r.BatchCancel(ctx, oldIDs)
	return UpdateQuoteResult{CancelledCount: cancelled, Placed: placed}, err
}

func inputsFromQuote(q types.Quote) []OrderInput {
	var inputs []OrderInput
	if q.BidSize > 0 && types.InRange(q.BidPrice) {
		inputs = append(inputs, OrderInput{Ticker: q.Ticker, Side: types.Yes, Action: types.Buy, Price: q.BidPrice, Count: q.BidSize})
	}
	if q.AskSize > 0 && types.InRange(q.AskPrice) {
		inputs = append(inputs, OrderInput{Ticker: q.Ticker, Side: types.Yes, Action: types.Sell, Price: q.AskPrice, Count: q.AskSize})
	}
	return inputs
}

func (r *Reconciler) activeClientIDs(ticker types.Ticker) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, o := range r.orders {
		if o.Ticker == ticker && isActive(o.Status) {
			ids = append(ids, id)
		}
	}
	return ids
}

func isActive(s types.OrderStatus) bool {
	return s == types.StatusPending || s == types.StatusOpen || s == types.StatusPartial
}

// CancelAll cancels every active order, optionally scoped to one ticker
// (empty ticker means all).
func (r *Reconciler) CancelAll(ctx context.Context, ticker types.Ticker) (int, error) {
	var ids []string
	r.mu.Lock()
	for id, o := range r.orders {
		if (ticker == "" || o.Ticker == ticker) && isActive(o.Status) {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()
	return r.BatchCancel(ctx, ids)
}

// GetActive returns active ManagedOrders, optionally scoped to one ticker.
func (r *Reconciler) GetActive(ticker types.Ticker) []*types.ManagedOrder {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*types.ManagedOrder
	for _, o := range r.orders {
		if (ticker == "" || o.Ticker == ticker) && isActive(o.Status) {
			out = append(out, o)
		}
	}
	return out
}

// Get returns the ManagedOrder for a client_order_id.
func (r *Reconciler) Get(clientOrderID string) (*types.ManagedOrder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[clientOrderID]
	return o, ok
}

// OnFill updates filled_count and transitions status Open->Partial or
// Partial->Filled.
func (r *Reconciler) OnFill(exchangeOrderID string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	clientID, ok := r.byExch[exchangeOrderID]
	if !ok {
		return
	}
	o, ok := r.orders[clientID]
	if !ok {
		return
	}
	o.FilledCount += count
	if o.FilledCount >= o.Count {
		o.Status = types.StatusFilled
	} else if o.Status == types.StatusOpen {
		o.Status = types.StatusPartial
	}
}

// GetStaleOrders returns active orders older than ageMs.
func (r *Reconciler) GetStaleOrders(ageMs int64) []*types.ManagedOrder {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.nowFunc().Add(-time.Duration(ageMs) * time.Millisecond)
	var out []*types.ManagedOrder
	for _, o := range r.orders {
		if isActive(o.Status) && o.CreatedTs.Before(cutoff) {
			out = append(out, o)
		}
	}
	return out
}

// GetOffPriceOrders returns active orders for ticker whose price has
// drifted more than maxDistance cents from fairValue.
func (r *Reconciler) GetOffPriceOrders(ticker types.Ticker, fairValue float64, maxDistance int) []*types.ManagedOrder {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*types.ManagedOrder
	for _, o := range r.orders {
		if o.Ticker != ticker || !isActive(o.Status) {
			continue
		}
		dist := math.Abs(float64(o.Price) - fairValue)
		if int(dist) > maxDistance {
			out = append(out, o)
		}
	}
	return out
}

// Cleanup evicts terminal (Filled/Cancelled/Failed) orders older than
// maxAge.
func (r *Reconciler) Cleanup(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.nowFunc().Add(-maxAge)
	evicted := 0
	for id, o := range r.orders {
		if isTerminal(o.Status) && o.CreatedTs.Before(cutoff) {
			delete(r.orders, id)
			if o.ExchangeID != "" {
				delete(r.byExch, o.ExchangeID)
			}
			evicted++
		}
	}
	return evicted
}

func isTerminal(s types.OrderStatus) bool {
	return s == types.StatusFilled || s == types.StatusCancelled || s == types.StatusFailed
}
