// Package quoting is the central orchestrator: it owns the per-ticker
// debounce state, runs the update_quotes pipeline (exposure guard →
// snapshot → strategy → drawdown scaling → idempotent cache → risk gate →
// maker-protection re-clamp → reconciler), and dispatches feed/fill events
// and control-plane commands through a single cooperative loop.
//
// Grounded on the teacher's engine.go (manageMarkets/dispatchMarketEvents
// select-loop shape, startMarketLocked's synchronous startup-snapshot
// sequencing) and strategy/maker.go's Run (per-tick guard-then-compute-
// then-reconcile), collapsed from one-goroutine-per-market into the single
// inbox loop spec §5 requires: no two handlers for the same ticker run
// concurrently, and the replica and inventory maps need no locking because
// only this loop ever touches them. The reconciler guards its own order
// registry with a mutex, since its cancel and create calls run concurrently.
package quoting

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"cents-quoter/internal/clock"
	"cents-quoter/internal/fairvalue"
	"cents-quoter/internal/inventory"
	"cents-quoter/internal/metrics"
	"cents-quoter/internal/orderbook"
	"cents-quoter/internal/reconciler"
	"cents-quoter/internal/risk"
	"cents-quoter/internal/strategy"
	"cents-quoter/pkg/types"
)

// QuoteReconciler is the narrow reconciler surface the supervisor needs,
// satisfied by *reconciler.Reconciler.
type QuoteReconciler interface {
	UpdateQuote(ctx context.Context, quote types.Quote) (reconciler.UpdateQuoteResult, error)
	CancelAll(ctx context.Context, ticker types.Ticker) (int, error)
	OnFill(exchangeOrderID string, count int)
}

// FeedSource is the narrow streaming-feed surface the supervisor consumes,
// satisfied by *exchange.Feed.
type FeedSource interface {
	SnapshotEvents() <-chan types.WSOrderbookSnapshot
	DeltaEvents() <-chan types.WSOrderbookDelta
	TickerEvents() <-chan types.WSTicker
	FillEvents() <-chan types.WSFill
}

// RESTClient is the narrow REST surface startup reconciliation needs,
// satisfied by *exchange.Client.
type RESTClient interface {
	GetPositions(ctx context.Context, cursor string) (types.PositionPage, error)
	GetMarkets(ctx context.Context, cursor string) (types.MarketPage, error)
}

// AuditRecorder appends a processed fill to an external audit trail.
// Optional: a nil recorder means fills aren't audited. Satisfied by
// *store.AuditDB.
type AuditRecorder interface {
	RecordFill(fill types.Fill, realizedPnL int64) error
}

// Params configures debounce thresholds and order-size clamping.
type Params struct {
	MinGlobalInterval   time.Duration // default 200ms: global rate limiter
	MinQuoteInterval    time.Duration // default 1s: per-ticker debounce
	MinPriceChangeCents int           // default 1: per-ticker debounce override
	MaxOrderSize        int
	MaxTotalExposure    int
	DenyLogInterval     time.Duration // default 30s: per (ticker,reason) log throttle
	MaxLatencySamples   int           // default 50
}

func (p *Params) applyDefaults() {
	if p.MinGlobalInterval == 0 {
		p.MinGlobalInterval = 200 * time.Millisecond
	}
	if p.MinQuoteInterval == 0 {
		p.MinQuoteInterval = time.Second
	}
	if p.MinPriceChangeCents == 0 {
		p.MinPriceChangeCents = 1
	}
	if p.DenyLogInterval == 0 {
		p.DenyLogInterval = 30 * time.Second
	}
	if p.MaxLatencySamples == 0 {
		p.MaxLatencySamples = 50
	}
}

// tickerState is the supervisor's per-ticker debounce and cache bookkeeping.
type tickerState struct {
	haveBBO       bool
	lastBBO       types.BBO
	lastUpdateTs  time.Time
	haveSentQuote bool
	lastSentQuote types.Quote
	lastDenyLog   map[risk.DenyReason]time.Time
	latencies     []time.Duration
}

func (t *tickerState) recordLatency(d time.Duration, max int) {
	t.latencies = append(t.latencies, d)
	if len(t.latencies) > max {
		t.latencies = t.latencies[len(t.latencies)-max:]
	}
}

// Supervisor is the core orchestrator. All of its state is mutated only
// from Run's select loop (or from direct Handle* calls in tests), so none
// of it is guarded by a mutex.
type Supervisor struct {
	replica  *orderbook.Replica
	fv       *fairvalue.Model
	adverse  *fairvalue.AdverseSelectionDetector
	vol      *fairvalue.VolatilityDetector
	inv      *inventory.Tracker
	strat    strategy.Strategy
	drawdown *risk.DrawdownManager
	breaker  *risk.CircuitBreaker
	gate     *risk.RiskGate
	recon    QuoteReconciler
	feed     FeedSource

	limiter *rate.Limiter
	clk     clock.Clock
	logger  *slog.Logger
	params  Params

	marketMeta map[types.Ticker]types.MarketInfo
	tickers    map[types.Ticker]*tickerState

	audit AuditRecorder

	paused bool
	inbox  chan types.Command
}

// SetAuditRecorder attaches an audit trail that every processed fill is
// appended to. Optional; call before Run.
func (s *Supervisor) SetAuditRecorder(a AuditRecorder) { s.audit = a }

// New wires a Supervisor from its component collaborators.
func New(
	replica *orderbook.Replica,
	fv *fairvalue.Model,
	adverse *fairvalue.AdverseSelectionDetector,
	vol *fairvalue.VolatilityDetector,
	inv *inventory.Tracker,
	strat strategy.Strategy,
	drawdown *risk.DrawdownManager,
	breaker *risk.CircuitBreaker,
	gate *risk.RiskGate,
	recon QuoteReconciler,
	feed FeedSource,
	clk clock.Clock,
	params Params,
	logger *slog.Logger,
) *Supervisor {
	params.applyDefaults()
	return &Supervisor{
		replica:    replica,
		fv:         fv,
		adverse:    adverse,
		vol:        vol,
		inv:        inv,
		strat:      strat,
		drawdown:   drawdown,
		breaker:    breaker,
		gate:       gate,
		recon:      recon,
		feed:       feed,
		limiter:    rate.NewLimiter(rate.Every(params.MinGlobalInterval), 1),
		clk:        clk,
		logger:     logger.With("component", "quoting_supervisor"),
		params:     params,
		marketMeta: make(map[types.Ticker]types.MarketInfo),
		tickers:    make(map[types.Ticker]*tickerState),
		inbox:      make(chan types.Command, 32),
	}
}

// Inbox returns the channel control-plane commands are enqueued on.
func (s *Supervisor) Inbox() chan<- types.Command { return s.inbox }

func (s *Supervisor) stateFor(ticker types.Ticker) *tickerState {
	st, ok := s.tickers[ticker]
	if !ok {
		st = &tickerState{lastDenyLog: make(map[risk.DenyReason]time.Time)}
		s.tickers[ticker] = st
	}
	return st
}

// RegisterMarket records metadata (used for time-to-expiry) for ticker.
func (s *Supervisor) RegisterMarket(info types.MarketInfo) {
	s.marketMeta[info.Ticker] = info
}

// Run dispatches feed events and control-plane commands until ctx is
// cancelled. This is the single cooperative loop spec §5 requires: no two
// handlers for the same ticker ever run concurrently.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-s.feed.SnapshotEvents():
			s.HandleSnapshot(ctx, evt, s.clk.Now())
		case evt := <-s.feed.DeltaEvents():
			s.HandleDelta(ctx, evt, s.clk.Now())
		case evt := <-s.feed.TickerEvents():
			s.HandleTicker(ctx, evt, s.clk.Now())
		case evt := <-s.feed.FillEvents():
			s.HandleFill(ctx, evt, s.clk.Now())
		case cmd := <-s.inbox:
			s.HandleCommand(ctx, cmd)
		}
	}
}

// HandleSnapshot applies a full-book replace then runs the debounced
// update path for its ticker.
func (s *Supervisor) HandleSnapshot(ctx context.Context, evt types.WSOrderbookSnapshot, now time.Time) {
	yesBids := make([]types.OrderbookLevel, 0, len(evt.Yes))
	for _, lvl := range evt.Yes {
		yesBids = append(yesBids, types.OrderbookLevel{Price: lvl.Price, Quantity: lvl.Qty})
	}
	noBids := make([]types.OrderbookLevel, 0, len(evt.No))
	for _, lvl := range evt.No {
		noBids = append(noBids, types.OrderbookLevel{Price: lvl.Price, Quantity: lvl.Qty})
	}

	if !s.replica.ApplySnapshot(evt.MarketTicker, yesBids, noBids, now) {
		s.logger.Warn("discarding crossed snapshot", "ticker", evt.MarketTicker)
		return
	}
	s.afterBookUpdate(ctx, evt.MarketTicker, now)
}

// HandleDelta applies an absolute-quantity level update then runs the
// debounced update path for its ticker.
func (s *Supervisor) HandleDelta(ctx context.Context, evt types.WSOrderbookDelta, now time.Time) {
	s.replica.ApplyDelta(evt.MarketTicker, evt.Side, evt.Price, evt.Delta, now)
	s.afterBookUpdate(ctx, evt.MarketTicker, now)
}

func (s *Supervisor) afterBookUpdate(ctx context.Context, ticker types.Ticker, now time.Time) {
	if s.paused {
		return
	}
	bbo, ok := s.replica.BBO(ticker)
	if !ok {
		return
	}
	s.vol.Observe(ticker, bbo.MidFloat(), now)
	s.maybeUpdate(ctx, ticker, bbo, now)
}

// HandleTicker is the fallback path when a full replica isn't available:
// it treats (yes_bid, yes_ask) as the BBO directly and runs the same
// debounce/update path.
func (s *Supervisor) HandleTicker(ctx context.Context, evt types.WSTicker, now time.Time) {
	if s.paused {
		return
	}
	bbo := types.BBO{BidPrice: evt.YesBid, AskPrice: evt.YesAsk}
	s.vol.Observe(evt.MarketTicker, bbo.MidFloat(), now)
	s.maybeUpdate(ctx, evt.MarketTicker, bbo, now)
}

// HandleFill links a fill to its ManagedOrder, updates inventory/P&L
// signals, and invalidates the idempotent quote cache since the position
// just changed.
func (s *Supervisor) HandleFill(ctx context.Context, evt types.WSFill, now time.Time) {
	price := evt.YesPrice
	if evt.Side == types.No {
		price = evt.NoPrice
	}
	fill := types.Fill{
		OrderID: evt.OrderID, Ticker: evt.MarketTicker, Side: evt.Side,
		Action: evt.Action, Count: evt.Count, Price: price, Ts: now, IsTaker: evt.IsTaker,
	}

	s.recon.OnFill(evt.OrderID, evt.Count)

	mid, _ := s.fv.FairValue(evt.MarketTicker)
	s.adverse.RecordFill(evt.MarketTicker, fill.Action, float64(price), mid, now)

	realized := s.inv.OnFill(fill)
	s.strat.OnFill(fill)
	s.gate.OnFill(realized)
	s.breaker.OnFill(realized, now)
	s.drawdown.Observe(s.gate.DailyPnL())

	if s.audit != nil {
		if err := s.audit.RecordFill(fill, realized); err != nil {
			s.logger.Error("audit record fill failed", "ticker", fill.Ticker, "error", err)
		}
	}

	metrics.Fills.WithLabelValues(string(evt.MarketTicker), string(evt.Action)).Inc()
	metrics.DailyPnL.Set(float64(s.gate.DailyPnL()))
	metrics.DrawdownPositionMultiplier.Set(s.drawdown.PositionMultiplier())

	wasPaused := s.paused
	if s.gate.IsHalted() || s.breaker.Paused(now) {
		s.paused = true
	}
	if s.paused && !wasPaused {
		source := "circuit_breaker"
		if s.gate.IsHalted() {
			source = "risk_gate"
		}
		metrics.RecordHalt(source)
	}
	metrics.CircuitBreakerPaused.Set(boolToFloat(s.breaker.Paused(now)))
	if s.drawdown.PositionMultiplier() == 0 {
		metrics.RecordHalt("drawdown")
		if _, err := s.recon.CancelAll(ctx, evt.MarketTicker); err != nil {
			s.logger.Error("cancel-all on drawdown halt failed", "ticker", evt.MarketTicker, "error", err)
		}
	}

	st := s.stateFor(evt.MarketTicker)
	st.haveSentQuote = false
}

// HandleCommand processes one control-plane request from the inbox.
func (s *Supervisor) HandleCommand(ctx context.Context, cmd types.Command) {
	switch cmd.Kind {
	case types.CmdPause:
		s.paused = true
	case types.CmdResume:
		s.gate.Resume()
		s.breaker.Reset()
		s.paused = false
	case types.CmdFlatten:
		if _, err := s.recon.CancelAll(ctx, cmd.Ticker); err != nil {
			s.logger.Error("flatten failed", "ticker", cmd.Ticker, "error", err)
		}
	case types.CmdRemoveMarket:
		s.replica.Remove(cmd.Ticker)
		delete(s.tickers, cmd.Ticker)
		delete(s.marketMeta, cmd.Ticker)
	case types.CmdGetState:
		if cmd.Reply != nil {
			cmd.Reply <- s.paused
		}
	case types.CmdGetMetrics:
		if cmd.Reply != nil {
			cmd.Reply <- s.inv.PnLSummary(nil)
		}
	}
	if cmd.Reply != nil && cmd.Kind != types.CmdGetState && cmd.Kind != types.CmdGetMetrics {
		close(cmd.Reply)
	}
}

// maybeUpdate runs should_update's debounce gate and, if it passes, times
// and executes update_quotes.
func (s *Supervisor) maybeUpdate(ctx context.Context, ticker types.Ticker, bbo types.BBO, now time.Time) {
	if !s.shouldUpdate(ticker, bbo, now) {
		return
	}

	start := s.clk.Now()
	s.updateQuotes(ctx, ticker)
	elapsed := s.clk.Now().Sub(start)
	metrics.ObserveReconcile(string(ticker), elapsed.Seconds())

	st := s.stateFor(ticker)
	st.recordLatency(elapsed, s.params.MaxLatencySamples)
	st.lastUpdateTs = now
	st.lastBBO = bbo
	st.haveBBO = true
}

// shouldUpdate implements spec's debounce: a global rate limiter that
// gates every update including the first (an Open Question the spec
// leaves implementation-defined; this normalizes to "the first update
// still respects the global limiter"), then a per-ticker minimum interval
// or minimum price move, with the very first update for a ticker bypassing
// only the per-ticker half of that check.
func (s *Supervisor) shouldUpdate(ticker types.Ticker, bbo types.BBO, now time.Time) bool {
	if !s.limiter.AllowN(now, 1) {
		return false
	}
	st := s.stateFor(ticker)
	if !st.haveBBO {
		return true
	}
	if now.Sub(st.lastUpdateTs) >= s.params.MinQuoteInterval {
		return true
	}
	if absInt(bbo.BidPrice-st.lastBBO.BidPrice) >= s.params.MinPriceChangeCents {
		return true
	}
	if absInt(bbo.AskPrice-st.lastBBO.AskPrice) >= s.params.MinPriceChangeCents {
		return true
	}
	return false
}

// updateQuotes is the core per-ticker pipeline: exposure guard, snapshot,
// strategy, drawdown scaling, idempotent cache, risk gate, maker-protection
// re-clamp, reconciler.
func (s *Supervisor) updateQuotes(ctx context.Context, ticker types.Ticker) {
	if s.inv.TotalExposure() >= s.params.MaxTotalExposure {
		return
	}

	snap, ok := s.buildSnapshot(ticker)
	if !ok {
		return
	}

	quotes := s.strat.ComputeQuotes(snap)
	for _, q := range quotes {
		scaled, ok := s.drawdown.ApplyMultiplier(q, s.params.MaxOrderSize)
		if !ok {
			continue
		}
		s.sendQuote(ctx, ticker, scaled)
	}
}

func (s *Supervisor) buildSnapshot(ticker types.Ticker) (strategy.MarketSnapshot, bool) {
	bbo, ok := s.replica.BBO(ticker)
	if !ok {
		return strategy.MarketSnapshot{}, false
	}

	now := s.clk.Now()
	pos := s.inv.Position(ticker)
	mid := bbo.MidFloat()

	snap := strategy.MarketSnapshot{
		Ticker:           ticker,
		BestBid:          bbo.BidPrice,
		BestAsk:          bbo.AskPrice,
		Mid:              mid,
		Spread:           bbo.Spread(),
		Position:         &pos,
		AdverseSelection: s.adverse.IsAdverse(ticker, mid, now),
		Volatile:         s.vol.IsVolatile(ticker, now),
	}

	bidSize, askSize := bbo.BidSize, bbo.AskSize
	snap.BidSize, snap.AskSize = &bidSize, &askSize

	if micro, ok := s.replica.Microprice(ticker); ok {
		snap.Microprice = &micro
	}
	if imb, ok := s.replica.Imbalance(ticker); ok {
		snap.Imbalance = &imb
	}
	if meta, ok := s.marketMeta[ticker]; ok {
		tte := meta.TimeToExpiry(now)
		snap.TimeToExpirySec = &tte
	}

	return snap, true
}

func (s *Supervisor) sendQuote(ctx context.Context, ticker types.Ticker, q types.Quote) {
	st := s.stateFor(ticker)
	if st.haveSentQuote && st.lastSentQuote.Equal(q) {
		return
	}

	allowed, reason := s.gate.Check(ticker, q, s.inv)
	if !allowed {
		s.logDeny(ticker, reason)
		return
	}

	if bbo, ok := s.replica.BBO(ticker); ok {
		q = reclampToBBO(q, bbo)
	}

	if _, err := s.recon.UpdateQuote(ctx, q); err != nil {
		s.logger.Error("update_quote failed", "ticker", ticker, "error", err)
		return
	}
	metrics.QuotesPlaced.WithLabelValues(string(ticker)).Inc()
	st.lastSentQuote = q
	st.haveSentQuote = true
}

// logDeny logs a risk-gate denial at most once per DenyLogInterval per
// (ticker, reason), per spec §7's rate-limited-log requirement.
func (s *Supervisor) logDeny(ticker types.Ticker, reason risk.DenyReason) {
	metrics.RecordDeny(string(ticker), string(reason))
	st := s.stateFor(ticker)
	now := s.clk.Now()
	if last, ok := st.lastDenyLog[reason]; ok && now.Sub(last) < s.params.DenyLogInterval {
		return
	}
	st.lastDenyLog[reason] = now
	s.logger.Warn("quote denied by risk gate", "ticker", ticker, "reason", reason)
}

// reclampToBBO drops a side whose price would cross the freshest observed
// BBO, as a last-line-of-defense maker-protection guard right before
// sending — distinct from strategy.OptimismTaxStrategy's own zone-clamp,
// which runs against the snapshot the strategy computed from rather than
// the BBO observed at send time.
func reclampToBBO(q types.Quote, bbo types.BBO) types.Quote {
	if q.BidSize > 0 && q.BidPrice >= bbo.AskPrice {
		q.BidSize = 0
	}
	if q.AskSize > 0 && q.AskPrice <= bbo.BidPrice {
		q.AskSize = 0
	}
	return q
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// StartupReconciliation runs spec §4.11 steps 2-4: cancel orphan resting
// orders for the active ticker set, sync positions from the exchange into
// the inventory tracker, and fetch market metadata for time-to-expiry.
// Steps 1 (client construction), 5 (feed connect/subscribe), and 6 (enter
// Run) are the caller's responsibility.
func (s *Supervisor) StartupReconciliation(ctx context.Context, client RESTClient, tickers []types.Ticker) error {
	for _, t := range tickers {
		if _, err := s.recon.CancelAll(ctx, t); err != nil {
			return err
		}
	}

	entries, err := fetchPortfolio(ctx, client)
	if err != nil {
		return err
	}
	s.inv.InitializeFromPortfolio(entries, s.clk.Now())

	want := make(map[types.Ticker]bool, len(tickers))
	for _, t := range tickers {
		want[t] = true
	}
	cursor := ""
	for {
		page, err := client.GetMarkets(ctx, cursor)
		if err != nil {
			return err
		}
		for _, m := range page.Markets {
			if want[m.Ticker] {
				s.marketMeta[m.Ticker] = m
			}
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}
	return nil
}

// ResyncPositions re-reads every portfolio position from the exchange and
// reconciles the inventory tracker against it, without resetting daily
// counters. Called after a reconnect that might have missed fills while
// disconnected (spec §4.10: "if was a reconnect, re-sync positions in case
// fills were missed") — unlike StartupReconciliation's initial load, this
// must not clear the daily-loss/circuit-breaker bookkeeping mid-session.
func (s *Supervisor) ResyncPositions(ctx context.Context, client RESTClient) error {
	entries, err := fetchPortfolio(ctx, client)
	if err != nil {
		return err
	}
	s.inv.ReconcilePortfolio(entries, s.clk.Now())
	return nil
}

func fetchPortfolio(ctx context.Context, client RESTClient) ([]inventory.PortfolioEntry, error) {
	var entries []inventory.PortfolioEntry
	cursor := ""
	for {
		page, err := client.GetPositions(ctx, cursor)
		if err != nil {
			return nil, err
		}
		for _, p := range page.Positions {
			yes, no := 0, 0
			if p.Position >= 0 {
				yes = p.Position
			} else {
				no = -p.Position
			}
			entries = append(entries, inventory.PortfolioEntry{Ticker: p.Ticker, Yes: yes, No: no})
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}
	return entries, nil
}
