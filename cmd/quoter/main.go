// cents-quoter — an automated market-making daemon for cents-denominated
// binary-outcome prediction markets shaped like Kalshi.
//
// Architecture:
//
//	main.go                    — entry point: loads config, wires every
//	                             component, starts the daemon, waits for
//	                             SIGINT/SIGTERM, shuts down cleanly.
//	internal/orderbook          — per-ticker order book replica.
//	internal/fairvalue          — fair-value model, adverse-selection and
//	                             volatility detectors.
//	internal/inventory          — YES/NO position tracking, realized P&L.
//	internal/strategy           — AdaptiveStrategy / OptimismTaxStrategy
//	                             quote computation.
//	internal/risk               — RiskGate, DrawdownManager, CircuitBreaker.
//	internal/reconciler          — resting-order registry, order
//	                             placement/cancellation against the
//	                             exchange.
//	internal/connsupervisor      — streaming feed health and reconnect.
//	internal/quoting             — the central single-threaded orchestrator
//	                             that ties all of the above together.
//	internal/exchange            — REST and streaming clients.
//	internal/store               — position snapshots + audit trail.
//
// How it makes money:
//
//	The daemon captures the bid-ask spread on binary-outcome markets. It
//	posts a bid below fair value and an ask above it; when both sides
//	fill it earns the spread. Inventory skew and drawdown scaling keep
//	one-sided risk from accumulating unchecked.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"cents-quoter/internal/clock"
	"cents-quoter/internal/config"
	"cents-quoter/internal/connsupervisor"
	"cents-quoter/internal/exchange"
	"cents-quoter/internal/fairvalue"
	"cents-quoter/internal/inventory"
	"cents-quoter/internal/orderbook"
	"cents-quoter/internal/quoting"
	"cents-quoter/internal/reconciler"
	"cents-quoter/internal/risk"
	"cents-quoter/internal/store"
	"cents-quoter/internal/strategy"
	"cents-quoter/pkg/types"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("QUOTER_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	if !cfg.DryRun {
		logger.Warn("request signing is not implemented; live trading will fail authentication — run with dry_run: true")
	}

	tickers := make([]types.Ticker, len(cfg.Tickers))
	for i, t := range cfg.Tickers {
		tickers[i] = types.Ticker(t)
	}

	// Step 1: create API clients.
	signer := exchange.NoopSigner{}
	client := exchange.NewClient(exchange.ClientConfig{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
		DryRun:  cfg.DryRun,
	}, signer, logger)
	feed := exchange.NewFeed(cfg.API.WSURL, signer, logger)

	posStore, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		logger.Error("failed to open position store", "error", err)
		os.Exit(1)
	}
	var audit *store.AuditDB
	if cfg.Store.AuditDB != "" {
		audit, err = store.OpenAudit(cfg.Store.AuditDB)
		if err != nil {
			logger.Error("failed to open audit db", "error", err)
			os.Exit(1)
		}
		defer audit.Close()
	}

	replica := orderbook.New()
	fv := fairvalue.New(replica)
	vol := fairvalue.NewVolatilityDetector(time.Minute, 0.02)
	adverse := fairvalue.NewAdverseSelectionDetector(time.Minute, 3)
	inv := inventory.New()

	strat := buildStrategy(cfg, vol)

	drawdown := risk.NewDrawdownManager(cfg.DrawdownParams())
	breaker := risk.NewCircuitBreaker(cfg.BreakerParams())
	gate := risk.NewRiskGate(cfg.GateParams())

	recon := reconciler.New(client, nil)
	connSup := connsupervisor.New(feed, recon, cfg.ConnSupervisorParams(), logger)

	sup := quoting.New(replica, fv, adverse, vol, inv, strat, drawdown, breaker, gate,
		recon, feed, clock.Real{}, cfg.QuotingParams(), logger)
	if audit != nil {
		sup.SetAuditRecorder(audit)
	}
	for _, t := range tickers {
		sup.RegisterMarket(types.MarketInfo{Ticker: t})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Steps 2-4: cancel orphan orders, sync positions, fetch metadata.
	if err := sup.StartupReconciliation(ctx, client, tickers); err != nil {
		logger.Error("startup reconciliation failed", "error", err)
		os.Exit(1)
	}

	// Step 5: connect feed, subscribe channels.
	go func() {
		if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("feed run error", "error", err)
		}
	}()
	// Subscribe records the tickers before writing; if the feed has not
	// dialed yet the write fails, and the feed resubscribes them on connect.
	if err := feed.Subscribe(tickers); err != nil {
		logger.Warn("initial subscribe not sent; tickers are subscribed on connect", "error", err)
	}

	go drainFeedErrors(ctx, feed, connSup)
	go watchFeedConnection(ctx, feed, connSup, client, sup, logger)
	go connSup.Run(ctx)

	// Step 6: enter main loop.
	go sup.Run(ctx)

	logger.Info("cents-quoter started", "tickers", cfg.Tickers, "dry_run", cfg.DryRun)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	for _, t := range tickers {
		if _, err := recon.CancelAll(shutdownCtx, t); err != nil {
			logger.Error("cancel-all on shutdown failed", "ticker", t, "error", err)
		}
	}

	if err := posStore.SaveAll(inv.AllPositions()); err != nil {
		logger.Error("failed to save positions on shutdown", "error", err)
	}

	feed.Close()
	logger.Info("shutdown complete")
}

func buildStrategy(cfg *config.Config, vol *fairvalue.VolatilityDetector) strategy.Strategy {
	switch cfg.Strategy.Kind {
	case "optimism_tax":
		return strategy.NewOptimismTaxStrategy(cfg.Strategy.OptimismTax, volatilityAtNow{vol})
	default:
		return strategy.NewAdaptiveStrategy(cfg.Strategy.Adaptive)
	}
}

// volatilityAtNow adapts fairvalue.VolatilityDetector to the strategy
// package's IsVolatile(ticker) check by evaluating it at the current time.
type volatilityAtNow struct{ d *fairvalue.VolatilityDetector }

func (v volatilityAtNow) IsVolatile(t types.Ticker) bool { return v.d.IsVolatile(t, time.Now()) }

// drainFeedErrors forwards in-band protocol error frames to the connection
// supervisor so it can react even before the next periodic health check.
func drainFeedErrors(ctx context.Context, feed *exchange.Feed, connSup *connsupervisor.Supervisor) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-feed.ErrorEvents():
			connSup.OnDisconnect(ctx, time.Now())
		}
	}
}

// watchFeedConnection reports real dial/read failures and successful
// (re)connects to the connection supervisor. Unlike drainFeedErrors (which
// only sees in-band "error" frames the exchange chooses to send), these
// events fire straight from Feed.Run's own reconnect loop, so a dropped
// socket cancels resting orders immediately rather than waiting for the
// next staleness poll. On a reconnect (not the first connect), it also
// re-syncs positions in case fills were missed while disconnected.
func watchFeedConnection(
	ctx context.Context,
	feed *exchange.Feed,
	connSup *connsupervisor.Supervisor,
	client *exchange.Client,
	sup *quoting.Supervisor,
	logger *slog.Logger,
) {
	firstConnect := true
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-feed.DisconnectEvents():
			connSup.OnDisconnect(ctx, now)
		case <-feed.ConnectEvents():
			connSup.OnConnect()
			if firstConnect {
				firstConnect = false
				continue
			}
			if err := sup.ResyncPositions(ctx, client); err != nil {
				logger.Error("position resync after reconnect failed", "error", err)
			}
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
