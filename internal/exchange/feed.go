package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cents-quoter/pkg/types"
)

const (
	pingInterval     = 10 * time.Second
	readTimeout      = 30 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
	snapshotBuffer   = 256
	deltaBuffer      = 1024
	fillBuffer       = 64
)

// Feed manages one WebSocket connection carrying the orderbook,
// ticker-summary, and authenticated fill channels. Grounded on the
// teacher's WSFeed (connection lifecycle, subscription tracking, typed
// event channels, auto-reconnect with exponential backoff, ping loop,
// event_type dispatch switch) — same shape, re-keyed to this exchange's
// envelope and channel set.
type Feed struct {
	url    string
	signer Signer

	connMu sync.Mutex
	conn   *websocket.Conn

	subscribedMu sync.RWMutex
	subscribed   map[types.Ticker]bool

	snapshotCh chan types.WSOrderbookSnapshot
	deltaCh    chan types.WSOrderbookDelta
	tickerCh   chan types.WSTicker
	fillCh     chan types.WSFill
	errCh      chan types.WSError

	connectCh    chan struct{}
	disconnectCh chan time.Time

	lastDataTs time.Time
	lastDataMu sync.Mutex
	nextCmdID  int64

	logger *slog.Logger
}

// NewFeed creates a streaming feed client for wsURL. signer is stored on
// the Feed; no command this Feed sends embeds its WSAuthPayload.
func NewFeed(wsURL string, signer Signer, logger *slog.Logger) *Feed {
	return &Feed{
		url:          wsURL,
		signer:       signer,
		subscribed:   make(map[types.Ticker]bool),
		snapshotCh:   make(chan types.WSOrderbookSnapshot, snapshotBuffer),
		deltaCh:      make(chan types.WSOrderbookDelta, deltaBuffer),
		tickerCh:     make(chan types.WSTicker, snapshotBuffer),
		fillCh:       make(chan types.WSFill, fillBuffer),
		errCh:        make(chan types.WSError, 16),
		connectCh:    make(chan struct{}, 1),
		disconnectCh: make(chan time.Time, 1),
		logger:       logger.With("component", "exchange_feed"),
	}
}

func (f *Feed) SnapshotEvents() <-chan types.WSOrderbookSnapshot { return f.snapshotCh }
func (f *Feed) DeltaEvents() <-chan types.WSOrderbookDelta       { return f.deltaCh }
func (f *Feed) TickerEvents() <-chan types.WSTicker              { return f.tickerCh }
func (f *Feed) FillEvents() <-chan types.WSFill                  { return f.fillCh }
func (f *Feed) ErrorEvents() <-chan types.WSError                { return f.errCh }

// ConnectEvents fires once per successful (re)connect, after resubscribing.
// cmd/quoter's watchFeedConnection uses this to tell the connection
// supervisor about the connect and, on a reconnect, to re-sync positions,
// since fills can be missed while disconnected.
func (f *Feed) ConnectEvents() <-chan struct{} { return f.connectCh }

// DisconnectEvents fires whenever connectAndRead returns an error, before
// the reconnect backoff sleep — this is the only path that reports a real
// dial/read failure; ErrorEvents only carries in-band protocol error frames.
func (f *Feed) DisconnectEvents() <-chan time.Time { return f.disconnectCh }

// LastDataTs reports when the feed last received any message, for the
// connection supervisor's staleness check.
func (f *Feed) LastDataTs() time.Time {
	f.lastDataMu.Lock()
	defer f.lastDataMu.Unlock()
	return f.lastDataTs
}

// Run connects and maintains the connection with auto-reconnect. Blocks
// until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("feed disconnected, reconnecting", "error", err, "backoff", backoff)
		f.sendDisconnect(time.Now())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// ForceReconnect drops the current connection; Run's loop will reconnect.
func (f *Feed) ForceReconnect() {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		f.conn.Close()
	}
}

// Subscribe adds tickers to the orderbook/ticker/fill channels.
func (f *Feed) Subscribe(tickers []types.Ticker) error {
	f.subscribedMu.Lock()
	for _, t := range tickers {
		f.subscribed[t] = true
	}
	f.subscribedMu.Unlock()

	return f.writeJSON(types.SubscribeCommand{
		ID:            f.nextID(),
		Channels:      []string{"orderbook", "ticker", "fill"},
		MarketTickers: tickers,
	})
}

// Unsubscribe removes tickers from subscription.
func (f *Feed) Unsubscribe(tickers []types.Ticker) error {
	f.subscribedMu.Lock()
	for _, t := range tickers {
		delete(f.subscribed, t)
	}
	f.subscribedMu.Unlock()

	return f.writeJSON(types.SubscribeCommand{
		ID:            f.nextID(),
		Channels:      []string{"orderbook", "ticker", "fill"},
		MarketTickers: tickers,
		Action:        "remove_markets",
	})
}

// UpdateSubscription adds or removes tickers from an already-subscribed
// channel set without a full resubscribe.
func (f *Feed) UpdateSubscription(tickers []types.Ticker, action string) error {
	return f.writeJSON(types.SubscribeCommand{
		ID:            f.nextID(),
		MarketTickers: tickers,
		Action:        action,
	})
}

func (f *Feed) nextID() int64 {
	f.nextCmdID++
	return f.nextCmdID
}

// Close closes the underlying connection.
func (f *Feed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *Feed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := f.resubscribe(); err != nil {
		return fmt.Errorf("resubscribe: %w", err)
	}

	f.logger.Info("feed connected")
	f.sendConnect()

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		f.lastDataMu.Lock()
		f.lastDataTs = time.Now()
		f.lastDataMu.Unlock()

		f.dispatchMessage(msg)
	}
}

func (f *Feed) resubscribe() error {
	f.subscribedMu.RLock()
	tickers := make([]types.Ticker, 0, len(f.subscribed))
	for t := range f.subscribed {
		tickers = append(tickers, t)
	}
	f.subscribedMu.RUnlock()

	if len(tickers) == 0 {
		return nil
	}
	return f.writeJSON(types.SubscribeCommand{
		ID:            f.nextID(),
		Channels:      []string{"orderbook", "ticker", "fill"},
		MarketTickers: tickers,
	})
}

func (f *Feed) dispatchMessage(data []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		f.logger.Debug("ignoring non-json feed message", "data", string(data))
		return
	}

	switch envelope.Type {
	case "orderbook_snapshot":
		var evt types.WSOrderbookSnapshot
		if err := json.Unmarshal(data, &evt); err != nil {
			f.logger.Error("unmarshal orderbook_snapshot", "error", err)
			return
		}
		f.sendSnapshot(evt)

	case "orderbook_delta":
		var evt types.WSOrderbookDelta
		if err := json.Unmarshal(data, &evt); err != nil {
			f.logger.Error("unmarshal orderbook_delta", "error", err)
			return
		}
		f.sendDelta(evt)

	case "ticker":
		var evt types.WSTicker
		if err := json.Unmarshal(data, &evt); err != nil {
			f.logger.Error("unmarshal ticker", "error", err)
			return
		}
		select {
		case f.tickerCh <- evt:
		default:
			f.logger.Warn("ticker channel full, dropping event", "ticker", evt.MarketTicker)
		}

	case "fill":
		var evt types.WSFill
		if err := json.Unmarshal(data, &evt); err != nil {
			f.logger.Error("unmarshal fill", "error", err)
			return
		}
		select {
		case f.fillCh <- evt:
		default:
			f.logger.Warn("fill channel full, dropping event", "order_id", evt.OrderID)
		}

	case "error":
		var evt types.WSError
		if err := json.Unmarshal(data, &evt); err != nil {
			f.logger.Error("unmarshal error frame", "error", err)
			return
		}
		select {
		case f.errCh <- evt:
		default:
		}

	case "heartbeat":
		// keepalive only

	default:
		f.logger.Debug("unknown feed event type", "type", envelope.Type)
	}
}

func (f *Feed) sendConnect() {
	select {
	case f.connectCh <- struct{}{}:
	default:
	}
}

func (f *Feed) sendDisconnect(now time.Time) {
	select {
	case f.disconnectCh <- now:
	default:
	}
}

func (f *Feed) sendSnapshot(evt types.WSOrderbookSnapshot) {
	select {
	case f.snapshotCh <- evt:
	default:
		f.logger.Warn("snapshot channel full, dropping event", "ticker", evt.MarketTicker)
	}
}

func (f *Feed) sendDelta(evt types.WSOrderbookDelta) {
	select {
	case f.deltaCh <- evt:
	default:
		f.logger.Warn("delta channel full, dropping event", "ticker", evt.MarketTicker)
	}
}

func (f *Feed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeMessage(websocket.PingMessage, nil); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *Feed) writeJSON(v interface{}) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("feed not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}

func (f *Feed) writeMessage(msgType int, data []byte) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("feed not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteMessage(msgType, data)
}
