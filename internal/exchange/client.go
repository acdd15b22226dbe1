// Package exchange implements the REST and streaming clients for a
// Kalshi-shaped cents-denominated exchange API. Grounded on the teacher's
// internal/exchange/client.go (resty client, retry condition, dry-run
// short-circuit, per-category rate limiting) and ws.go (gorilla/websocket
// feed with reconnect/resubscribe), re-keyed to this exchange's REST
// surface and streaming envelope.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"cents-quoter/pkg/types"
)

// ClientConfig configures the REST client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	DryRun  bool // when true, mutating methods return fake success without HTTP calls
}

// Client is the REST client for order management, market discovery, and
// portfolio queries.
type Client struct {
	http   *resty.Client
	signer Signer
	limits *rateLimits
	dryRun bool
	logger *slog.Logger
}

// rateLimits groups per-endpoint-category token-bucket limiters. Grounded
// on the teacher's RateLimiter (Order/Cancel/Book TokenBuckets); rebuilt on
// golang.org/x/time/rate, the ecosystem's limiter, instead of the teacher's
// hand-rolled TokenBucket.
type rateLimits struct {
	order  *rate.Limiter
	cancel *rate.Limiter
	market *rate.Limiter
}

func newRateLimits() *rateLimits {
	return &rateLimits{
		order:  rate.NewLimiter(rate.Limit(50), 350),
		cancel: rate.NewLimiter(rate.Limit(30), 300),
		market: rate.NewLimiter(rate.Limit(15), 150),
	}
}

// NewClient creates a REST client with retry and rate limiting.
func NewClient(cfg ClientConfig, signer Signer, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		signer: signer,
		limits: newRateLimits(),
		dryRun: cfg.DryRun,
		logger: logger.With("component", "exchange_client"),
	}
}

func (c *Client) signedHeaders(method, path, body string) (map[string]string, error) {
	return c.signer.SignREST(method, path, body, time.Now().UnixMilli())
}

// GetMarkets fetches one page of tradeable markets.
func (c *Client) GetMarkets(ctx context.Context, cursor string) (types.MarketPage, error) {
	if err := c.limits.market.Wait(ctx); err != nil {
		return types.MarketPage{}, err
	}

	var page types.MarketPage
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("cursor", cursor).
		SetResult(&page).
		Get("/markets")
	if err != nil {
		return types.MarketPage{}, fmt.Errorf("get markets: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.MarketPage{}, fmt.Errorf("get markets: status %d: %s", resp.StatusCode(), resp.String())
	}
	return page, nil
}

// GetPositions fetches one page of portfolio positions.
func (c *Client) GetPositions(ctx context.Context, cursor string) (types.PositionPage, error) {
	headers, err := c.signedHeaders("GET", "/portfolio/positions", "")
	if err != nil {
		return types.PositionPage{}, fmt.Errorf("sign request: %w", err)
	}

	var page types.PositionPage
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetQueryParam("cursor", cursor).
		SetResult(&page).
		Get("/portfolio/positions")
	if err != nil {
		return types.PositionPage{}, fmt.Errorf("get positions: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.PositionPage{}, fmt.Errorf("get positions: status %d: %s", resp.StatusCode(), resp.String())
	}
	return page, nil
}

// GetBalance fetches the account's cash balance.
func (c *Client) GetBalance(ctx context.Context) (types.Balance, error) {
	headers, err := c.signedHeaders("GET", "/portfolio/balance", "")
	if err != nil {
		return types.Balance{}, fmt.Errorf("sign request: %w", err)
	}

	var balance types.Balance
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&balance).
		Get("/portfolio/balance")
	if err != nil {
		return types.Balance{}, fmt.Errorf("get balance: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.Balance{}, fmt.Errorf("get balance: status %d: %s", resp.StatusCode(), resp.String())
	}
	return balance, nil
}

// CreateOrder places a single order.
func (c *Client) CreateOrder(ctx context.Context, req types.CreateOrderRequest) (types.OrderAck, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would create order", "ticker", req.Ticker, "client_order_id", req.ClientOrderID)
		return types.OrderAck{OrderID: "dry-run-" + req.ClientOrderID, Status: "resting"}, nil
	}
	if err := c.limits.order.Wait(ctx); err != nil {
		return types.OrderAck{}, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return types.OrderAck{}, fmt.Errorf("marshal order: %w", err)
	}
	headers, err := c.signedHeaders("POST", "/orders", string(body))
	if err != nil {
		return types.OrderAck{}, fmt.Errorf("sign request: %w", err)
	}

	var ack types.OrderAck
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(json.RawMessage(body)).
		SetResult(&ack).
		Post("/orders")
	if err != nil {
		return types.OrderAck{}, fmt.Errorf("create order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.OrderAck{}, fmt.Errorf("create order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return ack, nil
}

// BatchCreateOrders places up to 20 orders in one call.
func (c *Client) BatchCreateOrders(ctx context.Context, reqs []types.CreateOrderRequest) (types.BatchCreateResult, error) {
	if len(reqs) == 0 {
		return types.BatchCreateResult{}, nil
	}
	if len(reqs) > 20 {
		return types.BatchCreateResult{}, fmt.Errorf("batch limit is 20 orders, got %d", len(reqs))
	}
	if c.dryRun {
		c.logger.Info("DRY-RUN: would batch create orders", "count", len(reqs))
		acks := make([]types.OrderAck, len(reqs))
		for i, r := range reqs {
			acks[i] = types.OrderAck{OrderID: fmt.Sprintf("dry-run-%s", r.ClientOrderID), Status: "resting"}
		}
		return types.BatchCreateResult{Acks: acks}, nil
	}
	if err := c.limits.order.Wait(ctx); err != nil {
		return types.BatchCreateResult{}, err
	}

	body, err := json.Marshal(struct {
		Orders []types.CreateOrderRequest `json:"orders"`
	}{Orders: reqs})
	if err != nil {
		return types.BatchCreateResult{}, fmt.Errorf("marshal batch orders: %w", err)
	}
	headers, err := c.signedHeaders("POST", "/batch_orders", string(body))
	if err != nil {
		return types.BatchCreateResult{}, fmt.Errorf("sign request: %w", err)
	}

	var result types.BatchCreateResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(json.RawMessage(body)).
		SetResult(&result).
		Post("/batch_orders")
	if err != nil {
		return types.BatchCreateResult{}, fmt.Errorf("batch create orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.BatchCreateResult{}, fmt.Errorf("batch create orders: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result, nil
}

// CancelOrder cancels a single order by exchange order ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel order", "order_id", orderID)
		return nil
	}
	if err := c.limits.cancel.Wait(ctx); err != nil {
		return err
	}

	headers, err := c.signedHeaders("DELETE", "/orders/"+orderID, "")
	if err != nil {
		return fmt.Errorf("sign request: %w", err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		Delete("/orders/" + orderID)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("cancel order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// BatchCancelOrders cancels multiple orders by exchange order ID in one call.
func (c *Client) BatchCancelOrders(ctx context.Context, orderIDs []string) (types.BatchCancelResult, error) {
	if len(orderIDs) == 0 {
		return types.BatchCancelResult{}, nil
	}
	if c.dryRun {
		c.logger.Info("DRY-RUN: would batch cancel orders", "count", len(orderIDs))
		return types.BatchCancelResult{CancelledIDs: orderIDs}, nil
	}
	if err := c.limits.cancel.Wait(ctx); err != nil {
		return types.BatchCancelResult{}, err
	}

	body, err := json.Marshal(struct {
		OrderIDs []string `json:"order_ids"`
	}{OrderIDs: orderIDs})
	if err != nil {
		return types.BatchCancelResult{}, fmt.Errorf("marshal batch cancel: %w", err)
	}
	headers, err := c.signedHeaders("DELETE", "/batch_orders", string(body))
	if err != nil {
		return types.BatchCancelResult{}, fmt.Errorf("sign request: %w", err)
	}

	var result types.BatchCancelResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(json.RawMessage(body)).
		SetResult(&result).
		Delete("/batch_orders")
	if err != nil {
		return types.BatchCancelResult{}, fmt.Errorf("batch cancel orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.BatchCancelResult{}, fmt.Errorf("batch cancel orders: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result, nil
}

// CancelAllOrders cancels every resting order on the account.
func (c *Client) CancelAllOrders(ctx context.Context) (types.BatchCancelResult, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel all orders")
		return types.BatchCancelResult{}, nil
	}
	if err := c.limits.cancel.Wait(ctx); err != nil {
		return types.BatchCancelResult{}, err
	}

	headers, err := c.signedHeaders("DELETE", "/orders", "")
	if err != nil {
		return types.BatchCancelResult{}, fmt.Errorf("sign request: %w", err)
	}

	var result types.BatchCancelResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Delete("/orders")
	if err != nil {
		return types.BatchCancelResult{}, fmt.Errorf("cancel all orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.BatchCancelResult{}, fmt.Errorf("cancel all orders: status %d: %s", resp.StatusCode(), resp.String())
	}
	c.logger.Warn("all orders cancelled", "count", len(result.CancelledIDs))
	return result, nil
}
