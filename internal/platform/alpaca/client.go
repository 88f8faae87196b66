// Package alpaca implements domain.Backend against the Alpaca trading and
// market data APIs.
package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/wolfbot/internal/domain"
)

// API roots.
const (
	PaperURL  = "https://paper-api.alpaca.markets"
	LiveURL   = "https://api.alpaca.markets"
	DataURL   = "https://data.alpaca.markets"
	barsLimit = 10000

	// rateLimitKey is shared by every REST call on the account.
	rateLimitKey = "alpaca:rest"
)

// Options configures a Client.
type Options struct {
	KeyID     string
	Secret    string
	BaseURL   string // trading API root; PaperURL when empty
	DataURL   string // market data API root; DataURL when empty
	StreamURL string // trade updates websocket; derived from BaseURL when empty
	Limiter   domain.RateLimiter
	Logger    *slog.Logger
}

// Client is the REST and streaming client for one Alpaca account.
type Client struct {
	baseURL    string
	dataURL    string
	streamURL  string
	keyID      string
	secret     string
	httpClient *http.Client
	limiter    domain.RateLimiter
	logger     *slog.Logger
	now        func() time.Time
}

var _ domain.Backend = (*Client)(nil)

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = PaperURL
	}
	if opts.DataURL == "" {
		opts.DataURL = DataURL
	}
	if opts.StreamURL == "" {
		opts.StreamURL = streamURLFor(opts.BaseURL)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		dataURL:   strings.TrimRight(opts.DataURL, "/"),
		streamURL: opts.StreamURL,
		keyID:     opts.KeyID,
		secret:    opts.Secret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: opts.Limiter,
		logger:  opts.Logger.With(slog.String("component", "alpaca")),
		now:     time.Now,
	}
}

func streamURLFor(base string) string {
	u := strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/stream"
}

// SubmitOrder places a market order.
func (c *Client) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderAck, error) {
	body := orderRequest{
		Symbol:        req.Symbol.PairTicker(),
		Side:          string(req.Side),
		Type:          "market",
		TimeInForce:   string(req.TimeInForce),
		ClientOrderID: req.ClientOrderID,
	}
	if req.TimeInForce == "" {
		body.TimeInForce = string(domain.TimeInForceFor(req.Symbol))
	}
	if req.Amount.IsNotional() {
		n := req.Amount.Notional
		body.Notional = &n
	} else {
		q := req.Amount.Quantity
		body.Qty = &q
	}

	raw, err := c.do(ctx, http.MethodPost, c.baseURL+"/v2/orders", body)
	if err != nil {
		return domain.OrderAck{}, fmt.Errorf("alpaca: submit order %s: %w", req.Symbol, err)
	}

	var o order
	if err := json.Unmarshal(raw, &o); err != nil {
		return domain.OrderAck{}, fmt.Errorf("alpaca: decode order: %w", err)
	}
	return o.toAck(), nil
}

// CancelAllOpenOrders cancels every open order. The API answers 207 with one
// status per order.
func (c *Client) CancelAllOpenOrders(ctx context.Context) ([]domain.CancelledOrder, error) {
	raw, err := c.do(ctx, http.MethodDelete, c.baseURL+"/v2/orders", nil)
	if err != nil {
		return nil, fmt.Errorf("alpaca: cancel all orders: %w", err)
	}
	var resp []cancelledOrder
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("alpaca: decode cancelled orders: %w", err)
		}
	}

	out := make([]domain.CancelledOrder, len(resp))
	for i, o := range resp {
		out[i] = domain.CancelledOrder{ID: o.ID, Status: o.Status}
	}
	if len(out) > 0 {
		c.logger.DebugContext(ctx, "alpaca: open orders cancelled", slog.Int("cancelled", len(out)))
	}
	return out, nil
}

// GetClock returns the current market clock.
func (c *Client) GetClock(ctx context.Context) (domain.Clock, error) {
	raw, err := c.do(ctx, http.MethodGet, c.baseURL+"/v2/clock", nil)
	if err != nil {
		return domain.Clock{}, fmt.Errorf("alpaca: get clock: %w", err)
	}
	var clk clock
	if err := json.Unmarshal(raw, &clk); err != nil {
		return domain.Clock{}, fmt.Errorf("alpaca: decode clock: %w", err)
	}
	return clk.toDomain(), nil
}

// ListActiveAssets returns every active, tradable asset not listed OTC.
func (c *Client) ListActiveAssets(ctx context.Context) ([]domain.Symbol, error) {
	params := url.Values{}
	params.Set("status", "active")

	raw, err := c.do(ctx, http.MethodGet, c.baseURL+"/v2/assets?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("alpaca: list assets: %w", err)
	}
	var assets []asset
	if err := json.Unmarshal(raw, &assets); err != nil {
		return nil, fmt.Errorf("alpaca: decode assets: %w", err)
	}

	out := make([]domain.Symbol, 0, len(assets))
	for _, a := range assets {
		if !a.Tradable || strings.EqualFold(a.Exchange, "OTC") {
			continue
		}
		out = append(out, domain.ParseSymbol(a.Symbol))
	}
	return out, nil
}

// ListPositions returns the account's open positions.
func (c *Client) ListPositions(ctx context.Context) ([]domain.BrokerPosition, error) {
	raw, err := c.do(ctx, http.MethodGet, c.baseURL+"/v2/positions", nil)
	if err != nil {
		return nil, fmt.Errorf("alpaca: list positions: %w", err)
	}
	var positions []position
	if err := json.Unmarshal(raw, &positions); err != nil {
		return nil, fmt.Errorf("alpaca: decode positions: %w", err)
	}

	out := make([]domain.BrokerPosition, len(positions))
	for i, p := range positions {
		bp := domain.BrokerPosition{
			Symbol:        domain.ParseSymbol(p.Symbol),
			Quantity:      p.Qty,
			AvgEntryPrice: p.AvgEntryPrice,
		}
		if p.CurrentPrice != nil {
			bp.CurrentPrice = *p.CurrentPrice
		}
		out[i] = bp
	}
	return out, nil
}

// GetAccountEquity returns current and previous-close equity.
func (c *Client) GetAccountEquity(ctx context.Context) (domain.Equity, error) {
	raw, err := c.do(ctx, http.MethodGet, c.baseURL+"/v2/account", nil)
	if err != nil {
		return domain.Equity{}, fmt.Errorf("alpaca: get account: %w", err)
	}
	var acct account
	if err := json.Unmarshal(raw, &acct); err != nil {
		return domain.Equity{}, fmt.Errorf("alpaca: decode account: %w", err)
	}
	return domain.Equity{Current: acct.Equity, Last: acct.LastEquity}, nil
}

// GetLatestPrices returns the last trade price of each symbol. Stocks and
// crypto are served by different endpoints; symbols the API has no trade for
// are absent from the result.
func (c *Client) GetLatestPrices(ctx context.Context, symbols []domain.Symbol) (map[domain.Symbol]decimal.Decimal, error) {
	out := make(map[domain.Symbol]decimal.Decimal, len(symbols))

	var stocks, cryptos []domain.Symbol
	for _, s := range symbols {
		if s.IsCrypto() {
			cryptos = append(cryptos, s)
		} else {
			stocks = append(stocks, s)
		}
	}

	if len(stocks) > 0 {
		if err := c.latestTrades(ctx, "/v2/stocks/trades/latest", stocks, out); err != nil {
			return nil, fmt.Errorf("alpaca: latest stock trades: %w", err)
		}
	}
	if len(cryptos) > 0 {
		if err := c.latestTrades(ctx, "/v1beta3/crypto/us/latest/trades", cryptos, out); err != nil {
			return nil, fmt.Errorf("alpaca: latest crypto trades: %w", err)
		}
	}
	return out, nil
}

func (c *Client) latestTrades(ctx context.Context, path string, symbols []domain.Symbol, out map[domain.Symbol]decimal.Decimal) error {
	byTicker := make(map[string]domain.Symbol, len(symbols))
	tickers := make([]string, len(symbols))
	for i, s := range symbols {
		tickers[i] = s.PairTicker()
		byTicker[tickers[i]] = s
	}
	params := url.Values{}
	params.Set("symbols", strings.Join(tickers, ","))

	raw, err := c.do(ctx, http.MethodGet, c.dataURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	var resp latestTrades
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("decode trades: %w", err)
	}
	for ticker, tr := range resp.Trades {
		sym, ok := byTicker[ticker]
		if !ok {
			sym = domain.ParseSymbol(ticker)
		}
		out[sym] = tr.Price
	}
	return nil
}

// GetRecentBars returns bars covering period, ending at the most recent time
// the feed may be queried without a real-time subscription.
func (c *Client) GetRecentBars(ctx context.Context, symbol domain.Symbol, period domain.TimePeriod, feed domain.Feed) ([]domain.Bar, error) {
	end := c.now().UTC().Add(-feed.Delay())
	start := end.Add(-period.Duration())

	params := url.Values{}
	params.Set("timeframe", timeframe(period.Unit))
	params.Set("start", start.Format(time.RFC3339))
	params.Set("end", end.Format(time.RFC3339))
	params.Set("limit", fmt.Sprint(barsLimit))

	var (
		bars []bar
		next *string
	)
	if symbol.IsCrypto() {
		params.Set("symbols", symbol.PairTicker())
		raw, err := c.do(ctx, http.MethodGet, c.dataURL+"/v1beta3/crypto/us/bars?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("alpaca: crypto bars %s: %w", symbol, err)
		}
		var resp cryptoBars
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("alpaca: decode crypto bars: %w", err)
		}
		bars, next = resp.Bars[symbol.PairTicker()], resp.NextPageToken
	} else {
		if feed != "" {
			params.Set("feed", string(feed))
		}
		path := fmt.Sprintf("/v2/stocks/%s/bars", url.PathEscape(symbol.Ticker))
		raw, err := c.do(ctx, http.MethodGet, c.dataURL+path+"?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("alpaca: stock bars %s: %w", symbol, err)
		}
		var resp stockBars
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("alpaca: decode stock bars: %w", err)
		}
		bars, next = resp.Bars, resp.NextPageToken
	}

	if next != nil && *next != "" {
		c.logger.ErrorContext(ctx, "alpaca: more pages than expected",
			slog.String("symbol", symbol.String()),
			slog.Int("bars", len(bars)),
		)
	}
	return toDomainBars(bars), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// do sends an authenticated request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, fullURL string, reqBody any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rateLimitKey); err != nil {
			return nil, err
		}
	}

	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("APCA-API-KEY-ID", c.keyID)
	req.Header.Set("APCA-API-SECRET-KEY", c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkStatus maps non-2xx HTTP status codes to domain errors.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}

	var sentinel error
	switch statusCode {
	case http.StatusNotFound:
		sentinel = domain.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = domain.ErrUnauthorized
	case http.StatusTooManyRequests:
		sentinel = domain.ErrRateLimited
	case http.StatusUnprocessableEntity:
		sentinel = domain.ErrInvalidOrder
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, apiErr.Message)
	}
	return fmt.Errorf("%w: %s", sentinel, apiErr.Message)
}

