package alpaca

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/wolfbot/internal/domain"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("APCA-API-KEY-ID") != "key" || r.Header.Get("APCA-API-SECRET-KEY") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":40110000,"message":"request is not authorized"}`))
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	return NewClient(Options{
		KeyID:   "key",
		Secret:  "secret",
		BaseURL: srv.URL,
		DataURL: srv.URL,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestSubmitOrder(t *testing.T) {
	mux := http.NewServeMux()
	var got map[string]any
	mux.HandleFunc("POST /v2/orders", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"ord-1","client_order_id":"cid-1","symbol":"BTC/USD","side":"buy","status":"accepted","submitted_at":"2026-03-02T15:00:00Z","filled_qty":"0","filled_avg_price":null}`))
	})
	c := newTestClient(t, mux)

	ack, err := c.SubmitOrder(context.Background(), domain.OrderRequest{
		ClientOrderID: "cid-1",
		Symbol:        domain.ParseSymbol("BTCUSD"),
		Side:          domain.OrderSideBuy,
		Amount:        domain.Quantity(decimal.RequireFromString("0.5")),
		TimeInForce:   domain.TimeInForceGTC,
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", ack.ID)
	assert.Equal(t, domain.ParseSymbol("BTC/USD"), ack.Symbol)
	assert.Equal(t, domain.OrderStatusAccepted, ack.Status)

	assert.Equal(t, "BTC/USD", got["symbol"])
	assert.Equal(t, "0.5", got["qty"])
	assert.Equal(t, "gtc", got["time_in_force"])
	assert.Equal(t, "market", got["type"])
	assert.NotContains(t, got, "notional")
}

func TestSubmitOrderMapsStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/orders", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":42210000,"message":"insufficient qty available"}`))
	})
	c := newTestClient(t, mux)

	_, err := c.SubmitOrder(context.Background(), domain.OrderRequest{
		Symbol: domain.ParseSymbol("AAPL"),
		Side:   domain.OrderSideSell,
		Amount: domain.Quantity(decimal.NewFromInt(3)),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
	assert.Contains(t, err.Error(), "insufficient qty available")
}

func TestCheckStatus(t *testing.T) {
	assert.NoError(t, checkStatus(207, nil))
	assert.ErrorIs(t, checkStatus(401, nil), domain.ErrUnauthorized)
	assert.ErrorIs(t, checkStatus(403, []byte(`{"message":"forbidden"}`)), domain.ErrUnauthorized)
	assert.ErrorIs(t, checkStatus(404, nil), domain.ErrNotFound)
	assert.ErrorIs(t, checkStatus(429, nil), domain.ErrRateLimited)
	err := checkStatus(500, []byte("boom"))
	require.Error(t, err)
	assert.Equal(t, "HTTP 500: boom", err.Error())
}

func TestCancelAllOpenOrders(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /v2/orders", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMultiStatus)
		_, _ = w.Write([]byte(`[{"id":"a","status":200},{"id":"b","status":500}]`))
	})
	c := newTestClient(t, mux)

	out, err := c.CancelAllOpenOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.CancelledOrder{{ID: "a", Status: 200}, {ID: "b", Status: 500}}, out)
}

func TestGetClock(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/clock", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"timestamp":"2026-03-02T10:00:00-05:00","is_open":true,"next_open":"2026-03-03T09:30:00-05:00","next_close":"2026-03-02T16:00:00-05:00"}`))
	})
	c := newTestClient(t, mux)

	clk, err := c.GetClock(context.Background())
	require.NoError(t, err)
	assert.True(t, clk.IsOpen)
	assert.True(t, clk.NextClose.Equal(time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)))
	assert.True(t, clk.NextOpen.Equal(time.Date(2026, 3, 3, 14, 30, 0, 0, time.UTC)))
}

func TestListActiveAssetsFiltersOTCAndUntradable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/assets", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "active", r.URL.Query().Get("status"))
		_, _ = w.Write([]byte(`[
			{"symbol":"AAPL","exchange":"NASDAQ","tradable":true},
			{"symbol":"PINK","exchange":"OTC","tradable":true},
			{"symbol":"HALT","exchange":"NYSE","tradable":false},
			{"symbol":"BTC/USD","exchange":"CRYPTO","tradable":true}
		]`))
	})
	c := newTestClient(t, mux)

	syms, err := c.ListActiveAssets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Symbol{domain.ParseSymbol("AAPL"), domain.ParseSymbol("BTCUSD")}, syms)
}

func TestListPositionsAndEquity(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/positions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"symbol":"AAPL","qty":"10","avg_entry_price":"150.25","current_price":"171.10"},{"symbol":"ETHUSD","qty":"0.5","avg_entry_price":"3000","current_price":null}]`))
	})
	mux.HandleFunc("GET /v2/account", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"equity":"10250.5","last_equity":"10000"}`))
	})
	c := newTestClient(t, mux)

	pos, err := c.ListPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, pos, 2)
	assert.True(t, pos[0].CurrentPrice.Equal(decimal.RequireFromString("171.10")))
	assert.True(t, pos[1].Symbol.IsCrypto())
	assert.True(t, pos[1].CurrentPrice.IsZero())

	eq, err := c.GetAccountEquity(context.Background())
	require.NoError(t, err)
	assert.True(t, eq.Delta().Equal(decimal.RequireFromString("250.5")))
}

func TestGetLatestPricesSplitsStocksAndCrypto(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/stocks/trades/latest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL,MSFT", r.URL.Query().Get("symbols"))
		_, _ = w.Write([]byte(`{"trades":{"AAPL":{"t":"2026-03-02T15:00:00Z","p":171.5,"s":100},"MSFT":{"t":"2026-03-02T15:00:00Z","p":402.01,"s":5}}}`))
	})
	mux.HandleFunc("GET /v1beta3/crypto/us/latest/trades", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTC/USD", r.URL.Query().Get("symbols"))
		_, _ = w.Write([]byte(`{"trades":{"BTC/USD":{"t":"2026-03-02T15:00:00Z","p":61234.5,"s":0.01}}}`))
	})
	c := newTestClient(t, mux)

	prices, err := c.GetLatestPrices(context.Background(), domain.ParseSymbols([]string{"AAPL", "MSFT", "BTC/USD"}))
	require.NoError(t, err)
	require.Len(t, prices, 3)
	assert.True(t, prices[domain.ParseSymbol("MSFT")].Equal(decimal.RequireFromString("402.01")))
	assert.True(t, prices[domain.ParseSymbol("BTCUSD")].Equal(decimal.RequireFromString("61234.5")))
}

func TestGetRecentBarsWindow(t *testing.T) {
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/stocks/AAPL/bars", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "1Day", q.Get("timeframe"))
		assert.Equal(t, "iex", q.Get("feed"))
		assert.Equal(t, "2026-03-02T14:59:00Z", q.Get("end"))
		assert.Equal(t, "2026-02-16T14:59:00Z", q.Get("start"))
		_, _ = w.Write([]byte(`{"symbol":"AAPL","next_page_token":"abc","bars":[
			{"t":"2026-02-27T05:00:00Z","o":170,"h":172,"l":169,"c":171,"v":1000},
			{"t":"2026-03-02T05:00:00Z","o":171,"h":173,"l":170,"c":172.5,"v":1200}
		]}`))
	})
	mux.HandleFunc("GET /v1beta3/crypto/us/bars", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "ETH/USD", q.Get("symbols"))
		assert.Equal(t, "1Hour", q.Get("timeframe"))
		_, _ = w.Write([]byte(`{"bars":{"ETH/USD":[{"t":"2026-03-02T14:00:00Z","o":3000,"h":3010,"l":2990,"c":3005,"v":12.5}]},"next_page_token":null}`))
	})
	c := newTestClient(t, mux)
	c.now = func() time.Time { return now }

	bars, err := c.GetRecentBars(context.Background(), domain.ParseSymbol("AAPL"), domain.Days(14), domain.FeedIEX)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, []float64{171, 172.5}, domain.Closes(bars))

	bars, err = c.GetRecentBars(context.Background(), domain.ParseSymbol("ETH"), domain.Hours(6), domain.FeedIEX)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.True(t, bars[0].Close.Equal(decimal.NewFromInt(3005)))
}

func TestUnauthorized(t *testing.T) {
	c := newTestClient(t, http.NewServeMux())
	c.keyID = "wrong"

	_, err := c.GetClock(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestStreamURLFor(t *testing.T) {
	assert.Equal(t, "wss://paper-api.alpaca.markets/stream", streamURLFor(PaperURL))
	assert.Equal(t, "ws://127.0.0.1:8080/stream", streamURLFor("http://127.0.0.1:8080/"))
}

type countingLimiter struct {
	keys []string
	err  error
}

func (l *countingLimiter) Wait(_ context.Context, key string) error {
	l.keys = append(l.keys, key)
	return l.err
}

func TestRequestsPassThroughLimiter(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/account", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"equity":"1","last_equity":"1"}`))
	})
	c := newTestClient(t, mux)
	lim := &countingLimiter{}
	c.limiter = lim

	_, err := c.GetAccountEquity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{rateLimitKey}, lim.keys)

	lim.err = context.DeadlineExceeded
	_, err = c.GetAccountEquity(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
