package broker

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *TradierClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewTradierClient("test-key", "VA000000", true).
		WithBaseURL(srv.URL).
		WithHTTPClient(srv.Client())
}

func TestOCCSymbol(t *testing.T) {
	tests := []struct {
		name       string
		symbol     string
		expiration string
		strike     float64
		right      Right
		expected   string
	}{
		{"whole dollar put", "SPY", "2024-04-19", 450, RightPut, "SPY240419P00450000"},
		{"half dollar strike", "QQQ", "2024-04-19", 387.5, RightPut, "QQQ240419P00387500"},
		{"call right", "SPY", "2024-12-20", 500, RightCall, "SPY241220C00500000"},
		{"thousandths precision boundary", "IWM", "2024-04-19", 394.995, RightPut, "IWM240419P00394995"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := occSymbol(tt.symbol, tt.expiration, tt.strike, tt.right)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	_, err := occSymbol("SPY", "04/19/2024", 450, RightPut)
	assert.Error(t, err)
}

func TestGetUnderlyingQuote(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets/quotes", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "SPY", r.URL.Query().Get("symbols"))
		_, _ = w.Write([]byte(`{"quotes":{"quote":{"symbol":"SPY","bid":449.95,"ask":450.05,"last":450.00}}}`))
	})

	q, err := client.GetUnderlyingQuote("SPY")
	require.NoError(t, err)
	assert.True(t, q.HasBidAsk())
	assert.InDelta(t, 449.95, q.Price(), 1e-9)
}

func TestGetUnderlyingQuoteEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"quotes":{"quote":null}}`))
	})

	_, err := client.GetUnderlyingQuote("SPY")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no quote found")
}

func TestGetOptionChain(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets/options/expirations", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("strikes"))
		_, _ = w.Write([]byte(`{"expirations":{"expiration":[
			{"date":"2024-04-12","strikes":{"strike":[440,445,450]}},
			{"date":"2024-04-19","strikes":{"strike":[440,442.5,445,450]}}
		]}}`))
	})

	chain, err := client.GetOptionChain("SPY")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-04-12", "2024-04-19"}, chain.Expirations)
	assert.True(t, chain.HasStrike("2024-04-19", 442.5))
	assert.False(t, chain.HasStrike("2024-04-12", 442.5))
	assert.False(t, chain.HasStrike("2024-04-19", 441))
}

func TestGetOptionChainSingleExpiration(t *testing.T) {
	// Tradier collapses single-element arrays into bare objects.
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"expirations":{"expiration":{"date":"2024-04-19","strikes":{"strike":[445,450]}}}}`))
	})

	chain, err := client.GetOptionChain("SPY")
	require.NoError(t, err)
	require.Len(t, chain.Expirations, 1)
	assert.True(t, chain.HasStrike("2024-04-19", 445))
}

func TestGetOptionQuote(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SPY240419P00445000", r.URL.Query().Get("symbols"))
		assert.Equal(t, "true", r.URL.Query().Get("greeks"))
		_, _ = w.Write([]byte(`{"quotes":{"quote":{"symbol":"SPY240419P00445000","bid":1.20,"ask":1.30,"greeks":{"delta":-0.25}}}}`))
	})

	oq, err := client.GetOptionQuote("SPY", "2024-04-19", 445, RightPut)
	require.NoError(t, err)
	assert.True(t, oq.HasGreeks)
	assert.InDelta(t, -0.25, oq.Delta, 1e-9)
	assert.InDelta(t, 0.10, oq.BidAskSpread(), 1e-9)
	assert.InDelta(t, 1.25, oq.Mid(), 1e-9)
}

func TestGetOptionQuoteNoGreeks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"quotes":{"quote":{"symbol":"SPY240419P00445000","bid":1.20,"ask":1.30}}}`))
	})

	oq, err := client.GetOptionQuote("SPY", "2024-04-19", 445, RightPut)
	require.NoError(t, err)
	assert.False(t, oq.HasGreeks)
	assert.Zero(t, oq.Delta)
}

func TestPlaceSpreadOrderParams(t *testing.T) {
	var form map[string][]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/accounts/VA000000/orders", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		_, _ = w.Write([]byte(`{"order":{"id":12345,"status":"ok"}}`))
	})

	resp, err := client.PlaceSpreadOrder(SpreadOrder{
		Symbol:      "SPY",
		Expiration:  "2024-04-19",
		ShortStrike: 450,
		LongStrike:  445,
		Quantity:    2,
		LimitPrice:  1.10,
		Tag:         "abc123",
	})
	require.NoError(t, err)
	assert.Equal(t, 12345, resp.Order.ID)
	assert.Equal(t, "ok", resp.Order.Status)

	assert.Equal(t, "multileg", form["class"][0])
	assert.Equal(t, "credit", form["type"][0])
	assert.Equal(t, "1.10", form["price"][0])
	assert.Equal(t, "day", form["duration"][0])
	assert.Equal(t, "abc123", form["tag"][0])
	assert.Equal(t, "SPY240419P00450000", form["option_symbol[0]"][0])
	assert.Equal(t, "sell_to_open", form["side[0]"][0])
	assert.Equal(t, "2", form["quantity[0]"][0])
	assert.Equal(t, "SPY240419P00445000", form["option_symbol[1]"][0])
	assert.Equal(t, "buy_to_open", form["side[1]"][0])
	assert.Equal(t, "2", form["quantity[1]"][0])
}

func TestPlaceSpreadOrderClose(t *testing.T) {
	var form map[string][]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		_, _ = w.Write([]byte(`{"order":{"id":777,"status":"ok"}}`))
	})

	_, err := client.PlaceSpreadOrder(SpreadOrder{
		Symbol:      "SPY",
		Expiration:  "2024-04-19",
		ShortStrike: 450,
		LongStrike:  445,
		Quantity:    1,
		LimitPrice:  0.55,
		Close:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, "debit", form["type"][0])
	assert.Equal(t, "buy_to_close", form["side[0]"][0])
	assert.Equal(t, "sell_to_close", form["side[1]"][0])
}

func TestPlaceSpreadOrderValidation(t *testing.T) {
	client := NewTradierClient("k", "a", true)

	_, err := client.PlaceSpreadOrder(SpreadOrder{Symbol: "SPY", Expiration: "2024-04-19", ShortStrike: 450, LongStrike: 445, Quantity: 1, LimitPrice: 0})
	assert.ErrorContains(t, err, "limit price")

	_, err = client.PlaceSpreadOrder(SpreadOrder{Symbol: "SPY", Expiration: "2024-04-19", ShortStrike: 450, LongStrike: 445, Quantity: 0, LimitPrice: 1})
	assert.ErrorContains(t, err, "quantity")

	_, err = client.PlaceSpreadOrder(SpreadOrder{Symbol: "SPY", Expiration: "2024-04-19", ShortStrike: 445, LongStrike: 450, Quantity: 1, LimitPrice: 1})
	assert.ErrorContains(t, err, "strikes")
}

func TestAPIErrorSurfaced(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":{"error":"invalid option symbol"}}`))
	})

	_, err := client.GetUnderlyingQuote("SPY")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Body, "invalid option symbol")
}
