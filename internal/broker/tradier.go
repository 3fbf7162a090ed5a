// Package broker provides trading API clients for executing options trades.
// It includes the Tradier API client implementation for put credit spreads.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError represents an API error with status code and response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// TradierClient implements Broker against the Tradier REST API.
type TradierClient struct {
	client    *http.Client
	apiKey    string
	baseURL   string
	accountID string
	sandbox   bool
}

// Ensure TradierClient implements Broker at compile time.
var _ Broker = (*TradierClient)(nil)

// NewTradierClient creates a new Tradier broker client.
func NewTradierClient(apiKey, accountID string, sandbox bool) *TradierClient {
	baseURL := "https://api.tradier.com/v1"
	if sandbox {
		baseURL = "https://sandbox.tradier.com/v1"
	}
	return &TradierClient{
		apiKey:    apiKey,
		accountID: accountID,
		baseURL:   baseURL,
		sandbox:   sandbox,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (t *TradierClient) WithHTTPClient(c *http.Client) *TradierClient {
	if c != nil {
		t.client = c
	}
	return t
}

// WithBaseURL allows overriding the API base URL (tests).
func (t *TradierClient) WithBaseURL(u string) *TradierClient {
	if u != "" {
		t.baseURL = strings.TrimRight(u, "/")
	}
	return t
}

// ============ API Response Structures ============

// Handle single-object vs array responses from Tradier
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

type quotesResponse struct {
	Quotes struct {
		Quote singleOrArray[quoteItem] `json:"quote"`
	} `json:"quotes"`
}

type quoteItem struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
	Greeks *struct {
		Delta float64 `json:"delta"`
	} `json:"greeks,omitempty"`
}

type expirationsResponse struct {
	Expirations struct {
		Expiration singleOrArray[expirationItem] `json:"expiration"`
	} `json:"expirations"`
}

type expirationItem struct {
	Date    string `json:"date"`
	Strikes struct {
		Strike []float64 `json:"strike"`
	} `json:"strikes"`
}

// ============ API Methods ============

// GetUnderlyingQuote retrieves the current market quote for a symbol.
func (t *TradierClient) GetUnderlyingQuote(symbol string) (*Quote, error) {
	params := url.Values{}
	params.Set("symbols", symbol)
	params.Set("greeks", "false")
	endpoint := t.baseURL + "/markets/quotes?" + params.Encode()

	var response quotesResponse
	if err := t.makeRequest(context.Background(), "GET", endpoint, nil, &response); err != nil {
		return nil, err
	}

	quotes := response.Quotes.Quote
	if len(quotes) == 0 {
		return nil, fmt.Errorf("no quote found for symbol: %s", symbol)
	}

	q := quotes[0]
	return &Quote{Symbol: q.Symbol, Bid: q.Bid, Ask: q.Ask, Last: q.Last}, nil
}

// GetOptionChain retrieves the listed expirations and their strikes for a symbol.
func (t *TradierClient) GetOptionChain(symbol string) (*Chain, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("includeAllRoots", "true")
	params.Set("strikes", "true")
	endpoint := t.baseURL + "/markets/options/expirations?" + params.Encode()

	var response expirationsResponse
	if err := t.makeRequest(context.Background(), "GET", endpoint, nil, &response); err != nil {
		return nil, err
	}

	chain := &Chain{
		Symbol:  symbol,
		Strikes: make(map[string][]float64, len(response.Expirations.Expiration)),
	}
	for _, exp := range response.Expirations.Expiration {
		if exp.Date == "" {
			continue
		}
		chain.Expirations = append(chain.Expirations, exp.Date)
		chain.Strikes[exp.Date] = exp.Strikes.Strike
	}
	return chain, nil
}

// GetOptionQuote retrieves a single contract quote with Greeks.
func (t *TradierClient) GetOptionQuote(symbol, expiration string, strike float64, right Right) (*OptionQuote, error) {
	occ, err := occSymbol(symbol, expiration, strike, right)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbols", occ)
	params.Set("greeks", "true")
	endpoint := t.baseURL + "/markets/quotes?" + params.Encode()

	var response quotesResponse
	if err := t.makeRequest(context.Background(), "GET", endpoint, nil, &response); err != nil {
		return nil, err
	}

	quotes := response.Quotes.Quote
	if len(quotes) == 0 {
		return nil, fmt.Errorf("no quote found for option: %s", occ)
	}

	q := quotes[0]
	oq := &OptionQuote{Symbol: q.Symbol, Bid: q.Bid, Ask: q.Ask}
	if q.Greeks != nil {
		oq.Delta = q.Greeks.Delta
		oq.HasGreeks = true
	}
	return oq, nil
}

// PlaceSpreadOrder submits a two-leg vertical put order as a Tradier
// multileg credit or debit order.
func (t *TradierClient) PlaceSpreadOrder(order SpreadOrder) (*OrderResponse, error) {
	if order.LimitPrice <= 0 {
		return nil, fmt.Errorf("invalid limit price: %.2f (must be > 0)", order.LimitPrice)
	}
	if order.Quantity <= 0 {
		return nil, fmt.Errorf("invalid quantity: %d (must be > 0)", order.Quantity)
	}
	if order.LongStrike >= order.ShortStrike {
		return nil, fmt.Errorf(
			"invalid strikes for put spread: long strike (%.2f) must be below short strike (%.2f)",
			order.LongStrike, order.ShortStrike,
		)
	}

	shortSymbol, err := occSymbol(order.Symbol, order.Expiration, order.ShortStrike, RightPut)
	if err != nil {
		return nil, err
	}
	longSymbol, err := occSymbol(order.Symbol, order.Expiration, order.LongStrike, RightPut)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Add("class", "multileg")
	params.Add("symbol", order.Symbol)
	params.Add("duration", "day")

	var orderType, shortSide, longSide string
	if order.Close {
		orderType = "debit"
		shortSide = "buy_to_close"
		longSide = "sell_to_close"
	} else {
		orderType = "credit"
		shortSide = "sell_to_open"
		longSide = "buy_to_open"
	}
	params.Add("type", orderType)
	params.Add("price", fmt.Sprintf("%.2f", order.LimitPrice))
	if order.Tag != "" {
		params.Add("tag", order.Tag)
	}

	// Leg 0: short put
	params.Add("option_symbol[0]", shortSymbol)
	params.Add("side[0]", shortSide)
	params.Add("quantity[0]", fmt.Sprintf("%d", order.Quantity))

	// Leg 1: long put
	params.Add("option_symbol[1]", longSymbol)
	params.Add("side[1]", longSide)
	params.Add("quantity[1]", fmt.Sprintf("%d", order.Quantity))

	endpoint := fmt.Sprintf("%s/accounts/%s/orders", t.baseURL, t.accountID)

	var response OrderResponse
	if err := t.makeRequest(context.Background(), "POST", endpoint, params, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// occSymbol builds the OCC option symbol: SYMBOL + YYMMDD + P/C + 8-digit strike.
// Strikes encode as thousandths of a dollar; the eps handles floating
// point precision issues (e.g. 394.995 * 1000).
func occSymbol(symbol, expiration string, strike float64, right Right) (string, error) {
	expDate, err := time.Parse("2006-01-02", expiration)
	if err != nil {
		return "", fmt.Errorf("invalid expiration format: %w", err)
	}
	const eps = 1e-9
	strikeInt := int(math.Round(strike*1000 + eps))
	return fmt.Sprintf("%s%s%s%08d", symbol, expDate.Format("060102"), right, strikeInt), nil
}

// makeRequest makes an HTTP request with context support for timeout/cancellation.
func (t *TradierClient) makeRequest(ctx context.Context, method, endpoint string,
	params url.Values, response interface{}) error {
	var req *http.Request
	var err error

	if method == "POST" && params != nil {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(params.Encode()))
		if err != nil {
			return err
		}
		req.Header.Add("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, http.NoBody)
		if err != nil {
			return err
		}
	}

	req.Header.Add("Authorization", "Bearer "+t.apiKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "schrute-spreads/1.0 (+tradier)")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated &&
		resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusNoContent {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap to avoid huge payloads
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> failed to read error body", method, endpoint)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> %s", method, endpoint, string(body))}
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(response); err != nil && err != io.EOF {
		return err
	}
	return nil
}
