package strategy

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/schrute_spreads/internal/broker"
	"github.com/eddiefleurent/schrute_spreads/internal/models"
)

type mockBroker struct {
	price     float64
	quoteErr  error
	chain     *broker.Chain
	chainErr  error
	options   map[string]*broker.OptionQuote // key: expiration|strike
	optionErr map[string]error
}

var _ broker.Broker = (*mockBroker)(nil)

func optKey(expiration string, strike float64) string {
	return fmt.Sprintf("%s|%.3f", expiration, strike)
}

func (m *mockBroker) GetUnderlyingQuote(symbol string) (*broker.Quote, error) {
	if m.quoteErr != nil {
		return nil, m.quoteErr
	}
	return &broker.Quote{Symbol: symbol, Last: m.price}, nil
}

func (m *mockBroker) GetOptionChain(symbol string) (*broker.Chain, error) {
	if m.chainErr != nil {
		return nil, m.chainErr
	}
	return m.chain, nil
}

func (m *mockBroker) GetOptionQuote(symbol, expiration string, strike float64, right broker.Right) (*broker.OptionQuote, error) {
	key := optKey(expiration, strike)
	if err, ok := m.optionErr[key]; ok {
		return nil, err
	}
	if q, ok := m.options[key]; ok {
		return q, nil
	}
	return &broker.OptionQuote{}, nil
}

func (m *mockBroker) PlaceSpreadOrder(order broker.SpreadOrder) (*broker.OrderResponse, error) {
	return nil, errors.New("selector must not place orders")
}

func testConfig() Config {
	return Config{
		DTEMin:        25,
		DTEMax:        45,
		DeltaMin:      0.15,
		DeltaMax:      0.30,
		SpreadWidth:   5,
		LegMaxBidAsk:  0.40,
		RequireGreeks: false,
		OTMTargetPct:  0.05,
	}
}

func testNow() time.Time {
	return time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
}

func newTestGenerator(b broker.Broker, cfg Config) *Generator {
	return NewGenerator(b, cfg, time.UTC, zerolog.Nop()).WithNow(testNow)
}

// exp at 35 DTE from testNow
const exp35 = "2024-04-19"

func putQuote(bid, ask, delta float64) *broker.OptionQuote {
	return &broker.OptionQuote{Bid: bid, Ask: ask, Delta: delta, HasGreeks: delta != 0}
}

func TestFindCandidatesDeltaSelection(t *testing.T) {
	b := &mockBroker{
		price: 450,
		chain: &broker.Chain{
			Expirations: []string{exp35},
			Strikes:     map[string][]float64{exp35: {420, 425, 430, 435}},
		},
		options: map[string]*broker.OptionQuote{
			optKey(exp35, 430): putQuote(1.50, 1.60, -0.25),
			optKey(exp35, 425): putQuote(0.60, 0.70, -0.15),
		},
	}

	got := newTestGenerator(b, testConfig()).FindCandidates("SPY")
	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, 430.0, c.ShortStrike)
	assert.Equal(t, 425.0, c.LongStrike)
	assert.Equal(t, 35, c.DTE)
	assert.InDelta(t, 1.50-0.70, c.Credit, 1e-9)
	assert.InDelta(t, 5-(1.50-0.70), c.MaxLoss, 1e-9)
	assert.Equal(t, models.SelectionDelta, c.Method)
}

func TestFindCandidatesRejectsNonPositiveCredit(t *testing.T) {
	b := &mockBroker{
		price: 450,
		chain: &broker.Chain{
			Expirations: []string{exp35},
			Strikes:     map[string][]float64{exp35: {425, 430}},
		},
		options: map[string]*broker.OptionQuote{
			// Short bid below long ask: credit would be negative.
			optKey(exp35, 430): putQuote(0.50, 0.60, -0.25),
			optKey(exp35, 425): putQuote(0.55, 0.65, -0.20),
		},
	}

	assert.Empty(t, newTestGenerator(b, testConfig()).FindCandidates("SPY"))
}

func TestFindCandidatesRequiresExactLongListing(t *testing.T) {
	b := &mockBroker{
		price: 450,
		chain: &broker.Chain{
			Expirations: []string{exp35},
			// 425 missing: the 430/425 spread cannot be built.
			Strikes: map[string][]float64{exp35: {422.5, 430}},
		},
		options: map[string]*broker.OptionQuote{
			optKey(exp35, 430): putQuote(1.50, 1.60, -0.25),
		},
	}

	assert.Empty(t, newTestGenerator(b, testConfig()).FindCandidates("SPY"))
}

func TestFindCandidatesDeltaScreen(t *testing.T) {
	cfg := testConfig()
	b := &mockBroker{
		price: 450,
		chain: &broker.Chain{
			Expirations: []string{exp35},
			Strikes:     map[string][]float64{exp35: {430, 435, 440, 445}},
		},
		options: map[string]*broker.OptionQuote{
			// Delta too high: screened out, no OTM fallback applies.
			optKey(exp35, 445): putQuote(3.00, 3.10, -0.40),
			optKey(exp35, 440): putQuote(2.00, 2.10, -0.28),
			optKey(exp35, 435): putQuote(1.20, 1.30, -0.20),
			optKey(exp35, 430): putQuote(0.80, 0.90, -0.14),
		},
	}

	got := newTestGenerator(b, cfg).FindCandidates("SPY")
	require.Len(t, got, 2)
	// 445 (delta 0.40) and 430-as-short (no 425 long listed) are excluded.
	assert.Equal(t, 440.0, got[0].ShortStrike)
	assert.Equal(t, 435.0, got[1].ShortStrike)
}

func TestFindCandidatesAtTheMoneyGovernedByDeltaScreen(t *testing.T) {
	b := &mockBroker{
		price: 450,
		chain: &broker.Chain{
			Expirations: []string{exp35},
			Strikes:     map[string][]float64{exp35: {445, 450}},
		},
		options: map[string]*broker.OptionQuote{
			optKey(exp35, 450): putQuote(4.00, 4.10, -0.50),
			optKey(exp35, 445): putQuote(2.00, 2.10, -0.35),
		},
	}

	// A wide delta range admits the at-the-money short.
	cfg := testConfig()
	cfg.DeltaMax = 0.60
	got := newTestGenerator(b, cfg).FindCandidates("SPY")
	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, 450.0, c.ShortStrike)
	assert.Equal(t, 445.0, c.LongStrike)
	assert.InDelta(t, 4.00-2.10, c.Credit, 1e-9)
	assert.Equal(t, models.SelectionDelta, c.Method)

	// The default range rejects it on delta, not on moneyness.
	assert.Empty(t, newTestGenerator(b, testConfig()).FindCandidates("SPY"))
}

func TestFindCandidatesBidAskFilter(t *testing.T) {
	b := &mockBroker{
		price: 450,
		chain: &broker.Chain{
			Expirations: []string{exp35},
			Strikes:     map[string][]float64{exp35: {425, 430}},
		},
		options: map[string]*broker.OptionQuote{
			// Short leg market too wide (0.50 > 0.40 cap).
			optKey(exp35, 430): putQuote(1.50, 2.00, -0.25),
			optKey(exp35, 425): putQuote(0.60, 0.70, -0.15),
		},
	}

	assert.Empty(t, newTestGenerator(b, testConfig()).FindCandidates("SPY"))
}

func TestFindCandidatesOTMFallback(t *testing.T) {
	cfg := testConfig() // target 5% OTM, window [4%, 6%]
	b := &mockBroker{
		price: 450,
		chain: &broker.Chain{
			Expirations: []string{exp35},
			Strikes:     map[string][]float64{exp35: {417, 422, 423, 428, 430, 435}},
		},
		options: map[string]*broker.OptionQuote{
			// 428 is ~4.9% OTM: inside the window. No Greeks anywhere.
			optKey(exp35, 428): putQuote(1.10, 1.20, 0),
			optKey(exp35, 423): putQuote(0.60, 0.70, 0),
			// 435 is ~3.3% OTM: outside the window.
			optKey(exp35, 435): putQuote(1.80, 1.90, 0),
			optKey(exp35, 430): putQuote(1.30, 1.40, 0),
		},
	}

	got := newTestGenerator(b, cfg).FindCandidates("SPY")
	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, 428.0, c.ShortStrike)
	assert.Equal(t, models.SelectionOTMFallback, c.Method)
	assert.False(t, c.HasGreeks)
}

func TestFindCandidatesRequireGreeksBlocksFallback(t *testing.T) {
	cfg := testConfig()
	cfg.RequireGreeks = true
	b := &mockBroker{
		price: 450,
		chain: &broker.Chain{
			Expirations: []string{exp35},
			Strikes:     map[string][]float64{exp35: {423, 428}},
		},
		options: map[string]*broker.OptionQuote{
			optKey(exp35, 428): putQuote(1.10, 1.20, 0),
			optKey(exp35, 423): putQuote(0.60, 0.70, 0),
		},
	}

	assert.Empty(t, newTestGenerator(b, cfg).FindCandidates("SPY"))
}

func TestFindCandidatesSortedByCredit(t *testing.T) {
	exp2 := "2024-04-12" // 28 DTE
	b := &mockBroker{
		price: 450,
		chain: &broker.Chain{
			Expirations: []string{exp2, exp35},
			Strikes: map[string][]float64{
				exp2:  {425, 430},
				exp35: {425, 430},
			},
		},
		options: map[string]*broker.OptionQuote{
			optKey(exp2, 430):  putQuote(1.00, 1.10, -0.22),
			optKey(exp2, 425):  putQuote(0.50, 0.60, -0.16),
			optKey(exp35, 430): putQuote(1.60, 1.70, -0.25),
			optKey(exp35, 425): putQuote(0.70, 0.80, -0.18),
		},
	}

	got := newTestGenerator(b, testConfig()).FindCandidates("SPY")
	require.Len(t, got, 2)
	assert.Equal(t, exp35, got[0].Expiration) // credit 0.80
	assert.Equal(t, exp2, got[1].Expiration)  // credit 0.40
	assert.Greater(t, got[0].Credit, got[1].Credit)
}

func TestFindCandidatesSkipsFailingQuotes(t *testing.T) {
	b := &mockBroker{
		price: 450,
		chain: &broker.Chain{
			Expirations: []string{exp35},
			Strikes:     map[string][]float64{exp35: {420, 425, 430}},
		},
		options: map[string]*broker.OptionQuote{
			optKey(exp35, 425): putQuote(0.90, 1.00, -0.20),
			optKey(exp35, 420): putQuote(0.40, 0.50, -0.14),
		},
		optionErr: map[string]error{
			optKey(exp35, 430): errors.New("quote feed timeout"),
		},
	}

	got := newTestGenerator(b, testConfig()).FindCandidates("SPY")
	require.Len(t, got, 1)
	assert.Equal(t, 425.0, got[0].ShortStrike)
}

func TestFindCandidatesUnderlyingFailure(t *testing.T) {
	b := &mockBroker{quoteErr: errors.New("connection refused")}
	assert.Empty(t, newTestGenerator(b, testConfig()).FindCandidates("SPY"))
}

func TestFindCandidatesDTEWindow(t *testing.T) {
	tooNear := "2024-03-29" // 14 DTE
	tooFar := "2024-05-17"  // 63 DTE
	b := &mockBroker{
		price: 450,
		chain: &broker.Chain{
			Expirations: []string{tooNear, tooFar},
			Strikes: map[string][]float64{
				tooNear: {425, 430},
				tooFar:  {425, 430},
			},
		},
		options: map[string]*broker.OptionQuote{
			optKey(tooNear, 430): putQuote(1.00, 1.10, -0.22),
			optKey(tooNear, 425): putQuote(0.50, 0.60, -0.16),
			optKey(tooFar, 430):  putQuote(2.00, 2.10, -0.22),
			optKey(tooFar, 425):  putQuote(1.40, 1.50, -0.16),
		},
	}

	assert.Empty(t, newTestGenerator(b, testConfig()).FindCandidates("SPY"))
}

func TestTopCandidatesLimit(t *testing.T) {
	b := &mockBroker{
		price: 450,
		chain: &broker.Chain{
			Expirations: []string{exp35},
			Strikes:     map[string][]float64{exp35: {415, 420, 425, 430, 435, 440}},
		},
		options: map[string]*broker.OptionQuote{
			optKey(exp35, 440): putQuote(2.20, 2.30, -0.29),
			optKey(exp35, 435): putQuote(1.60, 1.70, -0.25),
			optKey(exp35, 430): putQuote(1.20, 1.30, -0.21),
			optKey(exp35, 425): putQuote(0.90, 1.00, -0.18),
			optKey(exp35, 420): putQuote(0.60, 0.70, -0.16),
			optKey(exp35, 415): putQuote(0.40, 0.50, -0.14),
		},
	}

	got := newTestGenerator(b, testConfig()).TopCandidates("SPY", 3)
	require.Len(t, got, 3)
	assert.Equal(t, 440.0, got[0].ShortStrike)
	assert.Equal(t, 435.0, got[1].ShortStrike)
	assert.Equal(t, 430.0, got[2].ShortStrike)
}

func TestScanAll(t *testing.T) {
	b := &mockBroker{
		price: 450,
		chain: &broker.Chain{
			Expirations: []string{exp35},
			Strikes:     map[string][]float64{exp35: {425, 430}},
		},
		options: map[string]*broker.OptionQuote{
			optKey(exp35, 430): putQuote(1.50, 1.60, -0.25),
			optKey(exp35, 425): putQuote(0.60, 0.70, -0.15),
		},
	}

	results := newTestGenerator(b, testConfig()).ScanAll(context.Background(), []string{"SPY", "QQQ"})
	require.Len(t, results, 2)
	assert.Len(t, results["SPY"], 1)
	assert.Len(t, results["QQQ"], 1)
}
