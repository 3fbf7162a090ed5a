// Package mock provides a synthetic market-data provider implementing the
// broker interface, for offline runs and tests.
package mock

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/eddiefleurent/schrute_spreads/internal/broker"
)

const (
	// legHalfSpread is the fixed half bid/ask width on synthetic option quotes.
	legHalfSpread = 0.03
	// syntheticVol is the flat volatility used for delta and premium shapes.
	syntheticVol = 0.18
)

// Provider implements broker.Broker with synthetic quotes and chains.
// Put premiums and deltas are monotonic in strike, so a put spread always
// quotes for a positive credit.
type Provider struct {
	mu          sync.Mutex
	price       float64
	drift       bool
	nowFn       func() time.Time
	nextOrderID int
}

// Ensure Provider implements Broker at compile time.
var _ broker.Broker = (*Provider)(nil)

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1.
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// NewProvider creates a provider with a randomized SPY-like price that
// drifts between quote calls.
func NewProvider() *Provider {
	return &Provider{
		price:       450.0 + secureFloat64()*10,
		drift:       true,
		nowFn:       time.Now,
		nextOrderID: 1000,
	}
}

// NewProviderAt creates a deterministic provider pinned to a price and
// clock, for tests.
func NewProviderAt(price float64, nowFn func() time.Time) *Provider {
	return &Provider{
		price:       price,
		nowFn:       nowFn,
		nextOrderID: 1000,
	}
}

// GetUnderlyingQuote returns the synthetic underlying quote.
func (p *Provider) GetUnderlyingQuote(symbol string) (*broker.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.drift {
		p.price += (secureFloat64() - 0.5) * 0.5
	}
	const spread = 0.02
	return &broker.Quote{
		Symbol: symbol,
		Last:   p.price,
		Bid:    p.price - spread/2,
		Ask:    p.price + spread/2,
	}, nil
}

// GetOptionChain lists the next ten Friday expirations with $1 strikes
// from 20% below to 2% above the underlying.
func (p *Provider) GetOptionChain(symbol string) (*broker.Chain, error) {
	p.mu.Lock()
	price := p.price
	now := p.nowFn()
	p.mu.Unlock()

	low := math.Floor(price * 0.80)
	high := math.Ceil(price * 1.02)
	strikes := make([]float64, 0, int(high-low)+1)
	for s := low; s <= high; s++ {
		strikes = append(strikes, s)
	}

	chain := &broker.Chain{
		Symbol:  symbol,
		Strikes: make(map[string][]float64, 10),
	}
	// Next Friday, then weekly.
	d := now
	for d.Weekday() != time.Friday {
		d = d.AddDate(0, 0, 1)
	}
	if d.YearDay() == now.YearDay() && d.Year() == now.Year() {
		d = d.AddDate(0, 0, 7)
	}
	for i := 0; i < 10; i++ {
		exp := d.Format("2006-01-02")
		chain.Expirations = append(chain.Expirations, exp)
		chain.Strikes[exp] = strikes
		d = d.AddDate(0, 0, 7)
	}
	return chain, nil
}

// GetOptionQuote prices a synthetic contract. Only puts carry premium
// shapes; calls quote near zero.
func (p *Provider) GetOptionQuote(symbol, expiration string, strike float64, right broker.Right) (*broker.OptionQuote, error) {
	p.mu.Lock()
	price := p.price
	now := p.nowFn()
	p.mu.Unlock()

	expDate, err := time.Parse("2006-01-02", expiration)
	if err != nil {
		return nil, fmt.Errorf("invalid expiration format: %w", err)
	}
	years := expDate.Sub(now).Hours() / 24 / 365
	if years < 1.0/365 {
		years = 1.0 / 365
	}
	volT := syntheticVol * math.Sqrt(years)

	occ := fmt.Sprintf("%s%s%s%08d", symbol, expDate.Format("060102"), right, int(math.Round(strike*1000)))

	if right != broker.RightPut {
		return &broker.OptionQuote{Symbol: occ, Bid: 0.01, Ask: 0.01 + 2*legHalfSpread}, nil
	}

	// Lognormal-ish moneyness; N(-d1) rises with strike, so premiums do too.
	d1 := math.Log(price/strike) / volT
	absDelta := 0.5 * math.Erfc(d1/math.Sqrt2)
	mid := absDelta * price * volT * 0.8
	if mid < 2*legHalfSpread {
		mid = 2 * legHalfSpread
	}

	return &broker.OptionQuote{
		Symbol:    occ,
		Bid:       mid - legHalfSpread,
		Ask:       mid + legHalfSpread,
		Delta:     -absDelta,
		HasGreeks: true,
	}, nil
}

// PlaceSpreadOrder accepts every well-formed order with an incrementing ID.
func (p *Provider) PlaceSpreadOrder(order broker.SpreadOrder) (*broker.OrderResponse, error) {
	if order.LimitPrice <= 0 {
		return nil, fmt.Errorf("invalid limit price: %.2f", order.LimitPrice)
	}
	if order.Quantity <= 0 {
		return nil, fmt.Errorf("invalid quantity: %d", order.Quantity)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextOrderID++
	resp := &broker.OrderResponse{}
	resp.Order.ID = p.nextOrderID
	resp.Order.Status = "ok"
	return resp, nil
}
