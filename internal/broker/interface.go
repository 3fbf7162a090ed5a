package broker

import (
	"errors"
	"log"
	"math"
	"time"

	"github.com/sony/gobreaker"
)

// StrikeMatchEpsilon defines the precision tolerance for matching strike prices.
const StrikeMatchEpsilon = 1e-4

// Right identifies the option right.
type Right string

const (
	// RightPut is a put option.
	RightPut Right = "P"
	// RightCall is a call option.
	RightCall Right = "C"
)

// Quote holds an underlying quote snapshot.
type Quote struct {
	Symbol string
	Bid    float64
	Ask    float64
	Last   float64
}

// HasBidAsk reports whether both sides of the market are present.
func (q *Quote) HasBidAsk() bool {
	return q.Bid > 0 && q.Ask > 0
}

// Price returns the reference price for the underlying: bid, else ask,
// else last, in that priority.
func (q *Quote) Price() float64 {
	switch {
	case q.Bid > 0:
		return q.Bid
	case q.Ask > 0:
		return q.Ask
	default:
		return q.Last
	}
}

// Chain lists the option expirations for a symbol with the strikes
// actually listed at each expiration.
type Chain struct {
	Symbol      string
	Expirations []string             // YYYY-MM-DD, ascending
	Strikes     map[string][]float64 // expiration -> listed strikes
}

// HasStrike reports whether the exact strike is listed at expiration.
func (c *Chain) HasStrike(expiration string, strike float64) bool {
	for _, s := range c.Strikes[expiration] {
		if math.Abs(s-strike) <= StrikeMatchEpsilon {
			return true
		}
	}
	return false
}

// OptionQuote holds a single contract quote, with Greeks when available.
type OptionQuote struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Delta     float64
	HasGreeks bool
}

// HasBidAsk reports whether both sides of the market are present.
func (o *OptionQuote) HasBidAsk() bool {
	return o.Bid > 0 && o.Ask > 0
}

// BidAskSpread returns the quoted width of the market.
func (o *OptionQuote) BidAskSpread() float64 {
	return o.Ask - o.Bid
}

// Mid returns the bid/ask midpoint.
func (o *OptionQuote) Mid() float64 {
	return (o.Bid + o.Ask) / 2
}

// SpreadOrder describes a two-leg vertical put order. Close=false sells
// the spread to open for a credit; Close=true buys it back for a debit.
type SpreadOrder struct {
	Symbol      string
	Expiration  string // YYYY-MM-DD
	ShortStrike float64
	LongStrike  float64
	Quantity    int
	LimitPrice  float64
	Close       bool
	Tag         string
}

// OrderResponse represents a broker order acknowledgement.
type OrderResponse struct {
	Order struct {
		ID     int    `json:"id"`
		Status string `json:"status"`
	} `json:"order"`
}

// Broker defines the market-data and order operations the engine needs.
type Broker interface {
	GetUnderlyingQuote(symbol string) (*Quote, error)
	GetOptionChain(symbol string) (*Chain, error)
	GetOptionQuote(symbol, expiration string, strike float64, right Right) (*OptionQuote, error)
	PlaceSpreadOrder(order SpreadOrder) (*OrderResponse, error)
}

// CircuitBreakerBroker wraps a Broker with circuit breaker functionality.
type CircuitBreakerBroker struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
}

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods.
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	broker Broker,
	fn func(Broker) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(broker) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerBroker creates a new CircuitBreakerBroker with sensible defaults.
func NewCircuitBreakerBroker(broker Broker) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(broker, CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewCircuitBreakerBrokerWithSettings creates a CircuitBreakerBroker with custom settings.
func NewCircuitBreakerBrokerWithSettings(broker Broker, settings CircuitBreakerSettings) *CircuitBreakerBroker {
	gbSettings := gobreaker.Settings{
		Name:        "BrokerCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerBroker{
		broker:  broker,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// GetUnderlyingQuote wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetUnderlyingQuote(symbol string) (*Quote, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*Quote, error) {
		return b.GetUnderlyingQuote(symbol)
	})
}

// GetOptionChain wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetOptionChain(symbol string) (*Chain, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*Chain, error) {
		return b.GetOptionChain(symbol)
	})
}

// GetOptionQuote wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetOptionQuote(symbol, expiration string, strike float64, right Right) (*OptionQuote, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*OptionQuote, error) {
		return b.GetOptionQuote(symbol, expiration, strike, right)
	})
}

// PlaceSpreadOrder wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) PlaceSpreadOrder(order SpreadOrder) (*OrderResponse, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*OrderResponse, error) {
		return b.PlaceSpreadOrder(order)
	})
}

// Ensure wrappers implement Broker at compile time.
var _ Broker = (*CircuitBreakerBroker)(nil)
