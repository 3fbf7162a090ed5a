// Package strategy implements put credit spread candidate selection.
package strategy

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/eddiefleurent/schrute_spreads/internal/broker"
	"github.com/eddiefleurent/schrute_spreads/internal/models"
	"github.com/eddiefleurent/schrute_spreads/internal/util"
)

// Config holds the candidate screening parameters.
type Config struct {
	DTEMin        int
	DTEMax        int
	DeltaMin      float64
	DeltaMax      float64
	SpreadWidth   float64
	LegMaxBidAsk  float64
	RequireGreeks bool
	OTMTargetPct  float64
}

// Candidate is a fully screened put credit spread ready for sizing.
type Candidate struct {
	Symbol         string
	Expiration     string // YYYY-MM-DD
	ExpirationDate time.Time
	DTE            int
	ShortStrike    float64
	LongStrike     float64
	ShortDelta     float64
	HasGreeks      bool
	Credit         float64 // short bid - long ask
	MaxLoss        float64 // width - credit
	ShortBid       float64
	ShortAsk       float64
	LongBid        float64
	LongAsk        float64
	Method         models.SelectionMethod
}

// Generator screens option chains for spreads meeting the configured
// criteria. It never places orders.
type Generator struct {
	broker broker.Broker
	cfg    Config
	loc    *time.Location
	logger zerolog.Logger
	nowFn  func() time.Time
}

// NewGenerator creates a candidate generator.
func NewGenerator(b broker.Broker, cfg Config, loc *time.Location, logger zerolog.Logger) *Generator {
	return &Generator{
		broker: b,
		cfg:    cfg,
		loc:    loc,
		logger: logger,
		nowFn:  time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (g *Generator) WithNow(nowFn func() time.Time) *Generator {
	g.nowFn = nowFn
	return g
}

// FindCandidates screens every listed expiration of symbol within the DTE
// window and returns all passing spreads, best credit first. Market-data
// failures are logged and the affected expiration or strike skipped; a
// failure on the underlying quote itself yields no candidates.
func (g *Generator) FindCandidates(symbol string) []Candidate {
	log := g.logger.With().Str("symbol", symbol).Logger()

	underlying, err := g.broker.GetUnderlyingQuote(symbol)
	if err != nil {
		log.Warn().Err(err).Msg("underlying quote unavailable, skipping symbol")
		return nil
	}
	price := underlying.Price()
	if price <= 0 {
		log.Warn().Msg("underlying has no usable price, skipping symbol")
		return nil
	}

	chain, err := g.broker.GetOptionChain(symbol)
	if err != nil {
		log.Warn().Err(err).Msg("option chain unavailable, skipping symbol")
		return nil
	}

	now := g.nowFn()
	var candidates []Candidate
	for _, expiration := range chain.Expirations {
		expDate, err := time.ParseInLocation("2006-01-02", expiration, g.loc)
		if err != nil {
			log.Warn().Str("expiration", expiration).Err(err).Msg("unparseable expiration, skipping")
			continue
		}
		dte := util.DaysBetween(now, expDate, g.loc)
		if dte < g.cfg.DTEMin || dte > g.cfg.DTEMax {
			continue
		}

		found := g.screenExpiration(log, chain, symbol, expiration, expDate, dte, price)
		candidates = append(candidates, found...)
	}

	// Best credit first; stable so equal credits keep chain order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Credit > candidates[j].Credit
	})
	return candidates
}

// screenExpiration evaluates every listed strike as a short at one
// expiration. Moneyness is governed by the delta and OTM screens, not by
// position relative to the underlying.
func (g *Generator) screenExpiration(
	log zerolog.Logger,
	chain *broker.Chain,
	symbol, expiration string,
	expDate time.Time,
	dte int,
	underlying float64,
) []Candidate {
	strikes := append([]float64(nil), chain.Strikes[expiration]...)
	sort.Sort(sort.Reverse(sort.Float64Slice(strikes)))

	var out []Candidate
	for _, shortStrike := range strikes {
		// The long leg must be listed at exactly width below; no interpolation.
		longStrike := shortStrike - g.cfg.SpreadWidth
		if !chain.HasStrike(expiration, longStrike) {
			continue
		}

		shortQ, longQ, err := g.LegQuotes(symbol, expiration, shortStrike, longStrike)
		if err != nil {
			log.Debug().Str("expiration", expiration).Float64("short_strike", shortStrike).
				Err(err).Msg("leg quotes unavailable, skipping strike")
			continue
		}
		if !shortQ.HasBidAsk() || !longQ.HasBidAsk() {
			continue
		}
		if shortQ.BidAskSpread() > g.cfg.LegMaxBidAsk || longQ.BidAskSpread() > g.cfg.LegMaxBidAsk {
			continue
		}

		method, ok := g.selectMethod(shortQ, shortStrike, underlying)
		if !ok {
			continue
		}

		credit := shortQ.Bid - longQ.Ask
		if credit <= 0 {
			continue
		}

		out = append(out, Candidate{
			Symbol:         symbol,
			Expiration:     expiration,
			ExpirationDate: expDate,
			DTE:            dte,
			ShortStrike:    shortStrike,
			LongStrike:     longStrike,
			ShortDelta:     shortQ.Delta,
			HasGreeks:      shortQ.HasGreeks,
			Credit:         credit,
			MaxLoss:        g.cfg.SpreadWidth - credit,
			ShortBid:       shortQ.Bid,
			ShortAsk:       shortQ.Ask,
			LongBid:        longQ.Bid,
			LongAsk:        longQ.Ask,
			Method:         method,
		})
	}
	return out
}

// selectMethod applies the delta screen, with the OTM-distance fallback
// when no usable delta exists and Greeks are not required.
func (g *Generator) selectMethod(shortQ *broker.OptionQuote, shortStrike, underlying float64) (models.SelectionMethod, bool) {
	if shortQ.HasGreeks && shortQ.Delta != 0 {
		absDelta := math.Abs(shortQ.Delta)
		if absDelta >= g.cfg.DeltaMin && absDelta <= g.cfg.DeltaMax {
			return models.SelectionDelta, true
		}
		return "", false
	}
	if g.cfg.RequireGreeks {
		return "", false
	}
	// Accept strikes whose OTM distance lands within 20% of the target.
	otmPct := (underlying - shortStrike) / underlying
	if otmPct >= 0.8*g.cfg.OTMTargetPct && otmPct <= 1.2*g.cfg.OTMTargetPct {
		return models.SelectionOTMFallback, true
	}
	return "", false
}

// TopCandidates returns at most limit candidates, best credit first.
func (g *Generator) TopCandidates(symbol string, limit int) []Candidate {
	candidates := g.FindCandidates(symbol)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// LegQuotes fetches both put leg quotes for a spread.
func (g *Generator) LegQuotes(symbol, expiration string, shortStrike, longStrike float64) (*broker.OptionQuote, *broker.OptionQuote, error) {
	shortQ, err := g.broker.GetOptionQuote(symbol, expiration, shortStrike, broker.RightPut)
	if err != nil {
		return nil, nil, fmt.Errorf("short leg quote: %w", err)
	}
	longQ, err := g.broker.GetOptionQuote(symbol, expiration, longStrike, broker.RightPut)
	if err != nil {
		return nil, nil, fmt.Errorf("long leg quote: %w", err)
	}
	return shortQ, longQ, nil
}
