package main

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/eddiefleurent/schrute_spreads/internal/broker"
	"github.com/eddiefleurent/schrute_spreads/internal/util"
)

func newDoctorCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check broker connectivity and market data quality",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			failures := 0
			for _, symbol := range a.cfg.Strategy.Underlyings {
				failures += a.checkSymbol(symbol)
			}

			if failures > 0 {
				return fmt.Errorf("doctor found %d problem(s)", failures)
			}
			fmt.Println("\nall checks passed")
			return nil
		},
	}
}

func (a *app) checkSymbol(symbol string) int {
	failures := 0
	fail := func(format string, args ...interface{}) {
		fmt.Printf("FAIL  %s: "+format+"\n", append([]interface{}{symbol}, args...)...)
		failures++
	}
	pass := func(format string, args ...interface{}) {
		fmt.Printf("ok    %s: "+format+"\n", append([]interface{}{symbol}, args...)...)
	}

	quote, err := a.broker.GetUnderlyingQuote(symbol)
	if err != nil {
		fail("underlying quote: %v", err)
		return failures
	}
	price := quote.Price()
	if price <= 0 {
		fail("underlying quote has no usable price")
		return failures
	}
	pass("underlying at %.2f", price)

	chain, err := a.broker.GetOptionChain(symbol)
	if err != nil {
		fail("option chain: %v", err)
		return failures
	}
	if len(chain.Expirations) == 0 {
		fail("option chain lists no expirations")
		return failures
	}

	loc := a.cfg.Location()
	now := time.Now()
	inWindow := ""
	for _, expiration := range chain.Expirations {
		expDate, err := time.ParseInLocation("2006-01-02", expiration, loc)
		if err != nil {
			continue
		}
		dte := util.DaysBetween(now, expDate, loc)
		if dte >= a.cfg.Strategy.DTEMin && dte <= a.cfg.Strategy.DTEMax {
			inWindow = expiration
			break
		}
	}
	if inWindow == "" {
		fail("no expiration inside the %d-%d DTE window", a.cfg.Strategy.DTEMin, a.cfg.Strategy.DTEMax)
		return failures
	}
	pass("%d expirations, %s inside the DTE window", len(chain.Expirations), inWindow)

	strike := nearestStrikeBelow(chain.Strikes[inWindow], price)
	if strike <= 0 {
		fail("no strike below the underlying at %s", inWindow)
		return failures
	}

	opt, err := a.broker.GetOptionQuote(symbol, inWindow, strike, broker.RightPut)
	if err != nil {
		fail("option quote %s %.2fP: %v", inWindow, strike, err)
		return failures
	}
	if !opt.HasBidAsk() {
		fail("option %s %.2fP has a one-sided market (bid %.2f ask %.2f)",
			inWindow, strike, opt.Bid, opt.Ask)
	} else {
		pass("option %s %.2fP quoted %.2f/%.2f", inWindow, strike, opt.Bid, opt.Ask)
	}

	if opt.HasGreeks && opt.Delta != 0 {
		pass("greeks available (delta %.3f)", opt.Delta)
	} else if a.cfg.Strategy.RequireGreeks {
		fail("greeks unavailable but require_greeks is set")
	} else {
		fmt.Printf("warn  %s: greeks unavailable, selection will use the OTM fallback\n", symbol)
	}
	return failures
}

func nearestStrikeBelow(strikes []float64, price float64) float64 {
	best := 0.0
	for _, s := range strikes {
		if s < price && math.Abs(price-s) < math.Abs(price-best) {
			best = s
		}
	}
	return best
}
