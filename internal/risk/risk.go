// Package risk implements the pre-trade gate and position sizing.
package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/eddiefleurent/schrute_spreads/internal/models"
	"github.com/eddiefleurent/schrute_spreads/internal/storage"
)

// Config holds the risk limits.
type Config struct {
	AccountSize     float64
	RiskPerTradePct float64
	MaxDailyLossPct float64
	MaxTradesPerDay int
	TradingDisabled bool
}

// Gate enforces the daily risk limits before any new trade is opened.
// Checks run in a fixed order: kill switch, daily loss, trade count.
type Gate struct {
	cfg    Config
	store  storage.Interface
	loc    *time.Location
	logger zerolog.Logger
	nowFn  func() time.Time
}

// NewGate creates a risk gate.
func NewGate(cfg Config, store storage.Interface, loc *time.Location, logger zerolog.Logger) *Gate {
	return &Gate{
		cfg:    cfg,
		store:  store,
		loc:    loc,
		logger: logger,
		nowFn:  time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (g *Gate) WithNow(nowFn func() time.Time) *Gate {
	g.nowFn = nowFn
	return g
}

func (g *Gate) today() string {
	return g.nowFn().In(g.loc).Format(models.DayFormat)
}

// CanOpenNewTrade reports whether a new entry is allowed right now, with
// a human-readable reason when it is not.
func (g *Gate) CanOpenNewTrade() (bool, string) {
	if g.cfg.TradingDisabled {
		return false, "trading disabled by configuration"
	}

	stats, err := g.store.GetOrCreateDailyStats(g.today())
	if err != nil {
		// Unknown state blocks entries; never trade blind.
		g.logger.Error().Err(err).Msg("daily stats unavailable, blocking entries")
		return false, fmt.Sprintf("daily stats unavailable: %v", err)
	}

	loss := math.Abs(math.Min(0, stats.RealizedPnL+stats.UnrealizedPnL))
	if loss/g.cfg.AccountSize >= g.cfg.MaxDailyLossPct {
		return false, fmt.Sprintf("daily loss limit reached: -%.2f (%.2f%% of account)",
			loss, loss/g.cfg.AccountSize*100)
	}

	if stats.TradesCount >= g.cfg.MaxTradesPerDay {
		return false, fmt.Sprintf("daily trade cap reached: %d/%d", stats.TradesCount, g.cfg.MaxTradesPerDay)
	}

	return true, "OK"
}

// HasOpenTradeForSymbol reports whether an open spread already exists on
// the underlying. Storage failures block (report true) so the engine
// never doubles up on unknown state.
func (g *Gate) HasOpenTradeForSymbol(symbol string) bool {
	trades, err := g.store.GetOpenTradesForSymbol(symbol)
	if err != nil {
		g.logger.Error().Err(err).Str("symbol", symbol).Msg("open trade lookup failed, blocking symbol")
		return true
	}
	return len(trades) > 0
}

// CalculatePositionSize returns the contract count for a spread with the
// given per-contract max loss. The risk budget is account_size times
// risk_per_trade_pct; a spread whose single contract exceeds the budget
// still sizes to one.
func (g *Gate) CalculatePositionSize(maxLoss float64) int {
	if maxLoss <= 0 {
		return 0
	}
	budget := g.cfg.AccountSize * g.cfg.RiskPerTradePct
	size := int(math.Floor(budget / maxLoss))
	if size < 1 {
		return 1
	}
	return size
}

// RecordTradeOpened bumps today's trade count.
func (g *Gate) RecordTradeOpened() error {
	stats, err := g.store.GetOrCreateDailyStats(g.today())
	if err != nil {
		return fmt.Errorf("recording trade open: %w", err)
	}
	stats.TradesCount++
	if err := g.store.UpdateDailyStats(stats); err != nil {
		return fmt.Errorf("recording trade open: %w", err)
	}
	return nil
}

// RecordTradeClosed folds a realized result into today's stats. A flat
// close counts as neither a win nor a loss.
func (g *Gate) RecordTradeClosed(pnl float64) error {
	stats, err := g.store.GetOrCreateDailyStats(g.today())
	if err != nil {
		return fmt.Errorf("recording trade close: %w", err)
	}
	stats.RealizedPnL += pnl
	switch {
	case pnl > 0:
		stats.WinsCount++
	case pnl < 0:
		stats.LossesCount++
	}
	if err := g.store.UpdateDailyStats(stats); err != nil {
		return fmt.Errorf("recording trade close: %w", err)
	}
	return nil
}
