// Package manager evaluates open spreads against the exit rules and
// closes them.
package manager

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/eddiefleurent/schrute_spreads/internal/exec"
	"github.com/eddiefleurent/schrute_spreads/internal/models"
	"github.com/eddiefleurent/schrute_spreads/internal/risk"
	"github.com/eddiefleurent/schrute_spreads/internal/storage"
	"github.com/eddiefleurent/schrute_spreads/internal/strategy"
)

// Config holds the exit rule parameters.
type Config struct {
	TPCapturePct float64 // close when debit <= credit * this
	SLMultiple   float64 // close when debit >= credit * this
	TimeExitDTE  int     // close when DTE <= this
}

// Manager re-prices open spreads and applies the exit rules in fixed
// precedence: take profit, stop loss, time exit.
type Manager struct {
	store  storage.Interface
	quotes *strategy.Generator
	exec   *exec.Controller
	gate   *risk.Gate
	cfg    Config
	loc    *time.Location
	logger zerolog.Logger
	nowFn  func() time.Time
}

// New creates a position lifecycle manager.
func New(store storage.Interface, quotes *strategy.Generator, execCtl *exec.Controller, gate *risk.Gate, cfg Config, loc *time.Location, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		quotes: quotes,
		exec:   execCtl,
		gate:   gate,
		cfg:    cfg,
		loc:    loc,
		logger: logger,
		nowFn:  time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (m *Manager) WithNow(nowFn func() time.Time) *Manager {
	m.nowFn = nowFn
	return m
}

// CheckExitReason returns which exit rule fires for a trade at the given
// debit to close, or "" when the trade should stay on.
func (m *Manager) CheckExitReason(trade *models.Trade, debit float64) models.ExitReason {
	if debit <= trade.Credit*m.cfg.TPCapturePct {
		return models.ExitTakeProfit
	}
	if debit >= trade.Credit*m.cfg.SLMultiple {
		return models.ExitStopLoss
	}
	if trade.DTE(m.nowFn(), m.loc) <= m.cfg.TimeExitDTE {
		return models.ExitTime
	}
	return ""
}

// ManageOpenTrades re-prices every open trade once and closes those whose
// exit rules fire. Quote failures skip the trade until the next pass.
func (m *Manager) ManageOpenTrades() {
	trades, err := m.store.GetOpenTrades()
	if err != nil {
		m.logger.Error().Err(err).Msg("open trades unavailable, skipping manage pass")
		return
	}

	for i := range trades {
		trade := &trades[i]
		log := m.logger.With().Str("trade_id", trade.ID).Str("symbol", trade.Symbol).Logger()

		debit, ok := m.currentDebit(log, trade)
		if !ok {
			continue
		}

		reason := m.CheckExitReason(trade, debit)
		if reason == "" {
			log.Debug().Float64("debit", debit).Float64("credit", trade.Credit).
				Int("dte", trade.DTE(m.nowFn(), m.loc)).Msg("holding")
			continue
		}

		if err := m.CloseTrade(trade, debit, reason); err != nil {
			log.Error().Err(err).Str("reason", string(reason)).Msg("close failed")
		}
	}
}

// currentDebit prices the cost to buy the spread back: short ask minus
// long bid. Either leg missing a two-sided market makes the spread
// unevaluable this pass.
func (m *Manager) currentDebit(log zerolog.Logger, trade *models.Trade) (float64, bool) {
	expiration := trade.Expiration.Format("2006-01-02")
	shortQ, longQ, err := m.quotes.LegQuotes(trade.Symbol, expiration, trade.ShortStrike, trade.LongStrike)
	if err != nil {
		log.Warn().Err(err).Msg("leg quotes unavailable, skipping trade this pass")
		return 0, false
	}
	if !shortQ.HasBidAsk() || !longQ.HasBidAsk() {
		log.Warn().Msg("one-sided leg market, skipping trade this pass")
		return 0, false
	}
	return shortQ.Ask - longQ.Bid, true
}

// CloseTrade exits a spread: submits the close order, then records the
// local close and daily stats. A broker rejection is logged but does not
// block the local transition; the position decision stands either way.
func (m *Manager) CloseTrade(trade *models.Trade, debit float64, reason models.ExitReason) error {
	log := m.logger.With().Str("trade_id", trade.ID).Str("symbol", trade.Symbol).Logger()

	if _, err := m.exec.CloseSpread(trade, debit); err != nil {
		log.Warn().Err(err).Msg("close order not accepted, recording local close anyway")
	}

	pnl := (trade.Credit - debit) * float64(trade.Quantity)
	closedAt := m.nowFn()
	if err := m.store.CloseTrade(trade.ID, debit, pnl, reason, closedAt); err != nil {
		return fmt.Errorf("persisting close for trade %s: %w", trade.ID, err)
	}
	if err := m.gate.RecordTradeClosed(pnl); err != nil {
		log.Error().Err(err).Msg("failed to record close in daily stats")
	}

	log.Info().Str("reason", string(reason)).Float64("debit", debit).
		Float64("pnl", pnl).Msg("trade closed")
	return nil
}
