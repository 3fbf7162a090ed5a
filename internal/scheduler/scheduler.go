// Package scheduler drives the trading session: periodic management of
// open spreads and entry attempts inside the configured window.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eddiefleurent/schrute_spreads/internal/broker"
	"github.com/eddiefleurent/schrute_spreads/internal/config"
	"github.com/eddiefleurent/schrute_spreads/internal/exec"
	"github.com/eddiefleurent/schrute_spreads/internal/manager"
	"github.com/eddiefleurent/schrute_spreads/internal/models"
	"github.com/eddiefleurent/schrute_spreads/internal/risk"
	"github.com/eddiefleurent/schrute_spreads/internal/storage"
	"github.com/eddiefleurent/schrute_spreads/internal/strategy"
	"github.com/eddiefleurent/schrute_spreads/internal/util"
)

const (
	// connectAttempts bounds the pre-session broker check.
	connectAttempts = 3
	// connectRetryPause separates consecutive connect attempts.
	connectRetryPause = 2 * time.Second
	// topCandidatesPerSymbol caps how many spreads are considered per
	// symbol each cycle.
	topCandidatesPerSymbol = 3
)

// Scheduler owns the single-threaded session loop.
type Scheduler struct {
	cfg    *config.Config
	broker broker.Broker
	store  storage.Interface
	gate   *risk.Gate
	gen    *strategy.Generator
	exec   *exec.Controller
	mgr    *manager.Manager
	logger zerolog.Logger
	nowFn  func() time.Time
	sleep  func(time.Duration)
}

// New creates a session scheduler.
func New(
	cfg *config.Config,
	b broker.Broker,
	store storage.Interface,
	gate *risk.Gate,
	gen *strategy.Generator,
	execCtl *exec.Controller,
	mgr *manager.Manager,
	logger zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		broker: b,
		store:  store,
		gate:   gate,
		gen:    gen,
		exec:   execCtl,
		mgr:    mgr,
		logger: logger,
		nowFn:  time.Now,
		sleep:  time.Sleep,
	}
}

// WithNow overrides the clock, for tests.
func (s *Scheduler) WithNow(nowFn func() time.Time) *Scheduler {
	s.nowFn = nowFn
	return s
}

// WithSleep overrides the retry pause, for tests.
func (s *Scheduler) WithSleep(sleep func(time.Duration)) *Scheduler {
	s.sleep = sleep
	return s
}

// preflight verifies the market-data collaborator responds before the
// session starts, with a bounded retry.
func (s *Scheduler) preflight() error {
	symbol := s.cfg.Strategy.Underlyings[0]
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if _, err := s.broker.GetUnderlyingQuote(symbol); err == nil {
			return nil
		} else {
			lastErr = err
			s.logger.Warn().Int("attempt", attempt).Err(err).Msg("broker preflight failed")
		}
		if attempt < connectAttempts {
			s.sleep(connectRetryPause)
		}
	}
	return fmt.Errorf("broker unreachable after %d attempts: %w", connectAttempts, lastErr)
}

// Run executes a bounded trading session: manage open spreads on the
// manage interval, attempt entries inside the entry window, and finish
// with one unconditional manage pass. duration <= 0 runs until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context, duration time.Duration) error {
	if err := s.preflight(); err != nil {
		return err
	}

	sess := &models.Session{
		ID:        uuid.NewString(),
		Mode:      models.ModeRun,
		StartedAt: s.nowFn(),
	}
	if err := s.store.CreateSession(sess); err != nil {
		return fmt.Errorf("creating session record: %w", err)
	}
	s.logger.Info().Str("session_id", sess.ID).Dur("duration", duration).Msg("session started")

	start := s.nowFn()
	lastManage := start
	manageInterval := s.cfg.ManageInterval()

	ticker := time.NewTicker(s.cfg.TickInterval())
	defer ticker.Stop()

	interrupted := false
loop:
	for {
		now := s.nowFn()
		if duration > 0 && now.Sub(start) >= duration {
			break
		}

		// Manage before any entries each time the interval elapses.
		if now.Sub(lastManage) >= manageInterval {
			s.mgr.ManageOpenTrades()
			lastManage = now
		}
		if s.cfg.IsInEntryWindow(now) {
			s.entryCycle(sess.ID)
		}

		select {
		case <-ctx.Done():
			interrupted = true
			break loop
		case <-ticker.C:
		}
	}

	// Final pass runs no matter how the session ended.
	s.mgr.ManageOpenTrades()

	if err := s.store.EndSession(sess.ID, s.nowFn()); err != nil {
		s.logger.Error().Err(err).Msg("failed to stamp session end")
	}
	s.logger.Info().Str("session_id", sess.ID).Bool("interrupted", interrupted).Msg("session ended")
	return nil
}

// RunManageOnly loops management passes until ctx is cancelled. No
// entries are ever attempted.
func (s *Scheduler) RunManageOnly(ctx context.Context) error {
	if err := s.preflight(); err != nil {
		return err
	}

	sess := &models.Session{
		ID:        uuid.NewString(),
		Mode:      models.ModeManage,
		StartedAt: s.nowFn(),
	}
	if err := s.store.CreateSession(sess); err != nil {
		return fmt.Errorf("creating session record: %w", err)
	}

	ticker := time.NewTicker(s.cfg.ManageInterval())
	defer ticker.Stop()

	s.mgr.ManageOpenTrades()
	for {
		select {
		case <-ctx.Done():
			s.mgr.ManageOpenTrades()
			if err := s.store.EndSession(sess.ID, s.nowFn()); err != nil {
				s.logger.Error().Err(err).Msg("failed to stamp session end")
			}
			return nil
		case <-ticker.C:
			s.mgr.ManageOpenTrades()
		}
	}
}

// entryCycle walks the configured symbols in order and attempts at most
// one entry per symbol.
func (s *Scheduler) entryCycle(sessionID string) {
	for _, symbol := range s.cfg.Strategy.Underlyings {
		log := s.logger.With().Str("symbol", symbol).Logger()

		if ok, reason := s.gate.CanOpenNewTrade(); !ok {
			log.Info().Str("reason", reason).Msg("entries blocked")
			return
		}
		if s.gate.HasOpenTradeForSymbol(symbol) {
			log.Debug().Msg("open spread already on, skipping symbol")
			continue
		}

		for _, cand := range s.gen.TopCandidates(symbol, topCandidatesPerSymbol) {
			quantity := s.gate.CalculatePositionSize(cand.MaxLoss)
			if quantity <= 0 {
				continue
			}
			s.attemptEntry(log, sessionID, cand, quantity)
			// One order attempt per symbol per cycle, accepted or not.
			break
		}
	}
}

// attemptEntry sizes and submits one candidate, recording the trade on
// acceptance.
func (s *Scheduler) attemptEntry(log zerolog.Logger, sessionID string, cand strategy.Candidate, quantity int) {
	targetCredit := util.RoundToTick(
		util.Midpoint(cand.ShortBid, cand.ShortAsk)-util.Midpoint(cand.LongBid, cand.LongAsk),
		0.01,
	)

	reasonOpen := fmt.Sprintf("delta=%.2f method=%s dte=%d", cand.ShortDelta, cand.Method, cand.DTE)
	trade := models.NewTrade(sessionID, cand.Symbol, cand.ExpirationDate,
		cand.ShortStrike, cand.LongStrike, quantity, targetCredit, reasonOpen, s.nowFn())

	placement, err := s.exec.OpenSpread(trade.ID, trade, targetCredit)
	if err != nil {
		log.Error().Err(err).Msg("entry attempt errored")
		return
	}
	if placement == nil {
		log.Info().Float64("target_credit", targetCredit).Msg("entry not filled")
		return
	}

	// Record at the accepted limit, which may sit below the target.
	trade.Credit = placement.LimitPrice
	if err := s.store.CreateTrade(trade); err != nil {
		log.Error().Err(err).Msg("failed to persist trade after acceptance")
		return
	}
	if err := s.gate.RecordTradeOpened(); err != nil {
		log.Error().Err(err).Msg("failed to record trade open in daily stats")
	}

	log.Info().Str("trade_id", trade.ID).Int("quantity", quantity).
		Float64("credit", placement.LimitPrice).
		Float64("short_strike", cand.ShortStrike).Float64("long_strike", cand.LongStrike).
		Str("expiration", cand.Expiration).Msg("spread opened")
}
