// Package exec places spread orders: a price-walked entry and a
// single-shot close.
package exec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/eddiefleurent/schrute_spreads/internal/broker"
	"github.com/eddiefleurent/schrute_spreads/internal/models"
	"github.com/eddiefleurent/schrute_spreads/internal/storage"
	"github.com/eddiefleurent/schrute_spreads/internal/util"
)

const (
	// maxEntryAttempts caps the entry price walk.
	maxEntryAttempts = 5
	// priceWalkStep is how much credit is given up per attempt.
	priceWalkStep = 0.01
	// priceTick is the broker's limit price increment.
	priceTick = 0.01
	// slippageEpsilon absorbs float accumulation across walk steps.
	slippageEpsilon = 1e-9
)

// Config holds execution parameters.
type Config struct {
	TradingDisabled  bool
	EntryMaxSlippage float64
	AttemptPause     time.Duration
}

// Placement reports an accepted order.
type Placement struct {
	OrderID    int
	LimitPrice float64
	Quantity   int
}

// Controller submits spread orders through the broker and persists an
// order record per acceptance.
type Controller struct {
	broker broker.Broker
	store  storage.Interface
	cfg    Config
	logger zerolog.Logger
	sleep  func(time.Duration)
}

// NewController creates an execution controller.
func NewController(b broker.Broker, store storage.Interface, cfg Config, logger zerolog.Logger) *Controller {
	return &Controller{
		broker: b,
		store:  store,
		cfg:    cfg,
		logger: logger,
		sleep:  time.Sleep,
	}
}

// WithSleep overrides the inter-attempt pause, for tests.
func (c *Controller) WithSleep(sleep func(time.Duration)) *Controller {
	c.sleep = sleep
	return c
}

// OpenSpread walks an entry order down from targetCredit in one-cent
// steps until the broker accepts it. It gives up after maxEntryAttempts,
// when the limit would reach zero, or once the cumulative concession
// exceeds the slippage budget. A nil Placement with nil error means no
// acceptable fill was available.
func (c *Controller) OpenSpread(tradeID string, cand *models.Trade, targetCredit float64) (*Placement, error) {
	if c.cfg.TradingDisabled {
		c.logger.Warn().Str("trade_id", tradeID).Msg("trading disabled, skipping entry order")
		return nil, nil
	}

	adjustment := 0.0
	for attempt := 1; attempt <= maxEntryAttempts; attempt++ {
		limit := util.RoundToTick(targetCredit-adjustment, priceTick)
		if limit <= 0 {
			c.logger.Warn().Str("trade_id", tradeID).
				Msg("entry walk reached zero credit, abandoning")
			return nil, nil
		}
		if adjustment > c.cfg.EntryMaxSlippage+slippageEpsilon {
			c.logger.Warn().Str("trade_id", tradeID).
				Float64("adjustment", adjustment).
				Msg("entry walk exceeded slippage budget, abandoning")
			return nil, nil
		}

		resp, err := c.broker.PlaceSpreadOrder(broker.SpreadOrder{
			Symbol:      cand.Symbol,
			Expiration:  cand.Expiration.Format("2006-01-02"),
			ShortStrike: cand.ShortStrike,
			LongStrike:  cand.LongStrike,
			Quantity:    cand.Quantity,
			LimitPrice:  limit,
			Tag:         tradeID,
		})
		if err == nil {
			c.logger.Info().Str("trade_id", tradeID).Int("attempt", attempt).
				Float64("limit", limit).Int("order_id", resp.Order.ID).
				Msg("entry order accepted")
			c.recordOrder(tradeID, models.ActionOpen, models.OrderCredit, limit, resp)
			return &Placement{OrderID: resp.Order.ID, LimitPrice: limit, Quantity: cand.Quantity}, nil
		}

		c.logger.Warn().Str("trade_id", tradeID).Int("attempt", attempt).
			Float64("limit", limit).Err(err).Msg("entry order rejected")
		adjustment += priceWalkStep
		if attempt < maxEntryAttempts {
			c.sleep(c.cfg.AttemptPause)
		}
	}

	c.logger.Warn().Str("trade_id", tradeID).Int("attempts", maxEntryAttempts).
		Msg("entry walk exhausted")
	return nil, nil
}

// CloseSpread submits a single buy-to-close order at the given debit.
// There is no walk on exits; the caller decides what to do on failure.
// The kill switch suppresses close orders the same way it does entries.
func (c *Controller) CloseSpread(trade *models.Trade, debit float64) (*Placement, error) {
	if c.cfg.TradingDisabled {
		c.logger.Warn().Str("trade_id", trade.ID).Msg("trading disabled, skipping close order")
		return nil, nil
	}

	limit := util.RoundToTick(debit, priceTick)
	if limit <= 0 {
		return nil, fmt.Errorf("invalid close debit: %.2f", debit)
	}

	resp, err := c.broker.PlaceSpreadOrder(broker.SpreadOrder{
		Symbol:      trade.Symbol,
		Expiration:  trade.Expiration.Format("2006-01-02"),
		ShortStrike: trade.ShortStrike,
		LongStrike:  trade.LongStrike,
		Quantity:    trade.Quantity,
		LimitPrice:  limit,
		Close:       true,
		Tag:         trade.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("close order for trade %s: %w", trade.ID, err)
	}

	c.logger.Info().Str("trade_id", trade.ID).Float64("limit", limit).
		Int("order_id", resp.Order.ID).Msg("close order accepted")
	c.recordOrder(trade.ID, models.ActionClose, models.OrderDebit, limit, resp)
	return &Placement{OrderID: resp.Order.ID, LimitPrice: limit, Quantity: trade.Quantity}, nil
}

// recordOrder persists an accepted submission. A storage failure here is
// logged but never fails the trade itself.
func (c *Controller) recordOrder(tradeID string, action models.OrderAction, orderType models.OrderType, limit float64, resp *broker.OrderResponse) {
	raw, _ := json.Marshal(resp)
	order := models.NewOrder(tradeID, action, orderType, limit, resp.Order.Status, resp.Order.ID, string(raw), time.Now().UTC())
	if err := c.store.CreateOrder(order); err != nil {
		c.logger.Error().Err(err).Str("trade_id", tradeID).Msg("failed to persist order record")
	}
}
