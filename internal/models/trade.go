// Package models defines the persisted domain records: trades, orders,
// fills, daily statistics, and sessions.
package models

import (
	"fmt"
	"time"

	"github.com/eddiefleurent/schrute_spreads/internal/util"
	"github.com/google/uuid"
)

// TradeStatus is the lifecycle state of a spread trade.
type TradeStatus string

const (
	// StatusOpen means the spread is on and being managed.
	StatusOpen TradeStatus = "open"
	// StatusClosed means the spread has been exited and P&L realized.
	StatusClosed TradeStatus = "closed"
	// StatusCancelled means the trade record was abandoned before fill.
	StatusCancelled TradeStatus = "cancelled"
)

// Valid returns true if the TradeStatus is one of the defined constants.
func (s TradeStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusClosed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ExitReason records which exit rule triggered a close.
type ExitReason string

const (
	// ExitTakeProfit indicates the debit to close reached the profit target.
	ExitTakeProfit ExitReason = "take_profit"
	// ExitStopLoss indicates the debit to close breached the loss multiple.
	ExitStopLoss ExitReason = "stop_loss"
	// ExitTime indicates the position reached its time-based exit DTE.
	ExitTime ExitReason = "time_exit"
)

// SelectionMethod records how the short strike was chosen.
type SelectionMethod string

const (
	// SelectionDelta means the short strike passed the delta screen.
	SelectionDelta SelectionMethod = "delta"
	// SelectionOTMFallback means the short strike was chosen by OTM
	// distance because no usable delta was available.
	SelectionOTMFallback SelectionMethod = "otm_fallback"
)

// Trade represents a put credit spread from entry through close.
// Credit and DebitToClose are per-spread prices; PnL is per-contract
// dollars, (credit - debit) * quantity.
type Trade struct {
	ID           string      `json:"id"`
	SessionID    string      `json:"session_id,omitempty"`
	Symbol       string      `json:"symbol"`
	Expiration   time.Time   `json:"expiration"`
	ShortStrike  float64     `json:"short_strike"`
	LongStrike   float64     `json:"long_strike"`
	Quantity     int         `json:"quantity"`
	Credit       float64     `json:"credit"`
	DebitToClose float64     `json:"debit_to_close,omitempty"`
	PnL          float64     `json:"pnl"`
	Status       TradeStatus `json:"status"`
	ReasonOpen   string      `json:"reason_open,omitempty"`
	ReasonClose  string      `json:"reason_close,omitempty"`
	OpenedAt     time.Time   `json:"opened_at"`
	ClosedAt     time.Time   `json:"closed_at,omitempty"`
}

// NewTrade creates an open trade with a fresh ID.
func NewTrade(sessionID, symbol string, expiration time.Time, shortStrike, longStrike float64, quantity int, credit float64, reasonOpen string, openedAt time.Time) *Trade {
	return &Trade{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Symbol:      symbol,
		Expiration:  expiration,
		ShortStrike: shortStrike,
		LongStrike:  longStrike,
		Quantity:    quantity,
		Credit:      credit,
		Status:      StatusOpen,
		ReasonOpen:  reasonOpen,
		OpenedAt:    openedAt,
	}
}

// SpreadWidth returns the distance between the short and long strikes.
func (t *Trade) SpreadWidth() float64 {
	return t.ShortStrike - t.LongStrike
}

// MaxLoss returns the per-contract worst case, width minus credit.
func (t *Trade) MaxLoss() float64 {
	return t.SpreadWidth() - t.Credit
}

// DTE returns calendar days until expiration evaluated in loc.
// Negative once the expiration date has passed.
func (t *Trade) DTE(now time.Time, loc *time.Location) int {
	return util.DaysBetween(now, t.Expiration, loc)
}

// Close transitions an open trade to closed, recording the exit debit and
// realized P&L. Only open trades may close.
func (t *Trade) Close(debit, pnl float64, reason ExitReason, at time.Time) error {
	if t.Status != StatusOpen {
		return fmt.Errorf("cannot close trade %s in status %q", t.ID, t.Status)
	}
	t.Status = StatusClosed
	t.DebitToClose = debit
	t.PnL = pnl
	t.ReasonClose = string(reason)
	t.ClosedAt = at
	return nil
}
