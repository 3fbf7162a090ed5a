// Package storage provides trade and statistics persistence.
package storage

import (
	"time"

	"github.com/eddiefleurent/schrute_spreads/internal/models"
)

// Interface defines the contract for trade data persistence.
//
// Implementations must be safe for concurrent use - callers can assume all
// methods are goroutine-safe.
type Interface interface {
	// Sessions
	CreateSession(sess *models.Session) error
	EndSession(id string, endedAt time.Time) error

	// Trades
	CreateTrade(trade *models.Trade) error
	GetOpenTrades() ([]models.Trade, error)
	GetOpenTradesForSymbol(symbol string) ([]models.Trade, error)
	GetTradesOpenedBetween(start, end time.Time) ([]models.Trade, error)
	GetAllTrades() ([]models.Trade, error)
	CloseTrade(id string, debit, pnl float64, reason models.ExitReason, closedAt time.Time) error

	// Orders and fills
	CreateOrder(order *models.Order) error
	GetAllOrders() ([]models.Order, error)
	CreateFill(fill *models.Fill) error
	GetAllFills() ([]models.Fill, error)

	// Daily statistics, keyed by models.DayFormat dates
	GetOrCreateDailyStats(day string) (*models.DailyStats, error)
	UpdateDailyStats(stats *models.DailyStats) error

	Close() error
}

// NewStorage creates the SQLite-backed storage implementation.
func NewStorage(path string) (Interface, error) {
	return NewSQLiteStorage(path)
}
