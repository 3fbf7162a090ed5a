package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/eddiefleurent/schrute_spreads/internal/models"
)

// MockStorage is an in-memory Interface implementation for tests.
type MockStorage struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	trades   map[string]*models.Trade
	orders   []models.Order
	fills    []models.Fill
	stats    map[string]*models.DailyStats
	order    []string // trade insertion order

	// Error injection for failure-path tests
	CreateTradeErr   error
	OpenTradesErr    error
	CloseTradeErr    error
	DailyStatsErr    error
	CreateOrderErr   error
	CreateSessionErr error
}

// Ensure MockStorage implements Interface at compile time.
var _ Interface = (*MockStorage)(nil)

// NewMockStorage creates an empty in-memory store.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		sessions: make(map[string]*models.Session),
		trades:   make(map[string]*models.Trade),
		stats:    make(map[string]*models.DailyStats),
	}
}

// CreateSession records a session.
func (m *MockStorage) CreateSession(sess *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateSessionErr != nil {
		return m.CreateSessionErr
	}
	cp := *sess
	m.sessions[sess.ID] = &cp
	return nil
}

// EndSession stamps a session's end time.
func (m *MockStorage) EndSession(id string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("no session with id %s", id)
	}
	sess.EndedAt = endedAt
	return nil
}

// GetSession returns a stored session for assertions.
func (m *MockStorage) GetSession(id string) *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[id]; ok {
		cp := *sess
		return &cp
	}
	return nil
}

// Sessions returns all recorded sessions.
func (m *MockStorage) Sessions() []models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, *sess)
	}
	return out
}

// CreateTrade records a trade.
func (m *MockStorage) CreateTrade(trade *models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateTradeErr != nil {
		return m.CreateTradeErr
	}
	cp := *trade
	m.trades[trade.ID] = &cp
	m.order = append(m.order, trade.ID)
	return nil
}

// GetOpenTrades returns open trades in insertion order.
func (m *MockStorage) GetOpenTrades() ([]models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OpenTradesErr != nil {
		return nil, m.OpenTradesErr
	}
	var out []models.Trade
	for _, id := range m.order {
		if t := m.trades[id]; t.Status == models.StatusOpen {
			out = append(out, *t)
		}
	}
	return out, nil
}

// GetOpenTradesForSymbol filters open trades by symbol.
func (m *MockStorage) GetOpenTradesForSymbol(symbol string) ([]models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OpenTradesErr != nil {
		return nil, m.OpenTradesErr
	}
	var out []models.Trade
	for _, id := range m.order {
		if t := m.trades[id]; t.Status == models.StatusOpen && t.Symbol == symbol {
			out = append(out, *t)
		}
	}
	return out, nil
}

// GetTradesOpenedBetween returns trades opened in [start, end).
func (m *MockStorage) GetTradesOpenedBetween(start, end time.Time) ([]models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Trade
	for _, id := range m.order {
		t := m.trades[id]
		if !t.OpenedAt.Before(start) && t.OpenedAt.Before(end) {
			out = append(out, *t)
		}
	}
	return out, nil
}

// GetAllTrades returns every trade in insertion order.
func (m *MockStorage) GetAllTrades() ([]models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Trade, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.trades[id])
	}
	return out, nil
}

// CloseTrade transitions an open trade to closed.
func (m *MockStorage) CloseTrade(id string, debit, pnl float64, reason models.ExitReason, closedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CloseTradeErr != nil {
		return m.CloseTradeErr
	}
	t, ok := m.trades[id]
	if !ok || t.Status != models.StatusOpen {
		return fmt.Errorf("no open trade with id %s", id)
	}
	return t.Close(debit, pnl, reason, closedAt)
}

// CreateOrder records an order submission.
func (m *MockStorage) CreateOrder(order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateOrderErr != nil {
		return m.CreateOrderErr
	}
	m.orders = append(m.orders, *order)
	return nil
}

// GetAllOrders returns recorded orders.
func (m *MockStorage) GetAllOrders() ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Order(nil), m.orders...), nil
}

// CreateFill records a fill.
func (m *MockStorage) CreateFill(fill *models.Fill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fills = append(m.fills, *fill)
	return nil
}

// GetAllFills returns recorded fills.
func (m *MockStorage) GetAllFills() ([]models.Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Fill(nil), m.fills...), nil
}

// GetOrCreateDailyStats returns the stats row for day.
func (m *MockStorage) GetOrCreateDailyStats(day string) (*models.DailyStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DailyStatsErr != nil {
		return nil, m.DailyStatsErr
	}
	if st, ok := m.stats[day]; ok {
		cp := *st
		return &cp, nil
	}
	st := &models.DailyStats{Day: day}
	m.stats[day] = st
	cp := *st
	return &cp, nil
}

// UpdateDailyStats stores the full stats row.
func (m *MockStorage) UpdateDailyStats(stats *models.DailyStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DailyStatsErr != nil {
		return m.DailyStatsErr
	}
	cp := *stats
	m.stats[stats.Day] = &cp
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MockStorage) Close() error { return nil }
