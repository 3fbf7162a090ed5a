package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	// SQLite driver registration
	_ "github.com/mattn/go-sqlite3"

	"github.com/eddiefleurent/schrute_spreads/internal/models"
)

// SQLiteStorage implements Interface using SQLite.
type SQLiteStorage struct {
	db *sql.DB
	mu sync.Mutex
}

// Ensure SQLiteStorage implements Interface at compile time.
var _ Interface = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens (or creates) the database at path.
// Use ":memory:" for an ephemeral test database.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer keeps SQLite happy under WAL.
	db.SetMaxOpenConns(1)

	s := &SQLiteStorage{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		notes TEXT,
		started_at TEXT NOT NULL,
		ended_at TEXT
	);

	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		symbol TEXT NOT NULL,
		expiration TEXT NOT NULL,
		short_strike REAL NOT NULL,
		long_strike REAL NOT NULL,
		quantity INTEGER NOT NULL,
		credit REAL NOT NULL,
		debit_to_close REAL,
		pnl REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		reason_open TEXT,
		reason_close TEXT,
		opened_at TEXT NOT NULL,
		closed_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		trade_id TEXT NOT NULL,
		action TEXT NOT NULL,
		type TEXT NOT NULL,
		limit_price REAL NOT NULL,
		status TEXT,
		broker_order_id INTEGER,
		raw TEXT,
		ts TEXT NOT NULL,
		FOREIGN KEY (trade_id) REFERENCES trades(id)
	);

	CREATE TABLE IF NOT EXISTS fills (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		price REAL NOT NULL,
		quantity INTEGER NOT NULL,
		ts TEXT NOT NULL,
		FOREIGN KEY (order_id) REFERENCES orders(id)
	);

	CREATE TABLE IF NOT EXISTS daily_stats (
		day TEXT PRIMARY KEY,
		realized_pnl REAL NOT NULL DEFAULT 0,
		unrealized_pnl REAL NOT NULL DEFAULT 0,
		trades_count INTEGER NOT NULL DEFAULT 0,
		wins_count INTEGER NOT NULL DEFAULT 0,
		losses_count INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// ---- sessions ----

// CreateSession inserts a new session audit record.
func (s *SQLiteStorage) CreateSession(sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, mode, notes, started_at) VALUES (?, ?, ?, ?)`,
		sess.ID, string(sess.Mode), sess.Notes, sess.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// EndSession stamps the session end time.
func (s *SQLiteStorage) EndSession(id string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`UPDATE sessions SET ended_at = ? WHERE id = ?`,
		endedAt.UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("ending session: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("ending session: no session with id %s", id)
	}
	return nil
}

// ---- trades ----

// CreateTrade inserts a new trade row.
func (s *SQLiteStorage) CreateTrade(trade *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO trades (id, session_id, symbol, expiration, short_strike, long_strike,
			quantity, credit, pnl, status, reason_open, opened_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ID, trade.SessionID, trade.Symbol,
		trade.Expiration.UTC().Format(time.RFC3339Nano),
		trade.ShortStrike, trade.LongStrike, trade.Quantity, trade.Credit,
		trade.PnL, string(trade.Status), trade.ReasonOpen,
		trade.OpenedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("creating trade: %w", err)
	}
	return nil
}

// CloseTrade marks an open trade closed with its exit economics.
func (s *SQLiteStorage) CloseTrade(id string, debit, pnl float64, reason models.ExitReason, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`UPDATE trades SET status = ?, debit_to_close = ?, pnl = ?, reason_close = ?, closed_at = ?
		 WHERE id = ? AND status = ?`,
		string(models.StatusClosed), debit, pnl, string(reason),
		closedAt.UTC().Format(time.RFC3339Nano), id, string(models.StatusOpen),
	)
	if err != nil {
		return fmt.Errorf("closing trade: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("closing trade: no open trade with id %s", id)
	}
	return nil
}

// GetOpenTrades returns all open trades ordered by open time.
func (s *SQLiteStorage) GetOpenTrades() ([]models.Trade, error) {
	return s.queryTrades(`WHERE status = ? ORDER BY opened_at`, string(models.StatusOpen))
}

// GetOpenTradesForSymbol returns open trades on one underlying.
func (s *SQLiteStorage) GetOpenTradesForSymbol(symbol string) ([]models.Trade, error) {
	return s.queryTrades(`WHERE status = ? AND symbol = ? ORDER BY opened_at`, string(models.StatusOpen), symbol)
}

// GetTradesOpenedBetween returns trades opened in [start, end).
func (s *SQLiteStorage) GetTradesOpenedBetween(start, end time.Time) ([]models.Trade, error) {
	return s.queryTrades(
		`WHERE opened_at >= ? AND opened_at < ? ORDER BY opened_at`,
		start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano),
	)
}

// GetAllTrades returns every trade ordered by open time.
func (s *SQLiteStorage) GetAllTrades() ([]models.Trade, error) {
	return s.queryTrades(`ORDER BY opened_at`)
}

func (s *SQLiteStorage) queryTrades(clause string, args ...interface{}) ([]models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, session_id, symbol, expiration, short_strike, long_strike, quantity,
			credit, debit_to_close, pnl, status, reason_open, reason_close, opened_at, closed_at
		 FROM trades `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("querying trades: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		var sessionID, reasonOpen, reasonClose sql.NullString
		var debit sql.NullFloat64
		var expiration, openedAt string
		var closedAt sql.NullString

		if err := rows.Scan(&t.ID, &sessionID, &t.Symbol, &expiration, &t.ShortStrike,
			&t.LongStrike, &t.Quantity, &t.Credit, &debit, &t.PnL, (*string)(&t.Status),
			&reasonOpen, &reasonClose, &openedAt, &closedAt); err != nil {
			return nil, fmt.Errorf("scanning trade: %w", err)
		}
		t.SessionID = sessionID.String
		t.ReasonOpen = reasonOpen.String
		t.ReasonClose = reasonClose.String
		t.DebitToClose = debit.Float64
		if t.Expiration, err = time.Parse(time.RFC3339Nano, expiration); err != nil {
			return nil, fmt.Errorf("parsing expiration: %w", err)
		}
		if t.OpenedAt, err = time.Parse(time.RFC3339Nano, openedAt); err != nil {
			return nil, fmt.Errorf("parsing opened_at: %w", err)
		}
		if closedAt.Valid {
			if t.ClosedAt, err = time.Parse(time.RFC3339Nano, closedAt.String); err != nil {
				return nil, fmt.Errorf("parsing closed_at: %w", err)
			}
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ---- orders / fills ----

// CreateOrder inserts an accepted broker submission record.
func (s *SQLiteStorage) CreateOrder(order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO orders (id, trade_id, action, type, limit_price, status, broker_order_id, raw, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.TradeID, string(order.Action), string(order.Type),
		order.LimitPrice, order.Status, order.BrokerOrderID, order.Raw,
		order.Ts.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("creating order: %w", err)
	}
	return nil
}

// GetAllOrders returns every order ordered by timestamp.
func (s *SQLiteStorage) GetAllOrders() ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, trade_id, action, type, limit_price, status, broker_order_id, raw, ts
		 FROM orders ORDER BY ts`)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		var status, raw sql.NullString
		var brokerID sql.NullInt64
		var ts string
		if err := rows.Scan(&o.ID, &o.TradeID, (*string)(&o.Action), (*string)(&o.Type),
			&o.LimitPrice, &status, &brokerID, &raw, &ts); err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		o.Status = status.String
		o.Raw = raw.String
		o.BrokerOrderID = int(brokerID.Int64)
		if o.Ts, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parsing order ts: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// CreateFill inserts an execution report row.
func (s *SQLiteStorage) CreateFill(fill *models.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO fills (id, order_id, price, quantity, ts) VALUES (?, ?, ?, ?, ?)`,
		fill.ID, fill.OrderID, fill.Price, fill.Quantity,
		fill.Ts.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("creating fill: %w", err)
	}
	return nil
}

// GetAllFills returns every fill ordered by timestamp.
func (s *SQLiteStorage) GetAllFills() ([]models.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id, order_id, price, quantity, ts FROM fills ORDER BY ts`)
	if err != nil {
		return nil, fmt.Errorf("querying fills: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var fills []models.Fill
	for rows.Next() {
		var f models.Fill
		var ts string
		if err := rows.Scan(&f.ID, &f.OrderID, &f.Price, &f.Quantity, &ts); err != nil {
			return nil, fmt.Errorf("scanning fill: %w", err)
		}
		if f.Ts, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parsing fill ts: %w", err)
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// ---- daily stats ----

// GetOrCreateDailyStats returns the stats row for day, creating a zeroed
// row if none exists.
func (s *SQLiteStorage) GetOrCreateDailyStats(day string) (*models.DailyStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO daily_stats (day) VALUES (?)`, day); err != nil {
		return nil, fmt.Errorf("creating daily stats: %w", err)
	}

	var st models.DailyStats
	err := s.db.QueryRow(
		`SELECT day, realized_pnl, unrealized_pnl, trades_count, wins_count, losses_count
		 FROM daily_stats WHERE day = ?`, day,
	).Scan(&st.Day, &st.RealizedPnL, &st.UnrealizedPnL, &st.TradesCount, &st.WinsCount, &st.LossesCount)
	if err != nil {
		return nil, fmt.Errorf("reading daily stats: %w", err)
	}
	return &st, nil
}

// UpdateDailyStats persists the full stats row.
func (s *SQLiteStorage) UpdateDailyStats(stats *models.DailyStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO daily_stats (day, realized_pnl, unrealized_pnl, trades_count, wins_count, losses_count)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(day) DO UPDATE SET
			realized_pnl = excluded.realized_pnl,
			unrealized_pnl = excluded.unrealized_pnl,
			trades_count = excluded.trades_count,
			wins_count = excluded.wins_count,
			losses_count = excluded.losses_count`,
		stats.Day, stats.RealizedPnL, stats.UnrealizedPnL,
		stats.TradesCount, stats.WinsCount, stats.LossesCount,
	)
	if err != nil {
		return fmt.Errorf("updating daily stats: %w", err)
	}
	return nil
}
