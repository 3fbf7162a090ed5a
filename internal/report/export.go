package report

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/eddiefleurent/schrute_spreads/internal/storage"
)

// Flat per-file row shapes. Times are RFC3339 in UTC, matching the store.
type tradeRow struct {
	ID           string  `csv:"id"`
	SessionID    string  `csv:"session_id"`
	Symbol       string  `csv:"symbol"`
	Expiration   string  `csv:"expiration"`
	ShortStrike  float64 `csv:"short_strike"`
	LongStrike   float64 `csv:"long_strike"`
	Quantity     int     `csv:"quantity"`
	Credit       float64 `csv:"credit"`
	DebitToClose float64 `csv:"debit_to_close"`
	PnL          float64 `csv:"pnl"`
	Status       string  `csv:"status"`
	ReasonOpen   string  `csv:"reason_open"`
	ReasonClose  string  `csv:"reason_close"`
	OpenedAt     string  `csv:"opened_at"`
	ClosedAt     string  `csv:"closed_at"`
}

type orderRow struct {
	ID            string  `csv:"id"`
	TradeID       string  `csv:"trade_id"`
	Action        string  `csv:"action"`
	Type          string  `csv:"type"`
	LimitPrice    float64 `csv:"limit_price"`
	Status        string  `csv:"status"`
	BrokerOrderID int     `csv:"broker_order_id"`
	Ts            string  `csv:"ts"`
}

type fillRow struct {
	ID       string  `csv:"id"`
	OrderID  string  `csv:"order_id"`
	Price    float64 `csv:"price"`
	Quantity int     `csv:"quantity"`
	Ts       string  `csv:"ts"`
}

// ExportCSV writes the full trade, order, and fill history next to
// basePath: basePath_trades.csv, basePath_orders.csv, basePath_fills.csv.
// A .csv suffix on basePath is stripped first.
func ExportCSV(store storage.Interface, basePath string) error {
	base := strings.TrimSuffix(basePath, ".csv")

	trades, err := store.GetAllTrades()
	if err != nil {
		return fmt.Errorf("loading trades: %w", err)
	}
	tradeRows := make([]*tradeRow, 0, len(trades))
	for i := range trades {
		t := &trades[i]
		tradeRows = append(tradeRows, &tradeRow{
			ID:           t.ID,
			SessionID:    t.SessionID,
			Symbol:       t.Symbol,
			Expiration:   t.Expiration.Format("2006-01-02"),
			ShortStrike:  t.ShortStrike,
			LongStrike:   t.LongStrike,
			Quantity:     t.Quantity,
			Credit:       t.Credit,
			DebitToClose: t.DebitToClose,
			PnL:          t.PnL,
			Status:       string(t.Status),
			ReasonOpen:   t.ReasonOpen,
			ReasonClose:  t.ReasonClose,
			OpenedAt:     csvTime(t.OpenedAt),
			ClosedAt:     csvTime(t.ClosedAt),
		})
	}
	if err := writeCSV(base+"_trades.csv", &tradeRows); err != nil {
		return err
	}

	orders, err := store.GetAllOrders()
	if err != nil {
		return fmt.Errorf("loading orders: %w", err)
	}
	orderRows := make([]*orderRow, 0, len(orders))
	for i := range orders {
		o := &orders[i]
		orderRows = append(orderRows, &orderRow{
			ID:            o.ID,
			TradeID:       o.TradeID,
			Action:        string(o.Action),
			Type:          string(o.Type),
			LimitPrice:    o.LimitPrice,
			Status:        o.Status,
			BrokerOrderID: o.BrokerOrderID,
			Ts:            csvTime(o.Ts),
		})
	}
	if err := writeCSV(base+"_orders.csv", &orderRows); err != nil {
		return err
	}

	fills, err := store.GetAllFills()
	if err != nil {
		return fmt.Errorf("loading fills: %w", err)
	}
	fillRows := make([]*fillRow, 0, len(fills))
	for i := range fills {
		f := &fills[i]
		fillRows = append(fillRows, &fillRow{
			ID:       f.ID,
			OrderID:  f.OrderID,
			Price:    f.Price,
			Quantity: f.Quantity,
			Ts:       csvTime(f.Ts),
		})
	}
	return writeCSV(base+"_fills.csv", &fillRows)
}

func writeCSV(path string, rows interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if err := gocsv.MarshalFile(rows, f); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func csvTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
