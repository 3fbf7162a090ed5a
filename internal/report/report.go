// Package report renders daily summaries and CSV exports from the trade
// store.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/eddiefleurent/schrute_spreads/internal/models"
	"github.com/eddiefleurent/schrute_spreads/internal/storage"
)

// Reporter formats store contents for human consumption.
type Reporter struct {
	store storage.Interface
	loc   *time.Location
	nowFn func() time.Time
}

// NewReporter creates a reporter evaluating dates in loc.
func NewReporter(store storage.Interface, loc *time.Location) *Reporter {
	return &Reporter{store: store, loc: loc, nowFn: time.Now}
}

// WithNow overrides the clock, for tests.
func (r *Reporter) WithNow(nowFn func() time.Time) *Reporter {
	r.nowFn = nowFn
	return r
}

// Daily renders today's stats, today's trades, and all open positions.
func (r *Reporter) Daily() (string, error) {
	now := r.nowFn().In(r.loc)
	day := now.Format(models.DayFormat)

	stats, err := r.store.GetOrCreateDailyStats(day)
	if err != nil {
		return "", fmt.Errorf("loading daily stats: %w", err)
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.loc)
	todays, err := r.store.GetTradesOpenedBetween(dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return "", fmt.Errorf("loading today's trades: %w", err)
	}

	open, err := r.store.GetOpenTrades()
	if err != nil {
		return "", fmt.Errorf("loading open trades: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Daily report %s\n", day)
	fmt.Fprintf(&b, "  trades: %d  wins: %d  losses: %d  win rate: %.0f%%\n",
		stats.TradesCount, stats.WinsCount, stats.LossesCount, stats.WinRate()*100)
	fmt.Fprintf(&b, "  realized: %+.2f  unrealized: %+.2f  total: %+.2f\n",
		stats.RealizedPnL, stats.UnrealizedPnL, stats.TotalPnL())

	fmt.Fprintf(&b, "\nTrades opened today: %d\n", len(todays))
	for i := range todays {
		t := &todays[i]
		fmt.Fprintf(&b, "  %s %s %.0f/%.0f x%d credit %.2f [%s]%s\n",
			t.Symbol, t.Expiration.Format("2006-01-02"),
			t.ShortStrike, t.LongStrike, t.Quantity, t.Credit, t.Status,
			closeSuffix(t))
	}

	fmt.Fprintf(&b, "\nOpen positions: %d\n", len(open))
	for i := range open {
		t := &open[i]
		fmt.Fprintf(&b, "  %s %s %.0f/%.0f x%d credit %.2f dte %d\n",
			t.Symbol, t.Expiration.Format("2006-01-02"),
			t.ShortStrike, t.LongStrike, t.Quantity, t.Credit,
			t.DTE(now, r.loc))
	}
	return b.String(), nil
}

func closeSuffix(t *models.Trade) string {
	if t.Status != models.StatusClosed {
		return ""
	}
	return fmt.Sprintf(" closed %s pnl %+.2f", t.ReasonClose, t.PnL)
}
