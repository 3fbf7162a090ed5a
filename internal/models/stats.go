package models

import "time"

// DayFormat is the storage key format for daily statistics rows.
const DayFormat = "2006-01-02"

// DailyStats accumulates per-calendar-day trading results. Day is the
// calendar date in the configured market timezone.
type DailyStats struct {
	Day           string  `json:"day"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	TradesCount   int     `json:"trades_count"`
	WinsCount     int     `json:"wins_count"`
	LossesCount   int     `json:"losses_count"`
}

// TotalPnL is realized plus unrealized for the day.
func (s *DailyStats) TotalPnL() float64 {
	return s.RealizedPnL + s.UnrealizedPnL
}

// WinRate returns wins over decided trades, 0 when nothing has resolved.
func (s *DailyStats) WinRate() float64 {
	decided := s.WinsCount + s.LossesCount
	if decided == 0 {
		return 0
	}
	return float64(s.WinsCount) / float64(decided)
}

// SessionMode identifies what kind of run a session record covers.
type SessionMode string

const (
	// ModeRun is a full entry-and-manage session.
	ModeRun SessionMode = "run"
	// ModeManage is a manage-only session.
	ModeManage SessionMode = "manage"
)

// Session is the audit record bracketing a scheduler run.
type Session struct {
	ID        string      `json:"id"`
	Mode      SessionMode `json:"mode"`
	Notes     string      `json:"notes,omitempty"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   time.Time   `json:"ended_at,omitempty"`
}
