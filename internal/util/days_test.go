package util

import (
	"testing"
	"time"
)

func TestDaysBetween(t *testing.T) {
	et := time.FixedZone("ET", -5*3600)

	tests := []struct {
		name     string
		from     time.Time
		to       time.Time
		loc      *time.Location
		expected int
	}{
		{
			name:     "same day",
			from:     time.Date(2024, 3, 15, 9, 30, 0, 0, et),
			to:       time.Date(2024, 3, 15, 16, 0, 0, 0, et),
			loc:      et,
			expected: 0,
		},
		{
			name:     "full week ahead",
			from:     time.Date(2024, 3, 15, 10, 0, 0, 0, et),
			to:       time.Date(2024, 3, 22, 10, 0, 0, 0, et),
			loc:      et,
			expected: 7,
		},
		{
			name:     "expired yesterday is negative",
			from:     time.Date(2024, 3, 15, 10, 0, 0, 0, et),
			to:       time.Date(2024, 3, 14, 10, 0, 0, 0, et),
			loc:      et,
			expected: -1,
		},
		{
			name: "fractional day truncates toward earlier boundary",
			// 23 hours apart but crossing midnight counts as one day.
			from:     time.Date(2024, 3, 15, 23, 0, 0, 0, et),
			to:       time.Date(2024, 3, 16, 22, 0, 0, 0, et),
			loc:      et,
			expected: 1,
		},
		{
			name: "UTC instant maps to earlier ET calendar day",
			// 2024-03-16 02:00 UTC is still 2024-03-15 in ET.
			from:     time.Date(2024, 3, 15, 10, 0, 0, 0, et),
			to:       time.Date(2024, 3, 16, 2, 0, 0, 0, time.UTC),
			loc:      et,
			expected: 0,
		},
		{
			name:     "nil location falls back to UTC",
			from:     time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
			to:       time.Date(2024, 3, 18, 10, 0, 0, 0, time.UTC),
			loc:      nil,
			expected: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DaysBetween(tt.from, tt.to, tt.loc)
			if result != tt.expected {
				t.Errorf("DaysBetween(%v, %v) = %d, expected %d", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}
