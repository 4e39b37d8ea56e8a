package model

import "time"

// UsageRecord accumulates successful generations for one account, feature
// and billing period. Counts are monotonically non-decreasing within a
// period; rollover creates a new record rather than mutating the old one.
type UsageRecord struct {
	AccountID      string
	Feature        Feature
	PeriodStart    time.Time
	PeriodEnd      time.Time
	UsageCount     int64
	TotalCostCents int64
	UpdatedAt      time.Time
}

// CurrentPeriod returns the UTC calendar-month billing window containing now.
func CurrentPeriod(now time.Time) (start, end time.Time) {
	now = now.UTC()
	start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return start, end
}

// NextDayUTC returns the start of the next UTC day, used as the reset time
// for daily ceilings.
func NextDayUTC(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// UsageStats is the caller-facing snapshot returned by GetUsageStats.
// Remaining is the headroom before the next count ceiling trips: the
// smaller of what is left this month and what is left today.
type UsageStats struct {
	AccountID      string    `json:"account_id"`
	Feature        Feature   `json:"feature"`
	Used           int64     `json:"used"`
	Limit          int64     `json:"limit"`
	DailyUsed      int64     `json:"daily_used"`
	DailyLimit     int64     `json:"daily_limit,omitempty"`
	Remaining      int64     `json:"remaining"`
	CostUsedCents  int64     `json:"cost_used_cents"`
	CostLimitCents int64     `json:"cost_limit_cents"`
	ResetAt        time.Time `json:"reset_at"`
}
