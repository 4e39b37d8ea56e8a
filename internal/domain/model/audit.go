package model

import "time"

// GenerationAudit is one back-office history row per dispatch outcome.
type GenerationAudit struct {
	ID        string
	AccountID string
	Feature   Feature
	Provider  string
	Outcome   string // success | cached | failed | rejected | denied
	CostCents int64
	LatencyMs int64
	Error     string
	CreatedAt time.Time
}
