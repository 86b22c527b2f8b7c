package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Severity ranks how serious a reconciliation finding is.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// RunMode distinguishes read-only audits from runs that apply fixes.
type RunMode string

const (
	RunModeAudit RunMode = "audit"
	RunModeApply RunMode = "apply"
)

// Finding is one violated invariant discovered by a reconciliation run.
type Finding struct {
	ID         uuid.UUID        `json:"id"`
	RunID      uuid.UUID        `json:"run_id"`
	Check      string           `json:"check"`
	Severity   Severity         `json:"severity"`
	EntityType string           `json:"entity_type"`
	EntityKey  string           `json:"entity_key"`
	Expected   *decimal.Decimal `json:"expected,omitempty"`
	Actual     *decimal.Decimal `json:"actual,omitempty"`
	Message    string           `json:"message"`
	Fixable    bool             `json:"fixable"`
	Fixed      bool             `json:"fixed"`
}

// ReconciliationRun is the record of one audit or apply pass.
type ReconciliationRun struct {
	ID            uuid.UUID  `json:"id"`
	Mode          RunMode    `json:"mode"`
	Checks        []string   `json:"checks"`
	ReserveFilter *string    `json:"reserve_filter,omitempty"`
	StartedBy     string     `json:"started_by"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	FindingsCount int        `json:"findings_count"`
	FixedCount    int        `json:"fixed_count"`
	FailedCount   int        `json:"failed_count"`
	Error         string     `json:"error,omitempty"`
}
