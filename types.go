package alms

import (
	"time"

	"github.com/google/uuid"
)

// Run is the public view of one reconciliation pass.
type Run struct {
	ID            uuid.UUID
	Apply         bool
	Checks        []string
	StartedBy     string
	StartedAt     time.Time
	CompletedAt   *time.Time
	FindingsCount int
	FixedCount    int
	FailedCount   int
}

// Finding is one violated bookkeeping rule. Expected and Actual are
// two-decimal amounts, empty when the check does not compare amounts.
type Finding struct {
	Check      string
	Severity   string // error | warning | info
	EntityType string // charter, payment, receipt or reserve_number
	EntityKey  string
	Expected   string
	Actual     string
	Message    string
	Fixed      bool
}
