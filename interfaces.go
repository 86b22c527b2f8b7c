package alms

import "context"

// FindingHook receives every completed reconciliation run with its findings.
// Hooks run synchronously after the run is recorded; an error is logged and
// does not fail the run.
type FindingHook interface {
	OnRunComplete(ctx context.Context, run Run, findings []Finding) error
}
