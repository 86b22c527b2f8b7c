package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/arrowlimo/alms/internal/model"
	"github.com/arrowlimo/alms/internal/storage"
	"github.com/arrowlimo/alms/internal/telemetry"
)

// Store is the subset of storage.DB the reconciliation job needs.
type Store interface {
	CharterLedgers(ctx context.Context, reserveFilter *string) ([]model.CharterLedger, error)
	OrphanPayments(ctx context.Context, reserveFilter *string) ([]model.PaymentGroup, error)
	DuplicatePaymentGroups(ctx context.Context, reserveFilter *string) ([]model.PaymentGroup, error)
	UnlinkedChartedPayments(ctx context.Context, reserveFilter *string) ([]model.UnlinkedPayment, error)
	ReceiptLinks(ctx context.Context) ([]model.ReceiptLink, error)
	ReceiptsForGST(ctx context.Context) ([]model.Receipt, error)

	ApplyCharterFix(ctx context.Context, runID uuid.UUID, actor string, fix storage.CharterFix) (model.Charter, error)
	LinkPaymentToCharter(ctx context.Context, runID uuid.UUID, actor string, u model.UnlinkedPayment) error

	CreateRun(ctx context.Context, run model.ReconciliationRun) error
	CompleteRun(ctx context.Context, run model.ReconciliationRun) error
	InsertFindings(ctx context.Context, findings []model.Finding) error
	Notify(ctx context.Context, channel, payload string) error
}

// Hook is called after every completed run.
type Hook interface {
	OnRunComplete(ctx context.Context, run model.ReconciliationRun, findings []model.Finding) error
}

// Request selects what a run checks and whether it applies fixes.
type Request struct {
	Checks  []string
	Reserve *string
	Apply   bool
	Actor   string
}

// Result is a completed run with its findings.
type Result struct {
	Run      model.ReconciliationRun `json:"run"`
	Findings []model.Finding         `json:"findings"`
}

// Service runs reconciliation passes.
type Service struct {
	store  Store
	opts   Options
	hooks  []Hook
	logger *slog.Logger

	retry storage.RetryPolicy

	findingsCounter metric.Int64Counter
	fixesCounter    metric.Int64Counter
}

// New creates a reconciliation service.
func New(store Store, opts Options, logger *slog.Logger, hooks ...Hook) *Service {
	meter := telemetry.Meter("alms/reconcile")
	findings, _ := meter.Int64Counter("alms.reconcile.findings",
		metric.WithDescription("Findings reported by reconciliation runs"),
	)
	fixes, _ := meter.Int64Counter("alms.reconcile.fixes",
		metric.WithDescription("Fixes applied (or failed) by reconciliation runs"),
	)
	return &Service{
		store:           store,
		opts:            opts,
		hooks:           hooks,
		logger:          logger,
		retry:           storage.DefaultRetryPolicy(logger),
		findingsCounter: findings,
		fixesCounter:    fixes,
	}
}

// snapshot is everything one run reads.
type snapshot struct {
	ledgers  []model.CharterLedger
	orphans  []model.PaymentGroup
	dups     []model.PaymentGroup
	unlinked []model.UnlinkedPayment
	links    []model.ReceiptLink
	taxable  []model.Receipt
}

func (s *Service) load(ctx context.Context, checks CheckSet, reserve *string) (snapshot, error) {
	var snap snapshot
	g, gctx := errgroup.WithContext(ctx)
	if checks.Any(CheckChargeTotal, CheckMissingCharges, CheckPaidAmount, CheckBalance, CheckOverpaid, CheckCancelledBalance) {
		g.Go(func() (err error) {
			snap.ledgers, err = s.store.CharterLedgers(gctx, reserve)
			return err
		})
	}
	if checks[CheckOrphanPayment] {
		g.Go(func() (err error) {
			snap.orphans, err = s.store.OrphanPayments(gctx, reserve)
			return err
		})
	}
	if checks[CheckDuplicatePayment] {
		g.Go(func() (err error) {
			snap.dups, err = s.store.DuplicatePaymentGroups(gctx, reserve)
			return err
		})
	}
	if checks[CheckPaymentLink] {
		g.Go(func() (err error) {
			snap.unlinked, err = s.store.UnlinkedChartedPayments(gctx, reserve)
			return err
		})
	}
	// Receipt checks are not scoped to a reserve number.
	if reserve == nil && checks[CheckReceiptBankingAmount] {
		g.Go(func() (err error) {
			snap.links, err = s.store.ReceiptLinks(gctx)
			return err
		})
	}
	if reserve == nil && checks[CheckReceiptGST] {
		g.Go(func() (err error) {
			snap.taxable, err = s.store.ReceiptsForGST(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return snapshot{}, fmt.Errorf("reconcile: load data: %w", err)
	}
	return snap, nil
}

// charterPlan is the findings and fix for one charter.
type charterPlan struct {
	findings []int
	fix      storage.CharterFix
}

// evaluate runs the selected checks against snap without touching the database.
func evaluate(snap snapshot, checks CheckSet, opts Options) ([]model.Finding, []charterPlan, map[int64]int) {
	var findings []model.Finding
	var plans []charterPlan
	for _, l := range snap.ledgers {
		fs, fix := EvaluateCharter(l, checks, opts)
		if len(fs) == 0 {
			continue
		}
		plan := charterPlan{fix: fix}
		for _, f := range fs {
			if f.Fixable {
				plan.findings = append(plan.findings, len(findings))
			}
			findings = append(findings, f)
		}
		if !fix.Empty() {
			plans = append(plans, plan)
		}
	}
	findings = append(findings, EvaluateOrphans(snap.orphans)...)
	findings = append(findings, EvaluateDuplicates(snap.dups)...)

	linkIdx := make(map[int64]int, len(snap.unlinked))
	for i, f := range EvaluatePaymentLinks(snap.unlinked) {
		linkIdx[snap.unlinked[i].PaymentID] = len(findings)
		findings = append(findings, f)
	}
	findings = append(findings, EvaluateReceiptLinks(snap.links, opts)...)
	findings = append(findings, EvaluateGST(snap.taxable, opts)...)
	return findings, plans, linkIdx
}

// Run performs one reconciliation pass. In apply mode each charter's fixes run
// in their own transaction with retry on serialization failures; a charter
// that still fails is counted and the run continues. A run that fails after
// it was created is still closed, carrying the error.
func (s *Service) Run(ctx context.Context, req Request) (_ Result, err error) {
	checks, err := ParseChecks(req.Checks)
	if err != nil {
		return Result{}, err
	}

	run := model.ReconciliationRun{
		ID:            uuid.New(),
		Mode:          model.RunModeAudit,
		Checks:        checks.Names(),
		ReserveFilter: req.Reserve,
		StartedBy:     req.Actor,
		StartedAt:     time.Now().UTC(),
	}
	if req.Apply {
		run.Mode = model.RunModeApply
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return Result{}, fmt.Errorf("reconcile: %w", err)
	}
	defer func() {
		if err != nil {
			s.closeFailed(ctx, run, err)
		}
	}()

	snap, err := s.load(ctx, checks, req.Reserve)
	if err != nil {
		return Result{}, err
	}
	findings, plans, linkIdx := evaluate(snap, checks, s.opts)
	for i := range findings {
		findings[i].ID = uuid.New()
		findings[i].RunID = run.ID
	}

	if req.Apply {
		s.apply(ctx, &run, findings, plans, snap.unlinked, linkIdx)
	}

	if err := s.store.InsertFindings(ctx, findings); err != nil {
		return Result{}, fmt.Errorf("reconcile: %w", err)
	}
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.FindingsCount = len(findings)
	if err := s.store.CompleteRun(ctx, run); err != nil {
		return Result{}, fmt.Errorf("reconcile: %w", err)
	}

	s.record(ctx, run, findings)
	s.publish(ctx, run, findings)
	if findings == nil {
		findings = []model.Finding{}
	}
	return Result{Run: run, Findings: findings}, nil
}

// closeFailed marks run complete with its error so it never looks in progress.
func (s *Service) closeFailed(ctx context.Context, run model.ReconciliationRun, cause error) {
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Error = cause.Error()
	if err := s.store.CompleteRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Error("reconcile: close failed run", "run_id", run.ID, "cause", cause, "error", err)
		return
	}
	s.logger.Warn("reconcile: run failed", "run_id", run.ID, "error", cause)
}

func (s *Service) apply(ctx context.Context, run *model.ReconciliationRun, findings []model.Finding, plans []charterPlan, unlinked []model.UnlinkedPayment, linkIdx map[int64]int) {
	for _, p := range plans {
		err := storage.WithRetry(ctx, s.retry, "apply_charter_fix", func() error {
			_, err := s.store.ApplyCharterFix(ctx, run.ID, run.StartedBy, p.fix)
			return err
		}, "run_id", run.ID, "reserve_number", p.fix.ReserveNumber)
		if err != nil {
			run.FailedCount++
			s.logger.Error("reconcile: charter fix failed",
				"run_id", run.ID, "reserve_number", p.fix.ReserveNumber, "error", err)
			continue
		}
		for _, i := range p.findings {
			findings[i].Fixed = true
			run.FixedCount++
		}
	}

	for _, u := range unlinked {
		i, ok := linkIdx[u.PaymentID]
		if !ok {
			continue
		}
		err := storage.WithRetry(ctx, s.retry, "link_payment", func() error {
			return s.store.LinkPaymentToCharter(ctx, run.ID, run.StartedBy, u)
		}, "run_id", run.ID, "payment_id", u.PaymentID)
		if err != nil {
			run.FailedCount++
			s.logger.Error("reconcile: payment link failed",
				"run_id", run.ID, "payment_id", u.PaymentID, "error", err)
			continue
		}
		findings[i].Fixed = true
		run.FixedCount++
	}
}

func (s *Service) record(ctx context.Context, run model.ReconciliationRun, findings []model.Finding) {
	bySeverity := map[model.Severity]int64{}
	for _, f := range findings {
		bySeverity[f.Severity]++
	}
	for sev, n := range bySeverity {
		s.findingsCounter.Add(ctx, n, metric.WithAttributes(
			attribute.String("severity", string(sev)),
			attribute.String("mode", string(run.Mode)),
		))
	}
	if run.FixedCount > 0 {
		s.fixesCounter.Add(ctx, int64(run.FixedCount), metric.WithAttributes(attribute.String("outcome", "fixed")))
	}
	if run.FailedCount > 0 {
		s.fixesCounter.Add(ctx, int64(run.FailedCount), metric.WithAttributes(attribute.String("outcome", "failed")))
	}
	s.logger.Info("reconcile: run complete",
		"run_id", run.ID, "mode", run.Mode, "findings", run.FindingsCount,
		"fixed", run.FixedCount, "failed", run.FailedCount)
}

// RunSummary is the NOTIFY payload for a completed run.
type RunSummary struct {
	RunID    uuid.UUID     `json:"run_id"`
	Mode     model.RunMode `json:"mode"`
	Findings int           `json:"findings"`
	Fixed    int           `json:"fixed"`
	Failed   int           `json:"failed"`
}

func (s *Service) publish(ctx context.Context, run model.ReconciliationRun, findings []model.Finding) {
	payload, err := json.Marshal(RunSummary{
		RunID: run.ID, Mode: run.Mode, Findings: run.FindingsCount, Fixed: run.FixedCount, Failed: run.FailedCount,
	})
	if err == nil {
		if err := s.store.Notify(ctx, storage.ChannelRuns, string(payload)); err != nil {
			s.logger.Warn("reconcile: notify failed", "run_id", run.ID, "error", err)
		}
	}
	for _, h := range s.hooks {
		if err := h.OnRunComplete(ctx, run, findings); err != nil {
			s.logger.Warn("reconcile: hook failed", "run_id", run.ID, "error", err)
		}
	}
}
