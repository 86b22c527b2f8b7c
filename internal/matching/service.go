package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/arrowlimo/alms/internal/model"
	"github.com/arrowlimo/alms/internal/storage"
	"github.com/arrowlimo/alms/internal/telemetry"
)

// Store is the persistence the matcher reads and links through.
type Store interface {
	UnlinkedReceipts(ctx context.Context, r model.DateRange) ([]model.Receipt, error)
	UnmatchedDebits(ctx context.Context, r model.DateRange) ([]model.BankingTransaction, error)
	LinkReceipt(ctx context.Context, actor string, receiptID, transactionID int64) error
}

// Request selects the date range to match and whether to write links.
type Request struct {
	Range model.DateRange
	Apply bool
	Actor string
}

// Outcome is a Result plus what apply mode did with it.
type Outcome struct {
	Result
	Linked  int `json:"linked"`
	Skipped int `json:"skipped"`
}

// Service runs the matcher against storage.
type Service struct {
	store  Store
	opts   Options
	logger *slog.Logger
	linked metric.Int64Counter
}

// NewService creates a matching service.
func NewService(store Store, opts Options, logger *slog.Logger) *Service {
	linked, _ := telemetry.Meter("alms/matching").Int64Counter("alms.match.linked",
		metric.WithDescription("Receipts linked to banking debits"))
	return &Service{store: store, opts: opts, logger: logger, linked: linked}
}

// Run loads unlinked receipts and unmatched debits, matches them and, in
// apply mode, links each pair. Receipts linked concurrently by someone else
// are counted as skipped.
func (s *Service) Run(ctx context.Context, req Request) (Outcome, error) {
	var (
		receipts []model.Receipt
		debits   []model.BankingTransaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		receipts, err = s.store.UnlinkedReceipts(gctx, req.Range)
		return err
	})
	g.Go(func() error {
		var err error
		debits, err = s.store.UnmatchedDebits(gctx, req.Range)
		return err
	})
	if err := g.Wait(); err != nil {
		return Outcome{}, fmt.Errorf("matching: load: %w", err)
	}

	out := Outcome{Result: Assign(receipts, debits, s.opts)}
	if !req.Apply {
		return out, nil
	}
	for _, m := range out.Matches {
		err := s.store.LinkReceipt(ctx, req.Actor, m.ReceiptID, m.TransactionID)
		switch {
		case errors.Is(err, storage.ErrAlreadyLinked):
			out.Skipped++
			s.logger.Warn("matching: receipt already linked", "receipt_id", m.ReceiptID, "transaction_id", m.TransactionID)
		case err != nil:
			return out, fmt.Errorf("matching: link receipt %d: %w", m.ReceiptID, err)
		default:
			out.Linked++
		}
	}
	s.linked.Add(ctx, int64(out.Linked))
	s.logger.Info("matching: applied", "linked", out.Linked, "skipped", out.Skipped,
		"unmatched_receipts", len(out.UnmatchedReceipts), "unmatched_debits", len(out.UnmatchedDebits))
	return out, nil
}
