// Package scheduler фоновая сверка зависших PENDING-транзакций с банком.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/docgen-billing/internal/lib/sl"
	"github.com/magabrotheeeer/docgen-billing/internal/models"
	"github.com/magabrotheeeer/docgen-billing/internal/services/reconcile"
)

// TransactionRepository выборка кандидатов для сверки.
type TransactionRepository interface {
	ListPendingTransactions(ctx context.Context, olderThan, newerThan time.Time, limit int) ([]*models.Transaction, error)
}

// Reconciler опрос банка и применение статуса к одной транзакции.
type Reconciler interface {
	ReconcileByPolling(ctx context.Context, operationID string, source reconcile.Source) (*reconcile.Result, error)
}

// SweepMetrics учёт проходов.
type SweepMetrics interface {
	ObserveSweep(d time.Duration, activated, failed, skipped int)
}

// Options параметры выборки.
type Options struct {
	Debounce  time.Duration // Транзакции моложе этого возраста не трогаем
	Lookback  time.Duration // И старше этого тоже
	BatchSize int
}

// Summary итог одного прохода.
type Summary struct {
	Checked   int       `json:"checked"`
	Activated int       `json:"activated"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Timestamp time.Time `json:"timestamp"`
}

// SchedulerService проходит по зависшим транзакциям и сверяет каждую с банком.
type SchedulerService struct {
	repo       TransactionRepository
	reconciler Reconciler
	metrics    SweepMetrics
	opts       Options
	log        *slog.Logger
	now        func() time.Time
}

// NewSchedulerService создает новый экземпляр SchedulerService. metrics может быть nil.
func NewSchedulerService(repo TransactionRepository, reconciler Reconciler, opts Options, metrics SweepMetrics, log *slog.Logger) *SchedulerService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &SchedulerService{
		repo:       repo,
		reconciler: reconciler,
		metrics:    metrics,
		opts:       opts,
		log:        log,
		now:        time.Now,
	}
}

// ActivatePending выполняет один проход сверки.
// Ошибка отдельной транзакции засчитывается как skipped и проход не прерывает.
// Ошибка возвращается только если не удалось получить список кандидатов.
func (s *SchedulerService) ActivatePending(ctx context.Context) (*Summary, error) {
	const op = "services.scheduler.ActivatePending"
	log := s.log.With(slog.String("op", op))

	started := s.now()
	summary := &Summary{Timestamp: started}

	candidates, err := s.repo.ListPendingTransactions(ctx,
		started.Add(-s.opts.Debounce),
		started.Add(-s.opts.Lookback),
		s.opts.BatchSize)
	if err != nil {
		log.Error("failed to list pending transactions", sl.Err(err))
		return nil, err
	}
	if len(candidates) == 0 {
		log.Info("no pending transactions found")
		return summary, nil
	}
	log.Info("found pending transactions", slog.Int("count", len(candidates)))

	for _, tr := range candidates {
		if ctx.Err() != nil {
			log.Warn("sweep interrupted", sl.Err(ctx.Err()))
			break
		}
		summary.Checked++
		s.tally(ctx, log, summary, tr)
	}

	if s.metrics != nil {
		s.metrics.ObserveSweep(s.now().Sub(started), summary.Activated, summary.Failed, summary.Skipped)
	}
	log.Info("sweep finished",
		slog.Int("checked", summary.Checked),
		slog.Int("activated", summary.Activated),
		slog.Int("failed", summary.Failed),
		slog.Int("skipped", summary.Skipped))
	return summary, nil
}

func (s *SchedulerService) tally(ctx context.Context, log *slog.Logger, summary *Summary, tr *models.Transaction) {
	log = log.With(
		slog.String("transaction_id", tr.ID),
		slog.String("operation_id", tr.Metadata.OperationID))

	res, err := s.reconciler.ReconcileByPolling(ctx, tr.Metadata.OperationID, reconcile.SourceCron)
	switch {
	case errors.Is(err, reconcile.ErrAmountMismatch):
		summary.Failed++
	case err != nil:
		log.Warn("failed to reconcile transaction", sl.Err(err))
		summary.Skipped++
	case res.Outcome == reconcile.OutcomeActivated:
		summary.Activated++
	case res.Outcome == reconcile.OutcomeFailed:
		summary.Failed++
	default:
		summary.Skipped++
	}
}
