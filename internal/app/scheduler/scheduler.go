// Package scheduler запускает сверку зависших платежей по расписанию cron
// без HTTP-вызова эндпоинта /cron/activate-pending.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/magabrotheeeer/docgen-billing/internal/app/pipeline"
	"github.com/magabrotheeeer/docgen-billing/internal/config"
	"github.com/magabrotheeeer/docgen-billing/internal/lib/sl"
	schedulerservice "github.com/magabrotheeeer/docgen-billing/internal/services/scheduler"
)

// Sweeper один проход сверки.
type Sweeper interface {
	ActivatePending(ctx context.Context) (*schedulerservice.Summary, error)
}

// App представляет приложение планировщика.
type App struct {
	sweeper  Sweeper
	schedule string
	timeout  time.Duration
	logger   *slog.Logger
	closer   func()
}

// New создает новый экземпляр приложения планировщика.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	p, err := pipeline.Build(ctx, cfg, logger, prometheus.DefaultRegisterer, nil)
	if err != nil {
		return nil, err
	}
	return &App{
		sweeper:  p.Sweeper,
		schedule: cfg.Schedule,
		timeout:  cfg.Debounce,
		logger:   logger,
		closer:   p.Close,
	}, nil
}

// sweep выполняет один проход. Проход ограничен окном debounce.
func (a *App) sweep(ctx context.Context) {
	const op = "app.scheduler.sweep"
	log := a.logger.With(slog.String("op", op))

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	summary, err := a.sweeper.ActivatePending(ctx)
	if err != nil {
		log.Error("sweep failed", sl.Err(err))
		return
	}
	log.Info("sweep finished",
		slog.Int("checked", summary.Checked),
		slog.Int("activated", summary.Activated),
		slog.Int("failed", summary.Failed),
		slog.Int("skipped", summary.Skipped),
	)
}

// Run запускает планировщик и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	if a.closer != nil {
		defer a.closer()
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(a.schedule, func() { a.sweep(ctx) }); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", a.schedule, err)
	}
	c.Start()
	a.logger.Info("scheduler started", slog.String("schedule", a.schedule))

	<-ctx.Done()

	a.logger.Info("shutting down scheduler service")
	<-c.Stop().Done()
	return nil
}
