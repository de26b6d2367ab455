package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/magabrotheeeer/docgen-billing/internal/app/pipeline"
	"github.com/magabrotheeeer/docgen-billing/internal/config"
	"github.com/magabrotheeeer/docgen-billing/internal/http/handlers/health"
	"github.com/magabrotheeeer/docgen-billing/internal/lib/jwt"
	"github.com/magabrotheeeer/docgen-billing/internal/migrations"
	"github.com/magabrotheeeer/docgen-billing/internal/services/user"
	"github.com/magabrotheeeer/docgen-billing/internal/storage/repository"
)

// App HTTP-сервер биллинга.
type App struct {
	server   *http.Server
	logger   *slog.Logger
	pipeline *pipeline.Pipeline
}

// New поднимает зависимости, применяет миграции и собирает роутер.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	p, err := pipeline.Build(ctx, cfg, logger, prometheus.DefaultRegisterer, func(db *repository.Storage) error {
		return migrations.Run(db.DB, cfg.MigrationsPath)
	})
	if err != nil {
		return nil, err
	}

	var userCache user.Cache
	if p.Cache != nil {
		userCache = p.Cache
	}
	users := user.New(p.Storage, userCache, cfg.EntitlementTTL, logger)

	checks := map[string]health.Check{
		"postgres": func(context.Context) error {
			return repository.CheckDatabaseReady(p.Storage)
		},
	}
	if p.Cache != nil {
		checks["redis"] = p.Cache.Ping
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger, Deps{
		Tokens:      jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL),
		CronSecret:  cfg.Cron.SecretToken,
		Gateway:     p.Gateway,
		Payments:    p.Payments,
		Engine:      p.Engine,
		Sweeper:     p.Sweeper,
		Users:       users,
		HealthCheck: checks,
	})

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:   srv,
		logger:   logger,
		pipeline: p,
	}, nil
}

// Run обслуживает запросы до отмены ctx, затем плавно останавливает сервер.
func (a *App) Run(ctx context.Context) error {
	defer a.pipeline.Close()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		return a.server.Shutdown(timeoutCtx)
	}
}
