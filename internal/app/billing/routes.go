// Package billing HTTP API платёжного сервиса.
package billing

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/docgen-billing/internal/http/handlers/cron/activatepending"
	"github.com/magabrotheeeer/docgen-billing/internal/http/handlers/health"
	"github.com/magabrotheeeer/docgen-billing/internal/http/handlers/payment/paymentbonus"
	"github.com/magabrotheeeer/docgen-billing/internal/http/handlers/payment/paymentcomplete"
	"github.com/magabrotheeeer/docgen-billing/internal/http/handlers/payment/paymentcreate"
	"github.com/magabrotheeeer/docgen-billing/internal/http/handlers/payment/paymentlist"
	"github.com/magabrotheeeer/docgen-billing/internal/http/handlers/payment/paymentstatus"
	"github.com/magabrotheeeer/docgen-billing/internal/http/handlers/payment/paymentwebhook"
	"github.com/magabrotheeeer/docgen-billing/internal/http/handlers/user/checkpending"
	"github.com/magabrotheeeer/docgen-billing/internal/http/handlers/user/entitlement"
	"github.com/magabrotheeeer/docgen-billing/internal/http/middlewarectx"
	"github.com/magabrotheeeer/docgen-billing/internal/paymentprovider"
	"github.com/magabrotheeeer/docgen-billing/internal/services/payment"
	"github.com/magabrotheeeer/docgen-billing/internal/services/reconcile"
	"github.com/magabrotheeeer/docgen-billing/internal/services/scheduler"
	"github.com/magabrotheeeer/docgen-billing/internal/services/user"
)

// Лимит запросов на пользователя для маршрутов, которые клиент опрашивает в цикле.
const (
	pollRPS   = 1
	pollBurst = 5
)

// Deps всё, что нужно маршрутам.
type Deps struct {
	Tokens      middlewarectx.TokenParser
	CronSecret  string
	Gateway     *paymentprovider.Client
	Payments    *payment.Service
	Engine      *reconcile.Engine
	Sweeper     *scheduler.SchedulerService
	Users       *user.Service
	HealthCheck map[string]health.Check
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, d Deps) {
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	limiter := middlewarectx.NewRateLimiter(pollRPS, pollBurst)

	r.Route("/api/v1", func(r chi.Router) {
		// Банк подписывает тело, JWT здесь нет
		r.Post("/payments/webhook", paymentwebhook.New(logger, d.Gateway, d.Engine).ServeHTTP)

		r.With(middlewarectx.CronAuth(d.CronSecret, logger)).
			Post("/cron/activate-pending", activatepending.New(logger, d.Sweeper).ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(d.Tokens, logger))

			r.Post("/payments/create", paymentcreate.New(logger, d.Payments).ServeHTTP)
			r.Post("/payments/bonus-pack", paymentbonus.New(logger, d.Payments).ServeHTTP)
			r.Post("/payments/complete", paymentcomplete.New(logger, d.Engine).ServeHTTP)
			r.Get("/payments/list", paymentlist.New(logger, d.Payments).ServeHTTP)
			r.Get("/user/entitlement", entitlement.New(logger, d.Users).ServeHTTP)

			r.Group(func(r chi.Router) {
				r.Use(limiter.Middleware(logger))
				r.Get("/payments/status/{operationId}", paymentstatus.New(logger, d.Engine).ServeHTTP)
				r.Post("/user/check-pending-payment", checkpending.New(logger, d.Engine).ServeHTTP)
			})
		})
	})

	r.Get("/health", health.New(logger, d.HealthCheck).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
