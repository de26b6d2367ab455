// Package activatepending служебный endpoint фоновой сверки зависших платежей.
package activatepending

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/docgen-billing/internal/http/response"
	"github.com/magabrotheeeer/docgen-billing/internal/lib/sl"
	"github.com/magabrotheeeer/docgen-billing/internal/services/scheduler"
)

// Sweeper один проход сверки.
type Sweeper interface {
	ActivatePending(ctx context.Context) (*scheduler.Summary, error)
}

type Handler struct {
	log     *slog.Logger
	sweeper Sweeper
}

func New(log *slog.Logger, sweeper Sweeper) *Handler {
	return &Handler{log: log, sweeper: sweeper}
}

// ServeHTTP godoc
// @Summary Сверка зависших платежей
// @Description Вызывается планировщиком. Авторизация: Bearer CRON_SECRET_TOKEN.
// @Tags Cron
// @Produce  json
// @Success 200 {object} scheduler.Summary
// @Failure 401 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /cron/activate-pending [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.cron.activatepending"

	summary, err := h.sweeper.ActivatePending(r.Context())
	if err != nil {
		h.log.Error("sweep failed", slog.String("op", op), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}
	render.JSON(w, r, summary)
}
