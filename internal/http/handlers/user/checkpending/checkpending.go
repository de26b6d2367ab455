// Package checkpending повторная проверка последнего незавершённого платежа пользователя.
package checkpending

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/docgen-billing/internal/http/middlewarectx"
	"github.com/magabrotheeeer/docgen-billing/internal/http/response"
	"github.com/magabrotheeeer/docgen-billing/internal/lib/sl"
	"github.com/magabrotheeeer/docgen-billing/internal/models"
	"github.com/magabrotheeeer/docgen-billing/internal/services/reconcile"
)

// Result ответ ручки.
type Result struct {
	HasPending  bool   `json:"hasPending"`
	OperationID string `json:"operationId,omitempty"`
	Status      string `json:"status,omitempty"`
	Activated   bool   `json:"activated"`
	Message     string `json:"message"`
}

// Checker проверка последней PENDING-транзакции.
type Checker interface {
	CheckLatestPending(ctx context.Context, userID string) (*reconcile.Result, error)
}

type Handler struct {
	log     *slog.Logger
	checker Checker
}

func New(log *slog.Logger, checker Checker) *Handler {
	return &Handler{log: log, checker: checker}
}

// ServeHTTP godoc
// @Summary Проверить незавершённый платёж
// @Description Перепроверяет в банке последнюю PENDING-транзакцию пользователя и активирует доступ, если оплата прошла.
// @Tags User
// @Produce  json
// @Success 200 {object} Result
// @Failure 400 {object} response.ErrorResponse "Сумма платежа не совпала"
// @Failure 401 {object} response.ErrorResponse
// @Router /user/check-pending-payment [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.user.checkpending"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID, ok := middlewarectx.UserIDFrom(r.Context())
	if !ok {
		log.Error("user ID not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	res, err := h.checker.CheckLatestPending(r.Context(), userID)
	switch {
	case errors.Is(err, models.ErrTransactionNotFound):
		render.JSON(w, r, Result{Message: "no pending payments"})
		return
	case errors.Is(err, reconcile.ErrAmountMismatch):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("payment amount mismatch, contact support"))
		return
	case errors.Is(err, reconcile.ErrStatusUnknown):
		log.Warn("payment status unknown", sl.Err(err))
		out := Result{HasPending: true, Status: string(models.StatusPending), Message: "payment is being processed automatically"}
		if res != nil {
			out.OperationID = res.OperationID
		}
		render.JSON(w, r, out)
		return
	case err != nil:
		log.Error("failed to check pending payment", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	out := Result{OperationID: res.OperationID, Status: string(res.Status)}
	switch res.Outcome {
	case reconcile.OutcomeActivated:
		out.Activated = true
		out.Message = "payment confirmed, access activated"
	case reconcile.OutcomeFailed:
		out.Message = "payment was not completed"
	case reconcile.OutcomeAlreadyProcessed:
		out.Message = "payment was already processed"
	default:
		out.HasPending = true
		out.Message = "payment is being processed automatically"
	}
	render.JSON(w, r, out)
}
