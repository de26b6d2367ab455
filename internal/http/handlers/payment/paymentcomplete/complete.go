// Package paymentcomplete подтверждение оплаты после возврата пользователя со страницы банка.
package paymentcomplete

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/docgen-billing/internal/http/middlewarectx"
	"github.com/magabrotheeeer/docgen-billing/internal/http/response"
	"github.com/magabrotheeeer/docgen-billing/internal/lib/sl"
	"github.com/magabrotheeeer/docgen-billing/internal/models"
	"github.com/magabrotheeeer/docgen-billing/internal/services/reconcile"
)

const (
	msgActivated  = "payment confirmed, access activated"
	msgProcessed  = "payment was already processed"
	msgProcessing = "payment is being processed automatically, access will be activated shortly"
	msgFailed     = "payment was not completed"
)

// Request идентификатор операции из redirect-ссылки.
type Request struct {
	OperationID string `json:"operationId" validate:"required,max=128"`
}

// Result ответ клиенту. Неизвестный статус не считается ошибкой.
type Result struct {
	Success          bool           `json:"success"`
	AlreadyProcessed bool           `json:"alreadyProcessed,omitempty"`
	Status           string         `json:"status,omitempty"`
	Message          string         `json:"message"`
	AppMode          models.AppMode `json:"appMode,omitempty"`
}

// Reconciler сверка по инициативе пользователя.
type Reconciler interface {
	ReconcileForUser(ctx context.Context, userID, operationID string) (*reconcile.Result, error)
}

type Handler struct {
	log        *slog.Logger
	reconciler Reconciler
	validate   *validator.Validate
}

func New(log *slog.Logger, reconciler Reconciler) *Handler {
	return &Handler{
		log:        log,
		reconciler: reconciler,
		validate:   validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Подтвердить оплату
// @Description Запрашивает статус операции в банке и активирует доступ. Повторный вызов безопасен.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param request body Request true "Операция"
// @Success 200 {object} Result
// @Failure 400 {object} response.ErrorResponse "Сумма платежа не совпала"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Транзакция не найдена"
// @Router /payments/complete [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.complete"
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

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	res, err := h.reconciler.ReconcileForUser(r.Context(), userID, req.OperationID)
	Render(w, r, log.With(slog.String("operation_id", req.OperationID)), res, err)
}

// Render переводит итог сверки в ответ пользователю.
// Используется также ручкой повторной проверки платежа.
func Render(w http.ResponseWriter, r *http.Request, log *slog.Logger, res *reconcile.Result, err error) {
	switch {
	case errors.Is(err, reconcile.ErrAmountMismatch):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("payment amount mismatch, contact support"))
		return
	case errors.Is(err, models.ErrTransactionNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("transaction not found"))
		return
	case errors.Is(err, reconcile.ErrStatusUnknown):
		log.Warn("payment status unknown", sl.Err(err))
		render.JSON(w, r, Result{Status: string(models.StatusPending), Message: msgProcessing})
		return
	case err != nil:
		log.Error("failed to reconcile payment", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	render.JSON(w, r, FromResult(res))
}

// FromResult ответ клиенту по итогу сверки без ошибки.
func FromResult(res *reconcile.Result) Result {
	switch res.Outcome {
	case reconcile.OutcomeActivated:
		out := Result{Success: true, Status: string(models.StatusCompleted), Message: msgActivated}
		if res.User != nil {
			out.AppMode = res.User.AppMode
		}
		return out
	case reconcile.OutcomeAlreadyProcessed:
		if res.Status == models.StatusCompleted {
			return Result{Success: true, AlreadyProcessed: true, Status: string(res.Status), Message: msgProcessed}
		}
		return Result{AlreadyProcessed: true, Status: string(res.Status), Message: msgFailed}
	case reconcile.OutcomeFailed:
		return Result{Status: string(models.StatusFailed), Message: msgFailed}
	default:
		return Result{Status: string(models.StatusPending), Message: msgProcessing}
	}
}
