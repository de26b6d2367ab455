// Package paymentbonus обрабатывает покупку пакета дополнительных генераций.
package paymentbonus

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/docgen-billing/internal/http/handlers/payment/paymentcreate"
	"github.com/magabrotheeeer/docgen-billing/internal/http/middlewarectx"
	"github.com/magabrotheeeer/docgen-billing/internal/http/response"
	"github.com/magabrotheeeer/docgen-billing/internal/services/payment"
)

// Service создание платежа за пакет.
type Service interface {
	CreateBonusPackPayment(ctx context.Context, userID string) (*payment.Intent, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Купить пакет генераций
// @Description Доступно только при действующей платной подписке
// @Tags Payments
// @Produce  json
// @Success 200 {object} payment.Intent
// @Failure 400 {object} response.ErrorResponse "Нет действующей подписки"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Ошибка банка, повторите попытку"
// @Router /payments/bonus-pack [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.bonus"
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

	intent, err := h.service.CreateBonusPackPayment(r.Context(), userID)
	if err != nil {
		paymentcreate.WriteError(w, r, log, err)
		return
	}
	log.Info("bonus pack payment created", slog.String("operation_id", intent.OperationID))
	render.JSON(w, r, intent)
}
