// Package paymentstatus отдаёт локальный статус транзакции для опроса клиентом.
package paymentstatus

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/docgen-billing/internal/http/middlewarectx"
	"github.com/magabrotheeeer/docgen-billing/internal/http/response"
	"github.com/magabrotheeeer/docgen-billing/internal/lib/sl"
	"github.com/magabrotheeeer/docgen-billing/internal/models"
)

// StatusResponse состояние транзакции без обращения к банку.
type StatusResponse struct {
	OperationID   string                   `json:"operationId"`
	Status        models.TransactionStatus `json:"status"`
	Type          models.TransactionType   `json:"type"`
	Amount        float64                  `json:"amount"`
	GatewayStatus string                   `json:"gatewayStatus,omitempty"`
	UpdatedAt     time.Time                `json:"updatedAt"`
}

// Service чтение транзакции пользователя.
type Service interface {
	GetStatus(ctx context.Context, userID, operationID string) (*models.Transaction, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Статус платежа
// @Tags Payments
// @Produce  json
// @Param operationId path string true "ID операции"
// @Success 200 {object} StatusResponse
// @Failure 401 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /payments/status/{operationId} [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.status"
	log := h.log.With(slog.String("op", op))

	userID, ok := middlewarectx.UserIDFrom(r.Context())
	if !ok {
		log.Error("user ID not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}
	operationID := chi.URLParam(r, "operationId")

	tr, err := h.service.GetStatus(r.Context(), userID, operationID)
	if errors.Is(err, models.ErrTransactionNotFound) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("transaction not found"))
		return
	}
	if err != nil {
		log.Error("failed to get transaction", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	render.JSON(w, r, StatusResponse{
		OperationID:   tr.Metadata.OperationID,
		Status:        tr.Status,
		Type:          tr.Type,
		Amount:        tr.Amount,
		GatewayStatus: tr.Metadata.GatewayStatus,
		UpdatedAt:     tr.UpdatedAt,
	})
}
