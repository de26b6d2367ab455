package paymentlist

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/docgen-billing/internal/http/middlewarectx"
	"github.com/magabrotheeeer/docgen-billing/internal/http/response"
	"github.com/magabrotheeeer/docgen-billing/internal/lib/sl"
	"github.com/magabrotheeeer/docgen-billing/internal/models"
)

// Item строка истории платежей.
type Item struct {
	ID          string                   `json:"id"`
	OperationID string                   `json:"operationId"`
	Type        models.TransactionType   `json:"type"`
	Status      models.TransactionStatus `json:"status"`
	Amount      float64                  `json:"amount"`
	TargetMode  models.AppMode           `json:"targetMode,omitempty"`
	CreatedAt   string                   `json:"createdAt"`
}

type Service interface {
	ListPayments(ctx context.Context, userID string, limit, offset int) ([]*models.Transaction, error)
}

type Handler struct {
	log     *slog.Logger // Логгер для записи информации и ошибок
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary История платежей
// @Tags Payments
// @Produce  json
// @Param limit query int false "Размер страницы (по умолчанию 20, не больше 100)"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse
// @Router /payments/list [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.list"
	log := h.log.With(slog.String("op", op))

	userID, ok := middlewarectx.UserIDFrom(r.Context())
	if !ok {
		log.Error("user ID not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	transactions, err := h.service.ListPayments(r.Context(), userID, limit, offset)
	if err != nil {
		log.Error("failed to list payments", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	items := make([]Item, 0, len(transactions))
	for _, t := range transactions {
		items = append(items, Item{
			ID:          t.ID,
			OperationID: t.Metadata.OperationID,
			Type:        t.Type,
			Status:      t.Status,
			Amount:      t.Amount,
			TargetMode:  t.Metadata.TargetMode,
			CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	log.Info("list payments", slog.Int("count", len(items)))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"count":    len(items),
		"payments": items,
	}))
}
