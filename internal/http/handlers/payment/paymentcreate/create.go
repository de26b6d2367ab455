// Package paymentcreate обрабатывает создание платежа за подписку.
package paymentcreate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/docgen-billing/internal/http/middlewarectx"
	"github.com/magabrotheeeer/docgen-billing/internal/http/response"
	"github.com/magabrotheeeer/docgen-billing/internal/lib/sl"
	"github.com/magabrotheeeer/docgen-billing/internal/models"
	"github.com/magabrotheeeer/docgen-billing/internal/paymentprovider"
	"github.com/magabrotheeeer/docgen-billing/internal/services/payment"
)

// Request запрос на оплату тарифа. Цена клиентом не передаётся.
type Request struct {
	TargetMode string `json:"targetMode" validate:"required"`
}

// Service определяет интерфейс для работы с платежами.
type Service interface {
	CreateSubscriptionPayment(ctx context.Context, userID string, target models.AppMode) (*payment.Intent, error)
}

// Handler обрабатывает запросы на создание платежа.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate // Валидатор структуры входящих данных
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Создать платеж за подписку
// @Description Создает платежную ссылку в Точка Банке и PENDING-транзакцию
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param request body Request true "Целевой тариф"
// @Success 200 {object} payment.Intent
// @Failure 400 {object} response.ErrorResponse "Некорректный тариф или тариф уже активен"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка банка, повторите попытку"
// @Router /payments/create [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.create"
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

	target := models.AppMode(strings.ToUpper(strings.TrimSpace(req.TargetMode)))
	intent, err := h.service.CreateSubscriptionPayment(r.Context(), userID, target)
	if err != nil {
		WriteError(w, r, log, err)
		return
	}

	log.Info("payment created", slog.String("operation_id", intent.OperationID))
	render.JSON(w, r, intent)
}

// WriteError переводит ошибку создания платежа в HTTP-ответ.
func WriteError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, payment.ErrUnsupportedMode):
		log.Warn("unsupported target mode", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid target mode"))
	case errors.Is(err, payment.ErrAlreadySubscribed):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("subscription is already active"))
	case errors.Is(err, payment.ErrSubscriptionRequired):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("active subscription required"))
	case errors.Is(err, models.ErrUserNotFound):
		log.Warn("user not found", sl.Err(err))
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
	case errors.Is(err, paymentprovider.ErrGateway):
		log.Error("payment provider error", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("payment provider error, try again later"))
	default:
		log.Error("failed to create payment", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
	}
}
