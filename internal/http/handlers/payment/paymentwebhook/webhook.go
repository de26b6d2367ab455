// Package paymentwebhook принимает уведомления Точка Банка о статусе операции.
package paymentwebhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/magabrotheeeer/docgen-billing/internal/lib/sl"
	"github.com/magabrotheeeer/docgen-billing/internal/models"
	"github.com/magabrotheeeer/docgen-billing/internal/paymentprovider"
	"github.com/magabrotheeeer/docgen-billing/internal/services/reconcile"
)

// SignatureHeader заголовок с HMAC-подписью тела.
const SignatureHeader = "x-signature"

// maxBodySize ограничение тела уведомления.
const maxBodySize = 1 << 20

// Verifier проверка подписи уведомления.
type Verifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

// Reconciler применение статуса из уведомления.
type Reconciler interface {
	Reconcile(ctx context.Context, obs reconcile.Observation) (*reconcile.Result, error)
}

type Handler struct {
	log        *slog.Logger // Логгер для записи информации и ошибок
	verifier   Verifier
	reconciler Reconciler
}

func New(log *slog.Logger, verifier Verifier, reconciler Reconciler) *Handler {
	return &Handler{
		log:        log,
		verifier:   verifier,
		reconciler: reconciler,
	}
}

// ServeHTTP godoc
// @Summary Webhook Точка Банка
// @Description Подпись тела в заголовке x-signature (HMAC-SHA256). 200 означает, что уведомление принято, в том числе повторное.
// @Tags Payments
// @Accept  json
// @Param x-signature header string true "HMAC-SHA256 подпись"
// @Param request body paymentprovider.WebhookEvent true "Уведомление"
// @Success 200
// @Failure 400 "Некорректное тело"
// @Failure 401 "Неверная подпись"
// @Failure 404 "Неизвестная операция"
// @Failure 500 "Ошибка хранилища, банк повторит отправку"
// @Router /payments/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"
	log := h.log.With(slog.String("op", op))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if !h.verifier.VerifyWebhookSignature(body, r.Header.Get(SignatureHeader)) {
		log.Warn("invalid or missing webhook signature", slog.String("remote_addr", r.RemoteAddr))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var event paymentprovider.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if event.OperationID == "" {
		log.Error("webhook without operationId")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	log = log.With(
		slog.String("operation_id", event.OperationID),
		slog.String("status", event.Status))

	res, err := h.reconciler.Reconcile(r.Context(), reconcile.Observation{
		OperationID: event.OperationID,
		Status:      paymentprovider.NormalizeStatus(event.Status),
		RawStatus:   event.Status,
		Amount:      event.AmountValue(),
		Source:      reconcile.SourceWebhook,
	})
	switch {
	case errors.Is(err, models.ErrTransactionNotFound):
		log.Warn("webhook for unknown operation")
		w.WriteHeader(http.StatusNotFound)
		return
	case errors.Is(err, reconcile.ErrAmountMismatch):
		// Транзакция уже переведена в FAILED, повтор от банка ничего не изменит.
		w.WriteHeader(http.StatusOK)
		return
	case err != nil:
		log.Error("failed to process webhook", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	log.Info("webhook processed", slog.String("outcome", string(res.Outcome)))
	w.WriteHeader(http.StatusOK)
}
