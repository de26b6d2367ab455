// Package reconcile сверяет локальные транзакции со статусом операции в банке.
//
// Три независимых входа (возврат пользователя со страницы оплаты, webhook банка
// и фоновая сверка) сходятся в одной процедуре apply. Однократность перехода
// PENDING -> COMPLETED/FAILED обеспечивает условный UPDATE в хранилище, поэтому
// входы могут выполняться одновременно и в любом порядке.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/magabrotheeeer/docgen-billing/internal/cache"
	"github.com/magabrotheeeer/docgen-billing/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/docgen-billing/internal/lib/sl"
	"github.com/magabrotheeeer/docgen-billing/internal/models"
	"github.com/magabrotheeeer/docgen-billing/internal/paymentprovider"
)

// AmountTolerance допустимое расхождение суммы в рублях.
const AmountTolerance = 0.01

var (
	// ErrAmountMismatch оплаченная сумма не совпала с ожидаемой.
	ErrAmountMismatch = errors.New("payment amount mismatch")
	// ErrStatusUnknown статус в банке получить не удалось; повторить позже.
	ErrStatusUnknown = errors.New("payment status unknown")
)

// Source вход, через который пришла сверка.
type Source string

const (
	SourceClient    Source = "client"
	SourceWebhook   Source = "webhook"
	SourceCron      Source = "cron"
	SourceUserCheck Source = "user_check"
)

// Outcome итог сверки.
type Outcome string

const (
	OutcomeActivated        Outcome = "activated"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeFailed           Outcome = "failed"
	OutcomeAmountMismatch   Outcome = "amount_mismatch"
	OutcomePending          Outcome = "pending"
	OutcomeError            Outcome = "error"
)

// Observation статус операции, увиденный одним из входов.
type Observation struct {
	OperationID string
	Status      paymentprovider.PaymentStatus
	RawStatus   string
	Amount      *float64
	Source      Source
}

// Result итог сверки одной транзакции.
type Result struct {
	Outcome       Outcome
	TransactionID string
	OperationID   string
	Status        models.TransactionStatus
	GatewayStatus paymentprovider.PaymentStatus
	User          *models.User // заполнен только при активации
}

// Repository операции хранилища, нужные сверке.
type Repository interface {
	GetTransactionByOperationID(ctx context.Context, operationID string) (*models.Transaction, error)
	GetLatestPendingTransaction(ctx context.Context, userID string) (*models.Transaction, error)
	CompleteTransaction(ctx context.Context, id string, annotation models.StatusAnnotation,
		transition func(u *models.User) error) (*models.User, bool, error)
	FailTransaction(ctx context.Context, id string, annotation models.StatusAnnotation) (bool, error)
}

// Gateway запрос статуса операции.
type Gateway interface {
	GetPaymentStatus(ctx context.Context, operationID string) (*paymentprovider.PaymentStatusResponse, error)
}

// Entitlements строит переход прав для покупки.
type Entitlements interface {
	Transition(p models.Purchase, at time.Time) func(u *models.User) error
}

// CacheInvalidator сброс закэшированных прав.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, key string) error
}

// EventPublisher отправка событий в брокер.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Metrics учёт сверок.
type Metrics interface {
	ObserveReconcile(source, outcome string)
	SecurityAlert()
}

// Engine Reconciliation Engine.
type Engine struct {
	log          *slog.Logger
	repo         Repository
	gateway      Gateway
	entitlements Entitlements
	cache        CacheInvalidator
	events       EventPublisher
	metrics      Metrics
	now          func() time.Time
}

// New создаёт Engine. cache, events и metrics могут быть nil.
func New(
	log *slog.Logger,
	repo Repository,
	gateway Gateway,
	entitlements Entitlements,
	cache CacheInvalidator,
	events EventPublisher,
	metrics Metrics,
) *Engine {
	return &Engine{
		log:          log,
		repo:         repo,
		gateway:      gateway,
		entitlements: entitlements,
		cache:        cache,
		events:       events,
		metrics:      metrics,
		now:          time.Now,
	}
}

// Reconcile применяет наблюдаемый статус к транзакции с obs.OperationID.
func (e *Engine) Reconcile(ctx context.Context, obs Observation) (res *Result, err error) {
	const op = "services.reconcile.Reconcile"
	defer func() { e.observe(obs.Source, res, err) }()

	tr, err := e.repo.GetTransactionByOperationID(ctx, obs.OperationID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res, err = e.apply(ctx, tr, obs)
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// ReconcileByPolling запрашивает статус у банка и применяет его.
// Ошибка банка возвращается как ErrStatusUnknown и транзакцию не меняет.
func (e *Engine) ReconcileByPolling(ctx context.Context, operationID string, source Source) (res *Result, err error) {
	const op = "services.reconcile.ReconcileByPolling"
	defer func() { e.observe(source, res, err) }()

	tr, err := e.repo.GetTransactionByOperationID(ctx, operationID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res, err = e.poll(ctx, tr, source)
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// ReconcileForUser сверка по возврату пользователя со страницы оплаты.
// Чужая транзакция выглядит как несуществующая.
func (e *Engine) ReconcileForUser(ctx context.Context, userID, operationID string) (res *Result, err error) {
	const op = "services.reconcile.ReconcileForUser"
	defer func() { e.observe(SourceClient, res, err) }()

	tr, err := e.repo.GetTransactionByOperationID(ctx, operationID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if tr.UserID != userID {
		return nil, fmt.Errorf("%s: %w", op, models.ErrTransactionNotFound)
	}
	res, err = e.poll(ctx, tr, SourceClient)
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// CheckLatestPending перепроверяет последнюю PENDING-транзакцию пользователя.
// Если таких нет, возвращается models.ErrTransactionNotFound.
func (e *Engine) CheckLatestPending(ctx context.Context, userID string) (res *Result, err error) {
	const op = "services.reconcile.CheckLatestPending"

	tr, err := e.repo.GetLatestPendingTransaction(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { e.observe(SourceUserCheck, res, err) }()

	res, err = e.poll(ctx, tr, SourceUserCheck)
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// GetStatus локальный статус транзакции пользователя без обращения к банку.
func (e *Engine) GetStatus(ctx context.Context, userID, operationID string) (*models.Transaction, error) {
	const op = "services.reconcile.GetStatus"

	tr, err := e.repo.GetTransactionByOperationID(ctx, operationID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if tr.UserID != userID {
		return nil, fmt.Errorf("%s: %w", op, models.ErrTransactionNotFound)
	}
	return tr, nil
}

func (e *Engine) poll(ctx context.Context, tr *models.Transaction, source Source) (*Result, error) {
	if tr.Status != models.StatusPending {
		return alreadyProcessed(tr), nil
	}

	st, err := e.gateway.GetPaymentStatus(ctx, tr.Metadata.OperationID)
	if err != nil {
		e.log.Warn("payment status unavailable",
			slog.String("operation_id", tr.Metadata.OperationID),
			slog.String("source", string(source)),
			sl.Err(err))
		return pendingResult(tr, paymentprovider.StatusUnknown), fmt.Errorf("%w: %w", ErrStatusUnknown, err)
	}
	return e.apply(ctx, tr, Observation{
		OperationID: tr.Metadata.OperationID,
		Status:      st.Status,
		RawStatus:   st.RawStatus,
		Amount:      st.Amount,
		Source:      source,
	})
}

func (e *Engine) apply(ctx context.Context, tr *models.Transaction, obs Observation) (*Result, error) {
	log := e.log.With(
		slog.String("operation_id", tr.Metadata.OperationID),
		slog.String("transaction_id", tr.ID),
		slog.String("source", string(obs.Source)),
		slog.String("gateway_status", string(obs.Status)),
	)

	if tr.Status != models.StatusPending {
		log.Info("transaction already processed", slog.String("status", string(tr.Status)))
		return alreadyProcessed(tr), nil
	}

	switch {
	case obs.Status.Succeeded():
		if obs.Amount == nil {
			log.Warn("successful status without amount, waiting for next check")
			return pendingResult(tr, obs.Status), nil
		}
		if math.Abs(*obs.Amount-tr.Amount) > AmountTolerance {
			return e.rejectMismatch(ctx, log, tr, obs)
		}
		return e.activate(ctx, log, tr, obs)
	case obs.Status.Failed():
		ok, err := e.repo.FailTransaction(ctx, tr.ID, e.annotation(obs))
		if err != nil {
			return nil, err
		}
		if !ok {
			return alreadyProcessed(tr), nil
		}
		log.Info("payment failed")
		return &Result{
			Outcome:       OutcomeFailed,
			TransactionID: tr.ID,
			OperationID:   tr.Metadata.OperationID,
			Status:        models.StatusFailed,
			GatewayStatus: obs.Status,
		}, nil
	default:
		return pendingResult(tr, obs.Status), nil
	}
}

func (e *Engine) activate(ctx context.Context, log *slog.Logger, tr *models.Transaction, obs Observation) (*Result, error) {
	purchase, err := tr.Purchase()
	if err != nil {
		log.Error("cannot decode purchase", sl.Err(err))
		return nil, err
	}

	user, applied, err := e.repo.CompleteTransaction(ctx, tr.ID, e.annotation(obs),
		e.entitlements.Transition(purchase, e.now()))
	if err != nil {
		return nil, err
	}
	if !applied {
		log.Info("transaction completed concurrently by another path")
		return alreadyProcessed(tr), nil
	}

	log.Info("payment activated",
		slog.String("user_id", user.ID),
		slog.String("type", string(tr.Type)),
		slog.String("app_mode", string(user.AppMode)))

	e.afterActivation(ctx, log, tr, user, obs)
	return &Result{
		Outcome:       OutcomeActivated,
		TransactionID: tr.ID,
		OperationID:   tr.Metadata.OperationID,
		Status:        models.StatusCompleted,
		GatewayStatus: obs.Status,
		User:          user,
	}, nil
}

func (e *Engine) rejectMismatch(ctx context.Context, log *slog.Logger, tr *models.Transaction, obs Observation) (*Result, error) {
	expected := tr.Amount
	received := *obs.Amount
	ann := e.annotation(obs)
	ann.SecurityError = fmt.Sprintf("amount mismatch: expected %.2f, received %.2f", expected, received)
	ann.ExpectedAmount = &expected
	ann.ReceivedAmount = &received

	ok, err := e.repo.FailTransaction(ctx, tr.ID, ann)
	if err != nil {
		return nil, err
	}
	if !ok {
		return alreadyProcessed(tr), nil
	}

	log.Error("SECURITY: payment amount mismatch",
		slog.String("alert", "security"),
		slog.String("user_id", tr.UserID),
		slog.Float64("expected_amount", expected),
		slog.Float64("received_amount", received))
	if e.metrics != nil {
		e.metrics.SecurityAlert()
	}
	e.publish(ctx, log, rabbitmq.RoutingSecurityAlert, models.PaymentEvent{
		TransactionID:  tr.ID,
		OperationID:    tr.Metadata.OperationID,
		UserID:         tr.UserID,
		Type:           tr.Type,
		Amount:         expected,
		ReceivedAmount: &received,
		Source:         string(obs.Source),
		OccurredAt:     e.now(),
	})

	return &Result{
		Outcome:       OutcomeAmountMismatch,
		TransactionID: tr.ID,
		OperationID:   tr.Metadata.OperationID,
		Status:        models.StatusFailed,
		GatewayStatus: obs.Status,
	}, ErrAmountMismatch
}

func (e *Engine) afterActivation(ctx context.Context, log *slog.Logger, tr *models.Transaction, user *models.User, obs Observation) {
	if e.cache != nil {
		if err := e.cache.Invalidate(ctx, cache.EntitlementKey(user.ID)); err != nil {
			log.Warn("failed to invalidate entitlement cache", sl.Err(err))
		}
	}
	e.publish(ctx, log, rabbitmq.RoutingPaymentActivated, models.PaymentEvent{
		TransactionID: tr.ID,
		OperationID:   tr.Metadata.OperationID,
		UserID:        user.ID,
		Email:         user.Email,
		Username:      user.Username,
		Type:          tr.Type,
		AppMode:       user.AppMode,
		Amount:        tr.Amount,
		Source:        string(obs.Source),
		ValidUntil:    user.SubscriptionEndsAt,
		OccurredAt:    e.now(),
	})
}

func (e *Engine) publish(ctx context.Context, log *slog.Logger, routingKey string, event models.PaymentEvent) {
	if e.events == nil {
		return
	}
	if err := e.events.Publish(ctx, routingKey, event); err != nil {
		log.Warn("failed to publish event", slog.String("routing_key", routingKey), sl.Err(err))
	}
}

func (e *Engine) annotation(obs Observation) models.StatusAnnotation {
	raw := obs.RawStatus
	if raw == "" {
		raw = string(obs.Status)
	}
	return models.StatusAnnotation{
		GatewayStatus: raw,
		ProcessedBy:   string(obs.Source),
		ProcessedAt:   e.now().UTC().Format(time.RFC3339),
	}
}

func (e *Engine) observe(source Source, res *Result, err error) {
	if e.metrics == nil {
		return
	}
	outcome := OutcomeError
	switch {
	case res != nil:
		outcome = res.Outcome
	case errors.Is(err, models.ErrTransactionNotFound):
		outcome = "not_found"
	}
	e.metrics.ObserveReconcile(string(source), string(outcome))
}

func alreadyProcessed(tr *models.Transaction) *Result {
	return &Result{
		Outcome:       OutcomeAlreadyProcessed,
		TransactionID: tr.ID,
		OperationID:   tr.Metadata.OperationID,
		Status:        tr.Status,
	}
}

func pendingResult(tr *models.Transaction, st paymentprovider.PaymentStatus) *Result {
	return &Result{
		Outcome:       OutcomePending,
		TransactionID: tr.ID,
		OperationID:   tr.Metadata.OperationID,
		Status:        models.StatusPending,
		GatewayStatus: st,
	}
}
