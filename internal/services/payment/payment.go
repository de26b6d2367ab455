// Package payment создаёт платёжные намерения: проверяет запрос, берёт цену
// из серверного каталога, получает ссылку у банка и только после этого
// сохраняет PENDING-транзакцию.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/docgen-billing/internal/lib/sl"
	"github.com/magabrotheeeer/docgen-billing/internal/models"
	"github.com/magabrotheeeer/docgen-billing/internal/paymentprovider"
)

var (
	// ErrAlreadySubscribed у пользователя уже действует запрошенный тариф.
	ErrAlreadySubscribed = errors.New("already subscribed")
	// ErrUnsupportedMode тариф нельзя купить.
	ErrUnsupportedMode = errors.New("unsupported target mode")
	// ErrSubscriptionRequired пакет генераций доступен только при действующей подписке.
	ErrSubscriptionRequired = errors.New("active subscription required")
)

// Repository методы хранилища, нужные сервису.
type Repository interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	CreateTransaction(ctx context.Context, t models.Transaction) (string, error)
	ListTransactionsByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Transaction, error)
}

// Gateway создание платёжной ссылки в банке.
type Gateway interface {
	CreatePayment(ctx context.Context, p paymentprovider.CreatePaymentRequest) (*paymentprovider.CreatePaymentResponse, error)
}

// Catalog серверные цены.
type Catalog interface {
	Price(mode models.AppMode) (float64, error)
	BonusPack() (price float64, size int)
}

// IntentMetrics учёт созданных платежей.
type IntentMetrics interface {
	ObserveIntent(purchaseType, result string)
}

// Options параметры платёжной ссылки из конфига.
type Options struct {
	CustomerCode    string
	PaymentModes    []string
	RedirectURL     string
	FailRedirectURL string
	LinkTTL         time.Duration
}

// Intent результат создания платежа для редиректа пользователя.
type Intent struct {
	TransactionID string  `json:"-"`
	PaymentLink   string  `json:"paymentLink"`
	OperationID   string  `json:"operationId"`
	Amount        float64 `json:"amount"`
	Status        string  `json:"status"`
}

// Service Payment Intent Creator.
type Service struct {
	log     *slog.Logger
	repo    Repository
	gateway Gateway
	catalog Catalog
	opts    Options
	metrics IntentMetrics
	now     func() time.Time
}

// New создаёт Service.
// metrics может быть nil.
func New(log *slog.Logger, repo Repository, gateway Gateway, catalog Catalog, opts Options, metrics IntentMetrics) *Service {
	return &Service{
		log:     log,
		repo:    repo,
		gateway: gateway,
		catalog: catalog,
		opts:    opts,
		metrics: metrics,
		now:     time.Now,
	}
}

func (s *Service) observe(t models.TransactionType, result string) {
	if s.metrics != nil {
		s.metrics.ObserveIntent(string(t), result)
	}
}

// CreateSubscriptionPayment создаёт платёж за тариф target.
func (s *Service) CreateSubscriptionPayment(ctx context.Context, userID string, target models.AppMode) (*Intent, error) {
	const op = "services.payment.CreateSubscriptionPayment"
	log := s.log.With(slog.String("op", op), slog.String("user_id", userID), slog.String("target_mode", string(target)))

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !target.Paid() {
		return nil, fmt.Errorf("%s: %w", op, ErrUnsupportedMode)
	}
	if user.EffectiveMode(s.now()) == target {
		return nil, fmt.Errorf("%s: %w", op, ErrAlreadySubscribed)
	}
	amount, err := s.catalog.Price(target)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUnsupportedMode, err)
	}

	purpose := fmt.Sprintf("Подписка %s", target)
	intent, err := s.createIntent(ctx, log, user, models.SubscriptionPurchase{TargetMode: target}, amount, purpose)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return intent, nil
}

// CreateBonusPackPayment создаёт платёж за пакет генераций.
func (s *Service) CreateBonusPackPayment(ctx context.Context, userID string) (*Intent, error) {
	const op = "services.payment.CreateBonusPackPayment"
	log := s.log.With(slog.String("op", op), slog.String("user_id", userID))

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !user.EffectiveMode(s.now()).Paid() {
		return nil, fmt.Errorf("%s: %w", op, ErrSubscriptionRequired)
	}
	price, size := s.catalog.BonusPack()
	if price <= 0 || size <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrUnsupportedMode)
	}

	purpose := fmt.Sprintf("Пакет %d генераций", size)
	intent, err := s.createIntent(ctx, log, user, models.BonusPackPurchase{Generations: size}, price, purpose)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return intent, nil
}

func (s *Service) createIntent(
	ctx context.Context,
	log *slog.Logger,
	user *models.User,
	purchase models.Purchase,
	amount float64,
	purpose string,
) (*Intent, error) {
	resp, err := s.gateway.CreatePayment(ctx, paymentprovider.CreatePaymentRequest{
		Amount:          amount,
		CustomerCode:    s.opts.CustomerCode,
		Purpose:         purpose,
		PaymentMode:     s.opts.PaymentModes,
		RedirectURL:     s.opts.RedirectURL,
		FailRedirectURL: s.opts.FailRedirectURL,
		ConsumerID:      user.ID,
		TTL:             s.opts.LinkTTL,
	})
	if err != nil {
		log.Error("failed to create payment link", sl.Err(err))
		s.observe(purchase.TransactionType(), "gateway_error")
		return nil, err
	}
	if resp.OperationID == "" || resp.PaymentLink == "" {
		s.observe(purchase.TransactionType(), "gateway_error")
		return nil, &paymentprovider.GatewayError{Op: "createIntent", Err: errors.New("empty operationId or paymentLink")}
	}

	tr := models.Transaction{
		UserID: user.ID,
		Amount: amount,
		Type:   purchase.TransactionType(),
		Status: models.StatusPending,
		Metadata: models.TransactionMetadata{
			OperationID:   resp.OperationID,
			PaymentLink:   resp.PaymentLink,
			GatewayStatus: string(resp.Status),
		},
	}
	switch p := purchase.(type) {
	case models.SubscriptionPurchase:
		tr.Metadata.TargetMode = p.TargetMode
	case models.BonusPackPurchase:
		tr.Metadata.BonusSize = p.Generations
	}

	id, err := s.repo.CreateTransaction(ctx, tr)
	if err != nil {
		log.Error("failed to save pending transaction", sl.Err(err), slog.String("operation_id", resp.OperationID))
		s.observe(purchase.TransactionType(), "store_error")
		return nil, err
	}
	s.observe(purchase.TransactionType(), "created")

	log.Info("payment intent created",
		slog.String("operation_id", resp.OperationID),
		slog.String("transaction_id", id),
		slog.Float64("amount", amount))

	return &Intent{
		TransactionID: id,
		PaymentLink:   resp.PaymentLink,
		OperationID:   resp.OperationID,
		Amount:        amount,
		Status:        string(models.StatusPending),
	}, nil
}

// ListPayments история платежей пользователя.
func (s *Service) ListPayments(ctx context.Context, userID string, limit, offset int) ([]*models.Transaction, error) {
	const op = "services.payment.ListPayments"
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	res, err := s.repo.ListTransactionsByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}
