package models

import (
	"fmt"
	"time"
)

// TransactionType вид покупки.
type TransactionType string

const (
	TransactionSubscription TransactionType = "SUBSCRIPTION"
	TransactionBonusPack    TransactionType = "BONUS_PACK"
)

// TransactionStatus статус платёжной транзакции.
// COMPLETED и FAILED терминальны: из них переходов нет.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"
)

// Terminal сообщает, является ли статус конечным.
func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Transaction одна попытка оплаты.
type Transaction struct {
	ID        string
	UserID    string
	Amount    float64 // Сумма в рублях
	Type      TransactionType
	Status    TransactionStatus
	Metadata  TransactionMetadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TransactionMetadata хранится в JSONB-колонке metadata.
// OperationID задаётся при создании и больше не меняется.
type TransactionMetadata struct {
	OperationID    string   `json:"operationId"`
	TargetMode     AppMode  `json:"targetMode,omitempty"`
	BonusSize      int      `json:"bonusGenerations,omitempty"`
	PaymentLink    string   `json:"paymentLink,omitempty"`
	GatewayStatus  string   `json:"gatewayStatus,omitempty"`
	ProcessedBy    string   `json:"processedBy,omitempty"`
	ProcessedAt    string   `json:"processedAt,omitempty"`
	SecurityError  string   `json:"securityError,omitempty"`
	ExpectedAmount *float64 `json:"expectedAmount,omitempty"`
	ReceivedAmount *float64 `json:"receivedAmount,omitempty"`
}

// StatusAnnotation дописывается в metadata при терминальном переходе.
// operationId в ней нет, поэтому слияние JSONB не может его перезаписать.
type StatusAnnotation struct {
	GatewayStatus  string   `json:"gatewayStatus,omitempty"`
	ProcessedBy    string   `json:"processedBy,omitempty"`
	ProcessedAt    string   `json:"processedAt,omitempty"`
	SecurityError  string   `json:"securityError,omitempty"`
	ExpectedAmount *float64 `json:"expectedAmount,omitempty"`
	ReceivedAmount *float64 `json:"receivedAmount,omitempty"`
}

// Purchase что именно оплачено транзакцией.
// Реализации: SubscriptionPurchase и BonusPackPurchase.
type Purchase interface {
	TransactionType() TransactionType
	sealed()
}

// SubscriptionPurchase оплата тарифа на период.
type SubscriptionPurchase struct {
	TargetMode AppMode
}

// BonusPackPurchase покупка пакета дополнительных генераций.
type BonusPackPurchase struct {
	Generations int
}

func (SubscriptionPurchase) TransactionType() TransactionType { return TransactionSubscription }
func (BonusPackPurchase) TransactionType() TransactionType    { return TransactionBonusPack }

func (SubscriptionPurchase) sealed() {}
func (BonusPackPurchase) sealed()    {}

// Purchase восстанавливает вид покупки из типа и metadata транзакции.
func (t *Transaction) Purchase() (Purchase, error) {
	switch t.Type {
	case TransactionSubscription:
		if !t.Metadata.TargetMode.Paid() {
			return nil, fmt.Errorf("transaction %s: invalid target mode %q", t.ID, t.Metadata.TargetMode)
		}
		return SubscriptionPurchase{TargetMode: t.Metadata.TargetMode}, nil
	case TransactionBonusPack:
		return BonusPackPurchase{Generations: t.Metadata.BonusSize}, nil
	default:
		return nil, fmt.Errorf("transaction %s: unknown type %q", t.ID, t.Type)
	}
}
