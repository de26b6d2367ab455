package models

import "time"

// PaymentEvent сообщение в RabbitMQ об активации оплаты или о подозрительном платеже.
type PaymentEvent struct {
	TransactionID  string          `json:"transaction_id"`
	OperationID    string          `json:"operation_id"`
	UserID         string          `json:"user_id"`
	Email          string          `json:"email,omitempty"`
	Username       string          `json:"username,omitempty"`
	Type           TransactionType `json:"type"`
	AppMode        AppMode         `json:"app_mode,omitempty"`
	Amount         float64         `json:"amount"`
	ReceivedAmount *float64        `json:"received_amount,omitempty"`
	Source         string          `json:"source"`
	ValidUntil     *time.Time      `json:"valid_until,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}
