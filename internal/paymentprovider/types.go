package paymentprovider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PaymentStatus нормализованный статус операции эквайринга.
type PaymentStatus string

const (
	StatusCreated    PaymentStatus = "CREATED"
	StatusAuthorized PaymentStatus = "AUTHORIZED"
	StatusApproved   PaymentStatus = "APPROVED"
	StatusCompleted  PaymentStatus = "COMPLETED"
	StatusDeclined   PaymentStatus = "DECLINED"
	StatusCancelled  PaymentStatus = "CANCELLED"
	StatusExpired    PaymentStatus = "EXPIRED"
	StatusRefunded   PaymentStatus = "REFUNDED"
	StatusUnknown    PaymentStatus = "UNKNOWN"
)

// NormalizeStatus приводит строку статуса из ответа или webhook к PaymentStatus.
func NormalizeStatus(raw string) PaymentStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CREATED", "PENDING", "PROCESSING":
		return StatusCreated
	case "AUTHORIZED":
		return StatusAuthorized
	case "APPROVED":
		return StatusApproved
	case "COMPLETED", "SUCCEEDED", "PAID":
		return StatusCompleted
	case "DECLINED", "REJECTED":
		return StatusDeclined
	case "CANCELLED", "CANCELED":
		return StatusCancelled
	case "EXPIRED":
		return StatusExpired
	case "REFUNDED", "REFUNDED_PARTIALLY":
		return StatusRefunded
	default:
		return StatusUnknown
	}
}

// Succeeded деньги получены.
func (s PaymentStatus) Succeeded() bool {
	switch s {
	case StatusAuthorized, StatusApproved, StatusCompleted:
		return true
	}
	return false
}

// Failed операция завершилась без оплаты.
func (s PaymentStatus) Failed() bool {
	switch s {
	case StatusDeclined, StatusCancelled, StatusExpired, StatusRefunded:
		return true
	}
	return false
}

// Amount сумма в рублях. Точка присылает её то числом, то строкой.
type Amount float64

// UnmarshalJSON принимает 1000, 1000.5 и "1000.50".
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", s, err)
	}
	*a = Amount(v)
	return nil
}

// CreatePaymentRequest параметры платёжной ссылки.
type CreatePaymentRequest struct {
	Amount          float64
	CustomerCode    string
	Purpose         string
	PaymentMode     []string
	RedirectURL     string
	FailRedirectURL string
	ConsumerID      string
	TTL             time.Duration
}

// CreatePaymentResponse ответ на создание платёжной ссылки.
type CreatePaymentResponse struct {
	OperationID string
	PaymentLink string
	Status      PaymentStatus
}

// PaymentStatusResponse текущее состояние операции.
// Amount равен nil, если банк сумму не вернул.
type PaymentStatusResponse struct {
	Status    PaymentStatus
	RawStatus string
	Amount    *float64
}

// WebhookEvent тело уведомления об изменении статуса операции.
type WebhookEvent struct {
	OperationID string  `json:"operationId"`
	Status      string  `json:"status"`
	Amount      *Amount `json:"amount"`
	ConsumerID  string  `json:"consumerId"`
}

// AmountValue возвращает сумму из уведомления или nil.
func (e *WebhookEvent) AmountValue() *float64 {
	if e.Amount == nil {
		return nil
	}
	v := float64(*e.Amount)
	return &v
}

type createPaymentBody struct {
	Data createPaymentData `json:"Data"`
}

type createPaymentData struct {
	CustomerCode    string   `json:"customerCode"`
	Amount          string   `json:"amount"`
	Purpose         string   `json:"purpose"`
	PaymentMode     []string `json:"paymentMode"`
	RedirectURL     string   `json:"redirectUrl,omitempty"`
	FailRedirectURL string   `json:"failRedirectUrl,omitempty"`
	ConsumerID      string   `json:"consumerId,omitempty"`
	TTL             int      `json:"ttl,omitempty"`
}

type createPaymentEnvelope struct {
	Data struct {
		OperationID string `json:"operationId"`
		PaymentLink string `json:"paymentLink"`
		Status      string `json:"status"`
	} `json:"Data"`
}

type paymentInfoEnvelope struct {
	Data struct {
		Operation []struct {
			OperationID string  `json:"operationId"`
			Status      string  `json:"status"`
			Amount      *Amount `json:"amount"`
		} `json:"Operation"`
	} `json:"Data"`
}
