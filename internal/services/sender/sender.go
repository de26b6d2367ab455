// Package sender почтовые уведомления о событиях оплаты из RabbitMQ.
package sender

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/docgen-billing/internal/lib/sl"
	"github.com/magabrotheeeer/docgen-billing/internal/lib/smtp"
	"github.com/magabrotheeeer/docgen-billing/internal/models"
)

// ErrNoRecipient адрес получателя не известен.
var ErrNoRecipient = errors.New("no recipient")

// SenderService отправляет письма по событиям оплаты.
type SenderService struct {
	transport  smtp.TransportInterface
	adminEmail string
	log        *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(transport smtp.TransportInterface, adminEmail string, log *slog.Logger) *SenderService {
	return &SenderService{
		transport:  transport,
		adminEmail: adminEmail,
		log:        log,
	}
}

// SendActivationNotice письмо пользователю об успешной активации оплаты.
func (s *SenderService) SendActivationNotice(body []byte) error {
	var event models.PaymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}
	if event.Email == "" {
		s.log.Warn("activation event without email", slog.String("user_id", event.UserID))
		return nil
	}

	name := event.Username
	if name == "" {
		name = event.Email
	}
	var subject, text string
	switch event.Type {
	case models.TransactionBonusPack:
		subject = "Пакет генераций подключён"
		text = fmt.Sprintf("Здравствуйте, %s!\n\nОплата %.2f ₽ получена, дополнительные генерации уже доступны.", name, event.Amount)
	default:
		subject = "Подписка активирована"
		text = fmt.Sprintf("Здравствуйте, %s!\n\nОплата %.2f ₽ получена, тариф %s активирован.", name, event.Amount, event.AppMode)
	}
	if event.ValidUntil != nil {
		text += fmt.Sprintf("\nДействует до %s.", event.ValidUntil.Format("02.01.2006"))
	}

	return s.sendEmail([]string{event.Email}, subject, text)
}

// SendSecurityAlert письмо администратору о платеже с неверной суммой.
func (s *SenderService) SendSecurityAlert(body []byte) error {
	var event models.PaymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}
	if s.adminEmail == "" {
		s.log.Error("security alert dropped: admin email is not configured",
			slog.String("operation_id", event.OperationID))
		return ErrNoRecipient
	}

	received := "неизвестно"
	if event.ReceivedAmount != nil {
		received = fmt.Sprintf("%.2f", *event.ReceivedAmount)
	}
	text := fmt.Sprintf("Несовпадение суммы платежа.\n\nОперация: %s\nТранзакция: %s\nПользователь: %s\nОжидалось: %.2f\nПолучено: %s\nИсточник: %s\nВремя: %s",
		event.OperationID, event.TransactionID, event.UserID, event.Amount, received, event.Source,
		event.OccurredAt.Format("2006-01-02 15:04:05 MST"))

	return s.sendEmail([]string{s.adminEmail}, "SECURITY: несовпадение суммы платежа", text)
}

func (s *SenderService) sendEmail(to []string, subject, bodyText string) error {
	from := s.transport.Sender()
	msg := strings.Join([]string{
		"From: " + from,
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer client.Close()

	if err := client.Mail(from); err != nil {
		s.log.Error("failed to set MAIL FROM", slog.String("from", from), sl.Err(err))
		return err
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}
	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}
	if err = wc.Close(); err != nil {
		s.log.Error("failed to close Data writer", sl.Err(err))
		return err
	}
	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent successfully", slog.Any("to", to))
	return nil
}
