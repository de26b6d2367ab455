package rabbitmq

// Exchange куда публикуются события биллинга.
const Exchange = "billing"

// Ключи маршрутизации событий.
const (
	RoutingPaymentActivated = "payment.activated"
	RoutingSecurityAlert    = "security.alert"
)

// Очереди сервиса уведомлений.
const (
	QueuePaymentActivated = "billing.payment_activated"
	QueueSecurityAlert    = "billing.security_alert"
)

// QueueConfig очередь и ключ, которым она привязана к exchange.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetBillingQueues очереди, которые читает сервис уведомлений.
func GetBillingQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: QueuePaymentActivated, RoutingKey: RoutingPaymentActivated},
		{QueueName: QueueSecurityAlert, RoutingKey: RoutingSecurityAlert},
	}
}
