package paymentprovider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// VerifyWebhookSignature проверяет HMAC-SHA256 тела уведомления.
// Подпись принимается в hex (в том числе с префиксом "sha256=") или base64.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	return VerifySignature(c.webhookSecret, body, signature)
}

// VerifySignature проверка подписи без клиента.
func VerifySignature(secret string, body []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if secret == "" || signature == "" {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	if got, err := hex.DecodeString(signature); err == nil && len(got) == sha256.Size {
		return hmac.Equal(got, expected)
	}
	if got, err := base64.StdEncoding.DecodeString(signature); err == nil && len(got) == sha256.Size {
		return hmac.Equal(got, expected)
	}
	return false
}

// Sign считает hex-подпись тела. Нужна тестам и локальной отладке webhook.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
