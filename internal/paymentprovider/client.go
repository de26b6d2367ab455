// Package paymentprovider клиент интернет-эквайринга Точка Банка.
package paymentprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client обращается к API эквайринга. Состояния между вызовами не хранит.
type Client struct {
	apiURL        string
	token         string
	webhookSecret string
	httpClient    *http.Client
}

// NewClient создаёт новый клиент Точки
func NewClient(baseURL, token, webhookSecret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		apiURL:        strings.TrimRight(baseURL, "/"),
		token:         token,
		webhookSecret: webhookSecret,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request, op string, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(msg)))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// CreatePayment создаёт платёжную ссылку. Ответ без operationId или paymentLink считается ошибкой.
func (c *Client) CreatePayment(ctx context.Context, p CreatePaymentRequest) (*CreatePaymentResponse, error) {
	const op = "paymentprovider.CreatePayment"

	body := createPaymentBody{Data: createPaymentData{
		CustomerCode:    p.CustomerCode,
		Amount:          strconv.FormatFloat(p.Amount, 'f', 2, 64),
		Purpose:         p.Purpose,
		PaymentMode:     p.PaymentMode,
		RedirectURL:     p.RedirectURL,
		FailRedirectURL: p.FailRedirectURL,
		ConsumerID:      p.ConsumerID,
		TTL:             int(p.TTL / time.Minute),
	}}
	req, err := c.newRequest(ctx, http.MethodPost, "/acquiring/v1.0/payments", body)
	if err != nil {
		return nil, &GatewayError{Op: op, Err: err}
	}

	var env createPaymentEnvelope
	if err := c.do(req, op, &env); err != nil {
		return nil, err
	}
	if env.Data.OperationID == "" || env.Data.PaymentLink == "" {
		return nil, &GatewayError{Op: op, Err: errors.New("response misses operationId or paymentLink")}
	}
	return &CreatePaymentResponse{
		OperationID: env.Data.OperationID,
		PaymentLink: env.Data.PaymentLink,
		Status:      NormalizeStatus(env.Data.Status),
	}, nil
}

// GetPaymentStatus запрашивает статус и сумму операции.
func (c *Client) GetPaymentStatus(ctx context.Context, operationID string) (*PaymentStatusResponse, error) {
	const op = "paymentprovider.GetPaymentStatus"

	if operationID == "" {
		return nil, &GatewayError{Op: op, Err: errors.New("empty operationId")}
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/acquiring/v1.0/payments/"+url.PathEscape(operationID), nil)
	if err != nil {
		return nil, &GatewayError{Op: op, Err: err}
	}

	var env paymentInfoEnvelope
	if err := c.do(req, op, &env); err != nil {
		return nil, err
	}
	if len(env.Data.Operation) == 0 {
		return nil, &GatewayError{Op: op, Err: errors.New("response has no operations")}
	}
	info := env.Data.Operation[0]
	res := &PaymentStatusResponse{
		Status:    NormalizeStatus(info.Status),
		RawStatus: info.Status,
	}
	if info.Amount != nil {
		v := float64(*info.Amount)
		res.Amount = &v
	}
	return res, nil
}
