package paymentprovider

import (
	"errors"
	"fmt"
)

// ErrGateway общий признак ошибки банка: сеть, код ответа, битое тело.
var ErrGateway = errors.New("payment gateway error")

// GatewayError ошибка обращения к API эквайринга.
type GatewayError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: gateway responded %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Is позволяет проверять errors.Is(err, ErrGateway).
func (e *GatewayError) Is(target error) bool { return target == ErrGateway }
