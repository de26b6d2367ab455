package models

import "errors"

var (
	// ErrUserNotFound пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrTransactionNotFound нет транзакции с таким operationId.
	ErrTransactionNotFound = errors.New("transaction not found")
)
