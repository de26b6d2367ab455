package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/docgen-billing/internal/models"
)

const transactionColumns = `id, user_id, amount::float8, type, status, metadata, created_at, updated_at`

func scanTransaction(row scanner) (*models.Transaction, error) {
	var t models.Transaction
	var metadata []byte
	if err := row.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.Status, &metadata,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of %s: %w", t.ID, err)
	}
	return &t, nil
}

func scanTransactions(rows *sql.Rows) ([]*models.Transaction, error) {
	defer func() {
		_ = rows.Close()
	}()
	var result []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateTransaction сохраняет новую PENDING-транзакцию и возвращает её ID.
func (s *Storage) CreateTransaction(ctx context.Context, t models.Transaction) (string, error) {
	const op = "storage.CreateTransaction"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if t.Metadata.OperationID == "" {
		return "", fmt.Errorf("%s: empty operationId", op)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = models.StatusPending
	}
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO transactions (id, user_id, amount, type, status, metadata)
			  VALUES ($1, $2, $3, $4, $5, $6::jsonb)
			  RETURNING id`
	var newID string
	if err := s.DB.QueryRowContext(ctx, query,
		t.ID, t.UserID, t.Amount, t.Type, t.Status, string(metadata)).Scan(&newID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// GetTransactionByOperationID ищет транзакцию по operationId банка.
func (s *Storage) GetTransactionByOperationID(ctx context.Context, operationID string) (*models.Transaction, error) {
	const op = "storage.GetTransactionByOperationID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + transactionColumns + `
			  FROM transactions
			  WHERE metadata->>'operationId' = $1`
	t, err := scanTransaction(s.DB.QueryRowContext(ctx, query, operationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrTransactionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

// GetLatestPendingTransaction возвращает самую свежую PENDING-транзакцию пользователя.
func (s *Storage) GetLatestPendingTransaction(ctx context.Context, userID string) (*models.Transaction, error) {
	const op = "storage.GetLatestPendingTransaction"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + transactionColumns + `
			  FROM transactions
			  WHERE user_id = $1 AND status = 'PENDING'
			  ORDER BY created_at DESC
			  LIMIT 1`
	t, err := scanTransaction(s.DB.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrTransactionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

// ListPendingTransactions отбирает кандидатов для фоновой сверки:
// PENDING, создана раньше olderThan и позже newerThan, от старых к новым.
func (s *Storage) ListPendingTransactions(ctx context.Context, olderThan, newerThan time.Time, limit int) ([]*models.Transaction, error) {
	const op = "storage.ListPendingTransactions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + transactionColumns + `
			  FROM transactions
			  WHERE status = 'PENDING'
			    AND type IN ('SUBSCRIPTION', 'BONUS_PACK')
			    AND created_at < $1
			    AND created_at > $2
			  ORDER BY created_at ASC
			  LIMIT $3`
	rows, err := s.DB.QueryContext(ctx, query, olderThan, newerThan, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	result, err := scanTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ListTransactionsByUser возвращает историю платежей пользователя, новые первыми.
func (s *Storage) ListTransactionsByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Transaction, error) {
	const op = "storage.ListTransactionsByUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + transactionColumns + `
			  FROM transactions
			  WHERE user_id = $1
			  ORDER BY created_at DESC
			  LIMIT $2 OFFSET $3`
	rows, err := s.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	result, err := scanTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CompleteTransaction переводит транзакцию PENDING -> COMPLETED и в той же
// SQL-транзакции применяет transition к строке пользователя (SELECT ... FOR UPDATE).
// Если транзакция уже не PENDING, ничего не меняется и applied = false.
func (s *Storage) CompleteTransaction(
	ctx context.Context,
	id string,
	annotation models.StatusAnnotation,
	transition func(u *models.User) error,
) (user *models.User, applied bool, err error) {
	const op = "storage.CompleteTransaction"
	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	patch, err := json.Marshal(annotation)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var userID string
	err = tx.QueryRowContext(ctx, `UPDATE transactions
			  SET status = 'COMPLETED',
			      metadata = metadata || $2::jsonb,
			      updated_at = NOW()
			  WHERE id = $1 AND status = 'PENDING'
			  RETURNING user_id`, id, string(patch)).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	u, err := scanUser(tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("%s: %w", op, models.ErrUserNotFound)
		}
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if err := transition(u); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	if err := updateEntitlement(ctx, tx, u); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return u, true, nil
}

// FailTransaction переводит транзакцию PENDING -> FAILED.
// Возвращает false, если транзакция уже в терминальном статусе.
func (s *Storage) FailTransaction(ctx context.Context, id string, annotation models.StatusAnnotation) (bool, error) {
	const op = "storage.FailTransaction"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	patch, err := json.Marshal(annotation)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	result, err := s.DB.ExecContext(ctx, `UPDATE transactions
			  SET status = 'FAILED',
			      metadata = metadata || $2::jsonb,
			      updated_at = NOW()
			  WHERE id = $1 AND status = 'PENDING'`, id, string(patch))
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected == 1, nil
}
