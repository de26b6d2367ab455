package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/docgen-billing/internal/models"
)

const userColumns = `id, email, username, role, app_mode, generation_limit, monthly_generations,
	bonus_generations, trial_ends_at, trial_generations, subscription_ends_at, last_reset_date,
	created_at, updated_at`

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	var trialEndsAt, subscriptionEndsAt, lastResetDate sql.NullTime
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.Role, &u.AppMode,
		&u.GenerationLimit, &u.MonthlyGenerations, &u.BonusGenerations,
		&trialEndsAt, &u.TrialGenerations, &subscriptionEndsAt, &lastResetDate,
		&u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.TrialEndsAt = nullTimePtr(trialEndsAt)
	u.SubscriptionEndsAt = nullTimePtr(subscriptionEndsAt)
	u.LastResetDate = nullTimePtr(lastResetDate)
	return &u, nil
}

// CreateUser сохраняет пользователя и возвращает его ID.
// Регистрация живёт во внешнем сервисе; метод нужен для синхронизации и тестов.
func (s *Storage) CreateUser(ctx context.Context, user models.User) (string, error) {
	const op = "storage.CreateUser"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	if user.AppMode == "" {
		user.AppMode = models.AppModeFree
	}

	query := `INSERT INTO users (id, email, username, role, app_mode, generation_limit,
			      monthly_generations, bonus_generations, trial_ends_at, trial_generations,
			      subscription_ends_at, last_reset_date)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			  RETURNING id`
	var newID string
	if err := s.DB.QueryRowContext(ctx, query,
		user.ID, user.Email, user.Username, user.Role, user.AppMode, user.GenerationLimit,
		user.MonthlyGenerations, user.BonusGenerations, user.TrialEndsAt, user.TrialGenerations,
		user.SubscriptionEndsAt, user.LastResetDate).Scan(&newID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// GetUserByID возвращает пользователя по его ID.
func (s *Storage) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	const op = "storage.GetUserByID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if _, err := uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, models.ErrUserNotFound)
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func updateEntitlement(ctx context.Context, tx *sql.Tx, u *models.User) error {
	query := `UPDATE users
			  SET app_mode = $2,
			      generation_limit = $3,
			      monthly_generations = $4,
			      bonus_generations = $5,
			      trial_ends_at = $6,
			      trial_generations = $7,
			      subscription_ends_at = $8,
			      last_reset_date = $9,
			      updated_at = NOW()
			  WHERE id = $1`
	_, err := tx.ExecContext(ctx, query, u.ID, u.AppMode, u.GenerationLimit, u.MonthlyGenerations,
		u.BonusGenerations, u.TrialEndsAt, u.TrialGenerations, u.SubscriptionEndsAt, u.LastResetDate)
	return err
}
