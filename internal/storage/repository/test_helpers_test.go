package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/docgen-billing/internal/migrations"
	"github.com/magabrotheeeer/docgen-billing/internal/models"
)

// TestDataFactory содержит методы для создания тестовых данных
type TestDataFactory struct {
	storage *Storage
}

// NewTestDataFactory создает новую фабрику тестовых данных
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreateFreeUser создает пользователя на бесплатном тарифе
func (f *TestDataFactory) CreateFreeUser(t *testing.T) *models.User {
	t.Helper()
	u := models.User{
		ID:              uuid.NewString(),
		Email:           uuid.NewString() + "@example.com",
		Username:        "testuser",
		Role:            models.RoleUser,
		AppMode:         models.AppModeFree,
		GenerationLimit: 5,
	}
	_, err := f.storage.CreateUser(context.Background(), u)
	require.NoError(t, err)
	return &u
}

// CreatePending создает PENDING-транзакцию с заданным возрастом
func (f *TestDataFactory) CreatePending(t *testing.T, userID string, typ models.TransactionType, amount float64, age time.Duration) *models.Transaction {
	t.Helper()
	tr := models.Transaction{
		ID:     uuid.NewString(),
		UserID: userID,
		Amount: amount,
		Type:   typ,
		Status: models.StatusPending,
		Metadata: models.TransactionMetadata{
			OperationID: "op-" + uuid.NewString(),
			PaymentLink: "https://pay.test/link",
		},
	}
	if typ == models.TransactionSubscription {
		tr.Metadata.TargetMode = models.AppModeAdvanced
	} else {
		tr.Metadata.BonusSize = 30
	}
	_, err := f.storage.CreateTransaction(context.Background(), tr)
	require.NoError(t, err)

	if age > 0 {
		_, err = f.storage.DB.Exec(`UPDATE transactions SET created_at = NOW() - make_interval(secs => $2) WHERE id = $1`,
			tr.ID, age.Seconds())
		require.NoError(t, err)
	}
	return &tr
}

// TransactionStatus читает статус транзакции напрямую из БД
func (f *TestDataFactory) TransactionStatus(t *testing.T, id string) models.TransactionStatus {
	t.Helper()
	var status models.TransactionStatus
	err := f.storage.DB.QueryRow(`SELECT status FROM transactions WHERE id = $1`, id).Scan(&status)
	require.NoError(t, err)
	return status
}

// setupTestDatabase поднимает PostgreSQL в контейнере и накатывает миграции
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err, "failed to start container")

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Пробуем подключиться несколько раз с ретраями
	var storage *Storage
	for range 10 {
		storage, err = New(connStr)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, err, "Failed to create storage after retries")

	migrationsPath, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, migrationsPath))

	cleanup := func() {
		if storage != nil && storage.DB != nil {
			_ = storage.DB.Close()
		}
		_ = pgContainer.Terminate(ctx)
	}
	return storage, cleanup
}
