package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/docgen-billing/internal/models"
)

func activateAdvanced(now time.Time) func(u *models.User) error {
	return func(u *models.User) error {
		end := now.AddDate(0, 1, 0)
		u.AppMode = models.AppModeAdvanced
		u.GenerationLimit = 100
		u.MonthlyGenerations = 0
		u.BonusGenerations = 0
		u.TrialEndsAt = nil
		u.SubscriptionEndsAt = &end
		u.LastResetDate = &now
		return nil
	}
}

func TestCheckDatabaseReady(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	require.NoError(t, CheckDatabaseReady(storage))

	_, err := storage.DB.Exec(`DROP TABLE transactions`)
	require.NoError(t, err)
	assert.Error(t, CheckDatabaseReady(storage))
}

func TestStorage_GetUserByID(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	factory := NewTestDataFactory(storage)
	user := factory.CreateFreeUser(t)

	tests := []struct {
		name    string
		userID  string
		wantErr error
	}{
		{name: "existing user", userID: user.ID},
		{name: "unknown user", userID: uuid.NewString(), wantErr: models.ErrUserNotFound},
		{name: "malformed id", userID: "not-a-uuid", wantErr: models.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := storage.GetUserByID(context.Background(), tt.userID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, user.Email, got.Email)
			assert.Equal(t, models.AppModeFree, got.AppMode)
			assert.Equal(t, 5, got.GenerationLimit)
			assert.Nil(t, got.SubscriptionEndsAt)
		})
	}
}

func TestStorage_TransactionLookup(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	factory := NewTestDataFactory(storage)
	user := factory.CreateFreeUser(t)
	ctx := context.Background()

	older := factory.CreatePending(t, user.ID, models.TransactionSubscription, 1000, 10*time.Minute)
	newer := factory.CreatePending(t, user.ID, models.TransactionBonusPack, 300, 0)

	got, err := storage.GetTransactionByOperationID(ctx, older.Metadata.OperationID)
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)
	assert.Equal(t, 1000.0, got.Amount)
	assert.Equal(t, models.AppModeAdvanced, got.Metadata.TargetMode)
	assert.Equal(t, models.StatusPending, got.Status)

	_, err = storage.GetTransactionByOperationID(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrTransactionNotFound)

	latest, err := storage.GetLatestPendingTransaction(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)

	_, err = storage.GetLatestPendingTransaction(ctx, uuid.NewString())
	assert.ErrorIs(t, err, models.ErrTransactionNotFound)

	list, err := storage.ListTransactionsByUser(ctx, user.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)

	dup := *older
	dup.ID = uuid.NewString()
	_, err = storage.CreateTransaction(ctx, dup)
	assert.Error(t, err, "operationId must be unique")
}

func TestStorage_ListPendingTransactions(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	factory := NewTestDataFactory(storage)
	user := factory.CreateFreeUser(t)

	fresh := factory.CreatePending(t, user.ID, models.TransactionSubscription, 1000, time.Minute)
	eligibleOld := factory.CreatePending(t, user.ID, models.TransactionSubscription, 1000, 2*time.Hour)
	eligibleNew := factory.CreatePending(t, user.ID, models.TransactionBonusPack, 300, 10*time.Minute)
	stale := factory.CreatePending(t, user.ID, models.TransactionSubscription, 1000, 100*time.Hour)
	done := factory.CreatePending(t, user.ID, models.TransactionSubscription, 1000, time.Hour)
	_, err := storage.FailTransaction(context.Background(), done.ID, models.StatusAnnotation{ProcessedBy: "test"})
	require.NoError(t, err)

	now := time.Now()
	got, err := storage.ListPendingTransactions(context.Background(), now.Add(-3*time.Minute), now.Add(-72*time.Hour), 100)
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, tr := range got {
		ids = append(ids, tr.ID)
	}
	assert.Equal(t, []string{eligibleOld.ID, eligibleNew.ID}, ids)
	assert.NotContains(t, ids, fresh.ID)
	assert.NotContains(t, ids, stale.ID)

	limited, err := storage.ListPendingTransactions(context.Background(), now.Add(-3*time.Minute), now.Add(-72*time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, eligibleOld.ID, limited[0].ID)
}

func TestStorage_CompleteTransaction(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	factory := NewTestDataFactory(storage)
	user := factory.CreateFreeUser(t)
	tr := factory.CreatePending(t, user.ID, models.TransactionSubscription, 1000, 0)
	ctx := context.Background()
	now := time.Now().UTC()

	updated, applied, err := storage.CompleteTransaction(ctx, tr.ID,
		models.StatusAnnotation{GatewayStatus: "APPROVED", ProcessedBy: "webhook"}, activateAdvanced(now))
	require.NoError(t, err)
	require.True(t, applied)
	assert.Equal(t, models.AppModeAdvanced, updated.AppMode)

	stored, err := storage.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AppModeAdvanced, stored.AppMode)
	assert.Equal(t, 100, stored.GenerationLimit)
	require.NotNil(t, stored.SubscriptionEndsAt)
	assert.WithinDuration(t, now.AddDate(0, 1, 0), *stored.SubscriptionEndsAt, time.Second)

	got, err := storage.GetTransactionByOperationID(ctx, tr.Metadata.OperationID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, tr.Metadata.OperationID, got.Metadata.OperationID)
	assert.Equal(t, models.AppModeAdvanced, got.Metadata.TargetMode)
	assert.Equal(t, "webhook", got.Metadata.ProcessedBy)

	// повторный вызов ничего не меняет
	_, applied, err = storage.CompleteTransaction(ctx, tr.ID, models.StatusAnnotation{}, func(*models.User) error {
		t.Fatal("transition must not run for a terminal transaction")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, applied)

	failed, err := storage.FailTransaction(ctx, tr.ID, models.StatusAnnotation{GatewayStatus: "DECLINED"})
	require.NoError(t, err)
	assert.False(t, failed)
	assert.Equal(t, models.StatusCompleted, factory.TransactionStatus(t, tr.ID))
}

func TestStorage_CompleteTransaction_TransitionErrorRollsBack(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	factory := NewTestDataFactory(storage)
	user := factory.CreateFreeUser(t)
	tr := factory.CreatePending(t, user.ID, models.TransactionSubscription, 1000, 0)

	_, applied, err := storage.CompleteTransaction(context.Background(), tr.ID, models.StatusAnnotation{},
		func(*models.User) error { return errors.New("boom") })
	require.Error(t, err)
	assert.False(t, applied)
	assert.Equal(t, models.StatusPending, factory.TransactionStatus(t, tr.ID))
}

func TestStorage_CompleteTransaction_Concurrent(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	factory := NewTestDataFactory(storage)
	user := factory.CreateFreeUser(t)
	tr := factory.CreatePending(t, user.ID, models.TransactionBonusPack, 300, 0)

	const workers = 8
	var (
		wg       sync.WaitGroup
		applied  atomic.Int32
		failures atomic.Int32
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := storage.CompleteTransaction(context.Background(), tr.ID, models.StatusAnnotation{ProcessedBy: "race"},
				func(u *models.User) error {
					u.BonusGenerations += 30
					return nil
				})
			if err != nil {
				failures.Add(1)
				return
			}
			if ok {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Equal(t, int32(1), applied.Load())

	stored, err := storage.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, stored.BonusGenerations)
}

func TestStorage_FailTransaction(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	factory := NewTestDataFactory(storage)
	user := factory.CreateFreeUser(t)
	tr := factory.CreatePending(t, user.ID, models.TransactionSubscription, 1000, 0)
	ctx := context.Background()

	expected, received := 1000.0, 999.0
	ok, err := storage.FailTransaction(ctx, tr.ID, models.StatusAnnotation{
		ProcessedBy:    "webhook",
		SecurityError:  "amount mismatch",
		ExpectedAmount: &expected,
		ReceivedAmount: &received,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := storage.GetTransactionByOperationID(ctx, tr.Metadata.OperationID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "amount mismatch", got.Metadata.SecurityError)
	require.NotNil(t, got.Metadata.ReceivedAmount)
	assert.Equal(t, 999.0, *got.Metadata.ReceivedAmount)
	assert.Equal(t, tr.Metadata.OperationID, got.Metadata.OperationID)

	ok, err = storage.FailTransaction(ctx, tr.ID, models.StatusAnnotation{})
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := storage.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AppModeFree, stored.AppMode)
}
