package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func getTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second),
		),
	)
	require.NoError(t, err)

	dsn, err := pgContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return db, cleanup
}

func getMigrationsPath(t *testing.T) string {
	projectRoot, err := filepath.Abs("../..")
	require.NoError(t, err)

	migrationsPath := filepath.Join(projectRoot, "migrations")
	t.Logf("Migrations path: %s", migrationsPath)
	return migrationsPath
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var exists bool
	err := db.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)
	`, name).Scan(&exists)
	require.NoError(t, err)
	return exists
}

func TestRunMigrations(t *testing.T) {
	db, cleanup := getTestDB(t)
	defer cleanup()

	err := Run(db, getMigrationsPath(t))
	require.NoError(t, err)

	require.True(t, tableExists(t, db, "users"), "Table 'users' should exist")
	require.True(t, tableExists(t, db, "transactions"), "Table 'transactions' should exist")

	var exists bool
	err = db.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM pg_indexes
			WHERE schemaname = 'public'
			AND tablename = 'transactions'
			AND indexname = 'idx_transactions_operation_id'
		)
	`).Scan(&exists)
	require.NoError(t, err)
	require.True(t, exists, "Unique operationId index should exist")
}

func TestOperationIDIsUnique(t *testing.T) {
	db, cleanup := getTestDB(t)
	defer cleanup()

	require.NoError(t, Run(db, getMigrationsPath(t)))

	_, err := db.Exec(`INSERT INTO users (id, email, username) VALUES ('11111111-1111-1111-1111-111111111111', 'a@test.ru', 'a')`)
	require.NoError(t, err)

	insert := `INSERT INTO transactions (id, user_id, amount, type, metadata)
		VALUES ($1, '11111111-1111-1111-1111-111111111111', 1000, 'SUBSCRIPTION', '{"operationId":"op-1","targetMode":"ADVANCED"}')`
	_, err = db.Exec(insert, "22222222-2222-2222-2222-222222222222")
	require.NoError(t, err)
	_, err = db.Exec(insert, "33333333-3333-3333-3333-333333333333")
	require.Error(t, err, "duplicate operationId must be rejected")

	_, err = db.Exec(`INSERT INTO transactions (id, user_id, amount, type, metadata)
		VALUES ('44444444-4444-4444-4444-444444444444', '11111111-1111-1111-1111-111111111111', 1000, 'SUBSCRIPTION', '{}')`)
	require.Error(t, err, "operationId is mandatory")
}

func TestMigrationIdempotency(t *testing.T) {
	db, cleanup := getTestDB(t)
	defer cleanup()

	migrationsPath := getMigrationsPath(t)

	err := Run(db, migrationsPath)
	require.NoError(t, err)

	err = Run(db, migrationsPath)
	require.NoError(t, err, "Running migrations twice should not fail")
	require.True(t, tableExists(t, db, "transactions"))
}
