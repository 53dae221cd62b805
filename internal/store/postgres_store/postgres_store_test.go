package postgres_store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/felipet/lacoctelera-backend/internal/store"
	"github.com/felipet/lacoctelera-backend/internal/store/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testAccountID = "6f1f8a3e-1d1c-4a43-9a52-2b1f0c9e7d10"

var accountColumns = []string{"id", "created_at", "updated_at", "name", "email", "explanation", "state"}

func newMockStore(t *testing.T, timeout time.Duration) (*PostgresDbStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return NewPostgresStoreFromDB(db, timeout), mock
}

func accountRow(state models.AccountState) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(accountColumns).
		AddRow(testAccountID, now, now, nil, "jane@example.com", "I want to build a cocktail app", string(state))
}

func TestPostgresStore_GetAccount(t *testing.T) {
	t.Run("Malformed id is not found without a query", func(t *testing.T) {
		ps, mock := newMockStore(t, time.Second)
		_, err := ps.GetAccount(context.Background(), "not-a-uuid")
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Found", func(t *testing.T) {
		ps, mock := newMockStore(t, time.Second)
		mock.ExpectQuery(`SELECT \* FROM "api_users" WHERE id = \$1`).
			WillReturnRows(accountRow(models.AccountStateEnabled))

		account, err := ps.GetAccount(context.Background(), testAccountID)
		require.NoError(t, err)
		assert.Equal(t, testAccountID, account.ID)
		assert.Equal(t, models.AccountStateEnabled, account.State)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("No rows", func(t *testing.T) {
		ps, mock := newMockStore(t, time.Second)
		mock.ExpectQuery(`SELECT \* FROM "api_users"`).WillReturnRows(sqlmock.NewRows(accountColumns))

		_, err := ps.GetAccount(context.Background(), testAccountID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("Connection failure", func(t *testing.T) {
		ps, mock := newMockStore(t, time.Second)
		mock.ExpectQuery(`SELECT \* FROM "api_users"`).
			WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})

		_, err := ps.GetAccount(context.Background(), testAccountID)
		assert.ErrorIs(t, err, store.ErrServiceUnavailable)
	})

	t.Run("Timeout", func(t *testing.T) {
		ps, mock := newMockStore(t, 20*time.Millisecond)
		mock.ExpectQuery(`SELECT \* FROM "api_users"`).
			WillDelayFor(500 * time.Millisecond).
			WillReturnRows(accountRow(models.AccountStateEnabled))

		_, err := ps.GetAccount(context.Background(), testAccountID)
		assert.ErrorIs(t, err, store.ErrServiceUnavailable)
	})
}

func TestPostgresStore_CreateAccountDuplicatedEmail(t *testing.T) {
	ps, mock := newMockStore(t, time.Second)
	mock.ExpectExec(`INSERT INTO "api_users"`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := ps.CreateAccount(context.Background(), &models.APIUser{Email: "jane@example.com", Explanation: "again"})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Transitions(t *testing.T) {
	t.Run("Enable unconfirmed account rolls back", func(t *testing.T) {
		ps, mock := newMockStore(t, time.Second)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "api_users" WHERE id = \$1 .* FOR UPDATE`).
			WillReturnRows(accountRow(models.AccountStateRequested))
		mock.ExpectRollback()

		_, err := ps.SetAccountEnabled(context.Background(), testAccountID, true)
		assert.ErrorIs(t, err, store.ErrAccountNotValidated)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Confirm pending request", func(t *testing.T) {
		ps, mock := newMockStore(t, time.Second)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "api_users" .* FOR UPDATE`).
			WillReturnRows(accountRow(models.AccountStateRequested))
		mock.ExpectExec(`UPDATE "api_users" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		account, err := ps.SetAccountValidated(context.Background(), testAccountID, true)
		require.NoError(t, err)
		assert.Equal(t, models.AccountStateValidated, account.State)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Confirm twice writes nothing", func(t *testing.T) {
		ps, mock := newMockStore(t, time.Second)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "api_users" .* FOR UPDATE`).
			WillReturnRows(accountRow(models.AccountStateValidated))
		mock.ExpectCommit()

		account, err := ps.SetAccountValidated(context.Background(), testAccountID, true)
		require.NoError(t, err)
		assert.Equal(t, models.AccountStateValidated, account.State)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_DeleteAccount(t *testing.T) {
	ps, mock := newMockStore(t, time.Second)
	mock.ExpectExec(`DELETE FROM "api_users" WHERE id = \$1`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := ps.DeleteAccount(context.Background(), testAccountID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateAPIToken(t *testing.T) {
	now := time.Now().UTC()
	newToken := func() *models.APIToken {
		return &models.APIToken{
			TokenHash:  []byte{0x01, 0x02, 0x03},
			Created:    now,
			ValidUntil: now.Add(time.Hour),
			ClientID:   testAccountID,
		}
	}

	t.Run("Owner not enabled", func(t *testing.T) {
		ps, mock := newMockStore(t, time.Second)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "api_users" .* FOR SHARE`).
			WillReturnRows(accountRow(models.AccountStateDisabled))
		mock.ExpectRollback()

		err := ps.CreateAPIToken(context.Background(), newToken())
		assert.ErrorIs(t, err, store.ErrAccountNotEnabled)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Missing owner", func(t *testing.T) {
		ps, mock := newMockStore(t, time.Second)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "api_users" .* FOR SHARE`).
			WillReturnRows(sqlmock.NewRows(accountColumns))
		mock.ExpectRollback()

		err := ps.CreateAPIToken(context.Background(), newToken())
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("Duplicated digest", func(t *testing.T) {
		ps, mock := newMockStore(t, time.Second)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "api_users" .* FOR SHARE`).
			WillReturnRows(accountRow(models.AccountStateEnabled))
		mock.ExpectExec(`INSERT INTO "api_tokens"`).
			WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint \"api_tokens_pkey\""})
		mock.ExpectRollback()

		err := ps.CreateAPIToken(context.Background(), newToken())
		assert.ErrorIs(t, err, store.ErrAlreadyExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Empty validity window", func(t *testing.T) {
		ps, mock := newMockStore(t, time.Second)
		token := newToken()
		token.ValidUntil = token.Created
		assert.ErrorIs(t, ps.CreateAPIToken(context.Background(), token), store.ErrInvalidInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_RevokeAPITokens(t *testing.T) {
	ps, mock := newMockStore(t, time.Second)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "api_users" .* FOR SHARE`).
		WillReturnRows(accountRow(models.AccountStateEnabled))
	mock.ExpectExec(`UPDATE "api_tokens" SET "revoked_at"=.* WHERE client_id = .* AND revoked_at IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	revoked, err := ps.RevokeAPITokens(context.Background(), testAccountID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), revoked)
	assert.NoError(t, mock.ExpectationsWereMet())
}
