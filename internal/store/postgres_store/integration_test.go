package postgres_store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/felipet/lacoctelera-backend/coredb"
	"github.com/felipet/lacoctelera-backend/internal/store"
	"github.com/felipet/lacoctelera-backend/internal/store/models"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// startPostgres runs a throwaway postgres, applies the migrations and returns a
// connected store. Skipped unless LACOCTELERA_INTEGRATION=1.
func startPostgres(t *testing.T) *PostgresDbStore {
	t.Helper()
	if os.Getenv("LACOCTELERA_INTEGRATION") != "1" {
		t.Skip("set LACOCTELERA_INTEGRATION=1 to run postgres integration tests")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("lacoctelera"),
		tcpostgres.WithUsername("lacoctelera"),
		tcpostgres.WithPassword("lacoctelera"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(ctr)
	})

	uri, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	sqldb, err := sql.Open("postgres", uri)
	require.NoError(t, err)
	defer sqldb.Close()
	goose.SetBaseFS(coredb.Migrations)
	require.NoError(t, goose.SetDialect("postgres"))
	require.NoError(t, goose.Up(sqldb, "migrations"))

	ps := NewPostgresStore(uri, 5*time.Second)
	cleanup, err := ps.Initialize()
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return ps
}

func digest(s string) []byte {
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}

func TestPostgresStore_Integration(t *testing.T) {
	ps := startPostgres(t)
	ctx := context.Background()
	require.NoError(t, ps.Ping(ctx))

	account := &models.APIUser{Email: "Bartender@Example.com", Explanation: "Mixing drinks through the API"}
	require.NoError(t, ps.CreateAccount(ctx, account))

	t.Run("Email is unique ignoring case", func(t *testing.T) {
		err := ps.CreateAccount(ctx, &models.APIUser{Email: "bartender@example.com", Explanation: "dup"})
		assert.ErrorIs(t, err, store.ErrAlreadyExists)

		found, err := ps.GetAccountByEmail(ctx, "BARTENDER@example.com")
		require.NoError(t, err)
		assert.Equal(t, account.ID, found.ID)
	})

	t.Run("Tokens require an enabled account", func(t *testing.T) {
		now := time.Now().UTC()
		token := &models.APIToken{TokenHash: digest("early"), Created: now, ValidUntil: now.Add(time.Hour), ClientID: account.ID}
		assert.ErrorIs(t, ps.CreateAPIToken(ctx, token), store.ErrAccountNotValidated)

		_, err := ps.SetAccountEnabled(ctx, account.ID, true)
		assert.ErrorIs(t, err, store.ErrAccountNotValidated)

		_, err = ps.SetAccountValidated(ctx, account.ID, true)
		require.NoError(t, err)
		assert.ErrorIs(t, ps.CreateAPIToken(ctx, token), store.ErrAccountNotEnabled)

		enabled, err := ps.SetAccountEnabled(ctx, account.ID, true)
		require.NoError(t, err)
		assert.Equal(t, models.AccountStateEnabled, enabled.State)
		require.NoError(t, ps.CreateAPIToken(ctx, token))

		got, err := ps.GetAPIToken(ctx, token.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, account.ID, got.ClientID)
	})

	t.Run("Concurrent inserts of one digest", func(t *testing.T) {
		now := time.Now().UTC()
		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded := 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := ps.CreateAPIToken(ctx, &models.APIToken{
					TokenHash: digest("race"), Created: now, ValidUntil: now.Add(time.Hour), ClientID: account.ID,
				})
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					succeeded++
				} else {
					assert.ErrorIs(t, err, store.ErrAlreadyExists)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, succeeded)
	})

	t.Run("Revocation keeps the digest taken", func(t *testing.T) {
		now := time.Now().UTC()
		token := &models.APIToken{TokenHash: digest("revoked"), Created: now, ValidUntil: now.Add(time.Hour), ClientID: account.ID}
		require.NoError(t, ps.CreateAPIToken(ctx, token))

		revoked, err := ps.RevokeAPITokens(ctx, account.ID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, revoked, int64(1))

		got, err := ps.GetAPIToken(ctx, token.TokenHash)
		require.NoError(t, err)
		assert.True(t, got.IsRevoked())
		assert.ErrorIs(t, ps.CreateAPIToken(ctx, token), store.ErrAlreadyExists)
	})

	t.Run("Delete cascades to tokens", func(t *testing.T) {
		tokens, err := ps.GetAPITokensByAccount(ctx, account.ID)
		require.NoError(t, err)
		require.NotEmpty(t, tokens)

		require.NoError(t, ps.DeleteAccount(ctx, account.ID))
		for _, token := range tokens {
			_, err := ps.GetAPIToken(ctx, token.TokenHash)
			assert.ErrorIs(t, err, store.ErrNotFound, fmt.Sprintf("token %s survived", token.Ref()))
		}
		assert.ErrorIs(t, ps.DeleteAccount(ctx, account.ID), store.ErrNotFound)
	})
}
