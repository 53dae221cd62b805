package memory_store

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/felipet/lacoctelera-backend/internal/store"
	"github.com/felipet/lacoctelera-backend/internal/store/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hashOf(s string) []byte {
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}

func seedAccount(t *testing.T, s *MemoryStore, state models.AccountState) *models.APIUser {
	t.Helper()
	account := &models.APIUser{
		Email:       gofakeit.Email(),
		Explanation: gofakeit.Sentence(8),
		State:       state,
	}
	require.NoError(t, s.CreateAccount(context.Background(), account))
	return account
}

func seedToken(t *testing.T, s *MemoryStore, accountID, secret string, validity time.Duration) *models.APIToken {
	t.Helper()
	now := time.Now().UTC()
	token := &models.APIToken{
		TokenHash:  hashOf(secret),
		Created:    now,
		ValidUntil: now.Add(validity),
		ClientID:   accountID,
	}
	require.NoError(t, s.CreateAPIToken(context.Background(), token))
	return token
}

func TestMemoryStore_CreateAccount(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	account := &models.APIUser{Email: "Jane.Doe@example.com", Explanation: "Testing the API"}
	require.NoError(t, s.CreateAccount(ctx, account))
	assert.NotEmpty(t, account.ID)
	assert.Equal(t, models.AccountStateRequested, account.State)
	assert.False(t, account.CreatedAt.IsZero())

	got, err := s.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.Email, got.Email)

	byEmail, err := s.GetAccountByEmail(ctx, "jane.doe@EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, account.ID, byEmail.ID)

	t.Run("Duplicated email", func(t *testing.T) {
		err := s.CreateAccount(ctx, &models.APIUser{Email: "jane.doe@example.com", Explanation: "again"})
		assert.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("Missing email", func(t *testing.T) {
		err := s.CreateAccount(ctx, &models.APIUser{Explanation: "no email"})
		assert.ErrorIs(t, err, store.ErrInvalidInput)
	})

	t.Run("Unknown account", func(t *testing.T) {
		_, err := s.GetAccount(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("Returned records are copies", func(t *testing.T) {
		got.State = models.AccountStateEnabled
		again, err := s.GetAccount(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, models.AccountStateRequested, again.State)
	})
}

func TestMemoryStore_Transitions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	account := seedAccount(t, s, models.AccountStateRequested)

	_, err := s.SetAccountEnabled(ctx, account.ID, true)
	assert.ErrorIs(t, err, store.ErrAccountNotValidated)

	updated, err := s.SetAccountValidated(ctx, account.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStateValidated, updated.State)

	// Idempotent confirmation
	again, err := s.SetAccountValidated(ctx, account.ID, true)
	require.NoError(t, err)
	assert.Equal(t, updated.State, again.State)
	assert.Equal(t, updated.UpdatedAt, again.UpdatedAt)

	updated, err = s.SetAccountEnabled(ctx, account.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStateEnabled, updated.State)

	updated, err = s.SetAccountEnabled(ctx, account.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStateDisabled, updated.State)

	_, err = s.RejectAccount(ctx, account.ID)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	_, err = s.SetAccountEnabled(ctx, "missing", true)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryStore_CreateAPIToken(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	now := time.Now().UTC()
	newToken := func(accountID, secret string) *models.APIToken {
		return &models.APIToken{TokenHash: hashOf(secret), Created: now, ValidUntil: now.Add(time.Hour), ClientID: accountID}
	}

	t.Run("Orphan token is refused", func(t *testing.T) {
		err := s.CreateAPIToken(ctx, newToken("missing", "orphan"))
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("Not validated account", func(t *testing.T) {
		account := seedAccount(t, s, models.AccountStateRequested)
		err := s.CreateAPIToken(ctx, newToken(account.ID, "requested"))
		assert.ErrorIs(t, err, store.ErrAccountNotValidated)
	})

	t.Run("Validated but not enabled account", func(t *testing.T) {
		account := seedAccount(t, s, models.AccountStateValidated)
		err := s.CreateAPIToken(ctx, newToken(account.ID, "validated"))
		assert.ErrorIs(t, err, store.ErrAccountNotEnabled)
	})

	t.Run("Duplicated digest", func(t *testing.T) {
		account := seedAccount(t, s, models.AccountStateEnabled)
		require.NoError(t, s.CreateAPIToken(ctx, newToken(account.ID, "dup")))
		err := s.CreateAPIToken(ctx, newToken(account.ID, "dup"))
		assert.ErrorIs(t, err, store.ErrAlreadyExists)

		tokens, err := s.GetAPITokensByAccount(ctx, account.ID)
		require.NoError(t, err)
		assert.Len(t, tokens, 1)
	})

	t.Run("Empty validity window", func(t *testing.T) {
		account := seedAccount(t, s, models.AccountStateEnabled)
		token := newToken(account.ID, "window")
		token.ValidUntil = token.Created
		assert.ErrorIs(t, s.CreateAPIToken(ctx, token), store.ErrInvalidInput)
	})
}

func TestMemoryStore_DeleteAccountCascades(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	account := seedAccount(t, s, models.AccountStateEnabled)
	other := seedAccount(t, s, models.AccountStateEnabled)
	first := seedToken(t, s, account.ID, "first", time.Hour)
	second := seedToken(t, s, account.ID, "second", time.Hour)
	kept := seedToken(t, s, other.ID, "kept", time.Hour)

	require.NoError(t, s.DeleteAccount(ctx, account.ID))

	for _, token := range []*models.APIToken{first, second} {
		_, err := s.GetAPIToken(ctx, token.TokenHash)
		assert.ErrorIs(t, err, store.ErrNotFound)
	}
	_, err := s.GetAPIToken(ctx, kept.TokenHash)
	assert.NoError(t, err)

	_, err = s.GetAccountByEmail(ctx, account.Email)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteAccount(ctx, account.ID), store.ErrNotFound)

	// The email can be registered again once the account is gone
	assert.NoError(t, s.CreateAccount(ctx, &models.APIUser{Email: account.Email, Explanation: "back"}))
}

func TestMemoryStore_RevokeAPITokens(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	account := seedAccount(t, s, models.AccountStateEnabled)
	first := seedToken(t, s, account.ID, "a", time.Hour)
	seedToken(t, s, account.ID, "b", time.Hour)

	revoked, err := s.RevokeAPITokens(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), revoked)

	tokens, err := s.GetAPITokensByAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	for _, token := range tokens {
		assert.True(t, token.IsRevoked())
		assert.False(t, token.IsActiveAt(time.Now()))
	}

	again, err := s.RevokeAPITokens(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), again, "already revoked tokens are not counted twice")

	now := time.Now().UTC()
	reissued := &models.APIToken{TokenHash: first.TokenHash, Created: now, ValidUntil: now.Add(time.Hour), ClientID: account.ID}
	assert.ErrorIs(t, s.CreateAPIToken(ctx, reissued), store.ErrAlreadyExists, "a revoked digest stays taken")

	expiring, err := s.FindExpiringTokens(ctx, now, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, expiring)

	_, err = s.GetAccount(ctx, account.ID)
	assert.NoError(t, err, "revocation keeps the account")

	_, err = s.RevokeAPITokens(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryStore_ConcurrentTokenUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	accounts := []*models.APIUser{
		seedAccount(t, s, models.AccountStateEnabled),
		seedAccount(t, s, models.AccountStateEnabled),
	}

	const workers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	inserted := 0
	conflicts := 0
	now := time.Now().UTC()

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Half of the workers race on the same digest
			secret := fmt.Sprintf("unique-%d", i)
			if i%2 == 0 {
				secret = "shared"
			}
			err := s.CreateAPIToken(ctx, &models.APIToken{
				TokenHash:  hashOf(secret),
				Created:    now,
				ValidUntil: now.Add(time.Hour),
				ClientID:   accounts[i%2].ID,
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				inserted++
			} else if assert.ErrorIs(t, err, store.ErrAlreadyExists) {
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, workers/2+1, inserted)
	assert.Equal(t, workers/2-1, conflicts)

	total := 0
	for _, account := range accounts {
		tokens, err := s.GetAPITokensByAccount(ctx, account.ID)
		require.NoError(t, err)
		total += len(tokens)
	}
	assert.Equal(t, inserted, total)
}

func TestMemoryStore_ExpiringTokens(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	account := seedAccount(t, s, models.AccountStateEnabled)

	soon := seedToken(t, s, account.ID, "soon", 2*time.Hour)
	seedToken(t, s, account.ID, "later", 30*24*time.Hour)

	now := time.Now().UTC()
	expiring, err := s.FindExpiringTokens(ctx, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, soon.TokenHash, expiring[0].TokenHash)

	require.NoError(t, s.MarkTokenExpiryNotified(ctx, soon.TokenHash, now))
	expiring, err = s.FindExpiringTokens(ctx, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, expiring)
}

func TestMemoryStore_ListAccounts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.SetNowFunc(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})

	first := seedAccount(t, s, models.AccountStateRequested)
	second := seedAccount(t, s, models.AccountStateEnabled)
	third := seedAccount(t, s, models.AccountStateRequested)

	all, err := s.ListAccounts(ctx, store.AccountFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{third.ID, second.ID, first.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	pending, err := s.ListAccounts(ctx, store.AccountFilter{State: models.AccountStateRequested})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	page, err := s.ListAccounts(ctx, store.AccountFilter{PaginationParams: store.PaginationParams{Limit: 1, Offset: 1}})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, second.ID, page[0].ID)
}
