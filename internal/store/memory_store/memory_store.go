// Package memory_store implements store.Store in process memory. It is used by
// tests and by the `serve --store memory` development mode.
package memory_store

import (
	"context"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/felipet/lacoctelera-backend/internal/store"
	"github.com/felipet/lacoctelera-backend/internal/store/models"
	"github.com/google/uuid"
)

// MemoryStore keeps accounts and tokens behind a single lock so that every
// operation is atomic with respect to every other one.
type MemoryStore struct {
	mu sync.RWMutex

	accounts map[string]*models.APIUser
	emails   map[string]string // lower(email) -> account id
	tokens   map[string]*models.APIToken
	// owned indexes token keys by account, deleted together with the account
	owned map[string]map[string]struct{}

	nowFunc func() time.Time
}

var _ store.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*models.APIUser),
		emails:   make(map[string]string),
		tokens:   make(map[string]*models.APIToken),
		owned:    make(map[string]map[string]struct{}),
		nowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// SetNowFunc overrides the clock used for created_at/updated_at
func (m *MemoryStore) SetNowFunc(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowFunc = now
}

func (m *MemoryStore) Initialize() (func(), error) {
	return nil, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func tokenKey(hash []byte) string {
	return hex.EncodeToString(hash)
}

func copyAccount(a *models.APIUser) *models.APIUser {
	c := *a
	c.Tokens = nil
	if a.Name != nil {
		name := *a.Name
		c.Name = &name
	}
	return &c
}

func copyToken(t *models.APIToken) *models.APIToken {
	c := *t
	c.TokenHash = append([]byte(nil), t.TokenHash...)
	if t.ExpiryNotifiedAt != nil {
		at := *t.ExpiryNotifiedAt
		c.ExpiryNotifiedAt = &at
	}
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		c.RevokedAt = &at
	}
	return &c
}

// CreateAccount stores a new account in the requested state
func (m *MemoryStore) CreateAccount(ctx context.Context, account *models.APIUser) error {
	if account == nil || account.Email == "" {
		return store.ErrInvalidInput
	}
	if account.State == "" {
		account.State = models.AccountStateRequested
	}
	if !account.State.IsKnown() {
		return store.ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(account.Email)
	if _, exists := m.emails[email]; exists {
		return store.ErrAlreadyExists
	}
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if _, exists := m.accounts[account.ID]; exists {
		return store.ErrAlreadyExists
	}

	now := m.nowFunc()
	account.CreatedAt = now
	account.UpdatedAt = now
	m.accounts[account.ID] = copyAccount(account)
	m.emails[email] = account.ID
	return nil
}

func (m *MemoryStore) GetAccount(ctx context.Context, accountID string) (*models.APIUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyAccount(account), nil
}

func (m *MemoryStore) GetAccountByEmail(ctx context.Context, email string) (*models.APIUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emails[strings.ToLower(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyAccount(m.accounts[id]), nil
}

// ListAccounts returns accounts ordered by creation time, newest first
func (m *MemoryStore) ListAccounts(ctx context.Context, filter store.AccountFilter) ([]models.APIUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	accounts := make([]models.APIUser, 0, len(m.accounts))
	for _, account := range m.accounts {
		if filter.State != "" && account.State != filter.State {
			continue
		}
		accounts = append(accounts, *copyAccount(account))
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].ID < accounts[j].ID
		}
		return accounts[i].CreatedAt.After(accounts[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(accounts) {
			return []models.APIUser{}, nil
		}
		accounts = accounts[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(accounts) {
		accounts = accounts[:filter.Limit]
	}
	return accounts, nil
}

// transition applies next to the account state under the write lock
func (m *MemoryStore) transition(accountID string, next func(models.AccountState) (models.AccountState, error)) (*models.APIUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return nil, store.ErrNotFound
	}
	state, err := next(account.State)
	if err != nil {
		return nil, err
	}
	if state != account.State {
		account.State = state
		account.UpdatedAt = m.nowFunc()
	}
	return copyAccount(account), nil
}

func (m *MemoryStore) SetAccountValidated(ctx context.Context, accountID string, validated bool) (*models.APIUser, error) {
	return m.transition(accountID, func(s models.AccountState) (models.AccountState, error) {
		return s.WithValidated(validated)
	})
}

func (m *MemoryStore) SetAccountEnabled(ctx context.Context, accountID string, enabled bool) (*models.APIUser, error) {
	return m.transition(accountID, func(s models.AccountState) (models.AccountState, error) {
		return s.WithEnabled(enabled)
	})
}

func (m *MemoryStore) RejectAccount(ctx context.Context, accountID string) (*models.APIUser, error) {
	return m.transition(accountID, func(s models.AccountState) (models.AccountState, error) {
		return s.Rejected()
	})
}

// DeleteAccount removes the account and every token it owns in one critical section
func (m *MemoryStore) DeleteAccount(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return store.ErrNotFound
	}
	for key := range m.owned[accountID] {
		delete(m.tokens, key)
	}
	delete(m.owned, accountID)
	delete(m.emails, strings.ToLower(account.Email))
	delete(m.accounts, accountID)
	return nil
}

func (m *MemoryStore) CreateAPIToken(ctx context.Context, token *models.APIToken) error {
	if token == nil || len(token.TokenHash) == 0 || !token.Created.Before(token.ValidUntil) {
		return store.ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[token.ClientID]
	if !ok {
		return store.ErrNotFound
	}
	if !account.Validated() {
		return store.ErrAccountNotValidated
	}
	if !account.Enabled() {
		return store.ErrAccountNotEnabled
	}

	key := tokenKey(token.TokenHash)
	if _, exists := m.tokens[key]; exists {
		return store.ErrAlreadyExists
	}
	m.tokens[key] = copyToken(token)
	if m.owned[token.ClientID] == nil {
		m.owned[token.ClientID] = make(map[string]struct{})
	}
	m.owned[token.ClientID][key] = struct{}{}
	return nil
}

func (m *MemoryStore) GetAPIToken(ctx context.Context, tokenHash []byte) (*models.APIToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	token, ok := m.tokens[tokenKey(tokenHash)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyToken(token), nil
}

// GetAPITokensByAccount returns the account's tokens, newest first
func (m *MemoryStore) GetAPITokensByAccount(ctx context.Context, accountID string) ([]models.APIToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tokens := make([]models.APIToken, 0, len(m.owned[accountID]))
	for key := range m.owned[accountID] {
		tokens = append(tokens, *copyToken(m.tokens[key]))
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].Created.After(tokens[j].Created)
	})
	return tokens, nil
}

func (m *MemoryStore) RevokeAPITokens(ctx context.Context, accountID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[accountID]; !ok {
		return 0, store.ErrNotFound
	}
	now := m.nowFunc()
	var revoked int64
	for key := range m.owned[accountID] {
		token := m.tokens[key]
		if token.IsRevoked() {
			continue
		}
		at := now
		token.RevokedAt = &at
		revoked++
	}
	return revoked, nil
}

// FindExpiringTokens returns unnotified tokens with now <= valid_until < horizon
func (m *MemoryStore) FindExpiringTokens(ctx context.Context, now, horizon time.Time) ([]models.APIToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var tokens []models.APIToken
	for _, token := range m.tokens {
		if token.ExpiryNotifiedAt != nil || token.IsRevoked() {
			continue
		}
		if token.ValidUntil.Before(now) || !token.ValidUntil.Before(horizon) {
			continue
		}
		tokens = append(tokens, *copyToken(token))
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].ValidUntil.Before(tokens[j].ValidUntil)
	})
	return tokens, nil
}

func (m *MemoryStore) MarkTokenExpiryNotified(ctx context.Context, tokenHash []byte, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[tokenKey(tokenHash)]
	if !ok {
		return store.ErrNotFound
	}
	token.ExpiryNotifiedAt = &at
	return nil
}
