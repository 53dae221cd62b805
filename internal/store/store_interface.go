package store

import (
	"context"
	"time"

	"github.com/felipet/lacoctelera-backend/internal/store/models"
)

// Store is the transactional source of truth for accounts and tokens.
// Every mutation is a single atomic operation; readers never observe a partial update.
type Store interface {
	Initialize() (deferredFunc func(), err error)
	Ping(ctx context.Context) error

	// Account operations
	CreateAccount(ctx context.Context, account *models.APIUser) error
	GetAccount(ctx context.Context, accountID string) (*models.APIUser, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.APIUser, error)
	ListAccounts(ctx context.Context, filter AccountFilter) ([]models.APIUser, error)
	SetAccountValidated(ctx context.Context, accountID string, validated bool) (*models.APIUser, error)
	SetAccountEnabled(ctx context.Context, accountID string, enabled bool) (*models.APIUser, error)
	RejectAccount(ctx context.Context, accountID string) (*models.APIUser, error)
	// DeleteAccount removes the account and all of its tokens atomically
	DeleteAccount(ctx context.Context, accountID string) error

	// API Token operations

	// CreateAPIToken inserts a token for an enabled account. A digest that already
	// exists yields ErrAlreadyExists and nothing is written.
	CreateAPIToken(ctx context.Context, token *models.APIToken) error
	GetAPIToken(ctx context.Context, tokenHash []byte) (*models.APIToken, error)
	GetAPITokensByAccount(ctx context.Context, accountID string) ([]models.APIToken, error)
	RevokeAPITokens(ctx context.Context, accountID string) (int64, error)
	FindExpiringTokens(ctx context.Context, now, horizon time.Time) ([]models.APIToken, error)
	MarkTokenExpiryNotified(ctx context.Context, tokenHash []byte, at time.Time) error
}
