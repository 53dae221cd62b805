package checkauth

import (
	"context"
	"crypto/sha256"

	"github.com/felipet/lacoctelera-backend/internal/store/models"
)

type contextKey string

const (
	AccountContextKey contextKey = "account"
)

// GetAccountFromContext retrieves the authorized account from the request context
func GetAccountFromContext(ctx context.Context) *models.APIUser {
	if account, ok := ctx.Value(AccountContextKey).(*models.APIUser); ok {
		return account
	}
	return nil
}

// SetAccountContext adds the authorized account to the request context
func SetAccountContext(ctx context.Context, account *models.APIUser) context.Context {
	return context.WithValue(ctx, AccountContextKey, account)
}

// HashAPIToken creates a SHA256 hash of an API token for storage and lookup
func HashAPIToken(token string) []byte {
	hash := sha256.Sum256([]byte(token))
	return hash[:]
}
