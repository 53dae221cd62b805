package checkauth

import (
	"context"
	"testing"

	"github.com/felipet/lacoctelera-backend/internal/store/models"
	"github.com/stretchr/testify/assert"
)

func TestHashAPIToken(t *testing.T) {
	hash := HashAPIToken("secret")
	assert.Len(t, hash, 32)
	assert.Equal(t, hash, HashAPIToken("secret"))
	assert.NotEqual(t, hash, HashAPIToken("Secret"))
	assert.NotEqual(t, hash, HashAPIToken("secret "))
}

func TestAccountContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetAccountFromContext(ctx))

	account := &models.APIUser{ID: "3f7c1f7e-2b9f-4c53-9c0c-7d7b1b3de111", Email: "jane@example.com"}
	ctx = SetAccountContext(ctx, account)
	assert.Same(t, account, GetAccountFromContext(ctx))
}
