package postgres_store

import (
	"context"
	"fmt"
	"time"

	"github.com/felipet/lacoctelera-backend/internal/store"
	"github.com/felipet/lacoctelera-backend/internal/store/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateAPIToken inserts a token after checking, under a share lock on the owner row,
// that the owner is validated and enabled. The lock keeps a concurrent disable or
// delete from interleaving with the insert.
func (ps *PostgresDbStore) CreateAPIToken(ctx context.Context, apiToken *models.APIToken) error {
	if apiToken == nil || len(apiToken.TokenHash) == 0 || !apiToken.Created.Before(apiToken.ValidUntil) {
		return store.ErrInvalidInput
	}
	if !isValidUUID(apiToken.ClientID) {
		return store.ErrNotFound
	}
	ctx, cancel := ps.writeContext(ctx)
	defer cancel()

	err := ps.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		var owner models.APIUser
		if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).Where("id = ?", apiToken.ClientID).First(&owner).Error; err != nil {
			return err
		}
		if !owner.Validated() {
			return store.ErrAccountNotValidated
		}
		if !owner.Enabled() {
			return store.ErrAccountNotEnabled
		}
		return tx.Create(apiToken).Error
	})
	if err != nil {
		return fmt.Errorf("failed to create API token: %w", classify(ctx, err))
	}
	return nil
}

// GetAPIToken looks a token up by digest
func (ps *PostgresDbStore) GetAPIToken(ctx context.Context, tokenHash []byte) (*models.APIToken, error) {
	if len(tokenHash) == 0 {
		return nil, store.ErrNotFound
	}
	ctx, cancel := ps.readContext(ctx)
	defer cancel()

	var apiToken models.APIToken
	if err := ps.getDB(ctx).Where("api_token = ?", tokenHash).First(&apiToken).Error; err != nil {
		return nil, fmt.Errorf("failed to get API token: %w", classify(ctx, err))
	}
	return &apiToken, nil
}

// GetAPITokensByAccount retrieves all API tokens for an account
func (ps *PostgresDbStore) GetAPITokensByAccount(ctx context.Context, accountID string) ([]models.APIToken, error) {
	if !isValidUUID(accountID) {
		return []models.APIToken{}, nil
	}
	ctx, cancel := ps.readContext(ctx)
	defer cancel()

	var tokens []models.APIToken
	if err := ps.getDB(ctx).Where("client_id = ?", accountID).
		Order("created DESC").
		Find(&tokens).Error; err != nil {
		return nil, fmt.Errorf("failed to get API tokens for account %s: %w", accountID, classify(ctx, err))
	}
	return tokens, nil
}

// RevokeAPITokens marks every live token of the account as revoked and returns how
// many were marked. Rows are kept; only deleting the account removes them.
func (ps *PostgresDbStore) RevokeAPITokens(ctx context.Context, accountID string) (int64, error) {
	if !isValidUUID(accountID) {
		return 0, store.ErrNotFound
	}
	ctx, cancel := ps.writeContext(ctx)
	defer cancel()

	var revoked int64
	err := ps.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		var owner models.APIUser
		if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).Where("id = ?", accountID).First(&owner).Error; err != nil {
			return err
		}
		result := tx.Model(&models.APIToken{}).
			Where("client_id = ? AND revoked_at IS NULL", accountID).
			Update("revoked_at", time.Now().UTC())
		revoked = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to revoke API tokens for account %s: %w", accountID, classify(ctx, err))
	}
	return revoked, nil
}

// FindExpiringTokens returns live tokens not yet warned about with now <= valid_until < horizon
func (ps *PostgresDbStore) FindExpiringTokens(ctx context.Context, now, horizon time.Time) ([]models.APIToken, error) {
	ctx, cancel := ps.readContext(ctx)
	defer cancel()

	var tokens []models.APIToken
	if err := ps.getDB(ctx).
		Where("expiry_notified_at IS NULL AND revoked_at IS NULL AND valid_until >= ? AND valid_until < ?", now, horizon).
		Order("valid_until").
		Find(&tokens).Error; err != nil {
		return nil, fmt.Errorf("failed to find expiring tokens: %w", classify(ctx, err))
	}
	return tokens, nil
}

// MarkTokenExpiryNotified records that the expiry warning for the token was sent
func (ps *PostgresDbStore) MarkTokenExpiryNotified(ctx context.Context, tokenHash []byte, at time.Time) error {
	ctx, cancel := ps.writeContext(ctx)
	defer cancel()

	result := ps.getDB(ctx).Model(&models.APIToken{}).
		Where("api_token = ?", tokenHash).
		Update("expiry_notified_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to mark token expiry notified: %w", classify(ctx, result.Error))
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}
