package postgres_store

import (
	"context"
	"fmt"
	"time"

	"github.com/felipet/lacoctelera-backend/internal/store"
	"github.com/felipet/lacoctelera-backend/internal/store/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateAccount inserts a new account. Email uniqueness is enforced by the
// lower(email) unique index, so concurrent submissions cannot both succeed.
func (ps *PostgresDbStore) CreateAccount(ctx context.Context, account *models.APIUser) error {
	if account == nil || account.Email == "" {
		return store.ErrInvalidInput
	}
	if account.State == "" {
		account.State = models.AccountStateRequested
	}
	if !account.State.IsKnown() {
		return store.ErrInvalidInput
	}
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	ctx, cancel := ps.writeContext(ctx)
	defer cancel()

	if err := ps.getDB(ctx).Create(account).Error; err != nil {
		return fmt.Errorf("failed to create account: %w", classify(ctx, err))
	}
	return nil
}

// GetAccount retrieves an account by its ID
func (ps *PostgresDbStore) GetAccount(ctx context.Context, accountID string) (*models.APIUser, error) {
	if !isValidUUID(accountID) {
		return nil, store.ErrNotFound
	}
	ctx, cancel := ps.readContext(ctx)
	defer cancel()

	var account models.APIUser
	if err := ps.getDB(ctx).Where("id = ?", accountID).First(&account).Error; err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", accountID, classify(ctx, err))
	}
	return &account, nil
}

// GetAccountByEmail looks an account up by email, ignoring case
func (ps *PostgresDbStore) GetAccountByEmail(ctx context.Context, email string) (*models.APIUser, error) {
	ctx, cancel := ps.readContext(ctx)
	defer cancel()

	var account models.APIUser
	if err := ps.getDB(ctx).Where("lower(email) = lower(?)", email).First(&account).Error; err != nil {
		return nil, fmt.Errorf("failed to get account by email: %w", classify(ctx, err))
	}
	return &account, nil
}

// ListAccounts retrieves accounts with optional state filter and pagination, newest first
func (ps *PostgresDbStore) ListAccounts(ctx context.Context, filter store.AccountFilter) ([]models.APIUser, error) {
	ctx, cancel := ps.readContext(ctx)
	defer cancel()

	query := ps.getDB(ctx).Order("created_at DESC").Order("id")
	if filter.State != "" {
		query = query.Where("state = ?", filter.State)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var accounts []models.APIUser
	if err := query.Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", classify(ctx, err))
	}
	return accounts, nil
}

// transition locks the account row, computes the next state and writes it in one transaction
func (ps *PostgresDbStore) transition(ctx context.Context, accountID string, next func(models.AccountState) (models.AccountState, error)) (*models.APIUser, error) {
	if !isValidUUID(accountID) {
		return nil, store.ErrNotFound
	}
	ctx, cancel := ps.writeContext(ctx)
	defer cancel()

	var account models.APIUser
	err := ps.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", accountID).First(&account).Error; err != nil {
			return err
		}
		state, err := next(account.State)
		if err != nil {
			return err
		}
		if state == account.State {
			return nil
		}
		now := time.Now().UTC()
		if err := tx.Model(&models.APIUser{}).Where("id = ?", accountID).
			Updates(map[string]interface{}{"state": state, "updated_at": now}).Error; err != nil {
			return err
		}
		account.State = state
		account.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update account %s: %w", accountID, classify(ctx, err))
	}
	return &account, nil
}

func (ps *PostgresDbStore) SetAccountValidated(ctx context.Context, accountID string, validated bool) (*models.APIUser, error) {
	return ps.transition(ctx, accountID, func(s models.AccountState) (models.AccountState, error) {
		return s.WithValidated(validated)
	})
}

func (ps *PostgresDbStore) SetAccountEnabled(ctx context.Context, accountID string, enabled bool) (*models.APIUser, error) {
	return ps.transition(ctx, accountID, func(s models.AccountState) (models.AccountState, error) {
		return s.WithEnabled(enabled)
	})
}

func (ps *PostgresDbStore) RejectAccount(ctx context.Context, accountID string) (*models.APIUser, error) {
	return ps.transition(ctx, accountID, func(s models.AccountState) (models.AccountState, error) {
		return s.Rejected()
	})
}

// DeleteAccount deletes the account; its tokens go with it through ON DELETE CASCADE
func (ps *PostgresDbStore) DeleteAccount(ctx context.Context, accountID string) error {
	if !isValidUUID(accountID) {
		return store.ErrNotFound
	}
	ctx, cancel := ps.writeContext(ctx)
	defer cancel()

	result := ps.getDB(ctx).Where("id = ?", accountID).Delete(&models.APIUser{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete account %s: %w", accountID, classify(ctx, result.Error))
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}
