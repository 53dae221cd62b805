package store

import (
	"errors"

	"github.com/felipet/lacoctelera-backend/internal/store/models"
)

const (
	PostgresdbStoreType = "postgres"
	MemoryStoreType     = "memory"
)

// Common errors that can be returned by any store implementation
var (
	ErrNotFound           = errors.New("record not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrAlreadyExists      = errors.New("record already exists")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrServiceUnavailable = errors.New("service unavailable") // 503 Service Unavailable - store unreachable or timed out

	// Account lifecycle errors
	ErrAccountNotValidated = models.ErrAccountNotValidated
	ErrAccountNotEnabled   = errors.New("account not enabled")
	ErrInvalidTransition   = models.ErrInvalidTransition
)

// PaginationParams contains common pagination parameters
type PaginationParams struct {
	Limit  int
	Offset int
}

// AccountFilter narrows ListAccounts results. Empty State matches every account.
type AccountFilter struct {
	State models.AccountState
	PaginationParams
}
