package postgres_store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/felipet/lacoctelera-backend/internal/store"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Postgres SQLSTATE codes mapped onto store errors
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgInvalidTextRepr      = "22P02"
	pgQueryCanceled        = "57014"
	pgAdminShutdown        = "57P01"
	pgCannotConnectNow     = "57P03"
	pgConnectionExceptions = "08"
)

// classify translates driver errors into the store error taxonomy. Errors that are
// already part of the taxonomy, and unknown errors, are returned unchanged.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return store.ErrAlreadyExists
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation:
			return store.ErrAlreadyExists
		case pgErr.Code == pgForeignKeyViolation, pgErr.Code == pgInvalidTextRepr:
			return store.ErrNotFound
		case pgErr.Code == pgCheckViolation:
			return fmt.Errorf("%w: %s", store.ErrInvalidInput, pgErr.Message)
		case pgErr.Code == pgQueryCanceled, pgErr.Code == pgAdminShutdown, pgErr.Code == pgCannotConnectNow,
			strings.HasPrefix(pgErr.Code, pgConnectionExceptions):
			return fmt.Errorf("%w: %v", store.ErrServiceUnavailable, err)
		}
		return err
	}

	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", store.ErrServiceUnavailable, err)
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", store.ErrServiceUnavailable, err)
	}
	return err
}
