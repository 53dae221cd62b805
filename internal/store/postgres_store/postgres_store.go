package postgres_store

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/catalystcommunity/app-utils-go/env"
	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/felipet/lacoctelera-backend/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/log/logrusadapter"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PostgresDbStore implements store.Store on top of gorm. Referential integrity
// (token -> account, cascade on delete) and token uniqueness are enforced by the schema.
type PostgresDbStore struct {
	uri     string
	timeout time.Duration

	db      *gorm.DB
	pgxPool *pgxpool.Pool
}

var _ store.Store = (*PostgresDbStore)(nil)

// NewPostgresStore returns a store that connects to uri on Initialize
func NewPostgresStore(uri string, timeout time.Duration) *PostgresDbStore {
	return &PostgresDbStore{uri: uri, timeout: timeout}
}

// NewPostgresStoreFromDB wraps an already opened gorm connection
func NewPostgresStoreFromDB(db *gorm.DB, timeout time.Duration) *PostgresDbStore {
	return &PostgresDbStore{db: db, timeout: timeout}
}

// getDB binds the connection to ctx
func (ps *PostgresDbStore) getDB(ctx context.Context) *gorm.DB {
	return ps.db.WithContext(ctx)
}

// readContext bounds a read by the store timeout. The caller may still cancel it.
func (ps *PostgresDbStore) readContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ps.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, ps.timeout)
}

// writeContext detaches a mutation from caller cancellation so that a started
// transaction either commits or rolls back on its own, bounded by the store timeout.
func (ps *PostgresDbStore) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return ps.readContext(context.WithoutCancel(ctx))
}

func (ps *PostgresDbStore) Initialize() (func(), error) {
	maxRetries := env.GetEnvAsIntOrDefault("DB_CONNECT_MAX_RETRIES", "30")
	retryInterval := time.Duration(env.GetEnvAsIntOrDefault("DB_CONNECT_RETRY_INTERVAL_SECONDS", "2")) * time.Second

	pgxpoolConfig, err := pgxpool.ParseConfig(ps.uri)
	if err != nil {
		return nil, err
	}
	logrusLogger := &logrus.Logger{
		Out:          os.Stderr,
		Formatter:    new(logrus.JSONFormatter),
		Hooks:        make(logrus.LevelHooks),
		Level:        logrus.ErrorLevel,
		ExitFunc:     os.Exit,
		ReportCaller: false,
	}
	pgxpoolConfig.ConnConfig.Logger = logrusadapter.NewLogger(logrusLogger)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		ps.pgxPool, err = pgxpool.ConnectConfig(context.Background(), pgxpoolConfig)
		if err == nil {
			break
		}
		if attempt == maxRetries {
			return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
		}
		logging.Log.WithError(err).Warnf("Database connection attempt %d/%d failed, retrying in %v", attempt, maxRetries, retryInterval)
		time.Sleep(retryInterval)
	}

	nowFunc := func() time.Time {
		return time.Now().UTC()
	}
	ps.db, err = gorm.Open(postgres.Open(ps.uri), &gorm.Config{Logger: getLogger(), NowFunc: nowFunc})
	if err != nil {
		ps.pgxPool.Close()
		return nil, err
	}
	return func() {
		ps.pgxPool.Close()
		if sqlDB, err := ps.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}, nil
}

// Ping checks that the database answers within the store timeout
func (ps *PostgresDbStore) Ping(ctx context.Context) error {
	ctx, cancel := ps.readContext(ctx)
	defer cancel()

	if ps.pgxPool != nil {
		if err := ps.pgxPool.Ping(ctx); err != nil {
			return fmt.Errorf("%w: %v", store.ErrServiceUnavailable, err)
		}
		return nil
	}
	sqlDB, err := ps.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrServiceUnavailable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrServiceUnavailable, err)
	}
	return nil
}

func getLogger() logger.Interface {
	slowThresholdSeconds := env.GetEnvAsIntOrDefault("SQL_LOGGER_SLOW_SQL_SECONDS", "1")
	logLevel := env.GetEnvOrDefault("SQL_LOGGER_LEVEL", "error")
	ignoreRecordNotFound := env.GetEnvAsBoolOrDefault("SQL_LOGGER_IGNORE_RECORD_NOT_FOUND", "true")
	colorful := env.GetEnvAsBoolOrDefault("SQL_LOGGER_COLORFUL_LOGS", "true")
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Duration(slowThresholdSeconds) * time.Second,
			LogLevel:                  getLogLevel(logLevel),
			IgnoreRecordNotFoundError: ignoreRecordNotFound,
			Colorful:                  colorful,
		},
	)
}

// isValidUUID returns true if the given string is a valid UUID.
func isValidUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func getLogLevel(loglevel string) logger.LogLevel {
	switch strings.ToLower(loglevel) {
	case "info":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Error
	}
}
