package cmd

import (
	"fmt"
	"time"

	"github.com/catalystcommunity/app-utils-go/env"
	"github.com/catalystcommunity/app-utils-go/errorutils"
	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/felipet/lacoctelera-backend/coredb"
	"github.com/felipet/lacoctelera-backend/internal/config"
	"github.com/pressly/goose/v3"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var migrations = coredb.Migrations

var MigrateCommand = &cli.Command{
	Name:  "migrate",
	Usage: "Runs database migrations",
	Flags: []cli.Flag{dbUriFlag()},
	Action: func(ctx *cli.Context) error {
		return RunMigrations()
	},
	Subcommands: []*cli.Command{
		{
			Name:  "status",
			Usage: "Print the applied and the expected migration version",
			Flags: []cli.Flag{dbUriFlag()},
			Action: func(ctx *cli.Context) error {
				current, err := currentMigrationVersion()
				if err != nil {
					return err
				}
				fmt.Printf("applied: %d\nexpected: %d\n", current, GetExpectedMigrationVersion())
				if current != GetExpectedMigrationVersion() {
					return fmt.Errorf("database migrations are not complete")
				}
				return nil
			},
		},
	},
}

func RunMigrations() error {
	maxRetries := env.GetEnvAsIntOrDefault("DB_CONNECT_MAX_RETRIES", "30")
	retryInterval := time.Duration(env.GetEnvAsIntOrDefault("DB_CONNECT_RETRY_INTERVAL_SECONDS", "2")) * time.Second

	var db *gorm.DB
	var err error

	// Retry connection with backoff
	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err = gorm.Open(postgres.Open(config.DbUri), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err == nil {
			break
		}
		if attempt == maxRetries {
			errorutils.LogOnErr(nil, "error opening database connection after retries", err)
			return err
		}
		logging.Log.WithError(err).Warnf("Database connection attempt %d/%d failed, retrying in %v", attempt, maxRetries, retryInterval)
		time.Sleep(retryInterval)
	}

	sqldb, err := db.DB()
	errorutils.LogOnErr(nil, "error getting database connection", err)
	if err != nil {
		return err
	}
	defer sqldb.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		errorutils.LogOnErr(nil, "error setting goose dialect", err)
		return err
	}

	logging.Log.Info("Running migrations")
	err = goose.Up(sqldb, "migrations", goose.WithAllowMissing())
	errorutils.LogOnErr(nil, "error running migrations", err)
	if err != nil {
		return err
	}

	return nil
}
