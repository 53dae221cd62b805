package cmd

import (
	"database/sql"
	"io/fs"
	"regexp"
	"strconv"
	"sync/atomic"

	"github.com/catalystcommunity/app-utils-go/errorutils"
	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/felipet/lacoctelera-backend/internal/config"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

// expectedVersion is the highest migration version expected to be applied
var expectedVersion = getHighestVersionFromEmbeddedMigrations()

// GetExpectedMigrationVersion returns the highest migration version that should be applied
func GetExpectedMigrationVersion() int64 {
	return expectedVersion
}

var migrationsComplete atomic.Bool

func currentMigrationVersion() (int64, error) {
	sqldb, err := sql.Open("postgres", config.DbUri)
	if err != nil {
		return 0, err
	}
	defer sqldb.Close()
	goose.SetBaseFS(migrations)
	return goose.GetDBVersion(sqldb)
}

// migrationsAreComplete compares the highest embedded migration version against the
// database's current version. Once they match the result is cached.
func migrationsAreComplete() bool {
	if migrationsComplete.Load() {
		return true
	}
	currentVersion, err := currentMigrationVersion()
	if err != nil {
		errorutils.LogOnErr(nil, "error reading the database migration version", err)
		return false
	}
	if currentVersion != expectedVersion {
		// log error for visibility on readiness
		logging.Log.WithFields(logrus.Fields{"expected_version": expectedVersion, "current_version": currentVersion}).Error("readiness check failed: database migrations are not complete")
		return false
	}
	migrationsComplete.Store(true)
	return true
}

// parses the embedded migrations directory for migration files and returns the highest version number
func getHighestVersionFromEmbeddedMigrations() (highestVersion int64) {
	var files []fs.DirEntry
	var err error
	if files, err = migrations.ReadDir("migrations"); err != nil {
		errorutils.LogOnErr(nil, "error reading embedded migrations", err)
		return
	}

	pattern := regexp.MustCompile(`^(\d+)_`)
	for _, file := range files {
		capture := pattern.FindStringSubmatch(file.Name())
		if capture == nil {
			continue
		}
		var version int64
		if version, err = strconv.ParseInt(capture[1], 10, 64); err != nil {
			errorutils.LogOnErr(nil, "error getting migration version from file", err)
			return
		}
		if version > highestVersion {
			highestVersion = version
		}
	}
	return
}
