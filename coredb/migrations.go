// Package coredb holds the embedded SQL migrations applied by goose.
package coredb

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
