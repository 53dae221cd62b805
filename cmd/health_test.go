package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetExpectedMigrationVersion(t *testing.T) {
	assert.Equal(t, int64(3), GetExpectedMigrationVersion())
}
