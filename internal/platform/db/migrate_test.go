package db

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFilesAreOrderedAndAnnotated(t *testing.T) {
	names, err := MigrationFiles()
	require.NoError(t, err)
	require.Equal(t, []string{"00001_accounts.sql", "00002_audit_logs.sql"}, names)

	for _, name := range names {
		raw, err := migrationFS.ReadFile(migrationDir + "/" + name)
		require.NoError(t, err)
		body := string(raw)
		assert.Contains(t, body, "-- +goose Up", name)
		assert.Contains(t, body, "-- +goose Down", name)
	}
}

func TestAccountsMigrationDeclaresTenantCodeIndex(t *testing.T) {
	raw, err := migrationFS.ReadFile(migrationDir + "/00001_accounts.sql")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "accounts_tenant_code_key ON accounts (tenant_id, code)"))
}

func TestMigrateRequiresPool(t *testing.T) {
	err := Migrate(context.Background(), nil, "up")
	require.Error(t, err)
}
