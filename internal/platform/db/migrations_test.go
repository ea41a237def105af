package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/accountkit/internal/platform/db/migrations"
)

func TestEmbeddedMigrationsAreGooseFiles(t *testing.T) {
	files, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, name := range files {
		raw, err := fs.ReadFile(migrations.FS, name)
		require.NoError(t, err)
		body := string(raw)
		assert.Truef(t, strings.Contains(body, "-- +goose Up"), "%s lacks an Up section", name)
		assert.Truef(t, strings.Contains(body, "-- +goose Down"), "%s lacks a Down section", name)
	}
}

func TestAccountSchemaEnforcesEmailUniquenessPerAccount(t *testing.T) {
	raw, err := fs.ReadFile(migrations.FS, "00001_accounts.sql")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "ON account_emails (account_id, lower(email))")
	assert.Contains(t, string(raw), "activation_key TEXT NOT NULL UNIQUE")
}
