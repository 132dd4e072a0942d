package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlink/backend/migrations"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add sync runs", "add_sync_runs"},
		{"Add-Sync-Runs", "add_sync_runs"},
		{"ADD_SYNC_RUNS", "add_sync_runs"},
		{"add__sync__runs", "add_sync_runs"},
		{"Add Index 123", "add_index_123"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	tmpDir := t.TempDir()

	first, err := CreateMigration(tmpDir, "add sync runs", "Audit poll windows")
	require.NoError(t, err)
	assert.Equal(t, "000001", first.Version)
	assert.True(t, strings.HasSuffix(first.UpPath, "000001_add_sync_runs.up.sql"))
	assert.True(t, strings.HasSuffix(first.DownPath, "000001_add_sync_runs.down.sql"))

	upContent, err := os.ReadFile(first.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(upContent), "add sync runs")
	assert.Contains(t, string(upContent), "Audit poll windows")

	downContent, err := os.ReadFile(first.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(downContent), "Rollback")

	second, err := CreateMigration(tmpDir, "index runs", "")
	require.NoError(t, err)
	assert.Equal(t, "000002", second.Version)
}

func TestCreateMigration_ContinuesExistingSequence(t *testing.T) {
	tmpDir := t.TempDir()
	for _, f := range []string{"000007_tenants.up.sql", "000007_tenants.down.sql", "000003_old.up.sql"} {
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, f), []byte("-- test"), 0o644))
	}

	mf, err := CreateMigration(tmpDir, "next", "")
	require.NoError(t, err)
	assert.Equal(t, "000008", mf.Version)
}

func TestCreateMigration_Errors(t *testing.T) {
	t.Run("rejects a name with nothing usable", func(t *testing.T) {
		_, err := CreateMigration(t.TempDir(), "!!!", "")
		assert.Error(t, err)
	})

	t.Run("rejects a non-numeric version in the directory", func(t *testing.T) {
		tmpDir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "init_schema.up.sql"), []byte("-- test"), 0o644))

		_, err := CreateMigration(tmpDir, "next", "")
		assert.ErrorContains(t, err, "non-numeric version")
	})
}

func TestCreateMigration_CreatesDirectory(t *testing.T) {
	nestedPath := filepath.Join(t.TempDir(), "nested", "migrations")

	_, err := CreateMigration(nestedPath, "test", "test migration")
	require.NoError(t, err)

	info, err := os.Stat(nestedPath)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestListMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"000002_add_users.up.sql":      {Data: []byte("-- test")},
		"000002_add_users.down.sql":    {Data: []byte("-- test")},
		"000001_init_schema.up.sql":    {Data: []byte("-- test")},
		"000001_init_schema.down.sql":  {Data: []byte("-- test")},
		"README.md":                    {Data: []byte("docs")},
		"subdir.up.sql/placeholder.go": {Data: []byte("package x")},
	}

	list, err := ListMigrations(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_init_schema", "000002_add_users"}, list)
}

func TestListMigrations_NonexistentDirectory(t *testing.T) {
	list, err := ListMigrations(os.DirFS("/nonexistent/path/to/migrations"))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListMigrations_EmbeddedSchema(t *testing.T) {
	list, err := ListMigrations(migrations.FS)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"000001_create_tenants",
		"000002_create_identity_mappings",
		"000003_create_sync_runs",
	}, list)
}
