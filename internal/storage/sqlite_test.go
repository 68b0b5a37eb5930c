package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLite_File(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "nested", "journal.db")
	db, err := OpenSQLite(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var name string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='executions';").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "executions", name)

	// Bootstrapping twice is harmless.
	require.NoError(t, BootstrapSQLite(context.Background(), db))
}

func TestOpenSQLite_Memory(t *testing.T) {
	t.Parallel()

	db, err := OpenSQLite(context.Background(), Memory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`INSERT INTO executions (id, plugin, source, status, started_at, finished_at)
		VALUES ('a', 'safe', 'hotkey', 'succeeded', '2026-01-01T00:00:00Z', '2026-01-01T00:00:01Z')`)
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM executions").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), " ")
	assert.Error(t, err)
}

func TestCheckLocalFilesystem(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dbPath := filepath.Join(root, "a", "b", "journal.db")

	var inspected string
	err := checkLocalFilesystem(dbPath, func(p string) (string, error) {
		inspected = p
		return "ext4", nil
	})
	require.NoError(t, err)
	assert.Equal(t, root, inspected, "detector sees the nearest existing parent")

	err = checkLocalFilesystem(dbPath, func(string) (string, error) { return "SMBFS", nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network filesystem")
	assert.Contains(t, err.Error(), "journal.path")

	err = checkLocalFilesystem(dbPath, func(string) (string, error) { return "", errors.New("unsupported") })
	assert.NoError(t, err)
}
