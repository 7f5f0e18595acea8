// Package storetest opens throwaway migrated databases for package tests.
package storetest

import (
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"classattend/internal/store"
)

func init() {
	store.SetMigrationLogger(log.New(io.Discard, "", 0))
}

// PrepareDB returns a migrated SQLite database living in t.TempDir.
func PrepareDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.NewDB(store.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
