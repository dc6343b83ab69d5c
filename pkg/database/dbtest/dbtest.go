// Package dbtest opens throwaway in-memory databases with the real schema applied.
package dbtest

import (
	"database/sql"
	"testing"

	"github.com/alimgiray/bountyscope/pkg/database"
	"github.com/google/uuid"
)

// Open returns a migrated in-memory database that is closed when the test ends.
// The pool is pinned to one connection so every query sees the same memory database.
func Open(tb testing.TB) *sql.DB {
	tb.Helper()

	db, err := database.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=ON")
	if err != nil {
		tb.Fatalf("open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		db.Close()
		tb.Fatalf("migrate test database: %v", err)
	}

	tb.Cleanup(func() { db.Close() })
	return db
}
