// Package sqlite opens the component document store on an embedded SQLite
// database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"cmsstore/internal/infra/persistence/sqldoc"
)

const (
	// DefaultPath is used when no path is configured.
	DefaultPath = "cmsstore.db"
	// MemoryPath opens a private in-memory database.
	MemoryPath = ":memory:"
)

// Open creates or opens the database at path and ensures the document table
// exists.
func Open(ctx context.Context, path string) (*sqldoc.Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Each connection to :memory: is its own database; SQLite also
	// serializes writers, so one connection serves both cases.
	db.SetMaxOpenConns(1)
	store, err := sqldoc.New(ctx, db, sqldoc.SQLite)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}
