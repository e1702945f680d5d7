// Package sqldoc keeps component documents in a single SQL table. The sqlite
// and postgres packages open the database and pick the dialect.
package sqldoc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cmsstore/internal/infra/processor/docproc"
	"cmsstore/pkg/domain"
)

// Table is the document table name.
const Table = "cms_components"

// Dialect holds the statements that differ between engines.
type Dialect struct {
	Name        string
	CreateTable string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
}

// SQLite is the modernc.org/sqlite dialect.
var SQLite = Dialect{
	Name: "sqlite",
	CreateTable: `CREATE TABLE IF NOT EXISTS ` + Table + ` (
		component_type TEXT NOT NULL,
		component_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (component_type, component_id)
	)`,
	Placeholder: func(int) string { return "?" },
}

// Postgres is the pgx dialect.
var Postgres = Dialect{
	Name: "postgres",
	CreateTable: `CREATE TABLE IF NOT EXISTS ` + Table + ` (
		component_type TEXT NOT NULL,
		component_id TEXT NOT NULL,
		payload BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (component_type, component_id)
	)`,
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
}

type statements struct {
	get, put, del, list string
}

func buildStatements(d Dialect) statements {
	p := d.Placeholder
	return statements{
		get: fmt.Sprintf(`SELECT payload FROM %s WHERE component_type = %s AND component_id = %s`, Table, p(1), p(2)),
		put: fmt.Sprintf(`INSERT INTO %s (component_type, component_id, payload, updated_at) VALUES (%s, %s, %s, %s) `+
			`ON CONFLICT (component_type, component_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
			Table, p(1), p(2), p(3), p(4)),
		del:  fmt.Sprintf(`DELETE FROM %s WHERE component_type = %s AND component_id = %s`, Table, p(1), p(2)),
		list: fmt.Sprintf(`SELECT component_id, payload FROM %s WHERE component_type = %s ORDER BY component_id`, Table, p(1)),
	}
}

// Store implements docproc.Store on a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	stmts   statements
	now     func() time.Time
}

var _ docproc.Store = (*Store)(nil)

// New ensures the document table exists and wraps db. The store owns db
// and closes it in Close.
func New(ctx context.Context, db *sql.DB, d Dialect) (*Store, error) {
	if db == nil {
		return nil, errors.New("sqldoc: db is nil")
	}
	if d.Placeholder == nil || d.CreateTable == "" {
		return nil, fmt.Errorf("sqldoc: incomplete dialect %q", d.Name)
	}
	if _, err := db.ExecContext(ctx, d.CreateTable); err != nil {
		return nil, fmt.Errorf("create %s table: %w", Table, err)
	}
	return &Store{
		db:      db,
		dialect: d,
		stmts:   buildStatements(d),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the dialect the store was opened with.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Get implements docproc.Store.
func (s *Store) Get(ctx context.Context, t domain.ComponentType, id string) (docproc.Document, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, s.stmts.get, string(t), id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return docproc.Document{}, false, nil
	}
	if err != nil {
		return docproc.Document{}, false, fmt.Errorf("select %s %s: %w", t, id, err)
	}
	return docproc.Document{Type: t, ID: id, Payload: payload}, true, nil
}

// Put implements docproc.Store.
func (s *Store) Put(ctx context.Context, doc docproc.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, s.stmts.put, string(doc.Type), doc.ID, doc.Payload, s.now()); err != nil {
		return fmt.Errorf("upsert %s %s: %w", doc.Type, doc.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// Delete implements docproc.Store.
func (s *Store) Delete(ctx context.Context, t domain.ComponentType, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.stmts.del, string(t), id)
	if err != nil {
		return false, fmt.Errorf("delete %s %s: %w", t, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// List implements docproc.Store.
func (s *Store) List(ctx context.Context, t domain.ComponentType) ([]docproc.Document, error) {
	rows, err := s.db.QueryContext(ctx, s.stmts.list, string(t))
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", t, err)
	}
	defer func() { _ = rows.Close() }()
	var docs []docproc.Document
	for rows.Next() {
		d := docproc.Document{Type: t}
		if err := rows.Scan(&d.ID, &d.Payload); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t, err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t, err)
	}
	return docs, nil
}
