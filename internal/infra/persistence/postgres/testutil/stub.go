// Package testutil provides a stub database/sql driver for the postgres
// document store tests. It understands the handful of statement shapes the
// store issues: INSERT with ON CONFLICT, DELETE and SELECT with AND-joined
// equality predicates, and an optional ORDER BY column.
package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// StubConn records statements and keeps rows per table.
type StubConn struct {
	Execs      []string
	Tables     map[string][]map[string]any
	FailExec   bool
	FailBegin  bool
	RowsErr    error
	FailTables map[string]bool
	FailCommit bool
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailExec {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

func normalize(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	query = normalize(query)
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	if c.Tables == nil {
		c.Tables = make(map[string][]map[string]any)
	}
	switch {
	case hasPrefixFold(query, "INSERT INTO"):
		return c.insert(query, args)
	case hasPrefixFold(query, "DELETE FROM"):
		return c.delete(query, args)
	}
	return driver.RowsAffected(0), nil
}

func (c *StubConn) insert(query string, args []driver.NamedValue) (driver.Result, error) {
	table, cols, conflict, err := parseInsert(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("exec fail for %s", table)
	}
	if len(cols) != len(args) {
		return nil, fmt.Errorf("column/arg mismatch for %s", table)
	}
	row := make(map[string]any, len(cols))
	for i, col := range cols {
		row[col] = args[i].Value
	}
	if len(conflict) > 0 {
		for i, existing := range c.Tables[table] {
			if sameColumns(existing, row, conflict) {
				c.Tables[table][i] = row
				return driver.RowsAffected(1), nil
			}
		}
	}
	c.Tables[table] = append(c.Tables[table], row)
	return driver.RowsAffected(1), nil
}

func (c *StubConn) delete(query string, args []driver.NamedValue) (driver.Result, error) {
	table, where, err := parseDelete(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("exec fail for %s", table)
	}
	if len(args) < len(where) {
		return nil, fmt.Errorf("missing args for delete %s", table)
	}
	var kept []map[string]any
	removed := 0
	for _, row := range c.Tables[table] {
		if matches(row, where, args) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	c.Tables[table] = kept
	return driver.RowsAffected(removed), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if c.Tables == nil {
		c.Tables = make(map[string][]map[string]any)
	}
	sel, err := parseSelect(normalize(query))
	if err != nil {
		return nil, err
	}
	if c.FailTables[sel.table] {
		return nil, fmt.Errorf("query fail for %s", sel.table)
	}
	if len(args) < len(sel.where) {
		return nil, fmt.Errorf("missing args for select %s", sel.table)
	}
	var matched []map[string]any
	for _, row := range c.Tables[sel.table] {
		if matches(row, sel.where, args) {
			matched = append(matched, row)
		}
	}
	if sel.orderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			return fmt.Sprint(matched[i][sel.orderBy]) < fmt.Sprint(matched[j][sel.orderBy])
		})
	}
	values := make([][]driver.Value, 0, len(matched))
	for _, row := range matched {
		vals := make([]driver.Value, len(sel.cols))
		for i, col := range sel.cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: sel.cols, rows: values, err: c.RowsErr}, nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	return nil
}
func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func valueEqual(a, b any) bool {
	ab, aok := a.([]byte)
	bb, bok := b.([]byte)
	if aok || bok {
		return aok && bok && bytes.Equal(ab, bb)
	}
	return a == b
}

func sameColumns(a, b map[string]any, cols []string) bool {
	for _, col := range cols {
		if !valueEqual(a[col], b[col]) {
			return false
		}
	}
	return true
}

// matches applies where[i] = args[i] to row.
func matches(row map[string]any, where []string, args []driver.NamedValue) bool {
	for i, col := range where {
		if !valueEqual(row[col], args[i].Value) {
			return false
		}
	}
	return true
}

func parseInsert(query string) (table string, cols, conflict []string, err error) {
	up := strings.ToUpper(query)
	intoIdx := strings.Index(up, "INTO ")
	if intoIdx == -1 {
		return "", nil, nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	rest := strings.TrimSpace(query[intoIdx+len("INTO "):])
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx == -1 || closeIdx <= open {
		return "", nil, nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	table = strings.ToLower(strings.TrimSpace(rest[:open]))
	cols = splitColumns(rest[open+1 : closeIdx])
	if i := strings.Index(up, "ON CONFLICT"); i != -1 {
		tail := query[i+len("ON CONFLICT"):]
		o, cl := strings.Index(tail, "("), strings.Index(tail, ")")
		if o == -1 || cl <= o {
			return "", nil, nil, fmt.Errorf("cannot parse conflict target: %s", query)
		}
		conflict = splitColumns(tail[o+1 : cl])
	}
	return table, cols, conflict, nil
}

// parsePredicates reads "a = $1 AND b = $2" into column names.
func parsePredicates(where string) ([]string, error) {
	var cols []string
	for _, part := range splitFold(where, " AND ") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("cannot parse predicate %q", part)
		}
		cols = append(cols, strings.ToLower(strings.TrimSpace(kv[0])))
	}
	return cols, nil
}

func splitFold(s, sep string) []string {
	var out []string
	upper, usep := strings.ToUpper(s), strings.ToUpper(sep)
	for {
		i := strings.Index(upper, usep)
		if i == -1 {
			return append(out, s)
		}
		out = append(out, s[:i])
		s, upper = s[i+len(sep):], upper[i+len(sep):]
	}
}

func parseDelete(query string) (string, []string, error) {
	rest := strings.TrimSpace(query[len("DELETE FROM "):])
	parts := splitFold(rest, " WHERE ")
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("cannot parse delete: %s", query)
	}
	where, err := parsePredicates(parts[1])
	if err != nil {
		return "", nil, err
	}
	return strings.ToLower(strings.TrimSpace(parts[0])), where, nil
}

type selectQuery struct {
	table   string
	cols    []string
	where   []string
	orderBy string
}

func parseSelect(query string) (selectQuery, error) {
	if !hasPrefixFold(query, "SELECT ") {
		return selectQuery{}, fmt.Errorf("cannot parse select: %s", query)
	}
	parts := splitFold(query[len("SELECT "):], " FROM ")
	if len(parts) != 2 {
		return selectQuery{}, fmt.Errorf("cannot parse select: %s", query)
	}
	sel := selectQuery{cols: splitColumns(parts[0])}
	rest := parts[1]
	if order := splitFold(rest, " ORDER BY "); len(order) == 2 {
		rest = order[0]
		sel.orderBy = strings.ToLower(strings.Fields(order[1])[0])
	}
	if where := splitFold(rest, " WHERE "); len(where) == 2 {
		rest = where[0]
		preds, err := parsePredicates(where[1])
		if err != nil {
			return selectQuery{}, err
		}
		sel.where = preds
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return selectQuery{}, fmt.Errorf("cannot parse select: %s", query)
	}
	sel.table = strings.ToLower(fields[0])
	return sel, nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
