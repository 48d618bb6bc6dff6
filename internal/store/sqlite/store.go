// Package sqlite implements store.Store over a local SQLite file.
//
// Config mapping: Database is the database file path; Host/Port/User/Token
// are ignored. Useful for offline transfers and integration tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"datasync/internal/schema"
	"datasync/internal/store"
)

func init() {
	store.Register("sqlite", New)
}

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, cfg store.Config) (store.Store, error) {
	db, err := sql.Open("sqlite", cfg.Database)
	if err != nil {
		return nil, &store.ConnectError{Addr: cfg.Database, Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &store.ConnectError{Addr: cfg.Database, Err: err}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() { _ = s.db.Close() }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &store.ConnectError{Addr: "db", Err: err}
	}
	return nil
}

func (s *Store) Tables(ctx context.Context) ([]string, error) {
	const q = `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, &store.ProtocolError{Op: "list tables", Err: err}
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &store.ProtocolError{Op: "list tables", Err: err}
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (s *Store) Describe(ctx context.Context, table string) ([]schema.Column, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", sqIdent(table)))
	if err != nil {
		return nil, &store.ProtocolError{Op: "describe " + table, Err: err}
	}
	defer rows.Close()

	var cols []schema.Column
	for rows.Next() {
		var (
			cid     int
			name    string
			native  string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &native, &notNull, &dflt, &pk); err != nil {
			return nil, &store.ProtocolError{Op: "describe " + table, Err: err}
		}
		cols = append(cols, schema.Column{Name: name, Type: schema.TypeFromNative(native)})
	}
	if err := rows.Err(); err != nil {
		return nil, &store.ProtocolError{Op: "describe " + table, Err: err}
	}
	if len(cols) == 0 {
		return nil, &store.NotFoundError{Resource: "table " + table}
	}
	return cols, nil
}

func (s *Store) Query(ctx context.Context, query string) ([]string, [][]any, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, &store.ProtocolError{Op: "query", Err: err}
	}
	defer rows.Close()

	cols, out, err := store.ScanAll(rows)
	if err != nil {
		return nil, nil, &store.ProtocolError{Op: "scan", Err: err}
	}
	return cols, out, nil
}

func (s *Store) EnsureTable(ctx context.Context, table string, cols []schema.Column) error {
	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		defs = append(defs, sqIdent(c.Name)+" "+sqType(c.Type))
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", sqIdent(table), strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return &store.ProtocolError{Op: "create table " + table, Err: err}
	}
	return nil
}

func (s *Store) InsertRows(ctx context.Context, table string, cols []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = sqIdent(c)
		marks[i] = "?"
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		sqIdent(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &store.ProtocolError{Op: "insert " + table, Err: err}
	}

	prep, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		_ = tx.Rollback()
		return 0, &store.ProtocolError{Op: "insert " + table, Err: err}
	}

	var total int64
	for _, r := range rows {
		args := make([]any, len(cols))
		for j := range cols {
			if j < len(r) {
				args[j] = r[j]
			}
		}
		if _, err := prep.ExecContext(ctx, args...); err != nil {
			_ = prep.Close()
			_ = tx.Rollback()
			return 0, &store.ProtocolError{Op: "insert " + table, Err: err}
		}
		total++
	}

	if err := prep.Close(); err != nil {
		_ = tx.Rollback()
		return 0, &store.ProtocolError{Op: "insert " + table, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return 0, &store.ProtocolError{Op: "insert " + table, Err: err}
	}
	return total, nil
}

func sqIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sqType(t schema.ColumnType) string {
	switch t {
	case schema.TypeInteger:
		return "INTEGER"
	case schema.TypeFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}
