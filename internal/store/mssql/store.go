// Package mssql implements store.Store for SQL Server via go-mssqldb.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"datasync/internal/schema"
	"datasync/internal/store"
)

func init() {
	store.Register("mssql", New)
}

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, cfg store.Config) (store.Store, error) {
	q := url.Values{}
	q.Set("database", cfg.Database)
	if cfg.Secure {
		q.Set("encrypt", "true")
	} else {
		q.Set("encrypt", "disable")
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Token),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		RawQuery: q.Encode(),
	}

	db, err := sql.Open("sqlserver", u.String())
	if err != nil {
		return nil, &store.ConnectError{Addr: u.Host, Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &store.ConnectError{Addr: u.Host, Err: err}
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
	const q = `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME`

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
	const q = `SELECT COLUMN_NAME, DATA_TYPE FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_NAME = @p1 ORDER BY ORDINAL_POSITION`

	rows, err := s.db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, &store.ProtocolError{Op: "describe " + table, Err: err}
	}
	defer rows.Close()

	var cols []schema.Column
	for rows.Next() {
		var name, native string
		if err := rows.Scan(&name, &native); err != nil {
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
		defs = append(defs, msIdent(c.Name)+" "+msType(c.Type))
	}

	// SQL Server has no CREATE TABLE IF NOT EXISTS; guard with OBJECT_ID.
	ddl := fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (%s)",
		strings.ReplaceAll(table, "'", "''"), msIdent(table), strings.Join(defs, ", "),
	)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return &store.ProtocolError{Op: "create table " + table, Err: err}
	}
	return nil
}

func (s *Store) InsertRows(ctx context.Context, table string, cols []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	query, args := buildInsertSQL(table, cols, rows)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &store.ProtocolError{Op: "insert " + table, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return int64(len(rows)), nil
	}
	return n, nil
}

func buildInsertSQL(table string, cols []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(msIdent(table))
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(cols))
	n := 1
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", n)
			n++
			if j < len(r) {
				args = append(args, r[j])
			} else {
				args = append(args, nil)
			}
		}
		b.WriteString(")")
	}
	return b.String(), args
}

func msIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func msType(t schema.ColumnType) string {
	switch t {
	case schema.TypeInteger:
		return "BIGINT"
	case schema.TypeFloat:
		return "FLOAT"
	default:
		return "NVARCHAR(MAX)"
	}
}
