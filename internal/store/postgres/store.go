// Package postgres implements store.Store for Postgres via pgx.
//
// ClickHouse is the documented primary backend; this one exists so the same
// transfer requests can target a Postgres warehouse through the registry.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"datasync/internal/schema"
	"datasync/internal/store"
)

func init() {
	store.Register("postgres", New)
}

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg store.Config) (store.Store, error) {
	sslmode := "disable"
	if cfg.Secure {
		sslmode = "require"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Token, cfg.Database, sslmode)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, &store.ConnectError{Addr: addr, Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &store.ConnectError{Addr: addr, Err: err}
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return &store.ConnectError{Addr: "pool", Err: err}
	}
	return nil
}

func (s *Store) Tables(ctx context.Context) ([]string, error) {
	const q = `SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := s.pool.Query(ctx, q)
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
	const q = `SELECT column_name, data_type FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`

	rows, err := s.pool.Query(ctx, q, table)
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

func (s *Store) Query(ctx context.Context, sql string) ([]string, [][]any, error) {
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, nil, &store.ProtocolError{Op: "query", Err: err}
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}

	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, nil, &store.ProtocolError{Op: "scan", Err: err}
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, &store.ProtocolError{Op: "query", Err: err}
	}
	return cols, out, nil
}

func (s *Store) EnsureTable(ctx context.Context, table string, cols []schema.Column) error {
	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		defs = append(defs, pgIdent(c.Name)+" "+pgType(c.Type))
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", pgIdent(table), strings.Join(defs, ", "))
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return &store.ProtocolError{Op: "create table " + table, Err: err}
	}
	return nil
}

func (s *Store) InsertRows(ctx context.Context, table string, cols []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	sql, args := buildInsertSQL(table, cols, rows)
	cmd, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, &store.ProtocolError{Op: "insert " + table, Err: err}
	}
	return cmd.RowsAffected(), nil
}

// buildInsertSQL constructs a single multi-row INSERT and its args. It is
// pure and deterministic so placeholder numbering can be unit tested without
// a database.
func buildInsertSQL(table string, cols []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgIdent(table))
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
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
			fmt.Fprintf(&b, "$%d", n)
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

func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func pgType(t schema.ColumnType) string {
	switch t {
	case schema.TypeInteger:
		return "BIGINT"
	case schema.TypeFloat:
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}
