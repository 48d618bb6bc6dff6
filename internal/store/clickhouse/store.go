// Package clickhouse implements store.Store over the ClickHouse native
// protocol. The caller's bearer token is passed as the connection password.
package clickhouse

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"reflect"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"datasync/internal/schema"
	"datasync/internal/store"
)

func init() {
	store.Register("clickhouse", New)
}

type Store struct {
	conn     driver.Conn
	database string
}

// New opens a native-protocol connection and verifies it with a ping, so a
// bad config fails here rather than on first use.
func New(ctx context.Context, cfg store.Config) (store.Store, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	opts := &clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Token,
		},
	}
	if cfg.Secure {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, &store.ConnectError{Addr: addr, Err: err}
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, &store.ConnectError{Addr: addr, Err: err}
	}

	return &Store{conn: conn, database: cfg.Database}, nil
}

func (s *Store) Close() { _ = s.conn.Close() }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.conn.Ping(ctx); err != nil {
		return &store.ConnectError{Addr: s.database, Err: err}
	}
	return nil
}

func (s *Store) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, fmt.Sprintf("SHOW TABLES FROM %s", s.database))
	if err != nil {
		return nil, &store.ProtocolError{Op: "show tables", Err: err}
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &store.ProtocolError{Op: "show tables", Err: err}
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (s *Store) Describe(ctx context.Context, table string) ([]schema.Column, error) {
	cols, rows, err := s.Query(ctx, fmt.Sprintf("DESCRIBE TABLE %s.%s", s.database, table))
	if err != nil {
		if strings.Contains(err.Error(), "doesn't exist") || strings.Contains(err.Error(), "UNKNOWN_TABLE") {
			return nil, &store.NotFoundError{Resource: "table " + table, Err: err}
		}
		return nil, err
	}
	// DESCRIBE returns name, type, default_type, ... — only the first two matter.
	if len(cols) < 2 {
		return nil, &store.ProtocolError{Op: "describe " + table, Err: fmt.Errorf("unexpected column count %d", len(cols))}
	}

	out := make([]schema.Column, 0, len(rows))
	for _, r := range rows {
		out = append(out, schema.Column{
			Name: schema.Stringify(r[0]),
			Type: schema.TypeFromNative(schema.Stringify(r[1])),
		})
	}
	return out, nil
}

// Query materializes an arbitrary read statement. Values are scanned through
// the driver's declared scan types and dereferenced to plain values.
func (s *Store) Query(ctx context.Context, sql string) ([]string, [][]any, error) {
	rows, err := s.conn.Query(ctx, sql)
	if err != nil {
		return nil, nil, &store.ProtocolError{Op: "query", Err: err}
	}
	defer rows.Close()

	cols := rows.Columns()
	types := rows.ColumnTypes()

	var out [][]any
	for rows.Next() {
		dest := make([]any, len(types))
		for i, ct := range types {
			dest[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, &store.ProtocolError{Op: "scan", Err: err}
		}

		row := make([]any, len(dest))
		for i, d := range dest {
			v := reflect.ValueOf(d).Elem()
			// Nullable columns scan through a pointer type; flatten to the
			// value or nil so rows hold plain scalars.
			if v.Kind() == reflect.Pointer {
				if v.IsNil() {
					row[i] = nil
					continue
				}
				v = v.Elem()
			}
			row[i] = v.Interface()
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, &store.ProtocolError{Op: "query", Err: err}
	}
	return cols, out, nil
}

func (s *Store) EnsureTable(ctx context.Context, table string, cols []schema.Column) error {
	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		defs = append(defs, store.QuoteColumn(c.Name)+" "+c.Type.String())
	}

	// No meaningful ordering key: this tool's tables are plain landing
	// tables, so a degenerate sorting key is acceptable.
	ddl := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s.%s (%s) ENGINE = MergeTree() ORDER BY tuple()",
		s.database, table, strings.Join(defs, ", "),
	)
	if err := s.conn.Exec(ctx, ddl); err != nil {
		return &store.ProtocolError{Op: "create table " + table, Err: err}
	}
	return nil
}

// InsertRows appends every row to one batch and sends it. The native
// protocol returns no per-row acknowledgment, so the count is the number of
// rows attempted.
//
// Before inserting, the requested columns are cross-checked against the
// table schema; mismatches are logged and the insert proceeds, since the
// server will produce the authoritative error if the batch is truly invalid.
func (s *Store) InsertRows(ctx context.Context, table string, cols []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	s.warnOnSchemaMismatch(ctx, table, cols)

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = store.QuoteColumn(c)
	}

	stmt := fmt.Sprintf("INSERT INTO %s.%s (%s)", s.database, table, strings.Join(quoted, ", "))
	batch, err := s.conn.PrepareBatch(ctx, stmt)
	if err != nil {
		return 0, &store.ProtocolError{Op: "prepare insert " + table, Err: err}
	}

	for _, r := range rows {
		if err := batch.Append(r...); err != nil {
			return 0, &store.ProtocolError{Op: "append row " + table, Err: err}
		}
	}
	if err := batch.Send(); err != nil {
		return 0, &store.ProtocolError{Op: "insert " + table, Err: err}
	}
	return int64(len(rows)), nil
}

func (s *Store) warnOnSchemaMismatch(ctx context.Context, table string, cols []string) {
	existing, err := s.Describe(ctx, table)
	if err != nil {
		log.Printf("clickhouse: could not verify schema of %s: %v", table, err)
		return
	}

	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c.Name] = true
	}

	var missing []string
	for _, c := range cols {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		log.Printf("clickhouse: columns %v missing from table %s schema", missing, table)
	}
}
