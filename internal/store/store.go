// Package store defines the tabular-store side of the transfer core: a
// backend-agnostic Store interface, a kind registry for concrete drivers,
// and the query plumbing shared by previews and transfers.
//
// IMPORTANT: the interface is intentionally minimal and focused on what the
// transfer orchestrator needs. Each backend implements the semantics in its
// own idiomatic way (ClickHouse DESCRIBE, Postgres information_schema, etc).
package store

import (
	"context"
	"fmt"
	"sync"

	"datasync/internal/schema"
)

// Config is the connection configuration supplied by the caller for every
// operation. It is request-scoped: adapters built from it hold one live
// connection handle and are not designed for sharing across concurrent
// operations.
type Config struct {
	// Kind selects a registered backend ("clickhouse", "postgres", ...).
	Kind string `json:"kind"`

	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`

	// Token is the bearer credential, passed to the backend as the
	// connection secret/password.
	Token string `json:"token"`

	// Secure enables TLS for backends that support it.
	Secure bool `json:"secure"`
}

// Store is the contract every tabular backend implements.
//
// Edge cases:
//   - InsertRows returns the number of rows attempted when the underlying
//     protocol gives no per-row acknowledgment (ClickHouse); SQL backends
//     report driver row counts.
//   - Query performs no validation of the statement. It is a trusted-caller
//     interface, not a public query endpoint.
type Store interface {
	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error

	// Tables lists the tables of the configured database.
	Tables(ctx context.Context) ([]string, error)

	// Describe introspects a table's declared columns, in declaration order.
	Describe(ctx context.Context, table string) ([]schema.Column, error)

	// Query executes an arbitrary read statement and materializes the result.
	// Column names are the names the store returned, not the requested ones.
	Query(ctx context.Context, sql string) (cols []string, rows [][]any, err error)

	// EnsureTable creates the table if it does not exist, using the given
	// name/type pairs and no meaningful ordering key.
	EnsureTable(ctx context.Context, table string, cols []schema.Column) error

	// InsertRows inserts a batch of positional rows under the given columns.
	InsertRows(ctx context.Context, table string, cols []string, rows [][]any) (int64, error)

	// Close releases the connection. Call once, on every exit path.
	Close()
}

// Status is the caller-facing outcome of a connection test.
type Status struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ---- backend registry (mirrors the factory pattern of the storage layer) ----

type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend factory under a kind. Call from an init()
// function in the backend package.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered. This is intentional to fail fast and
//     avoid ambiguous backend selection.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()

	if kind == "" {
		panic("store: Register called with empty kind")
	}
	if f == nil {
		panic("store: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("store: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Open constructs a Store using the registered backend factory. The returned
// store is connected eagerly; a config that cannot reach its server fails
// here, not on first use.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("store: missing config.Kind")
	}

	regMu.RLock()
	f := factories[cfg.Kind]
	regMu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported store kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// TestConnection opens a connection, pings it, and reports the outcome.
// Errors never propagate: every failure becomes Status{Success: false} with
// the error text, matching the caller-facing contract.
func TestConnection(ctx context.Context, cfg Config) Status {
	st, err := Open(ctx, cfg)
	if err != nil {
		return Status{Success: false, Message: fmt.Sprintf("Connection failed: %v", err)}
	}
	defer st.Close()

	if err := st.Ping(ctx); err != nil {
		return Status{Success: false, Message: fmt.Sprintf("Connection failed: %v", err)}
	}
	return Status{Success: true, Message: "Connection successful"}
}

// PreviewLimit caps rows returned by Preview.
const PreviewLimit = 100

// Preview runs the standard capped SELECT for a table and materializes the
// result as maps keyed by the returned column names. If the store renames or
// aggregates columns, the maps reflect what came back, not what was asked.
func Preview(ctx context.Context, st Store, database, table string, selected []string, join *JoinSpec) ([]map[string]any, error) {
	q := SelectQuery{
		Database: database,
		Table:    table,
		Columns:  selected,
		Join:     join,
		Limit:    PreviewLimit,
	}

	cols, rows, err := st.Query(ctx, q.SQL())
	if err != nil {
		return nil, fmt.Errorf("preview %s.%s: %w", database, table, err)
	}

	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		m := make(map[string]any, len(cols))
		for i, v := range r {
			if i < len(cols) {
				m[cols[i]] = v
			}
		}
		out = append(out, m)
	}
	return out, nil
}
