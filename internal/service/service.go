// Package service fronts the transfer core for external callers (CLI, HTTP
// handlers). Every operation takes plain configuration, builds its own
// adapters, and releases them on all exit paths; nothing here reads ambient
// state.
package service

import (
	"context"
	"fmt"
	"os"

	"datasync/internal/flatfile"
	"datasync/internal/htmltable"
	"datasync/internal/integrate"
	"datasync/internal/metrics"
	"datasync/internal/schema"
	"datasync/internal/store"
)

// Direction selects which side of a transfer is the source.
type Direction string

const (
	StoreToFile Direction = "store_to_file"
	FileToStore Direction = "file_to_store"
)

// FileConfig locates the delimited file side of an operation.
type FileConfig struct {
	Path string `json:"path"`
	// Delimiter is a single character; empty defaults to ",".
	Delimiter string `json:"delimiter"`
	// Encoding optionally names the file character set (see flatfile).
	Encoding string `json:"encoding,omitempty"`
}

func (fc FileConfig) client() *flatfile.Client {
	comma := ','
	if fc.Delimiter != "" {
		comma = []rune(fc.Delimiter)[0]
	}
	c := flatfile.New(fc.Path, comma)
	c.Encoding = fc.Encoding
	return c
}

// PreviewRequest asks for a bounded sample of a source.
type PreviewRequest struct {
	// Source is "store", "file" or "html".
	Source string `json:"source"`

	Store store.Config `json:"store,omitempty"`
	File  FileConfig   `json:"file,omitempty"`

	Table   string          `json:"table,omitempty"`
	Columns []string        `json:"columns,omitempty"`
	Join    *store.JoinSpec `json:"join,omitempty"`
}

// TransferRequest describes one synchronous transfer.
type TransferRequest struct {
	Direction Direction    `json:"direction"`
	Store     store.Config `json:"store"`
	File      FileConfig   `json:"file"`

	// Table is the source table (store→file) or target table (file→store).
	Table string `json:"table"`

	// Columns is the ordered selection; empty means all.
	Columns []string `json:"columns,omitempty"`

	// SelectAll queries "*" even when Columns is non-empty; the returned
	// width is then reconciled against len(Columns).
	SelectAll bool `json:"select_all,omitempty"`

	Join *store.JoinSpec `json:"join,omitempty"`

	BatchSize int `json:"batch_size,omitempty"`
	RowCap    int `json:"row_cap,omitempty"`
}

// Service carries the cross-request collaborators. The zero value works:
// no logging, no metrics.
type Service struct {
	Logger  integrate.Logger
	Metrics metrics.Backend
}

// TestStoreConnection reports reachability of the configured store. It never
// returns an error; failures land in the Status message.
func (s *Service) TestStoreConnection(ctx context.Context, cfg store.Config) store.Status {
	return store.TestConnection(ctx, cfg)
}

// ListStoreTables lists the tables of the configured database.
func (s *Service) ListStoreTables(ctx context.Context, cfg store.Config) ([]string, error) {
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	return st.Tables(ctx)
}

// DescribeStoreTable introspects a table's columns.
func (s *Service) DescribeStoreTable(ctx context.Context, cfg store.Config, table string) ([]schema.Column, error) {
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	return st.Describe(ctx, table)
}

// PreviewSource returns up to 100 rows of the requested source as maps.
func (s *Service) PreviewSource(ctx context.Context, req PreviewRequest) ([]map[string]any, error) {
	switch req.Source {
	case "store":
		st, err := store.Open(ctx, req.Store)
		if err != nil {
			return nil, err
		}
		defer st.Close()

		return store.Preview(ctx, st, req.Store.Database, req.Table, req.Columns, req.Join)

	case "file":
		rows, err := req.File.client().Preview(store.PreviewLimit, req.Columns)
		if err != nil {
			return nil, err
		}
		return stringMaps(rows), nil

	case "html":
		f, err := os.Open(req.File.Path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		rows, err := htmltable.Preview(f, store.PreviewLimit, req.Columns)
		if err != nil {
			return nil, err
		}
		return stringMaps(rows), nil

	default:
		return nil, fmt.Errorf("unknown preview source %q", req.Source)
	}
}

// RunTransfer executes one synchronous transfer and always returns a
// structured result; errors never escape as faults.
func (s *Service) RunTransfer(ctx context.Context, req TransferRequest) integrate.Result {
	g := &integrate.Integrator{
		BatchSize: req.BatchSize,
		RowCap:    req.RowCap,
		Logger:    s.Logger,
		Metrics:   s.Metrics,
	}

	file := req.File.client()

	switch req.Direction {
	case StoreToFile:
		st, err := store.Open(ctx, req.Store)
		if err != nil {
			return integrate.Result{Success: false, Message: fmt.Sprintf("Error transferring data: %v", err)}
		}
		defer st.Close()

		wildcard := req.SelectAll || len(req.Columns) == 0
		return g.StoreToFile(ctx, st, file, req.Store.Database, req.Table, req.Columns, wildcard, req.Join)

	case FileToStore:
		st, err := store.Open(ctx, req.Store)
		if err != nil {
			return integrate.Result{Success: false, Message: fmt.Sprintf("Error transferring data: %v", err)}
		}
		defer st.Close()

		return g.FileToStore(ctx, file, st, req.Table, req.Columns)

	default:
		return integrate.Result{Success: false, Message: fmt.Sprintf("unknown transfer direction %q", req.Direction)}
	}
}

func stringMaps(in []map[string]string) []map[string]any {
	out := make([]map[string]any, len(in))
	for i, m := range in {
		row := make(map[string]any, len(m))
		for k, v := range m {
			row[k] = v
		}
		out[i] = row
	}
	return out
}
