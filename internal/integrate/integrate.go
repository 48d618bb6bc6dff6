// Package integrate coordinates transfers between a tabular store and a
// delimited file. It is the single boundary where errors become structured
// results: nothing below it is allowed to escape to the caller as a fault.
package integrate

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"datasync/internal/flatfile"
	"datasync/internal/metrics"
	"datasync/internal/schema"
	"datasync/internal/store"
)

// Logger is the minimal logging interface used by the integrator.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

const (
	// DefaultBatchSize is the number of rows per insert batch on the
	// file→store path.
	DefaultBatchSize = 10000

	// DefaultRowCap bounds every store→file transfer. This is a hard
	// policy: larger transfers truncate silently at the cap, so a single
	// invocation moves at most this many rows.
	DefaultRowCap = 10000

	// schemaSampleRows is how many leading rows feed type inference when
	// building the destination schema.
	schemaSampleRows = 100
)

// Result is the terminal outcome of one transfer. Soft mismatches (dropped
// columns, truncation, ragged rows) surface in Warnings; Success stays true
// for them.
type Result struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Records  int      `json:"records_processed"`
	Warnings []string `json:"warnings,omitempty"`
}

func failure(err error) Result {
	return Result{Success: false, Message: fmt.Sprintf("Error transferring data: %v", err)}
}

// Integrator runs one transfer synchronously per call. It keeps no state
// across calls; adapters are supplied per invocation and owned by the caller.
type Integrator struct {
	// BatchSize for file→store inserts; DefaultBatchSize when <= 0.
	BatchSize int

	// RowCap for store→file reads; DefaultRowCap when <= 0.
	RowCap int

	Logger  Logger
	Metrics metrics.Backend
}

func (g *Integrator) logf(format string, v ...any) {
	if g.Logger == nil {
		return
	}
	g.Logger.Printf(format, v...)
}

func (g *Integrator) metrics() metrics.Backend {
	if g.Metrics == nil {
		return metrics.Nop()
	}
	return g.Metrics
}

func (g *Integrator) batchSize() int {
	if g.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return g.BatchSize
}

func (g *Integrator) rowCap() int {
	if g.RowCap <= 0 {
		return DefaultRowCap
	}
	return g.RowCap
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

// StoreToFile pulls up to RowCap rows from the store and writes them to the
// file, header first.
//
// Column handling:
//   - selected names are quoted per the store's rule and drive the SELECT
//   - wildcard=true queries "*" regardless of selected; if the store then
//     returns more columns than len(selected) (and selected is non-empty),
//     both header and rows are truncated to the first len(selected) columns
//     to preserve column-count symmetry with the caller's choice
//
// The result message does not flag cap truncation; callers must know this
// is an at-most-RowCap transfer per invocation.
func (g *Integrator) StoreToFile(
	ctx context.Context,
	st store.Store,
	file *flatfile.Client,
	database string,
	table string,
	selected []string,
	wildcard bool,
	join *store.JoinSpec,
) Result {
	var warnings []string

	queryCols := selected
	if wildcard {
		queryCols = nil
	}

	q := store.SelectQuery{
		Database: database,
		Table:    table,
		Columns:  queryCols,
		Join:     join,
		Limit:    g.rowCap(),
	}

	start := time.Now()
	cols, rows, err := st.Query(ctx, q.SQL())
	if err != nil {
		return failure(err)
	}
	g.logf("stage=query table=%s rows=%d duration=%s", table, len(rows), durMS(start))

	if wildcard && len(selected) > 0 && len(cols) > len(selected) {
		warnings = append(warnings, fmt.Sprintf(
			"wildcard query returned %d columns; truncated to the first %d", len(cols), len(selected)))
		cols = cols[:len(selected)]
		for i, r := range rows {
			if len(r) > len(selected) {
				rows[i] = r[:len(selected)]
			}
		}
	}

	written, err := file.Write(cols, rows)
	if err != nil {
		return failure(err)
	}
	g.logf("stage=write file=%s rows=%d", file.Path, written)

	g.metrics().IncCounter("datasync.rows.transferred", float64(len(rows)), "direction:store_to_file")

	return Result{
		Success:  true,
		Message:  "Data transfer completed successfully",
		Records:  len(rows),
		Warnings: warnings,
	}
}

// FileToStore reads the selected columns from the file, creates the target
// table from an inferred schema when absent, and inserts all rows in
// contiguous batches. A file with zero data rows is a success with zero
// records and no insert call.
func (g *Integrator) FileToStore(
	ctx context.Context,
	file *flatfile.Client,
	st store.Store,
	table string,
	selected []string,
) Result {
	cols, raw, warnings, err := file.Read(selected)
	if err != nil {
		return failure(err)
	}

	if len(raw) == 0 {
		return Result{Success: true, Message: "No data to transfer", Warnings: warnings}
	}

	inferred := schema.InferColumns(cols, raw, schemaSampleRows)
	if err := st.EnsureTable(ctx, table, inferred); err != nil {
		return failure(err)
	}
	g.logf("stage=ddl table=%s columns=%d", table, len(inferred))

	rows, err := typedRows(raw, inferred)
	if err != nil {
		return failure(err)
	}

	batchSize := g.batchSize()
	var total int64
	start := time.Now()
	for off := 0; off < len(rows); off += batchSize {
		end := off + batchSize
		if end > len(rows) {
			end = len(rows)
		}

		n, err := st.InsertRows(ctx, table, cols, rows[off:end])
		if err != nil {
			return failure(err)
		}
		total += n
	}
	g.logf("stage=insert table=%s rows=%d duration=%s", table, total, durMS(start))

	g.metrics().IncCounter("datasync.rows.transferred", float64(total), "direction:file_to_store")

	return Result{
		Success:  true,
		Message:  "Data transfer completed successfully",
		Records:  int(total),
		Warnings: warnings,
	}
}

// typedRows converts raw text cells to the Go types matching the inferred
// schema, so typed store columns receive typed bind values. Schema inference
// samples a prefix of the rows, so a later row can still carry a value the
// inferred type cannot hold; that fails the transfer rather than silently
// inserting a substitute.
func typedRows(raw [][]string, cols []schema.Column) ([][]any, error) {
	out := make([][]any, len(raw))
	for i, r := range raw {
		row := make([]any, len(cols))
		for j, c := range cols {
			cell := ""
			if j < len(r) {
				cell = r[j]
			}
			v, err := schema.Convert(cell, c.Type)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i+1, c.Name, err)
			}
			row[j] = v
		}
		out[i] = row
	}
	return out, nil
}

// NewStderrLogger returns a logger writing the integrator's stage lines to
// standard error, for CLI use.
func NewStderrLogger() Logger {
	return log.New(os.Stderr, "datasync: ", log.LstdFlags)
}
