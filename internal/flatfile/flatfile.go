// Package flatfile is the delimited-file side of the transfer core: header
// and type inspection, bounded previews, selective reads, and full writes.
//
// Soft-failure policy (deliberate, mirrors the store side):
//   - selected columns missing from the header are dropped with a warning
//   - ragged rows are right-padded with empty strings, never rejected
package flatfile

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"datasync/internal/schema"
)

// Client reads and writes one delimited file. It holds no open handle
// between calls; every operation opens and closes the file itself.
type Client struct {
	Path  string
	Comma rune

	// Encoding optionally names the file's character set. Empty or "utf-8"
	// reads bytes as-is; "latin-1" and "windows-1250" are decoded through
	// x/text. Writes are always UTF-8.
	Encoding string
}

// New returns a client for path. A zero delimiter defaults to ','.
func New(path string, comma rune) *Client {
	if comma == 0 {
		comma = ','
	}
	return &Client{Path: path, Comma: comma}
}

func (c *Client) open() (io.ReadCloser, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file %s not found: %w", c.Path, err)
		}
		return nil, err
	}

	switch strings.ToLower(c.Encoding) {
	case "", "utf-8", "utf8":
		return f, nil
	case "latin-1", "latin1", "iso-8859-1":
		return decodeReader(f, charmap.ISO8859_1.NewDecoder()), nil
	case "windows-1250", "cp1250":
		return decodeReader(f, charmap.Windows1250.NewDecoder()), nil
	default:
		_ = f.Close()
		return nil, fmt.Errorf("unsupported encoding %q", c.Encoding)
	}
}

func decodeReader(f *os.File, dec transform.Transformer) io.ReadCloser {
	type rc struct {
		io.Reader
		io.Closer
	}
	return &rc{Reader: transform.NewReader(f, dec), Closer: f}
}

func (c *Client) reader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = c.Comma
	cr.FieldsPerRecord = -1
	return cr
}

// readHeader reads and normalizes the first record. The BOM some exporters put
// in front of the first column name is stripped.
func readHeader(cr *csv.Reader) ([]string, error) {
	hdr, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(hdr) > 0 {
		hdr[0] = strings.TrimPrefix(hdr[0], "\uFEFF")
	}
	return hdr, nil
}

// Columns reads the header and classifies each column from the first data
// row. With no data row every column defaults to String.
func (c *Client) Columns() ([]schema.Column, error) {
	src, err := c.open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	cr := c.reader(src)
	hdr, err := readHeader(cr)
	if err != nil {
		return nil, err
	}

	out := make([]schema.Column, len(hdr))
	for i, name := range hdr {
		out[i] = schema.Column{Name: name, Type: schema.TypeString}
	}

	first, err := cr.Read()
	if err == io.EOF {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read first data row: %w", err)
	}

	for i := range out {
		if i < len(first) {
			out[i].Type = schema.Classify([]string{first[i]})
		}
	}
	return out, nil
}

// Preview returns up to limit data rows as header-keyed maps. When selected
// is non-empty each map is filtered to those keys; names absent from the
// header are simply absent from the output.
func (c *Client) Preview(limit int, selected []string) ([]map[string]string, error) {
	src, err := c.open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	cr := c.reader(src)
	hdr, err := readHeader(cr)
	if err != nil {
		return nil, err
	}

	var keep map[string]bool
	if len(selected) > 0 {
		keep = make(map[string]bool, len(selected))
		for _, s := range selected {
			keep[s] = true
		}
	}

	var out []map[string]string
	for len(out) < limit {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		m := make(map[string]string, len(hdr))
		for i, name := range hdr {
			if keep != nil && !keep[name] {
				continue
			}
			if i < len(rec) {
				m[name] = rec[i]
			} else {
				m[name] = ""
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// Count returns the number of data rows, excluding the header.
func (c *Client) Count() (int, error) {
	src, err := c.open()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	cr := c.reader(src)
	if _, err := readHeader(cr); err != nil {
		return 0, err
	}

	n := 0
	for {
		_, err := cr.Read()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return 0, fmt.Errorf("read row: %w", err)
		}
		n++
	}
}

// Read returns all data rows for the selected columns, positionally, in the
// order of the resolved column list. Selected names missing from the header
// are dropped and reported in warnings. Rows shorter than the maximum
// required index are right-padded with empty strings before slicing.
//
// With no selection the full header order is used.
func (c *Client) Read(selected []string) (cols []string, rows [][]string, warnings []string, err error) {
	src, err := c.open()
	if err != nil {
		return nil, nil, nil, err
	}
	defer src.Close()

	cr := c.reader(src)
	hdr, err := readHeader(cr)
	if err != nil {
		return nil, nil, nil, err
	}

	hdrIdx := make(map[string]int, len(hdr))
	for i, h := range hdr {
		hdrIdx[h] = i
	}

	var indices []int
	if len(selected) > 0 {
		for _, want := range selected {
			i, ok := hdrIdx[want]
			if !ok {
				warnings = append(warnings, fmt.Sprintf("column %q not found in file header", want))
				continue
			}
			cols = append(cols, want)
			indices = append(indices, i)
		}
	} else {
		cols = append(cols, hdr...)
		for i := range hdr {
			indices = append(indices, i)
		}
	}

	maxIdx := -1
	for _, i := range indices {
		if i > maxIdx {
			maxIdx = i
		}
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, warnings, fmt.Errorf("read row: %w", err)
		}

		for len(rec) <= maxIdx {
			rec = append(rec, "")
		}

		row := make([]string, len(indices))
		for t, i := range indices {
			row[t] = rec[i]
		}
		rows = append(rows, row)
	}
	return cols, rows, warnings, nil
}

// Write writes the header followed by every row, stringifying each value
// (nil becomes ""). The parent directory is created when missing. Zero rows
// still produce a valid file containing only the header.
func (c *Client) Write(cols []string, rows [][]any) (int, error) {
	if dir := filepath.Dir(c.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	f, err := os.Create(c.Path)
	if err != nil {
		return 0, fmt.Errorf("create file %s: %w", c.Path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = c.Comma

	if err := w.Write(cols); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	rec := make([]string, len(cols))
	for _, row := range rows {
		for i := range rec {
			if i < len(row) {
				rec[i] = schema.Stringify(row[i])
			} else {
				rec[i] = ""
			}
		}
		if err := w.Write(rec); err != nil {
			return 0, fmt.Errorf("write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("flush: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", c.Path, err)
	}
	return len(rows), nil
}
