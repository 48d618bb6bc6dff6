// Package htmltable extracts the first table of an HTML document as a
// (columns, rows) pair, so HTML exports can be previewed alongside
// delimited files.
package htmltable

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Read parses the document and returns the first <table>. The header comes
// from <th> cells when present, otherwise from the first row. Ragged rows
// are right-padded with empty strings to the header width.
func Read(r io.Reader) ([]string, [][]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("parse html: %w", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, nil, fmt.Errorf("no table element in document")
	}

	var all [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if len(cells) > 0 {
			all = append(all, cells)
		}
	})
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("table has no rows")
	}

	cols := all[0]
	rows := all[1:]
	for i, row := range rows {
		for len(row) < len(cols) {
			row = append(row, "")
		}
		rows[i] = row[:len(cols)]
	}
	return cols, rows, nil
}

// Preview returns up to limit rows as header-keyed maps, same shape as the
// flat-file preview.
func Preview(r io.Reader, limit int, selected []string) ([]map[string]string, error) {
	cols, rows, err := Read(r)
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

	if limit > len(rows) {
		limit = len(rows)
	}
	out := make([]map[string]string, 0, limit)
	for _, row := range rows[:limit] {
		m := make(map[string]string, len(cols))
		for i, name := range cols {
			if keep != nil && !keep[name] {
				continue
			}
			m[name] = row[i]
		}
		out = append(out, m)
	}
	return out, nil
}
