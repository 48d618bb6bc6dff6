package store

import "database/sql"

// ScanAll materializes a database/sql result set into returned column names
// and positional rows. []byte cells are copied to strings so rows stay valid
// after the driver reuses its buffers.
func ScanAll(rows *sql.Rows) ([]string, [][]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out [][]any
	for rows.Next() {
		dest := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		for i, v := range dest {
			if b, ok := v.([]byte); ok {
				dest[i] = string(b)
			}
		}
		out = append(out, dest)
	}
	return cols, out, rows.Err()
}
