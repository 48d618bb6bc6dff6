// Package schema defines the column descriptors shared by the store and
// flat-file adapters, plus the type inference used to derive them from
// sampled text values.
//
// Both adapters must agree on classification so that a file → store → file
// round trip produces a stable schema; keep all inference rules in this
// package.
package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ColumnType is the closed set of column types the transfer core understands.
type ColumnType int

const (
	TypeString ColumnType = iota
	TypeInteger
	TypeFloat
)

// String returns the store-native type name ("Int64", "Float64", "String").
func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return "Int64"
	case TypeFloat:
		return "Float64"
	default:
		return "String"
	}
}

// MarshalJSON renders the store-native name, so descriptors serialize as
// {"name":"id","type":"Int64"}.
func (t ColumnType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON accepts the store-native names produced by MarshalJSON.
func (t *ColumnType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = TypeFromNative(s)
	return nil
}

// TypeFromNative maps a store-declared type string back onto the closed set.
// Unknown native types collapse to String, which is always safe to transfer.
func TypeFromNative(native string) ColumnType {
	switch native {
	case "Int8", "Int16", "Int32", "Int64",
		"UInt8", "UInt16", "UInt32", "UInt64",
		"integer", "bigint", "smallint", "INTEGER", "int", "BIGINT":
		return TypeInteger
	case "Float32", "Float64",
		"real", "double precision", "numeric", "float", "REAL":
		return TypeFloat
	default:
		return TypeString
	}
}

// Column describes one column by name and type. Order matters: rows are
// positional tuples matched against a []Column by index.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Stringify converts a cell value to its text form for file output.
// nil (absent/NULL) becomes the empty string.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// Convert coerces a raw text value to the Go value matching t, so typed
// store columns receive typed bind values. An empty cell becomes the type's
// zero value (an absent value has no better representation in a non-nullable
// column); a non-empty value that does not parse is an error, because
// substituting a zero would corrupt the row.
func Convert(raw string, t ColumnType) (any, error) {
	switch t {
	case TypeInteger:
		if raw == "" {
			return int64(0), nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to %s", raw, t)
		}
		return n, nil
	case TypeFloat:
		if raw == "" {
			return float64(0), nil
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to %s", raw, t)
		}
		return f, nil
	default:
		return raw, nil
	}
}
