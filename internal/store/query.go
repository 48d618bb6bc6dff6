package store

import (
	"strconv"
	"strings"
)

// JoinSpec names the additional tables joined to the primary table and their
// ON predicates, paired positionally: Conditions[i] belongs to Tables[i].
//
// Edge cases:
//   - A missing condition (Conditions shorter than Tables) yields an empty
//     ON predicate. That is a deliberately permissive policy: a malformed
//     join produces a cross product, not an error.
type JoinSpec struct {
	Tables     []string `json:"tables"`
	Conditions []string `json:"conditions"`
}

// SelectQuery assembles the SELECT statement used by previews and by
// store→file transfers. It is pure so quoting and join pairing can be tested
// without a database.
type SelectQuery struct {
	Database string
	Table    string
	// Columns to select; empty means all ("*").
	Columns []string
	Join    *JoinSpec
	// Limit is appended as a LIMIT clause when > 0.
	Limit int
}

// quoteNeeded are the characters that force identifier quoting.
const quoteNeeded = " -().,"

// QuoteColumn wraps a column name in identifier quotes when it contains a
// character the store would otherwise misparse; plain names pass through.
func QuoteColumn(name string) string {
	if strings.ContainsAny(name, quoteNeeded) {
		return "`" + name + "`"
	}
	return name
}

// SQL renders the statement.
func (q SelectQuery) SQL() string {
	var b strings.Builder
	b.WriteString("SELECT ")

	if len(q.Columns) == 0 {
		b.WriteString("*")
	} else {
		for i, c := range q.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(QuoteColumn(c))
		}
	}

	b.WriteString(" FROM ")
	b.WriteString(q.qualified(q.Table))

	if q.Join != nil {
		for i, jt := range q.Join.Tables {
			cond := ""
			if i < len(q.Join.Conditions) {
				cond = q.Join.Conditions[i]
			}
			b.WriteString(" JOIN ")
			b.WriteString(q.qualified(jt))
			b.WriteString(" ON ")
			b.WriteString(cond)
		}
	}

	if q.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(q.Limit))
	}
	return b.String()
}

func (q SelectQuery) qualified(table string) string {
	if q.Database == "" {
		return table
	}
	return q.Database + "." + table
}
