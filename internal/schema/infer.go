package schema

import (
	"strconv"
	"strings"
)

// Classify infers a column type from a sample of raw text values.
//
// Rules:
//   - empty values are excluded from the sample and never influence the verdict
//   - every remaining value parses as base-10 int64 → TypeInteger
//   - else every remaining value parses as float64   → TypeFloat
//   - else (including an empty effective sample)     → TypeString
func Classify(sample []string) ColumnType {
	var seen bool
	allInt := true
	allFloat := true

	for _, v := range sample {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		seen = true

		if allInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				allFloat = false
			}
		}
		if !allInt && !allFloat {
			break
		}
	}

	switch {
	case !seen:
		return TypeString
	case allInt:
		return TypeInteger
	case allFloat:
		return TypeFloat
	default:
		return TypeString
	}
}

// InferColumns classifies every named column from positional rows, sampling
// at most sampleLimit rows per column. Rows shorter than a column's index
// simply contribute nothing for that column.
func InferColumns(names []string, rows [][]string, sampleLimit int) []Column {
	if sampleLimit <= 0 || sampleLimit > len(rows) {
		sampleLimit = len(rows)
	}

	out := make([]Column, len(names))
	sample := make([]string, 0, sampleLimit)

	for i, name := range names {
		sample = sample[:0]
		for _, r := range rows[:sampleLimit] {
			if i < len(r) {
				sample = append(sample, r[i])
			}
		}
		out[i] = Column{Name: name, Type: Classify(sample)}
	}
	return out
}
