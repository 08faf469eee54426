// Package table defines the in-memory tabular representation consumed by the
// anomaly pipeline. A Table carries whatever columns its source had; nothing
// about the schema is validated here.
package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a single cell. A nil Value marks a missing cell.
type Value any

// Row maps column names to cell values.
type Row map[string]Value

// Table is an ordered-column collection of heterogeneous rows. Column order
// follows the source (e.g. a CSV header) and is preserved through analysis.
type Table struct {
	Columns []string
	Rows    []Row
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	return len(t.Rows)
}

// NumCols returns the number of columns.
func (t *Table) NumCols() int {
	return len(t.Columns)
}

// HasColumn reports whether the named column exists. Matching is
// case-sensitive.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Column returns every cell of the named column in row order. Rows that lack
// the column yield nil cells.
func (t *Table) Column(name string) []Value {
	out := make([]Value, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[name]
	}
	return out
}

// Resolve returns the first column whose name matches any candidate,
// case-insensitively. Candidates are tried in priority order; the first
// candidate with a matching column wins.
func Resolve(t *Table, candidates []string) (string, bool) {
	for _, cand := range candidates {
		for _, col := range t.Columns {
			if strings.EqualFold(col, cand) {
				return col, true
			}
		}
	}
	return "", false
}

// ResolveContains returns the first column, in column order, whose
// lower-cased name contains any of the given substrings.
func ResolveContains(t *Table, substrings []string) (string, bool) {
	for _, col := range t.Columns {
		lower := strings.ToLower(col)
		for _, sub := range substrings {
			if strings.Contains(lower, strings.ToLower(sub)) {
				return col, true
			}
		}
	}
	return "", false
}

// Numeric coerces a cell to float64. It returns false for missing cells, NaN,
// and values that do not parse as a number.
func Numeric(v Value) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		if math.IsNaN(x) {
			return 0, false
		}
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// String renders a cell for display and counting. Numeric cells print in
// their shortest form so 2 and 2.0 count as the same category.
func String(v Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}
