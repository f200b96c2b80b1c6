// Package table holds the uniform tabular form every stage of the pipeline
// exchanges: ordered columns plus rows of typed scalars.
package table

import (
	"regexp"
	"strconv"
	"strings"
)

// Row maps a column name to a scalar (string, int64, float64, bool, time.Time or nil).
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Batch is an ordered set of columns and the rows that carry them.
type Batch struct {
	Columns []string
	Rows    []Row
}

// New returns an empty batch with the given columns.
func New(columns ...string) *Batch {
	return &Batch{Columns: append([]string(nil), columns...)}
}

// Len returns the number of rows.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

// Empty reports whether the batch has no rows.
func (b *Batch) Empty() bool { return b.Len() == 0 }

// Append adds a row, registering any column not seen before.
func (b *Batch) Append(r Row) {
	for k := range r {
		if !b.HasColumn(k) {
			b.Columns = append(b.Columns, k)
		}
	}
	b.Rows = append(b.Rows, r)
}

// HasColumn reports whether name is one of the batch columns.
func (b *Batch) HasColumn(name string) bool {
	for _, c := range b.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Values returns the column values in row order.
func (b *Batch) Values(column string) []any {
	out := make([]any, 0, len(b.Rows))
	for _, r := range b.Rows {
		out = append(out, r[column])
	}
	return out
}

var nonIdent = regexp.MustCompile(`[^a-z0-9_]+`)

// NormalizeColumn lower-cases a source column name and replaces spaces and
// other non identifier characters with underscores.
func NormalizeColumn(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, " ", "_")
	n = nonIdent.ReplaceAllString(n, "_")
	n = strings.Trim(n, "_")
	if n == "" {
		return "column"
	}
	if n[0] >= '0' && n[0] <= '9' {
		n = "c_" + n
	}
	return n
}

// NormalizeColumns rewrites every column name (and the matching row keys)
// with NormalizeColumn. Columns that collide after normalization get a
// numeric suffix.
func (b *Batch) NormalizeColumns() {
	renamed := make(map[string]string, len(b.Columns))
	seen := make(map[string]int, len(b.Columns))
	cols := make([]string, 0, len(b.Columns))
	for _, c := range b.Columns {
		n := NormalizeColumn(c)
		if k := seen[n]; k > 0 {
			seen[n] = k + 1
			n = n + "_" + strconv.Itoa(k+1)
		} else {
			seen[n] = 1
		}
		renamed[c] = n
		cols = append(cols, n)
	}
	b.Columns = cols
	for i, r := range b.Rows {
		out := make(Row, len(r))
		for k, v := range r {
			if n, ok := renamed[k]; ok {
				out[n] = v
			} else {
				out[NormalizeColumn(k)] = v
			}
		}
		b.Rows[i] = out
	}
}
