package search

import (
	"strings"

	"github.com/cognicore/medallion/pkg/medallion/catalog"
	"github.com/cognicore/medallion/pkg/medallion/table"
)

// Query is free text plus a filter_by expression.
type Query struct {
	Text   string
	Filter string
}

// ParseQuery splits input into search text and filter clauses. A token of
// the form field:value (value may be double quoted) becomes an exact-match
// clause when field is a facet of spec; every other token stays text.
func ParseQuery(spec catalog.DimensionSpec, input string) Query {
	var text, clauses []string
	for _, tok := range splitQuoted(input) {
		name, value, ok := strings.Cut(tok, ":")
		if !ok || value == "" {
			text = append(text, strings.Trim(tok, `"`))
			continue
		}
		f, known := spec.Field(strings.ToLower(name))
		if !known || !f.Facet {
			text = append(text, strings.Trim(tok, `"`))
			continue
		}
		clauses = append(clauses, f.Name+":="+filterValue(f.Type, strings.Trim(value, `"`)))
	}
	return Query{Text: strings.Join(text, " "), Filter: strings.Join(clauses, " && ")}
}

func filterValue(t table.FieldType, v string) string {
	if t == table.String {
		return "`" + strings.ReplaceAll(v, "`", "") + "`"
	}
	return v
}

// splitQuoted splits on whitespace outside double quotes.
func splitQuoted(s string) []string {
	var out []string
	var cur strings.Builder
	quoted := false
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			cur.WriteRune(r)
		case !quoted && (r == ' ' || r == '\t' || r == '\n'):
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
