// Package catalog declares the warehouse entities: the ten dimensions, the
// date dimension and the metric fact, together with their domain rules.
package catalog

import (
	"fmt"
	"strings"

	"github.com/zeebo/errs"

	"github.com/cognicore/medallion/pkg/medallion/internalerr"
	"github.com/cognicore/medallion/pkg/medallion/table"
)

// Error is the class of catalog projection and validation errors.
var Error = errs.Class("catalog")

// Pipeline metadata carried by every dimension row.
const (
	ColID              = "id"
	ColIsActive        = "is_active"
	ColSourceTimestamp = "source_timestamp"
	ColUpdatedAt       = "updated_at"
)

// Field describes one column of an entity.
type Field struct {
	Name       string
	Type       table.FieldType
	Facet      bool
	Searchable bool
	Required   bool
	Default    any
	Rules      []Rule
}

// MetaFields are the lifecycle columns stamped by the upsert engine.
var MetaFields = []Field{
	{Name: ColIsActive, Type: table.Bool, Facet: true},
	{Name: ColSourceTimestamp, Type: table.Timestamp},
	{Name: ColUpdatedAt, Type: table.Timestamp},
}

// DimensionSpec describes one dimension: where it is staged, where it lands,
// its business key and its descriptive fields.
type DimensionSpec struct {
	Entity      string
	Staging     string
	Table       string
	BusinessKey string
	// Fields lists the business key first, then the descriptive columns.
	Fields []Field
}

// Field returns the descriptor for name, including metadata columns.
func (d DimensionSpec) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	for _, f := range MetaFields {
		if f.Name == name {
			return f, true
		}
	}
	if name == ColID {
		return Field{Name: ColID, Type: table.Int}, true
	}
	return Field{}, false
}

// Key returns the business key descriptor.
func (d DimensionSpec) Key() Field {
	f, _ := d.Field(d.BusinessKey)
	return f
}

// Columns lists the writable columns: declared fields then metadata.
func (d DimensionSpec) Columns() []string {
	cols := make([]string, 0, len(d.Fields)+len(MetaFields))
	for _, f := range d.Fields {
		cols = append(cols, f.Name)
	}
	for _, f := range MetaFields {
		cols = append(cols, f.Name)
	}
	return cols
}

// ReadColumns lists every stored column: id, declared fields, metadata.
func (d DimensionSpec) ReadColumns() []string {
	return append([]string{ColID}, d.Columns()...)
}

// SearchFields lists the human-readable fields used for full-text matching.
func (d DimensionSpec) SearchFields() []string {
	var out []string
	for _, f := range d.Fields {
		if f.Searchable {
			out = append(out, f.Name)
		}
	}
	return out
}

// Project keeps only the declared fields of a raw row and coerces them to
// their types. A present source_timestamp is carried along. Unknown columns
// are dropped. The business key must be present and is trimmed.
func (d DimensionSpec) Project(raw table.Row) (table.Row, error) {
	out := make(table.Row, len(d.Fields)+1)
	var group errs.Group
	for _, f := range d.Fields {
		v, err := f.Type.Coerce(raw[f.Name])
		if err != nil {
			group.Add(fmt.Errorf("%s: %w", f.Name, err))
			continue
		}
		out[f.Name] = v
	}
	if ts, ok := raw[ColSourceTimestamp]; ok && ts != nil {
		v, err := table.Timestamp.Coerce(ts)
		if err != nil {
			group.Add(fmt.Errorf("%s: %w", ColSourceTimestamp, err))
		} else {
			out[ColSourceTimestamp] = v
		}
	}
	if err := group.Err(); err != nil {
		return nil, Error.Wrap(fmt.Errorf("%w: %s: %v", internalerr.ErrMalformedRow, d.Entity, err))
	}
	if s, ok := out[d.BusinessKey].(string); ok {
		out[d.BusinessKey] = strings.TrimSpace(s)
	}
	if isBlank(out[d.BusinessKey]) {
		return nil, Error.Wrap(fmt.Errorf("%w: %s.%s", internalerr.ErrMissingBusinessKey, d.Entity, d.BusinessKey))
	}
	return out, nil
}

// Validate runs a stored row through the entity's domain rules and returns
// the cleaned row, including id and metadata columns.
func (d DimensionSpec) Validate(row table.Row) (table.Row, error) {
	out := make(table.Row, len(d.Fields)+len(MetaFields)+1)
	var group errs.Group

	all := append([]Field{{Name: ColID, Type: table.Int}}, d.Fields...)
	all = append(all, MetaFields...)
	for _, f := range all {
		v, err := f.Clean(row[f.Name])
		if err != nil {
			group.Add(err)
			continue
		}
		out[f.Name] = v
	}
	if isBlank(out[d.BusinessKey]) {
		group.Add(fmt.Errorf("%w: %s", internalerr.ErrMissingBusinessKey, d.BusinessKey))
	}
	if err := group.Err(); err != nil {
		return nil, Error.Wrap(fmt.Errorf("%w: %s: %v", internalerr.ErrInvalidInput, d.Entity, err))
	}
	return out, nil
}

// NormalizeKey applies the business key rules to a raw key.
func (d DimensionSpec) NormalizeKey(raw string) (string, error) {
	v, err := d.Key().Clean(raw)
	if err != nil {
		return "", Error.Wrap(fmt.Errorf("%w: %v", internalerr.ErrInvalidInput, err))
	}
	s, _ := v.(string)
	if s == "" {
		return "", Error.Wrap(fmt.Errorf("%w: %s", internalerr.ErrMissingBusinessKey, d.BusinessKey))
	}
	return s, nil
}

// Clean coerces v, applies the default and required checks, then the rules.
func (f Field) Clean(v any) (any, error) {
	v, err := f.Type.Coerce(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name, err)
	}
	if v == nil && f.Default != nil {
		v = f.Default
	}
	if v == nil {
		if f.Required {
			return nil, fmt.Errorf("%s: required", f.Name)
		}
		return nil, nil
	}
	for _, rule := range f.Rules {
		if v, err = rule(v); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
	}
	return v, nil
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}
