package maintenance

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/medallion/pkg/medallion/catalog"
	"github.com/cognicore/medallion/pkg/medallion/internalerr"
	"github.com/cognicore/medallion/pkg/medallion/search"
)

// SchemaWriter persists an exported document to a destination (file,
// stdout, etc.).
type SchemaWriter interface {
	WriteSchema(ctx context.Context, content []byte) error
}

// SchemaExporter renders the entity catalog and its collection schemas as
// YAML, for review next to the warehouse DDL.
type SchemaExporter struct {
	Writer SchemaWriter
}

type exportedField struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Facet    bool   `yaml:"facet,omitempty"`
	Optional bool   `yaml:"optional,omitempty"`
}

type exportedEntity struct {
	Entity       string          `yaml:"entity"`
	Table        string          `yaml:"table"`
	Staging      string          `yaml:"staging"`
	BusinessKey  string          `yaml:"business_key"`
	SearchFields []string        `yaml:"search_fields"`
	Collection   []exportedField `yaml:"collection"`
}

// Export writes one YAML document listing every spec in order.
func (e *SchemaExporter) Export(ctx context.Context, specs []catalog.DimensionSpec) error {
	if e.Writer == nil {
		return Error.Wrap(fmt.Errorf("%w: schema exporter needs a writer", internalerr.ErrInvalidConfig))
	}
	out := make([]exportedEntity, 0, len(specs))
	for _, spec := range specs {
		schema := search.Schema(spec)
		fields := make([]exportedField, len(schema.Fields))
		for i, f := range schema.Fields {
			fields[i] = exportedField{Name: f.Name, Type: f.Type, Facet: f.Facet, Optional: f.Optional}
		}
		out = append(out, exportedEntity{
			Entity:       spec.Entity,
			Table:        spec.Table,
			Staging:      spec.Staging,
			BusinessKey:  spec.BusinessKey,
			SearchFields: spec.SearchFields(),
			Collection:   fields,
		})
	}
	data, err := yaml.Marshal(map[string]any{"entities": out})
	if err != nil {
		return Error.Wrap(err)
	}
	return e.Writer.WriteSchema(ctx, data)
}
