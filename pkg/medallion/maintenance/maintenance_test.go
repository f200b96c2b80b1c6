package maintenance

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/medallion/pkg/medallion/catalog"
	"github.com/cognicore/medallion/pkg/medallion/internalerr"
	"github.com/cognicore/medallion/pkg/medallion/search"
	"github.com/cognicore/medallion/pkg/medallion/search/searchtest"
	"github.com/cognicore/medallion/pkg/medallion/table"
	"github.com/cognicore/medallion/pkg/medallion/warehouse"
)

type fakeReader struct {
	rows map[string]*table.Batch
	err  error
}

func (f *fakeReader) ReadDimension(ctx context.Context, spec catalog.DimensionSpec, opts warehouse.ReadOptions) (*table.Batch, error) {
	if f.err != nil {
		return nil, f.err
	}
	if b, ok := f.rows[spec.Entity]; ok {
		return b, nil
	}
	return table.New(), nil
}

func batchOf(rows ...table.Row) *table.Batch {
	b := table.New()
	for _, r := range rows {
		b.Append(r)
	}
	return b
}

func TestReindex(t *testing.T) {
	engine := searchtest.New()
	registry := search.NewRegistry(engine, catalog.Dimensions(), nil)
	reader := &fakeReader{rows: map[string]*table.Batch{
		"team": batchOf(
			table.Row{"id": int64(1), "team_name": "Platform"},
			table.Row{"id": int64(2), "team_name": "X"},
		),
		"status": batchOf(table.Row{"id": int64(1), "status_name": "running"}),
	}}
	r := &Reindexer{Reader: reader, Registry: registry, Syncer: search.NewSyncer(engine, nil)}

	res, err := r.Reindex(context.Background())
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if res.Processed != 3 || res.Indexed != 2 || res.Invalid != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Outcomes) != len(catalog.Dimensions()) {
		t.Fatalf("expected one outcome per entity, got %d", len(res.Outcomes))
	}
	if doc := engine.Documents("status")["1"]; doc["status_name"] != "RUNNING" {
		t.Fatalf("status not normalized: %v", doc)
	}
}

func TestReindexSelectedEntities(t *testing.T) {
	engine := searchtest.New()
	registry := search.NewRegistry(engine, catalog.Dimensions(), nil)
	r := &Reindexer{Reader: &fakeReader{}, Registry: registry, Syncer: search.NewSyncer(engine, nil)}

	res, err := r.Reindex(context.Background(), "region")
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if len(res.Outcomes) != 1 || !engine.HasCollection("region") || engine.HasCollection("team") {
		t.Fatalf("only region expected, got %+v", res.Outcomes)
	}
	if _, err := r.Reindex(context.Background(), "galaxy"); !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestReindexErrors(t *testing.T) {
	if _, err := (&Reindexer{}).Reindex(context.Background()); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	engine := searchtest.New()
	r := &Reindexer{
		Reader:   &fakeReader{err: errors.New("db down")},
		Registry: search.NewRegistry(engine, catalog.Dimensions(), nil),
		Syncer:   search.NewSyncer(engine, nil),
	}
	if _, err := r.Reindex(context.Background()); err == nil || !strings.Contains(err.Error(), "db down") {
		t.Fatalf("expected read error, got %v", err)
	}
}

type memWriter struct{ content []byte }

func (m *memWriter) WriteSchema(ctx context.Context, content []byte) error {
	m.content = content
	return nil
}

func TestSchemaExport(t *testing.T) {
	w := &memWriter{}
	if err := (&SchemaExporter{Writer: w}).Export(context.Background(), catalog.Dimensions()); err != nil {
		t.Fatalf("Export: %v", err)
	}
	var doc struct {
		Entities []struct {
			Entity      string `yaml:"entity"`
			BusinessKey string `yaml:"business_key"`
			Collection  []struct {
				Name string `yaml:"name"`
				Type string `yaml:"type"`
			} `yaml:"collection"`
		} `yaml:"entities"`
	}
	if err := yaml.Unmarshal(w.content, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(doc.Entities) != 10 || doc.Entities[0].Entity != "asset" || doc.Entities[0].BusinessKey != "serial_number" {
		t.Fatalf("unexpected export %+v", doc.Entities)
	}
	if err := (&SchemaExporter{}).Export(context.Background(), nil); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
