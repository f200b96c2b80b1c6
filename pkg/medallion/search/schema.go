// Package search keeps the Typesense collections in step with the warehouse
// dimensions and serves queries across them.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/cognicore/medallion/internal/typesense"
	"github.com/cognicore/medallion/pkg/medallion/catalog"
	"github.com/cognicore/medallion/pkg/medallion/outcome"
	"github.com/cognicore/medallion/pkg/medallion/table"
)

// Error is the class of search errors.
var Error = errs.Class("search")

// Engine is the subset of the search engine API used here. *typesense.Client
// implements it.
type Engine interface {
	CreateCollection(ctx context.Context, schema typesense.Schema) error
	DeleteCollection(ctx context.Context, name string) error
	UpsertDocument(ctx context.Context, collection string, doc map[string]any) error
	DeleteDocument(ctx context.Context, collection, id string) error
	Search(ctx context.Context, collection string, params typesense.SearchParams) (*typesense.SearchResult, error)
	MultiSearch(ctx context.Context, searches []typesense.SearchParams) ([]typesense.SearchResult, error)
}

var _ Engine = (*typesense.Client)(nil)

// engineType maps a column type onto a collection field type. Dates and
// timestamps are stored as epoch seconds.
func engineType(t table.FieldType) string {
	switch t {
	case table.Bool:
		return "bool"
	case table.Int, table.Date, table.Timestamp:
		return "int64"
	case table.Float:
		return "float"
	}
	return "string"
}

// Schema declares the collection of a dimension. Only the business key is
// mandatory.
func Schema(spec catalog.DimensionSpec) typesense.Schema {
	fields := make([]typesense.Field, 0, len(spec.Fields)+len(catalog.MetaFields))
	for _, f := range append(append([]catalog.Field{}, spec.Fields...), catalog.MetaFields...) {
		fields = append(fields, typesense.Field{
			Name:     f.Name,
			Type:     engineType(f.Type),
			Facet:    f.Facet,
			Optional: f.Name != spec.BusinessKey,
		})
	}
	return typesense.Schema{Name: spec.Entity, Fields: fields}
}

// Registry owns the collection per dimension and remembers which ones were
// ensured during the current run.
type Registry struct {
	engine Engine
	log    *zap.Logger
	specs  []catalog.DimensionSpec

	mu      sync.Mutex
	ensured map[string]bool
}

// NewRegistry registers specs in order. The order is the fan-out order.
func NewRegistry(engine Engine, specs []catalog.DimensionSpec, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		engine:  engine,
		log:     log.Named("search"),
		specs:   specs,
		ensured: make(map[string]bool),
	}
}

// Specs returns the registered dimensions in order.
func (r *Registry) Specs() []catalog.DimensionSpec { return r.specs }

// Lookup finds a registered dimension.
func (r *Registry) Lookup(entity string) (catalog.DimensionSpec, bool) {
	for _, s := range r.specs {
		if s.Entity == entity {
			return s, true
		}
	}
	return catalog.DimensionSpec{}, false
}

// BeginRun forgets which collections were ensured.
func (r *Registry) BeginRun() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensured = make(map[string]bool)
}

// EnsureCollection creates the collection of entity once per run. An
// existing collection counts as success; any other failure is returned as a
// failed outcome and retried on the next call.
func (r *Registry) EnsureCollection(ctx context.Context, entity string) outcome.Outcome {
	unit := "collection " + entity
	spec, ok := r.Lookup(entity)
	if !ok {
		return outcome.Fail(unit, Error.New("unknown entity %q", entity))
	}

	r.mu.Lock()
	done := r.ensured[entity]
	r.mu.Unlock()
	if done {
		return outcome.OK(unit)
	}

	err := r.engine.CreateCollection(ctx, Schema(spec))
	switch {
	case err == nil:
		r.log.Info("collection created", zap.String("collection", entity))
	case errors.Is(err, typesense.ErrExists):
		r.log.Debug("collection exists", zap.String("collection", entity))
	default:
		r.log.Warn("collection create failed", zap.String("collection", entity), zap.Error(err))
		return outcome.Fail(unit, Error.Wrap(err))
	}

	r.mu.Lock()
	r.ensured[entity] = true
	r.mu.Unlock()
	return outcome.OK(unit)
}

// DropAll deletes every registered collection. Missing collections are not
// an error.
func (r *Registry) DropAll(ctx context.Context) outcome.List {
	r.BeginRun()
	out := make(outcome.List, 0, len(r.specs))
	for _, spec := range r.specs {
		unit := "collection " + spec.Entity
		err := r.engine.DeleteCollection(ctx, spec.Entity)
		switch {
		case err == nil:
			out = append(out, outcome.OK(unit))
		case errors.Is(err, typesense.ErrNotFound):
			out = append(out, outcome.Skip(unit, "absent"))
		default:
			r.log.Warn("collection drop failed", zap.String("collection", spec.Entity), zap.Error(err))
			out = append(out, outcome.Fail(unit, Error.Wrap(fmt.Errorf("drop: %w", err))))
		}
	}
	return out
}
