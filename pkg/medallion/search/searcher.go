package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cognicore/medallion/internal/typesense"
	"github.com/cognicore/medallion/pkg/medallion/internalerr"
)

// EntityTag is the document field naming the collection a fan-out hit came
// from.
const EntityTag = "domain_entity"

// Hit is one matching document.
type Hit struct {
	Entity    string
	ID        string
	TextMatch int64
	Document  map[string]any
}

// Searcher runs queries against the registered collections.
type Searcher struct {
	engine   Engine
	registry *Registry
	log      *zap.Logger

	// PerPage caps hits per collection; zero uses the engine default.
	PerPage int
}

// NewSearcher creates a searcher over the registry's collections.
func NewSearcher(engine Engine, registry *Registry, log *zap.Logger) *Searcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Searcher{engine: engine, registry: registry, log: log.Named("searcher")}
}

func queryText(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "*"
	}
	return text
}

// Global sends one multi search covering every collection, in registration
// order, and flattens the hits tagged with their entity. A collection whose
// query fails contributes no hits; only a failed round trip is an error.
func (s *Searcher) Global(ctx context.Context, text string) ([]Hit, error) {
	specs := s.registry.Specs()
	if len(specs) == 0 {
		return nil, nil
	}
	q := queryText(text)
	searches := make([]typesense.SearchParams, len(specs))
	for i, spec := range specs {
		searches[i] = typesense.SearchParams{
			Collection:          spec.Entity,
			Q:                   q,
			QueryBy:             strings.Join(spec.SearchFields(), ","),
			Prefix:              "true",
			TypoTokensThreshold: 2,
			PerPage:             s.PerPage,
		}
	}

	results, err := s.engine.MultiSearch(ctx, searches)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	var hits []Hit
	for i, res := range results {
		if i >= len(specs) {
			break
		}
		entity := specs[i].Entity
		if err := res.Err(); err != nil {
			s.log.Warn("collection query failed", zap.String("collection", entity), zap.Error(err))
			continue
		}
		hits = append(hits, tag(entity, res.Hits)...)
	}
	return hits, nil
}

// Search queries one collection. filter is a filter_by expression and may
// be empty; exact matches rank first.
func (s *Searcher) Search(ctx context.Context, entity, text, filter string) ([]Hit, error) {
	spec, ok := s.registry.Lookup(entity)
	if !ok {
		return nil, Error.Wrap(fmt.Errorf("%w: unknown entity %q", internalerr.ErrInvalidInput, entity))
	}
	res, err := s.engine.Search(ctx, entity, typesense.SearchParams{
		Q:                    queryText(text),
		QueryBy:              strings.Join(spec.SearchFields(), ","),
		FilterBy:             filter,
		PrioritizeExactMatch: true,
		PerPage:              s.PerPage,
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return tag(entity, res.Hits), nil
}

// Query parses text with ParseQuery for entity and runs Search.
func (s *Searcher) Query(ctx context.Context, entity, text string) ([]Hit, error) {
	spec, ok := s.registry.Lookup(entity)
	if !ok {
		return nil, Error.Wrap(fmt.Errorf("%w: unknown entity %q", internalerr.ErrInvalidInput, entity))
	}
	q := ParseQuery(spec, text)
	return s.Search(ctx, entity, q.Text, q.Filter)
}

func tag(entity string, in []typesense.Hit) []Hit {
	out := make([]Hit, 0, len(in))
	for _, h := range in {
		doc := h.Document
		if doc == nil {
			doc = map[string]any{}
		}
		doc[EntityTag] = entity
		id, _ := doc["id"].(string)
		out = append(out, Hit{Entity: entity, ID: id, TextMatch: h.TextMatch, Document: doc})
	}
	return out
}

// Entities lists the distinct entities of hits in first-seen order.
func Entities(hits []Hit) []string {
	seen := make(map[string]bool)
	var out []string
	for _, h := range hits {
		if !seen[h.Entity] {
			seen[h.Entity] = true
			out = append(out, h.Entity)
		}
	}
	return out
}
