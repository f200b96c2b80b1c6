// Package searchtest provides an in-memory search.Engine for tests.
package searchtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cognicore/medallion/internal/typesense"
)

// Engine stores collections and documents in memory. Matching is a
// case-insensitive substring test over the query_by fields.
type Engine struct {
	mu          sync.Mutex
	collections map[string]typesense.Schema
	docs        map[string]map[string]map[string]any

	// Creates counts CreateCollection calls per collection.
	Creates map[string]int
	// FailCreate, FailUpsert and FailSearch make the named collections fail.
	FailCreate map[string]error
	FailUpsert map[string]error
	FailSearch map[string]error
	// FailMulti fails the whole multi search round trip.
	FailMulti error
}

// New creates an empty engine.
func New() *Engine {
	return &Engine{
		collections: make(map[string]typesense.Schema),
		docs:        make(map[string]map[string]map[string]any),
		Creates:     make(map[string]int),
		FailCreate:  make(map[string]error),
		FailUpsert:  make(map[string]error),
		FailSearch:  make(map[string]error),
	}
}

func (e *Engine) CreateCollection(ctx context.Context, schema typesense.Schema) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Creates[schema.Name]++
	if err := e.FailCreate[schema.Name]; err != nil {
		return err
	}
	if _, ok := e.collections[schema.Name]; ok {
		return fmt.Errorf("%w: %s", typesense.ErrExists, schema.Name)
	}
	e.collections[schema.Name] = schema
	e.docs[schema.Name] = make(map[string]map[string]any)
	return nil
}

func (e *Engine) DeleteCollection(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.collections[name]; !ok {
		return fmt.Errorf("%w: %s", typesense.ErrNotFound, name)
	}
	delete(e.collections, name)
	delete(e.docs, name)
	return nil
}

func (e *Engine) UpsertDocument(ctx context.Context, collection string, doc map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.FailUpsert[collection]; err != nil {
		return err
	}
	docs, ok := e.docs[collection]
	if !ok {
		return fmt.Errorf("%w: %s", typesense.ErrNotFound, collection)
	}
	id, _ := doc["id"].(string)
	cp := make(map[string]any, len(doc))
	for k, v := range doc {
		cp[k] = v
	}
	docs[id] = cp
	return nil
}

func (e *Engine) DeleteDocument(ctx context.Context, collection, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	docs, ok := e.docs[collection]
	if !ok {
		return fmt.Errorf("%w: %s", typesense.ErrNotFound, collection)
	}
	if _, ok := docs[id]; !ok {
		return fmt.Errorf("%w: %s/%s", typesense.ErrNotFound, collection, id)
	}
	delete(docs, id)
	return nil
}

func (e *Engine) Search(ctx context.Context, collection string, params typesense.SearchParams) (*typesense.SearchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	res := e.search(collection, params)
	if err := res.Err(); err != nil {
		return nil, err
	}
	return &res, nil
}

func (e *Engine) MultiSearch(ctx context.Context, searches []typesense.SearchParams) ([]typesense.SearchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailMulti != nil {
		return nil, e.FailMulti
	}
	out := make([]typesense.SearchResult, len(searches))
	for i, p := range searches {
		out[i] = e.search(p.Collection, p)
	}
	return out, nil
}

func (e *Engine) search(collection string, p typesense.SearchParams) typesense.SearchResult {
	if err := e.FailSearch[collection]; err != nil {
		return typesense.SearchResult{Code: 500, Error: err.Error()}
	}
	docs, ok := e.docs[collection]
	if !ok {
		return typesense.SearchResult{Code: 404, Error: "Could not find a collection named " + collection}
	}
	q := strings.ToLower(p.Q)
	fields := strings.Split(p.QueryBy, ",")

	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var res typesense.SearchResult
	for _, id := range ids {
		doc := docs[id]
		if !matches(doc, q, fields) || !filtered(doc, p.FilterBy) {
			continue
		}
		cp := make(map[string]any, len(doc))
		for k, v := range doc {
			cp[k] = v
		}
		res.Hits = append(res.Hits, typesense.Hit{Document: cp})
	}
	res.Found = len(res.Hits)
	return res
}

func matches(doc map[string]any, q string, fields []string) bool {
	if q == "*" {
		return true
	}
	for _, f := range fields {
		if s, ok := doc[f].(string); ok && strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}

// filtered understands conjunctions of field:=value clauses.
func filtered(doc map[string]any, filter string) bool {
	if filter == "" {
		return true
	}
	for _, clause := range strings.Split(filter, "&&") {
		name, value, ok := strings.Cut(strings.TrimSpace(clause), ":=")
		if !ok {
			return false
		}
		value = strings.Trim(value, "`")
		if fmt.Sprint(doc[name]) != value {
			return false
		}
	}
	return true
}

// Documents returns a copy of the documents of collection keyed by id.
func (e *Engine) Documents(collection string) map[string]map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]map[string]any, len(e.docs[collection]))
	for id, doc := range e.docs[collection] {
		out[id] = doc
	}
	return out
}

// HasCollection reports whether name exists.
func (e *Engine) HasCollection(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.collections[name]
	return ok
}
