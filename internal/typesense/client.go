// Package typesense adapts the typesense-go client to the collection,
// document and (multi) search calls the search layer needs.
package typesense

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tsgo "github.com/typesense/typesense-go/v3/typesense"
	"github.com/typesense/typesense-go/v3/typesense/api"
	"github.com/zeebo/errs"
)

// Error is the class of client errors.
var Error = errs.Class("typesense")

var (
	// ErrExists is returned when creating a collection that already exists.
	ErrExists = errors.New("typesense: already exists")
	// ErrNotFound is returned for a missing collection or document.
	ErrNotFound = errors.New("typesense: not found")
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("typesense: status %d: %s", e.Status, e.Message)
}

// Field is a collection field declaration.
type Field struct {
	Name     string
	Type     string
	Facet    bool
	Optional bool
}

// Schema is a collection declaration.
type Schema struct {
	Name   string
	Fields []Field
}

// SearchParams is one query. Collection is only used in multi search.
type SearchParams struct {
	Collection           string
	Q                    string
	QueryBy              string
	FilterBy             string
	Prefix               string
	TypoTokensThreshold  int
	PrioritizeExactMatch bool
	PerPage              int
}

// Hit is one matching document. Numbers decode as float64.
type Hit struct {
	Document  map[string]any
	TextMatch int64
}

// SearchResult is the response to one query. In a multi search a failed
// query carries Code and Error instead of hits.
type SearchResult struct {
	Found int
	Hits  []Hit
	Code  int
	Error string
}

// Err returns the per-query failure of a multi search result, if any.
func (r SearchResult) Err() error {
	if r.Error == "" {
		return nil
	}
	return &APIError{Status: r.Code, Message: r.Error}
}

// Client talks to one Typesense node.
type Client struct {
	ts      *tsgo.Client
	timeout time.Duration
}

// New builds a client for protocol://host:port with the given request
// timeout.
func New(protocol, host string, port int, apiKey string, timeout time.Duration) *Client {
	return NewWithServer(fmt.Sprintf("%s://%s:%d", protocol, host, port), apiKey, timeout)
}

// NewWithServer builds a client for a full server URL.
func NewWithServer(serverURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		ts: tsgo.NewClient(
			tsgo.WithServer(strings.TrimRight(serverURL, "/")),
			tsgo.WithAPIKey(apiKey),
			tsgo.WithConnectionTimeout(timeout),
		),
		timeout: timeout,
	}
}

// Health reports whether the node answers ok.
func (c *Client) Health(ctx context.Context) error {
	ok, err := c.ts.Health(ctx, c.timeout)
	if err != nil {
		return wrap(err)
	}
	if !ok {
		return Error.New("node unhealthy")
	}
	return nil
}

// CreateCollection creates a collection. An existing collection yields ErrExists.
func (c *Client) CreateCollection(ctx context.Context, schema Schema) error {
	fields := make([]api.Field, len(schema.Fields))
	for i, f := range schema.Fields {
		fields[i] = api.Field{Name: f.Name, Type: f.Type, Facet: ptr(f.Facet), Optional: ptr(f.Optional)}
	}
	_, err := c.ts.Collections().Create(ctx, &api.CollectionSchema{Name: schema.Name, Fields: fields})
	return wrap(err)
}

// DeleteCollection drops a collection. A missing collection yields ErrNotFound.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	_, err := c.ts.Collection(name).Delete(ctx)
	return wrap(err)
}

// UpsertDocument creates or replaces the document with the same id.
func (c *Client) UpsertDocument(ctx context.Context, collection string, doc map[string]any) error {
	_, err := c.ts.Collection(collection).Documents().Upsert(ctx, doc, &api.DocumentIndexParameters{})
	return wrap(err)
}

// DeleteDocument removes a document by id.
func (c *Client) DeleteDocument(ctx context.Context, collection, id string) error {
	_, err := c.ts.Collection(collection).Document(id).Delete(ctx)
	return wrap(err)
}

// Search runs one query against a collection.
func (c *Client) Search(ctx context.Context, collection string, params SearchParams) (*SearchResult, error) {
	res, err := c.ts.Collection(collection).Documents().Search(ctx, &api.SearchCollectionParams{
		Q:                    ptr(params.Q),
		QueryBy:              ptr(params.QueryBy),
		FilterBy:             optional(params.FilterBy),
		Prefix:               optional(params.Prefix),
		TypoTokensThreshold:  optional(params.TypoTokensThreshold),
		PrioritizeExactMatch: optional(params.PrioritizeExactMatch),
		PerPage:              optional(params.PerPage),
	})
	if err != nil {
		return nil, wrap(err)
	}
	out := &SearchResult{Found: deref(res.Found), Hits: hits(res.Hits)}
	return out, nil
}

// MultiSearch sends every query in one round trip. Results are positional.
func (c *Client) MultiSearch(ctx context.Context, searches []SearchParams) ([]SearchResult, error) {
	params := make([]api.MultiSearchCollectionParameters, len(searches))
	for i, p := range searches {
		params[i] = api.MultiSearchCollectionParameters{
			Collection:           ptr(p.Collection),
			Q:                    ptr(p.Q),
			QueryBy:              ptr(p.QueryBy),
			FilterBy:             optional(p.FilterBy),
			Prefix:               optional(p.Prefix),
			TypoTokensThreshold:  optional(p.TypoTokensThreshold),
			PrioritizeExactMatch: optional(p.PrioritizeExactMatch),
			PerPage:              optional(p.PerPage),
		}
	}
	res, err := c.ts.MultiSearch.Perform(ctx, &api.MultiSearchParams{},
		api.MultiSearchSearchesParameter{Searches: params})
	if err != nil {
		return nil, wrap(err)
	}
	if len(res.Results) != len(searches) {
		return nil, Error.New("multi search returned %d results for %d searches", len(res.Results), len(searches))
	}
	out := make([]SearchResult, len(res.Results))
	for i, item := range res.Results {
		out[i] = SearchResult{
			Found: deref(item.Found),
			Hits:  hits(item.Hits),
			Code:  int(deref(item.Code)),
			Error: deref(item.Error),
		}
	}
	return out, nil
}

func hits(in *[]api.SearchResultHit) []Hit {
	if in == nil {
		return nil
	}
	out := make([]Hit, 0, len(*in))
	for _, h := range *in {
		var doc map[string]any
		if h.Document != nil {
			doc = *h.Document
		}
		out = append(out, Hit{Document: doc, TextMatch: deref(h.TextMatch)})
	}
	return out
}

// wrap maps typesense-go status errors onto ErrExists, ErrNotFound and
// APIError.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	var httpErr *tsgo.HTTPError
	if !errors.As(err, &httpErr) {
		return Error.Wrap(err)
	}
	msg := strings.TrimSpace(string(httpErr.Body))
	switch httpErr.Status {
	case 409:
		return Error.Wrap(fmt.Errorf("%w: %s", ErrExists, msg))
	case 404:
		return Error.Wrap(fmt.Errorf("%w: %s", ErrNotFound, msg))
	}
	return Error.Wrap(&APIError{Status: httpErr.Status, Message: msg})
}

func ptr[T any](v T) *T { return &v }

// optional is nil for the zero value so the parameter is omitted.
func optional[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
