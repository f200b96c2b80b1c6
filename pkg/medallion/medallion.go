// Package medallion wires the warehouse, object store and search engine
// into one service: ETL runs, soft deletes, search and maintenance.
package medallion

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/cognicore/medallion/internal/typesense"
	"github.com/cognicore/medallion/pkg/medallion/catalog"
	"github.com/cognicore/medallion/pkg/medallion/config"
	"github.com/cognicore/medallion/pkg/medallion/extract"
	"github.com/cognicore/medallion/pkg/medallion/maintenance"
	"github.com/cognicore/medallion/pkg/medallion/metrics"
	"github.com/cognicore/medallion/pkg/medallion/objectstore"
	"github.com/cognicore/medallion/pkg/medallion/objectstore/s3store"
	"github.com/cognicore/medallion/pkg/medallion/pipeline"
	"github.com/cognicore/medallion/pkg/medallion/search"
	"github.com/cognicore/medallion/pkg/medallion/warehouse"
	"github.com/cognicore/medallion/pkg/medallion/warehouse/sqlstore"
)

// Error is the class of service construction errors.
var Error = errs.Class("medallion")

// Options configures a Medallion instance.
type Options struct {
	Config config.Config
	Logger *zap.Logger
	// Registerer receives the pipeline metrics; nil disables them.
	Registerer prometheus.Registerer

	// Objects and Engine replace the configured bucket and search node.
	Objects objectstore.Store
	Engine  search.Engine
}

// Medallion is the assembled service.
type Medallion struct {
	cfg config.Config
	log *zap.Logger

	warehouse *sqlstore.Store
	engine    search.Engine
	registry  *search.Registry
	syncer    *search.Syncer
	searcher  *search.Searcher
	orch      *pipeline.Orchestrator
	reindexer *maintenance.Reindexer
}

// New validates the configuration and connects every collaborator. The
// warehouse is opened, and its run log created, before New returns.
func New(ctx context.Context, opts Options) (*Medallion, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	objects := opts.Objects
	if objects == nil {
		s3, err := s3store.New(s3store.Config{
			Endpoint:  cfg.Storage.Endpoint,
			Bucket:    cfg.Storage.Bucket,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Region:    cfg.Storage.Region,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			return nil, Error.Wrap(err)
		}
		objects = s3
	}
	engine := opts.Engine
	if engine == nil {
		engine = typesense.New(cfg.Search.Protocol, cfg.Search.Host, cfg.Search.Port, cfg.Search.APIKey, cfg.Search.Timeout())
	}

	wh, err := sqlstore.Open(ctx, cfg.Warehouse.Driver, cfg.Warehouse.URL,
		sqlstore.WithLogger(log), sqlstore.WithMaxOpenConns(cfg.Warehouse.MaxOpenConns))
	if err != nil {
		return nil, Error.Wrap(err)
	}

	dims := catalog.Dimensions()
	m := &Medallion{cfg: cfg, log: log, warehouse: wh, engine: engine}
	m.registry = search.NewRegistry(engine, dims, log)
	m.syncer = search.NewSyncer(engine, log)
	m.searcher = search.NewSearcher(engine, m.registry, log)
	m.reindexer = &maintenance.Reindexer{Reader: wh, Registry: m.registry, Syncer: m.syncer, Log: log.Named("reindex")}

	var recorder *metrics.Metrics
	if opts.Registerer != nil {
		recorder = metrics.New(opts.Registerer)
	}
	m.orch, err = pipeline.New(pipeline.Options{
		Warehouse:     wh,
		Objects:       objects,
		Extractor:     extract.New(log, cfg.Pipeline.HeaderToken),
		Registry:      m.registry,
		Syncer:        m.syncer,
		Dimensions:    dims,
		Fact:          catalog.Metrics,
		Prefix:        cfg.Storage.Prefix,
		Workers:       cfg.Pipeline.Workers,
		CalendarStart: cfg.Pipeline.CalendarStartYear,
		CalendarEnd:   cfg.Pipeline.CalendarEndYear,
		RefreshViews:  cfg.Pipeline.RefreshViews,
		Logger:        log,
		Metrics:       recorder,
	})
	if err != nil {
		return nil, errs.Combine(Error.Wrap(err), wh.Close())
	}
	return m, nil
}

// Close releases the warehouse connection.
func (m *Medallion) Close() error { return m.warehouse.Close() }

// Config returns the configuration the service was built with.
func (m *Medallion) Config() config.Config { return m.cfg }

// Run executes one ETL run.
func (m *Medallion) Run(ctx context.Context) pipeline.Result { return m.orch.Run(ctx) }

// Retire soft-deletes a dimension row by business key.
func (m *Medallion) Retire(ctx context.Context, entity, key string) (pipeline.Retired, error) {
	return m.orch.Retire(ctx, entity, key)
}

// Global searches every collection at once.
func (m *Medallion) Global(ctx context.Context, text string) ([]search.Hit, error) {
	return m.searcher.Global(ctx, text)
}

// Search queries one collection; field:value tokens on facet fields filter.
func (m *Medallion) Search(ctx context.Context, entity, text string) ([]search.Hit, error) {
	return m.searcher.Query(ctx, entity, text)
}

// Reindex replays active warehouse rows into search.
func (m *Medallion) Reindex(ctx context.Context, entities ...string) (maintenance.Result, error) {
	return m.reindexer.Reindex(ctx, entities...)
}

// Runs returns the latest entries of the run log.
func (m *Medallion) Runs(ctx context.Context, limit int) ([]warehouse.Run, error) {
	return m.warehouse.Runs(ctx, limit)
}

// Health checks the search node when the engine supports it.
func (m *Medallion) Health(ctx context.Context) error {
	if h, ok := m.engine.(interface{ Health(context.Context) error }); ok {
		return h.Health(ctx)
	}
	return nil
}

type writerFunc func(ctx context.Context, content []byte) error

func (f writerFunc) WriteSchema(ctx context.Context, content []byte) error { return f(ctx, content) }

// ExportSchema writes the catalog and collection schemas as YAML to w.
func (m *Medallion) ExportSchema(ctx context.Context, w io.Writer) error {
	exporter := &maintenance.SchemaExporter{Writer: writerFunc(func(ctx context.Context, content []byte) error {
		_, err := w.Write(content)
		return err
	})}
	return exporter.Export(ctx, m.registry.Specs())
}
