// Package maintenance holds jobs that run outside the ETL: replaying the
// warehouse into search and exporting the catalog.
package maintenance

import (
	"context"
	"fmt"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/cognicore/medallion/pkg/medallion/catalog"
	"github.com/cognicore/medallion/pkg/medallion/internalerr"
	"github.com/cognicore/medallion/pkg/medallion/outcome"
	"github.com/cognicore/medallion/pkg/medallion/search"
	"github.com/cognicore/medallion/pkg/medallion/table"
	"github.com/cognicore/medallion/pkg/medallion/warehouse"
)

// Error is the class of maintenance errors.
var Error = errs.Class("maintenance")

// DimensionReader abstracts how active dimension rows are read.
type DimensionReader interface {
	ReadDimension(ctx context.Context, spec catalog.DimensionSpec, opts warehouse.ReadOptions) (*table.Batch, error)
}

// Reindexer pushes the active warehouse rows back into search, for example
// after the index was lost or a domain rule changed.
type Reindexer struct {
	Reader   DimensionReader
	Registry *search.Registry
	Syncer   *search.Syncer
	Log      *zap.Logger
}

// Result summarizes a reindex.
type Result struct {
	Processed int
	Indexed   int
	Invalid   int
	Failed    int
	Outcomes  outcome.List
}

// Reindex replays the named entities, or every registered one when none
// are named. A warehouse read error stops the run; search failures are
// counted.
func (r *Reindexer) Reindex(ctx context.Context, entities ...string) (Result, error) {
	var res Result
	if r.Reader == nil || r.Registry == nil || r.Syncer == nil {
		return res, Error.Wrap(fmt.Errorf("%w: reindexer needs a reader, registry and syncer", internalerr.ErrInvalidConfig))
	}
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}

	specs := r.Registry.Specs()
	if len(entities) > 0 {
		specs = specs[:0:0]
		for _, name := range entities {
			spec, ok := r.Registry.Lookup(name)
			if !ok {
				return res, Error.Wrap(fmt.Errorf("%w: unknown entity %q", internalerr.ErrInvalidInput, name))
			}
			specs = append(specs, spec)
		}
	}

	r.Registry.BeginRun()
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return res, Error.Wrap(err)
		}
		rows, err := r.Reader.ReadDimension(ctx, spec, warehouse.ReadOptions{})
		if err != nil {
			return res, Error.Wrap(fmt.Errorf("%s: %w", spec.Entity, err))
		}
		res.Processed += rows.Len()

		if o := r.Registry.EnsureCollection(ctx, spec.Entity); o.Status == outcome.Failed {
			res.Failed += rows.Len()
			res.Outcomes = append(res.Outcomes, o)
			continue
		}
		sync := r.Syncer.Sync(ctx, spec, rows)
		res.Indexed += sync.Indexed
		res.Invalid += sync.Invalid
		res.Failed += sync.Failed
		res.Outcomes = append(res.Outcomes, sync.Outcome())
	}
	log.Info("reindex done", zap.Int("processed", res.Processed), zap.Int("indexed", res.Indexed),
		zap.Int("invalid", res.Invalid), zap.Int("failed", res.Failed))
	return res, nil
}
