package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/medallion/pkg/medallion/catalog"
	"github.com/cognicore/medallion/pkg/medallion/extract"
	"github.com/cognicore/medallion/pkg/medallion/internalerr"
	"github.com/cognicore/medallion/pkg/medallion/outcome"
	"github.com/cognicore/medallion/pkg/medallion/warehouse"
)

// ingest lands every source file under the prefix in its staging table.
// Listing and warehouse failures stop the run; a file that cannot be
// downloaded or read is skipped. Files are visited in key order, so when
// two files share a staging table the later one wins.
func (o *Orchestrator) ingest(ctx context.Context, r *run) error {
	objs, err := o.opts.Objects.List(ctx, o.opts.Prefix)
	if err != nil {
		return Error.Wrap(fmt.Errorf("list %q: %w", o.opts.Prefix, err))
	}

	for _, obj := range objs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if extract.IsPlaceholder(obj.Key) {
			continue
		}
		res := o.ingestFile(ctx, r, obj.Key)
		r.res.Files = append(r.res.Files, res)
		o.opts.Metrics.File(string(res.Status))
		if res.Status == outcome.Failed {
			return res.Err
		}
	}
	r.res.Staged = sortedKeys(r.landed)
	o.log.Info("bronze ingest done", zap.String("files", r.res.Files.Summary()), zap.Strings("staged", r.res.Staged))
	return nil
}

func (o *Orchestrator) ingestFile(ctx context.Context, r *run, key string) outcome.Outcome {
	log := o.log.With(zap.String("file", key))

	format, ok := extract.FormatFromName(key)
	if !ok {
		log.Info("skipping unsupported file")
		return outcome.Skip(key, "unsupported format")
	}
	data, err := o.opts.Objects.Get(ctx, key)
	if err != nil {
		log.Warn("download failed", zap.Error(err))
		return outcome.Outcome{Unit: key, Status: outcome.Skipped, Reason: "download failed", Err: err}
	}
	b := o.opts.Extractor.Extract(key, data, format)
	if b.Empty() {
		return outcome.Skip(key, "no tabular content")
	}

	name := extract.StagingTableName(key)
	if err := o.opts.Warehouse.ReplaceStaging(ctx, name, b); err != nil {
		return outcome.Fail(key, fmt.Errorf("stage %s: %w", name, err))
	}
	if r.landed[name] {
		log.Info("staging table replaced by later file", zap.String("table", name))
	}
	r.landed[name] = true
	log.Debug("file staged", zap.String("table", name), zap.Int("rows", b.Len()))
	return outcome.OK(key)
}

// syncDimensions runs every entity on a bounded pool. The first warehouse
// error cancels the remaining entities and fails the run.
func (o *Orchestrator) syncDimensions(ctx context.Context, r *run) error {
	dims := o.opts.Dimensions
	results := make([]DimensionResult, len(dims))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)
	for i, spec := range dims {
		if !r.landed[spec.Staging] {
			results[i] = DimensionResult{Entity: spec.Entity, Outcome: outcome.Skip(spec.Entity, "no staging table")}
			continue
		}
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					results[i] = DimensionResult{Entity: spec.Entity}
					err = Error.New("%s: panic: %v", spec.Entity, p)
					results[i].Outcome = outcome.Fail(spec.Entity, err)
				}
			}()
			res, err := o.syncDimension(gctx, spec)
			results[i] = res
			return err
		})
	}
	err := g.Wait()
	r.res.Dimensions = results
	return err
}

// syncDimension upserts one entity from its staging table and pushes the
// stored rows to search. The upsert commits before the sync starts.
func (o *Orchestrator) syncDimension(ctx context.Context, spec catalog.DimensionSpec) (DimensionResult, error) {
	res := DimensionResult{Entity: spec.Entity}
	log := o.log.With(zap.String("entity", spec.Entity))

	staged, err := o.opts.Warehouse.ReadStaging(ctx, spec.Staging)
	if errors.Is(err, internalerr.ErrNotFound) {
		res.Outcome = outcome.Skip(spec.Entity, "no staging table")
		return res, nil
	}
	if err != nil {
		res.Outcome = outcome.Fail(spec.Entity, err)
		return res, Error.Wrap(fmt.Errorf("%s: %w", spec.Entity, err))
	}

	n, err := o.opts.Warehouse.UpsertDimension(ctx, spec, staged)
	if err != nil {
		res.Outcome = outcome.Fail(spec.Entity, err)
		return res, Error.Wrap(fmt.Errorf("%s: %w", spec.Entity, err))
	}
	res.Upserted = n
	o.opts.Metrics.Rows(spec.Entity, n)

	stored, err := o.opts.Warehouse.ReadDimension(ctx, spec, warehouse.ReadOptions{})
	if err != nil {
		res.Outcome = outcome.Fail(spec.Entity, err)
		return res, Error.Wrap(fmt.Errorf("%s: %w", spec.Entity, err))
	}

	res.Collection = o.opts.Registry.EnsureCollection(ctx, spec.Entity)
	if res.Collection.Status == outcome.Failed {
		log.Warn("search sync skipped", zap.Error(res.Collection.Err))
		res.Outcome = outcome.Outcome{Unit: spec.Entity, Status: outcome.Success, Reason: "search unavailable"}
		return res, nil
	}
	res.Sync = o.opts.Syncer.Sync(ctx, spec, stored)
	o.opts.Metrics.Documents(spec.Entity, res.Sync.Indexed, res.Sync.Invalid, res.Sync.Failed)

	res.Outcome = outcome.OK(spec.Entity)
	log.Info("dimension synced", zap.Int("upserted", n), zap.Int("indexed", res.Sync.Indexed))
	return res, nil
}

// applyFacts runs the CDC batch landed for the fact table, if any.
func (o *Orchestrator) applyFacts(ctx context.Context, r *run) error {
	spec := o.opts.Fact
	if !r.landed[spec.Staging] {
		o.log.Info("no fact changes staged", zap.String("table", spec.Staging))
		return nil
	}
	staged, err := o.opts.Warehouse.ReadStaging(ctx, spec.Staging)
	if err != nil {
		return Error.Wrap(err)
	}
	res, err := o.opts.Warehouse.ApplyFacts(ctx, spec, staged)
	if err != nil {
		return Error.Wrap(err)
	}
	r.res.Facts = res
	r.res.FactsLoaded = true
	o.opts.Metrics.Facts(res.Upserted, res.Deleted)
	o.log.Info("facts applied", zap.Int("upserted", res.Upserted), zap.Int("deleted", res.Deleted), zap.Int("missing", res.Missing))
	return nil
}
