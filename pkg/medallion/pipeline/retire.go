package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cognicore/medallion/pkg/medallion/catalog"
	"github.com/cognicore/medallion/pkg/medallion/internalerr"
)

// Retired describes a soft delete.
type Retired struct {
	Entity string
	Key    string
	ID     int64
	// Found is false when no active row had the key.
	Found bool
	// Unindexed is false when removing the search document failed.
	Unindexed bool
}

func (o *Orchestrator) lookup(entity string) (catalog.DimensionSpec, error) {
	for _, spec := range o.opts.Dimensions {
		if spec.Entity == entity {
			return spec, nil
		}
	}
	return catalog.DimensionSpec{}, Error.Wrap(fmt.Errorf("%w: unknown entity %q", internalerr.ErrInvalidInput, entity))
}

// Retire marks the row with the business key inactive and then removes its
// search document. The key is tried in its canonical form first and then as
// given, since the warehouse keeps keys as they arrived. The document
// removal is best-effort.
func (o *Orchestrator) Retire(ctx context.Context, entity, key string) (Retired, error) {
	spec, err := o.lookup(entity)
	if err != nil {
		return Retired{}, err
	}
	raw := strings.TrimSpace(key)
	if raw == "" {
		return Retired{}, Error.Wrap(fmt.Errorf("%w: empty %s", internalerr.ErrInvalidInput, spec.BusinessKey))
	}
	// rows whose key breaks the domain rules are still stored, so a key
	// that does not normalize is looked up as given
	canonical, err := spec.NormalizeKey(raw)
	if err != nil {
		canonical = raw
	}
	out := Retired{Entity: entity, Key: canonical}

	for _, k := range []string{canonical, raw} {
		out.ID, out.Found, err = o.opts.Warehouse.RetireDimension(ctx, spec, k)
		if err != nil {
			return out, err
		}
		if out.Found {
			out.Key = k
			break
		}
		if raw == canonical {
			break
		}
	}
	if !out.Found {
		return out, nil
	}

	if err := o.opts.Syncer.Remove(ctx, spec, out.ID); err != nil {
		o.log.Warn("search document not removed", zap.String("entity", entity), zap.Int64("id", out.ID), zap.Error(err))
		return out, nil
	}
	out.Unindexed = true
	o.log.Info("row retired", zap.String("entity", entity), zap.String("key", out.Key), zap.Int64("id", out.ID))
	return out, nil
}
