package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/medallion/internal/typesense"
	"github.com/cognicore/medallion/pkg/medallion/catalog"
	"github.com/cognicore/medallion/pkg/medallion/internalerr"
	"github.com/cognicore/medallion/pkg/medallion/outcome"
	"github.com/cognicore/medallion/pkg/medallion/table"
)

// EncodeDate returns the epoch seconds of midnight UTC on t's calendar day.
func EncodeDate(t time.Time) int64 {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix()
}

// DecodeDate is the inverse of EncodeDate.
func DecodeDate(epoch int64) time.Time {
	t := time.Unix(epoch, 0).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Document turns a warehouse row into a search document. The row is run
// through the entity's domain rules first; a row that fails them is
// rejected with ErrInvalidInput. Nil values are left out.
func Document(spec catalog.DimensionSpec, row table.Row) (map[string]any, error) {
	clean, err := spec.Validate(row)
	if err != nil {
		return nil, err
	}
	id, ok := clean[catalog.ColID].(int64)
	if !ok {
		return nil, Error.Wrap(fmt.Errorf("%w: %s row without id", internalerr.ErrInvalidInput, spec.Entity))
	}

	doc := make(map[string]any, len(clean))
	for name, v := range clean {
		if v == nil || name == catalog.ColID {
			continue
		}
		if ts, ok := v.(time.Time); ok {
			f, _ := spec.Field(name)
			if f.Type == table.Date {
				v = EncodeDate(ts)
			} else {
				v = ts.Unix()
			}
		}
		doc[name] = v
	}
	doc["id"] = strconv.FormatInt(id, 10)
	return doc, nil
}

// DecodeDocument converts a stored document back to column values: the id
// and numbers typed per the schema, epoch fields back to times.
func DecodeDocument(spec catalog.DimensionSpec, doc map[string]any) table.Row {
	row := make(table.Row, len(doc))
	for name, v := range doc {
		if name == "id" {
			if s, ok := v.(string); ok {
				if id, err := strconv.ParseInt(s, 10, 64); err == nil {
					v = id
				}
			}
			row[catalog.ColID] = v
			continue
		}
		f, known := spec.Field(name)
		if !known {
			row[name] = v
			continue
		}
		row[name] = decodeValue(f.Type, v)
	}
	return row
}

func decodeValue(t table.FieldType, v any) any {
	var n int64
	switch x := v.(type) {
	case json.Number:
		if t == table.Float {
			if f, err := x.Float64(); err == nil {
				return f
			}
			return x.String()
		}
		i, err := x.Int64()
		if err != nil {
			return x.String()
		}
		n = i
	case float64:
		if t == table.Float {
			return x
		}
		n = int64(x)
	case int64:
		n = x
	default:
		return v
	}
	switch t {
	case table.Date:
		return DecodeDate(n)
	case table.Timestamp:
		return time.Unix(n, 0).UTC()
	case table.Float:
		return float64(n)
	}
	return n
}

// SyncResult counts what happened to the rows of one entity.
type SyncResult struct {
	Entity  string
	Indexed int
	Invalid int
	Failed  int
}

// Outcome folds the counts into one unit outcome. Engine failures make the
// unit failed; invalid rows alone do not.
func (r SyncResult) Outcome() outcome.Outcome {
	unit := "sync " + r.Entity
	if r.Failed > 0 {
		return outcome.Fail(unit, Error.New("%d of %d documents failed", r.Failed, r.Indexed+r.Failed))
	}
	return outcome.OK(unit)
}

// Syncer pushes warehouse rows into their collection.
type Syncer struct {
	engine Engine
	log    *zap.Logger
}

// NewSyncer creates a syncer.
func NewSyncer(engine Engine, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{engine: engine, log: log.Named("sync")}
}

// Sync upserts every row as a document. It never fails as a whole: invalid
// rows and engine errors are counted and logged per row.
func (s *Syncer) Sync(ctx context.Context, spec catalog.DimensionSpec, rows *table.Batch) SyncResult {
	res := SyncResult{Entity: spec.Entity}
	if rows == nil {
		return res
	}
	for _, row := range rows.Rows {
		doc, err := Document(spec, row)
		if err != nil {
			res.Invalid++
			s.log.Warn("row rejected by domain rules",
				zap.String("entity", spec.Entity), zap.Any("key", row[spec.BusinessKey]), zap.Error(err))
			continue
		}
		if err := s.engine.UpsertDocument(ctx, spec.Entity, doc); err != nil {
			res.Failed++
			s.log.Warn("document upsert failed",
				zap.String("entity", spec.Entity), zap.Any("id", doc["id"]), zap.Error(err))
			continue
		}
		res.Indexed++
	}
	s.log.Info("entity synced", zap.String("entity", spec.Entity),
		zap.Int("indexed", res.Indexed), zap.Int("invalid", res.Invalid), zap.Int("failed", res.Failed))
	return res
}

// Remove deletes the document of a retired row. An absent document is fine.
func (s *Syncer) Remove(ctx context.Context, spec catalog.DimensionSpec, id int64) error {
	err := s.engine.DeleteDocument(ctx, spec.Entity, strconv.FormatInt(id, 10))
	if err == nil || errors.Is(err, typesense.ErrNotFound) {
		return nil
	}
	return Error.Wrap(err)
}
