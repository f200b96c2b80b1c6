package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cognicore/medallion/pkg/medallion/catalog"
	"github.com/cognicore/medallion/pkg/medallion/table"
	"github.com/cognicore/medallion/pkg/medallion/warehouse"
)

// ApplyFacts applies a CDC batch to the fact table: UPSERT rows insert or
// overwrite by composite key, DELETE rows remove it. The batch is one
// transaction and a single malformed row rolls all of it back.
func (s *Store) ApplyFacts(ctx context.Context, spec catalog.FactSpec, b *table.Batch) (warehouse.FactResult, error) {
	var res warehouse.FactResult
	if b.Empty() {
		return res, nil
	}
	now := s.now().UTC()
	tbl := s.table(warehouse.Gold, spec.Table)
	cols := spec.Columns()

	conds := make([]string, len(spec.Keys))
	for i, k := range spec.Keys {
		conds[i] = s.dialect.Quote(k) + " = " + s.dialect.Placeholder(i+1)
	}
	deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE %s", tbl, strings.Join(conds, " AND "))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, Error.Wrap(err)
	}
	defer tx.Rollback()

	upsert, err := tx.PrepareContext(ctx, s.dialect.Upsert(tbl, cols, spec.Keys, catalog.ColUpdatedAt))
	if err != nil {
		return res, Error.Wrap(err)
	}
	defer upsert.Close()
	del, err := tx.PrepareContext(ctx, deleteQuery)
	if err != nil {
		return res, Error.Wrap(err)
	}
	defer del.Close()

	for i, raw := range b.Rows {
		action, row, err := spec.Project(raw)
		if err != nil {
			return warehouse.FactResult{}, Error.Wrap(fmt.Errorf("%s row %d: %w", spec.Table, i, err))
		}
		switch action {
		case catalog.ActionDelete:
			r, err := del.ExecContext(ctx, s.args(spec.Keys, row)...)
			if err != nil {
				return warehouse.FactResult{}, Error.Wrap(fmt.Errorf("%s row %d: %w", spec.Table, i, err))
			}
			n, err := r.RowsAffected()
			if err != nil {
				return warehouse.FactResult{}, Error.Wrap(err)
			}
			if n == 0 {
				res.Missing++
			}
			res.Deleted += int(n)
		default:
			row[catalog.ColUpdatedAt] = now
			if row[catalog.ColSourceTimestamp] == nil {
				row[catalog.ColSourceTimestamp] = now
			}
			if _, err := upsert.ExecContext(ctx, s.args(cols, row)...); err != nil {
				return warehouse.FactResult{}, Error.Wrap(fmt.Errorf("%s row %d: %w", spec.Table, i, err))
			}
			res.Upserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return warehouse.FactResult{}, Error.Wrap(err)
	}
	s.log.Debug("facts applied", zap.Int("upserted", res.Upserted), zap.Int("deleted", res.Deleted), zap.Int("missing", res.Missing))
	return res, nil
}
