package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cognicore/medallion/pkg/medallion/catalog"
	"github.com/cognicore/medallion/pkg/medallion/table"
	"github.com/cognicore/medallion/pkg/medallion/warehouse"
)

// UpsertDimension writes a batch into the dimension table of spec, matching
// rows by business key. Every row is projected onto the declared columns and
// stamped active. The batch commits as one transaction; any failing row
// rolls the whole batch back.
func (s *Store) UpsertDimension(ctx context.Context, spec catalog.DimensionSpec, b *table.Batch) (int, error) {
	if b.Empty() {
		return 0, nil
	}
	now := s.now().UTC()
	cols := spec.Columns()
	query := s.dialect.Upsert(s.table(warehouse.Silver, spec.Table), cols, []string{spec.BusinessKey}, catalog.ColUpdatedAt)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, Error.Wrap(fmt.Errorf("prepare upsert %s: %w", spec.Table, err))
	}
	defer stmt.Close()

	for i, raw := range b.Rows {
		row, err := spec.Project(raw)
		if err != nil {
			return 0, Error.Wrap(fmt.Errorf("%s row %d: %w", spec.Entity, i, err))
		}
		row[catalog.ColIsActive] = true
		row[catalog.ColUpdatedAt] = now
		if row[catalog.ColSourceTimestamp] == nil {
			row[catalog.ColSourceTimestamp] = now
		}
		if _, err := stmt.ExecContext(ctx, s.args(cols, row)...); err != nil {
			return 0, Error.Wrap(fmt.Errorf("%s row %d (%v): %w", spec.Entity, i, row[spec.BusinessKey], err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, Error.Wrap(err)
	}
	s.log.Debug("dimension upserted", zap.String("entity", spec.Entity), zap.Int("rows", b.Len()))
	return b.Len(), nil
}

// ReadDimension reads the dimension back with every value coerced to its
// declared type, ordered by id. Soft-deleted rows are skipped unless
// opts.IncludeInactive is set.
func (s *Store) ReadDimension(ctx context.Context, spec catalog.DimensionSpec, opts warehouse.ReadOptions) (*table.Batch, error) {
	cols := spec.ReadColumns()
	query := fmt.Sprintf("SELECT %s FROM %s", quoteAll(s.dialect, cols), s.table(warehouse.Silver, spec.Table))
	var args []any
	if !opts.IncludeInactive {
		query += " WHERE " + s.dialect.Quote(catalog.ColIsActive) + " = " + s.dialect.Placeholder(1)
		args = append(args, s.dialect.Bind(true))
	}
	query += " ORDER BY " + s.dialect.Quote(catalog.ColID)

	b, err := s.queryBatch(ctx, query, args...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	for n, row := range b.Rows {
		for _, col := range cols {
			f, _ := spec.Field(col)
			v, err := f.Type.Coerce(row[col])
			if err != nil {
				return nil, Error.Wrap(fmt.Errorf("%s row %d column %s: %w", spec.Entity, n, col, err))
			}
			row[col] = v
		}
	}
	return b, nil
}

// RetireDimension marks the active row with the business key inactive. The
// row is never removed.
func (s *Store) RetireDimension(ctx context.Context, spec catalog.DimensionSpec, businessKey string) (int64, bool, error) {
	businessKey = strings.TrimSpace(businessKey)
	tbl := s.table(warehouse.Silver, spec.Table)
	q := s.dialect.Quote

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, Error.Wrap(err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s AND %s = %s",
			q(catalog.ColID), tbl, q(spec.BusinessKey), s.dialect.Placeholder(1), q(catalog.ColIsActive), s.dialect.Placeholder(2)),
		businessKey, s.dialect.Bind(true)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, Error.Wrap(err)
	}

	_, err = tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET %s = %s, %s = %s WHERE %s = %s",
			tbl, q(catalog.ColIsActive), s.dialect.Placeholder(1), q(catalog.ColUpdatedAt), s.dialect.Placeholder(2),
			q(catalog.ColID), s.dialect.Placeholder(3)),
		s.dialect.Bind(false), s.dialect.Bind(s.now().UTC()), id)
	if err != nil {
		return 0, false, Error.Wrap(err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, Error.Wrap(err)
	}
	s.log.Info("dimension row retired", zap.String("entity", spec.Entity), zap.String("key", businessKey), zap.Int64("id", id))
	return id, true, nil
}
