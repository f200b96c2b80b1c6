package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cognicore/medallion/pkg/medallion/internalerr"
	"github.com/cognicore/medallion/pkg/medallion/table"
	"github.com/cognicore/medallion/pkg/medallion/warehouse"
)

// ReplaceStaging drops and recreates the bronze table name with one column
// per batch column, typed by inference, and loads every row in a single
// transaction.
func (s *Store) ReplaceStaging(ctx context.Context, name string, b *table.Batch) error {
	if b == nil || len(b.Columns) == 0 {
		return Error.Wrap(fmt.Errorf("%w: staging %s has no columns", internalerr.ErrInvalidInput, name))
	}
	tbl := s.table(warehouse.Bronze, table.NormalizeColumn(name))

	types := make([]table.FieldType, len(b.Columns))
	defs := make([]string, len(b.Columns))
	for i, col := range b.Columns {
		types[i] = table.InferType(b.Values(col))
		defs[i] = s.dialect.Quote(col) + " " + s.dialect.ColumnType(types[i], false)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Error.Wrap(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+tbl); err != nil {
		return Error.Wrap(err)
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", tbl, strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return Error.Wrap(fmt.Errorf("%s: %w", create, err))
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tbl, quoteAll(s.dialect, b.Columns), placeholders(s.dialect, 1, len(b.Columns))))
	if err != nil {
		return Error.Wrap(err)
	}
	defer stmt.Close()

	args := make([]any, len(b.Columns))
	for n, row := range b.Rows {
		for i, col := range b.Columns {
			v, err := types[i].Coerce(row[col])
			if err != nil {
				return Error.Wrap(fmt.Errorf("%s row %d column %s: %w", name, n, col, err))
			}
			args[i] = s.dialect.Bind(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return Error.Wrap(fmt.Errorf("%s row %d: %w", name, n, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return Error.Wrap(err)
	}
	s.log.Debug("staging replaced", zap.String("table", name), zap.Int("rows", b.Len()))
	return nil
}

// ReadStaging returns every row of a bronze table. A table that was never
// landed yields internalerr.ErrNotFound.
func (s *Store) ReadStaging(ctx context.Context, name string) (*table.Batch, error) {
	name = table.NormalizeColumn(name)
	ok, err := s.exists(ctx, warehouse.Bronze, name)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if !ok {
		return nil, Error.Wrap(fmt.Errorf("%w: staging table %s", internalerr.ErrNotFound, name))
	}
	b, err := s.queryBatch(ctx, "SELECT * FROM "+s.table(warehouse.Bronze, name))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return b, nil
}
