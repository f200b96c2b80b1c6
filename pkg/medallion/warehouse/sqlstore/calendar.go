package sqlstore

import (
	"context"
	"fmt"

	"github.com/cognicore/medallion/pkg/medallion/catalog"
	"github.com/cognicore/medallion/pkg/medallion/table"
	"github.com/cognicore/medallion/pkg/medallion/warehouse"
)

// CountDates returns the number of rows in the date dimension.
func (s *Store) CountDates(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.table(warehouse.Silver, catalog.DateTable)).Scan(&n)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return n, nil
}

// InsertDates appends calendar rows in one transaction.
func (s *Store) InsertDates(ctx context.Context, b *table.Batch) error {
	if b.Empty() {
		return nil
	}
	cols := make([]string, len(catalog.DateFields))
	for i, f := range catalog.DateFields {
		cols[i] = f.Name
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Error.Wrap(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.table(warehouse.Silver, catalog.DateTable), quoteAll(s.dialect, cols), placeholders(s.dialect, 1, len(cols))))
	if err != nil {
		return Error.Wrap(err)
	}
	defer stmt.Close()

	for _, row := range b.Rows {
		if _, err := stmt.ExecContext(ctx, s.args(cols, row)...); err != nil {
			return Error.Wrap(fmt.Errorf("date %v: %w", row[catalog.ColID], err))
		}
	}
	return Error.Wrap(tx.Commit())
}
