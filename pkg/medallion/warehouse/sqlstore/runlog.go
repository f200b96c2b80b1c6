package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/cognicore/medallion/pkg/medallion/table"
	"github.com/cognicore/medallion/pkg/medallion/warehouse"
)

const runLogTable = "pipeline_runs"

func (s *Store) initRunLog(ctx context.Context) error {
	if err := s.execAll(ctx, s.dialect.CreateNamespace(warehouse.Ops)); err != nil {
		return err
	}
	q := s.dialect.Quote
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s %s PRIMARY KEY,
	%s %s NOT NULL,
	%s %s,
	%s %s NOT NULL,
	%s %s
)`, s.table(warehouse.Ops, runLogTable),
		q("run_id"), s.dialect.ColumnType(table.String, true),
		q("started_at"), s.dialect.ColumnType(table.Timestamp, false),
		q("finished_at"), s.dialect.ColumnType(table.Timestamp, false),
		q("status"), s.dialect.ColumnType(table.String, true),
		q("message"), s.dialect.ColumnType(table.String, false))
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// StartRun records a run as in progress.
func (s *Store) StartRun(ctx context.Context, run warehouse.Run) error {
	if run.Status == "" {
		run.Status = "in_progress"
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.table(warehouse.Ops, runLogTable),
			quoteAll(s.dialect, []string{"run_id", "started_at", "status", "message"}), placeholders(s.dialect, 1, 4)),
		run.ID, s.dialect.Bind(run.StartedAt.UTC()), run.Status, run.Message)
	return Error.Wrap(err)
}

// FinishRun stores the final status and message of a run.
func (s *Store) FinishRun(ctx context.Context, run warehouse.Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = s.now()
	}
	q := s.dialect.Quote
	p := s.dialect.Placeholder
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET %s = %s, %s = %s, %s = %s WHERE %s = %s", s.table(warehouse.Ops, runLogTable),
			q("finished_at"), p(1), q("status"), p(2), q("message"), p(3), q("run_id"), p(4)),
		s.dialect.Bind(run.FinishedAt.UTC()), run.Status, run.Message, run.ID)
	return Error.Wrap(err)
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]warehouse.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	b, err := s.queryBatch(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s DESC LIMIT %d",
		quoteAll(s.dialect, []string{"run_id", "started_at", "finished_at", "status", "message"}),
		s.table(warehouse.Ops, runLogTable), s.dialect.Quote("started_at"), limit))
	if err != nil {
		return nil, Error.Wrap(err)
	}

	runs := make([]warehouse.Run, 0, b.Len())
	for _, row := range b.Rows {
		run := warehouse.Run{}
		run.ID, _ = row["run_id"].(string)
		run.Status, _ = row["status"].(string)
		run.Message, _ = row["message"].(string)
		run.StartedAt = asTime(row["started_at"])
		run.FinishedAt = asTime(row["finished_at"])
		runs = append(runs, run)
	}
	return runs, nil
}

func asTime(v any) time.Time {
	t, err := table.Timestamp.Coerce(v)
	if err != nil || t == nil {
		return time.Time{}
	}
	return t.(time.Time)
}
