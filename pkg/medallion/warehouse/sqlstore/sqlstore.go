// Package sqlstore implements warehouse.Warehouse on database/sql for
// postgres, mysql and sqlite.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/cognicore/medallion/pkg/medallion/internalerr"
	"github.com/cognicore/medallion/pkg/medallion/table"
	"github.com/cognicore/medallion/pkg/medallion/warehouse"
)

// Error is the class of warehouse errors.
var Error = errs.Class("sqlstore")

// Store implements warehouse.Warehouse.
type Store struct {
	db      *sql.DB
	dialect Dialect
	log     *zap.Logger
	now     func() time.Time
}

var _ warehouse.Warehouse = (*Store)(nil)

// Option configures a Store.
type Option func(*options)

type options struct {
	log          *zap.Logger
	now          func() time.Time
	maxOpenConns int
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option { return func(o *options) { o.log = log } }

// WithClock replaces time.Now for lifecycle stamps.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithMaxOpenConns bounds the connection pool. Ignored for sqlite, which
// always uses a single connection.
func WithMaxOpenConns(n int) Option { return func(o *options) { o.maxOpenConns = n } }

// Open connects to the warehouse identified by driver ("postgres", "mysql"
// or "sqlite") and makes sure the run log exists.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	o := options{now: time.Now, maxOpenConns: 10}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}

	d, err := DialectFor(driver)
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err))
	}
	if d.Name() == "mysql" {
		if dsn, err = mysqlDSN(dsn); err != nil {
			return nil, Error.Wrap(fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err))
		}
	}

	db, err := sql.Open(d.Driver(), dsn)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if d.Name() == "sqlite" {
		db.SetMaxOpenConns(1)
	} else if o.maxOpenConns > 0 {
		db.SetMaxOpenConns(o.maxOpenConns)
		db.SetMaxIdleConns(o.maxOpenConns / 2)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, Error.Wrap(fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err))
	}

	s := &Store{db: db, dialect: d, log: o.log.Named("sqlstore"), now: o.now}
	if d.Name() == "sqlite" {
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, Error.Wrap(err)
			}
		}
	}
	if err := s.initRunLog(ctx); err != nil {
		db.Close()
		return nil, Error.Wrap(err)
	}
	return s, nil
}

// mysqlDSN forces time parsing in UTC so DATETIME columns scan as time.Time.
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dialect returns the SQL dialect in use.
func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) table(ns, name string) string { return s.dialect.Table(ns, name) }

func (s *Store) args(cols []string, row table.Row) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = s.dialect.Bind(row[c])
	}
	return out
}

func (s *Store) execAll(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

func (s *Store) exists(ctx context.Context, ns, name string) (bool, error) {
	q, args := s.dialect.TableExists(ns, name)
	var n int64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// queryBatch runs a query and collects every row. Driver byte slices are
// returned as strings.
func (s *Store) queryBatch(ctx context.Context, query string, args ...any) (*table.Batch, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	b := table.New(cols...)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(table.Row, len(cols))
		for i, c := range cols {
			if raw, ok := vals[i].([]byte); ok {
				row[c] = string(raw)
			} else {
				row[c] = vals[i]
			}
		}
		b.Rows = append(b.Rows, row)
	}
	return b, rows.Err()
}
