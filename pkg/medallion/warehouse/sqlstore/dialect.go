package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cognicore/medallion/pkg/medallion/table"
)

// Dialect hides the SQL differences between the supported warehouses.
type Dialect interface {
	Name() string
	// Driver is the database/sql driver name.
	Driver() string
	// Placeholder returns the n-th (1-based) bind marker.
	Placeholder(n int) string
	Quote(ident string) string
	// Table returns the quoted, namespace-qualified name of a table.
	Table(namespace, name string) string
	ColumnType(t table.FieldType, key bool) string
	Identity() string
	CreateNamespace(namespace string) []string
	DropNamespace(ctx context.Context, db *sql.DB, namespace string) ([]string, error)
	TableExists(namespace, name string) (string, []any)
	// Upsert builds an insert that overwrites every non-key column on a key
	// conflict. The monotonic column only moves forward.
	Upsert(tbl string, cols, keys []string, monotonic string) string
	CreateView(name, query string, materialized bool) string
	// RefreshView returns the refresh statement, or "" for plain views.
	RefreshView(name string, materialized bool) string
	Bind(v any) any
}

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pgx":
		return postgres{}, nil
	case "mysql", "mariadb":
		return mysqlDialect{}, nil
	case "sqlite", "sqlite3":
		return sqlite{}, nil
	}
	return nil, fmt.Errorf("unknown warehouse driver %q", name)
}

func placeholders(d Dialect, from, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = d.Placeholder(from + i)
	}
	return strings.Join(ps, ", ")
}

func quoteAll(d Dialect, cols []string) string {
	qs := make([]string, len(cols))
	for i, c := range cols {
		qs[i] = d.Quote(c)
	}
	return strings.Join(qs, ", ")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// upsertOnConflict renders the INSERT .. ON CONFLICT form shared by
// postgres and sqlite.
func upsertOnConflict(d Dialect, tbl string, cols, keys []string, monotonic string, greatest func(col string) string) string {
	var sets []string
	for _, c := range cols {
		if contains(keys, c) {
			continue
		}
		q := d.Quote(c)
		if c == monotonic {
			sets = append(sets, q+" = "+greatest(q))
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", q, q))
	}
	return fmt.Sprintf("INSERT INTO %s AS t (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		tbl, quoteAll(d, cols), placeholders(d, 1, len(cols)), quoteAll(d, keys), strings.Join(sets, ", "))
}

type postgres struct{}

func (postgres) Name() string                   { return "postgres" }
func (postgres) Driver() string                 { return "pgx" }
func (postgres) Placeholder(n int) string       { return fmt.Sprintf("$%d", n) }
func (postgres) Quote(ident string) string      { return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"` }
func (p postgres) Table(ns, name string) string { return p.Quote(ns) + "." + p.Quote(name) }
func (postgres) Identity() string               { return `"id" BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY` }
func (postgres) Bind(v any) any                 { return v }

func (postgres) ColumnType(t table.FieldType, key bool) string {
	switch t {
	case table.Bool:
		return "BOOLEAN"
	case table.Int:
		return "BIGINT"
	case table.Float:
		return "DOUBLE PRECISION"
	case table.Date:
		return "DATE"
	case table.Timestamp:
		return "TIMESTAMPTZ"
	}
	return "TEXT"
}

func (p postgres) CreateNamespace(ns string) []string {
	return []string{"CREATE SCHEMA IF NOT EXISTS " + p.Quote(ns)}
}

func (p postgres) DropNamespace(_ context.Context, _ *sql.DB, ns string) ([]string, error) {
	return []string{"DROP SCHEMA IF EXISTS " + p.Quote(ns) + " CASCADE"}, nil
}

func (postgres) TableExists(ns, name string) (string, []any) {
	return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2", []any{ns, name}
}

func (p postgres) Upsert(tbl string, cols, keys []string, monotonic string) string {
	return upsertOnConflict(p, tbl, cols, keys, monotonic, func(q string) string {
		return "GREATEST(t." + q + ", excluded." + q + ")"
	})
}

func (postgres) CreateView(name, query string, materialized bool) string {
	if materialized {
		return "CREATE MATERIALIZED VIEW IF NOT EXISTS " + name + " AS " + query
	}
	return "CREATE OR REPLACE VIEW " + name + " AS " + query
}

func (postgres) RefreshView(name string, materialized bool) string {
	if !materialized {
		return ""
	}
	return "REFRESH MATERIALIZED VIEW " + name
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string                   { return "mysql" }
func (mysqlDialect) Driver() string                 { return "mysql" }
func (mysqlDialect) Placeholder(int) string         { return "?" }
func (mysqlDialect) Quote(ident string) string      { return "`" + strings.ReplaceAll(ident, "`", "``") + "`" }
func (m mysqlDialect) Table(ns, name string) string { return m.Quote(ns) + "." + m.Quote(name) }
func (mysqlDialect) Identity() string               { return "`id` BIGINT AUTO_INCREMENT PRIMARY KEY" }
func (mysqlDialect) Bind(v any) any                 { return v }

func (mysqlDialect) ColumnType(t table.FieldType, key bool) string {
	switch t {
	case table.Bool:
		return "BOOLEAN"
	case table.Int:
		return "BIGINT"
	case table.Float:
		return "DOUBLE"
	case table.Date:
		return "DATE"
	case table.Timestamp:
		return "DATETIME(6)"
	}
	if key {
		// TEXT cannot carry a unique index without a prefix length
		return "VARCHAR(255)"
	}
	return "TEXT"
}

func (m mysqlDialect) CreateNamespace(ns string) []string {
	return []string{"CREATE DATABASE IF NOT EXISTS " + m.Quote(ns)}
}

func (m mysqlDialect) DropNamespace(_ context.Context, _ *sql.DB, ns string) ([]string, error) {
	return []string{"DROP DATABASE IF EXISTS " + m.Quote(ns)}, nil
}

func (mysqlDialect) TableExists(ns, name string) (string, []any) {
	return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?", []any{ns, name}
}

func (m mysqlDialect) Upsert(tbl string, cols, keys []string, monotonic string) string {
	var sets []string
	for _, c := range cols {
		if contains(keys, c) {
			continue
		}
		q := m.Quote(c)
		if c == monotonic {
			sets = append(sets, fmt.Sprintf("%s = GREATEST(%s, VALUES(%s))", q, q, q))
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", q, q))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		tbl, quoteAll(m, cols), placeholders(m, 1, len(cols)), strings.Join(sets, ", "))
}

func (mysqlDialect) CreateView(name, query string, _ bool) string {
	return "CREATE OR REPLACE VIEW " + name + " AS " + query
}

func (mysqlDialect) RefreshView(string, bool) string { return "" }

// sqliteTime is fixed width so stored timestamps compare as text.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

type sqlite struct{}

func (sqlite) Name() string              { return "sqlite" }
func (sqlite) Driver() string            { return "sqlite" }
func (sqlite) Placeholder(int) string    { return "?" }
func (sqlite) Quote(ident string) string { return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"` }

// Table flattens the namespace into a name prefix.
func (s sqlite) Table(ns, name string) string { return s.Quote(ns + "_" + name) }
func (sqlite) Identity() string               { return `"id" INTEGER PRIMARY KEY AUTOINCREMENT` }

func (sqlite) ColumnType(t table.FieldType, key bool) string {
	switch t {
	case table.Bool, table.Int:
		return "INTEGER"
	case table.Float:
		return "REAL"
	}
	return "TEXT"
}

func (sqlite) Bind(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(sqliteTime)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

func (sqlite) CreateNamespace(string) []string { return nil }

func (s sqlite) DropNamespace(ctx context.Context, db *sql.DB, ns string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT type, name FROM sqlite_master WHERE type IN ('view', 'table') AND name LIKE ? ESCAPE '\' ORDER BY type DESC`,
		strings.ReplaceAll(ns, "_", `\_`)+`\_%`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stmts []string
	for rows.Next() {
		var typ, name string
		if err := rows.Scan(&typ, &name); err != nil {
			return nil, err
		}
		stmts = append(stmts, fmt.Sprintf("DROP %s IF EXISTS %s", strings.ToUpper(typ), s.Quote(name)))
	}
	return stmts, rows.Err()
}

func (sqlite) TableExists(ns, name string) (string, []any) {
	return "SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?", []any{ns + "_" + name}
}

func (s sqlite) Upsert(tbl string, cols, keys []string, monotonic string) string {
	return upsertOnConflict(s, tbl, cols, keys, monotonic, func(q string) string {
		return "CASE WHEN excluded." + q + " > t." + q + " THEN excluded." + q + " ELSE t." + q + " END"
	})
}

func (sqlite) CreateView(name, query string, _ bool) string {
	return "CREATE VIEW IF NOT EXISTS " + name + " AS " + query
}

func (sqlite) RefreshView(string, bool) string { return "" }
