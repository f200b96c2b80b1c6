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

var layers = []string{warehouse.Bronze, warehouse.Silver, warehouse.Gold}

// Reset drops the bronze, silver and gold namespaces with everything in them
// and recreates them empty. The ops namespace is left alone.
func (s *Store) Reset(ctx context.Context) error {
	for _, ns := range layers {
		stmts, err := s.dialect.DropNamespace(ctx, s.db, ns)
		if err != nil {
			return Error.Wrap(err)
		}
		if err := s.execAll(ctx, stmts); err != nil {
			return Error.Wrap(err)
		}
		if err := s.execAll(ctx, s.dialect.CreateNamespace(ns)); err != nil {
			return Error.Wrap(err)
		}
	}
	s.log.Info("warehouse reset", zap.Strings("namespaces", layers))
	return nil
}

// Prepare creates the dimension, date and fact tables plus the gold views.
// Existing objects are kept.
func (s *Store) Prepare(ctx context.Context, dims []catalog.DimensionSpec, fact catalog.FactSpec) error {
	for _, ns := range layers {
		if err := s.execAll(ctx, s.dialect.CreateNamespace(ns)); err != nil {
			return Error.Wrap(err)
		}
	}

	stmts := []string{s.dateTableDDL()}
	for _, d := range dims {
		stmts = append(stmts, s.dimensionDDL(d))
	}
	stmts = append(stmts, s.factDDL(fact))
	for _, v := range goldViews(s.dialect) {
		stmts = append(stmts, s.dialect.CreateView(s.table(warehouse.Gold, v.name), v.query, v.materialized))
	}
	if err := s.execAll(ctx, stmts); err != nil {
		return Error.Wrap(err)
	}
	s.log.Info("warehouse prepared", zap.Int("dimensions", len(dims)), zap.String("fact", fact.Table))
	return nil
}

// RefreshViews refreshes every materialized gold view.
func (s *Store) RefreshViews(ctx context.Context) error {
	for _, v := range goldViews(s.dialect) {
		stmt := s.dialect.RefreshView(s.table(warehouse.Gold, v.name), v.materialized)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return Error.Wrap(fmt.Errorf("refresh %s: %w", v.name, err))
		}
	}
	return nil
}

func (s *Store) dimensionDDL(d catalog.DimensionSpec) string {
	defs := []string{s.dialect.Identity()}
	for _, f := range d.Fields {
		def := s.dialect.Quote(f.Name) + " " + s.dialect.ColumnType(f.Type, f.Name == d.BusinessKey)
		if f.Name == d.BusinessKey {
			def += " NOT NULL UNIQUE"
		}
		defs = append(defs, def)
	}
	defs = append(defs,
		s.dialect.Quote(catalog.ColIsActive)+" "+s.dialect.ColumnType(table.Bool, false)+" NOT NULL DEFAULT TRUE",
		s.dialect.Quote(catalog.ColSourceTimestamp)+" "+s.dialect.ColumnType(table.Timestamp, false),
		s.dialect.Quote(catalog.ColUpdatedAt)+" "+s.dialect.ColumnType(table.Timestamp, false)+" NOT NULL",
	)
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", s.table(warehouse.Silver, d.Table), strings.Join(defs, ",\n\t"))
}

func (s *Store) dateTableDDL() string {
	var defs []string
	for _, f := range catalog.DateFields {
		def := s.dialect.Quote(f.Name) + " " + s.dialect.ColumnType(f.Type, false)
		if f.Name == catalog.ColID {
			def += " PRIMARY KEY"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", s.table(warehouse.Silver, catalog.DateTable), strings.Join(defs, ",\n\t"))
}

func (s *Store) factDDL(f catalog.FactSpec) string {
	defs := []string{s.dialect.Identity()}
	for _, fd := range f.Fields {
		def := s.dialect.Quote(fd.Name) + " " + s.dialect.ColumnType(fd.Type, false)
		if f.IsKey(fd.Name) {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	defs = append(defs,
		s.dialect.Quote(catalog.ColSourceTimestamp)+" "+s.dialect.ColumnType(table.Timestamp, false),
		s.dialect.Quote(catalog.ColUpdatedAt)+" "+s.dialect.ColumnType(table.Timestamp, false)+" NOT NULL",
		"UNIQUE ("+quoteAll(s.dialect, f.Keys)+")",
	)
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", s.table(warehouse.Gold, f.Table), strings.Join(defs, ",\n\t"))
}
