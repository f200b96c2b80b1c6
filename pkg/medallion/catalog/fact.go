package catalog

import (
	"fmt"
	"strings"

	"github.com/zeebo/errs"

	"github.com/cognicore/medallion/pkg/medallion/internalerr"
	"github.com/cognicore/medallion/pkg/medallion/table"
)

// ColAction carries the CDC action of a fact row.
const ColAction = "action"

// Action is a CDC operation.
type Action string

const (
	ActionUpsert Action = "UPSERT"
	ActionDelete Action = "DELETE"
)

// ParseAction reads the action column. Absent means UPSERT; INSERT and
// UPDATE are accepted as UPSERT.
func ParseAction(v any) (Action, error) {
	if v == nil {
		return ActionUpsert, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: action %v", internalerr.ErrMalformedRow, v)
	}
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "UPSERT", "INSERT", "UPDATE":
		return ActionUpsert, nil
	case "DELETE":
		return ActionDelete, nil
	}
	return "", fmt.Errorf("%w: unknown action %q", internalerr.ErrMalformedRow, s)
}

// FactSpec describes the metric fact table.
type FactSpec struct {
	Staging string
	Table   string
	// Keys form the composite identity of a fact row.
	Keys   []string
	Fields []Field
}

// Columns lists the writable columns followed by the metadata timestamps.
func (f FactSpec) Columns() []string {
	cols := make([]string, 0, len(f.Fields)+2)
	for _, fd := range f.Fields {
		cols = append(cols, fd.Name)
	}
	return append(cols, ColSourceTimestamp, ColUpdatedAt)
}

// IsKey reports whether name is part of the composite key.
func (f FactSpec) IsKey(name string) bool {
	for _, k := range f.Keys {
		if k == name {
			return true
		}
	}
	return false
}

// Project parses a raw fact row: its action, and the declared columns
// coerced and range checked. DELETE rows only need the keys. Any problem is
// reported as ErrMalformedRow.
func (f FactSpec) Project(raw table.Row) (Action, table.Row, error) {
	action, err := ParseAction(raw[ColAction])
	if err != nil {
		return "", nil, Error.Wrap(err)
	}

	out := make(table.Row, len(f.Fields)+1)
	var group errs.Group
	for _, fd := range f.Fields {
		if action == ActionDelete && !f.IsKey(fd.Name) {
			continue
		}
		v, err := fd.Clean(raw[fd.Name])
		if err != nil {
			group.Add(err)
			continue
		}
		out[fd.Name] = v
	}
	if action == ActionUpsert {
		if ts := raw[ColSourceTimestamp]; ts != nil {
			v, err := table.Timestamp.Coerce(ts)
			if err != nil {
				group.Add(fmt.Errorf("%s: %w", ColSourceTimestamp, err))
			} else {
				out[ColSourceTimestamp] = v
			}
		}
	}
	if err := group.Err(); err != nil {
		return "", nil, Error.Wrap(fmt.Errorf("%w: %v", internalerr.ErrMalformedRow, err))
	}
	return action, out, nil
}

func foreignKey(name string) Field {
	return Field{Name: name, Type: table.Int}
}

// Metrics is the metric fact: one snapshot per asset per day.
var Metrics = FactSpec{
	Staging: "metric_entries",
	Table:   "metric_entry",
	Keys:    []string{"asset_id", "date_id"},
	Fields: []Field{
		{Name: "asset_id", Type: table.Int, Required: true},
		{Name: "date_id", Type: table.Int, Required: true},
		foreignKey("provider_id"),
		foreignKey("region_id"),
		foreignKey("team_id"),
		foreignKey("service_type_id"),
		foreignKey("environment_id"),
		foreignKey("status_id"),
		foreignKey("cost_center_id"),
		foreignKey("security_tier_id"),
		foreignKey("hardware_profile_id"),
		{Name: "cpu_usage_avg", Type: table.Float, Rules: []Rule{Between(0, 100)}},
		{Name: "memory_usage_avg", Type: table.Float, Rules: []Rule{Between(0, 100)}},
		{Name: "hourly_cost", Type: table.Float, Rules: []Rule{NonNegative, Round(4)}},
		{Name: "uptime_seconds", Type: table.Int, Rules: []Rule{NonNegative}},
	},
}

// DateTable is the date dimension table name.
const DateTable = "dim_date"

// DateFields describes the columns produced by calendar.Generate.
var DateFields = []Field{
	{Name: "id", Type: table.Int, Required: true},
	{Name: "full_date", Type: table.Date},
	{Name: "year", Type: table.Int},
	{Name: "month", Type: table.Int},
	{Name: "month_name", Type: table.String},
	{Name: "day", Type: table.Int},
	{Name: "day_of_week", Type: table.Int},
	{Name: "day_name", Type: table.String},
	{Name: "quarter", Type: table.Int},
	{Name: "is_weekend", Type: table.Bool},
}
