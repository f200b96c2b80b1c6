// Package calendar generates the date dimension.
package calendar

import (
	"time"

	"github.com/cognicore/medallion/pkg/medallion/table"
)

// Columns of the date dimension, in table order.
var Columns = []string{
	"id", "full_date", "year", "month", "month_name", "day",
	"day_of_week", "day_name", "quarter", "is_weekend",
}

// DateKey returns the YYYYMMDD smart key for a day.
func DateKey(t time.Time) int64 {
	return int64(t.Year()*10000 + int(t.Month())*100 + t.Day())
}

// isoWeekday maps Sunday to 7 so Monday is 1.
func isoWeekday(t time.Time) int64 {
	wd := int64(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// Row returns the date dimension row for one day.
func Row(day time.Time) table.Row {
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dow := isoWeekday(d)
	return table.Row{
		"id":          DateKey(d),
		"full_date":   d,
		"year":        int64(d.Year()),
		"month":       int64(d.Month()),
		"month_name":  d.Month().String(),
		"day":         int64(d.Day()),
		"day_of_week": dow,
		"day_name":    d.Weekday().String(),
		"quarter":     int64((int(d.Month())-1)/3 + 1),
		"is_weekend":  dow >= 6,
	}
}

// Generate returns one row per calendar day from startYear-01-01 through
// endYear-12-31 inclusive. An inverted range yields an empty batch.
func Generate(startYear, endYear int) *table.Batch {
	b := table.New(Columns...)
	if startYear > endYear {
		return b
	}
	end := time.Date(endYear, time.December, 31, 0, 0, 0, 0, time.UTC)
	for d := time.Date(startYear, time.January, 1, 0, 0, 0, 0, time.UTC); !d.After(end); d = d.AddDate(0, 0, 1) {
		b.Rows = append(b.Rows, Row(d))
	}
	return b
}
