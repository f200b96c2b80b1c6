package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FieldType is the primitive type of a column.
type FieldType string

const (
	String    FieldType = "string"
	Bool      FieldType = "bool"
	Int       FieldType = "int"
	Float     FieldType = "float"
	Date      FieldType = "date"
	Timestamp FieldType = "timestamp"
)

// Temporal reports whether the type carries a point in time.
func (t FieldType) Temporal() bool { return t == Date || t == Timestamp }

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000000000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
}

// ParseTime parses the timestamp and date layouts found in source files and
// returned by the warehouse drivers. The result is in UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// ParseScalar infers a scalar from raw text: bool, int64, float64 or string.
// Text only becomes a bool or number when it prints back identically, so
// "1.10", "007" and integers beyond int64 stay text. Empty text is nil.
func ParseScalar(s string) any {
	switch s {
	case "":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		if strconv.FormatInt(i, 10) == s {
			return i
		}
		return s
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		if strconv.FormatFloat(f, 'f', -1, 64) == s {
			return f
		}
	}
	return s
}

// Coerce converts v to the Go representation of t:
// string, bool, int64, float64 or time.Time (dates truncated to midnight UTC).
func (t FieldType) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch t {
	case String:
		switch x := v.(type) {
		case string:
			return x, nil
		case time.Time:
			return x.UTC().Format(time.RFC3339), nil
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		default:
			return fmt.Sprint(x), nil
		}
	case Bool:
		return toBool(v)
	case Int:
		return toInt(v)
	case Float:
		return toFloat(v)
	case Date:
		ts, err := toTime(v)
		if err != nil {
			return nil, err
		}
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), nil
	case Timestamp:
		return toTime(v)
	}
	return nil, fmt.Errorf("unknown field type %q", t)
}

func toBool(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case int:
		return x != 0, nil
	case float64:
		return x != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "t", "1", "yes", "y":
			return true, nil
		case "false", "f", "0", "no", "n":
			return false, nil
		case "":
			return nil, nil
		}
	}
	return nil, fmt.Errorf("cannot use %v (%T) as bool", v, v)
}

func toInt(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case float64:
		if x != math.Trunc(x) {
			return nil, fmt.Errorf("cannot use %v as int", x)
		}
		return int64(x), nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, nil
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) {
			return int64(f), nil
		}
	}
	return nil, fmt.Errorf("cannot use %v (%T) as int", v, v)
}

func toFloat(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, nil
		}
	}
	return nil, fmt.Errorf("cannot use %v (%T) as float", v, v)
}

func toTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		return ParseTime(x)
	case int64:
		return time.Unix(x, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("cannot use %v (%T) as time", v, v)
}

// InferType picks the narrowest FieldType able to hold every non-nil value.
// Mixed or unknown values fall back to String.
func InferType(values []any) FieldType {
	var t FieldType
	for _, v := range values {
		var vt FieldType
		switch v.(type) {
		case nil:
			continue
		case bool:
			vt = Bool
		case int64, int, int32:
			vt = Int
		case float64, float32:
			vt = Float
		case time.Time:
			vt = Timestamp
		default:
			return String
		}
		switch {
		case t == "":
			t = vt
		case t == vt:
		case (t == Int && vt == Float) || (t == Float && vt == Int):
			t = Float
		default:
			return String
		}
	}
	if t == "" {
		return String
	}
	return t
}
