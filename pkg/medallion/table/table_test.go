package table

import (
	"testing"
	"time"
)

func TestNormalizeColumns(t *testing.T) {
	b := New("Serial Number", " Resource Name ", "cpu%", "serial number")
	b.Rows = []Row{{"Serial Number": "RES-AB12-CD34", " Resource Name ": "db", "cpu%": int64(3), "serial number": "x"}}
	b.NormalizeColumns()

	want := []string{"serial_number", "resource_name", "cpu", "serial_number_2"}
	for i, c := range want {
		if b.Columns[i] != c {
			t.Fatalf("column %d: expected %q, got %q", i, c, b.Columns[i])
		}
	}
	if b.Rows[0]["serial_number"] != "RES-AB12-CD34" {
		t.Errorf("row key not renamed: %v", b.Rows[0])
	}
	if b.Rows[0]["serial_number_2"] != "x" {
		t.Errorf("colliding column lost: %v", b.Rows[0])
	}
}

func TestParseScalar(t *testing.T) {
	cases := map[string]any{
		"":      nil,
		"true":  true,
		"false": false,
		"FALSE": "FALSE",
		"42":    int64(42),
		"-42":   int64(-42),
		"0":     int64(0),
		"-0":    "-0",
		"+5":    "+5",
		"007":   "007",
		"3.5":   3.5,
		"1.10":  "1.10",
		"1e3":   "1e3",
		"abc":   "abc",
		"NaN":   "NaN",

		"12345678901234567890": "12345678901234567890",
	}
	for in, want := range cases {
		if got := ParseScalar(in); got != want {
			t.Errorf("ParseScalar(%q) = %#v, want %#v", in, got, want)
		}
	}
}

func TestCoerce(t *testing.T) {
	v, err := Int.Coerce("12")
	if err != nil || v != int64(12) {
		t.Fatalf("Int.Coerce: %v %v", v, err)
	}
	if _, err := Int.Coerce("1.5"); err == nil {
		t.Error("expected error coercing 1.5 to int")
	}
	v, err = Bool.Coerce(int64(1))
	if err != nil || v != true {
		t.Fatalf("Bool.Coerce: %v %v", v, err)
	}
	v, err = Float.Coerce(int64(2))
	if err != nil || v != 2.0 {
		t.Fatalf("Float.Coerce: %v %v", v, err)
	}
	v, err = Date.Coerce("2024-03-09T17:30:00Z")
	if err != nil {
		t.Fatalf("Date.Coerce: %v", err)
	}
	if !v.(time.Time).Equal(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date not truncated to midnight: %v", v)
	}
	v, err = String.Coerce([]byte("raw"))
	if err != nil || v != "raw" {
		t.Fatalf("String.Coerce: %v %v", v, err)
	}
	if v, _ := String.Coerce(nil); v != nil {
		t.Errorf("nil should stay nil, got %v", v)
	}
}

func TestInferType(t *testing.T) {
	if got := InferType([]any{int64(1), nil, int64(3)}); got != Int {
		t.Errorf("expected int, got %s", got)
	}
	if got := InferType([]any{int64(1), 2.5}); got != Float {
		t.Errorf("expected float, got %s", got)
	}
	if got := InferType([]any{int64(1), "x"}); got != String {
		t.Errorf("expected string, got %s", got)
	}
	if got := InferType([]any{nil}); got != String {
		t.Errorf("expected string for all-nil column, got %s", got)
	}
}
