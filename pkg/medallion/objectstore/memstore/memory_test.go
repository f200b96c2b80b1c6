package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/cognicore/medallion/pkg/medallion/internalerr"
)

func TestListAndGet(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Put("raw/teams_2024_01.csv", []byte("team_name\nData\n"))
	s.Put("raw/assets.json", []byte("[]"))
	s.Put("archive/old.csv", []byte("x"))

	objs, err := s.List(ctx, "/raw")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objs) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(objs))
	}
	if objs[0].Key != "raw/assets.json" || objs[1].Name() != "teams_2024_01.csv" {
		t.Fatalf("unexpected order %+v", objs)
	}
	if objs[1].Size != 15 {
		t.Fatalf("size = %d", objs[1].Size)
	}

	data, err := s.Get(ctx, "raw/assets.json")
	if err != nil || string(data) != "[]" {
		t.Fatalf("Get = %q, %v", data, err)
	}
	if _, err := s.Get(ctx, "raw/missing.csv"); !errors.Is(err, internalerr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFailures(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Put("a.csv", []byte("x"))
	boom := errors.New("boom")
	s.FailGet("a.csv", boom)
	if _, err := s.Get(ctx, "a.csv"); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	s.FailList(boom)
	if _, err := s.List(ctx, ""); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}
