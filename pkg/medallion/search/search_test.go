package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cognicore/medallion/pkg/medallion/catalog"
	"github.com/cognicore/medallion/pkg/medallion/internalerr"
	"github.com/cognicore/medallion/pkg/medallion/outcome"
	"github.com/cognicore/medallion/pkg/medallion/search/searchtest"
	"github.com/cognicore/medallion/pkg/medallion/table"
)

func TestSchema(t *testing.T) {
	s := Schema(catalog.Asset)
	require.Equal(t, "asset", s.Name)

	byName := map[string]int{}
	for i, f := range s.Fields {
		byName[f.Name] = i
	}
	key := s.Fields[byName["serial_number"]]
	assert.False(t, key.Optional)
	assert.True(t, key.Facet)
	assert.Equal(t, "string", key.Type)
	assert.Equal(t, "int64", s.Fields[byName["created_at"]].Type)
	assert.True(t, s.Fields[byName["created_at"]].Optional)
	assert.Equal(t, "bool", s.Fields[byName["is_active"]].Type)
	assert.Equal(t, "int64", s.Fields[byName["updated_at"]].Type)
	_, hasID := byName["id"]
	assert.False(t, hasID)
}

func TestDateRoundTrip(t *testing.T) {
	day := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4*366; i++ {
		d := day.AddDate(0, 0, i)
		if got := DecodeDate(EncodeDate(d)); !got.Equal(d) {
			t.Fatalf("round trip of %s gave %s", d, got)
		}
	}
	noon := time.Date(2024, 2, 29, 12, 30, 0, 0, time.UTC)
	if EncodeDate(noon) != time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC).Unix() {
		t.Fatalf("date not encoded at midnight")
	}
}

func TestDocument(t *testing.T) {
	updated := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	doc, err := Document(catalog.Asset, table.Row{
		"id":            int64(7),
		"serial_number": " res-ab12-cd34 ",
		"resource_name": "prod db",
		"created_at":    time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		"description":   nil,
		"is_active":     true,
		"updated_at":    updated,
	})
	require.NoError(t, err)
	assert.Equal(t, "7", doc["id"])
	assert.Equal(t, "RES-AB12-CD34", doc["serial_number"])
	assert.Equal(t, "Prod Db", doc["resource_name"])
	assert.Equal(t, int64(1705276800), doc["created_at"])
	assert.Equal(t, updated.Unix(), doc["updated_at"])
	assert.NotContains(t, doc, "description")

	row := DecodeDocument(catalog.Asset, map[string]any{"id": "7", "created_at": doc["created_at"], "is_active": true})
	assert.Equal(t, int64(7), row["id"])
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), row["created_at"])
}

func TestDocumentRejectsInvalid(t *testing.T) {
	_, err := Document(catalog.Asset, table.Row{"id": int64(1), "serial_number": "SN-1", "resource_name": "prod db"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, internalerr.ErrInvalidInput))
}

func assetRows(rows ...table.Row) *table.Batch {
	b := table.New()
	for _, r := range rows {
		b.Append(r)
	}
	return b
}

func TestSyncNeverFails(t *testing.T) {
	ctx := context.Background()
	engine := searchtest.New()
	reg := NewRegistry(engine, catalog.Dimensions(), zaptest.NewLogger(t))
	require.Equal(t, outcome.Success, reg.EnsureCollection(ctx, "asset").Status)

	syncer := NewSyncer(engine, zaptest.NewLogger(t))
	res := syncer.Sync(ctx, catalog.Asset, assetRows(
		table.Row{"id": int64(1), "serial_number": "RES-AB12-CD34", "resource_name": "prod db"},
		table.Row{"id": int64(2), "serial_number": "bad", "resource_name": "prod db"},
	))
	assert.Equal(t, SyncResult{Entity: "asset", Indexed: 1, Invalid: 1}, res)
	assert.Equal(t, outcome.Success, res.Outcome().Status)
	assert.Len(t, engine.Documents("asset"), 1)

	engine.FailUpsert["asset"] = errors.New("engine down")
	res = syncer.Sync(ctx, catalog.Asset, assetRows(
		table.Row{"id": int64(1), "serial_number": "RES-AB12-CD34", "resource_name": "prod db"},
	))
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, outcome.Failed, res.Outcome().Status)

	require.NoError(t, syncer.Remove(ctx, catalog.Asset, 1))
	require.NoError(t, syncer.Remove(ctx, catalog.Asset, 1), "absent document is fine")
	assert.Empty(t, engine.Documents("asset"))
}

func TestEnsureCollectionOncePerRun(t *testing.T) {
	ctx := context.Background()
	engine := searchtest.New()
	reg := NewRegistry(engine, catalog.Dimensions(), zaptest.NewLogger(t))

	require.Equal(t, outcome.Success, reg.EnsureCollection(ctx, "team").Status)
	require.Equal(t, outcome.Success, reg.EnsureCollection(ctx, "team").Status)
	assert.Equal(t, 1, engine.Creates["team"])

	reg.BeginRun()
	assert.Equal(t, outcome.Success, reg.EnsureCollection(ctx, "team").Status, "existing collection is success")
	assert.Equal(t, 2, engine.Creates["team"])

	engine.FailCreate["region"] = errors.New("timeout")
	o := reg.EnsureCollection(ctx, "region")
	assert.Equal(t, outcome.Failed, o.Status)
	assert.Error(t, o.Err)

	assert.Equal(t, outcome.Failed, reg.EnsureCollection(ctx, "nope").Status)
}

func TestDropAll(t *testing.T) {
	ctx := context.Background()
	engine := searchtest.New()
	reg := NewRegistry(engine, catalog.Dimensions(), zaptest.NewLogger(t))
	reg.EnsureCollection(ctx, "asset")

	out := reg.DropAll(ctx)
	assert.Equal(t, 1, out.Count(outcome.Success))
	assert.Equal(t, len(catalog.Dimensions())-1, out.Count(outcome.Skipped))
	assert.False(t, engine.HasCollection("asset"))
}

func seed(t *testing.T) (*searchtest.Engine, *Registry) {
	t.Helper()
	ctx := context.Background()
	engine := searchtest.New()
	reg := NewRegistry(engine, catalog.Dimensions(), zaptest.NewLogger(t))
	syncer := NewSyncer(engine, zaptest.NewLogger(t))
	for _, spec := range catalog.Dimensions() {
		require.Equal(t, outcome.Success, reg.EnsureCollection(ctx, spec.Entity).Status)
	}
	syncer.Sync(ctx, catalog.Team, assetRows(
		table.Row{"id": int64(1), "team_name": "platform", "department": "engineering"},
		table.Row{"id": int64(2), "team_name": "data", "department": "analytics"},
	))
	syncer.Sync(ctx, catalog.Provider, assetRows(
		table.Row{"id": int64(1), "provider_name": "platformco"},
	))
	syncer.Sync(ctx, catalog.Asset, assetRows(
		table.Row{"id": int64(4), "serial_number": "RES-AB12-CD34", "resource_name": "platform db"},
	))
	return engine, reg
}

func TestGlobalTagsEntities(t *testing.T) {
	engine, reg := seed(t)
	s := NewSearcher(engine, reg, zaptest.NewLogger(t))

	hits, err := s.Global(context.Background(), "plat")
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, []string{"asset", "provider", "team"}, Entities(hits))
	for _, h := range hits {
		assert.Equal(t, h.Entity, h.Document[EntityTag])
	}
	assert.Equal(t, "4", hits[0].ID)
}

func TestGlobalIsBestEffort(t *testing.T) {
	engine, reg := seed(t)
	s := NewSearcher(engine, reg, zaptest.NewLogger(t))

	engine.FailSearch["provider"] = errors.New("shard unavailable")
	hits, err := s.Global(context.Background(), "plat")
	require.NoError(t, err)
	assert.Equal(t, []string{"asset", "team"}, Entities(hits))

	engine.FailMulti = errors.New("connection refused")
	_, err = s.Global(context.Background(), "plat")
	assert.Error(t, err)
}

func TestSearchWithFilter(t *testing.T) {
	engine, reg := seed(t)
	s := NewSearcher(engine, reg, zaptest.NewLogger(t))
	ctx := context.Background()

	hits, err := s.Query(ctx, "team", "department:Analytics")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Data", hits[0].Document["team_name"])

	_, err = s.Search(ctx, "unknown", "x", "")
	assert.True(t, errors.Is(err, internalerr.ErrInvalidInput))
}

func TestParseQuery(t *testing.T) {
	q := ParseQuery(catalog.Team, `platform department:"Site Reliability" lead_email:x@y.z`)
	assert.Equal(t, "platform lead_email:x@y.z", q.Text)
	assert.Equal(t, "department:=`Site Reliability`", q.Filter)

	q = ParseQuery(catalog.Environment, "is_ephemeral:true Tier:Standard")
	assert.Equal(t, "", q.Text)
	assert.Equal(t, "is_ephemeral:=true && tier:=`Standard`", q.Filter)
}
