package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cognicore/medallion/pkg/medallion/catalog"
	"github.com/cognicore/medallion/pkg/medallion/extract"
	"github.com/cognicore/medallion/pkg/medallion/internalerr"
	"github.com/cognicore/medallion/pkg/medallion/metrics"
	"github.com/cognicore/medallion/pkg/medallion/objectstore/memstore"
	"github.com/cognicore/medallion/pkg/medallion/outcome"
	"github.com/cognicore/medallion/pkg/medallion/search"
	"github.com/cognicore/medallion/pkg/medallion/search/searchtest"
	"github.com/cognicore/medallion/pkg/medallion/warehouse"
	"github.com/cognicore/medallion/pkg/medallion/warehouse/sqlstore"
)

type fixture struct {
	wh       *sqlstore.Store
	objects  *memstore.Store
	engine   *searchtest.Engine
	registry *search.Registry
	orch     *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	wh, err := sqlstore.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "warehouse.db"), sqlstore.WithLogger(log))
	require.NoError(t, err)
	t.Cleanup(func() { wh.Close() })

	f := &fixture{wh: wh, objects: memstore.New(), engine: searchtest.New()}
	f.registry = search.NewRegistry(f.engine, catalog.Dimensions(), log)

	// PDFs in these tests are plain text
	extractor := extract.New(log, "", extract.WithPDFText(func(b []byte) (string, error) { return string(b), nil }))

	f.orch, err = New(Options{
		Warehouse:     wh,
		Objects:       f.objects,
		Extractor:     extractor,
		Registry:      f.registry,
		Syncer:        search.NewSyncer(f.engine, log),
		Prefix:        "raw",
		Workers:       3,
		CalendarStart: 2024,
		CalendarEnd:   2024,
		RefreshViews:  true,
		Logger:        log,
		Metrics:       metrics.New(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) put(key, data string) { f.objects.Put(key, []byte(data)) }

func (f *fixture) seedSources() {
	f.put("raw/.emptyFolderPlaceholder", "")
	f.put("raw/assets_2024_05_01.csv", "serial_number,resource_name,created_at\nRES-AB12-CD34,  prod db  ,2024-01-15\n")
	f.put("raw/teams.json", `[
		{"team_name": "Platform", "department": "Engineering", "lead_email": "lead@corp.example"},
		{"team_name": "Data", "department": "Analytics", "lead_email": "not-an-email"}
	]`)
	f.put("raw/regions.html", `<html><body><table>
		<tr><th>Region Code</th><th>Display Name</th><th>Continent</th></tr>
		<tr><td>us-east-1</td><td>US East</td><td>North America</td></tr>
	</table></body></html>`)
	f.put("raw/report.pdf", "Quarterly summary\nno table in this document\n")
	f.put("raw/notes.txt", "free text")
	f.put("raw/metric_entries.csv", strings.Join([]string{
		"action,asset_id,date_id,cpu_usage_avg,memory_usage_avg,hourly_cost,uptime_seconds",
		"UPSERT,1,20240115,5.5,20,0.125,86400",
		",1,20240116,50,40,0.5,86400",
		"DELETE,7,20240101,,,,",
	}, "\n"))
}

func dimension(t *testing.T, res Result, entity string) DimensionResult {
	t.Helper()
	for _, d := range res.Dimensions {
		if d.Entity == entity {
			return d
		}
	}
	t.Fatalf("no result for %s", entity)
	return DimensionResult{}
}

func TestRunEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.seedSources()
	ctx := context.Background()

	res := f.orch.Run(ctx)
	require.Equal(t, StatusSuccess, res.Status, res.Message)
	assert.Equal(t, StateDone, res.State)
	assert.NotEmpty(t, res.RunID)
	assert.Len(t, res.Stages, 7)

	// the placeholder is not a file
	assert.Len(t, res.Files, 6)
	assert.Equal(t, 4, res.Files.Count(outcome.Success))
	pdf, _ := res.Files.Find("raw/report.pdf")
	assert.Equal(t, outcome.Skipped, pdf.Status)
	txt, _ := res.Files.Find("raw/notes.txt")
	assert.Equal(t, "unsupported format", txt.Reason)
	assert.Equal(t, []string{"assets", "metric_entries", "regions", "teams"}, res.Staged)

	assert.Equal(t, 366, res.DatesSeeded)
	require.Len(t, res.Dimensions, len(catalog.Dimensions()))
	assert.Equal(t, outcome.Skipped, dimension(t, res, "provider").Outcome.Status)

	teams := dimension(t, res, "team")
	assert.Equal(t, outcome.Success, teams.Outcome.Status)
	assert.Equal(t, 2, teams.Upserted)
	assert.Equal(t, search.SyncResult{Entity: "team", Indexed: 1, Invalid: 1}, teams.Sync)

	assert.True(t, res.FactsLoaded)
	assert.Equal(t, warehouse.FactResult{Upserted: 2, Missing: 1}, res.Facts)

	assert.Len(t, f.engine.Documents("asset"), 1)
	assert.Len(t, f.engine.Documents("region"), 1)
	doc := f.engine.Documents("asset")["1"]
	assert.Equal(t, "Prod Db", doc["resource_name"])

	runs, err := f.wh.Runs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
	assert.Equal(t, StatusSuccess, runs[0].Status)

	hits, err := search.NewSearcher(f.engine, f.registry, nil).Global(ctx, "prod")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "asset", hits[0].Document[search.EntityTag])
}

func TestRunIsRepeatable(t *testing.T) {
	f := newFixture(t)
	f.seedSources()
	ctx := context.Background()

	first := f.orch.Run(ctx)
	require.Equal(t, StatusSuccess, first.Status, first.Message)

	f.put("raw/assets_2024_05_01.csv", "serial_number,resource_name\nRES-AB12-CD34,prod db v2\n")
	second := f.orch.Run(ctx)
	require.Equal(t, StatusSuccess, second.Status, second.Message)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, 3, second.Collections.Count(outcome.Success), "collections from the first run dropped")

	rows, err := f.wh.ReadDimension(ctx, catalog.Asset, warehouse.ReadOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, rows.Len())
	assert.Equal(t, "prod db v2", rows.Rows[0]["resource_name"])

	n, err := f.wh.CountDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(366), n)

	runs, err := f.wh.Runs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestListingFailureStopsRun(t *testing.T) {
	f := newFixture(t)
	f.objects.FailList(errors.New("bucket unreachable"))

	res := f.orch.Run(context.Background())
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, StateBronze, res.State)
	assert.Contains(t, res.Message, "BRONZE_INGEST")
	assert.Contains(t, res.Message, "bucket unreachable")
}

func TestDownloadFailureSkipsFile(t *testing.T) {
	f := newFixture(t)
	f.seedSources()
	f.objects.FailGet("raw/teams.json", errors.New("timeout"))

	res := f.orch.Run(context.Background())
	require.Equal(t, StatusSuccess, res.Status, res.Message)
	o, _ := res.Files.Find("raw/teams.json")
	assert.Equal(t, outcome.Skipped, o.Status)
	assert.Equal(t, outcome.Skipped, dimension(t, res, "team").Outcome.Status)
}

func TestWarehouseErrorFailsRun(t *testing.T) {
	f := newFixture(t)
	f.seedSources()
	f.put("raw/teams.json", `[{"team_name": "Platform"}, {"department": "Orphans"}]`)

	res := f.orch.Run(context.Background())
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, StateDimensions, res.State)
	assert.Contains(t, res.Message, "team")
	assert.False(t, res.FactsLoaded)

	rows, err := f.wh.ReadDimension(context.Background(), catalog.Team, warehouse.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, rows.Len(), "failed batch rolled back")

	runs, err := f.wh.Runs(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, StatusError, runs[0].Status)
}

func TestMalformedFactBatchFailsRun(t *testing.T) {
	f := newFixture(t)
	f.seedSources()
	f.put("raw/metric_entries.csv", "action,asset_id,date_id,cpu_usage_avg\nUPSERT,1,20240115,5\nMERGE,2,20240115,5\n")

	res := f.orch.Run(context.Background())
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, StateFacts, res.State)
	assert.Contains(t, res.Message, "MERGE")

	rows, err := f.wh.ReadDimension(context.Background(), catalog.Asset, warehouse.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, rows.Len(), "dimensions committed before facts")
}

func TestSearchOutageDoesNotFailRun(t *testing.T) {
	f := newFixture(t)
	f.seedSources()
	f.engine.FailCreate["asset"] = errors.New("connection refused")
	f.engine.FailUpsert["team"] = errors.New("connection refused")

	res := f.orch.Run(context.Background())
	require.Equal(t, StatusSuccess, res.Status, res.Message)

	asset := dimension(t, res, "asset")
	assert.Equal(t, outcome.Failed, asset.Collection.Status)
	assert.Equal(t, 1, asset.Upserted)
	assert.Equal(t, outcome.Failed, dimension(t, res, "team").Sync.Outcome().Status)
}

func TestCanceledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.orch.Run(ctx)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, StateReset, res.State)
	assert.Contains(t, res.Message, context.Canceled.Error())
}

func TestRetire(t *testing.T) {
	f := newFixture(t)
	f.seedSources()
	ctx := context.Background()
	require.Equal(t, StatusSuccess, f.orch.Run(ctx).Status)

	out, err := f.orch.Retire(ctx, "team", "  platform ")
	require.NoError(t, err)
	assert.True(t, out.Found)
	assert.True(t, out.Unindexed)
	assert.Equal(t, "Platform", out.Key)
	assert.NotContains(t, f.engine.Documents("team"), "1")

	out, err = f.orch.Retire(ctx, "team", "Platform")
	require.NoError(t, err)
	assert.False(t, out.Found)

	_, err = f.orch.Retire(ctx, "planet", "x")
	assert.True(t, errors.Is(err, internalerr.ErrInvalidInput))
	out, err = f.orch.Retire(ctx, "asset", "not-a-serial")
	require.NoError(t, err)
	assert.False(t, out.Found)
	_, err = f.orch.Retire(ctx, "team", "   ")
	assert.True(t, errors.Is(err, internalerr.ErrInvalidInput))
}

func TestRetireKeyBreakingDomainRules(t *testing.T) {
	f := newFixture(t)
	f.put("raw/teams.json", `[{"team_name": "X", "department": "Ops"}, {"team_name": "Platform"}]`)
	ctx := context.Background()
	require.Equal(t, StatusSuccess, f.orch.Run(ctx).Status)

	out, err := f.orch.Retire(ctx, "team", " X ")
	require.NoError(t, err)
	assert.True(t, out.Found)
	assert.Equal(t, "X", out.Key)

	rows, err := f.wh.ReadDimension(ctx, catalog.Team, warehouse.ReadOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, rows.Len())
	assert.Equal(t, "Platform", rows.Rows[0]["team_name"])
}

// panicEngine blows up on every document write to one collection.
type panicEngine struct {
	*searchtest.Engine
	collection string
}

func (e panicEngine) UpsertDocument(ctx context.Context, collection string, doc map[string]any) error {
	if collection == e.collection {
		panic("engine exploded")
	}
	return e.Engine.UpsertDocument(ctx, collection, doc)
}

func TestWorkerPanicFailsRun(t *testing.T) {
	f := newFixture(t)
	f.seedSources()
	log := zaptest.NewLogger(t)
	engine := panicEngine{Engine: f.engine, collection: "team"}

	orch, err := New(Options{
		Warehouse:     f.wh,
		Objects:       f.objects,
		Registry:      search.NewRegistry(engine, catalog.Dimensions(), log),
		Syncer:        search.NewSyncer(engine, log),
		Prefix:        "raw",
		Workers:       2,
		CalendarStart: 2024,
		CalendarEnd:   2024,
		Logger:        log,
	})
	require.NoError(t, err)

	var res Result
	require.NotPanics(t, func() { res = orch.Run(context.Background()) })
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, StateDimensions, res.State)
	assert.Contains(t, res.Message, "engine exploded")
	assert.Equal(t, outcome.Failed, dimension(t, res, "team").Outcome.Status)

	runs, err := f.wh.Runs(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, StatusError, runs[0].Status)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Options{})
	assert.True(t, errors.Is(err, internalerr.ErrInvalidConfig))
}
