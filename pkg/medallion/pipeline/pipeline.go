// Package pipeline runs the medallion ETL: it lands source files in bronze,
// seeds the calendar, upserts the silver dimensions and keeps their search
// collections in step, then applies the fact CDC stream to gold.
package pipeline

import (
	"context"
	"crypto/rand"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/cognicore/medallion/pkg/medallion/calendar"
	"github.com/cognicore/medallion/pkg/medallion/catalog"
	"github.com/cognicore/medallion/pkg/medallion/extract"
	"github.com/cognicore/medallion/pkg/medallion/internalerr"
	"github.com/cognicore/medallion/pkg/medallion/metrics"
	"github.com/cognicore/medallion/pkg/medallion/objectstore"
	"github.com/cognicore/medallion/pkg/medallion/outcome"
	"github.com/cognicore/medallion/pkg/medallion/search"
	"github.com/cognicore/medallion/pkg/medallion/warehouse"
)

// Error is the class of pipeline errors.
var Error = errs.Class("pipeline")

// State is a step of a run.
type State string

const (
	StateReset      State = "RESET"
	StatePrepare    State = "PREPARE"
	StateBronze     State = "BRONZE_INGEST"
	StateCalendar   State = "CALENDAR_SEED"
	StateDimensions State = "DIMENSION_SYNC"
	StateFacts      State = "FACT_CDC"
	StateViews      State = "VIEW_REFRESH"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Options is the dependency set of an Orchestrator. It is built once and
// shared by every run.
type Options struct {
	Warehouse warehouse.Warehouse
	Objects   objectstore.Store
	Extractor *extract.Extractor
	Registry  *search.Registry
	Syncer    *search.Syncer

	// Dimensions defaults to catalog.Dimensions(), Fact to catalog.Metrics.
	Dimensions []catalog.DimensionSpec
	Fact       catalog.FactSpec

	// Prefix is the object store prefix holding the source files.
	Prefix        string
	Workers       int
	CalendarStart int
	CalendarEnd   int
	RefreshViews  bool

	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Stage is the timing of one state.
type Stage struct {
	State    State
	Duration time.Duration
}

// DimensionResult is what one entity went through.
type DimensionResult struct {
	Entity     string
	Upserted   int
	Collection outcome.Outcome
	Sync       search.SyncResult
	Outcome    outcome.Outcome
}

// Result describes a finished run.
type Result struct {
	RunID   string
	Status  string
	Message string
	// State is DONE on success, otherwise the state that failed.
	State  State
	Stages []Stage

	Files       outcome.List
	Collections outcome.List
	Staged      []string
	DatesSeeded int
	Dimensions  []DimensionResult
	Facts       warehouse.FactResult
	FactsLoaded bool
}

// Orchestrator drives runs. Runs on one orchestrator are serialized.
type Orchestrator struct {
	opts Options
	log  *zap.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New checks the dependency set and fills defaults.
func New(opts Options) (*Orchestrator, error) {
	var missing []string
	if opts.Warehouse == nil {
		missing = append(missing, "warehouse")
	}
	if opts.Objects == nil {
		missing = append(missing, "object store")
	}
	if opts.Registry == nil {
		missing = append(missing, "search registry")
	}
	if opts.Syncer == nil {
		missing = append(missing, "search syncer")
	}
	if len(missing) > 0 {
		return nil, Error.Wrap(fmt.Errorf("%w: missing %v", internalerr.ErrInvalidConfig, missing))
	}

	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Extractor == nil {
		opts.Extractor = extract.New(opts.Logger, "")
	}
	if len(opts.Dimensions) == 0 {
		opts.Dimensions = catalog.Dimensions()
	}
	if opts.Fact.Table == "" {
		opts.Fact = catalog.Metrics
	}
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if opts.CalendarStart == 0 && opts.CalendarEnd == 0 {
		opts.CalendarStart, opts.CalendarEnd = 2023, 2026
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		opts:    opts,
		log:     opts.Logger.Named("pipeline"),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

type step struct {
	state State
	run   func(ctx context.Context, r *run) error
}

// run carries the state of one execution between steps.
type run struct {
	res    *Result
	landed map[string]bool
}

// Run executes one full pipeline run. It never panics and never returns an
// error: the outcome is in Result.Status and Result.Message.
func (o *Orchestrator) Run(ctx context.Context) (res Result) {
	o.mu.Lock()
	defer o.mu.Unlock()

	started := o.opts.Now()
	res.RunID = ulid.MustNew(ulid.Timestamp(started), o.entropy).String()
	log := o.log.With(zap.String("run", res.RunID))
	r := &run{res: &res, landed: make(map[string]bool)}

	if err := o.opts.Warehouse.StartRun(ctx, warehouse.Run{ID: res.RunID, StartedAt: started}); err != nil {
		log.Warn("run log start failed", zap.Error(err))
	}

	defer func() {
		if p := recover(); p != nil {
			o.fail(&res, Error.New("panic in %s: %v", res.State, p))
		}
		finished := o.opts.Now()
		o.opts.Metrics.Run(res.Status, finished)
		// the run log must be written even when ctx was canceled
		logCtx := context.WithoutCancel(ctx)
		if err := o.opts.Warehouse.FinishRun(logCtx, warehouse.Run{
			ID: res.RunID, FinishedAt: finished, Status: res.Status, Message: res.Message,
		}); err != nil {
			log.Warn("run log finish failed", zap.Error(err))
		}
		if res.Status == StatusSuccess {
			log.Info("run finished", zap.String("message", res.Message))
		} else {
			log.Error("run failed", zap.String("state", string(res.State)), zap.String("message", res.Message))
		}
	}()

	steps := []step{
		{StateReset, o.reset},
		{StatePrepare, o.prepare},
		{StateBronze, o.ingest},
		{StateCalendar, o.seedCalendar},
		{StateDimensions, o.syncDimensions},
		{StateFacts, o.applyFacts},
	}
	if o.opts.RefreshViews {
		steps = append(steps, step{StateViews, o.refreshViews})
	}

	for _, s := range steps {
		res.State = s.state
		if err := ctx.Err(); err != nil {
			o.fail(&res, err)
			return res
		}
		t0 := time.Now()
		err := s.run(ctx, r)
		d := time.Since(t0)
		res.Stages = append(res.Stages, Stage{State: s.state, Duration: d})
		o.opts.Metrics.Stage(string(s.state), d)
		if err != nil {
			o.fail(&res, err)
			return res
		}
		log.Debug("state done", zap.String("state", string(s.state)), zap.Duration("took", d))
	}

	res.State = StateDone
	res.Status = StatusSuccess
	res.Message = summarize(&res)
	return res
}

func (o *Orchestrator) fail(res *Result, err error) {
	res.Status = StatusError
	res.Message = fmt.Sprintf("%s: %v", res.State, err)
}

func summarize(res *Result) string {
	dims := 0
	for _, d := range res.Dimensions {
		if d.Outcome.Status == outcome.Success {
			dims++
		}
	}
	return fmt.Sprintf("files: %s; dimensions synced: %d/%d; facts upserted %d, deleted %d",
		res.Files.Summary(), dims, len(res.Dimensions), res.Facts.Upserted, res.Facts.Deleted)
}

func (o *Orchestrator) reset(ctx context.Context, r *run) error {
	o.opts.Registry.BeginRun()
	if err := o.opts.Warehouse.Reset(ctx); err != nil {
		return err
	}
	r.res.Collections = o.opts.Registry.DropAll(ctx)
	return nil
}

func (o *Orchestrator) prepare(ctx context.Context, r *run) error {
	return o.opts.Warehouse.Prepare(ctx, o.opts.Dimensions, o.opts.Fact)
}

func (o *Orchestrator) seedCalendar(ctx context.Context, r *run) error {
	n, err := o.opts.Warehouse.CountDates(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		o.log.Debug("calendar already seeded", zap.Int64("days", n))
		return nil
	}
	b := calendar.Generate(o.opts.CalendarStart, o.opts.CalendarEnd)
	if err := o.opts.Warehouse.InsertDates(ctx, b); err != nil {
		return err
	}
	r.res.DatesSeeded = b.Len()
	o.log.Info("calendar seeded", zap.Int("days", b.Len()))
	return nil
}

func (o *Orchestrator) refreshViews(ctx context.Context, r *run) error {
	return o.opts.Warehouse.RefreshViews(ctx)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
