package warehouse

import (
	"context"
	"time"

	"github.com/cognicore/medallion/pkg/medallion/catalog"
	"github.com/cognicore/medallion/pkg/medallion/table"
)

// Namespaces owned by the pipeline.
const (
	Bronze = "bronze"
	Silver = "silver"
	Gold   = "gold"
	// Ops holds the run log and survives Reset.
	Ops = "ops"
)

// Warehouse is the relational store behind the medallion layers.
type Warehouse interface {
	Close() error

	// Structure
	Reset(ctx context.Context) error
	Prepare(ctx context.Context, dims []catalog.DimensionSpec, fact catalog.FactSpec) error
	RefreshViews(ctx context.Context) error

	// Bronze
	ReplaceStaging(ctx context.Context, name string, b *table.Batch) error
	ReadStaging(ctx context.Context, name string) (*table.Batch, error)

	// Calendar
	CountDates(ctx context.Context) (int64, error)
	InsertDates(ctx context.Context, b *table.Batch) error

	// Silver
	UpsertDimension(ctx context.Context, spec catalog.DimensionSpec, b *table.Batch) (int, error)
	ReadDimension(ctx context.Context, spec catalog.DimensionSpec, opts ReadOptions) (*table.Batch, error)
	// RetireDimension soft-deletes the row with the business key and returns
	// its id, or found=false when no active row matched.
	RetireDimension(ctx context.Context, spec catalog.DimensionSpec, businessKey string) (id int64, found bool, err error)

	// Gold
	ApplyFacts(ctx context.Context, spec catalog.FactSpec, b *table.Batch) (FactResult, error)

	// Run log
	StartRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, run Run) error
	Runs(ctx context.Context, limit int) ([]Run, error)
}

// ReadOptions controls dimension reads.
type ReadOptions struct {
	// IncludeInactive returns soft-deleted rows too.
	IncludeInactive bool
}

// FactResult counts the effect of one CDC batch.
type FactResult struct {
	Upserted int
	Deleted  int
	// Missing counts deletes whose key was already absent.
	Missing int
}

// Run is one entry of the pipeline run log.
type Run struct {
	ID         string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
}
