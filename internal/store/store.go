// Package store records pipeline runs and their results.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/labormarket/internal/classify"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one invocation of a pipeline job (graph, cluster, fill, model, fetch).
type Run struct {
	ID        string             `json:"id"`
	Job       string             `json:"job"`
	Params    map[string]string  `json:"params,omitempty"`
	Status    RunStatus          `json:"status"`
	Stats     map[string]float64 `json:"stats,omitempty"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Job   string `json:"job,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// CountyRegion is one regionalized county saved with a model run.
type CountyRegion struct {
	FIPS      string
	County    string
	Latitude  float64
	Longitude float64
	Class     int
	AreaName  string
}

// Store defines the persistence interface for run bookkeeping.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, job string, params map[string]string) (*Run, error)
	CompleteRun(ctx context.Context, runID string, stats map[string]float64) error
	FailRun(ctx context.Context, runID string, runErr error) error
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// Results
	SaveModelScores(ctx context.Context, runID string, scores []classify.ModelScore) error
	SaveCountyRegions(ctx context.Context, runID string, rows []CountyRegion) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

// Open returns the Store for driver: "sqlite", "postgres" or "none".
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite":
		if dsn == "" {
			dsn = "labormarket.db"
		}
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, nil)
	case "none", "":
		return Noop{}, nil
	default:
		return nil, eris.Errorf("store: unsupported driver %q", driver)
	}
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// Noop discards everything. ListRuns returns no runs.
type Noop struct{}

func (Noop) CreateRun(_ context.Context, job string, params map[string]string) (*Run, error) {
	now := time.Now().UTC()
	return &Run{Job: job, Params: params, Status: RunStatusRunning, CreatedAt: now, UpdatedAt: now}, nil
}

func (Noop) CompleteRun(context.Context, string, map[string]float64) error {
	return nil
}

func (Noop) FailRun(context.Context, string, error) error {
	return nil
}

func (Noop) ListRuns(context.Context, RunFilter) ([]Run, error) {
	return nil, nil
}

func (Noop) SaveModelScores(context.Context, string, []classify.ModelScore) error {
	return nil
}

func (Noop) SaveCountyRegions(context.Context, string, []CountyRegion) error {
	return nil
}

func (Noop) Migrate(context.Context) error {
	return nil
}

func (Noop) Close() error {
	return nil
}
