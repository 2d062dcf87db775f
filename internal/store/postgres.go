package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/labormarket/internal/classify"
	"github.com/sells-group/labormarket/internal/db"
	"github.com/sells-group/labormarket/internal/tiger"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	job        TEXT NOT NULL,
	params     JSONB,
	status     TEXT NOT NULL DEFAULT 'running',
	stats      JSONB,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS model_scores (
	run_id TEXT NOT NULL REFERENCES runs(id),
	model  TEXT NOT NULL,
	score  DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, model)
);

CREATE TABLE IF NOT EXISTS county_regions (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	fips      TEXT NOT NULL,
	county    TEXT NOT NULL,
	latitude  DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL,
	class     INTEGER NOT NULL,
	area_name TEXT NOT NULL,
	geom      BYTEA,
	PRIMARY KEY (run_id, fips)
);

CREATE INDEX IF NOT EXISTS idx_runs_job ON runs(job);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_county_regions_class ON county_regions(run_id, class);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, job string, params map[string]string) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal params")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, job, params, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, job, paramsJSON, string(RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &Run{
		ID:        id,
		Job:       job,
		Params:    params,
		Status:    RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, stats map[string]float64) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET stats = $1, status = $2, updated_at = $3 WHERE id = $4`,
		statsJSON, string(RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, runErr error) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET error = $1, status = $2, updated_at = $3 WHERE id = $4`,
		errString(runErr), string(RunStatusFailed), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, job, COALESCE(params, '{}'::jsonb), status, COALESCE(stats, '{}'::jsonb), COALESCE(error, ''), created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Job != "" {
		query += fmt.Sprintf(` AND job = $%d`, argIdx)
		args = append(args, filter.Job)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var status string
		var paramsJSON, statsJSON []byte

		if err := rows.Scan(&r.ID, &r.Job, &paramsJSON, &status, &statsJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Status = RunStatus(status)
		if err := decodeRunJSON(&r, paramsJSON, statsJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

var modelScoreColumns = []string{"run_id", "model", "score"}

func (s *PostgresStore) SaveModelScores(ctx context.Context, runID string, scores []classify.ModelScore) error {
	_, err := db.CopyRows(ctx, s.pool, "model_scores", modelScoreColumns, scores, func(sc classify.ModelScore) ([]any, error) {
		return []any{runID, sc.Model, sc.Score}, nil
	})
	return eris.Wrap(err, "postgres: save model scores")
}

var countyRegionUpsert = db.UpsertConfig{
	Table:        "county_regions",
	Columns:      []string{"run_id", "fips", "county", "latitude", "longitude", "class", "area_name", "geom"},
	ConflictKeys: []string{"run_id", "fips"},
}

func (s *PostgresStore) SaveCountyRegions(ctx context.Context, runID string, regions []CountyRegion) error {
	_, err := db.UpsertRows(ctx, s.pool, countyRegionUpsert, regions, func(r CountyRegion) ([]any, error) {
		geom, err := tiger.EncodePoint(r.Latitude, r.Longitude)
		if err != nil {
			return nil, eris.Wrapf(err, "county %s", r.FIPS)
		}
		return []any{runID, r.FIPS, r.County, r.Latitude, r.Longitude, r.Class, r.AreaName, geom}, nil
	})
	return eris.Wrap(err, "postgres: save county regions")
}
