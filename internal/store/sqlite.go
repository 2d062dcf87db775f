package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/labormarket/internal/classify"
	"github.com/sells-group/labormarket/internal/tiger"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	job        TEXT NOT NULL,
	params     TEXT,
	status     TEXT NOT NULL DEFAULT 'running',
	stats      TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS model_scores (
	run_id TEXT NOT NULL REFERENCES runs(id),
	model  TEXT NOT NULL,
	score  REAL NOT NULL,
	PRIMARY KEY (run_id, model)
);

CREATE TABLE IF NOT EXISTS county_regions (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	fips      TEXT NOT NULL,
	county    TEXT NOT NULL,
	latitude  REAL NOT NULL,
	longitude REAL NOT NULL,
	class     INTEGER NOT NULL,
	area_name TEXT NOT NULL,
	geom      BLOB,
	PRIMARY KEY (run_id, fips)
);

CREATE INDEX IF NOT EXISTS idx_runs_job ON runs(job);
CREATE INDEX IF NOT EXISTS idx_county_regions_class ON county_regions(run_id, class);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, job string, params map[string]string) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal params")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, job, params, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, job, string(paramsJSON), string(RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, stats map[string]float64) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET stats = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(statsJSON), string(RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, runErr error) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET error = ?, status = ?, updated_at = ? WHERE id = ?`,
		errString(runErr), string(RunStatusFailed), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, job, params, status, stats, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Job != "" {
		query += ` AND job = ?`
		args = append(args, filter.Job)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveModelScores(ctx context.Context, runID string, scores []classify.ModelScore) error {
	return s.inTx(ctx, "model scores", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO model_scores (run_id, model, score) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, sc := range scores {
			if _, err := stmt.ExecContext(ctx, runID, sc.Model, sc.Score); err != nil {
				return eris.Wrapf(err, "model %s", sc.Model)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) SaveCountyRegions(ctx context.Context, runID string, rows []CountyRegion) error {
	return s.inTx(ctx, "county regions", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO county_regions
			 (run_id, fips, county, latitude, longitude, class, area_name, geom)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rows {
			geom, err := tiger.EncodePoint(r.Latitude, r.Longitude)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, runID, r.FIPS, r.County, r.Latitude, r.Longitude, r.Class, r.AreaName, geom); err != nil {
				return eris.Wrapf(err, "county %s", r.FIPS)
			}
		}
		return nil
	})
}

// CountyRegions returns the counties saved with a run, ordered by FIPS.
func (s *SQLiteStore) CountyRegions(ctx context.Context, runID string) ([]CountyRegion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fips, county, geom, class, area_name FROM county_regions WHERE run_id = ? ORDER BY fips`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: county regions")
	}
	defer rows.Close()

	var out []CountyRegion
	for rows.Next() {
		var r CountyRegion
		var geom []byte
		if err := rows.Scan(&r.FIPS, &r.County, &geom, &r.Class, &r.AreaName); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan county region")
		}
		if r.Latitude, r.Longitude, err = tiger.DecodePoint(geom); err != nil {
			return nil, eris.Wrapf(err, "sqlite: county %s", r.FIPS)
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: county regions iterate")
}

func (s *SQLiteStore) inTx(ctx context.Context, what string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "sqlite: begin %s", what)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return eris.Wrapf(err, "sqlite: save %s", what)
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit %s", what)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var r Run
	var paramsJSON, statsJSON, errMsg sql.NullString

	err := row.Scan(&r.ID, &r.Job, &paramsJSON, &r.Status, &statsJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := decodeRunJSON(&r, []byte(paramsJSON.String), []byte(statsJSON.String)); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.Error = errMsg.String
	return &r, nil
}

func decodeRunJSON(r *Run, params, stats []byte) error {
	if len(params) > 0 {
		if err := json.Unmarshal(params, &r.Params); err != nil {
			return eris.Wrap(err, "unmarshal params")
		}
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &r.Stats); err != nil {
			return eris.Wrap(err, "unmarshal stats")
		}
	}
	return nil
}
