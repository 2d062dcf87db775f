package db

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig describes the target of UpsertRows.
type UpsertConfig struct {
	Table        string   // optionally schema-qualified
	Columns      []string // columns supplied by each row
	ConflictKeys []string // the unique constraint rows collide on
	UpdateCols   []string // overwritten on conflict; nil means every non-key column
}

func (c UpsertConfig) validate() error {
	switch {
	case len(c.Columns) == 0:
		return eris.Errorf("db: upsert %s: no columns", c.Table)
	case len(c.ConflictKeys) == 0:
		return eris.Errorf("db: upsert %s: no conflict keys", c.Table)
	}
	return nil
}

func (c UpsertConfig) updateCols() []string {
	if c.UpdateCols != nil {
		return c.UpdateCols
	}
	var cols []string
	for _, col := range c.Columns {
		if !slices.Contains(c.ConflictKeys, col) {
			cols = append(cols, col)
		}
	}
	return cols
}

// UpsertRows writes items into cfg.Table, replacing rows that collide on
// cfg.ConflictKeys. Rows are copied into a transaction-scoped staging table
// and merged with a single INSERT ... ON CONFLICT.
func UpsertRows[T any](ctx context.Context, pool Pool, cfg UpsertConfig, items []T, row RowFunc[T]) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	if err := cfg.validate(); err != nil {
		return 0, err
	}
	rows, err := buildRows(items, row)
	if err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: begin", cfg.Table)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	staging := pgx.Identifier{stagingTable(cfg.Table)}
	target := identifier(cfg.Table).Sanitize()

	create := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP", staging.Sanitize(), target)
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: create staging table", cfg.Table)
	}
	if _, err := tx.CopyFrom(ctx, staging, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: copy into staging table", cfg.Table)
	}

	tag, err := tx.Exec(ctx, mergeSQL(target, staging.Sanitize(), cfg.Columns, cfg.ConflictKeys, cfg.updateCols()))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: merge", cfg.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: commit", cfg.Table)
	}
	return tag.RowsAffected(), nil
}

func stagingTable(table string) string {
	return "_stage_" + strings.ReplaceAll(table, ".", "_")
}

func mergeSQL(target, staging string, columns, keys, updates []string) string {
	cols := quoteAndJoin(columns)

	action := "DO NOTHING"
	if len(updates) > 0 {
		set := make([]string, len(updates))
		for i, col := range updates {
			q := pgx.Identifier{col}.Sanitize()
			set[i] = q + " = EXCLUDED." + q
		}
		action = "DO UPDATE SET " + strings.Join(set, ", ")
	}

	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		target, cols, cols, staging, quoteAndJoin(keys), action)
}
