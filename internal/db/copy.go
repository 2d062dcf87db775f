package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// RowFunc maps one item to its column values, in column order.
type RowFunc[T any] func(T) ([]any, error)

func buildRows[T any](items []T, row RowFunc[T]) ([][]any, error) {
	rows := make([][]any, len(items))
	for i, item := range items {
		values, err := row(item)
		if err != nil {
			return nil, eris.Wrapf(err, "db: build row %d", i)
		}
		rows[i] = values
	}
	return rows, nil
}

// CopyRows inserts items into table with the COPY protocol and returns the
// number of rows copied. table may be schema-qualified.
func CopyRows[T any](ctx context.Context, pool Pool, table string, columns []string, items []T, row RowFunc[T]) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	rows, err := buildRows(items, row)
	if err != nil {
		return 0, err
	}

	n, err := pool.CopyFrom(ctx, identifier(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: copy into %s", table)
	}
	return n, nil
}
