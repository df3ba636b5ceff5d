package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/eunmann/salesetl/internal/logctx"
)

// Seed inserts rows into schema.table when the table is empty. Empty cells
// are stored as NULL. It returns the number of rows inserted; a table that
// already holds rows is left untouched and reports zero.
func Seed(ctx context.Context, store Store, schema, table string, columns []string, rows [][]string) (int, error) {
	var existing int64
	err := store.Query(ctx, "SELECT COUNT(*) FROM "+Qualified(schema, table), nil, func(r Row) error {
		return r.Scan(&existing)
	})
	if err != nil {
		return 0, fmt.Errorf("count %s.%s: %w", schema, table, err)
	}
	log := logctx.FromContext(ctx)
	if existing > 0 {
		log.Info().Str("schema", schema).Str("table", table).Int64("rows", existing).Msg("table already seeded")
		return 0, nil
	}

	placeholders := make([]string, len(columns))
	for i := range columns {
		if store.Dialect() == DialectPostgres {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		} else {
			placeholders[i] = "?"
		}
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		Qualified(schema, table), quoteList(columns), strings.Join(placeholders, ", "))

	n := 0
	for i, row := range rows {
		if len(row) != len(columns) {
			return n, fmt.Errorf("%w: seed %s row %d has %d values, want %d", ErrInvalidTable, table, i, len(row), len(columns))
		}
		args := make([]any, len(row))
		for j, v := range row {
			if v != "" {
				args[j] = v
			}
		}
		if _, err := store.Exec(ctx, stmt, args...); err != nil {
			return n, fmt.Errorf("seed %s.%s row %d: %w", schema, table, i, err)
		}
		n++
	}
	log.Info().Str("schema", schema).Str("table", table).Int("rows", n).Msg("table seeded")
	return n, nil
}
