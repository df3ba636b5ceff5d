package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/eunmann/salesetl/internal/logctx"
	"github.com/eunmann/salesetl/pkg/metrics"
)

// Result counts what one Write did.
type Result struct {
	Submitted int
	Inserted  int
	Updated   int
}

// Add accumulates o into r.
func (r *Result) Add(o Result) {
	r.Submitted += o.Submitted
	r.Inserted += o.Inserted
	r.Updated += o.Updated
}

// Writer upserts row batches.
type Writer struct{}

// NewWriter creates a Writer.
func NewWriter() *Writer { return &Writer{} }

// Write upserts rows into schema.t inside one transaction. Each row holds
// values in t.Columns order. Any row error rolls back the whole batch and
// nothing is counted. An empty batch opens no transaction.
func (w *Writer) Write(ctx context.Context, store Store, t Table, schema string, rows [][]any) (Result, error) {
	var res Result
	if len(rows) == 0 {
		log := logctx.FromContext(ctx)
		log.Warn().Str("schema", schema).Str("table", t.Name).Msg("no records to upsert")
		return res, nil
	}
	if err := t.Validate(); err != nil {
		return res, err
	}

	start := time.Now()
	tx, err := store.Begin(ctx)
	if err != nil {
		return res, err
	}

	var pending Result
	for i, row := range rows {
		if len(row) != len(t.Columns) {
			_ = tx.Rollback(ctx)
			return res, fmt.Errorf("%w: %s row %d has %d values, want %d",
				ErrInvalidTable, t.Name, i, len(row), len(t.Columns))
		}
		action, err := tx.Upsert(ctx, schema, t, row)
		if err != nil {
			_ = tx.Rollback(ctx)
			return res, fmt.Errorf("upsert %s.%s row %d: %w", schema, t.Name, i, err)
		}
		pending.Submitted++
		if action == ActionInserted {
			pending.Inserted++
		} else {
			pending.Updated++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return res, fmt.Errorf("commit %s.%s: %w", schema, t.Name, err)
	}
	res = pending

	metrics.RowsUpserted(t.Name, schema, ActionInserted.String(), res.Inserted)
	metrics.RowsUpserted(t.Name, schema, ActionUpdated.String(), res.Updated)

	log := logctx.FromContext(ctx)
	log.Info().
		Str("schema", schema).
		Str("table", t.Name).
		Int("submitted", res.Submitted).
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Dur("elapsed", time.Since(start)).
		Msg("upserted records")
	return res, nil
}

// WriteSchemas applies the same batch to each schema in order. A failure
// stops before later schemas; earlier schemas keep their committed rows.
// A retry overwrites them only when no conflict key column is NULL, since
// NULLs never conflict.
func (w *Writer) WriteSchemas(ctx context.Context, store Store, t Table, schemas []string, rows [][]any) (map[string]Result, error) {
	out := make(map[string]Result, len(schemas))
	for _, schema := range schemas {
		res, err := w.Write(ctx, store, t, schema, rows)
		if err != nil {
			return out, err
		}
		out[schema] = res
	}
	return out, nil
}
