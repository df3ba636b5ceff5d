package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse warehouse DSN: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect warehouse: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping warehouse: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Dialect returns DialectPostgres.
func (s *PostgresStore) Dialect() Dialect { return DialectPostgres }

// Begin opens a transaction.
func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &pgTx{tx: tx, stmts: make(map[string]string)}, nil
}

// Query runs a read query on the pool.
func (s *PostgresStore) Query(ctx context.Context, query string, args []any, scan func(Row) error) error {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate rows: %w", err)
	}
	return nil
}

// Exec runs a single statement.
func (s *PostgresStore) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type pgTx struct {
	tx    pgx.Tx
	stmts map[string]string
}

// Upsert relies on xmax: a freshly inserted row version has xmax = 0, a row
// rewritten by ON CONFLICT DO UPDATE carries the updating transaction id.
func (t *pgTx) Upsert(ctx context.Context, schema string, tbl Table, values []any) (Action, error) {
	cacheKey := schema + "." + tbl.Name
	q, ok := t.stmts[cacheKey]
	if !ok {
		q = postgresUpsertSQL(schema, tbl)
		t.stmts[cacheKey] = q
	}

	var inserted bool
	if err := t.tx.QueryRow(ctx, q, values...).Scan(&inserted); err != nil {
		return 0, err
	}
	if inserted {
		return ActionInserted, nil
	}
	return ActionUpdated, nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func postgresUpsertSQL(schema string, t Table) string {
	placeholders := make([]string, len(t.Columns))
	for i := range t.Columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	updates := t.UpdateColumns()
	sets := make([]string, len(updates))
	for i, c := range updates {
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", quoteIdent(c), quoteIdent(c))
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s RETURNING (xmax = 0)",
		Qualified(schema, t.Name),
		quoteList(t.Columns),
		strings.Join(placeholders, ", "),
		quoteList(t.ConflictKey),
		strings.Join(sets, ", "),
	)
}
