package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// SQLiteStore is a Store on an embedded SQLite database. Each warehouse
// schema is an attached database, so "prod"."sales" resolves the same way
// it does in Postgres.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens an embedded warehouse. An empty dir or ":memory:" keeps
// everything in memory; otherwise dir holds main.db and one <schema>.db file
// per schema.
func OpenSQLite(ctx context.Context, dir string, schemas []string) (*SQLiteStore, error) {
	inMemory := dir == "" || dir == ":memory:"
	mainPath := ":memory:"
	if !inMemory {
		mainPath = filepath.Join(dir, "main.db")
	}

	db, err := sql.Open("sqlite", mainPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite warehouse: %w", err)
	}
	// Attachments and in-memory databases live on a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, schema := range schemas {
		file := ":memory:"
		if !inMemory {
			file = filepath.Join(dir, schema+".db")
		}
		stmt := fmt.Sprintf("ATTACH DATABASE '%s' AS %s", strings.ReplaceAll(file, "'", "''"), quoteIdent(schema))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("attach schema %s: %w", schema, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Dialect returns DialectSQLite.
func (s *SQLiteStore) Dialect() Dialect { return DialectSQLite }

// Begin opens a transaction.
func (s *SQLiteStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &sqliteTx{tx: tx}, nil
}

// Query runs a read query.
func (s *SQLiteStore) Query(ctx context.Context, query string, args []any, scan func(Row) error) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
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
func (s *SQLiteStore) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteTx struct {
	tx *sql.Tx
}

// Upsert inserts with ON CONFLICT DO NOTHING and, when that touched no row,
// rewrites the existing row. Both statements run inside the write
// transaction, which SQLite serialises, so no other writer can slip in
// between them.
func (t *sqliteTx) Upsert(ctx context.Context, schema string, tbl Table, values []any) (Action, error) {
	res, err := t.tx.ExecContext(ctx, sqliteInsertSQL(schema, tbl), values...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		return ActionInserted, nil
	}

	updates := tbl.UpdateColumns()
	args := make([]any, 0, len(updates)+len(tbl.ConflictKey))
	for _, c := range updates {
		args = append(args, values[tbl.index(c)])
	}
	for _, k := range tbl.ConflictKey {
		args = append(args, values[tbl.index(k)])
	}
	if _, err := t.tx.ExecContext(ctx, sqliteUpdateSQL(schema, tbl), args...); err != nil {
		return 0, err
	}
	return ActionUpdated, nil
}

func (t *sqliteTx) Commit(context.Context) error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return err
	}
	return nil
}

func sqliteInsertSQL(schema string, t Table) string {
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		Qualified(schema, t.Name),
		quoteList(t.Columns),
		strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)), ", "),
		quoteList(t.ConflictKey),
	)
}

func sqliteUpdateSQL(schema string, t Table) string {
	updates := t.UpdateColumns()
	sets := make([]string, len(updates))
	for i, c := range updates {
		sets[i] = quoteIdent(c) + " = ?"
	}
	where := make([]string, len(t.ConflictKey))
	for i, k := range t.ConflictKey {
		where[i] = quoteIdent(k) + " = ?"
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		Qualified(schema, t.Name),
		strings.Join(sets, ", "),
		strings.Join(where, " AND "),
	)
}
