// Package warehouse writes fact and dimension rows into the dimensional
// schema with insert-or-update semantics.
//
// Two engines implement Store: PostgresStore (pgx) for the real warehouse
// and SQLiteStore (modernc.org/sqlite) for embedded runs and tests. Both
// report per row whether the upsert created or replaced a row; the writer
// never checks for existence before writing.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Dialect names a SQL engine.
type Dialect string

// Supported dialects.
const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Action is what an upsert did to one row.
type Action int

const (
	// ActionInserted means the conflict key was new.
	ActionInserted Action = iota + 1
	// ActionUpdated means an existing row was overwritten.
	ActionUpdated
)

func (a Action) String() string {
	switch a {
	case ActionInserted:
		return "inserted"
	case ActionUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// Row is a scannable result row.
type Row interface {
	Scan(dest ...any) error
}

// Tx is one write transaction.
type Tx interface {
	// Upsert writes values (in t.Columns order) into schema.t and reports
	// whether the row was inserted or updated.
	Upsert(ctx context.Context, schema string, t Table, values []any) (Action, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is a relational warehouse connection.
type Store interface {
	Dialect() Dialect
	Begin(ctx context.Context) (Tx, error)
	// Query runs a read query and calls scan once per result row.
	Query(ctx context.Context, query string, args []any, scan func(Row) error) error
	// Exec runs a statement outside any explicit transaction.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Close() error
}

// ErrInvalidTable indicates an unusable upsert target description.
var ErrInvalidTable = errors.New("invalid table definition")

// Table describes an upsert target. Columns fixes the value order of every
// row; ConflictKey is the subset that identifies a row.
type Table struct {
	Name        string
	Columns     []string
	ConflictKey []string
}

// Validate checks that the conflict key is a proper subset of the columns.
func (t Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTable)
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("%w: %s has no columns", ErrInvalidTable, t.Name)
	}
	if len(t.ConflictKey) == 0 {
		return fmt.Errorf("%w: %s has no conflict key", ErrInvalidTable, t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if seen[c] {
			return fmt.Errorf("%w: %s has duplicate column %q", ErrInvalidTable, t.Name, c)
		}
		seen[c] = true
	}
	for _, k := range t.ConflictKey {
		if !seen[k] {
			return fmt.Errorf("%w: %s conflict key %q is not a column", ErrInvalidTable, t.Name, k)
		}
	}
	if len(t.UpdateColumns()) == 0 {
		return fmt.Errorf("%w: %s has no columns outside the conflict key", ErrInvalidTable, t.Name)
	}
	return nil
}

// UpdateColumns returns the columns overwritten on conflict: every column
// that is not part of the conflict key.
func (t Table) UpdateColumns() []string {
	key := make(map[string]bool, len(t.ConflictKey))
	for _, k := range t.ConflictKey {
		key[k] = true
	}
	var out []string
	for _, c := range t.Columns {
		if !key[c] {
			out = append(out, c)
		}
	}
	return out
}

func (t Table) index(col string) int {
	for i, c := range t.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

// Qualified renders "schema"."name" with both parts quoted. The same
// quoting is valid for Postgres and SQLite.
func Qualified(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func quoteList(cols []string) string {
	q := make([]string, len(cols))
	for i, c := range cols {
		q[i] = quoteIdent(c)
	}
	return strings.Join(q, ", ")
}
