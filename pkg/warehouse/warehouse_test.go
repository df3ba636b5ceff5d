package warehouse

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

var schemas = []string{"prod", "playground"}

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	store, err := OpenSQLite(ctx, "", schemas)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	for _, s := range schemas {
		if err := ApplySchema(ctx, store, s); err != nil {
			t.Fatalf("ApplySchema(%s): %v", s, err)
		}
	}
	return store
}

var salesTable = Table{
	Name:        TableSales,
	Columns:     []string{"tmstmp", "customer_id", "total_amount", "sales_channel"},
	ConflictKey: []string{"customer_id", "tmstmp"},
}

func saleRow(ts time.Time, customer int64, amount float64) []any {
	return []any{ts, customer, amount, "Online"}
}

func count(t *testing.T, store Store, schema, table string) int {
	t.Helper()
	var n int
	err := store.Query(context.Background(), "SELECT COUNT(*) FROM "+Qualified(schema, table), nil, func(r Row) error {
		return r.Scan(&n)
	})
	if err != nil {
		t.Fatalf("count %s.%s: %v", schema, table, err)
	}
	return n
}

func TestTable_Validate(t *testing.T) {
	tests := []struct {
		name  string
		table Table
		ok    bool
	}{
		{"valid", salesTable, true},
		{"no name", Table{Columns: []string{"a", "b"}, ConflictKey: []string{"a"}}, false},
		{"no key", Table{Name: "t", Columns: []string{"a"}}, false},
		{"key not a column", Table{Name: "t", Columns: []string{"a", "b"}, ConflictKey: []string{"c"}}, false},
		{"duplicate column", Table{Name: "t", Columns: []string{"a", "a"}, ConflictKey: []string{"a"}}, false},
		{"nothing to update", Table{Name: "t", Columns: []string{"a"}, ConflictKey: []string{"a"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate() = %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidTable) {
				t.Fatalf("Validate() = %v, want ErrInvalidTable", err)
			}
		})
	}
}

func TestPostgresUpsertSQL(t *testing.T) {
	got := postgresUpsertSQL("prod", salesTable)
	want := `INSERT INTO "prod"."sales" ("tmstmp", "customer_id", "total_amount", "sales_channel") ` +
		`VALUES ($1, $2, $3, $4) ON CONFLICT ("customer_id", "tmstmp") ` +
		`DO UPDATE SET "total_amount" = EXCLUDED."total_amount", "sales_channel" = EXCLUDED."sales_channel" ` +
		`RETURNING (xmax = 0)`
	if got != want {
		t.Errorf("postgresUpsertSQL\n got: %s\nwant: %s", got, want)
	}
}

func TestSQLiteStatements(t *testing.T) {
	ins := sqliteInsertSQL("playground", salesTable)
	if !strings.HasSuffix(ins, `VALUES (?, ?, ?, ?) ON CONFLICT ("customer_id", "tmstmp") DO NOTHING`) {
		t.Errorf("insert = %s", ins)
	}
	upd := sqliteUpdateSQL("playground", salesTable)
	want := `UPDATE "playground"."sales" SET "total_amount" = ?, "sales_channel" = ? WHERE "customer_id" = ? AND "tmstmp" = ?`
	if upd != want {
		t.Errorf("update\n got: %s\nwant: %s", upd, want)
	}
}

func TestWriter_InsertThenUpdate(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	w := NewWriter()
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	res, err := w.Write(ctx, store, salesTable, "prod", [][]any{saleRow(ts, 1, 50)})
	if err != nil {
		t.Fatalf("first Write: %v", err)
	}
	if res != (Result{Submitted: 1, Inserted: 1}) {
		t.Fatalf("first result = %+v", res)
	}

	// Same batch again: every row conflicts.
	res, err = w.Write(ctx, store, salesTable, "prod", [][]any{saleRow(ts, 1, 50)})
	if err != nil {
		t.Fatalf("replay Write: %v", err)
	}
	if res != (Result{Submitted: 1, Updated: 1}) {
		t.Fatalf("replay result = %+v", res)
	}

	res, err = w.Write(ctx, store, salesTable, "prod", [][]any{saleRow(ts, 1, 75)})
	if err != nil {
		t.Fatalf("update Write: %v", err)
	}
	if res.Inserted != 0 || res.Updated != 1 {
		t.Fatalf("update result = %+v", res)
	}

	var amount float64
	err = store.Query(ctx, `SELECT total_amount FROM "prod"."sales" WHERE customer_id = ?`, []any{1}, func(r Row) error {
		return r.Scan(&amount)
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if amount != 75 {
		t.Errorf("total_amount = %v, want 75", amount)
	}
	if n := count(t, store, "prod", TableSales); n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}
}

func TestWriter_MixedBatch(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	w := NewWriter()
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, err := w.Write(ctx, store, salesTable, "prod", [][]any{saleRow(ts, 1, 10)}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	res, err := w.Write(ctx, store, salesTable, "prod", [][]any{
		saleRow(ts, 1, 11),
		saleRow(ts, 2, 20),
		saleRow(ts.Add(time.Hour), 1, 30),
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if res != (Result{Submitted: 3, Inserted: 2, Updated: 1}) {
		t.Errorf("result = %+v", res)
	}
}

func TestWriter_RowErrorRollsBackBatch(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	w := NewWriter()
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	rows := [][]any{
		saleRow(ts, 1, 10),
		{ts, int64(2), 20.0, nil}, // sales_channel is NOT NULL
	}
	res, err := w.Write(ctx, store, salesTable, "prod", rows)
	if err == nil {
		t.Fatal("expected error")
	}
	if res != (Result{}) {
		t.Errorf("result = %+v, want zero", res)
	}
	if n := count(t, store, "prod", TableSales); n != 0 {
		t.Errorf("rows after rollback = %d, want 0", n)
	}
}

func TestWriter_ShortRowRollsBack(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := NewWriter().Write(ctx, store, salesTable, "prod", [][]any{saleRow(ts, 1, 10), {ts}})
	if !errors.Is(err, ErrInvalidTable) {
		t.Fatalf("err = %v, want ErrInvalidTable", err)
	}
	if n := count(t, store, "prod", TableSales); n != 0 {
		t.Errorf("rows = %d, want 0", n)
	}
}

func TestWriter_EmptyInput(t *testing.T) {
	res, err := NewWriter().Write(context.Background(), failingStore{}, salesTable, "prod", nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if res != (Result{}) {
		t.Errorf("result = %+v", res)
	}
}

// failingStore fails any call that would touch the database.
type failingStore struct{}

func (failingStore) Dialect() Dialect { return DialectSQLite }
func (failingStore) Begin(context.Context) (Tx, error) {
	return nil, errors.New("begin called")
}
func (failingStore) Query(context.Context, string, []any, func(Row) error) error {
	return errors.New("query called")
}
func (failingStore) Exec(context.Context, string, ...any) (int64, error) {
	return 0, errors.New("exec called")
}
func (failingStore) Close() error { return nil }

func TestWriteSchemas(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	got, err := NewWriter().WriteSchemas(ctx, store, salesTable, schemas, [][]any{saleRow(ts, 1, 10), saleRow(ts, 2, 20)})
	if err != nil {
		t.Fatalf("WriteSchemas: %v", err)
	}
	for _, s := range schemas {
		if got[s] != (Result{Submitted: 2, Inserted: 2}) {
			t.Errorf("%s result = %+v", s, got[s])
		}
		if n := count(t, store, s, TableSales); n != 2 {
			t.Errorf("%s rows = %d, want 2", s, n)
		}
	}
}

func TestTruncate(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, err := NewWriter().Write(ctx, store, salesTable, "playground", [][]any{saleRow(ts, 1, 10)}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := Truncate(ctx, store, "playground", TableSales); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if n := count(t, store, "playground", TableSales); n != 0 {
		t.Errorf("rows = %d, want 0", n)
	}
}

func TestSchemaDDL(t *testing.T) {
	for _, d := range []Dialect{DialectPostgres, DialectSQLite} {
		t.Run(string(d), func(t *testing.T) {
			stmts, err := SchemaDDL(d, "prod")
			if err != nil {
				t.Fatalf("SchemaDDL: %v", err)
			}
			joined := strings.Join(stmts, "\n")
			for _, tbl := range append([]string{TableSales}, DimensionTables...) {
				if !strings.Contains(joined, `"prod".`+`"`+tbl+`"`) {
					t.Errorf("missing table %s", tbl)
				}
			}
			if d == DialectPostgres && !strings.HasPrefix(stmts[0], `CREATE SCHEMA IF NOT EXISTS "prod"`) {
				t.Errorf("first statement = %q", stmts[0])
			}
		})
	}
}

func TestApplySchema_Idempotent(t *testing.T) {
	store := openTestStore(t)
	if err := ApplySchema(context.Background(), store, "prod"); err != nil {
		t.Fatalf("second ApplySchema: %v", err)
	}
}
