package warehouse

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/eunmann/salesetl/internal/logctx"
)

//go:embed ddl/postgres.sql ddl/sqlite.sql
var ddlFS embed.FS

// Warehouse table names.
const (
	TableSales           = "sales"
	TableCustomers       = "customers"
	TableProducts        = "products"
	TableStores          = "stores"
	TableEmployees       = "employees"
	TablePaymentMethods  = "payment_methods"
	TableShippingMethods = "shipping_methods"
)

// DimensionTables lists the dimension tables in creation order.
var DimensionTables = []string{
	TableProducts,
	TableCustomers,
	TableStores,
	TableEmployees,
	TablePaymentMethods,
	TableShippingMethods,
}

// SchemaDDL renders the CREATE statements for schema in the store's dialect.
func SchemaDDL(d Dialect, schema string) ([]string, error) {
	name := "ddl/" + string(d) + ".sql"
	raw, err := ddlFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	tmpl, err := template.New(name).Funcs(template.FuncMap{
		"ident": quoteIdent,
		"table": func(t string) string { return Qualified(schema, t) },
	}).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ Schema string }{schema}); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}

	var stmts []string
	for _, s := range strings.Split(buf.String(), ";") {
		if s = strings.TrimSpace(s); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts, nil
}

// ApplySchema creates the schema and its tables if they do not exist.
func ApplySchema(ctx context.Context, store Store, schema string) error {
	stmts, err := SchemaDDL(store.Dialect(), schema)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := store.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema %s: %w", schema, err)
		}
	}
	log := logctx.FromContext(ctx)
	log.Info().Str("schema", schema).Int("statements", len(stmts)).Msg("schema ready")
	return nil
}

// Truncate removes every row from the named tables of schema.
func Truncate(ctx context.Context, store Store, schema string, tables ...string) error {
	for _, t := range tables {
		var stmt string
		switch store.Dialect() {
		case DialectPostgres:
			stmt = "TRUNCATE TABLE " + Qualified(schema, t) + " RESTART IDENTITY"
		default:
			stmt = "DELETE FROM " + Qualified(schema, t)
		}
		n, err := store.Exec(ctx, stmt)
		if err != nil {
			return fmt.Errorf("truncate %s.%s: %w", schema, t, err)
		}
		log := logctx.FromContext(ctx)
		log.Info().Str("schema", schema).Str("table", t).Int64("rows", n).Msg("table truncated")
	}
	return nil
}
