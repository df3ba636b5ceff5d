package cli

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/eunmann/salesetl/internal/config"
	"github.com/eunmann/salesetl/pkg/warehouse"
)

func TestRunNoArgs(t *testing.T) {
	err := Run(nil)
	if err == nil {
		t.Fatal("expected error with no args")
	}
	if !strings.Contains(err.Error(), "usage") {
		t.Errorf("expected usage message, got: %v", err)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	err := Run([]string{"unknown"})
	if err == nil {
		t.Fatal("expected error with unknown command")
	}
	if !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("expected 'unknown command' error, got: %v", err)
	}
}

func TestCleanNothingSelected(t *testing.T) {
	err := Run([]string{"clean"})
	if err == nil {
		t.Fatal("expected error with no clean target")
	}
	if !strings.Contains(err.Error(), "--objects") {
		t.Errorf("expected hint about --objects, got: %v", err)
	}
}

func TestCleanCustomersRequiresTables(t *testing.T) {
	err := Run([]string{"clean", "--customers"})
	if err == nil || !strings.Contains(err.Error(), "--facts or --dimensions") {
		t.Errorf("expected '--facts or --dimensions' error, got: %v", err)
	}
}

func TestCleanTables(t *testing.T) {
	dims := []string{
		warehouse.TableProducts, warehouse.TableStores, warehouse.TableEmployees,
		warehouse.TablePaymentMethods, warehouse.TableShippingMethods,
	}
	tests := []struct {
		name                   string
		facts, customers, dims bool
		want                   []string
	}{
		{"facts", true, false, false, []string{warehouse.TableSales}},
		{"facts and customers", true, true, false, []string{warehouse.TableSales, warehouse.TableCustomers}},
		{"dimensions keep customers", false, false, true, dims},
		{"dimensions and customers", false, true, true, append(append([]string(nil), dims...), warehouse.TableCustomers)},
		{"customers alone", false, true, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cleanTables(tt.facts, tt.customers, tt.dims)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("cleanTables = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCleanDimensionsKeepsCustomers(t *testing.T) {
	tmp := t.TempDir()
	dir := filepath.Join(tmp, "wh")
	cfgPath := filepath.Join(tmp, "salesetl.yaml")
	yaml := "warehouse:\n  driver: sqlite\n  dsn: " + dir + "\n  schemas: [prod]\n"
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Warehouse.Driver = "sqlite"
	cfg.Warehouse.DSN = dir
	ctx := context.Background()
	wh, err := openWarehouse(ctx, cfg)
	if err != nil {
		t.Fatalf("openWarehouse: %v", err)
	}
	if err := warehouse.ApplySchema(ctx, wh, "prod"); err != nil {
		t.Fatalf("ApplySchema: %v", err)
	}
	for _, stmt := range []string{
		`INSERT INTO "prod"."customers" (customer_email) VALUES ('ann@example.com')`,
		`INSERT INTO "prod"."products" (product_id, product, brand_name) VALUES (1, 'Helmet', 'Riddell')`,
	} {
		if _, err := wh.Exec(ctx, stmt); err != nil {
			t.Fatalf("Exec: %v", err)
		}
	}
	wh.Close()

	if err := Run([]string{"clean", "--config", cfgPath, "--dimensions"}); err != nil {
		t.Fatalf("clean: %v", err)
	}

	wh, err = openWarehouse(ctx, cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer wh.Close()
	count := func(table string) int {
		var n int
		err := wh.Query(ctx, "SELECT COUNT(*) FROM "+warehouse.Qualified("prod", table), nil, func(r warehouse.Row) error {
			return r.Scan(&n)
		})
		if err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		return n
	}
	if n := count(warehouse.TableCustomers); n != 1 {
		t.Errorf("customers after clean --dimensions = %d, want 1", n)
	}
	if n := count(warehouse.TableProducts); n != 0 {
		t.Errorf("products after clean --dimensions = %d, want 0", n)
	}
}

func TestSeedMissingDir(t *testing.T) {
	err := Run([]string{"seed"})
	if err == nil || !strings.Contains(err.Error(), "--dir") {
		t.Errorf("expected '--dir' error, got: %v", err)
	}
}

func TestStageBadEndDate(t *testing.T) {
	err := Run([]string{"stage", "--end-date", "03/01/2024"})
	if err == nil || !strings.Contains(err.Error(), "--end-date") {
		t.Errorf("expected '--end-date' error, got: %v", err)
	}
}

func TestLoadNegativeConcurrency(t *testing.T) {
	err := Run([]string{"load", "--concurrency", "-1"})
	if err == nil || !strings.Contains(err.Error(), "--concurrency") {
		t.Errorf("expected '--concurrency' error, got: %v", err)
	}
}

func TestMissingConfigFile(t *testing.T) {
	err := Run([]string{"provision", "--config", filepath.Join(t.TempDir(), "absent.yaml")})
	if err == nil || !strings.Contains(err.Error(), "config file") {
		t.Errorf("expected config file error, got: %v", err)
	}
}

func TestUnknownFlag(t *testing.T) {
	if err := Run([]string{"load", "--bogus"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestOpenWarehouseSQLite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "wh")
	cfg := config.Default()
	cfg.Warehouse.Driver = "sqlite"
	cfg.Warehouse.DSN = dir

	ctx := context.Background()
	wh, err := openWarehouse(ctx, cfg)
	if err != nil {
		t.Fatalf("openWarehouse: %v", err)
	}
	defer wh.Close()

	if wh.Dialect() != warehouse.DialectSQLite {
		t.Errorf("dialect = %s", wh.Dialect())
	}
	if err := warehouse.ApplySchema(ctx, wh, "prod"); err != nil {
		t.Fatalf("ApplySchema: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "prod.db")); err != nil {
		t.Errorf("schema file not created: %v", err)
	}
}

func TestOpenWarehousePostgresNeedsDSN(t *testing.T) {
	cfg := config.Default()
	cfg.Warehouse.DSN = ""
	if _, err := openWarehouse(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "DSN") {
		t.Errorf("expected DSN error, got: %v", err)
	}
}
