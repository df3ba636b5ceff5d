// Package dimension resolves natural keys to warehouse surrogate keys.
//
// A Snapshot is read once per batch from one schema. Lookups have left-join
// semantics: a key that is absent, or has any empty component, resolves to
// nil and never to an error.
package dimension

import (
	"context"
	"fmt"
	"strings"

	"github.com/eunmann/salesetl/internal/logctx"
	"github.com/eunmann/salesetl/pkg/warehouse"
)

// Dimension describes one dimension table and its natural key.
type Dimension struct {
	Table    string
	IDColumn string
	Keys     []string
}

// The six dimensions referenced by the sales fact.
var (
	Products = Dimension{
		Table:    warehouse.TableProducts,
		IDColumn: "product_id",
		Keys:     []string{"product", "brand_name"},
	}
	Customers = Dimension{
		Table:    warehouse.TableCustomers,
		IDColumn: "customer_id",
		Keys:     []string{"customer_email"},
	}
	Stores = Dimension{
		Table:    warehouse.TableStores,
		IDColumn: "store_id",
		Keys:     []string{"store_type", "store_street", "store_city", "store_state"},
	}
	Employees = Dimension{
		Table:    warehouse.TableEmployees,
		IDColumn: "employee_id",
		Keys:     []string{"employee_firstname", "employee_lastname", "employee_email", "employee_skill", "employee_education"},
	}
	PaymentMethods = Dimension{
		Table:    warehouse.TablePaymentMethods,
		IDColumn: "payment_method_id",
		Keys:     []string{"payment_method"},
	}
	ShippingMethods = Dimension{
		Table:    warehouse.TableShippingMethods,
		IDColumn: "shipping_method_id",
		Keys:     []string{"shipping_method"},
	}
)

// All lists every dimension in join order.
var All = []Dimension{Products, Customers, Stores, Employees, PaymentMethods, ShippingMethods}

// keySep cannot appear in CSV cell text that survived decoding as a key.
const keySep = "\x1f"

func naturalKey(values []string) (string, bool) {
	for _, v := range values {
		if v == "" {
			return "", false
		}
	}
	return strings.Join(values, keySep), true
}

// Snapshot maps natural keys to surrogate keys for every loaded dimension.
type Snapshot struct {
	ids map[string]map[string]int64
}

// NewSnapshot returns an empty snapshot; every lookup resolves to nil.
func NewSnapshot() *Snapshot {
	return &Snapshot{ids: make(map[string]map[string]int64)}
}

// Set records id for a natural key of d. The first id recorded for a key
// wins.
func (s *Snapshot) Set(d Dimension, id int64, values ...string) {
	if len(values) != len(d.Keys) {
		return
	}
	key, ok := naturalKey(values)
	if !ok {
		return
	}
	m := s.ids[d.Table]
	if m == nil {
		m = make(map[string]int64)
		s.ids[d.Table] = m
	}
	if _, dup := m[key]; !dup {
		m[key] = id
	}
}

// Resolve returns the surrogate key for the natural key values of d, or nil
// when there is no match.
func (s *Snapshot) Resolve(d Dimension, values ...string) *int64 {
	if s == nil || len(values) != len(d.Keys) {
		return nil
	}
	key, ok := naturalKey(values)
	if !ok {
		return nil
	}
	id, ok := s.ids[d.Table][key]
	if !ok {
		return nil
	}
	return &id
}

// Len returns the number of keys loaded for d.
func (s *Snapshot) Len(d Dimension) int {
	return len(s.ids[d.Table])
}

// Load reads every dimension from schema. Rows are read in id order so a
// duplicated natural key resolves to its lowest id.
func Load(ctx context.Context, store warehouse.Store, schema string) (*Snapshot, error) {
	snap := NewSnapshot()
	for _, d := range All {
		if err := loadOne(ctx, store, schema, d, snap); err != nil {
			return nil, err
		}
	}

	log := logctx.FromContext(ctx)
	ev := log.Debug().Str("schema", schema)
	for _, d := range All {
		ev = ev.Int(d.Table, snap.Len(d))
	}
	ev.Msg("loaded dimension snapshot")
	return snap, nil
}

func loadOne(ctx context.Context, store warehouse.Store, schema string, d Dimension, snap *Snapshot) error {
	cols := make([]string, 0, len(d.Keys)+1)
	cols = append(cols, d.IDColumn)
	cols = append(cols, d.Keys...)
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(cols, ", "), warehouse.Qualified(schema, d.Table), d.IDColumn)

	err := store.Query(ctx, query, nil, func(r warehouse.Row) error {
		var id int64
		keys := make([]*string, len(d.Keys))
		dest := make([]any, 0, len(cols))
		dest = append(dest, &id)
		for i := range keys {
			dest = append(dest, &keys[i])
		}
		if err := r.Scan(dest...); err != nil {
			return fmt.Errorf("scan %s: %w", d.Table, err)
		}
		values := make([]string, len(keys))
		for i, k := range keys {
			if k != nil {
				values[i] = *k
			}
		}
		snap.Set(d, id, values...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("load dimension %s.%s: %w", schema, d.Table, err)
	}
	return nil
}
