package facts

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/eunmann/salesetl/pkg/dimension"
	"github.com/eunmann/salesetl/pkg/warehouse"
)

// ErrMalformedValue indicates a numeric cell that does not parse. It aborts
// the whole batch.
var ErrMalformedValue = errors.New("malformed numeric value")

// Columns is the sales fact column order.
var Columns = []string{
	"tmstmp",
	"product_id",
	"customer_id",
	"store_id",
	"employee_id",
	"payment_method_id",
	"shipping_method_id",
	"product_price",
	"coupon_discount",
	"quantity_sold",
	"total_amount",
	"total_costs",
	"sales_channel",
	"store_website",
	"supplier",
}

// SalesTable is the upsert target for fact rows.
var SalesTable = warehouse.Table{
	Name:        warehouse.TableSales,
	Columns:     Columns,
	ConflictKey: []string{"customer_id", "tmstmp"},
}

// Default sentinel surrogate keys.
const (
	DefaultOnlineStoreID     int64 = 8
	DefaultInStoreShippingID int64 = 5
)

// FactRow is one sales fact. Nil pointers are SQL NULLs.
type FactRow struct {
	Tmstmp           *time.Time
	ProductID        *int64
	CustomerID       *int64
	StoreID          *int64
	EmployeeID       *int64
	PaymentMethodID  *int64
	ShippingMethodID *int64
	ProductPrice     *float64
	CouponDiscount   *float64
	QuantitySold     *int64
	TotalAmount      *float64
	TotalCosts       *float64
	SalesChannel     Channel
	StoreWebsite     *string
	Supplier         *string
}

// Values returns the row in Columns order.
func (r FactRow) Values() []any {
	return []any{
		nullable(r.Tmstmp),
		nullable(r.ProductID),
		nullable(r.CustomerID),
		nullable(r.StoreID),
		nullable(r.EmployeeID),
		nullable(r.PaymentMethodID),
		nullable(r.ShippingMethodID),
		nullable(r.ProductPrice),
		nullable(r.CouponDiscount),
		nullable(r.QuantitySold),
		nullable(r.TotalAmount),
		nullable(r.TotalCosts),
		string(r.SalesChannel),
		nullable(r.StoreWebsite),
		nullable(r.Supplier),
	}
}

// nullable unwraps p so drivers see an untyped nil for NULL.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// Rows converts fact rows to writer input.
func Rows(facts []FactRow) [][]any {
	out := make([][]any, len(facts))
	for i, f := range facts {
		out[i] = f.Values()
	}
	return out
}

// Transformer builds fact rows. The sentinel ids stand in for the store of
// an online sale and the shipping method of an in-store sale.
type Transformer struct {
	OnlineStoreID     int64
	InStoreShippingID int64
}

// NewTransformer returns a Transformer with the default sentinels.
func NewTransformer() *Transformer {
	return &Transformer{
		OnlineStoreID:     DefaultOnlineStoreID,
		InStoreShippingID: DefaultInStoreShippingID,
	}
}

// Combine concatenates online then offline sales and stable-sorts them by
// timestamp. Rows whose timestamp does not parse go last in input order.
func Combine(online, offline []Sale) []Sale {
	all := make([]Sale, 0, len(online)+len(offline))
	all = append(all, online...)
	all = append(all, offline...)

	type keyed struct {
		t  time.Time
		ok bool
	}
	keys := make([]keyed, len(all))
	for i, s := range all {
		keys[i].t, keys[i].ok = s.Time()
	}
	idx := make([]int, len(all))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if ka.ok != kb.ok {
			return ka.ok
		}
		return ka.ok && ka.t.Before(kb.t)
	})

	out := make([]Sale, len(all))
	for i, j := range idx {
		out[i] = all[j]
	}
	return out
}

// Transform combines both channels, resolves the six surrogate keys against
// snap and applies the channel overrides. The first malformed numeric cell
// fails the call with ErrMalformedValue.
//
// A row with a NULL customer_id or tmstmp never matches the sales conflict
// key, so replaying it would insert a duplicate. Such rows are dropped and
// counted in the second return value.
func (t *Transformer) Transform(online, offline []Sale, snap *dimension.Snapshot) ([]FactRow, int, error) {
	sales := Combine(online, offline)
	out := make([]FactRow, 0, len(sales))
	var dropped int
	for i, s := range sales {
		row, err := t.fact(s, snap)
		if err != nil {
			return nil, 0, fmt.Errorf("sale %d (%s %s): %w", i, s.Channel, s.Tmstmp, err)
		}
		if !row.Keyed() {
			dropped++
			continue
		}
		out = append(out, row)
	}
	return out, dropped, nil
}

// Keyed reports whether every conflict key column of r is non-NULL.
func (r FactRow) Keyed() bool {
	return r.CustomerID != nil && r.Tmstmp != nil
}

func (t *Transformer) fact(s Sale, snap *dimension.Snapshot) (FactRow, error) {
	row := FactRow{
		ProductID:        snap.Resolve(dimension.Products, s.Product, s.BrandName),
		CustomerID:       snap.Resolve(dimension.Customers, s.Email),
		StoreID:          snap.Resolve(dimension.Stores, s.StoreType, s.StoreStreet, s.StoreCity, s.StoreState),
		EmployeeID:       snap.Resolve(dimension.Employees, s.EmployeeFirstName, s.EmployeeLastName, s.EmployeeEmail, s.EmployeeSkill, s.EmployeeEducation),
		PaymentMethodID:  snap.Resolve(dimension.PaymentMethods, s.PaymentMethod),
		ShippingMethodID: snap.Resolve(dimension.ShippingMethods, s.ShippingMethod),
		SalesChannel:     s.Channel,
		StoreWebsite:     text(s.StoreWebsite),
		Supplier:         text(s.Supplier),
	}
	if ts, ok := s.Time(); ok {
		row.Tmstmp = &ts
	}

	var err error
	if row.ProductPrice, err = parseFloat("product_price", s.ProductPrice); err != nil {
		return row, err
	}
	if row.QuantitySold, err = parseInt("quantity_sold", s.QuantitySold); err != nil {
		return row, err
	}
	if row.TotalAmount, err = parseFloat("total_amount", s.TotalAmount); err != nil {
		return row, err
	}
	if row.TotalCosts, err = parseFloat("total_costs", s.TotalCosts); err != nil {
		return row, err
	}

	switch s.Channel {
	case Online:
		if row.CouponDiscount, err = parseFloat("coupon_discount", s.CouponDiscount); err != nil {
			return row, err
		}
		if row.StoreID == nil {
			row.StoreID = ptr(t.OnlineStoreID)
		}
	case Offline:
		row.CouponDiscount = ptr(0.0)
		row.ShippingMethodID = ptr(t.InStoreShippingID)
	}
	return row, nil
}

func parseFloat(column, s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%w: %s=%q", ErrMalformedValue, column, s)
	}
	return &v, nil
}

// parseInt accepts integral floats such as "3.0".
func parseInt(column, s string) (*int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	// 2^63 is exactly representable; MaxInt64 is not and rounds up to it.
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, fmt.Errorf("%w: %s=%q", ErrMalformedValue, column, s)
	}
	v := int64(f)
	return &v, nil
}

func text(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func ptr[T any](v T) *T { return &v }
