package facts

import (
	"github.com/eunmann/salesetl/pkg/dataset"
	"github.com/eunmann/salesetl/pkg/warehouse"
)

// CustomersTable is the upsert target for customer rows.
var CustomersTable = warehouse.Table{
	Name: warehouse.TableCustomers,
	Columns: []string{
		"customer_email",
		"customer_firstname",
		"customer_lastname",
		"customer_phone",
		"customer_city",
		"customer_state",
	},
	ConflictKey: []string{"customer_email"},
}

// CustomerRow is one customer dimension row.
type CustomerRow dataset.Customer

// Values returns the row in CustomersTable.Columns order.
func (c CustomerRow) Values() []any {
	return []any{
		c.Email,
		nullable(text(c.FirstName)),
		nullable(text(c.LastName)),
		nullable(text(c.Phone)),
		nullable(text(c.City)),
		nullable(text(c.State)),
	}
}

// Customers derives one row per distinct non-empty email from the combined
// sales, in timestamp order. The first sale for an email sets each
// attribute; later sales only fill attributes still empty.
func Customers(online, offline []Sale) []CustomerRow {
	var out []CustomerRow
	index := make(map[string]int)
	for _, s := range Combine(online, offline) {
		if s.Email == "" {
			continue
		}
		i, seen := index[s.Email]
		if !seen {
			index[s.Email] = len(out)
			out = append(out, CustomerRow(s.Customer))
			continue
		}
		c := &out[i]
		fill(&c.FirstName, s.FirstName)
		fill(&c.LastName, s.LastName)
		fill(&c.Phone, s.Phone)
		fill(&c.City, s.City)
		fill(&c.State, s.State)
	}
	return out
}

// CustomerRows converts customers to writer input.
func CustomerRows(customers []CustomerRow) [][]any {
	out := make([][]any, len(customers))
	for i, c := range customers {
		out[i] = c.Values()
	}
	return out
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}
