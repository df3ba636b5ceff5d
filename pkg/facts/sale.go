// Package facts turns decoded online and offline sales into rows of the
// warehouse sales fact and the customer dimension.
package facts

import (
	"time"

	"github.com/eunmann/salesetl/pkg/dataset"
)

// Channel tags where a sale happened.
type Channel string

// Sales channels.
const (
	Online  Channel = "Online"
	Offline Channel = "Offline"
)

// Sale is one sale in the canonical column names shared by both channels.
// Fields a channel does not carry are empty.
type Sale struct {
	Tmstmp  string
	Channel Channel
	dataset.Customer

	Product            string
	BrandName          string
	ProductCategory    string
	ProductSubcategory string
	ProductPrice       string
	CouponDiscount     string
	QuantitySold       string
	TotalAmount        string
	TotalCosts         string
	PaymentMethod      string
	ShippingMethod     string

	StoreType   string
	StoreStreet string
	StoreCity   string
	StoreState  string

	EmployeeFirstName string
	EmployeeLastName  string
	EmployeeEmail     string
	EmployeeSkill     string
	EmployeeEducation string

	StoreWebsite string
	Supplier     string
}

// Time parses the sale timestamp.
func (s Sale) Time() (time.Time, bool) {
	return dataset.ParseTimestamp(s.Tmstmp)
}

// FromOnline converts online rows, renaming payment_type to payment_method.
func FromOnline(rows []dataset.OnlineSale) []Sale {
	out := make([]Sale, len(rows))
	for i, r := range rows {
		out[i] = Sale{
			Tmstmp:             r.Tmstmp,
			Channel:            Online,
			Customer:           r.Customer,
			Product:            r.Product,
			BrandName:          r.BrandName,
			ProductCategory:    r.ProductCategory,
			ProductSubcategory: r.ProductSubcategory,
			ProductPrice:       r.ProductPrice,
			CouponDiscount:     r.CouponDiscount,
			QuantitySold:       r.QuantitySold,
			TotalAmount:        r.TotalAmount,
			TotalCosts:         r.TotalCosts,
			PaymentMethod:      r.PaymentType,
			ShippingMethod:     r.ShippingMethod,
			StoreWebsite:       r.StoreWebsite,
			Supplier:           r.Supplier,
		}
	}
	return out
}

// FromOffline converts in-store rows to the canonical names.
func FromOffline(rows []dataset.OfflineSale) []Sale {
	out := make([]Sale, len(rows))
	for i, r := range rows {
		out[i] = Sale{
			Tmstmp:             r.Date,
			Channel:            Offline,
			Customer:           r.Customer,
			Product:            r.ProductName,
			BrandName:          r.Brand,
			ProductCategory:    r.Category,
			ProductSubcategory: r.Subcategory,
			ProductPrice:       r.Price,
			CouponDiscount:     r.CouponDiscount,
			QuantitySold:       r.QuantitySold,
			TotalAmount:        r.AmountSold,
			TotalCosts:         r.CostAmount,
			PaymentMethod:      r.PaymentMethod,
			ShippingMethod:     r.ShippingMethod,
			StoreType:          r.StoreType,
			StoreStreet:        r.StoreStreet,
			StoreCity:          r.StoreCity,
			StoreState:         r.StoreState,
			EmployeeFirstName:  r.EmployeeFirstName,
			EmployeeLastName:   r.EmployeeLastName,
			EmployeeEmail:      r.EmployeeEmail,
			EmployeeSkill:      r.EmployeeSkill,
			EmployeeEducation:  r.EmployeeEducation,
			Supplier:           r.Supplier,
		}
	}
	return out
}
