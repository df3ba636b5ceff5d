package dataset

import (
	"bytes"
	"fmt"

	"github.com/jszwec/csvutil"
)

// Customer attributes shared by both feeds.
type Customer struct {
	Email     string `csv:"customer_email"`
	FirstName string `csv:"customer_firstname"`
	LastName  string `csv:"customer_lastname"`
	Phone     string `csv:"customer_phone"`
	City      string `csv:"customer_city"`
	State     string `csv:"customer_state"`
}

// OnlineSale is one row of the online feed in its native column names.
// Every field is kept as text; an empty string is a missing value.
type OnlineSale struct {
	Tmstmp string `csv:"tmstmp"`
	Customer
	Product            string `csv:"product"`
	BrandName          string `csv:"brand_name"`
	ProductCategory    string `csv:"product_category"`
	ProductSubcategory string `csv:"product_subcategory"`
	ProductPrice       string `csv:"product_price"`
	CouponDiscount     string `csv:"coupon_discount"`
	QuantitySold       string `csv:"quantity_sold"`
	TotalAmount        string `csv:"total_amount"`
	TotalCosts         string `csv:"total_costs"`
	PaymentType        string `csv:"payment_type"`
	ShippingMethod     string `csv:"shipping_method"`
	StoreWebsite       string `csv:"store_website"`
	Supplier           string `csv:"supplier"`
}

// OfflineSale is one row of the offline (in-store) feed in its native
// column names.
type OfflineSale struct {
	Date string `csv:"date"`
	Customer
	ProductName       string `csv:"product_name"`
	Brand             string `csv:"brand"`
	Category          string `csv:"category"`
	Subcategory       string `csv:"subcategory"`
	Price             string `csv:"price"`
	CouponDiscount    string `csv:"coupon_discount"`
	QuantitySold      string `csv:"quantity_sold"`
	AmountSold        string `csv:"amount_sold"`
	CostAmount        string `csv:"cost_amount"`
	PaymentMethod     string `csv:"payment_method"`
	ShippingMethod    string `csv:"shipping_method"`
	StoreType         string `csv:"store_type"`
	StoreStreet       string `csv:"store_street"`
	StoreCity         string `csv:"store_city"`
	StoreState        string `csv:"store_state"`
	EmployeeFirstName string `csv:"employee_firstname"`
	EmployeeLastName  string `csv:"employee_lastname"`
	EmployeeEmail     string `csv:"employee_email"`
	EmployeeSkill     string `csv:"employee_skill"`
	EmployeeEducation string `csv:"employee_education"`
	Supplier          string `csv:"supplier"`
}

// DecodeOnline decodes an online partition. Columns absent from the file
// decode as empty strings; unknown columns are ignored.
func DecodeOnline(body []byte) ([]OnlineSale, error) {
	var out []OnlineSale
	if err := decode(body, &out); err != nil {
		return nil, fmt.Errorf("decode online sales: %w", err)
	}
	return out, nil
}

// DecodeOffline decodes an offline partition.
func DecodeOffline(body []byte) ([]OfflineSale, error) {
	var out []OfflineSale
	if err := decode(body, &out); err != nil {
		return nil, fmt.Errorf("decode offline sales: %w", err)
	}
	return out, nil
}

func decode(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return csvutil.Unmarshal(body, v)
}
