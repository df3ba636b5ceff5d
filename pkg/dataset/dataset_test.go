package dataset

import (
	"strings"
	"testing"
	"time"
)

const onlineCSV = `tmstmp,customer_email,product,brand_name,product_price,coupon_discount,quantity_sold,total_amount,total_costs,payment_type,shipping_method,store_website
2024-01-02 09:15:00,b@example.com,Helmet,Riddell,199.99,0.1,1,179.99,90,Card,Express,shop.example.com
2024-01-01 18:00:00,a@example.com,Ball,Wilson,29.5,,2,59,30,PayPal,Standard,shop.example.com
not-a-date,c@example.com,Gloves,Nike,40,0,1,40,20,Card,Standard,shop.example.com
`

func TestReadTable(t *testing.T) {
	tbl, err := ReadTable(strings.NewReader(onlineCSV), OnlineTimeColumn)
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if tbl.Len() != 3 {
		t.Fatalf("Len = %d, want 3", tbl.Len())
	}
	if _, ok := tbl.Time(2); ok {
		t.Error("row with unparseable timestamp reported a time")
	}

	lo, hi, ok := tbl.Bounds()
	if !ok {
		t.Fatal("Bounds reported no valid rows")
	}
	if want := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC); !lo.Equal(want) {
		t.Errorf("lo = %v, want %v", lo, want)
	}
	if want := time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC); !hi.Equal(want) {
		t.Errorf("hi = %v, want %v", hi, want)
	}
}

func TestReadTable_Errors(t *testing.T) {
	if _, err := ReadTable(strings.NewReader(""), OnlineTimeColumn); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := ReadTable(strings.NewReader("a,b\n1,2\n"), OnlineTimeColumn); err == nil || !strings.Contains(err.Error(), "tmstmp") {
		t.Errorf("expected missing column error, got %v", err)
	}
}

func TestTable_FilterRoundTripsSourceText(t *testing.T) {
	tbl, err := ReadTable(strings.NewReader(onlineCSV), OnlineTimeColumn)
	if err != nil {
		t.Fatal(err)
	}
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	slice := tbl.Filter(func(ts time.Time) bool { return Midnight(ts).Equal(day) })

	got, err := slice.CSV()
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(onlineCSV, "\n")
	want := lines[0] + "\n" + lines[2] + "\n"
	if string(got) != want {
		t.Errorf("CSV =\n%s\nwant\n%s", got, want)
	}
}

func TestTable_CSVIsDeterministicNotSourceBytes(t *testing.T) {
	src := "tmstmp,note\r\n2024-01-01 10:00:00,\"plain\"\r\n2024-01-01 11:00:00,\"a,b\"\r\n"
	write := func() []byte {
		tbl, err := ReadTable(strings.NewReader(src), OnlineTimeColumn)
		if err != nil {
			t.Fatal(err)
		}
		out, err := tbl.CSV()
		if err != nil {
			t.Fatal(err)
		}
		return out
	}

	first, second := write(), write()
	if string(first) != string(second) {
		t.Errorf("outputs differ:\n%s\n%s", first, second)
	}
	want := "tmstmp,note\n2024-01-01 10:00:00,plain\n2024-01-01 11:00:00,\"a,b\"\n"
	if string(first) != want {
		t.Errorf("CSV = %q, want %q", first, want)
	}
}

func TestTable_EmptyFilterWritesHeader(t *testing.T) {
	tbl, err := ReadTable(strings.NewReader(onlineCSV), OnlineTimeColumn)
	if err != nil {
		t.Fatal(err)
	}
	none := tbl.Filter(func(time.Time) bool { return false })
	got, err := none.CSV()
	if err != nil {
		t.Fatal(err)
	}
	if want := strings.Split(onlineCSV, "\n")[0] + "\n"; string(got) != want {
		t.Errorf("CSV = %q, want %q", got, want)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-01-02 03:04:05", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), true},
		{"2024-01-02 03:04:05.250", time.Date(2024, 1, 2, 3, 4, 5, 250e6, time.UTC), true},
		{"2024-01-02T03:04:05Z", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), true},
		{"2024-01-02", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), true},
		{" 2024/01/02 ", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), true},
		{"01/02/2024", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"yesterday", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseTimestamp(tt.in)
		if ok != tt.ok || !got.Equal(tt.want) {
			t.Errorf("ParseTimestamp(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDecodeOnline(t *testing.T) {
	sales, err := DecodeOnline([]byte(onlineCSV))
	if err != nil {
		t.Fatalf("DecodeOnline: %v", err)
	}
	if len(sales) != 3 {
		t.Fatalf("len = %d, want 3", len(sales))
	}
	s := sales[0]
	if s.Email != "b@example.com" || s.Product != "Helmet" || s.PaymentType != "Card" || s.CouponDiscount != "0.1" {
		t.Errorf("unexpected first row: %+v", s)
	}
	if sales[1].CouponDiscount != "" {
		t.Errorf("empty cell decoded as %q", sales[1].CouponDiscount)
	}
	if s.Supplier != "" {
		t.Errorf("absent column decoded as %q", s.Supplier)
	}
}

func TestDecodeOffline(t *testing.T) {
	body := "date,customer_email,product_name,brand,price,amount_sold,cost_amount,store_type,store_city,employee_email,coupon_discount\n" +
		"2024-01-03,d@example.com,Cleats,Adidas,80,160,70,Outlet,Dallas,e@store.example.com,15.0\n"
	sales, err := DecodeOffline([]byte(body))
	if err != nil {
		t.Fatalf("DecodeOffline: %v", err)
	}
	if len(sales) != 1 {
		t.Fatalf("len = %d", len(sales))
	}
	s := sales[0]
	if s.Date != "2024-01-03" || s.ProductName != "Cleats" || s.AmountSold != "160" || s.StoreCity != "Dallas" || s.CouponDiscount != "15.0" {
		t.Errorf("unexpected row: %+v", s)
	}
}

func TestDecode_EmptyBody(t *testing.T) {
	sales, err := DecodeOnline(nil)
	if err != nil || len(sales) != 0 {
		t.Errorf("DecodeOnline(nil) = %v, %v", sales, err)
	}
	sales, err = DecodeOnline([]byte("tmstmp,product\n"))
	if err != nil || len(sales) != 0 {
		t.Errorf("header-only = %v, %v", sales, err)
	}
}
