// Package demo holds the sample catalog, staff and registers used by the
// in-memory backend and by the seed-db command.
package demo

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-pos/internal/domain/auth"
	"github.com/xenking/oolio-pos/internal/domain/currency"
	"github.com/xenking/oolio-pos/internal/domain/customer"
	"github.com/xenking/oolio-pos/internal/domain/payment"
	"github.com/xenking/oolio-pos/internal/domain/product"
)

// Staff is an employee together with the PIN they log in with.
type Staff struct {
	Employee auth.Employee
	PIN      string
}

// Rate is one exchange rate entry.
type Rate struct {
	From, To currency.Currency
	Rate     decimal.Decimal
}

// Branch is the id of the only demo branch.
const Branch = "main"

func item(id, barcode, name, price string, cur currency.Currency, tax string) product.Product {
	return product.Product{
		ID:       id,
		Barcode:  barcode,
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Currency: cur,
		TaxRate:  decimal.RequireFromString(tax),
		Active:   true,
	}
}

// Products returns the demo catalog.
func Products() []product.Product {
	return []product.Product{
		item("espresso", "4006381333931", "Espresso", "2.80", "EUR", "10"),
		item("flat-white", "4006381333948", "Flat White", "3.90", "EUR", "10"),
		item("croissant", "4006381333955", "Butter Croissant", "2.40", "EUR", "10"),
		item("sandwich", "4006381333962", "Club Sandwich", "7.50", "EUR", "10"),
		item("beans-250", "5012345678900", "House Beans 250g", "11.00", "EUR", "20"),
		item("mug", "5012345678917", "Ceramic Mug", "12.00", "EUR", "20"),
		item("grinder", "0012345678905", "Hand Grinder", "49.00", "USD", "20"),
		item("gift-card", "", "Gift Card", "25.00", "EUR", "0"),
	}
}

// Employees returns the demo staff.
func Employees() []Staff {
	return []Staff{
		{Employee: auth.Employee{ID: "e-100", Name: "Alex Rivera", BranchID: Branch, Roles: []string{"cashier"}}, PIN: "1234"},
		{Employee: auth.Employee{ID: "e-200", Name: "Sam Okafor", BranchID: Branch, Roles: []string{"cashier", "manager"}}, PIN: "4321"},
	}
}

// Customers returns the demo loyalty accounts.
func Customers() []customer.Account {
	return []customer.Account{
		{ID: "c-1", Name: "Jordan Lee", Phone: "+4915112345678", Email: "jordan@example.com"},
	}
}

// Registers returns the demo registers. The drawer takes cash only.
func Registers() []payment.Register {
	return []payment.Register{
		{ID: "drawer-1", BranchID: Branch, Name: "Front Drawer", Currency: "EUR",
			Tenders: []payment.TenderKind{payment.KindCash}, Balance: decimal.Zero},
		{ID: "till-1", BranchID: Branch, Name: "Front Till", Currency: "EUR", Balance: decimal.Zero},
		{ID: "wallet-1", BranchID: Branch, Name: "Crypto Wallet", Currency: "EUR",
			Tenders: []payment.TenderKind{payment.KindCrypto}, Balance: decimal.Zero},
	}
}

// Rates returns the demo exchange rates.
func Rates() []Rate {
	return []Rate{
		{From: "USD", To: "EUR", Rate: decimal.RequireFromString("0.92")},
		{From: "GBP", To: "EUR", Rate: decimal.RequireFromString("1.17")},
	}
}

// RateTable returns Rates as a static table.
func RateTable() currency.Table {
	t := make(currency.Table)
	for _, r := range Rates() {
		t[string(r.From)+"/"+string(r.To)] = r.Rate
	}
	return t
}
