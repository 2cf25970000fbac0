package snapshot

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-pos/internal/domain/auth"
	"github.com/xenking/oolio-pos/internal/domain/cart"
	"github.com/xenking/oolio-pos/internal/domain/currency"
	"github.com/xenking/oolio-pos/internal/domain/customer"
	"github.com/xenking/oolio-pos/internal/domain/held"
	"github.com/xenking/oolio-pos/internal/domain/payment"
	"github.com/xenking/oolio-pos/internal/domain/pricing"
	"github.com/xenking/oolio-pos/internal/domain/session"
)

// formatVersion is bumped on incompatible changes to the file layout.
const formatVersion = 1

type fileDTO struct {
	Version    int              `json:"version"`
	TerminalID string           `json:"terminal_id"`
	State      string           `json:"state"`
	BranchID   string           `json:"branch_id,omitempty"`
	RegisterID string           `json:"register_id,omitempty"`
	Employee   *employeeDTO     `json:"employee,omitempty"`
	Session    *sessionDTO      `json:"session,omitempty"`
	Cart       cartDTO          `json:"cart"`
	Customer   customer.Account `json:"customer"`
	Held       []heldDTO        `json:"held,omitempty"`
	SavedAt    time.Time        `json:"saved_at"`
}

type employeeDTO struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	BranchID string   `json:"branch_id"`
	Roles    []string `json:"roles,omitempty"`
}

type sessionDTO struct {
	ID             string           `json:"id"`
	BranchID       string           `json:"branch_id"`
	RegisterID     string           `json:"register_id"`
	CashierID      string           `json:"cashier_id"`
	CashierName    string           `json:"cashier_name"`
	Currency       string           `json:"currency"`
	OpeningBalance decimal.Decimal  `json:"opening_balance"`
	Status         string           `json:"status"`
	OpenedAt       time.Time        `json:"opened_at"`
	ClosedAt       time.Time        `json:"closed_at"`
	Transactions   []transactionDTO `json:"transactions"`
}

type transactionDTO struct {
	ID         string               `json:"id"`
	SessionID  string               `json:"session_id"`
	Amount     decimal.Decimal      `json:"amount"`
	Currency   string               `json:"currency"`
	Tender     payment.TenderRecord `json:"tender"`
	RegisterID string               `json:"register_id"`
	CustomerID string               `json:"customer_id,omitempty"`
	Timestamp  time.Time            `json:"timestamp"`
}

type cartDTO struct {
	Lines    []lineDTO   `json:"lines"`
	Discount discountDTO `json:"discount"`
}

type discountDTO struct {
	Type  string          `json:"type"`
	Value decimal.Decimal `json:"value"`
}

type lineDTO struct {
	ProductID      string          `json:"product_id"`
	Name           string          `json:"name"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Quantity       int             `json:"quantity"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	Kind           string          `json:"kind"`
	SourcePrice    decimal.Decimal `json:"source_price"`
	SourceCurrency string          `json:"source_currency"`
	Rate           decimal.Decimal `json:"rate"`
}

type heldDTO struct {
	ID        string           `json:"id"`
	Cart      cartDTO          `json:"cart"`
	Customer  customer.Account `json:"customer"`
	CreatedAt time.Time        `json:"created_at"`
}

func toFile(s *session.Snapshot) fileDTO {
	f := fileDTO{
		Version:    formatVersion,
		TerminalID: s.TerminalID,
		State:      string(s.State),
		BranchID:   s.BranchID,
		RegisterID: s.RegisterID,
		Cart:       toCart(s.Cart),
		Customer:   s.Customer,
		SavedAt:    s.SavedAt,
	}
	if e := s.Employee; e != nil {
		f.Employee = &employeeDTO{ID: e.ID, Name: e.Name, BranchID: e.BranchID, Roles: e.Roles}
	}
	if sess := s.Session; sess != nil {
		dto := &sessionDTO{
			ID:             sess.ID,
			BranchID:       sess.BranchID,
			RegisterID:     sess.RegisterID,
			CashierID:      sess.CashierID,
			CashierName:    sess.CashierName,
			Currency:       string(sess.Currency),
			OpeningBalance: sess.OpeningBalance,
			Status:         string(sess.Status),
			OpenedAt:       sess.OpenedAt,
			ClosedAt:       sess.ClosedAt,
			Transactions:   make([]transactionDTO, len(sess.Transactions)),
		}
		for i, tx := range sess.Transactions {
			dto.Transactions[i] = transactionDTO{
				ID:         tx.ID,
				SessionID:  tx.SessionID,
				Amount:     tx.Amount,
				Currency:   string(tx.Currency),
				Tender:     payment.RecordOf(tx.Tender),
				RegisterID: tx.RegisterID,
				CustomerID: tx.CustomerID,
				Timestamp:  tx.Timestamp,
			}
		}
		f.Session = dto
	}
	for _, o := range s.Held {
		f.Held = append(f.Held, heldDTO{
			ID:        o.ID,
			Cart:      toCart(o.Cart),
			Customer:  o.Customer,
			CreatedAt: o.CreatedAt,
		})
	}
	return f
}

func toCart(c cart.Cart) cartDTO {
	dto := cartDTO{
		Lines:    make([]lineDTO, len(c.Lines)),
		Discount: discountDTO{Type: string(c.Discount.Type), Value: c.Discount.Value},
	}
	for i, l := range c.Lines {
		dto.Lines[i] = lineDTO{
			ProductID:      l.ProductID,
			Name:           l.Name,
			UnitPrice:      l.UnitPrice,
			Quantity:       l.Quantity,
			TaxRate:        l.TaxRate,
			Kind:           string(l.Kind),
			SourcePrice:    l.SourcePrice,
			SourceCurrency: string(l.SourceCurrency),
			Rate:           l.Rate,
		}
	}
	return dto
}

func (f fileDTO) snapshot() (*session.Snapshot, error) {
	if f.Version != formatVersion {
		return nil, errors.Errorf("unsupported snapshot version %d", f.Version)
	}
	s := &session.Snapshot{
		TerminalID: f.TerminalID,
		State:      session.State(f.State),
		BranchID:   f.BranchID,
		RegisterID: f.RegisterID,
		Cart:       f.Cart.cart(),
		Customer:   f.Customer,
		SavedAt:    f.SavedAt,
	}
	if e := f.Employee; e != nil {
		s.Employee = &auth.Employee{ID: e.ID, Name: e.Name, BranchID: e.BranchID, Roles: e.Roles}
	}
	if dto := f.Session; dto != nil {
		sess := &session.Session{
			ID:             dto.ID,
			BranchID:       dto.BranchID,
			RegisterID:     dto.RegisterID,
			CashierID:      dto.CashierID,
			CashierName:    dto.CashierName,
			Currency:       currency.Currency(dto.Currency),
			OpeningBalance: dto.OpeningBalance,
			Status:         session.Status(dto.Status),
			OpenedAt:       dto.OpenedAt,
			ClosedAt:       dto.ClosedAt,
		}
		for _, tx := range dto.Transactions {
			tender, err := tx.Tender.Tender()
			if err != nil {
				return nil, errors.Wrapf(err, "transaction %s", tx.ID)
			}
			sess.Transactions = append(sess.Transactions, payment.Transaction{
				ID:         tx.ID,
				SessionID:  tx.SessionID,
				Amount:     tx.Amount,
				Currency:   currency.Currency(tx.Currency),
				Tender:     tender,
				RegisterID: tx.RegisterID,
				CustomerID: tx.CustomerID,
				Timestamp:  tx.Timestamp,
			})
		}
		s.Session = sess
	}
	for _, h := range f.Held {
		s.Held = append(s.Held, held.Order{
			ID:        h.ID,
			Cart:      h.Cart.cart(),
			Customer:  h.Customer,
			CreatedAt: h.CreatedAt,
		})
	}
	return s, nil
}

func (dto cartDTO) cart() cart.Cart {
	c := cart.Cart{
		Discount: pricing.Discount{Type: pricing.DiscountType(dto.Discount.Type), Value: dto.Discount.Value},
	}
	for _, l := range dto.Lines {
		c.Lines = append(c.Lines, cart.Line{
			ProductID:      l.ProductID,
			Name:           l.Name,
			UnitPrice:      l.UnitPrice,
			Quantity:       l.Quantity,
			TaxRate:        l.TaxRate,
			Kind:           pricing.Kind(l.Kind),
			SourcePrice:    l.SourcePrice,
			SourceCurrency: currency.Currency(l.SourceCurrency),
			Rate:           l.Rate,
		})
	}
	return c
}
