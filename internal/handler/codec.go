package handler

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-pos/internal/domain/auth"
	"github.com/xenking/oolio-pos/internal/domain/cart"
	"github.com/xenking/oolio-pos/internal/domain/currency"
	"github.com/xenking/oolio-pos/internal/domain/customer"
	"github.com/xenking/oolio-pos/internal/domain/held"
	"github.com/xenking/oolio-pos/internal/domain/payment"
	"github.com/xenking/oolio-pos/internal/domain/pricing"
	"github.com/xenking/oolio-pos/internal/domain/reconcile"
	"github.com/xenking/oolio-pos/internal/domain/session"
)

const maxBodySize = 1 << 20

// decodeBody reads a JSON object and calls field for each key. An empty
// body decodes as an empty object.
func decodeBody(r *http.Request, field func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return badRequest(err)
	}
	if len(data) > maxBodySize {
		return badRequest(errors.New("body too large"))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := jx.DecodeBytes(data).Obj(field); err != nil {
		return badRequest(err)
	}
	return nil
}

// decodeDecimal accepts "12.50" and 12.50; strings are preferred because
// they never pass through a float.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Decimal{}, errors.New("expected a decimal string or number")
	}
}

func decodeTender(d *jx.Decoder) (payment.TenderRecord, error) {
	var rec payment.TenderRecord
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "kind":
			var s string
			if s, err = d.Str(); err == nil {
				rec.Kind = payment.TenderKind(s)
			}
		case "tendered":
			var v decimal.Decimal
			if v, err = decodeDecimal(d); err == nil {
				rec.Tendered = &v
			}
		case "brand":
			rec.Brand, err = d.Str()
		case "last4":
			rec.Last4, err = d.Str()
		case "auth_code":
			rec.AuthCode, err = d.Str()
		case "reference":
			rec.Reference, err = d.Str()
		case "network":
			rec.Network, err = d.Str()
		case "tx_hash":
			rec.TxHash, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return rec, err
}

func encodeTime(e *jx.Encoder, field string, t time.Time) {
	if t.IsZero() {
		return
	}
	e.FieldStart(field)
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func encodeMoney(e *jx.Encoder, field string, cur currency.Currency, v decimal.Decimal) {
	e.FieldStart(field)
	e.Str(cur.Format(v))
}

func encodeStr(e *jx.Encoder, field, v string) {
	if v == "" {
		return
	}
	e.FieldStart(field)
	e.Str(v)
}

func encodeEmployee(e *jx.Encoder, emp auth.Employee) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(emp.ID)
	e.FieldStart("name")
	e.Str(emp.Name)
	e.FieldStart("branch_id")
	e.Str(emp.BranchID)
	e.FieldStart("roles")
	e.ArrStart()
	for _, role := range emp.Roles {
		e.Str(role)
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeCustomer(e *jx.Encoder, a customer.Account) {
	if a.IsZero() {
		e.Null()
		return
	}
	e.ObjStart()
	e.FieldStart("id")
	e.Str(a.ID)
	e.FieldStart("name")
	e.Str(a.Name)
	encodeStr(e, "phone", a.Phone)
	encodeStr(e, "email", a.Email)
	e.ObjEnd()
}

func encodeTender(e *jx.Encoder, cur currency.Currency, t payment.Tender) {
	rec := payment.RecordOf(t)
	e.ObjStart()
	e.FieldStart("kind")
	e.Str(string(rec.Kind))
	if rec.Tendered != nil {
		encodeMoney(e, "tendered", cur, *rec.Tendered)
	}
	encodeStr(e, "brand", rec.Brand)
	encodeStr(e, "last4", rec.Last4)
	encodeStr(e, "auth_code", rec.AuthCode)
	encodeStr(e, "reference", rec.Reference)
	encodeStr(e, "network", rec.Network)
	encodeStr(e, "tx_hash", rec.TxHash)
	e.ObjEnd()
}

func encodeTransaction(e *jx.Encoder, tx payment.Transaction) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(tx.ID)
	e.FieldStart("session_id")
	e.Str(tx.SessionID)
	encodeMoney(e, "amount", tx.Currency, tx.Amount)
	e.FieldStart("currency")
	e.Str(string(tx.Currency))
	e.FieldStart("tender")
	encodeTender(e, tx.Currency, tx.Tender)
	e.FieldStart("register_id")
	e.Str(tx.RegisterID)
	encodeStr(e, "customer_id", tx.CustomerID)
	encodeTime(e, "timestamp", tx.Timestamp)
	e.ObjEnd()
}

func encodeSession(e *jx.Encoder, s session.Session) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(s.ID)
	e.FieldStart("status")
	e.Str(string(s.Status))
	e.FieldStart("branch_id")
	e.Str(s.BranchID)
	e.FieldStart("register_id")
	e.Str(s.RegisterID)
	e.FieldStart("cashier_id")
	e.Str(s.CashierID)
	encodeStr(e, "cashier_name", s.CashierName)
	e.FieldStart("currency")
	e.Str(string(s.Currency))
	encodeMoney(e, "opening_balance", s.Currency, s.OpeningBalance)
	encodeTime(e, "opened_at", s.OpenedAt)
	encodeTime(e, "closed_at", s.ClosedAt)
	e.FieldStart("transactions")
	e.ArrStart()
	for _, tx := range s.Transactions {
		encodeTransaction(e, tx)
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeReport(e *jx.Encoder, rep reconcile.Report) {
	cur := rep.Currency
	e.ObjStart()
	e.FieldStart("session_id")
	e.Str(rep.SessionID)
	e.FieldStart("cashier_id")
	e.Str(rep.CashierID)
	e.FieldStart("branch_id")
	e.Str(rep.BranchID)
	e.FieldStart("register_id")
	e.Str(rep.RegisterID)
	e.FieldStart("currency")
	e.Str(string(cur))
	encodeMoney(e, "opening_balance", cur, rep.OpeningBalance)
	encodeMoney(e, "counted", cur, rep.Counted)
	encodeMoney(e, "expected_cash", cur, rep.ExpectedCash)
	encodeMoney(e, "variance", cur, rep.Variance)
	e.FieldStart("balanced")
	e.Bool(rep.Balanced())
	encodeMoney(e, "sales", cur, rep.Sales)
	encodeMoney(e, "refunds", cur, rep.Refunds)
	e.FieldStart("by_tender")
	e.ArrStart()
	for _, s := range rep.ByTender {
		e.ObjStart()
		e.FieldStart("kind")
		e.Str(string(s.Kind))
		e.FieldStart("count")
		e.Int(s.Count)
		encodeMoney(e, "total", cur, s.Total)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("tx_count")
	e.Int(rep.TxCount)
	encodeTime(e, "opened_at", rep.OpenedAt)
	encodeTime(e, "closed_at", rep.ClosedAt)
	e.ObjEnd()
}

func encodeInfo(e *jx.Encoder, info session.Info) {
	e.ObjStart()
	e.FieldStart("terminal_id")
	e.Str(info.TerminalID)
	e.FieldStart("state")
	e.Str(string(info.State))
	e.FieldStart("currency")
	e.Str(string(info.Currency))
	encodeStr(e, "branch_id", info.BranchID)
	encodeStr(e, "register_id", info.RegisterID)
	if info.Employee != nil {
		e.FieldStart("employee")
		encodeEmployee(e, *info.Employee)
	}
	if info.Session != nil {
		e.FieldStart("session")
		encodeSession(e, *info.Session)
	}
	if info.Report != nil {
		e.FieldStart("report")
		encodeReport(e, *info.Report)
	}
	encodeTime(e, "locked_until", info.LockedUntil)
	e.ObjEnd()
}

func encodeTotals(e *jx.Encoder, cur currency.Currency, t pricing.Totals) {
	e.ObjStart()
	encodeMoney(e, "subtotal", cur, t.Subtotal)
	e.FieldStart("tax_by_rate")
	e.ArrStart()
	for _, tl := range t.TaxByRate {
		e.ObjStart()
		e.FieldStart("rate")
		e.Str(tl.Rate.String())
		encodeMoney(e, "amount", cur, tl.Amount)
		e.ObjEnd()
	}
	e.ArrEnd()
	encodeMoney(e, "tax_total", cur, t.TaxTotal)
	encodeMoney(e, "pre_discount", cur, t.PreDiscount)
	encodeMoney(e, "discount_amount", cur, t.DiscountAmount)
	encodeMoney(e, "grand_total", cur, t.GrandTotal)
	e.ObjEnd()
}

func encodeCartBody(e *jx.Encoder, c cart.Cart) {
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range c.Lines {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(l.ProductID)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("kind")
		e.Str(string(l.Kind))
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("unit_price")
		e.Str(l.UnitPrice.String())
		e.FieldStart("tax_rate")
		e.Str(l.TaxRate.String())
		if l.SourceCurrency != "" {
			e.FieldStart("source_price")
			e.Str(l.SourcePrice.String())
			e.FieldStart("source_currency")
			e.Str(string(l.SourceCurrency))
			e.FieldStart("rate")
			e.Str(l.Rate.String())
		}
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("discount")
	e.ObjStart()
	e.FieldStart("type")
	e.Str(string(c.Discount.Type))
	e.FieldStart("value")
	e.Str(c.Discount.Value.String())
	e.ObjEnd()
}

func encodeCartView(e *jx.Encoder, cur currency.Currency, v session.CartView) {
	e.ObjStart()
	e.FieldStart("currency")
	e.Str(string(cur))
	encodeCartBody(e, v.Cart)
	e.FieldStart("customer")
	encodeCustomer(e, v.Customer)
	e.FieldStart("totals")
	encodeTotals(e, cur, v.Totals)
	e.ObjEnd()
}

func encodeHeld(e *jx.Encoder, cur currency.Currency, o held.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	encodeTime(e, "created_at", o.CreatedAt)
	encodeCartBody(e, o.Cart)
	e.FieldStart("customer")
	encodeCustomer(e, o.Customer)
	e.FieldStart("totals")
	encodeTotals(e, cur, o.Cart.Totals(cur))
	e.ObjEnd()
}

func encodeResult(e *jx.Encoder, cur currency.Currency, res payment.Result) {
	e.ObjStart()
	e.FieldStart("transaction")
	encodeTransaction(e, res.Transaction)
	if !res.Replayed {
		e.FieldStart("totals")
		encodeTotals(e, cur, res.Totals)
	}
	encodeMoney(e, "change", cur, res.Change)
	e.FieldStart("replayed")
	e.Bool(res.Replayed)
	e.ObjEnd()
}
