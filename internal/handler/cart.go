package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/oolio-pos/internal/domain/cart"
	"github.com/xenking/oolio-pos/internal/domain/customer"
	"github.com/xenking/oolio-pos/internal/domain/pricing"
	"github.com/xenking/oolio-pos/internal/domain/session"
)

func errMissing(field string) error {
	return errors.Errorf("%s is required", field)
}

func writeCart(w http.ResponseWriter, status int, l *session.Lifecycle, v session.CartView) error {
	cur := l.Currency()
	writeJSON(w, status, func(e *jx.Encoder) {
		encodeCartView(e, cur, v)
	})
	return nil
}

func (h *Handler) getCart(w http.ResponseWriter, _ *http.Request, l *session.Lifecycle) error {
	return writeCart(w, http.StatusOK, l, l.Cart())
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request, l *session.Lifecycle) error {
	var (
		productID, barcode string
		kind               = pricing.KindSale
		qty                = 1
	)
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			productID, err = d.Str()
		case "barcode":
			barcode, err = d.Str()
		case "kind":
			var s string
			s, err = d.Str()
			kind = pricing.Kind(s)
		case "quantity":
			qty, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return err
	}

	var v session.CartView
	switch {
	case productID != "":
		v, err = l.AddProduct(r.Context(), productID, kind, qty)
	case barcode != "":
		v, err = l.AddBarcode(r.Context(), barcode, kind, qty)
	default:
		return badRequest(errMissing("product_id or barcode"))
	}
	if err != nil {
		return err
	}
	return writeCart(w, http.StatusOK, l, v)
}

func (h *Handler) changeQuantity(w http.ResponseWriter, r *http.Request, l *session.Lifecycle) error {
	key := cart.LineKey{Kind: pricing.KindSale}
	var delta int
	err := decodeBody(r, func(d *jx.Decoder, k string) error {
		var err error
		switch k {
		case "product_id":
			key.ProductID, err = d.Str()
		case "kind":
			var s string
			s, err = d.Str()
			key.Kind = pricing.Kind(s)
		case "delta":
			delta, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return err
	}
	if key.ProductID == "" {
		return badRequest(errMissing("product_id"))
	}
	v, err := l.SetQuantity(r.Context(), key, delta)
	if err != nil {
		return err
	}
	return writeCart(w, http.StatusOK, l, v)
}

func (h *Handler) removeLine(w http.ResponseWriter, r *http.Request, l *session.Lifecycle) error {
	key := cart.LineKey{ProductID: r.PathValue("product"), Kind: pricing.KindSale}
	if k := r.URL.Query().Get("kind"); k != "" {
		key.Kind = pricing.Kind(k)
	}
	v, err := l.RemoveLine(r.Context(), key)
	if err != nil {
		return err
	}
	return writeCart(w, http.StatusOK, l, v)
}

func (h *Handler) setDiscount(w http.ResponseWriter, r *http.Request, l *session.Lifecycle) error {
	var disc pricing.Discount
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "type":
			var s string
			s, err = d.Str()
			disc.Type = pricing.DiscountType(s)
		case "value":
			disc.Value, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return err
	}
	v, err := l.SetDiscount(r.Context(), disc)
	if err != nil {
		return err
	}
	return writeCart(w, http.StatusOK, l, v)
}

// setCustomer attaches an existing account by id, creates one from a name,
// or detaches the customer when the body is empty.
func (h *Handler) setCustomer(w http.ResponseWriter, r *http.Request, l *session.Lifecycle) error {
	var a customer.Account
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			a.ID, err = d.Str()
		case "name":
			a.Name, err = d.Str()
		case "phone":
			a.Phone, err = d.Str()
		case "email":
			a.Email, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return err
	}
	v, err := l.SetCustomer(r.Context(), a)
	if err != nil {
		return err
	}
	return writeCart(w, http.StatusOK, l, v)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request, l *session.Lifecycle) error {
	v, err := l.ClearCart(r.Context())
	if err != nil {
		return err
	}
	return writeCart(w, http.StatusOK, l, v)
}
