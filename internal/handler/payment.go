package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/oolio-pos/internal/domain/payment"
	"github.com/xenking/oolio-pos/internal/domain/poserr"
	"github.com/xenking/oolio-pos/internal/domain/session"
)

// pay settles the live cart and clears it. Without an explicit
// transaction_id the Idempotency-Key becomes the transaction id, so a client
// retry cannot book the sale twice even when the first response was lost.
func (h *Handler) pay(w http.ResponseWriter, r *http.Request, l *session.Lifecycle) error {
	var (
		req       session.SettleRequest
		rec       payment.TenderRecord
		hasTender bool
	)
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "transaction_id":
			req.TransactionID, err = d.Str()
		case "register_id":
			req.RegisterID, err = d.Str()
		case "tender":
			hasTender = true
			rec, err = decodeTender(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return err
	}
	if !hasTender {
		return badRequest(errMissing("tender"))
	}
	if req.Tender, err = rec.Tender(); err != nil {
		return poserr.Invalid("tender", err)
	}
	if req.TransactionID == "" {
		req.TransactionID = idempotencyKey(r)
	}

	res, err := l.Settle(r.Context(), req)
	if err != nil {
		return err
	}
	if !res.Replayed {
		if _, err := l.ClearCart(r.Context()); err != nil {
			zctx.From(r.Context()).Warn("Clear cart after payment",
				zap.String("transaction_id", res.Transaction.ID),
				zap.Error(err),
			)
		}
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	cur := l.Currency()
	writeJSON(w, status, func(e *jx.Encoder) {
		encodeResult(e, cur, res)
	})
	return nil
}

func (h *Handler) listHeld(w http.ResponseWriter, r *http.Request, l *session.Lifecycle) error {
	orders := l.HeldOrders(r.Context())
	cur := l.Currency()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("orders")
		e.ArrStart()
		for _, o := range orders {
			encodeHeld(e, cur, o)
		}
		e.ArrEnd()
		e.ObjEnd()
	})
	return nil
}

func (h *Handler) getHeld(w http.ResponseWriter, r *http.Request, l *session.Lifecycle) error {
	o, err := l.HeldOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		return err
	}
	cur := l.Currency()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeHeld(e, cur, o)
	})
	return nil
}

func (h *Handler) hold(w http.ResponseWriter, r *http.Request, l *session.Lifecycle) error {
	id, err := l.Hold(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(id)
		e.ObjEnd()
	})
	return nil
}

func (h *Handler) recall(w http.ResponseWriter, r *http.Request, l *session.Lifecycle) error {
	v, err := l.Recall(r.Context(), r.PathValue("id"))
	if err != nil {
		return err
	}
	return writeCart(w, http.StatusOK, l, v)
}

func (h *Handler) discard(w http.ResponseWriter, r *http.Request, l *session.Lifecycle) error {
	if err := l.Discard(r.Context(), r.PathValue("id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
