package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-pos/internal/domain/session"
)

func (h *Handler) selectLocation(w http.ResponseWriter, r *http.Request, l *session.Lifecycle) error {
	var branchID, registerID string
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "branch_id":
			branchID, err = d.Str()
		case "register_id":
			registerID, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return err
	}
	if err := l.SelectLocation(r.Context(), branchID, registerID); err != nil {
		return err
	}
	return writeInfo(w, http.StatusOK, l)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request, l *session.Lifecycle) error {
	var employeeID, pin string
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "employee_id":
			employeeID, err = d.Str()
		case "pin":
			pin, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return err
	}
	emp, err := l.Authenticate(r.Context(), employeeID, pin)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("state")
		e.Str(string(l.State()))
		e.FieldStart("employee")
		encodeEmployee(e, emp)
		e.ObjEnd()
	})
	return nil
}

func (h *Handler) openSession(w http.ResponseWriter, r *http.Request, l *session.Lifecycle) error {
	opening := decimal.Zero
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "opening_balance" {
			return d.Skip()
		}
		var err error
		opening, err = decodeDecimal(d)
		return err
	})
	if err != nil {
		return err
	}
	s, err := l.Open(r.Context(), opening)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeSession(e, s)
	})
	return nil
}

func (h *Handler) getSession(w http.ResponseWriter, _ *http.Request, l *session.Lifecycle) error {
	return writeInfo(w, http.StatusOK, l)
}

func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request, l *session.Lifecycle) error {
	var (
		counted decimal.Decimal
		seen    bool
	)
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "counted" {
			return d.Skip()
		}
		seen = true
		var err error
		counted, err = decodeDecimal(d)
		return err
	})
	if err != nil {
		return err
	}
	if !seen {
		return badRequest(errMissing("counted"))
	}
	rep, err := l.Close(r.Context(), counted)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeReport(e, rep)
	})
	return nil
}

func (h *Handler) resetSession(w http.ResponseWriter, _ *http.Request, l *session.Lifecycle) error {
	if err := l.Reset(); err != nil {
		return err
	}
	return writeInfo(w, http.StatusOK, l)
}

func writeInfo(w http.ResponseWriter, status int, l *session.Lifecycle) error {
	info := l.Info()
	writeJSON(w, status, func(e *jx.Encoder) {
		encodeInfo(e, info)
	})
	return nil
}
