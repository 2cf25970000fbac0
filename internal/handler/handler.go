// Package handler exposes terminal lifecycles over HTTP.
//
// Every terminal route lives under /api/terminals/{terminal}/. Bodies are
// JSON; money is encoded as decimal strings in the session base currency.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/oolio-pos/internal/domain/auth"
	"github.com/xenking/oolio-pos/internal/domain/cart"
	"github.com/xenking/oolio-pos/internal/domain/customer"
	"github.com/xenking/oolio-pos/internal/domain/held"
	"github.com/xenking/oolio-pos/internal/domain/payment"
	"github.com/xenking/oolio-pos/internal/domain/poserr"
	"github.com/xenking/oolio-pos/internal/domain/product"
	"github.com/xenking/oolio-pos/internal/domain/session"
	"github.com/xenking/oolio-pos/internal/terminal"
	"github.com/xenking/oolio-pos/pkg/httpmiddleware"
)

// Handler serves the terminal API.
type Handler struct {
	terminals *terminal.Manager
}

// New returns a Handler backed by terminals.
func New(terminals *terminal.Manager) *Handler {
	return &Handler{terminals: terminals}
}

// terminalFunc handles a request for a resolved terminal. A returned error
// is written with writeError.
type terminalFunc func(w http.ResponseWriter, r *http.Request, l *session.Lifecycle) error

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	const p = "/api/terminals/{terminal}/"

	mux.HandleFunc("GET /api/terminals", h.listTerminals)

	mux.Handle("POST "+p+"location", h.terminal(h.selectLocation))
	mux.Handle("POST "+p+"login", h.terminal(h.login))
	mux.Handle("POST "+p+"session", h.terminal(h.openSession))
	mux.Handle("GET "+p+"session", h.terminal(h.getSession))
	mux.Handle("POST "+p+"session/close", h.terminal(h.closeSession))
	mux.Handle("POST "+p+"session/reset", h.terminal(h.resetSession))

	mux.Handle("GET "+p+"cart", h.terminal(h.getCart))
	mux.Handle("POST "+p+"cart/lines", h.terminal(h.addLine))
	mux.Handle("PATCH "+p+"cart/lines", h.terminal(h.changeQuantity))
	mux.Handle("DELETE "+p+"cart/lines/{product}", h.terminal(h.removeLine))
	mux.Handle("PUT "+p+"cart/discount", h.terminal(h.setDiscount))
	mux.Handle("PUT "+p+"cart/customer", h.terminal(h.setCustomer))
	mux.Handle("DELETE "+p+"cart", h.terminal(h.clearCart))

	mux.Handle("POST "+p+"payments", h.terminal(h.pay))

	mux.Handle("GET "+p+"held", h.terminal(h.listHeld))
	mux.Handle("POST "+p+"held", h.terminal(h.hold))
	mux.Handle("GET "+p+"held/{id}", h.terminal(h.getHeld))
	mux.Handle("POST "+p+"held/{id}/recall", h.terminal(h.recall))
	mux.Handle("DELETE "+p+"held/{id}", h.terminal(h.discard))
}

func (h *Handler) terminal(fn terminalFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("terminal")
		l, err := h.terminals.Get(r.Context(), id)
		if err == nil {
			ctx := zctx.With(r.Context(), zap.String("terminal_id", id))
			r = r.WithContext(context.WithValue(ctx, lifecycleKey{}, l))
			err = fn(w, r, l)
		}
		if err != nil {
			writeError(w, r, err)
		}
	})
}

func (h *Handler) listTerminals(w http.ResponseWriter, _ *http.Request) {
	ids := h.terminals.IDs()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("terminals")
		e.ArrStart()
		for _, id := range ids {
			e.Str(id)
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("malformed request")

func badRequest(err error) error {
	return errors.Wrapf(errBadRequest, "%v", err)
}

// notFound lists sentinels reported as 404 regardless of their kind.
var notFound = []error{
	held.ErrNotFound,
	cart.ErrLineNotFound,
	product.ErrNotFound,
	customer.ErrNotFound,
	payment.ErrRegisterNotFound,
}

// writeError maps domain errors: validation 422, lifecycle state 409,
// collaborator outage 503 (retryable), unknown entity 404.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status = http.StatusInternalServerError
		code   = "internal"
		extra  func(e *jx.Encoder)
	)

	var (
		verr *poserr.ValidationError
		serr *poserr.StateError
	)
	switch {
	case errors.Is(err, errBadRequest):
		status, code = http.StatusBadRequest, "bad_request"
	case errors.Is(err, session.ErrLockedOut):
		status, code = http.StatusTooManyRequests, "locked_out"
		if l, gerr := lifecycleFor(r); gerr == nil {
			if until := l.Info().LockedUntil; !until.IsZero() {
				secs := int(time.Until(until).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
			}
		}
	case errors.Is(err, auth.ErrInvalidCredentials):
		status, code = http.StatusUnauthorized, "invalid_credentials"
	case isNotFound(err):
		status, code = http.StatusNotFound, "not_found"
	case errors.As(err, &verr):
		status, code = http.StatusUnprocessableEntity, "validation"
		extra = func(e *jx.Encoder) {
			if verr.Field != "" {
				e.FieldStart("field")
				e.Str(verr.Field)
			}
		}
	case errors.As(err, &serr):
		status, code = http.StatusConflict, "state"
		extra = func(e *jx.Encoder) {
			e.FieldStart("state")
			e.Str(serr.State)
		}
	case poserr.IsRetryable(err):
		status, code = http.StatusServiceUnavailable, "external"
	}

	lg := zctx.From(r.Context())
	if status >= 500 {
		lg.Error("Request failed", zap.Int("status", status), zap.Error(err))
	} else {
		lg.Debug("Request rejected", zap.Int("status", status), zap.Error(err))
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("error")
		e.Str(msg)
		e.FieldStart("code")
		e.Str(code)
		if poserr.IsRetryable(err) {
			e.FieldStart("retryable")
			e.Bool(true)
		}
		if extra != nil {
			extra(e)
		}
		if id := httpmiddleware.RequestIDFromContext(r.Context()); id != "" {
			e.FieldStart("request_id")
			e.Str(id)
		}
		e.ObjEnd()
	})
}

func isNotFound(err error) bool {
	for _, target := range notFound {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type lifecycleKey struct{}

// lifecycleFor is only used for error decoration; it never creates a
// terminal that does not exist yet.
func lifecycleFor(r *http.Request) (*session.Lifecycle, error) {
	if l, ok := r.Context().Value(lifecycleKey{}).(*session.Lifecycle); ok {
		return l, nil
	}
	return nil, errors.New("no terminal in context")
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
