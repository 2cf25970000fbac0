package handler

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/oolio-pos/internal/cache"
	"github.com/xenking/oolio-pos/pkg/httpmiddleware"
)

// IdempotencyKeyHeader names the client retry key. X-Request-ID is used when
// it is absent.
const IdempotencyKeyHeader = "Idempotency-Key"

// ReplayedHeader is set on responses served from the idempotency store.
const ReplayedHeader = "Idempotent-Replayed"

func idempotencyKey(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader)); k != "" {
		return k
	}
	return strings.TrimSpace(r.Header.Get(httpmiddleware.RequestIDHeader))
}

// Idempotency replays the stored response of a mutating request retried with
// the same key. Responses of 5xx and 429 are not stored so the retry runs
// again. A store outage degrades to plain execution.
func Idempotency(store cache.IdempotencyStore) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := idempotencyKey(r)
			if key == "" || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			key = r.Method + " " + r.URL.Path + " " + key

			ctx := r.Context()
			lg := zctx.From(ctx)
			cached, err := store.Begin(ctx, key)
			switch {
			case errors.Is(err, cache.ErrInProgress):
				httpmiddleware.WriteError(w, http.StatusConflict, "in_progress",
					"a request with this idempotency key is in progress")
				return
			case err != nil:
				lg.Warn("Idempotency store unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			case cached != nil:
				w.Header().Set("Content-Type", cached.ContentType)
				w.Header().Set(ReplayedHeader, "true")
				w.WriteHeader(cached.Status)
				_, _ = w.Write(cached.Body)
				return
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status >= 500 || rec.status == http.StatusTooManyRequests {
				if err := store.Release(ctx, key); err != nil {
					lg.Warn("Release idempotency key", zap.Error(err))
				}
				return
			}
			resp := cache.Response{
				Status:      rec.status,
				ContentType: w.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			}
			if err := store.Complete(ctx, key, resp); err != nil {
				lg.Warn("Store idempotent response", zap.Error(err))
			}
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// recorder tees the response body while writing it through.
type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
