package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding-window limiter.
type RateLimitConfig struct {
	// Max requests per Window and key. Zero disables limiting.
	Max    int
	Window time.Duration
	// Key selects the bucket; ClientIP when nil.
	Key func(*http.Request) string
}

// window counts requests in the current and previous fixed windows. The
// effective count weights the previous window by its remaining overlap.
type window struct {
	start time.Time
	curr  float64
	prev  float64
}

type limiter struct {
	max   int
	size  time.Duration
	key   func(*http.Request) string
	mu    sync.Mutex
	keys  map[string]*window
	nowFn func() time.Time
}

func newLimiter(cfg RateLimitConfig) *limiter {
	key := cfg.Key
	if key == nil {
		key = ClientIP
	}
	return &limiter{
		max:   cfg.Max,
		size:  cfg.Window,
		key:   key,
		keys:  make(map[string]*window),
		nowFn: time.Now,
	}
}

func (l *limiter) take(key string) (remaining int, reset time.Time, ok bool) {
	now := l.nowFn()

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.keys[key]
	if w == nil {
		w = &window{start: now.Truncate(l.size)}
		l.keys[key] = w
	}
	if elapsed := now.Sub(w.start); elapsed >= l.size {
		if elapsed >= 2*l.size {
			w.prev = 0
		} else {
			w.prev = w.curr
		}
		w.curr = 0
		w.start = now.Truncate(l.size)
	}

	overlap := 1 - float64(now.Sub(w.start))/float64(l.size)
	count := w.prev*math.Max(overlap, 0) + w.curr
	reset = w.start.Add(l.size)
	if count >= float64(l.max) {
		return 0, reset, false
	}
	w.curr++
	return max(int(float64(l.max)-(count+1)), 0), reset, true
}

func (l *limiter) sweep() {
	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, w := range l.keys {
		if now.Sub(w.start) >= 2*l.size {
			delete(l.keys, k)
		}
	}
}

// RateLimit limits requests per key. Rejected requests get 429 with
// Retry-After; all responses carry X-RateLimit-* headers. Idle keys are
// swept every two windows until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	if cfg.Max <= 0 || cfg.Window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	l := newLimiter(cfg)
	go func() {
		t := time.NewTicker(2 * l.size)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.sweep()
			}
		}
	}()
	return l.middleware
}

func (l *limiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remaining, reset, ok := l.take(l.key(r))

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(l.max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		if !ok {
			wait := math.Ceil(max(reset.Sub(l.nowFn()), 0).Seconds())
			h.Set("Retry-After", strconv.Itoa(int(wait)))
			WriteError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP keys by the first X-Forwarded-For hop, X-Real-IP, or the peer.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// TerminalKey keys by the {terminal} path value when the route has one, so
// each till gets its own budget.
func TerminalKey(r *http.Request) string {
	if id := r.PathValue("terminal"); id != "" {
		return "terminal:" + id
	}
	if id := terminalFromPath(r.URL.Path); id != "" {
		return "terminal:" + id
	}
	return ClientIP(r)
}

// terminalFromPath extracts the id from /api/terminals/{id}/... for
// middlewares that run before the mux has matched a pattern.
func terminalFromPath(p string) string {
	rest, ok := strings.CutPrefix(p, "/api/terminals/")
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(rest, "/")
	return id
}
