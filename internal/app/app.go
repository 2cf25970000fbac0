// Package app wires the point-of-sale server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/oolio-pos/internal/domain/currency"
	"github.com/xenking/oolio-pos/internal/domain/payment"
	"github.com/xenking/oolio-pos/internal/domain/session"
	"github.com/xenking/oolio-pos/internal/handler"
	"github.com/xenking/oolio-pos/internal/storage/snapshot"
	"github.com/xenking/oolio-pos/internal/terminal"
	"github.com/xenking/oolio-pos/pkg/health"
	"github.com/xenking/oolio-pos/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	return Serve(ctx, lg, m.MeterProvider(), m.TracerProvider(), cfg)
}

// Serve is Run with explicit telemetry providers. It returns once ctx is
// cancelled and the server has drained.
func Serve(ctx context.Context, lg *zap.Logger, mp metric.MeterProvider, tp trace.TracerProvider, cfg *Config) error {
	ctx = zctx.Base(ctx, lg)
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
		zap.String("currency", cfg.BaseCurrency),
	)

	be, err := openBackend(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	idem, idemPinger, closeIdem, err := openIdempotency(ctx, cfg.Idempotency)
	if err != nil {
		return errors.Wrap(err, "idempotency store")
	}
	defer closeIdem()

	snapshots, err := snapshot.NewFileRepository(cfg.Snapshot.Dir)
	if err != nil {
		return errors.Wrap(err, "snapshot repository")
	}

	settler, err := payment.NewSettler(be.ledger, be.registers,
		payment.WithLedgerTimeout(cfg.Ledger.Timeout),
		payment.WithLogger(lg.Named("settle")),
		payment.WithTracerProvider(tp),
		payment.WithMeterProvider(mp),
	)
	if err != nil {
		return errors.Wrap(err, "create settler")
	}

	terminals := terminal.NewManager(func(id string) (*session.Lifecycle, error) {
		return session.New(session.Options{
			TerminalID:      id,
			Currency:        currency.Currency(cfg.BaseCurrency),
			Catalog:         be.catalog,
			Employees:       be.employees,
			Customers:       be.customers,
			Registers:       be.registers,
			Rates:           be.rates,
			Settler:         settler,
			Repository:      snapshots,
			Reports:         be.reports,
			Ledger:          be.ledger,
			MaxAuthAttempts: cfg.Auth.MaxAttempts,
			Lockout:         cfg.Auth.Lockout,
			HeldTTL:         cfg.Held.TTL,
			Logger:          lg.Named("terminal"),
			MeterProvider:   mp,
		})
	}, lg.Named("terminals"))

	// Health check service.
	healthSvc := health.New(lg.Named("health"))
	if be.db != nil {
		healthSvc.Add(health.Readiness, "postgres", 5*time.Second, health.PingCheck(be.db))
	}
	if idemPinger != nil {
		healthSvc.Add(health.Readiness, "redis", 2*time.Second, health.PingCheck(idemPinger))
	}
	healthSvc.Add(health.Readiness, "snapshots", time.Second, health.DirWritableCheck(snapshots.Dir()))
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	instrument, err := httpmiddleware.Instrument(mp, httpmiddleware.PatternRoute)
	if err != nil {
		return errors.Wrap(err, "http metrics")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	handler.New(terminals).Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Settlement may wait for the ledger.
		WriteTimeout:   cfg.Ledger.Timeout + 10*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: otelhttp.NewHandler(httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins: cfg.CORS.Origins,
				Headers: []string{
					"Content-Type",
					httpmiddleware.RequestIDHeader,
					handler.IdempotencyKeyHeader,
				},
				Expose:      []string{httpmiddleware.RequestIDHeader, handler.ReplayedHeader, "Retry-After"},
				Credentials: cfg.CORS.AllowCredentials,
				MaxAge:      86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Key:    httpmiddleware.TerminalKey,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			instrument,
			httpmiddleware.LogRequests(httpmiddleware.PatternRoute),
			handler.Idempotency(idem),
		), "pos-api",
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithMeterProvider(mp),
		),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gCtx.Done()
		healthSvc.SetReady(false)
		if ctx.Err() != nil {
			lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server",
			zap.Duration("timeout", cfg.Graceful.ShutdownTimeout),
			zap.Strings("terminals", terminals.IDs()),
		)
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})
	return g.Wait()
}
