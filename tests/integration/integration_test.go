//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/oolio-pos/internal/app"
	"github.com/xenking/oolio-pos/internal/demo"
	"github.com/xenking/oolio-pos/internal/storage/postgres"
)

var (
	baseURL    string
	httpClient *http.Client
	pool       *pgxpool.Pool
)

// Response types. Only the fields the tests look at are decoded.

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Field     string `json:"field"`
	Retryable bool   `json:"retryable"`
}

type totalsResponse struct {
	Subtotal   string `json:"subtotal"`
	TaxTotal   string `json:"tax_total"`
	Discount   string `json:"discount_amount"`
	GrandTotal string `json:"grand_total"`
}

type cartResponse struct {
	Lines []struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	} `json:"lines"`
	Totals totalsResponse `json:"totals"`
}

type paymentResponse struct {
	Transaction struct {
		ID     string `json:"id"`
		Amount string `json:"amount"`
	} `json:"transaction"`
	Change   string `json:"change"`
	Replayed bool   `json:"replayed"`
}

type reportResponse struct {
	SessionID    string `json:"session_id"`
	ExpectedCash string `json:"expected_cash"`
	Variance     string `json:"variance"`
	Balanced     bool   `json:"balanced"`
	TxCount      int    `json:"tx_count"`
}

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "pos",
				"POSTGRES_PASSWORD": "pos",
				"POSTGRES_DB":       "pos",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() { _ = pg.Terminate(context.Background()) }()

	rd, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start redis: %v", err)
	}
	defer func() { _ = rd.Terminate(context.Background()) }()

	pgEndpoint, err := pg.Endpoint(ctx, "")
	if err != nil {
		log.Fatalf("postgres endpoint: %v", err)
	}
	redisEndpoint, err := rd.Endpoint(ctx, "")
	if err != nil {
		log.Fatalf("redis endpoint: %v", err)
	}
	dsn := fmt.Sprintf("postgres://pos:pos@%s/pos?sslmode=disable", pgEndpoint)

	pool, err = postgres.NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer pool.Close()
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	if err := seed(ctx, pool); err != nil {
		log.Fatalf("seed: %v", err)
	}

	snapshotDir, err := os.MkdirTemp("", "pos-snapshots")
	if err != nil {
		log.Fatalf("snapshot dir: %v", err)
	}
	defer func() { _ = os.RemoveAll(snapshotDir) }()

	addr, err := freeAddr()
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	cfg := &app.Config{
		Addr:         addr,
		Storage:      app.StoragePostgres,
		DatabaseURL:  dsn,
		BaseCurrency: "EUR",
		Snapshot:     app.SnapshotConfig{Dir: snapshotDir},
		Ledger:       app.LedgerConfig{Timeout: 5 * time.Second},
		Auth:         app.AuthConfig{MaxAttempts: 3, Lockout: time.Minute},
		Catalog:      app.CatalogConfig{CacheSize: 128},
		Idempotency: app.IdempotencyConfig{
			Backend:   app.IdempotencyRedis,
			RedisAddr: redisEndpoint,
			TTL:       time.Hour,
			KeyPrefix: "it:",
		},
		RateLimit: app.RateLimitConfig{Max: 1000, Window: time.Minute},
		CORS:      app.CORSConfig{Origins: []string{"*"}},
		Graceful:  app.GracefulConfig{ShutdownTimeout: 10 * time.Second},
	}

	srvCtx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- app.Serve(srvCtx, zap.NewNop(), metricnoop.NewMeterProvider(), tracenoop.NewTracerProvider(), cfg)
	}()

	baseURL = "http://" + addr
	httpClient = &http.Client{Timeout: 10 * time.Second}
	if err := waitReady(ctx, done); err != nil {
		log.Fatalf("wait for server: %v", err)
	}
	log.Printf("API available at %s", baseURL)

	result := m.Run()

	stop()
	if err := <-done; err != nil {
		log.Printf("server: %v", err)
	}
	return result
}

func seed(ctx context.Context, pool *pgxpool.Pool) error {
	if err := postgres.NewCatalogRepository(pool).Upsert(ctx, demo.Products()); err != nil {
		return err
	}
	employees := postgres.NewEmployeeRepository(pool)
	for _, s := range demo.Employees() {
		hash, err := bcrypt.GenerateFromPassword([]byte(s.PIN), bcrypt.MinCost)
		if err != nil {
			return err
		}
		if err := employees.Upsert(ctx, s.Employee, hash); err != nil {
			return err
		}
	}
	registers := postgres.NewRegisterRepository(pool)
	for _, reg := range demo.Registers() {
		if err := registers.Upsert(ctx, reg); err != nil {
			return err
		}
	}
	rates := postgres.NewRateRepository(pool)
	for _, r := range demo.Rates() {
		if err := rates.Upsert(ctx, r.From, r.To, r.Rate); err != nil {
			return err
		}
	}
	return nil
}

func freeAddr() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer func() { _ = l.Close() }()
	return l.Addr().String(), nil
}

// waitReady polls /readyz until the server reports ready.
func waitReady(ctx context.Context, done <-chan error) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			return fmt.Errorf("server exited: %v", err)
		case <-ticker.C:
			resp, err := httpClient.Get(baseURL + "/readyz")
			if err != nil {
				continue
			}
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
	}
}

// HTTP helpers.

func do(t *testing.T, method, path string, body any, headers ...string) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, baseURL+path, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func doGet(t *testing.T, path string) *http.Response {
	t.Helper()
	return do(t, http.MethodGet, path, nil)
}

func doPost(t *testing.T, path string, body any, headers ...string) *http.Response {
	t.Helper()
	return do(t, http.MethodPost, path, body, headers...)
}

// expect asserts the status and decodes the body into T.
func expect[T any](t *testing.T, resp *http.Response, status int) T {
	t.Helper()
	defer resp.Body.Close()

	if resp.StatusCode != status {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		t.Fatalf("expected %d, got %d (%s: %s)", status, resp.StatusCode, e.Code, e.Error)
	}
	var v T
	if resp.StatusCode == http.StatusNoContent {
		return v
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}
