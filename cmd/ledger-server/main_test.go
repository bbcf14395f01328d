package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/carehub/ledger/internal/config"
	"github.com/carehub/ledger/internal/domain/facility"
	"github.com/carehub/ledger/internal/platform/remote/remotetest"
)

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func testConfig(env string) *config.Config {
	return &config.Config{
		Env:               env,
		AuthJWTSecret:     strings.Repeat("k", 32),
		CORSOrigins:       []string{"http://localhost:3000"},
		RemoteCallTimeout: time.Second,
		RefreshDelay:      time.Hour,
		AuditQueueSize:    16,
		AuditTimeout:      time.Second,
		SweepSchedule:     "@every 5m",
		RateLimitRPS:      100,
		RateLimitBurst:    100,
		RequestTimeout:    5 * time.Second,
	}
}

func newTestApp(t *testing.T, env string) (*app, *remotetest.Store) {
	t.Helper()
	store := remotetest.New()
	store.Seed("orders", map[string]any{"id": "o1", "status": "pending", "total": "12.50", "created_at": "2026-05-01T10:00:00Z"})
	a := newApp(testConfig(env), store, okPinger{}, newRegistry(), zerolog.Nop())
	t.Cleanup(a.close)
	return a, store
}

func TestApp_RegistersAdminRoutes(t *testing.T) {
	a, _ := newTestApp(t, "development")

	routes := make(map[string]bool)
	for _, r := range a.echo.Routes() {
		routes[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"GET /metrics",
		"GET /api/v1/admin/orders",
		"POST /api/v1/admin/orders/:id/transition",
		"PUT /api/v1/admin/beds/:bed_type",
		"PUT /api/v1/admin/theaters/:name",
		"POST /api/v1/admin/bookings/:id/transition",
		"POST /api/v1/admin/blood/donors/:id/transition",
		"POST /api/v1/admin/tickets/:id/transition",
		"PUT /api/v1/admin/alerts/:id",
		"POST /api/v1/admin/credentials/:origin/:id/approve",
		"DELETE /api/v1/admin/doctors/:id",
	} {
		if !routes[want] {
			t.Errorf("route %s not registered", want)
		}
	}
}

func TestApp_DevModeServesOrders(t *testing.T) {
	a, _ := newTestApp(t, "development")

	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"o1"`) {
		t.Errorf("expected order o1 in %s", rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("expected a request id header")
	}
}

func TestApp_ProductionRequiresToken(t *testing.T) {
	a, _ := newTestApp(t, "production")

	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestApp_HealthAndMetrics(t *testing.T) {
	a, _ := newTestApp(t, "development")

	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected healthy, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	a.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("expected prometheus exposition, got %d", rec.Code)
	}
}

func TestApp_SweepRejectsBadSchedule(t *testing.T) {
	a, _ := newTestApp(t, "development")

	if _, err := a.sweep("not a schedule", time.Second); err == nil {
		t.Error("expected an invalid schedule to be rejected")
	}
	c, err := a.sweep("@every 1h", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-c.Stop().Done()
	if n := len(a.collections()); n < 9 {
		t.Errorf("expected every reconciled collection in the sweep, got %d", n)
	}
}

func TestCanonicalReport(t *testing.T) {
	store := remotetest.New()
	store.Seed("bed_inventory",
		map[string]any{"id": "gen-old", "bed_type": "General", "total_beds": 40, "available_beds": 10, "updated_at": "2026-04-01T00:00:00Z"},
		map[string]any{"id": "gen-new", "bed_type": "General", "total_beds": 42, "available_beds": 12, "updated_at": "2026-04-02T00:00:00Z"},
		map[string]any{"id": "icu-1", "bed_type": "ICU", "total_beds": 10, "available_beds": 3, "updated_at": "2026-04-01T00:00:00Z"},
	)

	var out bytes.Buffer
	if err := canonicalReport(context.Background(), &out, facility.NewRepository(store)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %q", out.String())
	}
	if !strings.Contains(lines[1], "gen-new") || !strings.Contains(lines[1], "[gen-old]") {
		t.Errorf("unexpected General row %q", lines[1])
	}
	if store.Writes() != 0 {
		t.Error("report must not write")
	}
}
