package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

func TestNilLedgerIsNoop(t *testing.T) {
	var m *Ledger
	m.ObserveMutation("order", "procedure", "applied")
	m.ObserveAuditFailure("order")
	m.ObserveAuditDropped()
	m.ObserveRefresh("orders", nil)
}

func TestHandler_ExposesLedgerCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedger(reg)
	m.ObserveMutation("bed_inventory", "fallback", "applied")
	m.ObserveRefresh("beds", errors.New("boom"))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := Handler(reg)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `ledger_mutations_total{entity="bed_inventory",outcome="applied",path="fallback"} 1`) {
		t.Errorf("mutation counter missing from output:\n%s", body)
	}
	if !strings.Contains(body, `ledger_collection_refreshes_total{collection="beds",result="error"} 1`) {
		t.Errorf("refresh counter missing from output:\n%s", body)
	}
}
