package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeProbe(t *testing.T, rec *httptest.ResponseRecorder) probeResult {
	t.Helper()
	var res probeResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return res
}

func TestHealthzAlwaysOK(t *testing.T) {
	h := New()
	h.AddCheck("db", func(context.Context) error { return errors.New("down") })

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if res := decodeProbe(t, rec); res.Status != "ok" {
		t.Errorf("status field = %q", res.Status)
	}
}

func TestReadyzAllPassing(t *testing.T) {
	h := New()
	h.AddCheck("history", func(context.Context) error { return nil })
	h.AddCheck("blob", func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	res := decodeProbe(t, rec)
	if res.Checks["history"] != "ok" || res.Checks["blob"] != "ok" {
		t.Errorf("checks = %v", res.Checks)
	}
}

func TestReadyzFailingCheck(t *testing.T) {
	h := New()
	h.AddCheck("history", func(context.Context) error { return errors.New("connection refused") })

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	res := decodeProbe(t, rec)
	if res.Status != "fail" {
		t.Errorf("status field = %q", res.Status)
	}
	if res.Checks["history"] != "fail: connection refused" {
		t.Errorf("checks = %v", res.Checks)
	}
}

func TestRegisterRoutes(t *testing.T) {
	h := New()
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d", rec.Code)
	}
}
