package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestServer_Healthz(t *testing.T) {
	s := NewServer(":0", nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestServer_Readyz(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]ReadinessCheck
		code   int
	}{
		{"no checks", nil, http.StatusOK},
		{"passing", map[string]ReadinessCheck{
			"db": func(context.Context) error { return nil },
		}, http.StatusOK},
		{"failing", map[string]ReadinessCheck{
			"db": func(context.Context) error { return errors.New("down") },
		}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(":0", tt.checks)
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rec.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, rec.Code)
			}
			if tt.code != http.StatusOK && !strings.Contains(rec.Body.String(), "db") {
				t.Errorf("expected failing check name in body, got %q", rec.Body.String())
			}
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	s := NewServer(":0", nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestServer_ReadyReportsEveryCheck(t *testing.T) {
	s := NewServer(":0", map[string]ReadinessCheck{
		"database": func(context.Context) error { return nil },
		"storage":  func(context.Context) error { return errors.New("bucket unreachable") },
	})

	ready, results := s.Ready(context.Background())
	if ready {
		t.Fatal("expected not ready")
	}
	if results["database"] != "ok" || results["storage"] != "bucket unreachable" {
		t.Errorf("unexpected results %v", results)
	}
}
