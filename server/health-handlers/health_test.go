package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrschumacher/folio/internal/middleware"
	"github.com/jrschumacher/folio/internal/svrlib"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newMux(checks map[string]Pinger) *http.ServeMux {
	mux := http.NewServeMux()
	RegisterRoutes(svrlib.NewRouter(mux, "", nil, middleware.Stack{}), checks)
	return mux
}

func TestHealthz(t *testing.T) {
	mux := newMux(nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "ok\n" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]Pinger
		wantStatus int
		wantDB     string
	}{
		{"all up", map[string]Pinger{"database": pinger{}}, http.StatusOK, "ok"},
		{"database down", map[string]Pinger{"database": pinger{err: errors.New("closed")}}, http.StatusServiceUnavailable, "closed"},
		{"nil check skipped", map[string]Pinger{"database": pinger{}, "redis": nil}, http.StatusOK, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newMux(tt.checks).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			var body struct {
				Data map[string]string `json:"data"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Data["database"] != tt.wantDB {
				t.Errorf("database = %q, want %q", body.Data["database"], tt.wantDB)
			}
			if _, ok := body.Data["redis"]; ok {
				t.Error("nil check should not be reported")
			}
		})
	}
}
