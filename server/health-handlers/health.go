package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jrschumacher/folio/internal/httputil"
	"github.com/jrschumacher/folio/internal/svrlib"
)

// Pinger is a dependency readiness depends on.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthRouter struct {
	*svrlib.Router
	checks map[string]Pinger
}

// RegisterRoutes registers all health check routes on the router's mux.
// checks are probed by /readyz; a nil entry is skipped.
func RegisterRoutes(r *svrlib.Router, checks map[string]Pinger) *HealthRouter {
	router := &HealthRouter{Router: r, checks: checks}
	raw := r.Raw()
	raw.HandleFunc("GET "+r.BaseRoute+"/healthz", router.HealthzHandler)
	raw.HandleFunc("GET "+r.BaseRoute+"/readyz", router.ReadyzHandler)
	return router
}

// HealthzHandler responds to /healthz requests for health checks
func (rt *HealthRouter) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "ok")
}

// ReadyzHandler reports each dependency's status and fails with 503 if any is down.
func (rt *HealthRouter) ReadyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(rt.checks))
	for name, check := range rt.checks {
		if check == nil {
			continue
		}
		if err := check.Ping(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	httputil.WriteData(w, status, results)
}
