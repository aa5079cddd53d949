package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServiceStatus is the probe result for a single dependency.
type ServiceStatus struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ServiceChecker probes one dependency (a provider, the store, ...) and
// reports its status. Implementations must not block longer than the
// context deadline.
type ServiceChecker func(ctx context.Context) ServiceStatus

// HealthReport is the JSON payload returned by /healthz, per the CLI
// health-probe contract: status, per-service breakdown, and uptime.
type HealthReport struct {
	Status     string                   `json:"status"` // ok | degraded | error
	Services   map[string]ServiceStatus `json:"services"`
	UptimeSec  int64                    `json:"uptime_sec"`
}

// Server exposes /healthz and /metrics on one HTTP listener.
type Server struct {
	httpServer *http.Server
	checkers   map[string]ServiceChecker
	startedAt  time.Time
}

// NewServer builds a health/metrics server. checkers maps a service name to
// the function that probes it; startedAt is used to compute uptime_sec.
func NewServer(addr string, checkers map[string]ServiceChecker, startedAt time.Time) *Server {
	s := &Server{checkers: checkers, startedAt: startedAt}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server stops or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	report := HealthReport{
		Status:    "ok",
		Services:  make(map[string]ServiceStatus, len(s.checkers)),
		UptimeSec: int64(time.Since(s.startedAt).Seconds()),
	}

	for name, check := range s.checkers {
		start := time.Now()
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		status := check(ctx)
		cancel()
		if status.LatencyMs == 0 {
			status.LatencyMs = time.Since(start).Milliseconds()
		}
		report.Services[name] = status
		if status.Status == "error" {
			report.Status = "error"
		} else if status.Status == "degraded" && report.Status == "ok" {
			report.Status = "degraded"
		}
	}

	statusCode := http.StatusOK
	switch report.Status {
	case "degraded":
		statusCode = http.StatusOK
	case "error":
		statusCode = http.StatusServiceUnavailable
	}

	data, err := json.Marshal(report)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(statusCode)
	_, _ = w.Write(data)
}
