package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mcpbroker/internal/domain"
)

// HealthReport is the body of /healthz.
type HealthReport struct {
	Status  string                 `json:"status"`
	Servers []domain.NamespaceInfo `json:"servers,omitempty"`
}

// HealthFunc reports current health; any status other than "ok" answers 503.
type HealthFunc func(ctx context.Context) HealthReport

type HTTPServerOptions struct {
	Addr     string
	Registry prometheus.Gatherer
	Health   HealthFunc
	// Handlers are mounted next to /metrics and /healthz.
	Handlers map[string]http.Handler
	// Ready, if set, receives the bound address once listening.
	Ready func(addr string)
}

// StartHTTPServer serves /metrics, /healthz and the extra handlers until ctx
// is done, then shuts down gracefully.
func StartHTTPServer(ctx context.Context, opts HTTPServerOptions, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	addr := opts.Addr
	if addr == "" {
		addr = domain.DefaultObservabilityListenAddress
	}
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", healthHandler(opts.Health))
	for pattern, handler := range opts.Handlers {
		mux.Handle(pattern, handler)
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("observability server failed to start: %w", err)
	}
	server := &http.Server{
		Handler:           WithRequestID(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("observability server listening", zap.String("addr", listener.Addr().String()))
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	if opts.Ready != nil {
		opts.Ready(listener.Addr().String())
	}

	select {
	case err := <-errChan:
		return fmt.Errorf("observability server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("observability server shutdown error", zap.Error(err))
			return err
		}
		logger.Info("observability server stopped")
		return nil
	}
}

func healthHandler(health HealthFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := HealthReport{Status: "ok"}
		if health != nil {
			report = health(r.Context())
		}

		status := http.StatusOK
		if report.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		WriteJSON(w, status, report)
	})
}

// WriteJSON writes v as a JSON response body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
