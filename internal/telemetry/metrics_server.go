package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/openbms-io/bms-edge-agent/internal/common/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessChecker reports whether the agent is ready to serve traffic.
// The mailbox registry implements this so the metrics server doesn't
// need to know about agent internals.
type ReadinessChecker interface {
	IsReady() bool
}

// MetricsServer serves Prometheus metrics and health/readiness probes over HTTP.
type MetricsServer struct {
	server  *http.Server
	metrics *Metrics
	ready   ReadinessChecker
}

// NewMetricsServer creates a metrics server bound to the given agent metrics
// and readiness source.
func NewMetricsServer(m *Metrics, ready ReadinessChecker, port int) *MetricsServer {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if ready == nil || ready.IsReady() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("READY"))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("NOT READY"))
		}
	})

	return &MetricsServer{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
		metrics: m,
		ready:   ready,
	}
}

// Start begins serving metrics. Blocks until Stop is called or the server fails.
func (ms *MetricsServer) Start() error {
	logger.Info("starting metrics server on %s", ms.server.Addr)

	go ms.updateMemoryMetrics()

	if err := ms.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the metrics server.
func (ms *MetricsServer) Stop(ctx context.Context) error {
	logger.Info("stopping metrics server")
	return ms.server.Shutdown(ctx)
}

func (ms *MetricsServer) updateMemoryMetrics() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)
		ms.metrics.SetMemoryUsage(stats.Alloc)
	}
}
