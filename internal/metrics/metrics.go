// Package metrics exposes the harness's calibration and run counters as
// Prometheus gauges/counters, served over plain net/http (spec.md's
// ambient observability is a Non-goal for the report itself, but the
// teacher repo's own metrics registry, pkg/metrics/registry.go, wires
// client_golang the same way for its own operational counters — this
// module is the same pattern applied to harness-specific series). It is
// opt-in: a run that never calls Serve never touches the default
// registerer.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the harness's exported series. Values are set once per
// run from the barrier's final Snapshot (pkg/harness), not updated live;
// a run is a single batch job, not a long-lived server.
type Collector struct {
	registry       *prometheus.Registry
	overheadNS     prometheus.Gauge
	resolutionNS   prometheus.Gauge
	batchesTotal   prometheus.Counter
	errorsTotal    prometheus.Counter
	quantErrsTotal prometheus.Counter
}

// New creates a Collector registered against its own prometheus.Registry,
// so an embedder can serve it without polluting the global default
// registry (the teacher repo's registry.go does the same for its own
// replication counters).
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		overheadNS: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "microharness",
			Name:      "clock_overhead_nanoseconds",
			Help:      "Calibrated mean overhead of one clock read, in nanoseconds.",
		}),
		resolutionNS: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "microharness",
			Name:      "clock_resolution_nanoseconds",
			Help:      "Calibrated clock resolution, in nanoseconds.",
		}),
		batchesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "microharness",
			Name:      "batches_total",
			Help:      "Number of batch samples committed during the run.",
		}),
		errorsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "microharness",
			Name:      "kernel_errors_total",
			Help:      "Number of kernel-reported errors summed across the run.",
		}),
		quantErrsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "microharness",
			Name:      "quantization_errors_total",
			Help:      "Number of samples whose span fell below 100x clock resolution.",
		}),
	}
	return c
}

// Observe records calibration constants and the final snapshot totals.
// Call once, after pkg/harness.Run's worker rectangle has joined.
func (c *Collector) Observe(overheadNS, resolutionNS, batches, errorsTotal, quantErrors int64) {
	c.overheadNS.Set(float64(overheadNS))
	c.resolutionNS.Set(float64(resolutionNS))
	c.batchesTotal.Add(float64(batches))
	c.errorsTotal.Add(float64(errorsTotal))
	c.quantErrsTotal.Add(float64(quantErrors))
}

// Serve starts a /metrics endpoint on addr and blocks until ctx is
// cancelled or the listener fails. Gated behind the caller's own
// --metrics-addr flag; most invocations never call this.
func Serve(ctx context.Context, addr string, c *Collector) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
