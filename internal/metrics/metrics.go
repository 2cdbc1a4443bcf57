// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SimulationCycles counts completed (or attempted) simulation ticks.
	SimulationCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bms_simulation_cycles_total",
		Help: "Total number of simulation cycles run",
	})

	// SimulationErrors counts contained per-cycle/per-device failures.
	SimulationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bms_simulation_errors_total",
		Help: "Total number of contained simulation errors",
	})

	// ReadingsWritten counts persisted telemetry rows.
	ReadingsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bms_readings_written_total",
		Help: "Total number of telemetry readings written",
	})

	// AlertsTriggered counts alert rows created by the evaluator.
	AlertsTriggered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bms_alerts_triggered_total",
		Help: "Total number of alerts triggered",
	})

	// WebsocketClients tracks currently subscribed live clients.
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bms_websocket_clients",
		Help: "Number of connected websocket clients",
	})

	// BroadcastsSent counts telemetry_update fan-outs.
	BroadcastsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bms_broadcasts_sent_total",
		Help: "Total number of telemetry update broadcasts",
	})

	// RequestsTotal counts HTTP requests by endpoint, method and status.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bms_http_requests_total",
		Help: "Total number of HTTP requests processed",
	}, []string{"endpoint", "method", "status"})

	// RequestDuration observes HTTP request latency.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bms_http_request_duration_seconds",
		Help:    "Request duration in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"endpoint", "method"})
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware instruments every request with count and duration.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		RequestsTotal.WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rec.status)).Inc()
		RequestDuration.WithLabelValues(r.URL.Path, r.Method).Observe(time.Since(start).Seconds())
	})
}
