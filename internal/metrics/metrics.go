// Package metrics exposes the decoder's operational counters via
// Prometheus, using the teacher's client_golang dependency (previously
// listed in go.mod but unwired in the retrieved tree).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snapetech/telxtuner/internal/health"
)

// Collectors holds the decoder's counters and gauges. The decoder pipeline
// updates TSPacketsTotal, FramesEmittedTotal and ClockDeltaMillis; the
// continuity, Hamming and parity counters are registered but nothing
// increments them.
type Collectors struct {
	registry *prometheus.Registry

	TSPacketsTotal        prometheus.Counter
	ContinuityErrorsTotal prometheus.Counter
	Hamming84FailTotal    prometheus.Counter
	Hamming2418FailTotal  prometheus.Counter
	ParityFailTotal       prometheus.Counter
	FramesEmittedTotal    prometheus.Counter
	ClockDeltaMillis      prometheus.Gauge
}

// New registers and returns the decoder's metric collectors on a
// private registry (never the global default, so multiple decoders in
// one process never collide).
func New() *Collectors {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collectors{
		registry: reg,
		TSPacketsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "telxtuner",
			Name:      "ts_packets_total",
			Help:      "Total Transport Stream packets fed to the decoder, on any PID.",
		}),
		ContinuityErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "telxtuner",
			Name:      "continuity_errors_total",
			Help:      "Total unflagged continuity-counter breaks, each dropping an in-flight PES assembly.",
		}),
		Hamming84FailTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "telxtuner",
			Name:      "hamming84_failures_total",
			Help:      "Total uncorrectable Hamming(8,4) decodes.",
		}),
		Hamming2418FailTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "telxtuner",
			Name:      "hamming2418_failures_total",
			Help:      "Total uncorrectable Hamming(24,18) decodes.",
		}),
		ParityFailTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "telxtuner",
			Name:      "parity_failures_total",
			Help:      "Total odd-parity failures on Teletext character bytes.",
		}),
		FramesEmittedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "telxtuner",
			Name:      "frames_emitted_total",
			Help:      "Total rendered subtitle frames emitted.",
		}),
		ClockDeltaMillis: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "telxtuner",
			Name:      "clock_delta_millis",
			Help:      "Most recent PTS/PCR-to-UTC clock delta, in milliseconds.",
		}),
	}
}

// Serve starts an HTTP server exposing /metrics and /healthz on addr.
// It blocks until the server stops; callers typically run it in its own
// goroutine.
func Serve(addr string, c *Collectors, tracker *health.Tracker) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", tracker.Handler())
	return http.ListenAndServe(addr, mux)
}
