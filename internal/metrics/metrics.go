// Package metrics defines vectord's Prometheus metrics and the HTTP
// listener that exposes them: package-level collectors registered once,
// small helper functions called from the request path, served over
// promhttp.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vectord_requests_total",
		Help: "Total requests received, by operation kind.",
	}, []string{"op"})

	repliesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vectord_replies_total",
		Help: "Total replies sent, by operation kind and status.",
	}, []string{"op", "status"})

	requestsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vectord_requests_rejected_total",
		Help: "Intake polls skipped by the rate limiter while a request was queued; the reason label holds the intake queue name.",
	}, []string{"reason"})

	persistenceErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vectord_persistence_errors_total",
		Help: "Persistence-layer failures, by operation kind.",
	}, []string{"op"})

	queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vectord_queue_depth",
		Help: "Current number of messages queued per intake queue.",
	}, []string{"queue"})

	workersInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vectord_workers_in_flight",
		Help: "Number of request workers currently executing.",
	})

	lockEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vectord_lock_entries",
		Help: "Number of live (non-tombstoned) lock registry entries.",
	})

	processCPUPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vectord_process_cpu_percent",
		Help: "Process CPU usage percent, sampled periodically.",
	})

	processRSSBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vectord_process_rss_bytes",
		Help: "Process resident set size in bytes, sampled periodically.",
	})
)

func init() {
	prometheus.MustRegister(
		requestsTotal,
		repliesTotal,
		requestsRejectedTotal,
		persistenceErrorsTotal,
		queueDepth,
		workersInFlight,
		lockEntries,
		processCPUPercent,
		processRSSBytes,
	)
}

// RecordRequest increments the received-request counter for op.
func RecordRequest(op string) { requestsTotal.WithLabelValues(op).Inc() }

// RecordReply increments the reply counter for op/status.
func RecordReply(op, status string) { repliesTotal.WithLabelValues(op, status).Inc() }

// RecordRejected increments the rate-limited-poll counter for reason (the
// caller passes the intake queue name). The queued request is not dropped;
// it stays queued for a later poll.
func RecordRejected(reason string) { requestsRejectedTotal.WithLabelValues(reason).Inc() }

// RecordPersistenceError increments the persistence-failure counter for op.
func RecordPersistenceError(op string) { persistenceErrorsTotal.WithLabelValues(op).Inc() }

// SetQueueDepth reports the current depth of an intake queue.
func SetQueueDepth(queue string, depth int) { queueDepth.WithLabelValues(queue).Set(float64(depth)) }

// WorkerStarted increments the in-flight worker gauge.
func WorkerStarted() { workersInFlight.Inc() }

// WorkerFinished decrements the in-flight worker gauge.
func WorkerFinished() { workersInFlight.Dec() }

// SetLockEntries reports the current live lock registry size.
func SetLockEntries(n int) { lockEntries.Set(float64(n)) }

// SetProcessSample reports a periodic resource sample.
func SetProcessSample(cpuPercent float64, rssBytes uint64) {
	processCPUPercent.Set(cpuPercent)
	processRSSBytes.Set(float64(rssBytes))
}

// Server serves /metrics over HTTP via a promhttp.Handler-backed
// lifecycle.
type Server struct {
	httpServer *http.Server
}

// NewServer returns a metrics HTTP server bound to addr, not yet listening.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{httpServer: &http.Server{Addr: addr, Handler: mux}}
}

// Start begins serving in the background. Listen errors after a successful
// start are delivered to errCh.
func (s *Server) Start(errCh chan<- error) {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
}

// Shutdown stops the metrics server, honoring ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ShutdownTimeout is a convenience default for callers that don't have an
// existing context to hand to Shutdown.
const ShutdownTimeout = 3 * time.Second
