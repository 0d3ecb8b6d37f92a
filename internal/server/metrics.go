package server

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/dctgate/internal/dct2000"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dctgate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dctgate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	recordsDecoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dctgate",
			Subsystem: "codec",
			Name:      "records_total",
			Help:      "Records decoded from uploaded traces.",
		},
		[]string{"protocol", "direction"},
	)
	linesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dctgate",
			Subsystem: "codec",
			Name:      "skipped_lines_total",
			Help:      "Unparsable lines skipped while reading traces.",
		},
	)
	recordsRetimed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dctgate",
			Subsystem: "retime",
			Name:      "records_total",
			Help:      "Records rewritten by retime requests.",
		},
		[]string{"clamped"},
	)
	packetsExported = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dctgate",
			Subsystem: "export",
			Name:      "packets_total",
			Help:      "Packets written to pcap exports.",
		},
		[]string{"encap"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, recordsDecoded, linesSkipped, recordsRetimed, packetsExported)
	})
}

func recordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func recordDecoded(rec dct2000.Record) {
	RegisterMetrics()
	recordsDecoded.WithLabelValues(rec.Line.ProtocolName, rec.Direction.String()).Inc()
}

func recordSkipped(n int64) {
	RegisterMetrics()
	if n > 0 {
		linesSkipped.Add(float64(n))
	}
}

func recordRetime(res dct2000.RetimeResult) {
	RegisterMetrics()
	recordsRetimed.WithLabelValues("false").Add(float64(res.Records - res.Clamped))
	recordsRetimed.WithLabelValues("true").Add(float64(res.Clamped))
}

func recordExported(encap dct2000.Encapsulation, n int) {
	RegisterMetrics()
	packetsExported.WithLabelValues(encap.String()).Add(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps NDJSON streaming working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// instrument records request counts and latency under a fixed route label.
func instrument(route string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		recordHTTPRequest(r.Method, route, rec.status, time.Since(start))
	})
}
