package server

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tpepperobubra-cell/stripe-webhook/core"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"handler", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "method"},
	)
)

// PrometheusRecorder backs core.MetricsRecorder with prometheus vectors,
// lazily creating one vector per metric name. Label sets must stay consistent
// per name across callers.
type PrometheusRecorder struct {
	registerer prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

func NewPrometheusRecorder(registerer prometheus.Registerer) *PrometheusRecorder {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	registerHTTPVecs(registerer)
	return &PrometheusRecorder{
		registerer: registerer,
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}
}

func (p *PrometheusRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if p == nil || name == "" || value <= 0 {
		return
	}
	labels, values := splitTags(tags)

	p.mu.Lock()
	vec, ok := p.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: name,
			Help: name,
		}, labels)
		p.registerer.MustRegister(vec)
		p.counters[name] = vec
	}
	p.mu.Unlock()

	vec.WithLabelValues(values...).Add(float64(value))
}

func (p *PrometheusRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if p == nil || name == "" {
		return
	}
	labels, values := splitTags(tags)

	p.mu.Lock()
	vec, ok := p.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    name,
			Buckets: prometheus.DefBuckets,
		}, labels)
		p.registerer.MustRegister(vec)
		p.histograms[name] = vec
	}
	p.mu.Unlock()

	vec.WithLabelValues(values...).Observe(value)
}

// registerHTTPVecs tolerates re-registration so multiple recorders can share
// one registry.
func registerHTTPVecs(registerer prometheus.Registerer) {
	for _, collector := range []prometheus.Collector{httpRequestsTotal, httpRequestDuration} {
		if err := registerer.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			panic(err)
		}
	}
}

// splitTags produces a deterministic label ordering so the same metric name
// always registers with the same label schema.
func splitTags(tags map[string]string) ([]string, []string) {
	if len(tags) == 0 {
		return nil, nil
	}
	labels := make([]string, 0, len(tags))
	for label := range tags {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	values := make([]string, 0, len(labels))
	for _, label := range labels {
		values = append(values, tags[label])
	}
	return labels, values
}

var _ core.MetricsRecorder = (*PrometheusRecorder)(nil)

// instrumentHandler wraps an HTTP handler with request counting and latency
// observation.
func instrumentHandler(handlerName string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(wrapped, r)

		duration := time.Since(startTime).Seconds()
		httpRequestDuration.WithLabelValues(handlerName, r.Method).Observe(duration)
		httpRequestsTotal.WithLabelValues(handlerName, r.Method, strconv.Itoa(wrapped.statusCode)).Inc()
	}
}

// responseWriter captures the status code written by the handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
