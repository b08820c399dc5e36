package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPClientMetrics tracks outbound calls made by the Storyblok and commerce
// clients.
type HTTPClientMetrics struct {
	requests *prometheus.CounterVec
	statuses *prometheus.CounterVec
	retries  *prometheus.CounterVec
	backoff  prometheus.Counter
}

// NewHTTPClientMetrics registers outbound HTTP metrics for the named client.
func NewHTTPClientMetrics(reg prometheus.Registerer, client string) *HTTPClientMetrics {
	if reg == nil {
		return &HTTPClientMetrics{}
	}
	labels := prometheus.Labels{"client": client}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "http_client_requests_total",
		Help:        "Outbound HTTP requests by host and method.",
		ConstLabels: labels,
	}, []string{"host", "method"})
	statuses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "http_client_responses_total",
		Help:        "Outbound HTTP responses by status class.",
		ConstLabels: labels,
	}, []string{"class"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "http_client_retries_total",
		Help:        "Outbound HTTP retries by host.",
		ConstLabels: labels,
	}, []string{"host"})
	backoff := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "http_client_backoff_seconds_total",
		Help:        "Time spent sleeping between retries.",
		ConstLabels: labels,
	})
	reg.MustRegister(requests, statuses, retries, backoff)
	return &HTTPClientMetrics{
		requests: requests,
		statuses: statuses,
		retries:  retries,
		backoff:  backoff,
	}
}

// IncRequest counts one attempt against host.
func (m *HTTPClientMetrics) IncRequest(host, method string) {
	if m == nil || m.requests == nil {
		return
	}
	m.requests.WithLabelValues(normalizeLabel(host), strings.ToUpper(method)).Inc()
}

// IncStatus buckets a response code; 429 gets its own class.
func (m *HTTPClientMetrics) IncStatus(code int) {
	if m == nil || m.statuses == nil {
		return
	}
	m.statuses.WithLabelValues(statusClass(code)).Inc()
}

// IncRetry counts a retried attempt against host.
func (m *HTTPClientMetrics) IncRetry(host string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(host)).Inc()
}

// AddBackoff accumulates retry sleep time.
func (m *HTTPClientMetrics) AddBackoff(d time.Duration) {
	if m == nil || m.backoff == nil || d <= 0 {
		return
	}
	m.backoff.Add(d.Seconds())
}

func statusClass(code int) string {
	switch {
	case code == 429:
		return "429"
	case code >= 100 && code < 600:
		return strconv.Itoa(code/100) + "xx"
	default:
		return "other"
	}
}
