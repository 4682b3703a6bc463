// Package metrics exposes Prometheus counters and gauges for the client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Session fetch outcomes.
const (
	FetchOK           = "ok"
	FetchAuthRequired = "auth_required"
	FetchFailed       = "failed"
)

// Metrics holds the client's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	sessionFetchesTotal *prometheus.CounterVec
	previewsTotal       prometheus.Counter
	rangeRejectsTotal   prometheus.Counter
	downloadsTotal      *prometheus.CounterVec
	downloadBytesTotal  prometheus.Counter
	queuedDownloads     prometheus.Gauge
}

// New creates and registers the client metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cutscene_api_requests_total",
			Help: "Total number of control API requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cutscene_api_errors_total",
			Help: "Total number of control API responses with error status (4xx or 5xx)",
		}),
		sessionFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cutscene_session_fetches_total",
			Help: "Session list fetches by outcome",
		}, []string{"outcome"}),
		previewsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cutscene_preview_recomputations_total",
			Help: "Number of preview URLs published",
		}),
		rangeRejectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cutscene_range_rejections_total",
			Help: "Range edits rejected by the bounds check",
		}),
		downloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cutscene_downloads_total",
			Help: "Finished clip downloads by status",
		}, []string{"status"}),
		downloadBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cutscene_download_bytes_total",
			Help: "Clip bytes written to disk",
		}),
		queuedDownloads: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cutscene_downloads_queued",
			Help: "Downloads waiting or running",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.sessionFetchesTotal,
		m.previewsTotal,
		m.rangeRejectsTotal,
		m.downloadsTotal,
		m.downloadBytesTotal,
		m.queuedDownloads,
	)
	return m
}

func (m *Metrics) IncRequests() {
	if m != nil {
		m.requestsTotal.Inc()
	}
}

func (m *Metrics) IncErrors() {
	if m != nil {
		m.errorsTotal.Inc()
	}
}

// ObserveSessionFetch records one /sessions round trip.
func (m *Metrics) ObserveSessionFetch(outcome string) {
	if m != nil {
		m.sessionFetchesTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncPreviews() {
	if m != nil {
		m.previewsTotal.Inc()
	}
}

func (m *Metrics) IncRangeRejects() {
	if m != nil {
		m.rangeRejectsTotal.Inc()
	}
}

// ObserveDownload records a finished download and the bytes it wrote.
func (m *Metrics) ObserveDownload(status string, bytes int64) {
	if m == nil {
		return
	}
	m.downloadsTotal.WithLabelValues(status).Inc()
	if bytes > 0 {
		m.downloadBytesTotal.Add(float64(bytes))
	}
}

func (m *Metrics) SetQueuedDownloads(n int) {
	if m != nil {
		m.queuedDownloads.Set(float64(n))
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics. updateGauges runs before each scrape.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
