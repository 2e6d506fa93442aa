// Package metrics exposes Prometheus counters for catalog, audio, playback,
// progress, sync and HTTP activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storysage"

// Metrics owns a private registry so tests can create as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	catalogSource       *prometheus.GaugeVec
	audioResolutions    *prometheus.CounterVec
	progressWrites      *prometheus.CounterVec
	syncPushes          *prometheus.CounterVec
	playbackTransitions *prometheus.CounterVec
	remoteRequests      *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
	wsClients           prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		catalogSource: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_source",
			Help:      "1 for the source the catalog was loaded from.",
		}, []string{"source"}),
		audioResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_resolutions_total",
			Help:      "Audio resolutions by handle kind.",
		}, []string{"kind"}),
		progressWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_writes_total",
			Help:      "Committed progress writes by kind.",
		}, []string{"kind"}),
		syncPushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_pushes_total",
			Help:      "Remote progress pushes by outcome.",
		}, []string{"outcome"}),
		playbackTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_transitions_total",
			Help:      "Playback session state transitions.",
		}, []string{"from", "to"}),
		remoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_catalog_requests_total",
			Help:      "Remote catalog requests by operation and result.",
		}, []string{"op", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_event_clients",
			Help:      "Connected playback event stream clients.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.catalogSource,
		m.audioResolutions,
		m.progressWrites,
		m.syncPushes,
		m.playbackTransitions,
		m.remoteRequests,
		m.httpRequests,
		m.httpDuration,
		m.wsClients,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SetCatalogSource marks source as the active catalog source.
func (m *Metrics) SetCatalogSource(source string) {
	m.catalogSource.Reset()
	m.catalogSource.WithLabelValues(source).Set(1)
}

// AudioResolved counts a resolution to a handle of the given kind.
func (m *Metrics) AudioResolved(kind string) {
	m.audioResolutions.WithLabelValues(kind).Inc()
}

// ProgressWritten counts a committed progress write.
func (m *Metrics) ProgressWritten(kind string) {
	m.progressWrites.WithLabelValues(kind).Inc()
}

// SyncResult counts a sync push outcome.
func (m *Metrics) SyncResult(outcome string) {
	m.syncPushes.WithLabelValues(outcome).Inc()
}

// PlaybackTransition counts a session state change.
func (m *Metrics) PlaybackTransition(from, to string) {
	m.playbackTransitions.WithLabelValues(from, to).Inc()
}

// RemoteResult counts a remote catalog request.
func (m *Metrics) RemoteResult(op string, err error) {
	result := "ok"
	if err != nil {
		result = "fallback"
	}
	m.remoteRequests.WithLabelValues(op, result).Inc()
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// StreamClientConnected tracks event stream clients; call the returned func
// on disconnect.
func (m *Metrics) StreamClientConnected() func() {
	m.wsClients.Inc()
	return m.wsClients.Dec
}
