package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"toolpak/internal/domain"
)

type PrometheusMetrics struct {
	cacheLookups     *prometheus.CounterVec
	downloadDuration *prometheus.HistogramVec
	loadDuration     *prometheus.HistogramVec
	dependencyRuns   *prometheus.CounterVec
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolpak_cache_lookups_total",
				Help: "Total number of package cache lookups",
			},
			[]string{"result"},
		),
		downloadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolpak_download_duration_seconds",
				Help:    "Duration of registry downloads in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"tool", "status"},
		),
		loadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolpak_load_duration_seconds",
				Help:    "Duration of tool loads in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"source", "status"},
		),
		dependencyRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolpak_dependency_installs_total",
				Help: "Total number of dependency installer invocations",
			},
			[]string{"status"},
		),
	}
}

func (p *PrometheusMetrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cacheLookups.WithLabelValues(result).Inc()
}

func (p *PrometheusMetrics) RecordDownload(tool string, duration time.Duration, success bool) {
	p.downloadDuration.WithLabelValues(tool, statusLabel(success)).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) RecordLoad(source domain.LoadSource, duration time.Duration, success bool) {
	p.loadDuration.WithLabelValues(string(source), statusLabel(success)).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) RecordDependencyInstall(success bool) {
	p.dependencyRuns.WithLabelValues(statusLabel(success)).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
