package telemetry

import (
	"time"

	"toolpak/internal/domain"
)

type noopMetrics struct{}

// NewNoopMetrics returns a Metrics implementation that discards everything.
func NewNoopMetrics() domain.Metrics {
	return noopMetrics{}
}

func (noopMetrics) RecordCacheLookup(bool)                            {}
func (noopMetrics) RecordDownload(string, time.Duration, bool)        {}
func (noopMetrics) RecordLoad(domain.LoadSource, time.Duration, bool) {}
func (noopMetrics) RecordDependencyInstall(bool)                      {}
