package domain

import "time"

// LoadSource labels where a tool load originated.
type LoadSource string

const (
	// LoadSourceLocal indicates a load from the local tools directory.
	LoadSourceLocal LoadSource = "local"
	// LoadSourcePackage indicates a load from a cached package.
	LoadSourcePackage LoadSource = "package"
)

// Metrics receives packaging and loading telemetry. Implementations must be
// safe for concurrent use.
type Metrics interface {
	RecordCacheLookup(hit bool)
	RecordDownload(tool string, duration time.Duration, success bool)
	RecordLoad(source LoadSource, duration time.Duration, success bool)
	RecordDependencyInstall(success bool)
}
