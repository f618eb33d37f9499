package domain

const (
	DefaultEntry   = "tool.so"
	DefaultModule  = "Tool"
	DefaultLicense = "Unknown"

	PackageExt           = ".tool"
	ConfigFileName       = "config.json"
	RequirementsFileName = "requirements.txt"
	LatestVersionSegment = "latest"

	DefaultToolType = "generic"

	DefaultRegistryTimeoutSeconds = 10
)

// DefaultInstallerCmd is the external installer invoked for declared tool
// dependencies. Tools distribute Python requirement manifests regardless of
// the host language.
var DefaultInstallerCmd = []string{"pip"}
