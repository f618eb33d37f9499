package pack

import (
	"fmt"
	"strconv"
	"strings"

	"toolpak/internal/domain"
)

// EncodeVersion maps a version string to a filesystem-safe path segment.
// An empty version encodes to the literal "latest" segment.
func EncodeVersion(version string) string {
	if version == "" || version == domain.LatestVersionSegment {
		return domain.LatestVersionSegment
	}
	return strings.ReplaceAll(version, ".", "-")
}

// DecodeVersion reverses EncodeVersion. Versions that themselves contain "-"
// do not round-trip; that ambiguity is accepted.
func DecodeVersion(segment string) string {
	return strings.ReplaceAll(segment, "-", ".")
}

// NewestVersion returns the maximum of versions under component-wise numeric
// comparison of dot-separated integer components, or "" for empty input.
// A non-numeric component yields a BAD_VERSION error. Pre-release suffixes
// are not understood.
func NewestVersion(versions []string) (string, error) {
	if len(versions) == 0 {
		return "", nil
	}
	newest := versions[0]
	for _, candidate := range versions[1:] {
		cmp, err := compareVersions(candidate, newest)
		if err != nil {
			return "", err
		}
		if cmp > 0 {
			newest = candidate
		}
	}
	if _, err := versionComponents(newest); err != nil {
		return "", err
	}
	return newest, nil
}

func compareVersions(a, b string) (int, error) {
	left, err := versionComponents(a)
	if err != nil {
		return 0, err
	}
	right, err := versionComponents(b)
	if err != nil {
		return 0, err
	}
	for i := 0; i < len(left) && i < len(right); i++ {
		if left[i] != right[i] {
			if left[i] < right[i] {
				return -1, nil
			}
			return 1, nil
		}
	}
	switch {
	case len(left) < len(right):
		return -1, nil
	case len(left) > len(right):
		return 1, nil
	default:
		return 0, nil
	}
}

func versionComponents(version string) ([]int, error) {
	parts := strings.Split(version, ".")
	components := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, domain.E(domain.CodeBadVersion, "pack.version",
				fmt.Sprintf("non-numeric component %q in version %q", part, version), nil)
		}
		components = append(components, n)
	}
	return components, nil
}
