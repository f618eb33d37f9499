package pack

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"toolpak/internal/domain"
)

// Cache maps (author, name, version) keys onto the on-disk package layout
// <root>/<author>/<name>/<encoded-version>.tool.
type Cache struct {
	root   string
	logger *zap.Logger
}

func NewCache(root string, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		root:   root,
		logger: logger.Named("cache"),
	}
}

func (c *Cache) Root() string {
	return c.root
}

// Path is a pure function of its arguments: it neither touches the
// filesystem nor checks that the entry exists.
func (c *Cache) Path(author, name, version string) string {
	return filepath.Join(c.root, author, name, EncodeVersion(version)+domain.PackageExt)
}

// ListVersions scans the tool's cache subdirectory for package entries and
// decodes each filename back to a version string. A missing subdirectory is
// not an error; it simply means nothing is cached.
func (c *Cache) ListVersions(author, name string) ([]string, error) {
	dir := filepath.Join(c.root, author, name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.E(domain.CodeInternal, "cache.list", "", err)
	}
	var versions []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), domain.PackageExt) {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), domain.PackageExt)
		versions = append(versions, DecodeVersion(stem))
	}
	return versions, nil
}

// ResolveVersion pins an unspecified version to the newest cached one.
// Returns "" when nothing is cached.
func (c *Cache) ResolveVersion(author, name, version string) (string, error) {
	if version != "" {
		return version, nil
	}
	cached, err := c.ListVersions(author, name)
	if err != nil {
		return "", err
	}
	newest, err := NewestVersion(cached)
	if err != nil {
		return "", err
	}
	if newest != "" {
		c.logger.Debug("resolved latest from cache",
			zap.String("author", author),
			zap.String("name", name),
			zap.String("version", newest),
		)
	}
	return newest, nil
}
