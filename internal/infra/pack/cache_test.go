package pack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCachePathDeterministic(t *testing.T) {
	cache := NewCache("/var/cache/toolpak", nil)
	first := cache.Path("alice", "calculator", "1.2.3")
	second := cache.Path("alice", "calculator", "1.2.3")
	require.Equal(t, first, second)
	require.Equal(t, filepath.Join("/var/cache/toolpak", "alice", "calculator", "1-2-3.tool"), first)
	require.Equal(t, filepath.Join("/var/cache/toolpak", "alice", "calculator", "latest.tool"),
		cache.Path("alice", "calculator", ""))
}

func TestListVersions(t *testing.T) {
	root := t.TempDir()
	cache := NewCache(root, nil)

	versions, err := cache.ListVersions("alice", "calculator")
	require.NoError(t, err)
	require.Empty(t, versions)

	dir := filepath.Join(root, "alice", "calculator")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range []string{"1-0-0.tool", "2-1-0.tool", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}

	versions, err = cache.ListVersions("alice", "calculator")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"1.0.0", "2.1.0"}, versions)

	newest, err := NewestVersion(versions)
	require.NoError(t, err)
	require.Equal(t, "2.1.0", newest)
}

func TestResolveVersion(t *testing.T) {
	root := t.TempDir()
	cache := NewCache(root, nil)

	pinned, err := cache.ResolveVersion("alice", "calculator", "0.9.0")
	require.NoError(t, err)
	require.Equal(t, "0.9.0", pinned)

	resolved, err := cache.ResolveVersion("alice", "calculator", "")
	require.NoError(t, err)
	require.Empty(t, resolved)

	dir := filepath.Join(root, "alice", "calculator")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1-0-0.tool"), []byte("{}"), 0o644))

	resolved, err = cache.ResolveVersion("alice", "calculator", "")
	require.NoError(t, err)
	require.Equal(t, "1.0.0", resolved)
}
