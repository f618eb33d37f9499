package app

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"toolpak/internal/domain"
	"toolpak/internal/infra/pack"
)

type fakeModules struct {
	impl  any
	err   error
	calls []string
}

func (f *fakeModules) LoadSymbol(path, symbol string) (any, error) {
	f.calls = append(f.calls, path+":"+symbol)
	if f.err != nil {
		return nil, f.err
	}
	return f.impl, nil
}

func testConfig(t *testing.T, baseURL string) Config {
	t.Helper()
	base := t.TempDir()
	// "true" as the installer keeps dependency handling inert.
	return Config{
		CacheRoot:     filepath.Join(base, "cache"),
		LocalToolsDir: filepath.Join(base, "local"),
		LedgerPath:    filepath.Join(base, "ledger.db"),
		ScratchDir:    filepath.Join(base, "scratch"),
		Registry:      RegistryConfig{BaseURL: baseURL, TimeoutSeconds: 5},
		Installer:     InstallerConfig{Cmd: []string{"true"}},
	}
}

func newTestManager(t *testing.T, baseURL string, modules domain.ModuleLoader) *Manager {
	t.Helper()
	cfg := testConfig(t, baseURL)
	require.NoError(t, os.MkdirAll(cfg.ScratchDir, 0o755))
	m, err := NewManager(ManagerOptions{Config: cfg, Modules: modules, PreferLocal: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, m.Close())
	})
	return m
}

func encodeFile(content string) string {
	return base64.StdEncoding.EncodeToString([]byte(content))
}

func calculatorPayload(version string) domain.PackagePayload {
	config := `{"name":"calculator","meta":{"author":"alice","version":"` + version + `"},"build":{"entry":"tool.so","module":"Tool"}}`
	return domain.PackagePayload{
		Author:  "alice",
		Name:    "calculator",
		Version: version,
		License: "MIT",
		Files: []domain.PayloadFile{
			{Path: "config.json", Content: encodeFile(config)},
			{Path: "tool.so", Content: encodeFile("binary")},
		},
		Entry:  "tool.so",
		Module: "Tool",
	}
}

func registryStub(t *testing.T, version string, downloads *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tools/download":
			downloads.Add(1)
			_ = json.NewEncoder(w).Encode(calculatorPayload(version))
		case "/tools/list":
			_ = json.NewEncoder(w).Encode([]domain.ToolListing{
				{Author: "alice", Name: "calculator", Version: version},
			})
		case "/tools/check_updates":
			available := r.URL.Query().Get("current_version") != version
			_ = json.NewEncoder(w).Encode(map[string]bool{"update_available": available})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestParseToolRef(t *testing.T) {
	ref, err := ParseToolRef("alice/calculator@1.2.0")
	require.NoError(t, err)
	require.Equal(t, domain.ToolRef{Author: "alice", Name: "calculator", Version: "1.2.0"}, ref)

	ref, err = ParseToolRef("alice/calculator")
	require.NoError(t, err)
	require.Empty(t, ref.Version)
	require.False(t, ref.Local)

	ref, err = ParseToolRef("calculator")
	require.NoError(t, err)
	require.True(t, ref.Local)
	require.Equal(t, "calculator", ref.Name)

	for _, bad := range []string{"", "alice/", "/calculator", "a/b/c", "alice/calculator@", "calculator@1.0.0"} {
		_, err := ParseToolRef(bad)
		require.Error(t, err, "ref %q", bad)
	}
}

func TestDownloadToolCachesResult(t *testing.T) {
	var downloads atomic.Int64
	server := registryStub(t, "1.0.0", &downloads)
	defer server.Close()

	m := newTestManager(t, server.URL, nil)
	ctx := context.Background()

	pkg, err := m.DownloadTool(ctx, "alice", "calculator", "1.0.0")
	require.NoError(t, err)
	require.Equal(t, "1.0.0", pkg.Metadata.Version)
	require.Contains(t, pkg.Files, "tool.so")
	require.EqualValues(t, 1, downloads.Load())

	// Cache entry and ledger record exist.
	require.FileExists(t, m.cache.Path("alice", "calculator", "1.0.0"))
	records, err := m.ListDownloadedTools()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "1.0.0", records[0].Version)

	// Second request is a cache hit.
	_, err = m.DownloadTool(ctx, "alice", "calculator", "1.0.0")
	require.NoError(t, err)
	require.EqualValues(t, 1, downloads.Load())
}

func TestDownloadToolResolvesLatestFromCache(t *testing.T) {
	m := newTestManager(t, "", nil)

	for _, version := range []string{"1.0.0", "2.0.0"} {
		pkg := domain.ToolPackage{
			Metadata: domain.ToolMetadata{Author: "alice", Name: "calculator", Version: version},
			Files:    map[string][]byte{"tool.so": []byte("binary")},
		}
		require.NoError(t, pack.SavePackage(pkg, m.cache.Path("alice", "calculator", version)))
	}

	pkg, err := m.DownloadTool(context.Background(), "alice", "calculator", "")
	require.NoError(t, err)
	require.Equal(t, "2.0.0", pkg.Metadata.Version)
}

func TestDownloadToolOfflineMiss(t *testing.T) {
	m := newTestManager(t, "", nil)

	_, err := m.DownloadTool(context.Background(), "alice", "calculator", "1.0.0")
	require.Error(t, err)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeUnavailable, code)
}

func TestDownloadToolReplacesCorruptEntry(t *testing.T) {
	var downloads atomic.Int64
	server := registryStub(t, "1.0.0", &downloads)
	defer server.Close()

	m := newTestManager(t, server.URL, nil)
	path := m.cache.Path("alice", "calculator", "1.0.0")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	pkg, err := m.DownloadTool(context.Background(), "alice", "calculator", "1.0.0")
	require.NoError(t, err)
	require.Equal(t, "1.0.0", pkg.Metadata.Version)
	require.EqualValues(t, 1, downloads.Load())

	// The corrupt entry was overwritten with a readable one.
	_, err = pack.LoadPackage(path)
	require.NoError(t, err)
}

func TestLoadToolLocal(t *testing.T) {
	modules := &fakeModules{impl: "calculator-impl"}
	m := newTestManager(t, "", modules)

	dir := filepath.Join(m.cfg.LocalToolsDir, "calculator")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	config := `{"name":"calculator","build":{"entry":"tool.so","module":"Tool"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(config), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tool.so"), []byte("binary"), 0o644))

	loaded, err := m.LoadTool(context.Background(), domain.ToolRef{Name: "calculator", Local: true})
	require.NoError(t, err)
	require.Equal(t, "calculator-impl", loaded.Impl)
	require.Equal(t, "calculator", loaded.Config.Name)
}

func TestLoadToolPrefersLocalCopy(t *testing.T) {
	modules := &fakeModules{impl: "local-impl"}
	// No registry configured: succeeding proves the download path was skipped.
	m := newTestManager(t, "", modules)

	dir := filepath.Join(m.cfg.LocalToolsDir, "calculator")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	config := `{"name":"calculator","build":{"entry":"tool.so","module":"Tool"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(config), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tool.so"), []byte("binary"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))

	loaded, err := m.LoadTool(ctx, domain.ToolRef{Author: "alice", Name: "calculator"})
	require.NoError(t, err)
	require.Equal(t, "local-impl", loaded.Impl)
}

func TestLoadToolFromRegistry(t *testing.T) {
	var downloads atomic.Int64
	server := registryStub(t, "1.0.0", &downloads)
	defer server.Close()

	modules := &fakeModules{impl: "remote-impl"}
	m := newTestManager(t, server.URL, modules)

	loaded, err := m.LoadTool(context.Background(), domain.ToolRef{Author: "alice", Name: "calculator"})
	require.NoError(t, err)
	require.Equal(t, "remote-impl", loaded.Impl)
	require.Equal(t, "calculator", loaded.Config.Name)
	require.EqualValues(t, 1, downloads.Load())
}

func TestListAvailableTools(t *testing.T) {
	var downloads atomic.Int64
	server := registryStub(t, "1.0.0", &downloads)
	defer server.Close()

	m := newTestManager(t, server.URL, nil)
	listings, err := m.ListAvailableTools(context.Background())
	require.NoError(t, err)
	require.Len(t, listings, 1)
	require.Equal(t, "calculator", listings[0].Name)

	offline := newTestManager(t, "", nil)
	_, err = offline.ListAvailableTools(context.Background())
	require.Error(t, err)
}

func TestCheckToolUpdates(t *testing.T) {
	var downloads atomic.Int64
	server := registryStub(t, "2.0.0", &downloads)
	defer server.Close()

	m := newTestManager(t, server.URL, nil)
	ctx := context.Background()

	// Explicit version compares directly.
	available, err := m.CheckToolUpdates(ctx, domain.ToolRef{Author: "alice", Name: "calculator", Version: "1.0.0"})
	require.NoError(t, err)
	require.True(t, available)

	// Empty version with nothing cached cannot compare.
	_, err = m.CheckToolUpdates(ctx, domain.ToolRef{Author: "alice", Name: "calculator"})
	require.ErrorIs(t, err, domain.ErrPackageNotFound)

	// Empty version resolves against the newest cached one.
	pkg := domain.ToolPackage{
		Metadata: domain.ToolMetadata{Author: "alice", Name: "calculator", Version: "2.0.0"},
		Files:    map[string][]byte{"tool.so": []byte("binary")},
	}
	require.NoError(t, pack.SavePackage(pkg, m.cache.Path("alice", "calculator", "2.0.0")))
	available, err = m.CheckToolUpdates(ctx, domain.ToolRef{Author: "alice", Name: "calculator"})
	require.NoError(t, err)
	require.False(t, available)
}

func TestDependenciesSatisfiedWithoutManifest(t *testing.T) {
	m := newTestManager(t, "", nil)

	pkg := domain.ToolPackage{
		Metadata: domain.ToolMetadata{Author: "alice", Name: "calculator", Version: "1.0.0"},
		Files:    map[string][]byte{"tool.so": []byte("binary")},
	}
	require.NoError(t, pack.SavePackage(pkg, m.cache.Path("alice", "calculator", "1.0.0")))

	satisfied, err := m.DependenciesSatisfied(context.Background(), "alice", "calculator", "1.0.0")
	require.NoError(t, err)
	require.True(t, satisfied)
}

func TestUploadToolRequiresIdentity(t *testing.T) {
	var downloads atomic.Int64
	server := registryStub(t, "1.0.0", &downloads)
	defer server.Close()

	m := newTestManager(t, server.URL, nil)

	folder := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(folder, "tool.so"), []byte("binary"), 0o644))

	err := m.UploadTool(context.Background(), folder)
	require.Error(t, err)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeInvalidConfig, code)
}

func TestPackageTool(t *testing.T) {
	m := newTestManager(t, "", nil)

	folder := t.TempDir()
	config := `{"name":"calculator","meta":{"author":"alice","version":"1.0.0"}}`
	require.NoError(t, os.WriteFile(filepath.Join(folder, "config.json"), []byte(config), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(folder, "tool.so"), []byte("binary"), 0o644))

	payload, err := m.PackageTool(folder)
	require.NoError(t, err)
	require.Equal(t, "alice", payload.Author)
	require.Equal(t, domain.DefaultEntry, payload.Entry)
	require.Equal(t, domain.DefaultModule, payload.Module)
	require.Len(t, payload.Files, 2)
}
