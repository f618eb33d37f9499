package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"toolpak/internal/domain"
)

// fakeModuleLoader resolves symbols from a registered factory table instead
// of opening shared libraries.
type fakeModuleLoader struct {
	symbols map[string]any
	err     error
	calls   []string
}

func (f *fakeModuleLoader) LoadSymbol(path, symbol string) (any, error) {
	f.calls = append(f.calls, path)
	if f.err != nil {
		return nil, f.err
	}
	impl, ok := f.symbols[symbol]
	if !ok {
		return nil, domain.ErrSymbolNotFound
	}
	return impl, nil
}

func writeLocalTool(t *testing.T, root, name, config string, files map[string][]byte) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	if config != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(config), 0o644))
	}
	for rel, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, rel), content, 0o644))
	}
	return dir
}

const calculatorConfig = `{
	"name": "calculator",
	"meta": {"author": "alice", "version": "1.0.0"},
	"build": {"entry": "tool.so", "module": "Tool"}
}`

func TestLoadFromLocalDir(t *testing.T) {
	root := t.TempDir()
	dir := writeLocalTool(t, root, "calculator", calculatorConfig, map[string][]byte{
		"tool.so": []byte("binary"),
	})

	impl := struct{ name string }{name: "calculator"}
	modules := &fakeModuleLoader{symbols: map[string]any{"Tool": impl}}
	l := New(Options{LocalToolsDir: root, Modules: modules})

	loaded, err := l.LoadFromLocalDir("calculator")
	require.NoError(t, err)
	require.Equal(t, impl, loaded.Impl)
	require.Equal(t, "calculator", loaded.Config.Name)
	require.Equal(t, []string{filepath.Join(dir, "tool.so")}, modules.calls)
	require.Empty(t, l.SearchPaths())
}

func TestLoadFromLocalDirMissingTool(t *testing.T) {
	l := New(Options{LocalToolsDir: t.TempDir(), Modules: &fakeModuleLoader{}})

	_, err := l.LoadFromLocalDir("ghost")
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrToolNotFound)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeNotFound, code)
}

func TestLoadFromLocalDirMissingConfig(t *testing.T) {
	root := t.TempDir()
	writeLocalTool(t, root, "calculator", "", map[string][]byte{"tool.so": []byte("x")})
	l := New(Options{LocalToolsDir: root, Modules: &fakeModuleLoader{}})

	_, err := l.LoadFromLocalDir("calculator")
	require.ErrorIs(t, err, domain.ErrConfigNotFound)
}

func TestLoadFromLocalDirIncompleteBuildSection(t *testing.T) {
	root := t.TempDir()
	writeLocalTool(t, root, "calculator", `{"name":"calculator","build":{"entry":"tool.so"}}`, nil)
	l := New(Options{LocalToolsDir: root, Modules: &fakeModuleLoader{}})

	_, err := l.LoadFromLocalDir("calculator")
	require.Error(t, err)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeInvalidConfig, code)
}

func TestScopeRestoredOnSuccessAndFailure(t *testing.T) {
	root := t.TempDir()
	writeLocalTool(t, root, "calculator", calculatorConfig, map[string][]byte{"tool.so": []byte("x")})

	modules := &fakeModuleLoader{symbols: map[string]any{"Tool": "impl"}}
	l := New(Options{LocalToolsDir: root, Modules: modules})
	before := l.SearchPaths()

	_, err := l.LoadFromLocalDir("calculator")
	require.NoError(t, err)
	require.Equal(t, before, l.SearchPaths())
	require.Empty(t, l.modules)

	modules.err = errors.New("entry file panicked during init")
	_, err = l.LoadFromLocalDir("calculator")
	require.Error(t, err)
	require.Equal(t, before, l.SearchPaths())
	require.Empty(t, l.modules)
}

func TestLoadFromPackage(t *testing.T) {
	scratch := t.TempDir()
	pkg := domain.ToolPackage{
		Metadata: domain.ToolMetadata{
			Author:  "alice",
			Name:    "calculator",
			Version: "1.0.0",
			Entry:   "tool.so",
			Module:  "Tool",
		},
		Files: map[string][]byte{
			"tool.so":       []byte("binary"),
			"config.json":   []byte(calculatorConfig),
			"data/help.txt": []byte("usage"),
		},
	}

	modules := &fakeModuleLoader{symbols: map[string]any{"Tool": "impl"}}
	l := New(Options{ScratchRoot: scratch, Modules: modules})

	loaded, err := l.LoadFromPackage(pkg)
	require.NoError(t, err)
	require.Equal(t, "impl", loaded.Impl)
	require.Equal(t, "calculator", loaded.Config.Name)
	require.Len(t, modules.calls, 1)

	// Scratch materialization is cleaned up on exit.
	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.Empty(t, l.SearchPaths())
}

func TestLoadFromPackageConfigFallsBackToMetadata(t *testing.T) {
	pkg := domain.ToolPackage{
		Metadata: domain.ToolMetadata{
			Name:   "calculator",
			Entry:  "tool.so",
			Module: "Tool",
		},
		Files: map[string][]byte{"tool.so": []byte("binary")},
	}
	l := New(Options{ScratchRoot: t.TempDir(), Modules: &fakeModuleLoader{symbols: map[string]any{"Tool": "impl"}}})

	loaded, err := l.LoadFromPackage(pkg)
	require.NoError(t, err)
	require.Equal(t, "tool.so", loaded.Config.Build.Entry)
	require.Equal(t, "Tool", loaded.Config.Build.Module)
}

func TestLoadFromPackageMissingEntryFile(t *testing.T) {
	pkg := domain.ToolPackage{
		Metadata: domain.ToolMetadata{Name: "calculator", Entry: "tool.so", Module: "Tool"},
		Files:    map[string][]byte{"README.md": []byte("no entry here")},
	}
	scratch := t.TempDir()
	l := New(Options{ScratchRoot: scratch, Modules: &fakeModuleLoader{}})

	_, err := l.LoadFromPackage(pkg)
	require.Error(t, err)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeLoadFailed, code)

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestLoadFromPackageMissingSymbol(t *testing.T) {
	pkg := domain.ToolPackage{
		Metadata: domain.ToolMetadata{Name: "calculator", Entry: "tool.so", Module: "Tool"},
		Files:    map[string][]byte{"tool.so": []byte("binary")},
	}
	scratch := t.TempDir()
	l := New(Options{ScratchRoot: scratch, Modules: &fakeModuleLoader{symbols: map[string]any{}}})

	_, err := l.LoadFromPackage(pkg)
	require.ErrorIs(t, err, domain.ErrSymbolNotFound)

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.Empty(t, l.SearchPaths())
}
