package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"toolpak/internal/domain"
	"toolpak/internal/infra/telemetry"
)

// Loader resolves a tool's implementation symbol and configuration, either
// from an unpackaged directory under the local tools root or from a cached
// package. The search scope and module registry it maintains are shared
// process-wide state: loads serialize on an internal mutex, and callers that
// hold implementation references across loads must still treat a load as a
// critical section.
type Loader struct {
	logger        *zap.Logger
	localToolsDir string
	scratchRoot   string
	symbols       domain.ModuleLoader
	metrics       domain.Metrics

	mu          sync.Mutex
	searchPaths []string
	modules     map[string]string
}

type Options struct {
	Logger        *zap.Logger
	LocalToolsDir string
	ScratchRoot   string
	Modules       domain.ModuleLoader
	Metrics       domain.Metrics
}

func New(opts Options) *Loader {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	symbols := opts.Modules
	if symbols == nil {
		symbols = NewPluginModuleLoader()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	scratchRoot := opts.ScratchRoot
	if scratchRoot == "" {
		scratchRoot = os.TempDir()
	}
	return &Loader{
		logger:        logger.Named("loader"),
		localToolsDir: opts.LocalToolsDir,
		scratchRoot:   scratchRoot,
		symbols:       symbols,
		metrics:       metrics,
		modules:       make(map[string]string),
	}
}

// SearchPaths returns a snapshot of the current module search scope.
func (l *Loader) SearchPaths() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.searchPaths...)
}

// LoadFromLocalDir loads the named tool from the local tools directory.
func (l *Loader) LoadFromLocalDir(name string) (domain.LoadedTool, error) {
	const op = "loader.local"
	start := time.Now()
	loaded, err := l.loadLocal(name)
	l.metrics.RecordLoad(domain.LoadSourceLocal, time.Since(start), err == nil)
	if err != nil {
		l.logger.Error("local tool load failed", zap.String("tool", name), zap.Error(err))
		return domain.LoadedTool{}, domain.Wrap(domain.CodeLoadFailed, op, err)
	}
	return loaded, nil
}

func (l *Loader) loadLocal(name string) (domain.LoadedTool, error) {
	dir := filepath.Join(l.localToolsDir, name)
	if _, err := os.Stat(dir); err != nil {
		return domain.LoadedTool{}, domain.E(domain.CodeNotFound, "loader.local",
			fmt.Sprintf("tool %q not found in %s", name, l.localToolsDir), domain.ErrToolNotFound)
	}
	cfg, err := readToolConfig(filepath.Join(dir, domain.ConfigFileName))
	if err != nil {
		return domain.LoadedTool{}, err
	}
	if err := validateBuildSection(cfg); err != nil {
		return domain.LoadedTool{}, err
	}
	impl, err := l.loadScoped(dir, cfg.Build.Entry, cfg.Build.Module)
	if err != nil {
		return domain.LoadedTool{}, err
	}
	return domain.LoadedTool{Impl: impl, Config: cfg}, nil
}

// LoadFromPackage loads a tool from an in-memory package, materializing its
// files to a scratch directory first since the load protocol requires
// file-backed modules. The scratch directory is removed on every exit path.
func (l *Loader) LoadFromPackage(pkg domain.ToolPackage) (domain.LoadedTool, error) {
	const op = "loader.package"
	start := time.Now()
	loaded, err := l.loadPackage(pkg)
	l.metrics.RecordLoad(domain.LoadSourcePackage, time.Since(start), err == nil)
	if err != nil {
		l.logger.Error("package load failed",
			zap.String("tool", pkg.Metadata.Name),
			zap.String("version", pkg.Metadata.Version),
			zap.Error(err),
		)
		return domain.LoadedTool{}, domain.Wrap(domain.CodeLoadFailed, op, err)
	}
	return loaded, nil
}

func (l *Loader) loadPackage(pkg domain.ToolPackage) (domain.LoadedTool, error) {
	const op = "loader.package"
	cfg, err := packageConfig(pkg)
	if err != nil {
		return domain.LoadedTool{}, err
	}
	if err := validateBuildSection(cfg); err != nil {
		return domain.LoadedTool{}, err
	}
	if _, ok := pkg.Files[cfg.Build.Entry]; !ok {
		return domain.LoadedTool{}, domain.E(domain.CodeLoadFailed, op,
			fmt.Sprintf("entry file %q not present in package", cfg.Build.Entry), nil)
	}

	scratch := filepath.Join(l.scratchRoot, uuid.NewString())
	if err := materialize(pkg, scratch); err != nil {
		_ = os.RemoveAll(scratch)
		return domain.LoadedTool{}, domain.E(domain.CodeInternal, op, "", err)
	}
	defer func() {
		_ = os.RemoveAll(scratch)
	}()

	impl, err := l.loadScoped(scratch, cfg.Build.Entry, cfg.Build.Module)
	if err != nil {
		return domain.LoadedTool{}, err
	}
	return domain.LoadedTool{Impl: impl, Config: cfg}, nil
}

// loadScoped performs the push/load/pop protocol. The scope mutation and the
// module registration are reversed on all paths before control returns.
func (l *Loader) loadScoped(dir, entry, module string) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	guard := &scopeGuard{loader: l}
	defer guard.exit()

	guard.push(dir)
	if cwd, err := os.Getwd(); err == nil {
		guard.push(cwd)
	}

	entryPath := filepath.Join(dir, entry)
	guard.register(module, entryPath)

	impl, err := l.symbols.LoadSymbol(entryPath, module)
	if err != nil {
		return nil, domain.E(domain.CodeLoadFailed, "loader.symbol",
			fmt.Sprintf("load symbol %q from %s", module, entry), err)
	}
	return impl, nil
}

func readToolConfig(path string) (domain.ToolConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ToolConfig{}, domain.E(domain.CodeNotFound, "loader.config", "", domain.ErrConfigNotFound)
		}
		return domain.ToolConfig{}, domain.E(domain.CodeInternal, "loader.config", "", err)
	}
	var cfg domain.ToolConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return domain.ToolConfig{}, domain.E(domain.CodeInvalidConfig, "loader.config", "config.json does not parse", err)
	}
	return cfg, nil
}

// packageConfig prefers the config.json shipped inside the package and falls
// back to the persisted metadata.
func packageConfig(pkg domain.ToolPackage) (domain.ToolConfig, error) {
	if data, ok := pkg.Files[domain.ConfigFileName]; ok {
		var cfg domain.ToolConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			return domain.ToolConfig{}, domain.E(domain.CodeInvalidConfig, "loader.config", "packaged config.json does not parse", err)
		}
		return cfg, nil
	}
	meta := pkg.Metadata
	return domain.ToolConfig{
		Name:    meta.Name,
		License: meta.License,
		Meta:    domain.ToolConfigMeta{Author: meta.Author, Version: meta.Version},
		Build:   domain.ToolConfigBuild{Entry: meta.Entry, Module: meta.Module},
	}, nil
}

func validateBuildSection(cfg domain.ToolConfig) error {
	if cfg.Build.Entry == "" {
		return domain.E(domain.CodeInvalidConfig, "loader.config", "config missing build.entry", nil)
	}
	if cfg.Build.Module == "" {
		return domain.E(domain.CodeInvalidConfig, "loader.config", "config missing build.module", nil)
	}
	return nil
}

func materialize(pkg domain.ToolPackage, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for rel, content := range pkg.Files {
		if err := domain.ValidateFilePath(rel); err != nil {
			return err
		}
		target := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(target, content, 0o644); err != nil {
			return err
		}
	}
	return nil
}
