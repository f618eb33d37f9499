package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"toolpak/internal/domain"
	"toolpak/internal/infra/deps"
	"toolpak/internal/infra/index"
	"toolpak/internal/infra/loader"
	"toolpak/internal/infra/local"
	"toolpak/internal/infra/pack"
	"toolpak/internal/infra/registry"
	"toolpak/internal/infra/telemetry"
)

// Manager wires the packaging, caching, registry and loading layers into the
// operations the CLI exposes. One Manager owns the install ledger; create one
// per process.
type Manager struct {
	logger   *zap.Logger
	cfg      Config
	cache    *pack.Cache
	builder  *pack.Builder
	loader   *loader.Loader
	deps     *deps.Installer
	registry *registry.Client
	ledger   *index.Ledger
	local    *local.Watcher
	metrics  domain.Metrics

	preferLocal bool
}

type ManagerOptions struct {
	Logger *zap.Logger
	Config Config

	// Registry overrides the client built from Config.Registry. Leave nil to
	// derive it; a config without a base URL runs in offline mode.
	Registry *registry.Client
	// Ledger overrides the ledger opened at Config.LedgerPath.
	Ledger  *index.Ledger
	Modules domain.ModuleLoader
	Metrics domain.Metrics

	// PreferLocal makes registry references resolve to an unpackaged local
	// tool of the same name when one exists.
	PreferLocal bool
}

func NewManager(opts ManagerOptions) (*Manager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	cfg := opts.Config

	client := opts.Registry
	if client == nil && cfg.Registry.BaseURL != "" {
		var err error
		client, err = registry.NewClient(registry.Options{
			Logger:  logger,
			BaseURL: cfg.Registry.BaseURL,
			Timeout: time.Duration(cfg.Registry.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
	}

	ledger := opts.Ledger
	if ledger == nil {
		var err error
		ledger, err = index.OpenLedger(cfg.LedgerPath)
		if err != nil {
			return nil, err
		}
	}

	return &Manager{
		logger:  logger.Named("manager"),
		cfg:     cfg,
		cache:   pack.NewCache(cfg.CacheRoot, logger),
		builder: pack.NewBuilder(logger),
		loader: loader.New(loader.Options{
			Logger:        logger,
			LocalToolsDir: cfg.LocalToolsDir,
			ScratchRoot:   cfg.ScratchDir,
			Modules:       opts.Modules,
			Metrics:       metrics,
		}),
		deps: deps.New(deps.Options{
			Logger:       logger,
			ScratchDir:   cfg.ScratchDir,
			InstallerCmd: cfg.Installer.Cmd,
			Metrics:      metrics,
		}),
		registry:    client,
		ledger:      ledger,
		local:       local.NewWatcher(cfg.LocalToolsDir, logger),
		metrics:     metrics,
		preferLocal: opts.PreferLocal,
	}, nil
}

// Start primes the local tools snapshot and begins watching it for changes.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.local.Refresh(); err != nil {
		return err
	}
	m.local.Start(ctx)
	return nil
}

func (m *Manager) Close() error {
	return m.ledger.Close()
}

// ParseToolRef parses "author/name", "author/name@version" or a bare local
// tool name.
func ParseToolRef(raw string) (domain.ToolRef, error) {
	const op = "manager.parse_ref"
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return domain.ToolRef{}, domain.E(domain.CodeInvalidArgument, op, "tool reference is required", nil)
	}
	base, version, hasVersion := strings.Cut(trimmed, "@")
	if hasVersion && strings.TrimSpace(version) == "" {
		return domain.ToolRef{}, domain.E(domain.CodeInvalidArgument, op,
			fmt.Sprintf("reference %q has an empty version", raw), nil)
	}
	parts := strings.Split(base, "/")
	switch len(parts) {
	case 1:
		if hasVersion {
			return domain.ToolRef{}, domain.E(domain.CodeInvalidArgument, op,
				fmt.Sprintf("local reference %q cannot carry a version", raw), nil)
		}
		if parts[0] == "" {
			return domain.ToolRef{}, domain.E(domain.CodeInvalidArgument, op, "tool name is required", nil)
		}
		return domain.ToolRef{Name: parts[0], Local: true}, nil
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return domain.ToolRef{}, domain.E(domain.CodeInvalidArgument, op,
				fmt.Sprintf("reference %q needs both author and name", raw), nil)
		}
		return domain.ToolRef{Author: parts[0], Name: parts[1], Version: strings.TrimSpace(version)}, nil
	default:
		return domain.ToolRef{}, domain.E(domain.CodeInvalidArgument, op,
			fmt.Sprintf("reference %q is not author/name", raw), nil)
	}
}

// PackageTool builds a transportable payload from a tool source folder.
func (m *Manager) PackageTool(folder string) (domain.PackagePayload, error) {
	return m.builder.Build(folder)
}

// UploadTool packages a source folder and publishes it. Unlike PackageTool,
// publishing requires complete identity metadata.
func (m *Manager) UploadTool(ctx context.Context, folder string) error {
	const op = "manager.upload"
	if m.registry == nil {
		return domain.E(domain.CodeUnavailable, op, "no registry configured", nil)
	}
	payload, err := m.builder.Build(folder)
	if err != nil {
		return err
	}
	if payload.Author == "" || payload.Name == "" || payload.Version == "" {
		return domain.E(domain.CodeInvalidConfig, op,
			"config.json must declare name, meta.author and meta.version before upload", nil)
	}
	return m.registry.Upload(ctx, payload)
}

// DownloadTool returns the tool's package, serving from the cache when
// possible and downloading otherwise. An empty version resolves against the
// cache first and only falls back to the registry's idea of latest on a miss.
func (m *Manager) DownloadTool(ctx context.Context, author, name, version string) (domain.ToolPackage, error) {
	const op = "manager.download"

	resolved, err := m.cache.ResolveVersion(author, name, version)
	if err != nil {
		return domain.ToolPackage{}, err
	}
	if resolved != "" {
		pkg, err := pack.LoadPackage(m.cache.Path(author, name, resolved))
		switch {
		case err == nil:
			m.metrics.RecordCacheLookup(true)
			m.logger.Debug("cache hit",
				zap.String("author", author),
				zap.String("name", name),
				zap.String("version", resolved),
			)
			m.ensureDependencies(ctx, pkg)
			return pkg, nil
		case isCorrupt(err):
			m.logger.Warn("discarding corrupt cache entry",
				zap.String("author", author),
				zap.String("name", name),
				zap.String("version", resolved),
				zap.Error(err),
			)
		case !isNotFound(err):
			return domain.ToolPackage{}, err
		}
	}
	m.metrics.RecordCacheLookup(false)

	if m.registry == nil {
		return domain.ToolPackage{}, domain.E(domain.CodeUnavailable, op,
			fmt.Sprintf("tool %s/%s not cached and no registry configured", author, name), nil)
	}

	start := time.Now()
	payload, err := m.registry.Download(ctx, author, name, version)
	m.metrics.RecordDownload(author+"/"+name, time.Since(start), err == nil)
	if err != nil {
		return domain.ToolPackage{}, err
	}
	pkg, err := pack.PackageFromPayload(payload)
	if err != nil {
		return domain.ToolPackage{}, err
	}

	path := m.cache.Path(author, name, pkg.Metadata.Version)
	if err := pack.SavePackage(pkg, path); err != nil {
		return domain.ToolPackage{}, err
	}
	if err := m.ledger.Record(index.Record{
		Author:    author,
		Name:      name,
		Version:   pkg.Metadata.Version,
		License:   pkg.Metadata.License,
		Entry:     pkg.Metadata.Entry,
		CachePath: path,
	}); err != nil {
		m.logger.Warn("ledger record failed", zap.String("tool", author+"/"+name), zap.Error(err))
	}
	m.logger.Info("tool downloaded",
		zap.String("author", author),
		zap.String("name", name),
		zap.String("version", pkg.Metadata.Version),
	)

	m.ensureDependencies(ctx, pkg)
	return pkg, nil
}

// LoadTool resolves a reference to a live implementation. Local references
// load straight from the local tools directory; registry references prefer an
// unpackaged local copy of the same name when one exists.
func (m *Manager) LoadTool(ctx context.Context, ref domain.ToolRef) (domain.LoadedTool, error) {
	if ref.Local {
		return m.loader.LoadFromLocalDir(ref.Name)
	}
	if m.preferLocal {
		if _, ok := m.local.Lookup(ref.Name); ok {
			m.logger.Debug("using local copy", zap.String("tool", ref.String()))
			return m.loader.LoadFromLocalDir(ref.Name)
		}
	}
	pkg, err := m.DownloadTool(ctx, ref.Author, ref.Name, ref.Version)
	if err != nil {
		return domain.LoadedTool{}, err
	}
	return m.loader.LoadFromPackage(pkg)
}

// ListAvailableTools returns the registry's advertised tools.
func (m *Manager) ListAvailableTools(ctx context.Context) ([]domain.ToolListing, error) {
	if m.registry == nil {
		return nil, domain.E(domain.CodeUnavailable, "manager.list", "no registry configured", nil)
	}
	return m.registry.List(ctx)
}

// ListLocalTools returns the unpackaged tools under the local tools root.
func (m *Manager) ListLocalTools() []string {
	return m.local.Tools()
}

// ListDownloadedTools returns the install ledger's records.
func (m *Manager) ListDownloadedTools() ([]index.Record, error) {
	return m.ledger.List()
}

// CheckToolUpdates reports whether the registry has a newer version than the
// one referenced. An empty version compares against the newest cached one.
func (m *Manager) CheckToolUpdates(ctx context.Context, ref domain.ToolRef) (bool, error) {
	const op = "manager.check_updates"
	if m.registry == nil {
		return false, domain.E(domain.CodeUnavailable, op, "no registry configured", nil)
	}
	current := ref.Version
	if current == "" {
		resolved, err := m.cache.ResolveVersion(ref.Author, ref.Name, "")
		if err != nil {
			return false, err
		}
		if resolved == "" {
			return false, domain.E(domain.CodeNotFound, op,
				fmt.Sprintf("no cached version of %s/%s to compare against", ref.Author, ref.Name),
				domain.ErrPackageNotFound)
		}
		current = resolved
	}
	return m.registry.CheckUpdates(ctx, ref.Author, ref.Name, current)
}

// DependenciesSatisfied reports whether the tool's declared dependencies are
// all installed, fetching the package first when it is not cached.
func (m *Manager) DependenciesSatisfied(ctx context.Context, author, name, version string) (bool, error) {
	pkg, err := m.DownloadTool(ctx, author, name, version)
	if err != nil {
		return false, err
	}
	return m.deps.IsSatisfied(ctx, pkg)
}

// InstallDependencies runs the external installer against the tool's
// manifest. Unlike the implicit install on download, a caller asking for it
// directly gets the installer's verdict via logs; the error covers only
// scratch-file handling.
func (m *Manager) InstallDependencies(ctx context.Context, author, name, version string) error {
	pkg, err := m.DownloadTool(ctx, author, name, version)
	if err != nil {
		return err
	}
	return m.deps.Install(ctx, pkg)
}

// ensureDependencies is best effort: check first, install only on a gap, and
// never fail the surrounding operation.
func (m *Manager) ensureDependencies(ctx context.Context, pkg domain.ToolPackage) {
	satisfied, err := m.deps.IsSatisfied(ctx, pkg)
	if err != nil {
		m.logger.Warn("dependency check failed", zap.String("tool", pkg.Metadata.Name), zap.Error(err))
		return
	}
	if satisfied {
		return
	}
	if err := m.deps.Install(ctx, pkg); err != nil {
		m.logger.Warn("dependency install failed", zap.String("tool", pkg.Metadata.Name), zap.Error(err))
	}
}

func isNotFound(err error) bool {
	code, ok := domain.CodeFrom(err)
	return ok && code == domain.CodeNotFound
}

func isCorrupt(err error) bool {
	code, ok := domain.CodeFrom(err)
	return ok && code == domain.CodeCorruptPackage
}
