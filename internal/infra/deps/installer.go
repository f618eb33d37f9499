package deps

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"toolpak/internal/domain"
	"toolpak/internal/infra/telemetry"
)

// Installer checks a package's declared dependency manifest against the
// packages the external installer reports as present, and installs missing
// ones. Installation is best effort: a failed install is logged and
// swallowed, since a tool may still partially function without every
// declared dependency.
type Installer struct {
	logger     *zap.Logger
	scratchDir string
	installer  []string
	metrics    domain.Metrics
}

type Options struct {
	Logger       *zap.Logger
	ScratchDir   string
	InstallerCmd []string
	Metrics      domain.Metrics
}

func New(opts Options) *Installer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	installer := opts.InstallerCmd
	if len(installer) == 0 {
		installer = domain.DefaultInstallerCmd
	}
	scratchDir := opts.ScratchDir
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Installer{
		logger:     logger.Named("deps"),
		scratchDir: scratchDir,
		installer:  installer,
		metrics:    metrics,
	}
}

// IsSatisfied reports whether every dependency declared in the package's
// manifest is already installed. A package without a manifest is trivially
// satisfied. Comparison is case-insensitive and by name only; installed
// versions are not checked.
func (i *Installer) IsSatisfied(ctx context.Context, pkg domain.ToolPackage) (bool, error) {
	manifest, ok := pkg.Files[domain.RequirementsFileName]
	if !ok {
		return true, nil
	}
	required := parseManifest(manifest)
	if len(required) == 0 {
		return true, nil
	}
	installed, err := i.installedPackages(ctx)
	if err != nil {
		return false, domain.E(domain.CodeInternal, "deps.check", "list installed packages", err)
	}
	for _, name := range required {
		if _, ok := installed[name]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// Install writes the package's manifest to a scratch file and hands it to the
// external installer. The scratch file is removed on all exit paths. A
// non-zero installer exit is logged and not returned.
func (i *Installer) Install(ctx context.Context, pkg domain.ToolPackage) error {
	manifest, ok := pkg.Files[domain.RequirementsFileName]
	if !ok {
		i.logger.Info("no dependency manifest, skipping install",
			zap.String("tool", pkg.Metadata.Name),
		)
		return nil
	}

	scratch, err := os.CreateTemp(i.scratchDir, "requirements-*.txt")
	if err != nil {
		return domain.E(domain.CodeInternal, "deps.install", "create scratch manifest", err)
	}
	defer func() {
		_ = os.Remove(scratch.Name())
	}()
	if _, err := scratch.Write(manifest); err != nil {
		_ = scratch.Close()
		return domain.E(domain.CodeInternal, "deps.install", "write scratch manifest", err)
	}
	if err := scratch.Close(); err != nil {
		return domain.E(domain.CodeInternal, "deps.install", "close scratch manifest", err)
	}

	args := append(append([]string(nil), i.installer[1:]...), "install", "-r", scratch.Name())
	cmd := exec.CommandContext(ctx, i.installer[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		i.metrics.RecordDependencyInstall(false)
		i.logger.Warn("dependency install failed",
			zap.String("tool", pkg.Metadata.Name),
			zap.String("stderr", strings.TrimSpace(stderr.String())),
			zap.Error(err),
		)
		return nil
	}
	i.metrics.RecordDependencyInstall(true)
	i.logger.Info("dependencies installed", zap.String("tool", pkg.Metadata.Name))
	return nil
}

func (i *Installer) installedPackages(ctx context.Context) (map[string]struct{}, error) {
	args := append(append([]string(nil), i.installer[1:]...), "list", "--format=freeze")
	cmd := exec.CommandContext(ctx, i.installer[0], args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	installed := make(map[string]struct{})
	for _, line := range strings.Split(stdout.String(), "\n") {
		name := normalizeRequirement(line)
		if name != "" {
			installed[name] = struct{}{}
		}
	}
	return installed, nil
}

// parseManifest extracts dependency names from name[==version] lines,
// ignoring blanks and comments.
func parseManifest(manifest []byte) []string {
	var names []string
	for _, line := range strings.Split(string(manifest), "\n") {
		name := normalizeRequirement(line)
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

func normalizeRequirement(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	name, _, _ := strings.Cut(line, "==")
	return strings.ToLower(strings.TrimSpace(name))
}
