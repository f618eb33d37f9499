package app

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"toolpak/internal/domain"
)

// Config is the fully normalized runtime configuration.
type Config struct {
	CacheRoot     string
	LocalToolsDir string
	LedgerPath    string
	ScratchDir    string
	Registry      RegistryConfig
	Installer     InstallerConfig
	Metrics       MetricsConfig
}

type RegistryConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

type InstallerConfig struct {
	Cmd []string
}

type MetricsConfig struct {
	Enabled bool
}

type rawConfig struct {
	CacheRoot     string             `mapstructure:"cacheRoot"`
	LocalToolsDir string             `mapstructure:"localToolsDir"`
	LedgerPath    string             `mapstructure:"ledgerPath"`
	ScratchDir    string             `mapstructure:"scratchDir"`
	Registry      rawRegistryConfig  `mapstructure:"registry"`
	Installer     rawInstallerConfig `mapstructure:"installer"`
	Metrics       rawMetricsConfig   `mapstructure:"metrics"`
}

type rawRegistryConfig struct {
	BaseURL        string `mapstructure:"baseURL"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds"`
}

type rawInstallerConfig struct {
	Cmd []string `mapstructure:"cmd"`
}

type rawMetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type ConfigLoader struct {
	logger *zap.Logger
}

func NewConfigLoader(logger *zap.Logger) *ConfigLoader {
	if logger == nil {
		return &ConfigLoader{logger: zap.NewNop()}
	}
	return &ConfigLoader{logger: logger.Named("config")}
}

func newConfigViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setConfigDefaults(v)
	return v
}

func setConfigDefaults(v *viper.Viper) {
	base := defaultBaseDir()
	v.SetDefault("cacheRoot", filepath.Join(base, "cache"))
	v.SetDefault("localToolsDir", filepath.Join(base, "local"))
	v.SetDefault("ledgerPath", filepath.Join(base, "ledger.db"))
	v.SetDefault("scratchDir", filepath.Join(base, "scratch"))
	v.SetDefault("registry.timeoutSeconds", domain.DefaultRegistryTimeoutSeconds)
	v.SetDefault("installer.cmd", domain.DefaultInstallerCmd)
	v.SetDefault("metrics.enabled", false)
}

// defaultBaseDir places state under the user cache dir, falling back to the
// working directory when the platform provides none.
func defaultBaseDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return "toolpak"
	}
	return filepath.Join(base, "toolpak")
}

// Load reads and normalizes a config file. An empty path yields the defaults.
func (l *ConfigLoader) Load(path string) (Config, error) {
	v := newConfigViper()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg, errs := normalizeConfig(raw)
	if len(errs) > 0 {
		return Config{}, domain.E(domain.CodeInvalidConfig, "config.load", strings.Join(errs, "; "), nil)
	}
	return cfg, nil
}

func normalizeConfig(raw rawConfig) (Config, []string) {
	var errs []string

	cacheRoot := strings.TrimSpace(raw.CacheRoot)
	if cacheRoot == "" {
		errs = append(errs, "cacheRoot is required")
	}
	localToolsDir := strings.TrimSpace(raw.LocalToolsDir)
	if localToolsDir == "" {
		errs = append(errs, "localToolsDir is required")
	}
	ledgerPath := strings.TrimSpace(raw.LedgerPath)
	if ledgerPath == "" {
		errs = append(errs, "ledgerPath is required")
	}
	scratchDir := strings.TrimSpace(raw.ScratchDir)
	if scratchDir == "" {
		errs = append(errs, "scratchDir is required")
	}

	baseURL := strings.TrimSpace(raw.Registry.BaseURL)
	if baseURL != "" {
		parsed, err := url.ParseRequestURI(baseURL)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			errs = append(errs, "registry.baseURL must be a valid http(s) URL")
		}
	}
	timeout := raw.Registry.TimeoutSeconds
	if timeout <= 0 {
		errs = append(errs, "registry.timeoutSeconds must be > 0")
	}

	installerCmd := raw.Installer.Cmd
	if len(installerCmd) == 0 {
		installerCmd = domain.DefaultInstallerCmd
	}
	for i, arg := range installerCmd {
		if strings.TrimSpace(arg) == "" {
			errs = append(errs, fmt.Sprintf("installer.cmd[%d] must not be empty", i))
		}
	}

	return Config{
		CacheRoot:     cacheRoot,
		LocalToolsDir: localToolsDir,
		LedgerPath:    ledgerPath,
		ScratchDir:    scratchDir,
		Registry: RegistryConfig{
			BaseURL:        strings.TrimRight(baseURL, "/"),
			TimeoutSeconds: timeout,
		},
		Installer: InstallerConfig{Cmd: installerCmd},
		Metrics:   MetricsConfig{Enabled: raw.Metrics.Enabled},
	}, errs
}
