package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"toolpak/internal/app"
	"toolpak/internal/domain"
	"toolpak/internal/infra/telemetry"
)

type cliOptions struct {
	configPath  string
	registryURL string
	verbose     bool
	jsonOutput  bool
	logger      *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := cliOptions{
		logger: zap.NewNop(),
	}

	root := &cobra.Command{
		Use:           "toolpak",
		Short:         "Package, distribute and load pluggable tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			applyRootFlagBindings(cmd, &opts)
			if opts.verbose {
				logger, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				opts.logger = logger
			}
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = opts.logger.Sync()
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (defaults apply when omitted)")
	root.PersistentFlags().StringVar(&opts.registryURL, "registry", "", "registry base URL (overrides config)")
	root.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output JSON")

	root.AddCommand(
		newPackageCmd(&opts),
		newUploadCmd(&opts),
		newDownloadCmd(&opts),
		newLoadCmd(&opts),
		newListCmd(&opts),
		newCheckUpdateCmd(&opts),
		newDepsCmd(&opts),
	)

	return root
}

func applyRootFlagBindings(cmd *cobra.Command, opts *cliOptions) {
	flags := cmd.Flags()
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "config":
			opts.configPath, _ = flags.GetString("config")
		case "registry":
			opts.registryURL, _ = flags.GetString("registry")
		case "verbose":
			opts.verbose, _ = flags.GetBool("verbose")
		case "json":
			opts.jsonOutput, _ = flags.GetBool("json")
		}
	})
}

// newManager builds a Manager from the effective config. The caller owns the
// returned Manager and must Close it.
func newManager(opts *cliOptions) (*app.Manager, error) {
	cfg, err := app.NewConfigLoader(opts.logger).Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.registryURL != "" {
		cfg.Registry.BaseURL = opts.registryURL
	}

	var metrics domain.Metrics
	if cfg.Metrics.Enabled {
		metrics = telemetry.NewPrometheusMetrics(prometheus.DefaultRegisterer)
	}

	return app.NewManager(app.ManagerOptions{
		Logger:      opts.logger,
		Config:      cfg,
		Metrics:     metrics,
		PreferLocal: true,
	})
}
