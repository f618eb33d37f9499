package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"toolpak/internal/app"
)

func newPackageCmd(opts *cliOptions) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "package <folder>",
		Short: "Build a transportable package from a tool source folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newManager(opts)
			if err != nil {
				return err
			}
			defer func() { _ = manager.Close() }()

			payload, err := manager.PackageTool(args[0])
			if err != nil {
				return err
			}
			if outputPath != "" {
				data, err := json.MarshalIndent(payload, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(outputPath, data, 0o644); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", outputPath)
				return nil
			}
			return printPayload(payload, opts.jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the payload JSON to a file")
	return cmd
}

func newUploadCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <folder>",
		Short: "Package a tool source folder and publish it to the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newManager(opts)
			if err != nil {
				return err
			}
			defer func() { _ = manager.Close() }()

			if err := manager.UploadTool(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("uploaded")
			return nil
		},
	}
}

func newDownloadCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "download <author/name[@version]>",
		Short: "Fetch a tool into the local cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := app.ParseToolRef(args[0])
			if err != nil {
				return err
			}
			if ref.Local {
				return fmt.Errorf("download needs an author/name reference, got %q", args[0])
			}
			manager, err := newManager(opts)
			if err != nil {
				return err
			}
			defer func() { _ = manager.Close() }()

			pkg, err := manager.DownloadTool(cmd.Context(), ref.Author, ref.Name, ref.Version)
			if err != nil {
				return err
			}
			fmt.Printf("%s/%s@%s (%d files)\n",
				pkg.Metadata.Author, pkg.Metadata.Name, pkg.Metadata.Version, len(pkg.Files))
			return nil
		},
	}
}

func newLoadCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load <ref>",
		Short: "Load a tool implementation, fetching it first if needed",
		Long: `Load resolves a tool reference to a live implementation. A bare name loads
an unpackaged tool from the local tools directory; author/name references go
through the cache and registry.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := app.ParseToolRef(args[0])
			if err != nil {
				return err
			}
			manager, err := newManager(opts)
			if err != nil {
				return err
			}
			defer func() { _ = manager.Close() }()

			if err := manager.Start(cmd.Context()); err != nil {
				return err
			}
			loaded, err := manager.LoadTool(cmd.Context(), ref)
			if err != nil {
				return err
			}
			return printLoaded(loaded, opts.jsonOutput)
		},
	}
}

func newListCmd(opts *cliOptions) *cobra.Command {
	var localOnly, downloadedOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tools from the registry, the local tools directory or the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if localOnly && downloadedOnly {
				return fmt.Errorf("--local and --downloaded are mutually exclusive")
			}
			manager, err := newManager(opts)
			if err != nil {
				return err
			}
			defer func() { _ = manager.Close() }()

			switch {
			case localOnly:
				if err := manager.Start(cmd.Context()); err != nil {
					return err
				}
				return printNames(manager.ListLocalTools(), opts.jsonOutput)
			case downloadedOnly:
				records, err := manager.ListDownloadedTools()
				if err != nil {
					return err
				}
				return printRecords(records, opts.jsonOutput)
			default:
				listings, err := manager.ListAvailableTools(cmd.Context())
				if err != nil {
					return err
				}
				return printListings(listings, opts.jsonOutput)
			}
		},
	}

	cmd.Flags().BoolVar(&localOnly, "local", false, "list unpackaged tools in the local tools directory")
	cmd.Flags().BoolVar(&downloadedOnly, "downloaded", false, "list downloaded packages recorded on this machine")
	return cmd
}

func newDepsCmd(opts *cliOptions) *cobra.Command {
	var install bool

	cmd := &cobra.Command{
		Use:   "deps <author/name[@version]>",
		Short: "Check a tool's declared dependencies against the installer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := app.ParseToolRef(args[0])
			if err != nil {
				return err
			}
			if ref.Local {
				return fmt.Errorf("deps needs an author/name reference, got %q", args[0])
			}
			manager, err := newManager(opts)
			if err != nil {
				return err
			}
			defer func() { _ = manager.Close() }()

			if install {
				if err := manager.InstallDependencies(cmd.Context(), ref.Author, ref.Name, ref.Version); err != nil {
					return err
				}
				fmt.Println("installer ran; see logs for its verdict")
				return nil
			}
			satisfied, err := manager.DependenciesSatisfied(cmd.Context(), ref.Author, ref.Name, ref.Version)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(map[string]bool{"satisfied": satisfied})
			}
			if satisfied {
				fmt.Println("dependencies satisfied")
			} else {
				fmt.Println("dependencies missing; run with --install")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&install, "install", false, "install missing dependencies")
	return cmd
}

func newCheckUpdateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-update <author/name[@version]>",
		Short: "Ask the registry whether a newer version exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := app.ParseToolRef(args[0])
			if err != nil {
				return err
			}
			if ref.Local {
				return fmt.Errorf("check-update needs an author/name reference, got %q", args[0])
			}
			manager, err := newManager(opts)
			if err != nil {
				return err
			}
			defer func() { _ = manager.Close() }()

			available, err := manager.CheckToolUpdates(cmd.Context(), ref)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(map[string]bool{"update_available": available})
			}
			if available {
				fmt.Printf("update available for %s\n", ref.String())
			} else {
				fmt.Printf("%s is up to date\n", ref.String())
			}
			return nil
		},
	}
}
