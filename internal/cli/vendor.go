package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wheelwright-dev/wheelwright/pkg/packager"
)

// vendorOpts holds the command-line flags for the vendor command.
type vendorOpts struct {
	pkg          string
	requirements []string
	exclude      []string
	dest         string
	indexURL     string
	localIndex   string
	workers      int
	timeout      time.Duration
	allowImpure  bool
}

// merge layers the flags the user actually set over the file config.
func (o *vendorOpts) merge(cmd *cobra.Command, cfg *fileConfig) {
	if o.pkg != "" {
		cfg.Package = o.pkg
	}
	if len(o.requirements) > 0 {
		cfg.Requirements = o.requirements
	}
	if len(o.exclude) > 0 {
		cfg.Exclude = o.exclude
	}
	if o.dest != "" {
		cfg.Dest = o.dest
	}
	if o.indexURL != "" {
		cfg.Index = o.indexURL
	}
	if o.localIndex != "" {
		cfg.LocalIndex = o.localIndex
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = o.workers
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Timeout = duration{o.timeout}
	}
	if cmd.Flags().Changed("allow-impure") {
		cfg.AllowImpure = o.allowImpure
	}
}

// newVendorCmd creates the vendor command.
func newVendorCmd(configPath *string) *cobra.Command {
	opts := &vendorOpts{}

	cmd := &cobra.Command{
		Use:   "vendor",
		Short: "Vendor the plugin's dependencies into its private namespace",
		Long: `Vendor resolves the plugin's requirements against the package index,
downloads every package in the closure, rewrites imports into the plugin's
private namespace, and commits the bundle to <dest>/_vendor together with
a manifest.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			opts.merge(cmd, &cfg)
			if cfg.Dest == "" {
				cfg.Dest = "."
			}

			idx, backend, err := openIndex(ctx, cfg)
			if err != nil {
				return err
			}
			if backend != nil {
				defer backend.Close()
			}

			track := newProgress(logger)
			spinner := newSpinner(ctx, fmt.Sprintf("Vendoring %d requirements", len(cfg.Requirements)))
			spinner.Start()

			result, err := packager.Vendor(ctx, packager.Config{
				Package:      cfg.Package,
				Requirements: cfg.Requirements,
				Exclude:      cfg.Exclude,
				Dest:         cfg.Dest,
				Index:        idx,
				Workers:      cfg.Workers,
				Timeout:      cfg.Timeout.Duration,
				AllowImpure:  cfg.AllowImpure,
				Logger:       logger,
			})
			if err != nil {
				spinner.StopWithError(err.Error())
				if result != nil && result.Conflict != nil {
					for pkg, tags := range result.Conflict.Packages {
						printDetail("%s: %v", pkg, tags)
					}
					printInfo("Re-run with --allow-impure to commit anyway")
				}
				return err
			}
			spinner.Stop()
			track.done(fmt.Sprintf("Vendored %d packages", len(result.Packages)))

			printSuccess("Committed %d packages under %s", len(result.Packages), packager.Namespace(cfg.Package))
			printDetail("Run %s, tag %s", result.RunID, result.Tag.String())
			for _, p := range result.Packages {
				printDetail("%s %s", p.Name, p.Version)
			}
			if result.Conflict != nil {
				printWarning("Bundle is impure: %s", result.Conflict.Error())
			}
			for _, f := range result.Failures {
				printWarning("Skipped %s: %s", f.Name, f.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.pkg, "package", "p", "", "target plugin name")
	cmd.Flags().StringArrayVarP(&opts.requirements, "requirement", "r", nil, "root requirement (repeatable)")
	cmd.Flags().StringArrayVar(&opts.exclude, "exclude", nil, "package to exclude (repeatable)")
	cmd.Flags().StringVarP(&opts.dest, "dest", "d", "", "plugin directory (default \".\")")
	cmd.Flags().StringVar(&opts.indexURL, "index", "", "package index base URL")
	cmd.Flags().StringVar(&opts.localIndex, "local-index", "", "local index directory")
	cmd.Flags().IntVar(&opts.workers, "workers", 4, "concurrent downloads")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 60*time.Second, "per-package download timeout")
	cmd.Flags().BoolVar(&opts.allowImpure, "allow-impure", false, "commit despite a platform conflict")

	return cmd
}
