// Package cli implements the wheelwright command-line interface.
//
// The CLI vendors a plugin's dependency closure (vendor), inspects the
// resolved graph (graph), assembles distributable bundles (build), and
// manages the index response cache (cache). Commands are built with cobra;
// logging uses charmbracelet/log at info level, or debug with --verbose,
// with the logger passed through context.Context.
package cli

import (
	"context"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	version string // semantic version (e.g., "v1.2.3")
	commit  string // git commit SHA
	date    string // build timestamp
)

// SetVersion sets the version information displayed by --version. Called by
// the main package with values injected via ldflags at build time.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the wheelwright CLI.
func Execute(ctx context.Context) error {
	var verbose bool
	var configPath string

	root := &cobra.Command{
		Use:          "wheelwright",
		Short:        "Wheelwright vendors plugin dependencies into a private namespace",
		Long:         `Wheelwright resolves a plugin's dependency closure, relocates it under the plugin's private namespace, and packages the result as a self-contained bundle.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			cmd.SetContext(withLogger(cmd.Context(), newLogger(os.Stderr, level)))
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("wheelwright %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default wheelwright.toml if present)")

	root.AddCommand(newVendorCmd(&configPath))
	root.AddCommand(newGraphCmd(&configPath))
	root.AddCommand(newBuildCmd(&configPath))
	root.AddCommand(newCacheCmd())

	return root.ExecuteContext(ctx)
}
