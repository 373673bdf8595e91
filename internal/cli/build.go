package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wheelwright-dev/wheelwright/pkg/archive"
	"github.com/wheelwright-dev/wheelwright/pkg/packager"
	"github.com/wheelwright-dev/wheelwright/pkg/platform"
)

// newBuildCmd creates the build command, which archives a vendored plugin
// directory into a distributable bundle.
func newBuildCmd(configPath *string) *cobra.Command {
	var (
		dest       string
		output     string
		pluginVer  string
		skipVerify bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Archive a vendored plugin into a distributable bundle",
		Long: `Build assembles the plugin directory, including its vendor directory,
into a zip bundle with a RECORD integrity manifest. The vendor manifest
supplies the bundle's platform tag; run vendor first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if dest != "" {
				cfg.Dest = dest
			}
			if cfg.Dest == "" {
				cfg.Dest = "."
			}

			manifest, err := packager.ReadManifest(filepath.Join(cfg.Dest, packager.VendorDirName))
			if err != nil {
				return fmt.Errorf("read vendor manifest (run vendor first): %w", err)
			}
			tag, ok := platform.ParseTag(manifest.Tag)
			if !ok {
				tag = platform.Universal
			}

			name := cfg.Package
			if name == "" {
				name = filepath.Base(absPath(cfg.Dest))
			}
			if output == "" {
				output = archive.Filename(name, pluginVer, tag)
			}

			track := newProgress(logger)
			if err := archive.Build(cfg.Dest, output); err != nil {
				return err
			}
			track.done("Archived plugin bundle")

			if !skipVerify {
				bad, err := archive.Verify(output)
				if err != nil {
					return err
				}
				if len(bad) > 0 {
					return fmt.Errorf("archive integrity check failed: %v", bad)
				}
			}

			info, err := os.Stat(output)
			if err != nil {
				return err
			}
			printSuccess("Built %s bundle (%d packages vendored)", tag.String(), len(manifest.Packages))
			printFile(output)
			printDetail("%d bytes", info.Size())
			return nil
		},
	}

	cmd.Flags().StringVarP(&dest, "dest", "d", "", "plugin directory (default \".\")")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output archive path")
	cmd.Flags().StringVar(&pluginVer, "plugin-version", "0.0.0", "plugin version for the archive filename")
	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "skip the post-build integrity check")

	return cmd
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
