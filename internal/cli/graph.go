package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wheelwright-dev/wheelwright/pkg/graph"
	"github.com/wheelwright-dev/wheelwright/pkg/require"
	"github.com/wheelwright-dev/wheelwright/pkg/resolve"
)

// newGraphCmd creates the graph command, which resolves the closure
// without vendoring anything.
func newGraphCmd(configPath *string) *cobra.Command {
	opts := &vendorOpts{}
	var format, output string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Resolve and display the dependency graph",
		Long: `Graph resolves the plugin's requirements and prints the dependency
graph without downloading or vendoring anything. Formats: tree (default),
json, dot, svg.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			opts.merge(cmd, &cfg)

			idx, backend, err := openIndex(ctx, cfg)
			if err != nil {
				return err
			}
			if backend != nil {
				defer backend.Close()
			}

			roots, err := require.ParseAll(cfg.Requirements)
			if err != nil {
				return err
			}

			track := newProgress(logger)
			resolver := resolve.New(idx,
				resolve.WithExclusions(cfg.Exclude),
				resolve.WithLogger(logger))
			g, failures := resolver.Resolve(ctx, cfg.Package, roots)
			track.done(fmt.Sprintf("Resolved %d packages", g.Len()))

			export := graph.New(require.NormalizeName(cfg.Package), g, failures)

			var data []byte
			switch format {
			case "tree":
				data = []byte(export.Tree())
			case "json":
				if data, err = export.JSON(); err != nil {
					return err
				}
			case "dot":
				data = []byte(export.DOT())
			case "svg":
				if data, err = export.RenderSVG(ctx); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown format %q (want tree, json, dot, or svg)", format)
			}

			if output == "" {
				_, err = os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			printSuccess("Wrote %s graph", format)
			printFile(output)

			for _, f := range failures {
				printWarning("Unresolved %s: %s", f.Name, f.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.pkg, "package", "p", "", "target plugin name")
	cmd.Flags().StringArrayVarP(&opts.requirements, "requirement", "r", nil, "root requirement (repeatable)")
	cmd.Flags().StringArrayVar(&opts.exclude, "exclude", nil, "package to exclude (repeatable)")
	cmd.Flags().StringVar(&opts.indexURL, "index", "", "package index base URL")
	cmd.Flags().StringVar(&opts.localIndex, "local-index", "", "local index directory")
	cmd.Flags().StringVarP(&format, "format", "f", "tree", "output format (tree, json, dot, svg)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout if empty)")

	return cmd
}
