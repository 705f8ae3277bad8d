package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newGraphCommand(a *app) *cobra.Command {
	var dot bool

	cmd := &cobra.Command{
		Use:   "graph [project...]",
		Short: "Show the dependency graph",
		Long: `Show the ordinary dependency graph reachable from the named projects,
grouped into levels that could build in parallel. Without arguments
every mapped project is included. Build-only and other non-ordinary
dependencies are listed but are not part of the graph.`,
		Example: `  # Levels of the whole stack
  pallet graph

  # Render with graphviz
  pallet graph app --dot | dot -Tsvg > app.svg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.openBuild(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := b.Close(); cerr != nil {
					log.Warn().Err(cerr).Msg("Failed to close ledger")
				}
			}()

			roots := args
			if len(roots) == 0 {
				for name := range b.Config().Projects {
					roots = append(roots, name)
				}
				sort.Strings(roots)
			}

			g, err := b.Graph(roots...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case dot:
				fmt.Fprint(out, g.ToDOT())
			case a.opts.jsonOutput:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(g)
			default:
				for i, level := range g.Levels {
					fmt.Fprintf(out, "Level %d:\n", i)
					for _, name := range level {
						node := g.Nodes[name]
						fmt.Fprintf(out, "  %s", name)
						if len(node.Dependencies) > 0 {
							fmt.Fprintf(out, " <- %s", strings.Join(node.Dependencies, ", "))
						}
						kinds := make([]string, 0, len(node.Preconditions))
						for kind := range node.Preconditions {
							kinds = append(kinds, kind)
						}
						sort.Strings(kinds)
						for _, kind := range kinds {
							fmt.Fprintf(out, " [%s: %s]", kind, strings.Join(node.Preconditions[kind], ", "))
						}
						fmt.Fprintln(out)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dot, "dot", false, "output in graphviz DOT format")

	return cmd
}
