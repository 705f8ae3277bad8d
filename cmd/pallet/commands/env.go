package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newEnvCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env <project>",
		Short: "Print the environment a project's build action runs with",
		Long: `Print the composed build environment of a project: the build root's
environment, overlaid with the project's own, overlaid with the
PALLET_PREFIX, PALLET_HOST and PALLET_BUILD_ROOT variables. Variables
inherited from the calling process are not shown.`,
		Example: `  pallet env curl`,
		Args:    cobra.ExactArgs(1),
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

			env, err := b.Environment(args[0])
			if err != nil {
				return err
			}
			for _, kv := range env.Strings() {
				fmt.Fprintln(cmd.OutOrStdout(), kv)
			}
			return nil
		},
	}

	return cmd
}
