package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newBuildCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <project>...",
		Short: "Build projects and their dependencies",
		Long: `Build each named project after its ordinary dependencies.

Projects already recorded in the ledger are skipped. Independent
dependencies build concurrently; a failure stops scheduling new work,
lets running build actions finish, and keeps every project that
completed recorded so the next run resumes from there.`,
		Example: `  # Build one project
  pallet build app

  # Build several projects under another build root
  pallet -C /srv/stack build zlib curl`,
		Args: cobra.MinimumNArgs(1),
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

			for _, name := range args {
				if err := b.Build(cmd.Context(), name); err != nil {
					return err
				}
			}
			return nil
		},
	}

	return cmd
}
