package commands

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/pallet/pkg/lock"
)

func newUnlockCommand(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "unlock <project>",
		Short: "Remove a project's lock marker",
		Long: `Remove the lock marker of a project whose holder is gone.

Lock markers never expire: a pallet process killed while building
leaves its marker behind and later builds of that project wait for it.
unlock removes such a marker. A marker held by a live process on this
host is only removed with --force.`,
		Example: `  pallet unlock zlib
  pallet unlock zlib --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			ws, err := a.openWorkspace()
			if err != nil {
				return err
			}
			root, err := ws.ProjectPath(name)
			if err != nil {
				return err
			}

			holder, err := lock.Inspect(root)
			if errors.Is(err, lock.ErrNotLocked) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is not locked\n", name)
				return nil
			}
			if err != nil {
				return err
			}

			if holder.Alive() && !force {
				return fmt.Errorf("%s is locked by running process %d; use --force to remove the marker anyway", name, holder.PID)
			}

			if err := lock.ForceRelease(root); err != nil && !errors.Is(err, lock.ErrNotLocked) {
				return err
			}
			log.Info().
				Str("project", name).
				Int("holder_pid", holder.PID).
				Str("holder_host", holder.Host).
				Msg("Removed project lock marker")
			fmt.Fprintf(cmd.OutOrStdout(), "Unlocked %s\n", name)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "remove the marker even if its holder is alive")

	return cmd
}
