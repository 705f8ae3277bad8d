package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/pallet/pkg/config"
	"github.com/openfroyo/pallet/pkg/ledger"
	"github.com/openfroyo/pallet/pkg/lock"
)

// lockStatus is a project whose lock marker is present. Alive is only
// known for holders on this host.
type lockStatus struct {
	Project string       `json:"project"`
	Holder  *lock.Holder `json:"holder"`
	Alive   bool         `json:"alive"`
	Local   bool         `json:"local"`
}

type statusReport struct {
	Entries []ledger.Entry `json:"entries"`
	Locks   []lockStatus   `json:"locks"`
}

func newStatusCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recorded builds and held project locks",
		Long: `Show the ledger entries of the build root, oldest first, and the
projects whose lock marker is currently present.`,
		Example: `  # Show what has been built
  pallet status

  # Machine-readable output
  pallet status --json`,
		Args: cobra.NoArgs,
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

			entries, err := b.Ledger().Entries(cmd.Context())
			if err != nil {
				return err
			}

			ws := config.NewWorkspace(b.Config(), a.tel.Logger)
			report := statusReport{Entries: entries, Locks: []lockStatus{}}
			for _, name := range ws.Names() {
				root, err := ws.ProjectPath(name)
				if err != nil {
					continue
				}
				holder, err := lock.Inspect(root)
				if err != nil {
					continue
				}
				report.Locks = append(report.Locks, lockStatus{Project: name, Holder: holder, Alive: holder.Alive(), Local: holder.Local()})
			}

			out := cmd.OutOrStdout()
			if a.opts.jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			if len(report.Entries) == 0 {
				fmt.Fprintln(out, "Nothing recorded yet")
			} else {
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "CATEGORY\tNAME\tRUN\tRECORDED")
				for _, e := range report.Entries {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Category, e.Name, e.RunID, e.RecordedAt.Local().Format(time.RFC3339))
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}

			for _, l := range report.Locks {
				state := "stale"
				switch {
				case !l.Local:
					state = "held elsewhere"
				case l.Alive:
					state = "held"
				}
				fmt.Fprintf(out, "Locked: %s (%s by pid %d on %s since %s)\n",
					l.Project, state, l.Holder.PID, l.Holder.Host, l.Holder.AcquiredAt.Local().Format(time.RFC3339))
			}
			return nil
		},
	}

	return cmd
}
