package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report pod provisioning and linking state",
	Long: `Inspect the pod without changing anything: which application artifacts
exist, which install steps are still pending, which mounts are linked, and
whether a fast restart would skip provisioning.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}

		st, err := eng.Status()
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(st)
		}

		PrintSection("Applications")
		for _, app := range st.Apps {
			if app.Present {
				PrintSuccess(fmt.Sprintf("%s (%s)", app.Name, app.Dir))
			} else {
				PrintWarning(fmt.Sprintf("%s missing (%s)", app.Name, app.Dir))
			}
		}

		PrintSection("Provisioning")
		if len(st.PendingSteps) == 0 {
			PrintSuccess("All steps satisfied")
		} else {
			PrintInfo(PrintCount(len(st.PendingSteps), "pending step", "pending steps") + ":")
			PrintList(st.PendingSteps, 1)
		}

		PrintSection("Shared Mounts")
		PrintLabelValue("Shared tree", st.SharedDir)
		for _, m := range st.Mounts {
			if m.Linked {
				PrintSuccess(m.Source)
			} else {
				PrintWarning(m.Source + " not linked")
			}
		}

		fmt.Println()
		if st.FastRestart {
			PrintLabelValue("Fast restart", "yes")
		} else {
			PrintLabelValue("Fast restart", "no")
		}
		return nil
	},
}
