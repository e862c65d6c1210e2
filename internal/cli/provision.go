package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var provisionDryRun bool

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Run the install steps the pod still needs",
	Long: `Execute every provisioning step whose artifact does not exist yet, in
rank order. Steps already satisfied are skipped, so re-running after a
failure resumes where the last run stopped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}

		if provisionDryRun {
			pending, err := eng.PendingSteps()
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(pending)
			}
			if len(pending) == 0 {
				PrintInfo("Nothing to do: all steps satisfied")
				return nil
			}
			PrintSection("Pending Steps")
			PrintList(pending, 1)
			return nil
		}

		executed, err := eng.Provision(context.Background())
		if len(executed) > 0 {
			PrintSuccess("Ran " + PrintCount(len(executed), "step", "steps"))
			PrintList(executed, 1)
		}
		if err != nil {
			return err
		}
		if len(executed) == 0 {
			PrintInfo("Nothing to do: all steps satisfied")
		}
		return nil
	},
}

func init() {
	provisionCmd.Flags().BoolVar(&provisionDryRun, "dry-run", false, "List pending steps without executing them")
}
