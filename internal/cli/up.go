package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Provision the pod if needed, then launch and supervise services",
	Long: `Run the full boot flow: when every application's artifacts already exist
the provisioning and linking phases are skipped entirely; otherwise pending
install steps run first and the model directories are relinked into the
shared tree. The command then launches the configured services and blocks
until they exit.

SIGINT or SIGTERM is forwarded to every running service; podup exits once
all of them have drained.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		result, err := eng.Up(ctx)
		if result != nil {
			if result.FastRestart {
				PrintInfo("Fast restart: provisioning skipped")
			} else {
				if len(result.Provisioned) > 0 {
					PrintSuccess("Ran " + PrintCount(len(result.Provisioned), "provisioning step", "provisioning steps"))
					PrintList(result.Provisioned, 1)
				}
				if len(result.Linked) > 0 {
					PrintSuccess("Relinked " + PrintCount(len(result.Linked), "directory", "directories"))
				}
			}
		}
		if err != nil {
			return err
		}

		PrintSuccess("All services exited")
		return nil
	},
}
