package cli

import (
	"github.com/spf13/cobra"
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Consolidate model directories into the shared tree",
	Long: `Move every configured private model directory into its shared backing
directory and replace it with a symlink. Existing shared entries are never
overwritten; already-linked directories are left alone.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}

		linked, err := eng.Link()
		if len(linked) > 0 {
			PrintSuccess("Relinked " + PrintCount(len(linked), "directory", "directories"))
			PrintList(linked, 1)
		}
		if err != nil {
			return err
		}
		if len(linked) == 0 {
			PrintInfo("Nothing to do: all mounts already linked")
		}
		return nil
	},
}
