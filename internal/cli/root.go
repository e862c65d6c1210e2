package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	jsonOutput bool
)

// rootCmd is the root command for podup.
var rootCmd = &cobra.Command{
	Use:     "podup",
	Version: "dev",
	Short:   "GPU pod provisioner and service supervisor",
	Long: `podup boots a GPU cloud pod: it runs the install steps the pod still
needs, consolidates every application's model directories into one shared
tree, then launches and supervises the managed services until they exit or
a termination signal arrives.

Re-running podup is always safe: satisfied install steps are skipped and an
already-provisioned pod goes straight to service launch.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

func SetVersion(v string) {
	if v == "" {
		return
	}
	rootCmd.Version = v
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to pod config file (default: podup.toml under the data root)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddGroup(&cobra.Group{
		ID:    "pod-lifecycle",
		Title: "Pod Lifecycle:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "cli-tooling",
		Title: "CLI & Tooling:",
	})

	versionCmd := &cobra.Command{
		Use:     "version",
		Short:   "Print the podup CLI version",
		Args:    cobra.NoArgs,
		GroupID: "cli-tooling",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(os.Stdout, rootCmd.Version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	completionCmd := &cobra.Command{
		Use:     "completion",
		Short:   "Generate the autocompletion script for the specified shell",
		GroupID: "cli-tooling",
	}
	completionCmd.AddCommand(&cobra.Command{
		Use:                   "bash",
		Short:                 "Generate the autocompletion script for bash",
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenBashCompletion(os.Stdout)
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:                   "zsh",
		Short:                 "Generate the autocompletion script for zsh",
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenZshCompletion(os.Stdout)
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:                   "fish",
		Short:                 "Generate the autocompletion script for fish",
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenFishCompletion(os.Stdout, true)
		},
	})
	rootCmd.AddCommand(completionCmd)

	upCmd.GroupID = "pod-lifecycle"
	provisionCmd.GroupID = "pod-lifecycle"
	linkCmd.GroupID = "pod-lifecycle"
	statusCmd.GroupID = "pod-lifecycle"
	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(statusCmd)
}

// Execute executes the root command. Errors are reported here, so the
// caller only decides the exit code.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		PrintError(err.Error())
	}
	return err
}
