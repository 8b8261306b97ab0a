package cmd

import (
	"github.com/spf13/cobra"

	"sandboxctl/policy"
)

var hidehomeCmd = &cobra.Command{
	Use:   "hidehome <cmd> [args...]",
	Short: "Run a command with $HOME's parent tree hidden behind a fresh tmpfs",
	Long: `hidehome reads $HOME from the environment, replaces the tree
containing it with an ephemeral tmpfs, and re-binds only the caller's
working directory back inside. Siblings of $HOME become invisible to the
launched command. CWD under /tmp is rejected, since /tmp is itself about
to be replaced.`,
	Args:               cobra.MinimumNArgs(1),
	DisableFlagParsing: true,
	RunE:               runHideHome,
}

func init() {
	rootCmd.AddCommand(hidehomeCmd)
}

func runHideHome(cmd *cobra.Command, args []string) error {
	hooks := policy.NewHideHome(args)
	launch("hidehome", hooks, nil)
	return nil
}
