package cmd

import (
	"github.com/spf13/cobra"

	"sandboxctl/policy"
)

var nonetCmd = &cobra.Command{
	Use:   "nonet <cmd> [args...]",
	Short: "Run a command with only its network namespace isolated",
	Long: `nonet unshares CLONE_NEWNET, brings the loopback interface up inside
the fresh namespace, then execs the given command. The command also runs
as PID 1 of a new PID namespace, as under every sandboxctl policy; no other
namespace or filesystem change is made.`,
	Args:               cobra.MinimumNArgs(1),
	DisableFlagParsing: true,
	RunE:               runNonet,
}

func init() {
	rootCmd.AddCommand(nonetCmd)
}

func runNonet(cmd *cobra.Command, args []string) error {
	hooks := policy.NewNoNet(args)
	launch("nonet", hooks, nil)
	return nil // unreachable: launch always calls os.Exit
}
