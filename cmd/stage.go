package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sandboxctl/policy"
	"sandboxctl/runtime"
)

// stage2Args is the hidden-subcommand argv stage1 re-execs into.
var stage2Args = []string{"__stage2"}

// stage1Cmd and stage2Cmd are never invoked by a user directly; the
// orchestrator re-execs this same binary into them, carrying the policy
// through SANDBOXCTL_POLICY rather than argv.
var stage1Cmd = &cobra.Command{
	Use:    "__stage1",
	Hidden: true,
	Args:   cobra.NoArgs,
	Run:    runStage1,
}

var stage2Cmd = &cobra.Command{
	Use:    "__stage2",
	Hidden: true,
	Args:   cobra.NoArgs,
	Run:    runStage2,
}

func init() {
	rootCmd.AddCommand(stage1Cmd, stage2Cmd)
}

func stageHooks() runtime.Hooks {
	cfg, err := policy.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sandboxctl: %v\n", err)
		os.Exit(1)
	}
	hooks, err := policy.HooksFromConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sandboxctl: %v\n", err)
		os.Exit(1)
	}
	return hooks
}

func runStage1(cmd *cobra.Command, args []string) {
	os.Exit(runtime.RunStage1(stageHooks(), runtime.StageFDFromEnv(), exePath(), stage2Args))
}

func runStage2(cmd *cobra.Command, args []string) {
	os.Exit(runtime.RunStage2(stageHooks()))
}
