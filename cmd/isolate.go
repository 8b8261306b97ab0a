package cmd

import (
	"github.com/spf13/cobra"

	"sandboxctl/policy"
)

var (
	isolateNet   bool
	isolateChdir string
	isolateNoPWD bool
	isolateRW    []string
	isolateRO    []string
	isolateTmp   []string
)

var isolateCmd = &cobra.Command{
	Use:   "isolate [flags] <cmd> [args...]",
	Short: "Run a command in a restricted mount, PID, and network sandbox",
	Long: `isolate builds a fresh mount, PID, cgroup, and IPC namespace (plus a
user namespace with a 1:1 id map when run unprivileged), roots the command
in a staged directory, and execs it there. By default the working
directory is writable and the network is cut off; -W/-O/-T extend the
mount plan, -N keeps the network, -C overrides the landing directory.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIsolate,
}

func init() {
	rootCmd.AddCommand(isolateCmd)
	// Flags stop being parsed at the first positional argument, so
	// "isolate -T /tmp sh -c '...'" treats sh's own -c as an argument to
	// sh rather than isolate's --no-pwd flag.
	isolateCmd.Flags().SetInterspersed(false)

	isolateCmd.Flags().BoolVarP(&isolateNet, "net", "N", false, "keep the caller's network namespace instead of isolating it")
	isolateCmd.Flags().StringVarP(&isolateChdir, "chdir", "C", "", "directory to land in inside the sandbox (default: the caller's CWD)")
	isolateCmd.Flags().BoolVarP(&isolateNoPWD, "no-pwd", "c", false, "do not add the caller's working directory to the mount plan")
	isolateCmd.Flags().StringArrayVarP(&isolateRW, "rw", "W", nil, "bind-mount a directory writable (repeatable)")
	isolateCmd.Flags().StringArrayVarP(&isolateRO, "ro", "O", nil, "bind-mount a directory read-only (repeatable)")
	isolateCmd.Flags().StringArrayVarP(&isolateTmp, "tmp", "T", nil, "mount a fresh tmpfs at a directory (repeatable)")
}

func runIsolate(cmd *cobra.Command, args []string) error {
	hooks := policy.NewIsolate(args, isolateNet, isolateChdir, isolateNoPWD, isolateRW, isolateRO, isolateTmp)
	launch("isolate", hooks, hooks.Cleanup)
	return nil
}
