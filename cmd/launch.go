package cmd

import (
	"fmt"
	"os"

	serr "sandboxctl/errors"
	"sandboxctl/runtime"
)

// stage1Args/stage2Args are the hidden-subcommand argv the orchestrator
// re-execs into; the policy itself travels through the environment, not
// argv, so these never change across policies.
var (
	stage1Args = []string{"__stage1"}
)

// launch runs hooks through the parent side of the orchestrator and
// terminates the process with the exit code the contract demands: the
// inner command's own code on success, 1 for a usage or setup error, 2
// when the working directory itself is unusable. cleanup, if non-nil, is
// called before exit in every path, since os.Exit skips deferred calls.
func launch(name string, hooks runtime.Hooks, cleanup func()) {
	code, err := runtime.RunParent(hooks, exePath(), stage1Args)
	if cleanup != nil {
		cleanup()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "sandboxctl %s: %v\n", name, err)
		if serr.Is(err, serr.ErrUnusableCWD) {
			os.Exit(2)
		}
		os.Exit(1)
	}
	os.Exit(code)
}
