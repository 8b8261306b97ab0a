// sandboxctl launches a command inside a freshly constructed set of Linux
// kernel namespaces, reshapes its filesystem view according to a chosen
// isolation policy, drops privileges, and execs the command so its whole
// process subtree inherits the sandbox.
//
// Commands:
//
//	nonet    - isolate only the network namespace
//	hidehome - hide $HOME's parent tree behind a fresh tmpfs
//	isolate  - general-purpose mount/PID/network sandbox
//	version  - print version information
package main

import (
	"fmt"
	"os"

	"sandboxctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
