package policy

import (
	"os"
	"os/exec"
	"syscall"

	serr "sandboxctl/errors"
	"sandboxctl/logging"
	"sandboxctl/netiface"
	"sandboxctl/runtime"

	"golang.org/x/sys/unix"
)

// NoNet runs cmd with the network namespace isolated; the mount and user
// namespaces are left alone. Its Unshare requests CLONE_NEWNET only, though
// the orchestrator still starts the final stage in a new PID namespace. Grounded on the single-purpose nonet
// hook bundle: unshare CLONE_NEWNET, bring up loopback, exec.
type NoNet struct {
	runtime.BaseHooks
	Cmd []string
}

var _ runtime.Hooks = (*NoNet)(nil)

// NewNoNet builds the hook bundle for the given command and arguments.
func NewNoNet(cmd []string) *NoNet {
	return &NoNet{Cmd: cmd}
}

// Unshare isolates the network namespace only.
func (n *NoNet) Unshare() error {
	logging.Default().Debug("unshare", "flags", "CLONE_NEWNET")
	if err := unix.Unshare(unix.CLONE_NEWNET); err != nil {
		return serr.Wrap(err, serr.ErrOS, "unshare CLONE_NEWNET")
	}
	return nil
}

// SetupPriv brings up the loopback interface inside the new network
// namespace, since nothing else exists there yet.
func (n *NoNet) SetupPriv() error {
	return netiface.ConfigureLo()
}

// Setup execs the final command, replacing this process.
func (n *NoNet) Setup() error {
	if len(n.Cmd) == 0 {
		return serr.New(serr.ErrInvalidConfig, "nonet setup", "no command given")
	}
	logging.Default().Debug("exec", "cmd", n.Cmd)

	path, err := exec.LookPath(n.Cmd[0])
	if err != nil {
		return serr.Wrap(err, serr.ErrOS, "lookpath "+n.Cmd[0])
	}
	if err := syscall.Exec(path, n.Cmd, os.Environ()); err != nil {
		return serr.Wrap(err, serr.ErrOS, "exec "+n.Cmd[0])
	}
	return nil
}

// ToConfig renders n as a serializable Config.
func (n *NoNet) ToConfig() Config {
	return Config{Kind: "nonet", Cmd: n.Cmd}
}

// NoNetFromConfig reconstructs a NoNet from a decoded Config.
func NoNetFromConfig(cfg Config) *NoNet {
	return NewNoNet(cfg.Cmd)
}
