package runtime

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"sandboxctl/cap"
	serr "sandboxctl/errors"
	"sandboxctl/logging"
)

// StageFDEnvVar names the environment variable carrying the descriptor
// number of the inherited handshake socketpair end, so the stage1 process
// reads its fd from a documented name rather than assuming ExtraFiles
// placement. RunParent always places it at fd 3 (stdin/stdout/stderr
// occupy 0-2), but publishing the number explicitly keeps the two ends of
// the contract (writer here, reader in the stage1 entry point) from
// silently drifting apart.
const StageFDEnvVar = "SANDBOXCTL_STAGE_FD"

// StageFDFromEnv reads StageFDEnvVar, defaulting to 3 (the first
// descriptor after stdin/stdout/stderr) when unset or malformed.
func StageFDFromEnv() uintptr {
	v := os.Getenv(StageFDEnvVar)
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 3
	}
	return uintptr(n)
}

// dropToReal drops the calling process's effective UID/GID to its real ones
// and clears all three capability masks, so a surviving supervisor process
// cannot be misused for privilege escalation.
func dropToReal() error {
	if err := unix.Setegid(os.Getgid()); err != nil {
		return serr.Wrap(err, serr.ErrOS, "setegid")
	}
	if err := unix.Seteuid(os.Getuid()); err != nil {
		return serr.Wrap(err, serr.ErrOS, "seteuid")
	}
	c, err := cap.Current()
	if err != nil {
		return err
	}
	if err := c.Clear().Update(); err != nil {
		return err
	}
	return nil
}

// RunParent is the top-level entry point, invoked by the original process.
// It runs hooks.AtStart, spawns the stage1 process passing one end of a
// handshake socketpair, applies the ID map once stage1 signals it has
// unshared, and parks on stage1 until it exits.
//
// exe is the re-exec target (the path of this binary); stage1Args are the arguments that
// make the re-exec land in the hidden stage1 subcommand (the policy
// configuration travels via the process environment, not argv).
func RunParent(hooks Hooks, exe string, stage1Args []string) (int, error) {
	if err := hooks.AtStart(); err != nil {
		return 1, err
	}

	parentEnd, childEnd, err := NewHandshakePair()
	if err != nil {
		return 1, err
	}
	defer parentEnd.Close()

	cmd := exec.Command(exe, stage1Args...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	cmd.ExtraFiles = []*os.File{childEnd.File()}
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%d", StageFDEnvVar, 3))

	if err := cmd.Start(); err != nil {
		return 1, serr.Wrap(err, serr.ErrOS, "start stage1")
	}
	childEnd.Close()

	log := logging.WithPID(logging.Default(), cmd.Process.Pid)

	waitErr := parentEnd.Wait()
	if waitErr != nil {
		if errors.Is(waitErr, serr.ErrHandshakeFailed) {
			log.Warn("stage1 handshake failed or closed early; skipping id map")
		} else {
			return 1, waitErr
		}
	} else {
		if err := hooks.SetIDMap(cmd.Process.Pid); err != nil {
			parentEnd.SignalFail()
			proc := NewProc(cmd.Process.Pid)
			proc.Kill()
			proc.Park()
			return 1, err
		}
		if err := parentEnd.SignalOK(); err != nil {
			return 1, err
		}
	}

	if err := dropToReal(); err != nil {
		log.Warn("failed to drop parent privileges before park", "error", err)
	}

	proc := NewProc(cmd.Process.Pid)
	return proc.Park(), nil
}

// RunStage1 runs in the re-exec'd stage1 process: it calls hooks.Unshare,
// signals the parent, waits for the ID map to land, then forks stage2 into
// a fresh PID namespace and parks on it.
func RunStage1(hooks Hooks, handshakeFD uintptr, exe string, stage2Args []string) int {
	hs := HandshakeFromFD(handshakeFD)
	defer hs.Close()

	if err := hooks.Unshare(); err != nil {
		hs.SignalFail()
		if errors.Is(err, unix.EPERM) {
			logging.Default().Error("unshare denied; check kernel.unprivileged_userns_clone")
		}
		logging.Default().Error("stage1 unshare failed", "error", err)
		return 1
	}
	if err := hs.SignalOK(); err != nil {
		logging.Default().Error("stage1 handshake signal failed", "error", err)
		return 1
	}
	if err := hs.Wait(); err != nil {
		logging.Default().Error("stage1 did not receive id map ack; aborting", "error", err)
		return 1
	}

	cmd := exec.Command(exe, stage2Args...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	cmd.Env = os.Environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{Cloneflags: unix.CLONE_NEWPID}

	if err := cmd.Start(); err != nil {
		logging.Default().Error("stage1 failed to fork stage2", "error", err)
		return 1
	}

	if err := dropToReal(); err != nil {
		logging.Default().Warn("failed to drop stage1 privileges before park", "error", err)
	}

	proc := NewProc(cmd.Process.Pid)
	return proc.Park()
}

// RunStage2 runs in the re-exec'd stage2 process, PID 1 of the new PID
// namespace: it drops to real ids (clearing the effective set as a kernel
// side effect of dropping euid), activates permitted capabilities, runs
// hooks.SetupPriv, clears all masks, then runs hooks.Setup for the final
// exec. If Setup returns at all, something failed to exec and stage2 exits
// non-zero.
func RunStage2(hooks Hooks) int {
	if err := unix.Setegid(os.Getgid()); err != nil {
		logging.Default().Error("stage2 setegid failed", "error", err)
		return 1
	}
	if err := unix.Seteuid(os.Getuid()); err != nil {
		logging.Default().Error("stage2 seteuid failed", "error", err)
		return 1
	}

	c, err := cap.Current()
	if err != nil {
		logging.Default().Error("stage2 capability snapshot failed", "error", err)
		return 1
	}
	if err := c.Activate().Update(); err != nil {
		logging.Default().Error("stage2 capability activation failed", "error", err)
		return 1
	}

	if err := hooks.SetupPriv(); err != nil {
		logging.Default().Error("stage2 setup_priv failed", "error", err)
		return 1
	}

	if err := c.Clear().Update(); err != nil {
		logging.Default().Error("stage2 capability clear failed", "error", err)
		return 1
	}

	if err := hooks.Setup(); err != nil {
		logging.Default().Error("stage2 setup failed", "error", err)
		return 1
	}

	logging.Default().Error("stage2 setup returned without exec'ing")
	return 1
}
