package policy

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	serr "sandboxctl/errors"
	"sandboxctl/idmap"
	"sandboxctl/logging"
	"sandboxctl/runtime"

	"golang.org/x/sys/unix"
)

const noopt = syscall.MS_NODEV | syscall.MS_NOEXEC | syscall.MS_NOSUID | syscall.MS_RELATIME

// HideHome replaces the tree containing $HOME with an ephemeral tmpfs,
// re-binding only the caller's working directory back into it, so
// siblings of $HOME (and, unless CWD==$HOME, most of $HOME itself) become
// invisible to the launched command.
type HideHome struct {
	runtime.BaseHooks
	Cmd []string

	home string // canonical $HOME
	cwd  string // canonical CWD
	root string // parent of home to hide, or home itself
}

var _ runtime.Hooks = (*HideHome)(nil)

// NewHideHome builds the hook bundle; AtStart resolves $HOME and CWD and
// fails fast, before anything is unshared.
func NewHideHome(cmd []string) *HideHome {
	return &HideHome{Cmd: cmd}
}

// AtStart resolves and validates $HOME and the working directory. CWD
// under /tmp is rejected outright: /tmp itself is about to be hidden
// behind a fresh tmpfs and nothing under it can be meaningfully preserved.
func (h *HideHome) AtStart() error {
	rawHome := os.Getenv("HOME")
	if rawHome == "" {
		return serr.New(serr.ErrInvalidConfig, "hidehome", "$HOME is not set")
	}
	home, err := filepath.EvalSymlinks(rawHome)
	if err != nil {
		return serr.Wrap(err, serr.ErrFile, "resolve $HOME")
	}
	if !filepath.IsAbs(home) {
		return serr.New(serr.ErrInvalidConfig, "hidehome", "$HOME must be an absolute path")
	}

	// A working directory the kernel itself can no longer resolve (e.g.
	// deleted out from under the process) is the "unusable CWD" case
	// distinct from a deliberate policy rejection: it gets its own exit
	// code rather than the generic setup-error one.
	cwd, err := os.Getwd()
	if err != nil {
		return serr.WrapWithDetail(err, serr.ErrCWD, "getwd", "working directory is unusable")
	}
	cwd, err = filepath.EvalSymlinks(cwd)
	if err != nil {
		return serr.WrapWithDetail(err, serr.ErrCWD, "resolve cwd", "working directory is unusable")
	}

	if isUnder(cwd, "/tmp") {
		return serr.New(serr.ErrInvalidConfig, "hidehome", "cannot run under /tmp")
	}

	root := filepath.Dir(home)
	if root == "/" {
		root = home
	}

	h.home, h.cwd, h.root = home, cwd, root

	// Republish so stage1/stage2 — separate OS processes that only
	// inherit the environment, not this struct's memory — see the same
	// resolution rather than re-deriving it (and re-validating CWD
	// against a $HOME that may differ inside a later namespace).
	return Publish(h.ToConfig())
}

// Unshare isolates the mount, PID, user, and cgroup namespaces.
func (h *HideHome) Unshare() error {
	logging.Default().Debug("unshare", "flags", "NEWNS|NEWPID|NEWUSER|NEWCGROUP")
	flags := unix.CLONE_NEWNS | unix.CLONE_NEWPID | unix.CLONE_NEWUSER | unix.CLONE_NEWCGROUP
	if err := unix.Unshare(flags); err != nil {
		return serr.Wrap(err, serr.ErrOS, "unshare")
	}
	return nil
}

// SetIDMap installs an identity mapping covering the full uid/gid range,
// matching the original's "map everything 1:1" choice for this policy.
func (h *HideHome) SetIDMap(pid int) error {
	if err := idmap.NewUID(pid).Add(0, 0, 0xffffffff).Write(); err != nil {
		return err
	}
	return idmap.NewGID(pid).Add(0, 0, 0xffffffff).Write()
}

// SetupPriv builds the replacement home tree: a fresh tmpfs takes the
// place of h.root, with only the caller's CWD bound back inside it. If
// CWD lies outside h.root entirely, a stub home is created instead of
// failing, since nothing under h.root needs hiding from a CWD that was
// never inside it.
func (h *HideHome) SetupPriv() error {
	if err := syscall.Mount("", "/", "", syscall.MS_REC|syscall.MS_SLAVE, ""); err != nil {
		return serr.Wrap(err, serr.ErrOS, "make / slave")
	}

	if err := os.MkdirAll("/proc", 0o755); err != nil {
		return serr.File("mkdir", "/proc", err)
	}
	if err := syscall.Mount("none", "/proc", "proc", noopt, ""); err != nil {
		return serr.Wrap(err, serr.ErrOS, "mount /proc")
	}

	if err := os.MkdirAll("/sys/fs/cgroup/unified", 0o755); err != nil {
		return serr.File("mkdir", "/sys/fs/cgroup/unified", err)
	}
	if err := syscall.Mount("none", "/sys/fs/cgroup", "tmpfs", noopt, ""); err != nil {
		return serr.Wrap(err, serr.ErrOS, "mount cgroup tmpfs")
	}
	if err := syscall.Mount("none", "/sys/fs/cgroup/unified", "cgroup2", noopt, ""); err != nil {
		logging.Default().Warn("cgroup2 mount failed, continuing", "err", err)
	}

	tmp := "/tmp"
	if err := syscall.Mount("none", tmp, "tmpfs", noopt, ""); err != nil {
		return serr.Wrap(err, serr.ErrOS, "mount replacement tmpfs")
	}

	underRoot := isUnder(h.cwd, h.root) || h.cwd == h.root
	if underRoot {
		rel, err := filepath.Rel(h.root, h.cwd)
		if err != nil {
			return serr.Wrap(err, serr.ErrInternal, "relativize cwd")
		}
		twd := filepath.Join(tmp, rel)
		if err := os.MkdirAll(twd, 0o755); err != nil {
			return serr.File("mkdir", twd, err)
		}
		if err := syscall.Mount(h.cwd, twd, "", syscall.MS_BIND, ""); err != nil {
			return serr.Wrap(err, serr.ErrOS, fmt.Sprintf("bind %s onto %s", h.cwd, twd))
		}
	} else {
		logging.Default().Warn("cwd is outside $HOME's root, building a stub home", "cwd", h.cwd, "root", h.root)
		rel, err := filepath.Rel(h.root, h.home)
		if err != nil {
			return serr.Wrap(err, serr.ErrInternal, "relativize home")
		}
		stub := filepath.Join(tmp, rel)
		if err := os.MkdirAll(stub, 0o755); err != nil {
			return serr.File("mkdir", stub, err)
		}
	}

	if err := syscall.Mount(tmp, h.root, "", syscall.MS_MOVE, ""); err != nil {
		return serr.Wrap(err, serr.ErrOS, fmt.Sprintf("move tmpfs onto %s", h.root))
	}

	if err := syscall.Mount("none", "/tmp", "tmpfs", noopt, ""); err != nil {
		return serr.Wrap(err, serr.ErrOS, "mount fresh /tmp")
	}
	if err := os.MkdirAll("/var/tmp", 0o755); err != nil {
		return serr.File("mkdir", "/var/tmp", err)
	}
	if err := syscall.Mount("none", "/var/tmp", "tmpfs", noopt, ""); err != nil {
		return serr.Wrap(err, serr.ErrOS, "mount /var/tmp")
	}

	if underRoot {
		if err := os.Chdir(h.cwd); err != nil {
			return serr.Wrap(err, serr.ErrOS, "chdir into replacement cwd")
		}
	} else if err := os.Chdir("/"); err != nil {
		return serr.Wrap(err, serr.ErrOS, "chdir /")
	}

	return nil
}

// Setup execs the final command, replacing this process.
func (h *HideHome) Setup() error {
	if len(h.Cmd) == 0 {
		return serr.New(serr.ErrInvalidConfig, "hidehome setup", "no command given")
	}
	logging.Default().Debug("exec", "cmd", h.Cmd)

	path, err := exec.LookPath(h.Cmd[0])
	if err != nil {
		return serr.Wrap(err, serr.ErrOS, "lookpath "+h.Cmd[0])
	}
	if err := syscall.Exec(path, h.Cmd, os.Environ()); err != nil {
		return serr.Wrap(err, serr.ErrOS, "exec "+h.Cmd[0])
	}
	return nil
}

// ToConfig renders h as a serializable Config, including whatever AtStart
// has resolved so far.
func (h *HideHome) ToConfig() Config {
	return Config{Kind: "hidehome", Cmd: h.Cmd, Home: h.home, Cwd: h.cwd, Root: h.root}
}

// HideHomeFromConfig reconstructs a HideHome from a decoded Config. When
// cfg carries values AtStart would have resolved (Home, Cwd, Root), they
// are restored directly rather than recomputed, since a stage1/stage2
// process reconstructing this struct is not the process AtStart ran in.
func HideHomeFromConfig(cfg Config) *HideHome {
	h := NewHideHome(cfg.Cmd)
	h.home, h.cwd, h.root = cfg.Home, cfg.Cwd, cfg.Root
	return h
}

func isUnder(path, dir string) bool {
	path = filepath.Clean(path)
	dir = filepath.Clean(dir)
	if path == dir {
		return false
	}
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}
