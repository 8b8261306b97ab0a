package policy

import (
	"os"
	"os/exec"
	"syscall"

	"sandboxctl/cap"
	serr "sandboxctl/errors"
	"sandboxctl/idmap"
	"sandboxctl/logging"
	"sandboxctl/mount"
	"sandboxctl/netiface"
	"sandboxctl/runtime"
	"sandboxctl/tempdir"

	"golang.org/x/sys/unix"
)

// Isolate is the general-purpose sandbox: mount, PID, cgroup, IPC, and
// network namespaces, plus (when the caller lacks CAP_SYS_ADMIN) a user
// namespace with a 1:1 identity mapping. The caller's working directory
// is writable by default; -W/-O/-T entries extend the plan.
type Isolate struct {
	runtime.BaseHooks
	Cmd    []string
	Net    bool
	Chdir  string
	NoPWD  bool
	RW, RO []string
	Tmp    []string

	isuser bool
	cwd    string
	tdir   *tempdir.TempDir
}

var _ runtime.Hooks = (*Isolate)(nil)

// NewIsolate builds the hook bundle from parsed CLI flags.
func NewIsolate(cmd []string, net bool, chdir string, noPWD bool, rw, ro, tmp []string) *Isolate {
	return &Isolate{
		Cmd: cmd, Net: net, Chdir: chdir, NoPWD: noPWD,
		RW: rw, RO: ro, Tmp: tmp,
	}
}

// AtStart records the caller's privilege level and working directory,
// stages a fresh temp directory for the new root, and republishes the
// policy environment variable with these resolved values so stage1 and
// stage2 — separate OS processes that only inherit the environment, not
// this struct's memory — see the same decisions rather than recomputing
// them independently.
func (is *Isolate) AtStart() error {
	current, err := cap.Current()
	if err != nil {
		return err
	}
	is.isuser = !current.IsEffective(cap.SYS_ADMIN)

	cwd, err := os.Getwd()
	if err != nil {
		return serr.WrapWithDetail(err, serr.ErrCWD, "getwd", "working directory is unusable")
	}
	is.cwd = cwd

	td, err := tempdir.New()
	if err != nil {
		return err
	}
	if err := td.Chown(os.Getuid(), os.Getgid()); err != nil {
		return err
	}
	is.tdir = td

	return Publish(is.ToConfig())
}

// Cleanup removes the staging temp directory. The original process (the
// one whose AtStart created it) owns this directory for its full
// lifetime and must call Cleanup once the sandboxed command has exited;
// stage1/stage2 only borrow its path and must never remove it themselves.
func (is *Isolate) Cleanup() {
	if is.tdir != nil {
		is.tdir.Close()
	}
}

// Unshare isolates mount, PID, cgroup, and IPC namespaces, plus the network
// namespace unless Net is set and the user namespace when isuser is set.
func (is *Isolate) Unshare() error {
	flags := unix.CLONE_NEWNS | unix.CLONE_NEWPID | unix.CLONE_NEWCGROUP | unix.CLONE_NEWIPC
	if !is.Net {
		flags |= unix.CLONE_NEWNET
	}
	if is.isuser {
		flags |= unix.CLONE_NEWUSER
	}
	logging.Default().Debug("unshare", "flags", flags, "isuser", is.isuser)
	if err := unix.Unshare(flags); err != nil {
		return serr.Wrap(err, serr.ErrOS, "unshare")
	}
	return nil
}

// SetIDMap installs a 1:1 identity mapping for the calling uid/gid, but
// only when a user namespace was actually created.
func (is *Isolate) SetIDMap(pid int) error {
	if !is.isuser {
		return nil
	}
	uid, gid := os.Getuid(), os.Getgid()
	logging.Default().Debug("setup 1-1 uid/gid mapping", "uid", uid, "gid", gid)
	if err := idmap.NewUID(pid).Add(uint32(uid), uint32(uid), 1).Write(); err != nil {
		return err
	}
	return idmap.NewGID(pid).Add(uint32(gid), uint32(gid), 1).Write()
}

// SetupPriv configures loopback, then constructs and executes the mount
// plan: the default CWD-writable entry (unless -c was given) plus every
// -W/-O/-T flag, deduplicated last-wins, rooted under the staged temp
// directory and finished with pivot_root.
func (is *Isolate) SetupPriv() error {
	if !is.Net {
		if err := netiface.ConfigureLo(); err != nil {
			return err
		}
	}

	plan := mount.NewPlan()
	if !is.NoPWD {
		plan.Add(mount.Writable, is.cwd)
	}
	for _, d := range is.RW {
		plan.Add(mount.Writable, d)
	}
	for _, d := range is.RO {
		plan.Add(mount.ReadOnly, d)
	}
	for _, d := range is.Tmp {
		plan.Add(mount.Tmp, d)
	}
	plan.Dedup()

	b := mount.NewBuilder(is.tdir.Path(), plan)
	b.Unprivileged = is.isuser
	if err := b.Build(); err != nil {
		return err
	}

	target := is.cwd
	if is.Chdir != "" {
		target = is.Chdir
	}
	if err := os.Chdir(target); err != nil {
		return serr.Wrap(err, serr.ErrOS, "chdir "+target)
	}
	return nil
}

// Setup execs the final command with VIRTUAL_ENV=isolated set, replacing
// this process.
func (is *Isolate) Setup() error {
	if len(is.Cmd) == 0 {
		return serr.New(serr.ErrInvalidConfig, "isolate setup", "no command given")
	}
	logging.Default().Debug("exec", "cmd", is.Cmd)

	env := append(os.Environ(), "VIRTUAL_ENV=isolated")
	path, err := exec.LookPath(is.Cmd[0])
	if err != nil {
		return serr.Wrap(err, serr.ErrOS, "lookpath "+is.Cmd[0])
	}
	if err := syscall.Exec(path, is.Cmd, env); err != nil {
		return serr.Wrap(err, serr.ErrOS, "exec "+is.Cmd[0])
	}
	return nil
}

// ToConfig renders is as a serializable Config, including whatever AtStart
// has resolved so far.
func (is *Isolate) ToConfig() Config {
	cfg := Config{
		Kind: "isolate", Cmd: is.Cmd, Net: is.Net, Chdir: is.Chdir,
		NoPWD: is.NoPWD, RW: is.RW, RO: is.RO, Tmp: is.Tmp,
		IsUser: is.isuser, Cwd: is.cwd,
	}
	if is.tdir != nil {
		cfg.TempPath = is.tdir.Path()
	}
	return cfg
}

// IsolateFromConfig reconstructs an Isolate from a decoded Config. When
// cfg carries values AtStart would have resolved (TempPath, Cwd, IsUser),
// they are restored directly rather than recomputed, since a stage1/stage2
// process reconstructing this struct is not the process AtStart ran in.
func IsolateFromConfig(cfg Config) *Isolate {
	is := NewIsolate(cfg.Cmd, cfg.Net, cfg.Chdir, cfg.NoPWD, cfg.RW, cfg.RO, cfg.Tmp)
	is.isuser = cfg.IsUser
	is.cwd = cfg.Cwd
	if cfg.TempPath != "" {
		is.tdir = tempdir.FromPath(cfg.TempPath)
	}
	return is
}
