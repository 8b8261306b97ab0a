package mount

import (
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	serr "sandboxctl/errors"
	"sandboxctl/logging"
)

// Propagation selects Phase A's root propagation mode.
type Propagation int

const (
	// PropagationPrivate is the default: MS_REC|MS_PRIVATE.
	PropagationPrivate Propagation = iota
	// PropagationSlave is MS_REC|MS_SLAVE. policy.HideHome applies the same
	// propagation directly in its own SetupPriv rather than through a Builder.
	PropagationSlave
)

// staleMountpoints are lazily unmounted from the staged root in Phase B so
// they don't leak the outer namespace's view into the sandbox.
var staleMountpoints = []string{"proc", "dev/shm", "tmp", "var/tmp"}

// hardenFSTypes are unmounted outright in Phase C when running unprivileged;
// they expose host state a user namespace has no business seeing.
var hardenFSTypes = map[string]bool{"cgroup": true, "cgroup2": true, "debugfs": true}

// devOrMemFSTypes are the filesystems Phase C tries to force read-only.
var devOrMemFSTypes = map[string]bool{"tmpfs": true, "ramfs": true}

// Builder stages a replacement mount tree in a temporary directory and
// pivots into it. Each Builder is single-use: Build runs Phases A through E
// once and returns, leaving the calling process rooted at the new tree.
type Builder struct {
	// TempDir is the staging directory; <TempDir>/root becomes the new root.
	TempDir string
	// Propagation selects Phase A's behavior.
	Propagation Propagation
	// Unprivileged marks that the caller lacks a real root mapping, which
	// changes Phase C's tolerance for EACCES/EPERM on remounts and forces
	// teardown of cgroup/debugfs mounts regardless of namespace.
	Unprivileged bool
	// Plan is the user-supplied mount plan executed in Phase D.
	Plan *Plan

	log *slog.Logger
}

// NewBuilder constructs a Builder staging its new root under tempDir.
func NewBuilder(tempDir string, plan *Plan) *Builder {
	return &Builder{
		TempDir: tempDir,
		Plan:    plan,
		log:     logging.Default(),
	}
}

// Build runs Phases A through E in order.
func (b *Builder) Build() error {
	if err := b.phaseA(); err != nil {
		return err
	}
	root, err := b.phaseB()
	if err != nil {
		return err
	}
	if err := b.phaseC(root); err != nil {
		return err
	}
	if err := b.phaseD(root); err != nil {
		return err
	}
	return b.phaseE(root)
}

// phaseA makes the mount tree private (or slave) and mounts a fresh proc.
func (b *Builder) phaseA() error {
	flag := uintptr(syscall.MS_REC | syscall.MS_PRIVATE)
	if b.Propagation == PropagationSlave {
		flag = syscall.MS_REC | syscall.MS_SLAVE
	}
	if err := syscall.Mount("", "/", "", flag, ""); err != nil {
		return serr.Wrap(err, serr.ErrOS, "mount private root")
	}
	if err := os.MkdirAll("/proc", 0o755); err != nil {
		return serr.File("mkdir", "/proc", err)
	}
	if err := syscall.Mount("proc", "/proc", "proc", 0, ""); err != nil {
		return serr.Wrap(err, serr.ErrOS, "mount /proc")
	}
	return nil
}

// phaseB stages a new root under TempDir/root via a recursive bind mount of
// /, then eagerly lazy-unmounts stale mountpoints that would otherwise leak
// the outer namespace into the staged tree.
func (b *Builder) phaseB() (string, error) {
	root := filepath.Join(b.TempDir, "root")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", serr.File("mkdir", root, err)
	}
	if err := syscall.Mount("/", root, "", syscall.MS_BIND|syscall.MS_REC, ""); err != nil {
		return "", serr.Wrap(err, serr.ErrOS, "rbind root")
	}

	for _, rel := range staleMountpoints {
		target := filepath.Join(root, rel)
		if _, err := os.Lstat(target); err != nil {
			continue
		}
		if err := syscall.Unmount(target, syscall.MNT_DETACH); err != nil {
			if err == syscall.EINVAL {
				continue
			}
			b.log.Warn("lazy-unmount stale mountpoint failed", "path", target, "error", err)
		}
	}
	return root, nil
}

// phaseC walks the staged tree's mounts, hardens or tears down anything that
// would leak host state, then installs fresh overlays for /proc, /tmp,
// /dev/shm, and /var/tmp.
func (b *Builder) phaseC(root string) error {
	mounts, err := Current()
	if err != nil {
		return err
	}

	for _, info := range mounts.All() {
		if !isUnder(info.MountPoint, root) {
			continue
		}
		if b.Unprivileged && hardenFSTypes[info.FSType] {
			if err := syscall.Unmount(info.MountPoint, syscall.MNT_DETACH); err != nil {
				b.log.Warn("lazy-unmount hardened fstype failed", "path", info.MountPoint, "fstype", info.FSType, "error", err)
			}
			continue
		}
		if info.HasOption(MS_RDONLY) {
			continue
		}
		if hasDevPrefix(info.Source) || devOrMemFSTypes[info.FSType] {
			flag := uintptr(syscall.MS_REMOUNT | MS_RDONLY | syscall.MS_BIND | info.Options)
			if err := syscall.Mount("", info.MountPoint, "", flag, ""); err != nil {
				if b.Unprivileged && (err == syscall.EACCES || err == syscall.EPERM) {
					continue
				}
				return serr.Wrap(err, serr.ErrOS, "remount readonly "+info.MountPoint)
			}
		}
	}

	type overlay struct {
		path  string
		fstyp string
		flag  uintptr
	}
	noExecFlags := uintptr(MS_NODEV | MS_NOSUID | MS_NOEXEC | MS_RELATIME)
	execFlags := uintptr(MS_NODEV | MS_NOSUID | MS_RELATIME)
	overlays := []overlay{
		{filepath.Join(root, "proc"), "proc", 0},
		{filepath.Join(root, "tmp"), "tmpfs", execFlags},
		{filepath.Join(root, "dev", "shm"), "tmpfs", noExecFlags},
		{filepath.Join(root, "var", "tmp"), "tmpfs", execFlags},
	}
	for _, ov := range overlays {
		if err := os.MkdirAll(ov.path, 0o755); err != nil {
			return serr.File("mkdir", ov.path, err)
		}
		src := ov.fstyp
		if err := syscall.Mount(src, ov.path, ov.fstyp, ov.flag, ""); err != nil {
			return serr.Wrap(err, serr.ErrOS, "mount overlay "+ov.path)
		}
	}
	return nil
}

// phaseD executes the user mount plan: ReadOnly/Writable in a first pass,
// Tmp in a second, so tmpfs overlays win over conflicting binds.
func (b *Builder) phaseD(root string) error {
	if b.Plan == nil {
		return nil
	}
	plan := b.Plan.Dedup()

	for _, item := range plan.ReadOnlyAndWritable() {
		dest := filepath.Join(root, item.Path)
		switch item.Tag {
		case ReadOnly:
			if err := b.bindReadOnly(item.Path, dest); err != nil {
				return err
			}
		case Writable:
			if err := b.bindWritable(root, item.Path, dest); err != nil {
				return err
			}
		}
	}

	for _, item := range plan.TmpItems() {
		dest := filepath.Join(root, item.Path)
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return serr.File("mkdir", dest, err)
		}
		if err := syscall.Mount("tmpfs", dest, "tmpfs", MS_NODEV|MS_NOSUID, ""); err != nil {
			return serr.Wrap(err, serr.ErrOS, "mount tmp "+dest)
		}
	}
	return nil
}

// bindReadOnly binds src over dest, then remounts read-only. The option
// lookup is re-performed against a fresh mountinfo because the bind itself
// creates a new mount entry. A dest that doesn't exist in the staged tree
// means the source doesn't exist on the host either (the staged tree is an
// rbind mirror of it), so this is skipped and logged rather than failed,
// matching bindWritable's tolerance for the same condition.
func (b *Builder) bindReadOnly(src, dest string) error {
	if _, err := os.Lstat(dest); err != nil {
		b.log.Warn("skipping read-only bind: destination does not exist", "path", src)
		return nil
	}

	if err := syscall.Mount(src, dest, "", syscall.MS_BIND, ""); err != nil {
		return serr.Wrap(err, serr.ErrOS, "bind "+src)
	}

	mounts, err := Current()
	if err != nil {
		return err
	}
	info, err := mounts.Lookup(dest)
	if err != nil {
		return err
	}

	flag := uintptr(syscall.MS_REMOUNT | MS_RDONLY | syscall.MS_BIND | info.Options)
	if err := syscall.Mount("", dest, "", flag, ""); err != nil {
		return serr.Wrap(err, serr.ErrOS, "remount readonly "+dest)
	}
	return nil
}

// bindWritable binds src in place at dest if it already exists in the
// staged tree; if it lies under the new root's /tmp it is cloned into
// existence first; otherwise the bind is skipped and logged.
func (b *Builder) bindWritable(root, src, dest string) error {
	if _, err := os.Lstat(dest); err == nil {
		return syscall.Mount(src, dest, "", syscall.MS_BIND, "")
	}

	if isUnder(dest, filepath.Join(root, "tmp")) {
		if err := cloneAncestors(src, root); err != nil {
			return err
		}
		return syscall.Mount(src, dest, "", syscall.MS_BIND, "")
	}

	b.log.Error("skipping writable bind: destination does not exist and source is not under a tmpfs region", "path", src)
	return nil
}

// cloneAncestors walks src from root to leaf, creating any path component
// missing under newRoot as a directory (or empty file, if the source is a
// file) and replicating mode/uid/gid from the source.
func cloneAncestors(src, newRoot string) error {
	clean := filepath.Clean(src)
	if !filepath.IsAbs(clean) {
		return serr.New(serr.ErrInvalidConfig, "clone ancestors", "path must be absolute")
	}

	parts := splitPath(clean)
	cur := ""
	for _, part := range parts {
		cur = filepath.Join(cur, part)
		srcPath := "/" + cur
		destPath := filepath.Join(newRoot, cur)

		if _, err := os.Lstat(destPath); err == nil {
			continue
		}

		fi, err := os.Lstat(srcPath)
		if err != nil {
			return serr.File("lstat", srcPath, err)
		}
		st, ok := fi.Sys().(*syscall.Stat_t)
		if !ok {
			return serr.New(serr.ErrInternal, "clone ancestors", "stat_t unavailable")
		}
		mode := fi.Mode().Perm()

		if fi.IsDir() {
			if err := os.Mkdir(destPath, mode); err != nil && !os.IsExist(err) {
				return serr.File("mkdir", destPath, err)
			}
		} else {
			f, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY, mode)
			if err != nil {
				return serr.File("create", destPath, err)
			}
			f.Close()
		}
		if err := os.Chown(destPath, int(st.Uid), int(st.Gid)); err != nil {
			return serr.File("chown", destPath, err)
		}
		if err := syscall.Chmod(destPath, st.Mode&0o7777); err != nil {
			return serr.File("chmod", destPath, err)
		}
	}
	return nil
}

// phaseE pivots into root, dropping the outer filesystem at tmp/oldroot
// before lazily unmounting and removing it.
func (b *Builder) phaseE(root string) error {
	if err := syscall.Unmount("/proc", syscall.MNT_DETACH); err != nil && err != syscall.EINVAL {
		b.log.Warn("lazy-unmount outer /proc failed", "error", err)
	}

	oldRoot := filepath.Join(root, "tmp", "oldroot")
	if err := os.MkdirAll(oldRoot, 0o700); err != nil {
		return serr.File("mkdir", oldRoot, err)
	}
	if err := os.Chdir(root); err != nil {
		return serr.File("chdir", root, err)
	}
	if err := syscall.PivotRoot(".", "tmp/oldroot"); err != nil {
		return serr.Wrap(err, serr.ErrOS, "pivot_root")
	}
	if err := os.Chdir("/"); err != nil {
		return serr.File("chdir", "/", err)
	}
	if err := syscall.Unmount("/tmp/oldroot", syscall.MNT_DETACH); err != nil && err != syscall.EINVAL {
		b.log.Warn("lazy-unmount old root failed", "error", err)
	}
	if err := os.Remove("/tmp/oldroot"); err != nil {
		b.log.Warn("rmdir old root failed", "error", err)
	}
	return nil
}

func isUnder(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (len(rel) > 0 && rel[0] != '.' && !filepath.IsAbs(rel))
}

func hasDevPrefix(source string) bool {
	return len(source) >= 5 && source[:5] == "/dev/"
}

func splitPath(p string) []string {
	p = filepath.Clean(p)
	if p == "/" {
		return nil
	}
	var parts []string
	for p != "/" && p != "." {
		parts = append([]string{filepath.Base(p)}, parts...)
		p = filepath.Dir(p)
	}
	return parts
}
