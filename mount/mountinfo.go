// Package mount parses /proc/<pid>/mountinfo, locates the mount covering an
// arbitrary path, and builds the replacement mount tree each policy stages
// before pivot_root.
package mount

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	serr "sandboxctl/errors"
	"sandboxctl/logging"
)

// Mount option flags this parser recognizes, expressed as MS_* bits.
const (
	MS_RDONLY      = syscall.MS_RDONLY
	MS_NOSUID      = syscall.MS_NOSUID
	MS_NODEV       = syscall.MS_NODEV
	MS_NOEXEC      = syscall.MS_NOEXEC
	MS_NOATIME     = syscall.MS_NOATIME
	MS_NODIRATIME  = syscall.MS_NODIRATIME
	MS_RELATIME    = syscall.MS_RELATIME
	MS_STRICTATIME = 1 << 24 // same value as syscall.MS_STRICTATIME (0x1000000)
)

// optionFlags maps mountinfo option tokens to their MS_* bit. "rw" is the
// absence of MS_RDONLY and contributes no bit.
var optionFlags = map[string]uintptr{
	"ro":          MS_RDONLY,
	"nosuid":      MS_NOSUID,
	"nodev":       MS_NODEV,
	"noexec":      MS_NOEXEC,
	"noatime":     MS_NOATIME,
	"nodiratime":  MS_NODIRATIME,
	"relatime":    MS_RELATIME,
	"strictatime": MS_STRICTATIME,
}

// Info is one parsed mountinfo record.
type Info struct {
	ID         int
	Root       string
	MountPoint string
	Options    uintptr
	FSType     string
	Source     string
}

// HasOption reports whether flag is set in this mount's decoded option bitmask.
func (i *Info) HasOption(flag uintptr) bool {
	return i.Options&flag != 0
}

// Mounts indexes mount points by their absolute path.
type Mounts struct {
	points map[string]*Info
}

// Current parses the calling process's own mountinfo.
func Current() (*Mounts, error) {
	return FromPID(os.Getpid())
}

// FromPID parses the mountinfo of the process identified by pid.
func FromPID(pid int) (*Mounts, error) {
	path := "/proc/" + strconv.Itoa(pid) + "/mountinfo"
	f, err := os.Open(path)
	if err != nil {
		return nil, serr.File("open", path, err)
	}
	defer f.Close()

	m := &Mounts{points: make(map[string]*Info)}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		info, err := parseLine(path, lineNo, line)
		if err != nil {
			return nil, err
		}
		m.points[info.MountPoint] = info
	}
	if err := scanner.Err(); err != nil {
		return nil, serr.File("read", path, err)
	}
	if len(m.points) == 0 {
		return nil, serr.New(serr.ErrMissingMount, "mountinfo", "empty mountinfo")
	}
	return m, nil
}

// parseLine decodes one mountinfo line:
//
//	id parent major:minor root mountpoint options [tag...] - fstype source superopts
func parseLine(source string, lineNo int, line string) (*Info, error) {
	fields := strings.Split(line, " ")
	if len(fields) < 10 {
		return nil, serr.Parse(source, "line "+strconv.Itoa(lineNo)+": too few fields")
	}

	sepIdx := -1
	for i, f := range fields {
		if f == "-" {
			sepIdx = i
			break
		}
	}
	if sepIdx < 0 {
		return nil, serr.Parse(source, "line "+strconv.Itoa(lineNo)+": missing separator")
	}
	if sepIdx+2 >= len(fields) {
		return nil, serr.Parse(source, "line "+strconv.Itoa(lineNo)+": truncated after separator")
	}

	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, serr.Wrap(err, serr.ErrBadStr, "parse mount id")
	}

	var opts uintptr
	for _, tok := range strings.Split(fields[5], ",") {
		if tok == "" || tok == "rw" {
			continue
		}
		if flag, ok := optionFlags[tok]; ok {
			opts |= flag
		} else {
			// unknown tokens are logged and dropped.
			logging.Default().Warn("dropping unknown mount option", "source", source, "line", lineNo, "option", tok)
		}
	}

	return &Info{
		ID:         id,
		Root:       fields[3],
		MountPoint: fields[4],
		Options:    opts,
		FSType:     fields[sepIdx+1],
		Source:     fields[sepIdx+2],
	}, nil
}

// Lookup returns the mount covering path, using FindMountPoint to locate it.
func (m *Mounts) Lookup(path string) (*Info, error) {
	mp, err := FindMountPoint(path)
	if err != nil {
		return nil, err
	}
	info, ok := m.points[mp]
	if !ok {
		return nil, serr.New(serr.ErrMissingMount, "lookup", mp)
	}
	return info, nil
}

// All returns every parsed mount record, in no particular order.
func (m *Mounts) All() []*Info {
	out := make([]*Info, 0, len(m.points))
	for _, info := range m.points {
		out = append(out, info)
	}
	return out
}

// FindMountPoint ascends from path (canonicalized first) comparing device
// and inode numbers against each parent directory: a parent on a different
// device, or one whose inode equals the child's (the kernel's signature for
// crossing a bind-mount boundary on the same device), marks the current
// directory as the mount point. No parent-linked tree is built; each call
// walks the live filesystem.
func FindMountPoint(path string) (string, error) {
	if path == "" {
		return "", serr.New(serr.ErrFile, "find_mount_point", "empty path")
	}

	real, err := filepath.Abs(path)
	if err != nil {
		return "", serr.File("abspath", path, err)
	}
	real, err = filepath.EvalSymlinks(real)
	if err != nil {
		return "", serr.File("realpath", path, err)
	}

	info, err := os.Lstat(real)
	if err != nil {
		return "", serr.File("lstat", real, err)
	}

	dir := real
	if !info.IsDir() {
		dir = filepath.Dir(real)
	}

	for {
		if dir == "/" {
			return dir, nil
		}
		parent := filepath.Dir(dir)

		dirStat, err := os.Lstat(dir)
		if err != nil {
			return "", serr.File("lstat", dir, err)
		}
		parentStat, err := os.Lstat(parent)
		if err != nil {
			return "", serr.File("lstat", parent, err)
		}

		dirSys, ok1 := dirStat.Sys().(*syscall.Stat_t)
		parentSys, ok2 := parentStat.Sys().(*syscall.Stat_t)
		if !ok1 || !ok2 {
			return "", serr.New(serr.ErrInternal, "find_mount_point", "stat_t unavailable")
		}

		if dirSys.Dev != parentSys.Dev || dirSys.Ino == parentSys.Ino {
			return dir, nil
		}
		dir = parent
	}
}
