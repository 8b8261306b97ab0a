// Package idmap writes user-namespace UID/GID mappings, choosing between a
// direct write to /proc/<pid>/{uid,gid}_map and shelling out to
// newuidmap/newgidmap depending on the caller's effective capabilities.
package idmap

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"sandboxctl/cap"
	serr "sandboxctl/errors"
)

// Kind distinguishes a uid_map from a gid_map.
type Kind int

const (
	UID Kind = iota
	GID
)

func (k Kind) String() string {
	if k == GID {
		return "gid"
	}
	return "uid"
}

// entry is one mapped range: count inner IDs starting at Inner map onto
// count outer IDs starting at Outer.
type entry struct {
	inner uint32
	count uint32
}

// IdMap accumulates ID mapping ranges for a single target process, keyed
// internally by outer start so entries always serialize sorted.
type IdMap struct {
	pid     int
	kind    Kind
	entries map[uint32]entry
}

// NewUID starts a uid_map builder for the given target pid.
func NewUID(pid int) *IdMap {
	return &IdMap{pid: pid, kind: UID, entries: make(map[uint32]entry)}
}

// NewGID starts a gid_map builder for the given target pid.
func NewGID(pid int) *IdMap {
	return &IdMap{pid: pid, kind: GID, entries: make(map[uint32]entry)}
}

// Add records a mapping of count inner IDs starting at inner onto count
// outer IDs starting at outer, returning the map for chaining.
func (m *IdMap) Add(outer, inner, count uint32) *IdMap {
	m.entries[outer] = entry{inner: inner, count: count}
	return m
}

// sortedOuterStarts returns the map's outer-start keys in ascending order.
func (m *IdMap) sortedOuterStarts() []uint32 {
	starts := make([]uint32, 0, len(m.entries))
	for outer := range m.entries {
		starts = append(starts, outer)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	return starts
}

// MapFile renders the kernel map-file contents: one "outer inner count"
// line per entry, sorted by outer start, with no trailing blank line.
func (m *IdMap) MapFile() string {
	var b strings.Builder
	for _, outer := range m.sortedOuterStarts() {
		e := m.entries[outer]
		fmt.Fprintf(&b, "%d %d %d\n", outer, e.inner, e.count)
	}
	return b.String()
}

// MapArgs flattens the entries, sorted by outer start, into the token list
// newuidmap/newgidmap expect after the pid argument.
func (m *IdMap) MapArgs() []string {
	starts := m.sortedOuterStarts()
	args := make([]string, 0, len(starts)*3)
	for _, outer := range starts {
		e := m.entries[outer]
		args = append(args,
			strconv.FormatUint(uint64(outer), 10),
			strconv.FormatUint(uint64(e.inner), 10),
			strconv.FormatUint(uint64(e.count), 10),
		)
	}
	return args
}

// Write applies the accumulated mapping to the target process: directly if
// the caller holds the matching CAP_SETUID/CAP_SETGID effective bit,
// otherwise via the newuidmap/newgidmap setuid helper.
func (m *IdMap) Write() error {
	current, err := cap.Current()
	if err != nil {
		return err
	}

	var required int
	var helper, mapFile string
	if m.kind == UID {
		required = cap.SETUID
		helper = "newuidmap"
		mapFile = "uid_map"
	} else {
		required = cap.SETGID
		helper = "newgidmap"
		mapFile = "gid_map"
	}

	if current.IsEffective(required) {
		return m.writeDirect(mapFile)
	}
	return m.writeHelper(helper)
}

func (m *IdMap) writeDirect(mapFile string) error {
	path := fmt.Sprintf("/proc/%d/%s", m.pid, mapFile)
	if err := os.WriteFile(path, []byte(m.MapFile()), 0o644); err != nil {
		return serr.File("write", path, err)
	}
	return nil
}

func (m *IdMap) writeHelper(helper string) error {
	args := append([]string{strconv.Itoa(m.pid)}, m.MapArgs()...)
	cmd := exec.Command(helper, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return serr.WrapWithDetail(err, serr.ErrUIDMap, helper, strings.TrimSpace(string(out)))
	}
	return nil
}
