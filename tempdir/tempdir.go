// Package tempdir manages the per-run staging directory each policy uses to
// stage its replacement root before pivot_root.
package tempdir

import (
	"os"

	"sandboxctl/logging"
)

// TempDir owns a directory created under os.TempDir and removes it on Close.
type TempDir struct {
	path string
}

// New creates a fresh staging directory named "sandbox-*" under os.TempDir.
func New() (*TempDir, error) {
	path, err := os.MkdirTemp(os.TempDir(), "sandbox-*")
	if err != nil {
		return nil, err
	}
	return &TempDir{path: path}, nil
}

// FromPath wraps an already-created staging directory, for a process that
// inherited the path from an earlier stage rather than creating it itself.
func FromPath(path string) *TempDir {
	return &TempDir{path: path}
}

// Path returns the staging directory's absolute path.
func (t *TempDir) Path() string {
	return t.path
}

// Chown sets the staging directory's owner, matching the caller's real
// uid/gid so a re-exec'd, still-privileged child can still write under it
// after dropping capabilities.
func (t *TempDir) Chown(uid, gid int) error {
	return os.Chown(t.path, uid, gid)
}

// Close removes the staging directory recursively. Failure is logged, not
// returned, since by the time Close runs the sandboxed process has already
// exited and there is no one left to act on the error.
func (t *TempDir) Close() {
	if err := os.RemoveAll(t.path); err != nil {
		logging.Default().Warn("tempdir cleanup failed", "path", t.path, "error", err)
	}
}
