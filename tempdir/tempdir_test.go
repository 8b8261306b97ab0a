package tempdir

import (
	"os"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	td, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer td.Close()

	if td.Path() == "" {
		t.Fatal("Path() is empty")
	}
	if !strings.Contains(td.Path(), "sandbox-") {
		t.Errorf("Path() = %q, want it to contain %q", td.Path(), "sandbox-")
	}

	info, err := os.Stat(td.Path())
	if err != nil {
		t.Fatalf("staging dir does not exist: %v", err)
	}
	if !info.IsDir() {
		t.Error("staging path is not a directory")
	}
}

func TestNew_Unique(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	b, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer b.Close()

	if a.Path() == b.Path() {
		t.Errorf("two calls to New() returned the same path %q", a.Path())
	}
}

func TestClose_RemovesTree(t *testing.T) {
	td, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	nested := td.Path() + "/nested/dir"
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	td.Close()

	if _, err := os.Stat(td.Path()); !os.IsNotExist(err) {
		t.Errorf("expected staging dir to be removed, stat err = %v", err)
	}
}

func TestClose_MissingDirDoesNotPanic(t *testing.T) {
	td, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := os.RemoveAll(td.Path()); err != nil {
		t.Fatalf("RemoveAll() error = %v", err)
	}

	// os.RemoveAll returns nil for an already-missing directory, so Close
	// neither logs a warning nor panics.
	td.Close()
}
