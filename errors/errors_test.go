package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKind_String(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		expected string
	}{
		{ErrFile, "file error"},
		{ErrOS, "os error"},
		{ErrParse, "parse error"},
		{ErrNotIPv4, "not ipv4"},
		{ErrTooLong, "name too long"},
		{ErrBadStr, "bad string"},
		{ErrUIDMap, "uidmap helper failed"},
		{ErrMissingMount, "missing mount"},
		{ErrInvalidConfig, "invalid config"},
		{ErrInternal, "internal error"},
		{ErrorKind(999), "unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.expected {
				t.Errorf("ErrorKind.String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSandboxError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *SandboxError
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "<nil>",
		},
		{
			name: "full error",
			err: &SandboxError{
				Op:     "mount",
				Path:   "/proc",
				Kind:   ErrOS,
				Detail: "device busy",
				Err:    fmt.Errorf("EBUSY"),
			},
			expected: `mount: device busy "/proc": EBUSY`,
		},
		{
			name: "without path",
			err: &SandboxError{
				Op:     "pivot_root",
				Kind:   ErrOS,
				Detail: "pivot_root failed",
			},
			expected: "pivot_root: pivot_root failed",
		},
		{
			name: "kind only",
			err: &SandboxError{
				Kind: ErrInternal,
			},
			expected: "internal error",
		},
		{
			name: "with underlying error",
			err: &SandboxError{
				Op:   "mount",
				Kind: ErrOS,
				Err:  fmt.Errorf("device busy"),
			},
			expected: "mount: os error: device busy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("SandboxError.Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSandboxError_Unwrap(t *testing.T) {
	underlying := fmt.Errorf("underlying error")
	err := &SandboxError{
		Op:   "test",
		Kind: ErrInternal,
		Err:  underlying,
	}

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}

	var nilErr *SandboxError
	if got := nilErr.Unwrap(); got != nil {
		t.Errorf("nil.Unwrap() = %v, want nil", got)
	}
}

func TestSandboxError_Is(t *testing.T) {
	err1 := &SandboxError{Kind: ErrMissingMount, Op: "test1"}
	err2 := &SandboxError{Kind: ErrMissingMount, Op: "test2"}
	err3 := &SandboxError{Kind: ErrOS, Op: "test3"}

	if !err1.Is(err2) {
		t.Error("err1.Is(err2) should be true (same kind)")
	}

	if err1.Is(err3) {
		t.Error("err1.Is(err3) should be false (different kind)")
	}

	if err1.Is(fmt.Errorf("some error")) {
		t.Error("err1.Is(fmt.Errorf(...)) should be false")
	}

	var nilErr *SandboxError
	if !nilErr.Is(nil) {
		t.Error("nil.Is(nil) should be true")
	}
}

func TestNew(t *testing.T) {
	err := New(ErrInvalidConfig, "validate", "network flag incompatible with -c")

	if err.Kind != ErrInvalidConfig {
		t.Errorf("Kind = %v, want %v", err.Kind, ErrInvalidConfig)
	}
	if err.Op != "validate" {
		t.Errorf("Op = %q, want %q", err.Op, "validate")
	}
	if err.Detail != "network flag incompatible with -c" {
		t.Errorf("Detail = %q, want %q", err.Detail, "network flag incompatible with -c")
	}
}

func TestFile(t *testing.T) {
	underlying := fmt.Errorf("no such file or directory")
	err := File("mkdir", "/tmp/sandbox-abc/root", underlying)

	if err.Kind != ErrFile {
		t.Errorf("Kind = %v, want %v", err.Kind, ErrFile)
	}
	if err.Path != "/tmp/sandbox-abc/root" {
		t.Errorf("Path = %q, want %q", err.Path, "/tmp/sandbox-abc/root")
	}
	if err.Err != underlying {
		t.Error("File() should preserve underlying error")
	}
}

func TestOS(t *testing.T) {
	underlying := fmt.Errorf("operation not permitted")
	err := OS("unshare", underlying)

	if err.Kind != ErrOS {
		t.Errorf("Kind = %v, want %v", err.Kind, ErrOS)
	}
	if err.Op != "unshare" {
		t.Errorf("Op = %q, want %q", err.Op, "unshare")
	}
}

func TestParse(t *testing.T) {
	err := Parse("/proc/1/mountinfo", "missing separator field")

	if err.Kind != ErrParse {
		t.Errorf("Kind = %v, want %v", err.Kind, ErrParse)
	}
	if err.Path != "/proc/1/mountinfo" {
		t.Errorf("Path = %q, want %q", err.Path, "/proc/1/mountinfo")
	}
	if err.Detail != "missing separator field" {
		t.Errorf("Detail = %q, want %q", err.Detail, "missing separator field")
	}
}

func TestWrap(t *testing.T) {
	underlying := fmt.Errorf("permission denied")
	err := Wrap(underlying, ErrOS, "capset")

	if err.Err != underlying {
		t.Error("Wrapped error should preserve underlying error")
	}
	if err.Kind != ErrOS {
		t.Errorf("Kind = %v, want %v", err.Kind, ErrOS)
	}
	if err.Op != "capset" {
		t.Errorf("Op = %q, want %q", err.Op, "capset")
	}
}

func TestWrapWithDetail(t *testing.T) {
	underlying := fmt.Errorf("exit status 1")
	err := WrapWithDetail(underlying, ErrUIDMap, "newuidmap", "helper exited non-zero")

	if err.Detail != "helper exited non-zero" {
		t.Errorf("Detail = %q, want %q", err.Detail, "helper exited non-zero")
	}
}

func TestWithPath(t *testing.T) {
	base := New(ErrFile, "stat", "")
	withPath := WithPath(base, "/home/user")

	if withPath.Path != "/home/user" {
		t.Errorf("Path = %q, want %q", withPath.Path, "/home/user")
	}
	if base.Path != "" {
		t.Error("WithPath should not mutate the original error")
	}

	var nilErr *SandboxError
	if WithPath(nilErr, "/x") != nil {
		t.Error("WithPath(nil, ...) should return nil")
	}
}

func TestIsKind(t *testing.T) {
	err := &SandboxError{Kind: ErrMissingMount}
	wrapped := fmt.Errorf("wrapped: %w", err)

	if !IsKind(err, ErrMissingMount) {
		t.Error("IsKind(err, ErrMissingMount) should be true")
	}
	if !IsKind(wrapped, ErrMissingMount) {
		t.Error("IsKind(wrapped, ErrMissingMount) should be true")
	}
	if IsKind(err, ErrOS) {
		t.Error("IsKind(err, ErrOS) should be false")
	}
	if IsKind(fmt.Errorf("plain error"), ErrMissingMount) {
		t.Error("IsKind(plain error, ErrMissingMount) should be false")
	}
}

func TestGetKind(t *testing.T) {
	err := &SandboxError{Kind: ErrUIDMap}
	wrapped := fmt.Errorf("wrapped: %w", err)

	kind, ok := GetKind(err)
	if !ok || kind != ErrUIDMap {
		t.Errorf("GetKind(err) = (%v, %v), want (%v, true)", kind, ok, ErrUIDMap)
	}

	kind, ok = GetKind(wrapped)
	if !ok || kind != ErrUIDMap {
		t.Errorf("GetKind(wrapped) = (%v, %v), want (%v, true)", kind, ok, ErrUIDMap)
	}

	_, ok = GetKind(fmt.Errorf("plain error"))
	if ok {
		t.Error("GetKind(plain error) should return false")
	}
}

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  *SandboxError
		kind ErrorKind
	}{
		{"ErrUnshareDenied", ErrUnshareDenied, ErrOS},
		{"ErrHandshakeFailed", ErrHandshakeFailed, ErrInternal},
		{"ErrNoPolicy", ErrNoPolicy, ErrInvalidConfig},
		{"ErrUnusableCWD", ErrUnusableCWD, ErrCWD},
		{"ErrPivotRoot", ErrPivotRoot, ErrOS},
		{"ErrMountFailed", ErrMountFailed, ErrOS},
		{"ErrNotAbsolute", ErrNotAbsolute, ErrInvalidConfig},
		{"ErrCapabilityUnknown", ErrCapabilityUnknown, ErrInvalidConfig},
		{"ErrCapGet", ErrCapGet, ErrOS},
		{"ErrCapSet", ErrCapSet, ErrOS},
		{"ErrUIDMapHelper", ErrUIDMapHelper, ErrUIDMap},
		{"ErrUIDMapWrite", ErrUIDMapWrite, ErrFile},
		{"ErrIfaceNameTooLong", ErrIfaceNameTooLong, ErrTooLong},
		{"ErrAddrNotIPv4", ErrAddrNotIPv4, ErrNotIPv4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("%s.Kind = %v, want %v", tt.name, tt.err.Kind, tt.kind)
			}
			wrapped := Wrap(fmt.Errorf("underlying"), tt.kind, "test")
			if !errors.Is(wrapped, tt.err) {
				t.Errorf("errors.Is(wrapped, %s) should be true", tt.name)
			}
		})
	}
}

func TestErrorChain(t *testing.T) {
	underlying := fmt.Errorf("exit status 1")
	err1 := Wrap(underlying, ErrUIDMap, "newuidmap")
	err2 := fmt.Errorf("id map setup failed: %w", err1)

	if !errors.Is(err2, ErrUIDMapHelper) {
		t.Error("errors.Is should find ErrUIDMapHelper in chain")
	}

	var serr *SandboxError
	if !errors.As(err2, &serr) {
		t.Error("errors.As should find SandboxError in chain")
	}
	if serr.Op != "newuidmap" {
		t.Errorf("serr.Op = %q, want %q", serr.Op, "newuidmap")
	}

	if errors.Unwrap(err1) != underlying {
		t.Error("Unwrap should return underlying error")
	}
}
