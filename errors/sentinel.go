// Package errors provides predefined sentinel errors for common failure cases.
package errors

// Namespace and re-exec errors.
var (
	// ErrUnshareDenied indicates unshare(2) failed with EPERM, typically
	// because unprivileged user namespaces are disabled on the host.
	ErrUnshareDenied = &SandboxError{
		Op:     "unshare",
		Kind:   ErrOS,
		Detail: "permission denied; check kernel.unprivileged_userns_clone",
	}

	// ErrHandshakeFailed indicates the socketpair handshake between stages
	// did not complete with the expected byte sequence.
	ErrHandshakeFailed = &SandboxError{
		Op:     "handshake",
		Kind:   ErrInternal,
		Detail: "stage handshake failed",
	}

	// ErrNoPolicy indicates no PolicyConfig was found in the environment of
	// a re-exec'd stage process.
	ErrNoPolicy = &SandboxError{
		Op:     "stage",
		Kind:   ErrInvalidConfig,
		Detail: "missing policy configuration",
	}

	// ErrUnusableCWD indicates the caller's working directory cannot be
	// used by the requested policy (e.g. os.Getwd can no longer resolve it).
	// Callers distinguish this from other setup failures to pick exit
	// code 2 rather than the generic 1.
	ErrUnusableCWD = &SandboxError{
		Op:   "cwd",
		Kind: ErrCWD,
	}
)

// Mount and rootfs errors.
var (
	// ErrPivotRoot indicates pivot_root(2) failed.
	ErrPivotRoot = &SandboxError{
		Op:   "pivot_root",
		Kind: ErrOS,
	}

	// ErrMountFailed indicates a mount(2) call failed.
	ErrMountFailed = &SandboxError{
		Op:   "mount",
		Kind: ErrOS,
	}

	// ErrNotAbsolute indicates a path supplied to the mount builder was
	// not absolute.
	ErrNotAbsolute = &SandboxError{
		Op:     "mount plan",
		Kind:   ErrInvalidConfig,
		Detail: "path must be absolute",
	}
)

// Capability errors.
var (
	// ErrCapabilityUnknown indicates an unknown capability name was given.
	ErrCapabilityUnknown = &SandboxError{
		Op:     "capability",
		Kind:   ErrInvalidConfig,
		Detail: "unknown capability",
	}

	// ErrCapGet indicates capget(2) failed.
	ErrCapGet = &SandboxError{
		Op:   "capget",
		Kind: ErrOS,
	}

	// ErrCapSet indicates capset(2) failed.
	ErrCapSet = &SandboxError{
		Op:   "capset",
		Kind: ErrOS,
	}
)

// ID mapping errors.
var (
	// ErrUIDMapHelper indicates newuidmap/newgidmap exited non-zero.
	ErrUIDMapHelper = &SandboxError{
		Op:   "newuidmap",
		Kind: ErrUIDMap,
	}

	// ErrUIDMapWrite indicates a direct write to uid_map/gid_map failed.
	ErrUIDMapWrite = &SandboxError{
		Op:   "write id map",
		Kind: ErrFile,
	}
)

// Network interface errors.
var (
	// ErrIfaceNameTooLong indicates an interface name exceeded IFNAMSIZ-1.
	ErrIfaceNameTooLong = &SandboxError{
		Op:   "interface name",
		Kind: ErrTooLong,
	}

	// ErrAddrNotIPv4 indicates an address family other than AF_INET was
	// returned by an address ioctl.
	ErrAddrNotIPv4 = &SandboxError{
		Op:   "interface address",
		Kind: ErrNotIPv4,
	}
)
