// Package cap provides a typed view over the kernel's v3 capability
// interface: the effective/permitted/inheritable triple, the bounding set,
// and the ambient set.
package cap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	serr "sandboxctl/errors"
)

// Capability numbers, from linux/capability.h. Kernel ABI, not a design
// choice: kept verbatim against the numbering every kernel header agrees on.
const (
	CHOWN              = 0
	DAC_OVERRIDE       = 1
	DAC_READ_SEARCH    = 2
	FOWNER             = 3
	FSETID             = 4
	KILL               = 5
	SETGID             = 6
	SETUID             = 7
	SETPCAP            = 8
	LINUX_IMMUTABLE    = 9
	NET_BIND_SERVICE   = 10
	NET_BROADCAST      = 11
	NET_ADMIN          = 12
	NET_RAW            = 13
	IPC_LOCK           = 14
	IPC_OWNER          = 15
	SYS_MODULE         = 16
	SYS_RAWIO          = 17
	SYS_CHROOT         = 18
	SYS_PTRACE         = 19
	SYS_PACCT          = 20
	SYS_ADMIN          = 21
	SYS_BOOT           = 22
	SYS_NICE           = 23
	SYS_RESOURCE       = 24
	SYS_TIME           = 25
	SYS_TTY_CONFIG     = 26
	MKNOD              = 27
	LEASE              = 28
	AUDIT_WRITE        = 29
	AUDIT_CONTROL      = 30
	SETFCAP            = 31
	MAC_OVERRIDE       = 32
	MAC_ADMIN          = 33
	SYSLOG             = 34
	WAKE_ALARM         = 35
	BLOCK_SUSPEND      = 36
	AUDIT_READ         = 37
	PERFMON            = 38
	BPF                = 39
	CHECKPOINT_RESTORE = 40
)

// nameMap maps capability names (without the CAP_ prefix) to numbers.
var nameMap = map[string]int{
	"CHOWN":              CHOWN,
	"DAC_OVERRIDE":       DAC_OVERRIDE,
	"DAC_READ_SEARCH":    DAC_READ_SEARCH,
	"FOWNER":             FOWNER,
	"FSETID":             FSETID,
	"KILL":               KILL,
	"SETGID":             SETGID,
	"SETUID":             SETUID,
	"SETPCAP":            SETPCAP,
	"LINUX_IMMUTABLE":    LINUX_IMMUTABLE,
	"NET_BIND_SERVICE":   NET_BIND_SERVICE,
	"NET_BROADCAST":      NET_BROADCAST,
	"NET_ADMIN":          NET_ADMIN,
	"NET_RAW":            NET_RAW,
	"IPC_LOCK":           IPC_LOCK,
	"IPC_OWNER":          IPC_OWNER,
	"SYS_MODULE":         SYS_MODULE,
	"SYS_RAWIO":          SYS_RAWIO,
	"SYS_CHROOT":         SYS_CHROOT,
	"SYS_PTRACE":         SYS_PTRACE,
	"SYS_PACCT":          SYS_PACCT,
	"SYS_ADMIN":          SYS_ADMIN,
	"SYS_BOOT":           SYS_BOOT,
	"SYS_NICE":           SYS_NICE,
	"SYS_RESOURCE":       SYS_RESOURCE,
	"SYS_TIME":           SYS_TIME,
	"SYS_TTY_CONFIG":     SYS_TTY_CONFIG,
	"MKNOD":              MKNOD,
	"LEASE":              LEASE,
	"AUDIT_WRITE":        AUDIT_WRITE,
	"AUDIT_CONTROL":      AUDIT_CONTROL,
	"SETFCAP":            SETFCAP,
	"MAC_OVERRIDE":       MAC_OVERRIDE,
	"MAC_ADMIN":          MAC_ADMIN,
	"SYSLOG":             SYSLOG,
	"WAKE_ALARM":         WAKE_ALARM,
	"BLOCK_SUSPEND":      BLOCK_SUSPEND,
	"AUDIT_READ":         AUDIT_READ,
	"PERFMON":            PERFMON,
	"BPF":                BPF,
	"CHECKPOINT_RESTORE": CHECKPOINT_RESTORE,
}

// prctl option numbers used for the bounding and ambient sets.
const (
	prCapbsetRead     = 23
	prCapbsetDrop     = 24
	prCapAmbient      = 47
	prCapAmbientRaise = 2
	prCapAmbientClear = 4
)

const linuxCapabilityVersion3 = 0x20080522

// nwords is _LINUX_CAPABILITY_U32S_3: two 32-bit words cover capabilities 0-63.
const nwords = 2

type capHeader struct {
	version uint32
	pid     int32
}

type capData struct {
	effective   uint32
	permitted   uint32
	inheritable uint32
}

// Cap is a snapshot of a process's capability triple, one 32-bit word per
// kernel capability data slot.
type Cap struct {
	Effective   [nwords]uint32
	Permitted   [nwords]uint32
	Inheritable [nwords]uint32
}

// Current returns the capability triple of the calling process.
func Current() (*Cap, error) {
	return CurrentPID(0)
}

// CurrentPID returns the capability triple of the process identified by pid
// (0 means the calling process).
func CurrentPID(pid int) (*Cap, error) {
	header := capHeader{version: linuxCapabilityVersion3, pid: int32(pid)}
	var data [nwords]capData

	_, _, errno := unix.Syscall(unix.SYS_CAPGET,
		uintptr(unsafe.Pointer(&header)),
		uintptr(unsafe.Pointer(&data[0])),
		0)
	if errno != 0 {
		return nil, serr.Wrap(errno, serr.ErrOS, "capget")
	}

	c := &Cap{}
	for i := 0; i < nwords; i++ {
		c.Effective[i] = data[i].effective
		c.Permitted[i] = data[i].permitted
		c.Inheritable[i] = data[i].inheritable
	}
	return c, nil
}

// Update applies this triple to the calling process.
func (c *Cap) Update() error {
	return c.UpdatePID(0)
}

// UpdatePID applies this triple to the process identified by pid.
func (c *Cap) UpdatePID(pid int) error {
	header := capHeader{version: linuxCapabilityVersion3, pid: int32(pid)}
	var data [nwords]capData
	for i := 0; i < nwords; i++ {
		data[i] = capData{
			effective:   c.Effective[i],
			permitted:   c.Permitted[i],
			inheritable: c.Inheritable[i],
		}
	}

	_, _, errno := unix.Syscall(unix.SYS_CAPSET,
		uintptr(unsafe.Pointer(&header)),
		uintptr(unsafe.Pointer(&data[0])),
		0)
	if errno != 0 {
		return serr.Wrap(errno, serr.ErrOS, "capset")
	}
	return nil
}

// Activate copies permitted into effective, returning c for chaining.
func (c *Cap) Activate() *Cap {
	c.Effective = c.Permitted
	return c
}

// ClearEffective zeroes the effective set, returning c for chaining.
func (c *Cap) ClearEffective() *Cap {
	c.Effective = [nwords]uint32{}
	return c
}

// ClearPermitted zeroes the permitted set, returning c for chaining.
func (c *Cap) ClearPermitted() *Cap {
	c.Permitted = [nwords]uint32{}
	return c
}

// ClearInheritable zeroes the inheritable set, returning c for chaining.
func (c *Cap) ClearInheritable() *Cap {
	c.Inheritable = [nwords]uint32{}
	return c
}

// Clear zeroes all three sets, returning c for chaining.
func (c *Cap) Clear() *Cap {
	return c.ClearEffective().ClearPermitted().ClearInheritable()
}

// IsEffective reports whether the given capability number is set in the
// effective mask.
func (c *Cap) IsEffective(capNum int) bool {
	return testBit(c.Effective, capNum)
}

// IsPermitted reports whether the given capability number is set in the
// permitted mask.
func (c *Cap) IsPermitted(capNum int) bool {
	return testBit(c.Permitted, capNum)
}

// IsInheritable reports whether the given capability number is set in the
// inheritable mask.
func (c *Cap) IsInheritable(capNum int) bool {
	return testBit(c.Inheritable, capNum)
}

func testBit(mask [nwords]uint32, capNum int) bool {
	if capNum < 0 || capNum >= nwords*32 {
		return false
	}
	word := capNum / 32
	bit := uint32(1) << uint(capNum%32)
	return mask[word]&bit != 0
}

func setBit(mask *[nwords]uint32, capNum int) {
	if capNum < 0 || capNum >= nwords*32 {
		return
	}
	word := capNum / 32
	bit := uint32(1) << uint(capNum%32)
	mask[word] |= bit
}

// SetEffective sets capNum in the effective mask, returning c for chaining.
func (c *Cap) SetEffective(capNum int) *Cap {
	setBit(&c.Effective, capNum)
	return c
}

// SetPermitted sets capNum in the permitted mask, returning c for chaining.
func (c *Cap) SetPermitted(capNum int) *Cap {
	setBit(&c.Permitted, capNum)
	return c
}

// SetInheritable sets capNum in the inheritable mask, returning c for chaining.
func (c *Cap) SetInheritable(capNum int) *Cap {
	setBit(&c.Inheritable, capNum)
	return c
}

// lastCapOnce/lastCapValue cache the dynamically detected highest supported
// capability number.
var (
	lastCapOnce  sync.Once
	lastCapValue = CHECKPOINT_RESTORE
)

// LastCap returns the highest capability number the running kernel supports.
func LastCap() int {
	lastCapOnce.Do(func() {
		if data, err := os.ReadFile("/proc/sys/kernel/cap_last_cap"); err == nil {
			if val, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && val >= 0 {
				lastCapValue = val
				return
			}
		}
		for capNum := CHECKPOINT_RESTORE; capNum <= 63; capNum++ {
			ret, _, _ := unix.Syscall(unix.SYS_PRCTL, prCapbsetRead, uintptr(capNum), 0)
			if ret == ^uintptr(0) {
				lastCapValue = capNum - 1
				return
			}
		}
		lastCapValue = 63
	})
	return lastCapValue
}

// NameToNumber converts a capability name ("CAP_SYS_ADMIN" or "SYS_ADMIN")
// to its number.
func NameToNumber(name string) (int, bool) {
	trimmed := strings.TrimPrefix(strings.ToUpper(name), "CAP_")
	n, ok := nameMap[trimmed]
	return n, ok
}

// NumberToName converts a capability number to its canonical "CAP_*" name.
func NumberToName(capNum int) string {
	for name, n := range nameMap {
		if n == capNum {
			return "CAP_" + name
		}
	}
	return fmt.Sprintf("CAP_%d", capNum)
}

// AllNames returns every known capability's canonical name.
func AllNames() []string {
	names := make([]string, 0, len(nameMap))
	for name := range nameMap {
		names = append(names, "CAP_"+name)
	}
	return names
}

// DropBounding drops every bounding-set capability not named in keep.
func DropBounding(keep []string) error {
	allowed := make(map[int]bool, len(keep))
	for _, name := range keep {
		if n, ok := NameToNumber(name); ok {
			allowed[n] = true
		}
	}

	last := LastCap()
	for capNum := 0; capNum <= last; capNum++ {
		if allowed[capNum] {
			continue
		}
		inSet, _, _ := unix.Syscall(unix.SYS_PRCTL, prCapbsetRead, uintptr(capNum), 0)
		if inSet != 1 {
			continue
		}
		_, _, errno := unix.Syscall(unix.SYS_PRCTL, prCapbsetDrop, uintptr(capNum), 0)
		if errno != 0 && errno != unix.EINVAL {
			return serr.Wrap(errno, serr.ErrOS, fmt.Sprintf("drop bounding cap %d", capNum))
		}
	}
	return nil
}

// ClearAmbient drops every ambient capability.
func ClearAmbient() {
	unix.Syscall(unix.SYS_PRCTL, prCapAmbient, prCapAmbientClear, 0)
}

// RaiseAmbient raises capNum into the ambient set. The kernel requires the
// capability to already be both permitted and inheritable.
func RaiseAmbient(capNum int) error {
	_, _, errno := unix.Syscall6(unix.SYS_PRCTL, prCapAmbient, prCapAmbientRaise, uintptr(capNum), 0, 0, 0)
	if errno != 0 && errno != unix.EINVAL {
		return serr.Wrap(errno, serr.ErrOS, fmt.Sprintf("raise ambient cap %d", capNum))
	}
	return nil
}
