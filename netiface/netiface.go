// Package netiface provides ifreq-based ioctls for interface flags and
// IPv4 addresses, plus bridge and TAP device helpers built on the same
// carrier socket.
package netiface

import (
	"net"
	"unsafe"

	"golang.org/x/sys/unix"

	serr "sandboxctl/errors"
)

// LOOPBACK is the kernel's well-known loopback interface name.
const LOOPBACK = "lo"

// Flag bits relevant to interface state, mirrored from <net/if.h>.
const (
	IFF_UP       = unix.IFF_UP
	IFF_RUNNING  = unix.IFF_RUNNING
	IFF_LOOPBACK = unix.IFF_LOOPBACK
)

// ifnameSize matches IFNAMSIZ; names must fit with room for a NUL.
const ifnameSize = unix.IFNAMSIZ

// ifreqFlags mirrors struct ifreq's layout for the flags/ioctl union as the
// kernel expects it on amd64: a 16-byte name field followed by a union,
// here big enough for the short flags field or an embedded sockaddr.
type ifreqFlags struct {
	name  [ifnameSize]byte
	flags int16
	_     [14]byte // pad the union out to sockaddr's 16 bytes
}

type ifreqAddr struct {
	name [ifnameSize]byte
	addr unix.RawSockaddrInet4
}

// IFaceV4 is an ioctl carrier bound to one interface name.
type IFaceV4 struct {
	name string
	fd   int
}

// New opens an AF_INET socket to use as the ioctl carrier for name.
func New(name string) (*IFaceV4, error) {
	if len(name) >= ifnameSize {
		return nil, serr.WithPath(serr.ErrIfaceNameTooLong, name)
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, serr.Wrap(err, serr.ErrOS, "socket")
	}
	return &IFaceV4{name: name, fd: fd}, nil
}

// Close releases the carrier socket.
func (i *IFaceV4) Close() error {
	return unix.Close(i.fd)
}

func (i *IFaceV4) nameBytes() [ifnameSize]byte {
	var b [ifnameSize]byte
	copy(b[:], i.name)
	return b
}

// Flags returns the interface's current flag word via SIOCGIFFLAGS.
func (i *IFaceV4) Flags() (uint32, error) {
	req := ifreqFlags{name: i.nameBytes()}
	if err := ioctl(i.fd, unix.SIOCGIFFLAGS, unsafe.Pointer(&req)); err != nil {
		return 0, serr.Wrap(err, serr.ErrOS, "SIOCGIFFLAGS "+i.name)
	}
	return uint32(req.flags), nil
}

// SetFlags sets the interface's flag word via SIOCSIFFLAGS.
func (i *IFaceV4) SetFlags(flags uint32) error {
	req := ifreqFlags{name: i.nameBytes(), flags: int16(flags)}
	if err := ioctl(i.fd, unix.SIOCSIFFLAGS, unsafe.Pointer(&req)); err != nil {
		return serr.Wrap(err, serr.ErrOS, "SIOCSIFFLAGS "+i.name)
	}
	return nil
}

// Address returns the interface's IPv4 address via SIOCGIFADDR, rejecting
// non-AF_INET results.
func (i *IFaceV4) Address() (net.IP, error) {
	req := ifreqAddr{name: i.nameBytes()}
	if err := ioctl(i.fd, unix.SIOCGIFADDR, unsafe.Pointer(&req)); err != nil {
		return nil, serr.Wrap(err, serr.ErrOS, "SIOCGIFADDR "+i.name)
	}
	if req.addr.Family != unix.AF_INET {
		return nil, serr.WithPath(serr.ErrAddrNotIPv4, i.name)
	}
	b := req.addr.Addr
	return net.IPv4(b[0], b[1], b[2], b[3]), nil
}

// SetAddress assigns addr to the interface via SIOCSIFADDR.
func (i *IFaceV4) SetAddress(addr net.IP) error {
	v4 := addr.To4()
	if v4 == nil {
		return serr.WithPath(serr.ErrAddrNotIPv4, i.name)
	}
	req := ifreqAddr{name: i.nameBytes()}
	req.addr.Family = unix.AF_INET
	copy(req.addr.Addr[:], v4)
	if err := ioctl(i.fd, unix.SIOCSIFADDR, unsafe.Pointer(&req)); err != nil {
		return serr.Wrap(err, serr.ErrOS, "SIOCSIFADDR "+i.name)
	}
	return nil
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// ConfigureLo assigns 127.0.0.1 to lo and brings it up if not already.
func ConfigureLo() error {
	lo, err := New(LOOPBACK)
	if err != nil {
		return err
	}
	defer lo.Close()

	if err := lo.SetAddress(net.IPv4(127, 0, 0, 1)); err != nil {
		return err
	}
	flags, err := lo.Flags()
	if err != nil {
		return err
	}
	if flags&IFF_UP == 0 {
		if err := lo.SetFlags(flags | IFF_UP); err != nil {
			return err
		}
	}
	return nil
}
