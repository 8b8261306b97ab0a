package netiface

import (
	"io"
	"net"
	"os"
	"unsafe"

	serr "sandboxctl/errors"
	"sandboxctl/logging"
)

// Bridge-ioctl request numbers, not exposed by golang.org/x/sys/unix; values
// come from <linux/sockios.h>.
const (
	sioBrAddBr  = 0x89a0
	sioBrAddIf  = 0x89a2
	tunSetIff   = 0x400454ca
	iffTap      = 0x0002
	iffNoPI     = 0x1000
	devNetTun   = "/dev/net/tun"
)

// BridgeCreate creates a bridge device named br via SIOCBRADDBR.
func BridgeCreate(br string) error {
	iface, err := New(br)
	if err != nil {
		return err
	}
	defer iface.Close()

	name := iface.nameBytes()
	if err := ioctl(iface.fd, sioBrAddBr, unsafe.Pointer(&name[0])); err != nil {
		return serr.Wrap(err, serr.ErrOS, "SIOCBRADDBR "+br)
	}
	return nil
}

// BridgeAdd attaches iface to bridge br via SIOCBRADDIF. The kernel ioctl
// ABI for this call is ambiguous across versions about whether the member
// interface is identified by index in ifru_ivalue or by name in ifr_name;
// this follows the index form, the more common contemporary kernel ABI.
func BridgeAdd(br, iface string) error {
	memberIdx, err := ifindex(iface)
	if err != nil {
		return err
	}

	carrier, err := New(br)
	if err != nil {
		return err
	}
	defer carrier.Close()

	req := ifreqFlags{name: carrier.nameBytes()}
	req.flags = int16(memberIdx)
	if err := ioctl(carrier.fd, sioBrAddIf, unsafe.Pointer(&req)); err != nil {
		return serr.Wrap(err, serr.ErrOS, "SIOCBRADDIF "+br+" "+iface)
	}
	return nil
}

func ifindex(name string) (int, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return 0, serr.Wrap(err, serr.ErrOS, "ifindex "+name)
	}
	return iface.Index, nil
}

// TunTap is an open TAP device. Dropping the handle (Close) destroys the
// interface when the kernel's reference count reaches zero.
type TunTap struct {
	Name string
	file *os.File
}

// NewTunTap opens /dev/net/tun and creates a TAP interface named name.
func NewTunTap(name string) (*TunTap, error) {
	f, err := os.OpenFile(devNetTun, os.O_RDWR, 0)
	if err != nil {
		return nil, serr.File("open", devNetTun, err)
	}

	req := ifreqFlags{name: (&IFaceV4{name: name}).nameBytes(), flags: int16(iffTap | iffNoPI)}
	if err := ioctl(int(f.Fd()), tunSetIff, unsafe.Pointer(&req)); err != nil {
		f.Close()
		return nil, serr.Wrap(err, serr.ErrOS, "TUNSETIFF "+name)
	}
	return &TunTap{Name: name, file: f}, nil
}

// Close releases the TAP file descriptor.
func (t *TunTap) Close() error {
	return t.file.Close()
}

// DummyBridgeHandle groups the resources DummyBridge assembles; Close stops
// the background discard goroutine before closing the TAP device.
type DummyBridgeHandle struct {
	Bridge string
	Tap    *TunTap
	cancel func()
}

// Close stops the discard goroutine and closes the TAP device. The bridge
// and TAP kernel objects are reclaimed by the kernel once all references to
// them (including this process's fd) are gone.
func (h *DummyBridgeHandle) Close() error {
	if h.cancel != nil {
		h.cancel()
	}
	return h.Tap.Close()
}

// DummyBridge creates br0 and tap0, attaches tap0 to br0, assigns
// 192.168.1.1 to br0, brings both interfaces up, then starts a goroutine
// that reads and discards bytes from the TAP file forever — this keeps
// IFF_RUNNING set on the TAP device the way a real peer reading its traffic
// would. The original implementation forks a dedicated discard process and
// relies on inherited fd ownership across that fork; Go cannot safely
// replicate bare fork(), so this discard loop runs as a goroutine sharing
// the same process and is stopped via Close instead of SIGKILL.
func DummyBridge() (*DummyBridgeHandle, error) {
	const (
		bridgeName = "br0"
		tapName    = "tap0"
	)

	if err := BridgeCreate(bridgeName); err != nil {
		return nil, err
	}
	tap, err := NewTunTap(tapName)
	if err != nil {
		return nil, err
	}
	if err := BridgeAdd(bridgeName, tapName); err != nil {
		tap.Close()
		return nil, err
	}

	br, err := New(bridgeName)
	if err != nil {
		tap.Close()
		return nil, err
	}
	defer br.Close()
	if err := br.SetAddress(net.IPv4(192, 168, 1, 1)); err != nil {
		tap.Close()
		return nil, err
	}

	for _, name := range []string{bridgeName, tapName} {
		iface, err := New(name)
		if err != nil {
			tap.Close()
			return nil, err
		}
		flags, err := iface.Flags()
		if err != nil {
			iface.Close()
			tap.Close()
			return nil, err
		}
		if err := iface.SetFlags(flags | IFF_UP); err != nil {
			iface.Close()
			tap.Close()
			return nil, err
		}
		iface.Close()
	}

	done := make(chan struct{})
	go discardLoop(tap.file, done)

	return &DummyBridgeHandle{
		Bridge: bridgeName,
		Tap:    tap,
		cancel: func() { close(done) },
	}, nil
}

func discardLoop(f *os.File, done <-chan struct{}) {
	buf := make([]byte, 4096)
	for {
		select {
		case <-done:
			return
		default:
		}
		if _, err := f.Read(buf); err != nil {
			if err != io.EOF {
				logging.Default().Warn("tap discard loop read failed", "error", err)
			}
			return
		}
	}
}
