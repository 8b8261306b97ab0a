package runtime

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sys/unix"

	serr "sandboxctl/errors"
)

// handshake bytes: "." signals success, "X" signals failure.
const (
	handshakeOK   = '.'
	handshakeFail = 'X'
)

// Handshake wraps one end of a socketpair used as a one-byte rendezvous
// barrier between the parent and the stage1 process.
type Handshake struct {
	f *os.File
}

// NewHandshakePair creates a connected AF_UNIX SOCK_STREAM socketpair and
// wraps both ends as Handshake values. The caller is responsible for
// passing one end across a fork/exec boundary (e.g. via ExtraFiles) and
// closing the unused end in each process.
func NewHandshakePair() (parent, child *Handshake, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, serr.Wrap(err, serr.ErrOS, "socketpair")
	}
	return &Handshake{f: os.NewFile(uintptr(fds[0]), "handshake-parent")},
		&Handshake{f: os.NewFile(uintptr(fds[1]), "handshake-child")},
		nil
}

// HandshakeFromFD wraps an inherited file descriptor (e.g. one received via
// ExtraFiles after re-exec) as a Handshake endpoint.
func HandshakeFromFD(fd uintptr) *Handshake {
	return &Handshake{f: os.NewFile(fd, "handshake")}
}

// File exposes the underlying *os.File, for passing across ExtraFiles.
func (h *Handshake) File() *os.File {
	return h.f
}

// Close releases the endpoint.
func (h *Handshake) Close() error {
	return h.f.Close()
}

// SignalOK writes the one-byte success marker.
func (h *Handshake) SignalOK() error {
	_, err := h.f.Write([]byte{handshakeOK})
	if err != nil {
		return serr.Wrap(err, serr.ErrInternal, "handshake write")
	}
	return nil
}

// SignalFail writes the one-byte failure marker, tolerating a write error
// since the point is to avoid wedging the peer, not to guarantee delivery.
func (h *Handshake) SignalFail() {
	_, _ = h.f.Write([]byte{handshakeFail})
}

// Wait blocks for the peer's one-byte message. An EOF (the peer closed
// without writing) is treated the same as an explicit failure marker, so
// the caller can choose to tolerate it rather than wedge.
func (h *Handshake) Wait() error {
	buf := make([]byte, 1)
	n, err := io.ReadFull(h.f, buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return serr.ErrHandshakeFailed
		}
		return serr.Wrap(err, serr.ErrInternal, "handshake read")
	}
	if n == 1 && buf[0] == handshakeFail {
		return serr.ErrHandshakeFailed
	}
	return nil
}
