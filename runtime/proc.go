// Package runtime implements the orchestrator: the double re-exec dance,
// socketpair handshake, and signal-aware wait that together realize the
// five-point policy hook contract.
package runtime

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	serr "sandboxctl/errors"
	"sandboxctl/logging"
)

// Proc is an owned handle to a child PID. Dropping a still-running handle
// (via Kill) sends SIGKILL; Park blocks until the process exits, forwarding
// signals and escalating repeated interrupts.
type Proc struct {
	pid int

	mu       sync.Mutex
	done     bool
	exitCode int
}

// NewProc wraps an already-started child PID.
func NewProc(pid int) *Proc {
	return &Proc{pid: pid}
}

// Pid returns the wrapped process ID.
func (p *Proc) Pid() int {
	return p.pid
}

// Signal delivers sig to the process.
func (p *Proc) Signal(sig syscall.Signal) error {
	if err := unix.Kill(p.pid, sig); err != nil {
		return serr.Wrap(err, serr.ErrOS, "kill")
	}
	return nil
}

// Kill sends SIGKILL, best-effort.
func (p *Proc) Kill() {
	_ = p.Signal(syscall.SIGKILL)
}

// Park blocks until the process exits, forwarding the first two terminating
// signals it receives to the child and escalating to SIGKILL from the
// third onward. Calling Park again after the process has been reaped
// returns the cached exit code immediately without reinstalling handlers.
func (p *Proc) Park() int {
	p.mu.Lock()
	if p.done {
		code := p.exitCode
		p.mu.Unlock()
		return code
	}
	p.mu.Unlock()

	sigCh := make(chan os.Signal, 8)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGCHLD)
	defer signal.Stop(sigCh)

	forwarded := 0
	for {
		var ws syscall.WaitStatus
		wpid, err := syscall.Wait4(p.pid, &ws, syscall.WNOHANG, nil)
		if err == nil && wpid == p.pid {
			code := ws.ExitStatus()
			if ws.Signaled() {
				code = 128 + int(ws.Signal())
			}
			p.mu.Lock()
			p.done = true
			p.exitCode = code
			p.mu.Unlock()
			return code
		}

		sig := <-sigCh
		if sig == syscall.SIGCHLD {
			continue
		}

		forwarded++
		target := sig.(syscall.Signal)
		if forwarded >= 3 {
			target = syscall.SIGKILL
		}
		if err := p.Signal(target); err != nil {
			logging.Default().Warn("failed to forward signal to child", "pid", p.pid, "signal", target, "error", err)
		}
	}
}
