package runtime

import (
	"os/exec"
	"testing"
	"time"
)

func TestProc_ParkReturnsExitCode(t *testing.T) {
	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start /usr/bin/true in this environment: %v", err)
	}
	p := NewProc(cmd.Process.Pid)

	done := make(chan int, 1)
	go func() { done <- p.Park() }()

	select {
	case code := <-done:
		if code != 0 {
			t.Errorf("Park() = %d, want 0", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Park() did not return")
	}
}

func TestProc_ParkIdempotentAfterReap(t *testing.T) {
	cmd := exec.Command("false")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start /usr/bin/false in this environment: %v", err)
	}
	p := NewProc(cmd.Process.Pid)

	first := p.Park()
	second := p.Park()
	if first != second {
		t.Errorf("Park() called twice returned %d then %d, want identical", first, second)
	}
}

func TestProc_PidAccessor(t *testing.T) {
	p := NewProc(4242)
	if p.Pid() != 4242 {
		t.Errorf("Pid() = %d, want 4242", p.Pid())
	}
}
