package netiface

import (
	"os"
	"testing"
	"time"
)

func TestDiscardLoop_StopsOnDone(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		discardLoop(r, done)
		close(finished)
	}()

	close(done)
	w.Close()
	r.Close()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("discardLoop did not stop after the pipe closed")
	}
}

func TestDummyBridgeHandle_CloseCallsCancel(t *testing.T) {
	called := false
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	w.Close()

	h := &DummyBridgeHandle{
		Tap:    &TunTap{Name: "tap0", file: r},
		cancel: func() { called = true },
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !called {
		t.Error("Close() did not invoke cancel")
	}
}
