//go:build linux

package gate

import (
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	g, err := New("pmc-test-gate")
	if err != nil {
		t.Skipf("memfd unavailable: %v", err)
	}
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestNewGateStartsOpen(t *testing.T) {
	g := newTestGate(t)
	if !g.IsOpen() {
		t.Fatalf("new gate should be open")
	}
	if err := g.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if g.IsOpen() {
		t.Fatalf("acquired gate should be closed")
	}
	if err := g.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if !g.IsOpen() {
		t.Fatalf("released gate should be open")
	}
}

func TestPassBlocksUntilRelease(t *testing.T) {
	g := newTestGate(t)
	if err := g.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- g.Pass() }()

	select {
	case err := <-done:
		t.Fatalf("pass returned before release: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if err := g.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("pass: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("pass did not return after release")
	}
	if !g.IsOpen() {
		t.Fatalf("pass should leave the gate open")
	}
}

func TestOpenSharesState(t *testing.T) {
	g := newTestGate(t)
	fd, err := unix.Dup(int(g.File().Fd()))
	if err != nil {
		t.Fatalf("dup: %v", err)
	}
	peer, err := Open(os.NewFile(uintptr(fd), "peer-gate"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer peer.Close()

	if err := g.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if peer.IsOpen() {
		t.Fatalf("peer mapping should observe the closed gate")
	}
	if err := g.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := peer.Pass(); err != nil {
		t.Fatalf("peer pass: %v", err)
	}
}
