//go:build linux

package network

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/lhmouse/poseidon/socket"
)

func dialPipe(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	return fds[0], fds[1]
}

func TestInsertAndReadable(t *testing.T) {
	d, err := NewDriver(nil)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	defer d.Stop()
	go d.Run()

	a, b := dialPipe(t)
	defer unix.Close(b)

	done := make(chan struct{})
	sock := socket.NewBase(a, socket.Address{}, "tcp", socket.Callbacks{
		OnReadable: func(s *socket.Base) {
			buf := make([]byte, 64)
			n, _ := unix.Read(s.FD, buf)
			if n > 0 {
				s.AppendRead(buf[:n])
				close(done)
			}
		},
	})
	if err := d.Insert(sock); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if _, err := unix.Write(b, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("readable callback never fired")
	}
	if got := string(sock.DrainRead()); got != "hello" {
		t.Errorf("read queue = %q, want hello", got)
	}
}

func TestHangUpMarksClosed(t *testing.T) {
	d, err := NewDriver(nil)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	defer d.Stop()
	go d.Run()

	a, b := dialPipe(t)

	closed := make(chan struct{})
	sock := socket.NewBase(a, socket.Address{}, "tcp", socket.Callbacks{
		OnClosed: func(s *socket.Base) { close(closed) },
	})
	if err := d.Insert(sock); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	unix.Close(b)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("OnClosed never fired after peer hang-up")
	}
	if sock.State() != socket.Closed {
		t.Errorf("state = %v, want Closed", sock.State())
	}
}

func TestCookieRejectsStaleSlot(t *testing.T) {
	idx, gen := 3, uint64(7)
	c := cookie(idx, gen)
	gotIdx, gotGen := splitCookie(c)
	if gotIdx != idx || gotGen != gen {
		t.Fatalf("splitCookie(cookie(%d, %d)) = (%d, %d)", idx, gen, gotIdx, gotGen)
	}
}
