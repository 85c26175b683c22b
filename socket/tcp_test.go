//go:build linux

package socket

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func localAddr(t *testing.T, fd int) Address {
	t.Helper()
	sa, err := unix.Getsockname(fd)
	if err != nil {
		t.Fatalf("Getsockname: %v", err)
	}
	return addressFromSockaddr(sa)
}

func TestListenDialAcceptEchoLoopback(t *testing.T) {
	addr := NewAddress(IPv4Loopback.IP(), 0)
	ln, err := ListenTCP(addr, nil)
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	defer ln.Close()

	boundAddr := localAddr(t, ln.FD)

	client, err := DialTCP(boundAddr, Callbacks{})
	if err != nil {
		t.Fatalf("DialTCP: %v", err)
	}
	defer client.CloseFD()

	// Give the kernel a moment to complete the handshake before
	// accepting; a production driver would instead wait for epoll
	// readiness on both sides.
	time.Sleep(20 * time.Millisecond)

	server, err := ln.Accept(Callbacks{})
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer server.CloseFD()

	msg := []byte("hello")
	if _, err := client.WriteFrom(msg); err != nil {
		t.Fatalf("WriteFrom: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	buf := make([]byte, 16)
	n, err := server.ReadInto(buf)
	if err != nil {
		t.Fatalf("ReadInto: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Errorf("got %q, want hello", buf[:n])
	}
}

func TestAcceptWithNoPendingConnectionWouldBlock(t *testing.T) {
	addr := NewAddress(IPv4Loopback.IP(), 0)
	ln, err := ListenTCP(addr, nil)
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	defer ln.Close()

	_, err = ln.Accept(Callbacks{})
	if !IsWouldBlock(err) {
		t.Errorf("expected would-block, got %v", err)
	}
}

func TestListenUDPSendRecv(t *testing.T) {
	serverAddr := NewAddress(IPv4Loopback.IP(), 0)
	server, err := ListenUDP(serverAddr, Callbacks{})
	if err != nil {
		t.Fatalf("ListenUDP server: %v", err)
	}
	defer server.CloseFD()
	boundServerAddr := localAddr(t, server.FD)

	client, err := ListenUDP(NewAddress(IPv4Loopback.IP(), 0), Callbacks{})
	if err != nil {
		t.Fatalf("ListenUDP client: %v", err)
	}
	defer client.CloseFD()

	if _, err := client.SendTo([]byte("packet 1"), boundServerAddr); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	buf := make([]byte, 32)
	n, _, err := server.RecvFrom(buf)
	if err != nil {
		t.Fatalf("RecvFrom: %v", err)
	}
	if string(buf[:n]) != "packet 1" {
		t.Errorf("got %q", buf[:n])
	}
}
