//go:build linux

package socket

import (
	"net"
	"testing"
	"time"
)

func TestUDPMulticastJoinLoopbackReceivesOwnSend(t *testing.T) {
	recvr, err := ListenUDP(NewAddress(net.IPv4zero, 0), Callbacks{})
	if err != nil {
		t.Fatalf("ListenUDP recvr: %v", err)
	}
	defer recvr.CloseFD()
	boundAddr := localAddr(t, recvr.FD)

	group := net.ParseIP("224.0.0.251")
	if err := recvr.JoinMulticastGroup(group, ""); err != nil {
		t.Fatalf("JoinMulticastGroup: %v", err)
	}
	defer recvr.LeaveMulticastGroup(group, "")

	if err := recvr.SetMulticastLoopback(true); err != nil {
		t.Fatalf("SetMulticastLoopback: %v", err)
	}
	if err := recvr.SetMulticastTTL(1); err != nil {
		t.Fatalf("SetMulticastTTL: %v", err)
	}

	sender, err := ListenUDP(NewAddress(net.IPv4zero, 0), Callbacks{})
	if err != nil {
		t.Fatalf("ListenUDP sender: %v", err)
	}
	defer sender.CloseFD()
	if err := sender.SetMulticastLoopback(true); err != nil {
		t.Fatalf("SetMulticastLoopback sender: %v", err)
	}

	groupAddr := NewAddress(group, boundAddr.Port())
	if _, err := sender.SendTo([]byte("multicast packet"), groupAddr); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	buf := make([]byte, 32)
	n, _, err := recvr.RecvFrom(buf)
	if err != nil {
		t.Fatalf("RecvFrom: %v", err)
	}
	if string(buf[:n]) != "multicast packet" {
		t.Errorf("got %q, want multicast packet", buf[:n])
	}
}

func TestUDPMulticastLeaveGroup(t *testing.T) {
	recvr, err := ListenUDP(NewAddress(net.IPv4zero, 0), Callbacks{})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer recvr.CloseFD()

	group := net.ParseIP("224.0.0.252")
	if err := recvr.JoinMulticastGroup(group, ""); err != nil {
		t.Fatalf("JoinMulticastGroup: %v", err)
	}
	if err := recvr.LeaveMulticastGroup(group, ""); err != nil {
		t.Fatalf("LeaveMulticastGroup: %v", err)
	}
}
