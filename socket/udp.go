// Package socket additions in this file implement the Udp
// specialisation's multicast group management (spec §4.4: "group
// address, TTL, loopback flag, optional interface name"), layered on
// the IP_ADD_MEMBERSHIP/IPV6_JOIN_GROUP family of sockopts in
// socket/raw_linux.go.
package socket

import (
	"fmt"
	"net"
)

// ListenUDP binds a non-blocking UDP socket to addr. UDP has no
// connection/accept step, so the returned socket is immediately
// Established and callers read datagrams via RecvFrom from its
// OnReadable hook.
func ListenUDP(addr Address, cb Callbacks) (*Base, error) {
	fd, err := bindUDP(addr)
	if err != nil {
		return nil, fmt.Errorf("socket: ListenUDP %s: %w", addr, err)
	}
	s := NewBase(fd, addr, "udp", cb)
	s.MarkEstablished()
	return s, nil
}

// RecvFrom reads one datagram and its source address. Returns
// errWouldBlock (check with IsWouldBlock) when nothing is pending.
func (s *Base) RecvFrom(buf []byte) (n int, peer Address, err error) {
	return recvfromUDP(s.FD, buf)
}

// SendTo writes one datagram to peer.
func (s *Base) SendTo(buf []byte, peer Address) (int, error) {
	return sendtoUDP(s.FD, buf, peer)
}

// JoinMulticastGroup joins the multicast group at group, restricting
// membership to the interface named iface when iface is non-empty
// ("" lets the kernel pick the default multicast-capable interface).
// group may be IPv4 or IPv6; the underlying sockopt family
// (IP_ADD_MEMBERSHIP vs IPV6_JOIN_GROUP) is chosen accordingly.
func (s *Base) JoinMulticastGroup(group net.IP, iface string) error {
	if err := multicastMembership(s.FD, group, iface, true); err != nil {
		return fmt.Errorf("socket: JoinMulticastGroup %s: %w", group, err)
	}
	return nil
}

// LeaveMulticastGroup reverses a prior JoinMulticastGroup for the same
// group/iface pair.
func (s *Base) LeaveMulticastGroup(group net.IP, iface string) error {
	if err := multicastMembership(s.FD, group, iface, false); err != nil {
		return fmt.Errorf("socket: LeaveMulticastGroup %s: %w", group, err)
	}
	return nil
}

// SetMulticastTTL sets the TTL (IPv4) / hop limit (IPv6) stamped on
// datagrams this socket sends to a multicast group. The kernel default
// is 1 (link-local only).
func (s *Base) SetMulticastTTL(ttl int) error {
	if err := setMulticastTTL(s.FD, ttl); err != nil {
		return fmt.Errorf("socket: SetMulticastTTL: %w", err)
	}
	return nil
}

// SetMulticastLoopback controls whether datagrams this socket sends to
// a multicast group it has itself joined are looped back to its own
// receive queue. The kernel default is enabled.
func (s *Base) SetMulticastLoopback(enabled bool) error {
	if err := setMulticastLoopback(s.FD, enabled); err != nil {
		return fmt.Errorf("socket: SetMulticastLoopback: %w", err)
	}
	return nil
}
