//go:build linux

package socket

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// sockaddrFor converts an Address into the unix.Sockaddr variant
// EpollCtl-registered fds expect, matching the AF_INET/AF_INET6
// split the teacher's transport_linux.go makes at socket-creation
// time (unix.Socket(unix.AF_INET, ...)), generalized here to also
// support IPv6 since Address is always an IPv4-mapped-IPv6 value.
func sockaddrFor(a Address) unix.Sockaddr {
	if a.IsIPv4() {
		ip4 := a.IP().To4()
		var sa unix.SockaddrInet4
		copy(sa.Addr[:], ip4)
		sa.Port = int(a.Port())
		return &sa
	}
	var sa unix.SockaddrInet6
	addr := a.Addr()
	copy(sa.Addr[:], addr[:])
	sa.Port = int(a.Port())
	return &sa
}

func addressFromSockaddr(sa unix.Sockaddr) Address {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return NewAddress(net.IP(v.Addr[:]), uint16(v.Port))
	case *unix.SockaddrInet6:
		ip := make(net.IP, 16)
		copy(ip, v.Addr[:])
		return NewAddress(ip, uint16(v.Port))
	default:
		return Invalid
	}
}

func newNonblockingSocket(a Address, typ, proto int) (int, error) {
	domain := unix.AF_INET6
	if a.IsIPv4() {
		domain = unix.AF_INET
	}
	fd, err := unix.Socket(domain, typ|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, proto)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	return fd, nil
}

// bindAndListen creates, binds, and listens on a TCP socket for addr.
func bindAndListen(addr Address, backlog int) (int, error) {
	fd, err := newNonblockingSocket(addr, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}
	if err := unix.Bind(fd, sockaddrFor(addr)); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind %s: %w", addr, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen %s: %w", addr, err)
	}
	return fd, nil
}

// acceptOne performs one non-blocking accept4. errWouldBlock is
// returned (unwrapped) when there is nothing to accept right now; the
// caller's readable callback should loop until it sees this.
func acceptOne(listenFD int) (fd int, peer Address, err error) {
	nfd, sa, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return -1, Address{}, errWouldBlock
		}
		return -1, Address{}, fmt.Errorf("accept4: %w", err)
	}
	_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return nfd, addressFromSockaddr(sa), nil
}

func bindUDP(addr Address) (int, error) {
	fd, err := newNonblockingSocket(addr, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return -1, err
	}
	if err := unix.Bind(fd, sockaddrFor(addr)); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind %s: %w", addr, err)
	}
	return fd, nil
}

func connectTCP(addr Address) (int, error) {
	fd, err := newNonblockingSocket(addr, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}
	if err := unix.Connect(fd, sockaddrFor(addr)); err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return -1, fmt.Errorf("connect %s: %w", addr, err)
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return fd, nil
}

func readFD(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, errWouldBlock
		}
		return 0, err
	}
	return n, nil
}

func writeFD(fd int, buf []byte) (int, error) {
	n, err := unix.Write(fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, errWouldBlock
		}
		return 0, err
	}
	return n, nil
}

func closeFD(fd int) error {
	return unix.Close(fd)
}

func recvfromUDP(fd int, buf []byte) (n int, peer Address, err error) {
	n, _, _, sa, err := unix.Recvmsg(fd, buf, nil, unix.MSG_DONTWAIT)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, Address{}, errWouldBlock
		}
		return 0, Address{}, err
	}
	if sa == nil {
		return n, Address{}, nil
	}
	return n, addressFromSockaddr(sa), nil
}

func sendtoUDP(fd int, buf []byte, peer Address) (int, error) {
	err := unix.Sendto(fd, buf, unix.MSG_DONTWAIT, sockaddrFor(peer))
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, errWouldBlock
		}
		return 0, err
	}
	return len(buf), nil
}

// multicastMembership joins or leaves a multicast group, picking the
// IPv4 (IPMreqn, interface selected by index) or IPv6 (IPv6Mreq) sockopt
// family to match group's address form.
func multicastMembership(fd int, group net.IP, iface string, join bool) error {
	var ifIndex int
	if iface != "" {
		ifi, err := net.InterfaceByName(iface)
		if err != nil {
			return fmt.Errorf("interface %q: %w", iface, err)
		}
		ifIndex = ifi.Index
	}

	if ip4 := group.To4(); ip4 != nil {
		mreq := &unix.IPMreqn{Ifindex: int32(ifIndex)}
		copy(mreq.Multiaddr[:], ip4)
		opt := unix.IP_ADD_MEMBERSHIP
		if !join {
			opt = unix.IP_DROP_MEMBERSHIP
		}
		return unix.SetsockoptIPMreqn(fd, unix.IPPROTO_IP, opt, mreq)
	}

	ip6 := group.To16()
	if ip6 == nil {
		return fmt.Errorf("not a valid IPv4 or IPv6 address: %s", group)
	}
	mreq := &unix.IPv6Mreq{Interface: uint32(ifIndex)}
	copy(mreq.Multiaddr[:], ip6)
	opt := unix.IPV6_JOIN_GROUP
	if !join {
		opt = unix.IPV6_LEAVE_GROUP
	}
	return unix.SetsockoptIPv6Mreq(fd, unix.IPPROTO_IPV6, opt, mreq)
}

// setMulticastTTL sets both the IPv4 TTL and IPv6 hop-limit sockopts so
// callers need not know which family fd's local address belongs to;
// the irrelevant one is silently ignored by the kernel when it does not
// apply to the socket's bound family.
func setMulticastTTL(fd int, ttl int) error {
	err4 := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_MULTICAST_TTL, ttl)
	err6 := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_MULTICAST_HOPS, ttl)
	if err4 != nil && err6 != nil {
		return fmt.Errorf("IP_MULTICAST_TTL: %w", err4)
	}
	return nil
}

func setMulticastLoopback(fd int, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	err4 := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_MULTICAST_LOOP, v)
	err6 := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_MULTICAST_LOOP, v)
	if err4 != nil && err6 != nil {
		return fmt.Errorf("IP_MULTICAST_LOOP: %w", err4)
	}
	return nil
}
