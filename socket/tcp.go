// Package socket additions in this file create and accept raw TCP
// connections, grounded on the non-blocking AF_INET/AF_INET6 socket
// setup in the teacher's internal/transport/transport_linux.go
// (unix.Socket with SOCK_NONBLOCK, TCP_NODELAY) generalized into the
// {Listen, Tcp} members of spec §9's socket trait family, and wired
// through golang.org/x/sys/unix the same way network.Driver uses it
// for epoll.
package socket

import "fmt"

const defaultListenBacklog = 1024

// Listener is a non-blocking TCP listening socket. Its OnReadable
// hook (installed by the caller before registering it with a network
// driver) should call Accept in a loop until it returns
// IsWouldBlock(err).
type Listener struct {
	*Base
}

// ListenTCP creates, binds, and listens on addr. onReadable, if
// non-nil, becomes the listener's OnReadable hook (typically an
// accept loop that calls Accept until IsWouldBlock).
func ListenTCP(addr Address, onReadable func(*Base)) (*Listener, error) {
	fd, err := bindAndListen(addr, defaultListenBacklog)
	if err != nil {
		return nil, fmt.Errorf("socket: ListenTCP %s: %w", addr, err)
	}
	return &Listener{Base: NewBase(fd, addr, "listen-tcp", Callbacks{OnReadable: onReadable})}, nil
}

// Accept performs one non-blocking accept, returning a new established
// TCP socket wrapping the connection. Callers should keep calling
// Accept from their OnReadable hook until IsWouldBlock(err) is true,
// since the listening socket's readiness is edge-triggered.
func (l *Listener) Accept(cb Callbacks) (*Base, error) {
	fd, peer, err := acceptOne(l.FD)
	if err != nil {
		return nil, err
	}
	conn := NewBase(fd, peer, "tcp", cb)
	conn.MarkEstablished()
	return conn, nil
}

// Close releases the listening socket's file descriptor.
func (l *Listener) Close() error {
	return closeFD(l.FD)
}

// DialTCP opens a non-blocking TCP connection to addr. The connection
// completes asynchronously; callers should register the returned
// socket with a network driver and wait for the first OnWritable
// notification before treating it as established (matching
// MarkEstablished's "first writable notification: connected" contract
// documented on socket.Base).
func DialTCP(addr Address, cb Callbacks) (*Base, error) {
	fd, err := connectTCP(addr)
	if err != nil {
		return nil, fmt.Errorf("socket: DialTCP %s: %w", addr, err)
	}
	return NewBase(fd, addr, "tcp", cb), nil
}

// ReadInto reads directly from the underlying fd into buf. Returns
// errWouldBlock (check with IsWouldBlock) when there is nothing to
// read right now.
func (s *Base) ReadInto(buf []byte) (int, error) {
	return readFD(s.FD, buf)
}

// WriteFrom writes directly to the underlying fd from buf. Returns
// errWouldBlock (check with IsWouldBlock) when the socket buffer is
// full; the caller should buffer the remainder via Write and wait for
// the next OnWritable notification.
func (s *Base) WriteFrom(buf []byte) (int, error) {
	return writeFD(s.FD, buf)
}

// CloseFD releases the socket's underlying file descriptor. Call only
// after the driver has erased its registration (or the socket was
// never registered).
func (s *Base) CloseFD() error {
	return closeFD(s.FD)
}
