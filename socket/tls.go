// Package socket additions in this file implement the Tls socket
// specialisation named among spec §9's trait family
// ({Listen, Tcp, Udp, Tls, HttpServer, HttpClient, WsServer, WsClient}):
// a stream socket whose bytes are encrypted end-to-end, layering the
// HTTPS/WSS variants named in spec §4.4 on top of it.
//
// crypto/tls has no epoll-compatible non-blocking handshake API, so a
// TlsStream bridges its raw fd into the Go runtime's netpoller (the
// documented os.NewFile + net.FileConn idiom for wrapping an existing
// fd as a pollable net.Conn) and drives the handshake and read loop
// from one dedicated goroutine per connection, instead of the
// epoll-driven single-goroutine path network.Driver uses for plain
// Tcp/Udp sockets. Decrypted bytes flow into the same AppendRead/
// FireReadable queue Base already exposes, so a caller's OnReadable
// hook observes a TlsStream exactly like a plain one (via DrainRead
// instead of ReadInto).
//
// Grounded on the one-goroutine-per-long-running-component shape
// network/driver.go's own doc comment describes, generalized from "one
// driver, one goroutine" to "one TLS session, one pump goroutine".
package socket

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"sync"
)

// TlsStream is an established or handshaking TLS-wrapped stream
// socket. It embeds Base for Peer/Name/state/callbacks, but overrides
// Write, CloseFD (and never uses ReadInto/WriteFrom: those would read
// or write raw ciphertext past the TLS layer).
type TlsStream struct {
	*Base

	file    *os.File
	conn    *tls.Conn
	writeMu sync.Mutex
}

const tlsReadBufferSize = 16384

// newTlsStream bridges fd into the runtime netpoller. build wraps the
// resulting net.Conn as either a TLS server or client session. The
// handshake does not begin until the caller invokes Start: returning a
// not-yet-started TlsStream lets a caller finish wiring it up (e.g.
// capturing the returned pointer in its own OnWritable hook) before
// any callback can possibly fire, instead of racing a goroutine
// started here against the caller's use of the value this function
// returns.
func newTlsStream(fd int, peer Address, name string, cb Callbacks, build func(net.Conn) *tls.Conn) (*TlsStream, error) {
	file := os.NewFile(uintptr(fd), name)
	if file == nil {
		return nil, fmt.Errorf("socket: tls: invalid fd %d", fd)
	}

	// net.FileConn dups fd internally; closing the returned net.Conn
	// does not close file; either close file (released with the fd we
	// were given) or the dup (held inside the tls.Conn) frees only
	// itself. TlsStream.CloseFD below must close both.
	netConn, err := net.FileConn(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("socket: tls: FileConn: %w", err)
	}

	return &TlsStream{
		Base: NewBase(fd, peer, name, cb),
		file: file,
		conn: build(netConn),
	}, nil
}

// NewTlsClient wraps fd (already connected, e.g. by connectTCP) in a
// client-side TLS session; the handshake and the pump goroutine start
// only when Start is called. cfg.NextProtos, if set, is this
// connection's ALPN offer.
func NewTlsClient(fd int, peer Address, cfg *tls.Config, cb Callbacks) (*TlsStream, error) {
	return newTlsStream(fd, peer, "tls-client", cb, func(c net.Conn) *tls.Conn {
		return tls.Client(c, cfg)
	})
}

// NewTlsServer wraps fd (already accepted, e.g. by Listener.Accept) in
// a server-side TLS session; the handshake and the pump goroutine start
// only when Start is called. cfg is expected to carry a GetConfigForClient hook built
// from an ALPNSelector when the caller wants protocol negotiation.
func NewTlsServer(fd int, peer Address, cfg *tls.Config, cb Callbacks) (*TlsStream, error) {
	return newTlsStream(fd, peer, "tls-server", cb, func(c net.Conn) *tls.Conn {
		return tls.Server(c, cfg)
	})
}

// WrapServerTLS upgrades an already-accepted plaintext connection
// (typically from Listener.Accept) into a server-side TLS session.
// Ownership of conn's fd transfers to the returned TlsStream; callers
// must not use or close conn afterward, and must not register conn
// with a network.Driver (the TlsStream's pump goroutine owns its I/O
// instead of the driver's epoll loop).
func WrapServerTLS(conn *Base, cfg *tls.Config, cb Callbacks) (*TlsStream, error) {
	return NewTlsServer(conn.FD, conn.Peer, cfg, cb)
}

// DialTLS opens a non-blocking TCP connection to addr and wraps it in a
// client-side TLS session; the handshake begins when Start is called.
// Like WrapServerTLS, the
// returned TlsStream must not also be registered with a
// network.Driver's epoll instance.
func DialTLS(addr Address, cfg *tls.Config, cb Callbacks) (*TlsStream, error) {
	fd, err := connectTCP(addr)
	if err != nil {
		return nil, fmt.Errorf("socket: DialTLS %s: %w", addr, err)
	}
	return NewTlsClient(fd, addr, cfg, cb)
}

// Start performs the TLS handshake (a blocking round trip) and, on
// success, fires OnWritable once — mirroring DialTCP's "first
// OnWritable means connected" contract (spec §8 end-to-end scenarios
// name this the "connected" callback) — then spawns the goroutine that
// pumps decrypted reads into the read queue until the session ends.
// Start blocks its caller for the handshake; a server accepting many
// connections on one goroutine should call it as `go ts.Start()`
// instead of calling it inline.
func (ts *TlsStream) Start() error {
	if err := ts.conn.Handshake(); err != nil {
		ts.MarkClosed()
		return fmt.Errorf("socket: tls: handshake: %w", err)
	}
	ts.MarkEstablished()
	ts.FireWritable()
	go ts.pump()
	return nil
}

func (ts *TlsStream) pump() {
	buf := make([]byte, tlsReadBufferSize)
	for {
		n, err := ts.conn.Read(buf)
		if n > 0 {
			ts.AppendRead(buf[:n])
			ts.FireReadable()
		}
		if err != nil {
			ts.MarkClosed()
			return
		}
	}
}

// Write encrypts and sends p synchronously through the TLS session.
// It shadows the embedded Base.Write (which only queues bytes for the
// epoll-driven plain-socket flush path) because a TLS session has no
// such queue: every write must go through tls.Conn so it is encrypted
// before it reaches the wire.
func (ts *TlsStream) Write(p []byte) (int, error) {
	ts.writeMu.Lock()
	defer ts.writeMu.Unlock()
	return ts.conn.Write(p)
}

// ConnectionState exposes the negotiated TLS version, cipher suite,
// peer certificates, and ALPN protocol for this session.
func (ts *TlsStream) ConnectionState() tls.ConnectionState {
	return ts.conn.ConnectionState()
}

// CloseFD releases both descriptors a TlsStream holds: the dup inside
// the wrapped net.Conn (via tls.Conn.Close) and the original fd (via
// file.Close). It shadows the embedded Base.CloseFD, which would only
// close the original fd and leave the dup alive.
func (ts *TlsStream) CloseFD() error {
	connErr := ts.conn.Close()
	fileErr := ts.file.Close()
	if connErr != nil {
		return connErr
	}
	return fileErr
}
