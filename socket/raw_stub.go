//go:build !linux

package socket

import "net"

// Raw fd creation is Linux-only, matching the network driver's
// epoll-only readiness multiplexer: there is no portable non-blocking
// socket layer underneath it on other platforms.

func newNonblockingSocket(a Address, typ, proto int) (int, error) { return -1, errUnsupported }
func bindAndListen(addr Address, backlog int) (int, error)        { return -1, errUnsupported }
func acceptOne(listenFD int) (int, Address, error)                 { return -1, Address{}, errUnsupported }
func bindUDP(addr Address) (int, error)                            { return -1, errUnsupported }
func connectTCP(addr Address) (int, error)                         { return -1, errUnsupported }
func readFD(fd int, buf []byte) (int, error)                       { return 0, errUnsupported }
func writeFD(fd int, buf []byte) (int, error)                      { return 0, errUnsupported }
func closeFD(fd int) error                                         { return errUnsupported }
func recvfromUDP(fd int, buf []byte) (int, Address, error)         { return 0, Address{}, errUnsupported }
func sendtoUDP(fd int, buf []byte, peer Address) (int, error)      { return 0, errUnsupported }

func multicastMembership(fd int, group net.IP, iface string, join bool) error {
	return errUnsupported
}
func setMulticastTTL(fd int, ttl int) error          { return errUnsupported }
func setMulticastLoopback(fd int, enabled bool) error { return errUnsupported }
