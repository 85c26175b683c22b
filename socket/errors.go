package socket

import "errors"

// errWouldBlock signals a non-blocking syscall had nothing to do
// right now; callers treat it as "not an error, try later", matching
// the teacher's transport_linux.go EAGAIN/EWOULDBLOCK handling in
// Recv().
var errWouldBlock = errors.New("socket: operation would block")

// errUnsupported marks the raw fd layer as unavailable on this
// platform (non-Linux), mirroring network.errUnsupported.
var errUnsupported = errors.New("socket: raw fd operations require linux")

// IsWouldBlock reports whether err is the "try again" sentinel a
// non-blocking read/write/accept returns when there is nothing ready.
func IsWouldBlock(err error) bool {
	return errors.Is(err, errWouldBlock)
}
