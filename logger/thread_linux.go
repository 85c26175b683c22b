//go:build linux

package logger

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func syscallTID() int {
	return unix.Gettid()
}

// currentThreadName reads the calling thread's comm via prctl(PR_GET_NAME),
// the same syscall glibc's pthread_getname_np wraps.
func currentThreadName() string {
	const prGetName = 16
	buf := make([]byte, 16)
	_, _, errno := unix.Syscall6(unix.SYS_PRCTL, prGetName, uintptr(unsafe.Pointer(&buf[0])), 0, 0, 0, 0)
	if errno != 0 {
		return "unknown"
	}
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	if n == 0 {
		return "unknown"
	}
	return string(buf[:n])
}
