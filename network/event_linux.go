//go:build linux

package network

import "golang.org/x/sys/unix"

// setEventData/getEventData pack our slot cookie into the epoll_event
// data union, which x/sys/unix exposes as a Fd/Pad int32 pair rather
// than a raw uint64.
func setEventData(ev *unix.EpollEvent, data uint64) {
	ev.Fd = int32(uint32(data))
	ev.Pad = int32(uint32(data >> 32))
}

func getEventData(ev *unix.EpollEvent) uint64 {
	return uint64(uint32(ev.Fd)) | (uint64(uint32(ev.Pad)) << 32)
}
