//go:build linux

package affinity

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

func pinPlatform(cpuID int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	return unix.SchedSetaffinity(0, &set)
}

var (
	nodeCountOnce sync.Once
	nodeCount     int
)

// numaNodesPlatform counts entries under /sys/devices/system/node/nodeN.
// This mirrors what libnuma itself reads, without linking against it.
func numaNodesPlatform() int {
	nodeCountOnce.Do(func() {
		entries, err := os.ReadDir("/sys/devices/system/node")
		if err != nil {
			nodeCount = 1
			return
		}
		n := 0
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), "node") {
				if _, err := strconv.Atoi(strings.TrimPrefix(e.Name(), "node")); err == nil {
					n++
				}
			}
		}
		if n == 0 {
			n = 1
		}
		nodeCount = n
	})
	return nodeCount
}

func currentNodePlatform() int {
	cpu, err := unix.SchedGetcpu()
	if err != nil {
		return -1
	}
	path, err := filepath.Glob("/sys/devices/system/node/node*/cpu" + strconv.Itoa(cpu))
	if err != nil || len(path) == 0 {
		return -1
	}
	// path looks like .../node3/cpu7
	dir := filepath.Dir(path[0])
	base := filepath.Base(dir)
	n, err := strconv.Atoi(strings.TrimPrefix(base, "node"))
	if err != nil {
		return -1
	}
	return n
}
