//go:build !linux

package affinity

import "errors"

func pinPlatform(cpuID int) error {
	return errors.New("affinity: CPU pinning is not supported on this platform")
}

func numaNodesPlatform() int {
	return 1
}

func currentNodePlatform() int {
	return -1
}
