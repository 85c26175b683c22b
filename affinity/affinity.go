// Package affinity pins goroutines/OS threads to CPU cores and reports
// NUMA topology; within this module only pool calls into it.
//
// Platform-specific work is isolated behind build tags; the Linux
// implementation uses golang.org/x/sys/unix directly (no cgo, no libnuma
// dependency) so the runtime stays a single static binary.
package affinity

// Pin binds the calling OS thread to cpuID. Callers must have already
// called runtime.LockOSThread(); Pin does not do so itself since the
// caller usually needs the lock held across more than just this call.
func Pin(cpuID int) error {
	return pinPlatform(cpuID)
}

// NUMANodes returns the number of NUMA nodes visible to this process.
// Returns 1 on platforms or machines without NUMA topology information.
func NUMANodes() int {
	return numaNodesPlatform()
}

// CurrentNode returns the NUMA node the calling thread is currently
// scheduled on, or -1 if it cannot be determined.
func CurrentNode() int {
	return currentNodePlatform()
}

// NormalizeCPU clamps requested into [0, maxCPUs), falling back
// to 0 for negative or out-of-range values.
func NormalizeCPU(requested, maxCPUs int) int {
	if maxCPUs < 1 || requested < 0 || requested >= maxCPUs {
		return 0
	}
	return requested
}

// NormalizeNode clamps requested into [0, NUMANodes()), falling back to
// 0 for negative, out-of-range, or unknown topology.
func NormalizeNode(requested int) int {
	nodes := NUMANodes()
	if nodes < 1 || requested < 0 || requested >= nodes {
		return 0
	}
	return requested
}
