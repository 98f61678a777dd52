package infra

// The platform thread-optimization hooks below are advisory: correctness
// of the pipeline never depends on them succeeding. internal/transport's
// read loop calls them once at the top of Run, the Go analog of the
// original's runIO calling ThreadUtils::optimizeForHFT before its service
// loop. On every platform they are silent no-ops: no syscall is made.

// PinCurrentThread is the hook for pinning the calling OS thread to the
// given logical CPU index. It pins nothing and always returns nil; any
// returned error is advisory only, and callers proceed regardless.
func PinCurrentThread(cpu int) error {
	return nil
}

// ElevateCurrentThreadPriority is the hook for raising the calling OS
// thread's scheduling priority. It changes nothing and always returns nil.
func ElevateCurrentThreadPriority() error {
	return nil
}

// PreferredNUMANode reports which NUMA node the caller should prefer for
// allocations. No NUMA topology is queried; it always returns -1
// (no preference).
func PreferredNUMANode() int {
	return -1
}
