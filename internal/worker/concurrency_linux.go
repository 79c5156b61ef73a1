//go:build linux

package worker

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// DefaultConcurrency returns the number of CPUs this process may run on,
// honouring the scheduler affinity mask (cgroups, taskset).
func DefaultConcurrency() int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err == nil {
		if n := set.Count(); n > 0 {
			return n
		}
	}
	return runtime.NumCPU()
}
