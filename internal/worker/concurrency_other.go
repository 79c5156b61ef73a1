//go:build !linux

package worker

import "runtime"

// DefaultConcurrency returns the number of logical CPUs.
func DefaultConcurrency() int {
	return runtime.NumCPU()
}
