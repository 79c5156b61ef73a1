// Package types defines the core domain model shared across parabola packages.
package types

// Request is one ephemeris evaluation: a body at an instant.
type Request struct {
	JD     float64 `json:"jd"`     // Julian day (UT)
	Target int     `json:"target"` // Body code (0 = Sun ... 9 = Pluto, MinorOffset+n for minor bodies)
	Flags  int     `json:"flags"`  // Calculation flag bitmask
}

// Result is produced exactly once per Request.
// ErrCode is 0 on success and negative on failure, in which case ErrMsg is non-empty.
type Result struct {
	Target  int        `json:"target"`
	Values  [6]float64 `json:"values"` // lon, lat, dist, lon speed, lat speed, dist speed
	ErrCode int        `json:"err_code"`
	ErrMsg  string     `json:"err_msg,omitempty"`
}

// OK reports whether the evaluation succeeded.
func (r Result) OK() bool {
	return r.ErrCode >= 0
}

// WorkerIdentity is the per-worker registration handle with the routine's slot table.
type WorkerIdentity int

// PoolState is the lifecycle state of a worker pool.
type PoolState string

const (
	PoolRunning  PoolState = "running"  // Workers accept and execute tasks
	PoolDraining PoolState = "draining" // Workers finish queued tasks before exiting
	PoolStopped  PoolState = "stopped"  // Terminal: workers joined, submissions rejected
	PoolFailed   PoolState = "failed"   // No workers after a failed resize; a later Resize may recover
)

// TuningSample is one autotuning trial.
type TuningSample struct {
	Threads    int     `json:"threads" yaml:"threads"`
	Throughput float64 `json:"throughput" yaml:"throughput"` // requests per second
}
