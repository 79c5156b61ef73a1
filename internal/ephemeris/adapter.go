// ============================================================================
// Parabola Ephemeris Adapter - Lifecycle Around the Routine
// ============================================================================
//
// Package: internal/ephemeris
// File: adapter.go
// Purpose: One-shot initialization, per-worker registration and release of
//          the routine's global state.
//
// State machine:
//
//   Uninitialized ──Initialize──▶ Initializing ──probe ok──▶ Ready
//                                      │                       │
//                                  probe fails            BeginDrain
//                                      ▼                       ▼
//                              (sticky error)              Draining ──Close──▶ Closed
//
// Concurrent Initialize callers block on the winner and observe either Ready
// or the same error. Registration and Compute require Ready or Draining;
// anything after Closed is a logic fault.
//
// ============================================================================

package ephemeris

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ChuLiYu/parabola/pkg/types"
)

// State is the adapter lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	// ErrValidation means the initialization probe reported an error code.
	ErrValidation = errors.New("ephemeris initialization failed")
	// ErrNotReady means the adapter was used before a successful Initialize.
	ErrNotReady = errors.New("ephemeris adapter not initialized")
	// ErrClosed means the adapter was used after Close.
	ErrClosed = errors.New("ephemeris adapter closed")
	// ErrSlotExhausted means the routine refused to attach another slot.
	ErrSlotExhausted = errors.New("ephemeris slot table exhausted")
)

// probeIdentity is the slot used by the validation call; worker identities
// start above it.
const probeIdentity = 0

// Adapter owns a Routine's global state.
type Adapter struct {
	routine Routine
	log     *slog.Logger

	initMu  sync.Mutex // serializes Initialize
	state   atomic.Int32
	initErr error
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithLogger sets the adapter's logger.
func WithLogger(l *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		if l != nil {
			a.log = l
		}
	}
}

// NewAdapter wraps routine. The routine must not be used directly afterwards.
func NewAdapter(routine Routine, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		routine: routine,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns the current lifecycle state.
func (a *Adapter) State() State {
	return State(a.state.Load())
}

// Initialize sets the data path and runs the validation probe. Only the
// first call does any work; later calls return its outcome.
func (a *Adapter) Initialize(dataPath string) error {
	a.initMu.Lock()
	defer a.initMu.Unlock()

	switch a.State() {
	case StateReady, StateDraining:
		return nil
	case StateClosed:
		return ErrClosed
	}
	if a.initErr != nil {
		return a.initErr
	}

	a.state.Store(int32(StateInitializing))
	if err := a.initialize(dataPath); err != nil {
		a.initErr = err
		a.state.Store(int32(StateUninitialized))
		a.log.Error("Ephemeris initialization failed", "data_path", dataPath, "error", err)
		return err
	}

	a.state.Store(int32(StateReady))
	a.log.Info("Ephemeris initialized", "data_path", dataPath)
	return nil
}

func (a *Adapter) initialize(dataPath string) error {
	if err := a.routine.SetDataPath(dataPath); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := a.routine.AttachSlot(probeIdentity); err != nil {
		return fmt.Errorf("%w: attach probe slot: %v", ErrValidation, err)
	}
	defer a.routine.DetachSlot(probeIdentity)

	var xx [6]float64
	code, msg := a.routine.Calc(probeIdentity, J2000, Sun, FlagSpeed, &xx)
	if code < 0 {
		return fmt.Errorf("%w: probe returned %d: %s", ErrValidation, code, msg)
	}
	return nil
}

// Register attaches the routine slot for id and returns the session that
// owns it. The session must only be used by the calling worker.
func (a *Adapter) Register(id types.WorkerIdentity) (*Session, error) {
	if err := a.usable(); err != nil {
		return nil, err
	}
	if err := a.routine.AttachSlot(int(id)); err != nil {
		return nil, fmt.Errorf("%w: identity %d: %v", ErrSlotExhausted, id, err)
	}
	return &Session{adapter: a, id: id}, nil
}

// BeginDrain marks the adapter as draining. Sessions keep working so queued
// work can finish.
func (a *Adapter) BeginDrain() {
	a.state.CompareAndSwap(int32(StateReady), int32(StateDraining))
}

// Close releases the routine. A second call is a logic fault.
func (a *Adapter) Close() error {
	a.initMu.Lock()
	defer a.initMu.Unlock()

	if a.State() == StateClosed {
		return ErrClosed
	}
	a.state.Store(int32(StateClosed))
	if err := a.routine.Close(); err != nil {
		return fmt.Errorf("failed to close ephemeris routine: %w", err)
	}
	a.log.Info("Ephemeris closed")
	return nil
}

func (a *Adapter) usable() error {
	switch a.State() {
	case StateReady, StateDraining:
		return nil
	case StateClosed:
		return ErrClosed
	default:
		return ErrNotReady
	}
}

// Session is a worker's registered view of the routine.
type Session struct {
	adapter  *Adapter
	id       types.WorkerIdentity
	released bool
}

// Identity returns the registered worker identity.
func (s *Session) Identity() types.WorkerIdentity {
	return s.id
}

// Compute evaluates one request. Domain failures are reported in the
// result; the error is reserved for adapter misuse.
func (s *Session) Compute(req types.Request) (res types.Result, err error) {
	if err := s.adapter.usable(); err != nil {
		return types.Result{}, err
	}
	if s.released {
		return types.Result{}, fmt.Errorf("%w: identity %d released", ErrNotReady, s.id)
	}

	res.Target = req.Target
	defer func() {
		if r := recover(); r != nil {
			res.Values = [6]float64{}
			res.ErrCode = -1
			res.ErrMsg = fmt.Sprintf("routine panic: %v", r)
		}
	}()

	code, msg := s.adapter.routine.Calc(int(s.id), req.JD, req.Target, req.Flags, &res.Values)
	if code < 0 {
		res.ErrCode = code
		res.ErrMsg = msg
		if res.ErrMsg == "" {
			res.ErrMsg = fmt.Sprintf("calculation failed with code %d", code)
		}
	}
	return res, nil
}

// Release detaches the session's slot.
func (s *Session) Release() {
	if s.released {
		return
	}
	s.released = true
	if s.adapter.State() != StateClosed {
		s.adapter.routine.DetachSlot(int(s.id))
	}
}
