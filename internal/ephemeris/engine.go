// ============================================================================
// Parabola Ephemeris Engine - Deterministic Evaluator
// ============================================================================
//
// Package: internal/ephemeris
// File: engine.go
// Purpose: Pure-Go Routine implementation behind the Adapter.
//
// Model:
//   - Planets: Keplerian mean elements (J2000 + secular rates)
//   - Moon: truncated lunar series
//   - Minor bodies: J2000 elements read from the swevid minor table
//
// Slot cache:
//   Every attached slot keeps the Earth vectors and minor-body elements it
//   last used. A slot is owned by exactly one goroutine; the slot table
//   lock only guards attach/detach, never the cache itself.
//
// ============================================================================

package ephemeris

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/ChuLiYu/parabola/internal/swevid"
)

// DefaultMaxSlots bounds the number of concurrently attached slots.
const DefaultMaxSlots = 256

// speedStep is the half-width in days of the central difference used for
// daily motions.
const speedStep = 0.005

var (
	// ErrSlotTableFull means AttachSlot ran past MaxSlots.
	ErrSlotTableFull = errors.New("ephemeris: slot table full")
	// ErrSlotInUse means the slot id is already attached.
	ErrSlotInUse = errors.New("ephemeris: slot already attached")
	// ErrRoutineClosed means the routine's global state was released.
	ErrRoutineClosed = errors.New("ephemeris: routine closed")
	// ErrBadElements means a minor-body record cannot describe a bound orbit.
	ErrBadElements = errors.New("invalid orbital elements")
)

type slotCache struct {
	earth map[float64]vec3
	minor map[int]orbit
}

func newSlotCache() *slotCache {
	return &slotCache{
		earth: make(map[float64]vec3, 4),
		minor: make(map[int]orbit),
	}
}

// Engine is the default Routine.
type Engine struct {
	mu       sync.RWMutex
	dataPath string
	reader   swevid.RegionReader
	slots    map[int]*slotCache
	maxSlots int
	closed   bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMaxSlots sets the slot table capacity.
func WithMaxSlots(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxSlots = n
		}
	}
}

// NewEngine creates an Engine reading minor-body tables from reader.
// reader may be nil, in which case minor bodies report an error code.
func NewEngine(reader swevid.RegionReader, opts ...EngineOption) *Engine {
	e := &Engine{
		reader:   reader,
		slots:    make(map[int]*slotCache),
		maxSlots: DefaultMaxSlots,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetDataPath records the data directory. An empty path is accepted.
func (e *Engine) SetDataPath(path string) error {
	if path != "" {
		st, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("ephemeris data path: %w", err)
		}
		if !st.IsDir() {
			return fmt.Errorf("ephemeris data path %s is not a directory", path)
		}
	}
	e.mu.Lock()
	e.dataPath = path
	e.mu.Unlock()
	return nil
}

// DataPath returns the configured data directory.
func (e *Engine) DataPath() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dataPath
}

func (e *Engine) AttachSlot(id int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrRoutineClosed
	}
	if _, ok := e.slots[id]; ok {
		return fmt.Errorf("%w: %d", ErrSlotInUse, id)
	}
	if len(e.slots) >= e.maxSlots {
		return fmt.Errorf("%w: %d slots", ErrSlotTableFull, e.maxSlots)
	}
	e.slots[id] = newSlotCache()
	return nil
}

func (e *Engine) DetachSlot(id int) {
	e.mu.Lock()
	delete(e.slots, id)
	e.mu.Unlock()
}

// Slots returns the number of attached slots.
func (e *Engine) Slots() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.slots)
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrRoutineClosed
	}
	e.closed = true
	e.slots = nil
	return nil
}

func (e *Engine) Calc(slot int, jd float64, target, flags int, xx *[6]float64) (int, string) {
	*xx = [6]float64{}

	e.mu.RLock()
	closed := e.closed
	cache := e.slots[slot]
	e.mu.RUnlock()

	if closed {
		return -1, "routine closed"
	}
	if cache == nil {
		return -1, fmt.Sprintf("slot %d not attached", slot)
	}
	if math.IsNaN(jd) || jd < MinJD || jd > MaxJD {
		return -1, fmt.Sprintf("jd %.6f outside ephemeris range %.1f-%.1f", jd, MinJD, MaxJD)
	}

	pos, err := e.locator(cache, target)
	if err != nil {
		return swevid.Code(err), err.Error()
	}

	helio := flags&FlagHelio != 0
	equatorial := flags&FlagEquatorial != 0
	coords := func(t float64) (float64, float64, float64) {
		v := pos(t, helio)
		if equatorial {
			v = toEquatorial(v)
		}
		return spherical(v)
	}

	lon, lat, r := coords(jd)
	xx[0], xx[1], xx[2] = lon, lat, r

	if flags&FlagSpeed != 0 {
		lon1, lat1, r1 := coords(jd - speedStep)
		lon2, lat2, r2 := coords(jd + speedStep)
		xx[3] = wrapDelta(lon2-lon1) / (2 * speedStep)
		xx[4] = (lat2 - lat1) / (2 * speedStep)
		xx[5] = (r2 - r1) / (2 * speedStep)
	}

	// Bound the Earth cache to the last couple of evaluations.
	if len(cache.earth) > 6 {
		clear(cache.earth)
	}
	return 0, ""
}

// locator resolves target to a position function of (jd, heliocentric).
func (e *Engine) locator(cache *slotCache, target int) (func(float64, bool) vec3, error) {
	earth := func(jd float64) vec3 {
		if v, ok := cache.earth[jd]; ok {
			return v
		}
		v := earthOrbit.position(jd)
		cache.earth[jd] = v
		return v
	}

	switch {
	case target == Sun:
		return func(jd float64, helio bool) vec3 {
			if helio {
				return vec3{}
			}
			return earth(jd).neg()
		}, nil

	case target == Moon:
		return func(jd float64, helio bool) vec3 {
			geo := moonGeocentric(jd)
			if helio {
				return earth(jd).add(geo)
			}
			return geo
		}, nil

	case target >= Mercury && target <= Pluto:
		o := planetOrbits[target]
		return orbitLocator(o, earth), nil

	case target > MinorOffset:
		o, err := e.minorOrbit(cache, target-MinorOffset)
		if err != nil {
			return nil, err
		}
		return orbitLocator(o, earth), nil
	}

	return nil, fmt.Errorf("illegal planet number %d", target)
}

func orbitLocator(o orbit, earth func(float64) vec3) func(float64, bool) vec3 {
	return func(jd float64, helio bool) vec3 {
		p := o.position(jd)
		if helio {
			return p
		}
		return p.sub(earth(jd))
	}
}

// minorOrbit loads elements for minor body n through the region reader,
// caching them on the slot.
func (e *Engine) minorOrbit(cache *slotCache, n int) (orbit, error) {
	if o, ok := cache.minor[n]; ok {
		return o, nil
	}
	if e.reader == nil {
		return orbit{}, fmt.Errorf("minor body %d: %w", n, swevid.ErrNotLoaded)
	}
	el, err := swevid.FindMinor(e.reader, n)
	if err != nil {
		return orbit{}, fmt.Errorf("minor body %d: %w", n, err)
	}
	if err := checkElements(el); err != nil {
		return orbit{}, fmt.Errorf("minor body %d: %w", n, err)
	}

	// Mean motion in degrees per day from Kepler's third law.
	motion := 0.9856076686 / math.Pow(el.A, 1.5)
	o := orbit{
		a: el.A, e: el.E, i: el.I, l: el.L, peri: el.Peri, node: el.Node,
		dl: motion * 36525,
	}
	cache.minor[n] = o
	return o, nil
}

// checkElements rejects records the elliptic solver cannot evaluate.
func checkElements(el swevid.MinorElements) error {
	for _, v := range []float64{el.A, el.E, el.I, el.L, el.Peri, el.Node} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value", ErrBadElements)
		}
	}
	if el.A <= 0 {
		return fmt.Errorf("%w: semi-major axis %g", ErrBadElements, el.A)
	}
	if el.E < 0 || el.E >= 1 {
		return fmt.Errorf("%w: eccentricity %g", ErrBadElements, el.E)
	}
	return nil
}
