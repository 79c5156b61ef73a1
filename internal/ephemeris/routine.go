package ephemeris

// Routine is the opaque ephemeris evaluator. Implementations are stateful
// and not safe for concurrent use on the same slot: every goroutine that
// calls Calc must first attach its own slot and use only that slot.
type Routine interface {
	// SetDataPath points the routine at its external data directory.
	SetDataPath(path string) error
	// AttachSlot allocates the per-thread cache for id.
	AttachSlot(id int) error
	// Calc evaluates target at jd into xx. A negative code reports a domain
	// failure described by msg.
	Calc(slot int, jd float64, target, flags int, xx *[6]float64) (code int, msg string)
	// DetachSlot frees the cache for id.
	DetachSlot(id int)
	// Close releases global state. No slot may be used afterwards.
	Close() error
}

// Body codes.
const (
	Sun = iota
	Moon
	Mercury
	Venus
	Mars
	Jupiter
	Saturn
	Uranus
	Neptune
	Pluto

	// MinorOffset + n addresses minor body n in the auxiliary tables.
	MinorOffset = 10000
)

// Calculation flags.
const (
	FlagHelio      = 8    // heliocentric instead of geocentric
	FlagSpeed      = 256  // fill daily motions in values[3..5]
	FlagEquatorial = 2048 // right ascension/declination instead of ecliptic lon/lat
)

// Supported time range in Julian days.
const (
	MinJD = 625000.5
	MaxJD = 2818000.5
)

// J2000 is the reference epoch, also used by the validation probe.
const J2000 = 2451545.0

// Bodies lists the major body codes in order.
var Bodies = []int{Sun, Moon, Mercury, Venus, Mars, Jupiter, Saturn, Uranus, Neptune, Pluto}

// BodyName returns a display name for a body code.
func BodyName(target int) string {
	names := [...]string{"Sun", "Moon", "Mercury", "Venus", "Mars", "Jupiter", "Saturn", "Uranus", "Neptune", "Pluto"}
	if target >= 0 && target < len(names) {
		return names[target]
	}
	if target > MinorOffset {
		return "minor"
	}
	return "unknown"
}
