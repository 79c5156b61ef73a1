package ephemeris

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/ChuLiYu/parabola/internal/swevid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attachedEngine(t *testing.T, reader swevid.RegionReader) *Engine {
	t.Helper()
	e := NewEngine(reader)
	require.NoError(t, e.AttachSlot(1))
	return e
}

func TestEngine_MajorBodies(t *testing.T) {
	e := attachedEngine(t, nil)

	for _, body := range Bodies {
		var xx [6]float64
		code, msg := e.Calc(1, J2000, body, FlagSpeed, &xx)
		require.Equal(t, 0, code, "body %d: %s", body, msg)
		assert.GreaterOrEqual(t, xx[0], 0.0)
		assert.Less(t, xx[0], 360.0)
		assert.Greater(t, xx[2], 0.0, "body %d distance", body)
	}
}

func TestEngine_SunAtJ2000(t *testing.T) {
	e := attachedEngine(t, nil)

	var xx [6]float64
	code, _ := e.Calc(1, J2000, Sun, FlagSpeed, &xx)
	require.Equal(t, 0, code)

	// Geocentric solar longitude at J2000 is about 280.4 degrees, moving
	// close to one degree per day at roughly 0.983 AU.
	assert.InDelta(t, 280.4, xx[0], 0.5)
	assert.InDelta(t, 0.0, xx[1], 0.01)
	assert.InDelta(t, 0.983, xx[2], 0.01)
	assert.InDelta(t, 1.019, xx[3], 0.02)
}

func TestEngine_MoonDistance(t *testing.T) {
	e := attachedEngine(t, nil)

	var xx [6]float64
	code, _ := e.Calc(1, J2000+10, Moon, FlagSpeed, &xx)
	require.Equal(t, 0, code)
	km := xx[2] * kmPerAU
	assert.Greater(t, km, 350000.0)
	assert.Less(t, km, 420000.0)
	assert.Greater(t, xx[3], 10.0, "moon moves 12-15 deg/day")
	assert.Less(t, xx[3], 16.0)
}

func TestEngine_SpeedOnlyWithFlag(t *testing.T) {
	e := attachedEngine(t, nil)

	var xx [6]float64
	code, _ := e.Calc(1, J2000, Mars, 0, &xx)
	require.Equal(t, 0, code)
	assert.Zero(t, xx[3])
	assert.Zero(t, xx[4])
	assert.Zero(t, xx[5])
}

func TestEngine_HelioSunIsOrigin(t *testing.T) {
	e := attachedEngine(t, nil)

	var xx [6]float64
	code, _ := e.Calc(1, J2000, Sun, FlagHelio, &xx)
	require.Equal(t, 0, code)
	assert.Equal(t, [6]float64{}, xx)
}

func TestEngine_Equatorial(t *testing.T) {
	e := attachedEngine(t, nil)

	var ecl, equ [6]float64
	_, _ = e.Calc(1, J2000, Jupiter, 0, &ecl)
	_, _ = e.Calc(1, J2000, Jupiter, FlagEquatorial, &equ)
	assert.InDelta(t, ecl[2], equ[2], 1e-12, "rotation keeps distance")
	assert.NotEqual(t, ecl[1], equ[1])
}

func TestEngine_Deterministic(t *testing.T) {
	a := attachedEngine(t, nil)
	b := attachedEngine(t, nil)

	for _, jd := range []float64{J2000, J2000 + 0.5, 2460000.25} {
		var x1, x2 [6]float64
		a.Calc(1, jd, Saturn, FlagSpeed, &x1)
		b.Calc(1, jd, Saturn, FlagSpeed, &x2)
		assert.Equal(t, x1, x2)
	}
}

func TestEngine_DomainErrors(t *testing.T) {
	e := attachedEngine(t, nil)

	tests := []struct {
		name   string
		jd     float64
		target int
		code   int
		msg    string
	}{
		{"jd before range", MinJD - 1, Sun, -1, "outside ephemeris range"},
		{"jd after range", MaxJD + 1, Sun, -1, "outside ephemeris range"},
		{"nan jd", math.NaN(), Sun, -1, "outside ephemeris range"},
		{"unknown target", J2000, 42, -1, "illegal planet number 42"},
		{"negative target", J2000, -3, -1, "illegal planet number"},
		{"minor without tables", J2000, MinorOffset + 1, -1, "no data loaded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var xx [6]float64
			code, msg := e.Calc(1, tt.jd, tt.target, FlagSpeed, &xx)
			assert.Equal(t, tt.code, code)
			assert.Contains(t, msg, tt.msg)
			assert.Equal(t, [6]float64{}, xx)
		})
	}
}

func TestEngine_MinorBodies(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, swevid.MinorFile)
	require.NoError(t, swevid.WriteMinorFile(path, []swevid.MinorElements{
		{Number: 1, A: 2.7675, E: 0.0785, I: 10.59, Node: 80.3, Peri: 153.5, L: 291.4},
	}))
	store := swevid.NewStore()
	defer store.Close()
	require.NoError(t, store.Load(path))

	e := attachedEngine(t, store)

	var xx [6]float64
	code, msg := e.Calc(1, J2000, MinorOffset+1, FlagSpeed|FlagHelio, &xx)
	require.Equal(t, 0, code, msg)
	assert.InDelta(t, 2.7675, xx[2], 0.25)

	code, msg = e.Calc(1, J2000, MinorOffset+99, 0, &xx)
	assert.Equal(t, -1, code)
	assert.Contains(t, msg, "not in table")
}

func TestEngine_MinorBadElements(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, swevid.MinorFile)
	require.NoError(t, swevid.WriteMinorFile(path, []swevid.MinorElements{
		{Number: 2, A: 0, E: 0.1, I: 5, Node: 10, Peri: 20, L: 30},
		{Number: 3, A: 2.5, E: 1.5, I: 5, Node: 10, Peri: 20, L: 30},
		{Number: 4, A: 2.5, E: 0.1, I: math.NaN(), Node: 10, Peri: 20, L: 30},
		{Number: 5, A: -1, E: 0.1, I: 5, Node: 10, Peri: 20, L: 30},
	}))
	store := swevid.NewStore()
	defer store.Close()
	require.NoError(t, store.Load(path))

	e := attachedEngine(t, store)

	tests := []struct {
		name   string
		number int
		msg    string
	}{
		{"zero semi-major axis", 2, "semi-major axis"},
		{"hyperbolic", 3, "eccentricity"},
		{"nan inclination", 4, "non-finite"},
		{"negative semi-major axis", 5, "semi-major axis"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var xx [6]float64
			code, msg := e.Calc(1, J2000, MinorOffset+tt.number, FlagSpeed, &xx)
			assert.Equal(t, -1, code)
			assert.Contains(t, msg, "invalid orbital elements")
			assert.Contains(t, msg, tt.msg)
			assert.Equal(t, [6]float64{}, xx)
		})
	}
}

func TestEngine_Slots(t *testing.T) {
	e := NewEngine(nil, WithMaxSlots(2))

	require.NoError(t, e.AttachSlot(1))
	assert.ErrorIs(t, e.AttachSlot(1), ErrSlotInUse)
	require.NoError(t, e.AttachSlot(2))
	assert.ErrorIs(t, e.AttachSlot(3), ErrSlotTableFull)
	assert.Equal(t, 2, e.Slots())

	e.DetachSlot(1)
	require.NoError(t, e.AttachSlot(3))

	var xx [6]float64
	code, msg := e.Calc(1, J2000, Sun, 0, &xx)
	assert.Equal(t, -1, code)
	assert.Contains(t, msg, "not attached")
}

func TestEngine_Close(t *testing.T) {
	e := attachedEngine(t, nil)
	require.NoError(t, e.Close())
	assert.ErrorIs(t, e.Close(), ErrRoutineClosed)
	assert.ErrorIs(t, e.AttachSlot(5), ErrRoutineClosed)

	var xx [6]float64
	code, _ := e.Calc(1, J2000, Sun, 0, &xx)
	assert.Equal(t, -1, code)
}

func TestEngine_SetDataPath(t *testing.T) {
	e := NewEngine(nil)
	require.NoError(t, e.SetDataPath(""))
	dir := t.TempDir()
	require.NoError(t, e.SetDataPath(dir))
	assert.Equal(t, dir, e.DataPath())

	assert.Error(t, e.SetDataPath(filepath.Join(dir, "missing")))
}
