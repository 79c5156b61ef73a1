package ephemeris

import "math"

const (
	deg2rad   = math.Pi / 180
	rad2deg   = 180 / math.Pi
	kmPerAU   = 149597870.7
	obliquity = 23.4392911 * deg2rad // mean obliquity at J2000
)

// orbit holds mean elements at J2000 and their rates per Julian century.
// Angles in degrees, a in AU. peri is the longitude of perihelion.
type orbit struct {
	a, e, i, l, peri, node       float64
	da, de, di, dl, dperi, dnode float64
}

// Approximate mean elements, valid to arc-minute level over 1800-2050 and
// degrading gracefully outside it.
var planetOrbits = map[int]orbit{
	Mercury: {0.38709927, 0.20563593, 7.00497902, 252.25032350, 77.45779628, 48.33076593,
		0.00000037, 0.00001906, -0.00594749, 149472.67411175, 0.16047689, -0.12534081},
	Venus: {0.72333566, 0.00677672, 3.39467605, 181.97909950, 131.60246718, 76.67984255,
		0.00000390, -0.00004107, -0.00078890, 58517.81538729, 0.00268329, -0.27769418},
	Mars: {1.52371034, 0.09339410, 1.84969142, -4.55343205, -23.94362959, 49.55953891,
		0.00001847, 0.00007882, -0.00813131, 19140.30268499, 0.44441088, -0.29257343},
	Jupiter: {5.20288700, 0.04838624, 1.30439695, 34.39644051, 14.72847983, 100.47390909,
		-0.00011607, -0.00013253, -0.00183714, 3034.74612775, 0.21252668, 0.20469106},
	Saturn: {9.53667594, 0.05386179, 2.48599187, 49.95424423, 92.59887831, 113.66242448,
		-0.00125060, -0.00050991, 0.00193609, 1222.49362201, -0.41897216, -0.28867794},
	Uranus: {19.18916464, 0.04725744, 0.77263783, 313.23810451, 170.95427630, 74.01692503,
		-0.00196176, -0.00004397, -0.00242939, 428.48202785, 0.40805281, 0.04240589},
	Neptune: {30.06992276, 0.00859048, 1.77004347, -55.12002969, 44.96476227, 131.78422574,
		0.00026291, 0.00005105, 0.00035372, 218.45945325, -0.32241464, -0.00508664},
	Pluto: {39.48211675, 0.24882730, 17.14001206, 238.92903833, 224.06891629, 110.30393684,
		-0.00031596, 0.00005170, 0.00004818, 145.20780515, -0.04062942, -0.01183482},
}

// Earth-Moon barycentre, used for the Earth.
var earthOrbit = orbit{1.00000261, 0.01671123, -0.00001531, 100.46457166, 102.93768193, 0.0,
	0.00000562, -0.00004392, -0.01294668, 35999.37244981, 0.32327364, 0.0}

type vec3 [3]float64

func (v vec3) sub(o vec3) vec3 { return vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]} }
func (v vec3) add(o vec3) vec3 { return vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]} }
func (v vec3) neg() vec3       { return vec3{-v[0], -v[1], -v[2]} }

func centuries(jd float64) float64 {
	return (jd - J2000) / 36525.0
}

// position returns the heliocentric ecliptic J2000 position of o at jd.
func (o orbit) position(jd float64) vec3 {
	t := centuries(jd)
	a := o.a + o.da*t
	e := o.e + o.de*t
	inc := (o.i + o.di*t) * deg2rad
	l := o.l + o.dl*t
	peri := o.peri + o.dperi*t
	node := (o.node + o.dnode*t) * deg2rad

	m := normDeg(l-peri) * deg2rad
	w := peri*deg2rad - node
	ecc := solveKepler(m, e)

	xp := a * (math.Cos(ecc) - e)
	yp := a * math.Sqrt(1-e*e) * math.Sin(ecc)

	cw, sw := math.Cos(w), math.Sin(w)
	cn, sn := math.Cos(node), math.Sin(node)
	ci, si := math.Cos(inc), math.Sin(inc)

	return vec3{
		(cw*cn-sw*sn*ci)*xp + (-sw*cn-cw*sn*ci)*yp,
		(cw*sn+sw*cn*ci)*xp + (-sw*sn+cw*cn*ci)*yp,
		(sw*si)*xp + (cw*si)*yp,
	}
}

// solveKepler solves M = E - e sin E by Newton iteration.
func solveKepler(m, e float64) float64 {
	ecc := m + e*math.Sin(m)
	for i := 0; i < 30; i++ {
		d := (ecc - e*math.Sin(ecc) - m) / (1 - e*math.Cos(ecc))
		ecc -= d
		if math.Abs(d) < 1e-12 {
			break
		}
	}
	return ecc
}

// moonGeocentric is a truncated lunar theory good to a few arc-minutes.
func moonGeocentric(jd float64) vec3 {
	t := centuries(jd)
	lp := 218.3164477 + 481267.88123421*t
	d := (297.8501921 + 445267.1114034*t) * deg2rad
	ms := (357.5291092 + 35999.0502909*t) * deg2rad
	mm := (134.9633964 + 477198.8675055*t) * deg2rad
	f := (93.2720950 + 483202.0175233*t) * deg2rad

	lon := lp +
		6.288774*math.Sin(mm) +
		1.274027*math.Sin(2*d-mm) +
		0.658314*math.Sin(2*d) +
		0.213618*math.Sin(2*mm) -
		0.185116*math.Sin(ms) -
		0.114332*math.Sin(2*f)
	lat := 5.128122*math.Sin(f) +
		0.280602*math.Sin(mm+f) +
		0.277693*math.Sin(mm-f) +
		0.173237*math.Sin(2*d-f)
	distKm := 385000.56 -
		20905.355*math.Cos(mm) -
		3699.111*math.Cos(2*d-mm) -
		2955.968*math.Cos(2*d)

	return fromSpherical(normDeg(lon)*deg2rad, lat*deg2rad, distKm/kmPerAU)
}

func fromSpherical(lon, lat, r float64) vec3 {
	cl := math.Cos(lat)
	return vec3{r * cl * math.Cos(lon), r * cl * math.Sin(lon), r * math.Sin(lat)}
}

// spherical converts to (lon deg in [0,360), lat deg, r).
func spherical(v vec3) (float64, float64, float64) {
	r := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if r == 0 {
		return 0, 0, 0
	}
	lon := normDeg(math.Atan2(v[1], v[0]) * rad2deg)
	lat := math.Atan2(v[2], math.Hypot(v[0], v[1])) * rad2deg
	return lon, lat, r
}

// toEquatorial rotates an ecliptic vector about the x axis by the obliquity.
func toEquatorial(v vec3) vec3 {
	ce, se := math.Cos(obliquity), math.Sin(obliquity)
	return vec3{v[0], v[1]*ce - v[2]*se, v[1]*se + v[2]*ce}
}

func normDeg(x float64) float64 {
	x = math.Mod(x, 360)
	if x < 0 {
		x += 360
	}
	return x
}

// wrapDelta maps an angular difference into (-180, 180].
func wrapDelta(d float64) float64 {
	d = math.Mod(d, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}
