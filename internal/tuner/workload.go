package tuner

import (
	"github.com/ChuLiYu/parabola/internal/ephemeris"
	"github.com/ChuLiYu/parabola/pkg/types"
)

// DefaultWorkloadSize is the number of time steps in the tuning workload.
const DefaultWorkloadSize = 1000

// stepDays is one minute in days.
const stepDays = 1.0 / 1440.0

// Workload returns count time steps, one minute apart from J2000, each
// evaluating every major body with speeds. The result is identical on every
// call.
func Workload(count int) []types.Request {
	if count <= 0 {
		count = DefaultWorkloadSize
	}
	reqs := make([]types.Request, 0, count*len(ephemeris.Bodies))
	for i := 0; i < count; i++ {
		jd := ephemeris.J2000 + float64(i)*stepDays
		for _, body := range ephemeris.Bodies {
			reqs = append(reqs, types.Request{JD: jd, Target: body, Flags: ephemeris.FlagSpeed})
		}
	}
	return reqs
}
