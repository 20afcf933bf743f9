package source

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ModelFilenames expands forecast hour ranges into model file names of the
// form YYMMDDHH.FFF. Ranges are "start/end/step" separated by ";", with
// end exclusive, e.g. "0/72/3;72/246/6".
func ModelFilenames(init time.Time, hours string, width int) ([]string, error) {
	stamp := init.Format("06010215")
	var names []string
	for _, rng := range strings.Split(hours, ";") {
		rng = strings.TrimSpace(rng)
		if rng == "" {
			continue
		}
		parts := strings.Split(rng, "/")
		if len(parts) != 3 {
			return nil, errors.Errorf("forecast hours %q: want start/end/step", rng)
		}
		var v [3]int
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, errors.Wrapf(err, "forecast hours %q", rng)
			}
			v[i] = n
		}
		if v[2] <= 0 {
			return nil, errors.Errorf("forecast hours %q: step must be positive", rng)
		}
		for fh := v[0]; fh < v[1]; fh += v[2] {
			names = append(names, fmt.Sprintf("%s.%0*d", stamp, width, fh))
		}
	}
	return names, nil
}

// InitTimes returns the n most recent model initial times before now,
// given the initial hours of the model and its delivery delay.
func InitTimes(hours []int, delay time.Duration, now time.Time, n int) []time.Time {
	run := map[int]bool{}
	for _, h := range hours {
		if h >= 0 && h < 24 {
			run[h] = true
		}
	}
	if len(run) == 0 {
		return nil
	}
	t := now.Add(-delay).Truncate(time.Hour)
	var out []time.Time
	for len(out) < n {
		t = t.Add(-time.Hour)
		if run[t.Hour()] {
			out = append(out, t)
		}
	}
	return out
}
