package field

import "math"

// Missing is the sentinel used by MICAPS products for absent values.
const Missing = 9999.0

// IsMissing reports whether v is the missing marker.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// MaskSentinel returns NaN for the Missing sentinel and v otherwise.
func MaskSentinel(v float64) float64 {
	if v == Missing {
		return math.NaN()
	}
	return v
}

// MinMax returns the extremes of values, ignoring missing entries. ok is
// false when every value is missing.
func MinMax(values []float64) (min, max float64, ok bool) {
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if !ok {
			min, max, ok = v, v, true
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return
}
