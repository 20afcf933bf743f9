// Package cinrad decodes Chinese weather radar base data: the CMA radar
// standard data format and the legacy CINRAD SA/SB 2432 byte radial records.
//
// The documents used and referenced in this package:
//   - CMA: Standard format for weather radar base data, version 1.0 (2016)
//   - SA: CINRAD/SA base data format, modeled on the WSR-88D message 1 layout
package cinrad

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Radial status codes shared by both formats.
const (
	RadialStatusStartOfElevationScan   = 0
	RadialStatusIntermediateRadialData = 1
	RadialStatusEndOfElevation         = 2
	RadialStatusBeginningOfVolumeScan  = 3
	RadialStatusEndOfVolumeScan        = 4
	RadialStatusStartNewElevation      = 5
	RadialStatusEndOfSingleScan        = 6
)

// Moment names.
const (
	MomentTREF = "TREF"
	MomentREF  = "REF"
	MomentVEL  = "VEL"
	MomentSW   = "SW"
)

// Volume is a decoded volume scan organized by tilt.
type Volume interface {
	// Time is the scan start time.
	Time() time.Time
	// Tilts lists tilt indexes in ascending order.
	Tilts() []int
	// Moments lists the moments present on a tilt.
	Moments(tilt int) []string
	// Sweep extracts one moment of one tilt.
	Sweep(tilt int, moment string) (*Sweep, error)
}

// Sweep is one moment on one tilt as a [radial][gate] array. Radials
// shorter than the longest one are padded with NaN.
type Sweep struct {
	Moment     string
	Elevation  float64
	Azimuths   []float64   // degrees, one per radial
	Elevations []float64   // degrees, one per radial, range height scans only
	Ranges     []float64   // km to the center of each gate
	Data       [][]float64 // physical units, NaN where there is no data
	Folded     [][]bool    // range folded gates, velocity and spectrum width only
}

// Gates is the number of gates per radial.
func (s *Sweep) Gates() int { return len(s.Ranges) }

// sweepRadial is the per-radial input to buildSweep.
type sweepRadial struct {
	azimuth float64
	values  []float64
	folded  []bool
}

func buildSweep(moment string, elevation float64, radials []sweepRadial, gate func(i int) float64) *Sweep {
	s := &Sweep{Moment: moment, Elevation: elevation}
	n := 0
	for _, r := range radials {
		if len(r.values) > n {
			n = len(r.values)
		}
	}
	withFolded := false
	for _, r := range radials {
		withFolded = withFolded || r.folded != nil
	}
	s.Ranges = make([]float64, n)
	for i := range s.Ranges {
		s.Ranges[i] = gate(i)
	}
	for _, r := range radials {
		s.Azimuths = append(s.Azimuths, r.azimuth)
		row := make([]float64, n)
		copy(row, r.values)
		for i := len(r.values); i < n; i++ {
			row[i] = math.NaN()
		}
		s.Data = append(s.Data, row)
		if withFolded {
			f := make([]bool, n)
			copy(f, r.folded)
			s.Folded = append(s.Folded, f)
		}
	}
	return s
}

func sortedTilts[T any](scans map[int][]T) []int {
	tilts := make([]int, 0, len(scans))
	for t := range scans {
		tilts = append(tilts, t)
	}
	sort.Ints(tilts)
	return tilts
}

// NoMomentError reports a sweep request for a tilt or moment the volume
// does not carry.
type NoMomentError struct {
	Tilt   int
	Moment string
}

func (e *NoMomentError) Error() string {
	return fmt.Sprintf("tilt %d has no %s data", e.Tilt, e.Moment)
}
