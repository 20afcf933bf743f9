package field

import (
	"fmt"
	"strconv"
	"strings"
)

// BBox is a latitude/longitude box, [MinLat, MinLon, MaxLat, MaxLon] in
// the order used by command line limits.
type BBox struct {
	MinLat, MinLon, MaxLat, MaxLon float64
}

// Contains reports whether the point lies inside the box, edges included.
func (b BBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// ParseBBox reads "minlat,minlon,maxlat,maxlon".
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, fmt.Errorf("bbox %q: want 4 comma separated values", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("bbox %q: %v", s, err)
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return BBox{}, fmt.Errorf("bbox %q: min exceeds max", s)
	}
	return BBox{MinLat: v[0], MinLon: v[1], MaxLat: v[2], MaxLon: v[3]}, nil
}
