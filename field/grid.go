package field

import (
	"fmt"
	"math"
	"time"
)

// Header carries the metadata shared by every decoded product.
type Header struct {
	Format      string
	Description string

	// Time is the observation time for observations and the initial time
	// for forecasts.
	Time time.Time

	// ForecastHour and Level are nil when the product has none.
	ForecastHour *int
	Level        *float64

	Attrs map[string]string
}

// ValidTime is Time plus the forecast hour, if any.
func (h Header) ValidTime() time.Time {
	if h.ForecastHour == nil {
		return h.Time
	}
	return h.Time.Add(time.Duration(*h.ForecastHour) * time.Hour)
}

// Attr returns a header attribute or "".
func (h Header) Attr(key string) string {
	if h.Attrs == nil {
		return ""
	}
	return h.Attrs[key]
}

// Int and Float return pointers for the optional header fields.
func Int(v int) *int           { return &v }
func Float(v float64) *float64 { return &v }

// Variable is one named value array of a Grid. Data is row-major over
// [member][level][lat][lon], leading dimensions omitted when absent.
type Variable struct {
	Name  string
	Units string
	Data  []float64
}

// Grid is a regular latitude/longitude field. Vector products carry one
// Variable per component. A Grid is never mutated after construction; the
// transforms below return new grids.
type Grid struct {
	Header  Header
	Lon     Axis
	Lat     Axis
	Levels  []float64 // nil when there is no vertical dimension
	Members []int     // nil for deterministic products
	Vars    []Variable
}

// NewGrid validates that every variable matches the axes.
func NewGrid(h Header, lon, lat Axis, levels []float64, members []int, vars ...Variable) (*Grid, error) {
	g := &Grid{Header: h, Lon: lon, Lat: lat, Levels: levels, Members: members, Vars: vars}
	if len(vars) == 0 {
		return nil, fmt.Errorf("grid has no variables")
	}
	for _, v := range vars {
		if len(v.Data) != g.Size() {
			return nil, fmt.Errorf("variable %s has %d values, grid needs %d", v.Name, len(v.Data), g.Size())
		}
	}
	return g, nil
}

func (g *Grid) depth() int {
	n := 1
	if len(g.Members) > 0 {
		n *= len(g.Members)
	}
	if len(g.Levels) > 0 {
		n *= len(g.Levels)
	}
	return n
}

// Size is the number of values in each variable.
func (g *Grid) Size() int { return g.depth() * g.Lat.Count * g.Lon.Count }

// Empty reports whether a subset excluded every point.
func (g *Grid) Empty() bool { return g.Lat.Count == 0 || g.Lon.Count == 0 }

// Shape lists the dimension lengths in storage order.
func (g *Grid) Shape() []int {
	var s []int
	if len(g.Members) > 0 {
		s = append(s, len(g.Members))
	}
	if len(g.Levels) > 0 {
		s = append(s, len(g.Levels))
	}
	return append(s, g.Lat.Count, g.Lon.Count)
}

// Var looks up a variable by name.
func (g *Grid) Var(name string) (*Variable, bool) {
	for i := range g.Vars {
		if g.Vars[i].Name == name {
			return &g.Vars[i], true
		}
	}
	return nil, false
}

// Value returns variable v at the given plane (member*levels+level), lat
// row and lon column.
func (g *Grid) Value(v, plane, lat, lon int) float64 {
	return g.Vars[v].Data[(plane*g.Lat.Count+lat)*g.Lon.Count+lon]
}

// AscendingLat returns g with latitudes ordered south to north, flipping
// rows when the source is stored north first.
func (g *Grid) AscendingLat() *Grid {
	if !g.Lat.Descending() {
		return g
	}
	out := g.with(g.Lon, g.Lat.Reversed())
	nlat, nlon := g.Lat.Count, g.Lon.Count
	for vi, v := range g.Vars {
		data := make([]float64, len(v.Data))
		for p := 0; p < g.depth(); p++ {
			base := p * nlat * nlon
			for j := 0; j < nlat; j++ {
				copy(data[base+j*nlon:base+(j+1)*nlon], v.Data[base+(nlat-1-j)*nlon:base+(nlat-j)*nlon])
			}
		}
		out.Vars[vi].Data = data
	}
	return out
}

// Scaled applies value*scale + offset to every variable. Missing values
// stay missing.
func (g *Grid) Scaled(scale, offset float64) *Grid {
	out := g.with(g.Lon, g.Lat)
	for vi, v := range g.Vars {
		data := make([]float64, len(v.Data))
		for i, x := range v.Data {
			data[i] = x*scale + offset
		}
		out.Vars[vi].Data = data
	}
	return out
}

// Subset keeps the points inside box. The grid must have ascending axes.
// A box outside the grid yields an empty grid, not an error.
func (g *Grid) Subset(box BBox) *Grid {
	j0, j1 := g.Lat.within(box.MinLat, box.MaxLat)
	i0, i1 := g.Lon.within(box.MinLon, box.MaxLon)
	out := g.with(g.Lon.slice(i0, i1), g.Lat.slice(j0, j1))
	nlat, nlon := g.Lat.Count, g.Lon.Count
	for vi, v := range g.Vars {
		data := make([]float64, 0, g.depth()*(j1-j0)*(i1-i0))
		for p := 0; p < g.depth(); p++ {
			for j := j0; j < j1; j++ {
				row := (p*nlat + j) * nlon
				data = append(data, v.Data[row+i0:row+i1]...)
			}
		}
		out.Vars[vi].Data = data
	}
	return out
}

func (g *Grid) with(lon, lat Axis) *Grid {
	out := *g
	out.Lon, out.Lat = lon, lat
	out.Vars = make([]Variable, len(g.Vars))
	copy(out.Vars, g.Vars)
	return &out
}

// Speed returns sqrt(u*u + v*v) element-wise.
func Speed(u, v []float64) []float64 {
	s := make([]float64, len(u))
	for i := range u {
		s[i] = math.Hypot(u[i], v[i])
	}
	return s
}
