package metio

import (
	"time"

	"github.com/nmcdev/metio/field"
)

// Summary is a compact, JSON friendly description of a decoded product.
type Summary struct {
	File        string            `json:"file,omitempty"`
	Product     string            `json:"product"`
	Time        *time.Time        `json:"time,omitempty"`
	ValidTime   *time.Time        `json:"valid_time,omitempty"`
	Description string            `json:"description,omitempty"`
	Level       *float64          `json:"level,omitempty"`
	Shape       []int             `json:"shape,omitempty"`
	Lon         []float64         `json:"lon,omitempty"` // first and last
	Lat         []float64         `json:"lat,omitempty"`
	Variables   []VariableSummary `json:"variables,omitempty"`
	Rows        *int              `json:"rows,omitempty"`
	Columns     []string          `json:"columns,omitempty"`
	Sections    []string          `json:"sections,omitempty"`
	Tilts       []TiltSummary     `json:"tilts,omitempty"`
	Fields      []Summary         `json:"fields,omitempty"` // one per GRIB field
	Attrs       map[string]string `json:"attrs,omitempty"`
}

// VariableSummary gives the value range of one grid variable.
type VariableSummary struct {
	Name  string   `json:"name"`
	Units string   `json:"units,omitempty"`
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`
}

// TiltSummary lists the moments of one radar tilt.
type TiltSummary struct {
	Tilt    int      `json:"tilt"`
	Moments []string `json:"moments"`
}

// Summarize describes r.
func (r *Result) Summarize(file string) Summary {
	s := Summary{File: file, Product: r.Product.String()}
	if h, ok := r.Header(); ok && len(r.Grids) == 0 {
		s.describeHeader(h)
	}

	switch {
	case r.Grid != nil:
		s.describeGrid(r.Grid)
	case len(r.Grids) > 0:
		for _, g := range r.Grids {
			f := Summary{Product: r.Product.String()}
			f.describeHeader(g.Header)
			f.describeGrid(g)
			s.Fields = append(s.Fields, f)
		}
	case r.Table != nil:
		s.Rows = field.Int(r.Table.Len())
		for _, c := range r.Table.Columns {
			s.Columns = append(s.Columns, c.Name)
		}
	case r.Composite != nil:
		for _, sec := range r.Composite.Sections() {
			s.Sections = append(s.Sections, string(sec))
		}
	case r.Volume != nil:
		t := r.Volume.Time()
		s.Time = &t
		for _, tilt := range r.Volume.Tilts() {
			s.Tilts = append(s.Tilts, TiltSummary{Tilt: tilt, Moments: r.Volume.Moments(tilt)})
		}
	}
	return s
}

func (s *Summary) describeHeader(h field.Header) {
	if !h.Time.IsZero() {
		t, v := h.Time, h.ValidTime()
		s.Time, s.ValidTime = &t, &v
	}
	s.Description = h.Description
	s.Level = h.Level
	s.Attrs = h.Attrs
}

func (s *Summary) describeGrid(g *field.Grid) {
	s.Shape = g.Shape()
	if !g.Empty() {
		s.Lon = []float64{g.Lon.At(0), g.Lon.End()}
		s.Lat = []float64{g.Lat.At(0), g.Lat.End()}
	}
	for _, v := range g.Vars {
		vs := VariableSummary{Name: v.Name, Units: v.Units}
		if lo, hi, ok := field.MinMax(v.Data); ok {
			vs.Min, vs.Max = field.Float(lo), field.Float(hi)
		}
		s.Variables = append(s.Variables, vs)
	}
}
