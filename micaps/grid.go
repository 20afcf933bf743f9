package micaps

import (
	"github.com/nmcdev/metio/field"
	"github.com/nmcdev/metio/tokens"
	"github.com/sirupsen/logrus"
)

type gridSpec struct {
	lon, lat field.Axis
}

// readGridSpec consumes xint yint slon elon slat elat nlon nlat.
func readGridSpec(c *tokens.Cursor, format string) (gridSpec, error) {
	at := c.Pos()
	v, err := c.Floats(6)
	if err != nil {
		return gridSpec{}, err
	}
	nlon, err := c.Int()
	if err != nil {
		return gridSpec{}, err
	}
	nlat, err := c.Int()
	if err != nil {
		return gridSpec{}, err
	}
	lon, err := field.AxisFromBounds(v[2], v[3], v[0], nlon)
	if err != nil {
		return gridSpec{}, field.Errorf(format, at, "longitude: %v", err)
	}
	lat, err := field.AxisFromBounds(v[4], v[5], v[1], nlat)
	if err != nil {
		return gridSpec{}, field.Errorf(format, at, "latitude: %v", err)
	}
	return gridSpec{lon: lon, lat: lat}, nil
}

// readValues consumes exactly n values, which must be the rest of the file.
func readValues(c *tokens.Cursor, format string, n int) ([]float64, error) {
	if c.Remaining() != n {
		return nil, field.Errorf(format, c.Pos(), "grid needs %d values, file has %d", n, c.Remaining())
	}
	v, err := c.Floats(n)
	if err != nil {
		return nil, err
	}
	for i := range v {
		v[i] = field.MaskSentinel(v[i])
	}
	return v, nil
}

// Decode4 decodes a diamond 4 scalar grid.
func Decode4(data []byte, opts ...Option) (*field.Grid, error) {
	const format = "micaps4"
	o := collect(opts)

	c, err := tokens.Tokenize(format, data)
	if err != nil {
		return nil, err
	}
	desc, err := readHead(c, 4)
	if err != nil {
		return nil, err
	}

	at := c.Pos()
	year, err := readYear(c, format)
	if err != nil {
		return nil, err
	}
	var mdhf [4]int
	for i := range mdhf {
		if mdhf[i], err = c.Int(); err != nil {
			return nil, err
		}
	}
	hour, fhour := mdhf[2], mdhf[3]
	// some historical model output writes forecast hour and hour swapped
	if hour >= 24 {
		hour, fhour = fhour, hour
	}
	init, err := makeTime(format, at, year, mdhf[0], mdhf[1], hour)
	if err != nil {
		return nil, err
	}

	level, err := c.Float()
	if err != nil {
		return nil, err
	}
	gs, err := readGridSpec(c, format)
	if err != nil {
		return nil, err
	}
	contour, err := c.Floats(5)
	if err != nil {
		return nil, err
	}

	values, err := readValues(c, format, gs.lat.Count*gs.lon.Count)
	if err != nil {
		return nil, err
	}

	h := field.Header{
		Format:       format,
		Description:  desc,
		Time:         init,
		ForecastHour: field.Int(fhour),
		Attrs: map[string]string{
			"contour_interval": ftoa(contour[0]),
			"contour_start":    ftoa(contour[1]),
			"contour_end":      ftoa(contour[2]),
			"smooth":           ftoa(contour[3]),
			"bold":             ftoa(contour[4]),
		},
	}
	var levels []float64
	if level != 0 {
		h.Level = field.Float(level)
		levels = []float64{level}
	}
	logrus.Debugf("micaps4 %s: %dx%d grid, init %s +%dh", desc, gs.lat.Count, gs.lon.Count, init.Format("2006010215"), fhour)

	g, err := field.NewGrid(h, gs.lon, gs.lat, levels, nil, field.Variable{Name: "data", Data: values})
	if err != nil {
		return nil, field.Errorf(format, at, "%v", err)
	}
	return o.grid(g.AscendingLat()), nil
}

// Decode11 decodes a diamond 11 wind vector grid into uwind, vwind and the
// derived speed.
func Decode11(data []byte, opts ...Option) (*field.Grid, error) {
	const format = "micaps11"
	o := collect(opts)

	c, err := tokens.Tokenize(format, data)
	if err != nil {
		return nil, err
	}
	desc, err := readHead(c, 11)
	if err != nil {
		return nil, err
	}
	at := c.Pos()
	init, err := readTime(c, format)
	if err != nil {
		return nil, err
	}
	fhour, err := c.Int()
	if err != nil {
		return nil, err
	}
	level := 0.0
	if !o.noLevel {
		if level, err = c.Float(); err != nil {
			return nil, err
		}
	}
	gs, err := readGridSpec(c, format)
	if err != nil {
		return nil, err
	}
	n := gs.lat.Count * gs.lon.Count
	values, err := readValues(c, format, 2*n)
	if err != nil {
		return nil, err
	}

	h := field.Header{Format: format, Description: desc, Time: init, ForecastHour: field.Int(fhour)}
	var levels []float64
	if level != 0 {
		h.Level = field.Float(level)
		levels = []float64{level}
	}
	g, err := field.NewGrid(h, gs.lon, gs.lat, levels, nil,
		field.Variable{Name: "uwind", Units: "m/s", Data: values[:n]},
		field.Variable{Name: "vwind", Units: "m/s", Data: values[n:]},
	)
	if err != nil {
		return nil, field.Errorf(format, at, "%v", err)
	}
	g = g.AscendingLat()
	if o.scaled {
		g = g.Scaled(o.scale, o.offset)
	}
	u, _ := g.Var("uwind")
	v, _ := g.Var("vwind")
	g.Vars = append(g.Vars, field.Variable{Name: "speed", Units: "m/s", Data: field.Speed(u.Data, v.Data)})
	if o.limit != nil {
		g = g.Subset(*o.limit)
	}
	return g, nil
}
