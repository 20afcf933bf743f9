// Package grib decodes GRIB edition 2 messages: regular latitude/longitude
// grids (template 3.0), analysis, ensemble and statistically processed
// products (templates 4.0, 4.1, 4.8 and 4.11) and simple packing (template
// 5.0) with an optional bitmap. Each field becomes one field.Grid.
package grib

import (
	"bytes"
	"encoding/binary"
	"strconv"

	"github.com/fatih/color"
	"github.com/nmcdev/metio/field"
	"github.com/sirupsen/logrus"
)

const format = "grib2"

// Magic starts every GRIB message.
var Magic = []byte("GRIB")

// Fixed surface types (code table 4.5) that have names.
const (
	levelSurface  = 1
	levelMeanSea  = 101
	levelIsobaric = 100
	levelHeight   = 103
)

var levelNames = map[uint8]string{
	levelSurface:  "surface",
	levelIsobaric: "isobaricInhPa",
	levelMeanSea:  "meanSea",
	levelHeight:   "heightAboveGround",
}

var statistics = map[uint8]string{0: "avg", 1: "accum", 2: "max", 3: "min"}

type param struct{ discipline, category, number uint8 }

type paramName struct{ short, units string }

// meteorological products (discipline 0) that carry ecCodes short names
var params = map[param]paramName{
	{0, 0, 0}:  {"t", "K"},
	{0, 0, 4}:  {"mx2t", "K"},
	{0, 0, 5}:  {"mn2t", "K"},
	{0, 0, 6}:  {"dpt", "K"},
	{0, 1, 0}:  {"q", "kg/kg"},
	{0, 1, 1}:  {"r", "%"},
	{0, 1, 8}:  {"tp", "kg/m2"},
	{0, 1, 29}: {"sf", "kg/m2"},
	{0, 2, 2}:  {"u", "m/s"},
	{0, 2, 3}:  {"v", "m/s"},
	{0, 2, 8}:  {"w", "Pa/s"},
	{0, 2, 22}: {"gust", "m/s"},
	{0, 3, 0}:  {"sp", "Pa"},
	{0, 3, 1}:  {"prmsl", "Pa"},
	{0, 3, 5}:  {"gh", "gpm"},
	{0, 6, 1}:  {"tcc", "%"},
	{0, 7, 6}:  {"cape", "J/kg"},
	{0, 19, 0}: {"vis", "m"},
}

// Option adjusts Decode.
type Option func(*options)

type options struct {
	names  map[string]bool
	levels map[string]bool
	limit  *field.BBox
}

// WithShortNames keeps only fields with one of the given short names,
// such as "t" or "gh". Fields without a known name are named
// var<discipline>_<category>_<number>.
func WithShortNames(names ...string) Option {
	return func(o *options) {
		if o.names == nil {
			o.names = make(map[string]bool)
		}
		for _, n := range names {
			o.names[n] = true
		}
	}
}

// WithLevelTypes keeps only fields on the given level types: surface,
// isobaricInhPa, meanSea, heightAboveGround or level<code>.
func WithLevelTypes(types ...string) Option {
	return func(o *options) {
		if o.levels == nil {
			o.levels = make(map[string]bool)
		}
		for _, t := range types {
			o.levels[t] = true
		}
	}
}

// WithLimit keeps the points inside b.
func WithLimit(b field.BBox) Option {
	return func(o *options) { o.limit = &b }
}

func (o options) keep(name, level string) bool {
	return (o.names == nil || o.names[name]) && (o.levels == nil || o.levels[level])
}

// IsGRIB2 reports whether data starts with an edition 2 indicator.
func IsGRIB2(data []byte) bool {
	return len(data) >= 16 && bytes.HasPrefix(data, Magic) && data[7] == 2
}

// Decode decodes every selected field of every message in data, in file
// order. Bytes between messages are skipped.
func Decode(data []byte, opts ...Option) ([]*field.Grid, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	var out []*field.Grid
	messages := 0
	for off := 0; ; {
		i := bytes.Index(data[off:], Magic)
		if i < 0 {
			break
		}
		off += i
		if len(data)-off < 16 {
			return nil, field.Errorf(format, off, "indicator section truncated")
		}
		switch ed := data[off+7]; ed {
		case 2:
		case 1:
			return nil, field.Unsupported(format, "GRIB edition 1")
		default:
			return nil, field.Errorf(format, off+7, "edition %d", ed)
		}
		length := binary.BigEndian.Uint64(data[off+8 : off+16])
		if length < 16+4 || length > uint64(len(data)-off) {
			return nil, field.Errorf(format, off+8, "message length %d, %d bytes left", length, len(data)-off)
		}

		grids, err := decodeMessage(data[off:off+int(length)], off, o)
		if err != nil {
			return nil, err
		}
		out = append(out, grids...)
		messages++
		off += int(length)
	}
	if messages == 0 {
		return nil, field.Errorf(format, 0, "no GRIB message")
	}
	logrus.Debugf("GRIB2: %s kept from %d message(s)", color.CyanString("%d field(s)", len(out)), messages)
	return out, nil
}

// decodeMessage walks sections 1 to 8 of one message. Sections 2 to 7 may
// repeat, so a message can carry several fields.
func decodeMessage(msg []byte, base int, o options) ([]*field.Grid, error) {
	var (
		id      ident
		haveID  bool
		grid    *latLon
		prod    *product
		pack    *simple
		bitmap  []byte
		useMask bool
		out     []*field.Grid
	)
	discipline := msg[6]

	pos := 16
	for {
		at := base + pos
		if len(msg)-pos >= 4 && string(msg[pos:pos+4]) == "7777" {
			break
		}
		if len(msg)-pos < 5 {
			return nil, field.Errorf(format, at, "message ends without 7777")
		}
		n := binary.BigEndian.Uint32(msg[pos:])
		num := msg[pos+4]
		if n < 5 || uint64(n) > uint64(len(msg)-pos) {
			return nil, field.Errorf(format, at, "section %d length %d overruns the message", num, n)
		}
		sec := msg[pos : pos+int(n)]

		var err error
		switch num {
		case 1:
			id, err = readIdent(sec, at)
			haveID = err == nil
		case 2:
			// local use
		case 3:
			grid, err = readGrid(sec, at)
		case 4:
			prod, err = readProduct(sec, at)
		case 5:
			pack, err = readPacking(sec, at)
		case 6:
			if len(sec) < 6 {
				return nil, field.Errorf(format, at, "bitmap section is %d bytes", len(sec))
			}
			switch sec[5] {
			case 255:
				useMask = false
			case 0:
				bitmap, useMask = sec[6:], true
			case 254:
				if bitmap == nil {
					return nil, field.Errorf(format, at+5, "previous bitmap reused before any was defined")
				}
				useMask = true
			default:
				return nil, field.Unsupported(format, "predefined bitmap %d", sec[5])
			}
		case 7:
			if !haveID || grid == nil || prod == nil || pack == nil {
				return nil, field.Errorf(format, at, "data section precedes its identification, grid, product or packing")
			}
			var mask []byte
			if useMask {
				mask = bitmap
			}
			g, err := assemble(discipline, id, grid, prod, pack, mask, sec[5:], at, o)
			if err != nil {
				return nil, err
			}
			if g != nil {
				out = append(out, g)
			}
		default:
			return nil, field.Errorf(format, at, "unknown section %d", num)
		}
		if err != nil {
			return nil, err
		}
		pos += int(n)
	}
	return out, nil
}

// assemble unpacks one field. It returns nil when the field is filtered
// out.
func assemble(discipline uint8, id ident, grid *latLon, prod *product, pack *simple, bitmap, data []byte, at int, o options) (*field.Grid, error) {
	pn, ok := params[param{discipline, prod.category, prod.number}]
	if !ok {
		pn.short = "var" + strconv.Itoa(int(discipline)) + "_" + strconv.Itoa(int(prod.category)) + "_" + strconv.Itoa(int(prod.number))
	}
	level, ok := levelNames[prod.levelType]
	if !ok {
		level = "level" + strconv.Itoa(int(prod.levelType))
	}
	if !o.keep(pn.short, level) {
		return nil, nil
	}

	points := grid.points()
	if bitmap == nil && pack.n != points {
		return nil, field.Errorf(format, at, "%d packed values for %d grid points", pack.n, points)
	}
	if pack.n > points {
		return nil, field.Errorf(format, at, "%d packed values exceed %d grid points", pack.n, points)
	}
	values, err := pack.unpack(data, at+5)
	if err != nil {
		return nil, err
	}
	if bitmap != nil {
		if values, err = expand(values, bitmap, points, at); err != nil {
			return nil, err
		}
	}

	h := field.Header{
		Format:       format,
		Description:  pn.short + " " + level,
		Time:         id.ref,
		ForecastHour: prod.fhour,
		Level:        prod.level,
		Attrs: map[string]string{
			"short_name": pn.short,
			"level_type": level,
			"discipline": strconv.Itoa(int(discipline)),
			"category":   strconv.Itoa(int(prod.category)),
			"number":     strconv.Itoa(int(prod.number)),
			"center":     strconv.Itoa(id.center),
			"template":   "4." + strconv.Itoa(prod.template),
		},
	}
	if prod.period != nil {
		h.Attrs["period"] = strconv.Itoa(*prod.period)
		if s, ok := statistics[prod.statistic]; ok {
			h.Attrs["statistic"] = s
		}
	}
	var levels []float64
	if prod.level != nil {
		levels = []float64{*prod.level}
	}
	var members []int
	if prod.member != nil {
		members = []int{*prod.member}
	}
	g, err := field.NewGrid(h, grid.lon, grid.lat, levels, members, field.Variable{Name: pn.short, Units: pn.units, Data: values})
	if err != nil {
		return nil, field.Errorf(format, at, "%v", err)
	}
	g = g.AscendingLat()
	if o.limit != nil {
		g = g.Subset(*o.limit)
	}
	return g, nil
}
