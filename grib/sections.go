package grib

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/nmcdev/metio/field"
)

// maxPoints caps the points of one grid. A constant field packs no bits,
// so the data section alone does not bound the allocation.
const maxPoints = 1 << 27

// ident is the part of section 1 kept per message.
type ident struct {
	center int
	ref    time.Time
}

func readIdent(sec []byte, at int) (ident, error) {
	if len(sec) < 21 {
		return ident{}, field.Errorf(format, at, "identification section is %d bytes", len(sec))
	}
	year := int(binary.BigEndian.Uint16(sec[12:14]))
	month, day, hour, minute, second := int(sec[14]), int(sec[15]), int(sec[16]), int(sec[17]), int(sec[18])
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return ident{}, field.Errorf(format, at+12, "reference time %04d-%02d-%02d %02d:%02d:%02d", year, month, day, hour, minute, second)
	}
	return ident{
		center: int(binary.BigEndian.Uint16(sec[5:7])),
		ref:    time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC),
	}, nil
}

// latLon is a regular latitude/longitude grid from template 3.0.
type latLon struct {
	lon, lat field.Axis
}

func (g *latLon) points() int { return g.lon.Count * g.lat.Count }

func readGrid(sec []byte, at int) (*latLon, error) {
	if len(sec) < 14 {
		return nil, field.Errorf(format, at, "grid section is %d bytes", len(sec))
	}
	if tmpl := binary.BigEndian.Uint16(sec[12:14]); tmpl != 0 {
		return nil, field.Unsupported(format, "grid template 3.%d", tmpl)
	}
	if sec[10] != 0 {
		return nil, field.Unsupported(format, "quasi-regular grid")
	}
	if len(sec) < 72 {
		return nil, field.Errorf(format, at, "latitude/longitude grid section is %d bytes", len(sec))
	}

	ni, nj := binary.BigEndian.Uint32(sec[30:34]), binary.BigEndian.Uint32(sec[34:38])
	npoints := binary.BigEndian.Uint32(sec[6:10])
	if ni == 0 || nj == 0 || uint64(ni)*uint64(nj) > maxPoints {
		return nil, field.Errorf(format, at+30, "%d x %d grid", nj, ni)
	}
	if uint64(ni)*uint64(nj) != uint64(npoints) {
		return nil, field.Errorf(format, at+6, "%d x %d grid declares %d points", nj, ni, npoints)
	}

	unit := 1e-6
	if basic, sub := binary.BigEndian.Uint32(sec[38:42]), binary.BigEndian.Uint32(sec[42:46]); basic != 0 && basic != math.MaxUint32 {
		if sub == 0 || sub == math.MaxUint32 {
			return nil, field.Errorf(format, at+42, "basic angle %d without subdivisions", basic)
		}
		unit = float64(basic) / float64(sub)
	}
	la1, lo1 := float64(int32sm(sec[46:50]))*unit, float64(int32sm(sec[50:54]))*unit
	la2, lo2 := float64(int32sm(sec[55:59]))*unit, float64(int32sm(sec[59:63]))*unit
	flags, scan := sec[54], sec[71]
	if scan&0x80 != 0 || scan&0x20 != 0 {
		return nil, field.Unsupported(format, "scanning mode %#02x", scan)
	}

	// increments are magnitudes, the scanning mode gives the direction
	dlon := float64(binary.BigEndian.Uint32(sec[63:67])) * unit
	if flags&0x20 == 0 || binary.BigEndian.Uint32(sec[63:67]) == math.MaxUint32 {
		if lo2 < lo1 {
			lo2 += 360
		}
		dlon = 0
		if ni > 1 {
			dlon = (lo2 - lo1) / float64(ni-1)
		}
	}
	dlat := float64(binary.BigEndian.Uint32(sec[67:71])) * unit
	if flags&0x10 == 0 || binary.BigEndian.Uint32(sec[67:71]) == math.MaxUint32 {
		dlat = 0
		if nj > 1 {
			dlat = math.Abs(la2-la1) / float64(nj-1)
		}
	}
	if scan&0x40 == 0 {
		dlat = -dlat
	}

	lon, err := field.NewAxis(lo1, dlon, int(ni))
	if err != nil {
		return nil, field.Errorf(format, at+30, "longitude: %v", err)
	}
	lat, err := field.NewAxis(la1, dlat, int(nj))
	if err != nil {
		return nil, field.Errorf(format, at+34, "latitude: %v", err)
	}
	return &latLon{lon: lon, lat: lat}, nil
}

// product is the part of section 4 kept per field.
type product struct {
	template  int
	category  uint8
	number    uint8
	fhour     *int
	levelType uint8
	level     *float64
	member    *int
	period    *int // statistically processed templates
	statistic uint8
}

func readProduct(sec []byte, at int) (*product, error) {
	if len(sec) < 9 {
		return nil, field.Errorf(format, at, "product section is %d bytes", len(sec))
	}
	tmpl := int(binary.BigEndian.Uint16(sec[7:9]))
	need, stat := 34, -1
	switch tmpl {
	case 0:
	case 1:
		need = 37
	case 8:
		need, stat = 34+19, 34
	case 11:
		need, stat = 37+19, 37
	default:
		return nil, field.Unsupported(format, "product template 4.%d", tmpl)
	}
	if len(sec) < need {
		return nil, field.Errorf(format, at, "product template 4.%d section is %d bytes", tmpl, len(sec))
	}

	p := &product{template: tmpl, category: sec[9], number: sec[10], levelType: sec[22]}
	unit := sec[17]
	if h, ok := hours(unit, int32sm(sec[18:22])); ok {
		p.fhour = field.Int(h)
	}

	// a missing scale factor and value means the surface has no value
	if scale, raw := sec[23], binary.BigEndian.Uint32(sec[24:28]); scale != 0xff || raw != math.MaxUint32 {
		v := float64(raw) / math.Pow(10, float64(int8sm(scale)))
		if p.levelType == levelIsobaric {
			v /= 100 // Pa to hPa
		}
		p.level = field.Float(v)
	}

	if tmpl == 1 || tmpl == 11 {
		p.member = field.Int(int(sec[35]))
	}
	if stat >= 0 {
		p.statistic = sec[stat+12]
		if h, ok := hours(sec[stat+14], int64(binary.BigEndian.Uint32(sec[stat+15:stat+19]))); ok {
			p.period = field.Int(h)
			// the forecast time starts the period; report its end
			if p.fhour != nil {
				p.fhour = field.Int(*p.fhour + h)
			}
		}
	}
	return p, nil
}

// hours converts a forecast time in the given unit (code table 4.4).
func hours(unit uint8, v int64) (int, bool) {
	switch unit {
	case 0:
		return int(v / 60), true
	case 1:
		return int(v), true
	case 2:
		return int(v * 24), true
	case 10:
		return int(v * 3), true
	case 11:
		return int(v * 6), true
	case 12:
		return int(v * 12), true
	case 13:
		return int(v / 3600), true
	}
	return 0, false
}

// simple holds data representation template 5.0.
type simple struct {
	n         int
	reference float64
	exp2      int // binary scale factor
	exp10     int // decimal scale factor
	bits      int
}

func readPacking(sec []byte, at int) (*simple, error) {
	if len(sec) < 11 {
		return nil, field.Errorf(format, at, "data representation section is %d bytes", len(sec))
	}
	if tmpl := binary.BigEndian.Uint16(sec[9:11]); tmpl != 0 {
		return nil, field.Unsupported(format, "data representation template 5.%d", tmpl)
	}
	if len(sec) < 21 {
		return nil, field.Errorf(format, at, "simple packing section is %d bytes", len(sec))
	}
	p := &simple{
		n:         int(binary.BigEndian.Uint32(sec[5:9])),
		reference: float64(math.Float32frombits(binary.BigEndian.Uint32(sec[11:15]))),
		exp2:      int16sm(sec[15:17]),
		exp10:     int16sm(sec[17:19]),
		bits:      int(sec[19]),
	}
	if p.bits > 32 {
		return nil, field.Errorf(format, at+19, "%d bits per value", p.bits)
	}
	if p.n > maxPoints {
		return nil, field.Errorf(format, at+5, "%d packed values", p.n)
	}
	return p, nil
}

// unpack expands simple packing: (R + X * 2^E) / 10^D.
func (p *simple) unpack(data []byte, at int) ([]float64, error) {
	if uint64(p.n)*uint64(p.bits) > uint64(len(data))*8 {
		return nil, field.Errorf(format, at, "%d values of %d bits overrun the %d byte data section", p.n, p.bits, len(data))
	}
	d := math.Pow(10, float64(p.exp10))
	e := math.Ldexp(1, p.exp2)
	out := make([]float64, p.n)
	if p.bits == 0 {
		for i := range out {
			out[i] = p.reference / d
		}
		return out, nil
	}
	r := bitReader{buf: data}
	for i := range out {
		out[i] = (p.reference + float64(r.read(p.bits))*e) / d
	}
	return out, nil
}

// expand spreads packed values over the grid points whose bitmap bit is
// set. Unset points are missing.
func expand(values []float64, bitmap []byte, points, at int) ([]float64, error) {
	if len(bitmap)*8 < points {
		return nil, field.Errorf(format, at, "bitmap of %d bytes covers fewer than %d points", len(bitmap), points)
	}
	out := make([]float64, points)
	j := 0
	for i := range out {
		if bitmap[i/8]&(0x80>>uint(i%8)) == 0 {
			out[i] = math.NaN()
			continue
		}
		if j == len(values) {
			return nil, field.Errorf(format, at, "bitmap sets more points than the %d packed values", len(values))
		}
		out[i] = values[j]
		j++
	}
	if j != len(values) {
		return nil, field.Errorf(format, at, "bitmap sets %d points for %d packed values", j, len(values))
	}
	return out, nil
}
