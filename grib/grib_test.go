package grib

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/nmcdev/metio/field"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var be = binary.BigEndian

func section(num byte, size int) []byte {
	s := make([]byte, size)
	be.PutUint32(s, uint32(size))
	s[4] = num
	return s
}

func ident2021() []byte {
	s := section(1, 21)
	be.PutUint16(s[5:], 38)
	be.PutUint16(s[12:], 2021)
	s[14], s[15], s[16] = 7, 20, 12
	return s
}

// lonLat is a 3 x 2 grid from 100E to 102E, rows from 40N down to 39N.
func lonLat(ni, nj uint32) []byte {
	s := section(3, 72)
	be.PutUint32(s[6:], ni*nj)
	be.PutUint32(s[30:], ni)
	be.PutUint32(s[34:], nj)
	be.PutUint32(s[42:], math.MaxUint32)
	be.PutUint32(s[46:], 40000000)
	be.PutUint32(s[50:], 100000000)
	s[54] = 0x30
	be.PutUint32(s[55:], 39000000)
	be.PutUint32(s[59:], 102000000)
	be.PutUint32(s[63:], 1000000)
	be.PutUint32(s[67:], 1000000)
	return s
}

// analysis is template 4.0 at 500 hPa, 24 hours ahead.
func analysis(category, number byte) []byte {
	s := section(4, 34)
	s[9], s[10] = category, number
	s[17] = 1
	be.PutUint32(s[18:], 24)
	s[22] = levelIsobaric
	be.PutUint32(s[24:], 50000)
	s[28], s[29] = 255, 255
	be.PutUint32(s[30:], math.MaxUint32)
	return s
}

// packing is template 5.0 with 8 bit values: (2500 + X) / 10.
func packing(n uint32) []byte {
	s := section(5, 21)
	be.PutUint32(s[5:], n)
	be.PutUint32(s[11:], math.Float32bits(2500))
	be.PutUint16(s[17:], 1)
	s[19] = 8
	return s
}

func noBitmap() []byte {
	s := section(6, 6)
	s[5] = 255
	return s
}

func data(packed ...byte) []byte {
	return append(section(7, 5+len(packed))[:5], packed...)
}

func message(sections ...[]byte) []byte {
	msg := append([]byte("GRIB"), 0, 0, 0, 2)
	msg = append(msg, make([]byte, 8)...)
	for _, s := range sections {
		msg = append(msg, s...)
	}
	msg = append(msg, "7777"...)
	be.PutUint64(msg[8:], uint64(len(msg)))
	return msg
}

func temperature() []byte {
	return message(ident2021(), lonLat(3, 2), analysis(0, 0), packing(6), noBitmap(), data(0, 10, 20, 30, 40, 50))
}

func assertValues(t *testing.T, want, got []float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		if math.IsNaN(want[i]) {
			assert.True(t, math.IsNaN(got[i]), "value %d: want NaN, got %v", i, got[i])
			continue
		}
		assert.InDelta(t, want[i], got[i], 1e-6, "value %d", i)
	}
}

func TestDecode(t *testing.T) {
	grids, err := Decode(temperature())
	require.NoError(t, err)
	require.Len(t, grids, 1)
	g := grids[0]

	assert.Equal(t, time.Date(2021, 7, 20, 12, 0, 0, 0, time.UTC), g.Header.Time)
	assert.Equal(t, 24, *g.Header.ForecastHour)
	assert.Equal(t, 500.0, *g.Header.Level)
	assert.Equal(t, []float64{500}, g.Levels)
	assert.Equal(t, "t", g.Header.Attr("short_name"))
	assert.Equal(t, "isobaricInhPa", g.Header.Attr("level_type"))
	assert.Equal(t, "38", g.Header.Attr("center"))
	assert.Equal(t, []float64{100, 101, 102}, g.Lon.Values())
	assert.Equal(t, []float64{39, 40}, g.Lat.Values())
	require.Len(t, g.Vars, 1)
	assert.Equal(t, "K", g.Vars[0].Units)
	// rows are stored north first
	assertValues(t, []float64{253, 254, 255, 250, 251, 252}, g.Vars[0].Data)
}

func TestDecodeBitmap(t *testing.T) {
	bitmap := append(section(6, 7)[:6], 0xb4) // points 0, 2, 3 and 5
	grids, err := Decode(message(ident2021(), lonLat(3, 2), analysis(0, 0), packing(4), bitmap, data(0, 10, 20, 30)))
	require.NoError(t, err)
	// north row 250 _ 251, south row 252 _ 253
	assertValues(t, []float64{252, math.NaN(), 253, 250, math.NaN(), 251}, grids[0].Vars[0].Data)
}

func TestDecodeProductTemplates(t *testing.T) {
	ensemble := section(4, 37)
	copy(ensemble, analysis(2, 2))
	be.PutUint32(ensemble, 37)
	be.PutUint16(ensemble[7:], 1)
	ensemble[35] = 3

	accum := section(4, 53)
	copy(accum, analysis(1, 8))
	be.PutUint32(accum, 53)
	be.PutUint16(accum[7:], 8)
	be.PutUint32(accum[18:], 18)
	accum[22], accum[23] = levelSurface, 255
	be.PutUint32(accum[24:], math.MaxUint32)
	accum[46], accum[48] = 1, 1
	be.PutUint32(accum[49:], 6)

	t.Run("ensemble member", func(t *testing.T) {
		grids, err := Decode(message(ident2021(), lonLat(3, 2), ensemble, packing(6), noBitmap(), data(0, 0, 0, 0, 0, 0)))
		require.NoError(t, err)
		g := grids[0]
		assert.Equal(t, []int{3}, g.Members)
		assert.Equal(t, []int{1, 1, 2, 3}, g.Shape())
		assert.Equal(t, "u", g.Vars[0].Name)
	})
	t.Run("accumulation", func(t *testing.T) {
		grids, err := Decode(message(ident2021(), lonLat(3, 2), accum, packing(6), noBitmap(), data(0, 0, 0, 0, 0, 0)))
		require.NoError(t, err)
		g := grids[0]
		assert.Equal(t, 24, *g.Header.ForecastHour)
		assert.Nil(t, g.Header.Level)
		assert.Equal(t, "6", g.Header.Attr("period"))
		assert.Equal(t, "accum", g.Header.Attr("statistic"))
		assert.Equal(t, "tp", g.Header.Attr("short_name"))
		assert.Equal(t, "surface", g.Header.Attr("level_type"))
	})
}

func TestDecodeRepeatedSections(t *testing.T) {
	vals := data(0, 10, 20, 30, 40, 50)
	msg := message(ident2021(), lonLat(3, 2),
		analysis(2, 2), packing(6), noBitmap(), vals,
		analysis(2, 3), packing(6), noBitmap(), vals)
	two := append(append([]byte{}, msg...), temperature()...)

	tests := []struct {
		name  string
		data  []byte
		opts  []Option
		names []string
	}{
		{"every field", two, nil, []string{"u", "v", "t"}},
		{"by short name", two, []Option{WithShortNames("v", "t")}, []string{"v", "t"}},
		{"by level type", two, []Option{WithLevelTypes("surface")}, nil},
		{"padding between messages", append(append(append([]byte{}, msg...), 0, 0, 0), temperature()...), nil, []string{"u", "v", "t"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grids, err := Decode(tt.data, tt.opts...)
			require.NoError(t, err)
			var names []string
			for _, g := range grids {
				names = append(names, g.Vars[0].Name)
			}
			assert.Equal(t, tt.names, names)
		})
	}
}

func TestDecodeLimit(t *testing.T) {
	grids, err := Decode(temperature(), WithLimit(field.BBox{MinLat: 39.5, MaxLat: 41, MinLon: 100.5, MaxLon: 102}))
	require.NoError(t, err)
	g := grids[0]
	assert.Equal(t, []float64{101, 102}, g.Lon.Values())
	assert.Equal(t, []float64{40}, g.Lat.Values())
	assertValues(t, []float64{251, 252}, g.Vars[0].Data)
}

func TestDecodeConstantField(t *testing.T) {
	p := packing(6)
	p[19] = 0
	grids, err := Decode(message(ident2021(), lonLat(3, 2), analysis(0, 0), p, noBitmap(), data()))
	require.NoError(t, err)
	assertValues(t, []float64{250, 250, 250, 250, 250, 250}, grids[0].Vars[0].Data)
}

func TestDecodeErrors(t *testing.T) {
	good := temperature()
	lying := append([]byte{}, good...)
	be.PutUint64(lying[8:], uint64(len(good)+100))
	noEnd := append([]byte{}, good[:len(good)-4]...)
	be.PutUint64(noEnd[8:], uint64(len(noEnd)))

	tests := []struct {
		name string
		data []byte
	}{
		{"no message", []byte("not a grib file")},
		{"truncated indicator", []byte("GRIB\x00\x00\x00\x02")},
		{"edition 3", append([]byte("GRIB\x00\x00\x00\x03"), make([]byte, 8)...)},
		{"length past end", lying},
		{"missing 7777", noEnd},
		{"huge grid", message(ident2021(), lonLat(1<<20, 1<<20), analysis(0, 0), packing(6), noBitmap(), data(0, 10, 20, 30, 40, 50))},
		{"values overrun data", message(ident2021(), lonLat(3, 2), analysis(0, 0), packing(6), noBitmap(), data(0, 10))},
		{"packed count mismatch", message(ident2021(), lonLat(3, 2), analysis(0, 0), packing(5), noBitmap(), data(0, 10, 20, 30, 40))},
		{"bitmap too short", message(ident2021(), lonLat(3, 2), analysis(0, 0), packing(4), section(6, 6), data(0, 10, 20, 30))},
		{"data before grid", message(ident2021(), analysis(0, 0), packing(6), noBitmap(), data(0, 10, 20, 30, 40, 50))},
		{"section overruns message", message(ident2021(), section(3, 200)[:20])},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			var fe *field.FormatError
			require.True(t, errors.As(err, &fe), "got %v", err)
			assert.Equal(t, "grib2", fe.Format)
		})
	}
}

func TestDecodeUnsupported(t *testing.T) {
	jpeg := packing(6)
	be.PutUint16(jpeg[9:], 40)
	lambert := lonLat(3, 2)
	be.PutUint16(lambert[12:], 30)
	reversed := lonLat(3, 2)
	reversed[71] = 0x80

	tests := []struct {
		name string
		data []byte
	}{
		{"edition 1", append([]byte("GRIB\x00\x00\x00\x01"), make([]byte, 8)...)},
		{"jpeg2000 packing", message(ident2021(), lonLat(3, 2), analysis(0, 0), jpeg)},
		{"lambert grid", message(ident2021(), lambert)},
		{"westward scan", message(ident2021(), reversed)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			var ue *field.UnsupportedVariantError
			require.True(t, errors.As(err, &ue), "got %v", err)
		})
	}
}

func TestSignMagnitude(t *testing.T) {
	assert.Equal(t, -1, int16sm([]byte{0x80, 0x01}))
	assert.Equal(t, 1, int16sm([]byte{0x00, 0x01}))
	assert.Equal(t, int64(-40000000), int32sm([]byte{0x82, 0x62, 0x5a, 0x00}))
	assert.Equal(t, -3, int8sm(0x83))
}

func TestBitReader(t *testing.T) {
	// 12 bit values 0xabc, 0x123 then one byte aligned 0x45
	r := bitReader{buf: []byte{0xab, 0xc1, 0x23, 0x45}}
	assert.Equal(t, uint32(0xabc), r.read(12))
	assert.Equal(t, uint32(0x123), r.read(12))
	assert.Equal(t, uint32(0x45), r.read(8))
}

func TestIsGRIB2(t *testing.T) {
	assert.True(t, IsGRIB2(temperature()))
	assert.False(t, IsGRIB2(append([]byte("GRIB\x00\x00\x00\x01"), make([]byte, 8)...)))
	assert.False(t, IsGRIB2([]byte("GRIB")))
}
