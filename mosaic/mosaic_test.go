package mosaic

import (
	"bytes"
	"compress/lzw"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zlib"
	"github.com/nmcdev/metio/field"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func file(t *testing.T, head interface{}, payload ...interface{}) []byte {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, head))
	for _, p := range payload {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, p))
	}
	return buf.Bytes()
}

func TestHeadSizes(t *testing.T) {
	assert.Equal(t, 1024, binary.Size(SWANHead{}))
	assert.Equal(t, 256, binary.Size(MOCHead{}))
	assert.Equal(t, 256, binary.Size(LatLonHead{}))
}

func swanHead(product string, kind int16) SWANHead {
	h := SWANHead{
		Year: 2021, Month: 7, Day: 20, Hour: 8, Minute: 6,
		XNumber: 3, YNumber: 2, ZNumber: 1,
		StartLon: 100, StartLat: 40, CenterLon: 101, CenterLat: 39.5,
		ValueType: kind,
	}
	h.Heights[0] = 1.5
	copy(h.DataType[:], "SWAN")
	copy(h.DataName[:], product)
	return h
}

func TestDecodeSWANReflectivity(t *testing.T) {
	src := file(t, swanHead("CR", swanUint8), []uint8{0, 66, 76, 86, 96, 106})
	g, err := DecodeSWAN(src, "")
	require.NoError(t, err)

	assertValues(t, []float64{10, 15, 20, math.NaN(), 0, 5}, g.Vars[0].Data)
	assert.Equal(t, "cr", g.Vars[0].Name)
	assert.InDeltaSlice(t, []float64{39, 40}, g.Lat.Values(), 1e-9)
	assert.InDeltaSlice(t, []float64{100, 101, 102}, g.Lon.Values(), 1e-9)
	assert.Equal(t, 1.5, *g.Header.Level)
	assert.Equal(t, time.Date(2021, 7, 20, 8, 6, 0, 0, time.UTC), g.Header.Time)

	t.Run("bzip2 envelope", func(t *testing.T) {
		var buf bytes.Buffer
		w, err := bzip2.NewWriter(&buf, nil)
		require.NoError(t, err)
		_, err = w.Write(src)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		g2, err := DecodeSWAN(buf.Bytes(), "")
		require.NoError(t, err)
		assertValues(t, g.Vars[0].Data, g2.Vars[0].Data)
	})
}

func TestDecodeSWANRaw(t *testing.T) {
	h := swanHead("VIL", swanInt16)
	h.ZNumber = 2
	h.Heights[1] = 3
	g, err := DecodeSWAN(file(t, h, []int16{1, 2, 3, 4, 5, 6, -1, -2, -3, -4, -5, -6}), "")
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2, 3}, g.Shape())
	assert.Equal(t, []float64{1.5, 3}, g.Levels)
	assert.Equal(t, []float64{4, 5, 6, 1, 2, 3, -4, -5, -6, -1, -2, -3}, g.Vars[0].Data)
	assert.Nil(t, g.Header.Level)
}

func TestDecodeSWANErrors(t *testing.T) {
	_, err := DecodeSWAN(file(t, swanHead("CR", 9), make([]byte, 6)), "")
	var ue *field.UnsupportedVariantError
	assert.True(t, errors.As(err, &ue))

	_, err = DecodeSWAN(file(t, swanHead("CR", swanUint16), make([]byte, 6)), "")
	var fe *field.FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 1024, fe.Offset)

	_, err = DecodeSWAN(make([]byte, 100), "")
	assert.True(t, errors.As(err, &fe))
}

func mocHead(compress int16) MOCHead {
	h := MOCHead{
		Year: 2021, Month: 7, Day: 20, Hour: 8, Minute: 6, Second: 30,
		EdgeSouth: 39000, EdgeNorth: 40000, EdgeWest: 110000, EdgeEast: 111000,
		XNumber: 2, YNumber: 2, DX: 100, DY: 100,
		Compress: compress, Scale: 10,
	}
	copy(h.Label[:], "MOC")
	copy(h.VarName[:], "CREF")
	copy(h.Units[:], "dBZ")
	return h
}

func mocPayload(t *testing.T, compress int16) []byte {
	var raw bytes.Buffer
	require.NoError(t, binary.Write(&raw, binary.LittleEndian, []int16{100, math.MinInt16, 300, 400}))

	var buf bytes.Buffer
	switch compress {
	case CompressNone:
		return raw.Bytes()
	case CompressBzip2:
		w, err := bzip2.NewWriter(&buf, nil)
		require.NoError(t, err)
		_, err = w.Write(raw.Bytes())
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case CompressZlib:
		w := zlib.NewWriter(&buf)
		_, err := w.Write(raw.Bytes())
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case CompressLZW:
		w := lzw.NewWriter(&buf, lzw.MSB, 8)
		_, err := w.Write(raw.Bytes())
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}
	return buf.Bytes()
}

func TestDecodeMOC(t *testing.T) {
	for name, code := range map[string]int16{
		"none":  CompressNone,
		"bzip2": CompressBzip2,
		"zlib":  CompressZlib,
		"lzw":   CompressLZW,
	} {
		t.Run(name, func(t *testing.T) {
			g, err := DecodeMOC(file(t, mocHead(code), mocPayload(t, code)))
			require.NoError(t, err)

			assertValues(t, []float64{30, 40, 10, math.NaN()}, g.Vars[0].Data)
			assert.InDeltaSlice(t, []float64{39, 40}, g.Lat.Values(), 1e-9)
			assert.InDeltaSlice(t, []float64{110, 111}, g.Lon.Values(), 1e-9)
			assert.Equal(t, "dBZ", g.Vars[0].Units)
			assert.Equal(t, "0.01", g.Header.Attr("dx"))
			assert.Equal(t, time.Date(2021, 7, 20, 8, 6, 30, 0, time.UTC), g.Header.Time)
		})
	}
}

func TestDecodeMOCErrors(t *testing.T) {
	var ue *field.UnsupportedVariantError
	_, err := DecodeMOC(file(t, mocHead(7), []byte{1, 2}))
	assert.True(t, errors.As(err, &ue), "unknown compress code")

	legacy := mocHead(CompressNone)
	copy(legacy.Label[:], "OLD")
	_, err = DecodeMOC(file(t, legacy, mocPayload(t, CompressNone)))
	assert.True(t, errors.As(err, &ue), "legacy head")

	var fe *field.FormatError
	_, err = DecodeMOC(file(t, mocHead(CompressZlib), []byte{1, 2, 3}))
	assert.True(t, errors.As(err, &fe), "corrupt zlib")

	_, err = DecodeMOC(file(t, mocHead(CompressNone), []int16{1, 2}))
	assert.True(t, errors.As(err, &fe), "short payload")
}

func latlonHead() LatLonHead {
	h := LatLonHead{
		GridFlag: LatLonGridFlag, DataByte: 2,
		SouthLat: 39, NorthLat: 40, WestLon: 110, EastLon: 111.5,
		Rows: 2, Cols: 3, DLat: 0.5, DLon: 0.5, Amp: 10,
		Dates: 18262, Seconds: 3600,
	}
	copy(h.Name[:], "CREF")
	return h
}

func TestDecodeLatLon(t *testing.T) {
	src := file(t, latlonHead(),
		[]int16{1, 2, 2, 11, 21},
		[]int16{2, 1, 1, 101},
		[]int16{-1, -1},
	)
	g, err := DecodeLatLon(src)
	require.NoError(t, err)

	assertValues(t, []float64{10, math.NaN(), math.NaN(), math.NaN(), 1, 2}, g.Vars[0].Data)
	assert.InDeltaSlice(t, []float64{39.25, 39.75}, g.Lat.Values(), 1e-9)
	assert.InDeltaSlice(t, []float64{110.25, 110.75, 111.25}, g.Lon.Values(), 1e-9)
	assert.Equal(t, time.Date(2020, 1, 1, 1, 0, 0, 0, time.UTC), g.Header.Time)
	assert.Equal(t, "CREF", g.Header.Attr("product"))
}

func TestDecodeLatLonErrors(t *testing.T) {
	var fe *field.FormatError

	h := latlonHead()
	h.GridFlag = 1
	_, err := DecodeLatLon(file(t, h))
	assert.True(t, errors.As(err, &fe), "grid flag")

	_, err = DecodeLatLon(file(t, latlonHead(), []int16{2, 3, 2, 1, 1}))
	require.True(t, errors.As(err, &fe), "run outside grid")
	assert.Equal(t, 256, fe.Offset)

	_, err = DecodeLatLon(file(t, latlonHead(), []int16{1, 1, 3, 1}))
	assert.True(t, errors.As(err, &fe), "truncated run")
}

func TestDecodeLatLonRunBounds(t *testing.T) {
	tests := []struct {
		name string
		run  []int16
	}{
		// 1-based column 5 of 3 would land on row 2 without the column check
		{"column past row end", []int16{1, 5, 1, 7}},
		{"row past grid", []int16{3, 1, 1, 7}},
		{"zero column", []int16{1, 0, 1, 7}},
		{"negative count", []int16{1, 1, -2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeLatLon(file(t, latlonHead(), tt.run, []int16{-1, -1}))
			var fe *field.FormatError
			require.True(t, errors.As(err, &fe), "got %v", err)
			assert.Equal(t, 256, fe.Offset)
		})
	}
}

func TestDecodeRejectsOversizedGrids(t *testing.T) {
	hugeSWAN := swanHead("CR", swanUint16)
	hugeSWAN.XNumber, hugeSWAN.YNumber, hugeSWAN.ZNumber = 65535, 65535, 40
	deepSWAN := swanHead("CR", swanUint8)
	deepSWAN.ZNumber = 41
	hugeMOC := mocHead(CompressNone)
	hugeMOC.XNumber, hugeMOC.YNumber = 2000000000, 2000000000
	hugeLatLon := latlonHead()
	hugeLatLon.Rows, hugeLatLon.Cols = 2000000000, 2000000000
	wideLatLon := latlonHead()
	wideLatLon.Rows, wideLatLon.Cols = 30000, 30000
	negLatLon := latlonHead()
	negLatLon.Cols = -3

	tests := []struct {
		name   string
		decode func() (*field.Grid, error)
		offset int
	}{
		{"swan", func() (*field.Grid, error) { return DecodeSWAN(file(t, hugeSWAN, make([]byte, 8)), "") }, 1024},
		{"swan levels", func() (*field.Grid, error) { return DecodeSWAN(file(t, deepSWAN, make([]byte, 8)), "") }, 84},
		{"moc", func() (*field.Grid, error) { return DecodeMOC(file(t, hugeMOC, make([]byte, 8))) }, 256},
		{"latlon", func() (*field.Grid, error) { return DecodeLatLon(file(t, hugeLatLon, []int16{-1, -1})) }, 204},
		{"latlon cells", func() (*field.Grid, error) { return DecodeLatLon(file(t, wideLatLon, []int16{-1, -1})) }, 204},
		{"latlon negative", func() (*field.Grid, error) { return DecodeLatLon(file(t, negLatLon, []int16{-1, -1})) }, 204},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.decode()
			var fe *field.FormatError
			require.True(t, errors.As(err, &fe), "got %v", err)
			assert.Equal(t, tt.offset, fe.Offset)
		})
	}
}
