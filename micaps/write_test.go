package micaps

import (
	"bytes"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nmcdev/metio/field"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGrid(t *testing.T, vars ...field.Variable) *field.Grid {
	t.Helper()
	lon, err := field.NewAxis(100, 0.5, 3)
	require.NoError(t, err)
	lat, err := field.NewAxis(30, 1, 2)
	require.NoError(t, err)
	h := field.Header{
		Time:         time.Date(2021, 7, 20, 8, 0, 0, 0, time.UTC),
		ForecastHour: field.Int(24),
		Level:        field.Float(500),
	}
	g, err := field.NewGrid(h, lon, lat, []float64{500}, nil, vars...)
	require.NoError(t, err)
	return g
}

func TestHeadline(t *testing.T) {
	init := time.Date(2001, 1, 8, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		h    Headline
		want string
	}{
		{"analysis", Headline{Init: init}, "01010808IT"},
		{"forecast", Headline{Init: init, ForecastHour: field.Int(24), Model: "ecmwf", Level: field.Float(500), Name: "TMP"},
			"01010808IT_024FH_(0908)_ECMWF_500LEV_TMP"},
		{"accumulated", Headline{Init: init, ForecastHour: field.Int(24), Period: field.Int(12)},
			"01010808IT_024FH_(0820-0908)"},
		{"no level", Headline{Init: init, Level: field.Float(-1), Name: "2m temp"}, "01010808IT_2m_temp"},
		{"fractional level", Headline{Init: init, Level: field.Float(0.5)}, "01010808IT_0.5LEV"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.h.String())
		})
	}
}

func TestEncode4RoundTrip(t *testing.T) {
	g := testGrid(t, field.Variable{Name: "data", Data: []float64{1, 2.5, math.NaN(), -4, 5.125, 6}})

	var buf bytes.Buffer
	require.NoError(t, Encode4(&buf, g, WithModel("grapes"), WithName("HGT")))
	assert.True(t, strings.HasPrefix(buf.String(), "diamond 4 21072008IT_024FH_(2108)_GRAPES_500LEV_HGT\n"), buf.String())

	back, err := Decode4(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, g.Header.Time, back.Header.Time)
	assert.Equal(t, 24, *back.Header.ForecastHour)
	assert.Equal(t, 500.0, *back.Header.Level)
	assert.Equal(t, g.Lon.Values(), back.Lon.Values())
	assert.Equal(t, g.Lat.Values(), back.Lat.Values())
	assertSameValues(t, g.Vars[0].Data, back.Vars[0].Data)
	assert.Equal(t, "1", back.Header.Attr("smooth"))
	assert.Equal(t, "-1", back.Header.Attr("bold"))
}

func TestEncode4Contours(t *testing.T) {
	g := testGrid(t, field.Variable{Name: "data", Data: []float64{0, 9, 18, 0, 0, 0}})
	tests := []struct {
		name string
		opts []WriteOption
		want [3]string
		show string
	}{
		{"data range", nil, [3]string{"2", "0", "18"}, "-1"},
		{"explicit", []WriteOption{WithContours(4, 0, 20), WithValuesOnly()}, [3]string{"4", "0", "20"}, "-2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode4(&buf, g, tt.opts...))
			back, err := Decode4(buf.Bytes())
			require.NoError(t, err)
			assert.Equal(t, tt.want[0], back.Header.Attr("contour_interval"))
			assert.Equal(t, tt.want[1], back.Header.Attr("contour_start"))
			assert.Equal(t, tt.want[2], back.Header.Attr("contour_end"))
			assert.Equal(t, tt.show, back.Header.Attr("bold"))
		})
	}
}

func TestEncode11RoundTrip(t *testing.T) {
	g := testGrid(t,
		field.Variable{Name: "uwind", Data: []float64{3, 0, -3, 1, 2, math.NaN()}},
		field.Variable{Name: "vwind", Data: []float64{4, 5, 4, 1, 2, 3}},
	)
	var buf bytes.Buffer
	require.NoError(t, Encode11(&buf, g))

	back, err := Decode11(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, g.Header.Time, back.Header.Time)
	u, ok := back.Var("uwind")
	require.True(t, ok)
	v, ok := back.Var("vwind")
	require.True(t, ok)
	assertSameValues(t, g.Vars[0].Data, u.Data)
	assertSameValues(t, g.Vars[1].Data, v.Data)
	speed, ok := back.Var("speed")
	require.True(t, ok)
	assert.InDelta(t, 5.0, speed.Data[0], 1e-9)
}

func TestEncode3RoundTrip(t *testing.T) {
	h := field.Header{Description: "rain 24h", Time: time.Date(2020, 7, 1, 8, 0, 0, 0, time.UTC), Level: field.Float(-1)}
	b := field.NewBuilder(h, stationSchema([]string{"lon", "lat", "alt", "Var0", "Var1"})...)
	b.AddTokens([]string{"54511", "116.28", "39.93", "31.3", "12.5", "1"})
	b.AddTokens([]string{"54401", "115.97", "40.45", "536.8", "9999", "0"})
	tbl := b.Table()

	var buf bytes.Buffer
	require.NoError(t, Encode3(&buf, tbl, WithContourLevels(10, 25, 50), WithSmoothing(2, 1), WithBoundary(110, 30, 120, 30, 120, 40)))
	assert.True(t, strings.HasPrefix(buf.String(), "diamond 3 2020年07月01日08时rain_24h\n"), buf.String())

	back, err := Decode3(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, 2, back.Len())
	assert.Equal(t, h.Time, back.Header.Time)
	assert.Equal(t, -1.0, *back.Header.Level)
	assert.Equal(t, "2", back.Header.Attr("smooth"))
	assert.Equal(t, "54401", back.Text(1, "ID"))
	assert.InDelta(t, 116.28, back.Float(0, "lon"), 1e-9)
	assert.InDelta(t, 536.8, back.Float(1, "alt"), 1e-9)
	assert.Equal(t, 12.5, back.Float(0, "Var0"))
	assert.True(t, math.IsNaN(back.Float(1, "Var0")))
	assert.Equal(t, 0.0, back.Float(1, "Var1"))
}

func TestEncode3Errors(t *testing.T) {
	b := field.NewBuilder(field.Header{}, field.Numbers("lon", "lat")...)
	err := Encode3(&bytes.Buffer{}, b.Table())
	requireFormatError(t, err)

	b = field.NewBuilder(field.Header{}, stationSchema([]string{"lon", "lat"})...)
	err = Encode3(&bytes.Buffer{}, b.Table(), WithBoundary(1, 2, 3))
	requireFormatError(t, err)
}

func TestEncodeGrid3(t *testing.T) {
	g := testGrid(t, field.Variable{Name: "data", Data: []float64{0.2, 5, math.NaN(), 1, 12, 0}})
	tests := []struct {
		name string
		opts []WriteOption
		want []float64
		lons []float64
	}{
		{"all points", nil, []float64{0.2, 5, math.NaN(), 1, 12, 0}, []float64{100, 100.5, 101, 100, 100.5, 101}},
		{"above threshold", []WriteOption{WithMinValue(1)}, []float64{5, 1, 12}, []float64{100.5, 100, 100.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, EncodeGrid3(&buf, g, tt.opts...))

			back, err := Decode3(buf.Bytes())
			require.NoError(t, err)
			// the head carries the valid time
			assert.Equal(t, time.Date(2021, 7, 21, 8, 0, 0, 0, time.UTC), back.Header.Time)
			require.Equal(t, len(tt.want), back.Len())
			for i := range tt.want {
				assert.Equal(t, strconv.Itoa(i), back.Text(i, "ID"))
				assert.InDelta(t, tt.lons[i], back.Float(i, "lon"), 1e-9)
				assert.Equal(t, 666.0, back.Float(i, "alt"))
			}
			assertSameValues(t, tt.want, columnValues(back, "Var0"))
		})
	}
}

func TestEncodeRejectsUnwritableGrids(t *testing.T) {
	one := testGrid(t, field.Variable{Name: "data", Data: make([]float64, 6)})
	deep := testGrid(t, field.Variable{Name: "data", Data: make([]float64, 6)})
	deep.Levels = []float64{500, 850}

	tests := []struct {
		name   string
		encode func() error
	}{
		{"vector from one variable", func() error { return Encode11(&bytes.Buffer{}, one) }},
		{"two levels", func() error { return Encode4(&bytes.Buffer{}, deep) }},
		{"two levels as stations", func() error { return EncodeGrid3(&bytes.Buffer{}, deep) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireFormatError(t, tt.encode())
		})
	}
}

func TestCreate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	name := FileName(time.Date(2021, 7, 20, 8, 0, 0, 0, time.UTC), 24)
	assert.Equal(t, "21072008.024", name)

	path, existed, err := Create(dir, name, func(w io.Writer) error {
		_, err := w.Write([]byte("first"))
		return err
	})
	require.NoError(t, err)
	assert.False(t, existed)

	_, existed, err = Create(dir, name, func(w io.Writer) error {
		_, err := w.Write([]byte("second"))
		return err
	})
	require.NoError(t, err)
	assert.True(t, existed)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))

	boom := errors.New("boom")
	_, _, err = Create(dir, "broken", func(w io.Writer) error { return boom })
	assert.ErrorIs(t, err, boom)
	_, err = os.Stat(filepath.Join(dir, "broken"))
	assert.True(t, os.IsNotExist(err))
}

func assertSameValues(t *testing.T, want, got []float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		if math.IsNaN(want[i]) {
			assert.True(t, math.IsNaN(got[i]), "value %d: want NaN, got %v", i, got[i])
			continue
		}
		assert.InDelta(t, want[i], got[i], 1e-4, "value %d", i)
	}
}

func columnValues(t *field.Table, name string) []float64 {
	out := make([]float64, t.Len())
	for i := range out {
		out[i] = t.Float(i, name)
	}
	return out
}
