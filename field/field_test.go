package field

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAxisFromBounds(t *testing.T) {
	t.Run("step follows declared end", func(t *testing.T) {
		a, err := AxisFromBounds(40, 38, 1, 3)
		require.NoError(t, err)
		assert.Equal(t, []float64{40, 39, 38}, a.Values())
		assert.True(t, a.Descending())
	})

	t.Run("consistent step kept", func(t *testing.T) {
		a, err := AxisFromBounds(100, 102, 1, 3)
		require.NoError(t, err)
		assert.Equal(t, []float64{100, 101, 102}, a.Values())
	})

	t.Run("count must be positive", func(t *testing.T) {
		_, err := AxisFromBounds(0, 1, 1, 0)
		assert.Error(t, err)
	})
}

func TestAxisReversedRoundTrip(t *testing.T) {
	a, err := NewAxis(10, -0.5, 5)
	require.NoError(t, err)
	r := a.Reversed()
	assert.Equal(t, []float64{8, 8.5, 9, 9.5, 10}, r.Values())
	assert.True(t, a.Equal(r.Reversed()))
}

func TestLinspace(t *testing.T) {
	a, err := Linspace(0, 10, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 5, 10}, a.Values())
}

func testGrid(t *testing.T) *Grid {
	lon, err := NewAxis(100, 1, 3)
	require.NoError(t, err)
	lat, err := NewAxis(40, -1, 3)
	require.NoError(t, err)
	g, err := NewGrid(Header{Format: "test"}, lon, lat, nil, nil,
		Variable{Name: "data", Data: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}})
	require.NoError(t, err)
	return g
}

func TestGridAscendingLat(t *testing.T) {
	g := testGrid(t).AscendingLat()

	assert.Equal(t, []float64{38, 39, 40}, g.Lat.Values())
	assert.Equal(t, []float64{7, 8, 9, 4, 5, 6, 1, 2, 3}, g.Vars[0].Data)
	assert.Equal(t, 7.0, g.Value(0, 0, 0, 0))
	assert.Same(t, g, g.AscendingLat())
}

func TestGridSubset(t *testing.T) {
	g := testGrid(t).AscendingLat()

	t.Run("inner box", func(t *testing.T) {
		s := g.Subset(BBox{MinLat: 39, MinLon: 101, MaxLat: 40, MaxLon: 102})
		assert.Equal(t, []int{2, 2}, s.Shape())
		assert.Equal(t, []float64{5, 6, 2, 3}, s.Vars[0].Data)
		assert.Equal(t, 101.0, s.Lon.Start)
		// source untouched
		assert.Len(t, g.Vars[0].Data, 9)
	})

	t.Run("box outside grid", func(t *testing.T) {
		s := g.Subset(BBox{MinLat: -10, MinLon: 0, MaxLat: -5, MaxLon: 10})
		assert.True(t, s.Empty())
		assert.Empty(t, s.Vars[0].Data)
	})
}

func TestGridScaled(t *testing.T) {
	g := testGrid(t)
	g.Vars[0].Data[0] = math.NaN()
	s := g.Scaled(2, 1)
	assert.True(t, math.IsNaN(s.Vars[0].Data[0]))
	assert.Equal(t, 5.0, s.Vars[0].Data[1])
	assert.Equal(t, 2.0, g.Vars[0].Data[1])
}

func TestNewGridRejectsShapeMismatch(t *testing.T) {
	lon, _ := NewAxis(0, 1, 2)
	lat, _ := NewAxis(0, 1, 2)
	_, err := NewGrid(Header{}, lon, lat, []float64{500, 850}, nil, Variable{Name: "x", Data: make([]float64, 4)})
	assert.Error(t, err)
}

func TestBuilderMasksSentinel(t *testing.T) {
	b := NewBuilder(Header{}, append([]Column{{Name: "ID", Kind: Text}}, Numbers("lon", "lat", "value")...)...)
	b.AddTokens([]string{"54511", "116.28", "39.93", "9999"})
	b.AddTokens([]string{"54401", "115.0", "40.5", "abc"})
	tab := b.Table()

	require.Equal(t, 2, tab.Len())
	assert.Equal(t, "54511", tab.Text(0, "ID"))
	assert.Equal(t, 116.28, tab.Float(0, "lon"))
	assert.True(t, IsMissing(tab.Float(0, "value")))
	assert.True(t, IsMissing(tab.Float(1, "value")))
	assert.True(t, IsMissing(tab.Float(0, "nope")))
}

func TestTableSubset(t *testing.T) {
	b := NewBuilder(Header{}, Numbers("lon", "lat")...)
	b.AddTokens([]string{"116", "40"})
	b.AddTokens([]string{"80", "10"})
	tab := b.Table()

	s := tab.Subset(BBox{MinLat: 30, MinLon: 100, MaxLat: 50, MaxLon: 120}, "lat", "lon")
	assert.Equal(t, 1, s.Len())
	empty := tab.Subset(BBox{MinLat: -10, MinLon: 0, MaxLat: 0, MaxLon: 1}, "lat", "lon")
	assert.Equal(t, 0, empty.Len())
}

func TestParseBBox(t *testing.T) {
	b, err := ParseBBox("15,70,55,140")
	require.NoError(t, err)
	assert.Equal(t, BBox{MinLat: 15, MinLon: 70, MaxLat: 55, MaxLon: 140}, b)

	for _, bad := range []string{"1,2,3", "a,b,c,d", "50,70,10,140"} {
		_, err := ParseBBox(bad)
		assert.Error(t, err, bad)
	}
}

func TestWithFile(t *testing.T) {
	err := fmt.Errorf("decode: %w", Errorf("micaps4", 12, "bad token %q", "x"))
	err = WithFile(err, "20010100.000")

	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "20010100.000", fe.File)
	assert.Contains(t, err.Error(), "micaps4 20010100.000 at 12")

	uerr := WithFile(Unsupported("awx", "category %d", 2), "x.awx")
	var ue *UnsupportedVariantError
	require.True(t, errors.As(uerr, &ue))
	assert.Equal(t, "awx x.awx: unsupported variant category 2", ue.Error())
}

func TestMinMax(t *testing.T) {
	min, max, ok := MinMax([]float64{math.NaN(), 3, -1, 2})
	assert.True(t, ok)
	assert.Equal(t, -1.0, min)
	assert.Equal(t, 3.0, max)

	_, _, ok = MinMax([]float64{math.NaN()})
	assert.False(t, ok)
}
