package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nmcdev/metio"
	"github.com/nmcdev/metio/field"
	"github.com/nmcdev/metio/micaps"
	"github.com/nmcdev/metio/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAllSkipsFailures(t *testing.T) {
	files := map[string]string{
		"a.000": "diamond 4 a\n20 01 01 08 0 0 1 1 100 101 10 11 2 2 4 0 40 1 0\n1 2 3 4\n",
		"b.000": "diamond 4 b\n20 01 01 08 0 0 1 1 100 101 10 11 2 2 4 0 40 1 0\n1 2\n",
		"c.000": "diamond 2 h500\n20 01 01 08 500 1\n54511 116.28 39.93 31 1 584 -20 5 270 12\n",
	}
	src := source.Func(func(ctx context.Context, id string) ([]byte, error) {
		s, ok := files[id]
		if !ok {
			return nil, errors.New("no such file")
		}
		return []byte(s), nil
	})

	cli.Jobs = 2
	out, failed := decodeAll(context.Background(), src, []string{"a.000", "b.000", "missing", "c.000"}, metio.Options{})

	assert.Equal(t, 2, failed)
	require.Len(t, out, 2)
	assert.Equal(t, "a.000", out[0].File)
	assert.Equal(t, "micaps4", out[0].Product)
	assert.Equal(t, "micaps2", out[1].Product)
	assert.Equal(t, 1, *out[1].Rows)
}

func TestOptions(t *testing.T) {
	cli.Limit, cli.Scale, cli.Offset = "10,100,11,101", 2, 0
	opts, err := options()
	require.NoError(t, err)
	assert.Len(t, opts.Micaps, 2)

	cli.Limit = "nonsense"
	_, err = options()
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	decode := func(name, text string) *metio.Result {
		res, err := metio.Decode(name, []byte(text), metio.Options{})
		require.NoError(t, err)
		return res
	}

	grid := decode("20010108.024", "diamond 4 hgt\n20 01 01 08 24 500 1 1 100 101 10 11 2 2 4 0 40 1 0\n1 2 3 4\n")
	paths, err := export(dir, grid)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "micaps4", "data", "500", "20010108.024")}, paths)
	back, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	again, err := micaps.Decode4(back)
	require.NoError(t, err)
	assert.Equal(t, grid.Grid.Vars[0].Data, again.Vars[0].Data)

	// existing files are kept
	paths, err = export(dir, grid)
	require.NoError(t, err)
	assert.Empty(t, paths)

	wind := decode("20010108.000", "diamond 11 wind\n20 01 01 08 0 850 1 1 100 101 30 31 2 2\n1 2 3 4\n5 6 7 8\n")
	paths, err = export(dir, wind)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "micaps11", "wind", "850", "20010108.000")}, paths)

	stations := decode("20010108.000", "diamond 3 rain\n20 01 01 08 -1 0 1 0 0 1 2\n54511 116.28 39.93 31 12.5\n54401 115.97 40.45 536 0\n")
	paths, err = export(dir, stations)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	back, err = os.ReadFile(paths[0])
	require.NoError(t, err)
	tbl, err := micaps.Decode3(back)
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, 12.5, tbl.Float(0, "Var0"))
}

func TestPlanes(t *testing.T) {
	lon, err := field.NewAxis(100, 1, 2)
	require.NoError(t, err)
	lat, err := field.NewAxis(30, 1, 1)
	require.NoError(t, err)
	h := field.Header{Time: time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC)}
	g, err := field.NewGrid(h, lon, lat, []float64{850, 500}, []int{0, 1}, field.Variable{Name: "t", Data: []float64{1, 2, 3, 4, 5, 6, 7, 8}})
	require.NoError(t, err)

	ps := planes(g)
	require.Len(t, ps, 4)
	assert.Equal(t, []float64{5, 6}, ps[2].Vars[0].Data)
	assert.Equal(t, []int{1}, ps[2].Members)
	assert.Equal(t, 850.0, *ps[2].Header.Level)
	assert.Equal(t, []string{"member1", "500"}, planeDir(ps[3]))
	assert.Nil(t, g.Header.Level)
}
