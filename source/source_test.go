package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20010108.000"), []byte("diamond 4"), 0o644))

	data, err := File{Root: dir}.ReadAll(context.Background(), "20010108.000")
	require.NoError(t, err)
	assert.Equal(t, "diamond 4", string(data))

	_, err = File{Root: dir}.ReadAll(context.Background(), "missing")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = File{Root: dir}.ReadAll(ctx, "20010108.000")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCache(t *testing.T) {
	c, err := NewCache(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(c.Root, "ECMWF_HR", "TMP", "850", "_.024"), c.Path("ECMWF_HR/TMP/850/*.024"))
	assert.Equal(t, filepath.Join(c.Root, "_", "etc", "passwd"), c.Path("../etc/passwd"))

	_, ok := c.Get("a/b")
	assert.False(t, ok)
	require.NoError(t, c.Put("a/b", []byte("x")))
	data, ok := c.Get("a/b")
	require.True(t, ok)
	assert.Equal(t, []byte("x"), data)

	require.NoError(t, c.Clear("a"))
	_, ok = c.Get("a/b")
	assert.False(t, ok)
	assert.DirExists(t, c.Root)
}

func TestCached(t *testing.T) {
	c, err := NewCache(t.TempDir())
	require.NoError(t, err)

	calls := 0
	src := Cached{
		Source: Func(func(ctx context.Context, id string) ([]byte, error) {
			calls++
			return []byte(id), nil
		}),
		Cache: c,
	}
	for i := 0; i < 3; i++ {
		data, err := src.ReadAll(context.Background(), "SATELLITE/FY2E/a.AWX")
		require.NoError(t, err)
		assert.Equal(t, "SATELLITE/FY2E/a.AWX", string(data))
	}
	assert.Equal(t, 1, calls)

	_, err = src.ReadAll(context.Background(), "ECMWF_HR/TMP/850/*.024")
	require.NoError(t, err)
	_, err = src.ReadAll(context.Background(), "ECMWF_HR/TMP/850/*.024")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestModelFilenames(t *testing.T) {
	init := time.Date(2019, 8, 30, 20, 0, 0, 0, time.UTC)
	names, err := ModelFilenames(init, "0/9/3;12/24/12", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"19083020.000", "19083020.003", "19083020.006", "19083020.012"}, names)

	for _, bad := range []string{"0/72", "a/b/c", "0/72/0"} {
		_, err := ModelFilenames(init, bad, 3)
		assert.Error(t, err, bad)
	}
}

func TestInitTimes(t *testing.T) {
	now := time.Date(2020, 7, 1, 10, 30, 0, 0, time.UTC)
	got := InitTimes([]int{8, 20}, 6*time.Hour, now, 2)
	assert.Equal(t, []time.Time{
		time.Date(2020, 6, 30, 20, 0, 0, 0, time.UTC),
		time.Date(2020, 6, 30, 8, 0, 0, 0, time.UTC),
	}, got)

	assert.Nil(t, InitTimes([]int{25}, 0, now, 1))
}
