// Package micaps decodes MICAPS ("diamond") products: the whitespace
// token text formats 1, 2, 3, 4, 5, 7, 8, 11, 14 and 120, and the binary
// model grid and station files served by the GDS data service.
//
// References:
//   - MICAPS 3.x data format description, National Meteorological Center
//   - GDS (MICAPS 4) binary data format, NMC information center
package micaps

import (
	"strconv"
	"strings"
	"time"

	"github.com/nmcdev/metio/field"
	"github.com/nmcdev/metio/tokens"
)

// Option adjusts decoding.
type Option func(*options)

type options struct {
	scale, offset float64
	scaled        bool
	limit         *field.BBox
	noLevel       bool
}

// WithScaleOffset applies value*scale + offset to decoded grids.
func WithScaleOffset(scale, offset float64) Option {
	return func(o *options) { o.scale, o.offset, o.scaled = scale, offset, true }
}

// WithLimit restricts the result to a latitude/longitude box.
func WithLimit(b field.BBox) Option {
	return func(o *options) { o.limit = &b }
}

// WithoutLevel reads diamond 11 files whose header omits the level token.
func WithoutLevel() Option {
	return func(o *options) { o.noLevel = true }
}

func collect(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func (o options) grid(g *field.Grid) *field.Grid {
	if o.scaled {
		g = g.Scaled(o.scale, o.offset)
	}
	if o.limit != nil {
		g = g.Subset(*o.limit)
	}
	return g
}

func (o options) table(t *field.Table) *field.Table {
	if o.limit != nil {
		return t.Subset(*o.limit, "lat", "lon")
	}
	return t
}

func formatName(kind int) string { return "micaps" + strconv.Itoa(kind) }

// readHead consumes "diamond <kind> <description>".
func readHead(c *tokens.Cursor, kind int) (string, error) {
	magic, err := c.Next()
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(magic, "diamond") {
		return "", field.Errorf(formatName(kind), 0, "not a diamond file, starts with %q", magic)
	}
	k, err := c.Int()
	if err != nil {
		return "", err
	}
	if k != kind {
		return "", field.Errorf(formatName(kind), 1, "diamond type %d, want %d", k, kind)
	}
	return c.Next()
}

// readYear reads a year token; two digit years are in the 2000s.
func readYear(c *tokens.Cursor, format string) (int, error) {
	at := c.Pos()
	tok, err := c.Next()
	if err != nil {
		return 0, err
	}
	y, err := strconv.Atoi(tok)
	if err != nil {
		return 0, field.Errorf(format, at, "bad year %q", tok)
	}
	if len(tok) != 4 {
		y += 2000
	}
	return y, nil
}

// readTime consumes year, month, day and hour.
func readTime(c *tokens.Cursor, format string) (time.Time, error) {
	at := c.Pos()
	y, err := readYear(c, format)
	if err != nil {
		return time.Time{}, err
	}
	var mdh [3]int
	for i := range mdh {
		if mdh[i], err = c.Int(); err != nil {
			return time.Time{}, err
		}
	}
	return makeTime(format, at, y, mdh[0], mdh[1], mdh[2])
}

func makeTime(format string, at, y, m, d, h int) (time.Time, error) {
	if m < 1 || m > 12 || d < 1 || d > 31 || h < 0 || h > 23 {
		return time.Time{}, field.Errorf(format, at, "invalid date %04d-%02d-%02d %02d", y, m, d, h)
	}
	t := time.Date(y, time.Month(m), d, h, 0, 0, 0, time.UTC)
	if t.Day() != d {
		return time.Time{}, field.Errorf(format, at, "invalid date %04d-%02d-%02d", y, m, d)
	}
	return t, nil
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
