// Package grads decodes GrADS binary grids that are distributed without
// their descriptor file. The grid geometry is fixed per product.
package grads

import (
	"bytes"
	"encoding/binary"
	"math"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/nmcdev/metio/field"
	"github.com/sirupsen/logrus"
)

const cmpFormat = "grads-cmp"

// Geometry of the CMA merged hourly precipitation analysis
// (SURF_CLI_CHN_MERGE_CMP_PRE_HOUR_GRID_0.10): two little endian float32
// planes of 440 rows by 700 columns at 0.1 degree, precipitation first and
// the gauge count second.
const (
	CMPColumns = 700
	CMPRows    = 440
	CMPStep    = 0.1
	CMPSize    = 2 * CMPRows * CMPColumns * 4

	// CMPPrefix starts every CMP hourly file name.
	CMPPrefix = "SURF_CLI_CHN_MERGE_CMP_PRE_HOUR_GRID"

	cmpMissing = -999
)

var stamp = regexp.MustCompile(`\d{10}`)

// Option adjusts DecodeCMP.
type Option func(*options)

type options struct {
	lon, lat float64
	limit    *field.BBox
}

// WithOrigin moves the lower left grid point, 70.05E 15.05N by default.
func WithOrigin(lon, lat float64) Option {
	return func(o *options) { o.lon, o.lat = lon, lat }
}

// WithLimit keeps the points inside b.
func WithLimit(b field.BBox) Option {
	return func(o *options) { o.limit = &b }
}

// IsCMP reports whether a file looks like a CMP hourly grid, by name or,
// failing that, by its exact size.
func IsCMP(name string, size int) bool {
	return strings.HasPrefix(strings.ToUpper(path.Base(name)), CMPPrefix) || size == CMPSize
}

// DecodeCMP decodes the precipitation plane of a CMP hourly grid. The
// analysis time is the YYYYMMDDHH stamp in the file name; -999 is missing.
func DecodeCMP(name string, data []byte, opts ...Option) (*field.Grid, error) {
	o := options{lon: 70.05, lat: 15.05}
	for _, fn := range opts {
		fn(&o)
	}

	if len(data) != CMPSize {
		return nil, field.Errorf(cmpFormat, 0, "file is %d bytes, want %d", len(data), CMPSize)
	}
	base := path.Base(name)
	ts := stamp.FindString(base)
	if ts == "" {
		return nil, field.Errorf(cmpFormat, 0, "no YYYYMMDDHH time in file name %q", base)
	}
	at, err := time.Parse("2006010215", ts)
	if err != nil {
		return nil, &field.FormatError{Format: cmpFormat, Reason: "file name time " + ts, Err: err}
	}

	raw := make([]float32, CMPRows*CMPColumns)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, raw); err != nil {
		return nil, &field.FormatError{Format: cmpFormat, Reason: "precipitation plane", Err: err}
	}
	values := make([]float64, len(raw))
	for i, v := range raw {
		if v == cmpMissing {
			values[i] = math.NaN()
			continue
		}
		values[i] = float64(v)
	}

	lon, err := field.NewAxis(o.lon, CMPStep, CMPColumns)
	if err != nil {
		return nil, err
	}
	lat, err := field.NewAxis(o.lat, CMPStep, CMPRows)
	if err != nil {
		return nil, err
	}
	h := field.Header{
		Format:      cmpFormat,
		Description: "CMA merged hourly precipitation",
		Time:        at,
	}
	g, err := field.NewGrid(h, lon, lat, nil, nil, field.Variable{Name: "precipitation", Units: "mm", Data: values})
	if err != nil {
		return nil, field.Errorf(cmpFormat, 0, "%v", err)
	}
	logrus.Debugf("CMP %s: %s grid", at.Format("2006010215"), color.CyanString("%dx%d", CMPRows, CMPColumns))
	if o.limit != nil {
		g = g.Subset(*o.limit)
	}
	return g, nil
}
