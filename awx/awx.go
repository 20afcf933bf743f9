// Package awx decodes FY series satellite products in the AWX (Advanced
// Weather-satellite eXchange) format: geostationary imagery (product
// category 1) and quantitative grids (product category 3).
//
// References:
//   - Satellite product AWX format specification 2.1, National Satellite
//     Meteorological Center
package awx

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/nmcdev/metio/field"
	"github.com/sirupsen/logrus"
)

const format = "awx"

// Product categories.
const (
	CategoryGeostationary = 1
	CategoryPolar         = 2
	CategoryGrid          = 3
	CategoryDiscrete      = 4
	CategoryGraphics      = 5
)

// FirstHead is the fixed 40 byte first class head.
type FirstHead struct {
	Filename              [12]byte
	ByteSequence          int16 // 0: little endian
	FirstClassHeadLength  int16
	SecondClassHeadLength int16
	PadDataLength         int16
	RecordLength          int16
	HeadRecordNumber      int16
	DataRecordNumber      int16
	ProductCategory       int16
	CompressMethod        int16
	FormatString          [8]byte
	QualityFlag           int16
}

// ImageHead is the 64 byte second class head of geostationary imagery.
type ImageHead struct {
	SatelliteName        [8]byte
	Year                 int16
	Month                int16
	Day                  int16
	Hour                 int16
	Minute               int16
	Channel              int16
	Projection           int16
	Width                int16
	Height               int16
	ScanLineTopLeft      int16
	PixelTopLeft         int16
	SampleRatio          int16
	LatitudeNorth        int16
	LatitudeSouth        int16
	LongitudeWest        int16
	LongitudeEast        int16
	CenterLatitude       int16
	CenterLongitude      int16
	StandardLatitude1    int16
	StandardLatitude2    int16
	HorizontalResolution int16
	VerticalResolution   int16
	OverlapFlag          int16
	OverlapValue         int16
	ColorTableLength     int16
	CalibrationLength    int16
	GeolocationLength    int16
	Reserved             int16
}

// GridHead is the 80 byte second class head of quantitative grids.
type GridHead struct {
	SatelliteName        [8]byte
	Element              int16
	Byte                 int16
	Base                 int16
	Scale                int16
	TimeScale            int16
	StartYear            int16
	StartMonth           int16
	StartDay             int16
	StartHour            int16
	StartMinute          int16
	EndYear              int16
	EndMonth             int16
	EndDay               int16
	EndHour              int16
	EndMinute            int16
	LeftUpLatitude       int16
	LeftUpLongitude      int16
	RightDownLatitude    int16
	RightDownLongitude   int16
	ResolutionUnit       int16
	HorizontalResolution int16
	VerticalResolution   int16
	Width                int16
	Height               int16
	HasLand              int16
	Land                 int16
	HasCloud             int16
	Cloud                int16
	HasWater             int16
	Water                int16
	HasIce               int16
	Ice                  int16
	HasQuality           int16
	QualityUp            int16
	QualityDown          int16
	Reserved             int16
}

type geolocationHead struct {
	Coordinate       int16
	Source           int16
	Delta            int16
	LeftTopLatitude  int16
	LeftTopLongitude int16
	HorizontalNumber int16
	VerticalNumber   int16
	Reserved         int16
}

const (
	colorTableSize  = 3 * 256
	calibrationSize = 2048
)

func text(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(bytes.TrimSpace(b))
}

type reader struct {
	*bytes.Reader
	order binary.ByteOrder
}

func (r *reader) offset() int { return int(r.Size()) - r.Len() }

func (r *reader) read(what string, v interface{}) error {
	off := r.offset()
	if err := binary.Read(r, r.order, v); err != nil {
		return &field.FormatError{Format: format, Section: what, Offset: off, Reason: "truncated", Err: err}
	}
	return nil
}

func (r *reader) skip(what string, n int) error {
	if n < 0 || n > r.Len() {
		return field.Errorf(format, r.offset(), "%s: cannot skip %d bytes, %d left", what, n, r.Len())
	}
	_, err := r.Seek(int64(n), io.SeekCurrent)
	return err
}

// fits checks that a width x height block of size byte values remains.
func (r *reader) fits(what string, width, height, size int) error {
	if width > r.Len()/size/height {
		return field.Errorf(format, r.offset(), "%s: %dx%d values of %d byte(s) overrun the %d bytes left", what, width, height, size, r.Len())
	}
	return nil
}

// Decode decodes an AWX file into a grid with ascending latitude.
func Decode(data []byte) (*field.Grid, error) {
	if len(data) < 14 {
		return nil, field.Errorf(format, 0, "file is %d bytes, shorter than the first class head", len(data))
	}
	var order binary.ByteOrder = binary.LittleEndian
	if data[12] != 0 || data[13] != 0 {
		order = binary.BigEndian
	}
	r := &reader{Reader: bytes.NewReader(data), order: order}

	var h1 FirstHead
	if err := r.read("first class head", &h1); err != nil {
		return nil, err
	}
	logrus.Debugf("AWX %s %s, category %s", text(h1.Filename[:]), text(h1.FormatString[:]),
		color.CyanString("%d", h1.ProductCategory))

	if h1.CompressMethod != 0 {
		return nil, field.Unsupported(format, "compress method %d", h1.CompressMethod)
	}

	switch h1.ProductCategory {
	case CategoryGeostationary:
		return decodeImage(r, &h1)
	case CategoryGrid:
		return decodeGrid(r, &h1)
	default:
		return nil, field.Unsupported(format, "product category %d", h1.ProductCategory)
	}
}

func baseAttrs(h1 *FirstHead, satellite string) map[string]string {
	return map[string]string{
		"satellite":        satellite,
		"product_category": strconv.Itoa(int(h1.ProductCategory)),
		"format":           text(h1.FormatString[:]),
		"quality":          strconv.Itoa(int(h1.QualityFlag)),
	}
}

// calibration expands the 1024 entry calibration block to a 256 entry
// lookup table in physical units. The visible channel only uses the first
// 64 entries, each covering four gray levels; other channels take every
// fourth entry.
func calibration(raw []uint16, channel int16) []float64 {
	table := make([]float64, 256)
	for i := range table {
		if channel == 4 {
			table[i] = float64(raw[i/4]) * 0.01
		} else {
			table[i] = float64(raw[i*4]) * 0.01
		}
	}
	return table
}

func decodeImage(r *reader, h1 *FirstHead) (*field.Grid, error) {
	var h2 ImageHead
	if err := r.read("image head", &h2); err != nil {
		return nil, err
	}
	width, height := int(h2.Width), int(h2.Height)
	if width <= 0 || height <= 0 {
		return nil, field.Errorf(format, 40, "image size %dx%d", width, height)
	}

	if h2.ColorTableLength != 0 {
		if err := r.skip("color table", colorTableSize); err != nil {
			return nil, err
		}
	}
	var table []float64
	if h2.CalibrationLength != 0 {
		raw := make([]uint16, calibrationSize/2)
		if err := r.read("calibration", raw); err != nil {
			return nil, err
		}
		table = calibration(raw, h2.Channel)
	}
	if h2.GeolocationLength != 0 {
		var geo geolocationHead
		if err := r.read("geolocation", &geo); err != nil {
			return nil, err
		}
		if err := r.skip("geolocation", int(geo.HorizontalNumber)*int(geo.VerticalNumber)*2); err != nil {
			return nil, err
		}
	}
	if err := r.skip("pad", int(h1.PadDataLength)); err != nil {
		return nil, err
	}

	if err := r.fits("image data", width, height, 1); err != nil {
		return nil, err
	}
	pixels := make([]byte, width*height)
	if err := r.read("image data", pixels); err != nil {
		return nil, err
	}
	values := make([]float64, len(pixels))
	for i, p := range pixels {
		if table != nil {
			values[i] = table[p]
		} else {
			values[i] = float64(p)
		}
	}

	t, err := stamp(h2.Year, h2.Month, h2.Day, h2.Hour, h2.Minute)
	if err != nil {
		return nil, err
	}
	// rows start at the top left, so latitude runs north to south
	lat, err := field.Linspace(float64(h2.LatitudeNorth)/100, float64(h2.LatitudeSouth)/100, height)
	if err != nil {
		return nil, err
	}
	lon, err := field.Linspace(float64(h2.LongitudeWest)/100, float64(h2.LongitudeEast)/100, width)
	if err != nil {
		return nil, err
	}
	attrs := baseAttrs(h1, text(h2.SatelliteName[:]))
	attrs["channel"] = strconv.Itoa(int(h2.Channel))
	attrs["projection"] = strconv.Itoa(int(h2.Projection))
	attrs["calibrated"] = strconv.FormatBool(table != nil)

	g, err := field.NewGrid(field.Header{Format: format, Description: text(h1.Filename[:]), Time: t, Attrs: attrs},
		lon, lat, nil, nil, field.Variable{Name: "image", Data: values})
	if err != nil {
		return nil, err
	}
	return g.AscendingLat(), nil
}

func decodeGrid(r *reader, h1 *FirstHead) (*field.Grid, error) {
	var h2 GridHead
	if err := r.read("grid head", &h2); err != nil {
		return nil, err
	}
	width, height := int(h2.Width), int(h2.Height)
	if width <= 0 || height <= 0 {
		return nil, field.Errorf(format, 40, "grid size %dx%d", width, height)
	}
	if h2.Scale == 0 {
		return nil, field.Errorf(format, 40, "grid scale factor is zero")
	}

	size := int(h2.Byte)
	if size == 0 {
		size = 1
	}
	if size <= 2 {
		if err := r.fits("grid data", width, height, size); err != nil {
			return nil, err
		}
	}
	raw := make([]float64, width*height)
	switch h2.Byte {
	case 0, 1:
		buf := make([]uint8, len(raw))
		if err := r.read("grid data", buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			raw[i] = float64(v)
		}
	case 2:
		buf := make([]uint16, len(raw))
		if err := r.read("grid data", buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			raw[i] = float64(v)
		}
	default:
		return nil, field.Unsupported(format, "%d byte grid values", h2.Byte)
	}
	base, scale := float64(h2.Base), float64(h2.Scale)
	for i := range raw {
		raw[i] = (raw[i] + base) / scale
	}

	t, err := stamp(h2.StartYear, h2.StartMonth, h2.StartDay, h2.StartHour, h2.StartMinute)
	if err != nil {
		return nil, err
	}
	lat, err := field.NewAxis(float64(h2.LeftUpLatitude)/100, -float64(h2.VerticalResolution)/100, height)
	if err != nil {
		return nil, err
	}
	lon, err := field.NewAxis(float64(h2.LeftUpLongitude)/100, float64(h2.HorizontalResolution)/100, width)
	if err != nil {
		return nil, err
	}
	attrs := baseAttrs(h1, text(h2.SatelliteName[:]))
	attrs["element"] = ElementName(int(h2.Element))
	attrs["element_code"] = strconv.Itoa(int(h2.Element))
	attrs["time_scale"] = strconv.Itoa(int(h2.TimeScale))
	if end, err := stamp(h2.EndYear, h2.EndMonth, h2.EndDay, h2.EndHour, h2.EndMinute); err == nil {
		attrs["end_time"] = end.Format(time.RFC3339)
	}

	g, err := field.NewGrid(field.Header{Format: format, Description: text(h1.Filename[:]), Time: t, Attrs: attrs},
		lon, lat, nil, nil, field.Variable{Name: "data", Data: raw})
	if err != nil {
		return nil, err
	}
	return g.AscendingLat(), nil
}

func stamp(y, mo, d, h, mi int16) (time.Time, error) {
	if mo < 1 || mo > 12 || d < 1 || d > 31 || h < 0 || h > 23 || mi < 0 || mi > 59 {
		return time.Time{}, field.Errorf(format, 40, "invalid time %04d-%02d-%02d %02d:%02d", y, mo, d, h, mi)
	}
	return time.Date(int(y), time.Month(mo), int(d), int(h), int(mi), 0, 0, time.UTC), nil
}

// ElementName names a category 3 grid element code.
func ElementName(code int) string {
	if n, ok := elements[code]; ok {
		return n
	}
	return fmt.Sprintf("element %d", code)
}
