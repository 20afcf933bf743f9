package mosaic

import (
	"bytes"
	"encoding/binary"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/nmcdev/metio/field"
	"github.com/nmcdev/metio/internal/decompress"
	"github.com/sirupsen/logrus"
)

const swanFormat = "swan"

// SWANHead is the 1024 byte head of a SWAN D131 grid.
type SWANHead struct {
	DataType     [12]byte
	DataName     [38]byte
	Name         [8]byte
	Version      [8]byte
	Year         uint16
	Month        uint16
	Day          uint16
	Hour         uint16
	Minute       uint16
	Interval     uint16
	XNumber      uint16
	YNumber      uint16
	ZNumber      uint16
	RadarCount   int32
	StartLon     float32
	StartLat     float32
	CenterLon    float32
	CenterLat    float32
	XResolution  float32
	YResolution  float32
	Heights      [40]float32
	StationNames [20][16]byte
	Longitudes   [20]float32
	Latitudes    [20]float32
	Altitudes    [20]float32
	MosaicFlags  [20]uint8
	ValueType    int16
	Dimension    int16
	Reserved     [168]byte
}

// value types of the SWAN payload
const (
	swanUint8 = iota
	swanInt8
	swanUint16
	swanInt16
	swanUint16Alt
)

func swanValues(kind int16, payload []byte, n int) ([]float64, error) {
	size := 1
	switch kind {
	case swanUint16, swanInt16, swanUint16Alt:
		size = 2
	}
	if n > len(payload)/size {
		return nil, field.Errorf(swanFormat, 1024, "payload is %d bytes, grid needs %d", len(payload), n*size)
	}
	var raw interface{}
	switch kind {
	case swanUint8:
		raw = make([]uint8, n)
	case swanInt8:
		raw = make([]int8, n)
	case swanUint16, swanUint16Alt:
		raw = make([]uint16, n)
	case swanInt16:
		raw = make([]int16, n)
	default:
		return nil, field.Unsupported(swanFormat, "value type %d", kind)
	}
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, raw); err != nil {
		return nil, &field.FormatError{Format: swanFormat, Offset: 1024, Reason: "payload", Err: err}
	}

	out := make([]float64, n)
	switch r := raw.(type) {
	case []uint8:
		for i, v := range r {
			out[i] = float64(v)
		}
	case []int8:
		for i, v := range r {
			out[i] = float64(v)
		}
	case []uint16:
		for i, v := range r {
			out[i] = float64(v)
		}
	case []int16:
		for i, v := range r {
			out[i] = float64(v)
		}
	}
	return out, nil
}

// Reflectivity reports whether a SWAN product stores reflectivity with
// the (raw-66)/2 encoding.
func Reflectivity(product string) bool {
	switch strings.ToUpper(product) {
	case "CR", "CREF", "3DREF":
		return true
	}
	return false
}

// DecodeSWAN decodes a SWAN D131 grid, unwrapping a gzip or bzip2
// envelope first. The product name selects the value encoding; when empty
// it is taken from the head.
func DecodeSWAN(data []byte, product string) (*field.Grid, error) {
	data, err := decompress.Unwrap(data)
	if err != nil {
		return nil, &field.FormatError{Format: swanFormat, Reason: "envelope", Err: err}
	}
	var h SWANHead
	if err := readHead(swanFormat, data, &h); err != nil {
		return nil, err
	}
	if product == "" {
		product = text(h.DataName[:])
	}
	nx, ny, nz := int(h.XNumber), int(h.YNumber), int(h.ZNumber)
	if nx == 0 || ny == 0 || nz == 0 || nz > len(h.Heights) {
		return nil, field.Errorf(swanFormat, 84, "grid size %dx%dx%d", nz, ny, nx)
	}
	logrus.Debugf("SWAN %s %s, grid %s", text(h.DataType[:]), product,
		color.CyanString("%dx%dx%d", nz, ny, nx))

	values, err := swanValues(h.ValueType, data[1024:], nx*ny*nz)
	if err != nil {
		return nil, err
	}
	if Reflectivity(product) {
		for i, v := range values {
			if v == 0 {
				values[i] = math.NaN()
				continue
			}
			values[i] = (v - 66) / 2
		}
	}
	// rows run north to south, the far edge mirrors the start about the center
	lon, err := field.Linspace(float64(h.StartLon), 2*float64(h.CenterLon)-float64(h.StartLon), nx)
	if err != nil {
		return nil, err
	}
	lat, err := field.Linspace(float64(h.StartLat), 2*float64(h.CenterLat)-float64(h.StartLat), ny)
	if err != nil {
		return nil, err
	}
	var levels []float64
	if nz > 1 {
		levels = make([]float64, nz)
		for i := range levels {
			levels[i] = float64(h.Heights[i])
		}
	}
	attrs := map[string]string{
		"product":  product,
		"type":     text(h.DataType[:]),
		"radars":   strconv.Itoa(int(h.RadarCount)),
		"interval": strconv.Itoa(int(h.Interval)),
	}
	hdr := field.Header{
		Format:      swanFormat,
		Description: text(h.DataName[:]),
		Time:        time.Date(int(h.Year), time.Month(h.Month), int(h.Day), int(h.Hour), int(h.Minute), 0, 0, time.UTC),
		Attrs:       attrs,
	}
	if nz == 1 {
		hdr.Level = field.Float(float64(h.Heights[0]))
	}
	name := strings.ToLower(product)
	if name == "" {
		name = "data"
	}
	g, err := field.NewGrid(hdr, lon, lat, levels, nil, field.Variable{Name: name, Data: values})
	if err != nil {
		return nil, err
	}
	return g.AscendingLat(), nil
}
