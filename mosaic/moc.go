package mosaic

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/nmcdev/metio/field"
	"github.com/nmcdev/metio/internal/decompress"
	"github.com/sirupsen/logrus"
)

const mocFormat = "moc"

// MOCHead is the 256 byte head of a MOC radar mosaic.
type MOCHead struct {
	Label           [4]byte // "MOC"
	Version         [4]byte
	FileBytes       int32
	MosaicID        int16
	Coordinate      int16
	VarName         [8]byte
	Description     [64]byte
	BlockPos        int32
	BlockLen        int32
	TimeZone        int32
	Year            int16
	Month           int16
	Day             int16
	Hour            int16
	Minute          int16
	Second          int16
	ObsSeconds      int32
	ObsDates        uint16
	GenDates        uint16
	GenSeconds      int32
	EdgeSouth       int32
	EdgeWest        int32
	EdgeNorth       int32
	EdgeEast        int32
	CenterX         int32
	CenterY         int32
	XNumber         int32
	YNumber         int32
	DX              int32
	DY              int32
	Height          int16
	Compress        int16
	RadarCount      int32
	UncompressBytes int32
	Scale           int16
	Unused          int16
	Region          [8]byte
	Units           [8]byte
	Reserved        [60]byte
}

// MOC payload compression codes.
const (
	CompressNone  = 0
	CompressBzip2 = 1
	CompressZlib  = 2
	CompressLZW   = 3
)

const mocMissing = math.MinInt16

// IsMOC reports whether data starts with the MOC label.
func IsMOC(data []byte) bool { return bytes.HasPrefix(data, []byte("MOC")) }

func inflate(code int16, payload []byte) ([]byte, error) {
	switch code {
	case CompressNone:
		return payload, nil
	case CompressBzip2:
		return decompress.Bunzip2(payload)
	case CompressZlib:
		return decompress.Zlib(payload)
	case CompressLZW:
		return decompress.LZW(payload)
	}
	return nil, field.Unsupported(mocFormat, "compress code %d", code)
}

// DecodeMOC decodes a MOC mosaic. Values are raw/scale with the int16
// minimum as the missing code.
func DecodeMOC(data []byte) (*field.Grid, error) {
	var h MOCHead
	if err := readHead(mocFormat, data, &h); err != nil {
		return nil, err
	}
	if !IsMOC(h.Label[:]) {
		return nil, field.Unsupported(mocFormat, "legacy mosaic head without MOC label")
	}
	nx, ny := int(h.XNumber), int(h.YNumber)
	if nx <= 0 || ny <= 0 {
		return nil, field.Errorf(mocFormat, 148, "grid size %dx%d", ny, nx)
	}
	if h.Scale == 0 {
		return nil, field.Errorf(mocFormat, 176, "scale is zero")
	}
	logrus.Debugf("MOC %s, compress %d, grid %s", text(h.VarName[:]), h.Compress,
		color.CyanString("%dx%d", ny, nx))

	payload, err := inflate(h.Compress, data[256:])
	if err != nil {
		var ue *field.UnsupportedVariantError
		if errors.As(err, &ue) {
			return nil, err
		}
		return nil, &field.FormatError{Format: mocFormat, Offset: 256, Reason: "payload", Err: err}
	}
	if nx > len(payload)/2/ny {
		return nil, field.Errorf(mocFormat, 256, "payload is %d bytes, %dx%d grid overruns it", len(payload), ny, nx)
	}
	raw := make([]int16, nx*ny)
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, raw); err != nil {
		return nil, &field.FormatError{Format: mocFormat, Offset: 256, Reason: "payload", Err: err}
	}

	scale := float64(h.Scale)
	values := make([]float64, len(raw))
	for i, v := range raw {
		if v == mocMissing {
			values[i] = math.NaN()
			continue
		}
		values[i] = float64(v) / scale
	}

	// rows run north to south
	lat, err := field.Linspace(float64(h.EdgeNorth)/1000, float64(h.EdgeSouth)/1000, ny)
	if err != nil {
		return nil, err
	}
	lon, err := field.Linspace(float64(h.EdgeWest)/1000, float64(h.EdgeEast)/1000, nx)
	if err != nil {
		return nil, err
	}
	hdr := field.Header{
		Format:      mocFormat,
		Description: text(h.Description[:]),
		Time:        time.Date(int(h.Year), time.Month(h.Month), int(h.Day), int(h.Hour), int(h.Minute), int(h.Second), 0, time.UTC),
		Attrs: map[string]string{
			"variable":  text(h.VarName[:]),
			"units":     text(h.Units[:]),
			"region":    text(h.Region[:]),
			"radars":    strconv.Itoa(int(h.RadarCount)),
			"time_zone": strconv.Itoa(int(h.TimeZone)),
			"dx":        strconv.FormatFloat(float64(h.DX)/10000, 'f', -1, 64),
			"dy":        strconv.FormatFloat(float64(h.DY)/10000, 'f', -1, 64),
		},
	}
	g, err := field.NewGrid(hdr, lon, lat, nil, nil, field.Variable{Name: "data", Units: text(h.Units[:]), Data: values})
	if err != nil {
		return nil, err
	}
	return g.AscendingLat(), nil
}
