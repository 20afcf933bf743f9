package mosaic

import (
	"bytes"
	"encoding/binary"
	"math"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/nmcdev/metio/field"
	"github.com/sirupsen/logrus"
)

const latlonFormat = "latlon"

// LatLonGridFlag marks a CRaMS latitude/longitude grid.
const LatLonGridFlag = 19532

// LatLonHead is the 256 byte head of a CRaMS LATLON mosaic.
type LatLonHead struct {
	Description  [128]byte
	Name         [32]byte // QREF, CREF, VIL, OHP
	Organization [16]byte
	GridFlag     uint16
	DataByte     int16
	SouthLat     float32
	WestLon      float32
	NorthLat     float32
	EastLon      float32
	CenterLat    float32
	CenterLon    float32
	Rows         int32
	Cols         int32
	DLat         float32
	DLon         float32
	NoData       float32
	LevelBytes   int32
	Levels       int16
	Amp          int16
	CompMode     int16
	Dates        uint16 // days since 1970-01-01
	Seconds      int32
	MinValue     int16
	MaxValue     int16
	Reserved     [6]int16
}

// maxLatLonCells caps the decoded grid; runs are sparse so the payload
// size does not bound it.
const maxLatLonCells = 1 << 26

type latlonRun struct {
	Row   int16
	Col   int16
	Count int16
}

// DecodeLatLon decodes a CRaMS LATLON mosaic. The payload is a list of
// runs, each a 1-based row, column and value count followed by the
// values, terminated by a -1 row or column. Cells no run covers are
// missing. Stored values are offset by one and amplified by Amp.
func DecodeLatLon(data []byte) (*field.Grid, error) {
	var h LatLonHead
	if err := readHead(latlonFormat, data, &h); err != nil {
		return nil, err
	}
	if h.GridFlag != LatLonGridFlag {
		return nil, field.Errorf(latlonFormat, 176, "grid flag %d, want %d", h.GridFlag, LatLonGridFlag)
	}
	rows, cols := int(h.Rows), int(h.Cols)
	// runs address cells with 16 bit row and column numbers
	if rows <= 0 || cols <= 0 || rows > math.MaxInt16 || cols > math.MaxInt16 || cols > maxLatLonCells/rows {
		return nil, field.Errorf(latlonFormat, 204, "grid size %dx%d", rows, cols)
	}
	logrus.Debugf("LATLON %s, grid %s", text(h.Name[:]), color.CyanString("%dx%d", rows, cols))

	values := make([]float64, rows*cols)
	for i := range values {
		values[i] = math.NaN()
	}
	amp := 1.0
	if h.Amp > 1 {
		amp = float64(h.Amp)
	}

	r := bytes.NewReader(data[256:])
	runs := 0
	for r.Len() > 0 {
		off := len(data) - r.Len()
		var run latlonRun
		if err := binary.Read(r, binary.LittleEndian, &run.Row); err != nil {
			return nil, &field.FormatError{Format: latlonFormat, Offset: off, Reason: "truncated run", Err: err}
		}
		if err := binary.Read(r, binary.LittleEndian, &run.Col); err != nil {
			return nil, &field.FormatError{Format: latlonFormat, Offset: off, Reason: "truncated run", Err: err}
		}
		if run.Row == -1 || run.Col == -1 {
			break
		}
		if err := binary.Read(r, binary.LittleEndian, &run.Count); err != nil {
			return nil, &field.FormatError{Format: latlonFormat, Offset: off, Reason: "truncated run", Err: err}
		}
		pos := (int(run.Row)-1)*cols + int(run.Col) - 1
		n := int(run.Count)
		if run.Row < 1 || run.Col < 1 || int(run.Row) > rows || int(run.Col) > cols || n < 0 || pos+n > len(values) {
			return nil, field.Errorf(latlonFormat, off, "run at row %d col %d of %d values is outside the grid", run.Row, run.Col, n)
		}
		recs := make([]int16, n)
		if err := binary.Read(r, binary.LittleEndian, recs); err != nil {
			return nil, &field.FormatError{Format: latlonFormat, Offset: off, Reason: "truncated run values", Err: err}
		}
		for i, v := range recs {
			values[pos+i] = (float64(v) - 1) / amp
		}
		runs++
	}
	logrus.Tracef("  %d runs", runs)

	// cell centers, rows north to south
	dlat, dlon := float64(h.DLat), float64(h.DLon)
	lat, err := field.NewAxis(float64(h.NorthLat)-dlat/2, -dlat, rows)
	if err != nil {
		return nil, err
	}
	lon, err := field.NewAxis(float64(h.WestLon)+dlon/2, dlon, cols)
	if err != nil {
		return nil, err
	}
	hdr := field.Header{
		Format:      latlonFormat,
		Description: text(h.Description[:]),
		Time:        time.Unix(int64(h.Dates)*86400+int64(h.Seconds), 0).UTC(),
		Attrs: map[string]string{
			"product":      text(h.Name[:]),
			"organization": text(h.Organization[:]),
			"amp":          strconv.Itoa(int(h.Amp)),
		},
	}
	g, err := field.NewGrid(hdr, lon, lat, nil, nil, field.Variable{Name: "radar_mosaic", Data: values})
	if err != nil {
		return nil, err
	}
	return g.AscendingLat(), nil
}
