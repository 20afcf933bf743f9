package micaps

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/nmcdev/metio/field"
	"github.com/nmcdev/metio/tokens"
	"github.com/sirupsen/logrus"
)

// GDS grid data types.
const (
	GDSScalar = 4
	GDSVector = 11
)

// GridHead is the 278 byte head of a GDS binary model grid. Ensemble files
// repeat it before every member.
type GridHead struct {
	Discriminator      [4]byte
	Type               int16
	ModelName          [20]byte
	Element            [50]byte
	Description        [30]byte
	Level              float32
	Year               int32
	Month              int32
	Day                int32
	Hour               int32
	Timezone           int32
	Period             int32
	StartLongitude     float32
	EndLongitude       float32
	LongitudeSpace     float32
	LongitudeNumber    int32
	StartLatitude      float32
	EndLatitude        float32
	LatitudeSpace      float32
	LatitudeNumber     int32
	IsolineStart       float32
	IsolineEnd         float32
	IsolineSpace       float32
	PerturbationNumber int16
	EnsembleTotal      int16
	Minute             int16
	Second             int16
	Extent             [92]byte
}

// StationHead is the 288 byte head of GDS binary station data.
type StationHead struct {
	Discriminator    [4]byte
	Type             int16
	Description      [100]byte
	Level            float32
	LevelDescription [50]byte
	Year             int32
	Month            int32
	Day              int32
	Hour             int32
	Minute           int32
	Second           int32
	Timezone         int32
	Extent           [100]byte
}

// headText decodes a fixed width, NUL padded string field.
func headText(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	s, err := tokens.Decode(bytes.TrimSpace(b))
	if err != nil {
		return string(b)
	}
	return s
}

// DecodeGDSGrid decodes a GDS binary model grid: scalar (type 4) or
// speed/angle vector (type 11), deterministic or ensemble.
func DecodeGDSGrid(data []byte, opts ...Option) (*field.Grid, error) {
	const format = "gds-grid"
	o := collect(opts)

	r := bytes.NewReader(data)
	var head GridHead
	if err := binary.Read(r, binary.LittleEndian, &head); err != nil {
		return nil, &field.FormatError{Format: format, Reason: "short grid head", Err: err}
	}

	var names []string
	switch head.Type {
	case GDSScalar:
		names = []string{"data"}
	case GDSVector:
		names = []string{"speed", "angle"}
	default:
		return nil, field.Unsupported(format, "grid type %d", head.Type)
	}
	nlon, nlat := int(head.LongitudeNumber), int(head.LatitudeNumber)
	lon, err := field.AxisFromBounds(float64(head.StartLongitude), float64(head.EndLongitude), float64(head.LongitudeSpace), nlon)
	if err != nil {
		return nil, field.Errorf(format, 0, "longitude: %v", err)
	}
	lat, err := field.AxisFromBounds(float64(head.StartLatitude), float64(head.EndLatitude), float64(head.LatitudeSpace), nlat)
	if err != nil {
		return nil, field.Errorf(format, 0, "latitude: %v", err)
	}
	nmem := int(head.EnsembleTotal)
	if nmem < 0 {
		return nil, field.Errorf(format, 0, "negative ensemble total %d", nmem)
	}
	depth := 1
	avail := r.Len()
	if nmem > 0 {
		depth = nmem
		// every member carries its own head
		avail = len(data)/nmem - binary.Size(head)
	}
	if per := 4 * len(names); avail < per || nlon > avail/per/nlat {
		return nil, field.Errorf(format, binary.Size(head), "%d x %d grid of %d component(s) overruns the %d bytes left", nlat, nlon, len(names), r.Len())
	}
	plane := nlat * nlon

	logrus.Debugf("GDS grid %s %s: %s x %s, %s members",
		headText(head.ModelName[:]), headText(head.Element[:]),
		color.CyanString("%d", nlat), color.CyanString("%d", nlon), color.CyanString("%d", nmem))

	vars := make([]field.Variable, len(names))
	for i, n := range names {
		vars[i] = field.Variable{Name: n, Data: make([]float64, depth*plane)}
	}

	// deterministic grids follow the head directly
	if nmem == 0 {
		if err := readGridBlock(r, format, vars, 0, plane); err != nil {
			return nil, err
		}
	} else {
		for i := range vars {
			for j := range vars[i].Data {
				vars[i].Data[j] = math.NaN()
			}
		}
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		for m := 0; m < nmem; m++ {
			off := int(r.Size()) - r.Len()
			var mh GridHead
			if err := binary.Read(r, binary.LittleEndian, &mh); err != nil {
				return nil, &field.FormatError{Format: format, Offset: off, Reason: "short member head", Err: err}
			}
			number := int(mh.PerturbationNumber)
			if number < 0 || number >= nmem {
				return nil, field.Errorf(format, off, "member %d outside ensemble of %d", number, nmem)
			}
			if err := readGridBlock(r, format, vars, number, plane); err != nil {
				return nil, err
			}
		}
	}

	init, err := makeTime(format, 0, int(head.Year), int(head.Month), int(head.Day), int(head.Hour))
	if err != nil {
		return nil, err
	}
	h := field.Header{
		Format:       format,
		Description:  headText(head.Description[:]),
		Time:         init,
		ForecastHour: field.Int(int(head.Period)),
		Attrs: map[string]string{
			"model":   headText(head.ModelName[:]),
			"element": headText(head.Element[:]),
		},
	}
	var levels []float64
	if head.Level != 0 {
		h.Level = field.Float(float64(head.Level))
		levels = []float64{float64(head.Level)}
	}
	var members []int
	for m := 0; m < nmem; m++ {
		members = append(members, m)
	}
	g, err := field.NewGrid(h, lon, lat, levels, members, vars...)
	if err != nil {
		return nil, field.Errorf(format, 0, "%v", err)
	}
	return o.grid(g.AscendingLat()), nil
}

// readGridBlock reads one member's components, each a float32 plane.
func readGridBlock(r *bytes.Reader, format string, vars []field.Variable, member, plane int) error {
	buf := make([]float32, plane)
	for i := range vars {
		off := int(r.Size()) - r.Len()
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return &field.FormatError{Format: format, Offset: off, Reason: "short grid data", Err: err}
		}
		dst := vars[i].Data[member*plane : (member+1)*plane]
		for j, v := range buf {
			dst[j] = float64(v)
		}
	}
	return nil
}

// gdsElementNames renames well known GDS station element ids.
var gdsElementNames = map[int]string{
	3: "alt", 201: "wind_angle", 203: "wind_speed", 205: "wind_angle_1m_avg", 207: "wind_speed_1m_avg",
	209: "wind_angle_2m_avg", 211: "wind_speed_2m_avg", 213: "wind_angle_10m_avg", 215: "wind_speed_10m_avg",
	217: "wind_angle_max", 219: "wind_speed_max", 221: "wind_angle_instant", 223: "wind_speed_instant",
	225: "gust_angle", 227: "gust_speed", 229: "gust_angle_6h", 231: "gust_speed_6h",
	233: "gust_angle_12h", 235: "gust_speed_12h", 237: "wind_power",
	401: "sea_level_pressure", 403: "pressure_3h_trend", 405: "pressure_24h_trend",
	407: "station_pressure", 409: "pressure_max", 411: "pressure_min", 413: "pressure",
	415: "pressure_day_avg", 417: "slp_day_avg", 419: "height", 421: "geopotential_height",
	601: "temp", 603: "temp_max", 605: "temp_min", 607: "temp_24h_trend",
	609: "temp_24h_max", 611: "temp_24h_min", 613: "temp_day_avg",
	801: "dewpoint", 803: "dewpoint_depression", 805: "relative_humidity",
	807: "relative_humidity_min", 809: "relative_humidity_day_avg",
	811: "water_vapor_pressure", 813: "water_vapor_pressure_day_avg",
	1001: "rain", 1003: "rain_1h", 1005: "rain_3h", 1007: "rain_6h", 1009: "rain_12h", 1013: "rain_day",
	1015: "rain_20-08", 1017: "rain_08-20", 1019: "rain_20-20", 1021: "rain_08-08",
	1023: "evaporation", 1025: "evaporation_large", 1027: "precipitable_water",
	1201: "vis_1min", 1203: "vis_10min", 1205: "vis_min", 1207: "vis_manual",
	1401: "total_cloud_cover", 1403: "low_cloud_cover", 1405: "cloud_base_height",
	1407: "low_cloud", 1409: "middle_cloud", 1411: "high_cloud",
	1413: "tcc_day_avg", 1415: "lcc_day_avg", 1417: "cloud_cover", 1419: "cloud_type",
	1601: "weather_current", 1603: "weather_past_1", 1606: "weather_past_2",
	2001: "surface_temp", 2003: "surface_temp_max", 2005: "surface_temp_min",
}

// gdsElementSize maps GDS element type codes to their byte width.
var gdsElementSize = map[int16]int{1: 1, 2: 2, 3: 4, 4: 8, 5: 4, 6: 8, 7: 1}

type stationRecordHead struct {
	ID   int32
	Lon  float32
	Lat  float32
	Numb int16
}

// DecodeGDSStation decodes GDS binary station data. Stations list only
// the elements they report; the table schema is the declared element list
// and absent elements are missing.
func DecodeGDSStation(data []byte, opts ...Option) (*field.Table, error) {
	const format = "gds-station"
	r := bytes.NewReader(data)
	offset := func() int { return int(r.Size()) - r.Len() }

	var head StationHead
	if err := binary.Read(r, binary.LittleEndian, &head); err != nil {
		return nil, &field.FormatError{Format: format, Reason: "short station head", Err: err}
	}
	var nstation int32
	var nelem int16
	if err := binary.Read(r, binary.LittleEndian, &nstation); err != nil {
		return nil, &field.FormatError{Format: format, Offset: offset(), Reason: "short station count", Err: err}
	}
	if err := binary.Read(r, binary.LittleEndian, &nelem); err != nil {
		return nil, &field.FormatError{Format: format, Offset: offset(), Reason: "short element count", Err: err}
	}

	cols := []field.Column{{Name: "ID", Kind: field.Text}, {Name: "lon"}, {Name: "lat"}}
	types := map[int16]int16{}
	colOf := map[int16]int{}
	for i := 0; i < int(nelem); i++ {
		var pair [2]int16
		if err := binary.Read(r, binary.LittleEndian, &pair); err != nil {
			return nil, &field.FormatError{Format: format, Offset: offset(), Reason: "short element table", Err: err}
		}
		if _, ok := gdsElementSize[pair[1]]; !ok {
			return nil, field.Unsupported(format, "element type %d", pair[1])
		}
		name, ok := gdsElementNames[int(pair[0])]
		if !ok {
			name = strconv.Itoa(int(pair[0]))
		}
		kind := field.Number
		if pair[1] == 7 {
			kind = field.Text
		}
		types[pair[0]] = pair[1]
		colOf[pair[0]] = len(cols)
		cols = append(cols, field.Column{Name: name, Kind: kind})
	}

	t := time.Date(int(head.Year), time.Month(head.Month), int(head.Day),
		int(head.Hour), int(head.Minute), int(head.Second), 0, time.UTC)
	h := field.Header{
		Format:      format,
		Description: headText(head.Description[:]),
		Time:        t,
		Level:       field.Float(float64(head.Level)),
		Attrs:       map[string]string{"level_description": headText(head.LevelDescription[:])},
	}
	b := field.NewBuilder(h, cols...)

	for i := 0; i < int(nstation); i++ {
		var rh stationRecordHead
		if err := binary.Read(r, binary.LittleEndian, &rh); err != nil {
			return nil, &field.FormatError{Format: format, Offset: offset(), Reason: "short station record", Err: err}
		}
		row := make(field.Row, len(cols))
		for j := range row {
			row[j].Num = math.NaN()
		}
		row[0] = field.Value{Str: strconv.Itoa(int(rh.ID))}
		row[1].Num, row[2].Num = float64(rh.Lon), float64(rh.Lat)

		for j := 0; j < int(rh.Numb); j++ {
			var id int16
			if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
				return nil, &field.FormatError{Format: format, Offset: offset(), Reason: "short element id", Err: err}
			}
			typ, ok := types[id]
			if !ok {
				return nil, field.Errorf(format, offset()-2, "station %d reports undeclared element %d", rh.ID, id)
			}
			if typ == 7 {
				c, err := r.ReadByte()
				if err != nil {
					return nil, &field.FormatError{Format: format, Offset: offset(), Reason: "short element value", Err: err}
				}
				row[colOf[id]] = field.Value{Str: string([]byte{c})}
				continue
			}
			v, err := readElement(r, typ)
			if err != nil {
				return nil, &field.FormatError{Format: format, Offset: offset(), Reason: "short element value", Err: err}
			}
			row[colOf[id]].Num = v
		}
		b.AddRow(row)
	}
	logrus.Debugf("GDS station: %s stations, %s elements", color.CyanString("%d", nstation), color.CyanString("%d", nelem))
	return collect(opts).table(b.Table()), nil
}

func readElement(r io.Reader, typ int16) (float64, error) {
	var err error
	switch typ {
	case 1:
		var v int8
		err = binary.Read(r, binary.LittleEndian, &v)
		return float64(v), err
	case 2:
		var v int16
		err = binary.Read(r, binary.LittleEndian, &v)
		return float64(v), err
	case 3:
		var v int32
		err = binary.Read(r, binary.LittleEndian, &v)
		return float64(v), err
	case 4:
		var v int64
		err = binary.Read(r, binary.LittleEndian, &v)
		return float64(v), err
	case 5:
		var v float32
		err = binary.Read(r, binary.LittleEndian, &v)
		return float64(v), err
	default:
		var v float64
		err = binary.Read(r, binary.LittleEndian, &v)
		return v, err
	}
}
