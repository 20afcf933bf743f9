package micaps

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nmcdev/metio/field"
	"github.com/nmcdev/metio/tokens"
	"github.com/sirupsen/logrus"
)

var (
	surfaceColumns = []string{
		"lon", "lat", "alt", "grade", "total_cloud_cover", "wind_angle", "wind_speed",
		"MSLP", "pressure_3h_trend", "past_weather_1", "past_weather_2", "precipitation_6h",
		"low_cloud_type", "low_cloud_cover", "low_cloud_base", "dewpoint", "visibility",
		"current_weather", "temperature", "middle_cloud_type", "high_cloud_type", "flag1", "flag2",
	}
	surfaceTrendColumns = []string{"temperature_24h_trend", "pressure_24h_trend"}

	upperAirColumns = []string{
		"lon", "lat", "alt", "grade", "height", "temperature", "dewpoint_depression",
		"wind_angle", "wind_speed",
	}

	soundingColumns = []string{"pressure", "height", "temperature", "dewpoint", "wind_angle", "wind_speed"}

	typhoonColumns = []string{
		"fhour", "cent_lon", "cent_lat", "max_wind_speed", "min_pressure",
		"radius_wind_7", "radius_wind_10", "move_direction", "move_speed",
	}

	forecastColumns = []string{
		"lon", "lat", "alt", "weather_code1", "wind_angle1", "wind_speed1",
		"min_temperature", "max_temperature", "weather_code2", "wind_angle2", "wind_speed2",
	}

	airQualityColumns = []string{
		"lat", "lon", "AQI", "AQI_grade", "PM2p5_1h", "PM10_1h", "CO_1h",
		"NO2_1h", "O3_1h", "O3_8h", "SO2_1h",
	}
)

func stationSchema(numeric []string) []field.Column {
	return append([]field.Column{{Name: "ID", Kind: field.Text}}, field.Numbers(numeric...)...)
}

// readRows consumes number rows of len(cols) tokens each.
func readRows(c *tokens.Cursor, b *field.Builder, number, ncols int) error {
	for i := 0; i < number; i++ {
		row, err := c.Take(ncols)
		if err != nil {
			return err
		}
		b.AddTokens(row)
	}
	return nil
}

// exactRows checks that the rest of the file is number rows of ncols.
func exactRows(c *tokens.Cursor, format string, number, ncols int) error {
	if number < 0 || c.Remaining() != number*ncols {
		return field.Errorf(format, c.Pos(), "%d stations of %d values need %d tokens, file has %d",
			number, ncols, number*ncols, c.Remaining())
	}
	return nil
}

// stationHead reads the head shared by diamond 1, 2, 3 and 8.
func stationHead(c *tokens.Cursor, kind int) (field.Header, error) {
	format := formatName(kind)
	desc, err := readHead(c, kind)
	if err != nil {
		return field.Header{}, err
	}
	t, err := readTime(c, format)
	if err != nil {
		return field.Header{}, err
	}
	return field.Header{Format: format, Description: desc, Time: t}, nil
}

// Decode1 decodes diamond 1 surface observations. Records carry 24 values,
// or 26 when the 24 hour temperature and pressure trends are present.
func Decode1(data []byte, opts ...Option) (*field.Table, error) {
	const format = "micaps1"
	c, err := tokens.Tokenize(format, data)
	if err != nil {
		return nil, err
	}
	h, err := stationHead(c, 1)
	if err != nil {
		return nil, err
	}
	number, err := c.Int()
	if err != nil {
		return nil, err
	}

	numeric := surfaceColumns
	switch c.Remaining() {
	case number * 24:
	case number * 26:
		numeric = append(append([]string{}, surfaceColumns...), surfaceTrendColumns...)
	default:
		return nil, field.Errorf(format, c.Pos(), "%d stations need %d or %d tokens, file has %d",
			number, number*24, number*26, c.Remaining())
	}

	b := field.NewBuilder(h, stationSchema(numeric)...)
	if err := readRows(c, b, number, len(numeric)+1); err != nil {
		return nil, err
	}
	t := b.Table()
	if mslp := t.Col("MSLP"); mslp >= 0 {
		for _, r := range t.Rows {
			r[mslp].Num = decodeMSLP(r[mslp].Num)
		}
	}
	return collect(opts).table(t), nil
}

// decodeMSLP expands the three digit sea level pressure code to hPa.
func decodeMSLP(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return v
	case v <= 600:
		return v/10 + 1000
	default:
		return v/10 + 900
	}
}

// Decode2 decodes diamond 2 upper air observations.
func Decode2(data []byte, opts ...Option) (*field.Table, error) {
	const format = "micaps2"
	c, err := tokens.Tokenize(format, data)
	if err != nil {
		return nil, err
	}
	h, err := stationHead(c, 2)
	if err != nil {
		return nil, err
	}
	level, err := c.Float()
	if err != nil {
		return nil, err
	}
	h.Level = field.Float(level)
	number, err := c.Int()
	if err != nil {
		return nil, err
	}
	ncols := len(upperAirColumns) + 1
	if err := exactRows(c, format, number, ncols); err != nil {
		return nil, err
	}
	b := field.NewBuilder(h, stationSchema(upperAirColumns)...)
	if err := readRows(c, b, number, ncols); err != nil {
		return nil, err
	}
	return collect(opts).table(b.Table()), nil
}

// Decode3 decodes diamond 3 general station data, whose values are named
// Var0..VarN-1.
func Decode3(data []byte, opts ...Option) (*field.Table, error) {
	const format = "micaps3"
	c, err := tokens.Tokenize(format, data)
	if err != nil {
		return nil, err
	}
	h, err := stationHead(c, 3)
	if err != nil {
		return nil, err
	}
	level, err := c.Int()
	if err != nil {
		return nil, err
	}
	h.Level = field.Float(float64(level))

	// contour values, then smoothing and bold coefficients
	ncontour, err := c.Int()
	if err != nil {
		return nil, err
	}
	if ncontour > 0 {
		if err := c.Skip(ncontour); err != nil {
			return nil, err
		}
	}
	coef, err := c.Floats(2)
	if err != nil {
		return nil, err
	}
	h.Attrs = map[string]string{"smooth": ftoa(coef[0]), "bold": ftoa(coef[1])}

	// clipping boundary
	nbound, err := c.Int()
	if err != nil {
		return nil, err
	}
	if nbound > 0 {
		if err := c.Skip(2 * nbound); err != nil {
			return nil, err
		}
	}

	nelem, err := c.Int()
	if err != nil {
		return nil, err
	}
	number, err := c.Int()
	if err != nil {
		return nil, err
	}
	if nelem < 0 {
		return nil, field.Errorf(format, c.Pos()-2, "negative element count %d", nelem)
	}
	numeric := []string{"lon", "lat", "alt"}
	for i := 0; i < nelem; i++ {
		numeric = append(numeric, "Var"+strconv.Itoa(i))
	}
	if err := exactRows(c, format, number, nelem+4); err != nil {
		return nil, err
	}
	b := field.NewBuilder(h, stationSchema(numeric)...)
	if err := readRows(c, b, number, nelem+4); err != nil {
		return nil, err
	}
	return collect(opts).table(b.Table()), nil
}

// Decode5 decodes diamond 5 TLOGP soundings: one record per station level.
func Decode5(data []byte, opts ...Option) (*field.Table, error) {
	const format = "micaps5"
	c, err := tokens.Tokenize(format, data)
	if err != nil {
		return nil, err
	}
	h, err := stationHead(c, 5)
	if err != nil {
		return nil, err
	}
	number, err := c.Int()
	if err != nil {
		return nil, err
	}

	b := field.NewBuilder(h, stationSchema(append([]string{"lon", "lat", "alt"}, soundingColumns...))...)
	for i := 0; i < number; i++ {
		head, err := c.Take(4)
		if err != nil {
			return nil, err
		}
		length, err := c.Int()
		if err != nil {
			return nil, err
		}
		for j := 0; j < length/6; j++ {
			levels, err := c.Take(6)
			if err != nil {
				return nil, err
			}
			b.AddTokens(append(append([]string{}, head...), levels...))
		}
	}
	logrus.Debugf("micaps5: %d stations, %d levels", number, b.Table().Len())
	return collect(opts).table(b.Table()), nil
}

// Decode7 decodes diamond 7 typhoon tracks. Each track is a name, id,
// origin and record count followed by 13 values per record; tracks are
// separated by one token.
func Decode7(data []byte) (*field.Table, error) {
	const format = "micaps7"
	c, err := tokens.Tokenize(format, data)
	if err != nil {
		return nil, err
	}
	desc, err := readHead(c, 7)
	if err != nil {
		return nil, err
	}

	cols := []field.Column{
		{Name: "name", Kind: field.Text},
		{Name: "ID", Kind: field.Text},
		{Name: "origin", Kind: field.Text},
		{Name: "time", Kind: field.Timestamp},
	}
	cols = append(cols, field.Numbers(typhoonColumns...)...)
	b := field.NewBuilder(field.Header{Format: format, Description: desc}, cols...)

	for c.Remaining() > 0 {
		ident, err := c.Take(3)
		if err != nil {
			return nil, err
		}
		number, err := c.Int()
		if err != nil {
			return nil, err
		}
		for i := 0; i < number; i++ {
			t, err := readTime(c, format)
			if err != nil {
				return nil, err
			}
			vals, err := c.Take(len(typhoonColumns))
			if err != nil {
				return nil, err
			}
			row := make(field.Row, len(cols))
			row[0].Str, row[1].Str, row[2].Str = ident[0], ident[1], ident[2]
			row[3].Time = t
			for j, v := range vals {
				row[4+j].Num = field.ParseNumber(v)
			}
			b.AddRow(row)
		}
		if c.Remaining() > 0 {
			if err := c.Skip(1); err != nil {
				return nil, err
			}
		}
	}
	return b.Table(), nil
}

// Decode8 decodes diamond 8 city forecasts.
func Decode8(data []byte, opts ...Option) (*field.Table, error) {
	const format = "micaps8"
	c, err := tokens.Tokenize(format, data)
	if err != nil {
		return nil, err
	}
	h, err := stationHead(c, 8)
	if err != nil {
		return nil, err
	}
	fhour, err := c.Int()
	if err != nil {
		return nil, err
	}
	h.ForecastHour = field.Int(fhour)
	number, err := c.Int()
	if err != nil {
		return nil, err
	}
	ncols := len(forecastColumns) + 1
	if err := exactRows(c, format, number, ncols); err != nil {
		return nil, err
	}
	b := field.NewBuilder(h, stationSchema(forecastColumns)...)
	if err := readRows(c, b, number, ncols); err != nil {
		return nil, err
	}
	return collect(opts).table(b.Table()), nil
}

// Decode120 decodes diamond 120 air quality observations. The observation
// time is the second "_" separated part of the description, YYYYMMDDHH.
func Decode120(data []byte, opts ...Option) (*field.Table, error) {
	const format = "micaps120"
	c, err := tokens.Tokenize(format, data)
	if err != nil {
		return nil, err
	}
	desc, err := readHead(c, 120)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(desc, "_")
	if len(parts) < 2 {
		return nil, field.Errorf(format, 2, "no time in description %q", desc)
	}
	t, err := time.Parse("2006010215", parts[1])
	if err != nil {
		return nil, field.Errorf(format, 2, "bad time in description %q", desc)
	}

	ncols := len(airQualityColumns) + 1
	if c.Remaining()%ncols != 0 {
		return nil, field.Errorf(format, c.Pos(), "%d tokens is not a multiple of %d", c.Remaining(), ncols)
	}
	b := field.NewBuilder(field.Header{Format: format, Description: desc, Time: t}, stationSchema(airQualityColumns)...)
	if err := readRows(c, b, c.Remaining()/ncols, ncols); err != nil {
		return nil, err
	}
	return collect(opts).table(b.Table()), nil
}
