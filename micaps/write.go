package micaps

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nmcdev/metio/field"
	"github.com/sirupsen/logrus"
)

// Headline is the description token written after "diamond <n>", for
// example 20010108IT_024FH_(0908)_ECMWF_500LEV_TMP.
type Headline struct {
	Init         time.Time
	ForecastHour *int
	Period       *int // accumulation hours ending at the forecast hour
	Model        string
	Level        *float64
	Name         string
}

func (h Headline) String() string {
	var b strings.Builder
	b.WriteString(h.Init.Format("06010215") + "IT")
	if h.ForecastHour != nil {
		fh := *h.ForecastHour
		valid := h.Init.Add(time.Duration(fh) * time.Hour)
		fmt.Fprintf(&b, "_%03dFH", fh)
		if h.Period != nil {
			start := h.Init.Add(time.Duration(fh-*h.Period) * time.Hour)
			fmt.Fprintf(&b, "_(%s-%s)", start.Format("0215"), valid.Format("0215"))
		} else {
			fmt.Fprintf(&b, "_(%s)", valid.Format("0215"))
		}
	}
	if m := strings.TrimSpace(h.Model); m != "" {
		b.WriteString("_" + strings.ToUpper(m))
	}
	if h.Level != nil && *h.Level != -1 {
		b.WriteString("_" + trim(*h.Level, 2) + "LEV")
	}
	if n := strings.TrimSpace(h.Name); n != "" {
		b.WriteString("_" + n)
	}
	return strings.ReplaceAll(b.String(), " ", "_")
}

// WriteOption adjusts encoding.
type WriteOption func(*writeOptions)

type writeOptions struct {
	period     *int
	model      string
	name       string
	contour    *[3]float64
	valuesOnly bool
	levels     []float64
	smooth     float64
	bold       float64
	boundary   []float64
	min        *float64
	precision  int
}

// WithPeriod marks the product as accumulated over hours ending at the
// forecast hour.
func WithPeriod(hours int) WriteOption {
	return func(o *writeOptions) { o.period = &hours }
}

// WithModel names the model in the headline.
func WithModel(name string) WriteOption {
	return func(o *writeOptions) { o.model = name }
}

// WithName names the variable in the headline.
func WithName(name string) WriteOption {
	return func(o *writeOptions) { o.name = name }
}

// WithContours sets the diamond 4 contour interval, start and end. By
// default nine intervals span the data range.
func WithContours(interval, start, end float64) WriteOption {
	return func(o *writeOptions) { o.contour = &[3]float64{interval, start, end} }
}

// WithValuesOnly asks a diamond 4 reader to print values instead of
// contouring.
func WithValuesOnly() WriteOption {
	return func(o *writeOptions) { o.valuesOnly = true }
}

// WithContourLevels lists the diamond 3 contour levels.
func WithContourLevels(levels ...float64) WriteOption {
	return func(o *writeOptions) { o.levels = levels }
}

// WithSmoothing sets the diamond 3 smoothing and bold coefficients.
func WithSmoothing(smooth, bold float64) WriteOption {
	return func(o *writeOptions) { o.smooth, o.bold = smooth, bold }
}

// WithBoundary sets the diamond 3 clipping boundary as lon, lat pairs.
func WithBoundary(points ...float64) WriteOption {
	return func(o *writeOptions) { o.boundary = points }
}

// WithMinValue drops grid points below v when a grid is written as
// diamond 3 stations.
func WithMinValue(v float64) WriteOption {
	return func(o *writeOptions) { o.min = &v }
}

// WithPrecision sets the decimals written for values, 4 by default.
func WithPrecision(digits int) WriteOption {
	return func(o *writeOptions) { o.precision = digits }
}

func collectWrite(opts []WriteOption) writeOptions {
	o := writeOptions{smooth: 1, precision: 4}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func (o writeOptions) headline(h field.Header) Headline {
	name := o.name
	if name == "" {
		name = h.Attr("element")
	}
	model := o.model
	if model == "" {
		model = h.Attr("model")
	}
	return Headline{Init: h.Time, ForecastHour: h.ForecastHour, Period: o.period, Model: model, Level: h.Level, Name: name}
}

// trim formats v with at most prec decimals and no trailing zeros.
func trim(v float64, prec int) string {
	s := strconv.FormatFloat(v, 'f', prec, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	if s == "-0" {
		s = "0"
	}
	return s
}

func (o writeOptions) value(v float64, width int) string {
	if math.IsNaN(v) {
		v = field.Missing
	}
	return fmt.Sprintf("%*.*f", width, o.precision, v)
}

// scalarPlane checks that g is one plane carrying at least nvars variables.
func scalarPlane(format string, g *field.Grid, nvars int) error {
	if len(g.Vars) < nvars {
		return field.Errorf(format, 0, "grid has %d variable(s), need %d", len(g.Vars), nvars)
	}
	if len(g.Levels) > 1 || len(g.Members) > 1 {
		return field.Errorf(format, 0, "grid has %d levels and %d members, need one plane", len(g.Levels), len(g.Members))
	}
	if g.Empty() {
		return field.Errorf(format, 0, "empty grid")
	}
	return nil
}

// gridLine writes dlon dlat slon elon slat elat nlon nlat.
func gridLine(w io.Writer, g *field.Grid) {
	fmt.Fprintf(w, " %.3f %.3f %.3f %.3f %.3f %.3f %d %d",
		g.Lon.Step, g.Lat.Step, g.Lon.At(0), g.Lon.End(), g.Lat.At(0), g.Lat.End(), g.Lon.Count, g.Lat.Count)
}

// writeValues writes six values per line.
func (o writeOptions) writeValues(w io.Writer, values []float64) {
	for i, v := range values {
		io.WriteString(w, " "+o.value(v, 10))
		if (i+1)%6 == 0 || i == len(values)-1 {
			io.WriteString(w, "\n")
		}
	}
}

func level(h field.Header, none float64) float64 {
	if h.Level != nil {
		return *h.Level
	}
	return none
}

// Encode4 writes the first variable of a single plane grid as a diamond 4
// scalar grid. Missing values are written as 9999.
func Encode4(w io.Writer, g *field.Grid, opts ...WriteOption) error {
	const format = "micaps4"
	if err := scalarPlane(format, g, 1); err != nil {
		return err
	}
	o := collectWrite(opts)
	data := g.Vars[0].Data

	var contour [3]float64
	if o.contour != nil {
		contour = *o.contour
	} else {
		lo, hi, _ := field.MinMax(data)
		contour = [3]float64{1, lo, hi}
		if hi != lo {
			contour[0] = (hi - lo) / 9
		}
	}
	show := -1
	if o.valuesOnly {
		show = -2
	}
	fhour := 0
	if g.Header.ForecastHour != nil {
		fhour = *g.Header.ForecastHour
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "diamond 4 %s\n", o.headline(g.Header))
	fmt.Fprintf(bw, "%s %d %s", g.Header.Time.Format("06 01 02 15"), fhour, trim(level(g.Header, 0), 2))
	gridLine(bw, g)
	fmt.Fprintf(bw, " %.2f %.2f %.2f 1 %d\n", contour[0], contour[1], contour[2], show)
	o.writeValues(bw, data)
	logrus.Debugf("micaps4: wrote %dx%d grid", g.Lat.Count, g.Lon.Count)
	return bw.Flush()
}

// Encode11 writes the uwind and vwind variables of a single plane grid as a
// diamond 11 vector grid. Grids without those names use their first two
// variables.
func Encode11(w io.Writer, g *field.Grid, opts ...WriteOption) error {
	const format = "micaps11"
	if err := scalarPlane(format, g, 2); err != nil {
		return err
	}
	o := collectWrite(opts)
	u, ok := g.Var("uwind")
	if !ok {
		u = &g.Vars[0]
	}
	v, ok := g.Var("vwind")
	if !ok {
		v = &g.Vars[1]
	}
	fhour := 0
	if g.Header.ForecastHour != nil {
		fhour = *g.Header.ForecastHour
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "diamond 11 %s\n", o.headline(g.Header))
	fmt.Fprintf(bw, "%s %d %s", g.Header.Time.Format("06 01 02 15"), fhour, trim(level(g.Header, 0), 2))
	gridLine(bw, g)
	io.WriteString(bw, "\n")
	o.writeValues(bw, u.Data)
	o.writeValues(bw, v.Data)
	return bw.Flush()
}

// Encode3 writes a station table as diamond 3. The table needs ID, lon and
// lat columns; alt is optional and every other numeric column becomes a
// value column.
func Encode3(w io.Writer, t *field.Table, opts ...WriteOption) error {
	const format = "micaps3"
	id, lon, lat, alt := t.Col("ID"), t.Col("lon"), t.Col("lat"), t.Col("alt")
	if id < 0 || lon < 0 || lat < 0 {
		return field.Errorf(format, 0, "table needs ID, lon and lat columns")
	}
	var values []int
	for i, c := range t.Columns {
		if i != id && i != lon && i != lat && i != alt && c.Kind == field.Number {
			values = append(values, i)
		}
	}
	o := collectWrite(opts)
	if len(o.boundary)%2 != 0 {
		return field.Errorf(format, 0, "boundary has an odd number of coordinates")
	}

	name := o.name
	if name == "" {
		name = t.Header.Description
	}
	head := []string{t.Header.Time.Format("06 01 02 15"), strconv.Itoa(int(level(t.Header, -1)))}
	head = append(head, strconv.Itoa(len(o.levels)))
	for _, l := range o.levels {
		head = append(head, trim(l, 6))
	}
	head = append(head, trim(o.smooth, 6), trim(o.bold, 6), strconv.Itoa(len(o.boundary)/2))
	for _, p := range o.boundary {
		head = append(head, trim(p, 6))
	}

	bw := bufio.NewWriter(w)
	desc := strings.ReplaceAll(t.Header.Time.Format("2006年01月02日15时")+strings.TrimSpace(name), " ", "_")
	fmt.Fprintf(bw, "diamond 3 %s\n", desc)
	fmt.Fprintf(bw, "%s\n", strings.Join(head, "    "))
	fmt.Fprintf(bw, "    %d    %d\n", len(values), t.Len())
	for _, r := range t.Rows {
		station := strings.ReplaceAll(strings.TrimSpace(r[id].Str), " ", "_")
		if station == "" {
			station = trim(r[id].Num, 0)
		}
		altitude := 0.0
		if alt >= 0 && !math.IsNaN(r[alt].Num) {
			altitude = r[alt].Num
		}
		fmt.Fprintf(bw, "%s  %8.2f %8.2f %12.2f", station, r[lon].Num, r[lat].Num, altitude)
		for _, c := range values {
			io.WriteString(bw, " "+o.value(r[c].Num, 0))
		}
		io.WriteString(bw, "\n")
	}
	return bw.Flush()
}

// EncodeGrid3 writes the first variable of a single plane grid as diamond
// 3 stations, one per grid point numbered from 0, latitude rows outermost.
// The valid time goes in the head.
func EncodeGrid3(w io.Writer, g *field.Grid, opts ...WriteOption) error {
	const format = "micaps3"
	if err := scalarPlane(format, g, 1); err != nil {
		return err
	}
	o := collectWrite(opts)
	data := g.Vars[0].Data

	keep := func(v float64) bool { return o.min == nil || v >= *o.min }
	n := 0
	for _, v := range data {
		if keep(v) {
			n++
		}
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "diamond 3 %s\n", o.headline(g.Header))
	fmt.Fprintf(bw, " %s    %d     0     0     0     0\n", g.Header.ValidTime().Format("06 01 02 15"), int(level(g.Header, -1)))
	fmt.Fprintf(bw, "    1    %d\n", n)
	id := 0
	for j := 0; j < g.Lat.Count; j++ {
		for i := 0; i < g.Lon.Count; i++ {
			v := data[j*g.Lon.Count+i]
			if !keep(v) {
				continue
			}
			fmt.Fprintf(bw, "%10d  %8.3f  %8.3f  666  %s\n", id, g.Lon.At(i), g.Lat.At(j), o.value(v, 0))
			id++
		}
	}
	logrus.Debugf("micaps3: wrote %d of %d grid points", n, len(data))
	return bw.Flush()
}

// FileName is the conventional product file name, YYMMDDHH.FFF.
func FileName(init time.Time, fhour int) string {
	return fmt.Sprintf("%s.%03d", init.Format("06010215"), fhour)
}

// Create writes a product to dir/name through write. An existing file is
// left alone and reported with existed set; a failed write removes the
// partial file.
func Create(dir, name string, write func(io.Writer) error) (path string, existed bool, err error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", false, err
		}
	}
	path = filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if os.IsExist(err) {
		logrus.Debugf("%s exists, not overwriting", path)
		return path, true, nil
	}
	if err != nil {
		return "", false, err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		return "", false, err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", false, err
	}
	return path, false, nil
}
