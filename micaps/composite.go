package micaps

import (
	"errors"

	"github.com/nmcdev/metio/field"
	"github.com/nmcdev/metio/tokens"
	"github.com/sirupsen/logrus"
)

// Section identifies one block kind of a diamond 14 file by its marker.
type Section string

const (
	SectionLines           Section = "LINES:"
	SectionLineSymbols     Section = "LINES_SYMBOL:"
	SectionSymbols         Section = "SYMBOLS:"
	SectionClosedContours  Section = "CLOSED_CONTOURS:"
	SectionStations        Section = "STATION_SITUATION"
	SectionWeatherRegions  Section = "WEATHER_REGION:"
	SectionFillAreas       Section = "FILLAREA:"
	SectionNotes           Section = "NOTES_SYMBOL:"
	SectionPropLineSymbols Section = "WITHPROP_LINESYMBOLS:"
)

// Point is one vertex; Z is usually zero.
type Point struct{ X, Y, Z float64 }

// RGBA is a four component color.
type RGBA [4]int

// Line is a polyline of LINES: or CLOSED_CONTOURS:. LabelPoints is
// [n][3] for lines and [3][n] for closed contours, as written by the
// producing software.
type Line struct {
	Width       float64
	Points      []Point
	Label       string
	LabelPoints [][]float64
}

type LineSymbol struct {
	Code   int
	Width  float64
	Points []Point
	Label  string
}

type Symbol struct {
	Code  int
	Point Point
	Value string
}

type Region struct {
	Code   int
	Points []Point
}

type FillArea struct {
	Code          int
	Points        []Point
	FillType      int
	Color         RGBA
	FrontColor    RGBA
	BackColor     RGBA
	GradientAngle float64
	GraphicsType  int
	Frame         int
}

// Note is a text annotation. Font attributes are kept as written.
type Note struct {
	Code     int
	Point    Point
	CharLen  int
	Text     string
	Angle    string
	FontLen  string
	FontName string
	FontSize string
	FontType string
	Color    RGBA
}

type PropLineSymbol struct {
	Code        int
	Width       float64
	Color       [3]int
	LineType    int
	Shadow      int
	Points      []Point
	Label       string
	LabelPoints [][]float64
}

// Composite is a decoded diamond 14 graphics file. A nil slice means the
// section is absent; present sections hold at least one entry.
type Composite struct {
	Header          field.Header
	Lines           []Line
	LineSymbols     []LineSymbol
	Symbols         []Symbol
	ClosedContours  []Line
	Stations        [][2]string
	WeatherRegions  []Region
	FillAreas       []FillArea
	Notes           []Note
	PropLineSymbols []PropLineSymbol
}

// Has reports whether the section was present.
func (c *Composite) Has(s Section) bool {
	switch s {
	case SectionLines:
		return c.Lines != nil
	case SectionLineSymbols:
		return c.LineSymbols != nil
	case SectionSymbols:
		return c.Symbols != nil
	case SectionClosedContours:
		return c.ClosedContours != nil
	case SectionStations:
		return c.Stations != nil
	case SectionWeatherRegions:
		return c.WeatherRegions != nil
	case SectionFillAreas:
		return c.FillAreas != nil
	case SectionNotes:
		return c.Notes != nil
	case SectionPropLineSymbols:
		return c.PropLineSymbols != nil
	}
	return false
}

// Sections lists the sections present, in file format order.
func (c *Composite) Sections() []Section {
	var out []Section
	for _, s := range sectionOrder {
		if c.Has(s) {
			out = append(out, s)
		}
	}
	return out
}

type sectionParser func(c *tokens.Cursor, out *Composite) error

var sectionParsers = map[Section]sectionParser{
	SectionLines:           parseLines,
	SectionLineSymbols:     parseLineSymbols,
	SectionSymbols:         parseSymbols,
	SectionClosedContours:  parseClosedContours,
	SectionStations:        parseStations,
	SectionWeatherRegions:  parseWeatherRegions,
	SectionFillAreas:       parseFillAreas,
	SectionNotes:           parseNotes,
	SectionPropLineSymbols: parsePropLineSymbols,
}

// sectionOrder fixes the parse order so the first reported error is stable.
var sectionOrder = []Section{
	SectionLines, SectionLineSymbols, SectionSymbols, SectionClosedContours, SectionStations,
	SectionWeatherRegions, SectionFillAreas, SectionNotes, SectionPropLineSymbols,
}

// Decode14 decodes a diamond 14 graphics file. Each section is located by
// its marker and parsed independently.
func Decode14(data []byte) (*Composite, error) {
	const format = "micaps14"
	c, err := tokens.Tokenize(format, data)
	if err != nil {
		return nil, err
	}
	desc, err := readHead(c, 14)
	if err != nil {
		return nil, err
	}
	t, err := readTime(c, format)
	if err != nil {
		return nil, err
	}
	fhour, err := c.Int()
	if err != nil {
		return nil, err
	}

	out := &Composite{Header: field.Header{Format: format, Description: desc, Time: t, ForecastHour: field.Int(fhour)}}
	for _, s := range sectionOrder {
		idx := c.Find(string(s))
		if idx < 0 {
			continue
		}
		if err := c.Seek(idx + 1); err != nil {
			return nil, err
		}
		if err := sectionParsers[s](c, out); err != nil {
			var fe *field.FormatError
			if errors.As(err, &fe) {
				fe.Section = string(s)
			}
			return nil, err
		}
		logrus.Tracef("micaps14: parsed %s at token %d", s, idx)
	}
	return out, nil
}

// count reads a declared entry count; zero means the section is absent.
// Each entry takes at least per tokens, which bounds the count by what is
// left in the file.
func count(c *tokens.Cursor, per int) (int, error) {
	at := c.Pos()
	n, err := c.Int()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, field.Errorf("micaps14", at, "negative count %d", n)
	}
	if n > c.Remaining()/per {
		return 0, field.Errorf("micaps14", at, "count %d overruns the %d tokens left", n, c.Remaining())
	}
	return n, nil
}

func points(c *tokens.Cursor) ([]Point, error) {
	n, err := count(c, 3)
	if err != nil {
		return nil, err
	}
	return fixedPoints(c, n)
}

func fixedPoints(c *tokens.Cursor, n int) ([]Point, error) {
	v, err := c.Floats(3 * n)
	if err != nil {
		return nil, err
	}
	p := make([]Point, n)
	for i := range p {
		p[i] = Point{v[3*i], v[3*i+1], v[3*i+2]}
	}
	return p, nil
}

func ints(c *tokens.Cursor, out []int) error {
	for i := range out {
		v, err := c.Int()
		if err != nil {
			return err
		}
		out[i] = v
	}
	return nil
}

// colorInts reads color components, each in [0, 255].
func colorInts(c *tokens.Cursor, out []int) error {
	at := c.Pos()
	if err := ints(c, out); err != nil {
		return err
	}
	for i, v := range out {
		if v < 0 || v > 255 {
			return field.Errorf("micaps14", at+i, "color component %d out of range", v)
		}
	}
	return nil
}

func rgba(c *tokens.Cursor) (RGBA, error) {
	var col RGBA
	err := colorInts(c, col[:])
	return col, err
}

// labelPoints reads a label and its n positions, reshaped to rows x cols
// where transposed selects [3][n] rather than [n][3].
func labelPoints(c *tokens.Cursor, transposed bool) (string, [][]float64, error) {
	label, err := c.Next()
	if err != nil {
		return "", nil, err
	}
	n, err := count(c, 3)
	if err != nil {
		return "", nil, err
	}
	if n == 0 {
		return label, nil, nil
	}
	v, err := c.Floats(3 * n)
	if err != nil {
		return "", nil, err
	}
	rows, cols := n, 3
	if transposed {
		rows, cols = 3, n
	}
	out := make([][]float64, rows)
	for r := range out {
		out[r] = v[r*cols : (r+1)*cols]
	}
	return label, out, nil
}

func readLines(c *tokens.Cursor, transposed bool) ([]Line, error) {
	n, err := count(c, 4)
	if err != nil || n == 0 {
		return nil, err
	}
	lines := make([]Line, n)
	for i := range lines {
		l := &lines[i]
		if l.Width, err = c.Float(); err != nil {
			return nil, err
		}
		if l.Points, err = points(c); err != nil {
			return nil, err
		}
		if l.Label, l.LabelPoints, err = labelPoints(c, transposed); err != nil {
			return nil, err
		}
	}
	return lines, nil
}

func parseLines(c *tokens.Cursor, out *Composite) (err error) {
	out.Lines, err = readLines(c, false)
	return err
}

func parseClosedContours(c *tokens.Cursor, out *Composite) (err error) {
	out.ClosedContours, err = readLines(c, true)
	return err
}

func parseLineSymbols(c *tokens.Cursor, out *Composite) error {
	n, err := count(c, 5)
	if err != nil || n == 0 {
		return err
	}
	syms := make([]LineSymbol, n)
	for i := range syms {
		s := &syms[i]
		if s.Code, err = c.Int(); err != nil {
			return err
		}
		if s.Width, err = c.Float(); err != nil {
			return err
		}
		if s.Points, err = points(c); err != nil {
			return err
		}
		if s.Label, err = c.Next(); err != nil {
			return err
		}
		nlabel, err := count(c, 3)
		if err != nil {
			return err
		}
		// label positions are not kept for line symbols
		if _, err := c.Take(3 * nlabel); err != nil {
			return err
		}
	}
	out.LineSymbols = syms
	return nil
}

func parseSymbols(c *tokens.Cursor, out *Composite) error {
	n, err := count(c, 5)
	if err != nil || n == 0 {
		return err
	}
	syms := make([]Symbol, n)
	for i := range syms {
		s := &syms[i]
		if s.Code, err = c.Int(); err != nil {
			return err
		}
		p, err := fixedPoints(c, 1)
		if err != nil {
			return err
		}
		s.Point = p[0]
		if s.Value, err = c.Next(); err != nil {
			return err
		}
	}
	out.Symbols = syms
	return nil
}

// parseStations reads the run of all-digit tokens after the marker as
// (station, situation) pairs. The block has no declared count, so a
// following token that happens to be all digits is taken as station data.
func parseStations(c *tokens.Cursor, out *Composite) error {
	start := c.Pos()
	var run []string
	for {
		t, ok := c.Peek()
		if !ok || !allDigits(t) {
			break
		}
		run = append(run, t)
		_ = c.Skip(1)
	}
	if len(run) == 0 {
		return nil
	}
	if len(run)%2 != 0 {
		return field.Errorf("micaps14", start, "odd station situation token count %d", len(run))
	}
	pairs := make([][2]string, len(run)/2)
	for i := range pairs {
		pairs[i] = [2]string{run[2*i], run[2*i+1]}
	}
	out.Stations = pairs
	return nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseWeatherRegions(c *tokens.Cursor, out *Composite) error {
	n, err := count(c, 2)
	if err != nil || n == 0 {
		return err
	}
	regions := make([]Region, n)
	for i := range regions {
		r := &regions[i]
		if r.Code, err = c.Int(); err != nil {
			return err
		}
		if r.Points, err = points(c); err != nil {
			return err
		}
	}
	out.WeatherRegions = regions
	return nil
}

func parseFillAreas(c *tokens.Cursor, out *Composite) error {
	n, err := count(c, 18)
	if err != nil || n == 0 {
		return err
	}
	areas := make([]FillArea, n)
	for i := range areas {
		a := &areas[i]
		if a.Code, err = c.Int(); err != nil {
			return err
		}
		if a.Points, err = points(c); err != nil {
			return err
		}
		if a.FillType, err = c.Int(); err != nil {
			return err
		}
		for _, col := range []*RGBA{&a.Color, &a.FrontColor, &a.BackColor} {
			if *col, err = rgba(c); err != nil {
				return err
			}
		}
		if a.GradientAngle, err = c.Float(); err != nil {
			return err
		}
		if a.GraphicsType, err = c.Int(); err != nil {
			return err
		}
		if a.Frame, err = c.Int(); err != nil {
			return err
		}
	}
	out.FillAreas = areas
	return nil
}

func parseNotes(c *tokens.Cursor, out *Composite) error {
	n, err := count(c, 15)
	if err != nil || n == 0 {
		return err
	}
	notes := make([]Note, n)
	for i := range notes {
		s := &notes[i]
		if s.Code, err = c.Int(); err != nil {
			return err
		}
		p, err := fixedPoints(c, 1)
		if err != nil {
			return err
		}
		s.Point = p[0]
		if s.CharLen, err = c.Int(); err != nil {
			return err
		}
		text, err := c.Take(6)
		if err != nil {
			return err
		}
		s.Text, s.Angle, s.FontLen, s.FontName, s.FontSize, s.FontType = text[0], text[1], text[2], text[3], text[4], text[5]
		if s.Color, err = rgba(c); err != nil {
			return err
		}
	}
	out.Notes = notes
	return nil
}

func parsePropLineSymbols(c *tokens.Cursor, out *Composite) error {
	n, err := count(c, 10)
	if err != nil || n == 0 {
		return err
	}
	syms := make([]PropLineSymbol, n)
	for i := range syms {
		s := &syms[i]
		if s.Code, err = c.Int(); err != nil {
			return err
		}
		if s.Width, err = c.Float(); err != nil {
			return err
		}
		if err = colorInts(c, s.Color[:]); err != nil {
			return err
		}
		if s.LineType, err = c.Int(); err != nil {
			return err
		}
		if s.Shadow, err = c.Int(); err != nil {
			return err
		}
		if s.Points, err = points(c); err != nil {
			return err
		}
		if s.Label, s.LabelPoints, err = labelPoints(c, false); err != nil {
			return err
		}
	}
	out.PropLineSymbols = syms
	return nil
}
