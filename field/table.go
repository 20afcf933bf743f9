package field

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the value type of a table column.
type Kind int

const (
	Number Kind = iota
	Text
	Timestamp
)

// Column describes one field of every record in a Table.
type Column struct {
	Name string
	Kind Kind
}

// Value is one cell. Only the member matching the column Kind is set; a
// missing number is NaN.
type Value struct {
	Num  float64
	Str  string
	Time time.Time
}

// Row is one record, aligned with Table.Columns.
type Row []Value

// Table is a station dataset: a header plus records sharing one schema.
type Table struct {
	Header  Header
	Columns []Column
	Rows    []Row
}

// Col returns the index of the named column or -1.
func (t *Table) Col(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Float returns the numeric value of a cell; NaN when the column is
// unknown or the value missing.
func (t *Table) Float(row int, name string) float64 {
	c := t.Col(name)
	if c < 0 {
		return math.NaN()
	}
	return t.Rows[row][c].Num
}

// Text returns the text value of a cell.
func (t *Table) Text(row int, name string) string {
	c := t.Col(name)
	if c < 0 {
		return ""
	}
	return t.Rows[row][c].Str
}

// Len is the number of records.
func (t *Table) Len() int { return len(t.Rows) }

// Subset keeps the records whose lat/lon columns fall inside box. The
// result may be empty.
func (t *Table) Subset(box BBox, latCol, lonCol string) *Table {
	out := &Table{Header: t.Header, Columns: t.Columns}
	la, lo := t.Col(latCol), t.Col(lonCol)
	if la < 0 || lo < 0 {
		return out
	}
	for _, r := range t.Rows {
		if box.Contains(r[la].Num, r[lo].Num) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Builder accumulates records for a Table from raw tokens, converting
// numeric tokens and masking the Missing sentinel.
type Builder struct {
	t *Table
}

// NewBuilder starts a table with the given schema.
func NewBuilder(h Header, cols ...Column) *Builder {
	return &Builder{t: &Table{Header: h, Columns: cols}}
}

// Numbers builds a schema of numeric columns with the given names.
func Numbers(names ...string) []Column {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Kind: Number}
	}
	return cols
}

// ParseNumber converts a token, yielding NaN for the sentinel and for
// anything that does not parse.
func ParseNumber(tok string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
	if err != nil {
		return math.NaN()
	}
	return MaskSentinel(v)
}

// AddTokens appends one record. tokens must have one entry per column;
// Timestamp columns are not accepted here, use AddRow.
func (b *Builder) AddTokens(tokens []string) {
	row := make(Row, len(b.t.Columns))
	for i, c := range b.t.Columns {
		switch c.Kind {
		case Text:
			row[i].Str = tokens[i]
		default:
			row[i].Num = ParseNumber(tokens[i])
		}
	}
	b.t.Rows = append(b.t.Rows, row)
}

// AddRow appends an already converted record.
func (b *Builder) AddRow(r Row) { b.t.Rows = append(b.t.Rows, r) }

// Table returns the finished table.
func (b *Builder) Table() *Table { return b.t }
