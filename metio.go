// Package metio recognizes meteorological products by content and name
// and dispatches them to the matching decoder.
//
// Every decoder is a pure function of the product bytes; fetching is left
// to package source.
package metio

import (
	"bytes"
	"encoding/binary"
	"path"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/nmcdev/metio/awx"
	"github.com/nmcdev/metio/cinrad"
	"github.com/nmcdev/metio/field"
	"github.com/nmcdev/metio/grads"
	"github.com/nmcdev/metio/grib"
	"github.com/nmcdev/metio/internal/decompress"
	"github.com/nmcdev/metio/micaps"
	"github.com/nmcdev/metio/mosaic"
	"github.com/sirupsen/logrus"
)

// Kind identifies a product format.
type Kind int

const (
	Unknown Kind = iota
	Micaps
	GDSGrid
	GDSStation
	AWX
	RadarStandard
	RadarSA
	SWAN
	MOC
	LatLon
	GrADSCMP
	GRIB
)

var kindNames = map[Kind]string{
	Unknown:       "unknown",
	Micaps:        "micaps",
	GDSGrid:       "gds-grid",
	GDSStation:    "gds-station",
	AWX:           "awx",
	RadarStandard: "radar-standard",
	RadarSA:       "radar-sa",
	SWAN:          "swan",
	MOC:           "moc",
	LatLon:        "latlon",
	GrADSCMP:      "grads-cmp",
	GRIB:          "grib",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "kind " + strconv.Itoa(int(k))
}

// Product is the outcome of Sniff.
type Product struct {
	Kind    Kind
	Diamond int // MICAPS type, for Kind Micaps
}

func (p Product) String() string {
	if p.Kind == Micaps {
		return "micaps" + strconv.Itoa(p.Diamond)
	}
	return p.Kind.String()
}

// Sniff identifies a product from its leading bytes, falling back to the
// file name where the content carries no signature. Compressed radar,
// SWAN and GRIB files are looked at through their gzip or bzip2 envelope.
func Sniff(name string, data []byte) Product {
	if bytes.HasPrefix(data, grib.Magic) {
		return Product{Kind: GRIB}
	}
	if d, ok := diamond(data); ok {
		return Product{Kind: Micaps, Diamond: d}
	}
	if bytes.HasPrefix(data, []byte("mdfs")) && len(data) >= 6 {
		switch binary.LittleEndian.Uint16(data[4:6]) {
		case micaps.GDSScalar, micaps.GDSVector:
			return Product{Kind: GDSGrid}
		default:
			return Product{Kind: GDSStation}
		}
	}
	if mosaic.IsMOC(data) {
		return Product{Kind: MOC}
	}
	if len(data) >= 178 && binary.LittleEndian.Uint16(data[176:178]) == mosaic.LatLonGridFlag {
		return Product{Kind: LatLon}
	}
	if looksLikeAWX(name, data) {
		return Product{Kind: AWX}
	}

	inner := data
	if decompress.Sniff(data) != decompress.None {
		var err error
		if inner, err = decompress.Unwrap(data); err != nil {
			logrus.Debugf("Sniffing %s: %v", name, err)
			return Product{}
		}
	}
	switch {
	case bytes.HasPrefix(inner, grib.Magic):
		return Product{Kind: GRIB}
	case len(inner) >= 4 && binary.LittleEndian.Uint32(inner) == cinrad.StandardMagic:
		return Product{Kind: RadarStandard}
	case looksLikeSWAN(name, inner):
		return Product{Kind: SWAN}
	case cinrad.LooksLikeSA(inner):
		return Product{Kind: RadarSA}
	case grads.IsCMP(name, len(data)):
		return Product{Kind: GrADSCMP}
	}
	return Product{}
}

// diamond reads "diamond <n>" at the start of a text product.
func diamond(data []byte) (int, bool) {
	head := data
	if len(head) > 64 {
		head = head[:64]
	}
	f := strings.Fields(string(bytes.TrimPrefix(head, []byte{0xEF, 0xBB, 0xBF})))
	if len(f) < 2 || !strings.EqualFold(f[0], "diamond") {
		return 0, false
	}
	n, err := strconv.Atoi(f[1])
	return n, err == nil
}

func looksLikeAWX(name string, data []byte) bool {
	if strings.EqualFold(path.Ext(name), ".awx") {
		return true
	}
	if len(data) < 40 {
		return false
	}
	var order binary.ByteOrder = binary.LittleEndian
	if data[12] != 0 || data[13] != 0 {
		order = binary.BigEndian
	}
	// 40 byte first class head, non-zero record length, SATxx format string
	return order.Uint16(data[14:16]) == 40 && order.Uint16(data[20:22]) != 0 &&
		strings.HasPrefix(string(data[30:33]), "SAT")
}

func looksLikeSWAN(name string, data []byte) bool {
	if len(data) < 1024 {
		return false
	}
	if bytes.HasPrefix(data, []byte("SWAN")) || bytes.HasPrefix(data, []byte("D131")) {
		return true
	}
	up := strings.ToUpper(path.Base(name))
	return strings.Contains(up, "SWAN") || strings.Contains(up, "RADAMCR")
}

// Result is a decoded product. Exactly one of Grid, Grids, Table,
// Composite and Volume is set; Grids holds the fields of a GRIB file.
type Result struct {
	Product   Product
	Grid      *field.Grid
	Grids     []*field.Grid
	Table     *field.Table
	Composite *micaps.Composite
	Volume    cinrad.Volume
}

// Header returns the header of a grid, table or composite result. For a
// GRIB file it is the header of the first field.
func (r *Result) Header() (field.Header, bool) {
	switch {
	case r.Grid != nil:
		return r.Grid.Header, true
	case len(r.Grids) > 0:
		return r.Grids[0].Header, true
	case r.Table != nil:
		return r.Table.Header, true
	case r.Composite != nil:
		return r.Composite.Header, true
	}
	return field.Header{}, false
}

// Options tune Decode.
type Options struct {
	Micaps      []micaps.Option
	GRIB        []grib.Option
	GrADS       []grads.Option
	SWANProduct string // empty infers the product from the file
}

// WithLimit restricts every product kind that supports it to box.
func (o *Options) WithLimit(box field.BBox) {
	o.Micaps = append(o.Micaps, micaps.WithLimit(box))
	o.GRIB = append(o.GRIB, grib.WithLimit(box))
	o.GrADS = append(o.GrADS, grads.WithLimit(box))
}

// Decode sniffs and decodes one product. Errors carry name as the file
// identity.
func Decode(name string, data []byte, opts Options) (*Result, error) {
	p := Sniff(name, data)
	logrus.Debugf("%s: %s", name, color.CyanString(p.String()))

	res, err := decode(p, name, data, opts)
	if err != nil {
		return nil, field.WithFile(err, name)
	}
	res.Product = p
	return res, nil
}

func decode(p Product, name string, data []byte, opts Options) (*Result, error) {
	grid := func(g *field.Grid, err error) (*Result, error) {
		if err != nil {
			return nil, err
		}
		return &Result{Grid: g}, nil
	}
	table := func(t *field.Table, err error) (*Result, error) {
		if err != nil {
			return nil, err
		}
		return &Result{Table: t}, nil
	}

	switch p.Kind {
	case Micaps:
		return decodeMicaps(p.Diamond, data, opts.Micaps)
	case GDSGrid:
		return grid(micaps.DecodeGDSGrid(data, opts.Micaps...))
	case GDSStation:
		return table(micaps.DecodeGDSStation(data, opts.Micaps...))
	case AWX:
		return grid(awx.Decode(data))
	case SWAN:
		return grid(mosaic.DecodeSWAN(data, opts.SWANProduct))
	case MOC:
		return grid(mosaic.DecodeMOC(data))
	case LatLon:
		return grid(mosaic.DecodeLatLon(data))
	case GrADSCMP:
		return grid(grads.DecodeCMP(name, data, opts.GrADS...))
	case GRIB:
		inner, err := decompress.Unwrap(data)
		if err != nil {
			return nil, &field.FormatError{Format: "grib2", Reason: "envelope", Err: err}
		}
		gs, err := grib.Decode(inner, opts.GRIB...)
		if err != nil {
			return nil, err
		}
		return &Result{Grids: gs}, nil
	case RadarStandard:
		v, err := cinrad.DecodeStandard(data)
		if err != nil {
			return nil, err
		}
		return &Result{Volume: v}, nil
	case RadarSA:
		v, err := cinrad.DecodeSA(data)
		if err != nil {
			return nil, err
		}
		return &Result{Volume: v}, nil
	}
	return nil, field.Unsupported("metio", "unrecognized product")
}

func decodeMicaps(kind int, data []byte, opts []micaps.Option) (*Result, error) {
	var (
		t   *field.Table
		g   *field.Grid
		err error
	)
	switch kind {
	case 1:
		t, err = micaps.Decode1(data, opts...)
	case 2:
		t, err = micaps.Decode2(data, opts...)
	case 3:
		t, err = micaps.Decode3(data, opts...)
	case 4:
		g, err = micaps.Decode4(data, opts...)
	case 5:
		t, err = micaps.Decode5(data, opts...)
	case 7:
		t, err = micaps.Decode7(data)
	case 8:
		t, err = micaps.Decode8(data, opts...)
	case 11:
		g, err = micaps.Decode11(data, opts...)
	case 14:
		c, err := micaps.Decode14(data)
		if err != nil {
			return nil, err
		}
		return &Result{Composite: c}, nil
	case 120:
		t, err = micaps.Decode120(data, opts...)
	default:
		return nil, field.Unsupported("micaps", "diamond %d", kind)
	}
	if err != nil {
		return nil, err
	}
	if g != nil {
		return &Result{Grid: g}, nil
	}
	return &Result{Table: t}, nil
}
