package cinrad

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/nmcdev/metio/field"
	"github.com/nmcdev/metio/internal/decompress"
	"github.com/sirupsen/logrus"
)

const standardFormat = "cinrad-standard"

// StandardMagic opens every CMA radar standard data file ("RSTM").
const StandardMagic = 0x4D545352

// GenericHeader is the 32 byte file head.
type GenericHeader struct {
	MagicNumber  int32
	MajorVersion int16
	MinorVersion int16
	GenericType  int32
	ProductType  int32
	Reserved     [16]byte
}

// SiteConfig is the 128 byte site description.
type SiteConfig struct {
	SiteCode      [8]byte
	SiteName      [32]byte
	Latitude      float32
	Longitude     float32
	AntennaHeight int32
	GroundHeight  int32
	Frequency     float32
	BeamWidthHori float32
	BeamWidthVert float32
	RDAVersion    int32
	RadarType     int16
	AntennaGain   int16
	TransLoss     int16
	RecvLoss      int16
	OtherLoss     int16
	Reserved      [46]byte
}

// TaskConfig is the 256 byte scan task description.
type TaskConfig struct {
	TaskName      [32]byte
	TaskDesc      [128]byte
	PolarType     int32
	ScanType      int32 // 2: single layer RHI
	PulseWidth    int32
	ScanStartTime int32 // seconds since 1970-01-01
	CutNumber     int32
	HoriNoise     float32
	VertNoise     float32
	HoriCali      float32
	VertCali      float32
	HoriTmp       float32
	VertTmp       float32
	ZDRCali       float32
	PHIDPCali     float32
	LDRCali       float32
	Reserved      [40]byte
}

// CutConfig is the 256 byte description of one tilt.
type CutConfig struct {
	ProcessMode     int32
	WaveForm        int32
	PRF1            float32
	PRF2            float32
	DealiasMode     int32
	Azimuth         float32
	Elevation       float32
	StartAngle      float32
	EndAngle        float32
	AngularReso     float32
	ScanSpeed       float32
	LogReso         int32 // m
	DopReso         int32 // m
	MaxRange1       int32
	MaxRange2       int32
	StartRange      int32
	Sample1         int32
	Sample2         int32
	PhaseMode       int32
	AtmosLoss       float32
	NyquistSpeed    float32
	MomentsMask     int64
	MomentsSizeMask int64
	MiscFilterMask  int32
	SQIThreshold    float32
	SIGThreshold    float32
	CSRThreshold    float32
	LOGThreshold    float32
	CPAThreshold    float32
	PMIThreshold    float32
	DPLOGThreshold  float32
	ReservedThres   [4]byte
	DBTMask         int32
	DBZMask         int32
	VelMask         int32
	SWMask          int32
	DPMask          int32
	ReservedMask    [12]byte
	ScanSync        int32
	Direction       int32
	ClutterClass    int16
	ClutterFilter   int16
	ClutterNotch    int16
	ClutterWindow   int16
	Reserved        [72]byte
}

// RadialHeader is the 64 byte head of each radial.
type RadialHeader struct {
	RadialState     int32
	SpotBlank       int32
	SequenceNumber  int32
	RadialNumber    int32
	ElevationNumber int32
	Azimuth         float32
	Elevation       float32
	Seconds         int32
	Microseconds    int32
	DataLength      int32
	MomentNumber    int32
	Reserved        int16
	HoriEstNoise    int16
	VertEstNoise    int16
	ZipType         uint8 // 1: LZO
	Reserved2       [13]byte
}

// MomentHeader is the 32 byte head of each moment block in a radial.
type MomentHeader struct {
	DataType    int32
	Scale       int32
	Offset      int32
	BinLength   int16
	Flags       int16
	BlockLength int32
	Reserved    [12]byte
}

// standardMoments maps data type codes to moment names.
var standardMoments = map[int32]string{
	1: MomentTREF, 2: MomentREF, 3: MomentVEL, 4: MomentSW, 5: "SQI", 6: "CPA", 7: "ZDR", 8: "LDR",
	9: "RHO", 10: "PHI", 11: "KDP", 12: "CP", 14: "HCL", 15: "CF", 16: "SNRH",
	17: "SNRV", 32: "Zc", 33: "Vc", 34: "Wc", 35: "ZDRc",
}

// reservedCodes are the stored values below which gates carry flags
// instead of data.
const reservedCodes = 5

// DataMoment is one moment of one radial in stored integers.
type DataMoment struct {
	MomentHeader
	Data []uint16
}

// ScaledData converts the stored integers to physical values with
// F = (N - OFFSET) / SCALE. Reserved codes become NaN.
func (d *DataMoment) ScaledData() []float64 {
	return d.scaledWith(d.Scale, d.Offset)
}

func (d *DataMoment) scaledWith(s, o int32) []float64 {
	out := make([]float64, len(d.Data))
	scale, offset := float64(s), float64(o)
	for i, n := range d.Data {
		if n < reservedCodes {
			out[i] = math.NaN()
			continue
		}
		out[i] = (float64(n) - offset) / scale
	}
	return out
}

// RangeFolded flags the gates stored with the range folded code.
func (d *DataMoment) RangeFolded() []bool {
	out := make([]bool, len(d.Data))
	for i, n := range d.Data {
		out[i] = n == 1
	}
	return out
}

// StandardRadial is one radial with its moments.
type StandardRadial struct {
	Header  RadialHeader
	Moments map[string]*DataMoment
}

// StandardData is a decoded CMA radar standard data volume.
type StandardData struct {
	Header GenericHeader
	Site   SiteConfig
	Task   TaskConfig
	Cuts   []CutConfig

	// ElevationScans holds radials by zero based tilt index.
	ElevationScans map[int][]*StandardRadial
}

// Code returns the site code.
func (sd *StandardData) Code() string { return text(sd.Site.SiteCode[:]) }

// Name returns the site name.
func (sd *StandardData) Name() string { return text(sd.Site.SiteName[:]) }

// Time implements Volume.
func (sd *StandardData) Time() time.Time {
	return time.Unix(int64(sd.Task.ScanStartTime), 0).UTC()
}

// RHI reports a single layer range height scan.
func (sd *StandardData) RHI() bool { return sd.Task.ScanType == 2 }

// Tilts implements Volume.
func (sd *StandardData) Tilts() []int { return sortedTilts(sd.ElevationScans) }

// Moments implements Volume.
func (sd *StandardData) Moments(tilt int) []string {
	seen := map[string]bool{}
	var names []string
	for _, r := range sd.ElevationScans[tilt] {
		for name := range r.Moments {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// Sweep implements Volume. Gate i lies (i+1) Doppler resolutions from the
// radar, as the range axis of the format is defined. Every radial of the
// tilt is scaled with the scale and offset of the first block of the
// moment. Range height scans are cut at the first cut's maximum range
// and carry the elevation of each radial.
func (sd *StandardData) Sweep(tilt int, moment string) (*Sweep, error) {
	radials := sd.ElevationScans[tilt]
	var first *DataMoment
	for _, r := range radials {
		if m, ok := r.Moments[moment]; ok {
			first = m
			break
		}
	}
	if first == nil {
		return nil, &NoMomentError{Tilt: tilt, Moment: moment}
	}

	var reso, elevation float64
	if tilt < len(sd.Cuts) {
		reso = float64(sd.Cuts[tilt].DopReso) / 1000
		elevation = float64(sd.Cuts[tilt].Elevation)
	} else {
		elevation = float64(radials[0].Header.Elevation)
	}
	gates := -1
	if sd.RHI() && len(sd.Cuts) > 0 && reso > 0 {
		gates = int(float64(sd.Cuts[0].MaxRange1) / 1000 / reso)
	}

	rs := make([]sweepRadial, 0, len(radials))
	for _, r := range radials {
		sr := sweepRadial{azimuth: float64(r.Header.Azimuth)}
		if m, ok := r.Moments[moment]; ok {
			sr.values = m.scaledWith(first.Scale, first.Offset)
			if moment == MomentVEL || moment == MomentSW {
				sr.folded = m.RangeFolded()
			}
			if gates >= 0 && len(sr.values) > gates {
				sr.values = sr.values[:gates]
				if sr.folded != nil {
					sr.folded = sr.folded[:gates]
				}
			}
		}
		rs = append(rs, sr)
	}
	s := buildSweep(moment, elevation, rs, func(i int) float64 { return float64(i+1) * reso })
	if sd.RHI() {
		s.Elevations = make([]float64, len(radials))
		for i, r := range radials {
			s.Elevations[i] = float64(r.Header.Elevation)
		}
	}
	return s, nil
}

func text(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(bytes.TrimSpace(b))
}

type reader struct {
	*bytes.Reader
	format string
}

func (r *reader) offset() int { return int(r.Size()) - r.Len() }

func (r *reader) read(section string, v interface{}) error {
	off := r.offset()
	if err := binary.Read(r, binary.LittleEndian, v); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return &field.FormatError{Format: r.format, Section: section, Offset: off, Reason: "truncated", Err: err}
	}
	return nil
}

// DecodeStandard decodes CMA radar standard data, unwrapping a gzip or
// bzip2 envelope first. Radials are read until an end of volume or end of
// single scan radial.
func DecodeStandard(data []byte) (*StandardData, error) {
	data, err := decompress.Unwrap(data)
	if err != nil {
		return nil, &field.FormatError{Format: standardFormat, Reason: "envelope", Err: err}
	}
	r := &reader{Reader: bytes.NewReader(data), format: standardFormat}

	sd := &StandardData{ElevationScans: make(map[int][]*StandardRadial)}
	if err := r.read("generic header", &sd.Header); err != nil {
		return nil, err
	}
	if sd.Header.MagicNumber != StandardMagic {
		return nil, field.Errorf(standardFormat, 0, "bad magic number %#x", uint32(sd.Header.MagicNumber))
	}
	if err := r.read("site config", &sd.Site); err != nil {
		return nil, err
	}
	if err := r.read("task config", &sd.Task); err != nil {
		return nil, err
	}
	if sd.Task.CutNumber < 0 || int(sd.Task.CutNumber)*binary.Size(CutConfig{}) > r.Len() {
		return nil, field.Errorf(standardFormat, r.offset(), "%d cut configs do not fit in %d bytes", sd.Task.CutNumber, r.Len())
	}
	sd.Cuts = make([]CutConfig, sd.Task.CutNumber)
	if err := r.read("cut config", sd.Cuts); err != nil {
		return nil, err
	}
	logrus.Debugf("Standard data %s %s, task %s with %s cuts", sd.Code(), sd.Name(),
		text(sd.Task.TaskName[:]), color.CyanString("%d", len(sd.Cuts)))

	radials := 0
	for {
		off := r.offset()
		radial := &StandardRadial{Moments: make(map[string]*DataMoment)}
		if err := r.read("radial header", &radial.Header); err != nil {
			return nil, err
		}
		h := radial.Header
		if h.ZipType == 1 {
			return nil, field.Unsupported(standardFormat, "LZO compressed radial at %d", off)
		}
		for i := int32(0); i < h.MomentNumber; i++ {
			m := &DataMoment{}
			if err := r.read("moment header", &m.MomentHeader); err != nil {
				return nil, err
			}
			name, ok := standardMoments[m.DataType]
			if !ok {
				logrus.Warnf("Standard data moment type %d not understood, skipping", m.DataType)
				if err := r.skip(int(m.BlockLength)); err != nil {
					return nil, err
				}
				continue
			}
			if err := readMoment(r, m); err != nil {
				return nil, err
			}
			radial.Moments[name] = m
		}

		tilt := int(h.ElevationNumber) - 1
		sd.ElevationScans[tilt] = append(sd.ElevationScans[tilt], radial)
		radials++

		if h.RadialState == RadialStatusEndOfVolumeScan || h.RadialState == RadialStatusEndOfSingleScan {
			break
		}
	}
	logrus.Debugf("  found %s radials on %d tilts", color.CyanString("%d", radials), len(sd.ElevationScans))
	return sd, nil
}

func (r *reader) skip(n int) error {
	if n < 0 || n > r.Len() {
		return field.Errorf(r.format, r.offset(), "cannot skip %d bytes, %d left", n, r.Len())
	}
	_, err := r.Seek(int64(n), io.SeekCurrent)
	return err
}

func readMoment(r *reader, m *DataMoment) error {
	off := r.offset()
	if m.BinLength != 1 && m.BinLength != 2 {
		return field.Errorf(standardFormat, off, "moment bin length %d", m.BinLength)
	}
	if m.BlockLength < 0 || int(m.BlockLength) > r.Len() {
		return field.Errorf(standardFormat, off, "moment block of %d bytes, %d left", m.BlockLength, r.Len())
	}
	if m.Scale == 0 {
		return field.Errorf(standardFormat, off, "moment type %d has zero scale", m.DataType)
	}
	n := int(m.BlockLength) / int(m.BinLength)
	m.Data = make([]uint16, n)
	if m.BinLength == 1 {
		raw := make([]uint8, n)
		if err := r.read("moment data", raw); err != nil {
			return err
		}
		for i, v := range raw {
			m.Data[i] = uint16(v)
		}
	} else if err := r.read("moment data", m.Data); err != nil {
		return err
	}
	// odd trailing byte of a two byte block
	return r.skip(int(m.BlockLength) - n*int(m.BinLength))
}
