package cinrad

import (
	"bytes"
	"encoding/binary"
	"math"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/nmcdev/metio/field"
	"github.com/nmcdev/metio/internal/decompress"
	"github.com/sirupsen/logrus"
)

const saFormat = "cinrad-sa"

const (
	// LegacyCTMHeaderLength sits in front of every message header
	LegacyCTMHeaderLength = 12

	// SARecordLength is the size of every radial record
	SARecordLength = 2432

	saRefGates = 460
	saDopGates = 920
)

// MessageHeader is the WSR-88D style message header after the CTM bytes.
type MessageHeader struct {
	MessageSize         uint16
	RDARedundantChannel uint8
	MessageType         uint8
	IDSequenceNumber    uint16
	JulianDate          uint16
	MillisOfDay         uint32
	NumMessageSegments  uint16
	MessageSegmentNum   uint16
}

// SARadialHeader describes one SA radial. Angles are coded, see Angle.
type SARadialHeader struct {
	CollectionTime      uint32  // milliseconds past midnight GMT
	CollectionDate      uint16  // days since 1970-01-01, starting at 1
	UnambiguousRange    uint16  // 0.1 km
	AzimuthAngle        uint16  // coded
	AzimuthNumber       uint16  // radial number within the elevation scan
	RadialStatus        uint16  // see RadialStatus constants
	ElevationAngle      uint16  // coded
	ElevationNumber     uint16  // elevation number within the volume scan
	FirstGateRangeRef   int16   // m
	FirstGateRangeDop   int16   // m
	GateSizeRef         uint16  // m
	GateSizeDop         uint16  // m
	GatesRef            uint16  // reflectivity gate count
	GatesDop            uint16  // velocity and spectrum width gate count
	SectorNumber        uint16  // sector number within the cut
	CalibrationConstant float32 // dB
	RefPointer          uint16
	VelPointer          uint16
	SWPointer           uint16
	VelocityResolution  uint16 // 2: 0.5 m/s, 4: 1 m/s
	VCP                 uint16 // volume coverage pattern
	Reserved            [8]byte
	RefPlaybackPointer  uint16
	VelPlaybackPointer  uint16
	SWPlaybackPointer   uint16
	NyquistVelocity     uint16 // 0.01 m/s
	Reserved2           [38]byte
}

// Angle decodes a coded SA angle to degrees.
func Angle(coded uint16) float64 { return float64(coded) / 8 * 180 / 4096 }

// Date and time this radial was collected.
func (h SARadialHeader) Date() time.Time {
	return time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC).
		Add(time.Duration(int(h.CollectionDate)-1) * time.Hour * 24).
		Add(time.Duration(h.CollectionTime) * time.Millisecond)
}

// saRecord is the fixed layout of one 2432 byte record.
type saRecord struct {
	CTM     [LegacyCTMHeaderLength]byte
	Message MessageHeader
	Radial  SARadialHeader
	REF     [saRefGates]uint8
	VEL     [saDopGates]uint8
	SW      [saDopGates]uint8
	Spare   [4]byte
}

// SAMoment is one moment of one SA radial in stored bytes. N = 0 is below
// threshold and N = 1 is range folded.
type SAMoment struct {
	Name               string
	VelocityResolution uint16
	Data               []uint8
}

// ScaledData converts the stored bytes to physical values. Codes 0 and 1
// become NaN.
func (m *SAMoment) ScaledData() []float64 {
	out := make([]float64, len(m.Data))
	for i, n := range m.Data {
		if n < 2 {
			out[i] = math.NaN()
			continue
		}
		v := float64(n) - 2
		switch m.Name {
		case MomentREF:
			out[i] = v/2 - 32
		case MomentVEL:
			if m.VelocityResolution == 2 {
				out[i] = v/2 - 63.5
			} else {
				out[i] = v - 127
			}
		default:
			out[i] = v/2 - 63.5
		}
	}
	return out
}

// RangeFolded flags the range folded gates.
func (m *SAMoment) RangeFolded() []bool {
	out := make([]bool, len(m.Data))
	for i, n := range m.Data {
		out[i] = n == 1
	}
	return out
}

// SARadial is one decoded SA radial.
type SARadial struct {
	Header  SARadialHeader
	REFData SAMoment
	VELData SAMoment
	SWData  SAMoment
}

func (r *SARadial) moment(name string) *SAMoment {
	switch name {
	case MomentREF:
		return &r.REFData
	case MomentVEL:
		return &r.VELData
	case MomentSW:
		return &r.SWData
	}
	return nil
}

// SAVolume is a decoded CINRAD SA/SB volume scan.
type SAVolume struct {
	VCP int

	// ElevationScans holds radials by zero based tilt index.
	ElevationScans map[int][]*SARadial
}

// nominal elevation angles of the SA volume coverage patterns
var saElevations = map[int][]float64{
	11: {0.50, 0.50, 1.45, 1.45, 2.40, 3.35, 4.30, 5.25, 6.2, 7.5, 8.7, 10, 12, 14, 16.7, 19.5},
	21: {0.50, 0.50, 1.45, 1.45, 2.40, 3.35, 4.30, 6.00, 9.00, 14.6, 19.5},
	31: {0.50, 0.50, 1.50, 1.50, 2.50, 2.50, 3.50, 4.50},
	32: {0.50, 0.50, 2.50, 3.50, 4.50},
}

// NominalElevations returns the elevation angles a volume coverage
// pattern schedules, or nil for an unknown pattern.
func NominalElevations(vcp int) []float64 { return saElevations[vcp] }

// Time implements Volume.
func (v *SAVolume) Time() time.Time {
	tilts := v.Tilts()
	if len(tilts) == 0 {
		return time.Time{}
	}
	return v.ElevationScans[tilts[0]][0].Header.Date()
}

// Tilts implements Volume.
func (v *SAVolume) Tilts() []int { return sortedTilts(v.ElevationScans) }

// Moments implements Volume.
func (v *SAVolume) Moments(tilt int) []string {
	var names []string
	for _, name := range []string{MomentREF, MomentSW, MomentVEL} {
		for _, r := range v.ElevationScans[tilt] {
			if len(r.moment(name).Data) > 0 {
				names = append(names, name)
				break
			}
		}
	}
	sort.Strings(names)
	return names
}

// Sweep implements Volume. Ranges are gate centers.
func (v *SAVolume) Sweep(tilt int, moment string) (*Sweep, error) {
	radials := v.ElevationScans[tilt]
	var (
		rs          []sweepRadial
		first, size float64
		found       bool
	)
	for _, r := range radials {
		m := r.moment(moment)
		if m == nil {
			return nil, &NoMomentError{Tilt: tilt, Moment: moment}
		}
		sr := sweepRadial{azimuth: Angle(r.Header.AzimuthAngle)}
		if len(m.Data) > 0 {
			if !found {
				if moment == MomentREF {
					first, size = float64(r.Header.FirstGateRangeRef), float64(r.Header.GateSizeRef)
				} else {
					first, size = float64(r.Header.FirstGateRangeDop), float64(r.Header.GateSizeDop)
				}
			}
			found = true
			sr.values = m.ScaledData()
			if moment != MomentREF {
				sr.folded = m.RangeFolded()
			}
		}
		rs = append(rs, sr)
	}
	if !found {
		return nil, &NoMomentError{Tilt: tilt, Moment: moment}
	}
	elevation := Angle(radials[0].Header.ElevationAngle)
	return buildSweep(moment, elevation, rs, func(i int) float64 {
		return (first + (float64(i)+0.5)*size) / 1000
	}), nil
}

// LooksLikeSA reports whether data is a whole number of SA records whose
// first record names a known volume coverage pattern.
func LooksLikeSA(data []byte) bool {
	if len(data) == 0 || len(data)%SARecordLength != 0 {
		return false
	}
	_, ok := saElevations[int(binary.LittleEndian.Uint16(data[72:74]))]
	return ok
}

// DecodeSA decodes CINRAD SA/SB base data, unwrapping a gzip or bzip2
// envelope first. Records without gates carry no radial and are skipped.
func DecodeSA(data []byte) (*SAVolume, error) {
	data, err := decompress.Unwrap(data)
	if err != nil {
		return nil, &field.FormatError{Format: saFormat, Reason: "envelope", Err: err}
	}
	if len(data) == 0 || len(data)%SARecordLength != 0 {
		return nil, field.Errorf(saFormat, len(data)/SARecordLength*SARecordLength,
			"%d bytes is not a whole number of %d byte records", len(data), SARecordLength)
	}

	vol := &SAVolume{ElevationScans: make(map[int][]*SARadial)}
	r := bytes.NewReader(data)
	statusCounts := map[uint16]int{}
	for off := 0; off < len(data); off += SARecordLength {
		rec := saRecord{}
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return nil, &field.FormatError{Format: saFormat, Offset: off, Reason: "short record", Err: err}
		}

		h := rec.Radial
		if h.GatesRef == 0 && h.GatesDop == 0 {
			logrus.Tracef("  skipping record at %d without gates", off)
			continue
		}
		if h.ElevationNumber == 0 {
			return nil, field.Errorf(saFormat, off+44, "elevation number 0")
		}
		if int(h.GatesRef) > saRefGates || int(h.GatesDop) > saDopGates {
			return nil, field.Errorf(saFormat, off+54, "gate counts %d/%d exceed the record", h.GatesRef, h.GatesDop)
		}
		if vol.VCP == 0 {
			vol.VCP = int(h.VCP)
		}

		radial := &SARadial{
			Header:  h,
			REFData: SAMoment{Name: MomentREF, Data: rec.REF[:h.GatesRef]},
			VELData: SAMoment{Name: MomentVEL, VelocityResolution: h.VelocityResolution, Data: rec.VEL[:h.GatesDop]},
			SWData:  SAMoment{Name: MomentSW, Data: rec.SW[:h.GatesDop]},
		}
		tilt := int(h.ElevationNumber) - 1
		vol.ElevationScans[tilt] = append(vol.ElevationScans[tilt], radial)
		statusCounts[h.RadialStatus]++
	}

	logrus.Debugf("SA volume VCP %d with %s tilts", vol.VCP, color.CyanString("%d", len(vol.ElevationScans)))
	for status, count := range statusCounts {
		logrus.Debugf("    radial status %d had %d radials", status, count)
	}
	return vol, nil
}
