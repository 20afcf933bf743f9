package grib

import "encoding/binary"

// bitReader reads big endian unsigned integers of up to 32 bits, most
// significant bit first.
type bitReader struct {
	buf []byte
	pos int // bit position
}

// read returns the next n bits. The caller checks that the buffer holds
// them.
func (r *bitReader) read(n int) uint32 {
	if r.pos%8 == 0 {
		off := r.pos / 8
		switch n {
		case 8:
			r.pos += 8
			return uint32(r.buf[off])
		case 16:
			r.pos += 16
			return uint32(binary.BigEndian.Uint16(r.buf[off:]))
		case 32:
			r.pos += 32
			return binary.BigEndian.Uint32(r.buf[off:])
		}
	}
	var v uint32
	for i := 0; i < n; i++ {
		b := r.buf[(r.pos+i)/8] >> (7 - uint((r.pos+i)%8)) & 1
		v = v<<1 | uint32(b)
	}
	r.pos += n
	return v
}

// GRIB2 signed integers are sign and magnitude, not two's complement.

func int8sm(b byte) int {
	if b&0x80 != 0 {
		return -int(b & 0x7f)
	}
	return int(b)
}

func int16sm(b []byte) int {
	v := binary.BigEndian.Uint16(b)
	if v&0x8000 != 0 {
		return -int(v & 0x7fff)
	}
	return int(v)
}

func int32sm(b []byte) int64 {
	v := binary.BigEndian.Uint32(b)
	if v&0x80000000 != 0 {
		return -int64(v & 0x7fffffff)
	}
	return int64(v)
}
