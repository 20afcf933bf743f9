// Package decompress unwraps the compression envelopes seen around
// meteorological products: whole-file gzip and bzip2 around radar base
// data, and the per-payload bzip2, zlib and LZW codes of mosaic files.
package decompress

import (
	"bytes"
	"compress/lzw"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/fatih/color"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte("BZh")
)

// Envelope names the outer compression of a file.
type Envelope string

const (
	None  Envelope = ""
	Gzip  Envelope = "gzip"
	Bzip2 Envelope = "bzip2"
)

// Sniff reports the compression envelope of data from its magic bytes.
func Sniff(data []byte) Envelope {
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		return Gzip
	case bytes.HasPrefix(data, bzip2Magic):
		return Bzip2
	}
	return None
}

// Unwrap removes a gzip or bzip2 envelope. Data without one is returned
// as is.
func Unwrap(data []byte) ([]byte, error) {
	env := Sniff(data)
	var (
		out []byte
		err error
	)
	switch env {
	case Gzip:
		out, err = Gunzip(data)
	case Bzip2:
		out, err = Bunzip2(data)
	default:
		return data, nil
	}
	if err != nil {
		return nil, err
	}
	logrus.Debugf("Unwrapped %s envelope (%s -> %s bytes)", env,
		color.CyanString("%d", len(data)), color.CyanString("%d", len(out)))
	return out, nil
}

// Gunzip inflates a gzip stream.
func Gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "gzip")
	}
	defer zr.Close()
	return readAll(zr, "gzip")
}

// Bunzip2 inflates a bzip2 stream.
func Bunzip2(data []byte) ([]byte, error) {
	br, err := bzip2.NewReader(bytes.NewReader(data), nil)
	if err != nil {
		return nil, errors.Wrap(err, "bzip2")
	}
	defer br.Close()
	return readAll(br, "bzip2")
}

// Zlib inflates a zlib stream.
func Zlib(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "zlib")
	}
	defer zr.Close()
	return readAll(zr, "zlib")
}

// LZW expands a most-significant-bit-first LZW stream with 8 bit literals.
func LZW(data []byte) ([]byte, error) {
	lr := lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
	defer lr.Close()
	return readAll(lr, "lzw")
}

func readAll(r io.Reader, name string) ([]byte, error) {
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	return out, nil
}
