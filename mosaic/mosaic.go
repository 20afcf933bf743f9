// Package mosaic decodes gridded radar mosaic products: SWAN D131 grids,
// MOC mosaics and CRaMS LATLON run-length mosaics. All three are little
// endian with a fixed head followed by the grid payload.
package mosaic

import (
	"bytes"
	"encoding/binary"

	"github.com/nmcdev/metio/field"
)

func text(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(bytes.TrimSpace(b))
}

func readHead(format string, data []byte, head interface{}) error {
	if n := binary.Size(head); len(data) < n {
		return field.Errorf(format, 0, "file is %d bytes, shorter than the %d byte head", len(data), n)
	}
	// the size check above makes this infallible
	return binary.Read(bytes.NewReader(data), binary.LittleEndian, head)
}
