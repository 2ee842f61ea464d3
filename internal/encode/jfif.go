package encode

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	errNotJPEG = errors.New("encode: not a jpeg stream")
	errNoJFIF  = errors.New("encode: no JFIF segment")
)

const jfifUnitsDPI = 1

// WithDPI returns jpg with a JFIF APP0 segment declaring dpi dots per inch
// on both axes. An existing JFIF segment directly after SOI is rewritten in
// place; otherwise one is inserted.
func WithDPI(jpg []byte, dpi int) ([]byte, error) {
	if len(jpg) < 4 || jpg[0] != 0xFF || jpg[1] != 0xD8 {
		return nil, errNotJPEG
	}
	if dpi <= 0 || dpi > 0xFFFF {
		return nil, fmt.Errorf("encode: dpi %d out of range", dpi)
	}
	if isJFIF(jpg) {
		out := append([]byte(nil), jpg...)
		out[13] = jfifUnitsDPI
		binary.BigEndian.PutUint16(out[14:16], uint16(dpi))
		binary.BigEndian.PutUint16(out[16:18], uint16(dpi))
		return out, nil
	}
	app0 := []byte{
		0xFF, 0xE0, // APP0
		0x00, 0x10, // length 16
		'J', 'F', 'I', 'F', 0x00,
		0x01, 0x02, // version 1.02
		jfifUnitsDPI,
		0, 0, // X density
		0, 0, // Y density
		0, 0, // no thumbnail
	}
	binary.BigEndian.PutUint16(app0[12:14], uint16(dpi))
	binary.BigEndian.PutUint16(app0[14:16], uint16(dpi))
	out := make([]byte, 0, len(jpg)+len(app0))
	out = append(out, jpg[:2]...)
	out = append(out, app0...)
	out = append(out, jpg[2:]...)
	return out, nil
}

// ReadDPI returns the horizontal and vertical density declared in the JFIF
// segment of jpg, which must be expressed in dots per inch.
func ReadDPI(jpg []byte) (int, int, error) {
	if len(jpg) < 4 || jpg[0] != 0xFF || jpg[1] != 0xD8 {
		return 0, 0, errNotJPEG
	}
	if !isJFIF(jpg) {
		return 0, 0, errNoJFIF
	}
	if jpg[13] != jfifUnitsDPI {
		return 0, 0, fmt.Errorf("encode: density units %d are not dots per inch", jpg[13])
	}
	x := binary.BigEndian.Uint16(jpg[14:16])
	y := binary.BigEndian.Uint16(jpg[16:18])
	return int(x), int(y), nil
}

func isJFIF(jpg []byte) bool {
	return len(jpg) >= 20 &&
		jpg[2] == 0xFF && jpg[3] == 0xE0 &&
		string(jpg[6:11]) == "JFIF\x00"
}
