package extract

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var errNoDensity = errors.New("no density metadata")

// imageDPI reads the declared print density of a PNG (pHYs chunk) or JPEG
// (JFIF header) and returns the smaller of the horizontal and vertical
// values in dots per inch. Files without density metadata fail with
// errNoDensity: the quality gate treats an unknown resolution the same as
// a low one, because it cannot vouch for the scan.
func imageDPI(data []byte) (int, error) {
	switch {
	case len(data) > 8 && bytes8(data) == pngSignature:
		return pngDPI(data)
	case len(data) > 2 && data[0] == 0xFF && data[1] == 0xD8:
		return jpegDPI(data)
	default:
		return 0, fmt.Errorf("unrecognized image container")
	}
}

const pngSignature = "\x89PNG\r\n\x1a\n"

func bytes8(data []byte) string { return string(data[:8]) }

func pngDPI(data []byte) (int, error) {
	// Chunk stream starts after the 8-byte signature:
	// length(4) type(4) payload crc(4), repeated.
	off := 8
	for off+12 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[off : off+4]))
		ctype := string(data[off+4 : off+8])
		if off+12+length > len(data) {
			break
		}
		if ctype == "pHYs" && length == 9 {
			payload := data[off+8 : off+17]
			xppu := binary.BigEndian.Uint32(payload[0:4])
			yppu := binary.BigEndian.Uint32(payload[4:8])
			if payload[8] != 1 { // 1 = pixels per metre
				return 0, errNoDensity
			}
			return minInt(ppmToDPI(xppu), ppmToDPI(yppu)), nil
		}
		if ctype == "IDAT" {
			// pHYs must precede image data; stop scanning.
			break
		}
		off += 12 + length
	}
	return 0, errNoDensity
}

func ppmToDPI(ppm uint32) int {
	return int(math.Round(float64(ppm) * 0.0254))
}

func jpegDPI(data []byte) (int, error) {
	// Walk marker segments looking for APP0/JFIF, which carries the
	// density declaration.
	off := 2
	for off+4 <= len(data) {
		if data[off] != 0xFF {
			break
		}
		marker := data[off+1]
		if marker == 0xD9 || marker == 0xDA { // EOI / start of scan
			break
		}
		length := int(binary.BigEndian.Uint16(data[off+2 : off+4]))
		if length < 2 || off+2+length > len(data) {
			break
		}
		if marker == 0xE0 && length >= 16 {
			seg := data[off+4 : off+2+length]
			if string(seg[:5]) == "JFIF\x00" {
				units := seg[7]
				xd := binary.BigEndian.Uint16(seg[8:10])
				yd := binary.BigEndian.Uint16(seg[10:12])
				switch units {
				case 1: // dots per inch
					return minInt(int(xd), int(yd)), nil
				case 2: // dots per centimetre
					return minInt(int(math.Round(float64(xd)*2.54)), int(math.Round(float64(yd)*2.54))), nil
				default:
					return 0, errNoDensity
				}
			}
		}
		off += 2 + length
	}
	return 0, errNoDensity
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
