package analyze

import (
	"encoding/binary"
	"strings"
	"time"
)

// exifDateTimeOriginalTag is the EXIF IFD tag for DateTimeOriginal, stored
// as an ASCII string "YYYY:MM:DD HH:MM:SS".
const exifDateTimeOriginalTag = 0x9003

// ExtractEXIFDateTimeOriginal scans a JPEG's APP1 EXIF segment for the
// DateTimeOriginal tag. No exif library exists anywhere in the reference
// corpus, so this is a narrow, purpose-built reader covering only the one
// tag the timeline needs; it returns (nil, false) for anything that is not
// a well-formed JPEG/EXIF/TIFF structure rather than erroring, since a
// missing or malformed EXIF segment is the common case, not a failure.
func ExtractEXIFDateTimeOriginal(data []byte) (*time.Time, bool) {
	app1 := findEXIFApp1(data)
	if app1 == nil {
		return nil, false
	}
	return parseEXIFDateTimeOriginal(app1)
}

// findEXIFApp1 walks JPEG markers looking for an APP1 segment whose payload
// starts with the "Exif\x00\x00" header, and returns the TIFF payload that
// follows it.
func findEXIFApp1(data []byte) []byte {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil
	}
	pos := 2
	for pos+4 <= len(data) {
		if data[pos] != 0xFF {
			return nil
		}
		marker := data[pos+1]
		if marker == 0xD8 || marker == 0xD9 {
			pos += 2
			continue
		}
		if pos+4 > len(data) {
			return nil
		}
		segLen := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		if segLen < 2 || pos+2+segLen > len(data) {
			return nil
		}
		payload := data[pos+4 : pos+2+segLen]
		if marker == 0xE1 && len(payload) > 6 && string(payload[:6]) == "Exif\x00\x00" {
			return payload[6:]
		}
		if marker == 0xDA {
			return nil // start of scan: no APP1 Exif segment found before image data
		}
		pos += 2 + segLen
	}
	return nil
}

// parseEXIFDateTimeOriginal interprets tiff as a TIFF header + IFD0,
// following the EXIF sub-IFD pointer (tag 0x8769) to find DateTimeOriginal.
func parseEXIFDateTimeOriginal(tiff []byte) (*time.Time, bool) {
	if len(tiff) < 8 {
		return nil, false
	}
	var order binary.ByteOrder
	switch string(tiff[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, false
	}
	ifd0Offset := order.Uint32(tiff[4:8])

	if t, ok := scanIFDForDate(tiff, order, ifd0Offset, exifDateTimeOriginalTag); ok {
		return t, true
	}

	// Tag 0x8769 points at the EXIF sub-IFD, where DateTimeOriginal usually lives.
	if subOffset, ok := scanIFDForOffset(tiff, order, ifd0Offset, 0x8769); ok {
		return scanIFDForDate(tiff, order, subOffset, exifDateTimeOriginalTag)
	}
	return nil, false
}

func scanIFDForOffset(tiff []byte, order binary.ByteOrder, ifdOffset uint32, tag uint16) (uint32, bool) {
	entries, ok := ifdEntries(tiff, order, ifdOffset)
	if !ok {
		return 0, false
	}
	for _, e := range entries {
		if e.tag == tag {
			return e.valueOffset, true
		}
	}
	return 0, false
}

func scanIFDForDate(tiff []byte, order binary.ByteOrder, ifdOffset uint32, tag uint16) (*time.Time, bool) {
	entries, ok := ifdEntries(tiff, order, ifdOffset)
	if !ok {
		return nil, false
	}
	for _, e := range entries {
		if e.tag != tag || e.fieldType != 2 { // type 2 == ASCII
			continue
		}
		start := int(e.valueOffset)
		end := start + int(e.count)
		if start < 0 || end > len(tiff) || end < start {
			continue
		}
		raw := strings.TrimRight(string(tiff[start:end]), "\x00")
		t, err := time.Parse("2006:01:02 15:04:05", raw)
		if err != nil {
			continue
		}
		return &t, true
	}
	return nil, false
}

type ifdEntry struct {
	tag         uint16
	fieldType   uint16
	count       uint32
	valueOffset uint32
}

func ifdEntries(tiff []byte, order binary.ByteOrder, offset uint32) ([]ifdEntry, bool) {
	if int(offset)+2 > len(tiff) {
		return nil, false
	}
	count := int(order.Uint16(tiff[offset : offset+2]))
	pos := int(offset) + 2
	entries := make([]ifdEntry, 0, count)
	for i := 0; i < count; i++ {
		if pos+12 > len(tiff) {
			return nil, false
		}
		entries = append(entries, ifdEntry{
			tag:         order.Uint16(tiff[pos : pos+2]),
			fieldType:   order.Uint16(tiff[pos+2 : pos+4]),
			count:       order.Uint32(tiff[pos+4 : pos+8]),
			valueOffset: order.Uint32(tiff[pos+8 : pos+12]),
		})
		pos += 12
	}
	return entries, true
}
