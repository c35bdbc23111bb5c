package feed

import (
	"bytes"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// decodeReader wraps data in a reader that yields UTF-8 for UTF-8
// input (with or without a BOM) and for UTF-16 input (big or little
// endian) that starts with a byte order mark. UTF-16 input without a
// BOM is not recognized; it is passed on as if it were UTF-8 and then
// fails to parse. encoding/xml's Decoder only understands UTF-8
// internally, so this runs ahead of it.
func decodeReader(data []byte) io.Reader {
	switch detectUTF16(data) {
	case utf16LE:
		return transform.NewReader(bytes.NewReader(data), unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
	case utf16BE:
		return transform.NewReader(bytes.NewReader(data), unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder())
	default:
		// UTF-8, with or without a BOM; x/text's BOMOverride strips a
		// leading UTF-8 BOM and passes everything else through.
		return transform.NewReader(bytes.NewReader(data), unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	}
}

type utf16Kind int

const (
	notUTF16 utf16Kind = iota
	utf16LE
	utf16BE
)

func detectUTF16(data []byte) utf16Kind {
	if len(data) >= 2 {
		switch {
		case data[0] == 0xFF && data[1] == 0xFE:
			return utf16LE
		case data[0] == 0xFE && data[1] == 0xFF:
			return utf16BE
		}
	}
	// No BOM: look for a one-byte-per-character "UTF-16" label in the
	// first 128 bytes together with NUL bytes among the first four.
	// A BOM-less UTF-16 document writes its label two bytes per
	// character, so it does not match this check, and the UTF-16
	// decoders above require a BOM in any case.
	head := data[:min(len(data), 128)]
	if bytes.Contains(head, []byte("UTF-16")) || bytes.Contains(head, []byte("utf-16")) {
		if len(data) >= 4 && data[1] == 0x00 && data[3] == 0x00 {
			return utf16LE
		}
		if len(data) >= 4 && data[0] == 0x00 && data[2] == 0x00 {
			return utf16BE
		}
	}
	return notUTF16
}
