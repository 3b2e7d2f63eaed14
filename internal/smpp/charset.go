// Package smpp reconstructs SMPP-level message content: multi-part fragment
// chains and data-coding aware text decoding.
package smpp

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// SMPP data_coding values the decoder distinguishes. Anything else falls
// back to UTF-8.
const (
	CodingSMSCDefault = 0x00
	CodingIA5ASCII    = 0x01
	CodingLatin1      = 0x03
	CodingUCS2        = 0x08
)

var (
	latin1Decoder  = charmap.ISO8859_1.NewDecoder()
	utf16beDecoder = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
)

// DecodeText resolves the data coding to a charset and decodes the raw
// message bytes with replacement-on-invalid semantics. It never fails:
// undecodable input yields replacement runes. A nil data coding decodes as
// UTF-8; the caller keeps the identifier itself null in the stored record.
func DecodeText(dataCoding *int, raw []byte) string {
	if dataCoding == nil {
		return decodeUTF8(raw)
	}
	switch *dataCoding {
	case CodingSMSCDefault, CodingIA5ASCII:
		return decodeASCII(raw)
	case CodingLatin1:
		return decodeLatin1(raw)
	case CodingUCS2:
		return decodeUTF16BE(raw)
	default:
		return decodeUTF8(raw)
	}
}

func decodeASCII(raw []byte) string {
	out := make([]rune, len(raw))
	for i, b := range raw {
		if b > 0x7F {
			out[i] = utf8.RuneError
		} else {
			out[i] = rune(b)
		}
	}
	return string(out)
}

func decodeLatin1(raw []byte) string {
	// Every byte maps to a code point, so this cannot fail.
	s, _ := latin1Decoder.Bytes(raw)
	return string(s)
}

func decodeUTF16BE(raw []byte) string {
	// The x/text decoder substitutes replacement runes for malformed pairs
	// and odd trailing bytes instead of returning an error.
	s, err := utf16beDecoder.Bytes(raw)
	if err != nil {
		return decodeUTF8(raw)
	}
	return string(s)
}

func decodeUTF8(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	var out []rune
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRune(raw[i:])
		if r == utf8.RuneError && size == 1 {
			out = append(out, utf8.RuneError)
			i++
			continue
		}
		out = append(out, r)
		i += size
	}
	return string(out)
}
