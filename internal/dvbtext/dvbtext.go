// Package dvbtext decodes DVB SI strings (ETSI EN 300 468 Annex A) such as
// the provider and service names of the SDT.
package dvbtext

import (
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

// iso8859 maps the ISO/IEC 8859 part number to its decoder. Part 11 is
// served by the Windows-874 superset; part 12 was never published.
var iso8859 = map[int]encoding.Encoding{
	1:  charmap.ISO8859_1,
	2:  charmap.ISO8859_2,
	3:  charmap.ISO8859_3,
	4:  charmap.ISO8859_4,
	5:  charmap.ISO8859_5,
	6:  charmap.ISO8859_6,
	7:  charmap.ISO8859_7,
	8:  charmap.ISO8859_8,
	9:  charmap.ISO8859_9,
	10: charmap.ISO8859_10,
	11: charmap.Windows874,
	13: charmap.ISO8859_13,
	14: charmap.ISO8859_14,
	15: charmap.ISO8859_15,
	16: charmap.ISO8859_16,
}

// Decode converts a DVB string to UTF-8. The optional leading selector
// bytes choose the character table; without one the default table is
// approximated by ISO 8859-1. Emphasis and other control codes are dropped
// and the CR/LF control code becomes a newline.
func Decode(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	enc, text, wide := selectTable(b)
	if enc == nil {
		return clean(string(text), wide)
	}
	out, err := enc.NewDecoder().Bytes(text)
	if err != nil {
		return clean(strings.ToValidUTF8(string(text), "�"), wide)
	}
	return clean(string(out), wide)
}

// selectTable strips the selector bytes. A nil encoding means the text is
// already UTF-8. wide is set for two-byte tables, whose control codes sit
// at U+E080..U+E09F.
func selectTable(b []byte) (enc encoding.Encoding, text []byte, wide bool) {
	switch first := b[0]; {
	case first >= 0x20:
		return charmap.ISO8859_1, b, false
	case first >= 0x01 && first <= 0x0B:
		if e, ok := iso8859[int(first)+4]; ok {
			return e, b[1:], false
		}
		return charmap.ISO8859_1, b[1:], false
	case first == 0x10:
		if len(b) < 3 {
			return charmap.ISO8859_1, nil, false
		}
		part := int(b[1])<<8 | int(b[2])
		if e, ok := iso8859[part]; ok {
			return e, b[3:], false
		}
		return charmap.ISO8859_1, b[3:], false
	case first == 0x11:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), b[1:], true
	case first == 0x12:
		return korean.EUCKR, b[1:], true
	case first == 0x13:
		return simplifiedchinese.GBK, b[1:], true
	case first == 0x14:
		return traditionalchinese.Big5, b[1:], true
	case first == 0x15:
		return nil, b[1:], false
	case first == 0x1F:
		// encoding_type_id follows; the tables it names are not supported.
		if len(b) < 2 {
			return nil, nil, false
		}
		return charmap.ISO8859_1, b[2:], false
	default:
		return charmap.ISO8859_1, b[1:], false
	}
}

func clean(s string, wide bool) string {
	lo, hi := rune(0x80), rune(0x9F)
	if wide {
		lo, hi = 0xE080, 0xE09F
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case r == lo+0x0A:
			sb.WriteByte('\n')
		case r >= lo && r <= hi, r == 0:
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
