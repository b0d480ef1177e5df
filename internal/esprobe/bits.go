package esprobe

import (
	"bytes"
	"errors"

	"github.com/32bitkid/bitreader"
)

var errExpGolomb = errors.New("exp-Golomb code longer than 32 bits")

// rbspReader reads syntax elements from a raw byte sequence payload. The
// first error sticks and later reads return zero, so a run of fields can be
// checked once.
type rbspReader struct {
	br  bitreader.BitReader
	err error
}

func newRBSPReader(b []byte) *rbspReader {
	return &rbspReader{br: bitreader.NewReader(bytes.NewReader(b))}
}

// u reads an n-bit unsigned field, n <= 32.
func (r *rbspReader) u(n uint) uint32 {
	if r.err != nil || n == 0 {
		return 0
	}
	v, err := r.br.Read32(n)
	if err != nil {
		r.err = err
		return 0
	}
	return v
}

func (r *rbspReader) flag() bool {
	return r.u(1) == 1
}

func (r *rbspReader) skip(n uint) {
	for n > 32 {
		r.u(32)
		n -= 32
	}
	r.u(n)
}

// ue reads an unsigned exp-Golomb code.
func (r *rbspReader) ue() uint32 {
	var zeros uint
	for !r.flag() {
		if r.err != nil {
			return 0
		}
		zeros++
		if zeros > 31 {
			r.err = errExpGolomb
			return 0
		}
	}
	if zeros == 0 {
		return 0
	}
	return uint32(1)<<zeros - 1 + r.u(zeros)
}

// se reads a signed exp-Golomb code.
func (r *rbspReader) se() int64 {
	v := int64(r.ue())
	if v&1 == 1 {
		return (v + 1) / 2
	}
	return -v / 2
}

// scalingList skips one H.264 scaling_list of size coefficients.
func (r *rbspReader) scalingList(size int) {
	last, next := int64(8), int64(8)
	for range size {
		if r.err != nil {
			return
		}
		if next != 0 {
			next = (last + r.se() + 256) % 256
		}
		if next != 0 {
			last = next
		}
	}
}

// unescapeRBSP removes emulation_prevention_three_byte from a NAL payload.
func unescapeRBSP(b []byte) []byte {
	out := make([]byte, 0, len(b))
	zeros := 0
	for _, v := range b {
		if zeros >= 2 && v == 0x03 {
			zeros = 0
			continue
		}
		if v == 0 {
			zeros++
		} else {
			zeros = 0
		}
		out = append(out, v)
	}
	return out
}

var startCode = []byte{0x00, 0x00, 0x01}

// splitStartCodes returns the units of a start-code delimited byte stream,
// each without its prefix. Annex B NAL units and MPEG-2 video start codes
// share the 00 00 01 prefix; a four byte prefix leaves a zero at the end of
// the previous unit, which is trimmed with any trailing_zero_8bits.
func splitStartCodes(data []byte) [][]byte {
	var units [][]byte
	start := -1
	for i := 0; ; {
		j := bytes.Index(data[i:], startCode)
		if j < 0 {
			break
		}
		if start >= 0 {
			units = appendUnit(units, data[start:i+j])
		}
		i += j + len(startCode)
		start = i
	}
	if start >= 0 {
		units = appendUnit(units, data[start:])
	}
	return units
}

func appendUnit(units [][]byte, u []byte) [][]byte {
	u = bytes.TrimRight(u, "\x00")
	if len(u) == 0 {
		return units
	}
	return append(units, u)
}
