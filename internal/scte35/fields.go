package scte35

import (
	"bytes"
	"errors"
	"io"

	"github.com/32bitkid/bitreader"
)

var errTruncated = errors.New("truncated")

// fields reads big-endian bit fields and counts what it consumed. The first
// error sticks and later reads return zero.
type fields struct {
	br   bitreader.BitReader
	size uint // bits
	pos  uint
	err  error
}

func newFields(b []byte) *fields {
	return &fields{br: bitreader.NewReader(bytes.NewReader(b)), size: uint(len(b)) * 8}
}

// u reads an n-bit field, n <= 64.
func (f *fields) u(n uint) uint64 {
	var v uint64
	for n > 0 {
		if f.err != nil {
			return 0
		}
		k := min(n, 32)
		if f.pos+k > f.size {
			f.err = errTruncated
			return 0
		}
		x, err := f.br.Read32(k)
		if err != nil {
			f.err = err
			return 0
		}
		v = v<<k | uint64(x)
		f.pos += k
		n -= k
	}
	return v
}

func (f *fields) flag() bool {
	return f.u(1) == 1
}

func (f *fields) skip(n uint) {
	for n > 0 && f.err == nil {
		k := min(n, 64)
		f.u(k)
		n -= k
	}
}

// left returns the unread bit count.
func (f *fields) left() uint {
	if f.err != nil {
		return 0
	}
	return f.size - f.pos
}

// consumed returns the whole bytes read so far.
func (f *fields) consumed() int {
	return int(f.pos / 8)
}

// bytes reads n whole bytes. The reader must be byte aligned.
func (f *fields) bytes(n int) []byte {
	if f.err != nil {
		return nil
	}
	if f.pos%8 != 0 || n < 0 || f.pos+uint(n)*8 > f.size {
		f.err = errTruncated
		return nil
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(f.br, out); err != nil {
		f.err = err
		return nil
	}
	f.pos += uint(n) * 8
	return out
}

// rest reads every remaining byte.
func (f *fields) rest() []byte {
	return f.bytes(int(f.left() / 8))
}

// spliceTime reads splice_time().
func (f *fields) spliceTime() SpliceTime {
	if !f.flag() {
		f.skip(7)
		return SpliceTime{}
	}
	f.skip(6)
	pts := f.u(33)
	if f.err != nil {
		return SpliceTime{}
	}
	return SpliceTime{PTSTime: &pts}
}

// breakDuration reads break_duration().
func (f *fields) breakDuration() *BreakDuration {
	bd := &BreakDuration{AutoReturn: f.flag()}
	f.skip(6)
	bd.Duration = f.u(33)
	return bd
}

func (f *fields) check() error {
	if f.err != nil {
		return errTruncated
	}
	return nil
}
