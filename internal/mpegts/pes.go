package mpegts

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/32bitkid/bitreader"

	"github.com/zsiec/tsana/internal/tstime"
)

// ErrShortPES is returned for a unit start too short to hold a PES header.
var ErrShortPES = errors.New("mpegts: PES header truncated")

// isPESPayload checks for the PES start code prefix (0x000001).
func isPESPayload(data []byte) bool {
	return len(data) >= 3 && data[0] == 0x00 && data[1] == 0x00 && data[2] == 0x01
}

// hasOptionalHeader reports whether a stream_id carries the optional PES
// header. Program stream map, padding, private stream 2, ECM, EMM,
// directory, DSM-CC and H.222.1 type E do not.
func hasOptionalHeader(sid uint8) bool {
	switch sid {
	case 0xBC, 0xBE, 0xBF, 0xF0, 0xF1, 0xF2, 0xF8, 0xFF:
		return false
	}
	return true
}

// parsePESHeader decodes the PES header at the start of payload into hdr
// and opt and returns the offset of the first ES byte.
func parsePESHeader(payload []byte, hdr *PESHeader, opt *PESOptionalHeader) (int, error) {
	if len(payload) < 6 {
		return 0, ErrShortPES
	}
	if !isPESPayload(payload) {
		return 0, fmt.Errorf("mpegts: invalid PES start code %02X%02X%02X", payload[0], payload[1], payload[2])
	}
	*hdr = PESHeader{
		StreamID:     payload[3],
		PacketLength: uint16(payload[4])<<8 | uint16(payload[5]),
	}
	if !hasOptionalHeader(hdr.StreamID) {
		return 6, nil
	}
	if len(payload) < 9 {
		return 0, ErrShortPES
	}
	end := 9 + int(payload[8])
	if end > len(payload) {
		return 0, fmt.Errorf("%w: header_data_length %d in %d bytes", ErrShortPES, payload[8], len(payload))
	}

	*opt = PESOptionalHeader{}
	b := newPESBits(payload[6:end])
	if b.u(2) != 0x2 {
		return 0, fmt.Errorf("mpegts: PES optional header marker missing")
	}
	opt.ScramblingControl = uint8(b.u(2))
	opt.Priority = b.flag()
	opt.DataAlignment = b.flag()
	opt.Copyright = b.flag()
	opt.Original = b.flag()
	opt.PTSDTSIndicator = uint8(b.u(2))
	opt.ESCRFlag = b.flag()
	opt.ESRateFlag = b.flag()
	opt.DSMTrickModeFlag = b.flag()
	opt.AdditionalCopyFlag = b.flag()
	opt.CRCFlag = b.flag()
	opt.ExtensionFlag = b.flag()
	opt.HeaderDataLength = uint8(b.u(8))

	switch opt.PTSDTSIndicator {
	case 2:
		opt.PTS = &ClockReference{Base: b.timestamp()}
	case 3:
		opt.PTS = &ClockReference{Base: b.timestamp()}
		opt.DTS = &ClockReference{Base: b.timestamp()}
	}
	if opt.ESCRFlag {
		b.u(2)
		hi := b.u(3)
		b.u(1)
		mid := b.u(15)
		b.u(1)
		lo := b.u(15)
		b.u(1)
		ext := b.u(9)
		b.u(1)
		opt.ESCR = &ClockReference{Base: int64(hi)<<30 | int64(mid)<<15 | int64(lo), Extension: int64(ext)}
	}
	if opt.ESRateFlag {
		b.u(1)
		opt.ESRate = b.u(22)
		b.u(1)
	}
	if opt.DSMTrickModeFlag {
		opt.TrickMode = uint8(b.u(8))
	}
	if opt.AdditionalCopyFlag {
		b.u(1)
		opt.AdditionalCopyInfo = uint8(b.u(7))
	}
	if opt.CRCFlag {
		opt.PreviousCRC = uint16(b.u(16))
	}
	if opt.ExtensionFlag {
		opt.Extension = b.extension()
	}
	if b.err != nil {
		return 0, fmt.Errorf("mpegts: PES optional header: %w", b.err)
	}
	// Anything left before end is stuffing.
	hdr.OptionalHeader = opt
	return end, nil
}

// pesBits wraps a bit reader and keeps the first error, so a run of field
// reads can be checked once at the end.
type pesBits struct {
	br  bitreader.BitReader
	err error
}

func newPESBits(b []byte) *pesBits {
	return &pesBits{br: bitreader.NewReader(bytes.NewReader(b))}
}

func (b *pesBits) u(n uint) uint32 {
	if b.err != nil {
		return 0
	}
	v, err := b.br.Read32(n)
	if err != nil {
		b.err = err
		return 0
	}
	return v
}

func (b *pesBits) flag() bool {
	return b.u(1) == 1
}

func (b *pesBits) bytes(n int) []byte {
	if b.err != nil {
		return nil
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(b.br, out); err != nil {
		b.err = err
		return nil
	}
	return out
}

func (b *pesBits) skip(n int) {
	if b.err != nil || n == 0 {
		return
	}
	if _, err := io.CopyN(io.Discard, b.br, int64(n)); err != nil {
		b.err = err
	}
}

// timestamp reads a 40-bit PTS/DTS field: a 4-bit prefix and 33 value
// bits split 3/15/15 by marker bits.
func (b *pesBits) timestamp() int64 {
	b.u(4)
	hi := b.u(3)
	b.u(1)
	mid := b.u(15)
	b.u(1)
	lo := b.u(15)
	b.u(1)
	return int64(hi)<<30 | int64(mid)<<15 | int64(lo)
}

func (b *pesBits) extension() *PESExtension {
	ext := &PESExtension{}
	privateFlag := b.flag()
	packFlag := b.flag()
	seqFlag := b.flag()
	pstdFlag := b.flag()
	b.u(3)
	ext2Flag := b.flag()

	if privateFlag {
		ext.PrivateData = b.bytes(16)
	}
	if packFlag {
		ext.PackHeaderLength = uint8(b.u(8))
		b.skip(int(ext.PackHeaderLength))
	}
	if seqFlag {
		b.u(1)
		ext.SequenceCounter = uint8(b.u(7))
		b.u(1)
		ext.MPEG1 = b.flag()
		ext.OriginalStuffLength = uint8(b.u(6))
	}
	if pstdFlag {
		b.u(2)
		ext.PSTDBufferScale = b.flag()
		ext.PSTDBufferSize = uint16(b.u(13))
	}
	if ext2Flag {
		b.u(1)
		ext.Extension2Length = uint8(b.u(7))
		b.skip(int(ext.Extension2Length))
	}
	return ext
}

// parsePES handles the PES layer of an elementary stream packet: header
// decode on unit start, PTS/DTS arithmetic and ES data publication.
func (s *Session) parsePES(pid *PID) {
	res := &s.res
	if pid.Kind != KindES || len(res.Payload) == 0 {
		return
	}
	elem := s.elemOf(pid)
	if elem == nil || elem.Class&ClassSection != 0 {
		return
	}

	es := res.Payload
	if res.Header.PayloadUnitStartIndicator {
		es = nil
		if res.Header.ScramblingControl == 0 {
			start, err := parsePESHeader(res.Payload, &s.pes, &s.pesOpt)
			if err != nil {
				s.log.Debug("PES header rejected", "pid", pid.PID, "error", err)
			} else {
				res.PES = &s.pes
				elem.Aligned = true
				es = res.Payload[start:]
				if s.features.Timestamp && s.pes.OptionalHeader != nil {
					s.pesTimestamps(elem, s.pes.OptionalHeader)
				}
			}
		}
	}
	if s.features.AlignPES && !elem.Aligned {
		es = nil
	}
	res.ESData = es
}

func (s *Session) pesTimestamps(elem *Elem, opt *PESOptionalHeader) {
	res := &s.res
	var base int64
	if res.HasSTC {
		base = tstime.ToBase(res.STC)
	}
	if opt.PTS != nil {
		pts := opt.PTS.Base
		res.HasPTS, res.PTS = true, pts
		if elem.HasPTS {
			res.PTSDelta = tstime.Diff(pts, elem.PTS, tstime.STCBaseOverflow)
			if res.PTSDelta > ptsRepetitionLimit || res.PTSDelta < -ptsRepetitionLimit {
				res.Errors.PTSError = true
			}
		}
		if res.HasSTC {
			res.PTSMinusSTC = tstime.Diff(pts, base, tstime.STCBaseOverflow)
		}
		elem.PTS, elem.HasPTS = pts, true
	}
	if opt.DTS != nil {
		dts := opt.DTS.Base
		res.HasDTS, res.DTS = true, dts
		if elem.HasDTS {
			res.DTSDelta = tstime.Diff(dts, elem.DTS, tstime.STCBaseOverflow)
		}
		if res.HasSTC {
			res.DTSMinusSTC = tstime.Diff(dts, base, tstime.STCBaseOverflow)
		}
		elem.DTS, elem.HasDTS = dts, true
	}
}

// elemOf finds the elementary stream entry for pid in its program.
func (s *Session) elemOf(pid *PID) *Elem {
	if !pid.HasProgram {
		return nil
	}
	prog, ok := s.Program(pid.Program)
	if !ok {
		return nil
	}
	for e := range s.Elems(prog) {
		if e.PID == pid.PID {
			return e
		}
	}
	return nil
}
