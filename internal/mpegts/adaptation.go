package mpegts

// parseAdaptationField decodes the adaptation field starting at buf[0]
// (the adaptation_field_length byte). Fields are read in the order the
// format mandates; bytes past the parsed fields are skipped by length.
func parseAdaptationField(buf []byte, af *AdaptationField) {
	*af = AdaptationField{Length: buf[0]}
	n := int(af.Length)
	if n == 0 {
		return
	}
	if 1+n > len(buf) {
		af.Truncated = true
		return
	}
	b := buf[1 : 1+n]

	flags := b[0]
	af.DiscontinuityIndicator = flags&0x80 != 0
	af.RandomAccessIndicator = flags&0x40 != 0
	af.ESPriorityIndicator = flags&0x20 != 0
	af.PCRFlag = flags&0x10 != 0
	af.OPCRFlag = flags&0x08 != 0
	af.SplicingPointFlag = flags&0x04 != 0
	af.PrivateDataFlag = flags&0x02 != 0
	af.ExtensionFlag = flags&0x01 != 0

	off := 1
	if af.PCRFlag {
		if off+6 > n {
			af.Truncated = true
			return
		}
		af.PCR = parsePCR(b[off : off+6])
		off += 6
	}
	if af.OPCRFlag {
		if off+6 > n {
			af.Truncated = true
			return
		}
		af.OPCR = parsePCR(b[off : off+6])
		off += 6
	}
	if af.SplicingPointFlag {
		if off+1 > n {
			af.Truncated = true
			return
		}
		af.SpliceCountdown = int8(b[off])
		off++
	}
	if af.PrivateDataFlag {
		if off+1 > n {
			af.Truncated = true
			return
		}
		l := int(b[off])
		off++
		if off+l > n {
			af.Truncated = true
			return
		}
		af.PrivateData = b[off : off+l]
		off += l
	}
	if af.ExtensionFlag {
		if off+1 > n {
			af.Truncated = true
			return
		}
		l := int(b[off])
		if off+1+l > n {
			af.Truncated = true
			return
		}
		af.Extension = parseAFExtension(b[off+1:off+1+l], uint8(l))
	}
}

// parsePCR decodes a 6-byte program_clock_reference field.
func parsePCR(b []byte) ClockReference {
	base := int64(b[0])<<25 | int64(b[1])<<17 | int64(b[2])<<9 | int64(b[3])<<1 | int64(b[4]>>7)
	ext := int64(b[4]&0x01)<<8 | int64(b[5])
	return ClockReference{Base: base, Extension: ext}
}

func parseAFExtension(b []byte, length uint8) *AdaptationExtension {
	ext := &AdaptationExtension{Length: length}
	if len(b) == 0 {
		return ext
	}
	ext.LTWFlag = b[0]&0x80 != 0
	ext.PiecewiseFlag = b[0]&0x40 != 0
	ext.SeamlessFlag = b[0]&0x20 != 0
	off := 1
	if ext.LTWFlag && off+2 <= len(b) {
		ext.LTWValid = b[off]&0x80 != 0
		ext.LTWOffset = uint16(b[off]&0x7F)<<8 | uint16(b[off+1])
		off += 2
	}
	if ext.PiecewiseFlag && off+3 <= len(b) {
		ext.PiecewiseRate = uint32(b[off]&0x3F)<<16 | uint32(b[off+1])<<8 | uint32(b[off+2])
		off += 3
	}
	if ext.SeamlessFlag && off+5 <= len(b) {
		ext.SpliceType = b[off] >> 4
		ext.DTSNextAU = parseTimestamp(b[off : off+5])
	}
	return ext
}

// parseTimestamp extracts a 33-bit value from the 5-byte marker-bit
// layout shared by PTS, DTS and DTS_next_AU.
func parseTimestamp(bs []byte) int64 {
	return int64(bs[0]>>1&0x07)<<30 |
		int64(bs[1])<<22 |
		int64(bs[2]>>1&0x7F)<<15 |
		int64(bs[3])<<7 |
		int64(bs[4]>>1&0x7F)
}
