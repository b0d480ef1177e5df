package mpegts

// MPEG-2 CRC32 with polynomial 0x04C11DB7, non-reflected.
var crc32Table = func() (t [256]uint32) {
	for i := range t {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}()

func computeCRC32(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = (crc << 8) ^ crc32Table[byte(crc>>24)^b]
	}
	return crc
}

// sectionCRCOK reports whether a section including its trailing CRC_32
// checks out. Running the CRC over the whole section yields zero.
func sectionCRCOK(section []byte) bool {
	return len(section) >= 4 && computeCRC32(section) == 0
}

// needsCRC reports whether a section of this table carries a CRC_32.
// TDT, RST, ST and DIT have none; other syntax-0 sections are private
// except for TOT and SCTE-35.
func needsCRC(tableID uint8, syntax bool) bool {
	switch tableID {
	case 0x70, 0x71, 0x72, 0x7E:
		return false
	case 0x73, tableIDSCTE35:
		return true
	}
	return syntax
}
