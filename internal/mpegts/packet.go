package mpegts

// parseHeader decodes the 4-byte transport packet header.
func parseHeader(buf []byte) Header {
	return Header{
		SyncByte:                  buf[0],
		TransportErrorIndicator:   buf[1]&0x80 != 0,
		PayloadUnitStartIndicator: buf[1]&0x40 != 0,
		TransportPriority:         buf[1]&0x20 != 0,
		PID:                       uint16(buf[1]&0x1F)<<8 | uint16(buf[2]),
		ScramblingControl:         buf[3] >> 6,
		AdaptationFieldControl:    (buf[3] >> 4) & 0x03,
		ContinuityCounter:         buf[3] & 0x0F,
	}
}

type pidRange struct {
	lo, hi uint16
	kind   PIDKind
	name   string
}

// pidRanges is scanned in order; the first range containing a PID wins and
// the trailing sentinel catches anything else.
var pidRanges = [...]pidRange{
	{0x0000, 0x0000, KindPAT, "PAT"},
	{0x0001, 0x0001, KindCAT, "CAT"},
	{0x0002, 0x0002, KindTSDT, "TSDT"},
	{0x0003, 0x0003, KindIPMP, "IPMP"},
	{0x0004, 0x000F, KindReserved, "reserved"},
	{0x0010, 0x0010, KindSI, "NIT/ST"},
	{0x0011, 0x0011, KindSI, "SDT/BAT/ST"},
	{0x0012, 0x0012, KindSI, "EIT/ST/CIT"},
	{0x0013, 0x0013, KindSI, "RST/ST"},
	{0x0014, 0x0014, KindSI, "TDT/TOT/ST"},
	{0x0015, 0x0015, KindSI, "network sync"},
	{0x0016, 0x0016, KindSI, "RNT"},
	{0x0017, 0x001B, KindReserved, "reserved"},
	{0x001C, 0x001D, KindSI, "inband/measurement"},
	{0x001E, 0x001E, KindSI, "DIT"},
	{0x001F, 0x001F, KindSI, "SIT"},
	{0x0020, 0x1FFE, KindUser, "user"},
	{0x1FFF, 0x1FFF, KindNull, "null"},
	{0x0000, 0xFFFF, KindBad, "bad"},
}

func classifyPID(pid uint16) (PIDKind, string) {
	for i := range pidRanges {
		r := &pidRanges[i]
		if pid >= r.lo && pid <= r.hi {
			return r.kind, r.name
		}
	}
	return KindBad, "bad"
}

type streamInfo struct {
	class StreamClass
	name  string
}

// streamTypes maps stream_type to its class. Unlisted user-private
// values are treated as private data.
var streamTypes = map[uint8]streamInfo{
	0x01: {ClassVideo, "MPEG-1 video"},
	0x02: {ClassVideo, "MPEG-2 video"},
	0x03: {ClassAudio, "MPEG-1 audio"},
	0x04: {ClassAudio, "MPEG-2 audio"},
	0x05: {ClassSection, "private sections"},
	0x06: {ClassPrivate, "PES private data"},
	0x07: {ClassPrivate, "MHEG"},
	0x08: {ClassPrivate, "DSM-CC"},
	0x09: {ClassPrivate, "H.222.1"},
	0x0A: {ClassSection, "DSM-CC type A"},
	0x0B: {ClassSection, "DSM-CC type B"},
	0x0C: {ClassSection, "DSM-CC type C"},
	0x0D: {ClassSection, "DSM-CC type D"},
	0x0E: {ClassPrivate, "auxiliary"},
	0x0F: {ClassAudio, "AAC ADTS"},
	0x10: {ClassVideo, "MPEG-4 video"},
	0x11: {ClassAudio, "AAC LATM"},
	0x12: {ClassPrivate, "SL PES"},
	0x13: {ClassSection, "SL sections"},
	0x14: {ClassSection, "DSM-CC download"},
	0x15: {ClassPrivate, "metadata PES"},
	0x16: {ClassSection, "metadata sections"},
	0x1B: {ClassVideo, "H.264"},
	0x1C: {ClassAudio, "MPEG-4 audio"},
	0x1E: {ClassVideo, "MPEG-2 auxiliary video"},
	0x1F: {ClassVideo, "SVC"},
	0x20: {ClassVideo, "MVC"},
	0x21: {ClassVideo, "JPEG 2000"},
	0x24: {ClassVideo, "HEVC"},
	0x42: {ClassVideo, "AVS"},
	0x80: {ClassVideo, "DigiCipher II video"},
	0x81: {ClassAudio, "AC-3"},
	0x82: {ClassAudio, "DTS"},
	0x83: {ClassAudio, "TrueHD"},
	0x84: {ClassAudio, "E-AC-3"},
	0x86: {ClassSection, "SCTE-35"},
	0x87: {ClassAudio, "E-AC-3"},
	0xEA: {ClassVideo, "VC-1"},
}

// ClassifyStreamType returns the class and a short name of a stream_type.
func ClassifyStreamType(st uint8) (StreamClass, string) {
	if info, ok := streamTypes[st]; ok {
		return info.class, info.name
	}
	if st >= 0x80 {
		return ClassPrivate, "user private"
	}
	return ClassPrivate, "reserved"
}
