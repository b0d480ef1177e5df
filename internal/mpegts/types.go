// Package mpegts implements the transport stream parsing engine. A Session
// consumes one 188-byte packet at a time and maintains a live graph of
// PIDs, programs, tables, sections and elementary streams. It reassembles
// PSI/SI sections and PES headers, derives the system time clock from PCR
// samples or out-of-band arrival timestamps, and classifies ETSI TR 101 290
// transport errors for every packet.
package mpegts

import (
	"github.com/zsiec/tsana/internal/buddy"
	"github.com/zsiec/tsana/internal/entity"
	"github.com/zsiec/tsana/internal/scte35"
	"github.com/zsiec/tsana/internal/tstime"
)

// PacketSize is the size of a transport stream packet without any
// timestamp prefix or Reed-Solomon trailer.
const PacketSize = 188

const (
	syncByte = 0x47
	rsSize   = 16

	pidPAT  = 0x0000
	pidCAT  = 0x0001
	pidNIT  = 0x0010
	pidNull = 0x1FFF
)

// Record is one input packet plus its optional sidecar fields. Every
// optional field is nil when the source did not supply it.
type Record struct {
	TS   [PacketSize]byte
	RS   []byte // Reed-Solomon trailer of 204-byte packets
	Addr *int64 // byte offset of the packet in the source
	MTS  *int64 // out-of-band arrival timestamp, 27 MHz ticks mod 2^30
	CTS  *int64 // externally supplied presentation clock
}

// Header contains the parsed 4-byte transport packet header.
type Header struct {
	SyncByte                  uint8
	TransportErrorIndicator   bool
	PayloadUnitStartIndicator bool
	TransportPriority         bool
	PID                       uint16
	ScramblingControl         uint8
	AdaptationFieldControl    uint8
	ContinuityCounter         uint8
}

// HasAdaptationField reports whether adaptation_field_control announces an
// adaptation field.
func (h *Header) HasAdaptationField() bool {
	return h.AdaptationFieldControl&0x2 != 0
}

// HasPayload reports whether adaptation_field_control announces a payload.
func (h *Header) HasPayload() bool {
	return h.AdaptationFieldControl&0x1 != 0
}

// ClockReference holds a 33-bit base and, for PCR/OPCR/ESCR, a 9-bit
// extension.
type ClockReference struct {
	Base      int64
	Extension int64
}

// Ticks returns the reference on the 27 MHz clock.
func (c ClockReference) Ticks() int64 {
	return tstime.FromPCR(uint64(c.Base), uint16(c.Extension))
}

// AdaptationField contains the parsed adaptation field of one packet.
type AdaptationField struct {
	Length                 uint8
	DiscontinuityIndicator bool
	RandomAccessIndicator  bool
	ESPriorityIndicator    bool
	PCRFlag                bool
	OPCRFlag               bool
	SplicingPointFlag      bool
	PrivateDataFlag        bool
	ExtensionFlag          bool

	PCR             ClockReference
	OPCR            ClockReference
	SpliceCountdown int8
	PrivateData     []byte
	Extension       *AdaptationExtension

	// Truncated is set when a declared length runs past the field.
	Truncated bool
}

// AdaptationExtension is the adaptation_field_extension.
type AdaptationExtension struct {
	Length        uint8
	LTWFlag       bool
	PiecewiseFlag bool
	SeamlessFlag  bool
	LTWValid      bool
	LTWOffset     uint16
	PiecewiseRate uint32
	SpliceType    uint8
	DTSNextAU     int64
}

// PESHeader contains the parsed PES packet header.
type PESHeader struct {
	StreamID       uint8
	PacketLength   uint16
	OptionalHeader *PESOptionalHeader
}

// PESOptionalHeader carries the optional PES header fields.
type PESOptionalHeader struct {
	ScramblingControl  uint8
	Priority           bool
	DataAlignment      bool
	Copyright          bool
	Original           bool
	PTSDTSIndicator    uint8
	ESCRFlag           bool
	ESRateFlag         bool
	DSMTrickModeFlag   bool
	AdditionalCopyFlag bool
	CRCFlag            bool
	ExtensionFlag      bool
	HeaderDataLength   uint8

	PTS                *ClockReference
	DTS                *ClockReference
	ESCR               *ClockReference
	ESRate             uint32
	TrickMode          uint8
	AdditionalCopyInfo uint8
	PreviousCRC        uint16
	Extension          *PESExtension
}

// PESExtension is the PES_extension block.
type PESExtension struct {
	PrivateData         []byte
	PackHeaderLength    uint8
	SequenceCounter     uint8
	MPEG1               bool
	OriginalStuffLength uint8
	PSTDBufferScale     bool
	PSTDBufferSize      uint16
	Extension2Length    uint8
}

// Cause records which sub-condition raised a table error.
type Cause uint8

// Table error causes.
const (
	CauseInterval Cause = 1 << iota
	CauseTableID
	CauseScrambled
)

// Errors is the ETSI TR 101 290 error record of one packet.
type Errors struct {
	// Priority 1
	TSSyncLoss    bool
	SyncByteError bool
	PATError      Cause
	CCError       int // lost packets, 0 when continuous
	PMTError      Cause
	PIDError      int // referenced PIDs absent for a whole rate interval

	// Priority 2
	TransportError        bool
	CRCError              int
	PCRRepetitionError    bool
	PCRDiscontinuityError bool
	PCRAccuracyError      bool
	PTSError              bool
	CATError              Cause

	// Priority 3. Present for completeness; populated by callers.
	NITActualError    bool
	NITOtherError     bool
	SIRepetitionError bool
	BufferError       bool
	UnreferencedPID   bool
	SDTActualError    bool
	SDTOtherError     bool
	EITActualError    bool
	EITOtherError     bool
	EITPFError        bool
	RSTError          bool
	TDTError          bool
	EmptyBufferError  bool
	DataDelayError    bool
}

// Any reports whether a priority 1 or 2 error is set.
func (e *Errors) Any() bool {
	return e.TSSyncLoss || e.SyncByteError || e.PATError != 0 || e.CCError != 0 ||
		e.PMTError != 0 || e.PIDError != 0 || e.TransportError || e.CRCError != 0 ||
		e.PCRRepetitionError || e.PCRDiscontinuityError || e.PCRAccuracyError ||
		e.PTSError || e.CATError != 0
}

// Totals counts errors over the life of a session. CCError sums lost
// packets; the others count packets carrying the error.
type Totals struct {
	Packets               int64
	TSSyncLoss            int64
	SyncByteError         int64
	PATError              int64
	CCError               int64
	PMTError              int64
	PIDError              int64
	TransportError        int64
	CRCError              int64
	PCRRepetitionError    int64
	PCRDiscontinuityError int64
	PCRAccuracyError      int64
	PTSError              int64
	CATError              int64
}

func (t *Totals) add(e *Errors) {
	t.Packets++
	t.TSSyncLoss += b2i(e.TSSyncLoss)
	t.SyncByteError += b2i(e.SyncByteError)
	t.PATError += b2i(e.PATError != 0)
	t.CCError += int64(e.CCError)
	t.PMTError += b2i(e.PMTError != 0)
	t.PIDError += int64(e.PIDError)
	t.TransportError += b2i(e.TransportError)
	t.CRCError += int64(e.CRCError)
	t.PCRRepetitionError += b2i(e.PCRRepetitionError)
	t.PCRDiscontinuityError += b2i(e.PCRDiscontinuityError)
	t.PCRAccuracyError += b2i(e.PCRAccuracyError)
	t.PTSError += b2i(e.PTSError)
	t.CATError += b2i(e.CATError != 0)
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// SectionRef describes a section accepted while processing the current
// packet.
type SectionRef struct {
	PID       uint16
	TableID   uint8
	Extension uint16
	Version   uint8
	Number    uint8
	Last      uint8
	Repeat    bool // identical section_number already held
	Complete  bool // table holds 0..last with no gaps
}

// Result is published after every ParseHeader/ParseBody pair. Slices
// point into the current packet until Tidy is called.
type Result struct {
	Addr   int64
	Count  int64
	Header Header
	AF     *AdaptationField
	PES    *PESHeader

	HasPCR bool
	PCR    int64
	HasSTC bool
	STC    int64
	HasMTS bool
	MTS    int64
	HasCTS bool
	CTS    int64

	HasPTS      bool
	PTS         int64
	PTSDelta    int64
	PTSMinusSTC int64
	HasDTS      bool
	DTS         int64
	DTSDelta    int64
	DTSMinusSTC int64

	HasRate bool
	Rate    int64 // bit/s over the last interval

	Sections []SectionRef
	Cue      *scte35.SpliceInfoSection

	Payload []byte
	ESData  []byte

	Errors Errors
}

// PIDKind classifies a PID by its reserved range or by the table that
// registered it.
type PIDKind uint8

// PID kinds.
const (
	KindBad PIDKind = iota
	KindPAT
	KindCAT
	KindTSDT
	KindIPMP
	KindReserved
	KindSI
	KindUser
	KindNull
	KindPMT
	KindPCR
	KindES
	KindECM
	KindEMM
)

var kindNames = [...]string{
	KindBad:      "bad",
	KindPAT:      "PAT",
	KindCAT:      "CAT",
	KindTSDT:     "TSDT",
	KindIPMP:     "IPMP",
	KindReserved: "reserved",
	KindSI:       "SI",
	KindUser:     "user",
	KindNull:     "null",
	KindPMT:      "PMT",
	KindPCR:      "PCR",
	KindES:       "ES",
	KindECM:      "ECM",
	KindEMM:      "EMM",
}

func (k PIDKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// registered reports whether a table has claimed the PID.
func (k PIDKind) registered() bool {
	return k >= KindPMT
}

// StreamClass is a set of elementary stream properties.
type StreamClass uint8

// Stream classes.
const (
	ClassVideo StreamClass = 1 << iota
	ClassAudio
	ClassPrivate
	ClassSection
	ClassPCR
)

// PID is the state of one packet identifier.
type PID struct {
	PID  uint16
	Kind PIDKind
	Name string
	// Class of the elementary stream, or ClassPCR for a PCR-only PID.
	Class StreamClass

	// Program is the program_number of the owning program when HasProgram.
	Program    uint16
	HasProgram bool

	Packets int64
	Rate    int64 // bit/s over the last rate interval

	interval int64
	cc       uint8
	ccValid  bool
	ccDup    bool

	buf    buddy.Block
	hasBuf bool
	bufIdx int

	lastSection    int64
	hasLastSection bool
	late           bool
}

// Program is one decoded service.
type Program struct {
	Number       uint16
	PMTPID       uint16
	PCRPID       uint16
	Info         []byte
	ServiceType  uint8
	ProviderName []byte
	ServiceName  []byte
	Provider     string
	Service      string

	// Parsed is set once a PMT has been accepted; later PMTs are ignored.
	Parsed bool
	// STCSynced is set once two PCR samples are held.
	STCSynced bool
	PCRCount  int

	elems entity.Seq
	pmt   entity.Handle

	pcrA, addrA int64
	pcrB, addrB int64
}

// Elem is one elementary stream of a program.
type Elem struct {
	PID        uint16
	StreamType uint8
	Class      StreamClass
	Info       []byte
	// Aligned is set once a valid PES header has been seen.
	Aligned bool

	HasPTS bool
	PTS    int64
	HasDTS bool
	DTS    int64
}

// Table tracks the sections of one table_id.
type Table struct {
	TableID     uint8
	Extension   uint16
	Version     uint8
	LastSection uint8
	hasVersion  bool
	sections    entity.Index[uint8]
}

// Complete reports whether the table holds sections 0..LastSection with no
// gaps.
func (t *Table) Complete() bool {
	if !t.hasVersion || t.sections.Len() != int(t.LastSection)+1 {
		return false
	}
	want := 0
	for k := range t.sections.Keys() {
		if int(k) != want {
			return false
		}
		want++
	}
	return true
}

// SectionCount returns the number of held sections.
func (t *Table) SectionCount() int {
	return t.sections.Len()
}

// Section is one received section. Data aliases pool memory owned by the
// session and is valid until the section is discarded.
type Section struct {
	TableID     uint8
	Syntax      bool
	Length      int
	Extension   uint16
	Version     uint8
	CurrentNext bool
	Number      uint8
	Last        uint8
	CRCChecked  bool
	Repeats     int

	block buddy.Block
	data  []byte
}

// Data returns the raw section bytes.
func (s *Section) Data() []byte {
	return s.data
}
