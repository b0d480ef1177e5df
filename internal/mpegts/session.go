package mpegts

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/zsiec/tsana/internal/buddy"
	"github.com/zsiec/tsana/internal/entity"
	"github.com/zsiec/tsana/internal/tstime"
)

// ErrPoolExhausted is returned when the session's buddy pool cannot serve
// an allocation. The entity graph is left as it was before the call.
var ErrPoolExhausted = errors.New("mpegts: pool exhausted")

// DefaultRateInterval is the bitrate sampling window on the STC.
const DefaultRateInterval = tstime.Second

// sectionBufSize holds one maximal section plus one packet payload.
const sectionBufSize = 4096 + 184

// Features selects the optional computations a session performs. A
// disabled feature only withholds its outputs.
type Features struct {
	CC        bool // continuity counter tracking
	AF        bool // adaptation field and PCR parsing
	Timestamp bool // STC, PCR checks, PTS/DTS arithmetic
	PSI       bool // PAT, CAT, PMT
	SI        bool // SDT and other SI sections, SCTE-35
	PES       bool // PES header parsing
	AlignPES  bool // withhold ES data until a PES header was seen
	Stats     bool // bitrate sampling and PID_error
}

// DefaultFeatures enables everything except PES alignment.
func DefaultFeatures() Features {
	return Features{CC: true, AF: true, Timestamp: true, PSI: true, SI: true, PES: true, Stats: true}
}

// Command selects a Control operation.
type Command int

// Control commands.
const (
	CmdReset Command = iota
	CmdConfigure
	CmdTidy
)

// Session is one transport stream parsing context. It is not safe for
// concurrent use.
type Session struct {
	log          *slog.Logger
	pool         *buddy.Pool
	features     Features
	rateInterval int64

	pids     entity.Arena[PID]
	programs entity.Arena[Program]
	tables   entity.Arena[Table]
	sections entity.Arena[Section]
	elems    entity.Arena[Elem]

	pidIdx   entity.Index[uint16]
	progIdx  entity.Index[uint16]
	otherIdx entity.Index[uint8]

	state     State
	tsid      uint16
	hasTSID   bool
	nitPID    uint16
	hasNIT    bool
	patLocked bool

	cur    *PID
	res    Result
	af     AdaptationField
	pes    PESHeader
	pesOpt PESOptionalHeader
	totals Totals

	count      int64
	addr       int64
	syncErrors int

	hasMTS  bool
	lastMTS int64
	mtsSTC  int64

	hasRateStart bool
	rateStart    int64
	rateBytes    int64
}

// SessionOptLogger sets the diagnostics logger.
func SessionOptLogger(log *slog.Logger) func(*Session) {
	return func(s *Session) {
		if log != nil {
			s.log = log.With("component", "mpegts")
		}
	}
}

// SessionOptFeatures sets the initial feature set.
func SessionOptFeatures(f Features) func(*Session) {
	return func(s *Session) {
		s.features = f
	}
}

// SessionOptRateInterval sets the bitrate window in 27 MHz ticks.
func SessionOptRateInterval(ticks int64) func(*Session) {
	return func(s *Session) {
		if ticks > 0 {
			s.rateInterval = ticks
		}
	}
}

// NewSession creates a session whose section storage is served from pool.
func NewSession(pool *buddy.Pool, opts ...func(*Session)) *Session {
	s := &Session{
		log:          slog.Default().With("component", "mpegts"),
		pool:         pool,
		features:     DefaultFeatures(),
		rateInterval: DefaultRateInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state = s.initialState()
	return s
}

func (s *Session) initialState() State {
	if !s.features.PSI {
		return StateSteady
	}
	return StateAwaitPAT
}

// Close releases every entity and returns all pool memory.
func (s *Session) Close() {
	for _, h := range s.otherIdx.All() {
		s.freeTable(h)
	}
	s.otherIdx.Clear()

	for _, h := range s.progIdx.All() {
		prog, ok := s.programs.Get(h)
		if !ok {
			continue
		}
		for eh := range prog.elems.All() {
			s.elems.Free(eh)
		}
		prog.elems.Clear()
		s.freeTable(prog.pmt)
		s.programs.Free(h)
	}
	s.progIdx.Clear()

	for _, h := range s.pidIdx.All() {
		if pid, ok := s.pids.Get(h); ok && pid.hasBuf {
			if err := s.pool.Free(pid.buf.Off); err != nil {
				s.log.Warn("section buffer free failed", "pid", pid.PID, "error", err)
			}
		}
		s.pids.Free(h)
	}
	s.pidIdx.Clear()
	s.cur = nil
}

func (s *Session) freeTable(h entity.Handle) {
	t, ok := s.tables.Get(h)
	if !ok {
		return
	}
	s.clearSections(t)
	s.tables.Free(h)
}

// Reset drops the whole entity graph and restarts acquisition. Totals
// survive a reset.
func (s *Session) Reset() {
	s.Close()
	features, rate, log, pool := s.features, s.rateInterval, s.log, s.pool
	totals := s.totals
	*s = Session{
		log:          log,
		pool:         pool,
		features:     features,
		rateInterval: rate,
		totals:       totals,
		pids:         s.pids,
		programs:     s.programs,
		tables:       s.tables,
		sections:     s.sections,
		elems:        s.elems,
	}
	s.state = s.initialState()
	s.log.Info("session reset")
}

// Configure changes the feature set. Disabling PSI forces the steady state.
func (s *Session) Configure(f Features) {
	s.features = f
	if !f.PSI && s.state != StateSteady {
		s.setState(StateSteady)
	}
}

// Features returns the active feature set.
func (s *Session) Features() Features {
	return s.features
}

// Tidy clears result fields that point into the caller's packet buffer.
func (s *Session) Tidy() {
	s.res.Payload = nil
	s.res.ESData = nil
	s.res.AF = nil
	s.af.PrivateData = nil
	s.pesOpt.Extension = nil
}

// Control dispatches one of the control commands. CmdConfigure takes a
// Features argument.
func (s *Session) Control(cmd Command, arg any) error {
	switch cmd {
	case CmdReset:
		s.Reset()
	case CmdConfigure:
		f, ok := arg.(Features)
		if !ok {
			return fmt.Errorf("mpegts: configure wants Features, got %T", arg)
		}
		s.Configure(f)
	case CmdTidy:
		s.Tidy()
	default:
		return fmt.Errorf("mpegts: unknown command %d", cmd)
	}
	return nil
}

// ParseHeader loads one packet and parses its header and adaptation
// field. ParseBody must follow.
func (s *Session) ParseHeader(rec *Record) error {
	s.Tidy()
	s.count++
	sections := s.res.Sections[:0]
	s.res = Result{Count: s.count, Sections: sections}
	res := &s.res
	s.cur = nil

	if rec.Addr != nil {
		s.addr = *rec.Addr
	} else {
		s.addr = (s.count - 1) * PacketSize
	}
	res.Addr = s.addr
	if rec.MTS != nil {
		res.HasMTS, res.MTS = true, tstime.Wrap(*rec.MTS, tstime.MTSOverflow)
	}
	if rec.CTS != nil {
		res.HasCTS, res.CTS = true, *rec.CTS
	}

	buf := rec.TS[:]
	res.Header = parseHeader(buf)
	h := &res.Header
	if h.SyncByte != syncByte {
		res.Errors.SyncByteError = true
		s.syncErrors++
		if s.syncErrors >= 2 {
			res.Errors.TSSyncLoss = true
		}
		return nil
	}
	s.syncErrors = 0
	res.Errors.TransportError = h.TransportErrorIndicator

	off := 4
	if h.HasAdaptationField() {
		afLen := int(buf[4])
		if s.features.AF {
			parseAdaptationField(buf[4:], &s.af)
			res.AF = &s.af
			if s.af.PCRFlag && !s.af.Truncated {
				res.HasPCR, res.PCR = true, s.af.PCR.Ticks()
			}
		}
		off = 5 + afLen
	}
	if h.HasPayload() && off < PacketSize {
		res.Payload = buf[off:]
	}

	pid := s.lookupPID(h.PID)
	pid.Packets++
	pid.interval++
	s.cur = pid
	return nil
}

// ParseBody runs the current state's step for the loaded packet.
func (s *Session) ParseBody() error {
	defer s.totals.add(&s.res.Errors)
	if s.cur == nil || s.res.Header.TransportErrorIndicator {
		return nil
	}
	next, err := s.state.step(s)
	if next != s.state {
		s.setState(next)
	}
	return err
}

// Result returns the outputs of the last packet. The pointer stays valid
// for the life of the session; its contents change on every ParseHeader.
func (s *Session) Result() *Result {
	return &s.res
}

// Totals returns the cumulative error counters.
func (s *Session) Totals() Totals {
	return s.totals
}

// State returns the bootstrap state.
func (s *Session) State() State {
	return s.state
}

// TransportStreamID returns the transport_stream_id learned from the PAT.
func (s *Session) TransportStreamID() (uint16, bool) {
	return s.tsid, s.hasTSID
}

// NetworkPID returns the NIT PID announced by program 0 of the PAT.
func (s *Session) NetworkPID() (uint16, bool) {
	return s.nitPID, s.hasNIT
}

// PID returns the entry for pid, if seen.
func (s *Session) PID(pid uint16) (*PID, bool) {
	h, ok := s.pidIdx.Find(pid)
	if !ok {
		return nil, false
	}
	return s.pids.Get(h)
}

// Elem returns the elementary stream carried on pid, if a PMT lists it.
func (s *Session) Elem(pid uint16) (*Elem, bool) {
	p, ok := s.PID(pid)
	if !ok {
		return nil, false
	}
	e := s.elemOf(p)
	return e, e != nil
}

// PIDs iterates PID entries in ascending PID order.
func (s *Session) PIDs() iter.Seq[*PID] {
	return func(yield func(*PID) bool) {
		for _, h := range s.pidIdx.All() {
			if p, ok := s.pids.Get(h); ok && !yield(p) {
				return
			}
		}
	}
}

// Program returns the program with the given program_number.
func (s *Session) Program(number uint16) (*Program, bool) {
	h, ok := s.progIdx.Find(number)
	if !ok {
		return nil, false
	}
	return s.programs.Get(h)
}

// Programs iterates programs in ascending program_number order.
func (s *Session) Programs() iter.Seq[*Program] {
	return func(yield func(*Program) bool) {
		for _, h := range s.progIdx.All() {
			if p, ok := s.programs.Get(h); ok && !yield(p) {
				return
			}
		}
	}
}

// Elems iterates a program's elementary streams in PMT order.
func (s *Session) Elems(prog *Program) iter.Seq[*Elem] {
	return func(yield func(*Elem) bool) {
		for h := range prog.elems.All() {
			if e, ok := s.elems.Get(h); ok && !yield(e) {
				return
			}
		}
	}
}

// PMT returns a program's embedded PMT table.
func (s *Session) PMT(prog *Program) (*Table, bool) {
	return s.tables.Get(prog.pmt)
}

// Table returns the non-PMT table with the given table_id.
func (s *Session) Table(tableID uint8) (*Table, bool) {
	h, ok := s.otherIdx.Find(tableID)
	if !ok {
		return nil, false
	}
	return s.tables.Get(h)
}

// Tables iterates non-PMT tables in ascending table_id order.
func (s *Session) Tables() iter.Seq[*Table] {
	return func(yield func(*Table) bool) {
		for _, h := range s.otherIdx.All() {
			if t, ok := s.tables.Get(h); ok && !yield(t) {
				return
			}
		}
	}
}

// Sections iterates a table's sections in section_number order.
func (s *Session) Sections(t *Table) iter.Seq[*Section] {
	return func(yield func(*Section) bool) {
		for _, h := range t.sections.All() {
			if sec, ok := s.sections.Get(h); ok && !yield(sec) {
				return
			}
		}
	}
}

// lookupPID returns the entry for pid, creating it from the range table
// on first sight.
func (s *Session) lookupPID(pid uint16) *PID {
	if h, ok := s.pidIdx.Find(pid); ok {
		if p, ok := s.pids.Get(h); ok {
			return p
		}
	}
	kind, name := classifyPID(pid)
	h := s.pids.Alloc(PID{PID: pid, Kind: kind, Name: name})
	s.pidIdx.Insert(pid, h)
	p, _ := s.pids.Get(h)
	return p
}

// registerPID records that a table references pid. A PID already claimed
// by a table or reserved by range keeps its kind, except that a PCR-only
// PID becomes an ES when a PMT lists it as a stream.
func (s *Session) registerPID(pid uint16, kind PIDKind, name string, class StreamClass, prog uint16, hasProg bool) *PID {
	p := s.lookupPID(pid)
	switch {
	case p.Kind == KindUser, p.Kind == KindPCR && kind == KindES:
		p.Kind, p.Name = kind, name
	case p.Kind == KindES && (kind == KindES || kind == KindPCR):
	default:
		return p
	}
	p.Class |= class
	if hasProg && !p.HasProgram {
		p.Program, p.HasProgram = prog, true
	}
	return p
}
