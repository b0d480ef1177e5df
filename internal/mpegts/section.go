package mpegts

import (
	"fmt"

	"github.com/zsiec/tsana/internal/tstime"
)

const (
	tableIDPAT    = 0x00
	tableIDCAT    = 0x01
	tableIDPMT    = 0x02
	tableIDSDT    = 0x42
	tableIDSCTE35 = 0xFC

	maxSectionLength = 4093
)

// feedSections runs the reassembler over the current payload. A section
// lives in the PID's buffer from a payload_unit_start boundary until it
// is complete or the next boundary arrives.
func (s *Session) feedSections(pid *PID) error {
	res := &s.res
	payload := res.Payload
	if len(payload) == 0 {
		return nil
	}
	if res.Header.ScramblingControl != 0 {
		switch {
		case pid.PID == pidPAT:
			res.Errors.PATError |= CauseScrambled
		case pid.Kind == KindPMT:
			res.Errors.PMTError |= CauseScrambled
		}
		return nil
	}
	if !pid.hasBuf {
		b, err := s.pool.Alloc(sectionBufSize)
		if err != nil {
			return fmt.Errorf("%w: section buffer for PID 0x%04X: %w", ErrPoolExhausted, pid.PID, err)
		}
		pid.buf, pid.hasBuf = b, true
		pid.bufIdx = 0
	}
	buf := s.pool.Bytes(pid.buf)[:sectionBufSize]

	if !res.Header.PayloadUnitStartIndicator {
		if pid.bufIdx == 0 {
			return nil
		}
		s.appendSection(pid, buf, payload)
		return s.drainSections(pid, buf)
	}

	ptr := int(payload[0])
	rest := payload[1:]
	if ptr > len(rest) {
		s.log.Debug("pointer_field past payload", "pid", pid.PID, "pointer", ptr)
		pid.bufIdx = 0
		return nil
	}
	if pid.bufIdx > 0 {
		s.appendSection(pid, buf, rest[:ptr])
		if err := s.drainSections(pid, buf); err != nil {
			return err
		}
		if pid.bufIdx > 0 {
			s.log.Debug("section truncated by unit start", "pid", pid.PID, "buffered", pid.bufIdx)
		}
	}
	pid.bufIdx = 0
	s.appendSection(pid, buf, rest[ptr:])
	return s.drainSections(pid, buf)
}

func (s *Session) appendSection(pid *PID, buf, data []byte) {
	n := copy(buf[pid.bufIdx:], data)
	if n < len(data) {
		s.log.Debug("section buffer overflow", "pid", pid.PID)
		pid.bufIdx = 0
		return
	}
	pid.bufIdx += n
}

// drainSections hands every complete section in the buffer to the table
// parser and keeps any partial tail.
func (s *Session) drainSections(pid *PID, buf []byte) error {
	for pid.bufIdx > 0 {
		b := buf[:pid.bufIdx]
		if b[0] == 0xFF {
			pid.bufIdx = 0
			return nil
		}
		if len(b) < 3 {
			return nil
		}
		length := int(b[1]&0x0F)<<8 | int(b[2])
		if length > maxSectionLength {
			s.log.Debug("section_length too large", "pid", pid.PID, "length", length)
			pid.bufIdx = 0
			return nil
		}
		total := 3 + length
		if len(b) < total {
			return nil
		}
		err := s.parseTable(pid, b[:total])
		copy(buf, b[total:])
		pid.bufIdx -= total
		if err != nil {
			return err
		}
	}
	return nil
}

// parseTable validates one complete section, files it under its table
// and dispatches new sections to the table handlers.
func (s *Session) parseTable(pid *PID, data []byte) error {
	res := &s.res
	tid := data[0]
	syntax := data[1]&0x80 != 0

	switch {
	case pid.PID == pidPAT && tid != tableIDPAT:
		res.Errors.PATError |= CauseTableID
		s.log.Debug("unexpected table on PAT PID", "table_id", tid)
		return nil
	case pid.PID == pidCAT && tid != tableIDCAT:
		res.Errors.CATError |= CauseTableID
		s.log.Debug("unexpected table on CAT PID", "table_id", tid)
		return nil
	}

	checked := needsCRC(tid, syntax)
	if checked && !sectionCRCOK(data) {
		res.Errors.CRCError++
		s.log.Debug("CRC mismatch", "pid", pid.PID, "table_id", tid)
		return nil
	}

	if !syntax {
		res.Sections = append(res.Sections, SectionRef{PID: pid.PID, TableID: tid, Complete: true})
		if tid == tableIDSCTE35 {
			s.handleSCTE35(data)
		}
		return nil
	}
	if len(data) < 12 {
		s.log.Debug("short section", "pid", pid.PID, "table_id", tid, "len", len(data))
		return nil
	}

	hdr := Section{
		TableID:     tid,
		Syntax:      true,
		Length:      len(data) - 3,
		Extension:   uint16(data[3])<<8 | uint16(data[4]),
		Version:     (data[5] >> 1) & 0x1F,
		CurrentNext: data[5]&0x01 != 0,
		Number:      data[6],
		Last:        data[7],
		CRCChecked:  checked,
	}
	if !hdr.CurrentNext {
		return nil
	}
	if hdr.Number > hdr.Last {
		s.log.Debug("section_number past last", "pid", pid.PID, "table_id", tid, "number", hdr.Number, "last", hdr.Last)
		return nil
	}

	tbl := s.resolveTable(pid, &hdr)
	if tbl == nil {
		return nil
	}
	if !tbl.hasVersion || tbl.Version != hdr.Version || tbl.LastSection != hdr.Last || tbl.Extension != hdr.Extension {
		if tbl.hasVersion {
			s.log.Debug("table version change", "table_id", tid, "from", tbl.Version, "to", hdr.Version)
		}
		s.clearSections(tbl)
		if tid == tableIDPMT {
			s.dropPartialPMT(hdr.Extension)
		}
		tbl.Version, tbl.LastSection, tbl.Extension, tbl.hasVersion = hdr.Version, hdr.Last, hdr.Extension, true
	}

	var sec *Section
	repeat := false
	if h, ok := tbl.sections.Find(hdr.Number); ok {
		sec, _ = s.sections.Get(h)
		sec.Repeats++
		repeat = true
	} else {
		block, err := s.pool.Alloc(len(data))
		if err != nil {
			return fmt.Errorf("%w: section %d of table 0x%02X: %w", ErrPoolExhausted, hdr.Number, tid, err)
		}
		hdr.block = block
		hdr.data = s.pool.Bytes(block)[:len(data)]
		copy(hdr.data, data)
		h := s.sections.Alloc(hdr)
		tbl.sections.Insert(hdr.Number, h)
		sec, _ = s.sections.Get(h)
	}

	s.markSection(pid, tid)
	res.Sections = append(res.Sections, SectionRef{
		PID:       pid.PID,
		TableID:   tid,
		Extension: hdr.Extension,
		Version:   hdr.Version,
		Number:    hdr.Number,
		Last:      hdr.Last,
		Repeat:    repeat,
		Complete:  tbl.Complete(),
	})
	if repeat {
		return nil
	}
	s.dispatch(pid, tbl, sec)
	return nil
}

// resolveTable finds the table a section belongs to: the program's own PMT
// for table_id 0x02, otherwise the session table keyed by table_id.
func (s *Session) resolveTable(pid *PID, hdr *Section) *Table {
	if hdr.TableID == tableIDPMT {
		prog, ok := s.Program(hdr.Extension)
		if !ok || prog.PMTPID != pid.PID {
			s.log.Debug("PMT for unknown program", "pid", pid.PID, "program", hdr.Extension)
			return nil
		}
		t, _ := s.tables.Get(prog.pmt)
		return t
	}
	h, ok := s.otherIdx.Find(hdr.TableID)
	if !ok {
		h = s.tables.Alloc(Table{TableID: hdr.TableID})
		s.otherIdx.Insert(hdr.TableID, h)
	}
	t, _ := s.tables.Get(h)
	return t
}

// clearSections frees every section of t and marks it unversioned.
func (s *Session) clearSections(t *Table) {
	for _, h := range t.sections.All() {
		if sec, ok := s.sections.Get(h); ok {
			if err := s.pool.Free(sec.block.Off); err != nil {
				s.log.Warn("section free failed", "table_id", t.TableID, "error", err)
			}
			sec.data = nil
		}
		s.sections.Free(h)
	}
	t.sections.Clear()
	t.hasVersion = false
}

// markSection records the STC of a PAT or PMT section for the repetition
// interval check.
func (s *Session) markSection(pid *PID, tid uint8) {
	if tid != tableIDPAT && tid != tableIDPMT {
		return
	}
	if !s.res.HasSTC {
		return
	}
	pid.lastSection, pid.hasLastSection = s.res.STC, true
	pid.late = false
}

// checkTableIntervals raises the interval cause of PAT_error and
// PMT_error once per gap longer than 500 ms.
func (s *Session) checkTableIntervals() {
	res := &s.res
	if !res.HasSTC {
		return
	}
	const limit = 500 * tstime.Millisecond
	late := func(p *PID) bool {
		if !p.hasLastSection || p.late {
			return false
		}
		if tstime.Diff(res.STC, p.lastSection, tstime.STCOverflow) > limit {
			p.late = true
			return true
		}
		return false
	}
	if p, ok := s.PID(pidPAT); ok && late(p) {
		res.Errors.PATError |= CauseInterval
	}
	for prog := range s.Programs() {
		if p, ok := s.PID(prog.PMTPID); ok && late(p) {
			res.Errors.PMTError |= CauseInterval
		}
	}
}

func (s *Session) dispatch(pid *PID, tbl *Table, sec *Section) {
	switch sec.TableID {
	case tableIDPAT:
		if pid.PID == pidPAT && s.features.PSI {
			s.handlePAT(tbl, sec)
		}
	case tableIDCAT:
		if pid.PID == pidCAT && s.features.PSI {
			s.handleCAT(sec)
		}
	case tableIDPMT:
		if s.features.PSI {
			s.handlePMT(tbl, sec)
		}
	case tableIDSDT:
		if s.features.SI {
			s.handleSDT(sec)
		}
	}
}
