package mpegts

import (
	"bytes"
	"iter"

	"github.com/zsiec/tsana/internal/dvbtext"
	"github.com/zsiec/tsana/internal/scte35"
)

const (
	descTagCA      = 0x09
	descTagService = 0x48

	pidNone = 0x1FFF
)

// sectionBody returns the bytes between the 8-byte long header and the
// CRC_32.
func sectionBody(data []byte) []byte {
	if len(data) < 12 {
		return nil
	}
	return data[8 : len(data)-4]
}

// handlePAT registers programs and their PMT PIDs. Once a complete PAT
// has been taken, later PATs are ignored even if they differ.
func (s *Session) handlePAT(tbl *Table, sec *Section) {
	if s.patLocked {
		return
	}
	if !s.hasTSID {
		s.tsid, s.hasTSID = sec.Extension, true
	}
	body := sectionBody(sec.data)
	for i := 0; i+4 <= len(body); i += 4 {
		number := uint16(body[i])<<8 | uint16(body[i+1])
		pmtPID := uint16(body[i+2]&0x1F)<<8 | uint16(body[i+3])

		if number == 0 {
			s.nitPID, s.hasNIT = pmtPID, true
			if pmtPID != pidNIT {
				s.log.Debug("NIT on unusual PID", "pid", pmtPID)
			}
			continue
		}
		if _, ok := s.progIdx.Find(number); ok {
			continue
		}
		pmt := s.tables.Alloc(Table{TableID: tableIDPMT, Extension: number})
		h := s.programs.Alloc(Program{Number: number, PMTPID: pmtPID, PCRPID: pidNone, pmt: pmt})
		s.progIdx.Insert(number, h)
		s.registerPID(pmtPID, KindPMT, "PMT", 0, number, true)
	}
	if tbl.Complete() {
		s.patLocked = true
		s.log.Info("PAT acquired", "transport_stream_id", s.tsid, "programs", s.progIdx.Len())
	}
}

// handleCAT registers the EMM PIDs named by CA descriptors.
func (s *Session) handleCAT(sec *Section) {
	s.scanCA(sectionBody(sec.data), KindEMM, "EMM", 0, false)
}

// scanCA walks a descriptor loop and registers the PID of every
// CA_descriptor under kind.
func (s *Session) scanCA(loop []byte, kind PIDKind, name string, prog uint16, hasProg bool) {
	for tag, body := range descriptors(loop) {
		if tag != descTagCA || len(body) < 4 {
			continue
		}
		caPID := uint16(body[2]&0x1F)<<8 | uint16(body[3])
		s.registerPID(caPID, kind, name, 0, prog, hasProg)
	}
}

// descriptors iterates (tag, body) pairs of a descriptor loop, stopping
// at the first descriptor that overruns the loop.
func descriptors(loop []byte) iter.Seq2[uint8, []byte] {
	return func(yield func(uint8, []byte) bool) {
		for len(loop) >= 2 {
			tag, n := loop[0], int(loop[1])
			if 2+n > len(loop) {
				return
			}
			if !yield(tag, loop[2:2+n]) {
				return
			}
			loop = loop[2+n:]
		}
	}
}

// handlePMT fills a program from its PMT. The first complete PMT wins;
// later versions are ignored.
func (s *Session) handlePMT(tbl *Table, sec *Section) {
	prog, ok := s.Program(sec.Extension)
	if !ok || prog.Parsed {
		return
	}
	data := sec.data
	if len(data) < 16 {
		return
	}
	end := len(data) - 4
	pcrPID := uint16(data[8]&0x1F)<<8 | uint16(data[9])
	infoLen := int(data[10]&0x0F)<<8 | int(data[11])
	off := 12 + infoLen
	if off > end {
		s.log.Debug("program_info overruns PMT", "program", prog.Number)
		return
	}

	if prog.PCRPID == pidNone && pcrPID != pidNone {
		prog.PCRPID = pcrPID
		s.registerPID(pcrPID, KindPCR, "PCR", ClassPCR, prog.Number, true)
	}
	if prog.Info == nil {
		prog.Info = bytes.Clone(data[12:off])
		s.scanCA(prog.Info, KindECM, "ECM", prog.Number, true)
	}

	for off+5 <= end {
		st := data[off]
		epid := uint16(data[off+1]&0x1F)<<8 | uint16(data[off+2])
		esLen := int(data[off+3]&0x0F)<<8 | int(data[off+4])
		if off+5+esLen > end {
			s.log.Debug("ES_info overruns PMT", "program", prog.Number, "pid", epid)
			break
		}
		info := bytes.Clone(data[off+5 : off+5+esLen])
		off += 5 + esLen

		class, name := ClassifyStreamType(st)
		if epid == pcrPID {
			class |= ClassPCR
		}
		h := s.elems.Alloc(Elem{PID: epid, StreamType: st, Class: class, Info: info})
		prog.elems.PushBack(h)
		s.registerPID(epid, KindES, name, class, prog.Number, true)
		s.scanCA(info, KindECM, "ECM", prog.Number, true)
	}

	if tbl.Complete() {
		prog.Parsed = true
		s.log.Info("PMT acquired", "program", prog.Number, "pcr_pid", prog.PCRPID, "streams", prog.elems.Len())
	}
}

// dropPartialPMT forgets what the sections of a discarded PMT version
// contributed to a program that has not been parsed yet.
func (s *Session) dropPartialPMT(number uint16) {
	prog, ok := s.Program(number)
	if !ok || prog.Parsed {
		return
	}
	for h := range prog.elems.All() {
		s.elems.Free(h)
	}
	prog.elems.Clear()
	prog.Info = nil
	prog.PCRPID = pidNone
}

// handleSDT copies provider and service names from service descriptors
// into the matching programs.
func (s *Session) handleSDT(sec *Section) {
	if s.hasTSID && sec.Extension != s.tsid {
		s.log.Debug("SDT transport_stream_id mismatch", "sdt", sec.Extension, "pat", s.tsid)
	}
	data := sec.data
	if len(data) < 15 {
		return
	}
	end := len(data) - 4
	for off := 11; off+5 <= end; {
		serviceID := uint16(data[off])<<8 | uint16(data[off+1])
		loopLen := int(data[off+3]&0x0F)<<8 | int(data[off+4])
		if off+5+loopLen > end {
			return
		}
		loop := data[off+5 : off+5+loopLen]
		off += 5 + loopLen

		prog, ok := s.Program(serviceID)
		if !ok {
			continue
		}
		for tag, body := range descriptors(loop) {
			if tag != descTagService || len(body) < 2 {
				continue
			}
			prog.ServiceType = body[0]
			pl := int(body[1])
			if 2+pl+1 > len(body) {
				continue
			}
			provider := body[2 : 2+pl]
			nl := int(body[2+pl])
			if 3+pl+nl > len(body) {
				continue
			}
			name := body[3+pl : 3+pl+nl]
			prog.ProviderName = bytes.Clone(provider)
			prog.ServiceName = bytes.Clone(name)
			prog.Provider = dvbtext.Decode(provider)
			prog.Service = dvbtext.Decode(name)
		}
	}
}

// handleSCTE35 decodes a splice_info_section and publishes it as the
// packet's cue.
func (s *Session) handleSCTE35(data []byte) {
	if !s.features.SI {
		return
	}
	cue, err := scte35.DecodeBytes(bytes.Clone(data))
	if err != nil {
		s.log.Debug("SCTE-35 decode failed", "pid", s.cur.PID, "error", err)
		return
	}
	s.res.Cue = cue
}
