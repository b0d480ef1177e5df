package mpegts

import (
	"github.com/zsiec/tsana/internal/tstime"
)

// PCR limits from ETSI TR 101 290.
const (
	pcrRepetitionLimit    = 40 * tstime.Millisecond
	pcrDiscontinuityLimit = 100 * tstime.Millisecond
	pcrAccuracyLimit      = 13 // ±500 ns in 27 MHz ticks
	ptsRepetitionLimit    = 700 * tstime.BaseMillisecond
)

// checkCC tracks the continuity counter of pid. Only packets with payload
// advance the counter; one duplicate packet is allowed.
func (s *Session) checkCC(pid *PID) {
	h := &s.res.Header
	if pid.PID == pidNull || !h.HasPayload() {
		return
	}
	cc := h.ContinuityCounter
	if !pid.ccValid || (s.res.AF != nil && s.res.AF.DiscontinuityIndicator) {
		pid.cc, pid.ccValid, pid.ccDup = cc, true, false
		return
	}
	if cc == pid.cc {
		if pid.ccDup {
			// A second repeat is a 15 packet loss.
			s.res.Errors.CCError = 15
		}
		pid.ccDup = true
		return
	}
	pid.ccDup = false
	expected := (pid.cc + 1) & 0x0F
	if lost := (cc - expected) & 0x0F; lost != 0 {
		s.res.Errors.CCError = int(lost)
	}
	pid.cc = cc
}

// updateClock derives the STC for the current packet and runs the PCR
// checks when the packet carries a PCR.
func (s *Session) updateClock(pid *PID) {
	res := &s.res
	if res.HasMTS {
		if s.hasMTS {
			d := tstime.Diff(res.MTS, s.lastMTS, tstime.MTSOverflow)
			s.mtsSTC = tstime.Add(s.mtsSTC, d, tstime.STCOverflow)
		} else {
			s.mtsSTC, s.hasMTS = res.MTS, true
		}
		s.lastMTS = res.MTS
		res.HasSTC, res.STC = true, s.mtsSTC
	}

	if res.HasPCR {
		for prog := range s.Programs() {
			if prog.Parsed && prog.PCRPID == pid.PID {
				s.samplePCR(prog, res.PCR)
			}
		}
	}
	if res.HasSTC {
		return
	}
	if res.HasPCR && pid.Class&ClassPCR != 0 {
		res.HasSTC, res.STC = true, res.PCR
		return
	}
	if prog := s.clockProgram(pid); prog != nil {
		if stc, ok := tstime.Interpolate(prog.pcrA, prog.addrA, prog.pcrB, prog.addrB, s.addr, tstime.STCOverflow); ok {
			res.HasSTC, res.STC = true, stc
		}
	}
}

// clockProgram picks the program whose PCR times pid: its own program,
// or the first synchronized one for PIDs outside any program.
func (s *Session) clockProgram(pid *PID) *Program {
	if pid.HasProgram {
		if prog, ok := s.Program(pid.Program); ok && prog.STCSynced {
			return prog
		}
		return nil
	}
	for prog := range s.Programs() {
		if prog.STCSynced {
			return prog
		}
	}
	return nil
}

// samplePCR checks a new PCR against the program's previous samples and
// shifts it in.
func (s *Session) samplePCR(prog *Program, pcr int64) {
	res := &s.res
	disc := res.AF != nil && res.AF.DiscontinuityIndicator

	if prog.STCSynced {
		interval := tstime.Diff(pcr, prog.pcrB, tstime.STCOverflow)
		if interval <= 0 || interval > pcrRepetitionLimit {
			res.Errors.PCRRepetitionError = true
		}
		if !disc && (interval <= 0 || interval > pcrDiscontinuityLimit) {
			res.Errors.PCRDiscontinuityError = true
		}
		if !disc {
			if want, ok := tstime.Interpolate(prog.pcrA, prog.addrA, prog.pcrB, prog.addrB, s.addr, tstime.STCOverflow); ok {
				if d := tstime.Diff(pcr, want, tstime.STCOverflow); d > pcrAccuracyLimit || d < -pcrAccuracyLimit {
					res.Errors.PCRAccuracyError = true
				}
			}
		}
	}

	if disc {
		prog.PCRCount = 0
		prog.STCSynced = false
	}
	prog.pcrA, prog.addrA = prog.pcrB, prog.addrB
	prog.pcrB, prog.addrB = pcr, s.addr
	prog.PCRCount++
	if prog.PCRCount >= 2 && prog.addrA != prog.addrB {
		prog.STCSynced = true
	}
}

// updateRate closes a bitrate window once RateInterval of STC has passed.
// ES PIDs that were silent for the whole window count as PID_error.
func (s *Session) updateRate() {
	res := &s.res
	if !res.HasSTC {
		return
	}
	if !s.hasRateStart {
		s.startRateWindow(res.STC)
		return
	}
	s.rateBytes += PacketSize
	span := tstime.Diff(res.STC, s.rateStart, tstime.STCOverflow)
	if span < 0 {
		s.startRateWindow(res.STC)
		return
	}
	if span < s.rateInterval {
		return
	}
	res.HasRate = true
	res.Rate = tstime.MulDiv(s.rateBytes*8, tstime.ClockRate, span)
	for pid := range s.PIDs() {
		pid.Rate = tstime.MulDiv(pid.interval*PacketSize*8, tstime.ClockRate, span)
		if pid.Kind == KindES && pid.interval == 0 {
			res.Errors.PIDError++
		}
		pid.interval = 0
	}
	s.startRateWindow(res.STC)
}

func (s *Session) startRateWindow(stc int64) {
	s.hasRateStart = true
	s.rateStart = stc
	s.rateBytes = 0
	for pid := range s.PIDs() {
		pid.interval = 0
	}
}
