package mpegts

// State is the bootstrap stage of a session. It only moves forward.
type State uint8

// Bootstrap states.
const (
	StateAwaitPAT State = iota
	StateAwaitPMT
	StateSteady
)

func (st State) String() string {
	switch st {
	case StateAwaitPAT:
		return "await-pat"
	case StateAwaitPMT:
		return "await-pmt"
	case StateSteady:
		return "steady"
	default:
		return "unknown"
	}
}

// step processes the loaded packet and returns the next state.
func (st State) step(s *Session) (State, error) {
	switch st {
	case StateAwaitPAT:
		return s.stepAwaitPAT()
	case StateAwaitPMT:
		return s.stepAwaitPMT()
	default:
		return s.stepSteady()
	}
}

func (s *Session) setState(next State) {
	s.log.Info("state change", "from", s.state, "to", next, "packet", s.count)
	s.state = next
}

// stepAwaitPAT looks at PID 0 only.
func (s *Session) stepAwaitPAT() (State, error) {
	if s.cur.PID != pidPAT {
		return StateAwaitPAT, nil
	}
	if err := s.feedSections(s.cur); err != nil {
		return StateAwaitPAT, err
	}
	if !s.patLocked {
		return StateAwaitPAT, nil
	}
	if s.progIdx.Len() == 0 {
		return StateSteady, nil
	}
	return s.pmtsState(), nil
}

// stepAwaitPMT feeds PID 0 and every PMT PID.
func (s *Session) stepAwaitPMT() (State, error) {
	if s.cur.PID != pidPAT && s.cur.Kind != KindPMT {
		return StateAwaitPMT, nil
	}
	if err := s.feedSections(s.cur); err != nil {
		return StateAwaitPMT, err
	}
	return s.pmtsState(), nil
}

// pmtsState reports Steady once every program's PMT is complete.
func (s *Session) pmtsState() State {
	for prog := range s.Programs() {
		t, ok := s.tables.Get(prog.pmt)
		if !ok || !t.Complete() {
			return StateAwaitPMT
		}
	}
	return StateSteady
}

func (s *Session) stepSteady() (State, error) {
	pid := s.cur
	if s.features.CC {
		s.checkCC(pid)
	}
	if s.features.Timestamp {
		s.updateClock(pid)
	}
	var err error
	if s.routesSections(pid) {
		err = s.feedSections(pid)
	}
	if s.features.PES {
		s.parsePES(pid)
	}
	if s.features.Timestamp {
		s.checkTableIntervals()
	}
	if s.features.Stats {
		s.updateRate()
	}
	return StateSteady, err
}

// routesSections reports whether pid carries sections the enabled
// features want parsed.
func (s *Session) routesSections(pid *PID) bool {
	switch {
	case pid.Kind == KindPAT, pid.Kind == KindCAT, pid.Kind == KindTSDT, pid.Kind == KindPMT:
		return s.features.PSI
	case pid.PID < 0x20:
		return s.features.SI
	case pid.Kind == KindES && pid.Class&ClassSection != 0:
		return s.features.SI
	}
	return false
}
