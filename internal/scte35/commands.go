package scte35

// SpliceNull is a heartbeat with no body.
type SpliceNull struct{}

func (*SpliceNull) Type() CommandType { return SpliceNullType }

func (*SpliceNull) decode(*fields) error { return nil }

// BandwidthReservation reserves multiplex bandwidth; it has no body.
type BandwidthReservation struct{}

func (*BandwidthReservation) Type() CommandType { return BandwidthReservationType }

func (*BandwidthReservation) decode(*fields) error { return nil }

// TimeSignal carries a splice time for its descriptors.
type TimeSignal struct {
	SpliceTime SpliceTime
}

func (*TimeSignal) Type() CommandType { return TimeSignalType }

func (cmd *TimeSignal) decode(f *fields) error {
	cmd.SpliceTime = f.spliceTime()
	return f.check()
}

// SpliceInsert signals a splice point.
type SpliceInsert struct {
	EventID       uint32
	Cancel        bool
	OutOfNetwork  bool
	ProgramSplice bool
	Immediate     bool
	// SpliceTime is set in program splice mode unless Immediate.
	SpliceTime      SpliceTime
	Components      []Component
	BreakDuration   *BreakDuration
	UniqueProgramID uint16
	AvailNum        uint8
	AvailsExpected  uint8
}

// Component is one elementary stream of a component splice.
type Component struct {
	Tag        uint8
	SpliceTime SpliceTime
}

func (*SpliceInsert) Type() CommandType { return SpliceInsertType }

func (cmd *SpliceInsert) decode(f *fields) error {
	cmd.EventID = uint32(f.u(32))
	cmd.Cancel = f.flag()
	f.skip(7)
	if cmd.Cancel {
		return f.check()
	}

	cmd.OutOfNetwork = f.flag()
	cmd.ProgramSplice = f.flag()
	hasDuration := f.flag()
	cmd.Immediate = f.flag()
	f.skip(4)

	if cmd.ProgramSplice {
		if !cmd.Immediate {
			cmd.SpliceTime = f.spliceTime()
		}
	} else {
		n := int(f.u(8))
		for range n {
			if f.err != nil {
				break
			}
			c := Component{Tag: uint8(f.u(8))}
			if !cmd.Immediate {
				c.SpliceTime = f.spliceTime()
			}
			cmd.Components = append(cmd.Components, c)
		}
	}
	if hasDuration {
		cmd.BreakDuration = f.breakDuration()
	}
	cmd.UniqueProgramID = uint16(f.u(16))
	cmd.AvailNum = uint8(f.u(8))
	cmd.AvailsExpected = uint8(f.u(8))
	return f.check()
}

// SpliceSchedule announces splice events ahead of time in UTC.
type SpliceSchedule struct {
	Events []ScheduledEvent
}

// ScheduledEvent is one splice_schedule event. Times are GPS seconds since
// 1980-01-06.
type ScheduledEvent struct {
	EventID         uint32
	Cancel          bool
	OutOfNetwork    bool
	ProgramSplice   bool
	UTCSpliceTime   uint32
	Components      []ScheduledComponent
	BreakDuration   *BreakDuration
	UniqueProgramID uint16
	AvailNum        uint8
	AvailsExpected  uint8
}

// ScheduledComponent is one component of a scheduled component splice.
type ScheduledComponent struct {
	Tag           uint8
	UTCSpliceTime uint32
}

func (*SpliceSchedule) Type() CommandType { return SpliceScheduleType }

func (cmd *SpliceSchedule) decode(f *fields) error {
	n := int(f.u(8))
	for range n {
		if f.err != nil {
			break
		}
		ev := ScheduledEvent{EventID: uint32(f.u(32)), Cancel: f.flag()}
		f.skip(7)
		if !ev.Cancel {
			ev.OutOfNetwork = f.flag()
			ev.ProgramSplice = f.flag()
			hasDuration := f.flag()
			f.skip(5)
			if ev.ProgramSplice {
				ev.UTCSpliceTime = uint32(f.u(32))
			} else {
				for range int(f.u(8)) {
					ev.Components = append(ev.Components, ScheduledComponent{
						Tag:           uint8(f.u(8)),
						UTCSpliceTime: uint32(f.u(32)),
					})
				}
			}
			if hasDuration {
				ev.BreakDuration = f.breakDuration()
			}
			ev.UniqueProgramID = uint16(f.u(16))
			ev.AvailNum = uint8(f.u(8))
			ev.AvailsExpected = uint8(f.u(8))
		}
		cmd.Events = append(cmd.Events, ev)
	}
	return f.check()
}

// PrivateCommand carries a registered identifier and opaque bytes.
type PrivateCommand struct {
	Identifier uint32
	Data       []byte
}

func (*PrivateCommand) Type() CommandType { return PrivateCommandType }

func (cmd *PrivateCommand) decode(f *fields) error {
	cmd.Identifier = uint32(f.u(32))
	cmd.Data = f.rest()
	return f.check()
}

// UnknownCommand keeps the bytes of a command type this package does not
// decode, and stands in for the command of an encrypted section.
type UnknownCommand struct {
	CommandType CommandType
	Data        []byte
}

func (cmd *UnknownCommand) Type() CommandType { return cmd.CommandType }

func (cmd *UnknownCommand) decode(f *fields) error {
	cmd.Data = f.rest()
	return f.check()
}
