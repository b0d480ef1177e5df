// Package scte35 decodes SCTE-35 splice_info_section payloads carried on
// PIDs of stream_type 0x86. splice_null, splice_schedule, splice_insert,
// time_signal, bandwidth_reservation and private_command are decoded; other
// commands keep their raw bytes. The CRC_32 is checked by the section layer
// before a section reaches DecodeBytes.
package scte35

import "fmt"

const tableID = 0xFC

// headerLen is the fixed part of splice_info_section up to and including
// splice_command_type.
const headerLen = 14

// legacyCommandLength marks a splice_command_length left unset by the sender.
const legacyCommandLength = 0xFFF

// ptsModulus wraps adjusted splice times.
const ptsModulus = 1 << 33

// CommandType is splice_command_type.
type CommandType uint8

// Splice command types (SCTE 35 Table 7).
const (
	SpliceNullType           CommandType = 0x00
	SpliceScheduleType       CommandType = 0x04
	SpliceInsertType         CommandType = 0x05
	TimeSignalType           CommandType = 0x06
	BandwidthReservationType CommandType = 0x07
	PrivateCommandType       CommandType = 0xFF
)

var commandNames = map[CommandType]string{
	SpliceNullType:           "splice_null",
	SpliceScheduleType:       "splice_schedule",
	SpliceInsertType:         "splice_insert",
	TimeSignalType:           "time_signal",
	BandwidthReservationType: "bandwidth_reservation",
	PrivateCommandType:       "private_command",
}

func (t CommandType) String() string {
	if name, ok := commandNames[t]; ok {
		return name
	}
	return fmt.Sprintf("command_0x%02X", uint8(t))
}

// SpliceCommand is one decoded splice command.
type SpliceCommand interface {
	Type() CommandType
	decode(*fields) error
}

// SpliceTime carries an optional PTS time.
type SpliceTime struct {
	PTSTime *uint64
}

// BreakDuration is the length of a break in 90 kHz ticks.
type BreakDuration struct {
	AutoReturn bool
	Duration   uint64
}

// SpliceInfoSection is a decoded splice_info_section.
type SpliceInfoSection struct {
	SAPType             uint8
	ProtocolVersion     uint8
	EncryptedPacket     bool
	EncryptionAlgorithm uint8
	PTSAdjustment       uint64
	CWIndex             uint8
	Tier                uint16
	SpliceCommandLength uint16
	SpliceCommand       SpliceCommand
	SpliceDescriptors   []SpliceDescriptor
}

// CommandName returns the splice_command_type name, or "none" before a
// command is decoded.
func (sis *SpliceInfoSection) CommandName() string {
	if sis.SpliceCommand == nil {
		return "none"
	}
	return sis.SpliceCommand.Type().String()
}

// SpliceTime returns the program splice time with pts_adjustment applied,
// when the command carries one.
func (sis *SpliceInfoSection) SpliceTime() (uint64, bool) {
	var st SpliceTime
	switch cmd := sis.SpliceCommand.(type) {
	case *TimeSignal:
		st = cmd.SpliceTime
	case *SpliceInsert:
		st = cmd.SpliceTime
	}
	if st.PTSTime == nil {
		return 0, false
	}
	return (*st.PTSTime + sis.PTSAdjustment) % ptsModulus, true
}

// DecodeBytes decodes a binary splice_info_section, CRC_32 included. On
// error the returned section holds what was decoded before the fault.
func DecodeBytes(data []byte) (*SpliceInfoSection, error) {
	sis := &SpliceInfoSection{}
	return sis, sis.decode(data)
}

func (sis *SpliceInfoSection) decode(data []byte) error {
	if len(data) < 3 || data[0] != tableID {
		return fmt.Errorf("scte35: not a splice_info_section")
	}
	sectionLen := int(data[1]&0x0F)<<8 | int(data[2])
	if 3+sectionLen > len(data) {
		return fmt.Errorf("scte35: section_length %d exceeds %d bytes", sectionLen, len(data))
	}
	if 3+sectionLen < headerLen+4 {
		return fmt.Errorf("scte35: section_length %d too short", sectionLen)
	}

	f := newFields(data[:headerLen])
	f.skip(10) // table_id, section_syntax_indicator, private_indicator
	sis.SAPType = uint8(f.u(2))
	f.skip(12) // section_length
	sis.ProtocolVersion = uint8(f.u(8))
	sis.EncryptedPacket = f.flag()
	sis.EncryptionAlgorithm = uint8(f.u(6))
	sis.PTSAdjustment = f.u(33)
	sis.CWIndex = uint8(f.u(8))
	sis.Tier = uint16(f.u(12))
	sis.SpliceCommandLength = uint16(f.u(12))
	cmdType := CommandType(f.u(8))
	if err := f.check(); err != nil {
		return fmt.Errorf("scte35: header: %w", err)
	}

	// Without the control word neither the command nor the descriptors
	// can be read.
	if sis.EncryptedPacket {
		sis.SpliceCommand = &UnknownCommand{CommandType: cmdType}
		return nil
	}

	// Command and descriptor loop, up to the CRC_32.
	body := data[headerLen : 3+sectionLen-4]
	cmdLen := int(sis.SpliceCommandLength)
	cmdData := body
	if cmdLen != legacyCommandLength {
		if cmdLen > len(body) {
			return fmt.Errorf("scte35: splice_command_length %d exceeds %d bytes", cmdLen, len(body))
		}
		cmdData = body[:cmdLen]
	}

	cmd := newCommand(cmdType)
	cf := newFields(cmdData)
	if err := cmd.decode(cf); err != nil {
		return fmt.Errorf("scte35: %s: %w", cmdType, err)
	}
	sis.SpliceCommand = cmd
	if cmdLen == legacyCommandLength {
		cmdLen = cf.consumed()
		sis.SpliceCommandLength = uint16(cmdLen)
	}

	loop := body[cmdLen:]
	if len(loop) < 2 {
		return nil
	}
	loopLen := int(loop[0])<<8 | int(loop[1])
	if 2+loopLen > len(loop) {
		return fmt.Errorf("scte35: descriptor_loop_length %d exceeds %d bytes", loopLen, len(loop)-2)
	}
	descs, err := decodeDescriptors(loop[2 : 2+loopLen])
	sis.SpliceDescriptors = descs
	return err
}

func newCommand(t CommandType) SpliceCommand {
	switch t {
	case SpliceNullType:
		return &SpliceNull{}
	case SpliceScheduleType:
		return &SpliceSchedule{}
	case SpliceInsertType:
		return &SpliceInsert{}
	case TimeSignalType:
		return &TimeSignal{}
	case BandwidthReservationType:
		return &BandwidthReservation{}
	case PrivateCommandType:
		return &PrivateCommand{}
	}
	return &UnknownCommand{CommandType: t}
}
