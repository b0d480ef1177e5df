package scte35

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

// Splice info sections captured from a production encoder.
var goldenVectors = map[string]string{
	"ProviderAdStart":       "fc302700000000000000fff00506fe000dbba00011020f43554549000000017fbf0000300101ee197d02",
	"DistributorAdStart":    "fc302c00000000000000fff00506fe000dbba00016021443554549000000027fff00002932e000003201031233f909",
	"DistributorAdEnd":      "fc302700000000000000fff00506fe000dbba00011020f43554549000000037fbf000033010352b10a71",
	"ProviderAdEnd":         "fc302700000000000000fff00506fe000dbba00011020f43554549000000047fbf0000310101de2663d0",
	"SpliceInsertOut":       "fc303200000000000000fff01005000000057fbf00fe007b98a0000101010011020f43554549000000057fbf00002201017f1add87",
	"SpliceInsertIn":        "fc302d00000000000000fff00b05000000067f1f00000101010011020f43554549000000067fbf0000230101c2262974",
	"ProgramStart":          "fc302700000000000000fff00506fe000dbba00011020f43554549000000077fbf0000100000ded1e682",
	"ContentID":             "fc302700000000000000fff00506fe000dbba00011020f43554549000000087fbf000001000090ab548a",
	"ChapterStart":          "fc302c00000000000000fff00506fe000dbba00016021443554549000000097fff00019bfcc00000200105bb3c1919",
	"ChapterEnd":            "fc302700000000000000fff00506fe000dbba00011020f435545490000000a7fbf0000210105d921d749",
	"NetworkStart":          "fc302700000000000000fff00506fe000dbba00011020f435545490000000b7fbf0000500000163074e3",
	"ProgramEnd":            "fc302700000000000000fff00506fe000dbba00011020f435545490000000c7fbf0000110000e767f265",
	"UnscheduledEventStart": "fc302700000000000000fff00506fe000dbba00011020f435545490000000d7fbf0000400000d6bf6b98",
	"UnscheduledEventEnd":   "fc302700000000000000fff00506fe000dbba00011020f435545490000000e7fbf00004100003b85a241",
	"ProviderPOStart":       "fc302c00000000000000fff00506fe000dbba000160214435545490000000f7fff00005265c0000034010288c9acbd",
	"ProviderPOEnd":         "fc302700000000000000fff00506fe000dbba00011020f43554549000000107fbf000035010213993e41",
}

func mustHex(t testing.TB, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("hex decode: %v", err)
	}
	return b
}

func decodeHex(t *testing.T, name string) *SpliceInfoSection {
	t.Helper()
	sis, err := DecodeBytes(mustHex(t, goldenVectors[name]))
	if err != nil {
		t.Fatalf("%s: DecodeBytes: %v", name, err)
	}
	return sis
}

func onlySegmentation(t *testing.T, sis *SpliceInfoSection) *SegmentationDescriptor {
	t.Helper()
	if len(sis.SpliceDescriptors) != 1 {
		t.Fatalf("descriptors = %d, want 1", len(sis.SpliceDescriptors))
	}
	sd, ok := sis.SpliceDescriptors[0].(*SegmentationDescriptor)
	if !ok {
		t.Fatalf("descriptor = %T, want *SegmentationDescriptor", sis.SpliceDescriptors[0])
	}
	return sd
}

func TestGoldenTimeSignals(t *testing.T) {
	t.Parallel()
	cases := []struct {
		vector   string
		event    uint32
		typ      SegmentationType
		ticks    uint64 // 0 when no duration is signalled
		num, exp uint8
	}{
		{"ProviderAdStart", 1, SegProviderAdStart, 0, 1, 1},
		{"DistributorAdStart", 2, SegDistributorAdStart, 2700000, 1, 3},
		{"DistributorAdEnd", 3, SegDistributorAdEnd, 0, 1, 3},
		{"ProviderAdEnd", 4, SegProviderAdEnd, 0, 1, 1},
		{"ProgramStart", 7, SegProgramStart, 0, 0, 0},
		{"ContentID", 8, SegContentIdentification, 0, 0, 0},
		{"ChapterStart", 9, SegChapterStart, 27000000, 1, 5},
		{"ChapterEnd", 10, SegChapterEnd, 0, 1, 5},
		{"NetworkStart", 11, SegNetworkStart, 0, 0, 0},
		{"ProgramEnd", 12, SegProgramEnd, 0, 0, 0},
		{"UnscheduledEventStart", 13, SegUnscheduledEventStart, 0, 0, 0},
		{"UnscheduledEventEnd", 14, SegUnscheduledEventEnd, 0, 0, 0},
		{"ProviderPOStart", 15, SegProviderPOStart, 5400000, 1, 2},
		{"ProviderPOEnd", 16, SegProviderPOEnd, 0, 1, 2},
	}
	for _, tc := range cases {
		t.Run(tc.vector, func(t *testing.T) {
			t.Parallel()
			sis := decodeHex(t, tc.vector)
			if sis.SAPType != 3 || sis.Tier != 0xFFF || sis.SpliceCommandLength != 5 {
				t.Errorf("header sap=%d tier=0x%X len=%d", sis.SAPType, sis.Tier, sis.SpliceCommandLength)
			}
			if got := sis.CommandName(); got != "time_signal" {
				t.Errorf("CommandName() = %q", got)
			}
			if at, ok := sis.SpliceTime(); !ok || at != 900000 {
				t.Errorf("SpliceTime() = %d, %v, want 900000", at, ok)
			}

			sd := onlySegmentation(t, sis)
			if sd.EventID != tc.event || sd.Type != tc.typ {
				t.Errorf("event %d type %v, want %d %v", sd.EventID, sd.Type, tc.event, tc.typ)
			}
			if tc.ticks == 0 {
				if sd.Duration != nil {
					t.Errorf("Duration = %d, want none", *sd.Duration)
				}
			} else if sd.Duration == nil || *sd.Duration != tc.ticks {
				t.Errorf("Duration = %v, want %d", sd.Duration, tc.ticks)
			}
			if sd.SegmentNum != tc.num || sd.SegmentsExpected != tc.exp {
				t.Errorf("segment %d of %d, want %d of %d", sd.SegmentNum, sd.SegmentsExpected, tc.num, tc.exp)
			}
			if !sd.ProgramSegmentation || !sd.DeliveryNotRestricted || sd.Cancel {
				t.Errorf("flags = %+v", sd)
			}
			if sd.HasSubSegments {
				t.Error("no sub-segment fields were sent")
			}
		})
	}
}

func TestGoldenSpliceInserts(t *testing.T) {
	t.Parallel()

	out := decodeHex(t, "SpliceInsertOut")
	ins, ok := out.SpliceCommand.(*SpliceInsert)
	if !ok {
		t.Fatalf("command = %T, want *SpliceInsert", out.SpliceCommand)
	}
	if ins.EventID != 5 || !ins.OutOfNetwork || !ins.Immediate || ins.ProgramSplice {
		t.Errorf("out insert = %+v", ins)
	}
	if len(ins.Components) != 0 {
		t.Errorf("components = %d, want 0", len(ins.Components))
	}
	if bd := ins.BreakDuration; bd == nil || !bd.AutoReturn || bd.Duration != 8100000 {
		t.Errorf("BreakDuration = %+v", bd)
	}
	if ins.UniqueProgramID != 1 || ins.AvailNum != 1 || ins.AvailsExpected != 1 {
		t.Errorf("program %d avail %d/%d", ins.UniqueProgramID, ins.AvailNum, ins.AvailsExpected)
	}
	if _, ok := out.SpliceTime(); ok {
		t.Error("immediate insert reported a splice time")
	}
	if got := onlySegmentation(t, out).Name(); got != "Break Start" {
		t.Errorf("Name() = %q", got)
	}

	in := decodeHex(t, "SpliceInsertIn")
	ins = in.SpliceCommand.(*SpliceInsert)
	if ins.EventID != 6 || ins.OutOfNetwork || ins.BreakDuration != nil {
		t.Errorf("in insert = %+v", ins)
	}
	if in.SpliceCommandLength != 11 {
		t.Errorf("SpliceCommandLength = %d, want 11", in.SpliceCommandLength)
	}
}

// section wraps a command and descriptor loop in a splice_info_section with
// sap_type 3, tier 0xFFF and a zero CRC_32.
func section(typ CommandType, cmdLen int, cmd, loop []byte) []byte {
	body := []byte{
		0x00,                         // protocol_version
		0x00, 0x00, 0x00, 0x00, 0x00, // encryption, pts_adjustment
		0x00,                         // cw_index
		0xFF, 0xF0 | byte(cmdLen>>8), byte(cmdLen),
		byte(typ),
	}
	body = append(body, cmd...)
	body = append(body, byte(len(loop)>>8), byte(len(loop)))
	body = append(body, loop...)
	body = append(body, 0, 0, 0, 0)
	return append([]byte{tableID, 0x30 | byte(len(body)>>8), byte(len(body))}, body...)
}

func TestUnsetCommandLength(t *testing.T) {
	t.Parallel()
	cmd := []byte{0xFE, 0x00, 0x0D, 0xBB, 0xA0}
	loop := []byte{AvailDescriptorTag, 8, 'C', 'U', 'E', 'I', 0, 0, 0, 42}
	sis, err := DecodeBytes(section(TimeSignalType, legacyCommandLength, cmd, loop))
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	if sis.SpliceCommandLength != 5 {
		t.Errorf("SpliceCommandLength = %d, want 5", sis.SpliceCommandLength)
	}
	if len(sis.SpliceDescriptors) != 1 {
		t.Fatalf("descriptors = %d, want 1", len(sis.SpliceDescriptors))
	}
	if ad, ok := sis.SpliceDescriptors[0].(*AvailDescriptor); !ok || ad.ProviderAvailID != 42 {
		t.Errorf("descriptor = %#v", sis.SpliceDescriptors[0])
	}
}

func TestPrivateCommand(t *testing.T) {
	t.Parallel()
	sis, err := DecodeBytes(section(PrivateCommandType, 6, []byte{'T', 'S', 'A', 'N', 1, 2}, nil))
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	pc := sis.SpliceCommand.(*PrivateCommand)
	if pc.Identifier != 0x5453414E || !bytes.Equal(pc.Data, []byte{1, 2}) {
		t.Errorf("private command = %+v", pc)
	}
	if got := sis.CommandName(); got != "private_command" {
		t.Errorf("CommandName() = %q", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()
	sis, err := DecodeBytes(section(0x42, 3, []byte{7, 8, 9}, nil))
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	uc := sis.SpliceCommand.(*UnknownCommand)
	if uc.CommandType != 0x42 || !bytes.Equal(uc.Data, []byte{7, 8, 9}) {
		t.Errorf("unknown command = %+v", uc)
	}
	if got := sis.CommandName(); got != "command_0x42" {
		t.Errorf("CommandName() = %q", got)
	}
}

func TestBandwidthReservation(t *testing.T) {
	t.Parallel()
	sis, err := DecodeBytes(section(BandwidthReservationType, 0, nil, nil))
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	if got := sis.CommandName(); got != "bandwidth_reservation" {
		t.Errorf("CommandName() = %q", got)
	}
}

func TestCommandNameBeforeDecode(t *testing.T) {
	t.Parallel()
	if got := (&SpliceInfoSection{}).CommandName(); got != "none" {
		t.Errorf("CommandName() = %q, want none", got)
	}
}

func TestForeignDescriptorsSkipped(t *testing.T) {
	t.Parallel()
	loop := []byte{
		SegmentationDescriptorTag, 4, 'X', 'Y', 'Z', 'W', // other identifier
		0x09, 5, 'C', 'U', 'E', 'I', 0x00,                // unassigned tag
	}
	sis, err := DecodeBytes(section(SpliceNullType, 0, nil, loop))
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	if len(sis.SpliceDescriptors) != 0 {
		t.Errorf("descriptors = %d, want 0", len(sis.SpliceDescriptors))
	}
	if _, ok := sis.SpliceCommand.(*SpliceNull); !ok {
		t.Errorf("command = %T, want *SpliceNull", sis.SpliceCommand)
	}
}

func TestComponentSpliceInsert(t *testing.T) {
	t.Parallel()
	cmd := []byte{
		0x00, 0x00, 0x00, 0x07,             // event 7
		0x7F,                               // not cancelled
		0x8F,                               // out of network, component mode, scheduled
		0x02,                               // component_count
		0x01, 0xFE, 0x00, 0x00, 0x00, 0x10, // tag 1 at pts 16
		0x02, 0x7F,                         // tag 2 with no time
		0x00, 0x09, 0x01, 0x02,
	}
	sis, err := DecodeBytes(section(SpliceInsertType, len(cmd), cmd, nil))
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	ins := sis.SpliceCommand.(*SpliceInsert)
	if len(ins.Components) != 2 {
		t.Fatalf("components = %d, want 2", len(ins.Components))
	}
	if c := ins.Components[0]; c.Tag != 1 || c.SpliceTime.PTSTime == nil || *c.SpliceTime.PTSTime != 16 {
		t.Errorf("component 0 = %+v", c)
	}
	if c := ins.Components[1]; c.Tag != 2 || c.SpliceTime.PTSTime != nil {
		t.Errorf("component 1 = %+v", c)
	}
	if ins.UniqueProgramID != 9 || ins.AvailNum != 1 || ins.AvailsExpected != 2 {
		t.Errorf("program %d avail %d/%d", ins.UniqueProgramID, ins.AvailNum, ins.AvailsExpected)
	}
	if _, ok := sis.SpliceTime(); ok {
		t.Error("component splice reported a program splice time")
	}
}

func TestCancelledSpliceInsert(t *testing.T) {
	t.Parallel()
	cmd := []byte{0x00, 0x00, 0x01, 0x00, 0xFF}
	sis, err := DecodeBytes(section(SpliceInsertType, len(cmd), cmd, nil))
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	ins := sis.SpliceCommand.(*SpliceInsert)
	if !ins.Cancel || ins.EventID != 256 || ins.OutOfNetwork {
		t.Errorf("insert = %+v", ins)
	}
}

func TestSpliceSchedule(t *testing.T) {
	t.Parallel()
	cmd := []byte{
		0x02,
		0x00, 0x00, 0x00, 0x09, 0x7F,
		0xFF,                         // out of network, program, duration
		0x00, 0x00, 0x04, 0xD2,       // utc_splice_time
		0xFE, 0x00, 0x00, 0x27, 0x10, // auto return, 10000 ticks
		0x00, 0x01, 0x01, 0x01,
		0x00, 0x00, 0x00, 0x0A, 0xFF, // event 10 cancelled
	}
	sis, err := DecodeBytes(section(SpliceScheduleType, len(cmd), cmd, nil))
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	sched, ok := sis.SpliceCommand.(*SpliceSchedule)
	if !ok {
		t.Fatalf("command = %T, want *SpliceSchedule", sis.SpliceCommand)
	}
	if len(sched.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(sched.Events))
	}
	ev := sched.Events[0]
	if ev.EventID != 9 || !ev.OutOfNetwork || !ev.ProgramSplice || ev.UTCSpliceTime != 1234 {
		t.Errorf("event 0 = %+v", ev)
	}
	if ev.BreakDuration == nil || !ev.BreakDuration.AutoReturn || ev.BreakDuration.Duration != 10000 {
		t.Errorf("event 0 duration = %+v", ev.BreakDuration)
	}
	if ev.UniqueProgramID != 1 || ev.AvailNum != 1 || ev.AvailsExpected != 1 {
		t.Errorf("event 0 program %d avail %d/%d", ev.UniqueProgramID, ev.AvailNum, ev.AvailsExpected)
	}
	if ev := sched.Events[1]; ev.EventID != 10 || !ev.Cancel {
		t.Errorf("event 1 = %+v", ev)
	}
	if got := sis.CommandName(); got != "splice_schedule" {
		t.Errorf("CommandName() = %q", got)
	}
}

func TestSpliceTimeWraps(t *testing.T) {
	t.Parallel()
	pts := uint64(ptsModulus - 10)
	sis := &SpliceInfoSection{
		PTSAdjustment: 25,
		SpliceCommand: &TimeSignal{SpliceTime: SpliceTime{PTSTime: &pts}},
	}
	if at, ok := sis.SpliceTime(); !ok || at != 15 {
		t.Errorf("SpliceTime() = %d, %v, want 15", at, ok)
	}
}

func TestDTMFAndTimeDescriptors(t *testing.T) {
	t.Parallel()
	loop := []byte{
		DTMFDescriptorTag, 9, 'C', 'U', 'E', 'I',
		0x0A, // preroll
		0x7F, // dtmf_count 3
		'1', '2', '#',
		TimeDescriptorTag, 16, 'C', 'U', 'E', 'I',
		0x00, 0x00, 0x5F, 0x5E, 0x10, 0x00, // TAI_seconds
		0x00, 0x00, 0x01, 0xF4,             // TAI_ns
		0x00, 0x25,                         // UTC_offset
	}
	sis, err := DecodeBytes(section(SpliceNullType, 0, nil, loop))
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	if len(sis.SpliceDescriptors) != 2 {
		t.Fatalf("descriptors = %d, want 2", len(sis.SpliceDescriptors))
	}
	dtmf, ok := sis.SpliceDescriptors[0].(*DTMFDescriptor)
	if !ok || dtmf.Preroll != 10 || dtmf.Chars != "12#" {
		t.Errorf("dtmf = %#v", sis.SpliceDescriptors[0])
	}
	td, ok := sis.SpliceDescriptors[1].(*TimeDescriptor)
	if !ok || td.TAISeconds != 1600000000 || td.TAINanos != 500 || td.UTCOffset != 37 {
		t.Errorf("time = %#v", sis.SpliceDescriptors[1])
	}
	if td.Tag() != TimeDescriptorTag || dtmf.Tag() != DTMFDescriptorTag {
		t.Error("descriptor tags")
	}
}

func TestSegmentationSubSegments(t *testing.T) {
	t.Parallel()
	loop := []byte{
		SegmentationDescriptorTag, 19, 'C', 'U', 'E', 'I',
		0x00, 0x00, 0x00, 0x2A, 0x7F,
		0xBF,                 // program segmentation, delivery not restricted
		0x01, 0x02, 'A', 'B', // UPID type 1, two bytes
		0x34, 0x01, 0x02,     // provider placement opportunity start, 1 of 2
		0x03, 0x04,
	}
	sis, err := DecodeBytes(section(SpliceNullType, 0, nil, loop))
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	sd := onlySegmentation(t, sis)
	if sd.EventID != 42 || sd.Type != SegProviderPOStart {
		t.Errorf("event %d type %v", sd.EventID, sd.Type)
	}
	if sd.UPIDType != 1 || string(sd.UPID) != "AB" {
		t.Errorf("UPID %d %q", sd.UPIDType, sd.UPID)
	}
	if !sd.HasSubSegments || sd.SubSegmentNum != 3 || sd.SubSegmentsExpected != 4 {
		t.Errorf("sub-segments %v %d/%d", sd.HasSubSegments, sd.SubSegmentNum, sd.SubSegmentsExpected)
	}
}

func TestSegmentationRestrictedComponents(t *testing.T) {
	t.Parallel()
	loop := []byte{
		SegmentationDescriptorTag, 27, 'C', 'U', 'E', 'I',
		0x00, 0x00, 0x00, 0x01, 0x7F,
		0x56,                               // component mode, duration, web and archive allowed, devices 2
		0x01,                               // component_count
		0x05, 0xFE, 0x00, 0x00, 0x00, 0x64, // tag 5, offset 100
		0x00, 0x00, 0x01, 0x5F, 0x90,       // duration 90000
		0x00, 0x00,
		0x22, 0x00, 0x00,
	}
	sis, err := DecodeBytes(section(SpliceNullType, 0, nil, loop))
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	sd := onlySegmentation(t, sis)
	if sd.ProgramSegmentation || sd.DeliveryNotRestricted {
		t.Errorf("flags = %+v", sd)
	}
	if !sd.WebDeliveryAllowed || sd.NoRegionalBlackout || !sd.ArchiveAllowed || sd.DeviceRestrictions != 2 {
		t.Errorf("restrictions web=%v regional=%v archive=%v devices=%d",
			sd.WebDeliveryAllowed, sd.NoRegionalBlackout, sd.ArchiveAllowed, sd.DeviceRestrictions)
	}
	if len(sd.Components) != 1 || sd.Components[0].Tag != 5 || sd.Components[0].PTSOffset != 100 {
		t.Errorf("components = %+v", sd.Components)
	}
	if sd.Duration == nil || *sd.Duration != 90000 {
		t.Errorf("Duration = %v", sd.Duration)
	}
	if sd.Name() != "Break Start" {
		t.Errorf("Name() = %q", sd.Name())
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()
	insertOut := mustHex(t, goldenVectors["SpliceInsertOut"])
	cases := map[string][]byte{
		"empty":              nil,
		"wrong table":        append([]byte{0x02}, insertOut[1:]...),
		"section overruns":   insertOut[:20],
		"short section":      {tableID, 0x30, 0x05, 0, 0, 0, 0, 0},
		"command overruns":   section(SpliceInsertType, 40, []byte{0, 0, 0, 1}, nil),
		"truncated insert":   section(SpliceInsertType, 5, []byte{0, 0, 0, 1, 0x7F}, nil),
		"descriptor overrun": section(SpliceNullType, 0, nil, []byte{SegmentationDescriptorTag, 0x20, 'C', 'U'}),
		"short segmentation": section(SpliceNullType, 0, nil, []byte{SegmentationDescriptorTag, 6, 'C', 'U', 'E', 'I', 0, 0}),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := DecodeBytes(data); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestTruncatedCommandIsErrTruncated(t *testing.T) {
	t.Parallel()
	_, err := DecodeBytes(section(TimeSignalType, 2, []byte{0xFE, 0x00}, nil))
	if !errors.Is(err, errTruncated) {
		t.Errorf("err = %v, want errTruncated", err)
	}
}

func TestEncryptedSection(t *testing.T) {
	t.Parallel()
	data := section(TimeSignalType, 5, []byte{0xFE, 0, 0, 0, 1}, nil)
	data[4] = 0x80 // encrypted_packet
	sis, err := DecodeBytes(data)
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	if !sis.EncryptedPacket {
		t.Error("EncryptedPacket not set")
	}
	uc, ok := sis.SpliceCommand.(*UnknownCommand)
	if !ok || uc.CommandType != TimeSignalType {
		t.Errorf("command = %#v", sis.SpliceCommand)
	}
}

func TestSegmentationTypeString(t *testing.T) {
	t.Parallel()
	want := map[SegmentationType]string{
		SegProviderAdStart:    "Provider Advertisement Start",
		SegDistributorAdEnd:   "Distributor Advertisement End",
		SegBreakEnd:           "Break End",
		SegNetworkEnd:         "Network End",
		SegDistributorPOStart: "Distributor Placement Opportunity Start",
		0x3C:                  "Provider Promo Start",
		0xFE:                  "Unknown",
	}
	for typ, name := range want {
		if got := typ.String(); got != name {
			t.Errorf("0x%02X: %q, want %q", uint8(typ), got, name)
		}
	}
}

func FuzzDecodeBytes(f *testing.F) {
	for _, v := range goldenVectors {
		data, _ := hex.DecodeString(v)
		f.Add(data)
	}
	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = DecodeBytes(data)
	})
}

func BenchmarkDecodeBytes(b *testing.B) {
	data := mustHex(b, goldenVectors["SpliceInsertOut"])
	b.ReportAllocs()
	for b.Loop() {
		if _, err := DecodeBytes(data); err != nil {
			b.Fatal(err)
		}
	}
}
