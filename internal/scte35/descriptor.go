package scte35

import "fmt"

// cueIdentifier is "CUEI", the identifier of every descriptor this package
// decodes.
const cueIdentifier = 0x43554549

// Splice descriptor tags (SCTE 35 Table 16).
const (
	AvailDescriptorTag        = 0x00
	DTMFDescriptorTag         = 0x01
	SegmentationDescriptorTag = 0x02
	TimeDescriptorTag         = 0x03
)

// SpliceDescriptor is one decoded splice_descriptor.
type SpliceDescriptor interface {
	Tag() uint8
}

// AvailDescriptor carries a provider avail id for splice_insert.
type AvailDescriptor struct {
	ProviderAvailID uint32
}

func (*AvailDescriptor) Tag() uint8 { return AvailDescriptorTag }

// DTMFDescriptor carries the DTMF sequence a legacy splicer would hear.
type DTMFDescriptor struct {
	Preroll uint8 // tenths of a second
	Chars   string
}

func (*DTMFDescriptor) Tag() uint8 { return DTMFDescriptorTag }

// TimeDescriptor carries the sender's TAI time.
type TimeDescriptor struct {
	TAISeconds uint64
	TAINanos   uint32
	UTCOffset  uint16
}

func (*TimeDescriptor) Tag() uint8 { return TimeDescriptorTag }

// SegmentationType is segmentation_type_id.
type SegmentationType uint8

// Segmentation types reported on their own; SegmentationType.String names
// the rest.
const (
	SegContentIdentification SegmentationType = 0x01
	SegProgramStart          SegmentationType = 0x10
	SegProgramEnd            SegmentationType = 0x11
	SegChapterStart          SegmentationType = 0x20
	SegChapterEnd            SegmentationType = 0x21
	SegBreakStart            SegmentationType = 0x22
	SegBreakEnd              SegmentationType = 0x23
	SegProviderAdStart       SegmentationType = 0x30
	SegProviderAdEnd         SegmentationType = 0x31
	SegDistributorAdStart    SegmentationType = 0x32
	SegDistributorAdEnd      SegmentationType = 0x33
	SegProviderPOStart       SegmentationType = 0x34
	SegProviderPOEnd         SegmentationType = 0x35
	SegDistributorPOStart    SegmentationType = 0x36
	SegDistributorPOEnd      SegmentationType = 0x37
	SegUnscheduledEventStart SegmentationType = 0x40
	SegUnscheduledEventEnd   SegmentationType = 0x41
	SegNetworkStart          SegmentationType = 0x50
	SegNetworkEnd            SegmentationType = 0x51
)

// SCTE 35 Table 22.
var segmentationNames = map[SegmentationType]string{
	0x00: "Not Indicated",
	0x01: "Content Identification",
	0x10: "Program Start",
	0x11: "Program End",
	0x12: "Program Early Termination",
	0x13: "Program Breakaway",
	0x14: "Program Resumption",
	0x15: "Program Runover Planned",
	0x16: "Program Runover Unplanned",
	0x17: "Program Overlap Start",
	0x18: "Program Blackout Override",
	0x19: "Program Start - In Progress",
	0x20: "Chapter Start",
	0x21: "Chapter End",
	0x22: "Break Start",
	0x23: "Break End",
	0x24: "Opening Credit Start",
	0x25: "Opening Credit End",
	0x26: "Closing Credit Start",
	0x27: "Closing Credit End",
	0x30: "Provider Advertisement Start",
	0x31: "Provider Advertisement End",
	0x32: "Distributor Advertisement Start",
	0x33: "Distributor Advertisement End",
	0x34: "Provider Placement Opportunity Start",
	0x35: "Provider Placement Opportunity End",
	0x36: "Distributor Placement Opportunity Start",
	0x37: "Distributor Placement Opportunity End",
	0x38: "Provider Overlay Placement Opportunity Start",
	0x39: "Provider Overlay Placement Opportunity End",
	0x3A: "Distributor Overlay Placement Opportunity Start",
	0x3B: "Distributor Overlay Placement Opportunity End",
	0x3C: "Provider Promo Start",
	0x3D: "Provider Promo End",
	0x3E: "Distributor Promo Start",
	0x3F: "Distributor Promo End",
	0x40: "Unscheduled Event Start",
	0x41: "Unscheduled Event End",
	0x42: "Alternate Content Opportunity Start",
	0x43: "Alternate Content Opportunity End",
	0x44: "Provider Ad Block Start",
	0x45: "Provider Ad Block End",
	0x46: "Distributor Ad Block Start",
	0x47: "Distributor Ad Block End",
	0x50: "Network Start",
	0x51: "Network End",
}

func (t SegmentationType) String() string {
	if name, ok := segmentationNames[t]; ok {
		return name
	}
	return "Unknown"
}

// hasSubSegments reports the placement opportunity starts that may carry
// sub_segment_num and sub_segments_expected.
func (t SegmentationType) hasSubSegments() bool {
	switch t {
	case 0x34, 0x36, 0x38, 0x3A:
		return true
	}
	return false
}

// SegmentationDescriptor is segmentation_descriptor (SCTE 35 10.3.3).
type SegmentationDescriptor struct {
	EventID uint32
	Cancel  bool

	ProgramSegmentation   bool
	DeliveryNotRestricted bool
	// Restrictions, valid when DeliveryNotRestricted is false.
	WebDeliveryAllowed bool
	NoRegionalBlackout bool
	ArchiveAllowed     bool
	DeviceRestrictions uint8

	Components []SegmentationComponent
	// Duration in 90 kHz ticks, when signalled.
	Duration *uint64

	UPIDType         uint8
	UPID             []byte
	Type             SegmentationType
	SegmentNum       uint8
	SegmentsExpected uint8

	HasSubSegments      bool
	SubSegmentNum       uint8
	SubSegmentsExpected uint8
}

// SegmentationComponent is one component of a component segmentation.
type SegmentationComponent struct {
	Tag       uint8
	PTSOffset uint64
}

func (*SegmentationDescriptor) Tag() uint8 { return SegmentationDescriptorTag }

// Name returns the segmentation type name.
func (sd *SegmentationDescriptor) Name() string {
	return sd.Type.String()
}

func (sd *SegmentationDescriptor) decode(f *fields) error {
	sd.EventID = uint32(f.u(32))
	sd.Cancel = f.flag()
	f.skip(7) // segmentation_event_id_compliance_indicator, reserved
	if sd.Cancel {
		return f.check()
	}

	sd.ProgramSegmentation = f.flag()
	hasDuration := f.flag()
	sd.DeliveryNotRestricted = f.flag()
	if sd.DeliveryNotRestricted {
		f.skip(5)
	} else {
		sd.WebDeliveryAllowed = f.flag()
		sd.NoRegionalBlackout = f.flag()
		sd.ArchiveAllowed = f.flag()
		sd.DeviceRestrictions = uint8(f.u(2))
	}
	if !sd.ProgramSegmentation {
		for range int(f.u(8)) {
			if f.err != nil {
				break
			}
			c := SegmentationComponent{Tag: uint8(f.u(8))}
			f.skip(7)
			c.PTSOffset = f.u(33)
			sd.Components = append(sd.Components, c)
		}
	}
	if hasDuration {
		d := f.u(40)
		sd.Duration = &d
	}
	sd.UPIDType = uint8(f.u(8))
	sd.UPID = f.bytes(int(f.u(8)))
	sd.Type = SegmentationType(f.u(8))
	sd.SegmentNum = uint8(f.u(8))
	sd.SegmentsExpected = uint8(f.u(8))
	// Older encoders stop before the sub-segment fields.
	if sd.Type.hasSubSegments() && f.left() >= 16 {
		sd.HasSubSegments = true
		sd.SubSegmentNum = uint8(f.u(8))
		sd.SubSegmentsExpected = uint8(f.u(8))
	}
	return f.check()
}

func decodeDTMF(f *fields) *DTMFDescriptor {
	d := &DTMFDescriptor{Preroll: uint8(f.u(8))}
	n := int(f.u(3))
	f.skip(5)
	d.Chars = string(f.bytes(n))
	return d
}

func decodeTime(f *fields) *TimeDescriptor {
	return &TimeDescriptor{
		TAISeconds: f.u(48),
		TAINanos:   uint32(f.u(32)),
		UTCOffset:  uint16(f.u(16)),
	}
}

// decodeDescriptors walks a descriptor loop. Descriptors without the CUEI
// identifier, and CUEI descriptors with unknown tags, are skipped.
func decodeDescriptors(loop []byte) ([]SpliceDescriptor, error) {
	var descs []SpliceDescriptor
	for len(loop) >= 2 {
		tag, n := loop[0], int(loop[1])
		if 2+n > len(loop) {
			return descs, fmt.Errorf("scte35: descriptor 0x%02X overruns loop", tag)
		}
		body := loop[2 : 2+n]
		loop = loop[2+n:]

		f := newFields(body)
		if f.u(32) != cueIdentifier || f.err != nil {
			continue
		}
		var d SpliceDescriptor
		switch tag {
		case AvailDescriptorTag:
			d = &AvailDescriptor{ProviderAvailID: uint32(f.u(32))}
		case DTMFDescriptorTag:
			d = decodeDTMF(f)
		case SegmentationDescriptorTag:
			sd := &SegmentationDescriptor{}
			sd.decode(f)
			d = sd
		case TimeDescriptorTag:
			d = decodeTime(f)
		default:
			continue
		}
		if err := f.check(); err != nil {
			return descs, fmt.Errorf("scte35: descriptor 0x%02X: %w", tag, err)
		}
		descs = append(descs, d)
	}
	return descs, nil
}
