// Package report renders session results: one line per packet for the
// tsana output modes, and an end-of-run summary as text or JSON.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/zsiec/tsana/internal/mpegts"
	"github.com/zsiec/tsana/internal/scte35"
	"github.com/zsiec/tsana/internal/tstime"
)

// Mode selects what Line prints.
type Mode string

// Output modes.
const (
	ModePacket Mode = "pkt"
	ModePCR    Mode = "pcr"
	ModePTS    Mode = "pts"
	ModeErrors Mode = "err"
	ModePSI    Mode = "psi"
	ModeRate   Mode = "rate"
	ModeCue    Mode = "cue"
	ModeNone   Mode = "none"
)

var modes = []Mode{ModePacket, ModePCR, ModePTS, ModeErrors, ModePSI, ModeRate, ModeCue, ModeNone}

// ParseMode validates a mode name.
func ParseMode(name string) (Mode, error) {
	for _, m := range modes {
		if string(m) == name {
			return m, nil
		}
	}
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return "", fmt.Errorf("report: unknown mode %q (want one of %s)", name, strings.Join(names, ", "))
}

// Line writes what mode shows of res. Packets with nothing to show for the
// mode produce no output.
func Line(w io.Writer, res *mpegts.Result, mode Mode) error {
	var err error
	switch mode {
	case ModePacket:
		err = packetLine(w, res)
	case ModePCR:
		if res.HasPCR {
			err = pcrLine(w, res)
		}
	case ModePTS:
		if res.HasPTS || res.HasDTS {
			err = ptsLine(w, res)
		}
	case ModeErrors:
		if res.Errors.Any() {
			_, err = fmt.Fprintf(w, "%s %s\n", prefix(res), strings.Join(ErrorNames(&res.Errors), " "))
		}
	case ModePSI:
		for _, ref := range res.Sections {
			if err = sectionLine(w, res, ref); err != nil {
				break
			}
		}
	case ModeRate:
		if res.HasRate {
			_, err = fmt.Fprintf(w, "%s stc=%s rate=%s\n", prefix(res), clock(res.STC), Bitrate(res.Rate))
		}
	case ModeCue:
		if res.Cue != nil {
			err = cueLine(w, res)
		}
	}
	return err
}

func prefix(res *mpegts.Result) string {
	return fmt.Sprintf("%10d %12d pid=0x%04X", res.Count, res.Addr, res.Header.PID)
}

func packetLine(w io.Writer, res *mpegts.Result) error {
	h := &res.Header
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s pusi=%d tei=%d prio=%d tsc=%d afc=%d cc=%2d",
		prefix(res), b01(h.PayloadUnitStartIndicator), b01(h.TransportErrorIndicator),
		b01(h.TransportPriority), h.ScramblingControl, h.AdaptationFieldControl, h.ContinuityCounter)
	if af := res.AF; af != nil {
		fmt.Fprintf(&sb, " af=%d", af.Length)
		if af.DiscontinuityIndicator {
			sb.WriteString(" disc")
		}
		if af.RandomAccessIndicator {
			sb.WriteString(" rai")
		}
		if af.SplicingPointFlag {
			fmt.Fprintf(&sb, " splice=%d", af.SpliceCountdown)
		}
	}
	if res.PES != nil {
		fmt.Fprintf(&sb, " pes=0x%02X", res.PES.StreamID)
	}
	sb.WriteByte('\n')
	_, err := io.WriteString(w, sb.String())
	return err
}

func pcrLine(w io.Writer, res *mpegts.Result) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s pcr=%d (%s)", prefix(res), res.PCR, clock(res.PCR))
	if res.HasSTC {
		fmt.Fprintf(&sb, " stc=%d", res.STC)
	}
	if res.HasMTS {
		fmt.Fprintf(&sb, " mts=%d", res.MTS)
	}
	e := &res.Errors
	for _, f := range []struct {
		set  bool
		name string
	}{
		{e.PCRRepetitionError, "repetition"},
		{e.PCRDiscontinuityError, "discontinuity"},
		{e.PCRAccuracyError, "accuracy"},
	} {
		if f.set {
			sb.WriteString(" !" + f.name)
		}
	}
	sb.WriteByte('\n')
	_, err := io.WriteString(w, sb.String())
	return err
}

func ptsLine(w io.Writer, res *mpegts.Result) error {
	var sb strings.Builder
	sb.WriteString(prefix(res))
	if res.HasPTS {
		fmt.Fprintf(&sb, " pts=%d delta=%d", res.PTS, res.PTSDelta)
		if res.HasSTC {
			fmt.Fprintf(&sb, " pts-stc=%d", res.PTSMinusSTC)
		}
	}
	if res.HasDTS {
		fmt.Fprintf(&sb, " dts=%d delta=%d", res.DTS, res.DTSDelta)
		if res.HasSTC {
			fmt.Fprintf(&sb, " dts-stc=%d", res.DTSMinusSTC)
		}
	}
	if res.Errors.PTSError {
		sb.WriteString(" !pts")
	}
	sb.WriteByte('\n')
	_, err := io.WriteString(w, sb.String())
	return err
}

func sectionLine(w io.Writer, res *mpegts.Result, ref mpegts.SectionRef) error {
	var flags []string
	if ref.Repeat {
		flags = append(flags, "repeat")
	}
	if ref.Complete {
		flags = append(flags, "complete")
	}
	_, err := fmt.Fprintf(w, "%10d %12d pid=0x%04X table=0x%02X ext=0x%04X ver=%d sec=%d/%d %s\n",
		res.Count, res.Addr, ref.PID, ref.TableID, ref.Extension, ref.Version,
		ref.Number, ref.Last, strings.Join(flags, ","))
	return err
}

func cueLine(w io.Writer, res *mpegts.Result) error {
	cue := res.Cue
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s tier=0x%03X pts_adjustment=%d", prefix(res), cue.CommandName(), cue.Tier, cue.PTSAdjustment)
	if at, ok := cue.SpliceTime(); ok {
		fmt.Fprintf(&sb, " at=%d", at)
	}
	if ins, ok := cue.SpliceCommand.(*scte35.SpliceInsert); ok {
		fmt.Fprintf(&sb, " event=%d out=%d", ins.EventID, b01(ins.OutOfNetwork))
		if ins.Cancel {
			sb.WriteString(" cancel")
		}
		if ins.Immediate {
			sb.WriteString(" immediate")
		}
		if bd := ins.BreakDuration; bd != nil {
			fmt.Fprintf(&sb, " duration=%s auto_return=%d", tstime.BaseDuration(int64(bd.Duration)), b01(bd.AutoReturn))
		}
	}
	for _, d := range cue.SpliceDescriptors {
		if seg, ok := d.(*scte35.SegmentationDescriptor); ok {
			fmt.Fprintf(&sb, " segmentation=%q event=%d", seg.Name(), seg.EventID)
		}
	}
	sb.WriteByte('\n')
	_, err := io.WriteString(w, sb.String())
	return err
}

// ErrorNames lists the set priority 1 and 2 errors of e.
func ErrorNames(e *mpegts.Errors) []string {
	var names []string
	add := func(set bool, name string) {
		if set {
			names = append(names, name)
		}
	}
	add(e.TSSyncLoss, "TS_sync_loss")
	add(e.SyncByteError, "Sync_byte_error")
	add(e.PATError != 0, "PAT_error"+causes(e.PATError))
	if e.CCError != 0 {
		names = append(names, fmt.Sprintf("Continuity_count_error(%d)", e.CCError))
	}
	add(e.PMTError != 0, "PMT_error"+causes(e.PMTError))
	if e.PIDError != 0 {
		names = append(names, fmt.Sprintf("PID_error(%d)", e.PIDError))
	}
	add(e.TransportError, "Transport_error")
	if e.CRCError != 0 {
		names = append(names, fmt.Sprintf("CRC_error(%d)", e.CRCError))
	}
	add(e.PCRRepetitionError, "PCR_repetition_error")
	add(e.PCRDiscontinuityError, "PCR_discontinuity_indicator_error")
	add(e.PCRAccuracyError, "PCR_accuracy_error")
	add(e.PTSError, "PTS_error")
	add(e.CATError != 0, "CAT_error"+causes(e.CATError))
	return names
}

func causes(c mpegts.Cause) string {
	var parts []string
	if c&mpegts.CauseInterval != 0 {
		parts = append(parts, "interval")
	}
	if c&mpegts.CauseTableID != 0 {
		parts = append(parts, "table_id")
	}
	if c&mpegts.CauseScrambled != 0 {
		parts = append(parts, "scrambled")
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// Bitrate formats a bit/s value with a decimal unit prefix.
func Bitrate(bps int64) string {
	switch {
	case bps >= 1_000_000:
		return fmt.Sprintf("%.3f Mbit/s", float64(bps)/1e6)
	case bps >= 1_000:
		return fmt.Sprintf("%.3f kbit/s", float64(bps)/1e3)
	}
	return fmt.Sprintf("%d bit/s", bps)
}

// clock formats 27 MHz ticks as a duration.
func clock(ticks int64) string {
	return tstime.Duration(ticks).String()
}

func b01(b bool) int {
	if b {
		return 1
	}
	return 0
}
