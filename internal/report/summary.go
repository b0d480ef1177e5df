package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/zsiec/tsana/internal/esprobe"
	"github.com/zsiec/tsana/internal/mpegts"
)

// Report is the end-of-run view of a session.
type Report struct {
	TransportStreamID *uint16         `json:"transportStreamId,omitempty"`
	NetworkPID        *uint16         `json:"networkPid,omitempty"`
	State             string          `json:"state"`
	Programs          []ProgramReport `json:"programs"`
	PIDs              []PIDReport     `json:"pids"`
	Tables            []TableReport   `json:"tables"`
	Errors            []ErrorCount    `json:"errors"`
	Packets           int64           `json:"packets"`
}

// ProgramReport describes one program and its elementary streams.
type ProgramReport struct {
	Number      uint16       `json:"number"`
	PMTPID      uint16       `json:"pmtPid"`
	PCRPID      uint16       `json:"pcrPid"`
	Provider    string       `json:"provider,omitempty"`
	Service     string       `json:"service,omitempty"`
	ServiceType uint8        `json:"serviceType,omitempty"`
	Parsed      bool         `json:"parsed"`
	STCSynced   bool         `json:"stcSynced"`
	Elems       []ElemReport `json:"elems"`
}

// ElemReport describes one elementary stream.
type ElemReport struct {
	PID        uint16 `json:"pid"`
	StreamType uint8  `json:"streamType"`
	Codec      string `json:"codec"`
	Aligned    bool   `json:"aligned"`
	PTS        *int64 `json:"pts,omitempty"`
	DTS        *int64 `json:"dts,omitempty"`

	// Params and Probe are set when the stream headers were probed.
	Params *esprobe.Params `json:"params,omitempty"`
	Probe  *esprobe.Stats  `json:"probe,omitempty"`
}

// PIDReport describes one PID.
type PIDReport struct {
	PID     uint16  `json:"pid"`
	Kind    string  `json:"kind"`
	Name    string  `json:"name,omitempty"`
	Program *uint16 `json:"program,omitempty"`
	Packets int64   `json:"packets"`
	Rate    int64   `json:"rate"`
}

// TableReport describes one non-PMT table.
type TableReport struct {
	TableID     uint8  `json:"tableId"`
	Extension   uint16 `json:"extension"`
	Version     uint8  `json:"version"`
	LastSection uint8  `json:"lastSection"`
	Sections    int    `json:"sections"`
	Complete    bool   `json:"complete"`
}

// ErrorCount is one cumulative error counter.
type ErrorCount struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Count    int64  `json:"count"`
}

// Build snapshots s. probes may be nil.
func Build(s *mpegts.Session, probes *esprobe.Set) Report {
	r := Report{
		State:    s.State().String(),
		Programs: []ProgramReport{},
		PIDs:     []PIDReport{},
		Tables:   []TableReport{},
	}
	if id, ok := s.TransportStreamID(); ok {
		r.TransportStreamID = &id
	}
	if pid, ok := s.NetworkPID(); ok {
		r.NetworkPID = &pid
	}
	for p := range s.Programs() {
		pr := ProgramReport{
			Number:      p.Number,
			PMTPID:      p.PMTPID,
			PCRPID:      p.PCRPID,
			Provider:    p.Provider,
			Service:     p.Service,
			ServiceType: p.ServiceType,
			Parsed:      p.Parsed,
			STCSynced:   p.STCSynced,
			Elems:       []ElemReport{},
		}
		for e := range s.Elems(p) {
			_, codec := mpegts.ClassifyStreamType(e.StreamType)
			er := ElemReport{PID: e.PID, StreamType: e.StreamType, Codec: codec, Aligned: e.Aligned}
			if e.HasPTS {
				pts := e.PTS
				er.PTS = &pts
			}
			if e.HasDTS {
				dts := e.DTS
				er.DTS = &dts
			}
			if probe, ok := probes.Probe(e.PID); ok {
				st := probe.Stats()
				er.Probe = &st
				if prm, known := probe.Params(); known {
					er.Params = &prm
				}
			}
			pr.Elems = append(pr.Elems, er)
		}
		r.Programs = append(r.Programs, pr)
	}
	for p := range s.PIDs() {
		pr := PIDReport{PID: p.PID, Kind: p.Kind.String(), Name: p.Name, Packets: p.Packets, Rate: p.Rate}
		if p.HasProgram {
			prog := p.Program
			pr.Program = &prog
		}
		r.PIDs = append(r.PIDs, pr)
	}
	for t := range s.Tables() {
		r.Tables = append(r.Tables, TableReport{
			TableID:     t.TableID,
			Extension:   t.Extension,
			Version:     t.Version,
			LastSection: t.LastSection,
			Sections:    t.SectionCount(),
			Complete:    t.Complete(),
		})
	}
	totals := s.Totals()
	r.Packets = totals.Packets
	r.Errors = ErrorCounts(totals)
	return r
}

// ErrorCounts lists the totals in ETSI TR 101 290 order.
func ErrorCounts(t mpegts.Totals) []ErrorCount {
	return []ErrorCount{
		{"TS_sync_loss", 1, t.TSSyncLoss},
		{"Sync_byte_error", 1, t.SyncByteError},
		{"PAT_error", 1, t.PATError},
		{"Continuity_count_error", 1, t.CCError},
		{"PMT_error", 1, t.PMTError},
		{"PID_error", 1, t.PIDError},
		{"Transport_error", 2, t.TransportError},
		{"CRC_error", 2, t.CRCError},
		{"PCR_repetition_error", 2, t.PCRRepetitionError},
		{"PCR_discontinuity_indicator_error", 2, t.PCRDiscontinuityError},
		{"PCR_accuracy_error", 2, t.PCRAccuracyError},
		{"PTS_error", 2, t.PTSError},
		{"CAT_error", 2, t.CATError},
	}
}

// JSON writes the session report as indented JSON.
func JSON(w io.Writer, s *mpegts.Session, probes *esprobe.Set) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Build(s, probes)); err != nil {
		return fmt.Errorf("report: encode: %w", err)
	}
	return nil
}

// Summary writes the session report as aligned text: the program tree,
// the PID table, the other tables and the error totals.
func Summary(w io.Writer, s *mpegts.Session, probes *esprobe.Set) error {
	r := Build(s, probes)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	tsid := "-"
	if r.TransportStreamID != nil {
		tsid = fmt.Sprintf("0x%04X", *r.TransportStreamID)
	}
	fmt.Fprintf(tw, "TRANSPORT STREAM\t%s\tstate %s\t%d packets\n", tsid, r.State, r.Packets)
	if r.NetworkPID != nil {
		fmt.Fprintf(tw, "NETWORK PID\t0x%04X\t\t\n", *r.NetworkPID)
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "PROGRAM\tPMT\tPCR\tPROVIDER\tSERVICE")
	for _, p := range r.Programs {
		fmt.Fprintf(tw, "%d\t0x%04X\t0x%04X\t%s\t%s\n", p.Number, p.PMTPID, p.PCRPID, p.Provider, p.Service)
		for _, e := range p.Elems {
			var detail string
			if e.Params != nil {
				detail = e.Params.String()
			}
			if e.Probe != nil && e.Probe.Keyframes > 0 {
				detail += fmt.Sprintf(" (%d/%d keyframes)", e.Probe.Keyframes, e.Probe.Units)
			}
			fmt.Fprintf(tw, "  0x%04X\t0x%02X\t%s\t%s\t\n", e.PID, e.StreamType, e.Codec, strings.TrimSpace(detail))
		}
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "PID\tKIND\tNAME\tPACKETS\tRATE")
	for _, p := range r.PIDs {
		fmt.Fprintf(tw, "0x%04X\t%s\t%s\t%d\t%s\n", p.PID, p.Kind, p.Name, p.Packets, Bitrate(p.Rate))
	}

	if len(r.Tables) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "TABLE\tEXT\tVERSION\tSECTIONS\tCOMPLETE")
		for _, t := range r.Tables {
			fmt.Fprintf(tw, "0x%02X\t0x%04X\t%d\t%d/%d\t%v\n", t.TableID, t.Extension, t.Version, t.Sections, int(t.LastSection)+1, t.Complete)
		}
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "ERROR\tPRIORITY\tCOUNT\t\t")
	for _, e := range r.Errors {
		fmt.Fprintf(tw, "%s\t%d\t%d\t\t\n", e.Name, e.Priority, e.Count)
	}
	return tw.Flush()
}
