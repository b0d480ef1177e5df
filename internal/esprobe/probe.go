// Package esprobe reads codec parameters from elementary stream headers:
// H.264 and HEVC sequence parameter sets, MPEG-1/2 video sequence headers
// and AAC ADTS frame headers. It counts random access pictures but does not
// decode media.
package esprobe

import (
	"fmt"
	"log/slog"
	"strings"
)

// maxUnit bounds how much of one PES payload is kept for scanning.
const maxUnit = 1 << 20

// Params describes an elementary stream as signalled in its headers.
type Params struct {
	// Codec is the RFC 6381 codec string, such as avc1.64001F or mp4a.40.2.
	Codec        string  `json:"codec"`
	Profile      string  `json:"profile,omitempty"`
	Level        string  `json:"level,omitempty"`
	Width        int     `json:"width,omitempty"`
	Height       int     `json:"height,omitempty"`
	FrameRate    float64 `json:"frameRate,omitempty"`
	Interlaced   bool    `json:"interlaced,omitempty"`
	ChromaFormat int     `json:"chromaFormat,omitempty"`
	BitDepth     int     `json:"bitDepth,omitempty"`
	SampleRate   int     `json:"sampleRate,omitempty"`
	Channels     int     `json:"channels,omitempty"`
}

// String formats p on one line, e.g. "avc1.64001F High 3.1 1280x720p 25fps".
func (p Params) String() string {
	parts := []string{p.Codec}
	if p.Profile != "" {
		parts = append(parts, p.Profile)
	}
	if p.Level != "" {
		parts = append(parts, p.Level)
	}
	if p.Width > 0 {
		scan := "p"
		if p.Interlaced {
			scan = "i"
		}
		parts = append(parts, fmt.Sprintf("%dx%d%s", p.Width, p.Height, scan))
	}
	if p.FrameRate > 0 {
		parts = append(parts, strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.3f", p.FrameRate), "0"), ".")+"fps")
	}
	if p.SampleRate > 0 {
		parts = append(parts, fmt.Sprintf("%dHz", p.SampleRate))
	}
	if p.Channels > 0 {
		parts = append(parts, fmt.Sprintf("%dch", p.Channels))
	}
	return strings.Join(parts, " ")
}

// Stats counts what a probe has scanned.
type Stats struct {
	Units     int64 `json:"units"`
	Keyframes int64 `json:"keyframes"`
	Frames    int64 `json:"frames,omitempty"`
	Changes   int64 `json:"changes,omitempty"`
	Truncated int64 `json:"truncated,omitempty"`
}

type syntax int

const (
	syntaxNone syntax = iota
	syntaxMPEG1Video
	syntaxMPEG2Video
	syntaxAVC
	syntaxHEVC
	syntaxADTS
)

func syntaxOf(streamType uint8) syntax {
	switch streamType {
	case 0x01:
		return syntaxMPEG1Video
	case 0x02:
		return syntaxMPEG2Video
	case 0x1B:
		return syntaxAVC
	case 0x24:
		return syntaxHEVC
	case 0x0F:
		return syntaxADTS
	}
	return syntaxNone
}

// Probe collects one PES payload at a time and scans it when the next one
// starts.
type Probe struct {
	pid    uint16
	syntax syntax
	log    *slog.Logger

	params Params
	known  bool
	stats  Stats

	buf  []byte
	open bool
	over bool
}

// NewProbe returns a probe for pid carrying streamType, or false when the
// stream type has no probe.
func NewProbe(pid uint16, streamType uint8, log *slog.Logger) (*Probe, bool) {
	syn := syntaxOf(streamType)
	if syn == syntaxNone {
		return nil, false
	}
	if log == nil {
		log = slog.Default()
	}
	return &Probe{pid: pid, syntax: syn, log: log}, true
}

// Write adds ES bytes. unitStart marks the first bytes of a new PES payload;
// the previous payload is scanned first. Bytes before the first unit start
// are dropped.
func (p *Probe) Write(unitStart bool, data []byte) {
	if unitStart {
		p.Flush()
		p.open = true
	}
	if !p.open {
		return
	}
	if room := maxUnit - len(p.buf); len(data) > room {
		data = data[:room]
		p.over = true
	}
	p.buf = append(p.buf, data...)
}

// Flush scans the pending payload.
func (p *Probe) Flush() {
	if !p.open {
		return
	}
	p.scan(p.buf)
	p.stats.Units++
	if p.over {
		p.stats.Truncated++
	}
	p.buf = p.buf[:0]
	p.open, p.over = false, false
}

// Params returns the latest parameters, if any header has been read.
func (p *Probe) Params() (Params, bool) {
	return p.params, p.known
}

// Stats returns the counters.
func (p *Probe) Stats() Stats {
	return p.stats
}

func (p *Probe) scan(unit []byte) {
	switch p.syntax {
	case syntaxAVC:
		p.scanAVC(unit)
	case syntaxHEVC:
		p.scanHEVC(unit)
	case syntaxMPEG1Video, syntaxMPEG2Video:
		p.scanMPV(unit)
	case syntaxADTS:
		h, n, ok := scanADTS(unit)
		p.stats.Frames += int64(n)
		if ok {
			p.update(h.params)
		}
	}
}

func (p *Probe) scanAVC(unit []byte) {
	key := false
	for _, nal := range splitStartCodes(unit) {
		switch nal[0] & 0x1F {
		case avcNALIDR:
			key = true
		case avcNALSPS:
			p.parsed(parseAVCSPS(nal))
		}
	}
	if key {
		p.stats.Keyframes++
	}
}

func (p *Probe) scanHEVC(unit []byte) {
	key := false
	for _, nal := range splitStartCodes(unit) {
		if len(nal) < 2 {
			continue
		}
		switch typ := hevcNALType(nal[0]); {
		case hevcRandomAccess(typ):
			key = true
		case typ == hevcNALSPS:
			p.parsed(parseHEVCSPS(nal))
		}
	}
	if key {
		p.stats.Keyframes++
	}
}

func (p *Probe) scanMPV(unit []byte) {
	var (
		seq    Params
		hasSeq bool
		key    bool
	)
	for _, u := range splitStartCodes(unit) {
		switch u[0] {
		case mpvSequence:
			prm, err := parseMPVSequence(u, p.syntax == syntaxMPEG2Video)
			if err != nil {
				p.log.Debug("sequence header rejected", "pid", p.pid, "error", err)
				continue
			}
			seq, hasSeq = prm, true
		case mpvExtension:
			if hasSeq {
				applyMPVSequenceExtension(&seq, u)
			}
		case mpvPicture:
			key = key || mpvIntra(u)
		}
	}
	if hasSeq {
		p.update(seq)
	}
	if key {
		p.stats.Keyframes++
	}
}

func (p *Probe) parsed(prm Params, err error) {
	if err != nil {
		p.log.Debug("parameter set rejected", "pid", p.pid, "error", err)
		return
	}
	p.update(prm)
}

func (p *Probe) update(prm Params) {
	switch {
	case !p.known:
		p.log.Info("codec parameters", "pid", p.pid, "params", prm.String())
	case prm != p.params:
		p.stats.Changes++
		p.log.Info("codec parameters changed", "pid", p.pid, "from", p.params.String(), "to", prm.String())
	default:
		return
	}
	p.params, p.known = prm, true
}

// Set keeps one probe per PID.
type Set struct {
	log    *slog.Logger
	probes map[uint16]*Probe
	skip   map[uint16]bool
}

// NewSet returns an empty set. A nil log uses slog.Default.
func NewSet(log *slog.Logger) *Set {
	if log == nil {
		log = slog.Default()
	}
	return &Set{
		log:    log.With("component", "esprobe"),
		probes: make(map[uint16]*Probe),
		skip:   make(map[uint16]bool),
	}
}

// Feed routes the ES bytes of one packet to the probe for pid, creating it
// on first use. PIDs whose stream type has no probe are remembered and
// ignored.
func (s *Set) Feed(pid uint16, streamType uint8, unitStart bool, data []byte) {
	p, ok := s.probes[pid]
	if !ok {
		if s.skip[pid] {
			return
		}
		if p, ok = NewProbe(pid, streamType, s.log); !ok {
			s.skip[pid] = true
			return
		}
		s.probes[pid] = p
	}
	p.Write(unitStart, data)
}

// Flush scans every pending payload. Call it once the input ends.
func (s *Set) Flush() {
	for _, p := range s.probes {
		p.Flush()
	}
}

// Probe returns the probe for pid. A nil set has none.
func (s *Set) Probe(pid uint16) (*Probe, bool) {
	if s == nil {
		return nil, false
	}
	p, ok := s.probes[pid]
	return p, ok
}
