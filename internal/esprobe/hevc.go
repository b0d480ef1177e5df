package esprobe

import (
	"fmt"
	"math/bits"
	"strings"
)

// H.265 NAL unit types (ITU-T H.265 Table 7-1).
const (
	hevcNALBLAWLP = 16
	hevcNALCRA    = 21
	hevcNALSPS    = 33
)

func hevcNALType(b byte) byte {
	return b >> 1 & 0x3F
}

// hevcRandomAccess reports BLA, IDR and CRA pictures.
func hevcRandomAccess(typ byte) bool {
	return typ >= hevcNALBLAWLP && typ <= hevcNALCRA
}

var hevcProfiles = map[uint32]string{
	1: "Main",
	2: "Main 10",
	3: "Main Still Picture",
	4: "Range Extensions",
}

type hevcPTL struct {
	tier        bool
	profile     uint32
	compat      uint32
	constraints uint64
	level       uint32
}

// codec formats the ISO/IEC 14496-15 "hev1" codec string.
func (t hevcPTL) codec() string {
	var sb strings.Builder
	tier := 'L'
	if t.tier {
		tier = 'H'
	}
	fmt.Fprintf(&sb, "hev1.%d.%X.%c%d", t.profile, bits.Reverse32(t.compat), tier, t.level)

	var cb [6]byte
	last := -1
	for i := range cb {
		cb[i] = byte(t.constraints >> (8 * (5 - i)))
		if cb[i] != 0 {
			last = i
		}
	}
	for i := 0; i <= last; i++ {
		fmt.Fprintf(&sb, ".%X", cb[i])
	}
	return sb.String()
}

// parseHEVCSPS reads resolution and profile_tier_level from an H.265 SPS NAL
// unit, two byte header included.
func parseHEVCSPS(nal []byte) (Params, error) {
	if len(nal) < 4 {
		return Params{}, errShortSPS
	}
	r := newRBSPReader(unescapeRBSP(nal[2:]))

	r.u(4) // sps_video_parameter_set_id
	subLayers := uint(r.u(3))
	r.flag() // sps_temporal_id_nesting_flag
	ptl := r.hevcProfileTierLevel(subLayers)

	r.ue() // sps_seq_parameter_set_id
	chroma := r.ue()
	if chroma == 3 {
		r.flag() // separate_colour_plane_flag
	}
	width := int(r.ue())
	height := int(r.ue())
	if r.err != nil {
		return Params{}, fmt.Errorf("esprobe: HEVC SPS: %w", r.err)
	}

	if r.flag() { // conformance_window_flag
		subW, subH := 1, 1
		switch chroma {
		case 1:
			subW, subH = 2, 2
		case 2:
			subW = 2
		}
		left, right, top, bottom := r.ue(), r.ue(), r.ue(), r.ue()
		if r.err == nil {
			width -= subW * int(left+right)
			height -= subH * int(top+bottom)
		}
	}
	if width <= 0 || height <= 0 {
		return Params{}, fmt.Errorf("esprobe: HEVC SPS: bad size %dx%d", width, height)
	}

	p := Params{
		Codec:        ptl.codec(),
		Profile:      hevcProfiles[ptl.profile],
		Level:        fmt.Sprintf("%d.%d", ptl.level/30, ptl.level%30/3),
		Width:        width,
		Height:       height,
		ChromaFormat: int(chroma),
	}
	if depth := r.ue(); r.err == nil {
		p.BitDepth = 8 + int(depth)
	}
	return p, nil
}

func (r *rbspReader) hevcProfileTierLevel(subLayers uint) hevcPTL {
	var t hevcPTL
	r.u(2) // general_profile_space
	t.tier = r.flag()
	t.profile = r.u(5)
	t.compat = r.u(32)
	t.constraints = uint64(r.u(16))<<32 | uint64(r.u(32))
	t.level = r.u(8)

	if subLayers == 0 {
		return t
	}
	var profilePresent, levelPresent [8]bool
	for i := range subLayers {
		profilePresent[i] = r.flag()
		levelPresent[i] = r.flag()
	}
	for range 8 - subLayers {
		r.u(2) // reserved_zero_2bits
	}
	for i := range subLayers {
		if profilePresent[i] {
			r.skip(88)
		}
		if levelPresent[i] {
			r.u(8)
		}
	}
	return t
}
