package esprobe

import (
	"errors"
	"fmt"
)

// H.264 NAL unit types (ITU-T H.264 Table 7-1).
const (
	avcNALIDR = 5
	avcNALSPS = 7
)

var errShortSPS = errors.New("SPS too short")

var avcProfiles = map[uint32]string{
	66:  "Baseline",
	77:  "Main",
	88:  "Extended",
	100: "High",
	110: "High 10",
	122: "High 4:2:2",
	244: "High 4:4:4 Predictive",
	44:  "CAVLC 4:4:4 Intra",
}

// avcHighProfile reports whether the SPS of profile carries chroma format,
// bit depth and scaling matrices.
func avcHighProfile(profile uint32) bool {
	switch profile {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		return true
	}
	return false
}

// parseAVCSPS reads resolution, profile and frame rate from an H.264 SPS NAL
// unit, header byte included.
func parseAVCSPS(nal []byte) (Params, error) {
	if len(nal) < 4 {
		return Params{}, errShortSPS
	}
	r := newRBSPReader(unescapeRBSP(nal[1:]))

	profile := r.u(8)
	constraints := r.u(8)
	level := r.u(8)
	r.ue() // seq_parameter_set_id

	chroma, bitDepth := uint32(1), uint32(8)
	separatePlanes := false
	if avcHighProfile(profile) {
		chroma = r.ue()
		if chroma == 3 {
			separatePlanes = r.flag()
		}
		bitDepth += r.ue()
		r.ue()   // bit_depth_chroma_minus8
		r.flag() // qpprime_y_zero_transform_bypass_flag
		if r.flag() {
			lists := 8
			if chroma == 3 {
				lists = 12
			}
			for i := range lists {
				if !r.flag() {
					continue
				}
				if i < 6 {
					r.scalingList(16)
				} else {
					r.scalingList(64)
				}
			}
		}
	}

	r.ue() // log2_max_frame_num_minus4
	switch r.ue() {
	case 0:
		r.ue() // log2_max_pic_order_cnt_lsb_minus4
	case 1:
		r.flag()
		r.se()
		r.se()
		cycle := r.ue()
		if cycle > 255 {
			return Params{}, fmt.Errorf("esprobe: H.264 SPS: %d ref frames in POC cycle", cycle)
		}
		for range cycle {
			r.se()
		}
	}
	r.ue()   // max_num_ref_frames
	r.flag() // gaps_in_frame_num_value_allowed_flag

	widthMbs := r.ue() + 1
	heightUnits := r.ue() + 1
	frameMbsOnly := r.flag()
	if !frameMbsOnly {
		r.flag() // mb_adaptive_frame_field_flag
	}
	r.flag() // direct_8x8_inference_flag

	var cropL, cropR, cropT, cropB uint32
	if r.flag() {
		cropL, cropR, cropT, cropB = r.ue(), r.ue(), r.ue(), r.ue()
	}
	if r.err != nil {
		return Params{}, fmt.Errorf("esprobe: H.264 SPS: %w", r.err)
	}

	subW, subH := uint32(2), uint32(2)
	switch {
	case separatePlanes || chroma == 0 || chroma == 3:
		subW, subH = 1, 1
	case chroma == 2:
		subH = 1
	}
	fieldMul := uint32(1)
	if !frameMbsOnly {
		fieldMul = 2
	}
	width := int(widthMbs*16) - int(subW*(cropL+cropR))
	height := int(heightUnits*16*fieldMul) - int(subH*fieldMul*(cropT+cropB))
	if width <= 0 || height <= 0 {
		return Params{}, fmt.Errorf("esprobe: H.264 SPS: bad size %dx%d", width, height)
	}

	p := Params{
		Codec:        fmt.Sprintf("avc1.%02X%02X%02X", profile, constraints, level),
		Profile:      avcProfiles[profile],
		Level:        fmt.Sprintf("%d.%d", level/10, level%10),
		Width:        width,
		Height:       height,
		Interlaced:   !frameMbsOnly,
		ChromaFormat: int(chroma),
		BitDepth:     int(bitDepth),
	}
	if r.flag() {
		p.FrameRate = r.avcFrameRate()
	}
	return p, nil
}

// avcFrameRate reads VUI parameters up to timing_info. It returns 0 when
// the stream signals no timing or the VUI is cut short.
func (r *rbspReader) avcFrameRate() float64 {
	if r.flag() { // aspect_ratio_info_present_flag
		if r.u(8) == 255 {
			r.skip(32) // sar_width, sar_height
		}
	}
	if r.flag() { // overscan_info_present_flag
		r.flag()
	}
	if r.flag() { // video_signal_type_present_flag
		r.u(4)
		if r.flag() {
			r.u(24)
		}
	}
	if r.flag() { // chroma_loc_info_present_flag
		r.ue()
		r.ue()
	}
	if !r.flag() {
		return 0
	}
	tick := r.u(32)
	scale := r.u(32)
	if r.err != nil || tick == 0 {
		return 0
	}
	return float64(scale) / (2 * float64(tick))
}
